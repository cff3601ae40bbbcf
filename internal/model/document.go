// Package model defines the data types shared across the extraction pipeline.
package model

import "time"

// AccountingStandard is the declared reporting framework of a filing.
type AccountingStandard string

const (
	StandardUSGAAP AccountingStandard = "US-GAAP"
	StandardIFRS   AccountingStandard = "IFRS"
	StandardOther  AccountingStandard = "OTHER"
)

// IssuerClassification categorizes the filing entity.
type IssuerClassification string

const (
	IssuerOperating IssuerClassification = "OPERATING"
	IssuerHolding   IssuerClassification = "HOLDING"
	IssuerSPAC      IssuerClassification = "SPAC"
	IssuerUnknown   IssuerClassification = "UNKNOWN"
)

// FilingMetadata describes a filing independent of its content.
type FilingMetadata struct {
	ID             string               `json:"id" yaml:"id"`
	PeriodEnd      time.Time            `json:"period_end" yaml:"period_end"`
	FilingType     string               `json:"filing_type" yaml:"filing_type"`
	Standard       AccountingStandard   `json:"standard" yaml:"standard"`
	Classification IssuerClassification `json:"classification" yaml:"classification"`
	Amended        bool                 `json:"amended" yaml:"amended"`
}

// FilingDocument is the immutable pipeline input: raw content plus metadata.
// Produced by the upstream fetch collaborator; never mutated here.
type FilingDocument struct {
	Meta    FilingMetadata
	Content []byte
}
