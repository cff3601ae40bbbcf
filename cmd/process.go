package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/checkpoint"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

var (
	processID             string
	processPeriodEnd      string
	processFilingType     string
	processStandard       string
	processClassification string
	processAmended        bool
)

var processCmd = &cobra.Command{
	Use:   "process <content-file>",
	Short: "Run a single filing through the extraction cascade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		periodEnd, err := time.Parse("2006-01-02", processPeriodEnd)
		if err != nil {
			return fmt.Errorf("parse period end: %w", err)
		}

		doc := model.FilingDocument{
			Meta: model.FilingMetadata{
				ID:             processID,
				PeriodEnd:      periodEnd,
				FilingType:     processFilingType,
				Standard:       model.AccountingStandard(processStandard),
				Classification: model.IssuerClassification(processClassification),
				Amended:        processAmended,
			},
			Content: content,
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		state, err := checkpoint.LoadOrInit(ctx, e.Store, doc.Meta.ID)
		if err != nil {
			return err
		}
		for !state.Status.Terminal() {
			state, err = e.Orch.Advance(ctx, doc, state)
			if err != nil {
				return err
			}
		}

		out, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processID, "id", "", "document identifier (required)")
	processCmd.Flags().StringVar(&processPeriodEnd, "period-end", "", "reporting period end, YYYY-MM-DD (required)")
	processCmd.Flags().StringVar(&processFilingType, "filing-type", "10-K", "filing type")
	processCmd.Flags().StringVar(&processStandard, "standard", string(model.StandardUSGAAP), "declared accounting standard (US-GAAP, IFRS, OTHER)")
	processCmd.Flags().StringVar(&processClassification, "classification", string(model.IssuerUnknown), "issuer classification (OPERATING, HOLDING, SPAC, UNKNOWN)")
	processCmd.Flags().BoolVar(&processAmended, "amended", false, "filing is an amendment")
	_ = processCmd.MarkFlagRequired("id")
	_ = processCmd.MarkFlagRequired("period-end")
	rootCmd.AddCommand(processCmd)
}
