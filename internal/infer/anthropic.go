package infer

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// Config tunes the Anthropic-backed extractor.
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int64
	MaxExcerpt     int     // max document bytes sent per request
	RequestsPerSec float64 // client-side pacing; 0 disables
}

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	client  sdk.Client
	cfg     Config
	limiter *rate.Limiter
}

// NewAnthropic creates an assisted-extraction client.
func NewAnthropic(cfg Config) *AnthropicClient {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.MaxExcerpt <= 0 {
		cfg.MaxExcerpt = 64 * 1024
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}
	return &AnthropicClient{
		client:  sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:     cfg,
		limiter: limiter,
	}
}

const systemPrompt = `You extract financial metrics from regulatory filings.
Given a filing excerpt, return ONLY a JSON object of the form:
{"confidence": <0..1>, "fields": {"<metric>": {"value": <number>, "source": "<where in the document>"}}}
Metrics: revenue, net_income, total_assets, total_liabilities, total_equity,
total_debt, operating_cash_flow, eps_diluted, operating_income,
cash_and_equivalents, interest_expense, shares_outstanding.
Omit any metric you cannot find. Report values in the filing's stated units.
Confidence reflects how certain you are about the set as a whole.`

// Infer sends one extraction request. The caller owns the deadline; a context
// timeout surfaces as an error, which the orchestrator records as an ERROR
// outcome.
func (c *AnthropicClient) Infer(ctx context.Context, doc model.FilingDocument) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "infer: rate limit wait")
		}
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(buildPrompt(doc, c.cfg.MaxExcerpt))),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "infer: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	res, err := ParseResponse(text.String())
	if err != nil {
		return nil, err
	}

	zap.L().Debug("infer: extraction response",
		zap.String("document", doc.Meta.ID),
		zap.Float64("confidence", res.Confidence),
		zap.Int("fields", len(res.Fields)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return res, nil
}

// buildPrompt assembles the metadata context and document excerpt.
func buildPrompt(doc model.FilingDocument, maxExcerpt int) string {
	content := doc.Content
	if len(content) > maxExcerpt {
		content = content[:maxExcerpt]
	}
	return fmt.Sprintf(
		"Filing %s (%s), period ending %s, declared standard %s, issuer %s, amended=%t.\n\n%s",
		doc.Meta.ID, doc.Meta.FilingType,
		doc.Meta.PeriodEnd.Format("2006-01-02"),
		doc.Meta.Standard, doc.Meta.Classification, doc.Meta.Amended,
		content,
	)
}
