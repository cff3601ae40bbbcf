package infer

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// responsePayload is the JSON shape the extraction prompt asks for.
type responsePayload struct {
	Confidence float64 `json:"confidence"`
	Fields     map[string]struct {
		Value  float64 `json:"value"`
		Source string  `json:"source"`
	} `json:"fields"`
}

// knownMetrics gates which response keys become canonical metrics; anything
// else the model invents is dropped.
var knownMetrics = func() map[model.Metric]bool {
	out := make(map[model.Metric]bool)
	for _, m := range model.CoreMetrics {
		out[m] = true
	}
	for _, m := range []model.Metric{
		model.MetricOperatingIncome,
		model.MetricCashAndEquivalents,
		model.MetricInterestExpense,
		model.MetricSharesOutstanding,
	} {
		out[m] = true
	}
	return out
}()

// ParseResponse decodes the model's JSON reply into a Result. Code fences
// around the JSON are tolerated; anything else malformed is an error.
func ParseResponse(text string) (*Result, error) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, eris.New("infer: empty response")
	}

	var payload responsePayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, eris.Wrap(err, "infer: parse response")
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		return nil, eris.Errorf("infer: confidence %.3f out of range", payload.Confidence)
	}

	fields := make(model.FieldMap, len(payload.Fields))
	for name, f := range payload.Fields {
		metric := model.Metric(name)
		if !knownMetrics[metric] {
			continue
		}
		conf := payload.Confidence
		source := f.Source
		if source == "" {
			source = "unspecified"
		}
		fields[metric] = model.TaggedValue{
			Value:      f.Value,
			Provenance: "llm:" + source,
			Confidence: &conf,
		}
	}

	return &Result{Fields: fields, Confidence: payload.Confidence}, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
