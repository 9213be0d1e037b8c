package classify

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/pkg/anthropic"
)

const classifySystemPrompt = `You label numerical datapoints extracted from oil & gas deal documents (financial models, reserve reports, production exports).

Given one datapoint with its surrounding headers, respond with exactly one JSON object and nothing else:
{"semantic_key": "oil_production", "category": "production|reserves|financial|costs|fiscal|scalar|unclassified", "unit": "kbbl", "period": "2025-03", "entity": "Permian Field A", "case_name": "base_case", "is_assumption": false, "is_output": true, "confidence": "HIGH|MEDIUM|LOW"}

Use lower_snake_case for semantic_key and case_name. Leave unknown fields empty. Never invent a unit.`

// Claude classifies observations with an Anthropic model and falls back to
// the heuristic on any failure: a model outage degrades label quality, it
// does not fail ingestion.
type Claude struct {
	client   anthropic.Client
	model    string
	fallback *Heuristic
}

// NewClaude wraps an Anthropic client as a Classifier.
func NewClaude(client anthropic.Client, modelID string) *Claude {
	return &Claude{client: client, model: modelID, fallback: NewHeuristic()}
}

func (c *Claude) Classify(ctx context.Context, obs model.RawObservation, doc DocContext) (model.Classification, error) {
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: 512,
		System:    classifySystemPrompt,
		Prompt:    buildPrompt(obs, doc),
	})
	if err != nil {
		zap.L().Debug("classifier: model call failed, falling back to heuristic", zap.Error(err))
		return c.fallback.Classify(ctx, obs, doc)
	}
	resp.Usage.LogCost(c.model, "classify")

	cl, err := parseVerdict(resp.Text)
	if err != nil {
		zap.L().Debug("classifier: unparseable verdict, falling back to heuristic",
			zap.Error(err), zap.String("location", obs.Location))
		return c.fallback.Classify(ctx, obs, doc)
	}
	if cl.CaseName == "" {
		cl.CaseName = doc.CaseName
	}
	return cl, nil
}

func buildPrompt(obs model.RawObservation, doc DocContext) string {
	var b strings.Builder
	b.WriteString("Document: " + doc.Filename)
	if doc.Category != "" {
		b.WriteString(" (category: " + doc.Category + ")")
	}
	if doc.Label != "" {
		b.WriteString(" label: " + doc.Label)
	}
	b.WriteString("\nLocation: " + obs.Location)
	b.WriteString("\nValue: " + obs.RawText)
	if obs.FormulaText != "" {
		b.WriteString("\nFormula: " + obs.FormulaText)
	}
	if len(obs.ContextHeaders) > 0 {
		b.WriteString("\nHeaders: " + strings.Join(obs.ContextHeaders, " | "))
	}
	return b.String()
}

type verdictWire struct {
	SemanticKey  string `json:"semantic_key"`
	Category     string `json:"category"`
	Unit         string `json:"unit"`
	Period       string `json:"period"`
	Entity       string `json:"entity"`
	CaseName     string `json:"case_name"`
	IsAssumption bool   `json:"is_assumption"`
	IsOutput     bool   `json:"is_output"`
	Confidence   string `json:"confidence"`
}

// parseVerdict extracts the first JSON object from the model's reply and
// maps it onto a Classification. Anything malformed is a classification
// error the caller downgrades to the heuristic.
func parseVerdict(text string) (model.Classification, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return model.Classification{}, faults.New(faults.Classification, "no JSON object in model reply")
	}

	var wire verdictWire
	if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
		return model.Classification{}, faults.Wrap(faults.Classification, err, "decode verdict")
	}

	cl := model.Classification{
		SemanticKey:  strings.ToLower(strings.TrimSpace(wire.SemanticKey)),
		Category:     strings.ToLower(strings.TrimSpace(wire.Category)),
		Unit:         strings.TrimSpace(wire.Unit),
		Period:       strings.TrimSpace(wire.Period),
		Entity:       strings.TrimSpace(wire.Entity),
		CaseName:     strings.ToLower(strings.TrimSpace(wire.CaseName)),
		IsAssumption: wire.IsAssumption,
		IsOutput:     wire.IsOutput,
	}

	switch strings.ToUpper(wire.Confidence) {
	case string(model.ConfidenceHigh):
		cl.Confidence = model.ConfidenceHigh
	case string(model.ConfidenceMedium):
		cl.Confidence = model.ConfidenceMedium
	default:
		cl.Confidence = model.ConfidenceLow
	}

	if cl.Category == "" || cl.Category == model.CategoryUnclassified {
		cl.Category = model.CategoryUnclassified
		cl.Confidence = model.ConfidenceLow
		return cl, nil
	}
	table, ok := TableForCategory(cl.Category)
	if !ok {
		return model.Classification{}, faults.Newf(faults.Classification, "unknown category %q", cl.Category)
	}
	if cl.SemanticKey == "" {
		return model.Classification{}, faults.New(faults.Classification, "classified verdict missing semantic_key")
	}
	cl.Table = table
	return cl, nil
}
