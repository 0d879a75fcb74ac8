// internal/zeus/intent/model.go
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// TextCompleter is the slice of the generation client the model stage needs.
type TextCompleter interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// historyWindow is how many trailing turns are sent to the model.
const historyWindow = 3

// classificationSchema validates the strict-parse path of the model output.
const classificationSchema = `{
	"type": "object",
	"required": ["intent", "confidence"],
	"properties": {
		"intent": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

var (
	jsonObjectRe      = regexp.MustCompile(`\{[^{}]*\}`)
	intentFieldRe     = regexp.MustCompile(`"?intent"?\s*[:=]\s*"?([a-z_]+)"?`)
	confidenceFieldRe = regexp.MustCompile(`"?confidence"?\s*[:=]\s*([0-9]*\.?[0-9]+)`)
)

// ModelStage asks the generation endpoint to label a query when no rule
// matched. Malformed model output is a normal case, not an exceptional one:
// the stage degrades through strict parse, regex extraction, and finally a
// fixed default. It never returns an error.
type ModelStage struct {
	completer TextCompleter
	logger    logger.Logger
}

func NewModelStage(completer TextCompleter, log logger.Logger) *ModelStage {
	return &ModelStage{
		completer: completer,
		logger: log.With(map[string]interface{}{
			"component": "model-classifier",
		}),
	}
}

// DefaultResult is the fixed fallback classification.
func DefaultResult(query string) *ClassificationResult {
	return &ClassificationResult{
		Intent:     IntentGeneralQuery,
		Confidence: 0.5,
		Entities:   ExtractEntities(query, IntentGeneralQuery),
		Source:     SourceDefault,
		QueryType:  QueryTypeOf(IntentGeneralQuery),
	}
}

func (s *ModelStage) Classify(ctx context.Context, query string, history []models.Turn) *ClassificationResult {
	prompt := s.buildPrompt(query, history)

	raw, err := s.completer.Generate(ctx, prompt, 64, 0)
	if err != nil {
		s.logger.Warn("model classification call failed, using default", map[string]interface{}{
			"error": err.Error(),
		})
		return DefaultResult(query)
	}

	label, confidence, ok := parseClassification(raw)
	if !ok || !IsKnown(label) {
		s.logger.Warn("model returned unparseable classification, using default", map[string]interface{}{
			"raw": truncate(raw, 200),
		})
		return DefaultResult(query)
	}

	// Confidence is trusted as-given from upstream; only clearly invalid
	// values are clamped.
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &ClassificationResult{
		Intent:     label,
		Confidence: confidence,
		Entities:   ExtractEntities(query, label),
		Source:     SourceModel,
		QueryType:  QueryTypeOf(label),
	}
}

func (s *ModelStage) buildPrompt(query string, history []models.Turn) string {
	var b strings.Builder

	b.WriteString("Classify the user's music-career question into exactly one intent label.\n")
	b.WriteString("Known labels: ")
	labels := AllIntents()
	for i, l := range labels {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(l))
	}
	b.WriteString("\n\n")

	if len(history) > 0 {
		start := len(history) - historyWindow
		if start < 0 {
			start = 0
		}
		b.WriteString("Recent conversation:\n")
		for _, turn := range history[start:] {
			b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("Question: %s\n\n", query))
	b.WriteString(`Respond with only a JSON object: {"intent": "<label>", "confidence": <0.0-1.0>}`)

	return b.String()
}

// parseClassification attempts a strict JSON parse first, then a regex
// extraction of the two fields.
func parseClassification(raw string) (Intent, float64, bool) {
	if candidate := jsonObjectRe.FindString(raw); candidate != "" {
		schema := gojsonschema.NewStringLoader(classificationSchema)
		doc := gojsonschema.NewStringLoader(candidate)
		if result, err := gojsonschema.Validate(schema, doc); err == nil && result.Valid() {
			var parsed struct {
				Intent     string  `json:"intent"`
				Confidence float64 `json:"confidence"`
			}
			if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
				return Intent(parsed.Intent), parsed.Confidence, true
			}
		}
	}

	intentMatch := intentFieldRe.FindStringSubmatch(raw)
	confMatch := confidenceFieldRe.FindStringSubmatch(raw)
	if intentMatch != nil && confMatch != nil {
		confidence, err := strconv.ParseFloat(confMatch[1], 64)
		if err != nil {
			return "", 0, false
		}
		return Intent(intentMatch[1]), confidence, true
	}

	return "", 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
