package intent

import (
	"context"
	"errors"
	"testing"

	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/models"

	"github.com/stretchr/testify/assert"
)

type stubCompleter struct {
	response string
	err      error
	prompts  []string
}

func (s *stubCompleter) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func TestModelStageStrictJSON(t *testing.T) {
	stage := NewModelStage(&stubCompleter{
		response: `{"intent": "get_stats", "confidence": 0.82}`,
	}, logger.NewTestLogger(t))

	result := stage.Classify(context.Background(), "numbers please", nil)
	assert.Equal(t, IntentGetStats, result.Intent)
	assert.Equal(t, 0.82, result.Confidence)
	assert.Equal(t, SourceModel, result.Source)
	assert.Equal(t, QueryTypeAnalytics, result.QueryType)
}

func TestModelStageJSONEmbeddedInProse(t *testing.T) {
	stage := NewModelStage(&stubCompleter{
		response: "Sure! Here is the classification: {\"intent\": \"plan_tour\", \"confidence\": 0.7} hope that helps",
	}, logger.NewTestLogger(t))

	result := stage.Classify(context.Background(), "thinking about live shows", nil)
	assert.Equal(t, IntentPlanTour, result.Intent)
	assert.Equal(t, 0.7, result.Confidence)
}

func TestModelStageRegexFallback(t *testing.T) {
	stage := NewModelStage(&stubCompleter{
		response: "intent: get_recommendations confidence: 0.65",
	}, logger.NewTestLogger(t))

	result := stage.Classify(context.Background(), "ideas?", nil)
	assert.Equal(t, IntentGetRecommendations, result.Intent)
	assert.Equal(t, 0.65, result.Confidence)
	assert.Equal(t, SourceModel, result.Source)
}

func TestModelStageGarbageFallsBackToDefault(t *testing.T) {
	stage := NewModelStage(&stubCompleter{
		response: "I am not sure what you mean by that.",
	}, logger.NewTestLogger(t))

	result := stage.Classify(context.Background(), "???", nil)
	assert.Equal(t, IntentGeneralQuery, result.Intent)
	assert.Equal(t, 0.5, result.Confidence)
	assert.Equal(t, SourceDefault, result.Source)
	assert.Equal(t, QueryTypeGeneral, result.QueryType)
}

func TestModelStageUnknownLabelFallsBackToDefault(t *testing.T) {
	stage := NewModelStage(&stubCompleter{
		response: `{"intent": "order_pizza", "confidence": 0.99}`,
	}, logger.NewTestLogger(t))

	result := stage.Classify(context.Background(), "query", nil)
	assert.Equal(t, IntentGeneralQuery, result.Intent)
	assert.Equal(t, SourceDefault, result.Source)
}

func TestModelStageTransportErrorFallsBackToDefault(t *testing.T) {
	stage := NewModelStage(&stubCompleter{
		err: errors.New("connection refused"),
	}, logger.NewTestLogger(t))

	result := stage.Classify(context.Background(), "query", nil)
	assert.Equal(t, IntentGeneralQuery, result.Intent)
	assert.Equal(t, SourceDefault, result.Source)
}

func TestModelStagePromptIncludesRecentHistory(t *testing.T) {
	completer := &stubCompleter{response: `{"intent": "greeting", "confidence": 0.9}`}
	stage := NewModelStage(completer, logger.NewTestLogger(t))

	history := []models.Turn{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "second"},
		{Role: models.RoleUser, Content: "third"},
		{Role: models.RoleAssistant, Content: "fourth"},
	}
	stage.Classify(context.Background(), "hola", history)

	assert.Len(t, completer.prompts, 1)
	prompt := completer.prompts[0]
	// Only the trailing window is included.
	assert.NotContains(t, prompt, "first")
	assert.Contains(t, prompt, "second")
	assert.Contains(t, prompt, "fourth")
	assert.Contains(t, prompt, "hola")
}

func TestClassifierRulesFirstModelSecond(t *testing.T) {
	completer := &stubCompleter{response: `{"intent": "get_insights", "confidence": 0.75}`}
	classifier := NewClassifier(NewRuleStage(), NewModelStage(completer, logger.NewTestLogger(t)), logger.NewTestLogger(t))

	// A rule match never reaches the model.
	result := classifier.ClassifyIntent(context.Background(), "hola", nil)
	assert.Equal(t, IntentGreeting, result.Intent)
	assert.Equal(t, SourceRules, result.Source)
	assert.Empty(t, completer.prompts)

	// A rule miss falls through.
	result = classifier.ClassifyIntent(context.Background(), "tell me about my career path", nil)
	assert.Equal(t, IntentGetInsights, result.Intent)
	assert.Equal(t, SourceModel, result.Source)
	assert.Len(t, completer.prompts, 1)
}
