// internal/zeus/intent/classifier.go
package intent

import (
	"context"

	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/models"
)

// Classifier composes the rule stage with the model fallback: try rules,
// else model. ClassifyIntent always returns a result and never signals an
// error to its caller; total failure of both stages degrades to the fixed
// default classification.
type Classifier struct {
	rules  *RuleStage
	model  *ModelStage
	logger logger.Logger
}

func NewClassifier(rules *RuleStage, model *ModelStage, log logger.Logger) *Classifier {
	return &Classifier{
		rules: rules,
		model: model,
		logger: log.With(map[string]interface{}{
			"component": "classifier",
		}),
	}
}

func (c *Classifier) ClassifyIntent(ctx context.Context, query string, history []models.Turn) *ClassificationResult {
	if result, ok := c.rules.Classify(query); ok {
		c.logger.Debug("rule classification matched", map[string]interface{}{
			"intent":    result.Intent,
			"queryType": result.QueryType,
		})
		return result
	}

	result := c.model.Classify(ctx, query, history)
	c.logger.Debug("model classification result", map[string]interface{}{
		"intent":     result.Intent,
		"confidence": result.Confidence,
		"source":     result.Source,
	})
	return result
}

// Rules exposes the rule-only stage for the orchestrator's cheap first-pass
// classification.
func (c *Classifier) Rules() *RuleStage {
	return c.rules
}
