// internal/zeus/generate/gemini.go
package generate

import (
	"context"
	"fmt"

	"zeus-pipeline/internal/common/config"
	stderrors "zeus-pipeline/internal/common/errors"
	"zeus-pipeline/internal/common/logger"

	"google.golang.org/genai"
)

// GeminiGenerator talks to the Gemini API directly. Used when no internal
// generation endpoint is configured. The SDK handles its own transport
// retries, so this implementation performs a single attempt per call.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger logger.Logger
}

func NewGeminiGenerator(ctx context.Context, cfg *config.Config, log logger.Logger) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIs.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  cfg.APIs.Gemini.Model,
		logger: log.With(map[string]interface{}{
			"component": "gemini-generator",
		}),
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     genai.Ptr(float32(temperature)),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), genConfig)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", stderrors.NewGenerationTimeoutError()
		}
		return "", stderrors.NewGenerationFailedError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", stderrors.NewMalformedResponseError("gemini", "empty completion")
	}

	return text, nil
}
