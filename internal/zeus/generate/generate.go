// Package generate wraps the text generation backends behind a single
// interface with retry and timeout handling.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"zeus-pipeline/internal/common/config"
	stderrors "zeus-pipeline/internal/common/errors"
	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/common/metrics"
)

// Generator produces a text completion for a prompt. Implementations own
// their transport retries; callers own the stage deadline via ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// HTTPGenerator calls the internal generation endpoint over HTTP. Transport
// failures and timeouts are retried with linear backoff up to the retry
// budget; a response that arrives but fails to parse is never retried.
type HTTPGenerator struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client
	logger     logger.Logger
}

func NewHTTPGenerator(cfg *config.Config, log logger.Logger) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL:    cfg.APIs.GenAI.BaseURL,
		apiKey:     cfg.APIs.GenAI.APIKey,
		maxRetries: cfg.Zeus.MaxRetries,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.APIs.GenAI.Timeout) * time.Millisecond,
		},
		logger: log.With(map[string]interface{}{
			"component": "http-generator",
		}),
	}
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	var lastErr error
	attempts := g.maxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metrics.GenerationRetries.Inc()
			backoff := time.Duration(attempt-1) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return "", g.exhausted(attempt-1, ctxError(ctx))
			case <-time.After(backoff):
			}
		}

		text, err := g.doRequest(ctx, payload)
		if err == nil {
			return text, nil
		}

		var stdErr *stderrors.StandardError
		if errors.As(err, &stdErr) && !stderrors.IsRetryableErrorCode(stdErr.Code) {
			return "", err
		}
		lastErr = err

		g.logger.Warn("generation attempt failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})

		if ctx.Err() != nil {
			return "", g.exhausted(attempt, ctxError(ctx))
		}
	}

	return "", g.exhausted(attempts, lastErr)
}

func (g *HTTPGenerator) exhausted(attempts int, lastErr error) *stderrors.StandardError {
	return stderrors.NewGenerationExhaustedError(attempts, lastErr)
}

func (g *HTTPGenerator) doRequest(ctx context.Context, payload []byte) (string, error) {
	url := g.baseURL + "/api/ai/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", stderrors.NewGenerationFailedError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", stderrors.NewGenerationTimeoutError()
		}
		return "", stderrors.NewGenerationFailedError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", stderrors.NewGenerationFailedError(err)
	}

	if resp.StatusCode >= 500 {
		return "", stderrors.NewGenerationFailedError(
			fmt.Errorf("generation endpoint returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", stderrors.NewMalformedResponseError("genai",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", stderrors.NewMalformedResponseError("genai", err.Error())
	}
	if parsed.Text == "" {
		return "", stderrors.NewMalformedResponseError("genai", "empty text field")
	}

	return parsed.Text, nil
}

func ctxError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return stderrors.NewGenerationTimeoutError()
	}
	return ctx.Err()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
