// Package orchestrator drives the full query pipeline: parallel rule
// classification and cache lookup, full classification and snapshot fetch,
// context building, generation, and best-effort cache and memory writes.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"zeus-pipeline/internal/common/config"
	stderrors "zeus-pipeline/internal/common/errors"
	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/common/metrics"
	"zeus-pipeline/internal/models"
	"zeus-pipeline/internal/zeus/analysis"
	"zeus-pipeline/internal/zeus/cache"
	"zeus-pipeline/internal/zeus/contextualizer"
	"zeus-pipeline/internal/zeus/generate"
	"zeus-pipeline/internal/zeus/intent"
	"zeus-pipeline/internal/zeus/memory"

	"github.com/google/uuid"
)

// fallbackResponse is the only user-visible error surface of the pipeline,
// returned when generation exhausts its full retry budget.
const fallbackResponse = "I'm sorry, I couldn't put together an answer right now. Please try again in a moment."

// Orchestrator wires the pipeline stages together. HandleQuery never
// returns an error: every internal failure resolves to a cached response,
// a degraded context, or the fixed fallback message.
type Orchestrator struct {
	classifier *intent.Classifier
	cache      *cache.ResponseCache
	memory     *memory.Store
	provider   analysis.Provider
	generator  generate.Generator
	zeusCfg    config.ZeusConfig
	logger     logger.Logger
}

func New(
	classifier *intent.Classifier,
	responseCache *cache.ResponseCache,
	memoryStore *memory.Store,
	provider analysis.Provider,
	generator generate.Generator,
	zeusCfg config.ZeusConfig,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		cache:      responseCache,
		memory:     memoryStore,
		provider:   provider,
		generator:  generator,
		zeusCfg:    zeusCfg,
		logger: log.With(map[string]interface{}{
			"component": "orchestrator",
		}),
	}
}

// HandleQuery runs one query through the pipeline.
//
// Phase A runs rule classification and the cache lookup concurrently; the
// lookup derives its own key from the same pure rule pass, so neither
// goroutine waits on the other. A hit short-circuits everything downstream.
// On a miss, phase B runs full classification and the snapshot fetch
// concurrently, then builds the context, generates, and finishes with
// best-effort cache and memory writes.
func (o *Orchestrator) HandleQuery(ctx context.Context, req *models.QueryRequest) *models.QueryResponse {
	start := time.Now()
	requestID := uuid.NewString()
	timings := make(map[string]int64)

	log := o.logger.With(map[string]interface{}{
		"requestId": requestID,
		"userId":    req.UserID,
		"sessionId": req.SessionID,
	})

	// Phase A: rule classification and cache lookup in parallel.
	var (
		ruleResult *intent.ClassificationResult
		ruleOK     bool
		cached     *cache.Entry
		cacheHit   bool
	)

	phaseA := time.Now()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ruleResult, ruleOK = o.classifier.Rules().Classify(req.Query)
	}()
	go func() {
		defer wg.Done()
		queryType, label := o.cacheIdentity(req.Query)
		lookupCtx, cancel := context.WithTimeout(ctx, o.zeusCfg.CacheTimeoutDuration())
		defer cancel()
		cached, cacheHit = o.cache.GetCachedResponse(lookupCtx, req.UserID, req.Query, queryType, label)
	}()
	wg.Wait()
	timings["lookup"] = time.Since(phaseA).Milliseconds()
	metrics.StageDuration.WithLabelValues("lookup").Observe(time.Since(phaseA).Seconds())

	if cacheHit {
		return o.respondFromCache(ctx, req, requestID, cached, timings, start, log)
	}

	// Phase B: full classification and snapshot fetch in parallel.
	var (
		classification *intent.ClassificationResult
		snapshot       *analysis.Snapshot
	)

	phaseB := time.Now()
	wg.Add(2)
	go func() {
		defer wg.Done()
		if ruleOK {
			classification = ruleResult
			return
		}
		classifyCtx, cancel := context.WithTimeout(ctx, o.zeusCfg.ClassifyTimeoutDuration())
		defer cancel()
		classification = o.classifier.ClassifyIntent(classifyCtx, req.Query, req.History)
	}()
	go func() {
		defer wg.Done()
		snapshot = o.fetchSnapshot(ctx, req.UserID, log)
	}()
	wg.Wait()
	timings["classify"] = time.Since(phaseB).Milliseconds()
	metrics.StageDuration.WithLabelValues("classify").Observe(time.Since(phaseB).Seconds())
	metrics.ClassifierResults.WithLabelValues(string(classification.Source)).Inc()

	// On a rule miss the phase-A lookup keyed on the detector identity,
	// while entries for this query live under the model's classification.
	// Re-check under the full key before paying for generation.
	if classification.Source != intent.SourceRules {
		lookupCtx, lookupCancel := context.WithTimeout(ctx, o.zeusCfg.CacheTimeoutDuration())
		cached, cacheHit = o.cache.GetCachedResponse(lookupCtx, req.UserID, req.Query, classification.QueryType, classification.Intent)
		lookupCancel()
		if cacheHit {
			return o.respondFromCache(ctx, req, requestID, cached, timings, start, log)
		}
	}

	summary := o.memorySummary(ctx, req.UserID, req.SessionID, log)

	contextStart := time.Now()
	queryCtx := contextualizer.FromSnapshot(snapshot, req.Query, req.History, classification.QueryType, summary)
	timings["context"] = time.Since(contextStart).Milliseconds()

	generateStart := time.Now()
	generateCtx, cancel := context.WithTimeout(ctx, o.zeusCfg.GenerateTimeoutDuration())
	defer cancel()
	response, err := o.generator.Generate(generateCtx, queryCtx.ContextualizedPrompt, o.zeusCfg.MaxTokens, o.zeusCfg.Temperature)
	timings["generate"] = time.Since(generateStart).Milliseconds()
	metrics.StageDuration.WithLabelValues("generate").Observe(time.Since(generateStart).Seconds())

	if err != nil {
		log.Error("generation exhausted, returning fallback", map[string]interface{}{
			"error":     err.Error(),
			"queryType": queryCtx.QueryType,
		})
		metrics.PipelineErrors.WithLabelValues(stderrors.GetErrorCategory(errorCode(err, stderrors.ErrCodeGenerationFailed))).Inc()
		// The failed answer is never cached.
		timings["total"] = time.Since(start).Milliseconds()
		metrics.QueriesHandled.WithLabelValues(string(models.SourceError)).Inc()
		return &models.QueryResponse{
			RequestID: requestID,
			Response:  fallbackResponse,
			QueryType: string(queryCtx.QueryType),
			Intent:    string(classification.Intent),
			Source:    models.SourceError,
			Timings:   timings,
		}
	}

	o.storeResponse(ctx, req, classification, queryCtx, response, log)
	o.recordTurn(ctx, req, classification.Intent, queryCtx.QueryType, response, queryCtx.ContextualData, log)

	timings["total"] = time.Since(start).Milliseconds()
	metrics.QueriesHandled.WithLabelValues(string(models.SourceGenerated)).Inc()

	log.Info("query handled", map[string]interface{}{
		"queryType": queryCtx.QueryType,
		"intent":    classification.Intent,
		"totalMs":   timings["total"],
	})

	return &models.QueryResponse{
		RequestID: requestID,
		Response:  response,
		QueryType: string(queryCtx.QueryType),
		Intent:    string(classification.Intent),
		Source:    models.SourceGenerated,
		Timings:   timings,
	}
}

// respondFromCache finishes a query from a cached entry, still appending
// the turn to conversation memory.
func (o *Orchestrator) respondFromCache(ctx context.Context, req *models.QueryRequest, requestID string, cached *cache.Entry, timings map[string]int64, start time.Time, log logger.Logger) *models.QueryResponse {
	log.Info("cache hit, skipping generation", map[string]interface{}{
		"queryType": cached.QueryType,
	})
	o.recordTurn(ctx, req, cached.Intent, cached.QueryType, cached.Response, cached.ContextData, log)
	timings["total"] = time.Since(start).Milliseconds()
	metrics.QueriesHandled.WithLabelValues(string(models.SourceCache)).Inc()
	return &models.QueryResponse{
		RequestID: requestID,
		Response:  cached.Response,
		QueryType: string(cached.QueryType),
		Intent:    string(cached.Intent),
		Source:    models.SourceCache,
		Timings:   timings,
	}
}

// errorCode extracts the structured code from an error, falling back when
// the error did not originate in this pipeline.
func errorCode(err error, fallback stderrors.ErrorCode) stderrors.ErrorCode {
	var stdErr *stderrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return fallback
}

// InvalidateCache exposes bulk cache removal to the HTTP surface.
func (o *Orchestrator) InvalidateCache(ctx context.Context, userID string, queryType intent.QueryType) (int, error) {
	invalidateCtx, cancel := context.WithTimeout(ctx, o.zeusCfg.CacheTimeoutDuration())
	defer cancel()
	return o.cache.InvalidateCache(invalidateCtx, userID, queryType)
}

// cacheIdentity derives the (queryType, intent) pair for the cache key
// without waiting on the full classifier. The rule pass is pure and cheap,
// so re-running it here keeps the two phase-A goroutines independent.
func (o *Orchestrator) cacheIdentity(query string) (intent.QueryType, intent.Intent) {
	if result, ok := o.classifier.Rules().Classify(query); ok {
		return result.QueryType, result.Intent
	}
	return contextualizer.DetectQueryType(query), intent.IntentGeneralQuery
}

// snapshotBackoff is the linear backoff unit between snapshot attempts.
const snapshotBackoff = 500 * time.Millisecond

// fetchSnapshot retries the provider within the stage's retry budget with
// linear backoff between attempts. Total failure returns nil; the
// contextualizer treats that as the degraded path.
func (o *Orchestrator) fetchSnapshot(ctx context.Context, userID string, log logger.Logger) *analysis.Snapshot {
	attempts := stderrors.GetRetryCount(stderrors.ErrCodeSnapshotFetchFailed) + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(attempt-1) * snapshotBackoff):
			}
		}

		fetchCtx, cancel := context.WithTimeout(ctx, o.zeusCfg.SnapshotTimeoutDuration())
		snapshot, err := o.provider.FetchArtistAnalysis(fetchCtx, userID)
		cancel()
		if err == nil {
			return snapshot
		}

		log.Warn("snapshot fetch attempt failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		if ctx.Err() != nil {
			break
		}
	}

	metrics.PipelineErrors.WithLabelValues(stderrors.GetErrorCategory(stderrors.ErrCodeSnapshotFetchFailed)).Inc()
	return nil
}

// memorySummary loads the session record and renders the prompt splice.
// Any failure yields an empty summary, never a failed query.
func (o *Orchestrator) memorySummary(ctx context.Context, userID, sessionID string, log logger.Logger) string {
	memCtx, cancel := context.WithTimeout(ctx, o.zeusCfg.CacheTimeoutDuration())
	defer cancel()

	mem, err := o.memory.GetMemory(memCtx, userID, sessionID)
	if err != nil {
		log.Warn("memory lookup failed, proceeding without summary", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	return memory.GenerateMemorySummary(mem).Render()
}

// storeResponse writes the generated answer to the cache. Failures are
// logged and swallowed.
func (o *Orchestrator) storeResponse(ctx context.Context, req *models.QueryRequest, classification *intent.ClassificationResult, queryCtx *contextualizer.QueryContext, response string, log logger.Logger) {
	writeCtx, cancel := context.WithTimeout(ctx, o.zeusCfg.CacheTimeoutDuration())
	defer cancel()

	err := o.cache.CacheResponse(writeCtx, req.UserID, req.Query, queryCtx.QueryType, classification.Intent, response, queryCtx.ContextualData)
	if err != nil {
		metrics.PipelineErrors.WithLabelValues(stderrors.GetErrorCategory(stderrors.ErrCodeCacheOperationFailed)).Inc()
		log.Warn("cache write failed", map[string]interface{}{
			"error": stderrors.NewCacheOperationFailedError("set", err).Error(),
		})
	}
}

// recordTurn appends the user and assistant turns to conversation memory.
// Failures are logged and swallowed.
func (o *Orchestrator) recordTurn(ctx context.Context, req *models.QueryRequest, label intent.Intent, queryType intent.QueryType, response string, contextData map[string]interface{}, log logger.Logger) {
	memCtx, cancel := context.WithTimeout(ctx, o.zeusCfg.CacheTimeoutDuration())
	defer cancel()

	entities := intent.ExtractEntities(req.Query, label)
	if err := o.memory.AddUserMessage(memCtx, req.UserID, req.SessionID, req.Query, entities, queryType); err != nil {
		log.Warn("memory append failed for user turn", map[string]interface{}{
			"error": stderrors.NewMemoryOperationFailedError("add_user_message", err).Error(),
		})
		return
	}
	if err := o.memory.AddZeusResponse(memCtx, req.UserID, req.SessionID, response, contextData); err != nil {
		log.Warn("memory append failed for assistant turn", map[string]interface{}{
			"error": stderrors.NewMemoryOperationFailedError("add_zeus_response", err).Error(),
		})
	}
}
