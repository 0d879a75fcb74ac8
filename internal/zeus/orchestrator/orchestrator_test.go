package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"zeus-pipeline/internal/common/config"
	stderrors "zeus-pipeline/internal/common/errors"
	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/models"
	"zeus-pipeline/internal/zeus/analysis"
	"zeus-pipeline/internal/zeus/cache"
	"zeus-pipeline/internal/zeus/generate"
	"zeus-pipeline/internal/zeus/intent"
	"zeus-pipeline/internal/zeus/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	response string
	err      error
	calls    int32
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.response, s.err
}

func (s *stubGenerator) callCount() int32 {
	return atomic.LoadInt32(&s.calls)
}

// scriptedGenerator returns queued responses in call order, repeating the
// last one once the script runs out.
type scriptedGenerator struct {
	responses []string
	calls     int32
}

func (s *scriptedGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	n := int(atomic.AddInt32(&s.calls, 1)) - 1
	if n >= len(s.responses) {
		n = len(s.responses) - 1
	}
	return s.responses[n], nil
}

func (s *scriptedGenerator) callCount() int32 {
	return atomic.LoadInt32(&s.calls)
}

type stubProvider struct {
	snapshot *analysis.Snapshot
	err      error
	calls    int32
}

func (s *stubProvider) FetchArtistAnalysis(ctx context.Context, userID string) (*analysis.Snapshot, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.snapshot, s.err
}

func testZeusConfig() config.ZeusConfig {
	return config.ZeusConfig{
		ClassifyTimeout: 5000,
		SnapshotTimeout: 200,
		GenerateTimeout: 5000,
		CacheTimeout:    2000,
		MaxRetries:      2,
		MaxTokens:       256,
		Temperature:     0.7,
	}
}

func setupOrchestrator(t *testing.T, gen generate.Generator, provider *stubProvider) (*Orchestrator, *memory.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logger.NewTestLogger(t)

	rules := intent.NewRuleStage()
	model := intent.NewModelStage(gen, log)
	classifier := intent.NewClassifier(rules, model, log)

	responseCache := cache.New(client, log)
	memoryStore := memory.NewStore(client, log)

	orch := New(classifier, responseCache, memoryStore, provider, gen, testZeusConfig(), log)
	return orch, memoryStore
}

func testSnapshot() *analysis.Snapshot {
	return &analysis.Snapshot{
		UserID:      "user-1",
		ArtistName:  "Luna Río",
		TotalEvents: 5,
		GeneratedAt: time.Now().UTC(),
		Events: analysis.EventStats{
			UpcomingCount: 2,
			NextEvent:     &analysis.Event{Name: "Sala Apolo", City: "Barcelona"},
		},
	}
}

func TestHandleQueryGeneratesThenServesFromCache(t *testing.T) {
	gen := &stubGenerator{response: "You have two upcoming shows."}
	provider := &stubProvider{snapshot: testSnapshot()}
	orch, _ := setupOrchestrator(t, gen, provider)

	req := &models.QueryRequest{
		UserID:    "user-1",
		SessionID: "session-a",
		Query:     "¿Cuáles son mis próximos eventos?",
	}

	first := orch.HandleQuery(context.Background(), req)
	assert.Equal(t, models.SourceGenerated, first.Source)
	assert.Equal(t, "You have two upcoming shows.", first.Response)
	assert.Equal(t, string(intent.QueryTypeEvents), first.QueryType)
	assert.Equal(t, string(intent.IntentGetSchedule), first.Intent)
	assert.NotEmpty(t, first.RequestID)
	assert.Contains(t, first.Timings, "total")
	assert.Equal(t, int32(1), gen.callCount())

	// The identical query is answered from the cache without generating.
	second := orch.HandleQuery(context.Background(), req)
	assert.Equal(t, models.SourceCache, second.Source)
	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, first.QueryType, second.QueryType)
	assert.Equal(t, int32(1), gen.callCount(), "cache hit must not generate")
	assert.NotEqual(t, first.RequestID, second.RequestID)
}

func TestHandleQueryRecordsConversationMemory(t *testing.T) {
	gen := &stubGenerator{response: "Here is your answer."}
	provider := &stubProvider{snapshot: testSnapshot()}
	orch, memoryStore := setupOrchestrator(t, gen, provider)

	req := &models.QueryRequest{
		UserID:    "user-1",
		SessionID: "session-a",
		Query:     "¿Cuáles son mis próximos eventos?",
	}
	orch.HandleQuery(context.Background(), req)

	mem, err := memoryStore.GetMemory(context.Background(), "user-1", "session-a")
	require.NoError(t, err)
	require.Len(t, mem.Messages, 2)
	assert.Equal(t, models.RoleUser, mem.Messages[0].Role)
	assert.Equal(t, req.Query, mem.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, mem.Messages[1].Role)
	assert.Equal(t, "Here is your answer.", mem.Messages[1].Content)
	assert.Equal(t, intent.QueryTypeEvents, mem.Context.LastQueryType)
}

func TestHandleQueryGenerationExhaustedReturnsFallback(t *testing.T) {
	gen := &stubGenerator{err: stderrors.NewGenerationExhaustedError(3, errors.New("upstream down"))}
	provider := &stubProvider{snapshot: testSnapshot()}
	orch, _ := setupOrchestrator(t, gen, provider)

	req := &models.QueryRequest{
		UserID:    "user-1",
		SessionID: "session-a",
		Query:     "¿Cuáles son mis próximos eventos?",
	}

	resp := orch.HandleQuery(context.Background(), req)
	assert.Equal(t, models.SourceError, resp.Source)
	assert.Equal(t, fallbackResponse, resp.Response)

	// The failure is never cached: the next identical query generates again.
	callsAfterFirst := gen.callCount()
	resp = orch.HandleQuery(context.Background(), req)
	assert.Equal(t, models.SourceError, resp.Source)
	assert.Greater(t, gen.callCount(), callsAfterFirst, "failed answers must not be served from cache")
}

func TestHandleQueryDegradesWhenSnapshotUnavailable(t *testing.T) {
	gen := &stubGenerator{response: "General guidance."}
	provider := &stubProvider{err: errors.New("stores down")}
	orch, _ := setupOrchestrator(t, gen, provider)

	req := &models.QueryRequest{
		UserID:    "user-1",
		SessionID: "session-a",
		Query:     "¿Cuáles son mis próximos eventos?",
	}

	resp := orch.HandleQuery(context.Background(), req)
	assert.Equal(t, models.SourceGenerated, resp.Source)
	assert.Equal(t, "General guidance.", resp.Response)
	assert.Equal(t, string(intent.QueryTypeGeneral), resp.QueryType, "degraded context folds to the general type")

	// The snapshot stage retried within its budget before degrading.
	assert.Equal(t, int32(3), atomic.LoadInt32(&provider.calls))
}

func TestHandleQueryRuleMissFallsBackToModel(t *testing.T) {
	// The stub returns prose that fails classification parsing, so the
	// pipeline lands on the default classification, then uses the same
	// stub's output as the generated answer.
	gen := &stubGenerator{response: "Plain prose answer."}
	provider := &stubProvider{snapshot: testSnapshot()}
	orch, _ := setupOrchestrator(t, gen, provider)

	req := &models.QueryRequest{
		UserID:    "user-1",
		SessionID: "session-a",
		Query:     "tell me about the industry",
	}

	resp := orch.HandleQuery(context.Background(), req)
	assert.Equal(t, models.SourceGenerated, resp.Source)
	assert.Equal(t, string(intent.IntentGeneralQuery), resp.Intent)
	assert.Equal(t, string(intent.QueryTypeGeneral), resp.QueryType)
	// One call for classification, one for generation.
	assert.Equal(t, int32(2), gen.callCount())
}

func TestHandleQueryModelClassifiedServedFromCache(t *testing.T) {
	// A rule-miss query is classified by the model; the repeat of the
	// identical query must hit the entry written under that classification
	// instead of generating again.
	gen := &scriptedGenerator{responses: []string{
		`{"intent": "plan_release", "confidence": 0.8}`,
		"Wait six weeks, then release the single.",
		`{"intent": "plan_release", "confidence": 0.8}`,
	}}
	provider := &stubProvider{snapshot: testSnapshot()}
	orch, _ := setupOrchestrator(t, gen, provider)

	req := &models.QueryRequest{
		UserID:    "user-1",
		SessionID: "session-a",
		Query:     "thinking about timing for the new track",
	}

	first := orch.HandleQuery(context.Background(), req)
	assert.Equal(t, models.SourceGenerated, first.Source)
	assert.Equal(t, string(intent.IntentPlanRelease), first.Intent)
	assert.Equal(t, string(intent.QueryTypeReleases), first.QueryType)
	assert.Equal(t, int32(2), gen.callCount(), "one classification call plus one generation call")

	second := orch.HandleQuery(context.Background(), req)
	assert.Equal(t, models.SourceCache, second.Source)
	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, first.QueryType, second.QueryType)
	assert.Equal(t, int32(3), gen.callCount(), "the repeat classifies but never generates")
}

func TestFetchSnapshotBacksOffBetweenAttempts(t *testing.T) {
	gen := &stubGenerator{response: "Answer."}
	provider := &stubProvider{err: errors.New("stores down")}
	orch, _ := setupOrchestrator(t, gen, provider)

	start := time.Now()
	snapshot := orch.fetchSnapshot(context.Background(), "user-1", logger.NewTestLogger(t))
	elapsed := time.Since(start)

	assert.Nil(t, snapshot)
	assert.Equal(t, int32(3), atomic.LoadInt32(&provider.calls))
	// Linear backoff: one unit before the second attempt, two before the
	// third.
	assert.GreaterOrEqual(t, elapsed, 3*snapshotBackoff/2)
}

func TestFetchSnapshotStopsOnCancelledContext(t *testing.T) {
	gen := &stubGenerator{response: "Answer."}
	provider := &stubProvider{err: errors.New("stores down")}
	orch, _ := setupOrchestrator(t, gen, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snapshot := orch.fetchSnapshot(ctx, "user-1", logger.NewTestLogger(t))
	assert.Nil(t, snapshot)
	assert.LessOrEqual(t, atomic.LoadInt32(&provider.calls), int32(1), "no retries once the request context is gone")
}

func TestInvalidateCache(t *testing.T) {
	gen := &stubGenerator{response: "Answer."}
	provider := &stubProvider{snapshot: testSnapshot()}
	orch, _ := setupOrchestrator(t, gen, provider)

	req := &models.QueryRequest{
		UserID:    "user-1",
		SessionID: "session-a",
		Query:     "¿Cuáles son mis próximos eventos?",
	}
	orch.HandleQuery(context.Background(), req)

	deleted, err := orch.InvalidateCache(context.Background(), "user-1", intent.QueryTypeEvents)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// After invalidation the query generates again.
	before := gen.callCount()
	resp := orch.HandleQuery(context.Background(), req)
	assert.Equal(t, models.SourceGenerated, resp.Source)
	assert.Greater(t, gen.callCount(), before)
}
