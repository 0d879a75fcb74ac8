package cache

import (
	"context"
	"testing"
	"time"

	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/zeus/intent"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*ResponseCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, logger.NewTestLogger(t)), mr
}

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("user-1", "  How ARE my   Stats  ", intent.QueryTypeAnalytics, intent.IntentGetStats)
	k2 := Key("user-1", "how are my stats", intent.QueryTypeAnalytics, intent.IntentGetStats)
	assert.Equal(t, k1, k2, "normalization must collapse case and whitespace")

	k3 := Key("user-2", "how are my stats", intent.QueryTypeAnalytics, intent.IntentGetStats)
	assert.NotEqual(t, k1, k3, "different users must not share keys")

	k4 := Key("user-1", "how are my stats", intent.QueryTypeAnalytics, intent.IntentGetComparison)
	assert.NotEqual(t, k1, k4, "different intents must not share keys")

	assert.Contains(t, k1, "zeus:cache:user-1:analytics:")
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "hola mundo", NormalizeQuery("  HOLA   Mundo  "))
	assert.Equal(t, "", NormalizeQuery("   "))
}

func TestClassifyTTL(t *testing.T) {
	cases := []struct {
		queryType intent.QueryType
		intent    intent.Intent
		class     TTLClass
		ttl       time.Duration
	}{
		{intent.QueryTypeEvents, intent.IntentGetSchedule, TTLShort, 15 * time.Minute},
		{intent.QueryTypeSocialMedia, intent.IntentGetTrends, TTLShort, 15 * time.Minute},
		{intent.QueryTypeRecommendations, intent.IntentGetRecommendations, TTLMedium, 6 * time.Hour},
		{intent.QueryTypeAnalytics, intent.IntentGetStats, TTLMedium, 6 * time.Hour},
		{intent.QueryTypeHelp, intent.IntentHelp, TTLLong, 24 * time.Hour},
		{intent.QueryTypeGeneral, intent.IntentGreeting, TTLLong, 24 * time.Hour},
		{intent.QueryTypeStreaming, intent.IntentGetPerformance, TTLDefault, 6 * time.Hour},
		{intent.QueryTypeReleases, intent.IntentPlanRelease, TTLDefault, 6 * time.Hour},
	}
	for _, tc := range cases {
		class, ttl := ClassifyTTL(tc.queryType, tc.intent)
		assert.Equal(t, tc.class, class, "%s/%s", tc.queryType, tc.intent)
		assert.Equal(t, tc.ttl, ttl, "%s/%s", tc.queryType, tc.intent)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	_, hit := c.GetCachedResponse(ctx, "user-1", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats)
	assert.False(t, hit, "empty cache must miss")

	err := c.CacheResponse(ctx, "user-1", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats,
		"You had 1200 streams.", map[string]interface{}{"totalStreams": 1200})
	require.NoError(t, err)

	entry, hit := c.GetCachedResponse(ctx, "user-1", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats)
	require.True(t, hit)
	assert.Equal(t, "You had 1200 streams.", entry.Response)
	assert.Equal(t, TTLMedium, entry.TTLClass)
	assert.Equal(t, intent.QueryTypeAnalytics, entry.QueryType)

	// A textual variant of the same query hits the same entry.
	_, hit = c.GetCachedResponse(ctx, "user-1", "  MY   Stats ", intent.QueryTypeAnalytics, intent.IntentGetStats)
	assert.True(t, hit)
}

func TestCacheExpiry(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	err := c.CacheResponse(ctx, "user-1", "próximos eventos", intent.QueryTypeEvents, intent.IntentGetSchedule, "Two shows coming up.", nil)
	require.NoError(t, err)

	_, hit := c.GetCachedResponse(ctx, "user-1", "próximos eventos", intent.QueryTypeEvents, intent.IntentGetSchedule)
	assert.True(t, hit)

	// Events carry the short 15 minute TTL.
	mr.FastForward(16 * time.Minute)
	_, hit = c.GetCachedResponse(ctx, "user-1", "próximos eventos", intent.QueryTypeEvents, intent.IntentGetSchedule)
	assert.False(t, hit, "entry must be gone after its TTL class elapses")
}

func TestCacheUpsertReplaces(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.CacheResponse(ctx, "user-1", "help", intent.QueryTypeHelp, intent.IntentHelp, "first", nil))
	require.NoError(t, c.CacheResponse(ctx, "user-1", "help", intent.QueryTypeHelp, intent.IntentHelp, "second", nil))

	entry, hit := c.GetCachedResponse(ctx, "user-1", "help", intent.QueryTypeHelp, intent.IntentHelp)
	require.True(t, hit)
	assert.Equal(t, "second", entry.Response)
}

func TestCacheUnparseableEntryIsMiss(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	key := Key("user-1", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats)
	require.NoError(t, mr.Set(key, "not json"))

	_, hit := c.GetCachedResponse(ctx, "user-1", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats)
	assert.False(t, hit)
}

func TestCacheStoreErrorIsMiss(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	mr.Close()
	_, hit := c.GetCachedResponse(ctx, "user-1", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats)
	assert.False(t, hit, "store failure must read as a miss, never an error")
}

func TestInvalidateCache(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.CacheResponse(ctx, "user-1", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats, "a", nil))
	require.NoError(t, c.CacheResponse(ctx, "user-1", "compare platforms", intent.QueryTypeAnalytics, intent.IntentGetComparison, "b", nil))
	require.NoError(t, c.CacheResponse(ctx, "user-1", "próximos eventos", intent.QueryTypeEvents, intent.IntentGetSchedule, "c", nil))
	require.NoError(t, c.CacheResponse(ctx, "user-2", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats, "d", nil))

	deleted, err := c.InvalidateCache(ctx, "user-1", intent.QueryTypeAnalytics)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, hit := c.GetCachedResponse(ctx, "user-1", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats)
	assert.False(t, hit)

	// Other query types and other users are untouched.
	_, hit = c.GetCachedResponse(ctx, "user-1", "próximos eventos", intent.QueryTypeEvents, intent.IntentGetSchedule)
	assert.True(t, hit)
	_, hit = c.GetCachedResponse(ctx, "user-2", "my stats", intent.QueryTypeAnalytics, intent.IntentGetStats)
	assert.True(t, hit)
}
