// Package cache implements the content-addressed response cache with
// intent-dependent time-to-live classes, backed by Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/common/metrics"
	"zeus-pipeline/internal/zeus/intent"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "zeus:cache"

// TTLClass names the expiry policy bucket an entry belongs to.
type TTLClass string

const (
	TTLShort   TTLClass = "short"
	TTLMedium  TTLClass = "medium"
	TTLLong    TTLClass = "long"
	TTLDefault TTLClass = "default"
)

// ClassifyTTL is a pure function of (queryType, intent); TTL is never
// configurable per call. Classes are checked short, medium, long, default.
func ClassifyTTL(queryType intent.QueryType, i intent.Intent) (TTLClass, time.Duration) {
	label := string(i)

	if queryType == intent.QueryTypeEvents ||
		strings.Contains(label, "schedule") || strings.Contains(label, "trends") {
		return TTLShort, 15 * time.Minute
	}
	if queryType == intent.QueryTypeRecommendations || queryType == intent.QueryTypeAnalytics ||
		strings.Contains(label, "insights") {
		return TTLMedium, 6 * time.Hour
	}
	if queryType == intent.QueryTypeHelp || queryType == intent.QueryTypeGeneral ||
		strings.Contains(label, "help") {
		return TTLLong, 24 * time.Hour
	}
	return TTLDefault, 6 * time.Hour
}

// NormalizeQuery lowercases, trims, and collapses internal whitespace so
// trivial textual variation does not fragment the cache.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Key builds the deterministic cache key. The userID and queryType appear
// in plaintext so Invalidate can match them with a key-pattern scan.
func Key(userID, query string, queryType intent.QueryType, i intent.Intent) string {
	normalized := NormalizeQuery(query)
	sum := sha256.Sum256([]byte(userID + "|" + normalized + "|" + string(queryType) + "|" + string(i)))
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, userID, queryType, hex.EncodeToString(sum[:16]))
}

// Entry is a cached generated response. An entry is logically absent once
// its TTL elapses even if still physically present.
type Entry struct {
	Response    string                 `json:"response"`
	ContextData map[string]interface{} `json:"contextData,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	TTLClass    TTLClass               `json:"ttlClass"`
	QueryType   intent.QueryType       `json:"queryType"`
	Intent      intent.Intent          `json:"intent"`
}

// ResponseCache is the Redis-backed store. Redis expiry handles physical
// removal; reads additionally mask logically-expired entries so the
// contract holds against stores without native TTL.
type ResponseCache struct {
	rdb    *redis.Client
	logger logger.Logger
}

func New(rdb *redis.Client, log logger.Logger) *ResponseCache {
	return &ResponseCache{
		rdb: rdb,
		logger: log.With(map[string]interface{}{
			"component": "response-cache",
		}),
	}
}

// GetCachedResponse looks up a prior response. A missing entry, an expired
// entry, and a store error are all reported identically as a miss.
func (c *ResponseCache) GetCachedResponse(ctx context.Context, userID, query string, queryType intent.QueryType, i intent.Intent) (*Entry, bool) {
	key := Key(userID, query, queryType, i)

	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read failed, treating as miss", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		c.logger.Warn("cache entry unparseable, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	_, ttl := ClassifyTTL(entry.QueryType, entry.Intent)
	if time.Since(entry.CreatedAt) > ttl {
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &entry, true
}

// CacheResponse upserts unconditionally. The returned error exists for
// logging only: callers must never fail a query over it.
func (c *ResponseCache) CacheResponse(ctx context.Context, userID, query string, queryType intent.QueryType, i intent.Intent, response string, contextData map[string]interface{}) error {
	class, ttl := ClassifyTTL(queryType, i)
	entry := Entry{
		Response:    response,
		ContextData: contextData,
		CreatedAt:   time.Now().UTC(),
		TTLClass:    class,
		QueryType:   queryType,
		Intent:      i,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := Key(userID, query, queryType, i)
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return err
	}

	c.logger.Debug("response cached", map[string]interface{}{
		"key":      key,
		"ttlClass": class,
	})
	return nil
}

// InvalidateCache bulk-removes all entries for a user and query type. An
// external trigger decides when underlying artist data changed enough to
// warrant this.
func (c *ResponseCache) InvalidateCache(ctx context.Context, userID string, queryType intent.QueryType) (int, error) {
	pattern := fmt.Sprintf("%s:%s:%s:*", keyPrefix, userID, queryType)

	var deleted int
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}

	c.logger.Info("cache invalidated", map[string]interface{}{
		"userId":    userID,
		"queryType": queryType,
		"deleted":   deleted,
	})
	return deleted, nil
}
