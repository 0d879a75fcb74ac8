// internal/zeus/analysis/provider.go
package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	stderrors "zeus-pipeline/internal/common/errors"
	"zeus-pipeline/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Provider fetches the artist analysis snapshot for a user. Any error means
// "snapshot unavailable"; the pipeline degrades to a generic prompt.
type Provider interface {
	FetchArtistAnalysis(ctx context.Context, userID string) (*Snapshot, error)
}

// StoreProvider assembles a snapshot from PostgreSQL (artist profile,
// events, releases) and Elasticsearch (social and streaming metric
// documents). The two stores are queried concurrently.
type StoreProvider struct {
	db       *sql.DB
	esClient *elasticsearch.Client
	logger   logger.Logger
}

func NewStoreProvider(db *sql.DB, esClient *elasticsearch.Client, log logger.Logger) *StoreProvider {
	return &StoreProvider{
		db:       db,
		esClient: esClient,
		logger: log.With(map[string]interface{}{
			"component": "analysis-provider",
		}),
	}
}

func (p *StoreProvider) FetchArtistAnalysis(ctx context.Context, userID string) (*Snapshot, error) {
	snapshot := &Snapshot{
		UserID:      userID,
		GeneratedAt: time.Now().UTC(),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	errChan := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		name, events, releases, err := p.queryPostgres(ctx, userID)
		if err != nil {
			errChan <- fmt.Errorf("postgres: %w", err)
			return
		}
		mu.Lock()
		snapshot.ArtistName = name
		snapshot.Events = events
		snapshot.Releases = releases
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		social, streaming, err := p.queryElasticsearch(ctx, userID)
		if err != nil {
			errChan <- fmt.Errorf("elasticsearch: %w", err)
			return
		}
		mu.Lock()
		snapshot.Social = social
		snapshot.Streaming = streaming
		mu.Unlock()
	}()

	go func() {
		wg.Wait()
		close(errChan)
	}()

	for err := range errChan {
		return nil, err
	}

	snapshot.TotalEvents = snapshot.Events.PastCount + snapshot.Events.UpcomingCount
	snapshot.TotalReleases = len(snapshot.Releases.Recent)
	for _, platform := range snapshot.Streaming.Platforms {
		snapshot.TotalStreams += platform.Streams
	}

	p.logger.Debug("snapshot assembled", map[string]interface{}{
		"userId":        userID,
		"totalEvents":   snapshot.TotalEvents,
		"totalReleases": snapshot.TotalReleases,
	})

	return snapshot, nil
}

func (p *StoreProvider) queryPostgres(ctx context.Context, userID string) (string, EventStats, ReleaseStats, error) {
	var events EventStats
	var releases ReleaseStats

	var artistName string
	err := p.db.QueryRowContext(ctx,
		`SELECT artist_name FROM artists WHERE user_id = $1`, userID,
	).Scan(&artistName)
	if err != nil {
		return "", events, releases, err
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT name, venue, city, event_date FROM events
		 WHERE user_id = $1 ORDER BY event_date ASC`, userID)
	if err != nil {
		return "", events, releases, err
	}
	defer rows.Close()

	now := time.Now().UTC()
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Name, &e.Venue, &e.City, &e.Date); err != nil {
			return "", events, releases, err
		}
		if e.Date.Before(now) {
			events.PastCount++
		} else {
			events.UpcomingCount++
			if events.NextEvent == nil {
				next := e
				events.NextEvent = &next
			}
		}
	}
	if err := rows.Err(); err != nil {
		return "", events, releases, err
	}

	relRows, err := p.db.QueryContext(ctx,
		`SELECT title, release_type, released_at, streams FROM releases
		 WHERE user_id = $1 ORDER BY released_at DESC LIMIT 10`, userID)
	if err != nil {
		return "", events, releases, err
	}
	defer relRows.Close()

	for relRows.Next() {
		var r Release
		if err := relRows.Scan(&r.Title, &r.Type, &r.ReleasedAt, &r.Streams); err != nil {
			return "", events, releases, err
		}
		releases.Recent = append(releases.Recent, r)
	}
	if err := relRows.Err(); err != nil {
		return "", events, releases, err
	}

	if len(releases.Recent) > 0 {
		releases.DaysSinceLastRelease = int(now.Sub(releases.Recent[0].ReleasedAt).Hours() / 24)
		if len(releases.Recent) > 1 {
			oldest := releases.Recent[len(releases.Recent)-1].ReleasedAt
			span := releases.Recent[0].ReleasedAt.Sub(oldest).Hours() / 24
			releases.CadenceDays = span / float64(len(releases.Recent)-1)
		}
	}

	return artistName, events, releases, nil
}

func (p *StoreProvider) queryElasticsearch(ctx context.Context, userID string) (SocialStats, StreamingStats, error) {
	social := SocialStats{Networks: make(map[string]NetworkStats)}
	streaming := StreamingStats{
		Platforms:    make(map[string]PlatformStats),
		Distribution: make(map[string]float64),
	}

	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{"user_id": userID},
					},
				},
			},
		},
		"size": 50,
		"sort": []interface{}{
			map[string]interface{}{"captured_at": map[string]interface{}{"order": "desc"}},
		},
	}

	body, _ := json.Marshal(queryBody)
	req := esapi.SearchRequest{
		Index: []string{"artist-metrics"},
		Body:  strings.NewReader(string(body)),
	}

	res, err := req.Do(ctx, p.esClient)
	if err != nil {
		return social, streaming, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return social, streaming, fmt.Errorf("search failed: %s", res.String())
	}

	var r map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return social, streaming, err
	}

	// A 200 with an unexpected body shape is a malformed response, not a
	// reason to crash the fetch goroutine.
	hitsWrapper, ok := r["hits"].(map[string]interface{})
	if !ok {
		return social, streaming, stderrors.NewMalformedResponseError(
			"elasticsearch", "search response missing hits object")
	}
	hits, ok := hitsWrapper["hits"].([]interface{})
	if !ok {
		return social, streaming, stderrors.NewMalformedResponseError(
			"elasticsearch", "search response missing hits array")
	}

	for _, hit := range hits {
		h, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := h["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		switch source["metric_type"] {
		case "social":
			network, _ := source["network"].(string)
			if network == "" {
				continue
			}
			if _, seen := social.Networks[network]; seen {
				continue // newest document per network wins, results are sorted desc
			}
			stats := NetworkStats{
				Followers:      asInt64(source["followers"]),
				EngagementRate: asFloat64(source["engagement_rate"]),
				PostsLastMonth: int(asInt64(source["posts_last_month"])),
			}
			social.Networks[network] = stats
			social.TotalFollowers += stats.Followers

		case "streaming":
			platform, _ := source["platform"].(string)
			if platform == "" {
				continue
			}
			if _, seen := streaming.Platforms[platform]; seen {
				continue
			}
			streaming.Platforms[platform] = PlatformStats{
				Streams:   asInt64(source["streams"]),
				Listeners: asInt64(source["listeners"]),
				Revenue:   asFloat64(source["revenue"]),
			}
			streaming.MonthlyListeners += asInt64(source["listeners"])
		}
	}

	finalizeSocial(&social)
	finalizeStreaming(&streaming)

	return social, streaming, nil
}

func finalizeSocial(social *SocialStats) {
	if len(social.Networks) == 0 {
		return
	}
	var topFollowers int64 = -1
	var totalEngagement float64
	names := make([]string, 0, len(social.Networks))
	for name := range social.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := social.Networks[name]
		totalEngagement += stats.EngagementRate
		if stats.Followers > topFollowers {
			topFollowers = stats.Followers
			social.TopNetwork = name
		}
	}
	social.EngagementRate = totalEngagement / float64(len(social.Networks))
}

func finalizeStreaming(streaming *StreamingStats) {
	var totalStreams int64
	var totalRevenue float64
	for _, stats := range streaming.Platforms {
		totalStreams += stats.Streams
		totalRevenue += stats.Revenue
	}
	if totalStreams == 0 {
		return
	}

	var topStreams int64 = -1
	names := make([]string, 0, len(streaming.Platforms))
	for name := range streaming.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := streaming.Platforms[name]
		streaming.Distribution[name] = float64(stats.Streams) / float64(totalStreams)
		if stats.Streams > topStreams {
			topStreams = stats.Streams
			streaming.DominantPlatform = name
		}
	}
	streaming.RevenuePerStream = totalRevenue / float64(totalStreams)
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func asFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}
