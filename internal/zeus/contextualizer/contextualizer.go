// Package contextualizer maps a query type to the minimal relevant slice of
// the artist analysis snapshot and renders the grounding prompt sent to the
// generation endpoint.
package contextualizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/models"
	"zeus-pipeline/internal/zeus/analysis"
	"zeus-pipeline/internal/zeus/intent"
)

// ContextSlice is the bounded subset of the snapshot relevant to one query
// type, keyed by field name for prompt serialization.
type ContextSlice map[string]interface{}

// QueryContext bundles everything the generation stage needs.
type QueryContext struct {
	QueryType            intent.QueryType   `json:"queryType"`
	ContextualData       ContextSlice       `json:"contextualData,omitempty"`
	ContextualizedPrompt string             `json:"contextualizedPrompt"`
	ArtistAnalysis       *analysis.Snapshot `json:"artistAnalysis,omitempty"`
}

const systemPreamble = `You are Zeus, an assistant for independent music artists. Answer the artist's question using ONLY the provided data and conversation. Be concise, concrete, and professional. If the data is insufficient, say so clearly.`

// typeKeywords backs the standalone DetectQueryType for callers that bypass
// classification. It must agree with the classifier's Intent→QueryType
// table on unambiguous inputs, so the vocabularies mirror the rule engine.
var typeKeywords = []struct {
	queryType intent.QueryType
	keywords  []string
}{
	{intent.QueryTypeEvents, []string{
		"evento", "event", "concierto", "concert", "show", "gig",
		"schedule", "agenda", "calendario", "calendar", "gira", "tour",
	}},
	{intent.QueryTypeReleases, []string{
		"release", "lanzamiento", "álbum", "album", "single", "sencillo", "lanzar",
	}},
	{intent.QueryTypeSocialMedia, []string{
		"instagram", "tiktok", "twitter", "facebook", "social",
		"followers", "seguidores", "engagement", "promoci", "promot",
	}},
	{intent.QueryTypeStreaming, []string{
		"spotify", "stream", "listener", "oyentes", "reproducciones",
		"playlist", "apple music", "deezer",
	}},
	{intent.QueryTypeRecommendations, []string{
		"recommend", "recomienda", "recomendaci", "suggest", "sugerencia",
		"advice", "consejo", "should i", "debería", "oportunidad", "opportunit",
	}},
	{intent.QueryTypeAnalytics, []string{
		"stats", "estadísticas", "metrics", "métricas", "analytics",
		"análisis", "analysis", "numbers", "números", "compar", "insight",
	}},
	{intent.QueryTypeHelp, []string{
		"help", "ayuda", "qué puedes hacer", "what can you do",
	}},
}

// DetectQueryType keyword-matches a raw query against the QueryType
// taxonomy. The full pipeline derives the type from the classified intent
// instead; this standalone path exists for callers that skip classification.
func DetectQueryType(query string) intent.QueryType {
	normalized := strings.ToLower(query)
	for _, entry := range typeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(normalized, kw) {
				return entry.queryType
			}
		}
	}
	return intent.QueryTypeGeneral
}

// GetContextualData is a pure projection: for each query type a fixed list
// of fields is pulled from the snapshot. Four baseline identity fields are
// always present so the prompt never lacks basic context.
func GetContextualData(snapshot *analysis.Snapshot, queryType intent.QueryType) ContextSlice {
	if snapshot == nil {
		return nil
	}

	slice := ContextSlice{
		"artistName":    snapshot.ArtistName,
		"totalEvents":   snapshot.TotalEvents,
		"totalReleases": snapshot.TotalReleases,
		"totalStreams":  snapshot.TotalStreams,
	}

	switch queryType {
	case intent.QueryTypeEvents:
		slice["pastEventCount"] = snapshot.Events.PastCount
		slice["upcomingEventCount"] = snapshot.Events.UpcomingCount
		if snapshot.Events.NextEvent != nil {
			slice["nextEvent"] = snapshot.Events.NextEvent
		}
		if len(snapshot.Events.ScheduleGaps) > 0 {
			slice["scheduleGaps"] = snapshot.Events.ScheduleGaps
		}
		if len(snapshot.Events.Insights) > 0 {
			slice["eventInsights"] = snapshot.Events.Insights
		}

	case intent.QueryTypeReleases:
		slice["recentReleases"] = snapshot.Releases.Recent
		slice["daysSinceLastRelease"] = snapshot.Releases.DaysSinceLastRelease
		slice["releaseCadenceDays"] = snapshot.Releases.CadenceDays

	case intent.QueryTypeSocialMedia:
		slice["socialNetworks"] = snapshot.Social.Networks
		slice["totalFollowers"] = snapshot.Social.TotalFollowers
		slice["avgEngagementRate"] = snapshot.Social.EngagementRate
		slice["topNetwork"] = snapshot.Social.TopNetwork

	case intent.QueryTypeStreaming:
		slice["streamingPlatforms"] = snapshot.Streaming.Platforms
		slice["streamDistribution"] = snapshot.Streaming.Distribution
		slice["dominantPlatform"] = snapshot.Streaming.DominantPlatform
		slice["revenuePerStream"] = snapshot.Streaming.RevenuePerStream

	case intent.QueryTypeRecommendations:
		slice["upcomingEventCount"] = snapshot.Events.UpcomingCount
		slice["daysSinceLastRelease"] = snapshot.Releases.DaysSinceLastRelease
		slice["topNetwork"] = snapshot.Social.TopNetwork
		slice["dominantPlatform"] = snapshot.Streaming.DominantPlatform
		if len(snapshot.Events.ScheduleGaps) > 0 {
			slice["scheduleGaps"] = snapshot.Events.ScheduleGaps
		}

	case intent.QueryTypeAnalytics:
		slice["pastEventCount"] = snapshot.Events.PastCount
		slice["avgAttendance"] = snapshot.Events.AvgAttendance
		slice["totalFollowers"] = snapshot.Social.TotalFollowers
		slice["avgEngagementRate"] = snapshot.Social.EngagementRate
		slice["streamDistribution"] = snapshot.Streaming.Distribution
		slice["monthlyListeners"] = snapshot.Streaming.MonthlyListeners

	case intent.QueryTypeHelp, intent.QueryTypeGeneral:
		// baseline fields only
	}

	return slice
}

// BuildPrompt combines the fixed preamble, a serialized context slice, the
// rendered history with an optional memory summary, and the raw query.
// It never truncates the slice; size bounds are the orchestrator's concern.
func BuildPrompt(query string, history []models.Turn, slice ContextSlice, memorySummary string) string {
	var b strings.Builder

	b.WriteString(systemPreamble)
	b.WriteString("\n\n")

	if slice != nil {
		data, err := json.MarshalIndent(slice, "", "  ")
		if err == nil {
			b.WriteString("Artist data:\n")
			b.Write(data)
			b.WriteString("\n\n")
		}
	}

	b.WriteString("Conversation:\n")
	for _, turn := range history {
		b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
	}

	// The memory summary goes immediately before the final user turn,
	// never after it.
	if memorySummary != "" {
		b.WriteString(fmt.Sprintf("[session context: %s]\n", memorySummary))
	}
	b.WriteString(fmt.Sprintf("user: %s\n", query))

	b.WriteString("\nassistant:")
	return b.String()
}

// Contextualizer ties snapshot fetching, type detection, slice projection,
// and prompt rendering together.
type Contextualizer struct {
	provider analysis.Provider
	logger   logger.Logger
}

func New(provider analysis.Provider, log logger.Logger) *Contextualizer {
	return &Contextualizer{
		provider: provider,
		logger: log.With(map[string]interface{}{
			"component": "contextualizer",
		}),
	}
}

// FromSnapshot projects the slice and renders the prompt from an already
// fetched snapshot. A nil snapshot degrades to a generic prompt with
// queryType=general and nil contextual data; this is a defined fallback,
// not an error path.
func FromSnapshot(snapshot *analysis.Snapshot, query string, history []models.Turn, queryType intent.QueryType, memorySummary string) *QueryContext {
	if snapshot == nil {
		return &QueryContext{
			QueryType:            intent.QueryTypeGeneral,
			ContextualData:       nil,
			ContextualizedPrompt: BuildPrompt(query, history, nil, memorySummary),
		}
	}

	slice := GetContextualData(snapshot, queryType)
	return &QueryContext{
		QueryType:            queryType,
		ContextualData:       slice,
		ContextualizedPrompt: BuildPrompt(query, history, slice, memorySummary),
		ArtistAnalysis:       snapshot,
	}
}

// QueryContext fetches the snapshot, projects the slice for the given query
// type, and renders the prompt, degrading on snapshot failure.
func (c *Contextualizer) QueryContext(ctx context.Context, userID, query string, history []models.Turn, queryType intent.QueryType, memorySummary string) *QueryContext {
	snapshot, err := c.provider.FetchArtistAnalysis(ctx, userID)
	if err != nil {
		c.logger.Warn("snapshot unavailable, using degraded context", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		snapshot = nil
	}
	return FromSnapshot(snapshot, query, history, queryType, memorySummary)
}

// QueryContextDetect serves callers that bypass classification: the query
// type comes from keyword detection instead of a classified intent.
func (c *Contextualizer) QueryContextDetect(ctx context.Context, userID, query string, history []models.Turn, memorySummary string) *QueryContext {
	return c.QueryContext(ctx, userID, query, history, DetectQueryType(query), memorySummary)
}
