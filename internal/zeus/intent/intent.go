// Package intent classifies user queries into a closed set of intents.
//
// Classification runs in two stages: an ordered rule engine with fixed
// confidence, falling back to a model-based stage that asks the generation
// endpoint for a label. Both stages map their intent to a coarser QueryType
// through a single fixed table.
package intent

// Intent is a closed label describing what a user's turn is asking for.
type Intent string

const (
	IntentGreeting           Intent = "greeting"
	IntentFarewell           Intent = "farewell"
	IntentHelp               Intent = "help"
	IntentGetStats           Intent = "get_stats"
	IntentGetSchedule        Intent = "get_schedule"
	IntentGetPerformance     Intent = "get_performance"
	IntentGetTrends          Intent = "get_trends"
	IntentGetComparison      Intent = "get_comparison"
	IntentPlanRelease        Intent = "plan_release"
	IntentPlanTour           Intent = "plan_tour"
	IntentPlanPromotion      Intent = "plan_promotion"
	IntentOptimizeStrategy   Intent = "optimize_strategy"
	IntentGetRecommendations Intent = "get_recommendations"
	IntentGetInsights        Intent = "get_insights"
	IntentGetOpportunities   Intent = "get_opportunities"
	IntentFeedback           Intent = "feedback"
	IntentPreferences        Intent = "preferences"
	IntentGeneralQuery       Intent = "general_query"
)

// QueryType is the coarser grouping used to select a data slice and a
// cache TTL class.
type QueryType string

const (
	QueryTypeEvents          QueryType = "events"
	QueryTypeReleases        QueryType = "releases"
	QueryTypeSocialMedia     QueryType = "social_media"
	QueryTypeStreaming       QueryType = "streaming"
	QueryTypeRecommendations QueryType = "recommendations"
	QueryTypeAnalytics       QueryType = "analytics"
	QueryTypeHelp            QueryType = "help"
	QueryTypeGeneral         QueryType = "general"
)

// ClassificationSource identifies which stage produced a result.
type ClassificationSource string

const (
	SourceRules   ClassificationSource = "rules"
	SourceModel   ClassificationSource = "model"
	SourceDefault ClassificationSource = "default"
)

// queryTypeTable maps every intent to exactly one query type. The table is
// total: classification never infers a query type ad hoc.
var queryTypeTable = map[Intent]QueryType{
	IntentGreeting:           QueryTypeGeneral,
	IntentFarewell:           QueryTypeGeneral,
	IntentHelp:               QueryTypeHelp,
	IntentGetStats:           QueryTypeAnalytics,
	IntentGetSchedule:        QueryTypeEvents,
	IntentGetPerformance:     QueryTypeStreaming,
	IntentGetTrends:          QueryTypeSocialMedia,
	IntentGetComparison:      QueryTypeAnalytics,
	IntentPlanRelease:        QueryTypeReleases,
	IntentPlanTour:           QueryTypeEvents,
	IntentPlanPromotion:      QueryTypeSocialMedia,
	IntentOptimizeStrategy:   QueryTypeRecommendations,
	IntentGetRecommendations: QueryTypeRecommendations,
	IntentGetInsights:        QueryTypeAnalytics,
	IntentGetOpportunities:   QueryTypeRecommendations,
	IntentFeedback:           QueryTypeGeneral,
	IntentPreferences:        QueryTypeGeneral,
	IntentGeneralQuery:       QueryTypeGeneral,
}

// QueryTypeOf returns the query type for an intent. Unknown labels fold
// into the general type so the function stays total.
func QueryTypeOf(i Intent) QueryType {
	if qt, ok := queryTypeTable[i]; ok {
		return qt
	}
	return QueryTypeGeneral
}

// IsKnown reports whether the label belongs to the closed enumeration.
func IsKnown(i Intent) bool {
	_, ok := queryTypeTable[i]
	return ok
}

// AllIntents returns the closed enumeration in declaration order.
func AllIntents() []Intent {
	return []Intent{
		IntentGreeting, IntentFarewell, IntentHelp,
		IntentGetStats, IntentGetSchedule, IntentGetPerformance,
		IntentGetTrends, IntentGetComparison,
		IntentPlanRelease, IntentPlanTour, IntentPlanPromotion,
		IntentOptimizeStrategy, IntentGetRecommendations,
		IntentGetInsights, IntentGetOpportunities,
		IntentFeedback, IntentPreferences, IntentGeneralQuery,
	}
}

// ClassificationResult is immutable once produced; callers replace it,
// never mutate it.
type ClassificationResult struct {
	Intent     Intent               `json:"intent"`
	Confidence float64              `json:"confidence"`
	Entities   *Entities            `json:"entities,omitempty"`
	Source     ClassificationSource `json:"source"`
	QueryType  QueryType            `json:"queryType"`
}
