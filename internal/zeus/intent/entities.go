// internal/zeus/intent/entities.go
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// TimeframeUnit is the granularity of an extracted timeframe.
type TimeframeUnit string

const (
	UnitDays   TimeframeUnit = "days"
	UnitWeeks  TimeframeUnit = "weeks"
	UnitMonths TimeframeUnit = "months"
	UnitYears  TimeframeUnit = "years"
)

// Timeframe is a "last N units" or "next N units" window. Future marks the
// forward-looking shape.
type Timeframe struct {
	Value  int           `json:"value"`
	Unit   TimeframeUnit `json:"unit"`
	Future bool          `json:"future"`
}

// Entities holds structured mentions pulled from raw query text. A nil or
// empty field means the category was not mentioned.
type Entities struct {
	Platforms      []string   `json:"platforms,omitempty"`
	SocialNetworks []string   `json:"socialNetworks,omitempty"`
	Timeframe      *Timeframe `json:"timeframe,omitempty"`
	ContentTypes   []string   `json:"contentTypes,omitempty"`
}

// IsEmpty reports whether no category was extracted at all.
func (e *Entities) IsEmpty() bool {
	return e == nil ||
		(len(e.Platforms) == 0 && len(e.SocialNetworks) == 0 &&
			e.Timeframe == nil && len(e.ContentTypes) == 0)
}

// Fixed vocabularies. Matching is case-insensitive on the normalized query.
var streamingPlatforms = []string{
	"spotify", "apple music", "youtube music", "amazon music",
	"deezer", "tidal", "soundcloud",
}

var socialNetworks = []string{
	"instagram", "tiktok", "twitter", "facebook", "threads", "youtube",
}

// contentTypeKeywords maps trigger words to the canonical content type.
// Order fixes the output ordering.
var contentTypeKeywords = []struct {
	contentType string
	keywords    []string
}{
	{"streams", []string{"streams", "streaming", "plays", "reproducciones"}},
	{"followers", []string{"followers", "fans", "seguidores"}},
	{"engagement", []string{"engagement", "interactions", "interacciones"}},
	{"revenue", []string{"revenue", "earnings", "income", "ingresos", "ganancias"}},
	{"events", []string{"events", "shows", "concerts", "gigs", "eventos", "conciertos"}},
}

var (
	lastTimeframeRe = regexp.MustCompile(`(?i)(?:last|past|últim[oa]s?)\s+(\d+)\s+(day|days|week|weeks|month|months|year|years|día|días|semana|semanas|mes|meses|año|años)`)
	nextTimeframeRe = regexp.MustCompile(`(?i)(?:next|coming|próxim[oa]s?)\s+(\d+)\s+(day|days|week|weeks|month|months|día|días|semana|semanas|mes|meses)`)
)

// analyticsFamily gates content-type extraction: for other intents textual
// matches are ignored to avoid false positives.
var analyticsFamily = map[Intent]bool{
	IntentGetStats:       true,
	IntentGetPerformance: true,
	IntentGetTrends:      true,
	IntentGetComparison:  true,
	IntentGetInsights:    true,
}

// ExtractEntities pulls structured mentions out of raw query text. It is
// pure and total: unmatched categories yield absent values, never errors.
func ExtractEntities(query string, i Intent) *Entities {
	normalized := strings.ToLower(query)
	out := &Entities{}

	for _, p := range streamingPlatforms {
		if strings.Contains(normalized, p) {
			out.Platforms = append(out.Platforms, p)
		}
	}

	for _, n := range socialNetworks {
		if strings.Contains(normalized, n) {
			out.SocialNetworks = append(out.SocialNetworks, n)
		}
	}
	// "x" as a network name is too ambiguous for substring matching; only
	// the word form counts.
	if containsWord(normalized, "x") && !containsAny(out.SocialNetworks, "twitter") {
		out.SocialNetworks = append(out.SocialNetworks, "twitter")
	}

	out.Timeframe = extractTimeframe(normalized)

	if analyticsFamily[i] {
		for _, ct := range contentTypeKeywords {
			for _, kw := range ct.keywords {
				if strings.Contains(normalized, kw) {
					out.ContentTypes = append(out.ContentTypes, ct.contentType)
					break
				}
			}
		}
	}

	return out
}

func extractTimeframe(normalized string) *Timeframe {
	if m := lastTimeframeRe.FindStringSubmatch(normalized); m != nil {
		value, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		return &Timeframe{Value: value, Unit: canonicalUnit(m[2]), Future: false}
	}
	if m := nextTimeframeRe.FindStringSubmatch(normalized); m != nil {
		value, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		return &Timeframe{Value: value, Unit: canonicalUnit(m[2]), Future: true}
	}
	return nil
}

func canonicalUnit(raw string) TimeframeUnit {
	switch strings.TrimSuffix(strings.ToLower(raw), "s") {
	case "day", "día", "dia":
		return UnitDays
	case "week", "semana":
		return UnitWeeks
	case "month", "mes", "mese":
		return UnitMonths
	default:
		return UnitYears
	}
}

func containsWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if strings.Trim(f, ".,!?¿¡") == word {
			return true
		}
	}
	return false
}

func containsAny(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
