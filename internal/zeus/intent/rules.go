// internal/zeus/intent/rules.go
package intent

import "regexp"

// rulePattern binds one pattern to exactly one intent.
type rulePattern struct {
	intent  Intent
	pattern *regexp.Regexp
}

// ruleConfidence is fixed for every rule match.
const ruleConfidence = 0.9

// rulePriority is evaluated top to bottom, first match wins. The ordering
// is a semantic contract: reordering changes classification results, so
// entries must stay in this sequence.
var rulePriority = []rulePattern{
	{IntentGreeting, regexp.MustCompile(`(?i)\b(hola|hello|hi|hey|buen[oa]s\s+(d[ií]as|tardes|noches))\b`)},
	{IntentFarewell, regexp.MustCompile(`(?i)\b(adi[oó]s|bye|goodbye|hasta\s+luego|nos\s+vemos|chau)\b`)},
	{IntentHelp, regexp.MustCompile(`(?i)\b(help|ayuda|ay[uú]dame)\b|qu[eé]\s+puedes\s+hacer|what\s+can\s+you\s+do|c[oó]mo\s+funciona|how\s+do\s+you\s+work`)},
	{IntentGetStats, regexp.MustCompile(`(?i)\b(stats|statistics|estad[ií]sticas|metrics|m[eé]tricas|numbers|n[uú]meros)\b`)},
	{IntentGetSchedule, regexp.MustCompile(`(?i)\b(schedule|agenda|calendario|calendar)\b|pr[oó]xim[oa]s?\s+(eventos?|conciertos?|shows?)|upcoming\s+(events?|shows?|concerts?)|mis\s+eventos`)},
	{IntentGetPerformance, regexp.MustCompile(`(?i)\b(performance|rendimiento|desempe[ñn]o)\b|how\s+(am\s+i|is\s+my\s+music)\s+doing|c[oó]mo\s+va\s+mi`)},
	{IntentGetTrends, regexp.MustCompile(`(?i)\b(trends?|tendencias?|trending|viral)\b`)},
	{IntentGetComparison, regexp.MustCompile(`(?i)\b(compar[ae]|comparar|comparison|versus|vs\.?)\b`)},
	{IntentPlanRelease, regexp.MustCompile(`(?i)(plan|planear|lanzar|launch|release|estrenar)[^.]*(release|lanzamiento|[aá]lbum|album|single|sencillo|\bep\b)|when\s+should\s+i\s+release|cu[aá]ndo\s+(debo\s+)?lanzar`)},
	{IntentPlanTour, regexp.MustCompile(`(?i)(plan|planear|organizar|organize|book)[^.]*(tour|gira|shows?|conciertos?)|tour\s+planning`)},
	{IntentPlanPromotion, regexp.MustCompile(`(?i)promot|promoci[oó]n|promocionar|marketing|campaign|campa[ñn]a`)},
	{IntentOptimizeStrategy, regexp.MustCompile(`(?i)optimi[zs]|estrategia|strategy|improve\s+my|mejorar\s+mi`)},
	{IntentGetRecommendations, regexp.MustCompile(`(?i)\b(recommend|recomienda|recomendaci[oó]n(es)?|suggest(ions?)?|sugerencias?)\b|what\s+should\s+i\b|qu[eé]\s+deber[ií]a`)},
	{IntentGetInsights, regexp.MustCompile(`(?i)\b(insights?|an[aá]lisis|analysis|analiza|analyze)\b`)},
	{IntentGetOpportunities, regexp.MustCompile(`(?i)opportunit|oportunidad`)},
	{IntentFeedback, regexp.MustCompile(`(?i)\b(feedback|opini[oó]n)\b|what\s+do\s+you\s+think|qu[eé]\s+opinas`)},
	{IntentPreferences, regexp.MustCompile(`(?i)\b(preferences?|preferencias?)\b|i\s+prefer\b|prefiero`)},
}

// RuleStage is the deterministic first classification stage.
type RuleStage struct {
	rules []rulePattern
}

func NewRuleStage() *RuleStage {
	return &RuleStage{rules: rulePriority}
}

// Classify evaluates the ordered pattern list against the query. The second
// return value reports whether any rule matched; a miss means the caller
// should fall back to the model stage.
func (s *RuleStage) Classify(query string) (*ClassificationResult, bool) {
	for _, rule := range s.rules {
		if rule.pattern.MatchString(query) {
			return &ClassificationResult{
				Intent:     rule.intent,
				Confidence: ruleConfidence,
				Entities:   ExtractEntities(query, rule.intent),
				Source:     SourceRules,
				QueryType:  QueryTypeOf(rule.intent),
			}, true
		}
	}
	return nil, false
}
