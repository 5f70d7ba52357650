package intent

import (
	"regexp"
	"strings"

	"github.com/amtlich/amtlich/pkg/models"
)

// rule is one entry of the ordered rule tier. A rule matches when its
// regex hits or enough of its keywords appear; the computed confidence
// is the rule weight scaled by match quality.
type rule struct {
	intent   models.Intent
	regex    *regexp.Regexp
	keywords []string
	weight   float64
	// maxWords, when > 0, restricts the rule to short queries.
	maxWords int
}

// defaultRules is the ordered rule table for German administrative
// queries. Order matters: the first rule whose confidence reaches the
// threshold wins. Read-only after init.
var defaultRules = []rule{
	{
		intent:   models.IntentProcedural,
		regex:    regexp.MustCompile(`(?i)\b(wie\s+(beantrage|stelle|melde|reiche)|antrag\s+stellen|beantragen|anmelden|ummelden|abmelden|einreichen|welche\s+unterlagen|welche\s+schritte)\b`),
		keywords: []string{"antrag", "verfahren", "unterlagen", "formular", "frist"},
		weight:   0.95,
	},
	{
		intent:   models.IntentCalculation,
		regex:    regexp.MustCompile(`(?i)\b(wie\s+(viel|hoch)|was\s+kostet|kosten|gebühr(en)?|berechne|betrag|höhe\s+der)\b`),
		keywords: []string{"kosten", "gebühr", "euro", "berechnung"},
		weight:   0.9,
	},
	{
		intent:   models.IntentComparison,
		regex:    regexp.MustCompile(`(?i)\b(vergleich|unterschied|versus|\bvs\.?\b|besser|oder\s+lieber|gegenüber)\b`),
		keywords: []string{"vergleich", "unterschied", "alternativ"},
		weight:   0.9,
	},
	{
		intent:   models.IntentAnalysis,
		regex:    regexp.MustCompile(`(?i)\b(warum|weshalb|wieso|analysiere|bewerte|auswirkung(en)?|folgen|rechtslage|zulässig)\b`),
		keywords: []string{"warum", "auswirkung", "bewertung", "rechtslage"},
		weight:   0.85,
	},
	{
		intent:   models.IntentExplanation,
		regex:    regexp.MustCompile(`(?i)\b(erkläre?|erläutere?|was\s+bedeutet|wie\s+funktioniert|was\s+versteht\s+man)\b`),
		keywords: []string{"erklärung", "bedeutung", "funktioniert"},
		weight:   0.85,
	},
	{
		intent:   models.IntentQuickAnswer,
		regex:    regexp.MustCompile(`(?i)\b(was\s+ist|wer\s+ist|wo\s+(ist|liegt|finde)|wann\s+(ist|war|öffnet)|hauptsitz|adresse|öffnungszeiten|telefonnummer)\b`),
		keywords: []string{"wo", "wann", "wer"},
		weight:   0.8,
		maxWords: 12,
	},
}

// evaluate scores a rule against the lower-cased query. Returns 0 when
// the rule does not apply.
func (r rule) evaluate(query string, wordCount int) float64 {
	if r.maxWords > 0 && wordCount > r.maxWords {
		return 0
	}
	score := 0.0
	if r.regex != nil && r.regex.MatchString(query) {
		score = r.weight
	}
	hits := 0
	for _, kw := range r.keywords {
		if strings.Contains(query, kw) {
			hits++
		}
	}
	if hits > 0 {
		kwScore := r.weight * (0.6 + 0.1*float64(hits))
		if kwScore > r.weight {
			kwScore = r.weight
		}
		if kwScore > score {
			score = kwScore
		}
	}
	return score
}
