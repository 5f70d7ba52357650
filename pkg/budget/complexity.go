package budget

import (
	"strings"
	"unicode"

	"github.com/amtlich/amtlich/pkg/models"
)

// subordinators approximate clause depth in German queries.
var subordinators = []string{
	" wenn ", " weil ", " obwohl ", " dass ", " damit ", " falls ",
	" sofern ", " nachdem ", " bevor ", " während ",
}

// Complexity scores a query 0–10 from its length, entity count, clause
// depth, and the hypothesis's suggested step count. Deterministic.
func Complexity(text string, hyp *models.Hypothesis) int {
	score := 0

	words := strings.Fields(text)
	switch {
	case len(words) > 40:
		score += 3
	case len(words) > 20:
		score += 2
	case len(words) > 10:
		score += 1
	}

	entities := countEntities(words)
	switch {
	case entities > 5:
		score += 3
	case entities > 2:
		score += 2
	case entities > 0:
		score += 1
	}

	padded := " " + strings.ToLower(text) + " "
	clauses := strings.Count(text, ",")
	for _, s := range subordinators {
		clauses += strings.Count(padded, s)
	}
	switch {
	case clauses > 3:
		score += 2
	case clauses > 1:
		score += 1
	}

	if hyp != nil && len(hyp.SuggestedSteps) > 3 {
		score += 2
	} else if hyp != nil && len(hyp.SuggestedSteps) > 1 {
		score += 1
	}

	if score > 10 {
		score = 10
	}
	return score
}

// countEntities counts capitalised non-initial words, a cheap proxy for
// named entities in German text (nouns are capitalised, so this
// over-counts; the bucketing above absorbs that).
func countEntities(words []string) int {
	count := 0
	for i, w := range words {
		if i == 0 || w == "" {
			continue
		}
		r := []rune(w)[0]
		if unicode.IsUpper(r) {
			count++
		}
	}
	return count
}
