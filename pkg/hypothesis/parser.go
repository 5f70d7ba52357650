package hypothesis

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/models"
)

// Patterns for lenient JSON cleanup (compiled once).
var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// rawHypothesis mirrors the prompt schema with loose string types so
// enum normalisation happens after unmarshalling.
type rawHypothesis struct {
	QuestionType        string   `json:"question_type"`
	PrimaryIntent       string   `json:"primary_intent"`
	Confidence          string   `json:"confidence"`
	RequiredInformation []string `json:"required_information"`
	InformationGaps     []rawGap `json:"information_gaps"`
	Assumptions         []string `json:"assumptions"`
	SuggestedSteps      []string `json:"suggested_steps"`
	Keywords            []string `json:"keywords"`
}

type rawGap struct {
	Kind           string   `json:"kind"`
	Severity       string   `json:"severity"`
	SuggestedQuery string   `json:"suggested_query"`
	Examples       []string `json:"examples"`
}

// parse turns LLM output into a Hypothesis. The parser is intentionally
// forgiving: it unwraps fenced blocks, strips trailing commas, converts
// single-quoted strings, matches enum labels case-insensitively, and
// collapses unknown labels to the nearest legal value by substring.
func parse(text string) (*models.Hypothesis, error) {
	cleaned := extractJSON(text)
	if cleaned == "" {
		return nil, faults.New(faults.KindLLMParse, "no JSON document in hypothesis response")
	}

	var raw rawHypothesis
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		// Second pass with aggressive cleanup: trailing commas, single quotes.
		repaired := trailingCommaPattern.ReplaceAllString(cleaned, "$1")
		repaired = repairSingleQuotes(repaired)
		if err2 := json.Unmarshal([]byte(repaired), &raw); err2 != nil {
			return nil, faults.Wrap(faults.KindLLMParse, err, "hypothesis JSON did not parse")
		}
	}

	h := &models.Hypothesis{
		QuestionType:        normalizeQuestionType(raw.QuestionType),
		PrimaryIntent:       strings.TrimSpace(raw.PrimaryIntent),
		Confidence:          normalizeConfidence(raw.Confidence),
		RequiredInformation: raw.RequiredInformation,
		Assumptions:         raw.Assumptions,
		SuggestedSteps:      raw.SuggestedSteps,
		Keywords:            raw.Keywords,
	}
	for _, g := range raw.InformationGaps {
		h.InformationGaps = append(h.InformationGaps, models.InformationGap{
			Kind:           strings.TrimSpace(g.Kind),
			Severity:       normalizeSeverity(g.Severity),
			SuggestedQuery: strings.TrimSpace(g.SuggestedQuery),
			Examples:       g.Examples,
		})
	}
	h.Normalize()
	return h, nil
}

// extractJSON locates the JSON document: a fenced block if present,
// otherwise the outermost brace pair.
func extractJSON(text string) string {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// repairSingleQuotes converts single-quoted JSON strings to double
// quotes when the document contains no double quotes at all (a common
// LLM slip). Mixed-quote documents are left alone to avoid corrupting
// apostrophes inside valid strings.
func repairSingleQuotes(s string) string {
	if strings.Contains(s, `"`) {
		return s
	}
	return strings.ReplaceAll(s, "'", `"`)
}

func normalizeQuestionType(s string) models.QuestionType {
	label := strings.ToLower(strings.TrimSpace(s))
	qt := models.QuestionType(label)
	if qt.IsValid() {
		return qt
	}
	candidates := []models.QuestionType{
		models.QuestionFactRetrieval, models.QuestionComparison,
		models.QuestionProcedural, models.QuestionCalculation,
		models.QuestionOpinion, models.QuestionTimeline,
		models.QuestionCausal, models.QuestionHypothetical,
	}
	for _, c := range candidates {
		if label != "" && (strings.Contains(string(c), label) || strings.Contains(label, string(c))) {
			return c
		}
	}
	// "fact" and "facts" collapse to fact_retrieval via the substring
	// check above; anything else is unknown.
	return ""
}

func normalizeConfidence(s string) models.ConfidenceLevel {
	label := strings.ToLower(strings.TrimSpace(s))
	c := models.ConfidenceLevel(label)
	if c.IsValid() {
		return c
	}
	for _, cand := range []models.ConfidenceLevel{
		models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow,
	} {
		if label != "" && strings.Contains(label, string(cand)) {
			return cand
		}
	}
	return models.ConfidenceUnknown
}

func normalizeSeverity(s string) models.GapSeverity {
	label := strings.ToLower(strings.TrimSpace(s))
	sev := models.GapSeverity(label)
	if sev.IsValid() {
		return sev
	}
	for _, cand := range []models.GapSeverity{
		models.GapCritical, models.GapImportant, models.GapOptional,
	} {
		if label != "" && strings.Contains(label, string(cand)) {
			return cand
		}
	}
	return models.GapOptional
}
