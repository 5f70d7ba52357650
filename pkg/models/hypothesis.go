package models

import "time"

// QuestionType classifies the shape of the user's question.
type QuestionType string

const (
	QuestionFactRetrieval QuestionType = "fact_retrieval"
	QuestionComparison    QuestionType = "comparison"
	QuestionProcedural    QuestionType = "procedural"
	QuestionCalculation   QuestionType = "calculation"
	QuestionOpinion       QuestionType = "opinion"
	QuestionTimeline      QuestionType = "timeline"
	QuestionCausal        QuestionType = "causal"
	QuestionHypothetical  QuestionType = "hypothetical"
)

// IsValid checks if the question type is a known label.
func (q QuestionType) IsValid() bool {
	switch q {
	case QuestionFactRetrieval, QuestionComparison, QuestionProcedural,
		QuestionCalculation, QuestionOpinion, QuestionTimeline,
		QuestionCausal, QuestionHypothetical:
		return true
	default:
		return false
	}
}

// ConfidenceLevel is the hypothesis generator's self-reported confidence.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"
	ConfidenceMedium  ConfidenceLevel = "medium"
	ConfidenceLow     ConfidenceLevel = "low"
	ConfidenceUnknown ConfidenceLevel = "unknown"
)

// IsValid checks if the confidence level is a known label.
func (c ConfidenceLevel) IsValid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceUnknown:
		return true
	default:
		return false
	}
}

// GapSeverity grades how badly a missing piece of information hurts the answer.
type GapSeverity string

const (
	GapCritical  GapSeverity = "critical"
	GapImportant GapSeverity = "important"
	GapOptional  GapSeverity = "optional"
)

// IsValid checks if the gap severity is a known label.
func (s GapSeverity) IsValid() bool {
	return s == GapCritical || s == GapImportant || s == GapOptional
}

// InformationGap describes a piece of information the query is missing.
type InformationGap struct {
	Kind           string      `json:"kind"`
	Severity       GapSeverity `json:"severity"`
	SuggestedQuery string      `json:"suggested_query,omitempty"`
	Examples       []string    `json:"examples,omitempty"`
}

// Hypothesis is the structured pre-execution analysis of a query.
// Instances are generated once and never mutated; re-generation after
// user clarification produces a fresh instance.
type Hypothesis struct {
	QuestionType        QuestionType     `json:"question_type"`
	PrimaryIntent       string           `json:"primary_intent"`
	Confidence          ConfidenceLevel  `json:"confidence"`
	RequiredInformation []string         `json:"required_information,omitempty"`
	InformationGaps     []InformationGap `json:"information_gaps,omitempty"`
	Assumptions         []string         `json:"assumptions,omitempty"`
	SuggestedSteps      []string         `json:"suggested_steps,omitempty"`
	Keywords            []string         `json:"keywords,omitempty"`
	Fallback            bool             `json:"fallback,omitempty"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// CriticalGaps returns the gaps with critical severity.
func (h *Hypothesis) CriticalGaps() []InformationGap {
	var gaps []InformationGap
	for _, g := range h.InformationGaps {
		if g.Severity == GapCritical {
			gaps = append(gaps, g)
		}
	}
	return gaps
}

// RequiresClarification reports whether any gap is critical.
func (h *Hypothesis) RequiresClarification() bool {
	return len(h.CriticalGaps()) > 0
}

// Normalize enforces the schema invariants: unknown enum values collapse
// to their defaults, and high confidence is demoted to medium when a
// critical gap is present (confidence=high implies no critical gaps).
func (h *Hypothesis) Normalize() {
	if !h.QuestionType.IsValid() {
		h.QuestionType = QuestionFactRetrieval
	}
	if !h.Confidence.IsValid() {
		h.Confidence = ConfidenceUnknown
	}
	for i := range h.InformationGaps {
		if !h.InformationGaps[i].Severity.IsValid() {
			h.InformationGaps[i].Severity = GapOptional
		}
	}
	if h.Confidence == ConfidenceHigh && h.RequiresClarification() {
		h.Confidence = ConfidenceMedium
	}
}
