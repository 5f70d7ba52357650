package models

// Intent is the closed set of answer intents used for budgeting and
// response framing.
type Intent string

const (
	IntentQuickAnswer Intent = "quick_answer"
	IntentExplanation Intent = "explanation"
	IntentAnalysis    Intent = "analysis"
	IntentComparison  Intent = "comparison"
	IntentProcedural  Intent = "procedural"
	IntentCalculation Intent = "calculation"
)

// IsValid checks if the intent is a known label.
func (i Intent) IsValid() bool {
	switch i {
	case IntentQuickAnswer, IntentExplanation, IntentAnalysis,
		IntentComparison, IntentProcedural, IntentCalculation:
		return true
	default:
		return false
	}
}

// ClassifierPath records which tier produced a classification.
type ClassifierPath string

const (
	PathRule ClassifierPath = "rule"
	PathLLM  ClassifierPath = "llm"
)

// Classification is the result of intent classification.
type Classification struct {
	Intent     Intent         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Path       ClassifierPath `json:"path"`
}
