package config

import "time"

// System-wide defaults applied when environment variables are unset.
const (
	DefaultModelName         = "gpt-4o-mini"
	DefaultReservedPromptPct = 0.25

	DefaultMaxParallel = 5
	DefaultStepTimeout = 30 * time.Second
	DefaultPlanTimeout = 2 * time.Minute

	// DefaultContextWindow is the conservative fallback for models not
	// present in the context table.
	DefaultContextWindow = 8192
)

// modelContextTable maps model names to context window sizes in tokens.
// Read-only after startup; no locking needed.
var modelContextTable = map[string]int{
	"gpt-4o":             128000,
	"gpt-4o-mini":        128000,
	"gpt-4-turbo":        128000,
	"gpt-4":              8192,
	"gpt-3.5-turbo":      16385,
	"mistral-large":      32000,
	"mixtral-8x7b":       32000,
	"llama-3.1-70b":      131072,
	"llama-3.1-8b":       131072,
	"qwen2.5-72b":        131072,
	"deepseek-chat":      65536,
	"claude-sonnet":      200000,
	"claude-haiku":       200000,
	"gemini-1.5-pro":     1048576,
	"gemini-1.5-flash":   1048576,
	"text-embedding-3-s": 8191,
}

// ModelContextWindow returns the context window for a model, or the
// conservative default for unknown models.
func ModelContextWindow(model string) int {
	if w, ok := modelContextTable[model]; ok {
		return w
	}
	return DefaultContextWindow
}

// SmallerModel suggests a cheaper alternative with an equal or larger
// context window, used by the degrade_model overflow strategy.
func SmallerModel(model string) (string, bool) {
	switch model {
	case "gpt-4o":
		return "gpt-4o-mini", true
	case "gpt-4-turbo":
		return "gpt-4o-mini", true
	case "gpt-4":
		return "gpt-3.5-turbo", true
	case "mistral-large":
		return "mixtral-8x7b", true
	case "claude-sonnet":
		return "claude-haiku", true
	case "gemini-1.5-pro":
		return "gemini-1.5-flash", true
	default:
		return "", false
	}
}
