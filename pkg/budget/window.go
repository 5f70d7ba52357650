package budget

import (
	"fmt"
	"strings"

	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/models"
)

// WindowStrategy is the context-overflow handling decision.
type WindowStrategy string

const (
	StrategyAsIs           WindowStrategy = "as_is"
	StrategyTruncateOldest WindowStrategy = "truncate_oldest"
	StrategySummariseTail  WindowStrategy = "summarise_tail"
	StrategyDegradeModel   WindowStrategy = "degrade_model"
)

// DefaultTokensPerChar approximates token counts for Latin scripts.
// Precision only matters for not overshooting the window.
const DefaultTokensPerChar = 0.75

// summaryPlaceholder replaces long middle messages under summarise_tail.
const summaryPlaceholder = "[Zusammenfassung: vorheriger Kontext gekürzt]"

// FitResult is the outcome of window fitting.
type FitResult struct {
	Strategy WindowStrategy
	Messages []llm.Message
	// SuggestedModel is set only for degrade_model.
	SuggestedModel string
	// ReducedBudget is the response budget that fits the chosen model's
	// window. Under degrade_model it may be lower than the requested
	// budget; otherwise it equals it.
	ReducedBudget int
}

// WindowManager tracks per-model context limits and decides the
// overflow strategy. The model table is read-only after startup.
type WindowManager struct {
	// ContextWindow resolves a model name to its window in tokens.
	ContextWindow func(model string) int
	// SmallerModel suggests a degrade_model alternative.
	SmallerModel func(model string) (string, bool)
	// TokensPerChar is the estimation ratio (0 = DefaultTokensPerChar).
	TokensPerChar float64
}

// EstimateTokens approximates the token count of a message list.
func (m *WindowManager) EstimateTokens(messages []llm.Message) int {
	ratio := m.TokensPerChar
	if ratio == 0 {
		ratio = DefaultTokensPerChar
	}
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Content)
	}
	return int(float64(chars) * ratio)
}

// Fit decides how to make messages + budget fit the model's window.
// Strategies are applied in order: as_is, truncate_oldest (drop older
// non-system messages, keeping the final evidence and question),
// summarise_tail (replace long middle messages with a placeholder),
// degrade_model (switch to the configured alternative when its window
// leaves at least the minimum response budget, shrinking the budget to
// the remaining room if needed).
func (m *WindowManager) Fit(messages []llm.Message, budget int, model string) (FitResult, error) {
	window := m.ContextWindow(model)

	if m.EstimateTokens(messages)+budget <= window {
		return FitResult{Strategy: StrategyAsIs, Messages: messages, ReducedBudget: budget}, nil
	}

	truncated := m.truncateOldest(messages, budget, window)
	if m.EstimateTokens(truncated)+budget <= window {
		return FitResult{Strategy: StrategyTruncateOldest, Messages: truncated, ReducedBudget: budget}, nil
	}

	summarised := m.summariseTail(truncated)
	if m.EstimateTokens(summarised)+budget <= window {
		return FitResult{Strategy: StrategySummariseTail, Messages: summarised, ReducedBudget: budget}, nil
	}

	if smaller, ok := m.smallerModel(model); ok {
		room := m.ContextWindow(smaller) - m.EstimateTokens(summarised)
		if room >= models.MinTokenBudget {
			reduced := budget
			if room < reduced {
				reduced = room
			}
			return FitResult{
				Strategy:       StrategyDegradeModel,
				Messages:       summarised,
				SuggestedModel: smaller,
				ReducedBudget:  reduced,
			}, nil
		}
	}

	return FitResult{}, fmt.Errorf(
		"messages (≈%d tokens) plus budget %d exceed %s context window %d after all strategies",
		m.EstimateTokens(summarised), budget, model, window)
}

// truncateOldest drops the oldest non-system messages until the
// conversation fits. The final two messages never move: for a planned
// prompt they are the evidence and the question.
func (m *WindowManager) truncateOldest(messages []llm.Message, budget, window int) []llm.Message {
	out := make([]llm.Message, len(messages))
	copy(out, messages)

	for m.EstimateTokens(out)+budget > window {
		dropped := false
		for i, msg := range out {
			if msg.Role == llm.RoleSystem {
				continue
			}
			if i >= len(out)-2 {
				break
			}
			out = append(out[:i], out[i+1:]...)
			dropped = true
			break
		}
		if !dropped {
			break
		}
	}
	return out
}

// summariseTail replaces long middle messages with a short placeholder.
// Real summarisation would need an LLM call; the placeholder preserves
// conversational shape while freeing the window.
func (m *WindowManager) summariseTail(messages []llm.Message) []llm.Message {
	out := make([]llm.Message, len(messages))
	copy(out, messages)

	for i := range out {
		if out[i].Role == llm.RoleSystem || i == len(out)-1 {
			continue
		}
		if len(out[i].Content) > 2000 {
			head := out[i].Content[:200]
			if idx := strings.LastIndexByte(head, ' '); idx > 0 {
				head = head[:idx]
			}
			out[i].Content = head + " … " + summaryPlaceholder
		}
	}
	return out
}

func (m *WindowManager) smallerModel(model string) (string, bool) {
	if m.SmallerModel == nil {
		return "", false
	}
	return m.SmallerModel(model)
}
