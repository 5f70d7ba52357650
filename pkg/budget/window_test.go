package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amtlich/amtlich/pkg/llm"
)

func testWindows(window int) *WindowManager {
	return &WindowManager{
		ContextWindow: func(string) int { return window },
		TokensPerChar: 1.0, // 1:1 keeps the arithmetic readable
	}
}

func msg(role string, length int) llm.Message {
	return llm.Message{Role: role, Content: strings.Repeat("x", length)}
}

func TestEstimateTokens(t *testing.T) {
	m := testWindows(1000)
	messages := []llm.Message{msg(llm.RoleSystem, 100), msg(llm.RoleUser, 150)}
	assert.Equal(t, 250, m.EstimateTokens(messages))

	m.TokensPerChar = 0
	assert.Equal(t, 187, m.EstimateTokens(messages), "250 chars at the default ratio, fraction truncated")
}

func TestFit(t *testing.T) {
	t.Run("fitting conversation passes as is", func(t *testing.T) {
		m := testWindows(1000)
		messages := []llm.Message{msg(llm.RoleSystem, 100), msg(llm.RoleUser, 200)}

		res, err := m.Fit(messages, 500, "test-model")
		require.NoError(t, err)
		assert.Equal(t, StrategyAsIs, res.Strategy)
		assert.Equal(t, messages, res.Messages)
	})

	t.Run("overflow drops the oldest non-system message first", func(t *testing.T) {
		m := testWindows(1000)
		messages := []llm.Message{
			msg(llm.RoleSystem, 100),
			{Role: llm.RoleUser, Content: strings.Repeat("a", 400)}, // oldest, dropped
			{Role: llm.RoleUser, Content: strings.Repeat("b", 250)},
			{Role: llm.RoleUser, Content: strings.Repeat("c", 150)},
		}

		res, err := m.Fit(messages, 500, "test-model")
		require.NoError(t, err)
		assert.Equal(t, StrategyTruncateOldest, res.Strategy)
		require.Len(t, res.Messages, 3)
		assert.Equal(t, llm.RoleSystem, res.Messages[0].Role)
		assert.Equal(t, strings.Repeat("b", 250), res.Messages[1].Content)
	})

	t.Run("the final two messages survive truncation", func(t *testing.T) {
		m := testWindows(1000)
		messages := []llm.Message{
			msg(llm.RoleSystem, 100),
			msg(llm.RoleUser, 300),
			msg(llm.RoleUser, 200),
			msg(llm.RoleUser, 250),
		}

		res, err := m.Fit(messages, 300, "test-model")
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(res.Messages), 3)
		assert.Equal(t, llm.RoleSystem, res.Messages[0].Role)
		assert.Equal(t, messages[2], res.Messages[len(res.Messages)-2])
		assert.Equal(t, messages[3], res.Messages[len(res.Messages)-1])
	})

	t.Run("long evidence is summarised when nothing can be dropped", func(t *testing.T) {
		m := testWindows(3000)
		messages := []llm.Message{
			msg(llm.RoleSystem, 200),
			msg(llm.RoleUser, 2500), // evidence, kept but shortened
			msg(llm.RoleUser, 100),  // question
		}

		res, err := m.Fit(messages, 500, "test-model")
		require.NoError(t, err)
		assert.Equal(t, StrategySummariseTail, res.Strategy)
		require.Len(t, res.Messages, 3)
		assert.Contains(t, res.Messages[1].Content, summaryPlaceholder)
		assert.Equal(t, messages[2], res.Messages[2])
	})

	t.Run("degrade model surfaces a larger window alternative", func(t *testing.T) {
		windows := map[string]int{"big": 500, "cheap": 4000}
		m := &WindowManager{
			ContextWindow: func(model string) int { return windows[model] },
			SmallerModel: func(model string) (string, bool) {
				if model == "big" {
					return "cheap", true
				}
				return "", false
			},
			TokensPerChar: 1.0,
		}
		messages := []llm.Message{msg(llm.RoleSystem, 100), msg(llm.RoleUser, 600)}

		res, err := m.Fit(messages, 300, "big")
		require.NoError(t, err)
		assert.Equal(t, StrategyDegradeModel, res.Strategy)
		assert.Equal(t, "cheap", res.SuggestedModel)
		assert.Equal(t, 300, res.ReducedBudget, "the full budget fits the alternative")
	})

	t.Run("equal window alternative degrades with a reduced budget", func(t *testing.T) {
		windows := map[string]int{"gpt": 1000, "mini": 1000}
		m := &WindowManager{
			ContextWindow: func(model string) int { return windows[model] },
			SmallerModel: func(model string) (string, bool) {
				if model == "gpt" {
					return "mini", true
				}
				return "", false
			},
			TokensPerChar: 1.0,
		}
		messages := []llm.Message{msg(llm.RoleSystem, 100), msg(llm.RoleUser, 600)}

		res, err := m.Fit(messages, 500, "gpt")
		require.NoError(t, err)
		assert.Equal(t, StrategyDegradeModel, res.Strategy)
		assert.Equal(t, "mini", res.SuggestedModel)
		assert.Equal(t, 300, res.ReducedBudget, "the alternative leaves 300 tokens of room")
	})

	t.Run("degrade is skipped when the alternative leaves no room", func(t *testing.T) {
		windows := map[string]int{"gpt": 1000, "mini": 1000}
		m := &WindowManager{
			ContextWindow: func(model string) int { return windows[model] },
			SmallerModel:  func(string) (string, bool) { return "mini", true },
			TokensPerChar: 1.0,
		}
		messages := []llm.Message{msg(llm.RoleSystem, 100), msg(llm.RoleUser, 800)}

		_, err := m.Fit(messages, 300, "gpt")
		require.Error(t, err)
	})

	t.Run("exhausted strategies return an error", func(t *testing.T) {
		m := testWindows(300)
		messages := []llm.Message{msg(llm.RoleSystem, 100), msg(llm.RoleUser, 600)}

		_, err := m.Fit(messages, 300, "test-model")
		require.Error(t, err)
	})
}
