package hypothesis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/models"
)

type stubLLM struct {
	content string
	err     error
}

func (s *stubLLM) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	if s.err != nil {
		return llm.CompletionResponse{}, s.err
	}
	return llm.CompletionResponse{Content: s.content, FinishReason: "stop"}, nil
}

func (s *stubLLM) Stream(context.Context, llm.CompletionRequest) (<-chan llm.StreamChunk, <-chan error) {
	chunks := make(chan llm.StreamChunk)
	errs := make(chan error, 1)
	close(chunks)
	close(errs)
	return chunks, errs
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	query := models.Query{ID: "q-1", Text: "Wie beantrage ich Wohngeld?"}

	t.Run("valid response becomes the hypothesis", func(t *testing.T) {
		g := New(&stubLLM{content: `{"question_type": "procedural", "confidence": "high", "primary_intent": "Wohngeld beantragen"}`}, "test-model")

		h := g.Generate(ctx, query, nil)
		assert.Equal(t, models.QuestionProcedural, h.QuestionType)
		assert.False(t, h.Fallback)
		assert.False(t, h.GeneratedAt.IsZero())

		stats := g.Stats()
		assert.EqualValues(t, 1, stats.Generated)
		assert.EqualValues(t, 0, stats.Fallbacks)
	})

	t.Run("nil client always falls back", func(t *testing.T) {
		g := New(nil, "test-model")

		h := g.Generate(ctx, query, nil)
		require.NotNil(t, h)
		assert.True(t, h.Fallback)
		assert.Equal(t, models.QuestionFactRetrieval, h.QuestionType)
		assert.Equal(t, models.ConfidenceUnknown, h.Confidence)
		assert.Equal(t, query.Text, h.PrimaryIntent)
		assert.Empty(t, h.InformationGaps)
		assert.EqualValues(t, 1, g.Stats().Fallbacks)
	})

	t.Run("llm failure falls back", func(t *testing.T) {
		g := New(&stubLLM{err: faults.New(faults.KindLLMBackend, "upstream error")}, "test-model")

		h := g.Generate(ctx, query, nil)
		assert.True(t, h.Fallback)
		assert.EqualValues(t, 1, g.Stats().Fallbacks)
	})

	t.Run("unparseable response falls back", func(t *testing.T) {
		g := New(&stubLLM{content: "leider keine strukturierte Antwort"}, "test-model")

		h := g.Generate(ctx, query, nil)
		assert.True(t, h.Fallback)
	})

	t.Run("fallback is deterministic per query", func(t *testing.T) {
		g := New(nil, "test-model")
		first := g.Generate(ctx, query, nil)
		second := g.Generate(ctx, query, nil)

		second.GeneratedAt = first.GeneratedAt
		assert.Equal(t, first, second)
	})
}
