package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/llm"
)

// scriptedLLM returns canned completions in call order.
type scriptedLLM struct {
	responses []string
	err       error
	calls     int
}

func (s *scriptedLLM) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	if s.err != nil {
		return llm.CompletionResponse{}, s.err
	}
	content := "[]"
	if s.calls < len(s.responses) {
		content = s.responses[s.calls]
	}
	s.calls++
	return llm.CompletionResponse{Content: content, FinishReason: "stop"}, nil
}

func (s *scriptedLLM) Stream(context.Context, llm.CompletionRequest) (<-chan llm.StreamChunk, <-chan error) {
	chunks := make(chan llm.StreamChunk)
	errs := make(chan error, 1)
	close(chunks)
	close(errs)
	return chunks, errs
}

func TestParseOrder(t *testing.T) {
	cases := []struct {
		name string
		text string
		n    int
		want []int
		ok   bool
	}{
		{"plain permutation", "[3,1,2]", 3, []int{2, 0, 1}, true},
		{"permutation inside prose", "Die Reihenfolge ist [2, 1].", 2, []int{1, 0}, true},
		{"identity", "[1,2,3]", 3, []int{0, 1, 2}, true},
		{"duplicate rejected", "[1,1,3]", 3, nil, false},
		{"out of range rejected", "[1,2,4]", 3, nil, false},
		{"incomplete rejected", "[1,2]", 3, nil, false},
		{"too long rejected", "[1,2,3,4]", 3, nil, false},
		{"no array", "keine Liste vorhanden", 3, nil, false},
		{"empty array", "[]", 3, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseOrder(tc.text, tc.n)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestRerank(t *testing.T) {
	ctx := context.Background()
	query := "Wie hoch sind die Gebühren?"

	t.Run("applies the returned permutation", func(t *testing.T) {
		client := &scriptedLLM{responses: []string{"[3,1,2]"}}
		reranker := NewReranker(client, "test-model", RerankCombined)

		out := reranker.Rerank(ctx, query, docs("a", "b", "c"))
		assert.Equal(t, []string{"c", "a", "b"}, ids(out))
	})

	t.Run("unparseable response keeps original order", func(t *testing.T) {
		client := &scriptedLLM{responses: []string{"dazu kann ich nichts sagen"}}
		reranker := NewReranker(client, "test-model", RerankRelevance)

		out := reranker.Rerank(ctx, query, docs("a", "b", "c"))
		assert.Equal(t, []string{"a", "b", "c"}, ids(out))
	})

	t.Run("llm failure keeps original order", func(t *testing.T) {
		client := &scriptedLLM{err: faults.New(faults.KindLLMBackend, "upstream error")}
		reranker := NewReranker(client, "test-model", RerankCombined)

		out := reranker.Rerank(ctx, query, docs("a", "b", "c"))
		assert.Equal(t, []string{"a", "b", "c"}, ids(out))
	})

	t.Run("batches reorder independently", func(t *testing.T) {
		// First batch of five reorders, second batch fails to parse.
		client := &scriptedLLM{responses: []string{"[5,4,3,2,1]", "unbrauchbar"}}
		reranker := NewReranker(client, "test-model", RerankCombined)

		out := reranker.Rerank(ctx, query, docs("a", "b", "c", "d", "e", "f", "g"))
		require.Len(t, out, 7)
		assert.Equal(t, []string{"e", "d", "c", "b", "a", "f", "g"}, ids(out))
		assert.Equal(t, 2, client.calls)
	})

	t.Run("fewer than two results skip the llm entirely", func(t *testing.T) {
		client := &scriptedLLM{}
		reranker := NewReranker(client, "test-model", RerankCombined)

		out := reranker.Rerank(ctx, query, docs("solo"))
		assert.Equal(t, []string{"solo"}, ids(out))
		assert.Zero(t, client.calls)
	})

	t.Run("nil client is a no-op", func(t *testing.T) {
		reranker := NewReranker(nil, "test-model", RerankCombined)
		out := reranker.Rerank(ctx, query, docs("a", "b"))
		assert.Equal(t, []string{"a", "b"}, ids(out))
	})

	t.Run("unknown mode falls back to combined", func(t *testing.T) {
		reranker := NewReranker(&scriptedLLM{}, "test-model", RerankMode("bogus"))
		assert.Equal(t, RerankCombined, reranker.mode)
	})
}
