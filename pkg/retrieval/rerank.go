package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/models"
)

// RerankMode selects what the reranker optimises for.
type RerankMode string

const (
	RerankRelevance       RerankMode = "relevance"
	RerankInformativeness RerankMode = "informativeness"
	RerankCombined        RerankMode = "combined"
)

// rerankBatchSize bounds prompt length; larger batches degrade ordering
// quality faster than they save calls.
const rerankBatchSize = 5

const rerankSystemPrompt = `Du bist ein Ranking-Assistent für deutsche Verwaltungsdokumente.
Du erhältst eine Nutzerfrage und nummerierte Dokumentauszüge.
Sortiere die Dokumente nach dem angegebenen Kriterium und antworte
ausschließlich mit einem JSON-Array der Dokumentnummern in neuer
Reihenfolge, z. B. [3,1,2].`

var rerankCriteria = map[RerankMode]string{
	RerankRelevance:       "Relevanz zur Frage",
	RerankInformativeness: "Informationsgehalt (Detailtiefe, Vollständigkeit)",
	RerankCombined:        "Relevanz zur Frage und Informationsgehalt zu gleichen Teilen",
}

var arrayPattern = regexp.MustCompile(`\[[\d,\s]*\]`)

// Reranker reorders search results with an LLM. Each batch falls back
// to its original order independently when the response does not parse.
type Reranker struct {
	llm   llm.Client
	model string
	mode  RerankMode
}

// NewReranker creates a reranker. An empty mode defaults to combined.
func NewReranker(client llm.Client, model string, mode RerankMode) *Reranker {
	if _, ok := rerankCriteria[mode]; !ok {
		mode = RerankCombined
	}
	return &Reranker{llm: client, model: model, mode: mode}
}

// Rerank reorders results in batches of rerankBatchSize. Batches are
// independent: a failed batch keeps its original internal order, and
// batch boundaries never move.
func (r *Reranker) Rerank(ctx context.Context, query string, results []models.SearchResult) []models.SearchResult {
	if r.llm == nil || len(results) < 2 {
		return results
	}

	out := make([]models.SearchResult, 0, len(results))
	for start := 0; start < len(results); start += rerankBatchSize {
		end := start + rerankBatchSize
		if end > len(results) {
			end = len(results)
		}
		out = append(out, r.rerankBatch(ctx, query, results[start:end])...)
	}
	return out
}

func (r *Reranker) rerankBatch(ctx context.Context, query string, batch []models.SearchResult) []models.SearchResult {
	if len(batch) < 2 {
		return batch
	}

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: rerankSystemPrompt},
			{Role: llm.RoleUser, Content: r.batchPrompt(query, batch)},
		},
		MaxTokens:   100,
		Temperature: 0,
	})
	if err != nil {
		slog.Debug("Rerank batch failed, keeping original order", "error", err)
		return batch
	}

	order, ok := parseOrder(resp.Content, len(batch))
	if !ok {
		slog.Debug("Rerank response did not parse, keeping original order")
		return batch
	}

	reordered := make([]models.SearchResult, 0, len(batch))
	for _, idx := range order {
		reordered = append(reordered, batch[idx])
	}
	return reordered
}

func (r *Reranker) batchPrompt(query string, batch []models.SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Frage: %s\n\nKriterium: %s\n\nDokumente:\n", query, rerankCriteria[r.mode])
	for i, doc := range batch {
		excerpt := doc.Content
		if len(excerpt) > 400 {
			excerpt = excerpt[:400]
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, excerpt)
	}
	return sb.String()
}

// parseOrder extracts a permutation of 1..n from the response. Anything
// that is not a complete, duplicate-free permutation is rejected.
func parseOrder(text string, n int) ([]int, bool) {
	match := arrayPattern.FindString(text)
	if match == "" {
		return nil, false
	}
	var nums []int
	if err := json.Unmarshal([]byte(match), &nums); err != nil || len(nums) != n {
		return nil, false
	}
	seen := make(map[int]bool, n)
	order := make([]int, 0, n)
	for _, num := range nums {
		if num < 1 || num > n || seen[num] {
			return nil, false
		}
		seen[num] = true
		order = append(order, num-1)
	}
	return order, true
}
