// Package hypothesis generates the structured pre-execution analysis of
// a query via a single LLM call with lenient response parsing. Any
// failure yields a deterministic fallback hypothesis so downstream
// planning always has a valid instance to work with.
package hypothesis

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/models"
)

// Stats counts generation outcomes. Read with atomic loads.
type Stats struct {
	Generated int64
	Fallbacks int64
}

// Generator produces hypotheses. Safe for concurrent use.
type Generator struct {
	llm   llm.Client
	model string

	generated atomic.Int64
	fallbacks atomic.Int64
}

// New creates a Generator. llmClient may be nil; generation then always
// falls back.
func New(llmClient llm.Client, model string) *Generator {
	return &Generator{llm: llmClient, model: model}
}

// Generate analyses a query, optionally grounded on context snippets.
// The returned hypothesis is always schema-valid: on any parse or
// runtime failure a fallback instance is returned and counted.
func (g *Generator) Generate(ctx context.Context, query models.Query, contextSnippets []string) *models.Hypothesis {
	if g.llm == nil {
		return g.fallback(query)
	}

	var sb strings.Builder
	sb.WriteString(userPromptPrefix)
	sb.WriteString(query.Text)
	if len(contextSnippets) > 0 {
		sb.WriteString("\n\nBekannter Kontext:\n")
		for _, s := range contextSnippets {
			sb.WriteString("- ")
			sb.WriteString(s)
			sb.WriteByte('\n')
		}
	}

	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: sb.String()},
		},
		MaxTokens:   900,
		Temperature: 0.1,
	})
	if err != nil {
		slog.Warn("Hypothesis generation failed, using fallback",
			"query_id", query.ID, "error", err)
		return g.fallback(query)
	}

	h, err := parse(resp.Content)
	if err != nil {
		slog.Warn("Hypothesis response did not parse, using fallback",
			"query_id", query.ID, "error", err)
		return g.fallback(query)
	}

	h.GeneratedAt = time.Now()
	g.generated.Add(1)
	return h
}

// fallback is the deterministic hypothesis used when generation fails:
// structurally valid, confidence unknown, no gaps, and the raw query
// text as the primary intent.
func (g *Generator) fallback(query models.Query) *models.Hypothesis {
	g.fallbacks.Add(1)
	return &models.Hypothesis{
		QuestionType:  models.QuestionFactRetrieval,
		PrimaryIntent: query.Text,
		Confidence:    models.ConfidenceUnknown,
		Fallback:      true,
		GeneratedAt:   time.Now(),
	}
}

// Stats returns a snapshot of generation counters.
func (g *Generator) Stats() Stats {
	return Stats{
		Generated: g.generated.Load(),
		Fallbacks: g.fallbacks.Load(),
	}
}
