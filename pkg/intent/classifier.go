// Package intent classifies a query into the closed intent set using a
// two-tier hybrid: an ordered rule table first, a short low-temperature
// LLM call only when the rules miss.
package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/models"
)

// ruleThreshold is the minimum rule confidence that short-circuits the
// LLM tier.
const ruleThreshold = 0.7

// llmTimeout bounds the LLM tier; on expiry the classifier returns the
// quick_answer fallback rather than blocking the pipeline.
const llmTimeout = 500 * time.Millisecond

const systemPrompt = `Du klassifizierst Verwaltungsanfragen. Antworte mit genau einem Wort aus:
quick_answer, explanation, analysis, comparison, procedural, calculation.`

// Classifier is the two-tier intent classifier. Safe for concurrent use;
// the rule table is read-only after construction.
type Classifier struct {
	rules []rule
	llm   llm.Client
	model string
}

// New creates a classifier. llmClient may be nil, in which case the LLM
// tier degrades to the fallback classification.
func New(llmClient llm.Client, model string) *Classifier {
	return &Classifier{rules: defaultRules, llm: llmClient, model: model}
}

// Classify returns the intent for a query. The rule tier cannot fail;
// an LLM tier failure yields {quick_answer, 0.0, llm} and is not
// retried within the query.
func (c *Classifier) Classify(ctx context.Context, query string) models.Classification {
	lowered := strings.ToLower(query)
	wordCount := len(strings.Fields(lowered))

	for _, r := range c.rules {
		if score := r.evaluate(lowered, wordCount); score >= ruleThreshold {
			return models.Classification{
				Intent:     r.intent,
				Confidence: score,
				Path:       models.PathRule,
			}
		}
	}

	return c.classifyLLM(ctx, query)
}

func (c *Classifier) classifyLLM(ctx context.Context, query string) models.Classification {
	fallback := models.Classification{
		Intent:     models.IntentQuickAnswer,
		Confidence: 0.0,
		Path:       models.PathLLM,
	}
	if c.llm == nil {
		return fallback
	}

	llmCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	resp, err := c.llm.Complete(llmCtx, llm.CompletionRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: query},
		},
		MaxTokens:   8,
		Temperature: 0.0,
	})
	if err != nil {
		slog.Warn("Intent LLM tier failed, using fallback", "error", err)
		return fallback
	}

	label := models.Intent(strings.ToLower(strings.TrimSpace(resp.Content)))
	if !label.IsValid() {
		slog.Warn("Intent LLM tier returned unknown label", "label", resp.Content)
		return fallback
	}
	return models.Classification{
		Intent:     label,
		Confidence: 0.75,
		Path:       models.PathLLM,
	}
}
