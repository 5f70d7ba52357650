package response

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amtlich/amtlich/pkg/budget"
	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/models"
)

// continuesMarker closes an answer the model could not finish.
const continuesMarker = " [wird fortgesetzt]"

// maxContinuations bounds follow-up calls after truncation.
const maxContinuations = 2

// Generator produces the final answer. Satisfies the executor's
// Responder contract.
type Generator struct {
	llm     llm.Client
	windows *budget.WindowManager
	model   string
	// ContinueOnTruncation issues continuation calls instead of closing
	// a truncated answer with the continues marker.
	ContinueOnTruncation bool
}

// NewGenerator wires the generator.
func NewGenerator(client llm.Client, windows *budget.WindowManager, model string) *Generator {
	return &Generator{llm: client, windows: windows, model: model, ContinueOnTruncation: true}
}

// Respond plans the prompt, streams the generation (forwarding chunks
// to onChunk), handles truncation, and applies citation closure.
func (g *Generator) Respond(ctx context.Context, query models.Query, hyp *models.Hypothesis, tokenBudget *models.TokenBudget, docs []models.SearchResult, onChunk func(string)) (*models.StepResult, error) {
	if g.llm == nil {
		return nil, faults.New(faults.KindBackendUnavailable, "no language model configured")
	}

	model := g.model
	if query.Options.Model != "" {
		model = query.Options.Model
	}
	candidates := buildCandidates(docs)
	plan, err := planPrompt(query, hyp, tokenBudget, candidates, g.windows, model)
	if err != nil {
		return nil, faults.Wrap(faults.KindContextOverflow, err, "prompt does not fit any context window")
	}
	if plan.strategy != budget.StrategyAsIs {
		slog.Info("Window strategy applied",
			"query_id", query.ID, "strategy", string(plan.strategy), "model", plan.model)
	}

	content, tokensUsed, err := g.generate(ctx, plan, onChunk)
	if err != nil {
		return nil, err
	}

	closed, sources := closeCitations(content, candidates)
	return &models.StepResult{
		Summary:    fmt.Sprintf("Antwort generiert, %d Quellen zitiert", len(sources)),
		Text:       closed,
		Citations:  sources,
		TokensUsed: tokensUsed,
		Data: map[string]any{
			"model":           plan.model,
			"window_strategy": string(plan.strategy),
		},
	}, nil
}

// generate streams the answer, issuing continuation calls while the
// model keeps hitting the token limit. The accumulated assistant text
// is fed back as context for each continuation.
func (g *Generator) generate(ctx context.Context, plan plannedPrompt, onChunk func(string)) (string, int, error) {
	var full strings.Builder
	tokensUsed := 0
	messages := plan.messages

	for call := 0; ; call++ {
		content, finishReason, err := g.streamOnce(ctx, llm.CompletionRequest{
			Model:     plan.model,
			Messages:  messages,
			MaxTokens: plan.effectiveBudget,
		}, onChunk)
		if err != nil {
			return "", 0, err
		}
		full.WriteString(content)
		tokensUsed += g.windows.EstimateTokens([]llm.Message{{Content: content}})

		if finishReason != "length" {
			return full.String(), tokensUsed, nil
		}
		if !g.ContinueOnTruncation || call >= maxContinuations {
			onChunk(continuesMarker)
			return full.String() + continuesMarker, tokensUsed, nil
		}

		// Continuation: replay the conversation with the partial answer
		// and ask the model to pick up where it stopped.
		messages = append(append([]llm.Message(nil), plan.messages...),
			llm.Message{Role: llm.RoleAssistant, Content: full.String()},
			llm.Message{Role: llm.RoleUser, Content: "Setze die Antwort nahtlos fort."},
		)
		fit, err := g.windows.Fit(messages, plan.effectiveBudget, plan.model)
		if err != nil {
			onChunk(continuesMarker)
			return full.String() + continuesMarker, tokensUsed, nil
		}
		messages = fit.Messages
	}
}

// streamOnce consumes one streaming call, forwarding chunks in order.
// Cancellation is honoured at every chunk boundary.
func (g *Generator) streamOnce(ctx context.Context, req llm.CompletionRequest, onChunk func(string)) (string, string, error) {
	chunks, errs := g.llm.Stream(ctx, req)

	var sb strings.Builder
	finishReason := ""
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := <-errs; err != nil {
					return "", "", err
				}
				return sb.String(), finishReason, nil
			}
			if chunk.Content != "" {
				sb.WriteString(chunk.Content)
				onChunk(chunk.Content)
			}
			if chunk.IsFinal {
				finishReason = chunk.FinishReason
			}
		case <-ctx.Done():
			return "", "", faults.Wrap(faults.KindCancelled, ctx.Err(), "generation cancelled")
		}
	}
}
