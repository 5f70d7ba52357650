// Package budget derives the dynamic response token budget for a query
// and manages context-window fitting for the chosen model.
package budget

import (
	"strings"

	"github.com/amtlich/amtlich/pkg/models"
)

// Per-intent base allocations and ceilings.
var intentBase = map[models.Intent]int{
	models.IntentQuickAnswer: 250,
	models.IntentExplanation: 900,
	models.IntentAnalysis:    1500,
	models.IntentComparison:  1200,
	models.IntentProcedural:  1100,
	models.IntentCalculation: 700,
}

var intentCeiling = map[models.Intent]int{
	models.IntentQuickAnswer: 800,
	models.IntentExplanation: 2500,
	models.IntentAnalysis:    4000,
	models.IntentComparison:  3500,
	models.IntentProcedural:  3000,
	models.IntentCalculation: 2000,
}

// Boost constants.
const (
	agentBoostPerAgent = 150
	maxBoostedAgents   = 6
	chunkBoostPerChunk = 60
	maxBoostedChunks   = 20
	domainBoost        = 400
	complexityBoost    = 300
	complexityCutoff   = 8
)

// domainKeywords marks queries in the legal/administrative domain.
var domainKeywords = []string{
	"antrag", "genehmigung", "bescheid", "behörde", "amt", "verordnung",
	"gesetz", "satzung", "widerspruch", "verwaltung", "paragraph", "frist",
	"gebühr", "zuständig", "formular", "baurecht", "gewerbe",
}

// Calculator computes token budgets. Pure and deterministic: equal
// inputs always produce equal budgets.
type Calculator struct {
	// ReservedPromptPct of the model context is held back for the prompt.
	ReservedPromptPct float64
	// ContextWindow resolves a model name to its window size.
	ContextWindow func(model string) int
}

// Compute maps (query, hypothesis, intent, agent count, chunk count,
// model) to a TokenBudget. It never fails: malformed inputs produce a
// conservative minimum budget with a note in the breakdown.
func (c *Calculator) Compute(
	query models.Query,
	hyp *models.Hypothesis,
	intent models.Intent,
	agentCount, chunkCount int,
	model string,
) models.TokenBudget {
	context := c.ContextWindow(model)
	b := models.TokenBudget{
		ModelContext: context,
		Reserved:     int(float64(context) * c.ReservedPromptPct),
	}

	base, ok := intentBase[intent]
	if !ok {
		base = intentBase[models.IntentQuickAnswer]
		b.Notes = append(b.Notes, "unknown intent, using quick_answer base")
	}
	b.Base = base

	ceiling, ok := intentCeiling[intent]
	if !ok {
		ceiling = intentCeiling[models.IntentQuickAnswer]
	}
	b.Ceiling = ceiling

	if agentCount < 0 {
		agentCount = 0
		b.Notes = append(b.Notes, "negative agent count clamped to 0")
	}
	if chunkCount < 0 {
		chunkCount = 0
		b.Notes = append(b.Notes, "negative chunk count clamped to 0")
	}
	b.AgentBoost = agentBoostPerAgent * min(agentCount, maxBoostedAgents)
	b.ChunkBoost = ChunkBoost(chunkCount)

	if hasDomainKeyword(query.Text) {
		b.DomainBoost = domainBoost
	}

	complexity := Complexity(query.Text, hyp)
	if complexity >= complexityCutoff {
		b.ComplexityBoost = complexityBoost
	}

	b.Allocated = deriveAllocated(&b)
	return b
}

// ChunkBoost is the budget boost for a retrieved chunk count, capped at
// maxBoostedChunks. Negative counts boost nothing.
func ChunkBoost(chunkCount int) int {
	if chunkCount < 0 {
		chunkCount = 0
	}
	return chunkBoostPerChunk * min(chunkCount, maxBoostedChunks)
}

// Rederive recomputes Allocated after a caller adjusts breakdown
// fields, for example the chunk boost once the retrieved evidence
// volume is known.
func Rederive(b *models.TokenBudget) {
	b.Allocated = deriveAllocated(b)
}

// deriveAllocated sums the breakdown and clamps to
// [MinTokenBudget, min(ceiling, model_context − reserved_prompt)].
func deriveAllocated(b *models.TokenBudget) int {
	allocated := b.Base + b.IntentBoost + b.ComplexityBoost +
		b.AgentBoost + b.ChunkBoost + b.DomainBoost

	upper := b.ModelContext - b.Reserved
	if b.Ceiling > 0 && b.Ceiling < upper {
		upper = b.Ceiling
	}
	if allocated > upper {
		allocated = upper
	}
	if allocated < models.MinTokenBudget {
		allocated = models.MinTokenBudget
	}
	return allocated
}

func hasDomainKeyword(text string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range domainKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
