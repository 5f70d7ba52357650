package models

// MinTokenBudget is the floor for any allocated response budget.
const MinTokenBudget = 250

// TokenBudget is the outcome of dynamic token budgeting for a query.
// Breakdown fields are informational; Allocated is always re-derived
// from them and clamped to [MinTokenBudget, min(Ceiling, ModelContext −
// reserved prompt tokens)].
type TokenBudget struct {
	Allocated       int `json:"allocated"`
	Base            int `json:"base"`
	IntentBoost     int `json:"intent_boost"`
	ComplexityBoost int `json:"complexity_boost"`
	AgentBoost      int `json:"agent_boost"`
	ChunkBoost      int `json:"chunk_boost"`
	DomainBoost     int `json:"domain_boost"`
	Ceiling         int `json:"ceiling"`
	ModelContext    int `json:"model_context"`
	// Reserved is the prompt share of the model context, held back from
	// the allocation upper bound.
	Reserved int      `json:"reserved"`
	Notes    []string `json:"notes,omitempty"`
}

// BudgetSummary is the outward projection of a TokenBudget for the
// UnifiedResponse envelope.
type BudgetSummary struct {
	Allocated    int            `json:"allocated"`
	Base         int            `json:"base"`
	Ceiling      int            `json:"ceiling"`
	ModelContext int            `json:"model_context"`
	Breakdown    map[string]int `json:"breakdown"`
}

// Summary builds the outward projection of the budget.
func (b *TokenBudget) Summary() *BudgetSummary {
	return &BudgetSummary{
		Allocated:    b.Allocated,
		Base:         b.Base,
		Ceiling:      b.Ceiling,
		ModelContext: b.ModelContext,
		Breakdown: map[string]int{
			"intent":     b.IntentBoost,
			"complexity": b.ComplexityBoost,
			"agents":     b.AgentBoost,
			"chunks":     b.ChunkBoost,
			"domain":     b.DomainBoost,
		},
	}
}
