package models

import "time"

// ResponseMetadata is the diagnostic block of a UnifiedResponse.
type ResponseMetadata struct {
	Model          string      `json:"model"`
	Mode           string      `json:"mode,omitempty"`
	DurationMS     int64       `json:"duration_ms"`
	TokensUsed     int         `json:"tokens_used"`
	SourcesCount   int         `json:"sources_count"`
	Complexity     int         `json:"complexity"`
	Domain         string      `json:"domain,omitempty"`
	AgentsInvolved []string    `json:"agents_involved,omitempty"`
	SearchMethod   string      `json:"search_method,omitempty"`
	QualityScore   float64     `json:"quality_score"`
	Confidence     string      `json:"confidence,omitempty"`
	Hypothesis     *Hypothesis `json:"hypothesis,omitempty"`
}

// UnifiedResponse is the standard outward response envelope. Content may
// contain citation tokens like [1]; every cited id must exist in Sources.
type UnifiedResponse struct {
	Content     string           `json:"content"`
	Sources     []Citation       `json:"sources"`
	Metadata    ResponseMetadata `json:"metadata"`
	SessionID   string           `json:"session_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	TokenBudget *BudgetSummary   `json:"token_budget,omitempty"`
}
