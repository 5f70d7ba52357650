package api

import "github.com/amtlich/amtlich/pkg/agents"

// SubmittedResponse acknowledges an async query submission.
type SubmittedResponse struct {
	TreeID  string `json:"tree_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AgentListResponse is the registry projection for GET /api/v1/agents.
type AgentListResponse struct {
	Agents     []agents.Health `json:"agents"`
	TotalCount int             `json:"total_count"`
	ByDomain   map[string]int  `json:"by_domain"`
}

// HealthCheck is one component's health entry.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}
