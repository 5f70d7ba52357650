package api

import "github.com/amtlich/amtlich/pkg/models"

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Query     string        `json:"query"`
	SessionID string        `json:"session_id,omitempty"`
	Mode      string        `json:"mode,omitempty"` // "sync" (default) or "async"
	Options   *QueryOptions `json:"options,omitempty"`
}

// QueryOptions mirrors the per-query overrides of the request body.
type QueryOptions struct {
	Model           string `json:"model,omitempty"`
	MaxTokens       int    `json:"max_tokens,omitempty"`
	EnableRAG       *bool  `json:"enable_rag,omitempty"`
	EnableAgents    *bool  `json:"enable_agents,omitempty"`
	EnableExpansion *bool  `json:"enable_expansion,omitempty"`
	EnableReranking *bool  `json:"enable_reranking,omitempty"`
	MaxParallel     int    `json:"max_parallel,omitempty"`
	TimeoutMS       int    `json:"timeout_ms,omitempty"`
}

func (r *QueryRequest) modelOptions() models.QueryOptions {
	if r.Options == nil {
		return models.QueryOptions{}
	}
	return models.QueryOptions{
		Model:           r.Options.Model,
		MaxTokens:       r.Options.MaxTokens,
		EnableRAG:       r.Options.EnableRAG,
		EnableAgents:    r.Options.EnableAgents,
		EnableExpansion: r.Options.EnableExpansion,
		EnableReranking: r.Options.EnableReranking,
		MaxParallel:     r.Options.MaxParallel,
		TimeoutMS:       r.Options.TimeoutMS,
	}
}
