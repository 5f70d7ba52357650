// Package models defines the core data model shared across the engine:
// queries, hypotheses, process trees, search results, citations, and the
// outward response envelope. Types here are plain data; all behaviour
// beyond validation lives in the owning subsystem packages.
package models

import "time"

// Query is the immutable record created by ingress for a single question.
type Query struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	SessionID  string       `json:"session_id,omitempty"`
	Options    QueryOptions `json:"options"`
	ReceivedAt time.Time    `json:"received_at"`
}

// QueryOptions carries per-query overrides from the caller. Zero values
// mean "use configured defaults".
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

// RAGEnabled resolves the enable_rag option against a default.
func (o QueryOptions) RAGEnabled(def bool) bool {
	if o.EnableRAG != nil {
		return *o.EnableRAG
	}
	return def
}

// AgentsEnabled resolves the enable_agents option against a default.
func (o QueryOptions) AgentsEnabled(def bool) bool {
	if o.EnableAgents != nil {
		return *o.EnableAgents
	}
	return def
}

// ExpansionEnabled resolves the enable_expansion option against a default.
func (o QueryOptions) ExpansionEnabled(def bool) bool {
	if o.EnableExpansion != nil {
		return *o.EnableExpansion
	}
	return def
}

// RerankingEnabled resolves the enable_reranking option against a default.
func (o QueryOptions) RerankingEnabled(def bool) bool {
	if o.EnableReranking != nil {
		return *o.EnableReranking
	}
	return def
}
