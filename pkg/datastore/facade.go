// Package datastore is the polyglot data facade: narrow contracts for
// the vector, graph, and relational backends plus the guard that wraps
// every call with timeout, retry, and a circuit breaker. Credentials
// are sourced from the environment inside this package and never flow
// through application code.
package datastore

import (
	"context"

	"github.com/amtlich/amtlich/pkg/models"
)

// VectorBackend is the dense-vector search contract.
type VectorBackend interface {
	Search(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]models.SearchResult, error)
	Health(ctx context.Context) error
	Close() error
}

// GraphBackend is the graph search contract: case-insensitive substring
// match over document content and name, with optional 1-hop neighbours.
type GraphBackend interface {
	Search(ctx context.Context, queryText string, topK int) ([]models.SearchResult, error)
	Health(ctx context.Context) error
	Close() error
}

// RelationalBackend is the keyword (full-text) search contract.
type RelationalBackend interface {
	Search(ctx context.Context, queryText string, topK int, filters map[string]string) ([]models.SearchResult, error)
	Health(ctx context.Context) error
	Close() error
}

// Facade bundles the guarded backends. A nil backend means the path is
// disabled or failed to connect; the retrieval engine treats both the
// same as a degraded backend.
type Facade struct {
	vector     VectorBackend
	graph      GraphBackend
	relational RelationalBackend

	vectorGuard     *Guard
	graphGuard      *Guard
	relationalGuard *Guard
}

// NewFacade wraps the given backends with guards. Any backend may be nil.
func NewFacade(vector VectorBackend, graph GraphBackend, relational RelationalBackend) *Facade {
	return &Facade{
		vector:          vector,
		graph:           graph,
		relational:      relational,
		vectorGuard:     NewGuard(string(models.BackendVector)),
		graphGuard:      NewGuard(string(models.BackendGraph)),
		relationalGuard: NewGuard(string(models.BackendKeyword)),
	}
}

// HasVector reports whether the vector path is wired.
func (f *Facade) HasVector() bool { return f.vector != nil }

// HasGraph reports whether the graph path is wired.
func (f *Facade) HasGraph() bool { return f.graph != nil }

// HasRelational reports whether the relational path is wired.
func (f *Facade) HasRelational() bool { return f.relational != nil }

// VectorSearch runs a guarded dense-vector search.
func (f *Facade) VectorSearch(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]models.SearchResult, error) {
	if f.vector == nil {
		return nil, errBackendAbsent(models.BackendVector)
	}
	return f.vectorGuard.Search(ctx, func(ctx context.Context) ([]models.SearchResult, error) {
		return f.vector.Search(ctx, embedding, topK, filters)
	})
}

// GraphSearch runs a guarded graph search.
func (f *Facade) GraphSearch(ctx context.Context, queryText string, topK int) ([]models.SearchResult, error) {
	if f.graph == nil {
		return nil, errBackendAbsent(models.BackendGraph)
	}
	return f.graphGuard.Search(ctx, func(ctx context.Context) ([]models.SearchResult, error) {
		return f.graph.Search(ctx, queryText, topK)
	})
}

// KeywordSearch runs a guarded full-text search.
func (f *Facade) KeywordSearch(ctx context.Context, queryText string, topK int, filters map[string]string) ([]models.SearchResult, error) {
	if f.relational == nil {
		return nil, errBackendAbsent(models.BackendKeyword)
	}
	return f.relationalGuard.Search(ctx, func(ctx context.Context) ([]models.SearchResult, error) {
		return f.relational.Search(ctx, queryText, topK, filters)
	})
}

// HealthStatus is one backend's health projection. Host details stay
// internal; only status and a sanitised message are exposed.
type HealthStatus struct {
	Status  models.BackendStatus `json:"status"`
	Details string               `json:"details,omitempty"`
}

// Health probes every wired backend. Absent backends report disabled.
func (f *Facade) Health(ctx context.Context) map[models.Backend]HealthStatus {
	out := make(map[models.Backend]HealthStatus, 3)
	probe := func(name models.Backend, health func(context.Context) error, wired bool, guard *Guard) {
		switch {
		case !wired:
			out[name] = HealthStatus{Status: models.BackendDisabled}
		case guard.Open():
			out[name] = HealthStatus{Status: models.BackendDown, Details: "circuit open"}
		default:
			if err := health(ctx); err != nil {
				out[name] = HealthStatus{Status: models.BackendDown, Details: "health check failed"}
			} else {
				out[name] = HealthStatus{Status: models.BackendOK}
			}
		}
	}

	probe(models.BackendVector, func(ctx context.Context) error {
		return f.vector.Health(ctx)
	}, f.vector != nil, f.vectorGuard)
	probe(models.BackendGraph, func(ctx context.Context) error {
		return f.graph.Health(ctx)
	}, f.graph != nil, f.graphGuard)
	probe(models.BackendKeyword, func(ctx context.Context) error {
		return f.relational.Health(ctx)
	}, f.relational != nil, f.relationalGuard)
	return out
}

// Close releases all backend connections.
func (f *Facade) Close() error {
	var first error
	if f.vector != nil {
		if err := f.vector.Close(); err != nil && first == nil {
			first = err
		}
	}
	if f.graph != nil {
		if err := f.graph.Close(); err != nil && first == nil {
			first = err
		}
	}
	if f.relational != nil {
		if err := f.relational.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
