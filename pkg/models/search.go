package models

// Backend identifies a search backend family.
type Backend string

const (
	BackendVector  Backend = "vector"
	BackendGraph   Backend = "graph"
	BackendKeyword Backend = "keyword"
)

// BackendStatus is the health state of a backend as seen by the engine.
type BackendStatus string

const (
	BackendOK       BackendStatus = "ok"
	BackendDegraded BackendStatus = "degraded"
	BackendDown     BackendStatus = "down"
	BackendDisabled BackendStatus = "disabled"
)

// FusionStrategy selects how per-backend rankings are combined.
type FusionStrategy string

const (
	FusionRRF         FusionStrategy = "reciprocal_rank_fusion"
	FusionWeightedSum FusionStrategy = "weighted_sum"
	FusionBordaCount  FusionStrategy = "borda_count"
)

// IsValid checks if the fusion strategy is a known label.
func (f FusionStrategy) IsValid() bool {
	return f == FusionRRF || f == FusionWeightedSum || f == FusionBordaCount
}

// DocumentMetadata carries the descriptive fields of a retrieved document.
type DocumentMetadata struct {
	Source    string `json:"source,omitempty"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Year      int    `json:"year,omitempty"`
	Authority string `json:"authority,omitempty"`
	Locator   string `json:"locator,omitempty"`
}

// RelatedDoc is a 1-hop graph neighbour of a result document.
type RelatedDoc struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Relation string `json:"relation,omitempty"`
}

// SearchResult is a single retrieved document. Score is normalised to
// [0,1] for fusion; RawScore preserves the backend's native scale
// (cosine similarity, ts_rank, graph match weight). Results are never
// mutated after fusion.
type SearchResult struct {
	ID            string           `json:"id"`
	Content       string           `json:"content"`
	Metadata      DocumentMetadata `json:"metadata"`
	Score         float64          `json:"score"`
	RawScore      float64          `json:"raw_score"`
	SourceBackend Backend          `json:"source_backend"`
	Related       []RelatedDoc     `json:"related_docs,omitempty"`
}

// BackendDiagnostics reports one backend's contribution to a hybrid search.
type BackendDiagnostics struct {
	Status      BackendStatus `json:"status"`
	ResultCount int           `json:"result_count"`
	LatencyMS   int64         `json:"latency_ms"`
	Error       string        `json:"error,omitempty"`
}

// HybridResult is the fused outcome of a multi-backend search. Results
// are deduplicated by document id; ranking ties break by original
// backend score, then id.
type HybridResult struct {
	Results     []SearchResult                 `json:"results"`
	Strategy    FusionStrategy                 `json:"strategy"`
	Diagnostics map[Backend]BackendDiagnostics `json:"diagnostics"`
}
