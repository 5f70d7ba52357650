// Package retrieval implements the hybrid search engine: per-backend
// searches, query expansion, rank fusion, and LLM reranking. Backend
// failures degrade the result set instead of failing the search; a
// hybrid search with every backend down returns an empty result.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/amtlich/amtlich/pkg/datastore"
	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/models"
)

const (
	// DefaultTopK is the per-backend result count when the step does not
	// specify one.
	DefaultTopK = 10
	// batchConcurrency bounds parallel queries in a BatchSearch.
	batchConcurrency = 4
)

// Options configure the engine's optional stages.
type Options struct {
	ExpansionEnabled bool
	RerankingEnabled bool
	DefaultStrategy  models.FusionStrategy
	TopK             int
}

// Engine is the retrieval engine. Safe for concurrent use.
type Engine struct {
	facade   *datastore.Facade
	embedder llm.Embedder
	reranker *Reranker
	opts     Options
}

// NewEngine assembles the engine. embedder may be nil (vector search is
// then reported degraded); reranker may be nil (reranking disabled).
func NewEngine(facade *datastore.Facade, embedder llm.Embedder, reranker *Reranker, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if !opts.DefaultStrategy.IsValid() {
		opts.DefaultStrategy = models.FusionRRF
	}
	return &Engine{facade: facade, embedder: embedder, reranker: reranker, opts: opts}
}

// BackendsAvailable reports whether at least one backend is wired.
func (e *Engine) BackendsAvailable() bool {
	return e.facade != nil &&
		(e.facade.HasVector() || e.facade.HasGraph() || e.facade.HasRelational())
}

// VectorSearch embeds the query and searches the vector backend.
func (e *Engine) VectorSearch(ctx context.Context, query string, topK int, filters map[string]string) ([]models.SearchResult, error) {
	if e.embedder == nil {
		return nil, faults.New(faults.KindBackendUnavailable, "no embedding provider configured")
	}
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.facade.VectorSearch(ctx, embedding, e.topK(topK), filters)
}

// GraphSearch searches the graph backend.
func (e *Engine) GraphSearch(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	return e.facade.GraphSearch(ctx, query, e.topK(topK))
}

// KeywordSearch searches the relational full-text backend.
func (e *Engine) KeywordSearch(ctx context.Context, query string, topK int, filters map[string]string) ([]models.SearchResult, error) {
	return e.facade.KeywordSearch(ctx, query, e.topK(topK), filters)
}

// HybridSearch fans the query out to every wired backend, fuses the
// rankings, and optionally reranks. Backend failures contribute an
// empty list and a degraded diagnostic; the search fails only when no
// backend produced results AND none succeeded.
func (e *Engine) HybridSearch(ctx context.Context, query string, weights map[models.Backend]float64, strategy models.FusionStrategy) (*models.HybridResult, error) {
	return e.hybridSearch(ctx, query, weights, strategy, nil)
}

// HybridSearchFiltered is HybridSearch with metadata filters applied to
// the backends that support them.
func (e *Engine) HybridSearchFiltered(ctx context.Context, query string, weights map[models.Backend]float64, strategy models.FusionStrategy, filters map[string]string) (*models.HybridResult, error) {
	return e.hybridSearch(ctx, query, weights, strategy, filters)
}

func (e *Engine) hybridSearch(ctx context.Context, query string, weights map[models.Backend]float64, strategy models.FusionStrategy, filters map[string]string) (*models.HybridResult, error) {
	if !strategy.IsValid() {
		strategy = e.opts.DefaultStrategy
	}

	queries := []string{query}
	if e.opts.ExpansionEnabled {
		queries = ExpandQuery(query, 0)
	}

	type contribution struct {
		backend models.Backend
		results []models.SearchResult
		diag    models.BackendDiagnostics
	}

	searches := []struct {
		backend models.Backend
		wired   bool
		run     func(ctx context.Context, q string) ([]models.SearchResult, error)
	}{
		{models.BackendVector, e.facade.HasVector() && e.embedder != nil, func(ctx context.Context, q string) ([]models.SearchResult, error) {
			return e.VectorSearch(ctx, q, 0, filters)
		}},
		{models.BackendGraph, e.facade.HasGraph(), func(ctx context.Context, q string) ([]models.SearchResult, error) {
			return e.GraphSearch(ctx, q, 0)
		}},
		{models.BackendKeyword, e.facade.HasRelational(), func(ctx context.Context, q string) ([]models.SearchResult, error) {
			return e.KeywordSearch(ctx, q, 0, filters)
		}},
	}

	contributions := make([]contribution, len(searches))
	g, gctx := errgroup.WithContext(ctx)
	for i, search := range searches {
		if !search.wired {
			contributions[i] = contribution{
				backend: search.backend,
				diag:    models.BackendDiagnostics{Status: models.BackendDisabled},
			}
			continue
		}
		g.Go(func() error {
			start := time.Now()
			results, err := e.searchVariants(gctx, search.run, queries)
			diag := models.BackendDiagnostics{
				Status:      models.BackendOK,
				ResultCount: len(results),
				LatencyMS:   time.Since(start).Milliseconds(),
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				diag.Status = models.BackendDegraded
				if faults.KindOf(err) == faults.KindBackendUnavailable {
					diag.Status = models.BackendDown
				}
				diag.Error = faults.Message(err)
				diag.ResultCount = 0
				results = nil
				slog.Warn("Backend search degraded",
					"backend", search.backend, "error_kind", faults.KindOf(err))
			}
			contributions[i] = contribution{backend: search.backend, results: results, diag: diag}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, faults.Wrap(faults.KindCancelled, err, "hybrid search cancelled")
	}

	// All backends absent or down is not an error: the result is simply
	// empty and the caller degrades.
	diagnostics := make(map[models.Backend]models.BackendDiagnostics, len(contributions))
	var lists []backendList
	for _, c := range contributions {
		diagnostics[c.backend] = c.diag
		if len(c.results) > 0 {
			lists = append(lists, backendList{
				backend: c.backend,
				weight:  weightFor(weights, c.backend),
				results: c.results,
			})
		}
	}

	fused := fuse(strategy, lists)
	if e.opts.RerankingEnabled && e.reranker != nil {
		fused = e.reranker.Rerank(ctx, query, fused)
	}

	return &models.HybridResult{
		Results:     fused,
		Strategy:    strategy,
		Diagnostics: diagnostics,
	}, nil
}

// searchVariants runs one backend over all query variants and merges the
// hits, keeping each document's best rank position.
func (e *Engine) searchVariants(ctx context.Context, run func(context.Context, string) ([]models.SearchResult, error), queries []string) ([]models.SearchResult, error) {
	if len(queries) == 1 {
		return run(ctx, queries[0])
	}

	type hit struct {
		doc  models.SearchResult
		rank int
	}
	best := make(map[string]hit)
	var order []string
	var firstErr error
	succeeded := false
	for _, q := range queries {
		results, err := run(ctx, q)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded = true
		for rank, r := range results {
			existing, ok := best[r.ID]
			if !ok {
				best[r.ID] = hit{doc: r, rank: rank}
				order = append(order, r.ID)
			} else if rank < existing.rank {
				best[r.ID] = hit{doc: r, rank: rank}
			}
		}
	}
	if !succeeded {
		return nil, firstErr
	}

	merged := make([]models.SearchResult, 0, len(order))
	for _, id := range order {
		merged = append(merged, best[id].doc)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return best[merged[i].ID].rank < best[merged[j].ID].rank
	})
	return merged, nil
}

// BatchSearch runs hybrid searches for multiple queries with bounded
// concurrency. Cancellation stops unstarted queries; results for
// completed queries are returned positionally, nil for failed ones.
func (e *Engine) BatchSearch(ctx context.Context, queries []string, weights map[models.Backend]float64, strategy models.FusionStrategy) ([]*models.HybridResult, error) {
	results := make([]*models.HybridResult, len(queries))
	sem := semaphore.NewWeighted(batchConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			res, err := e.hybridSearch(gctx, q, weights, strategy, nil)
			if err != nil {
				if faults.KindOf(err) == faults.KindCancelled {
					return err
				}
				slog.Warn("Batch query failed", "index", i, "error_kind", faults.KindOf(err))
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, faults.Wrap(faults.KindCancelled, err, "batch search cancelled")
	}
	if ctx.Err() != nil {
		return results, faults.Wrap(faults.KindCancelled, ctx.Err(), "batch search cancelled")
	}
	return results, nil
}

func (e *Engine) topK(requested int) int {
	if requested > 0 {
		return requested
	}
	return e.opts.TopK
}

// weightFor defaults every backend to weight 1.0.
func weightFor(weights map[models.Backend]float64, backend models.Backend) float64 {
	if w, ok := weights[backend]; ok && w > 0 {
		return w
	}
	return 1.0
}
