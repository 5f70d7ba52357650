package retrieval

import (
	"sort"

	"github.com/amtlich/amtlich/pkg/models"
)

// rrfK dampens the rank contribution in reciprocal rank fusion. 60 is
// the value from the original RRF paper and works well unmodified.
const rrfK = 60.0

// backendList is one backend's ranked contribution to a fusion.
type backendList struct {
	backend models.Backend
	weight  float64
	results []models.SearchResult
}

// fuse merges per-backend rankings into a single deduplicated list.
// Documents are deduplicated by id; each document keeps the content and
// metadata of its best-scoring occurrence. Ties in the fused score break
// by best original backend score, then id, so ordering is deterministic.
// Fused scores are scaled by the maximum attainable contribution, so a
// document every backend ranks first scores 1.0 and all scores stay in
// [0, 1] regardless of weights.
func fuse(strategy models.FusionStrategy, lists []backendList) []models.SearchResult {
	switch strategy {
	case models.FusionWeightedSum:
		return fuseWeightedSum(lists)
	case models.FusionBordaCount:
		return fuseBorda(lists)
	default:
		return fuseRRF(lists)
	}
}

type fusedDoc struct {
	doc       models.SearchResult
	fused     float64
	bestScore float64
}

// accumulate folds one occurrence of a document into the fusion table.
func accumulate(table map[string]*fusedDoc, r models.SearchResult, contribution float64) {
	entry, ok := table[r.ID]
	if !ok {
		table[r.ID] = &fusedDoc{doc: r, fused: contribution, bestScore: r.Score}
		return
	}
	entry.fused += contribution
	if r.Score > entry.bestScore {
		entry.bestScore = r.Score
		entry.doc = r
	}
}

// fuseRRF implements reciprocal rank fusion: each occurrence contributes
// weight / (k + rank). Scores from the backends are ignored; only rank
// positions matter, which makes RRF robust to incomparable score scales.
func fuseRRF(lists []backendList) []models.SearchResult {
	table := make(map[string]*fusedDoc)
	var total float64
	for _, list := range lists {
		if len(list.results) == 0 {
			continue
		}
		total += list.weight / (rrfK + 1)
		for rank, r := range list.results {
			accumulate(table, r, list.weight/(rrfK+float64(rank+1)))
		}
	}
	return rank(table, total)
}

// fuseWeightedSum normalises each backend's scores to [0,1] by min-max
// and sums the weighted normalised scores per document. A backend whose
// scores are all equal contributes 1.0 for each of its documents.
func fuseWeightedSum(lists []backendList) []models.SearchResult {
	table := make(map[string]*fusedDoc)
	var total float64
	for _, list := range lists {
		if len(list.results) == 0 {
			continue
		}
		total += list.weight
		lo, hi := scoreRange(list.results)
		for _, r := range list.results {
			normalised := 1.0
			if hi > lo {
				normalised = (r.Score - lo) / (hi - lo)
			}
			accumulate(table, r, list.weight*normalised)
		}
	}
	return rank(table, total)
}

// fuseBorda implements Borda count: a document at rank i in a list of
// n receives weight * (n - i) points.
func fuseBorda(lists []backendList) []models.SearchResult {
	table := make(map[string]*fusedDoc)
	var total float64
	for _, list := range lists {
		n := len(list.results)
		total += list.weight * float64(n)
		for rank, r := range list.results {
			accumulate(table, r, list.weight*float64(n-rank))
		}
	}
	return rank(table, total)
}

func scoreRange(results []models.SearchResult) (lo, hi float64) {
	if len(results) == 0 {
		return 0, 0
	}
	lo, hi = results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}
	return lo, hi
}

// rank orders the fusion table: fused score desc, then best original
// backend score desc, then id asc. The fused score, divided by the
// maximum attainable contribution, is stored on the result; the
// per-backend score survives in RawScore.
func rank(table map[string]*fusedDoc, maxContribution float64) []models.SearchResult {
	entries := make([]*fusedDoc, 0, len(table))
	for _, e := range table {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.fused != b.fused {
			return a.fused > b.fused
		}
		if a.bestScore != b.bestScore {
			return a.bestScore > b.bestScore
		}
		return a.doc.ID < b.doc.ID
	})

	out := make([]models.SearchResult, 0, len(entries))
	for _, e := range entries {
		doc := e.doc
		doc.Score = e.fused
		if maxContribution > 0 {
			doc.Score = e.fused / maxContribution
		}
		out = append(out, doc)
	}
	return out
}
