package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amtlich/amtlich/pkg/models"
)

func results(pairs ...any) []models.SearchResult {
	out := make([]models.SearchResult, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, models.SearchResult{
			ID:    pairs[i].(string),
			Score: pairs[i+1].(float64),
		})
	}
	return out
}

func ids(rs []models.SearchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestFuse(t *testing.T) {
	t.Run("rrf preserves the order of a single list", func(t *testing.T) {
		list := backendList{
			backend: models.BackendVector,
			weight:  1.0,
			results: results("a", 0.9, "b", 0.7, "c", 0.2),
		}
		fused := fuse(models.FusionRRF, []backendList{list})
		assert.Equal(t, []string{"a", "b", "c"}, ids(fused))
	})

	t.Run("rrf favours documents ranked well by several backends", func(t *testing.T) {
		lists := []backendList{
			{backend: models.BackendVector, weight: 1.0, results: results("a", 0.9, "shared", 0.8)},
			{backend: models.BackendGraph, weight: 1.0, results: results("b", 0.9, "shared", 0.8)},
			{backend: models.BackendKeyword, weight: 1.0, results: results("c", 0.9, "shared", 0.8)},
		}
		fused := fuse(models.FusionRRF, lists)
		require.NotEmpty(t, fused)
		assert.Equal(t, "shared", fused[0].ID,
			"three second-place votes beat one first-place vote")
	})

	t.Run("duplicates keep the best scoring occurrence", func(t *testing.T) {
		lists := []backendList{
			{backend: models.BackendVector, weight: 1.0, results: []models.SearchResult{
				{ID: "a", Score: 0.5, Content: "vector copy"},
			}},
			{backend: models.BackendGraph, weight: 1.0, results: []models.SearchResult{
				{ID: "a", Score: 0.9, Content: "graph copy"},
			}},
		}
		fused := fuse(models.FusionRRF, lists)
		require.Len(t, fused, 1)
		assert.Equal(t, "graph copy", fused[0].Content)
	})

	t.Run("weighted sum respects backend weights", func(t *testing.T) {
		lists := []backendList{
			{backend: models.BackendVector, weight: 2.0, results: results("vec", 1.0, "vlow", 0.0)},
			{backend: models.BackendGraph, weight: 0.5, results: results("gra", 1.0, "glow", 0.0)},
		}
		fused := fuse(models.FusionWeightedSum, lists)
		require.Len(t, fused, 4)
		assert.Equal(t, "vec", fused[0].ID)
		assert.Equal(t, "gra", fused[1].ID)
	})

	t.Run("weighted sum treats a constant score list as full relevance", func(t *testing.T) {
		lists := []backendList{
			{backend: models.BackendGraph, weight: 1.0, results: results("a", 0.4, "b", 0.4)},
		}
		fused := fuse(models.FusionWeightedSum, lists)
		require.Len(t, fused, 2)
		assert.InDelta(t, 1.0, fused[0].Score, 1e-9)
		assert.InDelta(t, 1.0, fused[1].Score, 1e-9)
	})

	t.Run("borda count awards points by position", func(t *testing.T) {
		lists := []backendList{
			{backend: models.BackendVector, weight: 1.0, results: results("a", 0.9, "b", 0.8, "c", 0.1)},
			{backend: models.BackendGraph, weight: 1.0, results: results("b", 0.7, "a", 0.6)},
		}
		fused := fuse(models.FusionBordaCount, lists)
		require.Len(t, fused, 3)
		// a: 3 + 1 = 4, b: 2 + 2 = 4, tie breaks by best raw score (a 0.9).
		assert.Equal(t, []string{"a", "b", "c"}, ids(fused))
	})

	t.Run("fused scores stay within the unit interval", func(t *testing.T) {
		lists := []backendList{
			{backend: models.BackendVector, weight: 1.0, results: results("a", 0.95, "b", 0.60, "c", 0.10)},
			{backend: models.BackendGraph, weight: 0.75, results: results("a", 12.0, "d", 4.0)},
			{backend: models.BackendKeyword, weight: 0.5, results: results("a", 3.1, "b", 2.2, "e", 0.4)},
		}
		for _, strategy := range []models.FusionStrategy{
			models.FusionRRF, models.FusionWeightedSum, models.FusionBordaCount,
		} {
			fused := fuse(strategy, lists)
			require.NotEmpty(t, fused)
			for _, r := range fused {
				assert.GreaterOrEqual(t, r.Score, 0.0, "%s fused score for %s", strategy, r.ID)
				assert.LessOrEqual(t, r.Score, 1.0, "%s fused score for %s", strategy, r.ID)
			}
		}
	})

	t.Run("a document leading every backend fuses to full score", func(t *testing.T) {
		lists := []backendList{
			{backend: models.BackendVector, weight: 2.0, results: results("a", 1.0, "x", 0.0)},
			{backend: models.BackendGraph, weight: 0.5, results: results("a", 5.0, "y", 1.0)},
		}
		for _, strategy := range []models.FusionStrategy{
			models.FusionRRF, models.FusionWeightedSum, models.FusionBordaCount,
		} {
			fused := fuse(strategy, lists)
			require.NotEmpty(t, fused)
			assert.Equal(t, "a", fused[0].ID)
			assert.InDelta(t, 1.0, fused[0].Score, 1e-9, "%s top score", strategy)
		}
	})

	t.Run("ties break deterministically by id", func(t *testing.T) {
		lists := []backendList{
			{backend: models.BackendVector, weight: 1.0, results: results("zz", 0.5)},
			{backend: models.BackendGraph, weight: 1.0, results: results("aa", 0.5)},
		}
		for range 10 {
			fused := fuse(models.FusionRRF, lists)
			assert.Equal(t, []string{"aa", "zz"}, ids(fused))
		}
	})

	t.Run("empty input fuses to an empty list", func(t *testing.T) {
		assert.Empty(t, fuse(models.FusionRRF, nil))
		assert.Empty(t, fuse(models.FusionWeightedSum, []backendList{{backend: models.BackendVector}}))
	})
}
