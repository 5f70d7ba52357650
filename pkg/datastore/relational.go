package datastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amtlich/amtlich/pkg/models"
)

// pgBackend implements RelationalBackend with PostgreSQL full-text
// search over the German dictionary.
type pgBackend struct {
	pool *pgxpool.Pool
}

const keywordSearchSQL = `
SELECT doc_id, content, source, doc_type, title, authority, locator, year,
       ts_rank(search_vector, websearch_to_tsquery('german', $1)) AS rank
FROM documents
WHERE search_vector @@ websearch_to_tsquery('german', $1)`

// NewPostgresBackend creates the keyword backend from environment
// credentials. The pool connects lazily; Ping surfaces failures.
func NewPostgresBackend(ctx context.Context) (RelationalBackend, error) {
	cfg := loadPostgresConfig()
	pool, err := pgxpool.New(ctx, cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("creating relational pool: %w", err)
	}
	return &pgBackend{pool: pool}, nil
}

func (p *pgBackend) Search(ctx context.Context, queryText string, topK int, filters map[string]string) ([]models.SearchResult, error) {
	query, args := buildKeywordQuery(queryText, topK, filters)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	var maxRank float64
	for rows.Next() {
		var r models.SearchResult
		var rank float64
		var year *int
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata.Source, &r.Metadata.Type,
			&r.Metadata.Title, &r.Metadata.Authority, &r.Metadata.Locator, &year, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword result: %w", err)
		}
		if year != nil {
			r.Metadata.Year = *year
		}
		r.RawScore = rank
		r.SourceBackend = models.BackendKeyword
		if rank > maxRank {
			maxRank = rank
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	// ts_rank is unbounded; scale by the best hit so fusion sees [0,1].
	for i := range results {
		if maxRank > 0 {
			results[i].Score = results[i].RawScore / maxRank
		}
	}
	return results, nil
}

// buildKeywordQuery appends metadata filter predicates and the ordering
// clause. Filter keys are restricted to known columns; unknown keys are
// ignored rather than interpolated.
func buildKeywordQuery(queryText string, topK int, filters map[string]string) (string, []any) {
	allowed := map[string]string{
		"type":      "doc_type",
		"authority": "authority",
		"source":    "source",
	}

	var sb strings.Builder
	sb.WriteString(keywordSearchSQL)
	args := []any{queryText}
	for key, value := range filters {
		column, ok := allowed[key]
		if !ok {
			continue
		}
		args = append(args, value)
		fmt.Fprintf(&sb, " AND %s = $%d", column, len(args))
	}
	args = append(args, topK)
	fmt.Fprintf(&sb, " ORDER BY rank DESC LIMIT $%d", len(args))
	return sb.String(), args
}

func (p *pgBackend) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *pgBackend) Close() error {
	p.pool.Close()
	return nil
}
