package datastore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/amtlich/amtlich/pkg/models"
)

// neo4jBackend implements GraphBackend against Neo4j. Search is a
// case-insensitive substring match over document content and name, with
// 1-hop neighbours attached per hit.
type neo4jBackend struct {
	driver neo4j.DriverWithContext
}

const graphSearchCypher = `
MATCH (d:Document)
WHERE toLower(d.content) CONTAINS toLower($query)
   OR toLower(d.name) CONTAINS toLower($query)
OPTIONAL MATCH (d)-[r]-(related:Document)
WITH d, collect(DISTINCT {id: related.id, name: related.name, relation: type(r)})[..5] AS neighbours
RETURN d.id AS id, d.name AS name, d.content AS content,
       d.source AS source, d.type AS type, d.authority AS authority,
       d.locator AS locator, d.year AS year, neighbours
LIMIT $limit`

// NewNeo4jBackend creates the graph backend from environment credentials.
func NewNeo4jBackend() (GraphBackend, error) {
	cfg := loadNeo4jConfig()
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating graph driver: %w", err)
	}
	return &neo4jBackend{driver: driver}, nil
}

func (n *neo4jBackend) Search(ctx context.Context, queryText string, topK int) ([]models.SearchResult, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, graphSearchCypher, map[string]any{
			"query": queryText,
			"limit": topK,
		})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("graph search: %w", err)
	}

	results := make([]models.SearchResult, 0, len(records))
	for rank, record := range records {
		results = append(results, recordToResult(record, rank, len(records)))
	}
	return results, nil
}

// recordToResult maps a Cypher row to a SearchResult. The graph backend
// has no native relevance score, so rank position is converted to a
// descending score in (0,1].
func recordToResult(record *neo4j.Record, rank, total int) models.SearchResult {
	str := func(key string) string {
		v, _ := record.Get(key)
		s, _ := v.(string)
		return s
	}
	score := 1.0 - float64(rank)/float64(total)

	result := models.SearchResult{
		ID:            str("id"),
		Content:       str("content"),
		Score:         score,
		RawScore:      score,
		SourceBackend: models.BackendGraph,
		Metadata: models.DocumentMetadata{
			Source:    str("source"),
			Type:      str("type"),
			Title:     str("name"),
			Authority: str("authority"),
			Locator:   str("locator"),
		},
	}
	if y, ok := record.Get("year"); ok {
		if year, ok := y.(int64); ok {
			result.Metadata.Year = int(year)
		}
	}

	if raw, ok := record.Get("neighbours"); ok {
		if neighbours, ok := raw.([]any); ok {
			for _, item := range neighbours {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				id, _ := m["id"].(string)
				if id == "" {
					continue
				}
				name, _ := m["name"].(string)
				relation, _ := m["relation"].(string)
				result.Related = append(result.Related, models.RelatedDoc{
					ID: id, Name: name, Relation: relation,
				})
			}
		}
	}
	return result
}

func (n *neo4jBackend) Health(ctx context.Context) error {
	return n.driver.VerifyConnectivity(ctx)
}

func (n *neo4jBackend) Close() error {
	return n.driver.Close(context.Background())
}
