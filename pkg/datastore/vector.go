package datastore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/amtlich/amtlich/pkg/models"
)

// qdrantBackend implements VectorBackend against Qdrant over gRPC.
type qdrantBackend struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
}

// NewQdrantBackend dials Qdrant using environment credentials. The
// connection is lazy; the first call (or Health) surfaces dial failures.
func NewQdrantBackend() (VectorBackend, error) {
	cfg := loadQdrantConfig()
	conn, err := grpc.NewClient(
		fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing vector backend: %w", err)
	}
	return &qdrantBackend{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		collection:  cfg.Collection,
	}, nil
}

func (q *qdrantBackend) Search(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]models.SearchResult, error) {
	req := &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if f := buildPayloadFilter(filters); f != nil {
		req.Filter = f
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]models.SearchResult, 0, len(resp.Result))
	for _, point := range resp.Result {
		results = append(results, scoredPointToResult(point))
	}
	return results, nil
}

// buildPayloadFilter translates the engine's string filters into Qdrant
// field match conditions.
func buildPayloadFilter(filters map[string]string) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: must}
}

func scoredPointToResult(point *qdrant.ScoredPoint) models.SearchResult {
	payload := point.GetPayload()
	result := models.SearchResult{
		Content:       payload["content"].GetStringValue(),
		Score:         float64(point.GetScore()),
		RawScore:      float64(point.GetScore()),
		SourceBackend: models.BackendVector,
		Metadata: models.DocumentMetadata{
			Source:    payload["source"].GetStringValue(),
			Type:      payload["type"].GetStringValue(),
			Title:     payload["title"].GetStringValue(),
			Authority: payload["authority"].GetStringValue(),
			Locator:   payload["locator"].GetStringValue(),
			Year:      int(payload["year"].GetIntegerValue()),
		},
	}
	if id := payload["doc_id"].GetStringValue(); id != "" {
		result.ID = id
	} else if pid := point.GetId(); pid != nil {
		switch v := pid.PointIdOptions.(type) {
		case *qdrant.PointId_Uuid:
			result.ID = v.Uuid
		case *qdrant.PointId_Num:
			result.ID = fmt.Sprintf("%d", v.Num)
		}
	}
	return result
}

func (q *qdrantBackend) Health(ctx context.Context) error {
	_, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	return err
}

func (q *qdrantBackend) Close() error {
	return q.conn.Close()
}
