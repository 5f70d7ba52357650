package agents

import (
	"context"
	"fmt"

	"github.com/amtlich/amtlich/pkg/models"
)

// Searcher is the narrow retrieval contract built-in agents use.
// Satisfied by *retrieval.Engine.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, weights map[models.Backend]float64, strategy models.FusionStrategy) (*models.HybridResult, error)
	BackendsAvailable() bool
}

// domainAgent binds a fixed search scope to the generic retrieval path.
type domainAgent struct {
	id       string
	scope    string // query prefix narrowing retrieval to the agent's domain
	searcher Searcher
}

func (a *domainAgent) execute(ctx context.Context, step *models.ProcessStep) (*models.StepResult, error) {
	// Degrade gracefully when no backend can serve the agent: a stub
	// result with is_degraded and no citations, never an error.
	if !a.searcher.BackendsAvailable() {
		return &models.StepResult{
			Summary:  fmt.Sprintf("Fachagent %s: keine Datenquelle verfügbar, Ergebnis übersprungen", a.id),
			Degraded: true,
		}, nil
	}

	query := step.Inputs.Query
	if a.scope != "" {
		query = a.scope + " " + query
	}
	result, err := a.searcher.HybridSearch(ctx, query, step.Inputs.Weights, step.Inputs.Strategy)
	if err != nil {
		return nil, err
	}
	return &models.StepResult{
		Summary:   fmt.Sprintf("Fachagent %s: %d Dokumente gefunden", a.id, len(result.Results)),
		Documents: result.Results,
	}, nil
}

// BuiltinDescriptors returns the default German administrative-law
// agent catalogue wired to the given searcher.
func BuiltinDescriptors(searcher Searcher) []*Descriptor {
	mk := func(id, name, domain, scope string, caps []string) *Descriptor {
		a := &domainAgent{id: id, scope: scope, searcher: searcher}
		return &Descriptor{
			ID:           id,
			Name:         name,
			Domain:       domain,
			Capabilities: caps,
			RequiresDB:   true,
			Execute:      a.execute,
		}
	}

	return []*Descriptor{
		mk("building-permits", "Baugenehmigungen", "baurecht",
			"Baugenehmigung Bauantrag",
			[]string{"building_law", "permits", "zoning"}),
		mk("environmental", "Umweltrecht", "umweltrecht",
			"Umweltrecht Immissionsschutz",
			[]string{"emissions", "environmental_law", "nature_protection"}),
		mk("business-registration", "Gewerbeanmeldung", "gewerberecht",
			"Gewerbeanmeldung Gewerbeschein",
			[]string{"business_law", "registration", "trade"}),
		mk("traffic", "Verkehrsrecht", "verkehrsrecht",
			"Verkehrsrecht Zulassung Führerschein",
			[]string{"licensing", "traffic_law", "vehicles"}),
		mk("social-benefits", "Sozialleistungen", "sozialrecht",
			"Sozialleistungen Antrag",
			[]string{"benefits", "family_support", "social_law"}),
	}
}
