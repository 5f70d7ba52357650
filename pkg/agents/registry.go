// Package agents provides the in-process catalogue of capability
// providers. The registry is populated at startup and immutable
// thereafter; lookups need no locking.
package agents

import (
	"context"
	"sort"

	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/models"
)

// ExecuteFunc is the invocation handle of an agent: it receives the
// step (immutable input) and returns an immutable result.
type ExecuteFunc func(ctx context.Context, step *models.ProcessStep) (*models.StepResult, error)

// Descriptor describes one registered agent.
type Descriptor struct {
	ID           string
	Name         string
	Domain       string
	Capabilities []string // kept sorted
	RequiresDB   bool
	RequiresAPI  bool
	Timeout      int // default timeout in seconds (0 = plan default)
	Execute      ExecuteFunc
}

// Health is the registry projection for one agent.
type Health struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Domain       string   `json:"domain"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
	RequiresDB   bool     `json:"requires_db"`
	RequiresAPI  bool     `json:"requires_api"`
}

// Registry is the immutable agent catalogue.
type Registry struct {
	byID         map[string]*Descriptor
	byCapability map[string][]*Descriptor
	ids          []string
}

// NewRegistry builds a registry from descriptors. Duplicate ids keep
// the first registration; capabilities are sorted per descriptor.
func NewRegistry(descriptors ...*Descriptor) *Registry {
	r := &Registry{
		byID:         make(map[string]*Descriptor, len(descriptors)),
		byCapability: make(map[string][]*Descriptor),
	}
	for _, d := range descriptors {
		if _, exists := r.byID[d.ID]; exists {
			continue
		}
		sort.Strings(d.Capabilities)
		r.byID[d.ID] = d
		r.ids = append(r.ids, d.ID)
		for _, cap := range d.Capabilities {
			r.byCapability[cap] = append(r.byCapability[cap], d)
		}
	}
	sort.Strings(r.ids)
	return r
}

// Lookup returns the agent with the given id.
func (r *Registry) Lookup(id string) (*Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, faults.New(faults.KindAgentNotFound, "agent %q is not registered", id)
	}
	return d, nil
}

// ByCapability returns all agents advertising a capability tag.
// Unknown capabilities return the empty set.
func (r *Registry) ByCapability(tag string) []*Descriptor {
	return r.byCapability[tag]
}

// Len returns the number of registered agents.
func (r *Registry) Len() int { return len(r.byID) }

// List returns all descriptors in id order.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// HealthReport projects every agent for the listing endpoint. Agents
// whose required backend is unavailable report degraded, not down:
// they still execute, returning stub results.
func (r *Registry) HealthReport(dbAvailable, apiAvailable bool) []Health {
	out := make([]Health, 0, len(r.ids))
	for _, id := range r.ids {
		d := r.byID[id]
		status := "ok"
		if (d.RequiresDB && !dbAvailable) || (d.RequiresAPI && !apiAvailable) {
			status = "degraded"
		}
		out = append(out, Health{
			ID:           d.ID,
			Name:         d.Name,
			Domain:       d.Domain,
			Status:       status,
			Capabilities: d.Capabilities,
			RequiresDB:   d.RequiresDB,
			RequiresAPI:  d.RequiresAPI,
		})
	}
	return out
}

// CountByDomain groups agents by domain for the listing endpoint.
func (r *Registry) CountByDomain() map[string]int {
	counts := make(map[string]int)
	for _, d := range r.byID {
		counts[d.Domain]++
	}
	return counts
}
