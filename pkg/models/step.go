package models

import (
	"fmt"
	"time"
)

// StepType is the dispatch discriminator for process steps.
type StepType string

const (
	StepNLP       StepType = "nlp"
	StepSearch    StepType = "search"
	StepRetrieval StepType = "retrieval"
	StepAgent     StepType = "agent"
	StepLLM       StepType = "llm"
	StepQuality   StepType = "quality"
	StepAggregate StepType = "aggregate"
)

// IsValid checks if the step type is a known label.
func (t StepType) IsValid() bool {
	switch t {
	case StepNLP, StepSearch, StepRetrieval, StepAgent, StepLLM,
		StepQuality, StepAggregate:
		return true
	default:
		return false
	}
}

// StepStatus is a process step's lifecycle state. Steps transition
// through states at most once (pending → ready → running → terminal).
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepReady     StepStatus = "ready"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether the status is a terminal state.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepCancelled || s == StepSkipped
}

// FailurePolicy decides how a step failure affects the rest of the plan.
type FailurePolicy string

const (
	// FailureContinue lets the plan proceed with a degraded result.
	FailureContinue FailurePolicy = "continue"
	// FailureAbortPlan cancels all not-yet-started work.
	FailureAbortPlan FailurePolicy = "abort_plan"
)

// RetryPolicy bounds transient-error retries for a single step.
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff"`
}

// StepInputs carries the type-specific parameters of a step.
type StepInputs struct {
	Query      string              `json:"query,omitempty"`
	Queries    []string            `json:"queries,omitempty"`
	AgentID    string              `json:"agent_id,omitempty"`
	Capability string              `json:"capability,omitempty"`
	TopK       int                 `json:"top_k,omitempty"`
	Weights    map[Backend]float64 `json:"weights,omitempty"`
	Strategy   FusionStrategy      `json:"strategy,omitempty"`
	Filters    map[string]string   `json:"filters,omitempty"`
}

// StepError is the classified error attached to a failed step.
type StepError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StepResult is the immutable output of a completed step.
type StepResult struct {
	Summary    string         `json:"summary,omitempty"`
	Text       string         `json:"text,omitempty"`
	Documents  []SearchResult `json:"documents,omitempty"`
	Citations  []Citation     `json:"citations,omitempty"`
	Degraded   bool           `json:"is_degraded,omitempty"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// ProcessStep is one unit of work in a process tree. Mutable fields
// (Status, timestamps, Result, Err, Attempts) are owned exclusively by
// the executor after planning.
type ProcessStep struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Type      StepType      `json:"type"`
	Inputs    StepInputs    `json:"inputs"`
	DependsOn []string      `json:"depends_on,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Retry     RetryPolicy   `json:"retry_policy"`
	OnFailure FailurePolicy `json:"on_failure,omitempty"`

	Status    StepStatus  `json:"status"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	Attempts  int         `json:"attempts"`
	Result    *StepResult `json:"result,omitempty"`
	Err       *StepError  `json:"error,omitempty"`
}

// ProcessTree is a rooted DAG of steps built from a single query.
// Steps are created once at planning time; the executor owns all
// subsequent mutation and the tree is discarded after the terminal
// plan event.
type ProcessTree struct {
	ID        string                  `json:"id"`
	Query     Query                   `json:"query"`
	RootID    string                  `json:"root_id"`
	Steps     map[string]*ProcessStep `json:"steps"`
	CreatedAt time.Time               `json:"created_at"`
}

// Step returns the step with the given id, or nil.
func (t *ProcessTree) Step(id string) *ProcessStep {
	return t.Steps[id]
}

// Validate checks structural invariants: the root exists, ids match
// their map keys, and every dependency references a sibling step.
// Cycle detection is the dependency resolver's job.
func (t *ProcessTree) Validate() error {
	if _, ok := t.Steps[t.RootID]; !ok {
		return fmt.Errorf("root step %q not found in tree", t.RootID)
	}
	for id, step := range t.Steps {
		if step.ID != id {
			return fmt.Errorf("step id %q does not match its key %q", step.ID, id)
		}
		if !step.Type.IsValid() {
			return fmt.Errorf("step %q has unknown type %q", id, step.Type)
		}
		for _, dep := range step.DependsOn {
			if _, ok := t.Steps[dep]; !ok {
				return fmt.Errorf("step %q depends on unknown step %q", id, dep)
			}
		}
	}
	return nil
}
