// Package progress implements per-tree execution event streams:
// sequenced event publication, subscriber fan-out with replay, and
// bounded retention after plan completion.
package progress

import "time"

// EventType enumerates the execution lifecycle events.
type EventType string

const (
	PlanStarted   EventType = "plan_started"
	StepReady     EventType = "step_ready"
	StepStarted   EventType = "step_started"
	StepProgress  EventType = "step_progress"
	StepCompleted EventType = "step_completed"
	StepFailed    EventType = "step_failed"
	PlanCompleted EventType = "plan_completed"
	PlanFailed    EventType = "plan_failed"
	PlanCancelled EventType = "plan_cancelled"
)

// Terminal reports whether the event ends its tree's stream.
func (t EventType) Terminal() bool {
	return t == PlanCompleted || t == PlanFailed || t == PlanCancelled
}

// Event is one execution progress event. Seq is gap-free and strictly
// increasing within a tree, starting at 1 with plan_started.
type Event struct {
	Seq       int64          `json:"seq"`
	Type      EventType      `json:"type"`
	TreeID    string         `json:"tree_id"`
	StepID    string         `json:"step_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
