package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/models"
	"github.com/amtlich/amtlich/pkg/progress"
)

// fakeRunner scripts step outcomes by id.
type fakeRunner struct {
	mu       sync.Mutex
	delay    time.Duration
	failures map[string]error
	flaky    map[string]int // id -> failing attempts before success
	ran      []string
}

func (r *fakeRunner) Validate(*models.ProcessStep) error { return nil }

func (r *fakeRunner) Run(ctx context.Context, _ *Execution, step *models.ProcessStep, _ func(map[string]any)) (*models.StepResult, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.ran = append(r.ran, step.ID)
	remaining := r.flaky[step.ID]
	if remaining > 0 {
		r.flaky[step.ID] = remaining - 1
	}
	r.mu.Unlock()

	if remaining > 0 {
		return nil, faults.New(faults.KindBackendTimeout, "transient failure")
	}
	if err := r.failures[step.ID]; err != nil {
		return nil, err
	}
	return &models.StepResult{Summary: "ok " + step.ID}, nil
}

func executionFor(tree *models.ProcessTree) *Execution {
	return &Execution{
		Tree:       tree,
		Hypothesis: &models.Hypothesis{QuestionType: models.QuestionFactRetrieval},
		Budget:     &models.TokenBudget{Allocated: models.MinTokenBudget},
	}
}

func collect(t *testing.T, runner Runner, tree *models.ProcessTree) ([]progress.Event, *models.StepResult, error) {
	t.Helper()
	stream := progress.NewBroker(context.Background()).Open(tree.ID)
	executor := NewExecutor(runner, 5, 0)
	result, err := executor.Execute(context.Background(), executionFor(tree), stream)
	return stream.History(), result, err
}

func eventTypes(events []progress.Event) []progress.EventType {
	out := make([]progress.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestExecutorExecute(t *testing.T) {
	t.Run("happy path emits ordered lifecycle events", func(t *testing.T) {
		tree := testTree(map[string][]string{
			"search": nil,
			"answer": {"search"},
		})
		tree.RootID = "answer"

		events, result, err := collect(t, &fakeRunner{}, tree)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "ok answer", result.Summary)

		assert.Equal(t, []progress.EventType{
			progress.PlanStarted,
			progress.StepReady, progress.StepStarted, progress.StepCompleted,
			progress.StepReady, progress.StepStarted, progress.StepCompleted,
			progress.PlanCompleted,
		}, eventTypes(events))
	})

	t.Run("sequence numbers are gap free and end terminal", func(t *testing.T) {
		tree := testTree(map[string][]string{
			"a": nil, "b": nil, "c": {"a", "b"}, "d": {"c"},
		})
		tree.RootID = "d"

		events, _, err := collect(t, &fakeRunner{}, tree)
		require.NoError(t, err)
		for i, event := range events {
			assert.Equal(t, int64(i+1), event.Seq)
		}
		assert.True(t, events[len(events)-1].Type.Terminal())
	})

	t.Run("cycle fails the plan before any step event", func(t *testing.T) {
		tree := testTree(map[string][]string{"a": {"b"}, "b": {"a"}})
		tree.RootID = "a"

		events, _, err := collect(t, &fakeRunner{}, tree)
		require.Error(t, err)
		assert.Equal(t, faults.KindCycleDetected, faults.KindOf(err))
		require.Len(t, events, 2)
		assert.Equal(t, progress.PlanStarted, events[0].Type)
		assert.Equal(t, progress.PlanFailed, events[1].Type)
		assert.Equal(t, string(faults.KindCycleDetected), events[1].Payload["error_kind"])
	})

	t.Run("transient failure retries with step_progress not a new step_started", func(t *testing.T) {
		tree := testTree(map[string][]string{"answer": nil})
		tree.RootID = "answer"
		tree.Steps["answer"].Retry = models.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}

		runner := &fakeRunner{flaky: map[string]int{"answer": 2}}
		events, result, err := collect(t, runner, tree)
		require.NoError(t, err)
		require.NotNil(t, result)

		started, progressed := 0, 0
		for _, event := range events {
			switch event.Type {
			case progress.StepStarted:
				started++
			case progress.StepProgress:
				progressed++
			}
		}
		assert.Equal(t, 1, started)
		assert.Equal(t, 2, progressed)
		assert.Equal(t, 3, tree.Steps["answer"].Attempts)
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		tree := testTree(map[string][]string{"answer": nil})
		tree.RootID = "answer"
		tree.Steps["answer"].Retry = models.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}

		runner := &fakeRunner{failures: map[string]error{
			"answer": faults.New(faults.KindValidation, "bad input"),
		}}
		_, _, err := collect(t, runner, tree)
		require.Error(t, err)
		assert.Len(t, runner.ran, 1)
	})

	t.Run("non-root failure with continue policy degrades not aborts", func(t *testing.T) {
		tree := testTree(map[string][]string{
			"agent-x": nil,
			"answer":  {"agent-x"},
		})
		tree.RootID = "answer"
		tree.Steps["agent-x"].OnFailure = models.FailureContinue

		runner := &fakeRunner{failures: map[string]error{
			"agent-x": faults.New(faults.KindBackendUnavailable, "backend down"),
		}}
		events, result, err := collect(t, runner, tree)
		require.NoError(t, err)
		require.NotNil(t, result)

		types := eventTypes(events)
		assert.Contains(t, types, progress.StepFailed)
		assert.Equal(t, progress.PlanCompleted, types[len(types)-1])
		assert.Equal(t, models.StepFailed, tree.Steps["agent-x"].Status)
	})

	t.Run("abort_plan failure skips remaining waves", func(t *testing.T) {
		tree := testTree(map[string][]string{
			"first":  nil,
			"second": {"first"},
			"answer": {"second"},
		})
		tree.RootID = "answer"
		tree.Steps["first"].OnFailure = models.FailureAbortPlan

		runner := &fakeRunner{failures: map[string]error{
			"first": faults.New(faults.KindBackendTimeout, "gave up"),
		}}
		events, _, err := collect(t, runner, tree)
		require.Error(t, err)

		types := eventTypes(events)
		assert.Equal(t, progress.PlanFailed, types[len(types)-1])
		assert.Equal(t, models.StepSkipped, tree.Steps["second"].Status)
		assert.Equal(t, models.StepSkipped, tree.Steps["answer"].Status)
		assert.NotContains(t, runner.ran, "second")
	})

	t.Run("cancellation yields plan_cancelled and nothing after it", func(t *testing.T) {
		tree := testTree(map[string][]string{
			"s1": nil,
			"s2": {"s1"},
			"s3": {"s2"},
			"s4": {"s3"},
			"s5": {"s4"},
		})
		tree.RootID = "s5"

		stream := progress.NewBroker(context.Background()).Open(tree.ID)
		runner := &fakeRunner{delay: 100 * time.Millisecond}
		executor := NewExecutor(runner, 5, 0)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(150 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_, err := executor.Execute(ctx, executionFor(tree), stream)
		require.Error(t, err)
		assert.Equal(t, faults.KindCancelled, faults.KindOf(err))
		assert.Less(t, time.Since(start), 500*time.Millisecond)

		events := stream.History()
		types := eventTypes(events)
		require.NotEmpty(t, types)
		assert.Equal(t, progress.PlanCancelled, types[len(types)-1])

		// Completed steps form a strict prefix of the sequential plan.
		completed := 0
		for _, event := range events {
			if event.Type == progress.StepCompleted {
				completed++
			}
		}
		assert.Less(t, completed, 5)
		assert.True(t, stream.Closed())
	})

	t.Run("validation failure surfaces before any step starts", func(t *testing.T) {
		tree := testTree(map[string][]string{"answer": nil})
		tree.RootID = "answer"

		runner := &validateFailRunner{}
		events, _, err := collect(t, runner, tree)
		require.Error(t, err)
		assert.Equal(t, faults.KindAgentNotFound, faults.KindOf(err))
		assert.NotContains(t, eventTypes(events), progress.StepStarted)
	})

	t.Run("max parallel bounds concurrent steps", func(t *testing.T) {
		tree := testTree(map[string][]string{
			"a": nil, "b": nil, "c": nil, "d": nil,
			"root": {"a", "b", "c", "d"},
		})
		tree.RootID = "root"

		runner := &concurrencyRunner{delay: 20 * time.Millisecond}
		stream := progress.NewBroker(context.Background()).Open(tree.ID)
		executor := NewExecutor(runner, 2, 0)
		_, err := executor.Execute(context.Background(), executionFor(tree), stream)
		require.NoError(t, err)
		assert.LessOrEqual(t, runner.peak, 2)
	})
}

type validateFailRunner struct{ fakeRunner }

func (r *validateFailRunner) Validate(step *models.ProcessStep) error {
	return faults.New(faults.KindAgentNotFound, "agent %q is not registered", step.ID)
}

// concurrencyRunner tracks the peak number of simultaneous Run calls.
type concurrencyRunner struct {
	mu      sync.Mutex
	delay   time.Duration
	current int
	peak    int
}

func (r *concurrencyRunner) Validate(*models.ProcessStep) error { return nil }

func (r *concurrencyRunner) Run(ctx context.Context, _ *Execution, step *models.ProcessStep, _ func(map[string]any)) (*models.StepResult, error) {
	r.mu.Lock()
	r.current++
	if r.current > r.peak {
		r.peak = r.current
	}
	r.mu.Unlock()

	time.Sleep(r.delay)

	r.mu.Lock()
	r.current--
	r.mu.Unlock()
	return &models.StepResult{Summary: step.ID}, nil
}
