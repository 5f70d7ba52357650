package process

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/models"
	"github.com/amtlich/amtlich/pkg/progress"
)

// Runner executes a single step. Validate is called for every step
// before the first wave starts; a validation error fails the whole
// plan. emit publishes a step_progress payload for the running step.
type Runner interface {
	Validate(step *models.ProcessStep) error
	Run(ctx context.Context, exec *Execution, step *models.ProcessStep, emit func(map[string]any)) (*models.StepResult, error)
}

// Execution bundles the per-query state a plan run needs.
type Execution struct {
	Tree           *models.ProcessTree
	Hypothesis     *models.Hypothesis
	Budget         *models.TokenBudget
	Classification models.Classification
}

// Executor runs process trees wave by wave. One Executor serves all
// trees; per-tree state lives in the Execution and the tree itself.
type Executor struct {
	runner      Runner
	maxParallel int64
	planTimeout time.Duration
}

// NewExecutor creates an executor. maxParallel below 1 is raised to 1.
func NewExecutor(runner Runner, maxParallel int, planTimeout time.Duration) *Executor {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Executor{
		runner:      runner,
		maxParallel: int64(maxParallel),
		planTimeout: planTimeout,
	}
}

// Execute runs the tree to completion and returns the root step's
// result. Progress events go to stream; the last event is always
// terminal. Cancelling ctx cancels all in-flight steps; after the
// cancellation no step events are published.
func (e *Executor) Execute(ctx context.Context, exec *Execution, stream *progress.Stream) (*models.StepResult, error) {
	if e.planTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.planTimeout)
		defer cancel()
	}
	// Events survive query-context cancellation so the terminal event
	// always reaches subscribers.
	pubCtx := context.WithoutCancel(ctx)

	tree := exec.Tree
	started := time.Now()
	stream.Publish(pubCtx, progress.PlanStarted, "", map[string]any{
		"step_count": len(tree.Steps),
		"root_id":    tree.RootID,
	})

	waves, err := Plan(tree)
	if err != nil {
		return nil, e.fail(pubCtx, stream, err)
	}
	for _, id := range sortedIDs(tree) {
		if verr := e.runner.Validate(tree.Steps[id]); verr != nil {
			return nil, e.fail(pubCtx, stream, verr)
		}
	}

	sem := semaphore.NewWeighted(e.maxParallel)
	for _, wave := range waves {
		for _, id := range wave {
			step := tree.Steps[id]
			step.Status = models.StepReady
			stream.Publish(pubCtx, progress.StepReady, id, nil)
		}

		var wg sync.WaitGroup
		for _, id := range wave {
			if ctx.Err() != nil {
				break
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(step *models.ProcessStep) {
				defer wg.Done()
				defer sem.Release(1)
				e.runStep(ctx, pubCtx, exec, step, stream)
			}(tree.Steps[id])
		}
		wg.Wait()

		if ctx.Err() != nil {
			return nil, e.cancelled(pubCtx, ctx, tree, stream)
		}
		if abortErr := abortingFailure(tree, wave); abortErr != nil {
			markRemaining(tree, models.StepSkipped)
			return nil, e.fail(pubCtx, stream, abortErr)
		}
	}

	root := tree.Step(tree.RootID)
	if root.Status != models.StepCompleted {
		return nil, e.fail(pubCtx, stream,
			faults.New(faults.KindInternal, "root step did not complete"))
	}

	stream.Publish(pubCtx, progress.PlanCompleted, tree.RootID, map[string]any{
		"duration_ms": time.Since(started).Milliseconds(),
		"summary":     root.Result.Summary,
	})
	return root.Result, nil
}

// runStep drives one step through its lifecycle: started once, retried
// attempts surfacing as step_progress, exactly one terminal transition.
func (e *Executor) runStep(ctx, pubCtx context.Context, exec *Execution, step *models.ProcessStep, stream *progress.Stream) {
	now := time.Now()
	step.Status = models.StepRunning
	step.StartedAt = &now
	stream.Publish(pubCtx, progress.StepStarted, step.ID, map[string]any{
		"step_type": string(step.Type),
		"name":      step.Name,
	})

	emit := func(payload map[string]any) {
		stream.Publish(pubCtx, progress.StepProgress, step.ID, payload)
	}

	result, err := e.runWithRetry(ctx, exec, step, emit)

	ended := time.Now()
	step.EndedAt = &ended
	if ctx.Err() != nil {
		// The plan is being torn down; plan_cancelled (or plan_failed
		// on timeout) is the next and last event.
		step.Status = models.StepCancelled
		return
	}

	if err != nil {
		step.Status = models.StepFailed
		step.Err = &models.StepError{
			Kind:    string(faults.KindOf(err)),
			Message: faults.Message(err),
		}
		stream.Publish(pubCtx, progress.StepFailed, step.ID, map[string]any{
			"error_kind": step.Err.Kind,
			"message":    step.Err.Message,
			"attempts":   step.Attempts,
		})
		return
	}

	step.Status = models.StepCompleted
	step.Result = result
	stream.Publish(pubCtx, progress.StepCompleted, step.ID, map[string]any{
		"duration_ms": ended.Sub(now).Milliseconds(),
		"summary":     result.Summary,
		"documents":   len(result.Documents),
		"citations":   len(result.Citations),
		"is_degraded": result.Degraded,
	})
}

// runWithRetry retries transient failures per the step's retry policy.
// Each attempt gets a fresh per-step timeout; backoff quadruples.
func (e *Executor) runWithRetry(ctx context.Context, exec *Execution, step *models.ProcessStep, emit func(map[string]any)) (*models.StepResult, error) {
	attempts := step.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := step.Retry.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		step.Attempts = attempt
		if attempt > 1 {
			emit(map[string]any{"attempt": attempt, "retrying": true})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 4
		}

		stepCtx := ctx
		if step.Timeout > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
			defer cancel()
		}

		result, err := e.runner.Run(stepCtx, exec, step, emit)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil || !faults.Transient(err) {
			break
		}
		slog.Debug("Step attempt failed",
			"tree_id", exec.Tree.ID, "step_id", step.ID,
			"attempt", attempt, "error_kind", faults.KindOf(err))
	}
	return nil, lastErr
}

func (e *Executor) fail(pubCtx context.Context, stream *progress.Stream, err error) error {
	stream.Publish(pubCtx, progress.PlanFailed, "", map[string]any{
		"error_kind": string(faults.KindOf(err)),
		"message":    faults.Message(err),
	})
	return err
}

func (e *Executor) cancelled(pubCtx, ctx context.Context, tree *models.ProcessTree, stream *progress.Stream) error {
	markRemaining(tree, models.StepCancelled)
	if ctx.Err() == context.DeadlineExceeded {
		return e.fail(pubCtx, stream,
			faults.New(faults.KindBackendTimeout, "plan timed out"))
	}
	stream.Publish(pubCtx, progress.PlanCancelled, "", nil)
	return faults.New(faults.KindCancelled, "plan cancelled")
}

// abortingFailure returns the error of the first failed step in the
// wave that demands plan abort. The root step is always fatal.
func abortingFailure(tree *models.ProcessTree, wave []string) error {
	for _, id := range wave {
		step := tree.Steps[id]
		if step.Status != models.StepFailed {
			continue
		}
		if step.OnFailure == models.FailureAbortPlan || id == tree.RootID {
			return faults.New(faults.Kind(step.Err.Kind),
				"step %s failed: %s", id, step.Err.Message)
		}
	}
	return nil
}

// markRemaining puts every non-terminal step into the given state
// without emitting events.
func markRemaining(tree *models.ProcessTree, status models.StepStatus) {
	for _, step := range tree.Steps {
		if !step.Status.Terminal() {
			step.Status = status
		}
	}
}
