// Package service orchestrates the query pipeline: intent
// classification, hypothesis generation, token budgeting, process tree
// construction, and execution. It owns the per-tree cancel registry and
// assembles the outward UnifiedResponse.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amtlich/amtlich/pkg/agents"
	"github.com/amtlich/amtlich/pkg/budget"
	"github.com/amtlich/amtlich/pkg/config"
	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/hypothesis"
	"github.com/amtlich/amtlich/pkg/intent"
	"github.com/amtlich/amtlich/pkg/models"
	"github.com/amtlich/amtlich/pkg/process"
	"github.com/amtlich/amtlich/pkg/progress"
)

// maxQueryLen bounds accepted query text.
const maxQueryLen = 4000

// Outcome is the terminal result of one submitted query.
type Outcome struct {
	Response *models.UnifiedResponse
	Err      error
}

// QueryService runs queries end to end. Safe for concurrent use; all
// per-query state lives on the stack of the run goroutine.
type QueryService struct {
	cfg        *config.Config
	classifier *intent.Classifier
	hypotheses *hypothesis.Generator
	calculator *budget.Calculator
	runner     process.Runner
	registry   *agents.Registry
	broker     *progress.Broker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewQueryService wires the pipeline.
func NewQueryService(cfg *config.Config, classifier *intent.Classifier, hypotheses *hypothesis.Generator, calculator *budget.Calculator, runner process.Runner, registry *agents.Registry, broker *progress.Broker) *QueryService {
	return &QueryService{
		cfg:        cfg,
		classifier: classifier,
		hypotheses: hypotheses,
		calculator: calculator,
		runner:     runner,
		registry:   registry,
		broker:     broker,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// NewQuery validates the raw input and mints the immutable query record.
func (s *QueryService) NewQuery(text, sessionID string, opts models.QueryOptions) (models.Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Query{}, faults.New(faults.KindValidation, "query text is empty")
	}
	if len(text) > maxQueryLen {
		return models.Query{}, faults.New(faults.KindValidation, "query text exceeds %d characters", maxQueryLen)
	}
	return models.Query{
		ID:         uuid.NewString(),
		Text:       text,
		SessionID:  sessionID,
		Options:    opts,
		ReceivedAt: time.Now(),
	}, nil
}

// Execute runs a query synchronously and returns the UnifiedResponse.
// Plan failures are reported inside the response envelope, not as
// errors; the error return covers cancellation and internal problems.
func (s *QueryService) Execute(ctx context.Context, query models.Query) (*models.UnifiedResponse, error) {
	_, done := s.Submit(ctx, query)
	outcome := <-done
	return outcome.Response, outcome.Err
}

// Submit starts a query in the background and returns its tree id for
// event subscription, plus a channel delivering the terminal outcome.
// The tree id is registered with the cancel registry until the outcome
// is delivered.
func (s *QueryService) Submit(ctx context.Context, query models.Query) (string, <-chan Outcome) {
	treeID, run := s.prepare(ctx, query)
	done := make(chan Outcome, 1)
	go func() {
		done <- run()
	}()
	return treeID, done
}

// Cancel cancels a running tree. Unknown ids are a no-op; cancellation
// is idempotent.
func (s *QueryService) Cancel(treeID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[treeID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Broker exposes the progress broker for the streaming endpoints.
func (s *QueryService) Broker() *progress.Broker { return s.broker }

// prepare runs the planning stages synchronously so the caller gets a
// subscribable tree id before execution starts.
func (s *QueryService) prepare(ctx context.Context, query models.Query) (string, func() Outcome) {
	started := time.Now()

	classification := s.classifier.Classify(ctx, query.Text)
	hyp := s.hypothesize(ctx, query)
	model := query.Options.Model
	if model == "" {
		model = s.cfg.Model.Name
	}

	tree := process.BuildTree(query, classification, hyp, s.registry, process.BuildConfig{
		StepTimeout:   s.cfg.Execution.DefaultStepTimeout,
		Strategy:      s.cfg.Retrieval.Fusion,
		TopK:          0,
		AgentsEnabled: query.Options.AgentsEnabled(true),
		RAGEnabled:    query.Options.RAGEnabled(true),
	})

	agentCount := 0
	for _, step := range tree.Steps {
		if step.Type == models.StepAgent {
			agentCount++
		}
	}
	// No retrieval has happened at planning time, so the chunk boost
	// starts at zero; the answer step rederives it from the gathered
	// evidence.
	tokenBudget := s.calculator.Compute(query, hyp, classification.Intent, agentCount, 0, model)
	if max := query.Options.MaxTokens; max > 0 && max < tokenBudget.Ceiling {
		tokenBudget.Ceiling = max
		budget.Rederive(&tokenBudget)
	}

	stream := s.broker.Open(tree.ID)

	// Register the cancel handle before handing out the tree id, so a
	// cancel arriving right after Submit returns cannot be lost.
	runCtx, cancel := context.WithCancel(ctx)
	s.register(tree.ID, cancel)

	run := func() Outcome {
		defer s.unregister(tree.ID)
		defer cancel()

		executor := process.NewExecutor(s.runner,
			s.maxParallel(query), s.planTimeout(query))
		exec := &process.Execution{
			Tree:           tree,
			Hypothesis:     hyp,
			Budget:         &tokenBudget,
			Classification: classification,
		}

		rootResult, err := executor.Execute(runCtx, exec, stream)
		duration := time.Since(started)
		if err != nil {
			kind := faults.KindOf(err)
			slog.Warn("Plan did not complete",
				"tree_id", tree.ID, "error_kind", string(kind),
				"duration_ms", duration.Milliseconds())
			if kind == faults.KindCancelled {
				return Outcome{Err: err}
			}
			return Outcome{Response: s.failureResponse(query, hyp, kind, duration)}
		}

		slog.Info("Plan completed",
			"tree_id", tree.ID, "duration_ms", duration.Milliseconds(),
			"intent", string(classification.Intent))
		return Outcome{Response: s.assemble(query, tree, hyp, classification, &tokenBudget, rootResult, model, duration)}
	}
	return tree.ID, run
}

func (s *QueryService) hypothesize(ctx context.Context, query models.Query) *models.Hypothesis {
	if s.cfg.Hypothesis.Enabled {
		return s.hypotheses.Generate(ctx, query, nil)
	}
	return &models.Hypothesis{
		QuestionType:  models.QuestionFactRetrieval,
		PrimaryIntent: query.Text,
		Confidence:    models.ConfidenceUnknown,
		GeneratedAt:   time.Now(),
	}
}

func (s *QueryService) register(treeID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[treeID] = cancel
	s.mu.Unlock()
}

func (s *QueryService) unregister(treeID string) {
	s.mu.Lock()
	delete(s.cancels, treeID)
	s.mu.Unlock()
}

func (s *QueryService) maxParallel(query models.Query) int {
	if query.Options.MaxParallel > 0 {
		return query.Options.MaxParallel
	}
	return s.cfg.Execution.MaxParallel
}

func (s *QueryService) planTimeout(query models.Query) time.Duration {
	if query.Options.TimeoutMS > 0 {
		return time.Duration(query.Options.TimeoutMS) * time.Millisecond
	}
	return s.cfg.Execution.PlanTimeout
}

// assemble builds the UnifiedResponse from the completed tree.
func (s *QueryService) assemble(query models.Query, tree *models.ProcessTree, hyp *models.Hypothesis, classification models.Classification, tokenBudget *models.TokenBudget, root *models.StepResult, model string, duration time.Duration) *models.UnifiedResponse {
	mode := "standard"
	if _, clarify := root.Data["clarification"]; clarify {
		mode = "clarification"
	}

	var agentsInvolved []string
	for _, step := range tree.Steps {
		if step.Type == models.StepAgent && step.Status == models.StepCompleted {
			agentsInvolved = append(agentsInvolved, step.Inputs.AgentID)
		}
	}

	qualityScore := 0.0
	if mode != "clarification" {
		qualityScore = 1.0
		if quality := tree.Step("quality"); quality != nil && quality.Result != nil {
			if score, ok := quality.Result.Data["quality_score"].(float64); ok {
				qualityScore = score
			}
		}
	}

	sources := root.Citations
	if sources == nil {
		sources = []models.Citation{}
	}
	return &models.UnifiedResponse{
		Content: root.Text,
		Sources: sources,
		Metadata: models.ResponseMetadata{
			Model:          model,
			Mode:           mode,
			DurationMS:     duration.Milliseconds(),
			TokensUsed:     root.TokensUsed,
			SourcesCount:   len(sources),
			Complexity:     budget.Complexity(query.Text, hyp),
			AgentsInvolved: agentsInvolved,
			SearchMethod:   string(s.cfg.Retrieval.Fusion),
			QualityScore:   qualityScore,
			Confidence:     string(hyp.Confidence),
			Hypothesis:     hyp,
		},
		SessionID:   query.SessionID,
		Timestamp:   time.Now(),
		TokenBudget: tokenBudget.Summary(),
	}
}

// failureResponse is the user-visible plan failure: a degradation
// explanation without internal detail, quality score zero.
func (s *QueryService) failureResponse(query models.Query, hyp *models.Hypothesis, kind faults.Kind, duration time.Duration) *models.UnifiedResponse {
	content := "Die Anfrage konnte nicht beantwortet werden."
	switch kind {
	case faults.KindBackendUnavailable, faults.KindBackendTimeout:
		content = "Die Anfrage konnte nicht beantwortet werden, weil die Datenquellen derzeit nicht erreichbar sind. Bitte versuchen Sie es später erneut."
	case faults.KindLLMBackend, faults.KindLLMParse, faults.KindContextOverflow:
		content = "Die Antwortgenerierung ist fehlgeschlagen. Bitte versuchen Sie es erneut oder formulieren Sie die Frage kürzer."
	case faults.KindValidation, faults.KindCycleDetected, faults.KindAgentNotFound:
		content = "Die Anfrage konnte nicht verarbeitet werden, weil der Ausführungsplan ungültig ist."
	}

	return &models.UnifiedResponse{
		Content: content,
		Sources: []models.Citation{},
		Metadata: models.ResponseMetadata{
			Model:        s.cfg.Model.Name,
			Mode:         "degraded",
			DurationMS:   duration.Milliseconds(),
			QualityScore: 0,
			Confidence:   string(hyp.Confidence),
		},
		SessionID: query.SessionID,
		Timestamp: time.Now(),
	}
}
