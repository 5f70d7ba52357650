package process

import (
	"context"
	"fmt"
	"strings"

	"github.com/amtlich/amtlich/pkg/agents"
	"github.com/amtlich/amtlich/pkg/budget"
	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/models"
)

// Searcher is the retrieval contract the dispatcher needs. Satisfied by
// *retrieval.Engine.
type Searcher interface {
	HybridSearchFiltered(ctx context.Context, query string, weights map[models.Backend]float64, strategy models.FusionStrategy, filters map[string]string) (*models.HybridResult, error)
}

// Responder generates the final answer from the gathered evidence.
// Satisfied by *response.Generator. onChunk receives streamed answer
// fragments in order.
type Responder interface {
	Respond(ctx context.Context, query models.Query, hyp *models.Hypothesis, budget *models.TokenBudget, docs []models.SearchResult, onChunk func(string)) (*models.StepResult, error)
}

// Dispatcher routes steps to their implementations by step type.
type Dispatcher struct {
	searcher  Searcher
	registry  *agents.Registry
	responder Responder
}

// NewDispatcher wires the dispatcher. Any collaborator may be nil; the
// corresponding step types then fail with backend_unavailable.
func NewDispatcher(searcher Searcher, registry *agents.Registry, responder Responder) *Dispatcher {
	return &Dispatcher{searcher: searcher, registry: registry, responder: responder}
}

// Validate checks step references before execution. An agent step
// naming an unregistered agent fails the plan up front.
func (d *Dispatcher) Validate(step *models.ProcessStep) error {
	if step.Type != models.StepAgent {
		return nil
	}
	if d.registry == nil {
		return faults.New(faults.KindAgentNotFound, "no agent registry configured")
	}
	_, err := d.registry.Lookup(step.Inputs.AgentID)
	return err
}

// Run executes one step.
func (d *Dispatcher) Run(ctx context.Context, exec *Execution, step *models.ProcessStep, emit func(map[string]any)) (*models.StepResult, error) {
	switch step.Type {
	case models.StepSearch, models.StepRetrieval:
		return d.runSearch(ctx, step)
	case models.StepAgent:
		return d.runAgent(ctx, step)
	case models.StepLLM:
		return d.runLLM(ctx, exec, step, emit)
	case models.StepQuality:
		return d.runQuality(exec, step), nil
	case models.StepAggregate:
		return d.runAggregate(exec, step, emit), nil
	case models.StepNLP:
		return d.runNLP(exec), nil
	default:
		return nil, faults.New(faults.KindValidation, "unknown step type %q", step.Type)
	}
}

func (d *Dispatcher) runSearch(ctx context.Context, step *models.ProcessStep) (*models.StepResult, error) {
	if d.searcher == nil {
		return nil, faults.New(faults.KindBackendUnavailable, "no retrieval engine configured")
	}
	hybrid, err := d.searcher.HybridSearchFiltered(ctx, step.Inputs.Query,
		step.Inputs.Weights, step.Inputs.Strategy, step.Inputs.Filters)
	if err != nil {
		return nil, err
	}

	degraded := false
	diagData := make(map[string]any, len(hybrid.Diagnostics))
	for backend, diag := range hybrid.Diagnostics {
		diagData[string(backend)] = diag
		if diag.Status == models.BackendDegraded || diag.Status == models.BackendDown {
			degraded = true
		}
	}
	return &models.StepResult{
		Summary:   fmt.Sprintf("%d Dokumente gefunden (%s)", len(hybrid.Results), hybrid.Strategy),
		Documents: hybrid.Results,
		Degraded:  degraded,
		Data:      map[string]any{"diagnostics": diagData},
	}, nil
}

func (d *Dispatcher) runAgent(ctx context.Context, step *models.ProcessStep) (*models.StepResult, error) {
	descriptor, err := d.registry.Lookup(step.Inputs.AgentID)
	if err != nil {
		return nil, err
	}
	return descriptor.Execute(ctx, step)
}

func (d *Dispatcher) runLLM(ctx context.Context, exec *Execution, step *models.ProcessStep, emit func(map[string]any)) (*models.StepResult, error) {
	if d.responder == nil {
		return nil, faults.New(faults.KindBackendUnavailable, "no response generator configured")
	}
	docs := gatherDocuments(exec.Tree, step)
	if exec.Budget != nil {
		// The planning-time budget assumed zero evidence; the gathered
		// volume is known now.
		exec.Budget.ChunkBoost = budget.ChunkBoost(len(docs))
		budget.Rederive(exec.Budget)
	}
	onChunk := func(chunk string) {
		emit(map[string]any{"chunk": chunk})
	}
	return d.responder.Respond(ctx, exec.Tree.Query, exec.Hypothesis, exec.Budget, docs, onChunk)
}

// runQuality performs local deterministic checks over the dependency
// results: evidence volume, degradation share, and coverage of the
// hypothesis' required information. Never fails.
func (d *Dispatcher) runQuality(exec *Execution, step *models.ProcessStep) *models.StepResult {
	var docs []models.SearchResult
	total, degraded := 0, 0
	for _, dep := range step.DependsOn {
		depStep := exec.Tree.Step(dep)
		if depStep == nil || depStep.Result == nil {
			continue
		}
		total++
		if depStep.Result.Degraded {
			degraded++
		}
		docs = append(docs, depStep.Result.Documents...)
	}

	unique := make(map[string]bool, len(docs))
	for _, doc := range docs {
		unique[doc.ID] = true
	}

	volume := float64(len(unique)) / 5.0
	if volume > 1 {
		volume = 1
	}
	health := 1.0
	if total > 0 {
		health = 1.0 - float64(degraded)/float64(total)
	}
	coverage := requiredInfoCoverage(exec.Hypothesis, docs)

	score := 0.6*volume + 0.2*health + 0.2*coverage
	return &models.StepResult{
		Summary:   fmt.Sprintf("Qualitätsprüfung: %d Dokumente, Score %.2f", len(unique), score),
		Documents: docs,
		Degraded:  degraded > 0,
		Data: map[string]any{
			"quality_score":    score,
			"unique_documents": len(unique),
			"degraded_steps":   degraded,
		},
	}
}

// requiredInfoCoverage is the share of the hypothesis' required
// information items mentioned somewhere in the evidence.
func requiredInfoCoverage(hyp *models.Hypothesis, docs []models.SearchResult) float64 {
	if hyp == nil || len(hyp.RequiredInformation) == 0 {
		return 1.0
	}
	var joined strings.Builder
	for _, doc := range docs {
		joined.WriteString(strings.ToLower(doc.Content))
		joined.WriteByte(' ')
	}
	haystack := joined.String()

	covered := 0
	for _, item := range hyp.RequiredInformation {
		for _, word := range strings.Fields(strings.ToLower(item)) {
			if len(word) > 3 && strings.Contains(haystack, word) {
				covered++
				break
			}
		}
	}
	return float64(covered) / float64(len(hyp.RequiredInformation))
}

// runAggregate combines dependency results. The clarify root is the
// special case: it carries the clarification payload instead of an
// answer, emitted as a progress event so streaming clients see it.
func (d *Dispatcher) runAggregate(exec *Execution, step *models.ProcessStep, emit func(map[string]any)) *models.StepResult {
	if step.ID == stepClarify {
		gaps := exec.Hypothesis.CriticalGaps()
		payload := make([]map[string]any, 0, len(gaps))
		for _, gap := range gaps {
			payload = append(payload, map[string]any{
				"kind":     gap.Kind,
				"question": gap.SuggestedQuery,
				"examples": gap.Examples,
			})
		}
		emit(map[string]any{"clarification": payload})
		return &models.StepResult{
			Summary: "Rückfrage erforderlich",
			Text:    clarificationText(gaps),
			Data:    map[string]any{"clarification": payload},
		}
	}

	var docs []models.SearchResult
	for _, dep := range step.DependsOn {
		if depStep := exec.Tree.Step(dep); depStep != nil && depStep.Result != nil {
			docs = append(docs, depStep.Result.Documents...)
		}
	}
	return &models.StepResult{
		Summary:   fmt.Sprintf("%d Teilergebnisse zusammengeführt", len(step.DependsOn)),
		Documents: docs,
	}
}

func (d *Dispatcher) runNLP(exec *Execution) *models.StepResult {
	return &models.StepResult{
		Summary: "Anfrageanalyse abgeschlossen",
		Data: map[string]any{
			"intent":        string(exec.Classification.Intent),
			"question_type": string(exec.Hypothesis.QuestionType),
		},
	}
}

// clarificationText renders the user-facing clarification request.
func clarificationText(gaps []models.InformationGap) string {
	var sb strings.Builder
	sb.WriteString("Für eine verlässliche Antwort fehlen noch Angaben:\n")
	for _, gap := range gaps {
		sb.WriteString("- ")
		if gap.SuggestedQuery != "" {
			sb.WriteString(gap.SuggestedQuery)
		} else {
			sb.WriteString(gap.Kind)
		}
		if len(gap.Examples) > 0 {
			sb.WriteString(" (z. B. ")
			sb.WriteString(strings.Join(gap.Examples, ", "))
			sb.WriteString(")")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// gatherDocuments collects the evidence the answer step consumes from
// its direct dependencies, deduplicated by document id.
func gatherDocuments(tree *models.ProcessTree, step *models.ProcessStep) []models.SearchResult {
	seen := make(map[string]bool)
	var docs []models.SearchResult
	for _, dep := range step.DependsOn {
		depStep := tree.Step(dep)
		if depStep == nil || depStep.Result == nil {
			continue
		}
		for _, doc := range depStep.Result.Documents {
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			docs = append(docs, doc)
		}
	}
	return docs
}
