package process

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amtlich/amtlich/pkg/agents"
	"github.com/amtlich/amtlich/pkg/models"
)

// Well-known step ids. The root is either the answer step or, on the
// clarification path, the clarify step.
const (
	stepSearch  = "search"
	stepQuality = "quality"
	stepAnswer  = "answer"
	stepClarify = "clarify"
)

// maxAgentSteps bounds fan-out for broad queries.
const maxAgentSteps = 3

// capabilityHints maps lower-cased query terms to agent capability tags.
var capabilityHints = map[string]string{
	"bauantrag":        "permits",
	"baugenehmigung":   "permits",
	"bebauungsplan":    "zoning",
	"emission":         "emissions",
	"führerschein":     "licensing",
	"gewerbe":          "registration",
	"immissionsschutz": "emissions",
	"kindergeld":       "benefits",
	"lärm":             "emissions",
	"naturschutz":      "nature_protection",
	"sozialhilfe":      "benefits",
	"umwelt":           "environmental_law",
	"wohngeld":         "benefits",
	"zulassung":        "vehicles",
}

// BuildConfig carries the planning defaults resolved from configuration
// and per-query options.
type BuildConfig struct {
	StepTimeout   time.Duration
	Strategy      models.FusionStrategy
	TopK          int
	AgentsEnabled bool
	RAGEnabled    bool
}

// BuildTree plans the process tree for a query. The shape depends on
// the hypothesis:
//
//   - critical information gap: a single clarify root, no retrieval and
//     no generation;
//   - otherwise: a search wave, zero or more agent steps, a quality
//     check, and the root answer step.
func BuildTree(query models.Query, class models.Classification, hyp *models.Hypothesis, registry *agents.Registry, cfg BuildConfig) *models.ProcessTree {
	tree := &models.ProcessTree{
		ID:        uuid.NewString(),
		Query:     query,
		Steps:     make(map[string]*models.ProcessStep),
		CreatedAt: time.Now(),
	}

	if hyp.RequiresClarification() {
		tree.RootID = stepClarify
		add(tree, &models.ProcessStep{
			ID:   stepClarify,
			Name: "Rückfrage an den Nutzer",
			Type: models.StepAggregate,
		}, cfg)
		return tree
	}

	var answerDeps []string

	if cfg.RAGEnabled {
		add(tree, &models.ProcessStep{
			ID:   stepSearch,
			Name: "Hybride Dokumentensuche",
			Type: models.StepSearch,
			Inputs: models.StepInputs{
				Query:    query.Text,
				TopK:     cfg.TopK,
				Strategy: cfg.Strategy,
			},
			Retry: models.RetryPolicy{MaxAttempts: 2, InitialBackoff: 100 * time.Millisecond},
		}, cfg)

		// Important gaps get their own retrieval step in the same wave,
		// probing the suggested follow-up query.
		for i, gap := range hyp.InformationGaps {
			if gap.Severity != models.GapImportant || gap.SuggestedQuery == "" {
				continue
			}
			add(tree, &models.ProcessStep{
				ID:   gapStepID(i),
				Name: "Lückensuche: " + gap.Kind,
				Type: models.StepRetrieval,
				Inputs: models.StepInputs{
					Query:    gap.SuggestedQuery,
					TopK:     cfg.TopK,
					Strategy: cfg.Strategy,
				},
			}, cfg)
		}

		for id := range tree.Steps {
			answerDeps = append(answerDeps, id)
		}
	}

	if cfg.AgentsEnabled {
		for _, agentID := range selectAgents(query.Text, hyp, registry) {
			id := "agent-" + agentID
			add(tree, &models.ProcessStep{
				ID:   id,
				Name: "Fachagent " + agentID,
				Type: models.StepAgent,
				Inputs: models.StepInputs{
					Query:    query.Text,
					AgentID:  agentID,
					TopK:     cfg.TopK,
					Strategy: cfg.Strategy,
				},
				DependsOn: depsOn(tree, stepSearch),
			}, cfg)
			answerDeps = append(answerDeps, id)
		}
	}

	if len(answerDeps) > 0 {
		add(tree, &models.ProcessStep{
			ID:        stepQuality,
			Name:      "Qualitätsprüfung",
			Type:      models.StepQuality,
			DependsOn: append([]string(nil), answerDeps...),
		}, cfg)
		answerDeps = []string{stepQuality}
	}

	tree.RootID = stepAnswer
	add(tree, &models.ProcessStep{
		ID:        stepAnswer,
		Name:      "Antwortgenerierung",
		Type:      models.StepLLM,
		Inputs:    models.StepInputs{Query: query.Text},
		DependsOn: answerDeps,
		OnFailure: models.FailureAbortPlan,
		Retry:     models.RetryPolicy{MaxAttempts: 2, InitialBackoff: 200 * time.Millisecond},
	}, cfg)

	return tree
}

func add(tree *models.ProcessTree, step *models.ProcessStep, cfg BuildConfig) {
	if step.Timeout == 0 {
		step.Timeout = cfg.StepTimeout
	}
	if step.Retry.MaxAttempts == 0 {
		step.Retry.MaxAttempts = 1
	}
	if step.OnFailure == "" {
		step.OnFailure = models.FailureContinue
	}
	step.Status = models.StepPending
	tree.Steps[step.ID] = step
}

func gapStepID(i int) string {
	return "gap-" + string(rune('a'+i))
}

func depsOn(tree *models.ProcessTree, id string) []string {
	if _, ok := tree.Steps[id]; ok {
		return []string{id}
	}
	return nil
}

// selectAgents matches query terms and hypothesis keywords against the
// capability hints and returns up to maxAgentSteps agent ids, ordered
// by first match.
func selectAgents(queryText string, hyp *models.Hypothesis, registry *agents.Registry) []string {
	if registry == nil || registry.Len() == 0 {
		return nil
	}

	terms := strings.Fields(strings.ToLower(queryText))
	for _, kw := range hyp.Keywords {
		terms = append(terms, strings.ToLower(kw))
	}

	seen := make(map[string]bool)
	var selected []string
	for _, term := range terms {
		term = strings.Trim(term, ".,;:!?()")
		tag, ok := capabilityHints[term]
		if !ok {
			continue
		}
		for _, d := range registry.ByCapability(tag) {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			selected = append(selected, d.ID)
			if len(selected) >= maxAgentSteps {
				return selected
			}
		}
	}
	return selected
}
