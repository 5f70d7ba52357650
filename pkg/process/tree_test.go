package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amtlich/amtlich/pkg/agents"
	"github.com/amtlich/amtlich/pkg/models"
)

func buildConfig() BuildConfig {
	return BuildConfig{
		StepTimeout:   30 * time.Second,
		Strategy:      models.FusionRRF,
		TopK:          10,
		AgentsEnabled: true,
		RAGEnabled:    true,
	}
}

func testRegistry() *agents.Registry {
	return agents.NewRegistry(
		&agents.Descriptor{ID: "baurecht", Domain: "baurecht", Capabilities: []string{"permits", "zoning"}},
		&agents.Descriptor{ID: "sozialrecht", Domain: "sozialrecht", Capabilities: []string{"benefits"}},
		&agents.Descriptor{ID: "umweltrecht", Domain: "umweltrecht", Capabilities: []string{"emissions", "environmental_law"}},
	)
}

func TestBuildTree(t *testing.T) {
	query := models.Query{ID: "q-1", Text: "Was kostet ein Bauantrag in Bayern?"}
	class := models.Classification{}

	t.Run("standard tree has search, quality, and answer root", func(t *testing.T) {
		hyp := &models.Hypothesis{QuestionType: models.QuestionFactRetrieval}
		tree := BuildTree(query, class, hyp, testRegistry(), buildConfig())

		require.NoError(t, tree.Validate())
		assert.Equal(t, stepAnswer, tree.RootID)

		search := tree.Step(stepSearch)
		require.NotNil(t, search)
		assert.Equal(t, models.StepSearch, search.Type)
		assert.Equal(t, 2, search.Retry.MaxAttempts)

		answer := tree.Step(stepAnswer)
		require.NotNil(t, answer)
		assert.Equal(t, models.StepLLM, answer.Type)
		assert.Equal(t, models.FailureAbortPlan, answer.OnFailure)
		assert.Equal(t, []string{stepQuality}, answer.DependsOn)

		quality := tree.Step(stepQuality)
		require.NotNil(t, quality)
		assert.Contains(t, quality.DependsOn, stepSearch)
	})

	t.Run("critical gap yields a lone clarify root", func(t *testing.T) {
		hyp := &models.Hypothesis{
			QuestionType: models.QuestionFactRetrieval,
			InformationGaps: []models.InformationGap{{
				Kind:     "location",
				Severity: models.GapCritical,
				Examples: []string{"München", "Hamburg"},
			}},
		}
		tree := BuildTree(query, class, hyp, testRegistry(), buildConfig())

		require.NoError(t, tree.Validate())
		assert.Equal(t, stepClarify, tree.RootID)
		assert.Len(t, tree.Steps, 1)
		assert.Equal(t, models.StepAggregate, tree.Step(stepClarify).Type)
	})

	t.Run("important gaps add retrieval steps alongside search", func(t *testing.T) {
		hyp := &models.Hypothesis{
			QuestionType: models.QuestionProcedural,
			InformationGaps: []models.InformationGap{
				{Kind: "bundesland", Severity: models.GapImportant, SuggestedQuery: "Bauantrag Gebühren Bundesland"},
				{Kind: "detail", Severity: models.GapOptional, SuggestedQuery: "irrelevant"},
				{Kind: "zeitraum", Severity: models.GapImportant}, // no suggested query, skipped
			},
		}
		cfg := buildConfig()
		cfg.AgentsEnabled = false
		tree := BuildTree(query, class, hyp, testRegistry(), cfg)

		require.NoError(t, tree.Validate())
		gap := tree.Step("gap-a")
		require.NotNil(t, gap)
		assert.Equal(t, models.StepRetrieval, gap.Type)
		assert.Equal(t, "Bauantrag Gebühren Bundesland", gap.Inputs.Query)
		assert.Nil(t, tree.Step("gap-b"))
		assert.Nil(t, tree.Step("gap-c"))
		assert.Contains(t, tree.Step(stepQuality).DependsOn, "gap-a")
	})

	t.Run("query terms select matching agents", func(t *testing.T) {
		hyp := &models.Hypothesis{QuestionType: models.QuestionFactRetrieval}
		tree := BuildTree(query, class, hyp, testRegistry(), buildConfig())

		agent := tree.Step("agent-baurecht")
		require.NotNil(t, agent, "Bauantrag query should engage the permits agent")
		assert.Equal(t, models.StepAgent, agent.Type)
		assert.Equal(t, "baurecht", agent.Inputs.AgentID)
		assert.Equal(t, []string{stepSearch}, agent.DependsOn)
		assert.Nil(t, tree.Step("agent-sozialrecht"))
	})

	t.Run("hypothesis keywords also drive agent selection", func(t *testing.T) {
		hyp := &models.Hypothesis{
			QuestionType: models.QuestionFactRetrieval,
			Keywords:     []string{"Kindergeld"},
		}
		q := models.Query{ID: "q-2", Text: "Wie hoch ist die Leistung pro Kind?"}
		tree := BuildTree(q, class, hyp, testRegistry(), buildConfig())

		assert.NotNil(t, tree.Step("agent-sozialrecht"))
	})

	t.Run("disabled retrieval and agents leaves a bare answer step", func(t *testing.T) {
		hyp := &models.Hypothesis{QuestionType: models.QuestionFactRetrieval}
		cfg := buildConfig()
		cfg.RAGEnabled = false
		cfg.AgentsEnabled = false
		tree := BuildTree(query, class, hyp, testRegistry(), cfg)

		require.NoError(t, tree.Validate())
		assert.Len(t, tree.Steps, 1)
		answer := tree.Step(stepAnswer)
		require.NotNil(t, answer)
		assert.Empty(t, answer.DependsOn)
	})

	t.Run("every step gets timeout and policy defaults", func(t *testing.T) {
		hyp := &models.Hypothesis{QuestionType: models.QuestionFactRetrieval}
		tree := BuildTree(query, class, hyp, testRegistry(), buildConfig())

		for id, step := range tree.Steps {
			assert.NotZero(t, step.Timeout, "step %s timeout", id)
			assert.GreaterOrEqual(t, step.Retry.MaxAttempts, 1, "step %s attempts", id)
			assert.NotEmpty(t, step.OnFailure, "step %s failure policy", id)
			assert.Equal(t, models.StepPending, step.Status, "step %s status", id)
		}
	})
}
