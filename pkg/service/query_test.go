package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amtlich/amtlich/pkg/agents"
	"github.com/amtlich/amtlich/pkg/budget"
	"github.com/amtlich/amtlich/pkg/config"
	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/hypothesis"
	"github.com/amtlich/amtlich/pkg/intent"
	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/models"
	"github.com/amtlich/amtlich/pkg/process"
	"github.com/amtlich/amtlich/pkg/progress"
)

func testConfig() *config.Config {
	return &config.Config{
		Model: config.ModelConfig{
			Name:              "test-model",
			ReservedPromptPct: 0.3,
		},
		Execution: config.ExecutionConfig{
			MaxParallel:        4,
			DefaultStepTimeout: 5 * time.Second,
			PlanTimeout:        10 * time.Second,
		},
		Retrieval: config.RetrievalConfig{Fusion: models.FusionRRF},
	}
}

// pipelineRunner scripts results by step type.
type pipelineRunner struct {
	block   bool
	rootErr error
}

func (r *pipelineRunner) Validate(*models.ProcessStep) error { return nil }

func (r *pipelineRunner) Run(ctx context.Context, _ *process.Execution, step *models.ProcessStep, _ func(map[string]any)) (*models.StepResult, error) {
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	switch step.Type {
	case models.StepQuality:
		return &models.StepResult{
			Summary: "geprüft",
			Data:    map[string]any{"quality_score": 0.8},
		}, nil
	case models.StepLLM:
		if r.rootErr != nil {
			return nil, r.rootErr
		}
		return &models.StepResult{
			Summary:    "Antwort generiert",
			Text:       "Die Gebühr beträgt 50 Euro [1].",
			Citations:  []models.Citation{{ID: 1, Title: "GebO", Type: "law"}},
			TokensUsed: 42,
		}, nil
	default:
		return &models.StepResult{Summary: "ok " + step.ID}, nil
	}
}

func newService(t *testing.T, cfg *config.Config, runner process.Runner, llmClient llm.Client) *QueryService {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewQueryService(
		cfg,
		intent.New(llmClient, cfg.Model.Name),
		hypothesis.New(llmClient, cfg.Model.Name),
		&budget.Calculator{ReservedPromptPct: cfg.Model.ReservedPromptPct, ContextWindow: cfg.ContextWindow},
		runner,
		agents.NewRegistry(),
		progress.NewBroker(ctx),
	)
}

func TestNewQuery(t *testing.T) {
	svc := newService(t, testConfig(), &pipelineRunner{}, nil)

	t.Run("valid text is accepted and trimmed", func(t *testing.T) {
		q, err := svc.NewQuery("  Was kostet ein Reisepass?  ", "sess-1", models.QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, "Was kostet ein Reisepass?", q.Text)
		assert.Equal(t, "sess-1", q.SessionID)
		assert.NotEmpty(t, q.ID)
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		_, err := svc.NewQuery("   ", "", models.QueryOptions{})
		require.Error(t, err)
		assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	})

	t.Run("oversized text is rejected", func(t *testing.T) {
		_, err := svc.NewQuery(strings.Repeat("x", maxQueryLen+1), "", models.QueryOptions{})
		require.Error(t, err)
		assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("successful plan assembles the response envelope", func(t *testing.T) {
		svc := newService(t, testConfig(), &pipelineRunner{}, nil)
		q, err := svc.NewQuery("Was kostet eine Baugenehmigung?", "sess-1", models.QueryOptions{})
		require.NoError(t, err)

		resp, err := svc.Execute(ctx, q)
		require.NoError(t, err)
		require.NotNil(t, resp)

		assert.Equal(t, "Die Gebühr beträgt 50 Euro [1].", resp.Content)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, 1, resp.Sources[0].ID)
		assert.Equal(t, "standard", resp.Metadata.Mode)
		assert.InDelta(t, 0.8, resp.Metadata.QualityScore, 1e-9)
		assert.Equal(t, 42, resp.Metadata.TokensUsed)
		assert.Equal(t, "sess-1", resp.SessionID)
		require.NotNil(t, resp.TokenBudget)
		assert.GreaterOrEqual(t, resp.TokenBudget.Allocated, models.MinTokenBudget)
	})

	t.Run("short factual query without evidence gets the base budget", func(t *testing.T) {
		svc := newService(t, testConfig(), &pipelineRunner{}, nil)
		q, err := svc.NewQuery("Was ist der Hauptsitz von BMW?", "", models.QueryOptions{})
		require.NoError(t, err)

		resp, err := svc.Execute(ctx, q)
		require.NoError(t, err)
		require.NotNil(t, resp.TokenBudget)

		// quick_answer base only: no agents, no domain vocabulary, and
		// no retrieved chunks at planning time.
		assert.Equal(t, models.MinTokenBudget, resp.TokenBudget.Allocated)
		assert.Zero(t, resp.TokenBudget.Breakdown["chunks"])
	})

	t.Run("plan failure yields a degraded response not an error", func(t *testing.T) {
		runner := &pipelineRunner{rootErr: faults.New(faults.KindBackendUnavailable, "backend unavailable")}
		svc := newService(t, testConfig(), runner, nil)
		q, err := svc.NewQuery("Was kostet eine Baugenehmigung?", "", models.QueryOptions{})
		require.NoError(t, err)

		resp, err := svc.Execute(ctx, q)
		require.NoError(t, err)
		require.NotNil(t, resp)

		assert.Equal(t, "degraded", resp.Metadata.Mode)
		assert.Zero(t, resp.Metadata.QualityScore)
		assert.Empty(t, resp.Sources)
		assert.Contains(t, resp.Content, "Datenquellen")
	})

	t.Run("events stream under the returned tree id", func(t *testing.T) {
		svc := newService(t, testConfig(), &pipelineRunner{}, nil)
		q, err := svc.NewQuery("Wie beantrage ich Wohngeld?", "", models.QueryOptions{})
		require.NoError(t, err)

		treeID, done := svc.Submit(ctx, q)
		stream := svc.Broker().Get(treeID)
		require.NotNil(t, stream)

		outcome := <-done
		require.NoError(t, outcome.Err)

		history := stream.History()
		require.NotEmpty(t, history)
		assert.Equal(t, progress.PlanStarted, history[0].Type)
		assert.Equal(t, progress.PlanCompleted, history[len(history)-1].Type)
		for i, e := range history {
			assert.Equal(t, int64(i+1), e.Seq)
		}
	})

	t.Run("cancel stops a running query", func(t *testing.T) {
		svc := newService(t, testConfig(), &pipelineRunner{block: true}, nil)
		q, err := svc.NewQuery("Wie beantrage ich Wohngeld?", "", models.QueryOptions{})
		require.NoError(t, err)

		treeID, done := svc.Submit(ctx, q)
		svc.Cancel(treeID)

		select {
		case outcome := <-done:
			require.Error(t, outcome.Err)
			assert.Equal(t, faults.KindCancelled, faults.KindOf(outcome.Err))
		case <-time.After(2 * time.Second):
			t.Fatal("cancelled query did not terminate")
		}

		history := svc.Broker().Get(treeID).History()
		require.NotEmpty(t, history)
		assert.Equal(t, progress.PlanCancelled, history[len(history)-1].Type)
	})

	t.Run("cancel of an unknown tree is a no-op", func(t *testing.T) {
		svc := newService(t, testConfig(), &pipelineRunner{}, nil)
		svc.Cancel("unbekannt")
	})
}

// clarifyingLLM answers the hypothesis prompt with a critical gap.
type clarifyingLLM struct{}

func (clarifyingLLM) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{
		Content: `{
			"question_type": "fact_retrieval",
			"confidence": "low",
			"information_gaps": [
				{"kind": "location", "severity": "critical", "suggested_query": "In welchem Bundesland wohnen Sie?", "examples": ["Bayern", "Hessen"]}
			]
		}`,
		FinishReason: "stop",
	}, nil
}

func (clarifyingLLM) Stream(context.Context, llm.CompletionRequest) (<-chan llm.StreamChunk, <-chan error) {
	chunks := make(chan llm.StreamChunk)
	errs := make(chan error, 1)
	close(chunks)
	close(errs)
	return chunks, errs
}

func TestClarificationPath(t *testing.T) {
	cfg := testConfig()
	cfg.Hypothesis.Enabled = true
	// The real dispatcher serves the clarify step without collaborators.
	svc := newService(t, cfg, process.NewDispatcher(nil, nil, nil), clarifyingLLM{})

	// The rule tier classifies this query, so the LLM only sees the
	// hypothesis prompt.
	q, err := svc.NewQuery("Wie beantrage ich Wohngeld?", "", models.QueryOptions{})
	require.NoError(t, err)

	resp, err := svc.Execute(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, "clarification", resp.Metadata.Mode)
	assert.Zero(t, resp.Metadata.QualityScore)
	assert.Contains(t, resp.Content, "Bundesland")
	assert.Contains(t, resp.Content, "Bayern")
	assert.Empty(t, resp.Sources)
}
