// Package config assembles the central configuration object from
// environment sources at startup. Application code receives the Config
// by reference; it is immutable after Load returns. Backend credentials
// never leave this package except inside opaque connection settings.
package config

import (
	"fmt"
	"time"

	"github.com/amtlich/amtlich/pkg/models"
)

// Config is the umbrella configuration object returned by Load and
// passed to every subsystem that needs it.
type Config struct {
	Model      ModelConfig
	Execution  ExecutionConfig
	Retrieval  RetrievalConfig
	Backends   BackendToggles
	Hypothesis HypothesisConfig
}

// ModelConfig selects the default LLM model and its window accounting.
type ModelConfig struct {
	// Name is the default generation model.
	Name string
	// Context overrides the model's context window in tokens (0 = use
	// the built-in table).
	Context int
	// ReservedPromptPct is the share of the context window reserved for
	// the prompt when clamping response budgets.
	ReservedPromptPct float64
}

// ExecutionConfig bounds process tree execution.
type ExecutionConfig struct {
	// MaxParallel caps simultaneous in-flight steps per tree.
	MaxParallel int
	// DefaultStepTimeout applies when a step carries no timeout.
	DefaultStepTimeout time.Duration
	// PlanTimeout bounds the whole tree; expiry cancels the tree.
	PlanTimeout time.Duration
}

// RetrievalConfig toggles the optional retrieval stages.
type RetrievalConfig struct {
	ExpansionEnabled bool
	RerankingEnabled bool
	Fusion           models.FusionStrategy
}

// BackendToggle enables or disables one backend path. Disabled backends
// are treated the same as degraded ones by the retrieval engine.
type BackendToggle struct {
	Enabled bool
}

// BackendToggles is the per-backend enablement application code sees.
// Connection details stay inside pkg/datastore's env loading.
type BackendToggles struct {
	Vector     BackendToggle
	Graph      BackendToggle
	Relational BackendToggle
}

// HypothesisConfig toggles pre-execution hypothesis generation.
type HypothesisConfig struct {
	Enabled bool
}

// Load builds the Config from environment variables, applying defaults
// for anything unset. It never reads credential variables; those are
// consumed by pkg/datastore when backends connect.
func Load() (*Config, error) {
	cfg := &Config{
		Model: ModelConfig{
			Name:              getEnv("MODEL_NAME", DefaultModelName),
			Context:           getEnvInt("MODEL_CONTEXT", 0),
			ReservedPromptPct: getEnvFloat("MODEL_RESERVED_PROMPT_PCT", DefaultReservedPromptPct),
		},
		Execution: ExecutionConfig{
			MaxParallel:        getEnvInt("EXECUTION_MAX_PARALLEL", DefaultMaxParallel),
			DefaultStepTimeout: getEnvDurationMS("EXECUTION_DEFAULT_STEP_TIMEOUT_MS", DefaultStepTimeout),
			PlanTimeout:        getEnvDurationMS("EXECUTION_PLAN_TIMEOUT_MS", DefaultPlanTimeout),
		},
		Retrieval: RetrievalConfig{
			ExpansionEnabled: getEnvBool("RETRIEVAL_EXPANSION_ENABLED", true),
			RerankingEnabled: getEnvBool("RETRIEVAL_RERANKING_ENABLED", false),
			Fusion:           models.FusionStrategy(getEnv("RETRIEVAL_FUSION_STRATEGY", string(models.FusionRRF))),
		},
		Backends: BackendToggles{
			Vector:     BackendToggle{Enabled: getEnvBool("VECTOR_BACKEND_ENABLED", true)},
			Graph:      BackendToggle{Enabled: getEnvBool("GRAPH_BACKEND_ENABLED", true)},
			Relational: BackendToggle{Enabled: getEnvBool("RELATIONAL_BACKEND_ENABLED", true)},
		},
		Hypothesis: HypothesisConfig{
			Enabled: getEnvBool("HYPOTHESIS_ENABLED", true),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Execution.MaxParallel < 1 {
		return fmt.Errorf("execution.max_parallel must be >= 1, got %d", c.Execution.MaxParallel)
	}
	if !c.Retrieval.Fusion.IsValid() {
		return fmt.Errorf("unknown fusion strategy %q", c.Retrieval.Fusion)
	}
	if c.Model.ReservedPromptPct <= 0 || c.Model.ReservedPromptPct >= 1 {
		return fmt.Errorf("model.reserved_prompt_pct must be in (0,1), got %v", c.Model.ReservedPromptPct)
	}
	return nil
}

// ContextWindow resolves the context window for a model name, preferring
// an explicit override, then the built-in table, then the conservative
// default.
func (c *Config) ContextWindow(model string) int {
	if model == c.Model.Name && c.Model.Context > 0 {
		return c.Model.Context
	}
	return ModelContextWindow(model)
}
