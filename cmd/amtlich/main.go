// amtlich server: answers German administrative-law queries through a
// planned, multi-backend retrieval pipeline with streamed progress.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/amtlich/amtlich/pkg/agents"
	"github.com/amtlich/amtlich/pkg/api"
	"github.com/amtlich/amtlich/pkg/budget"
	"github.com/amtlich/amtlich/pkg/config"
	"github.com/amtlich/amtlich/pkg/datastore"
	"github.com/amtlich/amtlich/pkg/hypothesis"
	"github.com/amtlich/amtlich/pkg/intent"
	"github.com/amtlich/amtlich/pkg/llm"
	"github.com/amtlich/amtlich/pkg/process"
	"github.com/amtlich/amtlich/pkg/progress"
	"github.com/amtlich/amtlich/pkg/response"
	"github.com/amtlich/amtlich/pkg/retrieval"
	"github.com/amtlich/amtlich/pkg/service"
	"github.com/amtlich/amtlich/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envPath := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ctx := context.Background()

	// 1. Configuration (no credentials; those stay in pkg/datastore)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting amtlich",
		"version", version.Full(),
		"http_port", httpPort,
		"model", cfg.Model.Name,
		"max_parallel", cfg.Execution.MaxParallel)

	// 2. LLM client. Without one the pipeline still runs: intent falls
	// back to rules, hypotheses to defaults, answers degrade.
	var llmClient llm.Client
	var embedder llm.Embedder
	if openaiClient, err := llm.NewOpenAIClient(); err != nil {
		slog.Warn("LLM backend not configured, running degraded", "error", err)
	} else {
		llmClient = openaiClient
		embedder = openaiClient
	}

	// 3. Data backends. Connection failures degrade the backend rather
	// than aborting startup; health is probed eagerly for the log.
	facade := connectBackends(ctx, cfg)
	defer func() {
		if err := facade.Close(); err != nil {
			slog.Error("Error closing data backends", "error", err)
		}
	}()

	// 4. Retrieval engine and agent registry
	var reranker *retrieval.Reranker
	if cfg.Retrieval.RerankingEnabled && llmClient != nil {
		reranker = retrieval.NewReranker(llmClient, cfg.Model.Name, retrieval.RerankCombined)
	}
	engine := retrieval.NewEngine(facade, embedder, reranker, retrieval.Options{
		ExpansionEnabled: cfg.Retrieval.ExpansionEnabled,
		RerankingEnabled: cfg.Retrieval.RerankingEnabled,
		DefaultStrategy:  cfg.Retrieval.Fusion,
	})
	registry := agents.NewRegistry(agents.BuiltinDescriptors(engine)...)
	slog.Info("Agent registry initialized", "agents", registry.Len())

	// 5. Pipeline services
	classifier := intent.New(llmClient, cfg.Model.Name)
	hypotheses := hypothesis.New(llmClient, cfg.Model.Name)
	calculator := &budget.Calculator{
		ReservedPromptPct: cfg.Model.ReservedPromptPct,
		ContextWindow:     cfg.ContextWindow,
	}
	windows := &budget.WindowManager{
		ContextWindow: cfg.ContextWindow,
		SmallerModel:  config.SmallerModel,
	}
	generator := response.NewGenerator(llmClient, windows, cfg.Model.Name)
	dispatcher := process.NewDispatcher(engine, registry, generator)

	brokerCtx, brokerCancel := context.WithCancel(ctx)
	defer brokerCancel()
	broker := progress.NewBroker(brokerCtx)

	svc := service.NewQueryService(cfg, classifier, hypotheses, calculator, dispatcher, registry, broker)

	// 6. HTTP server
	server := api.NewServer(svc, registry, facade, engine)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(":" + httpPort); err != nil {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}

// connectBackends wires the enabled backends into the facade. A backend
// that fails to connect is left out; the engine treats it as degraded.
// Health is probed once at startup so misconfiguration shows in the log
// immediately, but never aborts the process.
func connectBackends(ctx context.Context, cfg *config.Config) *datastore.Facade {
	var vector datastore.VectorBackend
	if cfg.Backends.Vector.Enabled {
		backend, err := datastore.NewQdrantBackend()
		if err != nil {
			slog.Warn("Vector backend unavailable", "error", err)
		} else {
			vector = backend
		}
	}

	var graph datastore.GraphBackend
	if cfg.Backends.Graph.Enabled {
		backend, err := datastore.NewNeo4jBackend()
		if err != nil {
			slog.Warn("Graph backend unavailable", "error", err)
		} else {
			graph = backend
		}
	}

	var relational datastore.RelationalBackend
	if cfg.Backends.Relational.Enabled {
		backend, err := datastore.NewPostgresBackend(ctx)
		if err != nil {
			slog.Warn("Relational backend unavailable", "error", err)
		} else {
			relational = backend
		}
	}

	facade := datastore.NewFacade(vector, graph, relational)

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for backend, health := range facade.Health(probeCtx) {
		slog.Info("Backend probed", "backend", string(backend), "status", string(health.Status))
	}
	return facade
}
