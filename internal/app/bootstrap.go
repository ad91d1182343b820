package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/internal/agent"
	"github.com/plumeline/plumeline/internal/enhancer"
	"github.com/plumeline/plumeline/internal/hybrid"
	"github.com/plumeline/plumeline/internal/ingest"
	"github.com/plumeline/plumeline/internal/intent"
	"github.com/plumeline/plumeline/internal/llm"
	"github.com/plumeline/plumeline/internal/orchestrator"
	"github.com/plumeline/plumeline/internal/perfstore"
	"github.com/plumeline/plumeline/internal/router"
	"github.com/plumeline/plumeline/internal/sources"
	"github.com/plumeline/plumeline/internal/vectordb"
	"github.com/plumeline/plumeline/storage"
)

// Bootstrap connects every backend and assembles a ready Engine. Close the
// returned cleanup function on shutdown.
func Bootstrap(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Engine, func(), error) {
	manager, err := llm.NewManager(cfg.AI, log)
	if err != nil {
		return nil, nil, fmt.Errorf("provider setup failed: %w", err)
	}

	perfClient, err := perfstore.New(ctx, cfg.PerfStore, log)
	if err != nil {
		return nil, nil, fmt.Errorf("performance store setup failed: %w", err)
	}

	vectorStore, err := vectordb.NewQdrantStore(cfg.Vector, manager, log)
	if err != nil {
		return nil, nil, fmt.Errorf("vector store setup failed: %w", err)
	}
	retriever := vectordb.NewRetriever(vectorStore, manager, cfg.Vector.TopKDefault, cfg.Vector.TopKMax, log)

	audit, err := storage.Open(cfg.Audit.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("audit store setup failed: %w", err)
	}

	watcher := config.NewWatcher(cfg, func(w *config.Watcher) {
		log.Info("configuration reloaded",
			zap.Float64("gate_threshold", w.GateThreshold()))
	})

	gate := intent.NewDomainGate(intent.GateConfig{Threshold: cfg.Gate.Threshold}, audit, log)
	gate.SetThresholdFunc(watcher.GateThreshold)

	extractor := intent.NewExtractor(manager, log)
	clarifier := intent.NewClarifier(intent.ClarifierConfig{MaxQuestions: cfg.Clarify.MaxQuestions}, manager, log)
	conceptRouter := router.NewConceptRouter()

	sourceManager := sources.NewManager(cfg.Sources, cfg.Ranking, manager, watcher, log)
	ingestService := ingest.NewService(vectorStore, cfg.Ingest, log)

	engine := hybrid.NewEngine(perfClient, retriever, manager, log)
	executor := orchestrator.NewExecutor(perfClient, log)
	answerer := agent.New(conceptRouter, engine, executor, manager, log)
	enhance := enhancer.New(manager, log)

	probes := map[string]HealthProber{
		"perf_store":   perfClient.Ping,
		"vector_store": vectorStore.Health,
		"audit_store":  audit.Ping,
		"provider": func(ctx context.Context) error {
			if !manager.IsHealthy(ctx) {
				return fmt.Errorf("primary provider unreachable")
			}
			return nil
		},
	}

	app := NewEngine(cfg, EngineDeps{
		Gate:      gate,
		Extractor: extractor,
		Clarifier: clarifier,
		Router:    conceptRouter,
		Answerer:  answerer,
		Enhancer:  enhance,
		Perf:      perfClient,
		Sources:   sourceManager,
		Ingester:  ingestService,
		Audit:     audit,
		Probes:    probes,
	}, log)

	cleanup := func() {
		if err := audit.Close(); err != nil {
			log.Warn("audit store close failed", zap.Error(err))
		}
	}
	return app, cleanup, nil
}
