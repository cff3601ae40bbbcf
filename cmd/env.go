package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/checkpoint"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/config"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/infer"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/monitoring"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/orchestrator"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/validate"
)

// env wires the pipeline dependencies for a command invocation.
type env struct {
	Store     checkpoint.Store
	Orch      *orchestrator.Orchestrator
	Processor *orchestrator.Processor
	Recorder  *monitoring.Recorder
}

// initEnv builds the checkpoint store, validator, assisted extractor, and
// orchestrator from configuration.
func initEnv(ctx context.Context) (*env, error) {
	store, err := openStore(ctx, cfg.Checkpoint)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	validator := validate.New(validate.Config{
		MinCoreCoverage:  cfg.Pipeline.MinCoreCoverage,
		BalanceTolerance: cfg.Pipeline.BalanceTolerance,
	})

	inferClient := infer.NewAnthropic(infer.Config{
		APIKey:         cfg.Infer.APIKey,
		Model:          cfg.Infer.Model,
		MaxTokens:      cfg.Infer.MaxTokens,
		MaxExcerpt:     cfg.Infer.MaxExcerpt,
		RequestsPerSec: cfg.Infer.RequestsPerSec,
	})

	recorder := monitoring.NewRecorder()
	sink := orchestrator.MultiSink{recorder, orchestrator.LogSink()}

	orch := orchestrator.New(orchestrator.Config{
		MinCoreCoverage: cfg.Pipeline.MinCoreCoverage,
		MinConfidence:   cfg.Pipeline.MinConfidence,
		InferTimeout:    time.Duration(cfg.Pipeline.InferTimeoutSecs) * time.Second,
	}, validator, store, inferClient, sink)

	return &env{
		Store:     store,
		Orch:      orch,
		Processor: orchestrator.NewProcessor(orch, store, cfg.Batch.Concurrency, cfg.Batch.QueueDepth),
		Recorder:  recorder,
	}, nil
}

func (e *env) Close() {
	_ = e.Store.Close()
}

func openStore(ctx context.Context, cc config.CheckpointConfig) (checkpoint.Store, error) {
	var (
		durable checkpoint.Store
		err     error
	)
	switch cc.Driver {
	case "postgres":
		durable, err = checkpoint.NewPostgres(ctx, cc.DatabaseURL)
	case "sqlite", "":
		durable, err = checkpoint.NewSQLite(cc.SQLitePath)
	default:
		return nil, eris.Errorf("unknown checkpoint driver %q", cc.Driver)
	}
	if err != nil {
		return nil, err
	}
	if cc.Cache {
		return checkpoint.NewCached(durable), nil
	}
	return durable, nil
}
