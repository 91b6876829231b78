package main

import (
	"context"
	"fmt"

	"github.com/transferlens/transferlens/internal/candidates"
	"github.com/transferlens/transferlens/internal/config"
	"github.com/transferlens/transferlens/internal/evaluate"
	"github.com/transferlens/transferlens/internal/features"
	"github.com/transferlens/transferlens/internal/ingest"
	"github.com/transferlens/transferlens/internal/model"
	"github.com/transferlens/transferlens/internal/persistence/postgres"
	"github.com/transferlens/transferlens/internal/pipeline"
	"github.com/transferlens/transferlens/internal/predict"
	"github.com/transferlens/transferlens/internal/signals"
	"github.com/transferlens/transferlens/internal/temporal"
)

// app bundles the loaded configuration and the open store so subcommands
// share one wiring path.
type app struct {
	cfg   config.Config
	store *postgres.Store
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "config.yaml"
}

// newApp loads config and connects to the store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	store, err := postgres.Open(ctx, postgres.Config{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &app{cfg: cfg, store: store}, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) guard() *temporal.Guard {
	return temporal.NewGuard(a.store.Repos.Signals)
}

func (a *app) deriver() *signals.Deriver {
	return signals.NewDeriver(a.store.Repos.UserEvents, a.store.Repos.Signals, signals.Config{
		Window:     a.cfg.Derive.Window,
		Confidence: a.cfg.Derive.Confidence,
	})
}

func (a *app) engine() *candidates.Engine {
	cfg := candidates.DefaultConfig()
	if a.cfg.Model.MaxCandidates > 0 {
		cfg.MaxTotalCandidates = a.cfg.Model.MaxCandidates
	}
	return candidates.NewEngine(a.guard(), a.store.Repos.Reference, a.store.Repos.Candidates, cfg)
}

func (a *app) builder() *features.Builder {
	return features.NewBuilder(a.guard(), a.store.Repos.Reference)
}

func (a *app) frames() *features.TrainingSetBuilder {
	return features.NewTrainingSetBuilder(a.builder(), a.store.Repos.Transfers, a.store.Repos.Reference, nil)
}

func (a *app) trainer() *model.Trainer {
	return model.NewTrainer(a.frames(), a.store.Repos.Models, a.cfg.Model.StoragePath)
}

func (a *app) evaluator() *evaluate.Evaluator {
	return evaluate.NewEvaluator(a.frames(), a.store.Repos.Models)
}

func (a *app) runner() *predict.Runner {
	return predict.NewRunner(
		a.store.Repos.Reference,
		a.engine(),
		a.builder(),
		a.store.Repos.Predictions,
		a.store.Repos.Models,
		a.cfg.Model.MaxPredictionsPerPlayer,
	)
}

func (a *app) pipeline() *pipeline.Pipeline {
	return pipeline.New(a.deriver(), a.engine(), a.builder(), a.store.Repos.Features, a.runner(), a.store.Repos.Reference)
}

func (a *app) seeder() *ingest.Seeder {
	return ingest.NewSeeder(a.store.Repos)
}
