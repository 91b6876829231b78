// Package pipeline chains the daily batch stages: signal derivation,
// candidate generation, feature build, scoring. Stages run in order; player
// units inside the candidate stage fan out over a bounded worker pool.
package pipeline

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/candidates"
	"github.com/transferlens/transferlens/internal/features"
	"github.com/transferlens/transferlens/internal/metrics"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/predict"
	"github.com/transferlens/transferlens/internal/signals"
)

// Options selects what one daily run does.
type Options struct {
	AsOf        time.Time
	HorizonDays int

	SkipDerive     bool
	SkipCandidates bool
	SkipFeatures   bool
	SkipScore      bool

	// Workers bounds per-player parallelism; zero means
	// min(GOMAXPROCS, DB pool size).
	Workers    int
	DBPoolSize int
}

func (o *Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	n := runtime.GOMAXPROCS(0)
	if o.DBPoolSize > 0 && o.DBPoolSize < n {
		n = o.DBPoolSize
	}
	if n < 1 {
		n = 1
	}
	return n
}

// StageReport summarizes one stage of a run.
type StageReport struct {
	Name     string        `json:"name"`
	Skipped  bool          `json:"skipped"`
	Items    int           `json:"items"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// Report collects the per-stage outcomes of one daily run.
type Report struct {
	AsOf   time.Time     `json:"as_of"`
	Stages []StageReport `json:"stages"`
}

// Errors sums error counts across stages.
func (r Report) Errors() int {
	total := 0
	for _, stage := range r.Stages {
		total += stage.Errors
	}
	return total
}

// Pipeline wires the four daily stages.
type Pipeline struct {
	deriver      *signals.Deriver
	engine       *candidates.Engine
	builder      *features.Builder
	featureStore persistence.FeaturesRepo
	runner       *predict.Runner
	reference    persistence.ReferenceRepo
}

// New builds the daily pipeline.
func New(deriver *signals.Deriver, engine *candidates.Engine, builder *features.Builder, featureStore persistence.FeaturesRepo, runner *predict.Runner, reference persistence.ReferenceRepo) *Pipeline {
	return &Pipeline{
		deriver:      deriver,
		engine:       engine,
		builder:      builder,
		featureStore: featureStore,
		runner:       runner,
		reference:    reference,
	}
}

// Run executes the enabled stages in order. Per-unit failures are counted
// and the run continues; only context cancellation aborts it.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Report, error) {
	report := Report{AsOf: opts.AsOf}

	stages := []func(context.Context, Options) (StageReport, error){
		p.runDerive,
		p.runCandidates,
		p.runFeatures,
		p.runScore,
	}
	for _, run := range stages {
		stage, err := run(ctx, opts)
		report.Stages = append(report.Stages, stage)
		if !stage.Skipped {
			metrics.PipelineStageDuration.WithLabelValues(stage.Name).Observe(stage.Duration.Seconds())
			metrics.PipelineRowsWritten.WithLabelValues(stage.Name).Add(float64(stage.Items))
			metrics.PipelineStageErrors.WithLabelValues(stage.Name).Add(float64(stage.Errors))
		}
		if err != nil {
			return report, err
		}
	}

	log.Info().
		Time("as_of", opts.AsOf).
		Int("horizon_days", opts.HorizonDays).
		Int("errors", report.Errors()).
		Msg("Daily pipeline complete")
	return report, nil
}

func (p *Pipeline) runDerive(ctx context.Context, opts Options) (StageReport, error) {
	stage := StageReport{Name: "derive", Skipped: opts.SkipDerive}
	if opts.SkipDerive {
		return stage, nil
	}
	started := time.Now()

	stats, err := p.deriver.Run(ctx, opts.AsOf)
	stage.Duration = time.Since(started)
	if err != nil {
		stage.Errors++
		log.Error().Err(err).Msg("Derive stage failed, continuing")
		return stage, nil
	}
	stage.Items = stats.AttentionSignals + stats.CooccurrenceRows + stats.WatchlistAddRows
	stage.Errors = stats.Errors
	return stage, nil
}

func (p *Pipeline) runCandidates(ctx context.Context, opts Options) (StageReport, error) {
	stage := StageReport{Name: "candidates", Skipped: opts.SkipCandidates}
	if opts.SkipCandidates {
		return stage, nil
	}
	started := time.Now()

	players, err := p.reference.ListActivePlayers(ctx)
	if err != nil {
		stage.Errors++
		stage.Duration = time.Since(started)
		log.Error().Err(err).Msg("Candidate stage failed, continuing")
		return stage, nil
	}

	var generated, failed int64
	sem := make(chan struct{}, opts.workers())
	var wg sync.WaitGroup
	for _, player := range players {
		// Cancellation is observed between player units.
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(playerID string) {
			defer wg.Done()
			defer func() { <-sem }()
			set, err := p.engine.Generate(ctx, playerID, opts.AsOf, opts.HorizonDays)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				log.Warn().Err(err).Str("player_id", playerID).Msg("Candidate generation failed")
				return
			}
			if set != nil {
				atomic.AddInt64(&generated, 1)
			}
		}(player.ID)
	}
	wg.Wait()

	stage.Items = int(generated)
	stage.Errors = int(failed)
	stage.Duration = time.Since(started)
	return stage, ctx.Err()
}

func (p *Pipeline) runFeatures(ctx context.Context, opts Options) (StageReport, error) {
	stage := StageReport{Name: "features", Skipped: opts.SkipFeatures}
	if opts.SkipFeatures {
		return stage, nil
	}
	started := time.Now()

	stats, err := p.builder.BulkBuild(ctx, p.engine, p.featureStore, opts.AsOf, opts.HorizonDays)
	stage.Duration = time.Since(started)
	stage.Items = stats.Vectors
	stage.Errors = stats.Failures
	if err != nil {
		return stage, err
	}
	return stage, nil
}

func (p *Pipeline) runScore(ctx context.Context, opts Options) (StageReport, error) {
	stage := StageReport{Name: "score", Skipped: opts.SkipScore}
	if opts.SkipScore {
		return stage, nil
	}
	started := time.Now()

	stats, err := p.runner.Run(ctx, opts.AsOf, opts.HorizonDays)
	stage.Duration = time.Since(started)
	stage.Items = stats.Snapshots
	stage.Errors = stats.Failures
	if err != nil {
		return stage, err
	}
	return stage, nil
}
