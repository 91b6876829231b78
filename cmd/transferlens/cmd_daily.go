package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transferlens/transferlens/internal/pipeline"
)

var (
	dailyAsOf       string
	dailyHorizon    int
	dailyWorkers    int
	skipDerive      bool
	skipCandidates  bool
	skipFeatures    bool
	skipScore       bool
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Daily batch pipeline",
}

var dailyRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run derive, candidates, features and score in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		asOf, err := resolveAsOf(dailyAsOf)
		if err != nil {
			return err
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.pipeline().Run(ctx, pipeline.Options{
			AsOf:           asOf,
			HorizonDays:    dailyHorizon,
			SkipDerive:     skipDerive,
			SkipCandidates: skipCandidates,
			SkipFeatures:   skipFeatures,
			SkipScore:      skipScore,
			Workers:        dailyWorkers,
			DBPoolSize:     a.cfg.Database.MaxOpenConns,
		})
		for _, stage := range report.Stages {
			log.Info().
				Str("stage", stage.Name).
				Bool("skipped", stage.Skipped).
				Int("items", stage.Items).
				Int("errors", stage.Errors).
				Dur("duration", stage.Duration).
				Msg("Stage summary")
		}
		if err != nil {
			return err
		}
		if report.Errors() > 0 {
			return fmt.Errorf("daily run finished with %d errors", report.Errors())
		}
		return nil
	},
}

func init() {
	dailyRunCmd.Flags().StringVar(&dailyAsOf, "as-of", "", "run as of this time")
	dailyRunCmd.Flags().IntVar(&dailyHorizon, "horizon", 90, "horizon in days")
	dailyRunCmd.Flags().IntVar(&dailyWorkers, "workers", 0, "worker pool size (0 = auto)")
	dailyRunCmd.Flags().BoolVar(&skipDerive, "skip-derive", false, "skip the derive stage")
	dailyRunCmd.Flags().BoolVar(&skipCandidates, "skip-candidates", false, "skip the candidates stage")
	dailyRunCmd.Flags().BoolVar(&skipFeatures, "skip-features", false, "skip the features stage")
	dailyRunCmd.Flags().BoolVar(&skipScore, "skip-score", false, "skip the score stage")
	dailyCmd.AddCommand(dailyRunCmd)
	rootCmd.AddCommand(dailyCmd)
}
