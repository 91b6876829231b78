package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transferlens/transferlens/internal/pipeline"
)

var (
	scheduleSpec    string
	scheduleHorizon int
	scheduleOnce    bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the daily pipeline on a cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		p := a.pipeline()

		runOnce := func() {
			asOf := time.Now().UTC()
			report, err := p.Run(ctx, pipeline.Options{
				AsOf:        asOf,
				HorizonDays: scheduleHorizon,
				DBPoolSize:  a.cfg.Database.MaxOpenConns,
			})
			if err != nil {
				log.Error().Err(err).Msg("Scheduled run aborted")
				return
			}
			log.Info().Time("as_of", asOf).Int("errors", report.Errors()).Msg("Scheduled run complete")
		}

		if scheduleOnce {
			runOnce()
			return nil
		}

		scheduler := cron.New()
		if _, err := scheduler.AddFunc(scheduleSpec, runOnce); err != nil {
			return err
		}
		scheduler.Start()
		log.Info().Str("cron", scheduleSpec).Msg("Scheduler started")

		<-ctx.Done()
		stopCtx := scheduler.Stop()
		// Let an in-flight run finish before exiting.
		<-stopCtx.Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "0 6 * * *", "cron expression for the daily run")
	scheduleCmd.Flags().IntVar(&scheduleHorizon, "horizon", 90, "horizon in days")
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "run immediately once and exit")
	rootCmd.AddCommand(scheduleCmd)
}
