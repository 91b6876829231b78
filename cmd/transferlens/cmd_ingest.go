package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var ingestAsOf string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load data into the store",
}

var ingestDemoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Seed a deterministic demo world",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveAsOf(ingestAsOf)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.seeder().Run(cmd.Context(), asOf)
		if err != nil {
			return err
		}
		log.Info().
			Int("players", stats.Players).
			Int("signals", stats.Signals).
			Int("transfers", stats.Transfers).
			Msg("Demo ingest complete")
		return nil
	},
}

// resolveAsOf parses an --as-of flag, defaulting to now.
func resolveAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func init() {
	ingestDemoCmd.Flags().StringVar(&ingestAsOf, "as-of", "", "seed relative to this date (RFC3339 or YYYY-MM-DD)")
	ingestCmd.AddCommand(ingestDemoCmd)
	rootCmd.AddCommand(ingestCmd)
}
