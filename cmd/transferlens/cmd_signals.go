package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transferlens/transferlens/internal/signals"
)

var (
	deriveWindow string
	deriveAsOf   string
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Signal store operations",
}

var signalsDeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive attention and co-occurrence signals from user events",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveAsOf(deriveAsOf)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := signals.Config{Window: a.cfg.Derive.Window, Confidence: a.cfg.Derive.Confidence}
		if deriveWindow != "" {
			if cfg.Window, err = signals.ParseWindow(deriveWindow); err != nil {
				return err
			}
		}

		deriver := signals.NewDeriver(a.store.Repos.UserEvents, a.store.Repos.Signals, cfg)
		stats, err := deriver.Run(cmd.Context(), asOf)
		if err != nil {
			return err
		}
		log.Info().
			Int("attention", stats.AttentionSignals).
			Int("cooccurrence", stats.CooccurrenceRows).
			Int("watchlist_adds", stats.WatchlistAddRows).
			Int("errors", stats.Errors).
			Msg("Derivation complete")
		return nil
	},
}

func init() {
	signalsDeriveCmd.Flags().StringVar(&deriveWindow, "window", "", "derivation window, e.g. 24h or 7d")
	signalsDeriveCmd.Flags().StringVar(&deriveAsOf, "as-of", "", "derive as of this time")
	signalsCmd.AddCommand(signalsDeriveCmd)
	rootCmd.AddCommand(signalsCmd)
}
