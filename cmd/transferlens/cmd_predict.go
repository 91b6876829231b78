package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	predictAsOf    string
	predictHorizon int
	predictMaxCand int
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Scoring operations",
}

var predictRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Score all active players and refresh the market view",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveAsOf(predictAsOf)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if predictMaxCand > 0 {
			a.cfg.Model.MaxCandidates = predictMaxCand
		}

		stats, err := a.runner().Run(cmd.Context(), asOf, predictHorizon)
		if err != nil {
			return err
		}
		log.Info().
			Int("players", stats.Players).
			Int("snapshots", stats.Snapshots).
			Int("skipped", stats.Skipped).
			Int("failures", stats.Failures).
			Msg("Scoring run complete")
		return nil
	},
}

var predictPlayerCmd = &cobra.Command{
	Use:   "player <player_id>",
	Short: "Score one player and print the snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveAsOf(predictAsOf)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		snapshots, err := a.runner().ScorePlayer(cmd.Context(), args[0], asOf, predictHorizon)
		if err != nil {
			return err
		}
		return printJSON(snapshots)
	},
}

func init() {
	predictCmd.PersistentFlags().StringVar(&predictAsOf, "as-of", "", "score as of this time")
	predictCmd.PersistentFlags().IntVar(&predictHorizon, "horizon", 90, "horizon in days")
	predictRunCmd.Flags().IntVar(&predictMaxCand, "max-candidates", 0, "override candidate cap")
	predictCmd.AddCommand(predictRunCmd, predictPlayerCmd)
	rootCmd.AddCommand(predictCmd)
}
