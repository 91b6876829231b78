package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	candAsOf     string
	candHorizon  int
	candPlayerID string
	auditAsOf    string
	auditLimit   int
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Candidate set operations",
}

var candidatesGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate candidate sets for one player or all active players",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveAsOf(candAsOf)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		engine := a.engine()

		if candPlayerID != "" {
			set, err := engine.Generate(cmd.Context(), candPlayerID, asOf, candHorizon)
			if err != nil {
				return err
			}
			return printJSON(set)
		}

		players, err := a.store.Repos.Reference.ListActivePlayers(cmd.Context())
		if err != nil {
			return err
		}
		generated, failed := 0, 0
		for _, player := range players {
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			if _, err := engine.Generate(cmd.Context(), player.ID, asOf, candHorizon); err != nil {
				failed++
				log.Warn().Err(err).Str("player_id", player.ID).Msg("Candidate generation failed")
				continue
			}
			generated++
		}
		log.Info().Int("generated", generated).Int("failed", failed).Msg("Candidate generation complete")
		if failed > 0 && generated == 0 {
			return fmt.Errorf("all %d candidate generations failed", failed)
		}
		return nil
	},
}

var candidatesShowCmd = &cobra.Command{
	Use:   "show <player_id>",
	Short: "Print the latest candidate set for a player",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		set, err := a.store.Repos.Candidates.LatestForPlayer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if set == nil {
			return fmt.Errorf("no candidate set for player %s", args[0])
		}
		return printJSON(set)
	},
}

var candidatesAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent candidate sets with per-source counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveAsOf(auditAsOf)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sets, err := a.store.Repos.Candidates.ListRecent(cmd.Context(), asOf, auditLimit)
		if err != nil {
			return err
		}
		for _, set := range sets {
			fmt.Printf("%-20s as_of=%s total=%-3d league=%d social=%d attention=%d constraint=%d random=%d\n",
				set.PlayerID, set.AsOf.Format("2006-01-02"), set.TotalCandidates,
				set.LeagueCount, set.SocialCount, set.UserAttentionCount, set.ConstraintFitCount, set.RandomCount)
		}
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	candidatesGenerateCmd.Flags().StringVar(&candAsOf, "as-of", "", "generate as of this time")
	candidatesGenerateCmd.Flags().IntVar(&candHorizon, "horizon", 90, "horizon in days")
	candidatesGenerateCmd.Flags().StringVar(&candPlayerID, "player-id", "", "restrict to one player")
	candidatesAuditCmd.Flags().StringVar(&auditAsOf, "as-of", "", "audit sets at this time")
	candidatesAuditCmd.Flags().IntVar(&auditLimit, "limit", 50, "max sets to list")
	candidatesCmd.AddCommand(candidatesGenerateCmd, candidatesShowCmd, candidatesAuditCmd)
	rootCmd.AddCommand(candidatesCmd)
}
