package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	featAsOf    string
	featHorizon int
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Feature snapshot operations",
}

var featuresBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build point-in-time feature vectors for all candidate pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := resolveAsOf(featAsOf)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.builder().BulkBuild(cmd.Context(), a.engine(), a.store.Repos.Features, asOf, featHorizon)
		if err != nil {
			return err
		}
		log.Info().
			Int("players", stats.Players).
			Int("vectors", stats.Vectors).
			Int("skipped", stats.Skipped).
			Int("failures", stats.Failures).
			Msg("Feature build complete")
		return nil
	},
}

func init() {
	featuresBuildCmd.Flags().StringVar(&featAsOf, "as-of", "", "build as of this time")
	featuresBuildCmd.Flags().IntVar(&featHorizon, "horizon", 90, "horizon in days")
	featuresCmd.AddCommand(featuresBuildCmd)
	rootCmd.AddCommand(featuresCmd)
}
