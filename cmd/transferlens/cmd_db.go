package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transferlens/transferlens/internal/persistence/postgres"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Store maintenance",
}

var dbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify store connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Ping(cmd.Context()); err != nil {
			return err
		}
		log.Info().Msg("Store connection OK")
		return nil
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return postgres.Migrate(cmd.Context(), a.store.DB())
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Projection maintenance",
}

var refreshViewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Refresh the market view projection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Repos.Predictions.RefreshMarketView(cmd.Context()); err != nil {
			return err
		}
		log.Info().Msg("Market view refreshed")
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbCheckCmd, dbMigrateCmd)
	refreshCmd.AddCommand(refreshViewsCmd)
	rootCmd.AddCommand(dbCmd, refreshCmd)
}
