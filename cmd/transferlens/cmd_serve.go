package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transferlens/transferlens/internal/cache"
	"github.com/transferlens/transferlens/internal/config"
	"github.com/transferlens/transferlens/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		store := cache.New(cache.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			TTL:      a.cfg.Redis.TTL,
		})
		defer store.Close()

		if err := config.Watch(ctx, configPath(), nil); err != nil {
			log.Debug().Err(err).Msg("Config watcher unavailable")
		}

		server := httpapi.New(a.store.Repos, a.store, store, a.cfg.Server, a.cfg.RateLimit)
		return server.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
