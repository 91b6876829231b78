package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/persistence"
)

// Config holds postgres connection settings.
type Config struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout" json:"query_timeout"`
}

// Defaults fills zero fields with production-safe values.
func (c *Config) Defaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}
}

// Store owns the connection pool and the repository set built on it.
type Store struct {
	db     *sqlx.DB
	config Config
	Repos  persistence.Repositories
}

// Open connects, configures the pool, verifies connectivity, and wires all
// repositories.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.Defaults()
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: empty DSN")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, config: cfg}
	t := cfg.QueryTimeout
	s.Repos = persistence.Repositories{
		Signals:     NewSignalsRepo(db, t),
		Transfers:   NewTransfersRepo(db, t),
		Candidates:  NewCandidatesRepo(db, t),
		Features:    NewFeaturesRepo(db, t),
		Predictions: NewPredictionsRepo(db, t),
		Models:      NewModelsRepo(db, t),
		UserEvents:  NewUserEventsRepo(db, t),
		Reference:   NewReferenceRepo(db, t),
		Watchlist:   NewWatchlistRepo(db, t),
	}

	log.Info().
		Int("max_open_conns", cfg.MaxOpenConns).
		Dur("query_timeout", cfg.QueryTimeout).
		Msg("Connected to postgres")

	return s, nil
}

// DB exposes the pool for migrations and health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Ping verifies connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}
