package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// watchlistRepo implements WatchlistRepo for PostgreSQL.
type watchlistRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewWatchlistRepo creates the postgres watchlist repository.
func NewWatchlistRepo(db *sqlx.DB, timeout time.Duration) persistence.WatchlistRepo {
	return &watchlistRepo{db: db, timeout: timeout}
}

// Add follows a player for an anonymous user. Re-adding is a conflict.
func (r *watchlistRepo) Add(ctx context.Context, anonUserID, playerID string) (persistence.WatchlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	entry := persistence.WatchlistEntry{
		ID:         uuid.NewString(),
		AnonUserID: anonUserID,
		PlayerID:   playerID,
	}
	query := `
		INSERT INTO watchlists (id, anon_user_id, player_id)
		VALUES ($1, $2, $3)
		RETURNING created_at`
	if err := r.db.QueryRowxContext(ctx, query, entry.ID, anonUserID, playerID).Scan(&entry.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return entry, fmt.Errorf("watchlist entry: %w", domain.ErrConflict)
		}
		return entry, fmt.Errorf("failed to add watchlist entry: %w", err)
	}
	return entry, nil
}

// Remove unfollows a player.
func (r *watchlistRepo) Remove(ctx context.Context, anonUserID, playerID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM watchlists WHERE anon_user_id = $1 AND player_id = $2`,
		anonUserID, playerID)
	if err != nil {
		return fmt.Errorf("failed to remove watchlist entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("watchlist entry: %w", domain.ErrNotFound)
	}
	return nil
}

// ListForUser returns a user's followed players, newest first.
func (r *watchlistRepo) ListForUser(ctx context.Context, anonUserID string) ([]persistence.WatchlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var entries []persistence.WatchlistEntry
	query := `
		SELECT id, anon_user_id, player_id, created_at
		FROM watchlists
		WHERE anon_user_id = $1
		ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &entries, query, anonUserID); err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	return entries, nil
}
