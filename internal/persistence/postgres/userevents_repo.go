package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/transferlens/transferlens/internal/persistence"
)

// userEventsRepo implements UserEventsRepo for PostgreSQL.
type userEventsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUserEventsRepo creates the postgres user events repository.
func NewUserEventsRepo(db *sqlx.DB, timeout time.Duration) persistence.UserEventsRepo {
	return &userEventsRepo{db: db, timeout: timeout}
}

// Insert appends one pseudonymous interaction.
func (r *userEventsRepo) Insert(ctx context.Context, event persistence.UserEvent) (persistence.UserEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO user_events (
			id, anon_user_id, session_id, event_type, player_id, club_id,
			occurred_at, device_type, country_code, props_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		event.ID, event.AnonUserID, event.SessionID, event.EventType,
		event.PlayerID, event.ClubID, event.OccurredAt,
		event.DeviceType, event.CountryCode, nullableJSON(event.Props)).
		Scan(&event.CreatedAt)
	if err != nil {
		return event, fmt.Errorf("failed to insert user event: %w", err)
	}
	return event, nil
}

// AttentionCounts splits per-player view counts at the window midpoint.
// Players with fewer than 3 events in the window are excluded.
func (r *userEventsRepo) AttentionCounts(ctx context.Context, window persistence.TimeRange, midpoint time.Time) ([]persistence.AttentionCount, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT
			player_id,
			COUNT(*) FILTER (WHERE occurred_at >= $1) AS recent_views,
			COUNT(*) FILTER (WHERE occurred_at < $1) AS older_views,
			COUNT(*) AS total_views
		FROM user_events
		WHERE player_id IS NOT NULL
		  AND event_type IN ('player_view', 'watchlist_add', 'share')
		  AND occurred_at >= $2
		  AND occurred_at <= $3
		GROUP BY player_id
		HAVING COUNT(*) >= 3`

	var counts []persistence.AttentionCount
	if err := r.db.SelectContext(ctx, &counts, query, midpoint, window.From, window.To); err != nil {
		return nil, fmt.Errorf("failed to query attention counts: %w", err)
	}
	return counts, nil
}

// CooccurrenceCounts counts distinct sessions that viewed both a player and
// a club inside the window. Pairs below 2 sessions are excluded.
func (r *userEventsRepo) CooccurrenceCounts(ctx context.Context, window persistence.TimeRange) ([]persistence.CooccurrenceCount, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		WITH player_sessions AS (
			SELECT DISTINCT session_id, player_id
			FROM user_events
			WHERE player_id IS NOT NULL
			  AND event_type IN ('player_view', 'watchlist_add')
			  AND occurred_at >= $1
			  AND occurred_at <= $2
		),
		club_sessions AS (
			SELECT DISTINCT session_id, club_id
			FROM user_events
			WHERE club_id IS NOT NULL
			  AND event_type = 'club_view'
			  AND occurred_at >= $1
			  AND occurred_at <= $2
		)
		SELECT
			ps.player_id,
			cs.club_id,
			COUNT(DISTINCT ps.session_id) AS session_count
		FROM player_sessions ps
		JOIN club_sessions cs ON ps.session_id = cs.session_id
		GROUP BY ps.player_id, cs.club_id
		HAVING COUNT(DISTINCT ps.session_id) >= 2`

	var counts []persistence.CooccurrenceCount
	if err := r.db.SelectContext(ctx, &counts, query, window.From, window.To); err != nil {
		return nil, fmt.Errorf("failed to query cooccurrence counts: %w", err)
	}
	return counts, nil
}

// WatchlistAddCounts counts watchlist additions per player in the window.
func (r *userEventsRepo) WatchlistAddCounts(ctx context.Context, window persistence.TimeRange) ([]persistence.WatchlistAddCount, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT player_id, COUNT(*) AS add_count
		FROM user_events
		WHERE player_id IS NOT NULL
		  AND event_type = 'watchlist_add'
		  AND occurred_at >= $1
		  AND occurred_at <= $2
		GROUP BY player_id`

	var counts []persistence.WatchlistAddCount
	if err := r.db.SelectContext(ctx, &counts, query, window.From, window.To); err != nil {
		return nil, fmt.Errorf("failed to query watchlist add counts: %w", err)
	}
	return counts, nil
}
