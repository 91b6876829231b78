package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// signalsRepo implements SignalsRepo for PostgreSQL.
type signalsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalsRepo creates the postgres signal events repository.
func NewSignalsRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalsRepo {
	return &signalsRepo{db: db, timeout: timeout}
}

const signalColumns = `
	id, entity_type, player_id, club_id, signal_type,
	value_num, value_text, value_json, source, source_id, confidence,
	observed_at, effective_from, effective_to, created_at`

// Insert appends one signal row. Updates are never issued against
// signal_events; corrections are new rows with later effective_from.
func (r *signalsRepo) Insert(ctx context.Context, event persistence.SignalEvent) (persistence.SignalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := event.Validate(); err != nil {
		return event, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO signal_events (
			id, entity_type, player_id, club_id, signal_type,
			value_num, value_text, value_json, source, source_id, confidence,
			observed_at, effective_from, effective_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		event.ID, event.EntityType, event.PlayerID, event.ClubID, event.SignalType,
		event.ValueNum, event.ValueText, nullableJSON(event.ValueJSON), event.Source,
		event.SourceID, event.Confidence,
		event.ObservedAt, event.EffectiveFrom, event.EffectiveTo).
		Scan(&event.CreatedAt)
	if err != nil {
		return event, fmt.Errorf("failed to insert signal event: %w", err)
	}
	return event, nil
}

// InsertBatch appends many signal rows in one transaction, returning the
// inserted count.
func (r *signalsRepo) InsertBatch(ctx context.Context, events []persistence.SignalEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(events)/200+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signal_events (
			id, entity_type, player_id, club_id, signal_type,
			value_num, value_text, value_json, source, source_id, confidence,
			observed_at, effective_from, effective_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, event := range events {
		if err := event.Validate(); err != nil {
			return inserted, fmt.Errorf("signal batch row %d: %w", inserted, err)
		}
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			event.ID, event.EntityType, event.PlayerID, event.ClubID, event.SignalType,
			event.ValueNum, event.ValueText, nullableJSON(event.ValueJSON), event.Source,
			event.SourceID, event.Confidence,
			event.ObservedAt, event.EffectiveFrom, event.EffectiveTo); err != nil {
			return inserted, fmt.Errorf("failed to insert signal in batch: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit signal batch: %w", err)
	}
	return inserted, nil
}

// LatestAsOf returns the known truth at q.AsOf: the row with the greatest
// effective_from among those observed and effective by then, still holding.
// This is the one place the bitemporal predicate is written.
func (r *signalsRepo) LatestAsOf(ctx context.Context, q persistence.LatestQuery) (*persistence.SignalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		entityCond string
		args       []interface{}
	)
	switch q.EntityType {
	case domain.EntityPlayer:
		entityCond = "player_id = $1 AND club_id IS NULL"
		args = []interface{}{q.PlayerID}
	case domain.EntityClub:
		entityCond = "club_id = $1 AND player_id IS NULL"
		args = []interface{}{q.ClubID}
	case domain.EntityPair:
		entityCond = "player_id = $1 AND club_id = $2"
		args = []interface{}{q.PlayerID, q.ClubID}
	default:
		return nil, fmt.Errorf("latest signal: unknown entity type %q", q.EntityType)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM signal_events
		WHERE %s
		  AND entity_type = $%d
		  AND signal_type = $%d
		  AND observed_at <= $%d
		  AND effective_from <= $%d
		  AND (effective_to IS NULL OR effective_to > $%d)
		ORDER BY effective_from DESC, observed_at DESC
		LIMIT 1`,
		signalColumns, entityCond,
		len(args)+1, len(args)+2, len(args)+3, len(args)+3, len(args)+3)
	args = append(args, q.EntityType, q.SignalType, q.AsOf)

	var event persistence.SignalEvent
	if err := r.db.GetContext(ctx, &event, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest signal: %w", err)
	}
	return &event, nil
}

// LatestManyAsOf answers the bitemporal read for several signal types of
// one entity in a single query, one row per type present.
func (r *signalsRepo) LatestManyAsOf(ctx context.Context, q persistence.LatestQuery, types []domain.SignalType) (map[domain.SignalType]*persistence.SignalEvent, error) {
	if len(types) == 0 {
		return map[domain.SignalType]*persistence.SignalEvent{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		entityCond string
		args       []interface{}
	)
	switch q.EntityType {
	case domain.EntityPlayer:
		entityCond = "player_id = $1 AND club_id IS NULL"
		args = []interface{}{q.PlayerID}
	case domain.EntityClub:
		entityCond = "club_id = $1 AND player_id IS NULL"
		args = []interface{}{q.ClubID}
	case domain.EntityPair:
		entityCond = "player_id = $1 AND club_id = $2"
		args = []interface{}{q.PlayerID, q.ClubID}
	default:
		return nil, fmt.Errorf("latest signals: unknown entity type %q", q.EntityType)
	}

	typeStrings := make([]string, len(types))
	for i, t := range types {
		typeStrings[i] = string(t)
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT ON (signal_type) %s
		FROM signal_events
		WHERE %s
		  AND entity_type = $%d
		  AND signal_type = ANY($%d)
		  AND observed_at <= $%d
		  AND effective_from <= $%d
		  AND (effective_to IS NULL OR effective_to > $%d)
		ORDER BY signal_type, effective_from DESC, observed_at DESC`,
		signalColumns, entityCond,
		len(args)+1, len(args)+2, len(args)+3, len(args)+3, len(args)+3)
	args = append(args, q.EntityType, pq.Array(typeStrings), q.AsOf)

	var events []persistence.SignalEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query latest signals: %w", err)
	}

	out := make(map[domain.SignalType]*persistence.SignalEvent, len(events))
	for i := range events {
		out[events[i].SignalType] = &events[i]
	}
	return out, nil
}

// ListForPlayer returns as-of bounded history, newest first. The same
// bitemporal predicate applies so the listing never reveals rows unknown
// at asOf.
func (r *signalsRepo) ListForPlayer(ctx context.Context, playerID string, signalType *domain.SignalType, asOf time.Time, limit int) ([]persistence.SignalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s
		FROM signal_events
		WHERE player_id = $1
		  AND observed_at <= $2
		  AND effective_from <= $2
		  AND ($3::text IS NULL OR signal_type = $3)
		ORDER BY effective_from DESC, observed_at DESC
		LIMIT $4`, signalColumns)

	var typeArg *string
	if signalType != nil {
		s := string(*signalType)
		typeArg = &s
	}

	var events []persistence.SignalEvent
	if err := r.db.SelectContext(ctx, &events, query, playerID, asOf, typeArg, limit); err != nil {
		return nil, fmt.Errorf("failed to list player signals: %w", err)
	}
	return events, nil
}

// LatestPairsAsOf returns the latest pair signal per club for one player at
// asOf, filtered by a minimum numeric value. Used by the social and
// user-attention candidate sources.
func (r *signalsRepo) LatestPairsAsOf(ctx context.Context, playerID string, signalType domain.SignalType, asOf time.Time, minValue float64, limit int) ([]persistence.SignalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT DISTINCT ON (club_id) %s
			FROM signal_events
			WHERE player_id = $1
			  AND club_id IS NOT NULL
			  AND entity_type = 'club_player_pair'
			  AND signal_type = $2
			  AND observed_at <= $3
			  AND effective_from <= $3
			  AND (effective_to IS NULL OR effective_to > $3)
			ORDER BY club_id, effective_from DESC, observed_at DESC
		) latest
		WHERE value_num >= $4
		ORDER BY value_num DESC
		LIMIT $5`, signalColumns, signalColumns)

	var events []persistence.SignalEvent
	if err := r.db.SelectContext(ctx, &events, query, playerID, signalType, asOf, minValue, limit); err != nil {
		return nil, fmt.Errorf("failed to query latest pair signals: %w", err)
	}
	return events, nil
}

// LatestPerType returns the newest row per signal type, for "current state"
// readers that do not time travel.
func (r *signalsRepo) LatestPerType(ctx context.Context, playerID string) ([]persistence.SignalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT %s,
			       ROW_NUMBER() OVER (
			           PARTITION BY signal_type
			           ORDER BY effective_from DESC, observed_at DESC
			       ) AS rn
			FROM signal_events
			WHERE player_id = $1
		) ranked
		WHERE rn = 1
		ORDER BY signal_type`, signalColumns, signalColumns)

	var events []persistence.SignalEvent
	if err := r.db.SelectContext(ctx, &events, query, playerID); err != nil {
		return nil, fmt.Errorf("failed to query latest signals per type: %w", err)
	}
	return events, nil
}

// ListInWindow returns a player's signals inside the window ordered by
// effective_from ascending, for delta detection.
func (r *signalsRepo) ListInWindow(ctx context.Context, playerID string, window persistence.TimeRange) ([]persistence.SignalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s
		FROM signal_events
		WHERE player_id = $1
		  AND effective_from >= $2
		  AND effective_from <= $3
		  AND observed_at <= $3
		ORDER BY signal_type, effective_from ASC, observed_at ASC`, signalColumns)

	var events []persistence.SignalEvent
	if err := r.db.SelectContext(ctx, &events, query, playerID, window.From, window.To); err != nil {
		return nil, fmt.Errorf("failed to list signals in window: %w", err)
	}
	return events, nil
}

// nullableJSON keeps empty JSON payloads as SQL NULL instead of ''.
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
