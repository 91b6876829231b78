package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/transferlens/transferlens/internal/persistence"
)

// candidatesRepo implements CandidatesRepo for PostgreSQL.
type candidatesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCandidatesRepo creates the postgres candidate sets repository.
func NewCandidatesRepo(db *sqlx.DB, timeout time.Duration) persistence.CandidatesRepo {
	return &candidatesRepo{db: db, timeout: timeout}
}

// candidateSetRow carries the JSONB columns as raw bytes for scanning.
type candidateSetRow struct {
	ID                 string    `db:"id"`
	PlayerID           string    `db:"player_id"`
	AsOf               time.Time `db:"as_of"`
	HorizonDays        int       `db:"horizon_days"`
	FromClubID         *string   `db:"from_club_id"`
	TotalCandidates    int       `db:"total_candidates"`
	LeagueCount        int       `db:"league_count"`
	SocialCount        int       `db:"social_count"`
	UserAttentionCount int       `db:"user_attention_count"`
	ConstraintFitCount int       `db:"constraint_fit_count"`
	RandomCount        int       `db:"random_count"`
	CandidatesJSON     []byte    `db:"candidates_json"`
	PlayerContextJSON  []byte    `db:"player_context_json"`
	CreatedAt          time.Time `db:"created_at"`
}

func (row candidateSetRow) toSet() (persistence.CandidateSet, error) {
	set := persistence.CandidateSet{
		ID:                 row.ID,
		PlayerID:           row.PlayerID,
		AsOf:               row.AsOf,
		HorizonDays:        row.HorizonDays,
		FromClubID:         row.FromClubID,
		TotalCandidates:    row.TotalCandidates,
		LeagueCount:        row.LeagueCount,
		SocialCount:        row.SocialCount,
		UserAttentionCount: row.UserAttentionCount,
		ConstraintFitCount: row.ConstraintFitCount,
		RandomCount:        row.RandomCount,
		CreatedAt:          row.CreatedAt,
	}
	if len(row.CandidatesJSON) > 0 {
		if err := json.Unmarshal(row.CandidatesJSON, &set.Candidates); err != nil {
			return set, fmt.Errorf("failed to decode candidates_json: %w", err)
		}
	}
	if len(row.PlayerContextJSON) > 0 {
		if err := json.Unmarshal(row.PlayerContextJSON, &set.PlayerContext); err != nil {
			return set, fmt.Errorf("failed to decode player_context_json: %w", err)
		}
	}
	return set, nil
}

const candidateSetColumns = `
	id, player_id, as_of, horizon_days, from_club_id, total_candidates,
	league_count, social_count, user_attention_count, constraint_fit_count, random_count,
	candidates_json, player_context_json, created_at`

// Upsert writes the set, refreshing the payload on conflict with the
// (player, as_of, horizon) natural key.
func (r *candidatesRepo) Upsert(ctx context.Context, set persistence.CandidateSet) (persistence.CandidateSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if set.ID == "" {
		set.ID = uuid.NewString()
	}
	candidatesJSON, err := json.Marshal(set.Candidates)
	if err != nil {
		return set, fmt.Errorf("failed to marshal candidates: %w", err)
	}
	contextJSON, err := json.Marshal(set.PlayerContext)
	if err != nil {
		return set, fmt.Errorf("failed to marshal player context: %w", err)
	}

	query := `
		INSERT INTO candidate_sets (
			id, player_id, as_of, horizon_days, from_club_id, total_candidates,
			league_count, social_count, user_attention_count, constraint_fit_count, random_count,
			candidates_json, player_context_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (player_id, as_of, horizon_days) DO UPDATE SET
			from_club_id = EXCLUDED.from_club_id,
			total_candidates = EXCLUDED.total_candidates,
			league_count = EXCLUDED.league_count,
			social_count = EXCLUDED.social_count,
			user_attention_count = EXCLUDED.user_attention_count,
			constraint_fit_count = EXCLUDED.constraint_fit_count,
			random_count = EXCLUDED.random_count,
			candidates_json = EXCLUDED.candidates_json,
			player_context_json = EXCLUDED.player_context_json
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		set.ID, set.PlayerID, set.AsOf, set.HorizonDays, set.FromClubID, set.TotalCandidates,
		set.LeagueCount, set.SocialCount, set.UserAttentionCount, set.ConstraintFitCount, set.RandomCount,
		candidatesJSON, contextJSON).
		Scan(&set.ID, &set.CreatedAt)
	if err != nil {
		return set, fmt.Errorf("failed to upsert candidate set: %w", err)
	}
	return set, nil
}

// Get returns the cached set for the exact (player, as_of, horizon) key.
func (r *candidatesRepo) Get(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*persistence.CandidateSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM candidate_sets
		WHERE player_id = $1 AND as_of = $2 AND horizon_days = $3`, candidateSetColumns)

	var row candidateSetRow
	if err := r.db.GetContext(ctx, &row, query, playerID, asOf, horizonDays); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get candidate set: %w", err)
	}
	set, err := row.toSet()
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// LatestForPlayer returns the player's newest set across horizons.
func (r *candidatesRepo) LatestForPlayer(ctx context.Context, playerID string) (*persistence.CandidateSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM candidate_sets
		WHERE player_id = $1
		ORDER BY as_of DESC, horizon_days ASC
		LIMIT 1`, candidateSetColumns)

	var row candidateSetRow
	if err := r.db.GetContext(ctx, &row, query, playerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest candidate set: %w", err)
	}
	set, err := row.toSet()
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// ListRecent returns sets at or before asOf, newest first, for audits.
func (r *candidatesRepo) ListRecent(ctx context.Context, asOf time.Time, limit int) ([]persistence.CandidateSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM candidate_sets
		WHERE as_of <= $1
		ORDER BY as_of DESC, created_at DESC
		LIMIT $2`, candidateSetColumns)

	var rows []candidateSetRow
	if err := r.db.SelectContext(ctx, &rows, query, asOf, limit); err != nil {
		return nil, fmt.Errorf("failed to list candidate sets: %w", err)
	}

	sets := make([]persistence.CandidateSet, 0, len(rows))
	for _, row := range rows {
		set, err := row.toSet()
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}
