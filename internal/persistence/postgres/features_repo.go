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

// featuresRepo implements FeaturesRepo for PostgreSQL.
type featuresRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFeaturesRepo creates the postgres feature snapshots repository.
func NewFeaturesRepo(db *sqlx.DB, timeout time.Duration) persistence.FeaturesRepo {
	return &featuresRepo{db: db, timeout: timeout}
}

type featureSnapshotRow struct {
	ID              string    `db:"id"`
	PlayerID        string    `db:"player_id"`
	CandidateClubID string    `db:"candidate_club_id"`
	AsOf            time.Time `db:"as_of"`
	FeaturesJSON    []byte    `db:"features_json"`
	FeatureVersion  string    `db:"feature_version"`
	CreatedAt       time.Time `db:"created_at"`
}

// Upsert caches one built vector, idempotent on (player, candidate_club, as_of).
func (r *featuresRepo) Upsert(ctx context.Context, snap persistence.FeatureSnapshot) (persistence.FeatureSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	featuresJSON, err := json.Marshal(snap.Features)
	if err != nil {
		return snap, fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO feature_snapshots (
			id, player_id, candidate_club_id, as_of, features_json, feature_version
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (player_id, candidate_club_id, as_of) DO UPDATE SET
			features_json = EXCLUDED.features_json,
			feature_version = EXCLUDED.feature_version
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		snap.ID, snap.PlayerID, snap.CandidateClubID, snap.AsOf, featuresJSON, snap.FeatureVersion).
		Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return snap, fmt.Errorf("failed to upsert feature snapshot: %w", err)
	}
	return snap, nil
}

// Get returns the cached vector for the exact key, or nil.
func (r *featuresRepo) Get(ctx context.Context, playerID, candidateClubID string, asOf time.Time) (*persistence.FeatureSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, player_id, candidate_club_id, as_of, features_json, feature_version, created_at
		FROM feature_snapshots
		WHERE player_id = $1 AND candidate_club_id = $2 AND as_of = $3`

	var row featureSnapshotRow
	if err := r.db.GetContext(ctx, &row, query, playerID, candidateClubID, asOf); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feature snapshot: %w", err)
	}

	snap := persistence.FeatureSnapshot{
		ID:              row.ID,
		PlayerID:        row.PlayerID,
		CandidateClubID: row.CandidateClubID,
		AsOf:            row.AsOf,
		FeatureVersion:  row.FeatureVersion,
		CreatedAt:       row.CreatedAt,
	}
	if len(row.FeaturesJSON) > 0 {
		if err := json.Unmarshal(row.FeaturesJSON, &snap.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features_json: %w", err)
		}
	}
	return &snap, nil
}
