package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/persistence"
)

// predictionsRepo implements PredictionsRepo for PostgreSQL.
type predictionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPredictionsRepo creates the postgres prediction snapshots repository.
func NewPredictionsRepo(db *sqlx.DB, timeout time.Duration) persistence.PredictionsRepo {
	return &predictionsRepo{db: db, timeout: timeout}
}

type predictionRow struct {
	ID           string    `db:"id"`
	SnapshotID   string    `db:"snapshot_id"`
	ModelVersion string    `db:"model_version"`
	ModelName    string    `db:"model_name"`
	PlayerID     string    `db:"player_id"`
	FromClubID   *string   `db:"from_club_id"`
	ToClubID     *string   `db:"to_club_id"`
	HorizonDays  int       `db:"horizon_days"`
	Probability  float64   `db:"probability"`
	DriversJSON  []byte    `db:"drivers_json"`
	FeaturesJSON []byte    `db:"features_json"`
	AsOf         time.Time `db:"as_of"`
	WindowStart  time.Time `db:"window_start"`
	WindowEnd    time.Time `db:"window_end"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row predictionRow) toSnapshot() (persistence.PredictionSnapshot, error) {
	snap := persistence.PredictionSnapshot{
		ID:           row.ID,
		SnapshotID:   row.SnapshotID,
		ModelVersion: row.ModelVersion,
		ModelName:    row.ModelName,
		PlayerID:     row.PlayerID,
		FromClubID:   row.FromClubID,
		ToClubID:     row.ToClubID,
		HorizonDays:  row.HorizonDays,
		Probability:  row.Probability,
		Features:     row.FeaturesJSON,
		AsOf:         row.AsOf,
		WindowStart:  row.WindowStart,
		WindowEnd:    row.WindowEnd,
		CreatedAt:    row.CreatedAt,
	}
	if len(row.DriversJSON) > 0 {
		if err := json.Unmarshal(row.DriversJSON, &snap.Drivers); err != nil {
			return snap, fmt.Errorf("failed to decode drivers_json: %w", err)
		}
	}
	return snap, nil
}

const predictionColumns = `
	id, snapshot_id, model_version, model_name, player_id, from_club_id, to_club_id,
	horizon_days, probability, drivers_json, features_json,
	as_of, window_start, window_end, created_at`

// Upsert writes one snapshot keyed by its deterministic snapshot_id.
// Snapshots are append-only in spirit; the conflict arm only refreshes the
// payload for an identical snapshot_id produced by a re-run.
func (r *predictionsRepo) Upsert(ctx context.Context, snap persistence.PredictionSnapshot) (persistence.PredictionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := snap.Validate(); err != nil {
		return snap, err
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	driversJSON, err := json.Marshal(snap.Drivers)
	if err != nil {
		return snap, fmt.Errorf("failed to marshal drivers: %w", err)
	}

	query := `
		INSERT INTO prediction_snapshots (
			id, snapshot_id, model_version, model_name, player_id, from_club_id, to_club_id,
			horizon_days, probability, drivers_json, features_json,
			as_of, window_start, window_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (snapshot_id) DO UPDATE SET
			probability = EXCLUDED.probability,
			drivers_json = EXCLUDED.drivers_json,
			features_json = EXCLUDED.features_json,
			model_version = EXCLUDED.model_version
		RETURNING id, created_at`

	err = r.db.QueryRowxContext(ctx, query,
		snap.ID, snap.SnapshotID, snap.ModelVersion, snap.ModelName,
		snap.PlayerID, snap.FromClubID, snap.ToClubID,
		snap.HorizonDays, snap.Probability, driversJSON, nullableJSON(snap.Features),
		snap.AsOf, snap.WindowStart, snap.WindowEnd).
		Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return snap, fmt.Errorf("failed to upsert prediction snapshot: %w", err)
	}
	return snap, nil
}

// LatestForPlayer returns the newest snapshot per distinct destination club.
func (r *predictionsRepo) LatestForPlayer(ctx context.Context, playerID string, limit int) ([]persistence.PredictionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT DISTINCT ON (to_club_id, horizon_days) %s
			FROM prediction_snapshots
			WHERE player_id = $1
			ORDER BY to_club_id, horizon_days, as_of DESC
		) latest
		ORDER BY probability DESC
		LIMIT $2`, predictionColumns, predictionColumns)

	var rows []predictionRow
	if err := r.db.SelectContext(ctx, &rows, query, playerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list latest predictions: %w", err)
	}
	return r.toSnapshots(rows)
}

// ListForPlayer returns snapshot history bounded by as_of, newest first.
func (r *predictionsRepo) ListForPlayer(ctx context.Context, playerID string, asOf time.Time, horizonDays *int, limit int) ([]persistence.PredictionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s
		FROM prediction_snapshots
		WHERE player_id = $1
		  AND as_of <= $2
		  AND ($3::int IS NULL OR horizon_days = $3)
		ORDER BY as_of DESC, probability DESC
		LIMIT $4`, predictionColumns)

	var rows []predictionRow
	if err := r.db.SelectContext(ctx, &rows, query, playerID, asOf, horizonDays, limit); err != nil {
		return nil, fmt.Errorf("failed to list prediction history: %w", err)
	}
	return r.toSnapshots(rows)
}

func (r *predictionsRepo) toSnapshots(rows []predictionRow) ([]persistence.PredictionSnapshot, error) {
	snaps := make([]persistence.PredictionSnapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := row.toSnapshot()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

type marketViewRow struct {
	PlayerID                string    `db:"player_id"`
	PlayerName              string    `db:"player_name"`
	Position                *string   `db:"position"`
	FromClubID              *string   `db:"from_club_id"`
	FromClubName            *string   `db:"from_club_name"`
	ToClubID                *string   `db:"to_club_id"`
	ToClubName              *string   `db:"to_club_name"`
	CompetitionID           *string   `db:"competition_id"`
	HorizonDays             int       `db:"horizon_days"`
	Probability             float64   `db:"probability"`
	DriversJSON             []byte    `db:"drivers_json"`
	ModelVersion            string    `db:"model_version"`
	AsOf                    time.Time `db:"as_of"`
	MarketValue             *float64  `db:"market_value"`
	ContractMonthsRemaining *float64  `db:"contract_months_remaining"`
}

func (row marketViewRow) toView() (persistence.MarketViewRow, error) {
	v := persistence.MarketViewRow{
		PlayerID:                row.PlayerID,
		PlayerName:              row.PlayerName,
		Position:                row.Position,
		FromClubID:              row.FromClubID,
		FromClubName:            row.FromClubName,
		ToClubID:                row.ToClubID,
		ToClubName:              row.ToClubName,
		CompetitionID:           row.CompetitionID,
		HorizonDays:             row.HorizonDays,
		Probability:             row.Probability,
		ModelVersion:            row.ModelVersion,
		AsOf:                    row.AsOf,
		MarketValue:             row.MarketValue,
		ContractMonthsRemaining: row.ContractMonthsRemaining,
	}
	if len(row.DriversJSON) > 0 {
		if err := json.Unmarshal(row.DriversJSON, &v.Drivers); err != nil {
			return v, fmt.Errorf("failed to decode drivers_json: %w", err)
		}
	}
	return v, nil
}

const marketViewColumns = `
	player_id, player_name, position, from_club_id, from_club_name,
	to_club_id, to_club_name, competition_id, horizon_days, probability,
	drivers_json, model_version, as_of, market_value, contract_months_remaining`

// MarketLatest reads the projection with optional filters, ranked by
// probability.
func (r *predictionsRepo) MarketLatest(ctx context.Context, f persistence.MarketFilter) ([]persistence.MarketViewRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conds := []string{"probability >= $1"}
	args := []interface{}{f.MinProbability}
	if f.CompetitionID != nil {
		args = append(args, *f.CompetitionID)
		conds = append(conds, fmt.Sprintf("competition_id = $%d", len(args)))
	}
	if f.ClubID != nil {
		args = append(args, *f.ClubID)
		conds = append(conds, fmt.Sprintf("(from_club_id = $%d OR to_club_id = $%d)", len(args), len(args)))
	}
	if f.HorizonDays != nil {
		args = append(args, *f.HorizonDays)
		conds = append(conds, fmt.Sprintf("horizon_days = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM player_market_view
		WHERE %s
		ORDER BY probability DESC, as_of DESC
		LIMIT $%d`, marketViewColumns, strings.Join(conds, " AND "), len(args))

	var rows []marketViewRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query market view: %w", err)
	}
	return r.toViews(rows)
}

// Movers returns the biggest probability changes over the trailing window,
// comparing each latest snapshot with the newest one older than the window.
func (r *predictionsRepo) Movers(ctx context.Context, hours int, limit int) ([]persistence.MarketViewRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		WITH current AS (
			SELECT %s FROM player_market_view
		),
		previous AS (
			SELECT DISTINCT ON (player_id, to_club_id, horizon_days)
				player_id, to_club_id, horizon_days, probability AS prev_probability
			FROM prediction_snapshots
			WHERE as_of < NOW() - ($1 || ' hours')::interval
			ORDER BY player_id, to_club_id, horizon_days, as_of DESC
		)
		SELECT c.*
		FROM current c
		JOIN previous p
		  ON p.player_id = c.player_id
		 AND p.to_club_id IS NOT DISTINCT FROM c.to_club_id
		 AND p.horizon_days = c.horizon_days
		ORDER BY ABS(c.probability - p.prev_probability) DESC
		LIMIT $2`, marketViewColumns)

	var rows []marketViewRow
	if err := r.db.SelectContext(ctx, &rows, query, hours, limit); err != nil {
		return nil, fmt.Errorf("failed to query market movers: %w", err)
	}
	return r.toViews(rows)
}

func (r *predictionsRepo) toViews(rows []marketViewRow) ([]persistence.MarketViewRow, error) {
	views := make([]persistence.MarketViewRow, 0, len(rows))
	for _, row := range rows {
		v, err := row.toView()
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// RefreshMarketView refreshes the projection. Concurrent refresh needs the
// unique index in place; if it fails we fall back to a blocking refresh so
// the projection never goes stale silently.
func (r *predictionsRepo) RefreshMarketView(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout*4)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY player_market_view`); err != nil {
		log.Warn().Err(err).Msg("Concurrent refresh failed, falling back to blocking refresh")
		if _, err := r.db.ExecContext(ctx, `REFRESH MATERIALIZED VIEW player_market_view`); err != nil {
			return fmt.Errorf("failed to refresh player_market_view: %w", err)
		}
	}
	return nil
}
