package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// referenceRepo implements ReferenceRepo for PostgreSQL.
type referenceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewReferenceRepo creates the postgres reference data repository.
func NewReferenceRepo(db *sqlx.DB, timeout time.Duration) persistence.ReferenceRepo {
	return &referenceRepo{db: db, timeout: timeout}
}

const playerColumns = `id, name, dob, nationality, position, current_club_id, contract_until, created_at`
const clubColumns = `id, name, country, competition_id, created_at`
const competitionColumns = `id, name, country, tier, created_at`

// GetPlayer returns one player or ErrNotFound.
func (r *referenceRepo) GetPlayer(ctx context.Context, id string) (*persistence.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var p persistence.Player
	query := fmt.Sprintf(`SELECT %s FROM players WHERE id = $1`, playerColumns)
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("player %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return &p, nil
}

// GetClub returns one club or ErrNotFound.
func (r *referenceRepo) GetClub(ctx context.Context, id string) (*persistence.Club, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var c persistence.Club
	query := fmt.Sprintf(`SELECT %s FROM clubs WHERE id = $1`, clubColumns)
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("club %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get club: %w", err)
	}
	return &c, nil
}

// GetCompetition returns one competition or ErrNotFound.
func (r *referenceRepo) GetCompetition(ctx context.Context, id string) (*persistence.Competition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var c persistence.Competition
	query := fmt.Sprintf(`SELECT %s FROM competitions WHERE id = $1`, competitionColumns)
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("competition %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	return &c, nil
}

// UpsertCompetition writes reference data, admin path only.
func (r *referenceRepo) UpsertCompetition(ctx context.Context, c persistence.Competition) (persistence.Competition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO competitions (id, name, country, tier)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, country = EXCLUDED.country, tier = EXCLUDED.tier
		RETURNING created_at`
	if err := r.db.QueryRowxContext(ctx, query, c.ID, c.Name, c.Country, c.Tier).Scan(&c.CreatedAt); err != nil {
		return c, fmt.Errorf("failed to upsert competition: %w", err)
	}
	return c, nil
}

// UpsertClub writes reference data, admin path only.
func (r *referenceRepo) UpsertClub(ctx context.Context, c persistence.Club) (persistence.Club, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO clubs (id, name, country, competition_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, country = EXCLUDED.country, competition_id = EXCLUDED.competition_id
		RETURNING created_at`
	if err := r.db.QueryRowxContext(ctx, query, c.ID, c.Name, c.Country, c.CompetitionID).Scan(&c.CreatedAt); err != nil {
		return c, fmt.Errorf("failed to upsert club: %w", err)
	}
	return c, nil
}

// UpsertPlayer writes reference data, admin path only. The denormalized
// current_club_id and contract_until hints are set here and by
// SetPlayerHints; features never read them.
func (r *referenceRepo) UpsertPlayer(ctx context.Context, p persistence.Player) (persistence.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
		INSERT INTO players (id, name, dob, nationality, position, current_club_id, contract_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, dob = EXCLUDED.dob, nationality = EXCLUDED.nationality,
			position = EXCLUDED.position, current_club_id = EXCLUDED.current_club_id,
			contract_until = EXCLUDED.contract_until
		RETURNING created_at`
	if err := r.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.DOB, p.Nationality, p.Position, p.CurrentClubID, p.ContractUntil).
		Scan(&p.CreatedAt); err != nil {
		return p, fmt.Errorf("failed to upsert player: %w", err)
	}
	return p, nil
}

// ListActivePlayers returns players with a current club.
func (r *referenceRepo) ListActivePlayers(ctx context.Context) ([]persistence.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var players []persistence.Player
	query := fmt.Sprintf(`
		SELECT %s FROM players
		WHERE current_club_id IS NOT NULL
		ORDER BY name`, playerColumns)
	if err := r.db.SelectContext(ctx, &players, query); err != nil {
		return nil, fmt.Errorf("failed to list active players: %w", err)
	}
	return players, nil
}

// ListClubs returns every club.
func (r *referenceRepo) ListClubs(ctx context.Context) ([]persistence.Club, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var clubs []persistence.Club
	query := fmt.Sprintf(`SELECT %s FROM clubs ORDER BY name`, clubColumns)
	if err := r.db.SelectContext(ctx, &clubs, query); err != nil {
		return nil, fmt.Errorf("failed to list clubs: %w", err)
	}
	return clubs, nil
}

// ListCompetitions returns every competition.
func (r *referenceRepo) ListCompetitions(ctx context.Context) ([]persistence.Competition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var comps []persistence.Competition
	query := fmt.Sprintf(`SELECT %s FROM competitions ORDER BY tier, name`, competitionColumns)
	if err := r.db.SelectContext(ctx, &comps, query); err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}
	return comps, nil
}

// ListClubsInCompetition returns the clubs of one competition.
func (r *referenceRepo) ListClubsInCompetition(ctx context.Context, competitionID string) ([]persistence.Club, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var clubs []persistence.Club
	query := fmt.Sprintf(`
		SELECT %s FROM clubs WHERE competition_id = $1 ORDER BY name`, clubColumns)
	if err := r.db.SelectContext(ctx, &clubs, query, competitionID); err != nil {
		return nil, fmt.Errorf("failed to list competition clubs: %w", err)
	}
	return clubs, nil
}

// ListClubsByMaxTier returns clubs whose competition tier is <= maxTier.
func (r *referenceRepo) ListClubsByMaxTier(ctx context.Context, maxTier int) ([]persistence.Club, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var clubs []persistence.Club
	query := `
		SELECT c.id, c.name, c.country, c.competition_id, c.created_at
		FROM clubs c
		JOIN competitions comp ON comp.id = c.competition_id
		WHERE comp.tier <= $1
		ORDER BY comp.tier, c.name`
	if err := r.db.SelectContext(ctx, &clubs, query, maxTier); err != nil {
		return nil, fmt.Errorf("failed to list clubs by tier: %w", err)
	}
	return clubs, nil
}

// ClubTier resolves a club's tier via its competition; clubs without a
// competition report tier 99.
func (r *referenceRepo) ClubTier(ctx context.Context, clubID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var tier int
	query := `
		SELECT COALESCE(comp.tier, 99)
		FROM clubs c
		LEFT JOIN competitions comp ON comp.id = c.competition_id
		WHERE c.id = $1`
	if err := r.db.GetContext(ctx, &tier, query, clubID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("club %s: %w", clubID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to get club tier: %w", err)
	}
	return tier, nil
}

// SquadProfile summarizes the squad by position, feeding constraint-fit.
func (r *referenceRepo) SquadProfile(ctx context.Context, clubID string) ([]persistence.SquadSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var slots []persistence.SquadSlot
	query := `
		SELECT
			position,
			COUNT(*) AS count,
			COALESCE(AVG(EXTRACT(EPOCH FROM (NOW() - dob)) / 31557600.0), 0) AS avg_age
		FROM players
		WHERE current_club_id = $1 AND position IS NOT NULL
		GROUP BY position`
	if err := r.db.SelectContext(ctx, &slots, query, clubID); err != nil {
		return nil, fmt.Errorf("failed to query squad profile: %w", err)
	}
	return slots, nil
}

// SquadPlayers lists the players currently at a club.
func (r *referenceRepo) SquadPlayers(ctx context.Context, clubID string) ([]persistence.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var players []persistence.Player
	query := fmt.Sprintf(`
		SELECT %s FROM players WHERE current_club_id = $1 ORDER BY name`, playerColumns)
	if err := r.db.SelectContext(ctx, &players, query, clubID); err != nil {
		return nil, fmt.Errorf("failed to list squad players: %w", err)
	}
	return players, nil
}

// Search runs a trigram-ranked union of players and clubs.
func (r *referenceRepo) Search(ctx context.Context, query string, limit int) ([]persistence.SearchHit, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sqlQuery := `
		SELECT kind, id, name, detail, rank FROM (
			SELECT 'player' AS kind, p.id, p.name,
			       c.name AS detail,
			       similarity(p.name, $1) AS rank
			FROM players p
			LEFT JOIN clubs c ON c.id = p.current_club_id
			WHERE p.name ILIKE '%' || $1 || '%' OR similarity(p.name, $1) > 0.2
			UNION ALL
			SELECT 'club' AS kind, cl.id, cl.name,
			       cl.country AS detail,
			       similarity(cl.name, $1) AS rank
			FROM clubs cl
			WHERE cl.name ILIKE '%' || $1 || '%' OR similarity(cl.name, $1) > 0.2
		) hits
		ORDER BY rank DESC, name
		LIMIT $2`

	var hits []persistence.SearchHit
	if err := r.db.SelectContext(ctx, &hits, sqlQuery, query, limit); err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return hits, nil
}

// SetPlayerHints updates the denormalized columns on admin/ledger paths.
func (r *referenceRepo) SetPlayerHints(ctx context.Context, playerID string, currentClubID *string, contractUntil *time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE players
		SET current_club_id = $1,
		    contract_until = COALESCE($2, contract_until)
		WHERE id = $3`, currentClubID, contractUntil, playerID)
	if err != nil {
		return fmt.Errorf("failed to update player hints: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("player %s: %w", playerID, domain.ErrNotFound)
	}
	return nil
}
