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

// transfersRepo implements TransfersRepo for PostgreSQL.
type transfersRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTransfersRepo creates the postgres ledger repository.
func NewTransfersRepo(db *sqlx.DB, timeout time.Duration) persistence.TransfersRepo {
	return &transfersRepo{db: db, timeout: timeout}
}

const transferColumns = `
	id, event_id, player_id, from_club_id, to_club_id, transfer_type, transfer_date,
	fee_amount, fee_currency, fee_amount_eur, fee_type,
	contract_start, contract_end, loan_end_date,
	has_option_to_buy, option_fee_eur, has_obligation_to_buy, obligation_fee_eur,
	sell_on_percent, has_buy_back, buy_back_fee_eur,
	source, source_confidence, is_superseded, superseded_by, created_at`

const transferInsert = `
	INSERT INTO transfer_events (
		id, event_id, player_id, from_club_id, to_club_id, transfer_type, transfer_date,
		fee_amount, fee_currency, fee_amount_eur, fee_type,
		contract_start, contract_end, loan_end_date,
		has_option_to_buy, option_fee_eur, has_obligation_to_buy, obligation_fee_eur,
		sell_on_percent, has_buy_back, buy_back_fee_eur,
		source, source_confidence
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23
	)
	RETURNING created_at`

// EventID builds the deterministic ledger key
// TL-YYYYMMDD-<player-short>-<from-short|ORIGIN>.
func EventID(transferDate time.Time, playerID string, fromClubID *string) string {
	from := "ORIGIN"
	if fromClubID != nil {
		from = shortID(*fromClubID)
	}
	return fmt.Sprintf("TL-%s-%s-%s", transferDate.Format("20060102"), shortID(playerID), from)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func validateTransfer(event persistence.TransferEvent) error {
	if event.SourceConfidence < 0 || event.SourceConfidence > 1 {
		return &domain.ValidationError{Field: "source_confidence", Message: "must be in [0,1]"}
	}
	if event.SellOnPercent != nil && (*event.SellOnPercent < 0 || *event.SellOnPercent > 100) {
		return &domain.ValidationError{Field: "sell_on_percent", Message: "must be in [0,100]"}
	}
	return nil
}

// Insert appends one immutable ledger row. The ledger is strict insert-only:
// duplicate event_id is a conflict, never an upsert.
func (r *transfersRepo) Insert(ctx context.Context, event persistence.TransferEvent) (persistence.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := validateTransfer(event); err != nil {
		return event, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.EventID == "" {
		event.EventID = EventID(event.TransferDate, event.PlayerID, event.FromClubID)
	}

	err := r.db.QueryRowxContext(ctx, transferInsert, r.insertArgs(event)...).Scan(&event.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return event, fmt.Errorf("transfer event %s: %w", event.EventID, domain.ErrConflict)
		}
		return event, fmt.Errorf("failed to insert transfer event: %w", err)
	}
	return event, nil
}

func (r *transfersRepo) insertArgs(event persistence.TransferEvent) []interface{} {
	return []interface{}{
		event.ID, event.EventID, event.PlayerID, event.FromClubID, event.ToClubID,
		event.TransferType, event.TransferDate,
		event.FeeAmount, event.FeeCurrency, event.FeeAmountEUR, event.FeeType,
		event.ContractStart, event.ContractEnd, event.LoanEndDate,
		event.HasOptionToBuy, event.OptionFeeEUR, event.HasObligation, event.ObligationFeeEUR,
		event.SellOnPercent, event.HasBuyBack, event.BuyBackFeeEUR,
		event.Source, event.SourceConfidence,
	}
}

// Supersede appends the correction and flips the old row's is_superseded flag
// with a forward pointer, atomically. History is never rewritten.
func (r *transfersRepo) Supersede(ctx context.Context, oldID string, correction persistence.TransferEvent) (persistence.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := validateTransfer(correction); err != nil {
		return correction, err
	}
	if correction.ID == "" {
		correction.ID = uuid.NewString()
	}
	if correction.EventID == "" {
		correction.EventID = EventID(correction.TransferDate, correction.PlayerID, correction.FromClubID)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return correction, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM transfer_events WHERE id = $1 AND NOT is_superseded)`, oldID); err != nil {
		return correction, fmt.Errorf("failed to check superseded target: %w", err)
	}
	if !exists {
		return correction, fmt.Errorf("transfer event %s: %w", oldID, domain.ErrNotFound)
	}

	if err := tx.QueryRowxContext(ctx, transferInsert, r.insertArgs(correction)...).Scan(&correction.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return correction, fmt.Errorf("transfer event %s: %w", correction.EventID, domain.ErrConflict)
		}
		return correction, fmt.Errorf("failed to insert correction: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transfer_events SET is_superseded = TRUE, superseded_by = $1 WHERE id = $2`,
		correction.ID, oldID); err != nil {
		return correction, fmt.Errorf("failed to mark superseded: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return correction, fmt.Errorf("failed to commit supersede: %w", err)
	}
	return correction, nil
}

// GetByEventID looks up one ledger row by its deterministic key.
func (r *transfersRepo) GetByEventID(ctx context.Context, eventID string) (*persistence.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM transfer_events WHERE event_id = $1`, transferColumns)
	var event persistence.TransferEvent
	if err := r.db.GetContext(ctx, &event, query, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transfer event %s: %w", eventID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transfer event: %w", err)
	}
	return &event, nil
}

// ListByPlayer returns a player's ledger history, newest first.
func (r *transfersRepo) ListByPlayer(ctx context.Context, playerID string, includeSuperseded bool) ([]persistence.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s
		FROM transfer_events
		WHERE player_id = $1 AND ($2 OR NOT is_superseded)
		ORDER BY transfer_date DESC, created_at DESC`, transferColumns)

	var events []persistence.TransferEvent
	if err := r.db.SelectContext(ctx, &events, query, playerID, includeSuperseded); err != nil {
		return nil, fmt.Errorf("failed to list player transfers: %w", err)
	}
	return events, nil
}

// ListByClub returns incoming and outgoing transfers since the cutoff.
func (r *transfersRepo) ListByClub(ctx context.Context, clubID string, since time.Time) ([]persistence.TransferEvent, []persistence.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	inQuery := fmt.Sprintf(`
		SELECT %s FROM transfer_events
		WHERE to_club_id = $1 AND transfer_date >= $2 AND NOT is_superseded
		ORDER BY transfer_date DESC`, transferColumns)
	outQuery := fmt.Sprintf(`
		SELECT %s FROM transfer_events
		WHERE from_club_id = $1 AND transfer_date >= $2 AND NOT is_superseded
		ORDER BY transfer_date DESC`, transferColumns)

	var in, out []persistence.TransferEvent
	if err := r.db.SelectContext(ctx, &in, inQuery, clubID, since); err != nil {
		return nil, nil, fmt.Errorf("failed to list incoming transfers: %w", err)
	}
	if err := r.db.SelectContext(ctx, &out, outQuery, clubID, since); err != nil {
		return nil, nil, fmt.Errorf("failed to list outgoing transfers: %w", err)
	}
	return in, out, nil
}

// ListPositives returns label-eligible transfers inside the window.
func (r *transfersRepo) ListPositives(ctx context.Context, window persistence.TimeRange, types []domain.TransferType) ([]persistence.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM transfer_events
		WHERE transfer_date >= $1 AND transfer_date <= $2
		  AND NOT is_superseded
		  AND from_club_id IS NOT NULL
		  AND transfer_type = ANY($3)
		ORDER BY transfer_date ASC`, transferColumns)

	var events []persistence.TransferEvent
	if err := r.db.SelectContext(ctx, &events, query, window.From, window.To, pq.Array(typeStrs)); err != nil {
		return nil, fmt.Errorf("failed to list positive transfers: %w", err)
	}
	return events, nil
}

// Chain walks superseded_by pointers to the terminal row. The chain is a
// shallow DAG; a cycle or missing link is reported as an error.
func (r *transfersRepo) Chain(ctx context.Context, id string) ([]persistence.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM transfer_events WHERE id = $1`, transferColumns)

	var chain []persistence.TransferEvent
	seen := map[string]bool{}
	current := id
	for {
		if seen[current] {
			return chain, fmt.Errorf("supersede chain cycle at %s", current)
		}
		seen[current] = true

		var event persistence.TransferEvent
		if err := r.db.GetContext(ctx, &event, query, current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return chain, fmt.Errorf("transfer event %s: %w", current, domain.ErrNotFound)
			}
			return chain, fmt.Errorf("failed to walk supersede chain: %w", err)
		}
		chain = append(chain, event)
		if event.SupersededBy == nil {
			return chain, nil
		}
		current = *event.SupersededBy
	}
}
