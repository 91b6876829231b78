package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

func TestEventIDFormat(t *testing.T) {
	date := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	from := "11112222-3333-4444-5555-666677778888"

	assert.Equal(t, "TL-20250315-aaaabbbb-11112222",
		EventID(date, "aaaabbbb-cccc-dddd-eeee-ffff00001111", &from))
	assert.Equal(t, "TL-20250315-aaaabbbb-ORIGIN",
		EventID(date, "aaaabbbb-cccc-dddd-eeee-ffff00001111", nil))
	// Short IDs pass through untruncated.
	assert.Equal(t, "TL-20250315-p1-c1", EventID(date, "p1", strPtr("c1")))
}

func validTransfer() persistence.TransferEvent {
	from := "club-from"
	return persistence.TransferEvent{
		PlayerID:         "player-1",
		FromClubID:       &from,
		ToClubID:         "club-to",
		TransferType:     domain.TransferPermanent,
		TransferDate:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		FeeType:          "fee",
		Source:           "test",
		SourceConfidence: 1.0,
	}
}

func TestInsertAssignsEventID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransfersRepo(db, time.Second)

	mock.ExpectQuery(`INSERT INTO transfer_events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))

	saved, err := repo.Insert(context.Background(), validTransfer())
	require.NoError(t, err)
	assert.Equal(t, "TL-20250115-player-1-club-fro", saved.EventID)
	assert.NotEmpty(t, saved.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDuplicateEventIDIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransfersRepo(db, time.Second)

	mock.ExpectQuery(`INSERT INTO transfer_events`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Insert(context.Background(), validTransfer())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestInsertValidatesConfidence(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransfersRepo(db, time.Second)

	event := validTransfer()
	event.SourceConfidence = 2.0
	_, err := repo.Insert(context.Background(), event)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSupersedeAppendsAndFlags(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransfersRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("old-id").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO transfer_events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))
	mock.ExpectExec(`UPDATE transfer_events SET is_superseded = TRUE, superseded_by = \$1 WHERE id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	correction := validTransfer()
	fee := 55_000_000.0
	correction.FeeAmountEUR = &fee

	saved, err := repo.Supersede(context.Background(), "old-id", correction)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSupersedeMissingTargetIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransfersRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.Supersede(context.Background(), "gone", validTransfer())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
