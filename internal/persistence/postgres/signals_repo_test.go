package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func signalRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "entity_type", "player_id", "club_id", "signal_type",
		"value_num", "value_text", "value_json", "source", "source_id", "confidence",
		"observed_at", "effective_from", "effective_to", "created_at",
	})
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestLatestAsOfAppliesBitemporalPredicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignalsRepo(db, time.Second)

	asOf := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	observed := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`observed_at <= \$3\s+AND effective_from <= \$3\s+AND \(effective_to IS NULL OR effective_to > \$3\)`).
		WithArgs("p1", domain.EntityPlayer, domain.SignalMarketValue, asOf).
		WillReturnRows(signalRows().AddRow(
			"sig1", "player", "p1", nil, "market_value",
			floatPtr(50_000_000), nil, nil, "provider", nil, 0.9,
			observed, observed, nil, observed,
		))

	playerID := "p1"
	event, err := repo.LatestAsOf(context.Background(), persistence.LatestQuery{
		EntityType: domain.EntityPlayer,
		PlayerID:   &playerID,
		SignalType: domain.SignalMarketValue,
		AsOf:       asOf,
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, 50_000_000.0, *event.ValueNum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestManyAsOfOneRowPerType(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignalsRepo(db, time.Second)

	asOf := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	observed := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT DISTINCT ON \(signal_type\)[\s\S]*signal_type = ANY\(\$3\)[\s\S]*observed_at <= \$4`).
		WillReturnRows(signalRows().
			AddRow("sig1", "player", "p1", nil, "market_value",
				floatPtr(50_000_000), nil, nil, "provider", nil, 0.9,
				observed, observed, nil, observed).
			AddRow("sig2", "player", "p1", nil, "goals_last_10",
				floatPtr(7), nil, nil, "provider", nil, 0.9,
				observed, observed, nil, observed))

	playerID := "p1"
	events, err := repo.LatestManyAsOf(context.Background(), persistence.LatestQuery{
		EntityType: domain.EntityPlayer,
		PlayerID:   &playerID,
		AsOf:       asOf,
	}, []domain.SignalType{domain.SignalMarketValue, domain.SignalGoalsLast10, domain.SignalMinutesLast5})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 50_000_000.0, *events[domain.SignalMarketValue].ValueNum)
	assert.Equal(t, 7.0, *events[domain.SignalGoalsLast10].ValueNum)
	// Types never observed are simply absent.
	assert.Nil(t, events[domain.SignalMinutesLast5])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestAsOfNoRowsMeansNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignalsRepo(db, time.Second)

	mock.ExpectQuery(`FROM signal_events`).WillReturnRows(signalRows())

	playerID := "p1"
	event, err := repo.LatestAsOf(context.Background(), persistence.LatestQuery{
		EntityType: domain.EntityPlayer,
		PlayerID:   &playerID,
		SignalType: domain.SignalMarketValue,
		AsOf:       time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestInsertRejectsInvalidSignalBeforeTouchingStore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignalsRepo(db, time.Second)

	// Pair signal missing the club side never reaches the database.
	playerID := "p1"
	_, err := repo.Insert(context.Background(), persistence.SignalEvent{
		EntityType:    domain.EntityPair,
		PlayerID:      &playerID,
		SignalType:    domain.SignalUserDestinationCooccurrence,
		ValueNum:      floatPtr(5),
		Source:        "derived",
		Confidence:    0.6,
		ObservedAt:    time.Now().UTC(),
		EffectiveFrom: time.Now().UTC(),
	})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConfidenceRange(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewSignalsRepo(db, time.Second)

	playerID := "p1"
	_, err := repo.Insert(context.Background(), persistence.SignalEvent{
		EntityType:    domain.EntityPlayer,
		PlayerID:      &playerID,
		SignalType:    domain.SignalMarketValue,
		ValueNum:      floatPtr(1e6),
		Source:        "provider",
		Confidence:    1.5,
		ObservedAt:    time.Now().UTC(),
		EffectiveFrom: time.Now().UTC(),
	})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "confidence", validation.Field)
}
