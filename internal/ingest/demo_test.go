package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferlens/transferlens/internal/persistence"
)

type memStore struct {
	persistence.SignalsRepo
	persistence.TransfersRepo
	persistence.UserEventsRepo
	persistence.ReferenceRepo

	competitions []persistence.Competition
	clubs        []persistence.Club
	players      []persistence.Player
	signals      []persistence.SignalEvent
	transfers    map[string]*persistence.TransferEvent
	userEvents   []persistence.UserEvent
}

func newMemStore() *memStore {
	return &memStore{transfers: map[string]*persistence.TransferEvent{}}
}

func (m *memStore) UpsertCompetition(ctx context.Context, c persistence.Competition) (persistence.Competition, error) {
	m.competitions = append(m.competitions, c)
	return c, nil
}

func (m *memStore) UpsertClub(ctx context.Context, c persistence.Club) (persistence.Club, error) {
	m.clubs = append(m.clubs, c)
	return c, nil
}

func (m *memStore) UpsertPlayer(ctx context.Context, p persistence.Player) (persistence.Player, error) {
	m.players = append(m.players, p)
	return p, nil
}

func (m *memStore) Insert(ctx context.Context, event persistence.SignalEvent) (persistence.SignalEvent, error) {
	if err := event.Validate(); err != nil {
		return event, err
	}
	m.signals = append(m.signals, event)
	return event, nil
}

func (m *memStore) InsertBatch(ctx context.Context, events []persistence.SignalEvent) (int, error) {
	for _, event := range events {
		if _, err := m.Insert(ctx, event); err != nil {
			return 0, err
		}
	}
	return len(events), nil
}

func (m *memStore) insertTransfer(event persistence.TransferEvent) persistence.TransferEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	m.transfers[event.ID] = &event
	return event
}

type transfersShim struct {
	persistence.TransfersRepo
	store *memStore
}

func (t *transfersShim) Insert(ctx context.Context, event persistence.TransferEvent) (persistence.TransferEvent, error) {
	return t.store.insertTransfer(event), nil
}

func (t *transfersShim) Supersede(ctx context.Context, oldID string, correction persistence.TransferEvent) (persistence.TransferEvent, error) {
	saved := t.store.insertTransfer(correction)
	old := t.store.transfers[oldID]
	old.IsSuperseded = true
	old.SupersededBy = &saved.ID
	return saved, nil
}

type userEventsShim struct {
	persistence.UserEventsRepo
	store *memStore
}

func (u *userEventsShim) Insert(ctx context.Context, event persistence.UserEvent) (persistence.UserEvent, error) {
	u.store.userEvents = append(u.store.userEvents, event)
	return event, nil
}

func seedOnce(t *testing.T) (*memStore, Stats) {
	t.Helper()
	store := newMemStore()
	repos := persistence.Repositories{
		Signals:    store,
		Transfers:  &transfersShim{store: store},
		UserEvents: &userEventsShim{store: store},
		Reference:  store,
	}
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	stats, err := NewSeeder(repos).Run(context.Background(), asOf)
	require.NoError(t, err)
	return store, stats
}

func TestSeedCounts(t *testing.T) {
	store, stats := seedOnce(t)

	assert.Equal(t, 3, stats.Competitions)
	assert.Equal(t, 18, stats.Clubs)
	assert.Equal(t, 108, stats.Players)
	assert.Equal(t, len(store.signals), stats.Signals)
	assert.Greater(t, stats.Signals, 30000)
	assert.Greater(t, stats.UserEvents, 100)

	for _, p := range store.players {
		require.NotNil(t, p.CurrentClubID)
		require.NotNil(t, p.Position)
		require.NotNil(t, p.DOB)
	}
}

func TestSeedSupersedeChain(t *testing.T) {
	store, _ := seedOnce(t)

	var superseded, terminal int
	for _, tr := range store.transfers {
		if tr.IsSuperseded {
			superseded++
			require.NotNil(t, tr.SupersededBy)
			next := store.transfers[*tr.SupersededBy]
			require.NotNil(t, next)
			assert.False(t, next.IsSuperseded)
		} else {
			terminal++
		}
	}
	assert.Equal(t, 1, superseded)
	assert.Greater(t, terminal, 10)
}

func TestSeedDeterminism(t *testing.T) {
	first, statsA := seedOnce(t)
	second, statsB := seedOnce(t)

	assert.Equal(t, statsA, statsB)
	require.Equal(t, len(first.players), len(second.players))
	for i := range first.players {
		assert.Equal(t, first.players[i].ID, second.players[i].ID)
		assert.Equal(t, first.players[i].Name, second.players[i].Name)
	}
	require.Equal(t, len(first.signals), len(second.signals))
	assert.Equal(t, *first.signals[0].ValueNum, *second.signals[0].ValueNum)
}
