package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/temporal"
)

type signalKey struct {
	entity domain.EntityType
	id     string
	typ    domain.SignalType
}

// fakeSignals serves canned as-of reads; pair reads key on player|club.
type fakeSignals struct {
	persistence.SignalsRepo
	values map[signalKey]float64
}

func (f *fakeSignals) LatestAsOf(ctx context.Context, q persistence.LatestQuery) (*persistence.SignalEvent, error) {
	var id string
	switch q.EntityType {
	case domain.EntityPlayer:
		id = *q.PlayerID
	case domain.EntityClub:
		id = *q.ClubID
	case domain.EntityPair:
		id = *q.PlayerID + "|" + *q.ClubID
	}
	if v, ok := f.values[signalKey{q.EntityType, id, q.SignalType}]; ok {
		val := v
		return &persistence.SignalEvent{ValueNum: &val}, nil
	}
	return nil, nil
}

func (f *fakeSignals) LatestManyAsOf(ctx context.Context, q persistence.LatestQuery, types []domain.SignalType) (map[domain.SignalType]*persistence.SignalEvent, error) {
	out := map[domain.SignalType]*persistence.SignalEvent{}
	for _, signalType := range types {
		q.SignalType = signalType
		event, err := f.LatestAsOf(ctx, q)
		if err != nil {
			return nil, err
		}
		if event != nil {
			out[signalType] = event
		}
	}
	return out, nil
}

type fakeReference struct {
	persistence.ReferenceRepo
	players map[string]persistence.Player
	clubs   map[string]persistence.Club
	tiers   map[string]int
}

func (f *fakeReference) GetPlayer(ctx context.Context, id string) (*persistence.Player, error) {
	p, ok := f.players[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (f *fakeReference) GetClub(ctx context.Context, id string) (*persistence.Club, error) {
	c, ok := f.clubs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (f *fakeReference) ClubTier(ctx context.Context, clubID string) (int, error) {
	if t, ok := f.tiers[clubID]; ok {
		return t, nil
	}
	return 99, nil
}

func (f *fakeReference) ListClubs(ctx context.Context) ([]persistence.Club, error) {
	var out []persistence.Club
	for _, c := range f.clubs {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeReference) ListActivePlayers(ctx context.Context) ([]persistence.Player, error) {
	var out []persistence.Player
	for _, p := range f.players {
		if p.CurrentClubID != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func strPtr(s string) *string       { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func testWorld() (*fakeSignals, *fakeReference, persistence.Player) {
	comp1, comp2 := "comp1", "comp2"
	player := persistence.Player{
		ID:            "p1",
		Name:          "Test Player",
		DOB:           timePtr(time.Date(2000, 7, 21, 0, 0, 0, 0, time.UTC)),
		Position:      strPtr("ST"),
		CurrentClubID: strPtr("from1"),
	}
	ref := &fakeReference{
		players: map[string]persistence.Player{"p1": player},
		clubs: map[string]persistence.Club{
			"from1": {ID: "from1", Name: "Origin FC", Country: "England", CompetitionID: &comp1},
			"to1":   {ID: "to1", Name: "Dest FC", Country: "England", CompetitionID: &comp1},
			"to2":   {ID: "to2", Name: "Abroad FC", Country: "Spain", CompetitionID: &comp2},
		},
		tiers: map[string]int{"from1": 1, "to1": 1, "to2": 2},
	}
	signals := &fakeSignals{values: map[signalKey]float64{
		{domain.EntityPlayer, "p1", domain.SignalMarketValue}:             50_000_000,
		{domain.EntityPlayer, "p1", domain.SignalContractMonthsRemaining}: 18,
		{domain.EntityPlayer, "p1", domain.SignalGoalsLast10}:             7,
		{domain.EntityClub, "from1", domain.SignalClubLeaguePosition}:     4,
		{domain.EntityClub, "to1", domain.SignalClubLeaguePosition}:       1,
		{domain.EntityClub, "to1", domain.SignalClubPointsPerGame}:        2.4,
		{domain.EntityPair, "p1|to1", domain.SignalUserDestinationCooccurrence}: 30,
	}}
	return signals, ref, player
}

func TestBuildVector(t *testing.T) {
	asOf := time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC)
	signals, ref, player := testWorld()
	builder := NewBuilder(temporal.NewGuard(signals), ref)

	vector, err := builder.BuildVector(context.Background(), player, "from1", "to1", asOf)
	require.NoError(t, err)

	// Every column present, exactly once.
	require.Len(t, vector, len(Columns))
	for _, column := range Columns {
		_, ok := vector[column]
		assert.True(t, ok, "missing column %s", column)
	}

	require.NotNil(t, vector["age"])
	assert.InDelta(t, 24.5, *vector["age"], 0.05)
	require.NotNil(t, vector["position_encoded"])
	assert.Equal(t, 1.0, *vector["position_encoded"])
	require.NotNil(t, vector["market_value"])
	assert.Equal(t, 50_000_000.0, *vector["market_value"])

	// Signals never observed stay null.
	assert.Nil(t, vector["assists_last_10"])
	assert.Nil(t, vector["minutes_last_5"])
	assert.Nil(t, vector["social_mention_velocity"])
	assert.Nil(t, vector["from_club_points_per_game"])

	require.NotNil(t, vector["from_club_league_position"])
	assert.Equal(t, 4.0, *vector["from_club_league_position"])
	require.NotNil(t, vector["to_club_league_position"])
	assert.Equal(t, 1.0, *vector["to_club_league_position"])
	require.NotNil(t, vector["from_club_tier"])
	assert.Equal(t, 1.0, *vector["from_club_tier"])

	require.NotNil(t, vector["same_country"])
	assert.Equal(t, 1.0, *vector["same_country"])
	require.NotNil(t, vector["same_league"])
	assert.Equal(t, 1.0, *vector["same_league"])
	require.NotNil(t, vector["tier_difference"])
	assert.Equal(t, 0.0, *vector["tier_difference"])
	require.NotNil(t, vector["user_destination_cooccurrence"])
	assert.Equal(t, 30.0, *vector["user_destination_cooccurrence"])
}

func TestBuildVectorCrossBorder(t *testing.T) {
	asOf := time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC)
	signals, ref, player := testWorld()
	builder := NewBuilder(temporal.NewGuard(signals), ref)

	vector, err := builder.BuildVector(context.Background(), player, "from1", "to2", asOf)
	require.NoError(t, err)

	assert.Equal(t, 0.0, *vector["same_country"])
	assert.Equal(t, 0.0, *vector["same_league"])
	assert.Equal(t, 1.0, *vector["tier_difference"])
	assert.Nil(t, vector["user_destination_cooccurrence"])
}

func TestEncodePosition(t *testing.T) {
	assert.Equal(t, 1.0, *EncodePosition(strPtr("ST")))
	assert.Equal(t, 10.0, *EncodePosition(strPtr("GK")))
	assert.Nil(t, EncodePosition(strPtr("SWEEPER")))
	assert.Nil(t, EncodePosition(nil))
}

// fakeCandidates serves one fixed candidate set for every player.
type fakeCandidates struct {
	candidates []persistence.Candidate
}

func (f *fakeCandidates) GetOrGenerate(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*persistence.CandidateSet, error) {
	return &persistence.CandidateSet{
		PlayerID:    playerID,
		AsOf:        asOf,
		HorizonDays: horizonDays,
		Candidates:  f.candidates,
	}, nil
}

type fakeFeatureStore struct {
	persistence.FeaturesRepo
	snaps []persistence.FeatureSnapshot
}

func (f *fakeFeatureStore) Upsert(ctx context.Context, snap persistence.FeatureSnapshot) (persistence.FeatureSnapshot, error) {
	f.snaps = append(f.snaps, snap)
	return snap, nil
}

func TestBulkBuild(t *testing.T) {
	asOf := time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC)
	signals, ref, _ := testWorld()
	builder := NewBuilder(temporal.NewGuard(signals), ref)

	candidates := &fakeCandidates{candidates: []persistence.Candidate{
		{ClubID: "to1", Source: "league", Score: 0.9},
		{ClubID: "to2", Source: "league", Score: 0.7},
	}}
	store := &fakeFeatureStore{}

	stats, err := builder.BulkBuild(context.Background(), candidates, store, asOf, 90)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Players)
	assert.Equal(t, 2, stats.Vectors)
	assert.Equal(t, 0, stats.Failures)
	require.Len(t, store.snaps, 2)
	for _, snap := range store.snaps {
		assert.Equal(t, "p1", snap.PlayerID)
		assert.Equal(t, asOf, snap.AsOf)
		assert.Equal(t, Version, snap.FeatureVersion)
		assert.Len(t, snap.Features, len(Columns))
	}
}
