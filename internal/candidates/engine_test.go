package candidates

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

// fakeSignals serves canned bitemporal reads keyed by entity+type.
type fakeSignals struct {
	persistence.SignalsRepo
	clubNumeric map[string]map[domain.SignalType]float64
	pairs       map[domain.SignalType][]persistence.SignalEvent
}

func (f *fakeSignals) LatestAsOf(ctx context.Context, q persistence.LatestQuery) (*persistence.SignalEvent, error) {
	if q.EntityType == domain.EntityClub && q.ClubID != nil {
		if vals, ok := f.clubNumeric[*q.ClubID]; ok {
			if v, ok := vals[q.SignalType]; ok {
				val := v
				return &persistence.SignalEvent{ValueNum: &val}, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeSignals) LatestPairsAsOf(ctx context.Context, playerID string, st domain.SignalType, asOf time.Time, minValue float64, limit int) ([]persistence.SignalEvent, error) {
	var out []persistence.SignalEvent
	for _, e := range f.pairs[st] {
		if e.ValueNum != nil && *e.ValueNum >= minValue {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeReference holds an in-memory reference universe.
type fakeReference struct {
	persistence.ReferenceRepo
	players      map[string]persistence.Player
	clubs        map[string]persistence.Club
	competitions map[string]persistence.Competition
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

func (f *fakeReference) GetCompetition(ctx context.Context, id string) (*persistence.Competition, error) {
	c, ok := f.competitions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (f *fakeReference) ListCompetitions(ctx context.Context) ([]persistence.Competition, error) {
	var out []persistence.Competition
	for _, c := range f.competitions {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeReference) ListClubsInCompetition(ctx context.Context, compID string) ([]persistence.Club, error) {
	var out []persistence.Club
	for _, c := range f.clubs {
		if c.CompetitionID != nil && *c.CompetitionID == compID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeReference) ListClubsByMaxTier(ctx context.Context, maxTier int) ([]persistence.Club, error) {
	var out []persistence.Club
	for _, c := range f.clubs {
		if c.CompetitionID == nil {
			continue
		}
		if comp, ok := f.competitions[*c.CompetitionID]; ok && comp.Tier <= maxTier {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeReference) SquadProfile(ctx context.Context, clubID string) ([]persistence.SquadSlot, error) {
	return nil, nil
}

// fakeCandidateStore records upserts and serves cached sets.
type fakeCandidateStore struct {
	persistence.CandidatesRepo
	sets map[string]persistence.CandidateSet
}

func setKey(playerID string, asOf time.Time, horizon int) string {
	return playerID + asOf.Format(time.RFC3339Nano) + string(rune(horizon))
}

func (f *fakeCandidateStore) Upsert(ctx context.Context, set persistence.CandidateSet) (persistence.CandidateSet, error) {
	if f.sets == nil {
		f.sets = map[string]persistence.CandidateSet{}
	}
	f.sets[setKey(set.PlayerID, set.AsOf, set.HorizonDays)] = set
	return set, nil
}

func (f *fakeCandidateStore) Get(ctx context.Context, playerID string, asOf time.Time, horizon int) (*persistence.CandidateSet, error) {
	set, ok := f.sets[setKey(playerID, asOf, horizon)]
	if !ok {
		return nil, nil
	}
	return &set, nil
}

func strPtr(s string) *string { return &s }

// fixture builds a small universe: one league with five clubs (the player's
// plus four others), one foreign top league.
func fixture() (*fakeSignals, *fakeReference) {
	comp := persistence.Competition{ID: "comp1", Name: "Premier League", Country: "England", Tier: 1}
	foreign := persistence.Competition{ID: "comp2", Name: "La Liga", Country: "Spain", Tier: 1}

	ref := &fakeReference{
		players: map[string]persistence.Player{
			"p1": {ID: "p1", Name: "Test Player", Position: strPtr("ST"), CurrentClubID: strPtr("club0")},
		},
		clubs: map[string]persistence.Club{
			"club0": {ID: "club0", Name: "Current FC", Country: "England", CompetitionID: &comp.ID},
			"club1": {ID: "club1", Name: "First FC", Country: "England", CompetitionID: &comp.ID},
			"club2": {ID: "club2", Name: "Second FC", Country: "England", CompetitionID: &comp.ID},
			"club3": {ID: "club3", Name: "Third FC", Country: "England", CompetitionID: &comp.ID},
			"club4": {ID: "club4", Name: "Fourth FC", Country: "England", CompetitionID: &comp.ID},
			"club5": {ID: "club5", Name: "Foreign FC", Country: "Spain", CompetitionID: &foreign.ID},
		},
		competitions: map[string]persistence.Competition{
			"comp1": comp,
			"comp2": foreign,
		},
	}

	signals := &fakeSignals{
		clubNumeric: map[string]map[domain.SignalType]float64{
			"club1": {domain.SignalClubLeaguePosition: 1},
			"club2": {domain.SignalClubLeaguePosition: 2},
			"club3": {domain.SignalClubLeaguePosition: 3},
			"club4": {domain.SignalClubLeaguePosition: 4},
			"club5": {domain.SignalClubLeaguePosition: 2},
		},
		pairs: map[domain.SignalType][]persistence.SignalEvent{},
	}
	return signals, ref
}

func TestEngineGenerate(t *testing.T) {
	asOf := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	signals, ref := fixture()
	store := &fakeCandidateStore{}
	engine := NewEngine(temporal.NewGuard(signals), ref, store, DefaultConfig())

	set, err := engine.Generate(context.Background(), "p1", asOf, 90)
	require.NoError(t, err)
	require.NotNil(t, set)

	assert.LessOrEqual(t, set.TotalCandidates, 20)
	assert.Equal(t, "club0", *set.FromClubID)
	assert.Equal(t, len(set.Candidates), set.TotalCandidates)
	assert.Equal(t, set.TotalCandidates,
		set.LeagueCount+set.SocialCount+set.UserAttentionCount+set.ConstraintFitCount+set.RandomCount)

	// League sub-source proposes at most the 4 same-league clubs plus the
	// foreign leader; current club never appears.
	seen := map[string]bool{}
	for _, c := range set.Candidates {
		assert.NotEqual(t, "club0", c.ClubID)
		assert.False(t, seen[c.ClubID], "duplicate club %s", c.ClubID)
		seen[c.ClubID] = true
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}

	// Sorted by score descending.
	for i := 1; i < len(set.Candidates); i++ {
		assert.GreaterOrEqual(t, set.Candidates[i-1].Score, set.Candidates[i].Score)
	}

	// The top same-league club scores 1 - 1/20.
	assert.InDelta(t, 0.95, set.Candidates[0].Score, 1e-9)
	assert.Equal(t, "Top 1 in Premier League", set.Candidates[0].Reason)
}

func TestEngineDeterminism(t *testing.T) {
	asOf := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	signals, ref := fixture()

	gen := func() *persistence.CandidateSet {
		store := &fakeCandidateStore{}
		engine := NewEngine(temporal.NewGuard(signals), ref, store, DefaultConfig())
		set, err := engine.Generate(context.Background(), "p1", asOf, 90)
		require.NoError(t, err)
		return set
	}

	first := gen()
	second := gen()
	require.Equal(t, first.TotalCandidates, second.TotalCandidates)
	for i := range first.Candidates {
		assert.Equal(t, first.Candidates[i], second.Candidates[i])
	}
}

func TestEngineDedupeFirstSourceWins(t *testing.T) {
	asOf := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	signals, ref := fixture()

	// club1 also spikes socially; the league source claimed it first.
	velocity := 8.0
	signals.pairs[domain.SignalSocialMentionVelocity] = []persistence.SignalEvent{
		{ClubID: strPtr("club1"), ValueNum: &velocity},
	}

	store := &fakeCandidateStore{}
	engine := NewEngine(temporal.NewGuard(signals), ref, store, DefaultConfig())
	set, err := engine.Generate(context.Background(), "p1", asOf, 90)
	require.NoError(t, err)

	for _, c := range set.Candidates {
		if c.ClubID == "club1" {
			assert.Equal(t, SourceLeague, c.Source)
		}
	}
	assert.Equal(t, 0, set.SocialCount)
}

func TestEngineGetOrGenerateUsesCache(t *testing.T) {
	asOf := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	signals, ref := fixture()
	store := &fakeCandidateStore{}
	engine := NewEngine(temporal.NewGuard(signals), ref, store, DefaultConfig())

	first, err := engine.GetOrGenerate(context.Background(), "p1", asOf, 90)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Drop the signals so regeneration would differ; the cache must serve.
	signals.clubNumeric = map[string]map[domain.SignalType]float64{}
	second, err := engine.GetOrGenerate(context.Background(), "p1", asOf, 90)
	require.NoError(t, err)
	assert.Equal(t, first.Candidates, second.Candidates)
}

func TestSeedForDeterministic(t *testing.T) {
	asOf := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, seedFor("p1", asOf), seedFor("p1", asOf))
	assert.NotEqual(t, seedFor("p1", asOf), seedFor("p2", asOf))
	assert.NotEqual(t, seedFor("p1", asOf), seedFor("p1", asOf.Add(time.Hour)))
}
