package pipeline

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferlens/transferlens/internal/candidates"
	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/features"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/predict"
	"github.com/transferlens/transferlens/internal/signals"
	"github.com/transferlens/transferlens/internal/temporal"
)

type fakeSignals struct {
	persistence.SignalsRepo
	mu       sync.Mutex
	inserted []persistence.SignalEvent
}

func (f *fakeSignals) Insert(ctx context.Context, event persistence.SignalEvent) (persistence.SignalEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, event)
	return event, nil
}

func (f *fakeSignals) LatestAsOf(ctx context.Context, q persistence.LatestQuery) (*persistence.SignalEvent, error) {
	return nil, nil
}

func (f *fakeSignals) LatestManyAsOf(ctx context.Context, q persistence.LatestQuery, types []domain.SignalType) (map[domain.SignalType]*persistence.SignalEvent, error) {
	return map[domain.SignalType]*persistence.SignalEvent{}, nil
}

func (f *fakeSignals) LatestPairsAsOf(ctx context.Context, playerID string, st domain.SignalType, asOf time.Time, minValue float64, limit int) ([]persistence.SignalEvent, error) {
	return nil, nil
}

type fakeEvents struct {
	persistence.UserEventsRepo
}

func (f *fakeEvents) AttentionCounts(ctx context.Context, window persistence.TimeRange, midpoint time.Time) ([]persistence.AttentionCount, error) {
	return []persistence.AttentionCount{{PlayerID: "p1", RecentViews: 10, OlderViews: 2, TotalViews: 12}}, nil
}

func (f *fakeEvents) CooccurrenceCounts(ctx context.Context, window persistence.TimeRange) ([]persistence.CooccurrenceCount, error) {
	return nil, nil
}

func (f *fakeEvents) WatchlistAddCounts(ctx context.Context, window persistence.TimeRange) ([]persistence.WatchlistAddCount, error) {
	return nil, nil
}

type fakeReference struct {
	persistence.ReferenceRepo
	players map[string]persistence.Player
	clubs   map[string]persistence.Club
	comps   map[string]persistence.Competition
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
	c, ok := f.comps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (f *fakeReference) ListCompetitions(ctx context.Context) ([]persistence.Competition, error) {
	var out []persistence.Competition
	for _, c := range f.comps {
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
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeReference) ClubTier(ctx context.Context, clubID string) (int, error) { return 1, nil }

func (f *fakeReference) SquadProfile(ctx context.Context, clubID string) ([]persistence.SquadSlot, error) {
	return nil, nil
}

func (f *fakeReference) ListActivePlayers(ctx context.Context) ([]persistence.Player, error) {
	var out []persistence.Player
	for _, p := range f.players {
		if p.CurrentClubID != nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeCandidateStore struct {
	persistence.CandidatesRepo
	mu   sync.Mutex
	sets map[string]persistence.CandidateSet
}

func (f *fakeCandidateStore) Upsert(ctx context.Context, set persistence.CandidateSet) (persistence.CandidateSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets == nil {
		f.sets = map[string]persistence.CandidateSet{}
	}
	f.sets[set.PlayerID] = set
	return set, nil
}

func (f *fakeCandidateStore) Get(ctx context.Context, playerID string, asOf time.Time, horizon int) (*persistence.CandidateSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[playerID]
	if !ok {
		return nil, nil
	}
	return &set, nil
}

type fakeFeatureStore struct {
	persistence.FeaturesRepo
	mu    sync.Mutex
	snaps []persistence.FeatureSnapshot
}

func (f *fakeFeatureStore) Upsert(ctx context.Context, snap persistence.FeatureSnapshot) (persistence.FeatureSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snap)
	return snap, nil
}

type fakePredictions struct {
	persistence.PredictionsRepo
	mu        sync.Mutex
	snapshots []persistence.PredictionSnapshot
	refreshed int
}

func (f *fakePredictions) Upsert(ctx context.Context, snap persistence.PredictionSnapshot) (persistence.PredictionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	return snap, nil
}

func (f *fakePredictions) RefreshMarketView(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	return nil
}

type fakeModels struct {
	persistence.ModelsRepo
}

func (f *fakeModels) Latest(ctx context.Context, modelName string, statuses []domain.ModelStatus) (*persistence.ModelVersion, error) {
	return nil, nil
}

func strPtr(s string) *string { return &s }

func testPipeline() (*Pipeline, *fakeSignals, *fakeFeatureStore, *fakePredictions) {
	comp := "comp1"
	ref := &fakeReference{
		players: map[string]persistence.Player{
			"p1": {ID: "p1", Name: "Player One", Position: strPtr("ST"), CurrentClubID: strPtr("club0")},
		},
		clubs: map[string]persistence.Club{
			"club0": {ID: "club0", Country: "England", CompetitionID: &comp},
			"club1": {ID: "club1", Country: "England", CompetitionID: &comp},
			"club2": {ID: "club2", Country: "England", CompetitionID: &comp},
		},
		comps: map[string]persistence.Competition{
			"comp1": {ID: "comp1", Name: "Premier League", Country: "England", Tier: 1},
		},
	}

	sigs := &fakeSignals{}
	guard := temporal.NewGuard(sigs)
	candidateStore := &fakeCandidateStore{}
	engine := candidates.NewEngine(guard, ref, candidateStore, candidates.DefaultConfig())
	builder := features.NewBuilder(guard, ref)
	featureStore := &fakeFeatureStore{}
	predictions := &fakePredictions{}
	runner := predict.NewRunner(ref, engine, builder, predictions, &fakeModels{}, 10)
	deriver := signals.NewDeriver(&fakeEvents{}, sigs, signals.DefaultConfig())

	return New(deriver, engine, builder, featureStore, runner, ref), sigs, featureStore, predictions
}

func TestDailyRunAllStages(t *testing.T) {
	p, sigs, featureStore, predictions := testPipeline()
	asOf := time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)

	report, err := p.Run(context.Background(), Options{AsOf: asOf, HorizonDays: 90, Workers: 2})
	require.NoError(t, err)

	require.Len(t, report.Stages, 4)
	names := []string{"derive", "candidates", "features", "score"}
	for i, stage := range report.Stages {
		assert.Equal(t, names[i], stage.Name)
		assert.False(t, stage.Skipped)
	}
	assert.Equal(t, 0, report.Errors())

	// Derive wrote the attention signal; downstream stages produced rows.
	assert.NotEmpty(t, sigs.inserted)
	assert.NotEmpty(t, featureStore.snaps)
	assert.NotEmpty(t, predictions.snapshots)
	assert.Equal(t, 1, predictions.refreshed)
}

func TestDailyRunSkipFlags(t *testing.T) {
	p, sigs, featureStore, predictions := testPipeline()
	asOf := time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)

	report, err := p.Run(context.Background(), Options{
		AsOf:        asOf,
		HorizonDays: 90,
		SkipDerive:  true,
		SkipScore:   true,
	})
	require.NoError(t, err)

	assert.True(t, report.Stages[0].Skipped)
	assert.False(t, report.Stages[1].Skipped)
	assert.False(t, report.Stages[2].Skipped)
	assert.True(t, report.Stages[3].Skipped)

	assert.Empty(t, sigs.inserted)
	assert.NotEmpty(t, featureStore.snaps)
	assert.Empty(t, predictions.snapshots)
	assert.Equal(t, 0, predictions.refreshed)
}

func TestDailyRunCancellation(t *testing.T) {
	p, _, _, _ := testPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, Options{AsOf: time.Now().UTC(), HorizonDays: 90, SkipDerive: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerBounds(t *testing.T) {
	opts := Options{Workers: 4}
	assert.Equal(t, 4, opts.workers())

	opts = Options{DBPoolSize: 1}
	assert.Equal(t, 1, opts.workers())
}
