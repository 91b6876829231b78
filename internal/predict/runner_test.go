package predict

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/features"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/temporal"
)

type fakeSignals struct {
	persistence.SignalsRepo
	playerNumeric map[string]map[domain.SignalType]float64
}

func (fs *fakeSignals) LatestAsOf(ctx context.Context, q persistence.LatestQuery) (*persistence.SignalEvent, error) {
	if q.EntityType == domain.EntityPlayer && q.PlayerID != nil {
		if vals, ok := fs.playerNumeric[*q.PlayerID]; ok {
			if v, ok := vals[q.SignalType]; ok {
				val := v
				return &persistence.SignalEvent{ValueNum: &val}, nil
			}
		}
	}
	return nil, nil
}

func (fs *fakeSignals) LatestManyAsOf(ctx context.Context, q persistence.LatestQuery, types []domain.SignalType) (map[domain.SignalType]*persistence.SignalEvent, error) {
	out := map[domain.SignalType]*persistence.SignalEvent{}
	for _, signalType := range types {
		q.SignalType = signalType
		event, err := fs.LatestAsOf(ctx, q)
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
}

func (fr *fakeReference) GetPlayer(ctx context.Context, id string) (*persistence.Player, error) {
	p, ok := fr.players[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (fr *fakeReference) GetClub(ctx context.Context, id string) (*persistence.Club, error) {
	c, ok := fr.clubs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (fr *fakeReference) ClubTier(ctx context.Context, clubID string) (int, error) { return 1, nil }

func (fr *fakeReference) ListActivePlayers(ctx context.Context) ([]persistence.Player, error) {
	var out []persistence.Player
	for _, p := range fr.players {
		if p.CurrentClubID != nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeCandidates struct {
	sets map[string][]persistence.Candidate
}

func (fc *fakeCandidates) GetOrGenerate(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*persistence.CandidateSet, error) {
	return &persistence.CandidateSet{
		PlayerID:    playerID,
		AsOf:        asOf,
		HorizonDays: horizonDays,
		Candidates:  fc.sets[playerID],
	}, nil
}

type fakePredictions struct {
	persistence.PredictionsRepo
	snapshots []persistence.PredictionSnapshot
	refreshed int
}

func (fp *fakePredictions) Upsert(ctx context.Context, snap persistence.PredictionSnapshot) (persistence.PredictionSnapshot, error) {
	fp.snapshots = append(fp.snapshots, snap)
	return snap, nil
}

func (fp *fakePredictions) LatestForPlayer(ctx context.Context, playerID string, limit int) ([]persistence.PredictionSnapshot, error) {
	var out []persistence.PredictionSnapshot
	for _, s := range fp.snapshots {
		if s.PlayerID == playerID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (fp *fakePredictions) RefreshMarketView(ctx context.Context) error {
	fp.refreshed++
	return nil
}

type fakeModels struct {
	persistence.ModelsRepo
	latest *persistence.ModelVersion
}

func (fm *fakeModels) Latest(ctx context.Context, modelName string, statuses []domain.ModelStatus) (*persistence.ModelVersion, error) {
	return fm.latest, nil
}

func strPtr(s string) *string { return &s }

func runnerWorld() (*Runner, *fakePredictions) {
	comp := "comp1"
	ref := &fakeReference{
		players: map[string]persistence.Player{
			"p1": {ID: "p1", Name: "Player One", Position: strPtr("ST"), CurrentClubID: strPtr("from1")},
			"p2": {ID: "p2", Name: "Free Agent"},
		},
		clubs: map[string]persistence.Club{
			"from1": {ID: "from1", Country: "England", CompetitionID: &comp},
			"to1":   {ID: "to1", Country: "England", CompetitionID: &comp},
			"to2":   {ID: "to2", Country: "Spain"},
		},
	}
	signals := &fakeSignals{playerNumeric: map[string]map[domain.SignalType]float64{
		"p1": {
			domain.SignalContractMonthsRemaining: 4,
			domain.SignalMarketValue:             30_000_000,
		},
	}}
	candidates := &fakeCandidates{sets: map[string][]persistence.Candidate{
		"p1": {
			{ClubID: "to1", Source: "league", Score: 0.9},
			{ClubID: "to2", Source: "random", Score: 0.1},
		},
	}}
	predictions := &fakePredictions{}
	builder := features.NewBuilder(temporal.NewGuard(signals), ref)
	runner := NewRunner(ref, candidates, builder, predictions, &fakeModels{}, 10)
	return runner, predictions
}

func TestRunnerHeuristicFallback(t *testing.T) {
	runner, predictions := runnerWorld()
	asOf := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	stats, err := runner.Run(context.Background(), asOf, 90)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Players)
	assert.Equal(t, 2, stats.Snapshots)
	// The clubless player is skipped, not failed.
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, 1, predictions.refreshed)

	require.Len(t, predictions.snapshots, 2)
	for _, snap := range predictions.snapshots {
		assert.Equal(t, "heuristic", snap.ModelName)
		assert.Equal(t, HeuristicVersion, snap.ModelVersion)
		assert.Equal(t, "p1", snap.PlayerID)
		assert.Equal(t, asOf, snap.WindowStart)
		assert.Equal(t, asOf.AddDate(0, 0, 90), snap.WindowEnd)
		assert.GreaterOrEqual(t, snap.Probability, 0.0)
		assert.LessOrEqual(t, snap.Probability, 1.0)
		assert.NoError(t, snap.Validate())
	}

	// Same-league destination with the expiring contract outranks the
	// cross-border random candidate.
	byClub := map[string]float64{}
	for _, snap := range predictions.snapshots {
		byClub[*snap.ToClubID] = snap.Probability
	}
	assert.Greater(t, byClub["to1"], byClub["to2"])
}

func TestRunnerTruncatesCandidates(t *testing.T) {
	runner, predictions := runnerWorld()
	runner.maxPerPlayer = 1

	_, err := runner.Run(context.Background(), time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), 90)
	require.NoError(t, err)
	require.Len(t, predictions.snapshots, 1)
	assert.Equal(t, "to1", *predictions.snapshots[0].ToClubID)
}

func TestRunnerMissingArtifactFallsBack(t *testing.T) {
	runner, _ := runnerWorld()
	runner.models = &fakeModels{latest: &persistence.ModelVersion{
		ModelName:    "transfer_xgb_90d",
		ModelVersion: "20250101000000",
		ArtifactPath: "/nonexistent/transfer_xgb_90d/20250101000000.json",
	}}

	scorer, err := runner.LoadScorer(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, "heuristic", scorer.ModelName())
}

func TestScorePlayer(t *testing.T) {
	runner, _ := runnerWorld()
	asOf := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	snapshots, err := runner.ScorePlayer(context.Background(), "p1", asOf, 90)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.GreaterOrEqual(t, snapshots[0].Probability, snapshots[1].Probability)

	_, err = runner.ScorePlayer(context.Background(), "missing", asOf, 90)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
