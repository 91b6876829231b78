package model

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/features"
	"github.com/transferlens/transferlens/internal/ml"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/temporal"
)

type fakeSignals struct {
	persistence.SignalsRepo
}

func (f *fakeSignals) LatestAsOf(ctx context.Context, q persistence.LatestQuery) (*persistence.SignalEvent, error) {
	return nil, nil
}

func (f *fakeSignals) LatestManyAsOf(ctx context.Context, q persistence.LatestQuery, types []domain.SignalType) (map[domain.SignalType]*persistence.SignalEvent, error) {
	return map[domain.SignalType]*persistence.SignalEvent{}, nil
}

type fakeReference struct {
	persistence.ReferenceRepo
	players map[string]persistence.Player
	clubs   map[string]persistence.Club
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

func (f *fakeReference) ClubTier(ctx context.Context, clubID string) (int, error) { return 1, nil }

func (f *fakeReference) ListClubs(ctx context.Context) ([]persistence.Club, error) {
	var out []persistence.Club
	for _, c := range f.clubs {
		out = append(out, c)
	}
	return out, nil
}

type fakeTransfers struct {
	persistence.TransfersRepo
	positives []persistence.TransferEvent
}

func (f *fakeTransfers) ListPositives(ctx context.Context, window persistence.TimeRange, types []domain.TransferType) ([]persistence.TransferEvent, error) {
	return f.positives, nil
}

type fakeModels struct {
	persistence.ModelsRepo
	versions []persistence.ModelVersion
}

func (f *fakeModels) InsertVersion(ctx context.Context, v persistence.ModelVersion) (persistence.ModelVersion, error) {
	f.versions = append(f.versions, v)
	return v, nil
}

func strPtr(s string) *string { return &s }

func trainWorld(positives int) (*features.TrainingSetBuilder, *fakeModels) {
	ref := &fakeReference{
		players: map[string]persistence.Player{},
		clubs:   map[string]persistence.Club{},
	}
	comp := "comp1"
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("club%d", i)
		country := "England"
		if i%2 == 1 {
			country = "Spain"
		}
		ref.clubs[id] = persistence.Club{ID: id, Name: id, Country: country, CompetitionID: &comp}
	}

	transfers := &fakeTransfers{}
	for i := 0; i < positives; i++ {
		playerID := fmt.Sprintf("p%d", i)
		position := "ST"
		ref.players[playerID] = persistence.Player{
			ID:       playerID,
			Name:     playerID,
			Position: &position,
		}
		transfers.positives = append(transfers.positives, persistence.TransferEvent{
			ID:           fmt.Sprintf("t%d", i),
			EventID:      fmt.Sprintf("TL-2025031%d-%08d-%08d", i%10, i, i+1),
			PlayerID:     playerID,
			FromClubID:   strPtr(fmt.Sprintf("club%d", i%10)),
			ToClubID:     fmt.Sprintf("club%d", (i+1)%10),
			TransferType: domain.TransferPermanent,
			TransferDate: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		})
	}

	builder := features.NewBuilder(temporal.NewGuard(&fakeSignals{}), ref)
	frames := features.NewTrainingSetBuilder(builder, transfers, ref, nil)
	return frames, &fakeModels{}
}

func TestTrainRegistersCompletedVersion(t *testing.T) {
	frames, models := trainWorld(20)
	trainer := NewTrainer(frames, models, t.TempDir())

	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	version, err := trainer.Train(context.Background(), TrainRequest{
		AsOf:        asOf,
		HorizonDays: 90,
		ModelType:   ml.KindLogistic,
	})
	require.NoError(t, err)
	require.NotNil(t, version)

	assert.Equal(t, "transfer_xgb_90d", version.ModelName)
	assert.Equal(t, "20250601000000", version.ModelVersion)
	assert.Equal(t, domain.ModelCompleted, version.Status)
	assert.Equal(t, 80, version.TrainingSamples)
	assert.Equal(t, 20, version.PositiveSamples)
	assert.Equal(t, features.Columns, version.FeatureList)
	assert.Contains(t, version.Metrics, "auc_roc")

	// Artifact loads back and matches the registered schema.
	artifact, err := ml.LoadArtifact(version.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, features.Columns, artifact.FeatureNames)
	assert.Equal(t, 90, artifact.HorizonDays)

	require.Len(t, models.versions, 1)
}

func TestTrainInsufficientSamples(t *testing.T) {
	frames, models := trainWorld(3)
	dir := t.TempDir()
	trainer := NewTrainer(frames, models, dir)

	_, err := trainer.Train(context.Background(), TrainRequest{
		AsOf:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		HorizonDays: 90,
	})
	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 12, insufficient.Samples)
	assert.Equal(t, 50, insufficient.Minimum)

	// A failed run is still registered, with a message and no artifact.
	require.Len(t, models.versions, 1)
	failed := models.versions[0]
	assert.Equal(t, domain.ModelFailed, failed.Status)
	require.NotNil(t, failed.Message)
	assert.Empty(t, failed.ArtifactPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMatrixConversion(t *testing.T) {
	mv := 1000.0
	frame := []features.Example{
		{
			Label: 1,
			Features: map[string]*float64{
				"market_value": &mv,
				"age":          nil,
			},
		},
	}

	X, y := Matrix(frame)
	require.Len(t, X, 1)
	require.Len(t, X[0], len(features.Columns))
	assert.Equal(t, []int{1}, y)

	for j, column := range features.Columns {
		switch column {
		case "market_value":
			assert.Equal(t, 1000.0, X[0][j])
		case "age":
			assert.True(t, X[0][j] != X[0][j], "age should be NaN")
		default:
			// Absent columns fill with zero.
			assert.Equal(t, 0.0, X[0][j])
		}
	}
}

func TestNameAndPath(t *testing.T) {
	assert.Equal(t, "transfer_xgb_90d", Name(90))
	assert.Equal(t, "transfer_xgb_30d", Name(30))
	assert.Contains(t, ArtifactPath("/var/models", "transfer_xgb_90d", "v1"), "transfer_xgb_90d")
}
