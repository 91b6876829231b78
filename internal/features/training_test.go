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

type fakeTransfers struct {
	persistence.TransfersRepo
	positives []persistence.TransferEvent
}

func (f *fakeTransfers) ListPositives(ctx context.Context, window persistence.TimeRange, types []domain.TransferType) ([]persistence.TransferEvent, error) {
	var out []persistence.TransferEvent
	for _, tr := range f.positives {
		if !tr.TransferDate.Before(window.From) && !tr.TransferDate.After(window.To) {
			out = append(out, tr)
		}
	}
	return out, nil
}

func TestTrainingSetBuild(t *testing.T) {
	signals, ref, _ := testWorld()
	builder := NewBuilder(temporal.NewGuard(signals), ref)

	transferDate := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	transfers := &fakeTransfers{positives: []persistence.TransferEvent{
		{
			ID:           "t1",
			EventID:      "TL-20250315-aaaaaaaa-bbbbbbbb",
			PlayerID:     "p1",
			FromClubID:   strPtr("from1"),
			ToClubID:     "to1",
			TransferType: domain.TransferPermanent,
			TransferDate: transferDate,
		},
	}}

	tsb := NewTrainingSetBuilder(builder, transfers, ref, nil)
	cfg := TrainingConfig{LookbackDays: 365, HorizonDays: 90, NegativesPerPositive: 3}
	trainAsOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	frame, stats, err := tsb.Build(context.Background(), trainAsOf, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Positives)
	assert.Equal(t, 0, stats.Skipped)
	// Only one club besides from and to exists, so only one negative fits.
	assert.Equal(t, 1, stats.Negatives)
	require.Len(t, frame, 2)

	positive := frame[0]
	assert.Equal(t, 1, positive.Label)
	assert.Equal(t, "to1", positive.ToClubID)
	assert.Equal(t, time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC), positive.FeatureDate)
	assert.Len(t, positive.Features, len(Columns))

	negative := frame[1]
	assert.Equal(t, 0, negative.Label)
	assert.Equal(t, "to2", negative.ToClubID)
	assert.Equal(t, positive.FeatureDate, negative.FeatureDate)
}

func TestTrainingSetSkipsLeakyLabels(t *testing.T) {
	signals, ref, _ := testWorld()
	builder := NewBuilder(temporal.NewGuard(signals), ref)

	transfers := &fakeTransfers{positives: []persistence.TransferEvent{
		{
			ID:           "t1",
			EventID:      "TL-20250315-aaaaaaaa-bbbbbbbb",
			PlayerID:     "p1",
			FromClubID:   strPtr("from1"),
			ToClubID:     "to1",
			TransferType: domain.TransferPermanent,
			TransferDate: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		},
	}}

	tsb := NewTrainingSetBuilder(builder, transfers, ref, nil)
	// Horizon zero puts feature_date on the transfer date itself, which the
	// validator rejects.
	cfg := TrainingConfig{LookbackDays: 365, HorizonDays: 0, NegativesPerPositive: 3}

	frame, stats, err := tsb.Build(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), cfg)
	require.NoError(t, err)
	assert.Empty(t, frame)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Positives)
}

func TestTrainingSetSkipsMissingOrigin(t *testing.T) {
	signals, ref, _ := testWorld()
	builder := NewBuilder(temporal.NewGuard(signals), ref)

	transfers := &fakeTransfers{positives: []persistence.TransferEvent{
		{
			ID:           "t1",
			EventID:      "TL-20250315-aaaaaaaa-ORIGIN",
			PlayerID:     "p1",
			FromClubID:   nil,
			ToClubID:     "to1",
			TransferType: domain.TransferPermanent,
			TransferDate: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		},
	}}

	tsb := NewTrainingSetBuilder(builder, transfers, ref, nil)
	frame, stats, err := tsb.Build(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), DefaultTrainingConfig())
	require.NoError(t, err)
	assert.Empty(t, frame)
	assert.Equal(t, 1, stats.Skipped)
}

func TestUniformSamplerDeterministic(t *testing.T) {
	_, ref, _ := testWorld()
	sampler := NewUniformSampler(ref)

	positive := persistence.TransferEvent{
		PlayerID:   "p1",
		FromClubID: strPtr("from1"),
		ToClubID:   "to1",
	}
	featureDate := time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC)

	first, err := sampler.Sample(context.Background(), positive, featureDate, 3)
	require.NoError(t, err)
	second, err := sampler.Sample(context.Background(), positive, featureDate, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for _, clubID := range first {
		assert.NotEqual(t, "from1", clubID)
		assert.NotEqual(t, "to1", clubID)
	}
}

func TestFeatureDateRelation(t *testing.T) {
	transferDate := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	featureDate := temporal.FeatureDate(transferDate, 90)
	assert.Equal(t, time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC), featureDate)

	err := temporal.ValidateTrainingLabel(transferDate, transferDate, 90)
	var leak *domain.DataLeakageError
	require.ErrorAs(t, err, &leak)
}
