package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferlens/transferlens/internal/domain"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func validSignal() SignalEvent {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	return SignalEvent{
		EntityType:    domain.EntityPlayer,
		PlayerID:      strPtr("p1"),
		SignalType:    domain.SignalMarketValue,
		ValueNum:      floatPtr(50_000_000),
		Source:        "provider",
		Confidence:    0.9,
		ObservedAt:    now,
		EffectiveFrom: now,
	}
}

func TestSignalEventValidate(t *testing.T) {
	require.NoError(t, validSignal().Validate())

	t.Run("entity consistency", func(t *testing.T) {
		event := validSignal()
		event.ClubID = strPtr("c1")
		assert.Error(t, event.Validate(), "player signal must not carry club_id")

		event = validSignal()
		event.EntityType = domain.EntityPair
		assert.Error(t, event.Validate(), "pair signal needs both ids")

		event.ClubID = strPtr("c1")
		assert.NoError(t, event.Validate())
	})

	t.Run("confidence range", func(t *testing.T) {
		for _, c := range []float64{-0.1, 1.1} {
			event := validSignal()
			event.Confidence = c
			assert.Error(t, event.Validate())
		}
		event := validSignal()
		event.Confidence = 0
		assert.NoError(t, event.Validate())
		event.Confidence = 1
		assert.NoError(t, event.Validate())
	})

	t.Run("exactly one payload", func(t *testing.T) {
		event := validSignal()
		event.ValueText = strPtr("fit")
		assert.Error(t, event.Validate())

		event = validSignal()
		event.ValueNum = nil
		assert.Error(t, event.Validate())
	})

	t.Run("effective interval ordering", func(t *testing.T) {
		event := validSignal()
		before := event.EffectiveFrom.Add(-time.Hour)
		event.EffectiveTo = &before
		assert.Error(t, event.Validate())

		after := event.EffectiveFrom.Add(time.Hour)
		event.EffectiveTo = &after
		assert.NoError(t, event.Validate())
	})

	t.Run("unknown signal type", func(t *testing.T) {
		event := validSignal()
		event.SignalType = "sock_color"
		assert.Error(t, event.Validate())
	})
}

func TestSignalEventValue(t *testing.T) {
	event := validSignal()
	num, ok := event.Value().Num()
	require.True(t, ok)
	assert.Equal(t, 50_000_000.0, num)

	event.ValueNum = nil
	event.ValueText = strPtr("hamstring")
	text, ok := event.Value().Text()
	require.True(t, ok)
	assert.Equal(t, "hamstring", text)
}

func validSnapshot() PredictionSnapshot {
	asOf := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	return PredictionSnapshot{
		SnapshotID:   "SNAP-p1-c2-H90-20250115000000.000000",
		ModelName:    "transfer_xgb_90d",
		ModelVersion: "20250101000000",
		PlayerID:     "p1",
		ToClubID:     strPtr("c2"),
		HorizonDays:  90,
		Probability:  0.42,
		Drivers:      map[string]float64{"contract_months_remaining": 0.4, "market_value": 0.3},
		AsOf:         asOf,
		WindowStart:  asOf,
		WindowEnd:    asOf.AddDate(0, 0, 90),
	}
}

func TestPredictionSnapshotValidate(t *testing.T) {
	require.NoError(t, validSnapshot().Validate())

	snap := validSnapshot()
	snap.Probability = 1.2
	assert.Error(t, snap.Validate())

	snap = validSnapshot()
	snap.HorizonDays = 0
	assert.Error(t, snap.Validate())

	snap = validSnapshot()
	snap.WindowEnd = snap.WindowStart
	assert.Error(t, snap.Validate())

	snap = validSnapshot()
	snap.Drivers["market_value"] = -0.1
	assert.Error(t, snap.Validate())

	snap = validSnapshot()
	snap.Drivers = map[string]float64{"a": 0.7, "b": 0.6}
	assert.Error(t, snap.Validate(), "driver contributions above 1 must be rejected")
}
