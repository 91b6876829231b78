package predict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestHeuristicScorer(t *testing.T) {
	scorer := NewHeuristicScorer()

	// Expiring contract in the same league should score far above a long
	// contract abroad.
	hot, hotDrivers := scorer.Score(map[string]*float64{
		"contract_months_remaining":     f(3),
		"same_league":                   f(1),
		"user_destination_cooccurrence": f(80),
		"market_value":                  f(40_000_000),
	})
	cold, _ := scorer.Score(map[string]*float64{
		"contract_months_remaining": f(48),
		"same_league":               f(0),
		"market_value":              f(40_000_000),
	})

	assert.Greater(t, hot, cold)
	assert.GreaterOrEqual(t, hot, 0.01)
	assert.LessOrEqual(t, hot, 0.95)
	assert.GreaterOrEqual(t, cold, 0.01)

	require.NotEmpty(t, hotDrivers)
	assert.LessOrEqual(t, len(hotDrivers), maxDrivers)
	sum := 0.0
	for name, weight := range hotDrivers {
		assert.GreaterOrEqual(t, weight, 0.0, "driver %s", name)
		sum += weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestHeuristicScorerEmptyVector(t *testing.T) {
	scorer := NewHeuristicScorer()
	probability, drivers := scorer.Score(map[string]*float64{})
	assert.GreaterOrEqual(t, probability, 0.01)
	assert.LessOrEqual(t, probability, 0.95)
	assert.Empty(t, drivers)
}

func TestAttributeDriversTopFive(t *testing.T) {
	vector := map[string]*float64{
		"contract_months_remaining":     f(2),
		"market_value":                  f(90_000_000),
		"user_destination_cooccurrence": f(70),
		"age":                           f(24),
		"same_league":                   f(1),
		"tier_difference":               f(-1),
		"social_mention_velocity":       f(6),
	}
	drivers := attributeDrivers(vector, heuristicImportances)

	require.Len(t, drivers, maxDrivers)
	sum := 0.0
	for _, weight := range drivers {
		sum += weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// Market value has both a high importance and the max-normalized value.
	assert.Contains(t, drivers, "market_value")
}

func TestSnapshotID(t *testing.T) {
	asOf := mustTime("2025-01-15T09:30:00.000123Z")
	to := "22222222-bbbb-cccc-dddd-eeeeeeeeeeee"

	id := SnapshotID("11111111-aaaa-bbbb-cccc-dddddddddddd", &to, 90, asOf)
	assert.Equal(t, "SNAP-11111111-22222222-H90-20250115093000.000123", id)

	anyDest := SnapshotID("11111111-aaaa-bbbb-cccc-dddddddddddd", nil, 90, asOf)
	assert.Equal(t, "SNAP-11111111-ANY-H90-20250115093000.000123", anyDest)

	// Microsecond stamps keep same-second runs distinct.
	later := SnapshotID("11111111-aaaa-bbbb-cccc-dddddddddddd", &to, 90, asOf.Add(time.Microsecond))
	assert.NotEqual(t, id, later)
}
