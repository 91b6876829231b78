package whatchanged

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

func numRow(signalType domain.SignalType, value float64, effectiveFrom time.Time) persistence.SignalEvent {
	playerID := "p1"
	return persistence.SignalEvent{
		EntityType:    domain.EntityPlayer,
		PlayerID:      &playerID,
		SignalType:    signalType,
		ValueNum:      &value,
		ObservedAt:    effectiveFrom,
		EffectiveFrom: effectiveFrom,
	}
}

func textRow(signalType domain.SignalType, value string, effectiveFrom time.Time) persistence.SignalEvent {
	playerID := "p1"
	return persistence.SignalEvent{
		EntityType:    domain.EntityPlayer,
		PlayerID:      &playerID,
		SignalType:    signalType,
		ValueText:     &value,
		ObservedAt:    effectiveFrom,
		EffectiveFrom: effectiveFrom,
	}
}

var (
	t0 = time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	t1 = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
)

func TestContractCrossingSix(t *testing.T) {
	deltas := Apply([]persistence.SignalEvent{
		numRow(domain.SignalContractMonthsRemaining, 8, t0),
		numRow(domain.SignalContractMonthsRemaining, 5, t1),
	})
	require.Len(t, deltas, 1)
	assert.Equal(t, domain.SeverityAlert, deltas[0].Severity)
	assert.Equal(t, "Contract down to 5 months remaining", deltas[0].Description)
}

func TestContractAboveSixStaysQuiet(t *testing.T) {
	deltas := Apply([]persistence.SignalEvent{
		numRow(domain.SignalContractMonthsRemaining, 18, t0),
		numRow(domain.SignalContractMonthsRemaining, 12, t1),
	})
	assert.Empty(t, deltas)
}

func TestMarketValueThresholds(t *testing.T) {
	warning := Apply([]persistence.SignalEvent{
		numRow(domain.SignalMarketValue, 40_000_000, t0),
		numRow(domain.SignalMarketValue, 45_000_000, t1),
	})
	require.Len(t, warning, 1)
	assert.Equal(t, domain.SeverityWarning, warning[0].Severity)

	alert := Apply([]persistence.SignalEvent{
		numRow(domain.SignalMarketValue, 40_000_000, t0),
		numRow(domain.SignalMarketValue, 50_000_000, t1),
	})
	require.Len(t, alert, 1)
	assert.Equal(t, domain.SeverityAlert, alert[0].Severity)
	assert.Equal(t, "Market value up 25% to €50.0M", alert[0].Description)

	quiet := Apply([]persistence.SignalEvent{
		numRow(domain.SignalMarketValue, 40_000_000, t0),
		numRow(domain.SignalMarketValue, 41_000_000, t1),
	})
	assert.Empty(t, quiet)
}

func TestSingleNonFitInjuryRow(t *testing.T) {
	deltas := Apply([]persistence.SignalEvent{
		textRow(domain.SignalInjuryStatus, "hamstring", t1),
	})
	require.Len(t, deltas, 1)
	assert.Equal(t, domain.SeverityAlert, deltas[0].Severity)
	assert.Equal(t, "New injury status: hamstring", deltas[0].Description)
}

func TestSingleFitInjuryRowIsQuiet(t *testing.T) {
	deltas := Apply([]persistence.SignalEvent{
		textRow(domain.SignalInjuryStatus, "fit", t1),
	})
	assert.Empty(t, deltas)
}

func TestInjuryTransitions(t *testing.T) {
	fromFit := Apply([]persistence.SignalEvent{
		textRow(domain.SignalInjuryStatus, "fit", t0),
		textRow(domain.SignalInjuryStatus, "knee", t1),
	})
	require.Len(t, fromFit, 1)
	assert.Equal(t, domain.SeverityAlert, fromFit[0].Severity)

	withinNonFit := Apply([]persistence.SignalEvent{
		textRow(domain.SignalInjuryStatus, "knee", t0),
		textRow(domain.SignalInjuryStatus, "hamstring", t1),
	})
	require.Len(t, withinNonFit, 1)
	assert.Equal(t, domain.SeverityInfo, withinNonFit[0].Severity)
}

func TestSocialAndAttentionRatios(t *testing.T) {
	socialAlert := Apply([]persistence.SignalEvent{
		numRow(domain.SignalSocialMentionVelocity, 2, t0),
		numRow(domain.SignalSocialMentionVelocity, 5, t1),
	})
	require.Len(t, socialAlert, 1)
	assert.Equal(t, domain.SeverityAlert, socialAlert[0].Severity)

	socialWarning := Apply([]persistence.SignalEvent{
		numRow(domain.SignalSocialMentionVelocity, 2, t0),
		numRow(domain.SignalSocialMentionVelocity, 3, t1),
	})
	require.Len(t, socialWarning, 1)
	assert.Equal(t, domain.SeverityWarning, socialWarning[0].Severity)

	attentionWarning := Apply([]persistence.SignalEvent{
		numRow(domain.SignalUserAttentionVelocity, 100, t0),
		numRow(domain.SignalUserAttentionVelocity, 250, t1),
	})
	require.Len(t, attentionWarning, 1)
	assert.Equal(t, domain.SeverityWarning, attentionWarning[0].Severity)

	attentionAlert := Apply([]persistence.SignalEvent{
		numRow(domain.SignalUserAttentionVelocity, 100, t0),
		numRow(domain.SignalUserAttentionVelocity, 400, t1),
	})
	require.Len(t, attentionAlert, 1)
	assert.Equal(t, domain.SeverityAlert, attentionAlert[0].Severity)
}

func TestGoalsAndLeaguePosition(t *testing.T) {
	goals := Apply([]persistence.SignalEvent{
		numRow(domain.SignalGoalsLast10, 3, t0),
		numRow(domain.SignalGoalsLast10, 6, t1),
	})
	require.Len(t, goals, 1)
	assert.Equal(t, domain.SeverityInfo, goals[0].Severity)
	assert.Equal(t, "Goals in last 10 games: 3 → 6", goals[0].Description)

	position := Apply([]persistence.SignalEvent{
		numRow(domain.SignalClubLeaguePosition, 10, t0),
		numRow(domain.SignalClubLeaguePosition, 4, t1),
	})
	require.Len(t, position, 1)
	assert.Equal(t, domain.SeverityWarning, position[0].Severity)
}

func TestNoThresholdMetMeansEmpty(t *testing.T) {
	deltas := Apply([]persistence.SignalEvent{
		numRow(domain.SignalGoalsLast10, 3, t0),
		numRow(domain.SignalGoalsLast10, 4, t1),
		numRow(domain.SignalMarketValue, 40_000_000, t0),
		numRow(domain.SignalMarketValue, 40_500_000, t1),
	})
	assert.Empty(t, deltas)
}

func TestSortingAndCap(t *testing.T) {
	rows := []persistence.SignalEvent{
		numRow(domain.SignalGoalsLast10, 3, t0),
		numRow(domain.SignalGoalsLast10, 6, t1),
		numRow(domain.SignalContractMonthsRemaining, 8, t0),
		numRow(domain.SignalContractMonthsRemaining, 5, t1),
		numRow(domain.SignalMarketValue, 40_000_000, t0),
		numRow(domain.SignalMarketValue, 45_000_000, t1),
	}
	deltas := Apply(rows)
	require.Len(t, deltas, 3)
	assert.Equal(t, domain.SeverityAlert, deltas[0].Severity)
	assert.Equal(t, domain.SeverityWarning, deltas[1].Severity)
	assert.Equal(t, domain.SeverityInfo, deltas[2].Severity)
}
