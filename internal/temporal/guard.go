// Package temporal is the choke point for bitemporal reads. Every lookup
// that feeds the feature builder or the what-changed detector goes through
// Guard, so the as-of predicate is written once and only once.
package temporal

import (
	"context"
	"time"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/metrics"
	"github.com/transferlens/transferlens/internal/persistence"
)

// Guard wraps the signal store with as-of reads.
type Guard struct {
	signals persistence.SignalsRepo
}

// NewGuard creates the time-travel read guard.
func NewGuard(signals persistence.SignalsRepo) *Guard {
	return &Guard{signals: signals}
}

// LatestPlayerSignal returns the known truth at asOf for a player signal,
// or nil when nothing was known and effective by then.
func (g *Guard) LatestPlayerSignal(ctx context.Context, playerID string, signalType domain.SignalType, asOf time.Time) (*persistence.SignalEvent, error) {
	return g.signals.LatestAsOf(ctx, persistence.LatestQuery{
		EntityType: domain.EntityPlayer,
		PlayerID:   &playerID,
		SignalType: signalType,
		AsOf:       asOf,
	})
}

// LatestClubSignal returns the known truth at asOf for a club signal.
func (g *Guard) LatestClubSignal(ctx context.Context, clubID string, signalType domain.SignalType, asOf time.Time) (*persistence.SignalEvent, error) {
	return g.signals.LatestAsOf(ctx, persistence.LatestQuery{
		EntityType: domain.EntityClub,
		ClubID:     &clubID,
		SignalType: signalType,
		AsOf:       asOf,
	})
}

// LatestPairSignal returns the known truth at asOf for a (player, club)
// pair signal.
func (g *Guard) LatestPairSignal(ctx context.Context, playerID, clubID string, signalType domain.SignalType, asOf time.Time) (*persistence.SignalEvent, error) {
	return g.signals.LatestAsOf(ctx, persistence.LatestQuery{
		EntityType: domain.EntityPair,
		PlayerID:   &playerID,
		ClubID:     &clubID,
		SignalType: signalType,
		AsOf:       asOf,
	})
}

// LatestPairsForPlayer returns the latest pair signal per club at asOf,
// keeping values >= minValue, best first.
func (g *Guard) LatestPairsForPlayer(ctx context.Context, playerID string, signalType domain.SignalType, asOf time.Time, minValue float64, limit int) ([]persistence.SignalEvent, error) {
	return g.signals.LatestPairsAsOf(ctx, playerID, signalType, asOf, minValue, limit)
}

// PlayerNumericMany reads several numeric player signals at asOf in one
// query. Absent or non-numeric types map to nil.
func (g *Guard) PlayerNumericMany(ctx context.Context, playerID string, signalTypes []domain.SignalType, asOf time.Time) (map[domain.SignalType]*float64, error) {
	events, err := g.signals.LatestManyAsOf(ctx, persistence.LatestQuery{
		EntityType: domain.EntityPlayer,
		PlayerID:   &playerID,
		AsOf:       asOf,
	}, signalTypes)
	if err != nil {
		return nil, err
	}
	return numericMap(signalTypes, events), nil
}

// ClubNumericMany reads several numeric club signals at asOf in one query.
func (g *Guard) ClubNumericMany(ctx context.Context, clubID string, signalTypes []domain.SignalType, asOf time.Time) (map[domain.SignalType]*float64, error) {
	events, err := g.signals.LatestManyAsOf(ctx, persistence.LatestQuery{
		EntityType: domain.EntityClub,
		ClubID:     &clubID,
		AsOf:       asOf,
	}, signalTypes)
	if err != nil {
		return nil, err
	}
	return numericMap(signalTypes, events), nil
}

func numericMap(signalTypes []domain.SignalType, events map[domain.SignalType]*persistence.SignalEvent) map[domain.SignalType]*float64 {
	out := make(map[domain.SignalType]*float64, len(signalTypes))
	for _, signalType := range signalTypes {
		out[signalType] = nil
		if event := events[signalType]; event != nil {
			if v, ok := event.Value().Num(); ok {
				val := v
				out[signalType] = &val
			}
		}
	}
	return out
}

// PlayerNumeric reads a numeric player signal at asOf, nil when absent or
// non-numeric.
func (g *Guard) PlayerNumeric(ctx context.Context, playerID string, signalType domain.SignalType, asOf time.Time) (*float64, error) {
	event, err := g.LatestPlayerSignal(ctx, playerID, signalType, asOf)
	if err != nil || event == nil {
		return nil, err
	}
	if v, ok := event.Value().Num(); ok {
		return &v, nil
	}
	return nil, nil
}

// ClubNumeric reads a numeric club signal at asOf.
func (g *Guard) ClubNumeric(ctx context.Context, clubID string, signalType domain.SignalType, asOf time.Time) (*float64, error) {
	event, err := g.LatestClubSignal(ctx, clubID, signalType, asOf)
	if err != nil || event == nil {
		return nil, err
	}
	if v, ok := event.Value().Num(); ok {
		return &v, nil
	}
	return nil, nil
}

// PairNumeric reads a numeric pair signal at asOf.
func (g *Guard) PairNumeric(ctx context.Context, playerID, clubID string, signalType domain.SignalType, asOf time.Time) (*float64, error) {
	event, err := g.LatestPairSignal(ctx, playerID, clubID, signalType, asOf)
	if err != nil || event == nil {
		return nil, err
	}
	if v, ok := event.Value().Num(); ok {
		return &v, nil
	}
	return nil, nil
}

// Age returns the player's age in years at asOf, using the 365.25-day year.
func Age(dob, asOf time.Time) float64 {
	return asOf.Sub(dob).Hours() / 24.0 / 365.25
}

// ValidateSignalTimeTravel fails when either timestamp is after asOf.
// observed_at > asOf means "we didn't know yet"; effective_from > asOf means
// "it wasn't true yet". Both are strict <=.
func ValidateSignalTimeTravel(observedAt, effectiveFrom, asOf time.Time) error {
	if observedAt.After(asOf) || effectiveFrom.After(asOf) {
		metrics.TimeTravelViolations.Inc()
		return &domain.TimeTravelViolation{
			ObservedAt:    observedAt,
			EffectiveFrom: effectiveFrom,
			AsOf:          asOf,
		}
	}
	return nil
}

// ValidateTrainingLabel fails when featureDate is not strictly before
// transferDate. The required relation is
// featureDate = transferDate - horizonDays exactly.
func ValidateTrainingLabel(transferDate, featureDate time.Time, horizonDays int) error {
	if !featureDate.Before(transferDate) {
		metrics.TimeTravelViolations.Inc()
		return &domain.DataLeakageError{
			TransferDate: transferDate,
			FeatureDate:  featureDate,
			HorizonDays:  horizonDays,
		}
	}
	return nil
}

// FeatureDate computes the point-in-time feature date for a labeled
// transfer at the given horizon.
func FeatureDate(transferDate time.Time, horizonDays int) time.Time {
	return transferDate.AddDate(0, 0, -horizonDays)
}
