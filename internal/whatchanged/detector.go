// Package whatchanged turns a player's recent signal history into a short
// list of ranked deltas. Each signal type has a fixed threshold rule; types
// without a rule never emit.
package whatchanged

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// maxDeltas caps the returned list.
const maxDeltas = 10

// fitStatus is the baseline injury state; leaving it is always an alert.
const fitStatus = "fit"

// Delta is one detected change.
type Delta struct {
	SignalType  domain.SignalType `json:"signal_type"`
	Severity    domain.Severity   `json:"severity"`
	Description string            `json:"description"`
	OldValue    *float64          `json:"old_value,omitempty"`
	NewValue    *float64          `json:"new_value,omitempty"`
	OldText     *string           `json:"old_text,omitempty"`
	NewText     *string           `json:"new_text,omitempty"`
	ObservedAt  time.Time         `json:"observed_at"`
}

// Detector reads a player's in-window signals and applies the threshold
// table.
type Detector struct {
	signals persistence.SignalsRepo
}

// NewDetector creates the what-changed detector.
func NewDetector(signals persistence.SignalsRepo) *Detector {
	return &Detector{signals: signals}
}

// Detect returns up to ten deltas for the player inside the window, sorted
// by severity then recency.
func (d *Detector) Detect(ctx context.Context, playerID string, window persistence.TimeRange) ([]Delta, error) {
	rows, err := d.signals.ListInWindow(ctx, playerID, window)
	if err != nil {
		return nil, fmt.Errorf("what-changed read: %w", err)
	}
	return Apply(rows), nil
}

// Apply runs the threshold table over signal rows already fetched. Rows
// must be sorted by effective_from ascending within each type.
func Apply(rows []persistence.SignalEvent) []Delta {
	byType := map[domain.SignalType][]persistence.SignalEvent{}
	for _, row := range rows {
		byType[row.SignalType] = append(byType[row.SignalType], row)
	}

	var deltas []Delta
	for signalType, group := range byType {
		if signalType == domain.SignalInjuryStatus {
			if delta := injuryDelta(group); delta != nil {
				deltas = append(deltas, *delta)
			}
			continue
		}
		if len(group) < 2 {
			continue
		}
		first, last := group[0], group[len(group)-1]
		oldV, okOld := first.Value().Num()
		newV, okNew := last.Value().Num()
		if !okOld || !okNew {
			continue
		}
		if delta := numericDelta(signalType, oldV, newV, last.ObservedAt); delta != nil {
			deltas = append(deltas, *delta)
		}
	}

	sort.SliceStable(deltas, func(i, j int) bool {
		ri, rj := domain.SeverityRank(deltas[i].Severity), domain.SeverityRank(deltas[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return deltas[i].ObservedAt.After(deltas[j].ObservedAt)
	})
	if len(deltas) > maxDeltas {
		deltas = deltas[:maxDeltas]
	}
	return deltas
}

func numericDelta(signalType domain.SignalType, oldV, newV float64, observedAt time.Time) *Delta {
	delta := &Delta{
		SignalType: signalType,
		OldValue:   &oldV,
		NewValue:   &newV,
		ObservedAt: observedAt,
	}

	switch signalType {
	case domain.SignalContractMonthsRemaining:
		if oldV > 6 && newV <= 6 {
			delta.Severity = domain.SeverityAlert
			delta.Description = fmt.Sprintf("Contract down to %.0f months remaining", newV)
			return delta
		}

	case domain.SignalMarketValue:
		if oldV == 0 {
			return nil
		}
		change := (newV - oldV) / oldV
		direction := "up"
		if change < 0 {
			direction = "down"
		}
		switch {
		case math.Abs(change) > 0.20:
			delta.Severity = domain.SeverityAlert
		case math.Abs(change) >= 0.10:
			delta.Severity = domain.SeverityWarning
		default:
			return nil
		}
		delta.Description = fmt.Sprintf("Market value %s %.0f%% to €%.1fM", direction, math.Abs(change)*100, newV/1e6)
		return delta

	case domain.SignalSocialMentionVelocity:
		if oldV <= 0 || newV <= oldV {
			return nil
		}
		switch {
		case newV > 2*oldV:
			delta.Severity = domain.SeverityAlert
		case (newV-oldV)/oldV >= 0.5:
			delta.Severity = domain.SeverityWarning
		default:
			return nil
		}
		delta.Description = fmt.Sprintf("Social mention velocity %.1f → %.1f", oldV, newV)
		return delta

	case domain.SignalUserAttentionVelocity:
		if oldV <= 0 || newV <= oldV {
			return nil
		}
		switch {
		case newV > 3*oldV:
			delta.Severity = domain.SeverityAlert
		case (newV-oldV)/oldV >= 1.0:
			delta.Severity = domain.SeverityWarning
		default:
			return nil
		}
		delta.Description = fmt.Sprintf("User attention velocity %.1f → %.1f", oldV, newV)
		return delta

	case domain.SignalGoalsLast10:
		if math.Abs(newV-oldV) >= 2 {
			delta.Severity = domain.SeverityInfo
			delta.Description = fmt.Sprintf("Goals in last 10 games: %.0f → %.0f", oldV, newV)
			return delta
		}

	case domain.SignalAssistsLast10:
		if math.Abs(newV-oldV) >= 2 {
			delta.Severity = domain.SeverityInfo
			delta.Description = fmt.Sprintf("Assists in last 10 games: %.0f → %.0f", oldV, newV)
			return delta
		}

	case domain.SignalClubLeaguePosition:
		diff := math.Abs(newV - oldV)
		switch {
		case diff >= 5:
			delta.Severity = domain.SeverityWarning
		case diff >= 3:
			delta.Severity = domain.SeverityInfo
		default:
			return nil
		}
		delta.Description = fmt.Sprintf("League position %.0f → %.0f", oldV, newV)
		return delta
	}
	return nil
}

// injuryDelta handles the text-valued injury signal, including the
// single-row case: one non-fit row in the window is itself an alert.
func injuryDelta(group []persistence.SignalEvent) *Delta {
	if len(group) == 1 {
		status, ok := group[0].Value().Text()
		if !ok || status == fitStatus {
			return nil
		}
		return &Delta{
			SignalType:  domain.SignalInjuryStatus,
			Severity:    domain.SeverityAlert,
			Description: fmt.Sprintf("New injury status: %s", status),
			NewText:     &status,
			ObservedAt:  group[0].ObservedAt,
		}
	}

	first, last := group[0], group[len(group)-1]
	oldStatus, okOld := first.Value().Text()
	newStatus, okNew := last.Value().Text()
	if !okOld || !okNew || oldStatus == newStatus {
		return nil
	}

	delta := &Delta{
		SignalType: domain.SignalInjuryStatus,
		OldText:    &oldStatus,
		NewText:    &newStatus,
		ObservedAt: last.ObservedAt,
	}
	if oldStatus == fitStatus {
		delta.Severity = domain.SeverityAlert
		delta.Description = fmt.Sprintf("New injury status: %s", newStatus)
	} else {
		delta.Severity = domain.SeverityInfo
		delta.Description = fmt.Sprintf("Injury status changed from %s to %s", oldStatus, newStatus)
	}
	return delta
}
