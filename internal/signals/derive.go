// Package signals derives weak, user-behavior signals from the event
// stream: attention velocity, destination cooccurrence, and watchlist adds.
// Derived rows are leading indicators with reduced confidence.
package signals

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// DerivedSource labels every derived signal row.
const DerivedSource = "tl_user_derived"

// Config tunes the derivation job.
type Config struct {
	Window     time.Duration `yaml:"window"`
	Confidence float64       `yaml:"confidence"`
}

// DefaultConfig matches the production derivation cadence.
func DefaultConfig() Config {
	return Config{
		Window:     24 * time.Hour,
		Confidence: 0.6,
	}
}

// ParseWindow parses strings like "24h", "7d", "30m" into a duration.
func ParseWindow(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", s, err)
	}
	switch strings.ToLower(s[len(s)-1:]) {
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	}
	return 0, fmt.Errorf("invalid window unit in %q", s)
}

// Stats summarizes one derivation run.
type Stats struct {
	Window             string    `json:"window"`
	AsOf               time.Time `json:"as_of"`
	AttentionSignals   int       `json:"attention_signals"`
	CooccurrenceRows   int       `json:"cooccurrence_signals"`
	WatchlistAddRows   int       `json:"watchlist_add_signals"`
	Errors             int       `json:"errors"`
}

// Deriver runs the derivation job.
type Deriver struct {
	events  persistence.UserEventsRepo
	signals persistence.SignalsRepo
	cfg     Config
}

// NewDeriver wires the derivation job.
func NewDeriver(events persistence.UserEventsRepo, signals persistence.SignalsRepo, cfg Config) *Deriver {
	return &Deriver{events: events, signals: signals, cfg: cfg}
}

// Run derives all user signals for the window ending at asOf. Per-row errors
// are counted and skipped; the run keeps going.
func (d *Deriver) Run(ctx context.Context, asOf time.Time) (Stats, error) {
	stats := Stats{Window: d.cfg.Window.String(), AsOf: asOf}

	attention, err := d.deriveAttention(ctx, asOf, &stats)
	if err != nil {
		return stats, err
	}
	stats.AttentionSignals = attention

	cooc, err := d.deriveCooccurrence(ctx, asOf, &stats)
	if err != nil {
		return stats, err
	}
	stats.CooccurrenceRows = cooc

	adds, err := d.deriveWatchlistAdds(ctx, asOf, &stats)
	if err != nil {
		return stats, err
	}
	stats.WatchlistAddRows = adds

	log.Info().
		Int("attention", stats.AttentionSignals).
		Int("cooccurrence", stats.CooccurrenceRows).
		Int("watchlist_adds", stats.WatchlistAddRows).
		Int("errors", stats.Errors).
		Time("as_of", asOf).
		Msg("Signal derivation complete")
	return stats, nil
}

// AttentionVelocity converts recent/older view counts into the stored
// velocity value: min(10, (recent+1)/(older+1)) on a 0-1000 scale.
func AttentionVelocity(recent, older int) float64 {
	velocity := math.Min(10.0, float64(recent+1)/float64(older+1))
	return math.Floor(velocity * 100)
}

// CooccurrenceScore converts a session count into the stored score:
// min(100, sessions*10).
func CooccurrenceScore(sessions int) float64 {
	return math.Min(100, float64(sessions*10))
}

func (d *Deriver) deriveAttention(ctx context.Context, asOf time.Time, stats *Stats) (int, error) {
	window := persistence.TimeRange{From: asOf.Add(-d.cfg.Window), To: asOf}
	midpoint := asOf.Add(-d.cfg.Window / 2)

	counts, err := d.events.AttentionCounts(ctx, window, midpoint)
	if err != nil {
		return 0, fmt.Errorf("attention counts: %w", err)
	}

	written := 0
	for _, c := range counts {
		playerID := c.PlayerID
		value := AttentionVelocity(c.RecentViews, c.OlderViews)
		if _, err := d.signals.Insert(ctx, persistence.SignalEvent{
			EntityType:    domain.EntityPlayer,
			PlayerID:      &playerID,
			SignalType:    domain.SignalUserAttentionVelocity,
			ValueNum:      &value,
			Source:        DerivedSource,
			Confidence:    d.cfg.Confidence,
			ObservedAt:    asOf,
			EffectiveFrom: asOf,
		}); err != nil {
			log.Warn().Err(err).Str("player_id", playerID).Msg("Failed to write attention signal")
			stats.Errors++
			continue
		}
		written++
	}
	return written, nil
}

func (d *Deriver) deriveCooccurrence(ctx context.Context, asOf time.Time, stats *Stats) (int, error) {
	// Cooccurrence needs more history than velocity; use 7x the window.
	window := persistence.TimeRange{From: asOf.Add(-7 * d.cfg.Window), To: asOf}

	counts, err := d.events.CooccurrenceCounts(ctx, window)
	if err != nil {
		return 0, fmt.Errorf("cooccurrence counts: %w", err)
	}

	written := 0
	for _, c := range counts {
		playerID, clubID := c.PlayerID, c.ClubID
		value := CooccurrenceScore(c.SessionCount)
		if _, err := d.signals.Insert(ctx, persistence.SignalEvent{
			EntityType:    domain.EntityPair,
			PlayerID:      &playerID,
			ClubID:        &clubID,
			SignalType:    domain.SignalUserDestinationCooccurrence,
			ValueNum:      &value,
			Source:        DerivedSource,
			Confidence:    d.cfg.Confidence,
			ObservedAt:    asOf,
			EffectiveFrom: asOf,
		}); err != nil {
			log.Warn().Err(err).Str("player_id", playerID).Str("club_id", clubID).Msg("Failed to write cooccurrence signal")
			stats.Errors++
			continue
		}
		written++
	}
	return written, nil
}

func (d *Deriver) deriveWatchlistAdds(ctx context.Context, asOf time.Time, stats *Stats) (int, error) {
	window := persistence.TimeRange{From: asOf.Add(-d.cfg.Window), To: asOf}

	counts, err := d.events.WatchlistAddCounts(ctx, window)
	if err != nil {
		return 0, fmt.Errorf("watchlist add counts: %w", err)
	}

	written := 0
	for _, c := range counts {
		playerID := c.PlayerID
		value := float64(c.Count)
		if _, err := d.signals.Insert(ctx, persistence.SignalEvent{
			EntityType:    domain.EntityPlayer,
			PlayerID:      &playerID,
			SignalType:    domain.SignalUserWatchlistAdds,
			ValueNum:      &value,
			Source:        DerivedSource,
			Confidence:    d.cfg.Confidence,
			ObservedAt:    asOf,
			EffectiveFrom: asOf,
		}); err != nil {
			log.Warn().Err(err).Str("player_id", playerID).Msg("Failed to write watchlist adds signal")
			stats.Errors++
			continue
		}
		written++
	}
	return written, nil
}
