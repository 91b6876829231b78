package features

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/temporal"
)

// LabelEligibleTypes are the transfer types that count as positive labels.
var LabelEligibleTypes = []domain.TransferType{
	domain.TransferPermanent,
	domain.TransferLoan,
	domain.TransferLoanWithOption,
}

// Example is one labeled row of the training frame.
type Example struct {
	PlayerID    string              `json:"player_id"`
	ToClubID    string              `json:"to_club_id"`
	FeatureDate time.Time           `json:"feature_date"`
	Label       int                 `json:"label"`
	Features    map[string]*float64 `json:"features"`
}

// NegativeSampler picks destination clubs that did not happen, to balance
// the frame. Implementations must be deterministic for a given positive.
type NegativeSampler interface {
	Sample(ctx context.Context, positive persistence.TransferEvent, featureDate time.Time, n int) ([]string, error)
}

// uniformSampler draws uniformly from active clubs, excluding the origin
// and the actual destination. Seeded from (player, feature_date) so a rerun
// reproduces the frame.
type uniformSampler struct {
	reference persistence.ReferenceRepo
}

// NewUniformSampler builds the default negative sampler.
func NewUniformSampler(reference persistence.ReferenceRepo) NegativeSampler {
	return &uniformSampler{reference: reference}
}

func sampleSeed(playerID string, featureDate time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(playerID))
	h.Write([]byte("|"))
	h.Write([]byte(featureDate.UTC().Format(time.RFC3339Nano)))
	return int64(h.Sum64())
}

func (s *uniformSampler) Sample(ctx context.Context, positive persistence.TransferEvent, featureDate time.Time, n int) ([]string, error) {
	clubs, err := s.reference.ListClubs(ctx)
	if err != nil {
		return nil, fmt.Errorf("negative sampler: %w", err)
	}

	eligible := make([]string, 0, len(clubs))
	for _, club := range clubs {
		if club.ID == positive.ToClubID {
			continue
		}
		if positive.FromClubID != nil && club.ID == *positive.FromClubID {
			continue
		}
		eligible = append(eligible, club.ID)
	}
	sort.Strings(eligible)

	rng := rand.New(rand.NewSource(sampleSeed(positive.PlayerID, featureDate)))
	rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	if n > len(eligible) {
		n = len(eligible)
	}
	return eligible[:n], nil
}

// TrainingConfig tunes training-set assembly.
type TrainingConfig struct {
	LookbackDays         int `yaml:"lookback_days"`
	HorizonDays          int `yaml:"horizon_days"`
	NegativesPerPositive int `yaml:"negatives_per_positive"`
}

// DefaultTrainingConfig matches the production tuning: one year of labels,
// 90-day horizon, three negatives per positive.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		LookbackDays:         365,
		HorizonDays:          90,
		NegativesPerPositive: 3,
	}
}

// TrainingStats summarizes one assembly run.
type TrainingStats struct {
	Positives int
	Negatives int
	Skipped   int
}

// TrainingSetBuilder assembles labeled frames from the ledger and the
// feature builder.
type TrainingSetBuilder struct {
	builder   *Builder
	transfers persistence.TransfersRepo
	reference persistence.ReferenceRepo
	sampler   NegativeSampler
}

// NewTrainingSetBuilder wires the training-set builder. A nil sampler gets
// the uniform default.
func NewTrainingSetBuilder(builder *Builder, transfers persistence.TransfersRepo, reference persistence.ReferenceRepo, sampler NegativeSampler) *TrainingSetBuilder {
	if sampler == nil {
		sampler = NewUniformSampler(reference)
	}
	return &TrainingSetBuilder{
		builder:   builder,
		transfers: transfers,
		reference: reference,
		sampler:   sampler,
	}
}

// Build assembles the frame for training as-of trainAsOf. Every vector is
// built at feature_date = transfer_date - horizon; positives that would leak
// the label are skipped and logged, never silently included.
func (t *TrainingSetBuilder) Build(ctx context.Context, trainAsOf time.Time, cfg TrainingConfig) ([]Example, TrainingStats, error) {
	window := persistence.TimeRange{
		From: trainAsOf.AddDate(0, 0, -cfg.LookbackDays),
		To:   trainAsOf,
	}
	positives, err := t.transfers.ListPositives(ctx, window, LabelEligibleTypes)
	if err != nil {
		return nil, TrainingStats{}, fmt.Errorf("failed to list positive transfers: %w", err)
	}

	var frame []Example
	var stats TrainingStats
	for _, transfer := range positives {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if transfer.FromClubID == nil {
			stats.Skipped++
			continue
		}

		featureDate := temporal.FeatureDate(transfer.TransferDate, cfg.HorizonDays)
		if err := temporal.ValidateTrainingLabel(transfer.TransferDate, featureDate, cfg.HorizonDays); err != nil {
			log.Warn().Err(err).
				Str("event_id", transfer.EventID).
				Time("transfer_date", transfer.TransferDate).
				Msg("Skipping leaky training label")
			stats.Skipped++
			continue
		}

		player, err := t.reference.GetPlayer(ctx, transfer.PlayerID)
		if err != nil {
			log.Warn().Err(err).Str("player_id", transfer.PlayerID).Msg("Skipping transfer, player missing")
			stats.Skipped++
			continue
		}

		vector, err := t.builder.BuildVector(ctx, *player, *transfer.FromClubID, transfer.ToClubID, featureDate)
		if err != nil {
			log.Warn().Err(err).Str("event_id", transfer.EventID).Msg("Skipping transfer, vector failed")
			stats.Skipped++
			continue
		}
		frame = append(frame, Example{
			PlayerID:    transfer.PlayerID,
			ToClubID:    transfer.ToClubID,
			FeatureDate: featureDate,
			Label:       1,
			Features:    vector,
		})
		stats.Positives++

		negatives, err := t.sampler.Sample(ctx, transfer, featureDate, cfg.NegativesPerPositive)
		if err != nil {
			log.Warn().Err(err).Str("event_id", transfer.EventID).Msg("Negative sampling failed")
			continue
		}
		for _, clubID := range negatives {
			vector, err := t.builder.BuildVector(ctx, *player, *transfer.FromClubID, clubID, featureDate)
			if err != nil {
				log.Warn().Err(err).
					Str("event_id", transfer.EventID).
					Str("club_id", clubID).
					Msg("Negative vector failed")
				continue
			}
			frame = append(frame, Example{
				PlayerID:    transfer.PlayerID,
				ToClubID:    clubID,
				FeatureDate: featureDate,
				Label:       0,
				Features:    vector,
			})
			stats.Negatives++
		}
	}

	log.Info().
		Int("positives", stats.Positives).
		Int("negatives", stats.Negatives).
		Int("skipped", stats.Skipped).
		Time("train_as_of", trainAsOf).
		Int("horizon_days", cfg.HorizonDays).
		Msg("Training frame assembled")
	return frame, stats, nil
}
