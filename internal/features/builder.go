package features

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/temporal"
)

// Builder assembles feature vectors from guarded signal reads and reference
// data.
type Builder struct {
	guard     *temporal.Guard
	reference persistence.ReferenceRepo
}

// NewBuilder creates the feature builder.
func NewBuilder(guard *temporal.Guard, reference persistence.ReferenceRepo) *Builder {
	return &Builder{guard: guard, reference: reference}
}

// BuildVector builds the feature map for one (player, from, to) triple at
// asOf. Missing signals produce nil entries; every column in Columns is
// present in the result.
func (b *Builder) BuildVector(ctx context.Context, player persistence.Player, fromClubID, toClubID string, asOf time.Time) (map[string]*float64, error) {
	features := make(map[string]*float64, len(Columns))

	if player.DOB != nil {
		age := temporal.Age(*player.DOB, asOf)
		features["age"] = &age
	} else {
		features["age"] = nil
	}
	features["position_encoded"] = EncodePosition(player.Position)

	playerSignals := map[string]domain.SignalType{
		"market_value":              domain.SignalMarketValue,
		"contract_months_remaining": domain.SignalContractMonthsRemaining,
		"goals_last_10":             domain.SignalGoalsLast10,
		"assists_last_10":           domain.SignalAssistsLast10,
		"minutes_last_5":            domain.SignalMinutesLast5,
		"social_mention_velocity":   domain.SignalSocialMentionVelocity,
		"user_attention_velocity":   domain.SignalUserAttentionVelocity,
	}
	types := make([]domain.SignalType, 0, len(playerSignals))
	for _, signalType := range playerSignals {
		types = append(types, signalType)
	}
	values, err := b.guard.PlayerNumericMany(ctx, player.ID, types, asOf)
	if err != nil {
		return nil, fmt.Errorf("player signals: %w", err)
	}
	for column, signalType := range playerSignals {
		features[column] = values[signalType]
	}

	fromTier, err := b.clubFeatures(ctx, fromClubID, "from_club_", asOf, features)
	if err != nil {
		return nil, err
	}
	toTier, err := b.clubFeatures(ctx, toClubID, "to_club_", asOf, features)
	if err != nil {
		return nil, err
	}

	if err := b.pairFeatures(ctx, fromClubID, toClubID, fromTier, toTier, features); err != nil {
		return nil, err
	}

	cooc, err := b.guard.PairNumeric(ctx, player.ID, toClubID, domain.SignalUserDestinationCooccurrence, asOf)
	if err != nil {
		return nil, fmt.Errorf("pair signal: %w", err)
	}
	features["user_destination_cooccurrence"] = cooc

	return features, nil
}

// clubFeatures fills the prefixed club columns and returns the club's tier.
func (b *Builder) clubFeatures(ctx context.Context, clubID, prefix string, asOf time.Time, features map[string]*float64) (int, error) {
	clubSignals := map[string]domain.SignalType{
		prefix + "league_position": domain.SignalClubLeaguePosition,
		prefix + "points_per_game": domain.SignalClubPointsPerGame,
		prefix + "net_spend_12m":   domain.SignalClubNetSpend12M,
	}
	types := make([]domain.SignalType, 0, len(clubSignals))
	for _, signalType := range clubSignals {
		types = append(types, signalType)
	}
	values, err := b.guard.ClubNumericMany(ctx, clubID, types, asOf)
	if err != nil {
		return 0, fmt.Errorf("club signals: %w", err)
	}
	for column, signalType := range clubSignals {
		features[column] = values[signalType]
	}

	tier, err := b.reference.ClubTier(ctx, clubID)
	if err != nil {
		return 0, fmt.Errorf("club tier: %w", err)
	}
	tierF := float64(tier)
	features[prefix+"tier"] = &tierF
	return tier, nil
}

// pairFeatures fills same_country, same_league and tier_difference.
func (b *Builder) pairFeatures(ctx context.Context, fromClubID, toClubID string, fromTier, toTier int, features map[string]*float64) error {
	fromClub, err := b.reference.GetClub(ctx, fromClubID)
	if err != nil {
		return fmt.Errorf("from club: %w", err)
	}
	toClub, err := b.reference.GetClub(ctx, toClubID)
	if err != nil {
		return fmt.Errorf("to club: %w", err)
	}

	sameCountry := 0.0
	if fromClub.Country != "" && fromClub.Country == toClub.Country {
		sameCountry = 1.0
	}
	features["same_country"] = &sameCountry

	sameLeague := 0.0
	if fromClub.CompetitionID != nil && toClub.CompetitionID != nil &&
		*fromClub.CompetitionID == *toClub.CompetitionID {
		sameLeague = 1.0
	}
	features["same_league"] = &sameLeague

	tierDiff := float64(toTier - fromTier)
	features["tier_difference"] = &tierDiff
	return nil
}

// CandidateProvider yields the candidate set the bulk build fans out over.
type CandidateProvider interface {
	GetOrGenerate(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*persistence.CandidateSet, error)
}

// BulkStats summarizes one bulk feature build.
type BulkStats struct {
	Players  int
	Vectors  int
	Skipped  int
	Failures int
}

// BulkBuild builds and caches feature vectors for every active player's
// candidate set at asOf. Per-player failures are logged and counted, never
// fatal. Re-running for the same asOf overwrites the same rows.
func (b *Builder) BulkBuild(ctx context.Context, candidates CandidateProvider, store persistence.FeaturesRepo, asOf time.Time, horizonDays int) (BulkStats, error) {
	players, err := b.reference.ListActivePlayers(ctx)
	if err != nil {
		return BulkStats{}, fmt.Errorf("failed to list active players: %w", err)
	}

	stats := BulkStats{Players: len(players)}
	for _, player := range players {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if player.CurrentClubID == nil {
			stats.Skipped++
			continue
		}

		set, err := candidates.GetOrGenerate(ctx, player.ID, asOf, horizonDays)
		if err != nil {
			log.Warn().Err(err).Str("player_id", player.ID).Msg("Candidate set failed, skipping player")
			stats.Failures++
			continue
		}
		if set == nil || len(set.Candidates) == 0 {
			stats.Skipped++
			continue
		}

		for _, candidate := range set.Candidates {
			vector, err := b.BuildVector(ctx, player, *player.CurrentClubID, candidate.ClubID, asOf)
			if err != nil {
				log.Warn().Err(err).
					Str("player_id", player.ID).
					Str("club_id", candidate.ClubID).
					Msg("Feature vector failed")
				stats.Failures++
				continue
			}
			snap := persistence.FeatureSnapshot{
				ID:              uuid.New().String(),
				PlayerID:        player.ID,
				CandidateClubID: candidate.ClubID,
				AsOf:            asOf,
				Features:        vector,
				FeatureVersion:  Version,
			}
			if _, err := store.Upsert(ctx, snap); err != nil {
				log.Warn().Err(err).Str("player_id", player.ID).Msg("Feature upsert failed")
				stats.Failures++
				continue
			}
			stats.Vectors++
		}
	}

	log.Info().
		Int("players", stats.Players).
		Int("vectors", stats.Vectors).
		Int("skipped", stats.Skipped).
		Int("failures", stats.Failures).
		Time("as_of", asOf).
		Msg("Bulk feature build complete")
	return stats, nil
}
