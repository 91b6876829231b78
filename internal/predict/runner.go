package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/features"
	"github.com/transferlens/transferlens/internal/metrics"
	"github.com/transferlens/transferlens/internal/ml"
	"github.com/transferlens/transferlens/internal/model"
	"github.com/transferlens/transferlens/internal/persistence"
)

// DefaultMaxPerPlayer caps snapshots per player per run.
const DefaultMaxPerPlayer = 10

// SnapshotID builds the deterministic snapshot key. The microsecond stamp
// keeps two runs inside the same second from colliding.
func SnapshotID(playerID string, toClubID *string, horizonDays int, asOf time.Time) string {
	to := "ANY"
	if toClubID != nil {
		to = short(*toClubID)
	}
	return fmt.Sprintf("SNAP-%s-%s-H%d-%s",
		short(playerID), to, horizonDays, asOf.UTC().Format("20060102150405.000000"))
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Runner scores every active player's candidates and persists snapshots.
type Runner struct {
	reference    persistence.ReferenceRepo
	candidates   features.CandidateProvider
	builder      *features.Builder
	predictions  persistence.PredictionsRepo
	models       persistence.ModelsRepo
	maxPerPlayer int
}

// NewRunner wires the scoring runner.
func NewRunner(reference persistence.ReferenceRepo, candidates features.CandidateProvider, builder *features.Builder, predictions persistence.PredictionsRepo, models persistence.ModelsRepo, maxPerPlayer int) *Runner {
	if maxPerPlayer <= 0 {
		maxPerPlayer = DefaultMaxPerPlayer
	}
	return &Runner{
		reference:    reference,
		candidates:   candidates,
		builder:      builder,
		predictions:  predictions,
		models:       models,
		maxPerPlayer: maxPerPlayer,
	}
}

// LoadScorer returns the newest trained scorer for the horizon, or the
// heuristic fallback when no model exists or its artifact will not load.
func (r *Runner) LoadScorer(ctx context.Context, horizonDays int) (Scorer, error) {
	version, err := model.LatestUsable(ctx, r.models, horizonDays)
	if err != nil {
		return nil, fmt.Errorf("model lookup: %w", err)
	}
	if version == nil {
		log.Info().Int("horizon_days", horizonDays).Msg("No trained model, scoring with heuristic")
		metrics.HeuristicFallbacks.Inc()
		return NewHeuristicScorer(), nil
	}

	artifact, err := ml.LoadArtifact(version.ArtifactPath)
	if err != nil {
		log.Warn().Err(err).
			Str("artifact_path", version.ArtifactPath).
			Msg("Artifact load failed, falling back to heuristic")
		metrics.HeuristicFallbacks.Inc()
		return NewHeuristicScorer(), nil
	}
	scorer, err := NewModelScorer(artifact, version.ModelName)
	if err != nil {
		log.Warn().Err(err).Msg("Artifact unusable, falling back to heuristic")
		metrics.HeuristicFallbacks.Inc()
		return NewHeuristicScorer(), nil
	}
	log.Info().
		Str("model_name", version.ModelName).
		Str("model_version", version.ModelVersion).
		Msg("Scoring with trained model")
	return scorer, nil
}

// Stats summarizes one scoring run.
type Stats struct {
	Players   int
	Snapshots int
	Skipped   int
	Failures  int
}

// Run scores all active players at asOf and refreshes the market view.
func (r *Runner) Run(ctx context.Context, asOf time.Time, horizonDays int) (Stats, error) {
	scorer, err := r.LoadScorer(ctx, horizonDays)
	if err != nil {
		return Stats{}, err
	}

	players, err := r.reference.ListActivePlayers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list active players: %w", err)
	}

	stats := Stats{Players: len(players)}
	for _, player := range players {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		snapshots, err := r.scoreOne(ctx, scorer, player, asOf, horizonDays)
		if err != nil {
			log.Warn().Err(err).Str("player_id", player.ID).Msg("Scoring failed for player")
			stats.Failures++
			continue
		}
		if snapshots == 0 {
			stats.Skipped++
		}
		stats.Snapshots += snapshots
	}

	if err := r.predictions.RefreshMarketView(ctx); err != nil {
		log.Warn().Err(err).Msg("Market view refresh failed")
	}

	log.Info().
		Int("players", stats.Players).
		Int("snapshots", stats.Snapshots).
		Int("skipped", stats.Skipped).
		Int("failures", stats.Failures).
		Time("as_of", asOf).
		Msg("Scoring run complete")
	return stats, nil
}

// ScorePlayer scores a single player on demand and returns the persisted
// snapshots, newest probability first.
func (r *Runner) ScorePlayer(ctx context.Context, playerID string, asOf time.Time, horizonDays int) ([]persistence.PredictionSnapshot, error) {
	scorer, err := r.LoadScorer(ctx, horizonDays)
	if err != nil {
		return nil, err
	}
	player, err := r.reference.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if _, err := r.scoreOne(ctx, scorer, *player, asOf, horizonDays); err != nil {
		return nil, err
	}
	return r.predictions.LatestForPlayer(ctx, playerID, r.maxPerPlayer)
}

func (r *Runner) scoreOne(ctx context.Context, scorer Scorer, player persistence.Player, asOf time.Time, horizonDays int) (int, error) {
	if player.CurrentClubID == nil {
		return 0, nil
	}
	set, err := r.candidates.GetOrGenerate(ctx, player.ID, asOf, horizonDays)
	if err != nil {
		return 0, err
	}
	if set == nil || len(set.Candidates) == 0 {
		return 0, nil
	}

	candidates := set.Candidates
	if len(candidates) > r.maxPerPlayer {
		candidates = candidates[:r.maxPerPlayer]
	}

	written := 0
	for _, candidate := range candidates {
		vector, err := r.builder.BuildVector(ctx, player, *player.CurrentClubID, candidate.ClubID, asOf)
		if err != nil {
			log.Warn().Err(err).
				Str("player_id", player.ID).
				Str("club_id", candidate.ClubID).
				Msg("Vector build failed, skipping candidate")
			continue
		}
		probability, drivers := scorer.Score(vector)

		featuresJSON, err := json.Marshal(vector)
		if err != nil {
			return written, fmt.Errorf("features encode: %w", err)
		}
		toClubID := candidate.ClubID
		snapshot := persistence.PredictionSnapshot{
			ID:           uuid.New().String(),
			SnapshotID:   SnapshotID(player.ID, &toClubID, horizonDays, asOf),
			ModelVersion: scorer.ModelVersion(),
			ModelName:    scorer.ModelName(),
			PlayerID:     player.ID,
			FromClubID:   player.CurrentClubID,
			ToClubID:     &toClubID,
			HorizonDays:  horizonDays,
			Probability:  probability,
			Drivers:      drivers,
			Features:     featuresJSON,
			AsOf:         asOf,
			WindowStart:  asOf,
			WindowEnd:    asOf.AddDate(0, 0, horizonDays),
		}
		if err := snapshot.Validate(); err != nil {
			return written, fmt.Errorf("snapshot invalid: %w", err)
		}
		if _, err := r.predictions.Upsert(ctx, snapshot); err != nil {
			return written, fmt.Errorf("snapshot upsert: %w", err)
		}
		written++
	}
	return written, nil
}
