package candidates

import (
	"context"
	"fmt"
	"math"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// socialSource proposes clubs whose co-mention velocity with the player
// spiked above the threshold.
type socialSource struct {
	deps Deps
	cfg  Config
}

// NewSocialSource builds the social co-mention candidate source.
func NewSocialSource(deps Deps, cfg Config) Source {
	return &socialSource{deps: deps, cfg: cfg}
}

func (s *socialSource) Name() string { return SourceSocial }

func (s *socialSource) Generate(ctx context.Context, in Input) ([]persistence.Candidate, error) {
	events, err := s.deps.Guard.LatestPairsForPlayer(ctx, in.Player.ID,
		domain.SignalSocialMentionVelocity, in.AsOf,
		s.cfg.SocialMentionThreshold, s.cfg.SocialMaxCandidates+1)
	if err != nil {
		return nil, fmt.Errorf("social source: %w", err)
	}

	var out []persistence.Candidate
	for _, event := range events {
		if event.ClubID == nil || *event.ClubID == in.CurrentClubID {
			continue
		}
		velocity, ok := event.Value().Num()
		if !ok {
			continue
		}
		out = append(out, persistence.Candidate{
			ClubID: *event.ClubID,
			Source: SourceSocial,
			Score:  math.Min(velocity/10, 1.0),
			Reason: fmt.Sprintf("Social co-mention velocity: %.1fx", velocity),
		})
		if len(out) >= s.cfg.SocialMaxCandidates {
			break
		}
	}
	return out, nil
}

// attentionSource proposes clubs users repeatedly viewed together with the
// player, via the derived cooccurrence signal.
type attentionSource struct {
	deps Deps
	cfg  Config
}

// NewAttentionSource builds the user-attention candidate source.
func NewAttentionSource(deps Deps, cfg Config) Source {
	return &attentionSource{deps: deps, cfg: cfg}
}

func (s *attentionSource) Name() string { return SourceUserAttention }

func (s *attentionSource) Generate(ctx context.Context, in Input) ([]persistence.Candidate, error) {
	events, err := s.deps.Guard.LatestPairsForPlayer(ctx, in.Player.ID,
		domain.SignalUserDestinationCooccurrence, in.AsOf,
		s.cfg.UserCooccurrenceThreshold, s.cfg.UserMaxCandidates+1)
	if err != nil {
		return nil, fmt.Errorf("attention source: %w", err)
	}

	var out []persistence.Candidate
	for _, event := range events {
		if event.ClubID == nil || *event.ClubID == in.CurrentClubID {
			continue
		}
		score, ok := event.Value().Num()
		if !ok {
			continue
		}
		out = append(out, persistence.Candidate{
			ClubID: *event.ClubID,
			Source: SourceUserAttention,
			Score:  math.Min(score/100, 1.0),
			Reason: fmt.Sprintf("User attention cooccurrence: %.1f", score),
		})
		if len(out) >= s.cfg.UserMaxCandidates {
			break
		}
	}
	return out, nil
}
