package candidates

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// fitSource proposes clubs in the top two tiers whose squad shape and budget
// suggest a need for the player.
type fitSource struct {
	deps Deps
	cfg  Config
}

// NewConstraintFitSource builds the constraint-fit candidate source.
func NewConstraintFitSource(deps Deps, cfg Config) Source {
	return &fitSource{deps: deps, cfg: cfg}
}

func (s *fitSource) Name() string { return SourceConstraintFit }

type fitScore struct {
	clubID string
	score  float64
	reason string
	tier   int
}

func (s *fitSource) Generate(ctx context.Context, in Input) ([]persistence.Candidate, error) {
	if in.Player.Position == nil {
		return nil, nil
	}
	position := *in.Player.Position

	playerValue := 0.0
	if v, err := s.deps.Guard.PlayerNumeric(ctx, in.Player.ID, domain.SignalMarketValue, in.AsOf); err != nil {
		return nil, fmt.Errorf("constraint fit: %w", err)
	} else if v != nil {
		playerValue = *v
	}

	tierByComp, err := s.competitionTiers(ctx)
	if err != nil {
		return nil, err
	}

	clubs, err := s.deps.Reference.ListClubsByMaxTier(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("constraint fit: %w", err)
	}

	var scored []fitScore
	for _, club := range clubs {
		if club.ID == in.CurrentClubID {
			continue
		}

		score := 0.0
		var reasons []string

		slots, err := s.deps.Reference.SquadProfile(ctx, club.ID)
		if err != nil {
			return nil, fmt.Errorf("constraint fit: %w", err)
		}
		count, avgAge := 0, 0.0
		for _, slot := range slots {
			if slot.Position == position {
				count, avgAge = slot.Count, slot.AvgAge
				break
			}
		}

		switch {
		case count <= 2:
			score += 0.4
			reasons = append(reasons, fmt.Sprintf("Only %d %ss", count, position))
		case count <= 3:
			score += 0.2
			reasons = append(reasons, fmt.Sprintf("Few %ss (%d)", position, count))
		}
		if avgAge >= 30 {
			score += 0.3
			reasons = append(reasons, fmt.Sprintf("Aging %ss (avg %.1f)", position, avgAge))
		}

		netSpend := 0.0
		if v, err := s.deps.Guard.ClubNumeric(ctx, club.ID, domain.SignalClubNetSpend12M, in.AsOf); err != nil {
			return nil, fmt.Errorf("constraint fit: %w", err)
		} else if v != nil {
			netSpend = *v
		}
		// Positive net spend means the club sold more than it bought.
		if netSpend > 0 {
			if playerValue <= netSpend*s.cfg.FeeAffordabilityRatio {
				score += 0.3
				reasons = append(reasons, fmt.Sprintf("Budget available (net spend €%.1fM)", netSpend/1e6))
			}
		} else if -netSpend < playerValue*2 {
			score += 0.1
			reasons = append(reasons, "Within typical spend")
		}

		tier := missingPosition
		if club.CompetitionID != nil {
			if t, ok := tierByComp[*club.CompetitionID]; ok {
				tier = t
			}
		}
		if tier == 1 {
			score += 0.1
			reasons = append(reasons, "Top tier club")
		}

		if score > 0.3 && len(reasons) > 0 {
			scored = append(scored, fitScore{
				clubID: club.ID,
				score:  clamp01(score),
				reason: strings.Join(reasons, "; "),
				tier:   tier,
			})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > s.cfg.ConstraintMaxCandidates {
		scored = scored[:s.cfg.ConstraintMaxCandidates]
	}

	out := make([]persistence.Candidate, 0, len(scored))
	for _, fs := range scored {
		out = append(out, persistence.Candidate{
			ClubID: fs.clubID,
			Source: SourceConstraintFit,
			Score:  fs.score,
			Reason: fs.reason,
		})
	}
	return out, nil
}

func (s *fitSource) competitionTiers(ctx context.Context) (map[string]int, error) {
	comps, err := s.deps.Reference.ListCompetitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("constraint fit: %w", err)
	}
	tiers := make(map[string]int, len(comps))
	for _, comp := range comps {
		tiers[comp.ID] = comp.Tier
	}
	return tiers, nil
}
