package candidates

import (
	"context"
	"fmt"
	"sort"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// missingPosition ranks clubs with no league-position signal last.
const missingPosition = 99

// leagueSource proposes the top clubs of the player's current league plus
// the leaders of the named top leagues.
type leagueSource struct {
	deps Deps
	cfg  Config
}

// NewLeagueSource builds the league candidate source.
func NewLeagueSource(deps Deps, cfg Config) Source {
	return &leagueSource{deps: deps, cfg: cfg}
}

func (s *leagueSource) Name() string { return SourceLeague }

type rankedClub struct {
	club     persistence.Club
	position float64
	compName string
}

func (s *leagueSource) Generate(ctx context.Context, in Input) ([]persistence.Candidate, error) {
	currentClub, err := s.deps.Reference.GetClub(ctx, in.CurrentClubID)
	if err != nil {
		return nil, fmt.Errorf("league source: %w", err)
	}
	if currentClub.CompetitionID == nil {
		return nil, nil
	}

	comp, err := s.deps.Reference.GetCompetition(ctx, *currentClub.CompetitionID)
	if err != nil {
		return nil, fmt.Errorf("league source: %w", err)
	}

	var out []persistence.Candidate

	sameLeague, err := s.rankCompetition(ctx, comp.ID, comp.Name, in)
	if err != nil {
		return nil, err
	}
	if len(sameLeague) > s.cfg.LeagueTopN {
		sameLeague = sameLeague[:s.cfg.LeagueTopN]
	}
	for _, rc := range sameLeague {
		out = append(out, persistence.Candidate{
			ClubID: rc.club.ID,
			Source: SourceLeague,
			Score:  clamp01(1.0 - rc.position/20),
			Reason: fmt.Sprintf("Top %d in %s", int(rc.position), rc.compName),
		})
	}

	if s.cfg.IncludeTopLeagues {
		others, err := s.topLeagueLeaders(ctx, comp.ID, in)
		if err != nil {
			return nil, err
		}
		for _, rc := range others {
			out = append(out, persistence.Candidate{
				ClubID: rc.club.ID,
				Source: SourceLeague,
				Score:  clamp01(0.8 - rc.position/30),
				Reason: fmt.Sprintf("Top %d in %s", int(rc.position), rc.compName),
			})
		}
	}

	return out, nil
}

// rankCompetition orders a competition's clubs by their league-position
// signal at as-of, excluding the player's current club.
func (s *leagueSource) rankCompetition(ctx context.Context, competitionID, compName string, in Input) ([]rankedClub, error) {
	clubs, err := s.deps.Reference.ListClubsInCompetition(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("league source: %w", err)
	}

	ranked := make([]rankedClub, 0, len(clubs))
	for _, club := range clubs {
		if club.ID == in.CurrentClubID {
			continue
		}
		position := float64(missingPosition)
		if v, err := s.deps.Guard.ClubNumeric(ctx, club.ID, domain.SignalClubLeaguePosition, in.AsOf); err != nil {
			return nil, fmt.Errorf("league source: %w", err)
		} else if v != nil {
			position = *v
		}
		ranked = append(ranked, rankedClub{club: club, position: position, compName: compName})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].position < ranked[j].position })
	return ranked, nil
}

// topLeagueLeaders collects clubs placed 6th or better in the named top
// leagues, excluding the player's own competition.
func (s *leagueSource) topLeagueLeaders(ctx context.Context, currentCompID string, in Input) ([]rankedClub, error) {
	comps, err := s.deps.Reference.ListCompetitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("league source: %w", err)
	}

	isTop := map[string]bool{}
	for _, name := range TopLeagues {
		isTop[name] = true
	}

	var leaders []rankedClub
	for _, comp := range comps {
		if comp.ID == currentCompID || !isTop[comp.Name] {
			continue
		}
		ranked, err := s.rankCompetition(ctx, comp.ID, comp.Name, in)
		if err != nil {
			return nil, err
		}
		for _, rc := range ranked {
			if rc.position <= 6 {
				leaders = append(leaders, rc)
			}
		}
	}

	sort.SliceStable(leaders, func(i, j int) bool { return leaders[i].position < leaders[j].position })
	if len(leaders) > 10 {
		leaders = leaders[:10]
	}
	return leaders, nil
}
