package candidates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/temporal"
)

// Engine composes the candidate sources and persists the resulting sets.
type Engine struct {
	deps    Deps
	store   persistence.CandidatesRepo
	sources []Source
	cfg     Config
}

// NewEngine wires the engine with the standard source order: league, social,
// user attention, constraint fit, random. Order matters: earlier sources win
// deduplication.
func NewEngine(guard *temporal.Guard, reference persistence.ReferenceRepo, store persistence.CandidatesRepo, cfg Config) *Engine {
	deps := Deps{Guard: guard, Reference: reference}
	return &Engine{
		deps:  deps,
		store: store,
		cfg:   cfg,
		sources: []Source{
			NewLeagueSource(deps, cfg),
			NewSocialSource(deps, cfg),
			NewAttentionSource(deps, cfg),
			NewConstraintFitSource(deps, cfg),
			NewRandomSource(deps, cfg),
		},
	}
}

// Generate produces and persists the candidate set for one player. Players
// without a current club are skipped with a nil set.
func (e *Engine) Generate(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*persistence.CandidateSet, error) {
	player, err := e.deps.Reference.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if player.CurrentClubID == nil {
		log.Debug().Str("player_id", playerID).Msg("Skipping candidate generation, no current club")
		return nil, nil
	}
	currentClubID := *player.CurrentClubID

	in := Input{
		Player:        *player,
		CurrentClubID: currentClubID,
		AsOf:          asOf,
		HorizonDays:   horizonDays,
		Taken:         map[string]bool{},
	}

	var all []persistence.Candidate
	for _, source := range e.sources {
		proposed, err := source.Generate(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", source.Name(), err)
		}
		for _, c := range proposed {
			if in.Taken[c.ClubID] {
				continue
			}
			in.Taken[c.ClubID] = true
			all = append(all, c)
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > e.cfg.MaxTotalCandidates {
		all = all[:e.cfg.MaxTotalCandidates]
	}

	pctx, err := e.playerContext(ctx, *player, asOf)
	if err != nil {
		return nil, err
	}

	set := persistence.CandidateSet{
		PlayerID:      playerID,
		AsOf:          asOf,
		HorizonDays:   horizonDays,
		FromClubID:    &currentClubID,
		Candidates:    all,
		PlayerContext: pctx,
	}
	set.TotalCandidates = len(all)
	for _, c := range all {
		switch c.Source {
		case SourceLeague:
			set.LeagueCount++
		case SourceSocial:
			set.SocialCount++
		case SourceUserAttention:
			set.UserAttentionCount++
		case SourceConstraintFit:
			set.ConstraintFitCount++
		case SourceRandom:
			set.RandomCount++
		}
	}

	saved, err := e.store.Upsert(ctx, set)
	if err != nil {
		return nil, fmt.Errorf("failed to save candidate set: %w", err)
	}
	return &saved, nil
}

// GetOrGenerate returns the cached set for the exact triple, generating it
// on a miss.
func (e *Engine) GetOrGenerate(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*persistence.CandidateSet, error) {
	cached, err := e.store.Get(ctx, playerID, asOf, horizonDays)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	return e.Generate(ctx, playerID, asOf, horizonDays)
}

// playerContext freezes the player's as-of state for the audit record. All
// signal reads go through the guard.
func (e *Engine) playerContext(ctx context.Context, player persistence.Player, asOf time.Time) (persistence.PlayerContext, error) {
	pctx := persistence.PlayerContext{
		Name:     player.Name,
		Position: player.Position,
		ClubID:   player.CurrentClubID,
	}
	if player.DOB != nil {
		age := temporal.Age(*player.DOB, asOf)
		pctx.Age = &age
	}

	mv, err := e.deps.Guard.PlayerNumeric(ctx, player.ID, domain.SignalMarketValue, asOf)
	if err != nil {
		return pctx, err
	}
	pctx.MarketValue = mv

	cm, err := e.deps.Guard.PlayerNumeric(ctx, player.ID, domain.SignalContractMonthsRemaining, asOf)
	if err != nil {
		return pctx, err
	}
	pctx.ContractMonthsRemaining = cm

	return pctx, nil
}
