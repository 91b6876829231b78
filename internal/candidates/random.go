package candidates

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/transferlens/transferlens/internal/persistence"
)

// randomSource samples clubs from the top three tiers uniformly. Random
// candidates keep the model calibrated across the probability range by
// forcing it to reject unlikely destinations.
type randomSource struct {
	deps Deps
	cfg  Config
}

// NewRandomSource builds the random calibration source.
func NewRandomSource(deps Deps, cfg Config) Source {
	return &randomSource{deps: deps, cfg: cfg}
}

func (s *randomSource) Name() string { return SourceRandom }

// seedFor derives a deterministic seed from the (player, as_of) pair so
// re-running generation reproduces the same sample. Never wall clock.
func seedFor(playerID string, asOf time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(playerID))
	h.Write([]byte("|"))
	h.Write([]byte(asOf.UTC().Format(time.RFC3339Nano)))
	return int64(h.Sum64())
}

func (s *randomSource) Generate(ctx context.Context, in Input) ([]persistence.Candidate, error) {
	clubs, err := s.deps.Reference.ListClubsByMaxTier(ctx, 3)
	if err != nil {
		return nil, fmt.Errorf("random source: %w", err)
	}

	eligible := make([]persistence.Club, 0, len(clubs))
	for _, club := range clubs {
		if club.ID == in.CurrentClubID || in.Taken[club.ID] {
			continue
		}
		eligible = append(eligible, club)
	}
	// Stable base order so the shuffle depends only on the seed.
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })

	rng := rand.New(rand.NewSource(seedFor(in.Player.ID, in.AsOf)))
	rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	n := s.cfg.RandomCandidates
	if n > len(eligible) {
		n = len(eligible)
	}
	out := make([]persistence.Candidate, 0, n)
	for _, club := range eligible[:n] {
		out = append(out, persistence.Candidate{
			ClubID: club.ID,
			Source: SourceRandom,
			Score:  0.1,
			Reason: "Random calibration sample",
		})
	}
	return out, nil
}
