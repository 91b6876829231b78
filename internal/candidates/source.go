package candidates

import (
	"context"
	"time"

	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/temporal"
)

// Input is everything a source needs to propose destinations.
type Input struct {
	Player        persistence.Player
	CurrentClubID string
	AsOf          time.Time
	HorizonDays   int

	// Taken holds club IDs already claimed by earlier sources. Sources may
	// consult it to avoid wasted work; the engine deduplicates regardless.
	Taken map[string]bool
}

// Source proposes scored destination clubs for a player. Implementations are
// composed by the engine in a fixed order; adding a source requires no
// changes elsewhere.
type Source interface {
	Name() string
	Generate(ctx context.Context, in Input) ([]persistence.Candidate, error)
}

// Deps bundles the reads shared by all sources. Signal lookups go through
// the time-travel guard only.
type Deps struct {
	Guard     *temporal.Guard
	Reference persistence.ReferenceRepo
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
