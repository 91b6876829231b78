// Package candidates produces auditable destination candidate sets for a
// (player, as-of, horizon) triple. Sources are plug-ins composed in a fixed
// order; the first source to propose a club wins it.
package candidates

// Config tunes candidate generation.
type Config struct {
	// League source
	LeagueTopN         int  `yaml:"league_top_n"`
	IncludeTopLeagues  bool `yaml:"include_top_leagues"`

	// Social source
	SocialMentionThreshold float64 `yaml:"social_mention_threshold"`
	SocialMaxCandidates    int     `yaml:"social_max_candidates"`

	// User attention source
	UserCooccurrenceThreshold float64 `yaml:"user_cooccurrence_threshold"`
	UserMaxCandidates         int     `yaml:"user_max_candidates"`

	// Constraint-fit source
	ConstraintMaxCandidates int     `yaml:"constraint_max_candidates"`
	FeeAffordabilityRatio   float64 `yaml:"fee_affordability_ratio"`

	// Random source, kept for calibration across the probability range
	RandomCandidates int `yaml:"random_candidates"`

	MaxTotalCandidates int `yaml:"max_total_candidates"`
}

// DefaultConfig matches the production tuning.
func DefaultConfig() Config {
	return Config{
		LeagueTopN:                8,
		IncludeTopLeagues:         true,
		SocialMentionThreshold:    2.0,
		SocialMaxCandidates:       5,
		UserCooccurrenceThreshold: 3.0,
		UserMaxCandidates:         5,
		ConstraintMaxCandidates:   5,
		FeeAffordabilityRatio:     0.3,
		RandomCandidates:          5,
		MaxTotalCandidates:        20,
	}
}

// TopLeagues are the competitions whose leaders are always considered as
// destinations regardless of the player's current league.
var TopLeagues = []string{"Premier League", "La Liga", "Bundesliga", "Serie A", "Ligue 1"}

// Source name constants stored in candidates_json.
const (
	SourceLeague        = "league"
	SourceSocial        = "social"
	SourceUserAttention = "user_attention"
	SourceConstraintFit = "constraint_fit"
	SourceRandom        = "random"
)
