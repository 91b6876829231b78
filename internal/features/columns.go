// Package features builds point-in-time feature vectors for
// (player, from-club, candidate-club) triples. Every value is read through
// the temporal guard at the as-of instant; missing values stay null so that
// imputation statistics live with the trained model, not here.
package features

// Version tags stored snapshots so a column change invalidates the cache.
const Version = "v1"

// Columns is the fixed, ordered feature schema. Order matters: trained
// artifacts record it and the scorer assembles vectors against it.
var Columns = []string{
	"age",
	"position_encoded",
	"market_value",
	"contract_months_remaining",
	"goals_last_10",
	"assists_last_10",
	"minutes_last_5",
	"social_mention_velocity",
	"user_attention_velocity",
	"from_club_league_position",
	"from_club_points_per_game",
	"from_club_net_spend_12m",
	"from_club_tier",
	"to_club_league_position",
	"to_club_points_per_game",
	"to_club_net_spend_12m",
	"to_club_tier",
	"same_country",
	"same_league",
	"tier_difference",
	"user_destination_cooccurrence",
}

// positionEncoding is the fixed ordinal mapping for position_encoded.
// Unknown positions stay null.
var positionEncoding = map[string]float64{
	"ST":  1,
	"LW":  2,
	"RW":  3,
	"CAM": 4,
	"CM":  5,
	"CDM": 6,
	"CB":  7,
	"LB":  8,
	"RB":  9,
	"GK":  10,
}

// EncodePosition returns the ordinal for a position string, nil when the
// position is unknown or absent.
func EncodePosition(position *string) *float64 {
	if position == nil {
		return nil
	}
	if v, ok := positionEncoding[*position]; ok {
		enc := v
		return &enc
	}
	return nil
}
