package domain

// EntityType identifies which entity a signal describes.
type EntityType string

const (
	EntityPlayer EntityType = "player"
	EntityClub   EntityType = "club"
	EntityPair   EntityType = "club_player_pair"
)

// SignalType is the closed set of observation kinds the store accepts.
type SignalType string

const (
	// Performance
	SignalMinutesLast5 SignalType = "minutes_last_5"
	SignalInjuryStatus SignalType = "injuries_status"
	SignalGoalsLast10  SignalType = "goals_last_10"
	SignalAssistsLast10 SignalType = "assists_last_10"

	// Club state
	SignalClubLeaguePosition SignalType = "club_league_position"
	SignalClubPointsPerGame  SignalType = "club_points_per_game"
	SignalClubNetSpend12M    SignalType = "club_net_spend_12m"

	// Contract and market
	SignalContractMonthsRemaining SignalType = "contract_months_remaining"
	SignalWageEstimate            SignalType = "wage_estimate"
	SignalMarketValue             SignalType = "market_value"
	SignalReleaseClause           SignalType = "release_clause"

	// Social
	SignalSocialMentionVelocity SignalType = "social_mention_velocity"
	SignalSocialSentiment       SignalType = "social_sentiment"

	// Derived from user behavior
	SignalUserAttentionVelocity      SignalType = "user_attention_velocity"
	SignalUserDestinationCooccurrence SignalType = "user_destination_cooccurrence"
	SignalUserWatchlistAdds          SignalType = "user_watchlist_adds"
)

// AllSignalTypes enumerates every accepted signal type, for validation.
var AllSignalTypes = []SignalType{
	SignalMinutesLast5, SignalInjuryStatus, SignalGoalsLast10, SignalAssistsLast10,
	SignalClubLeaguePosition, SignalClubPointsPerGame, SignalClubNetSpend12M,
	SignalContractMonthsRemaining, SignalWageEstimate, SignalMarketValue, SignalReleaseClause,
	SignalSocialMentionVelocity, SignalSocialSentiment,
	SignalUserAttentionVelocity, SignalUserDestinationCooccurrence, SignalUserWatchlistAdds,
}

// ValidSignalType reports whether s is one of the closed enum values.
func ValidSignalType(s SignalType) bool {
	for _, t := range AllSignalTypes {
		if s == t {
			return true
		}
	}
	return false
}

// TransferType classifies a ledger row.
type TransferType string

const (
	TransferPermanent          TransferType = "permanent"
	TransferLoan               TransferType = "loan"
	TransferLoanWithOption     TransferType = "loan_with_option"
	TransferLoanWithObligation TransferType = "loan_with_obligation"
	TransferFree               TransferType = "free_transfer"
	TransferContractExpiry     TransferType = "contract_expiry"
	TransferYouthPromotion     TransferType = "youth_promotion"
	TransferRetirement         TransferType = "retirement"
)

// UserEventType classifies a pseudonymous UX interaction.
type UserEventType string

const (
	EventPlayerView   UserEventType = "player_view"
	EventClubView     UserEventType = "club_view"
	EventWatchlistAdd UserEventType = "watchlist_add"
	EventShare        UserEventType = "share"
	EventSearch       UserEventType = "search"
)

// ModelStatus tracks a ModelVersion through its lifecycle.
type ModelStatus string

const (
	ModelTraining  ModelStatus = "training"
	ModelCompleted ModelStatus = "completed"
	ModelFailed    ModelStatus = "failed"
	ModelDeployed  ModelStatus = "deployed"
	ModelArchived  ModelStatus = "archived"
)

// Severity ranks a what-changed delta.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityAlert   Severity = "alert"
)

// SeverityRank orders severities for sorting, higher first.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityAlert:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}
