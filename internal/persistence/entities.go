package persistence

import (
	"encoding/json"
	"time"

	"github.com/transferlens/transferlens/internal/domain"
)

// Competition is reference data, mutated only by admin writes.
type Competition struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Country   string    `json:"country" db:"country"`
	Tier      int       `json:"tier" db:"tier"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Club is reference data; tier derives from its competition.
type Club struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Country       string    `json:"country" db:"country"`
	CompetitionID *string   `json:"competition_id,omitempty" db:"competition_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Player is reference data. CurrentClubID and ContractUntil are denormalized
// hints written on admin/ledger paths; truth is the ledger plus signals, and
// feature reads never touch them.
type Player struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	DOB           *time.Time `json:"dob,omitempty" db:"dob"`
	Nationality   *string    `json:"nationality,omitempty" db:"nationality"`
	Position      *string    `json:"position,omitempty" db:"position"`
	CurrentClubID *string    `json:"current_club_id,omitempty" db:"current_club_id"`
	ContractUntil *time.Time `json:"contract_until,omitempty" db:"contract_until"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// TransferEvent is one immutable ledger row. Corrections append a new row and
// flip IsSuperseded on the old one, with SupersededBy pointing forward.
type TransferEvent struct {
	ID               string              `json:"id" db:"id"`
	EventID          string              `json:"event_id" db:"event_id"`
	PlayerID         string              `json:"player_id" db:"player_id"`
	FromClubID       *string             `json:"from_club_id,omitempty" db:"from_club_id"`
	ToClubID         string              `json:"to_club_id" db:"to_club_id"`
	TransferType     domain.TransferType `json:"transfer_type" db:"transfer_type"`
	TransferDate     time.Time           `json:"transfer_date" db:"transfer_date"`
	FeeAmount        *float64            `json:"fee_amount,omitempty" db:"fee_amount"`
	FeeCurrency      *string             `json:"fee_currency,omitempty" db:"fee_currency"`
	FeeAmountEUR     *float64            `json:"fee_amount_eur,omitempty" db:"fee_amount_eur"`
	FeeType          string              `json:"fee_type" db:"fee_type"`
	ContractStart    *time.Time          `json:"contract_start,omitempty" db:"contract_start"`
	ContractEnd      *time.Time          `json:"contract_end,omitempty" db:"contract_end"`
	LoanEndDate      *time.Time          `json:"loan_end_date,omitempty" db:"loan_end_date"`
	HasOptionToBuy   bool                `json:"has_option_to_buy" db:"has_option_to_buy"`
	OptionFeeEUR     *float64            `json:"option_fee_eur,omitempty" db:"option_fee_eur"`
	HasObligation    bool                `json:"has_obligation_to_buy" db:"has_obligation_to_buy"`
	ObligationFeeEUR *float64            `json:"obligation_fee_eur,omitempty" db:"obligation_fee_eur"`
	SellOnPercent    *float64            `json:"sell_on_percent,omitempty" db:"sell_on_percent"`
	HasBuyBack       bool                `json:"has_buy_back" db:"has_buy_back"`
	BuyBackFeeEUR    *float64            `json:"buy_back_fee_eur,omitempty" db:"buy_back_fee_eur"`
	Source           string              `json:"source" db:"source"`
	SourceConfidence float64             `json:"source_confidence" db:"source_confidence"`
	IsSuperseded     bool                `json:"is_superseded" db:"is_superseded"`
	SupersededBy     *string             `json:"superseded_by,omitempty" db:"superseded_by"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
}

// SignalEvent is one bitemporal observation row. ObservedAt is when the
// observer learned the fact; EffectiveFrom/EffectiveTo bound when it held.
type SignalEvent struct {
	ID            string            `json:"id" db:"id"`
	EntityType    domain.EntityType `json:"entity_type" db:"entity_type"`
	PlayerID      *string           `json:"player_id,omitempty" db:"player_id"`
	ClubID        *string           `json:"club_id,omitempty" db:"club_id"`
	SignalType    domain.SignalType `json:"signal_type" db:"signal_type"`
	ValueNum      *float64          `json:"value_num,omitempty" db:"value_num"`
	ValueText     *string           `json:"value_text,omitempty" db:"value_text"`
	ValueJSON     json.RawMessage   `json:"value_json,omitempty" db:"value_json"`
	Source        string            `json:"source" db:"source"`
	SourceID      *string           `json:"source_id,omitempty" db:"source_id"`
	Confidence    float64           `json:"confidence" db:"confidence"`
	ObservedAt    time.Time         `json:"observed_at" db:"observed_at"`
	EffectiveFrom time.Time         `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time        `json:"effective_to,omitempty" db:"effective_to"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// Value converts the nullable storage columns into the tagged variant.
func (s SignalEvent) Value() domain.SignalValue {
	switch {
	case s.ValueNum != nil:
		return domain.NumericValue(*s.ValueNum)
	case s.ValueText != nil:
		return domain.TextValue(*s.ValueText)
	case len(s.ValueJSON) > 0:
		return domain.JSONValue(s.ValueJSON)
	}
	return domain.SignalValue{}
}

// Validate enforces entity consistency, the confidence range, payload
// exclusivity, and the effective interval ordering.
func (s SignalEvent) Validate() error {
	switch s.EntityType {
	case domain.EntityPlayer:
		if s.PlayerID == nil || s.ClubID != nil {
			return &domain.ValidationError{Field: "entity_type", Message: "player signals need player_id and no club_id"}
		}
	case domain.EntityClub:
		if s.ClubID == nil || s.PlayerID != nil {
			return &domain.ValidationError{Field: "entity_type", Message: "club signals need club_id and no player_id"}
		}
	case domain.EntityPair:
		if s.PlayerID == nil || s.ClubID == nil {
			return &domain.ValidationError{Field: "entity_type", Message: "pair signals need both player_id and club_id"}
		}
	default:
		return &domain.ValidationError{Field: "entity_type", Message: "unknown entity type"}
	}

	if !domain.ValidSignalType(s.SignalType) {
		return &domain.ValidationError{Field: "signal_type", Message: "unknown signal type"}
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return &domain.ValidationError{Field: "confidence", Message: "must be in [0,1]"}
	}

	populated := 0
	if s.ValueNum != nil {
		populated++
	}
	if s.ValueText != nil {
		populated++
	}
	if len(s.ValueJSON) > 0 {
		populated++
	}
	if populated != 1 {
		return &domain.ValidationError{Field: "value", Message: "exactly one of value_num, value_text, value_json must be set"}
	}

	if s.EffectiveTo != nil && !s.EffectiveTo.After(s.EffectiveFrom) {
		return &domain.ValidationError{Field: "effective_to", Message: "must be after effective_from"}
	}
	return nil
}

// PredictionSnapshot is one append-only probability output. ToClubID nil
// means "any destination".
type PredictionSnapshot struct {
	ID           string             `json:"id" db:"id"`
	SnapshotID   string             `json:"snapshot_id" db:"snapshot_id"`
	ModelVersion string             `json:"model_version" db:"model_version"`
	ModelName    string             `json:"model_name" db:"model_name"`
	PlayerID     string             `json:"player_id" db:"player_id"`
	FromClubID   *string            `json:"from_club_id,omitempty" db:"from_club_id"`
	ToClubID     *string            `json:"to_club_id,omitempty" db:"to_club_id"`
	HorizonDays  int                `json:"horizon_days" db:"horizon_days"`
	Probability  float64            `json:"probability" db:"probability"`
	Drivers      map[string]float64 `json:"drivers" db:"drivers_json"`
	Features     json.RawMessage    `json:"features,omitempty" db:"features_json"`
	AsOf         time.Time          `json:"as_of" db:"as_of"`
	WindowStart  time.Time          `json:"window_start" db:"window_start"`
	WindowEnd    time.Time          `json:"window_end" db:"window_end"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
}

// Validate enforces the snapshot range invariants.
func (p PredictionSnapshot) Validate() error {
	if p.Probability < 0 || p.Probability > 1 {
		return &domain.ValidationError{Field: "probability", Message: "must be in [0,1]"}
	}
	if p.HorizonDays <= 0 {
		return &domain.ValidationError{Field: "horizon_days", Message: "must be positive"}
	}
	if !p.WindowEnd.After(p.WindowStart) {
		return &domain.ValidationError{Field: "window_end", Message: "must be after window_start"}
	}
	sum := 0.0
	for k, v := range p.Drivers {
		if v < 0 {
			return &domain.ValidationError{Field: "drivers_json", Message: "driver " + k + " is negative"}
		}
		sum += v
	}
	if sum > 1.0+1e-9 {
		return &domain.ValidationError{Field: "drivers_json", Message: "driver contributions must sum to <= 1"}
	}
	return nil
}

// Candidate is one scored destination inside a candidate set.
type Candidate struct {
	ClubID string  `json:"club_id"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// PlayerContext freezes the player's state at as-of time alongside a
// candidate set, for auditability.
type PlayerContext struct {
	Name                    string   `json:"name"`
	Position                *string  `json:"position,omitempty"`
	ClubID                  *string  `json:"club_id,omitempty"`
	Age                     *float64 `json:"age,omitempty"`
	MarketValue             *float64 `json:"market_value,omitempty"`
	ContractMonthsRemaining *float64 `json:"contract_months_remaining,omitempty"`
}

// CandidateSet records the destinations considered at (player, as_of, horizon).
type CandidateSet struct {
	ID                 string        `json:"id" db:"id"`
	PlayerID           string        `json:"player_id" db:"player_id"`
	AsOf               time.Time     `json:"as_of" db:"as_of"`
	HorizonDays        int           `json:"horizon_days" db:"horizon_days"`
	FromClubID         *string       `json:"from_club_id,omitempty" db:"from_club_id"`
	TotalCandidates    int           `json:"total_candidates" db:"total_candidates"`
	LeagueCount        int           `json:"league_count" db:"league_count"`
	SocialCount        int           `json:"social_count" db:"social_count"`
	UserAttentionCount int           `json:"user_attention_count" db:"user_attention_count"`
	ConstraintFitCount int           `json:"constraint_fit_count" db:"constraint_fit_count"`
	RandomCount        int           `json:"random_count" db:"random_count"`
	Candidates         []Candidate   `json:"candidates" db:"candidates_json"`
	PlayerContext      PlayerContext `json:"player_context" db:"player_context_json"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
}

// UserEvent is one pseudonymous UX interaction.
type UserEvent struct {
	ID          string               `json:"id" db:"id"`
	AnonUserID  string               `json:"anon_user_id" db:"anon_user_id"`
	SessionID   string               `json:"session_id" db:"session_id"`
	EventType   domain.UserEventType `json:"event_type" db:"event_type"`
	PlayerID    *string              `json:"player_id,omitempty" db:"player_id"`
	ClubID      *string              `json:"club_id,omitempty" db:"club_id"`
	OccurredAt  time.Time            `json:"occurred_at" db:"occurred_at"`
	DeviceType  *string              `json:"device_type,omitempty" db:"device_type"`
	CountryCode *string              `json:"country_code,omitempty" db:"country_code"`
	Props       json.RawMessage      `json:"props,omitempty" db:"props_json"`
	CreatedAt   time.Time            `json:"created_at" db:"created_at"`
}

// FeatureSnapshot caches a built feature vector, idempotent on
// (player, candidate_club, as_of).
type FeatureSnapshot struct {
	ID              string              `json:"id" db:"id"`
	PlayerID        string              `json:"player_id" db:"player_id"`
	CandidateClubID string              `json:"candidate_club_id" db:"candidate_club_id"`
	AsOf            time.Time           `json:"as_of" db:"as_of"`
	Features        map[string]*float64 `json:"features" db:"features_json"`
	FeatureVersion  string              `json:"feature_version" db:"feature_version"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
}

// ModelVersion is the registry row for one trained artifact.
type ModelVersion struct {
	ID                 string             `json:"id" db:"id"`
	ModelName          string             `json:"model_name" db:"model_name"`
	ModelVersion       string             `json:"model_version" db:"model_version"`
	HorizonDays        int                `json:"horizon_days" db:"horizon_days"`
	TrainingAsOf       time.Time          `json:"training_as_of" db:"training_as_of"`
	TrainingSamples    int                `json:"training_samples" db:"training_samples"`
	PositiveSamples    int                `json:"positive_samples" db:"positive_samples"`
	FeatureList        []string           `json:"feature_list" db:"feature_list"`
	Metrics            map[string]float64 `json:"metrics" db:"metrics"`
	FeatureImportances map[string]float64 `json:"feature_importances" db:"feature_importances"`
	ArtifactPath       string             `json:"artifact_path" db:"artifact_path"`
	Status             domain.ModelStatus `json:"status" db:"status"`
	Message            *string            `json:"message,omitempty" db:"message"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
}

// CalibrationBin is one equal-width bin of predicted vs actual rates.
type CalibrationBin struct {
	RangeLow      float64 `json:"range_low"`
	RangeHigh     float64 `json:"range_high"`
	PredictedMean float64 `json:"predicted_mean"`
	ActualMean    float64 `json:"actual_mean"`
	Count         int     `json:"count"`
}

// ThresholdRow is one row of the threshold sweep.
type ThresholdRow struct {
	Threshold float64 `json:"threshold"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// SeasonResult is one season's backtest slice.
type SeasonResult struct {
	Season     string   `json:"season"`
	NSamples   int      `json:"n_samples"`
	NPositives int      `json:"n_positives"`
	AUCROC     *float64 `json:"auc_roc,omitempty"`
	LogLoss    *float64 `json:"log_loss,omitempty"`
	Brier      *float64 `json:"brier,omitempty"`
}

// ModelEvaluation persists one evaluator run against a model version.
type ModelEvaluation struct {
	ID                   string           `json:"id" db:"id"`
	ModelVersionID       string           `json:"model_version_id" db:"model_version_id"`
	EvalType             string           `json:"eval_type" db:"eval_type"`
	EvalName             string           `json:"eval_name" db:"eval_name"`
	WindowStart          time.Time        `json:"window_start" db:"window_start"`
	WindowEnd            time.Time        `json:"window_end" db:"window_end"`
	NSamples             int              `json:"n_samples" db:"n_samples"`
	NPositives           int              `json:"n_positives" db:"n_positives"`
	AUCROC               *float64         `json:"auc_roc,omitempty" db:"auc_roc"`
	AUCPR                *float64         `json:"auc_pr,omitempty" db:"auc_pr"`
	LogLoss              *float64         `json:"log_loss,omitempty" db:"log_loss"`
	Brier                *float64         `json:"brier,omitempty" db:"brier"`
	Accuracy             *float64         `json:"accuracy,omitempty" db:"accuracy"`
	Precision            *float64         `json:"precision,omitempty" db:"precision"`
	Recall               *float64         `json:"recall,omitempty" db:"recall"`
	F1                   *float64         `json:"f1,omitempty" db:"f1"`
	CalibrationSlope     *float64         `json:"calibration_slope,omitempty" db:"calibration_slope"`
	CalibrationIntercept *float64         `json:"calibration_intercept,omitempty" db:"calibration_intercept"`
	CalibrationBins      []CalibrationBin `json:"calibration_bins" db:"calibration_bins"`
	ConfusionMatrix      map[string]int   `json:"confusion_matrix" db:"confusion_matrix"`
	ThresholdTable       []ThresholdRow   `json:"threshold_table" db:"threshold_table"`
	SeasonBacktest       []SeasonResult   `json:"season_backtest" db:"season_backtest"`
	DurationSeconds      float64          `json:"duration_seconds" db:"duration_seconds"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
}

// WatchlistEntry links an anonymous user to a followed player.
type WatchlistEntry struct {
	ID         string    `json:"id" db:"id"`
	AnonUserID string    `json:"anon_user_id" db:"anon_user_id"`
	PlayerID   string    `json:"player_id" db:"player_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// MarketViewRow is one row of the player_market_view projection: latest
// prediction per (player, to_club, horizon) joined with latest market value
// and contract months. Read-only, never a source of truth.
type MarketViewRow struct {
	PlayerID                string             `json:"player_id" db:"player_id"`
	PlayerName              string             `json:"player_name" db:"player_name"`
	Position                *string            `json:"position,omitempty" db:"position"`
	FromClubID              *string            `json:"from_club_id,omitempty" db:"from_club_id"`
	FromClubName            *string            `json:"from_club_name,omitempty" db:"from_club_name"`
	ToClubID                *string            `json:"to_club_id,omitempty" db:"to_club_id"`
	ToClubName              *string            `json:"to_club_name,omitempty" db:"to_club_name"`
	CompetitionID           *string            `json:"competition_id,omitempty" db:"competition_id"`
	HorizonDays             int                `json:"horizon_days" db:"horizon_days"`
	Probability             float64            `json:"probability" db:"probability"`
	Drivers                 map[string]float64 `json:"drivers" db:"drivers_json"`
	ModelVersion            string             `json:"model_version" db:"model_version"`
	AsOf                    time.Time          `json:"as_of" db:"as_of"`
	MarketValue             *float64           `json:"market_value,omitempty" db:"market_value"`
	ContractMonthsRemaining *float64           `json:"contract_months_remaining,omitempty" db:"contract_months_remaining"`
}

// SquadSlot summarizes one position group in a club's squad, feeding the
// constraint-fit candidate source.
type SquadSlot struct {
	Position string  `json:"position" db:"position"`
	Count    int     `json:"count" db:"count"`
	AvgAge   float64 `json:"avg_age" db:"avg_age"`
}

// SearchHit is one fuzzy search result over players and clubs.
type SearchHit struct {
	Kind     string  `json:"kind" db:"kind"`
	ID       string  `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	Detail   *string `json:"detail,omitempty" db:"detail"`
	Rank     float64 `json:"rank" db:"rank"`
}
