package persistence

import (
	"context"
	"time"

	"github.com/transferlens/transferlens/internal/domain"
)

// TimeRange bounds a query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// LatestQuery selects the single row answering "what was known and true at
// AsOf" for one entity and signal type. The canonical predicate is
// observed_at <= AsOf AND effective_from <= AsOf AND
// (effective_to IS NULL OR effective_to > AsOf), ordered by effective_from
// DESC then observed_at DESC.
type LatestQuery struct {
	EntityType domain.EntityType
	PlayerID   *string
	ClubID     *string
	SignalType domain.SignalType
	AsOf       time.Time
}

// SignalsRepo persists and reads the bitemporal signal stream. Append-only:
// there is no update path.
type SignalsRepo interface {
	Insert(ctx context.Context, event SignalEvent) (SignalEvent, error)
	InsertBatch(ctx context.Context, events []SignalEvent) (int, error)

	// LatestAsOf is the single time-travel read; every feature-facing
	// lookup funnels through it.
	LatestAsOf(ctx context.Context, q LatestQuery) (*SignalEvent, error)

	// LatestManyAsOf answers LatestAsOf for several signal types of the
	// same entity in one query. q.SignalType is ignored; absent types are
	// missing from the result map.
	LatestManyAsOf(ctx context.Context, q LatestQuery, types []domain.SignalType) (map[domain.SignalType]*SignalEvent, error)

	// ListForPlayer returns the player's signal history filtered by an
	// optional type, as-of bounded, newest effective_from first.
	ListForPlayer(ctx context.Context, playerID string, signalType *domain.SignalType, asOf time.Time, limit int) ([]SignalEvent, error)

	// LatestPairsAsOf returns, per club, the latest pair signal of the
	// given type for the player at asOf, keeping rows with
	// value_num >= minValue, ordered by value descending. Same bitemporal
	// predicate as LatestAsOf.
	LatestPairsAsOf(ctx context.Context, playerID string, signalType domain.SignalType, asOf time.Time, minValue float64, limit int) ([]SignalEvent, error)

	// LatestPerType returns the newest row per signal type for a player
	// with no as-of cap, for the detail reader.
	LatestPerType(ctx context.Context, playerID string) ([]SignalEvent, error)

	// ListInWindow returns all of a player's signals with effective_from
	// inside the window, ascending, for the what-changed detector.
	ListInWindow(ctx context.Context, playerID string, window TimeRange) ([]SignalEvent, error)
}

// TransfersRepo is the append-only ledger. Supersede is the only correction
// path; plain updates are forbidden.
type TransfersRepo interface {
	Insert(ctx context.Context, event TransferEvent) (TransferEvent, error)

	// Supersede appends the correction and marks the old row superseded
	// with a forward pointer, in one transaction.
	Supersede(ctx context.Context, oldID string, correction TransferEvent) (TransferEvent, error)

	GetByEventID(ctx context.Context, eventID string) (*TransferEvent, error)
	ListByPlayer(ctx context.Context, playerID string, includeSuperseded bool) ([]TransferEvent, error)
	ListByClub(ctx context.Context, clubID string, since time.Time) (in []TransferEvent, out []TransferEvent, err error)

	// ListPositives returns non-superseded transfers of the label-eligible
	// types inside the window, for training-set assembly.
	ListPositives(ctx context.Context, window TimeRange, types []domain.TransferType) ([]TransferEvent, error)

	// Chain follows superseded_by pointers from the given row to the
	// terminal row.
	Chain(ctx context.Context, id string) ([]TransferEvent, error)
}

// CandidatesRepo stores candidate sets, upserting on the natural key
// (player, as_of, horizon).
type CandidatesRepo interface {
	Upsert(ctx context.Context, set CandidateSet) (CandidateSet, error)
	Get(ctx context.Context, playerID string, asOf time.Time, horizonDays int) (*CandidateSet, error)
	LatestForPlayer(ctx context.Context, playerID string) (*CandidateSet, error)
	ListRecent(ctx context.Context, asOf time.Time, limit int) ([]CandidateSet, error)
}

// FeaturesRepo caches built feature vectors, upserting on
// (player, candidate_club, as_of).
type FeaturesRepo interface {
	Upsert(ctx context.Context, snap FeatureSnapshot) (FeatureSnapshot, error)
	Get(ctx context.Context, playerID, candidateClubID string, asOf time.Time) (*FeatureSnapshot, error)
}

// MarketFilter narrows market view reads.
type MarketFilter struct {
	CompetitionID  *string
	ClubID         *string
	HorizonDays    *int
	MinProbability float64
	Limit          int
}

// PredictionsRepo stores append-only prediction snapshots and serves the
// market projection.
type PredictionsRepo interface {
	Upsert(ctx context.Context, snap PredictionSnapshot) (PredictionSnapshot, error)

	// LatestForPlayer returns the newest snapshot per distinct destination.
	LatestForPlayer(ctx context.Context, playerID string, limit int) ([]PredictionSnapshot, error)
	ListForPlayer(ctx context.Context, playerID string, asOf time.Time, horizonDays *int, limit int) ([]PredictionSnapshot, error)

	MarketLatest(ctx context.Context, f MarketFilter) ([]MarketViewRow, error)
	Movers(ctx context.Context, hours int, limit int) ([]MarketViewRow, error)

	// RefreshMarketView refreshes the projection, concurrently when the
	// unique-index precondition holds, blocking otherwise.
	RefreshMarketView(ctx context.Context) error
}

// ModelsRepo is the ML bookkeeping registry.
type ModelsRepo interface {
	InsertVersion(ctx context.Context, v ModelVersion) (ModelVersion, error)
	UpdateStatus(ctx context.Context, id string, status domain.ModelStatus, message *string) error
	GetVersion(ctx context.Context, modelName, modelVersion string) (*ModelVersion, error)

	// Latest returns the newest version of the model with one of the
	// given statuses, or nil.
	Latest(ctx context.Context, modelName string, statuses []domain.ModelStatus) (*ModelVersion, error)
	List(ctx context.Context, limit int) ([]ModelVersion, error)

	InsertEvaluation(ctx context.Context, e ModelEvaluation) (ModelEvaluation, error)
	ListEvaluations(ctx context.Context, modelVersionID string) ([]ModelEvaluation, error)
}

// AttentionCount carries per-player view counts split at the window midpoint.
type AttentionCount struct {
	PlayerID    string `db:"player_id"`
	RecentViews int    `db:"recent_views"`
	OlderViews  int    `db:"older_views"`
	TotalViews  int    `db:"total_views"`
}

// CooccurrenceCount counts sessions that viewed both a player and a club.
type CooccurrenceCount struct {
	PlayerID     string `db:"player_id"`
	ClubID       string `db:"club_id"`
	SessionCount int    `db:"session_count"`
}

// WatchlistAddCount counts watchlist additions per player in a window.
type WatchlistAddCount struct {
	PlayerID string `db:"player_id"`
	Count    int    `db:"add_count"`
}

// UserEventsRepo stores pseudonymous interactions and runs the aggregate
// queries behind signal derivation. All aggregates are bounded by
// occurred_at <= the window end, keeping derivation time-travel safe.
type UserEventsRepo interface {
	Insert(ctx context.Context, event UserEvent) (UserEvent, error)
	AttentionCounts(ctx context.Context, window TimeRange, midpoint time.Time) ([]AttentionCount, error)
	CooccurrenceCounts(ctx context.Context, window TimeRange) ([]CooccurrenceCount, error)
	WatchlistAddCounts(ctx context.Context, window TimeRange) ([]WatchlistAddCount, error)
}

// ReferenceRepo serves the reference entities and the squad/search reads
// built on them.
type ReferenceRepo interface {
	GetPlayer(ctx context.Context, id string) (*Player, error)
	GetClub(ctx context.Context, id string) (*Club, error)
	GetCompetition(ctx context.Context, id string) (*Competition, error)

	UpsertCompetition(ctx context.Context, c Competition) (Competition, error)
	UpsertClub(ctx context.Context, c Club) (Club, error)
	UpsertPlayer(ctx context.Context, p Player) (Player, error)

	// ListActivePlayers returns players with a current club, the scoring
	// and feature-build population.
	ListActivePlayers(ctx context.Context) ([]Player, error)
	ListClubs(ctx context.Context) ([]Club, error)
	ListCompetitions(ctx context.Context) ([]Competition, error)
	ListClubsInCompetition(ctx context.Context, competitionID string) ([]Club, error)
	ListClubsByMaxTier(ctx context.Context, maxTier int) ([]Club, error)
	ClubTier(ctx context.Context, clubID string) (int, error)
	SquadProfile(ctx context.Context, clubID string) ([]SquadSlot, error)
	SquadPlayers(ctx context.Context, clubID string) ([]Player, error)

	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)

	// SetPlayerHints updates the denormalized current_club_id and
	// contract_until columns. Admin/ledger paths only; features never
	// read these.
	SetPlayerHints(ctx context.Context, playerID string, currentClubID *string, contractUntil *time.Time) error
}

// WatchlistRepo stores per-user followed players.
type WatchlistRepo interface {
	Add(ctx context.Context, anonUserID, playerID string) (WatchlistEntry, error)
	Remove(ctx context.Context, anonUserID, playerID string) error
	ListForUser(ctx context.Context, anonUserID string) ([]WatchlistEntry, error)
}

// Repositories aggregates every repository the application wires.
type Repositories struct {
	Signals     SignalsRepo
	Transfers   TransfersRepo
	Candidates  CandidatesRepo
	Features    FeaturesRepo
	Predictions PredictionsRepo
	Models      ModelsRepo
	UserEvents  UserEventsRepo
	Reference   ReferenceRepo
	Watchlist   WatchlistRepo
}

// Health reports store connectivity for readiness probes.
type Health interface {
	Ping(ctx context.Context) error
}
