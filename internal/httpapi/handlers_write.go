package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

var validUserEvents = map[domain.UserEventType]bool{
	domain.EventPlayerView:   true,
	domain.EventClubView:     true,
	domain.EventWatchlistAdd: true,
	domain.EventShare:        true,
	domain.EventSearch:       true,
}

func (s *Server) handleUserEvent(w http.ResponseWriter, r *http.Request) {
	var event persistence.UserEvent
	if !decodeJSON(w, r, &event) {
		return
	}
	if event.AnonUserID == "" || event.SessionID == "" {
		badRequest(w, "anon_user_id and session_id are required")
		return
	}
	if !validUserEvents[event.EventType] {
		badRequest(w, "unknown event_type "+string(event.EventType))
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	saved, err := s.repos.UserEvents.Insert(r.Context(), event)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

type watchlistRequest struct {
	AnonUserID string `json:"anon_user_id"`
	PlayerID   string `json:"player_id"`
	SessionID  string `json:"session_id,omitempty"`
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AnonUserID == "" || req.PlayerID == "" {
		badRequest(w, "anon_user_id and player_id are required")
		return
	}

	entry, err := s.repos.Watchlist.Add(r.Context(), req.AnonUserID, req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}

	// The add doubles as an attention event feeding signal derivation.
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.AnonUserID
	}
	if _, err := s.repos.UserEvents.Insert(r.Context(), persistence.UserEvent{
		AnonUserID: req.AnonUserID,
		SessionID:  sessionID,
		EventType:  domain.EventWatchlistAdd,
		PlayerID:   &req.PlayerID,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		log.Warn().Err(err).Str("player_id", req.PlayerID).Msg("Failed to record watchlist_add event")
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AnonUserID == "" || req.PlayerID == "" {
		badRequest(w, "anon_user_id and player_id are required")
		return
	}
	if err := s.repos.Watchlist.Remove(r.Context(), req.AnonUserID, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleWatchlistList(w http.ResponseWriter, r *http.Request) {
	anonUserID := r.URL.Query().Get("anon_user_id")
	if anonUserID == "" {
		badRequest(w, "anon_user_id is required")
		return
	}
	entries, err := s.repos.Watchlist.ListForUser(r.Context(), anonUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"anon_user_id": anonUserID, "entries": entries})
}

// adminTransferRequest carries one ledger write. SupersedesEventID switches
// the write from a plain append to a supersede correction.
type adminTransferRequest struct {
	persistence.TransferEvent
	SupersedesEventID *string `json:"supersedes_event_id,omitempty"`
}

func (s *Server) handleAdminTransferEvent(w http.ResponseWriter, r *http.Request) {
	var req adminTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PlayerID == "" || req.ToClubID == "" || req.TransferType == "" || req.TransferDate.IsZero() {
		badRequest(w, "player_id, to_club_id, transfer_type and transfer_date are required")
		return
	}

	var saved persistence.TransferEvent
	var err error
	if req.SupersedesEventID != nil {
		old, getErr := s.repos.Transfers.GetByEventID(r.Context(), *req.SupersedesEventID)
		if getErr != nil {
			writeError(w, getErr)
			return
		}
		saved, err = s.repos.Transfers.Supersede(r.Context(), old.ID, req.TransferEvent)
	} else {
		saved, err = s.repos.Transfers.Insert(r.Context(), req.TransferEvent)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	// Ledger writes refresh the denormalized player hints. Display only;
	// feature reads never touch them.
	if err := s.repos.Reference.SetPlayerHints(r.Context(), saved.PlayerID, &saved.ToClubID, saved.ContractEnd); err != nil {
		log.Warn().Err(err).Str("player_id", saved.PlayerID).Msg("Failed to update player hints")
	}
	s.cache.Invalidate(r.Context(), "player:detail:"+saved.PlayerID, "club:detail:*")

	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleAdminSignalEvent(w http.ResponseWriter, r *http.Request) {
	var event persistence.SignalEvent
	if !decodeJSON(w, r, &event) {
		return
	}
	now := time.Now().UTC()
	if event.ObservedAt.IsZero() {
		event.ObservedAt = now
	}
	if event.EffectiveFrom.IsZero() {
		event.EffectiveFrom = event.ObservedAt
	}
	if event.Source == "" {
		event.Source = "admin"
	}
	if err := event.Validate(); err != nil {
		writeError(w, err)
		return
	}

	saved, err := s.repos.Signals.Insert(r.Context(), event)
	if err != nil {
		writeError(w, err)
		return
	}
	if saved.PlayerID != nil {
		s.cache.Invalidate(r.Context(), "player:detail:"+*saved.PlayerID)
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleAdminRebuildMaterialized(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	if err := s.repos.Predictions.RefreshMarketView(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.cache.Invalidate(r.Context(), "market:*")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "refreshed",
		"duration_seconds": time.Since(started).Seconds(),
	})
}

func (s *Server) handleAdminRefreshCache(w http.ResponseWriter, r *http.Request) {
	s.cache.Invalidate(r.Context(), "player:detail:*", "club:detail:*", "market:*")
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}
