package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/whatchanged"
)

const (
	marketCacheTTL = 30 * time.Second
	playerCacheTTL = 60 * time.Second
	maxPageSize    = 500
)

func (s *Server) pageSize(r *http.Request, key string) int {
	limit := s.cfg.DefaultPageSize
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit
}

// parseTimeParam accepts RFC3339 or a bare date; zero return means absent.
func parseTimeParam(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD", key)
	}
	return t, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		badRequest(w, "q is required")
		return
	}
	hits, err := s.repos.Reference.Search(r.Context(), query, s.pageSize(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": hits})
}

// playerDetail is the aggregate player page payload.
type playerDetail struct {
	Player        persistence.Player              `json:"player"`
	Club          *persistence.Club               `json:"club,omitempty"`
	LatestSignals []persistence.SignalEvent       `json:"latest_signals"`
	Predictions   []persistence.PredictionSnapshot `json:"predictions"`
	WhatChanged   []whatchanged.Delta             `json:"what_changed"`
	Transfers     []persistence.TransferEvent     `json:"transfers"`
}

func (s *Server) handlePlayerDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var detail playerDetail
	err := s.cache.GetJSON(r.Context(), "player:detail:"+id, playerCacheTTL, &detail, func(ctx context.Context) (any, error) {
		return s.loadPlayerDetail(ctx, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) loadPlayerDetail(ctx context.Context, id string) (*playerDetail, error) {
	player, err := s.repos.Reference.GetPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &playerDetail{Player: *player}

	if player.CurrentClubID != nil {
		if club, err := s.repos.Reference.GetClub(ctx, *player.CurrentClubID); err == nil {
			detail.Club = club
		}
	}
	if detail.LatestSignals, err = s.repos.Signals.LatestPerType(ctx, id); err != nil {
		return nil, err
	}
	if detail.Predictions, err = s.repos.Predictions.LatestForPlayer(ctx, id, 10); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	window := persistence.TimeRange{From: now.AddDate(0, 0, -7), To: now}
	if detail.WhatChanged, err = s.detector.Detect(ctx, id, window); err != nil {
		return nil, err
	}
	if detail.Transfers, err = s.repos.Transfers.ListByPlayer(ctx, id, false); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Server) handlePlayerSignals(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	asOf, err := parseTimeParam(r, "as_of")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	var signalType *domain.SignalType
	if raw := r.URL.Query().Get("signal_type"); raw != "" {
		st := domain.SignalType(raw)
		if !domain.ValidSignalType(st) {
			badRequest(w, "unknown signal_type "+raw)
			return
		}
		signalType = &st
	}

	rows, err := s.repos.Signals.ListForPlayer(r.Context(), id, signalType, asOf, s.pageSize(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player_id": id, "as_of": asOf, "signals": rows})
}

func (s *Server) handlePlayerPredictions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	asOf, err := parseTimeParam(r, "as_of")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	var horizon *int
	if raw := r.URL.Query().Get("horizon_days"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil || h <= 0 {
			badRequest(w, "horizon_days must be a positive integer")
			return
		}
		horizon = &h
	}

	rows, err := s.repos.Predictions.ListForPlayer(r.Context(), id, asOf, horizon, s.pageSize(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player_id": id, "as_of": asOf, "predictions": rows})
}

func (s *Server) handlePlayerTransfers(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rows, err := s.repos.Transfers.ListByPlayer(r.Context(), id, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player_id": id, "transfers": rows})
}

// clubDetail is the aggregate club page payload.
type clubDetail struct {
	Club        persistence.Club            `json:"club"`
	Competition *persistence.Competition    `json:"competition,omitempty"`
	Squad       []persistence.Player        `json:"squad"`
	Outgoing    []persistence.MarketViewRow `json:"outgoing"`
	Incoming    []persistence.MarketViewRow `json:"incoming"`
	TransfersIn []persistence.TransferEvent `json:"transfers_in"`
	TransfersOut []persistence.TransferEvent `json:"transfers_out"`
}

func (s *Server) handleClubDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var detail clubDetail
	err := s.cache.GetJSON(r.Context(), "club:detail:"+id, playerCacheTTL, &detail, func(ctx context.Context) (any, error) {
		return s.loadClubDetail(ctx, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) loadClubDetail(ctx context.Context, id string) (*clubDetail, error) {
	club, err := s.repos.Reference.GetClub(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &clubDetail{Club: *club}

	if club.CompetitionID != nil {
		if comp, err := s.repos.Reference.GetCompetition(ctx, *club.CompetitionID); err == nil {
			detail.Competition = comp
		}
	}
	if detail.Squad, err = s.repos.Reference.SquadPlayers(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.repos.Predictions.MarketLatest(ctx, persistence.MarketFilter{ClubID: &id, Limit: 100})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		switch {
		case row.FromClubID != nil && *row.FromClubID == id:
			detail.Outgoing = append(detail.Outgoing, row)
		case row.ToClubID != nil && *row.ToClubID == id:
			detail.Incoming = append(detail.Incoming, row)
		}
	}

	since := time.Now().UTC().AddDate(0, 0, -365)
	if detail.TransfersIn, detail.TransfersOut, err = s.repos.Transfers.ListByClub(ctx, id, since); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Server) handleMarketLatest(w http.ResponseWriter, r *http.Request) {
	filter := persistence.MarketFilter{Limit: s.pageSize(r, "limit")}
	q := r.URL.Query()
	if v := q.Get("competition_id"); v != "" {
		filter.CompetitionID = &v
	}
	if v := q.Get("club_id"); v != "" {
		filter.ClubID = &v
	}
	if v := q.Get("horizon_days"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			badRequest(w, "horizon_days must be a positive integer")
			return
		}
		filter.HorizonDays = &h
	}
	if v := q.Get("min_probability"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 || p > 1 {
			badRequest(w, "min_probability must be in [0,1]")
			return
		}
		filter.MinProbability = p
	}

	key := "market:latest:" + r.URL.RawQuery
	var rows []persistence.MarketViewRow
	err := s.cache.GetJSON(r.Context(), key, marketCacheTTL, &rows, func(ctx context.Context) (any, error) {
		return s.repos.Predictions.MarketLatest(ctx, filter)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "rows": rows})
}

func (s *Server) handleMarketMovers(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			badRequest(w, "hours must be a positive integer")
			return
		}
		hours = h
	}
	rows, err := s.repos.Predictions.Movers(r.Context(), hours, s.pageSize(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hours": hours, "rows": rows})
}
