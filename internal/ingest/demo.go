// Package ingest seeds the store with a deterministic demo world:
// reference data, a year of weekly signals, a transfer ledger with one
// supersede chain, and two weeks of user events. Running it twice is
// idempotent for reference rows and append-only elsewhere.
package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

const demoSeed = 20240801

// Stats counts what one seeding run wrote.
type Stats struct {
	Competitions int
	Clubs        int
	Players      int
	Signals      int
	Transfers    int
	UserEvents   int
}

// Seeder writes the demo world.
type Seeder struct {
	repos persistence.Repositories
}

// NewSeeder creates the demo seeder.
func NewSeeder(repos persistence.Repositories) *Seeder {
	return &Seeder{repos: repos}
}

type demoCompetition struct {
	id      string
	name    string
	country string
	tier    int
	clubs   []string
}

var demoCompetitions = []demoCompetition{
	{"demo-comp-epl", "Premier League", "England", 1, []string{
		"Arsenal", "Manchester City", "Liverpool", "Chelsea", "Tottenham", "Newcastle", "Aston Villa", "Brighton",
	}},
	{"demo-comp-laliga", "La Liga", "Spain", 1, []string{
		"Real Madrid", "Barcelona", "Atletico Madrid", "Sevilla", "Real Sociedad", "Athletic Club",
	}},
	{"demo-comp-championship", "Championship", "England", 2, []string{
		"Leeds United", "Leicester City", "Southampton", "Norwich City",
	}},
}

var demoFirstNames = []string{"Marco", "Luka", "Kai", "Bruno", "Pedro", "Jude", "Victor", "Rasmus", "Florian", "Mateo", "Declan", "Gabriel"}
var demoLastNames = []string{"Silva", "Fernandez", "Mueller", "Kovac", "Larsen", "Moretti", "Dubois", "Janssen", "Costa", "Novak", "Martins", "Weber"}
var demoPositions = []string{"ST", "LW", "RW", "CAM", "CM", "CDM", "CB", "LB", "RB", "GK"}

// Run seeds everything relative to asOf.
func (s *Seeder) Run(ctx context.Context, asOf time.Time) (Stats, error) {
	rng := rand.New(rand.NewSource(demoSeed))
	var stats Stats

	clubIDs, playerIDs, err := s.seedReference(ctx, rng, asOf, &stats)
	if err != nil {
		return stats, err
	}
	if err := s.seedSignals(ctx, rng, asOf, clubIDs, playerIDs, &stats); err != nil {
		return stats, err
	}
	if err := s.seedLedger(ctx, rng, asOf, clubIDs, playerIDs, &stats); err != nil {
		return stats, err
	}
	if err := s.seedUserEvents(ctx, rng, asOf, clubIDs, playerIDs, &stats); err != nil {
		return stats, err
	}

	log.Info().
		Int("competitions", stats.Competitions).
		Int("clubs", stats.Clubs).
		Int("players", stats.Players).
		Int("signals", stats.Signals).
		Int("transfers", stats.Transfers).
		Int("user_events", stats.UserEvents).
		Msg("Demo world seeded")
	return stats, nil
}

func (s *Seeder) seedReference(ctx context.Context, rng *rand.Rand, asOf time.Time, stats *Stats) ([]string, []string, error) {
	var clubIDs, playerIDs []string
	playerSeq := 0

	for _, comp := range demoCompetitions {
		if _, err := s.repos.Reference.UpsertCompetition(ctx, persistence.Competition{
			ID:      comp.id,
			Name:    comp.name,
			Country: comp.country,
			Tier:    comp.tier,
		}); err != nil {
			return nil, nil, fmt.Errorf("seed competition %s: %w", comp.name, err)
		}
		stats.Competitions++

		for i, clubName := range comp.clubs {
			clubID := fmt.Sprintf("%s-club-%02d", comp.id, i+1)
			compID := comp.id
			if _, err := s.repos.Reference.UpsertClub(ctx, persistence.Club{
				ID:            clubID,
				Name:          clubName,
				Country:       comp.country,
				CompetitionID: &compID,
			}); err != nil {
				return nil, nil, fmt.Errorf("seed club %s: %w", clubName, err)
			}
			clubIDs = append(clubIDs, clubID)
			stats.Clubs++

			for range [6]struct{}{} {
				playerSeq++
				playerID := fmt.Sprintf("demo-player-%03d", playerSeq)
				name := demoFirstNames[rng.Intn(len(demoFirstNames))] + " " + demoLastNames[rng.Intn(len(demoLastNames))]
				position := demoPositions[rng.Intn(len(demoPositions))]
				dob := asOf.AddDate(-19-rng.Intn(14), 0, -rng.Intn(365))
				contractUntil := asOf.AddDate(0, 3+rng.Intn(45), 0)
				cid := clubID
				if _, err := s.repos.Reference.UpsertPlayer(ctx, persistence.Player{
					ID:            playerID,
					Name:          name,
					DOB:           &dob,
					Nationality:   &comp.country,
					Position:      &position,
					CurrentClubID: &cid,
					ContractUntil: &contractUntil,
				}); err != nil {
					return nil, nil, fmt.Errorf("seed player %s: %w", playerID, err)
				}
				playerIDs = append(playerIDs, playerID)
				stats.Players++
			}
		}
	}
	return clubIDs, playerIDs, nil
}

// seedSignals writes a year of weekly observations per entity. Values walk
// randomly but stay deterministic under the fixed seed.
func (s *Seeder) seedSignals(ctx context.Context, rng *rand.Rand, asOf time.Time, clubIDs, playerIDs []string, stats *Stats) error {
	start := asOf.AddDate(-1, 0, 0)

	for _, clubID := range clubIDs {
		position := float64(1 + rng.Intn(20))
		ppg := 0.8 + rng.Float64()*1.5
		netSpend := (rng.Float64() - 0.4) * 200e6
		for week := 0; week < 52; week++ {
			at := start.AddDate(0, 0, week*7)
			position = clampF(position+float64(rng.Intn(3)-1), 1, 20)
			ppg = clampF(ppg+(rng.Float64()-0.5)*0.1, 0.2, 2.8)
			batch := []persistence.SignalEvent{
				clubSignal(clubID, domain.SignalClubLeaguePosition, position, at),
				clubSignal(clubID, domain.SignalClubPointsPerGame, ppg, at),
				clubSignal(clubID, domain.SignalClubNetSpend12M, netSpend, at),
			}
			n, err := s.repos.Signals.InsertBatch(ctx, batch)
			if err != nil {
				return fmt.Errorf("seed club signals: %w", err)
			}
			stats.Signals += n
		}
	}

	for _, playerID := range playerIDs {
		marketValue := 2e6 + rng.Float64()*80e6
		contractMonths := float64(3 + rng.Intn(48))
		goals := float64(rng.Intn(8))
		assists := float64(rng.Intn(6))
		social := rng.Float64() * 6
		for week := 0; week < 52; week++ {
			at := start.AddDate(0, 0, week*7)
			marketValue = clampF(marketValue*(1+(rng.Float64()-0.48)*0.04), 5e5, 2e8)
			contractMonths = clampF(contractMonths-0.25, 0, 60)
			goals = clampF(goals+float64(rng.Intn(3)-1), 0, 10)
			assists = clampF(assists+float64(rng.Intn(3)-1), 0, 10)
			social = clampF(social+(rng.Float64()-0.5)*1.5, 0, 20)
			batch := []persistence.SignalEvent{
				playerSignal(playerID, domain.SignalMarketValue, marketValue, at),
				playerSignal(playerID, domain.SignalContractMonthsRemaining, contractMonths, at),
				playerSignal(playerID, domain.SignalGoalsLast10, goals, at),
				playerSignal(playerID, domain.SignalAssistsLast10, assists, at),
				playerSignal(playerID, domain.SignalMinutesLast5, float64(rng.Intn(451)), at),
				playerSignal(playerID, domain.SignalSocialMentionVelocity, social, at),
			}
			n, err := s.repos.Signals.InsertBatch(ctx, batch)
			if err != nil {
				return fmt.Errorf("seed player signals: %w", err)
			}
			stats.Signals += n
		}

		// A few players pick up an injury spell.
		if rng.Float64() < 0.15 {
			status := []string{"hamstring", "knee", "ankle"}[rng.Intn(3)]
			at := asOf.AddDate(0, 0, -rng.Intn(60))
			event := playerSignal(playerID, domain.SignalInjuryStatus, 0, at)
			event.ValueNum = nil
			event.ValueText = &status
			if _, err := s.repos.Signals.Insert(ctx, event); err != nil {
				return fmt.Errorf("seed injury signal: %w", err)
			}
			stats.Signals++
		}
	}
	return nil
}

// seedLedger appends historical transfers plus one fee correction so the
// supersede chain is demonstrable out of the box.
func (s *Seeder) seedLedger(ctx context.Context, rng *rand.Rand, asOf time.Time, clubIDs, playerIDs []string, stats *Stats) error {
	types := []domain.TransferType{
		domain.TransferPermanent, domain.TransferPermanent, domain.TransferLoan,
		domain.TransferLoanWithOption, domain.TransferFree,
	}

	var firstInserted *persistence.TransferEvent
	for i := 0; i < 25; i++ {
		playerID := playerIDs[rng.Intn(len(playerIDs))]
		fromClub := clubIDs[rng.Intn(len(clubIDs))]
		toClub := clubIDs[rng.Intn(len(clubIDs))]
		if toClub == fromClub {
			continue
		}
		fee := float64(rng.Intn(90)+5) * 1e6
		transferDate := asOf.AddDate(0, 0, -30-rng.Intn(330))
		contractEnd := transferDate.AddDate(4, 0, 0)
		event := persistence.TransferEvent{
			PlayerID:         playerID,
			FromClubID:       &fromClub,
			ToClubID:         toClub,
			TransferType:     types[rng.Intn(len(types))],
			TransferDate:     transferDate,
			FeeAmountEUR:     &fee,
			FeeType:          "fee",
			ContractEnd:      &contractEnd,
			Source:           "demo",
			SourceConfidence: 1.0,
		}
		saved, err := s.repos.Transfers.Insert(ctx, event)
		if err != nil {
			return fmt.Errorf("seed transfer: %w", err)
		}
		stats.Transfers++
		if firstInserted == nil {
			firstInserted = &saved
		}
	}

	if firstInserted != nil {
		correction := *firstInserted
		correctedFee := *firstInserted.FeeAmountEUR * 1.1
		correction.ID = ""
		correction.EventID = firstInserted.EventID + "-v2"
		correction.FeeAmountEUR = &correctedFee
		correction.Source = "demo_correction"
		if _, err := s.repos.Transfers.Supersede(ctx, firstInserted.ID, correction); err != nil {
			return fmt.Errorf("seed supersede: %w", err)
		}
		stats.Transfers++
	}
	return nil
}

func (s *Seeder) seedUserEvents(ctx context.Context, rng *rand.Rand, asOf time.Time, clubIDs, playerIDs []string, stats *Stats) error {
	for day := 14; day >= 1; day-- {
		sessions := 10 + rng.Intn(10)
		for i := 0; i < sessions; i++ {
			anonUser := fmt.Sprintf("demo-user-%03d", rng.Intn(60))
			sessionID := fmt.Sprintf("%s-d%02d-s%02d", anonUser, day, i)
			at := asOf.AddDate(0, 0, -day).Add(time.Duration(rng.Intn(86400)) * time.Second)

			playerID := playerIDs[rng.Intn(len(playerIDs))]
			events := []persistence.UserEvent{{
				AnonUserID: anonUser,
				SessionID:  sessionID,
				EventType:  domain.EventPlayerView,
				PlayerID:   &playerID,
				OccurredAt: at,
			}}
			// Most sessions browse a club too, feeding co-occurrence.
			if rng.Float64() < 0.7 {
				clubID := clubIDs[rng.Intn(len(clubIDs))]
				events = append(events, persistence.UserEvent{
					AnonUserID: anonUser,
					SessionID:  sessionID,
					EventType:  domain.EventClubView,
					ClubID:     &clubID,
					OccurredAt: at.Add(time.Minute),
				})
			}
			if rng.Float64() < 0.1 {
				events = append(events, persistence.UserEvent{
					AnonUserID: anonUser,
					SessionID:  sessionID,
					EventType:  domain.EventWatchlistAdd,
					PlayerID:   &playerID,
					OccurredAt: at.Add(2 * time.Minute),
				})
			}
			for _, event := range events {
				if _, err := s.repos.UserEvents.Insert(ctx, event); err != nil {
					return fmt.Errorf("seed user event: %w", err)
				}
				stats.UserEvents++
			}
		}
	}
	return nil
}

func playerSignal(playerID string, signalType domain.SignalType, value float64, at time.Time) persistence.SignalEvent {
	return persistence.SignalEvent{
		EntityType:    domain.EntityPlayer,
		PlayerID:      &playerID,
		SignalType:    signalType,
		ValueNum:      &value,
		Source:        "demo",
		Confidence:    1.0,
		ObservedAt:    at,
		EffectiveFrom: at,
	}
}

func clubSignal(clubID string, signalType domain.SignalType, value float64, at time.Time) persistence.SignalEvent {
	return persistence.SignalEvent{
		EntityType:    domain.EntityClub,
		ClubID:        &clubID,
		SignalType:    signalType,
		ValueNum:      &value,
		Source:        "demo",
		Confidence:    1.0,
		ObservedAt:    at,
		EffectiveFrom: at,
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
