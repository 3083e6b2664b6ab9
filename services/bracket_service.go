package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rallyrank/rallyrank-api/brackets"
	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

// BracketService generates single-elimination rounds and consumes match
// completions to advance or finalize the bracket. Advancement is
// idempotent: the next-round match is created only if it does not already
// exist, backed by the unique (tournament, round, slot) index.
type BracketService struct {
	matchSvc     *MatchService
	matches      repositories.MatchRepository
	participants repositories.ParticipantRepository
	tournaments  repositories.TournamentRepository
	results      repositories.ResultRepository
	notifier     *Notifier
	points       brackets.PointsConfig
	logger       *slog.Logger
	now          func() time.Time
}

func NewBracketService(
	matchSvc *MatchService,
	matches repositories.MatchRepository,
	participants repositories.ParticipantRepository,
	tournaments repositories.TournamentRepository,
	results repositories.ResultRepository,
	notifier *Notifier,
	points brackets.PointsConfig,
	logger *slog.Logger,
) *BracketService {
	return &BracketService{
		matchSvc:     matchSvc,
		matches:      matches,
		participants: participants,
		tournaments:  tournaments,
		results:      results,
		notifier:     notifier,
		points:       points,
		logger:       logger,
		now:          time.Now,
	}
}

// GenerateFirstRound assigns seeds and creates the round-1 matches inside
// the tournament-start transaction. The seeded slice must already be in
// seed order with a power-of-two length.
func (s *BracketService) GenerateFirstRound(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, seeded []*models.TournamentParticipant) error {
	for i, p := range seeded {
		if err := s.participants.SetSeed(ctx, exec, p.ID, i+1); err != nil {
			return err
		}
	}

	round := 1
	for _, pairing := range brackets.Round1Pairings(seeded) {
		slot := pairing.Slot
		_, err := s.matchSvc.createMatchTx(ctx, exec, createMatchParams{
			CourtID:      tournament.CourtID,
			MatchType:    tournament.MatchType,
			Team1:        []int{pairing.User1},
			Team2:        []int{pairing.User2},
			TournamentID: &tournament.ID,
			BracketRound: &round,
			BracketSlot:  &slot,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AdvanceAfterCompletion implements BracketAdvancer. Runs inside the match
// completion transaction.
func (s *BracketService) AdvanceAfterCompletion(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	if match.TournamentID == nil || match.BracketRound == nil || match.BracketSlot == nil {
		return nil
	}
	tournament, err := s.tournaments.GetByID(ctx, exec, *match.TournamentID)
	if err != nil {
		return err
	}

	winnerID := match.WinnerUser()
	loserID := match.LoserUser()
	if winnerID == nil || loserID == nil {
		return fmt.Errorf("completed bracket match %d has no winner", match.ID)
	}
	if err := s.participants.RecordMatchOutcome(ctx, exec, tournament.ID, *winnerID, true); err != nil {
		return err
	}
	if err := s.participants.RecordMatchOutcome(ctx, exec, tournament.ID, *loserID, false); err != nil {
		return err
	}

	round, slot := *match.BracketRound, *match.BracketSlot
	if tournament.TotalRounds != nil && round == *tournament.TotalRounds {
		return s.finalize(ctx, exec, tournament)
	}

	sibling, err := s.matches.FindByBracketSlot(ctx, exec, tournament.ID, round, brackets.SiblingSlot(slot))
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil
		}
		return err
	}
	if sibling.Status != models.MatchStatusCompleted {
		// Wait for the pair to finish; the sibling's completion will advance.
		return nil
	}

	nextSlot := brackets.NextRoundSlot(slot)
	_, err = s.matches.FindByBracketSlot(ctx, exec, tournament.ID, round+1, nextSlot)
	if err == nil {
		// Next match already exists; a concurrent completion won the race.
		return nil
	}
	if !errors.Is(err, repositories.ErrMatchNotFound) {
		return err
	}

	siblingWinner := sibling.WinnerUser()
	if siblingWinner == nil {
		return fmt.Errorf("completed bracket match %d has no winner", sibling.ID)
	}
	// Lower slot's winner takes team 1 so pairings stay deterministic.
	team1, team2 := *winnerID, *siblingWinner
	if sibling.BracketSlot != nil && *sibling.BracketSlot < slot {
		team1, team2 = team2, team1
	}

	nextRound := round + 1
	_, err = s.matchSvc.createMatchTx(ctx, exec, createMatchParams{
		CourtID:      tournament.CourtID,
		MatchType:    tournament.MatchType,
		Team1:        []int{team1},
		Team2:        []int{team2},
		TournamentID: &tournament.ID,
		BracketRound: &nextRound,
		BracketSlot:  &nextSlot,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrBracketSlotConflict) {
			// Lost the creation race after the existence check; fine.
			return nil
		}
		return err
	}

	for _, userID := range []int{team1, team2} {
		content := fmt.Sprintf("Your round %d match is ready.", nextRound)
		if err := s.notifier.Notify(ctx, exec, userID, models.NotifTournamentMatchReady, content, &tournament.ID); err != nil {
			return err
		}
	}
	return nil
}

// finalize computes placements and points, writes the immutable result
// rows, and completes the tournament. Triggered by the final's completion.
func (s *BracketService) finalize(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) error {
	if tournament.Status == models.TournamentStatusCompleted {
		return nil
	}
	if tournament.TotalRounds == nil {
		return fmt.Errorf("tournament %d has no bracket to finalize", tournament.ID)
	}
	totalRounds := *tournament.TotalRounds

	final, err := s.matches.FindByBracketSlot(ctx, exec, tournament.ID, totalRounds, 1)
	if err != nil {
		return err
	}
	if final.Status != models.MatchStatusCompleted {
		return ErrNotPendingConfirmation
	}
	winnerID := final.WinnerUser()
	runnerUpID := final.LoserUser()
	if winnerID == nil || runnerUpID == nil {
		return fmt.Errorf("final match %d has no winner", final.ID)
	}

	allMatches, err := s.matches.ListByTournament(ctx, exec, tournament.ID)
	if err != nil {
		return err
	}
	maxRound := make(map[int]int)
	for _, m := range allMatches {
		if m.BracketRound == nil {
			continue
		}
		for _, p := range m.Players {
			if *m.BracketRound > maxRound[p.UserID] {
				maxRound[p.UserID] = *m.BracketRound
			}
		}
	}

	participants, err := s.participants.ListByTournament(ctx, exec, tournament.ID)
	if err != nil {
		return err
	}
	byUser := make(map[int]*models.TournamentParticipant, len(participants))
	var eligible []*models.TournamentParticipant
	for _, p := range participants {
		byUser[p.UserID] = p
		if p.Status.Excluded() || p.Status == models.ParticipantInvited {
			continue
		}
		eligible = append(eligible, p)
	}

	placements := map[int]int{*winnerID: 1, *runnerUpID: 2}
	if totalRounds > 1 {
		// Both semifinal losers tie for third.
		for _, m := range allMatches {
			if m.BracketRound == nil || *m.BracketRound != totalRounds-1 {
				continue
			}
			if loser := m.LoserUser(); loser != nil {
				placements[*loser] = 3
			}
		}
	}

	var unplaced []brackets.Standing
	for _, p := range eligible {
		if _, done := placements[p.UserID]; done {
			continue
		}
		unplaced = append(unplaced, brackets.Standing{
			UserID:   p.UserID,
			Wins:     p.Wins,
			Losses:   p.Losses,
			MaxRound: maxRound[p.UserID],
		})
	}
	nextPlacement := 4
	for _, standing := range brackets.RankStandings(unplaced) {
		placements[standing.UserID] = nextPlacement
		nextPlacement++
	}

	completedAt := s.now()
	for _, p := range eligible {
		placement := placements[p.UserID]
		points := s.points.PlacementPoints(placement, p.Wins)
		status := models.ParticipantEliminated
		if placement == 1 {
			status = models.ParticipantWinner
		}
		if err := s.participants.ApplyFinal(ctx, exec, p.ID, placement, points, status); err != nil {
			return err
		}
		result := &models.TournamentResult{
			TournamentID: tournament.ID,
			UserID:       p.UserID,
			CourtID:      tournament.CourtID,
			Placement:    placement,
			Wins:         p.Wins,
			Losses:       p.Losses,
			Points:       points,
		}
		if err := s.results.Create(ctx, exec, result); err != nil {
			// A concurrent finalize already wrote this row; the rest of
			// the loop still has to cover the remaining participants.
			if errors.Is(err, repositories.ErrResultConflict) {
				continue
			}
			return err
		}
		content := fmt.Sprintf("%s finished: you placed %d and earned %d points.", tournament.Name, placement, points)
		if err := s.notifier.Notify(ctx, exec, p.UserID, models.NotifTournamentResult, content, &tournament.ID); err != nil {
			return err
		}
	}

	return s.tournaments.SetCompleted(ctx, exec, tournament.ID, completedAt)
}

// BuildBracketView groups a tournament's matches by round for the wire.
func (s *BracketService) BuildBracketView(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (*models.BracketState, error) {
	allMatches, err := s.matches.ListByTournament(ctx, exec, tournamentID)
	if err != nil {
		return nil, err
	}
	byRound := make(map[int][]models.Match)
	maxRoundSeen := 0
	for _, m := range allMatches {
		if m.BracketRound == nil {
			continue
		}
		decorateMatch(m)
		byRound[*m.BracketRound] = append(byRound[*m.BracketRound], *m)
		if *m.BracketRound > maxRoundSeen {
			maxRoundSeen = *m.BracketRound
		}
	}

	state := &models.BracketState{TotalMatches: len(allMatches)}
	for round := 1; round <= maxRoundSeen; round++ {
		state.Rounds = append(state.Rounds, models.BracketRound{
			Round:   round,
			Matches: byRound[round],
		})
	}
	return state, nil
}
