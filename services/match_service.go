package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

// BracketAdvancer consumes a just-completed tournament match inside the
// completion transaction: records the outcome, creates the next-round
// match when the sibling is done, or finalizes after the final.
type BracketAdvancer interface {
	AdvanceAfterCompletion(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error
}

// MatchService owns the score-submission, confirmation and completion
// protocol. Rating mutations happen only here, inside the completion
// transaction.
type MatchService struct {
	tx          repositories.TxRunner
	matches     repositories.MatchRepository
	users       repositories.UserRepository
	tournaments repositories.TournamentRepository
	notifier    *Notifier
	eloConfig   EloConfig
	advancer    BracketAdvancer
	logger      *slog.Logger
	now         func() time.Time
}

func NewMatchService(
	tx repositories.TxRunner,
	matches repositories.MatchRepository,
	users repositories.UserRepository,
	tournaments repositories.TournamentRepository,
	notifier *Notifier,
	eloConfig EloConfig,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		tx:          tx,
		matches:     matches,
		users:       users,
		tournaments: tournaments,
		notifier:    notifier,
		eloConfig:   eloConfig,
		logger:      logger,
		now:         time.Now,
	}
}

// SetBracketAdvancer breaks the wiring cycle between match completion and
// bracket advancement; called once at startup.
func (s *MatchService) SetBracketAdvancer(advancer BracketAdvancer) {
	s.advancer = advancer
}

// validateRoster enforces team sizes for the match type and rejects
// duplicate players across both teams.
func validateRoster(matchType models.MatchType, team1, team2 []int) error {
	if !matchType.Valid() {
		return ErrInvalidMatchType
	}
	size := matchType.PlayersPerTeam()
	if len(team1) != size || len(team2) != size {
		return ErrInvalidTeamSize
	}
	seen := make(map[int]bool, len(team1)+len(team2))
	for _, id := range append(append([]int{}, team1...), team2...) {
		if seen[id] {
			return ErrDuplicatePlayers
		}
		seen[id] = true
	}
	return nil
}

type createMatchParams struct {
	CourtID      int
	MatchType    models.MatchType
	Team1        []int
	Team2        []int
	TournamentID *int
	BracketRound *int
	BracketSlot  *int
}

// createMatchTx validates the roster, snapshots every player's current
// rating as elo_before, and inserts the match in in_progress. Runs inside
// the caller's transaction; lobby start and bracket generation both come
// through here.
func (s *MatchService) createMatchTx(ctx context.Context, exec repositories.SQLExecutor, params createMatchParams) (*models.Match, error) {
	if err := validateRoster(params.MatchType, params.Team1, params.Team2); err != nil {
		return nil, err
	}
	allIDs := append(append([]int{}, params.Team1...), params.Team2...)
	users, err := s.users.ResolveUsers(ctx, exec, allIDs)
	if err != nil {
		return nil, err
	}
	if len(users) != len(allIDs) {
		return nil, ErrUserNotFound
	}

	match := &models.Match{
		CourtID:      params.CourtID,
		TournamentID: params.TournamentID,
		BracketRound: params.BracketRound,
		BracketSlot:  params.BracketSlot,
		MatchType:    params.MatchType,
		Status:       models.MatchStatusInProgress,
	}
	if err := s.matches.Create(ctx, exec, match); err != nil {
		return nil, err
	}

	addPlayers := func(team int, ids []int) error {
		for _, id := range ids {
			rating := users[id].EloRating
			player := &models.MatchPlayer{
				MatchID:   match.ID,
				UserID:    id,
				Team:      team,
				EloBefore: &rating,
				User:      users[id],
			}
			if err := s.matches.CreatePlayer(ctx, exec, player); err != nil {
				return err
			}
			match.Players = append(match.Players, *player)
		}
		return nil
	}
	if err := addPlayers(1, params.Team1); err != nil {
		return nil, err
	}
	if err := addPlayers(2, params.Team2); err != nil {
		return nil, err
	}
	return match, nil
}

// SubmitScore moves an in_progress match to pending_confirmation with the
// submitter auto-confirmed. A single-participant match completes in the
// same call since no one else is left to confirm.
func (s *MatchService) SubmitScore(ctx context.Context, matchID, submitterID, score1, score2 int) (*models.Match, error) {
	if score1 < 0 || score1 > 99 || score2 < 0 || score2 > 99 {
		return nil, ErrInvalidScore
	}
	if score1 == score2 {
		return nil, ErrTieScore
	}

	var courtID int
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		match, err := s.matches.GetByID(ctx, exec, matchID)
		if err != nil {
			return mapMatchRepoError(err)
		}
		courtID = match.CourtID
		if match.Status != models.MatchStatusInProgress {
			return ErrMatchNotInProgress
		}
		if match.PlayerByUser(submitterID) == nil {
			return ErrNotMatchParticipant
		}

		winnerTeam := 1
		if score2 > score1 {
			winnerTeam = 2
		}
		if err := s.matches.RecordScore(ctx, exec, matchID, score1, score2, winnerTeam, submitterID); err != nil {
			return err
		}
		if err := s.matches.SetPlayerConfirmed(ctx, exec, matchID, submitterID, true); err != nil {
			return err
		}

		if len(match.Players) == 1 {
			match.Status = models.MatchStatusPendingConfirmation
			match.Team1Score, match.Team2Score = &score1, &score2
			match.WinnerTeam = &winnerTeam
			match.Players[0].Confirmed = true
			return s.completeMatch(ctx, exec, match)
		}

		for _, p := range match.Players {
			if p.UserID == submitterID {
				continue
			}
			content := fmt.Sprintf("Score %d-%d was submitted for your match. Confirm or reject it.", score1, score2)
			if err := s.notifier.Notify(ctx, exec, p.UserID, models.NotifMatchConfirm, content, &matchID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRanked(courtID, "score_submitted")
	return s.Get(ctx, matchID)
}

// Confirm records one participant's agreement with the submitted score.
// The final confirmation applies ratings, completes the match and, for
// tournament matches, advances the bracket in the same transaction.
func (s *MatchService) Confirm(ctx context.Context, matchID, userID int) (*models.Match, error) {
	var courtID int
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		match, err := s.matches.GetByID(ctx, exec, matchID)
		if err != nil {
			return mapMatchRepoError(err)
		}
		courtID = match.CourtID
		if match.Status != models.MatchStatusPendingConfirmation {
			return ErrNotPendingConfirmation
		}
		player := match.PlayerByUser(userID)
		if player == nil {
			return ErrNotMatchParticipant
		}
		if err := s.matches.SetPlayerConfirmed(ctx, exec, matchID, userID, true); err != nil {
			return err
		}
		player.Confirmed = true

		if !match.AllConfirmed() {
			return nil
		}
		return s.completeMatch(ctx, exec, match)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRanked(courtID, "match_confirmed")
	return s.Get(ctx, matchID)
}

// completeMatch is the single place ratings move: computes deltas from the
// elo_before snapshots, writes the per-player ledger rows, stamps
// completion, and hands tournament matches to the bracket advancer.
func (s *MatchService) completeMatch(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	affectsElo := true
	if match.TournamentID != nil {
		tournament, err := s.tournaments.GetByID(ctx, exec, *match.TournamentID)
		if err != nil {
			return err
		}
		affectsElo = tournament.AffectsElo
	}

	deltas, err := s.computeDeltas(match, affectsElo)
	if err != nil {
		return err
	}
	won := make(map[int]bool, len(match.Players))
	for _, p := range match.Players {
		won[p.UserID] = match.WinnerTeam != nil && p.Team == *match.WinnerTeam
	}
	for _, d := range deltas {
		if err := s.matches.UpdatePlayerElo(ctx, exec, match.ID, d.UserID, d.Before, d.After, d.Change); err != nil {
			return err
		}
		if affectsElo {
			if err := s.users.ApplyRatingChange(ctx, exec, d.UserID, d.After, won[d.UserID]); err != nil {
				return err
			}
		}
	}

	completedAt := s.now()
	if err := s.matches.Complete(ctx, exec, match.ID, completedAt); err != nil {
		return err
	}
	match.Status = models.MatchStatusCompleted
	match.CompletedAt = &completedAt

	for _, p := range match.Players {
		outcome := "lost"
		if won[p.UserID] {
			outcome = "won"
		}
		content := fmt.Sprintf("Your match is final: %d-%d. You %s.", scoreOrZero(match.Team1Score), scoreOrZero(match.Team2Score), outcome)
		if err := s.notifier.Notify(ctx, exec, p.UserID, models.NotifMatchResult, content, &match.ID); err != nil {
			return err
		}
	}

	if match.TournamentID != nil && s.advancer != nil {
		return s.advancer.AdvanceAfterCompletion(ctx, exec, match)
	}
	return nil
}

func (s *MatchService) computeDeltas(match *models.Match, affectsElo bool) ([]EloDelta, error) {
	baselines := make(map[int]float64, len(match.Players))
	for _, p := range match.Players {
		if p.EloBefore != nil {
			baselines[p.UserID] = *p.EloBefore
		} else if p.User != nil {
			baselines[p.UserID] = p.User.EloRating
		} else {
			baselines[p.UserID] = models.DefaultEloRating
		}
	}
	if !affectsElo {
		return ZeroChangeDeltas(match.Players, baselines), nil
	}
	if match.Team1Score == nil || match.Team2Score == nil {
		return nil, ErrNotPendingConfirmation
	}

	toRatings := func(players []models.MatchPlayer) []PlayerRating {
		out := make([]PlayerRating, len(players))
		for i, p := range players {
			games := 0
			if p.User != nil {
				games = p.User.GamesPlayed
			}
			out[i] = PlayerRating{UserID: p.UserID, Rating: baselines[p.UserID], GamesPlayed: games}
		}
		return out
	}
	team1 := toRatings(match.TeamPlayers(1))
	team2 := toRatings(match.TeamPlayers(2))
	return s.eloConfig.CalculateEloChanges(team1, team2, *match.Team1Score, *match.Team2Score), nil
}

// Reject clears a disputed score and returns the match to in_progress.
// Only the original submitter is notified.
func (s *MatchService) Reject(ctx context.Context, matchID, userID int) (*models.Match, error) {
	var courtID int
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		match, err := s.matches.GetByID(ctx, exec, matchID)
		if err != nil {
			return mapMatchRepoError(err)
		}
		courtID = match.CourtID
		if match.Status != models.MatchStatusPendingConfirmation {
			return ErrNotPendingConfirmation
		}
		if match.PlayerByUser(userID) == nil {
			return ErrNotMatchParticipant
		}
		if err := s.matches.ClearScore(ctx, exec, matchID); err != nil {
			return err
		}
		if match.SubmittedBy != nil && *match.SubmittedBy != userID {
			content := "Your submitted score was rejected. Please resubmit."
			if err := s.notifier.Notify(ctx, exec, *match.SubmittedBy, models.NotifMatchRejected, content, &matchID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRanked(courtID, "score_rejected")
	return s.Get(ctx, matchID)
}

// Cancel terminates an unfinished match. Any participant may cancel.
func (s *MatchService) Cancel(ctx context.Context, matchID, userID int) error {
	var courtID int
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		match, err := s.matches.GetByID(ctx, exec, matchID)
		if err != nil {
			return mapMatchRepoError(err)
		}
		courtID = match.CourtID
		if match.Status.Terminal() {
			return ErrMatchAlreadyTerminal
		}
		if match.PlayerByUser(userID) == nil {
			return ErrNotMatchParticipant
		}
		if err := s.matches.UpdateStatus(ctx, exec, matchID, models.MatchStatusCancelled); err != nil {
			return err
		}
		for _, p := range match.Players {
			if p.UserID == userID {
				continue
			}
			if err := s.notifier.Notify(ctx, exec, p.UserID, models.NotifMatchCancelled, "Your match was cancelled.", &matchID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.BroadcastRanked(courtID, "match_cancelled")
	return nil
}

func (s *MatchService) Get(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := s.matches.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, mapMatchRepoError(err)
	}
	decorateMatch(match)
	return match, nil
}

func (s *MatchService) ListActiveByCourt(ctx context.Context, courtID int) ([]*models.Match, error) {
	matches, err := s.matches.ListActiveByCourt(ctx, nil, courtID)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		decorateMatch(m)
	}
	return matches, nil
}

// ListPendingForUser returns matches still waiting on the user's side of
// the protocol.
func (s *MatchService) ListPendingForUser(ctx context.Context, userID, limit int) ([]*models.Match, error) {
	if limit <= 0 {
		limit = 20
	}
	statuses := []models.MatchStatus{models.MatchStatusInProgress, models.MatchStatusPendingConfirmation}
	matches, err := s.matches.ListForUser(ctx, nil, userID, statuses, limit)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		decorateMatch(m)
	}
	return matches, nil
}

func (s *MatchService) ListCompletedForUser(ctx context.Context, userID, limit int) ([]*models.Match, error) {
	if limit <= 0 {
		limit = 20
	}
	matches, err := s.matches.ListForUser(ctx, nil, userID, []models.MatchStatus{models.MatchStatusCompleted}, limit)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		decorateMatch(m)
	}
	return matches, nil
}

// decorateMatch fills the computed wire fields.
func decorateMatch(m *models.Match) {
	m.TotalPlayers = len(m.Players)
	m.ConfirmedCount = 0
	for _, p := range m.Players {
		if p.Confirmed {
			m.ConfirmedCount++
		}
	}
	m.Team1 = m.TeamPlayers(1)
	m.Team2 = m.TeamPlayers(2)
	m.WinnerUserID = m.WinnerUser()
}

func mapMatchRepoError(err error) error {
	if errors.Is(err, repositories.ErrMatchNotFound) {
		return ErrMatchNotFound
	}
	return err
}

func scoreOrZero(score *int) int {
	if score == nil {
		return 0
	}
	return *score
}
