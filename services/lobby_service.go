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

// LobbyService manages proposed matches through the multi-party
// acceptance protocol: proposal, accept/decline, ready, start.
type LobbyService struct {
	tx       repositories.TxRunner
	lobbies  repositories.LobbyRepository
	queues   repositories.QueueRepository
	checkIns repositories.CheckInRepository
	users    repositories.UserRepository
	matchSvc *MatchService
	sweeper  *CourtSweeper
	notifier *Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewLobbyService(
	tx repositories.TxRunner,
	lobbies repositories.LobbyRepository,
	queues repositories.QueueRepository,
	checkIns repositories.CheckInRepository,
	users repositories.UserRepository,
	matchSvc *MatchService,
	sweeper *CourtSweeper,
	notifier *Notifier,
	logger *slog.Logger,
) *LobbyService {
	return &LobbyService{
		tx:       tx,
		lobbies:  lobbies,
		queues:   queues,
		checkIns: checkIns,
		users:    users,
		matchSvc: matchSvc,
		sweeper:  sweeper,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateFromQueue builds a lobby from players who already opted in by
// queueing: everyone must hold a matching queue entry at the court, all
// are auto-accepted, and their queue entries are consumed. With
// startImmediately the match is created in the same transaction.
func (s *LobbyService) CreateFromQueue(ctx context.Context, creatorID, courtID int, matchType models.MatchType, team1, team2 []int, startImmediately bool) (*models.Lobby, *models.Match, error) {
	if err := validateRoster(matchType, team1, team2); err != nil {
		return nil, nil, err
	}

	var lobby *models.Lobby
	var match *models.Match
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.sweeper.Sweep(ctx, exec, courtID, s.now()); err != nil {
			return err
		}

		allIDs := append(append([]int{}, team1...), team2...)
		for _, id := range allIDs {
			entry, err := s.queues.FindByUserAndCourt(ctx, exec, id, courtID)
			if err != nil {
				if errors.Is(err, repositories.ErrQueueEntryNotFound) {
					return ErrNotInQueue
				}
				return err
			}
			if entry.MatchType != matchType {
				return ErrNotInQueue
			}
		}

		var err error
		lobby, err = s.createLobbyTx(ctx, exec, createLobbyParams{
			courtID:    courtID,
			creatorID:  creatorID,
			matchType:  matchType,
			source:     models.LobbySourceQueue,
			team1:      team1,
			team2:      team2,
			acceptance: func(int) models.AcceptanceStatus { return models.AcceptanceAccepted },
		})
		if err != nil {
			return err
		}

		if err := s.queues.DeleteForUsers(ctx, exec, courtID, allIDs); err != nil {
			return err
		}

		if startImmediately {
			match, err = s.startLobbyTx(ctx, exec, lobby)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.notifier.BroadcastRanked(courtID, "lobby_created")
	decorateLobby(lobby)
	if match != nil {
		decorateMatch(match)
	}
	return lobby, match, nil
}

// CreateCourtChallenge proposes an immediate match to players present at
// the court. The creator is auto-accepted; everyone else starts pending
// and is notified.
func (s *LobbyService) CreateCourtChallenge(ctx context.Context, creatorID, courtID int, matchType models.MatchType, team1, team2 []int) (*models.Lobby, error) {
	return s.createChallenge(ctx, creatorID, courtID, matchType, team1, team2, models.LobbySourceCourtChallenge, nil)
}

// CreateScheduledChallenge proposes a match for a future time. Check-in is
// not required at creation; it is enforced at start time instead.
func (s *LobbyService) CreateScheduledChallenge(ctx context.Context, creatorID, courtID int, matchType models.MatchType, team1, team2 []int, scheduledFor time.Time) (*models.Lobby, error) {
	if !scheduledFor.After(s.now()) {
		return nil, ErrInvalidScheduledTime
	}
	return s.createChallenge(ctx, creatorID, courtID, matchType, team1, team2, models.LobbySourceScheduledChallenge, &scheduledFor)
}

func (s *LobbyService) createChallenge(ctx context.Context, creatorID, courtID int, matchType models.MatchType, team1, team2 []int, source models.LobbySource, scheduledFor *time.Time) (*models.Lobby, error) {
	if err := validateRoster(matchType, team1, team2); err != nil {
		return nil, err
	}
	if !containsID(team1, creatorID) && !containsID(team2, creatorID) {
		return nil, ErrCreatorNotOnTeam
	}

	var lobby *models.Lobby
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.sweeper.Sweep(ctx, exec, courtID, s.now()); err != nil {
			return err
		}

		allIDs := append(append([]int{}, team1...), team2...)
		if source == models.LobbySourceCourtChallenge {
			present, err := s.checkIns.ActiveUserIDs(ctx, exec, courtID, allIDs)
			if err != nil {
				return err
			}
			var missing []int
			for _, id := range allIDs {
				if !present[id] {
					missing = append(missing, id)
				}
			}
			if len(missing) > 0 {
				if containsID(missing, creatorID) {
					return ErrNotCheckedIn
				}
				return &MissingCheckInsError{UserIDs: missing}
			}
		}

		var err error
		lobby, err = s.createLobbyTx(ctx, exec, createLobbyParams{
			courtID:      courtID,
			creatorID:    creatorID,
			matchType:    matchType,
			source:       source,
			scheduledFor: scheduledFor,
			team1:        team1,
			team2:        team2,
			acceptance: func(userID int) models.AcceptanceStatus {
				if userID == creatorID {
					return models.AcceptanceAccepted
				}
				return models.AcceptancePending
			},
		})
		if err != nil {
			return err
		}

		for _, id := range allIDs {
			if id == creatorID {
				continue
			}
			content := fmt.Sprintf("You have been challenged to a %s match.", matchType)
			if err := s.notifier.Notify(ctx, exec, id, models.NotifChallengeInvite, content, &lobby.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRanked(courtID, "challenge_created")
	s.notifier.BroadcastNotifications(courtID, "challenge_created")
	decorateLobby(lobby)
	return lobby, nil
}

type createLobbyParams struct {
	courtID      int
	creatorID    int
	matchType    models.MatchType
	source       models.LobbySource
	scheduledFor *time.Time
	team1        []int
	team2        []int
	acceptance   func(userID int) models.AcceptanceStatus
}

func (s *LobbyService) createLobbyTx(ctx context.Context, exec repositories.SQLExecutor, params createLobbyParams) (*models.Lobby, error) {
	allIDs := append(append([]int{}, params.team1...), params.team2...)
	users, err := s.users.ResolveUsers(ctx, exec, allIDs)
	if err != nil {
		return nil, err
	}
	if len(users) != len(allIDs) {
		return nil, ErrUserNotFound
	}

	lobby := &models.Lobby{
		CourtID:      params.courtID,
		CreatedByID:  params.creatorID,
		MatchType:    params.matchType,
		Source:       params.source,
		ScheduledFor: params.scheduledFor,
	}

	addPlayers := func(team int, ids []int) {
		now := s.now()
		for _, id := range ids {
			player := models.LobbyPlayer{
				UserID:     id,
				Team:       team,
				Acceptance: params.acceptance(id),
				User:       users[id],
			}
			if player.Acceptance != models.AcceptancePending {
				player.RespondedAt = &now
			}
			lobby.Players = append(lobby.Players, player)
		}
	}
	addPlayers(1, params.team1)
	addPlayers(2, params.team2)
	lobby.Status = models.DeriveLobbyStatus(lobby.Players)

	if err := s.lobbies.Create(ctx, exec, lobby); err != nil {
		return nil, err
	}
	for i := range lobby.Players {
		lobby.Players[i].LobbyID = lobby.ID
		if err := s.lobbies.CreatePlayer(ctx, exec, &lobby.Players[i]); err != nil {
			return nil, err
		}
	}
	return lobby, nil
}

// Respond records a player's accept or decline. A single decline ends the
// proposal for everyone; unanimous acceptance makes the lobby ready and
// notifies all players once.
func (s *LobbyService) Respond(ctx context.Context, lobbyID, userID int, accept bool) (*models.Lobby, error) {
	var courtID int
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		lobby, err := s.lobbies.GetByID(ctx, exec, lobbyID)
		if err != nil {
			return mapLobbyRepoError(err)
		}
		courtID = lobby.CourtID
		if lobby.Status != models.LobbyStatusPendingAcceptance {
			return ErrLobbyNotPending
		}
		player := lobby.PlayerByUser(userID)
		if player == nil {
			return ErrNotLobbyParticipant
		}

		acceptance := models.AcceptanceDeclined
		if accept {
			acceptance = models.AcceptanceAccepted
		}
		if err := s.lobbies.UpdatePlayerResponse(ctx, exec, lobbyID, userID, acceptance, s.now()); err != nil {
			return err
		}
		player.Acceptance = acceptance

		next := models.DeriveLobbyStatus(lobby.Players)
		if next == lobby.Status {
			return nil
		}
		if err := s.lobbies.UpdateStatus(ctx, exec, lobbyID, next); err != nil {
			return err
		}

		switch next {
		case models.LobbyStatusDeclined:
			for _, p := range lobby.Players {
				if p.UserID == userID {
					continue
				}
				if err := s.notifier.Notify(ctx, exec, p.UserID, models.NotifChallengeDeclined, "A player declined the challenge.", &lobbyID); err != nil {
					return err
				}
			}
		case models.LobbyStatusReady:
			for _, p := range lobby.Players {
				if err := s.notifier.Notify(ctx, exec, p.UserID, models.NotifChallengeReady, "Everyone accepted. The match can be started.", &lobbyID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRanked(courtID, "lobby_response")
	s.notifier.BroadcastNotifications(courtID, "lobby_response")
	return s.Get(ctx, lobbyID)
}

// Start turns a ready lobby into a live match. Idempotent: a lobby already
// started returns its linked match.
func (s *LobbyService) Start(ctx context.Context, lobbyID, requesterID int) (*models.Match, error) {
	var match *models.Match
	var courtID int
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		lobby, err := s.lobbies.GetByID(ctx, exec, lobbyID)
		if err != nil {
			return mapLobbyRepoError(err)
		}
		courtID = lobby.CourtID

		if lobby.Status == models.LobbyStatusStarted && lobby.StartedMatchID != nil {
			match, err = s.matchSvc.matches.GetByID(ctx, exec, *lobby.StartedMatchID)
			return err
		}
		if lobby.Status != models.LobbyStatusReady {
			return ErrLobbyNotReady
		}
		requester := lobby.PlayerByUser(requesterID)
		if requester == nil || requester.Acceptance != models.AcceptanceAccepted {
			return ErrNotAcceptedPlayer
		}
		if lobby.ScheduledFor != nil {
			if remaining := lobby.ScheduledFor.Sub(s.now()); remaining > 0 {
				return &NotYetStartableError{SecondsRemaining: int64(remaining.Seconds())}
			}
		}

		match, err = s.startLobbyTx(ctx, exec, lobby)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRanked(courtID, "lobby_started")
	decorateMatch(match)
	return match, nil
}

// startLobbyTx re-validates composition from accepted players, requires
// everyone present at the court, creates the match and links it.
func (s *LobbyService) startLobbyTx(ctx context.Context, exec repositories.SQLExecutor, lobby *models.Lobby) (*models.Match, error) {
	team1, team2 := lobby.AcceptedTeamIDs()
	size := lobby.MatchType.PlayersPerTeam()
	if len(team1) != size || len(team2) != size {
		return nil, ErrInvalidTeamSize
	}

	allIDs := append(append([]int{}, team1...), team2...)
	present, err := s.checkIns.ActiveUserIDs(ctx, exec, lobby.CourtID, allIDs)
	if err != nil {
		return nil, err
	}
	var missing []int
	for _, id := range allIDs {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingCheckInsError{UserIDs: missing}
	}

	match, err := s.matchSvc.createMatchTx(ctx, exec, createMatchParams{
		CourtID:   lobby.CourtID,
		MatchType: lobby.MatchType,
		Team1:     team1,
		Team2:     team2,
	})
	if err != nil {
		return nil, err
	}
	if err := s.lobbies.SetStarted(ctx, exec, lobby.ID, match.ID); err != nil {
		return nil, err
	}
	lobby.Status = models.LobbyStatusStarted
	lobby.StartedMatchID = &match.ID

	if err := s.queues.DeleteForUsers(ctx, exec, lobby.CourtID, allIDs); err != nil {
		return nil, err
	}
	return match, nil
}

func (s *LobbyService) Get(ctx context.Context, lobbyID int) (*models.Lobby, error) {
	lobby, err := s.lobbies.GetByID(ctx, nil, lobbyID)
	if err != nil {
		return nil, mapLobbyRepoError(err)
	}
	decorateLobby(lobby)
	return lobby, nil
}

func (s *LobbyService) ListOpenByCourt(ctx context.Context, courtID int) ([]*models.Lobby, error) {
	lobbies, err := s.lobbies.ListOpenByCourt(ctx, nil, courtID)
	if err != nil {
		return nil, err
	}
	for _, l := range lobbies {
		decorateLobby(l)
	}
	return lobbies, nil
}

func (s *LobbyService) ListOpenForUser(ctx context.Context, userID int) ([]*models.Lobby, error) {
	lobbies, err := s.lobbies.ListOpenForUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	for _, l := range lobbies {
		decorateLobby(l)
	}
	return lobbies, nil
}

func decorateLobby(l *models.Lobby) {
	if l == nil {
		return
	}
	l.TotalPlayers = len(l.Players)
	l.AcceptedCount = 0
	l.Team1 = l.Team1[:0]
	l.Team2 = l.Team2[:0]
	for _, p := range l.Players {
		if p.Acceptance == models.AcceptanceAccepted {
			l.AcceptedCount++
		}
		if p.Team == 1 {
			l.Team1 = append(l.Team1, p)
		} else {
			l.Team2 = append(l.Team2, p)
		}
	}
}

func mapLobbyRepoError(err error) error {
	if errors.Is(err, repositories.ErrLobbyNotFound) {
		return ErrLobbyNotFound
	}
	return err
}

func containsID(ids []int, id int) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
