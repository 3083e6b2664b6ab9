package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatchStatusTransitions(t *testing.T) {
	assert.True(t, MatchStatusInProgress.CanTransitionTo(MatchStatusPendingConfirmation))
	assert.True(t, MatchStatusInProgress.CanTransitionTo(MatchStatusCancelled))
	assert.False(t, MatchStatusInProgress.CanTransitionTo(MatchStatusCompleted))

	// A rejected score reopens the match.
	assert.True(t, MatchStatusPendingConfirmation.CanTransitionTo(MatchStatusInProgress))
	assert.True(t, MatchStatusPendingConfirmation.CanTransitionTo(MatchStatusCompleted))

	for _, terminal := range []MatchStatus{MatchStatusCompleted, MatchStatusCancelled} {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.CanTransitionTo(MatchStatusInProgress))
	}
}

func TestLobbyStatusTransitions(t *testing.T) {
	assert.True(t, LobbyStatusPendingAcceptance.CanTransitionTo(LobbyStatusReady))
	assert.True(t, LobbyStatusPendingAcceptance.CanTransitionTo(LobbyStatusDeclined))
	assert.False(t, LobbyStatusPendingAcceptance.CanTransitionTo(LobbyStatusStarted))

	assert.True(t, LobbyStatusReady.CanTransitionTo(LobbyStatusStarted))

	for _, terminal := range []LobbyStatus{LobbyStatusStarted, LobbyStatusDeclined, LobbyStatusExpired} {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.CanTransitionTo(LobbyStatusReady))
	}
}

func TestTournamentStatusTransitions(t *testing.T) {
	assert.True(t, TournamentStatusUpcoming.CanTransitionTo(TournamentStatusLive))
	assert.True(t, TournamentStatusUpcoming.CanTransitionTo(TournamentStatusCancelled))
	assert.False(t, TournamentStatusUpcoming.CanTransitionTo(TournamentStatusCompleted))

	assert.True(t, TournamentStatusLive.CanTransitionTo(TournamentStatusCompleted))
	assert.True(t, TournamentStatusLive.CanTransitionTo(TournamentStatusCancelled))

	assert.False(t, TournamentStatusCompleted.CanTransitionTo(TournamentStatusLive))
	assert.False(t, TournamentStatusCancelled.CanTransitionTo(TournamentStatusUpcoming))
}

func TestDeriveLobbyStatus(t *testing.T) {
	players := func(states ...AcceptanceStatus) []LobbyPlayer {
		out := make([]LobbyPlayer, len(states))
		for i, s := range states {
			out[i] = LobbyPlayer{UserID: i + 1, Acceptance: s}
		}
		return out
	}

	assert.Equal(t, LobbyStatusPendingAcceptance, DeriveLobbyStatus(nil))
	assert.Equal(t, LobbyStatusPendingAcceptance, DeriveLobbyStatus(players(AcceptanceAccepted, AcceptancePending)))
	assert.Equal(t, LobbyStatusReady, DeriveLobbyStatus(players(AcceptanceAccepted, AcceptanceAccepted)))

	// One decline ends it even with acceptances outstanding.
	assert.Equal(t, LobbyStatusDeclined, DeriveLobbyStatus(players(AcceptanceAccepted, AcceptanceDeclined, AcceptancePending)))
}

func TestParticipantStatusClassification(t *testing.T) {
	for _, s := range []ParticipantStatus{ParticipantRegistered, ParticipantCheckedIn} {
		assert.True(t, s.Active(), string(s))
		assert.False(t, s.Excluded(), string(s))
	}
	for _, s := range []ParticipantStatus{ParticipantNoShow, ParticipantDeclined, ParticipantWithdrawn} {
		assert.False(t, s.Active(), string(s))
		assert.True(t, s.Excluded(), string(s))
	}
	// Invited players are neither eligible nor ranked until they accept.
	assert.False(t, ParticipantInvited.Active())
	assert.False(t, ParticipantInvited.Excluded())
}

func TestGraceDeadline(t *testing.T) {
	start := time.Date(2026, 7, 14, 18, 0, 0, 0, time.UTC)
	tournament := Tournament{StartTime: start, NoShowGraceMinutes: 15}
	assert.Equal(t, start.Add(15*time.Minute), tournament.GraceDeadline())

	tournament.NoShowGraceMinutes = 0
	assert.Equal(t, start, tournament.GraceDeadline())
}

func TestMatchWinnerHelpers(t *testing.T) {
	one, two := 1, 2
	match := Match{
		WinnerTeam: &one,
		Players: []MatchPlayer{
			{UserID: 10, Team: 1},
			{UserID: 20, Team: 2},
		},
	}

	assert.Equal(t, 10, *match.WinnerUser())
	assert.Equal(t, 20, *match.LoserUser())

	match.WinnerTeam = &two
	assert.Equal(t, 20, *match.WinnerUser())

	match.WinnerTeam = nil
	assert.Nil(t, match.WinnerUser())
	assert.Nil(t, match.LoserUser())

	empty := Match{}
	assert.False(t, empty.AllConfirmed(), "no players means nothing to confirm")
}
