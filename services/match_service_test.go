package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rallyrank/rallyrank-api/models"
)

func (env *testEnv) createSinglesMatch(t *testing.T, user1, user2 int) *models.Match {
	t.Helper()
	match, err := env.matchSvc.createMatchTx(context.Background(), nil, createMatchParams{
		CourtID:   1,
		MatchType: models.MatchTypeSingles,
		Team1:     []int{user1},
		Team2:     []int{user2},
	})
	require.NoError(t, err)
	return match
}

func TestSubmitScoreMovesToPendingConfirmation(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 50)
	env.users.add(2, 1500, 50)
	match := env.createSinglesMatch(t, 1, 2)

	got, err := env.matchSvc.SubmitScore(context.Background(), match.ID, 1, 11, 7)
	require.NoError(t, err)

	assert.Equal(t, models.MatchStatusPendingConfirmation, got.Status)
	require.NotNil(t, got.Team1Score)
	assert.Equal(t, 11, *got.Team1Score)
	require.NotNil(t, got.WinnerTeam)
	assert.Equal(t, 1, *got.WinnerTeam)
	require.NotNil(t, got.SubmittedBy)
	assert.Equal(t, 1, *got.SubmittedBy)

	assert.True(t, got.PlayerByUser(1).Confirmed, "submitter auto-confirms")
	assert.False(t, got.PlayerByUser(2).Confirmed)

	// The opponent gets a confirmation prompt; the submitter does not.
	assert.Len(t, env.notifications.forUser(2, models.NotifMatchConfirm), 1)
	assert.Empty(t, env.notifications.forUser(1, models.NotifMatchConfirm))
}

func TestSubmitScoreValidation(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 50)
	env.users.add(2, 1500, 50)
	env.users.add(3, 1500, 50)
	match := env.createSinglesMatch(t, 1, 2)
	ctx := context.Background()

	_, err := env.matchSvc.SubmitScore(ctx, match.ID, 1, 9, 9)
	assert.ErrorIs(t, err, ErrTieScore)

	_, err = env.matchSvc.SubmitScore(ctx, match.ID, 1, 100, 7)
	assert.ErrorIs(t, err, ErrInvalidScore)

	_, err = env.matchSvc.SubmitScore(ctx, match.ID, 3, 11, 7)
	assert.ErrorIs(t, err, ErrNotMatchParticipant)

	_, err = env.matchSvc.SubmitScore(ctx, match.ID, 1, 11, 7)
	require.NoError(t, err)

	// A second submission has to wait for a reject.
	_, err = env.matchSvc.SubmitScore(ctx, match.ID, 2, 7, 11)
	assert.ErrorIs(t, err, ErrMatchNotInProgress)
}

func TestConfirmCompletesMatchAndAppliesRatings(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 50)
	env.users.add(2, 1500, 50)
	match := env.createSinglesMatch(t, 1, 2)
	ctx := context.Background()

	_, err := env.matchSvc.SubmitScore(ctx, match.ID, 1, 11, 7)
	require.NoError(t, err)

	got, err := env.matchSvc.Confirm(ctx, match.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, models.MatchStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, env.now, *got.CompletedAt)

	winner, loser := got.PlayerByUser(1), got.PlayerByUser(2)
	require.NotNil(t, winner.EloChange)
	require.NotNil(t, loser.EloChange)
	assert.Greater(t, *winner.EloChange, 0.0)
	assert.Less(t, *loser.EloChange, 0.0)
	assert.InDelta(t, *winner.EloBefore+*winner.EloChange, *winner.EloAfter, 1e-9)

	// Equal ratings and K factors: the ledger is symmetric.
	assert.InDelta(t, *winner.EloChange, -*loser.EloChange, 1e-9)

	u1, u2 := env.users.users[1], env.users.users[2]
	assert.Equal(t, *winner.EloAfter, u1.EloRating)
	assert.Equal(t, 51, u1.GamesPlayed)
	assert.Equal(t, 1, u1.Wins)
	assert.Equal(t, 1, u2.Losses)
	assert.Less(t, u2.EloRating, 1500.0)

	assert.Len(t, env.notifications.forUser(1, models.NotifMatchResult), 1)
	assert.Len(t, env.notifications.forUser(2, models.NotifMatchResult), 1)
}

func TestConfirmOnCompletedMatchFails(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 50)
	env.users.add(2, 1500, 50)
	match := env.createSinglesMatch(t, 1, 2)
	ctx := context.Background()

	_, err := env.matchSvc.SubmitScore(ctx, match.ID, 1, 11, 7)
	require.NoError(t, err)
	_, err = env.matchSvc.Confirm(ctx, match.ID, 2)
	require.NoError(t, err)

	ratingAfter := env.users.users[1].EloRating

	_, err = env.matchSvc.Confirm(ctx, match.ID, 2)
	assert.ErrorIs(t, err, ErrNotPendingConfirmation)

	// No double application.
	assert.Equal(t, ratingAfter, env.users.users[1].EloRating)
	assert.Equal(t, 51, env.users.users[1].GamesPlayed)
}

func TestRejectReturnsMatchToInProgress(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 50)
	env.users.add(2, 1500, 50)
	match := env.createSinglesMatch(t, 1, 2)
	ctx := context.Background()

	_, err := env.matchSvc.SubmitScore(ctx, match.ID, 1, 11, 7)
	require.NoError(t, err)

	got, err := env.matchSvc.Reject(ctx, match.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, models.MatchStatusInProgress, got.Status)
	assert.Nil(t, got.Team1Score)
	assert.Nil(t, got.WinnerTeam)
	assert.Nil(t, got.SubmittedBy)
	assert.False(t, got.PlayerByUser(1).Confirmed)
	assert.False(t, got.PlayerByUser(2).Confirmed)

	// Only the submitter hears about the dispute.
	assert.Len(t, env.notifications.forUser(1, models.NotifMatchRejected), 1)
	assert.Empty(t, env.notifications.forUser(2, models.NotifMatchRejected))

	// The match accepts a fresh submission afterwards.
	_, err = env.matchSvc.SubmitScore(ctx, match.ID, 2, 7, 11)
	require.NoError(t, err)
}

func TestCancelMatch(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 50)
	env.users.add(2, 1500, 50)
	env.users.add(3, 1500, 50)
	match := env.createSinglesMatch(t, 1, 2)
	ctx := context.Background()

	err := env.matchSvc.Cancel(ctx, match.ID, 3)
	assert.ErrorIs(t, err, ErrNotMatchParticipant)

	require.NoError(t, env.matchSvc.Cancel(ctx, match.ID, 1))

	got, err := env.matchSvc.Get(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCancelled, got.Status)
	assert.Len(t, env.notifications.forUser(2, models.NotifMatchCancelled), 1)

	err = env.matchSvc.Cancel(ctx, match.ID, 1)
	assert.ErrorIs(t, err, ErrMatchAlreadyTerminal)
}

func TestDoublesQueueToCompletedMatch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	for id := 1; id <= 4; id++ {
		env.users.add(id, 1500, 50)
		env.checkIns.checkIn(id, 1)
		_, err := env.queueSvc.Join(ctx, id, 1, models.MatchTypeDoubles)
		require.NoError(t, err)
	}

	lobby, match, err := env.lobbySvc.CreateFromQueue(ctx, 1, 1, models.MatchTypeDoubles, []int{1, 2}, []int{3, 4}, true)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, models.LobbyStatusStarted, lobby.Status)
	assert.Equal(t, models.MatchStatusInProgress, match.Status)
	for id := 1; id <= 4; id++ {
		assert.Nil(t, env.queues.find(id, 1), "user %d still queued", id)
	}

	_, err = env.matchSvc.SubmitScore(ctx, match.ID, 1, 11, 6)
	require.NoError(t, err)

	// One outstanding confirmation keeps the match open.
	for _, id := range []int{2, 3} {
		got, err := env.matchSvc.Confirm(ctx, match.ID, id)
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusPendingConfirmation, got.Status, "after confirmation by user %d", id)
		assert.Nil(t, got.PlayerByUser(id).EloChange)
	}

	got, err := env.matchSvc.Confirm(ctx, match.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, got.Status)

	for id := 1; id <= 4; id++ {
		p := got.PlayerByUser(id)
		require.NotNil(t, p.EloChange, "user %d", id)
		assert.NotZero(t, *p.EloChange, "user %d", id)
		assert.InDelta(t, *p.EloBefore+*p.EloChange, *p.EloAfter, 1e-9, "user %d", id)

		u := env.users.users[id]
		assert.Equal(t, *p.EloAfter, u.EloRating, "user %d", id)
		assert.Equal(t, 51, u.GamesPlayed, "user %d", id)
	}
	for _, id := range []int{1, 2} {
		assert.Greater(t, *got.PlayerByUser(id).EloChange, 0.0, "winner %d", id)
		assert.Equal(t, 1, env.users.users[id].Wins, "winner %d", id)
	}
	for _, id := range []int{3, 4} {
		assert.Less(t, *got.PlayerByUser(id).EloChange, 0.0, "loser %d", id)
		assert.Equal(t, 1, env.users.users[id].Losses, "loser %d", id)
	}
}

func TestCasualTournamentMatchLeavesRatingsAlone(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 50)
	env.users.add(2, 1600, 50)
	env.matchSvc.advancer = nil
	ctx := context.Background()

	tournament := &models.Tournament{
		CourtID:    1,
		HostUserID: 1,
		Name:       "Casual Bracket Night",
		AffectsElo: false,
		Status:     models.TournamentStatusLive,
	}
	require.NoError(t, env.tournaments.Create(ctx, nil, tournament))

	match, err := env.matchSvc.createMatchTx(ctx, nil, createMatchParams{
		CourtID:      1,
		MatchType:    models.MatchTypeSingles,
		Team1:        []int{1},
		Team2:        []int{2},
		TournamentID: &tournament.ID,
	})
	require.NoError(t, err)

	_, err = env.matchSvc.SubmitScore(ctx, match.ID, 1, 11, 3)
	require.NoError(t, err)
	got, err := env.matchSvc.Confirm(ctx, match.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, models.MatchStatusCompleted, got.Status)
	for _, userID := range []int{1, 2} {
		p := got.PlayerByUser(userID)
		require.NotNil(t, p.EloChange)
		assert.Zero(t, *p.EloChange)
		assert.Equal(t, *p.EloBefore, *p.EloAfter)
	}

	// Profile ratings and the win/loss record are untouched.
	assert.Equal(t, 1500.0, env.users.users[1].EloRating)
	assert.Equal(t, 1600.0, env.users.users[2].EloRating)
	assert.Equal(t, 50, env.users.users[1].GamesPlayed)
	assert.Zero(t, env.users.users[1].Wins)
}
