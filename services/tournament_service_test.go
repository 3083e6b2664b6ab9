package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

func defaultTournamentParams(env *testEnv) CreateTournamentParams {
	return CreateTournamentParams{
		CourtID:         1,
		Name:            "Tuesday Night Knockout",
		Format:          models.FormatSingleElimination,
		AccessMode:      models.AccessOpen,
		MatchType:       models.MatchTypeSingles,
		AffectsElo:      true,
		StartTime:       env.now.Add(time.Hour),
		MaxPlayers:      16,
		MinParticipants: 2,
		NoShowPolicy:    models.NoShowAutoForfeit,
	}
}

func (env *testEnv) playMatch(t *testing.T, matchID, winnerID, loserID int) {
	t.Helper()
	ctx := context.Background()
	match, err := env.matchSvc.Get(ctx, matchID)
	require.NoError(t, err)

	score1, score2 := 11, 6
	if match.PlayerByUser(winnerID).Team == 2 {
		score1, score2 = 6, 11
	}
	_, err = env.matchSvc.SubmitScore(ctx, matchID, winnerID, score1, score2)
	require.NoError(t, err)
	_, err = env.matchSvc.Confirm(ctx, matchID, loserID)
	require.NoError(t, err)
}

func TestCreateTournamentValidation(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 20)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateTournamentParams)
	}{
		{"missing name", func(p *CreateTournamentParams) { p.Name = "" }},
		{"doubles bracket unsupported", func(p *CreateTournamentParams) { p.MatchType = models.MatchTypeDoubles }},
		{"start time in the past", func(p *CreateTournamentParams) { p.StartTime = env.now.Add(-time.Minute) }},
		{"max players too large", func(p *CreateTournamentParams) { p.MaxPlayers = 256 }},
		{"minimum above maximum", func(p *CreateTournamentParams) { p.MinParticipants = 32; p.MaxPlayers = 16 }},
		{"registration closes after start", func(p *CreateTournamentParams) {
			late := p.StartTime.Add(time.Minute)
			p.RegistrationCloseTime = &late
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := defaultTournamentParams(env)
			tc.mutate(&params)
			_, err := env.tournamentSvc.Create(ctx, 1, params)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestCreateTournamentRegistersHost(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 20)

	tournament, err := env.tournamentSvc.Create(context.Background(), 1, defaultTournamentParams(env))
	require.NoError(t, err)

	assert.Equal(t, models.TournamentStatusUpcoming, tournament.Status)
	require.NotNil(t, tournament.MyParticipation)
	assert.Equal(t, models.ParticipantRegistered, tournament.MyParticipation.Status)
	assert.Equal(t, 1, tournament.RegisteredCount)
}

func TestJoinTournament(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 20)
	env.users.add(2, 1500, 20)
	ctx := context.Background()

	tournament, err := env.tournamentSvc.Create(ctx, 1, defaultTournamentParams(env))
	require.NoError(t, err)

	require.NoError(t, env.tournamentSvc.Join(ctx, tournament.ID, 2))
	err = env.tournamentSvc.Join(ctx, tournament.ID, 2)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestJoinInviteOnlyTournament(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 20)
	env.users.add(2, 1500, 20)
	env.users.add(3, 1500, 20)
	ctx := context.Background()

	params := defaultTournamentParams(env)
	params.AccessMode = models.AccessInviteOnly
	tournament, err := env.tournamentSvc.Create(ctx, 1, params)
	require.NoError(t, err)

	err = env.tournamentSvc.Join(ctx, tournament.ID, 2)
	assert.ErrorIs(t, err, ErrInviteRequired)

	require.NoError(t, env.tournamentSvc.Invite(ctx, tournament.ID, 1, []int{2, 3}))
	assert.Len(t, env.notifications.forUser(2, models.NotifTournamentInvite), 1)

	require.NoError(t, env.tournamentSvc.RespondInvite(ctx, tournament.ID, 2, true))
	p, err := env.participants.FindByTournamentAndUser(ctx, nil, tournament.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantRegistered, p.Status)
	assert.Equal(t, models.InviteAccepted, p.InviteStatus)

	// Declining burns the slot until the host re-invites.
	require.NoError(t, env.tournamentSvc.RespondInvite(ctx, tournament.ID, 3, false))
	err = env.tournamentSvc.Join(ctx, tournament.ID, 3)
	assert.ErrorIs(t, err, ErrInviteRequired)
}

func TestLeaveTournament(t *testing.T) {
	env := newTestEnv()
	env.users.add(1, 1500, 20)
	env.users.add(2, 1500, 20)
	ctx := context.Background()

	tournament, err := env.tournamentSvc.Create(ctx, 1, defaultTournamentParams(env))
	require.NoError(t, err)
	require.NoError(t, env.tournamentSvc.Join(ctx, tournament.ID, 2))

	err = env.tournamentSvc.Leave(ctx, tournament.ID, 1)
	assert.ErrorIs(t, err, ErrHostCannotLeave)

	require.NoError(t, env.tournamentSvc.Leave(ctx, tournament.ID, 2))
	_, err = env.participants.FindByTournamentAndUser(ctx, nil, tournament.ID, 2)
	assert.ErrorIs(t, err, repositories.ErrParticipantNotFound)
	assert.Len(t, env.notifications.forUser(1, models.NotifTournamentWithdrawal), 1)
}

func TestStartTournamentValidation(t *testing.T) {
	env := newTestEnv()
	for id := 1; id <= 5; id++ {
		env.users.add(id, 1500, 20)
	}
	ctx := context.Background()

	params := defaultTournamentParams(env)
	params.MinParticipants = 4
	tournament, err := env.tournamentSvc.Create(ctx, 1, params)
	require.NoError(t, err)

	_, err = env.tournamentSvc.Start(ctx, tournament.ID, 2)
	assert.ErrorIs(t, err, ErrNotTournamentHost)

	// Host alone is below the minimum.
	_, err = env.tournamentSvc.Start(ctx, tournament.ID, 1)
	var short *InsufficientParticipantsError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 1, short.Eligible)
	assert.Equal(t, 4, short.Minimum)

	for id := 2; id <= 5; id++ {
		require.NoError(t, env.tournamentSvc.Join(ctx, tournament.ID, id))
	}

	// Five players cannot seed a single elimination bracket.
	_, err = env.tournamentSvc.Start(ctx, tournament.ID, 1)
	var size *BracketSizeError
	require.ErrorAs(t, err, &size)
	assert.Equal(t, 5, size.EligibleCount)
}

func TestStartWithCheckInAutoForfeit(t *testing.T) {
	env := newTestEnv()
	for id := 1; id <= 4; id++ {
		env.users.add(id, 1500, 20)
	}
	ctx := context.Background()

	params := defaultTournamentParams(env)
	params.CheckInRequired = true
	params.NoShowGraceMinutes = 30
	tournament, err := env.tournamentSvc.Create(ctx, 1, params)
	require.NoError(t, err)
	for id := 2; id <= 4; id++ {
		require.NoError(t, env.tournamentSvc.Join(ctx, tournament.ID, id))
	}

	env.checkIns.checkIn(1, 1)
	env.checkIns.checkIn(2, 1)

	// Inside the grace window the start is blocked, naming the absentees.
	_, err = env.tournamentSvc.Start(ctx, tournament.ID, 1)
	var missing *MissingCheckInsError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []int{3, 4}, missing.UserIDs)
	require.NotNil(t, missing.GraceDeadline)
	assert.Equal(t, tournament.StartTime.Add(30*time.Minute), *missing.GraceDeadline)

	// Past the deadline the absentees forfeit and the bracket seeds from
	// whoever showed up.
	env.now = missing.GraceDeadline.Add(time.Minute)
	started, err := env.tournamentSvc.Start(ctx, tournament.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusLive, started.Status)
	require.NotNil(t, started.BracketSize)
	assert.Equal(t, 2, *started.BracketSize)

	for _, id := range []int{3, 4} {
		p, err := env.participants.FindByTournamentAndUser(ctx, nil, tournament.ID, id)
		require.NoError(t, err)
		assert.Equal(t, models.ParticipantNoShow, p.Status)
	}
}

func TestTournamentRunsToCompletion(t *testing.T) {
	env := newTestEnv()
	for id := 1; id <= 4; id++ {
		env.users.add(id, 1500, 50)
	}
	ctx := context.Background()

	tournament, err := env.tournamentSvc.Create(ctx, 1, defaultTournamentParams(env))
	require.NoError(t, err)
	for id := 2; id <= 4; id++ {
		require.NoError(t, env.tournamentSvc.Join(ctx, tournament.ID, id))
	}

	started, err := env.tournamentSvc.Start(ctx, tournament.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusLive, started.Status)
	require.NotNil(t, started.TotalRounds)
	assert.Equal(t, 2, *started.TotalRounds)

	round1, err := env.matches.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, round1, 2)
	for _, id := range []int{1, 2, 3, 4} {
		assert.Len(t, env.notifications.forUser(id, models.NotifTournamentStarted), 1)
	}

	// Registration-order seeding puts 1v2 in slot one and 3v4 in slot two.
	env.playMatch(t, round1[0].ID, 1, 2)

	// The final only exists once both semifinals are in.
	all, err := env.matches.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	env.playMatch(t, round1[1].ID, 3, 4)

	all, err = env.matches.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	final := all[2]
	require.NotNil(t, final.BracketRound)
	assert.Equal(t, 2, *final.BracketRound)
	assert.NotNil(t, final.PlayerByUser(1))
	assert.NotNil(t, final.PlayerByUser(3))
	assert.Len(t, env.notifications.forUser(1, models.NotifTournamentMatchReady), 1)
	assert.Len(t, env.notifications.forUser(3, models.NotifTournamentMatchReady), 1)

	env.playMatch(t, final.ID, 1, 3)

	got, err := env.tournamentSvc.Get(ctx, tournament.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	results, err := env.results.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, results, 4)

	byUser := map[int]*models.TournamentResult{}
	for _, r := range results {
		byUser[r.UserID] = r
	}
	assert.Equal(t, 1, byUser[1].Placement)
	assert.Equal(t, 100, byUser[1].Points)
	assert.Equal(t, 2, byUser[3].Placement)
	assert.Equal(t, 70, byUser[3].Points)

	// Semifinal losers tie for third.
	assert.Equal(t, 3, byUser[2].Placement)
	assert.Equal(t, 50, byUser[2].Points)
	assert.Equal(t, 3, byUser[4].Placement)
	assert.Equal(t, 50, byUser[4].Points)

	champion, err := env.participants.FindByTournamentAndUser(ctx, nil, tournament.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantWinner, champion.Status)
	assert.Equal(t, 2, champion.Wins)
	runnerUp, err := env.participants.FindByTournamentAndUser(ctx, nil, tournament.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantEliminated, runnerUp.Status)

	// Ranked bracket: the champion's profile rating moved up.
	assert.Greater(t, env.users.users[1].EloRating, 1500.0)
	assert.Equal(t, 52, env.users.users[1].GamesPlayed)
	assert.Len(t, env.notifications.forUser(1, models.NotifTournamentResult), 1)

	rows, err := env.tournamentSvc.Leaderboard(ctx, 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, 1, rows[0].UserID)
	assert.Equal(t, 100, rows[0].TotalPoints)
	assert.Equal(t, 1, rows[0].TournamentsWon)
}

func TestFinalizeSkipsAlreadyRecordedResults(t *testing.T) {
	env := newTestEnv()
	for id := 1; id <= 4; id++ {
		env.users.add(id, 1500, 50)
	}
	ctx := context.Background()

	tournament, err := env.tournamentSvc.Create(ctx, 1, defaultTournamentParams(env))
	require.NoError(t, err)
	for id := 2; id <= 4; id++ {
		require.NoError(t, env.tournamentSvc.Join(ctx, tournament.ID, id))
	}
	_, err = env.tournamentSvc.Start(ctx, tournament.ID, 1)
	require.NoError(t, err)

	round1, err := env.matches.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, round1, 2)
	env.playMatch(t, round1[0].ID, 1, 2)
	env.playMatch(t, round1[1].ID, 3, 4)

	// A result row that beat finalization to the table must not stop the
	// remaining rows or the completion stamp.
	require.NoError(t, env.results.Create(ctx, nil, &models.TournamentResult{
		TournamentID: tournament.ID,
		UserID:       2,
		CourtID:      1,
		Placement:    3,
		Losses:       1,
		Points:       50,
	}))

	all, err := env.matches.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	env.playMatch(t, all[2].ID, 1, 3)

	got, err := env.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusCompleted, got.Status)

	results, err := env.results.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, results, 4)
	seen := map[int]int{}
	for _, r := range results {
		seen[r.UserID]++
	}
	for id := 1; id <= 4; id++ {
		assert.Equal(t, 1, seen[id], "user %d", id)
	}
}

func TestCancelTournamentCascades(t *testing.T) {
	env := newTestEnv()
	for id := 1; id <= 4; id++ {
		env.users.add(id, 1500, 20)
	}
	ctx := context.Background()

	tournament, err := env.tournamentSvc.Create(ctx, 1, defaultTournamentParams(env))
	require.NoError(t, err)
	for id := 2; id <= 4; id++ {
		require.NoError(t, env.tournamentSvc.Join(ctx, tournament.ID, id))
	}
	_, err = env.tournamentSvc.Start(ctx, tournament.ID, 1)
	require.NoError(t, err)

	err = env.tournamentSvc.Cancel(ctx, tournament.ID, 2)
	assert.ErrorIs(t, err, ErrNotTournamentHost)

	require.NoError(t, env.tournamentSvc.Cancel(ctx, tournament.ID, 1))

	got, err := env.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusCancelled, got.Status)

	matches, err := env.matches.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	for _, m := range matches {
		assert.Equal(t, models.MatchStatusCancelled, m.Status)
	}
	for id := 1; id <= 4; id++ {
		p, err := env.participants.FindByTournamentAndUser(ctx, nil, tournament.ID, id)
		require.NoError(t, err)
		assert.Equal(t, models.ParticipantWithdrawn, p.Status)
		assert.Len(t, env.notifications.forUser(id, models.NotifTournamentCancelled), 1)
	}

	err = env.tournamentSvc.Cancel(ctx, tournament.ID, 1)
	assert.ErrorIs(t, err, ErrTournamentNotCancellable)
}
