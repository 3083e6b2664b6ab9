package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/rallyrank/rallyrank-api/brackets"
	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

// In-memory repository fakes. They mirror the Postgres implementations'
// contracts closely enough for the service protocols: conflict errors on
// unique keys, not-found sentinels, and idempotent deletes.

type fakeTxRunner struct{}

func (fakeTxRunner) RunInTx(_ context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

// --- users ---

type fakeUserRepo struct {
	users  map[int]*models.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]*models.User{}, nextID: 1}
}

func (r *fakeUserRepo) add(id int, rating float64, gamesPlayed int) *models.User {
	u := &models.User{
		ID:          id,
		Username:    "player" + string(rune('a'+id%26)),
		EloRating:   rating,
		GamesPlayed: gamesPlayed,
		CreatedAt:   time.Now(),
	}
	r.users[id] = u
	if id >= r.nextID {
		r.nextID = id + 1
	}
	return u
}

func (r *fakeUserRepo) Create(_ context.Context, _ repositories.SQLExecutor, user *models.User) error {
	for _, u := range r.users {
		if u.Email == user.Email {
			return repositories.ErrUserEmailConflict
		}
		if u.Username == user.Username {
			return repositories.ErrUserUsernameConflict
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, _ repositories.SQLExecutor, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) ResolveUsers(_ context.Context, _ repositories.SQLExecutor, ids []int) (map[int]*models.User, error) {
	out := make(map[int]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			copied := *u
			out[id] = &copied
		}
	}
	return out, nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, _ repositories.SQLExecutor, user *models.User) error {
	stored, ok := r.users[user.ID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	stored.Name, stored.Bio, stored.PlayStyle = user.Name, user.Bio, user.PlayStyle
	return nil
}

func (r *fakeUserRepo) UpdatePhotoKey(_ context.Context, _ repositories.SQLExecutor, userID int, photoKey *string) error {
	stored, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	stored.PhotoKey = photoKey
	return nil
}

func (r *fakeUserRepo) ApplyRatingChange(_ context.Context, _ repositories.SQLExecutor, userID int, newRating float64, won bool) error {
	stored, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	stored.EloRating = newRating
	stored.GamesPlayed++
	if won {
		stored.Wins++
	} else {
		stored.Losses++
	}
	return nil
}

func (r *fakeUserRepo) ListByEloRating(_ context.Context, _ repositories.SQLExecutor, limit int) ([]*models.User, error) {
	var out []*models.User
	for _, u := range r.users {
		if u.GamesPlayed == 0 {
			continue
		}
		copied := *u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EloRating > out[j].EloRating })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- courts ---

type fakeCourtRepo struct {
	courts map[int]*models.Court
}

func newFakeCourtRepo() *fakeCourtRepo {
	return &fakeCourtRepo{courts: map[int]*models.Court{}}
}

func (r *fakeCourtRepo) add(id int, name string) *models.Court {
	c := &models.Court{ID: id, Name: name, CreatedAt: time.Now()}
	r.courts[id] = c
	return c
}

func (r *fakeCourtRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Court, error) {
	c, ok := r.courts[id]
	if !ok {
		return nil, repositories.ErrCourtNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCourtRepo) List(_ context.Context, _ repositories.SQLExecutor, city string, limit, offset int) ([]*models.Court, error) {
	var out []*models.Court
	for _, c := range r.courts {
		if city != "" && (c.City == nil || *c.City != city) {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- check-ins ---

type fakeCheckInRepo struct {
	active map[int]*models.CheckIn // by user id
	nextID int
}

func newFakeCheckInRepo() *fakeCheckInRepo {
	return &fakeCheckInRepo{active: map[int]*models.CheckIn{}, nextID: 1}
}

func (r *fakeCheckInRepo) checkIn(userID, courtID int) {
	r.active[userID] = &models.CheckIn{ID: r.nextID, UserID: userID, CourtID: courtID, CheckedInAt: time.Now()}
	r.nextID++
}

func (r *fakeCheckInRepo) Create(_ context.Context, _ repositories.SQLExecutor, checkIn *models.CheckIn) error {
	checkIn.ID = r.nextID
	r.nextID++
	checkIn.CheckedInAt = time.Now()
	stored := *checkIn
	r.active[checkIn.UserID] = &stored
	return nil
}

func (r *fakeCheckInRepo) CloseActive(_ context.Context, _ repositories.SQLExecutor, userID int) (int64, error) {
	if _, ok := r.active[userID]; !ok {
		return 0, nil
	}
	delete(r.active, userID)
	return 1, nil
}

func (r *fakeCheckInRepo) ActiveByUser(_ context.Context, _ repositories.SQLExecutor, userID int) (*models.CheckIn, error) {
	ci, ok := r.active[userID]
	if !ok {
		return nil, repositories.ErrCheckInNotFound
	}
	copied := *ci
	return &copied, nil
}

func (r *fakeCheckInRepo) IsCheckedIn(_ context.Context, _ repositories.SQLExecutor, userID, courtID int) (bool, error) {
	ci, ok := r.active[userID]
	return ok && ci.CourtID == courtID, nil
}

func (r *fakeCheckInRepo) ActiveUserIDs(_ context.Context, _ repositories.SQLExecutor, courtID int, userIDs []int) (map[int]bool, error) {
	out := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		if ci, ok := r.active[id]; ok && ci.CourtID == courtID {
			out[id] = true
		}
	}
	return out, nil
}

func (r *fakeCheckInRepo) ListActiveByCourt(_ context.Context, _ repositories.SQLExecutor, courtID int) ([]*models.CheckIn, error) {
	var out []*models.CheckIn
	for _, ci := range r.active {
		if ci.CourtID == courtID {
			copied := *ci
			out = append(out, &copied)
		}
	}
	return out, nil
}

// --- notifications ---

type fakeNotificationRepo struct {
	rows   []*models.Notification
	nextID int
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{nextID: 1}
}

func (r *fakeNotificationRepo) forUser(userID int, kind models.NotificationKind) []*models.Notification {
	var out []*models.Notification
	for _, n := range r.rows {
		if n.UserID == userID && n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *fakeNotificationRepo) Create(_ context.Context, _ repositories.SQLExecutor, n *models.Notification) error {
	n.ID = r.nextID
	r.nextID++
	n.CreatedAt = time.Now()
	stored := *n
	r.rows = append(r.rows, &stored)
	return nil
}

func (r *fakeNotificationRepo) ListByUser(_ context.Context, _ repositories.SQLExecutor, userID int, unreadOnly bool, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range r.rows {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		copied := *n
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) UnreadCount(_ context.Context, _ repositories.SQLExecutor, userID int) (int, error) {
	count := 0
	for _, n := range r.rows {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, _ repositories.SQLExecutor, id, userID int) error {
	for _, n := range r.rows {
		if n.ID == id && n.UserID == userID {
			n.Read = true
			return nil
		}
	}
	return repositories.ErrNotificationNotFound
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, _ repositories.SQLExecutor, userID int) error {
	for _, n := range r.rows {
		if n.UserID == userID {
			n.Read = true
		}
	}
	return nil
}

// --- queue ---

type fakeQueueRepo struct {
	entries  []*models.QueueEntry
	checkIns *fakeCheckInRepo
	nextID   int
}

func newFakeQueueRepo(checkIns *fakeCheckInRepo) *fakeQueueRepo {
	return &fakeQueueRepo{checkIns: checkIns, nextID: 1}
}

func (r *fakeQueueRepo) find(userID, courtID int) *models.QueueEntry {
	for _, e := range r.entries {
		if e.UserID == userID && e.CourtID == courtID {
			return e
		}
	}
	return nil
}

func (r *fakeQueueRepo) Create(_ context.Context, _ repositories.SQLExecutor, entry *models.QueueEntry) error {
	if r.find(entry.UserID, entry.CourtID) != nil {
		return repositories.ErrQueueEntryConflict
	}
	entry.ID = r.nextID
	r.nextID++
	entry.JoinedAt = time.Now()
	stored := *entry
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *fakeQueueRepo) FindByUserAndCourt(_ context.Context, _ repositories.SQLExecutor, userID, courtID int) (*models.QueueEntry, error) {
	e := r.find(userID, courtID)
	if e == nil {
		return nil, repositories.ErrQueueEntryNotFound
	}
	copied := *e
	return &copied, nil
}

func (r *fakeQueueRepo) remove(keep func(*models.QueueEntry) bool) int {
	var kept []*models.QueueEntry
	removed := 0
	for _, e := range r.entries {
		if keep(e) {
			kept = append(kept, e)
		} else {
			removed++
		}
	}
	r.entries = kept
	return removed
}

func (r *fakeQueueRepo) DeleteByUserAndCourt(_ context.Context, _ repositories.SQLExecutor, userID, courtID int) error {
	r.remove(func(e *models.QueueEntry) bool { return e.UserID != userID || e.CourtID != courtID })
	return nil
}

func (r *fakeQueueRepo) DeleteOtherCourts(_ context.Context, _ repositories.SQLExecutor, userID, courtID int) error {
	r.remove(func(e *models.QueueEntry) bool { return e.UserID != userID || e.CourtID == courtID })
	return nil
}

func (r *fakeQueueRepo) DeleteForUsers(_ context.Context, _ repositories.SQLExecutor, courtID int, userIDs []int) error {
	members := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		members[id] = true
	}
	r.remove(func(e *models.QueueEntry) bool { return e.CourtID != courtID || !members[e.UserID] })
	return nil
}

func (r *fakeQueueRepo) PruneNotCheckedIn(_ context.Context, _ repositories.SQLExecutor, courtID int) (int64, error) {
	removed := r.remove(func(e *models.QueueEntry) bool {
		if e.CourtID != courtID {
			return true
		}
		ci, ok := r.checkIns.active[e.UserID]
		return ok && ci.CourtID == courtID
	})
	return int64(removed), nil
}

func (r *fakeQueueRepo) ListByCourt(_ context.Context, _ repositories.SQLExecutor, courtID int, matchType *models.MatchType) ([]*models.QueueEntry, error) {
	var out []*models.QueueEntry
	for _, e := range r.entries {
		if e.CourtID != courtID {
			continue
		}
		if matchType != nil && e.MatchType != *matchType {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

// --- lobbies ---

type fakeLobbyRepo struct {
	lobbies      map[int]*models.Lobby
	nextID       int
	nextPlayerID int
}

func newFakeLobbyRepo() *fakeLobbyRepo {
	return &fakeLobbyRepo{lobbies: map[int]*models.Lobby{}, nextID: 1, nextPlayerID: 1}
}

func (r *fakeLobbyRepo) Create(_ context.Context, _ repositories.SQLExecutor, lobby *models.Lobby) error {
	lobby.ID = r.nextID
	r.nextID++
	lobby.CreatedAt = time.Now()
	stored := *lobby
	stored.Players = nil
	r.lobbies[lobby.ID] = &stored
	return nil
}

func (r *fakeLobbyRepo) CreatePlayer(_ context.Context, _ repositories.SQLExecutor, player *models.LobbyPlayer) error {
	lobby, ok := r.lobbies[player.LobbyID]
	if !ok {
		return repositories.ErrLobbyNotFound
	}
	for _, p := range lobby.Players {
		if p.UserID == player.UserID {
			return repositories.ErrLobbyPlayerConflict
		}
	}
	player.ID = r.nextPlayerID
	r.nextPlayerID++
	lobby.Players = append(lobby.Players, *player)
	return nil
}

func (r *fakeLobbyRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Lobby, error) {
	lobby, ok := r.lobbies[id]
	if !ok {
		return nil, repositories.ErrLobbyNotFound
	}
	copied := *lobby
	copied.Players = append([]models.LobbyPlayer(nil), lobby.Players...)
	return &copied, nil
}

func (r *fakeLobbyRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.LobbyStatus) error {
	lobby, ok := r.lobbies[id]
	if !ok {
		return repositories.ErrLobbyNotFound
	}
	lobby.Status = status
	return nil
}

func (r *fakeLobbyRepo) SetStarted(_ context.Context, _ repositories.SQLExecutor, id, matchID int) error {
	lobby, ok := r.lobbies[id]
	if !ok {
		return repositories.ErrLobbyNotFound
	}
	lobby.Status = models.LobbyStatusStarted
	lobby.StartedMatchID = &matchID
	return nil
}

func (r *fakeLobbyRepo) UpdatePlayerResponse(_ context.Context, _ repositories.SQLExecutor, lobbyID, userID int, acceptance models.AcceptanceStatus, respondedAt time.Time) error {
	lobby, ok := r.lobbies[lobbyID]
	if !ok {
		return repositories.ErrLobbyNotFound
	}
	for i := range lobby.Players {
		if lobby.Players[i].UserID == userID {
			lobby.Players[i].Acceptance = acceptance
			lobby.Players[i].RespondedAt = &respondedAt
			return nil
		}
	}
	return repositories.ErrLobbyPlayerNotFound
}

func (r *fakeLobbyRepo) listOpen(keep func(*models.Lobby) bool) []*models.Lobby {
	var out []*models.Lobby
	for _, lobby := range r.lobbies {
		if lobby.Status.Terminal() || !keep(lobby) {
			continue
		}
		copied := *lobby
		copied.Players = append([]models.LobbyPlayer(nil), lobby.Players...)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeLobbyRepo) ListOpenByCourt(_ context.Context, _ repositories.SQLExecutor, courtID int) ([]*models.Lobby, error) {
	return r.listOpen(func(l *models.Lobby) bool { return l.CourtID == courtID }), nil
}

func (r *fakeLobbyRepo) ListOpenForUser(_ context.Context, _ repositories.SQLExecutor, userID int) ([]*models.Lobby, error) {
	return r.listOpen(func(l *models.Lobby) bool {
		for _, p := range l.Players {
			if p.UserID == userID {
				return true
			}
		}
		return false
	}), nil
}

func (r *fakeLobbyRepo) ExpireOlderThan(_ context.Context, _ repositories.SQLExecutor, courtID int, cutoff time.Time) (int64, error) {
	var expired int64
	for _, lobby := range r.lobbies {
		if lobby.CourtID == courtID && !lobby.Status.Terminal() && lobby.CreatedAt.Before(cutoff) {
			lobby.Status = models.LobbyStatusExpired
			expired++
		}
	}
	return expired, nil
}

// --- matches ---

type fakeMatchRepo struct {
	matches      map[int]*models.Match
	players      map[int][]*models.MatchPlayer
	nextID       int
	nextPlayerID int
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: map[int]*models.Match{}, players: map[int][]*models.MatchPlayer{}, nextID: 1, nextPlayerID: 1}
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	if match.TournamentID != nil && match.BracketRound != nil && match.BracketSlot != nil {
		for _, m := range r.matches {
			if m.TournamentID != nil && *m.TournamentID == *match.TournamentID &&
				m.BracketRound != nil && *m.BracketRound == *match.BracketRound &&
				m.BracketSlot != nil && *m.BracketSlot == *match.BracketSlot {
				return repositories.ErrBracketSlotConflict
			}
		}
	}
	match.ID = r.nextID
	r.nextID++
	match.CreatedAt = time.Now()
	stored := *match
	stored.Players = nil
	r.matches[match.ID] = &stored
	return nil
}

func (r *fakeMatchRepo) CreatePlayer(_ context.Context, _ repositories.SQLExecutor, player *models.MatchPlayer) error {
	player.ID = r.nextPlayerID
	r.nextPlayerID++
	stored := *player
	r.players[player.MatchID] = append(r.players[player.MatchID], &stored)
	return nil
}

func (r *fakeMatchRepo) get(id int) (*models.Match, error) {
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := *m
	copied.Players = nil
	for _, p := range r.players[id] {
		copied.Players = append(copied.Players, *p)
	}
	return &copied, nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.get(id)
}

func (r *fakeMatchRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.MatchStatus) error {
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status = status
	return nil
}

func (r *fakeMatchRepo) RecordScore(_ context.Context, _ repositories.SQLExecutor, id int, team1Score, team2Score, winnerTeam, submittedBy int) error {
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	s1, s2, w, sub := team1Score, team2Score, winnerTeam, submittedBy
	m.Team1Score, m.Team2Score, m.WinnerTeam, m.SubmittedBy = &s1, &s2, &w, &sub
	m.Status = models.MatchStatusPendingConfirmation
	return nil
}

func (r *fakeMatchRepo) ClearScore(_ context.Context, _ repositories.SQLExecutor, id int) error {
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Team1Score, m.Team2Score, m.WinnerTeam, m.SubmittedBy = nil, nil, nil, nil
	m.Status = models.MatchStatusInProgress
	for _, p := range r.players[id] {
		p.Confirmed = false
	}
	return nil
}

func (r *fakeMatchRepo) SetPlayerConfirmed(_ context.Context, _ repositories.SQLExecutor, matchID, userID int, confirmed bool) error {
	for _, p := range r.players[matchID] {
		if p.UserID == userID {
			p.Confirmed = confirmed
			return nil
		}
	}
	return repositories.ErrMatchPlayerNotFound
}

func (r *fakeMatchRepo) Complete(_ context.Context, _ repositories.SQLExecutor, id int, completedAt time.Time) error {
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status = models.MatchStatusCompleted
	m.CompletedAt = &completedAt
	return nil
}

func (r *fakeMatchRepo) UpdatePlayerElo(_ context.Context, _ repositories.SQLExecutor, matchID, userID int, before, after, change float64) error {
	for _, p := range r.players[matchID] {
		if p.UserID == userID {
			b, a, c := before, after, change
			p.EloBefore, p.EloAfter, p.EloChange = &b, &a, &c
			return nil
		}
	}
	return repositories.ErrMatchPlayerNotFound
}

func (r *fakeMatchRepo) FindByBracketSlot(_ context.Context, _ repositories.SQLExecutor, tournamentID, round, slot int) (*models.Match, error) {
	for id, m := range r.matches {
		if m.TournamentID != nil && *m.TournamentID == tournamentID &&
			m.BracketRound != nil && *m.BracketRound == round &&
			m.BracketSlot != nil && *m.BracketSlot == slot {
			return r.get(id)
		}
	}
	return nil, repositories.ErrMatchNotFound
}

func (r *fakeMatchRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.Match, error) {
	var out []*models.Match
	for id, m := range r.matches {
		if m.TournamentID != nil && *m.TournamentID == tournamentID {
			copied, _ := r.get(id)
			out = append(out, copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeMatchRepo) CancelActiveByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (int64, error) {
	var cancelled int64
	for _, m := range r.matches {
		if m.TournamentID != nil && *m.TournamentID == tournamentID && !m.Status.Terminal() {
			m.Status = models.MatchStatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (r *fakeMatchRepo) CancelStaleInProgress(_ context.Context, _ repositories.SQLExecutor, courtID int, cutoff time.Time) (int64, error) {
	var cancelled int64
	for _, m := range r.matches {
		if m.CourtID == courtID && m.TournamentID == nil && !m.Status.Terminal() && m.CreatedAt.Before(cutoff) {
			m.Status = models.MatchStatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (r *fakeMatchRepo) ListActiveByCourt(_ context.Context, _ repositories.SQLExecutor, courtID int) ([]*models.Match, error) {
	var out []*models.Match
	for id, m := range r.matches {
		if m.CourtID == courtID && !m.Status.Terminal() {
			copied, _ := r.get(id)
			out = append(out, copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeMatchRepo) ListForUser(_ context.Context, _ repositories.SQLExecutor, userID int, statuses []models.MatchStatus, limit int) ([]*models.Match, error) {
	wanted := make(map[models.MatchStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []*models.Match
	for id, m := range r.matches {
		if !wanted[m.Status] {
			continue
		}
		for _, p := range r.players[id] {
			if p.UserID == userID {
				copied, _ := r.get(id)
				out = append(out, copied)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- tournaments ---

type fakeTournamentRepo struct {
	tournaments map[int]*models.Tournament
	nextID      int
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{tournaments: map[int]*models.Tournament{}, nextID: 1}
}

func (r *fakeTournamentRepo) Create(_ context.Context, _ repositories.SQLExecutor, t *models.Tournament) error {
	t.ID = r.nextID
	r.nextID++
	t.CreatedAt = time.Now()
	stored := *t
	r.tournaments[t.ID] = &stored
	return nil
}

func (r *fakeTournamentRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTournamentRepo) List(_ context.Context, _ repositories.SQLExecutor, filter repositories.TournamentFilter) ([]*models.Tournament, error) {
	wanted := make(map[models.TournamentStatus]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		wanted[s] = true
	}
	var out []*models.Tournament
	for _, t := range r.tournaments {
		if filter.CourtID != 0 && t.CourtID != filter.CourtID {
			continue
		}
		if len(wanted) > 0 && !wanted[t.Status] {
			continue
		}
		copied := *t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTournamentRepo) SetStarted(_ context.Context, _ repositories.SQLExecutor, id, bracketSize, totalRounds int, startedAt time.Time) error {
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = models.TournamentStatusLive
	t.BracketSize, t.TotalRounds, t.StartedAt = &bracketSize, &totalRounds, &startedAt
	return nil
}

func (r *fakeTournamentRepo) SetCompleted(_ context.Context, _ repositories.SQLExecutor, id int, completedAt time.Time) error {
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = models.TournamentStatusCompleted
	t.CompletedAt = &completedAt
	return nil
}

func (r *fakeTournamentRepo) SetCancelled(_ context.Context, _ repositories.SQLExecutor, id int, cancelledAt time.Time) error {
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = models.TournamentStatusCancelled
	t.CancelledAt = &cancelledAt
	return nil
}

// --- participants ---

type fakeParticipantRepo struct {
	rows   []*models.TournamentParticipant
	nextID int
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{nextID: 1}
}

func (r *fakeParticipantRepo) find(tournamentID, userID int) *models.TournamentParticipant {
	for _, p := range r.rows {
		if p.TournamentID == tournamentID && p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *fakeParticipantRepo) byID(id int) *models.TournamentParticipant {
	for _, p := range r.rows {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *fakeParticipantRepo) Create(_ context.Context, _ repositories.SQLExecutor, p *models.TournamentParticipant) error {
	if r.find(p.TournamentID, p.UserID) != nil {
		return repositories.ErrParticipantConflict
	}
	p.ID = r.nextID
	r.nextID++
	p.CreatedAt = time.Now()
	stored := *p
	r.rows = append(r.rows, &stored)
	return nil
}

func (r *fakeParticipantRepo) FindByTournamentAndUser(_ context.Context, _ repositories.SQLExecutor, tournamentID, userID int) (*models.TournamentParticipant, error) {
	p := r.find(tournamentID, userID)
	if p == nil {
		return nil, repositories.ErrParticipantNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakeParticipantRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.TournamentParticipant, error) {
	var out []*models.TournamentParticipant
	for _, p := range r.rows {
		if p.TournamentID == tournamentID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeParticipantRepo) UpdateInviteStatus(_ context.Context, _ repositories.SQLExecutor, id int, invite models.InviteStatus, status models.ParticipantStatus) error {
	p := r.byID(id)
	if p == nil {
		return repositories.ErrParticipantNotFound
	}
	p.InviteStatus, p.Status = invite, status
	return nil
}

func (r *fakeParticipantRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.ParticipantStatus) error {
	p := r.byID(id)
	if p == nil {
		return repositories.ErrParticipantNotFound
	}
	p.Status = status
	return nil
}

func (r *fakeParticipantRepo) SetCheckedIn(_ context.Context, _ repositories.SQLExecutor, id int, at time.Time) error {
	p := r.byID(id)
	if p == nil {
		return repositories.ErrParticipantNotFound
	}
	p.Status = models.ParticipantCheckedIn
	p.CheckedInAt = &at
	return nil
}

func (r *fakeParticipantRepo) SetSeed(_ context.Context, _ repositories.SQLExecutor, id, seed int) error {
	p := r.byID(id)
	if p == nil {
		return repositories.ErrParticipantNotFound
	}
	s := seed
	p.Seed = &s
	return nil
}

func (r *fakeParticipantRepo) RecordMatchOutcome(_ context.Context, _ repositories.SQLExecutor, tournamentID, userID int, won bool) error {
	p := r.find(tournamentID, userID)
	if p == nil {
		return repositories.ErrParticipantNotFound
	}
	if won {
		p.Wins++
	} else {
		p.Losses++
	}
	return nil
}

func (r *fakeParticipantRepo) ApplyFinal(_ context.Context, _ repositories.SQLExecutor, id, placement, points int, status models.ParticipantStatus) error {
	p := r.byID(id)
	if p == nil {
		return repositories.ErrParticipantNotFound
	}
	pl := placement
	p.FinalPlacement, p.Points, p.Status = &pl, points, status
	return nil
}

func (r *fakeParticipantRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	for i, p := range r.rows {
		if p.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return repositories.ErrParticipantNotFound
}

func (r *fakeParticipantRepo) UserIDsByStatus(_ context.Context, _ repositories.SQLExecutor, tournamentID int, statuses []models.ParticipantStatus) ([]int, error) {
	wanted := make(map[models.ParticipantStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []int
	for _, p := range r.rows {
		if p.TournamentID == tournamentID && wanted[p.Status] {
			out = append(out, p.UserID)
		}
	}
	return out, nil
}

// --- results ---

type fakeResultRepo struct {
	rows   []*models.TournamentResult
	nextID int
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{nextID: 1}
}

func (r *fakeResultRepo) Create(_ context.Context, _ repositories.SQLExecutor, result *models.TournamentResult) error {
	for _, existing := range r.rows {
		if existing.TournamentID == result.TournamentID && existing.UserID == result.UserID {
			return repositories.ErrResultConflict
		}
	}
	result.ID = r.nextID
	r.nextID++
	result.CreatedAt = time.Now()
	stored := *result
	r.rows = append(r.rows, &stored)
	return nil
}

func (r *fakeResultRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.TournamentResult, error) {
	var out []*models.TournamentResult
	for _, res := range r.rows {
		if res.TournamentID == tournamentID {
			copied := *res
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Placement < out[j].Placement })
	return out, nil
}

func (r *fakeResultRepo) ListByUser(_ context.Context, _ repositories.SQLExecutor, userID, limit int) ([]*models.TournamentResult, error) {
	var out []*models.TournamentResult
	for _, res := range r.rows {
		if res.UserID == userID {
			copied := *res
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeResultRepo) Leaderboard(_ context.Context, _ repositories.SQLExecutor, courtID, limit int) ([]*repositories.LeaderboardRow, error) {
	totals := map[int]*repositories.LeaderboardRow{}
	for _, res := range r.rows {
		if courtID != 0 && res.CourtID != courtID {
			continue
		}
		row, ok := totals[res.UserID]
		if !ok {
			row = &repositories.LeaderboardRow{UserID: res.UserID, BestPlacement: res.Placement}
			totals[res.UserID] = row
		}
		row.TotalPoints += res.Points
		row.TournamentsTotal++
		if res.Placement == 1 {
			row.TournamentsWon++
		}
		if res.Placement < row.BestPlacement {
			row.BestPlacement = res.Placement
		}
	}
	var out []*repositories.LeaderboardRow
	for _, row := range totals {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPoints > out[j].TotalPoints })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- environment ---

// testEnv wires every service against the in-memory fakes the way
// cmd/main.go wires them against Postgres.
type testEnv struct {
	users         *fakeUserRepo
	courts        *fakeCourtRepo
	checkIns      *fakeCheckInRepo
	notifications *fakeNotificationRepo
	queues        *fakeQueueRepo
	lobbies       *fakeLobbyRepo
	matches       *fakeMatchRepo
	tournaments   *fakeTournamentRepo
	participants  *fakeParticipantRepo
	results       *fakeResultRepo

	queueSvc      *QueueService
	lobbySvc      *LobbyService
	matchSvc      *MatchService
	bracketSvc    *BracketService
	tournamentSvc *TournamentService
	presenceSvc   *PresenceService

	now time.Time
}

func newTestEnv() *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		users:         newFakeUserRepo(),
		courts:        newFakeCourtRepo(),
		checkIns:      newFakeCheckInRepo(),
		notifications: newFakeNotificationRepo(),
		lobbies:       newFakeLobbyRepo(),
		matches:       newFakeMatchRepo(),
		tournaments:   newFakeTournamentRepo(),
		participants:  newFakeParticipantRepo(),
		results:       newFakeResultRepo(),
		now:           time.Date(2026, 7, 14, 18, 0, 0, 0, time.UTC),
	}
	env.queues = newFakeQueueRepo(env.checkIns)

	tx := fakeTxRunner{}
	notifier := NewNotifier(env.notifications, nil, logger)
	sweeper := NewCourtSweeper(env.lobbies, env.queues, env.matches)
	clock := func() time.Time { return env.now }

	env.matchSvc = NewMatchService(tx, env.matches, env.users, env.tournaments, notifier, DefaultEloConfig(), logger)
	env.matchSvc.now = clock
	env.queueSvc = NewQueueService(tx, env.queues, env.checkIns, sweeper, notifier, logger)
	env.queueSvc.now = clock
	env.lobbySvc = NewLobbyService(tx, env.lobbies, env.queues, env.checkIns, env.users, env.matchSvc, sweeper, notifier, logger)
	env.lobbySvc.now = clock
	env.bracketSvc = NewBracketService(env.matchSvc, env.matches, env.participants, env.tournaments, env.results, notifier, brackets.DefaultPointsConfig(), logger)
	env.bracketSvc.now = clock
	env.matchSvc.SetBracketAdvancer(env.bracketSvc)
	env.tournamentSvc = NewTournamentService(tx, env.tournaments, env.participants, env.results, env.matches, env.checkIns, env.users, env.courts, env.bracketSvc, notifier, logger)
	env.tournamentSvc.now = clock
	env.presenceSvc = NewPresenceService(tx, env.checkIns, env.courts, env.queues, notifier, logger)
	env.presenceSvc.now = clock

	env.courts.add(1, "Riverside Courts")
	return env
}
