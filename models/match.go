package models

import "time"

// MatchType distinguishes singles from doubles play.
type MatchType string

const (
	MatchTypeSingles MatchType = "singles"
	MatchTypeDoubles MatchType = "doubles"
)

func (t MatchType) Valid() bool {
	return t == MatchTypeSingles || t == MatchTypeDoubles
}

// PlayersPerTeam returns the required team size for the match type.
func (t MatchType) PlayersPerTeam() int {
	if t == MatchTypeSingles {
		return 1
	}
	return 2
}

// MatchStatus is the score-confirmation state machine:
//
//	in_progress -> pending_confirmation -> completed
//	pending_confirmation -> in_progress   (score rejected)
//	in_progress|pending_confirmation -> cancelled (terminal)
type MatchStatus string

const (
	MatchStatusInProgress          MatchStatus = "in_progress"
	MatchStatusPendingConfirmation MatchStatus = "pending_confirmation"
	MatchStatusCompleted           MatchStatus = "completed"
	MatchStatusCancelled           MatchStatus = "cancelled"
)

var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchStatusInProgress:          {MatchStatusPendingConfirmation, MatchStatusCancelled},
	MatchStatusPendingConfirmation: {MatchStatusCompleted, MatchStatusInProgress, MatchStatusCancelled},
	MatchStatusCompleted:           {},
	MatchStatusCancelled:           {},
}

func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	for _, allowed := range matchTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}

// Match is one scored contest. Bracket fields are set only for
// tournament-owned matches.
type Match struct {
	ID           int         `json:"id" db:"id"`
	CourtID      int         `json:"court_id" db:"court_id"`
	TournamentID *int        `json:"tournament_id,omitempty" db:"tournament_id"`
	BracketRound *int        `json:"bracket_round,omitempty" db:"bracket_round"`
	BracketSlot  *int        `json:"bracket_slot,omitempty" db:"bracket_slot"`
	MatchType    MatchType   `json:"match_type" db:"match_type"`
	Status       MatchStatus `json:"status" db:"status"`
	Team1Score   *int        `json:"team1_score" db:"team1_score"`
	Team2Score   *int        `json:"team2_score" db:"team2_score"`
	WinnerTeam   *int        `json:"winner_team" db:"winner_team"`
	SubmittedBy  *int        `json:"submitted_by" db:"submitted_by"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty" db:"completed_at"`

	Players []MatchPlayer `json:"players,omitempty" db:"-"`

	// Computed conveniences for the wire, populated by the service layer.
	ConfirmedCount int           `json:"confirmed_count" db:"-"`
	TotalPlayers   int           `json:"total_players" db:"-"`
	Team1          []MatchPlayer `json:"team1,omitempty" db:"-"`
	Team2          []MatchPlayer `json:"team2,omitempty" db:"-"`
	WinnerUserID   *int          `json:"winner_user_id,omitempty" db:"-"`
}

// MatchPlayer links a player to a match with a team assignment and the Elo
// snapshot taken at creation time.
type MatchPlayer struct {
	ID        int      `json:"id" db:"id"`
	MatchID   int      `json:"match_id" db:"match_id"`
	UserID    int      `json:"user_id" db:"user_id"`
	Team      int      `json:"team" db:"team"`
	EloBefore *float64 `json:"elo_before" db:"elo_before"`
	EloAfter  *float64 `json:"elo_after" db:"elo_after"`
	EloChange *float64 `json:"elo_change" db:"elo_change"`
	Confirmed bool     `json:"confirmed" db:"confirmed"`

	User *User `json:"user,omitempty" db:"-"`
}

// TeamPlayers returns the match players on the given team (1 or 2).
func (m *Match) TeamPlayers(team int) []MatchPlayer {
	var out []MatchPlayer
	for _, p := range m.Players {
		if p.Team == team {
			out = append(out, p)
		}
	}
	return out
}

// PlayerByUser returns the roster row for the user, or nil.
func (m *Match) PlayerByUser(userID int) *MatchPlayer {
	for i := range m.Players {
		if m.Players[i].UserID == userID {
			return &m.Players[i]
		}
	}
	return nil
}

// AllConfirmed reports whether every roster row has confirmed the score.
func (m *Match) AllConfirmed() bool {
	if len(m.Players) == 0 {
		return false
	}
	for _, p := range m.Players {
		if !p.Confirmed {
			return false
		}
	}
	return true
}

// WinnerUser returns the user ID of the winning player (team 1 slot of the
// winning team) for singles bracket matches, or nil when no winner is set.
func (m *Match) WinnerUser() *int {
	if m.WinnerTeam == nil || (*m.WinnerTeam != 1 && *m.WinnerTeam != 2) {
		return nil
	}
	for _, p := range m.Players {
		if p.Team == *m.WinnerTeam {
			uid := p.UserID
			return &uid
		}
	}
	return nil
}

// LoserUser mirrors WinnerUser for the losing team.
func (m *Match) LoserUser() *int {
	if m.WinnerTeam == nil || (*m.WinnerTeam != 1 && *m.WinnerTeam != 2) {
		return nil
	}
	loser := 1
	if *m.WinnerTeam == 1 {
		loser = 2
	}
	for _, p := range m.Players {
		if p.Team == loser {
			uid := p.UserID
			return &uid
		}
	}
	return nil
}
