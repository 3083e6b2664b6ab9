package models

import "time"

// LobbySource records how a lobby proposal came to exist.
type LobbySource string

const (
	LobbySourceQueue              LobbySource = "queue"
	LobbySourceCourtChallenge     LobbySource = "court_challenge"
	LobbySourceScheduledChallenge LobbySource = "scheduled_challenge"
	LobbySourceManual             LobbySource = "manual"
)

func (s LobbySource) Valid() bool {
	switch s {
	case LobbySourceQueue, LobbySourceCourtChallenge, LobbySourceScheduledChallenge, LobbySourceManual:
		return true
	}
	return false
}

// LobbyStatus is derived from the players' acceptance states while the
// proposal is open; started/declined/expired are terminal.
type LobbyStatus string

const (
	LobbyStatusPendingAcceptance LobbyStatus = "pending_acceptance"
	LobbyStatusReady             LobbyStatus = "ready"
	LobbyStatusStarted           LobbyStatus = "started"
	LobbyStatusDeclined          LobbyStatus = "declined"
	LobbyStatusExpired           LobbyStatus = "expired"
)

var lobbyTransitions = map[LobbyStatus][]LobbyStatus{
	LobbyStatusPendingAcceptance: {LobbyStatusReady, LobbyStatusDeclined, LobbyStatusExpired},
	LobbyStatusReady:             {LobbyStatusPendingAcceptance, LobbyStatusStarted, LobbyStatusDeclined, LobbyStatusExpired},
	LobbyStatusStarted:           {},
	LobbyStatusDeclined:          {},
	LobbyStatusExpired:           {},
}

func (s LobbyStatus) CanTransitionTo(next LobbyStatus) bool {
	for _, allowed := range lobbyTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

func (s LobbyStatus) Terminal() bool {
	return s == LobbyStatusStarted || s == LobbyStatusDeclined || s == LobbyStatusExpired
}

// AcceptanceStatus is a single player's response to a lobby proposal.
type AcceptanceStatus string

const (
	AcceptancePending  AcceptanceStatus = "pending"
	AcceptanceAccepted AcceptanceStatus = "accepted"
	AcceptanceDeclined AcceptanceStatus = "declined"
)

// Lobby is a proposed match awaiting multi-party acceptance.
type Lobby struct {
	ID             int         `json:"id" db:"id"`
	CourtID        int         `json:"court_id" db:"court_id"`
	CreatedByID    int         `json:"created_by_id" db:"created_by_id"`
	MatchType      MatchType   `json:"match_type" db:"match_type"`
	Source         LobbySource `json:"source" db:"source"`
	ScheduledFor   *time.Time  `json:"scheduled_for,omitempty" db:"scheduled_for"`
	Status         LobbyStatus `json:"status" db:"status"`
	StartedMatchID *int        `json:"started_match_id,omitempty" db:"started_match_id"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`

	Players []LobbyPlayer `json:"players,omitempty" db:"-"`

	// Computed conveniences, populated by the service layer.
	AcceptedCount int           `json:"accepted_count" db:"-"`
	TotalPlayers  int           `json:"total_players" db:"-"`
	Team1         []LobbyPlayer `json:"team1,omitempty" db:"-"`
	Team2         []LobbyPlayer `json:"team2,omitempty" db:"-"`
}

// LobbyPlayer is one invited participant's team slot and response.
type LobbyPlayer struct {
	ID          int              `json:"id" db:"id"`
	LobbyID     int              `json:"lobby_id" db:"lobby_id"`
	UserID      int              `json:"user_id" db:"user_id"`
	Team        int              `json:"team" db:"team"`
	Acceptance  AcceptanceStatus `json:"acceptance_status" db:"acceptance_status"`
	RespondedAt *time.Time       `json:"responded_at,omitempty" db:"responded_at"`

	User *User `json:"user,omitempty" db:"-"`
}

// DeriveLobbyStatus computes the open-lobby status from player responses:
// any decline forces declined, unanimous acceptance means ready, anything
// else stays pending_acceptance. Terminal statuses are never derived.
func DeriveLobbyStatus(players []LobbyPlayer) LobbyStatus {
	if len(players) == 0 {
		return LobbyStatusPendingAcceptance
	}
	allAccepted := true
	for _, p := range players {
		switch p.Acceptance {
		case AcceptanceDeclined:
			return LobbyStatusDeclined
		case AcceptanceAccepted:
		default:
			allAccepted = false
		}
	}
	if allAccepted {
		return LobbyStatusReady
	}
	return LobbyStatusPendingAcceptance
}

// PlayerByUser returns the lobby row for the user, or nil.
func (l *Lobby) PlayerByUser(userID int) *LobbyPlayer {
	for i := range l.Players {
		if l.Players[i].UserID == userID {
			return &l.Players[i]
		}
	}
	return nil
}

// AcceptedTeamIDs returns the user IDs of accepted players on each team,
// preserving roster order.
func (l *Lobby) AcceptedTeamIDs() (team1, team2 []int) {
	for _, p := range l.Players {
		if p.Acceptance != AcceptanceAccepted {
			continue
		}
		if p.Team == 1 {
			team1 = append(team1, p.UserID)
		} else {
			team2 = append(team2, p.UserID)
		}
	}
	return team1, team2
}
