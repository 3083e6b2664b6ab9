package models

import "time"

// TournamentFormat names the bracket shape; only single elimination
// exists in v1.
type TournamentFormat string

const FormatSingleElimination TournamentFormat = "single_elimination"

func (f TournamentFormat) Valid() bool {
	return f == FormatSingleElimination
}

// AccessMode controls how players enter a tournament.
type AccessMode string

const (
	AccessOpen       AccessMode = "open"
	AccessInviteOnly AccessMode = "invite_only"
)

func (m AccessMode) Valid() bool {
	return m == AccessOpen || m == AccessInviteOnly
}

// NoShowPolicy picks how missing check-ins are resolved at start time.
type NoShowPolicy string

const (
	NoShowAutoForfeit NoShowPolicy = "auto_forfeit"
	NoShowHostMark    NoShowPolicy = "host_mark"
)

func (p NoShowPolicy) Valid() bool {
	return p == NoShowAutoForfeit || p == NoShowHostMark
}

// TournamentStatus: upcoming -> live -> completed; upcoming|live -> cancelled.
type TournamentStatus string

const (
	TournamentStatusUpcoming  TournamentStatus = "upcoming"
	TournamentStatusLive      TournamentStatus = "live"
	TournamentStatusCompleted TournamentStatus = "completed"
	TournamentStatusCancelled TournamentStatus = "cancelled"
)

var tournamentTransitions = map[TournamentStatus][]TournamentStatus{
	TournamentStatusUpcoming:  {TournamentStatusLive, TournamentStatusCancelled},
	TournamentStatusLive:      {TournamentStatusCompleted, TournamentStatusCancelled},
	TournamentStatusCompleted: {},
	TournamentStatusCancelled: {},
}

func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	for _, allowed := range tournamentTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

func (s TournamentStatus) Terminal() bool {
	return s == TournamentStatusCompleted || s == TournamentStatusCancelled
}

// Tournament capacity and grace bounds (v1).
const (
	TournamentMaxPlayersFloor   = 2
	TournamentMaxPlayersCeiling = 128
	NoShowGraceMinutesMax       = 180
)

type Tournament struct {
	ID                    int              `json:"id" db:"id"`
	CourtID               int              `json:"court_id" db:"court_id"`
	HostUserID            int              `json:"host_user_id" db:"host_user_id"`
	Name                  string           `json:"name" db:"name"`
	Description           string           `json:"description" db:"description"`
	Format                TournamentFormat `json:"tournament_format" db:"tournament_format"`
	AccessMode            AccessMode       `json:"access_mode" db:"access_mode"`
	MatchType             MatchType        `json:"match_type" db:"match_type"`
	AffectsElo            bool             `json:"affects_elo" db:"affects_elo"`
	Status                TournamentStatus `json:"status" db:"status"`
	StartTime             time.Time        `json:"start_time" db:"start_time"`
	RegistrationCloseTime *time.Time       `json:"registration_close_time,omitempty" db:"registration_close_time"`
	MaxPlayers            int              `json:"max_players" db:"max_players"`
	MinParticipants       int              `json:"min_participants" db:"min_participants"`
	CheckInRequired       bool             `json:"check_in_required" db:"check_in_required"`
	NoShowPolicy          NoShowPolicy     `json:"no_show_policy" db:"no_show_policy"`
	NoShowGraceMinutes    int              `json:"no_show_grace_minutes" db:"no_show_grace_minutes"`
	BracketSize           *int             `json:"bracket_size" db:"bracket_size"`
	TotalRounds           *int             `json:"total_rounds" db:"total_rounds"`
	StartedAt             *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt           *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt           *time.Time       `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt             time.Time        `json:"created_at" db:"created_at"`

	Participants []TournamentParticipant `json:"participants,omitempty" db:"-"`
	Results      []TournamentResult      `json:"results,omitempty" db:"-"`

	// Computed conveniences, populated by the service layer.
	RegisteredCount int                    `json:"registered_count" db:"-"`
	CheckedInCount  int                    `json:"checked_in_count" db:"-"`
	Bracket         *BracketState          `json:"bracket,omitempty" db:"-"`
	MyParticipation *TournamentParticipant `json:"my_participation,omitempty" db:"-"`
}

// GraceDeadline is the moment after which auto_forfeit may mark no-shows.
func (t *Tournament) GraceDeadline() time.Time {
	return t.StartTime.Add(time.Duration(t.NoShowGraceMinutes) * time.Minute)
}

// InviteStatus tracks the invite half of a participant row.
type InviteStatus string

const (
	InviteNone     InviteStatus = "none"
	InviteInvited  InviteStatus = "invited"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
)

// ParticipantStatus tracks a player's standing within one tournament.
type ParticipantStatus string

const (
	ParticipantInvited    ParticipantStatus = "invited"
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantCheckedIn  ParticipantStatus = "checked_in"
	ParticipantNoShow     ParticipantStatus = "no_show"
	ParticipantEliminated ParticipantStatus = "eliminated"
	ParticipantWithdrawn  ParticipantStatus = "withdrawn"
	ParticipantWinner     ParticipantStatus = "winner"
	ParticipantDeclined   ParticipantStatus = "declined"
)

// Active reports whether the row counts toward registration (eligible to
// play once the bracket starts).
func (s ParticipantStatus) Active() bool {
	return s == ParticipantRegistered || s == ParticipantCheckedIn
}

// Excluded reports whether the row is never ranked at finalization.
func (s ParticipantStatus) Excluded() bool {
	return s == ParticipantNoShow || s == ParticipantDeclined || s == ParticipantWithdrawn
}

// TournamentParticipant is unique per (tournament, user).
type TournamentParticipant struct {
	ID              int               `json:"id" db:"id"`
	TournamentID    int               `json:"tournament_id" db:"tournament_id"`
	UserID          int               `json:"user_id" db:"user_id"`
	InvitedByUserID *int              `json:"invited_by_user_id,omitempty" db:"invited_by_user_id"`
	InviteStatus    InviteStatus      `json:"invite_status" db:"invite_status"`
	Status          ParticipantStatus `json:"participant_status" db:"participant_status"`
	Seed            *int              `json:"seed" db:"seed"`
	FinalPlacement  *int              `json:"final_placement" db:"final_placement"`
	Wins            int               `json:"wins" db:"wins"`
	Losses          int               `json:"losses" db:"losses"`
	Points          int               `json:"points" db:"points"`
	CheckedInAt     *time.Time        `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`

	User *User `json:"user,omitempty" db:"-"`
}

// TournamentResult is the immutable placement snapshot written once at
// finalization; unique per (tournament, user).
type TournamentResult struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	UserID       int       `json:"user_id" db:"user_id"`
	CourtID      int       `json:"court_id" db:"court_id"`
	Placement    int       `json:"placement" db:"placement"`
	Wins         int       `json:"wins" db:"wins"`
	Losses       int       `json:"losses" db:"losses"`
	Points       int       `json:"points" db:"points"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	User *User `json:"user,omitempty" db:"-"`
}

// BracketState groups a tournament's matches by round for the wire.
type BracketState struct {
	Rounds       []BracketRound `json:"rounds"`
	TotalMatches int            `json:"total_matches"`
}

type BracketRound struct {
	Round   int     `json:"round"`
	Matches []Match `json:"matches"`
}
