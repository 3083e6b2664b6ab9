package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Shared errors used across services and the HTTP mapping layer. Four
// families: validation (bad input), not found, precondition failed (wrong
// state for the requested transition), and forbidden (caller lacks the
// required role). All are expected, recoverable-by-caller conditions.
var (
	// Validation
	ErrValidationFailed     = errors.New("validation failed")
	ErrInvalidMatchType     = errors.New("invalid match type")
	ErrInvalidTeamSize      = errors.New("team size does not match the match type")
	ErrDuplicatePlayers     = errors.New("a player appears more than once in the roster")
	ErrInvalidScore         = errors.New("scores must be integers between 0 and 99")
	ErrTieScore             = errors.New("tie scores are not allowed")
	ErrInvalidScheduledTime = errors.New("scheduled time must be in the future")
	ErrPasswordTooShort     = errors.New("password is too short")
	ErrInvalidCredentials   = errors.New("invalid email or password")

	// Not found
	ErrUserNotFound        = errors.New("user not found")
	ErrCourtNotFound       = errors.New("court not found")
	ErrLobbyNotFound       = errors.New("lobby not found")
	ErrMatchNotFound       = errors.New("match not found")
	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrQueueEntryNotFound  = errors.New("queue entry not found")

	// Preconditions
	ErrNotCheckedIn             = errors.New("user is not checked in at this court")
	ErrAlreadyQueued            = errors.New("user is already queued at this court")
	ErrNotInQueue               = errors.New("one or more players are not in the queue for this court")
	ErrLobbyNotPending          = errors.New("lobby is no longer awaiting responses")
	ErrLobbyNotReady            = errors.New("lobby is not ready to start")
	ErrMatchNotInProgress       = errors.New("match is not in progress")
	ErrNotPendingConfirmation   = errors.New("match is not awaiting confirmation")
	ErrMatchAlreadyTerminal     = errors.New("match has already finished")
	ErrRegistrationClosed       = errors.New("tournament registration is closed")
	ErrTournamentFull           = errors.New("tournament registration is full")
	ErrTournamentNotUpcoming    = errors.New("tournament has already started or finished")
	ErrTournamentNotLive        = errors.New("tournament is not live")
	ErrTournamentNotCancellable = errors.New("tournament can no longer be cancelled")
	ErrAlreadyRegistered        = errors.New("user is already registered for this tournament")
	ErrInviteRequired           = errors.New("tournament is invite only")
	ErrInviteAlreadyDeclined    = errors.New("invite was declined; a new invite is required to join")
	ErrNoPendingInvite          = errors.New("no pending invite for this tournament")
	ErrAlreadyCheckedIn         = errors.New("participant is already checked in")
	ErrNoShowBeforeStartOnly    = errors.New("no-shows can only be marked before the bracket starts")

	// Forbidden
	ErrNotMatchParticipant = errors.New("user is not a participant of this match")
	ErrNotLobbyParticipant = errors.New("user is not a participant of this lobby")
	ErrNotAcceptedPlayer   = errors.New("only accepted players can start the lobby")
	ErrNotTournamentHost   = errors.New("only the tournament host can perform this action")
	ErrHostCannotLeave     = errors.New("the host cannot leave their own tournament")
	ErrCreatorNotOnTeam    = errors.New("the challenge creator must be on one of the teams")
)

// MissingCheckInsError names the exact players blocking an operation that
// requires court presence, so callers can prompt them directly.
type MissingCheckInsError struct {
	UserIDs       []int
	GraceDeadline *time.Time
}

func (e *MissingCheckInsError) Error() string {
	ids := make([]string, len(e.UserIDs))
	for i, id := range e.UserIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	msg := fmt.Sprintf("players not checked in: %s", strings.Join(ids, ", "))
	if e.GraceDeadline != nil {
		msg += fmt.Sprintf(" (no-show grace ends %s)", e.GraceDeadline.Format(time.RFC3339))
	}
	return msg
}

// NotYetStartableError reports how long until a scheduled lobby may start.
type NotYetStartableError struct {
	SecondsRemaining int64
}

func (e *NotYetStartableError) Error() string {
	return fmt.Sprintf("scheduled start is %d seconds away", e.SecondsRemaining)
}

// BracketSizeError reports an eligible count that cannot seed a single
// elimination bracket.
type BracketSizeError struct {
	EligibleCount int
}

func (e *BracketSizeError) Error() string {
	return fmt.Sprintf("eligible participant count %d is not a power of two", e.EligibleCount)
}

// InsufficientParticipantsError reports a start attempt below the floor.
type InsufficientParticipantsError struct {
	Eligible int
	Minimum  int
}

func (e *InsufficientParticipantsError) Error() string {
	return fmt.Sprintf("%d eligible participants, %d required", e.Eligible, e.Minimum)
}
