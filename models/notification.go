package models

import "time"

// NotificationKind enumerates every notification the ranked engine emits.
type NotificationKind string

const (
	NotifChallengeInvite      NotificationKind = "ranked_challenge_invite"
	NotifChallengeReady       NotificationKind = "ranked_challenge_ready"
	NotifChallengeDeclined    NotificationKind = "ranked_challenge_declined"
	NotifMatchConfirm         NotificationKind = "match_confirm"
	NotifMatchResult          NotificationKind = "match_result"
	NotifMatchRejected        NotificationKind = "match_rejected"
	NotifMatchCancelled       NotificationKind = "match_cancelled"
	NotifTournamentInvite     NotificationKind = "tournament_invite"
	NotifTournamentInviteRSVP NotificationKind = "tournament_invite_response"
	NotifTournamentStarted    NotificationKind = "tournament_started"
	NotifTournamentMatchReady NotificationKind = "tournament_match_ready"
	NotifTournamentResult     NotificationKind = "tournament_result"
	NotifTournamentWithdrawal NotificationKind = "tournament_withdrawal"
	NotifTournamentCancelled  NotificationKind = "tournament_cancelled"
)

type Notification struct {
	ID          int              `json:"id" db:"id"`
	UserID      int              `json:"user_id" db:"user_id"`
	Kind        NotificationKind `json:"kind" db:"kind"`
	Content     string           `json:"content" db:"content"`
	ReferenceID *int             `json:"reference_id,omitempty" db:"reference_id"`
	Read        bool             `json:"read" db:"read"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}
