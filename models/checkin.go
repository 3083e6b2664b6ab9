package models

import "time"

// CheckIn records a user's presence at a court. A check-in is active while
// checked_out_at is NULL; queue membership and lobby starts require one.
type CheckIn struct {
	ID             int        `json:"id" db:"id"`
	UserID         int        `json:"user_id" db:"user_id"`
	CourtID        int        `json:"court_id" db:"court_id"`
	CheckedInAt    time.Time  `json:"checked_in_at" db:"checked_in_at"`
	CheckedOutAt   *time.Time `json:"checked_out_at,omitempty" db:"checked_out_at"`
	LookingForGame bool       `json:"looking_for_game" db:"looking_for_game"`

	User *User `json:"user,omitempty" db:"-"`
}
