package models

import "time"

// QueueEntry is a checked-in player waiting for a ranked match at a court.
// A user holds at most one entry system-wide: joining a queue deletes any
// entry at another court inside the same transaction.
type QueueEntry struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	CourtID   int       `json:"court_id" db:"court_id"`
	MatchType MatchType `json:"match_type" db:"match_type"`
	JoinedAt  time.Time `json:"joined_at" db:"joined_at"`

	User *User `json:"user,omitempty" db:"-"`
}
