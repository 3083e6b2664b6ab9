package models

import "time"

const DefaultEloRating = 1200.0

// User carries the rating ledger (elo_rating, wins, losses, games_played).
// Those four fields are mutated only by the Elo apply step inside a
// match-completion transaction; nothing else writes them.
type User struct {
	ID           int       `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Name         string    `json:"name" db:"name"`
	Bio          string    `json:"bio" db:"bio"`
	PlayStyle    string    `json:"play_style" db:"play_style"`
	Wins         int       `json:"wins" db:"wins"`
	Losses       int       `json:"losses" db:"losses"`
	GamesPlayed  int       `json:"games_played" db:"games_played"`
	EloRating    float64   `json:"elo_rating" db:"elo_rating"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	PhotoKey *string `json:"-" db:"photo_key"`
	PhotoURL *string `json:"photo_url,omitempty" db:"-"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
