package models

import "time"

// Court is a physical pickleball location. The directory import pipeline is
// external; the ranked engine only reads courts.
type Court struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   *string   `json:"address,omitempty" db:"address"`
	City      *string   `json:"city,omitempty" db:"city"`
	Latitude  *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64  `json:"longitude,omitempty" db:"longitude"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
