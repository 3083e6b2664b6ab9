package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rallyrank/rallyrank-api/repositories"
)

// Lazy cleanup windows. There is no background scheduler: expiry runs as a
// side effect of the next write touching the same court.
const (
	LobbyExpiryWindow = 48 * time.Hour
	MatchExpiryWindow = 24 * time.Hour
)

// CourtSweeper applies lazy cleanup for one court inside the caller's
// transaction: expires stale open lobbies, cancels matches stuck in play,
// and prunes queue rows whose owner checked out.
type CourtSweeper struct {
	lobbies repositories.LobbyRepository
	queues  repositories.QueueRepository
	matches repositories.MatchRepository
}

func NewCourtSweeper(lobbies repositories.LobbyRepository, queues repositories.QueueRepository, matches repositories.MatchRepository) *CourtSweeper {
	return &CourtSweeper{lobbies: lobbies, queues: queues, matches: matches}
}

func (s *CourtSweeper) Sweep(ctx context.Context, exec repositories.SQLExecutor, courtID int, now time.Time) error {
	if _, err := s.lobbies.ExpireOlderThan(ctx, exec, courtID, now.Add(-LobbyExpiryWindow)); err != nil {
		return fmt.Errorf("sweep lobbies: %w", err)
	}
	if _, err := s.matches.CancelStaleInProgress(ctx, exec, courtID, now.Add(-MatchExpiryWindow)); err != nil {
		return fmt.Errorf("sweep matches: %w", err)
	}
	if _, err := s.queues.PruneNotCheckedIn(ctx, exec, courtID); err != nil {
		return fmt.Errorf("sweep queue: %w", err)
	}
	return nil
}
