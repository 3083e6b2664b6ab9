package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

// PresenceService manages court check-ins, the presence signal every
// ranked flow depends on. A player is checked in at one court at a time;
// checking in elsewhere closes the previous check-in.
type PresenceService struct {
	tx       repositories.TxRunner
	checkIns repositories.CheckInRepository
	courts   repositories.CourtRepository
	queues   repositories.QueueRepository
	notifier *Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewPresenceService(
	tx repositories.TxRunner,
	checkIns repositories.CheckInRepository,
	courts repositories.CourtRepository,
	queues repositories.QueueRepository,
	notifier *Notifier,
	logger *slog.Logger,
) *PresenceService {
	return &PresenceService{
		tx:       tx,
		checkIns: checkIns,
		courts:   courts,
		queues:   queues,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *PresenceService) CheckIn(ctx context.Context, userID, courtID int, lookingForGame bool) (*models.CheckIn, error) {
	checkIn := &models.CheckIn{UserID: userID, CourtID: courtID, LookingForGame: lookingForGame}
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if _, err := s.courts.GetByID(ctx, exec, courtID); err != nil {
			if errors.Is(err, repositories.ErrCourtNotFound) {
				return ErrCourtNotFound
			}
			return err
		}
		// Moving courts closes the old check-in and abandons stale queue
		// entries there; the next write at that court prunes them.
		if _, err := s.checkIns.CloseActive(ctx, exec, userID); err != nil {
			return err
		}
		return s.checkIns.Create(ctx, exec, checkIn)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRanked(courtID, "player_checked_in")
	return checkIn, nil
}

// CheckOut is idempotent; checking out while not checked in succeeds.
func (s *PresenceService) CheckOut(ctx context.Context, userID int) error {
	var courtID int
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		active, err := s.checkIns.ActiveByUser(ctx, exec, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrCheckInNotFound) {
				return nil
			}
			return err
		}
		courtID = active.CourtID
		if _, err := s.checkIns.CloseActive(ctx, exec, userID); err != nil {
			return err
		}
		return s.queues.DeleteByUserAndCourt(ctx, exec, userID, courtID)
	})
	if err != nil {
		return err
	}

	if courtID != 0 {
		s.notifier.BroadcastRanked(courtID, "player_checked_out")
	}
	return nil
}

// Current returns the user's active check-in, or nil when absent.
func (s *PresenceService) Current(ctx context.Context, userID int) (*models.CheckIn, error) {
	active, err := s.checkIns.ActiveByUser(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrCheckInNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return active, nil
}

func (s *PresenceService) IsCheckedIn(ctx context.Context, userID, courtID int) (bool, error) {
	return s.checkIns.IsCheckedIn(ctx, nil, userID, courtID)
}

// ListCourtPlayers returns everyone currently checked in at the court.
func (s *PresenceService) ListCourtPlayers(ctx context.Context, courtID int) ([]*models.CheckIn, error) {
	if _, err := s.courts.GetByID(ctx, nil, courtID); err != nil {
		if errors.Is(err, repositories.ErrCourtNotFound) {
			return nil, ErrCourtNotFound
		}
		return nil, err
	}
	return s.checkIns.ListActiveByCourt(ctx, nil, courtID)
}
