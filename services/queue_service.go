package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

// QueueService manages the per-court ranked waiting list. A player may
// hold at most one queue entry globally; joining a new court silently
// abandons the old one.
type QueueService struct {
	tx       repositories.TxRunner
	queues   repositories.QueueRepository
	checkIns repositories.CheckInRepository
	sweeper  *CourtSweeper
	notifier *Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewQueueService(
	tx repositories.TxRunner,
	queues repositories.QueueRepository,
	checkIns repositories.CheckInRepository,
	sweeper *CourtSweeper,
	notifier *Notifier,
	logger *slog.Logger,
) *QueueService {
	return &QueueService{
		tx:       tx,
		queues:   queues,
		checkIns: checkIns,
		sweeper:  sweeper,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *QueueService) Join(ctx context.Context, userID, courtID int, matchType models.MatchType) (*models.QueueEntry, error) {
	if !matchType.Valid() {
		return nil, ErrInvalidMatchType
	}

	entry := &models.QueueEntry{UserID: userID, CourtID: courtID, MatchType: matchType}
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.sweeper.Sweep(ctx, exec, courtID, s.now()); err != nil {
			return err
		}
		checkedIn, err := s.checkIns.IsCheckedIn(ctx, exec, userID, courtID)
		if err != nil {
			return err
		}
		if !checkedIn {
			return ErrNotCheckedIn
		}
		if err := s.queues.DeleteOtherCourts(ctx, exec, userID, courtID); err != nil {
			return err
		}
		if err := s.queues.Create(ctx, exec, entry); err != nil {
			if errors.Is(err, repositories.ErrQueueEntryConflict) {
				return ErrAlreadyQueued
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRanked(courtID, "queue_joined")
	return entry, nil
}

// Leave is idempotent; leaving a queue you are not in succeeds quietly.
func (s *QueueService) Leave(ctx context.Context, userID, courtID int) error {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.queues.DeleteByUserAndCourt(ctx, exec, userID, courtID)
	})
	if err != nil {
		return err
	}
	s.notifier.BroadcastRanked(courtID, "queue_left")
	return nil
}

// List returns the court's queue in join order. Entries whose owner is no
// longer checked in are pruned first, so the listing only ever shows
// present players.
func (s *QueueService) List(ctx context.Context, courtID int, matchType *models.MatchType) ([]*models.QueueEntry, error) {
	if matchType != nil && !matchType.Valid() {
		return nil, ErrInvalidMatchType
	}
	var entries []*models.QueueEntry
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if _, err := s.queues.PruneNotCheckedIn(ctx, exec, courtID); err != nil {
			return err
		}
		var err error
		entries, err = s.queues.ListByCourt(ctx, exec, courtID, matchType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
