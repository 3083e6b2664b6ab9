package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rallyrank/rallyrank-api/models"
)

var (
	ErrQueueEntryNotFound = errors.New("queue entry not found")
	ErrQueueEntryConflict = errors.New("user is already in the queue for this court")
)

type QueueRepository interface {
	Create(ctx context.Context, exec SQLExecutor, entry *models.QueueEntry) error
	FindByUserAndCourt(ctx context.Context, exec SQLExecutor, userID, courtID int) (*models.QueueEntry, error)
	// DeleteByUserAndCourt is idempotent; leaving a queue you are not in is
	// not an error.
	DeleteByUserAndCourt(ctx context.Context, exec SQLExecutor, userID, courtID int) error
	// DeleteOtherCourts removes the user's entries at every court except the
	// given one. Enforces the one-queue-per-user rule at join time.
	DeleteOtherCourts(ctx context.Context, exec SQLExecutor, userID, courtID int) error
	DeleteForUsers(ctx context.Context, exec SQLExecutor, courtID int, userIDs []int) error
	// PruneNotCheckedIn drops entries whose owner no longer holds an open
	// check-in at the court. Called lazily from queue read and match paths.
	PruneNotCheckedIn(ctx context.Context, exec SQLExecutor, courtID int) (int64, error)
	ListByCourt(ctx context.Context, exec SQLExecutor, courtID int, matchType *models.MatchType) ([]*models.QueueEntry, error)
}

type postgresQueueRepository struct {
	db *sql.DB
}

func NewPostgresQueueRepository(db *sql.DB) QueueRepository {
	return &postgresQueueRepository{db: db}
}

func (r *postgresQueueRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresQueueRepository) Create(ctx context.Context, exec SQLExecutor, entry *models.QueueEntry) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, `
		INSERT INTO queue_entries (user_id, court_id, match_type)
		VALUES ($1, $2, $3)
		RETURNING id, joined_at`,
		entry.UserID, entry.CourtID, entry.MatchType,
	).Scan(&entry.ID, &entry.JoinedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrQueueEntryConflict
		}
		return fmt.Errorf("failed to create queue entry: %w", err)
	}
	return nil
}

func (r *postgresQueueRepository) FindByUserAndCourt(ctx context.Context, exec SQLExecutor, userID, courtID int) (*models.QueueEntry, error) {
	executor := r.getExecutor(exec)
	entry := &models.QueueEntry{}
	err := executor.QueryRowContext(ctx, `
		SELECT id, user_id, court_id, match_type, joined_at
		FROM queue_entries
		WHERE user_id = $1 AND court_id = $2`, userID, courtID,
	).Scan(&entry.ID, &entry.UserID, &entry.CourtID, &entry.MatchType, &entry.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, fmt.Errorf("failed to find queue entry: %w", err)
	}
	return entry, nil
}

func (r *postgresQueueRepository) DeleteByUserAndCourt(ctx context.Context, exec SQLExecutor, userID, courtID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE user_id = $1 AND court_id = $2`, userID, courtID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

func (r *postgresQueueRepository) DeleteOtherCourts(ctx context.Context, exec SQLExecutor, userID, courtID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE user_id = $1 AND court_id <> $2`, userID, courtID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entries at other courts: %w", err)
	}
	return nil
}

func (r *postgresQueueRepository) DeleteForUsers(ctx context.Context, exec SQLExecutor, courtID int, userIDs []int) error {
	if len(userIDs) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE court_id = $1 AND user_id = ANY($2)`,
		courtID, pq.Array(userIDs))
	if err != nil {
		return fmt.Errorf("failed to delete queue entries for matched users: %w", err)
	}
	return nil
}

func (r *postgresQueueRepository) PruneNotCheckedIn(ctx context.Context, exec SQLExecutor, courtID int) (int64, error) {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		DELETE FROM queue_entries q
		WHERE q.court_id = $1
		AND NOT EXISTS (
			SELECT 1 FROM check_ins ci
			WHERE ci.user_id = q.user_id
			AND ci.court_id = q.court_id
			AND ci.checked_out_at IS NULL
		)`, courtID)
	if err != nil {
		return 0, fmt.Errorf("failed to prune queue for court %d: %w", courtID, err)
	}
	return result.RowsAffected()
}

func (r *postgresQueueRepository) ListByCourt(ctx context.Context, exec SQLExecutor, courtID int, matchType *models.MatchType) ([]*models.QueueEntry, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT q.id, q.user_id, q.court_id, q.match_type, q.joined_at,
			u.id, u.username, u.name, u.elo_rating, u.wins, u.losses, u.games_played
		FROM queue_entries q
		JOIN users u ON u.id = q.user_id
		WHERE q.court_id = $1`
	args := []interface{}{courtID}
	if matchType != nil {
		query += ` AND q.match_type = $2`
		args = append(args, *matchType)
	}
	query += ` ORDER BY q.joined_at ASC, q.id ASC`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue for court %d: %w", courtID, err)
	}
	defer rows.Close()

	var out []*models.QueueEntry
	for rows.Next() {
		entry := &models.QueueEntry{User: &models.User{}}
		err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.CourtID, &entry.MatchType, &entry.JoinedAt,
			&entry.User.ID, &entry.User.Username, &entry.User.Name, &entry.User.EloRating,
			&entry.User.Wins, &entry.User.Losses, &entry.User.GamesPlayed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
