package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rallyrank/rallyrank-api/models"
)

var ErrCheckInNotFound = errors.New("active check-in not found")

type CheckInRepository interface {
	Create(ctx context.Context, exec SQLExecutor, checkIn *models.CheckIn) error
	// CloseActive checks the user out everywhere. Returns the number of rows
	// closed; zero is not an error.
	CloseActive(ctx context.Context, exec SQLExecutor, userID int) (int64, error)
	ActiveByUser(ctx context.Context, exec SQLExecutor, userID int) (*models.CheckIn, error)
	IsCheckedIn(ctx context.Context, exec SQLExecutor, userID, courtID int) (bool, error)
	// ActiveUserIDs reports which of the given users hold an open check-in at
	// the court.
	ActiveUserIDs(ctx context.Context, exec SQLExecutor, courtID int, userIDs []int) (map[int]bool, error)
	ListActiveByCourt(ctx context.Context, exec SQLExecutor, courtID int) ([]*models.CheckIn, error)
}

type postgresCheckInRepository struct {
	db *sql.DB
}

func NewPostgresCheckInRepository(db *sql.DB) CheckInRepository {
	return &postgresCheckInRepository{db: db}
}

func (r *postgresCheckInRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresCheckInRepository) Create(ctx context.Context, exec SQLExecutor, ci *models.CheckIn) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, `
		INSERT INTO check_ins (user_id, court_id, looking_for_game)
		VALUES ($1, $2, $3)
		RETURNING id, checked_in_at`,
		ci.UserID, ci.CourtID, ci.LookingForGame,
	).Scan(&ci.ID, &ci.CheckedInAt)
	if err != nil {
		return fmt.Errorf("failed to create check-in: %w", err)
	}
	return nil
}

func (r *postgresCheckInRepository) CloseActive(ctx context.Context, exec SQLExecutor, userID int) (int64, error) {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE check_ins SET checked_out_at = NOW()
		WHERE user_id = $1 AND checked_out_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to close check-ins for user %d: %w", userID, err)
	}
	return result.RowsAffected()
}

func (r *postgresCheckInRepository) ActiveByUser(ctx context.Context, exec SQLExecutor, userID int) (*models.CheckIn, error) {
	executor := r.getExecutor(exec)
	ci := &models.CheckIn{}
	err := executor.QueryRowContext(ctx, `
		SELECT id, user_id, court_id, checked_in_at, checked_out_at, looking_for_game
		FROM check_ins
		WHERE user_id = $1 AND checked_out_at IS NULL
		ORDER BY checked_in_at DESC
		LIMIT 1`, userID,
	).Scan(&ci.ID, &ci.UserID, &ci.CourtID, &ci.CheckedInAt, &ci.CheckedOutAt, &ci.LookingForGame)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCheckInNotFound
		}
		return nil, fmt.Errorf("failed to get active check-in: %w", err)
	}
	return ci, nil
}

func (r *postgresCheckInRepository) IsCheckedIn(ctx context.Context, exec SQLExecutor, userID, courtID int) (bool, error) {
	executor := r.getExecutor(exec)
	var exists bool
	err := executor.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM check_ins
			WHERE user_id = $1 AND court_id = $2 AND checked_out_at IS NULL
		)`, userID, courtID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return exists, nil
}

func (r *postgresCheckInRepository) ActiveUserIDs(ctx context.Context, exec SQLExecutor, courtID int, userIDs []int) (map[int]bool, error) {
	executor := r.getExecutor(exec)
	out := make(map[int]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := executor.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM check_ins
		WHERE court_id = $1 AND checked_out_at IS NULL AND user_id = ANY($2)`,
		courtID, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query active check-ins: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan check-in user id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *postgresCheckInRepository) ListActiveByCourt(ctx context.Context, exec SQLExecutor, courtID int) ([]*models.CheckIn, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT ci.id, ci.user_id, ci.court_id, ci.checked_in_at, ci.checked_out_at, ci.looking_for_game,
			u.id, u.username, u.name, u.elo_rating, u.wins, u.losses, u.games_played
		FROM check_ins ci
		JOIN users u ON u.id = ci.user_id
		WHERE ci.court_id = $1 AND ci.checked_out_at IS NULL
		ORDER BY ci.checked_in_at ASC`, courtID)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins for court %d: %w", courtID, err)
	}
	defer rows.Close()

	var out []*models.CheckIn
	for rows.Next() {
		ci := &models.CheckIn{User: &models.User{}}
		err := rows.Scan(
			&ci.ID, &ci.UserID, &ci.CourtID, &ci.CheckedInAt, &ci.CheckedOutAt, &ci.LookingForGame,
			&ci.User.ID, &ci.User.Username, &ci.User.Name, &ci.User.EloRating,
			&ci.User.Wins, &ci.User.Losses, &ci.User.GamesPlayed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}
