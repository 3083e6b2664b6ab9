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
	ErrUserNotFound         = errors.New("user not found")
	ErrUserEmailConflict    = errors.New("email address is already in use")
	ErrUserUsernameConflict = errors.New("username is already in use")
)

const userColumns = `id, username, email, password_hash, name, bio, play_style,
	wins, losses, games_played, elo_rating, photo_key, created_at`

type UserRepository interface {
	Create(ctx context.Context, exec SQLExecutor, user *models.User) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error)
	GetByEmail(ctx context.Context, exec SQLExecutor, email string) (*models.User, error)
	// ResolveUsers loads every listed user; callers treat a short map as
	// "one or more players not found".
	ResolveUsers(ctx context.Context, exec SQLExecutor, ids []int) (map[int]*models.User, error)
	UpdateProfile(ctx context.Context, exec SQLExecutor, user *models.User) error
	UpdatePhotoKey(ctx context.Context, exec SQLExecutor, userID int, photoKey *string) error
	// ApplyRatingChange performs the rating-ledger mutation for one player
	// after a completed match. It is only ever called from inside the
	// match-completion transaction.
	ApplyRatingChange(ctx context.Context, exec SQLExecutor, userID int, newRating float64, won bool) error
	ListByEloRating(ctx context.Context, exec SQLExecutor, limit int) ([]*models.User, error)
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func scanUser(row interface{ Scan(dest ...interface{}) error }, u *models.User) error {
	return row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Name, &u.Bio, &u.PlayStyle,
		&u.Wins, &u.Losses, &u.GamesPlayed, &u.EloRating, &u.PhotoKey, &u.CreatedAt,
	)
}

func (r *postgresUserRepository) Create(ctx context.Context, exec SQLExecutor, u *models.User) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO users (username, email, password_hash, name, bio, play_style, elo_rating)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, wins, losses, games_played, created_at`

	err := executor.QueryRowContext(ctx, query,
		u.Username, u.Email, u.PasswordHash, u.Name, u.Bio, u.PlayStyle, u.EloRating,
	).Scan(&u.ID, &u.Wins, &u.Losses, &u.GamesPlayed, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "users_email_key":
				return ErrUserEmailConflict
			case "users_username_key":
				return ErrUserUsernameConflict
			}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error) {
	executor := r.getExecutor(exec)
	u := &models.User{}
	err := scanUser(executor.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id), u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return u, nil
}

func (r *postgresUserRepository) GetByEmail(ctx context.Context, exec SQLExecutor, email string) (*models.User, error) {
	executor := r.getExecutor(exec)
	u := &models.User{}
	err := scanUser(executor.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email), u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

func (r *postgresUserRepository) ResolveUsers(ctx context.Context, exec SQLExecutor, ids []int) (map[int]*models.User, error) {
	executor := r.getExecutor(exec)
	if len(ids) == 0 {
		return map[int]*models.User{}, nil
	}
	rows, err := executor.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}
	defer rows.Close()

	out := make(map[int]*models.User, len(ids))
	for rows.Next() {
		u := &models.User{}
		if err := scanUser(rows, u); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (r *postgresUserRepository) UpdateProfile(ctx context.Context, exec SQLExecutor, u *models.User) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE users SET name = $1, bio = $2, play_style = $3 WHERE id = $4`,
		u.Name, u.Bio, u.PlayStyle, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) UpdatePhotoKey(ctx context.Context, exec SQLExecutor, userID int, photoKey *string) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE users SET photo_key = $1 WHERE id = $2`, photoKey, userID)
	if err != nil {
		return fmt.Errorf("failed to update user photo key: %w", err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) ApplyRatingChange(ctx context.Context, exec SQLExecutor, userID int, newRating float64, won bool) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE users SET
			elo_rating = $1,
			games_played = games_played + 1,
			wins = wins + CASE WHEN $2 THEN 1 ELSE 0 END,
			losses = losses + CASE WHEN $2 THEN 0 ELSE 1 END
		WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, newRating, won, userID)
	if err != nil {
		return fmt.Errorf("failed to apply rating change for user %d: %w", userID, err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) ListByEloRating(ctx context.Context, exec SQLExecutor, limit int) ([]*models.User, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE games_played > 0
		 ORDER BY elo_rating DESC, games_played DESC, id ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by rating: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := scanUser(rows, u); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
