package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rallyrank/rallyrank-api/models"
)

var ErrCourtNotFound = errors.New("court not found")

type CourtRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Court, error)
	List(ctx context.Context, exec SQLExecutor, city string, limit, offset int) ([]*models.Court, error)
}

type postgresCourtRepository struct {
	db *sql.DB
}

func NewPostgresCourtRepository(db *sql.DB) CourtRepository {
	return &postgresCourtRepository{db: db}
}

func (r *postgresCourtRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const courtColumns = `id, name, address, city, latitude, longitude, created_at`

func scanCourt(row interface{ Scan(dest ...interface{}) error }, c *models.Court) error {
	return row.Scan(&c.ID, &c.Name, &c.Address, &c.City, &c.Latitude, &c.Longitude, &c.CreatedAt)
}

func (r *postgresCourtRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Court, error) {
	executor := r.getExecutor(exec)
	c := &models.Court{}
	err := scanCourt(executor.QueryRowContext(ctx,
		`SELECT `+courtColumns+` FROM courts WHERE id = $1`, id), c)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourtNotFound
		}
		return nil, fmt.Errorf("failed to get court %d: %w", id, err)
	}
	return c, nil
}

func (r *postgresCourtRepository) List(ctx context.Context, exec SQLExecutor, city string, limit, offset int) ([]*models.Court, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + courtColumns + ` FROM courts`
	args := []interface{}{}
	if city != "" {
		query += ` WHERE city = $1`
		args = append(args, city)
	}
	query += fmt.Sprintf(` ORDER BY name ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list courts: %w", err)
	}
	defer rows.Close()

	var out []*models.Court
	for rows.Next() {
		c := &models.Court{}
		if err := scanCourt(rows, c); err != nil {
			return nil, fmt.Errorf("failed to scan court: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
