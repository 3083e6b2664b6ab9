package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rallyrank/rallyrank-api/models"
)

var ErrTournamentNotFound = errors.New("tournament not found")

// TournamentFilter narrows List. Zero values mean "no filter".
type TournamentFilter struct {
	CourtID  int
	Statuses []models.TournamentStatus
	Limit    int
	Offset   int
}

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, exec SQLExecutor, filter TournamentFilter) ([]*models.Tournament, error)
	// SetStarted records bracket geometry and the live transition atomically.
	SetStarted(ctx context.Context, exec SQLExecutor, id, bracketSize, totalRounds int, startedAt time.Time) error
	SetCompleted(ctx context.Context, exec SQLExecutor, id int, completedAt time.Time) error
	SetCancelled(ctx context.Context, exec SQLExecutor, id int, cancelledAt time.Time) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `id, court_id, host_user_id, name, description, tournament_format,
	access_mode, match_type, affects_elo, status, start_time, registration_close_time,
	max_players, min_participants, check_in_required, no_show_policy, no_show_grace_minutes,
	bracket_size, total_rounds, started_at, completed_at, cancelled_at, created_at`

func scanTournament(row interface{ Scan(dest ...interface{}) error }, t *models.Tournament) error {
	return row.Scan(
		&t.ID, &t.CourtID, &t.HostUserID, &t.Name, &t.Description, &t.Format,
		&t.AccessMode, &t.MatchType, &t.AffectsElo, &t.Status, &t.StartTime, &t.RegistrationCloseTime,
		&t.MaxPlayers, &t.MinParticipants, &t.CheckInRequired, &t.NoShowPolicy, &t.NoShowGraceMinutes,
		&t.BracketSize, &t.TotalRounds, &t.StartedAt, &t.CompletedAt, &t.CancelledAt, &t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, `
		INSERT INTO tournaments (
			court_id, host_user_id, name, description, tournament_format,
			access_mode, match_type, affects_elo, status, start_time, registration_close_time,
			max_players, min_participants, check_in_required, no_show_policy, no_show_grace_minutes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at`,
		t.CourtID, t.HostUserID, t.Name, t.Description, t.Format,
		t.AccessMode, t.MatchType, t.AffectsElo, t.Status, t.StartTime, t.RegistrationCloseTime,
		t.MaxPlayers, t.MinParticipants, t.CheckInRequired, t.NoShowPolicy, t.NoShowGraceMinutes,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	t := &models.Tournament{}
	err := scanTournament(executor.QueryRowContext(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, exec SQLExecutor, filter TournamentFilter) ([]*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE 1=1`
	args := []interface{}{}
	if filter.CourtID > 0 {
		args = append(args, filter.CourtID)
		query += fmt.Sprintf(` AND court_id = $%d`, len(args))
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (`
		for i, s := range filter.Statuses {
			if i > 0 {
				query += `, `
			}
			args = append(args, s)
			query += fmt.Sprintf(`$%d`, len(args))
		}
		query += `)`
	}
	query += ` ORDER BY start_time ASC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(` OFFSET $%d`, len(args))

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	var out []*models.Tournament
	for rows.Next() {
		t := &models.Tournament{}
		if err := scanTournament(rows, t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *postgresTournamentRepository) SetStarted(ctx context.Context, exec SQLExecutor, id, bracketSize, totalRounds int, startedAt time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE tournaments SET status = $1, bracket_size = $2, total_rounds = $3, started_at = $4
		WHERE id = $5`,
		models.TournamentStatusLive, bracketSize, totalRounds, startedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark tournament live: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetCompleted(ctx context.Context, exec SQLExecutor, id int, completedAt time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET status = $1, completed_at = $2 WHERE id = $3`,
		models.TournamentStatusCompleted, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark tournament completed: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetCancelled(ctx context.Context, exec SQLExecutor, id int, cancelledAt time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET status = $1, cancelled_at = $2 WHERE id = $3`,
		models.TournamentStatusCancelled, cancelledAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark tournament cancelled: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
