package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rallyrank/rallyrank-api/models"
)

var ErrResultConflict = errors.New("tournament result already recorded for user")

// LeaderboardRow aggregates a user's tournament results at one court or
// across all courts.
type LeaderboardRow struct {
	UserID           int          `json:"user_id"`
	TotalPoints      int          `json:"total_points"`
	TournamentsWon   int          `json:"tournaments_won"`
	TournamentsTotal int          `json:"tournaments_played"`
	BestPlacement    int          `json:"best_placement"`
	User             *models.User `json:"user,omitempty"`
}

type ResultRepository interface {
	Create(ctx context.Context, exec SQLExecutor, result *models.TournamentResult) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.TournamentResult, error)
	ListByUser(ctx context.Context, exec SQLExecutor, userID, limit int) ([]*models.TournamentResult, error)
	// Leaderboard ranks users by accumulated tournament points. courtID of
	// zero means all courts.
	Leaderboard(ctx context.Context, exec SQLExecutor, courtID, limit int) ([]*LeaderboardRow, error)
}

type postgresResultRepository struct {
	db *sql.DB
}

func NewPostgresResultRepository(db *sql.DB) ResultRepository {
	return &postgresResultRepository{db: db}
}

func (r *postgresResultRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresResultRepository) Create(ctx context.Context, exec SQLExecutor, res *models.TournamentResult) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, `
		INSERT INTO tournament_results (tournament_id, user_id, court_id, placement, wins, losses, points)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		res.TournamentID, res.UserID, res.CourtID, res.Placement, res.Wins, res.Losses, res.Points,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrResultConflict
		}
		return fmt.Errorf("failed to create tournament result: %w", err)
	}
	return nil
}

const resultColumns = `id, tournament_id, user_id, court_id, placement, wins, losses, points, created_at`

func scanResult(row interface{ Scan(dest ...interface{}) error }, res *models.TournamentResult) error {
	return row.Scan(
		&res.ID, &res.TournamentID, &res.UserID, &res.CourtID,
		&res.Placement, &res.Wins, &res.Losses, &res.Points, &res.CreatedAt,
	)
}

func (r *postgresResultRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.TournamentResult, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT r.id, r.tournament_id, r.user_id, r.court_id, r.placement, r.wins, r.losses, r.points, r.created_at,
			u.id, u.username, u.name, u.elo_rating, u.wins, u.losses, u.games_played
		FROM tournament_results r
		JOIN users u ON u.id = r.user_id
		WHERE r.tournament_id = $1
		ORDER BY r.placement ASC, r.user_id ASC`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournament results: %w", err)
	}
	defer rows.Close()

	var out []*models.TournamentResult
	for rows.Next() {
		res := &models.TournamentResult{User: &models.User{}}
		err := rows.Scan(
			&res.ID, &res.TournamentID, &res.UserID, &res.CourtID,
			&res.Placement, &res.Wins, &res.Losses, &res.Points, &res.CreatedAt,
			&res.User.ID, &res.User.Username, &res.User.Name, &res.User.EloRating,
			&res.User.Wins, &res.User.Losses, &res.User.GamesPlayed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tournament result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *postgresResultRepository) ListByUser(ctx context.Context, exec SQLExecutor, userID, limit int) ([]*models.TournamentResult, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT `+resultColumns+` FROM tournament_results
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.TournamentResult
	for rows.Next() {
		res := &models.TournamentResult{}
		if err := scanResult(rows, res); err != nil {
			return nil, fmt.Errorf("failed to scan tournament result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *postgresResultRepository) Leaderboard(ctx context.Context, exec SQLExecutor, courtID, limit int) ([]*LeaderboardRow, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT r.user_id,
			SUM(r.points) AS total_points,
			COUNT(*) FILTER (WHERE r.placement = 1) AS tournaments_won,
			COUNT(*) AS tournaments_played,
			MIN(r.placement) AS best_placement,
			u.id, u.username, u.name, u.elo_rating, u.wins, u.losses, u.games_played
		FROM tournament_results r
		JOIN users u ON u.id = r.user_id`
	args := []interface{}{}
	if courtID > 0 {
		args = append(args, courtID)
		query += fmt.Sprintf(` WHERE r.court_id = $%d`, len(args))
	}
	query += `
		GROUP BY r.user_id, u.id
		ORDER BY total_points DESC, tournaments_won DESC, best_placement ASC, r.user_id ASC`
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tournament leaderboard: %w", err)
	}
	defer rows.Close()

	var out []*LeaderboardRow
	for rows.Next() {
		row := &LeaderboardRow{User: &models.User{}}
		err := rows.Scan(
			&row.UserID, &row.TotalPoints, &row.TournamentsWon, &row.TournamentsTotal, &row.BestPlacement,
			&row.User.ID, &row.User.Username, &row.User.Name, &row.User.EloRating,
			&row.User.Wins, &row.User.Losses, &row.User.GamesPlayed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
