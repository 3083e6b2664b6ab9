package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rallyrank/rallyrank-api/models"
)

var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchPlayerNotFound = errors.New("match player not found")
	ErrBracketSlotConflict = errors.New("bracket slot already holds a match")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	CreatePlayer(ctx context.Context, exec SQLExecutor, player *models.MatchPlayer) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus) error
	// RecordScore writes the submitted score and moves the match to
	// pending_confirmation.
	RecordScore(ctx context.Context, exec SQLExecutor, id int, team1Score, team2Score, winnerTeam, submittedBy int) error
	// ClearScore resets a rejected submission back to in_progress and wipes
	// every player's confirmation.
	ClearScore(ctx context.Context, exec SQLExecutor, id int) error
	SetPlayerConfirmed(ctx context.Context, exec SQLExecutor, matchID, userID int, confirmed bool) error
	Complete(ctx context.Context, exec SQLExecutor, id int, completedAt time.Time) error
	UpdatePlayerElo(ctx context.Context, exec SQLExecutor, matchID, userID int, before, after, change float64) error
	FindByBracketSlot(ctx context.Context, exec SQLExecutor, tournamentID, round, slot int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Match, error)
	// CancelActiveByTournament cancels every unfinished match of a cancelled
	// tournament.
	CancelActiveByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int64, error)
	// CancelStaleInProgress cancels non-tournament matches stuck in play
	// since before the cutoff.
	CancelStaleInProgress(ctx context.Context, exec SQLExecutor, courtID int, cutoff time.Time) (int64, error)
	ListActiveByCourt(ctx context.Context, exec SQLExecutor, courtID int) ([]*models.Match, error)
	ListForUser(ctx context.Context, exec SQLExecutor, userID int, statuses []models.MatchStatus, limit int) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, court_id, tournament_id, bracket_round, bracket_slot, match_type,
	status, team1_score, team2_score, winner_team, submitted_by, created_at, completed_at`

func scanMatch(row interface{ Scan(dest ...interface{}) error }, m *models.Match) error {
	return row.Scan(
		&m.ID, &m.CourtID, &m.TournamentID, &m.BracketRound, &m.BracketSlot, &m.MatchType,
		&m.Status, &m.Team1Score, &m.Team2Score, &m.WinnerTeam, &m.SubmittedBy,
		&m.CreatedAt, &m.CompletedAt,
	)
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, `
		INSERT INTO matches (court_id, tournament_id, bracket_round, bracket_slot, match_type, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		m.CourtID, m.TournamentID, m.BracketRound, m.BracketSlot, m.MatchType, m.Status,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrBracketSlotConflict
		}
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) CreatePlayer(ctx context.Context, exec SQLExecutor, p *models.MatchPlayer) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, `
		INSERT INTO match_players (match_id, user_id, team, elo_before)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		p.MatchID, p.UserID, p.Team, p.EloBefore,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create match player: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	m := &models.Match{}
	err := scanMatch(executor.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`, id), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match %d: %w", id, err)
	}
	if err := r.loadPlayers(ctx, executor, []*models.Match{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) loadPlayers(ctx context.Context, executor SQLExecutor, matches []*models.Match) error {
	if len(matches) == 0 {
		return nil
	}
	ids := make([]int, len(matches))
	byID := make(map[int]*models.Match, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
		byID[m.ID] = m
	}
	rows, err := executor.QueryContext(ctx, `
		SELECT mp.id, mp.match_id, mp.user_id, mp.team, mp.elo_before, mp.elo_after, mp.elo_change, mp.confirmed,
			u.id, u.username, u.name, u.elo_rating, u.wins, u.losses, u.games_played
		FROM match_players mp
		JOIN users u ON u.id = mp.user_id
		WHERE mp.match_id = ANY($1)
		ORDER BY mp.team ASC, mp.id ASC`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load match players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := models.MatchPlayer{User: &models.User{}}
		err := rows.Scan(
			&p.ID, &p.MatchID, &p.UserID, &p.Team, &p.EloBefore, &p.EloAfter, &p.EloChange, &p.Confirmed,
			&p.User.ID, &p.User.Username, &p.User.Name, &p.User.EloRating,
			&p.User.Wins, &p.User.Losses, &p.User.GamesPlayed,
		)
		if err != nil {
			return fmt.Errorf("failed to scan match player: %w", err)
		}
		if m, ok := byID[p.MatchID]; ok {
			m.Players = append(m.Players, p)
		}
	}
	return rows.Err()
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) RecordScore(ctx context.Context, exec SQLExecutor, id int, team1Score, team2Score, winnerTeam, submittedBy int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE matches SET
			team1_score = $1, team2_score = $2, winner_team = $3,
			submitted_by = $4, status = $5
		WHERE id = $6`,
		team1Score, team2Score, winnerTeam, submittedBy,
		models.MatchStatusPendingConfirmation, id)
	if err != nil {
		return fmt.Errorf("failed to record match score: %w", err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) ClearScore(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE matches SET
			team1_score = NULL, team2_score = NULL, winner_team = NULL,
			submitted_by = NULL, status = $1
		WHERE id = $2`,
		models.MatchStatusInProgress, id)
	if err != nil {
		return fmt.Errorf("failed to clear match score: %w", err)
	}
	if err := checkAffectedRows(result, ErrMatchNotFound); err != nil {
		return err
	}
	_, err = executor.ExecContext(ctx,
		`UPDATE match_players SET confirmed = FALSE WHERE match_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to reset match confirmations: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) SetPlayerConfirmed(ctx context.Context, exec SQLExecutor, matchID, userID int, confirmed bool) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE match_players SET confirmed = $1 WHERE match_id = $2 AND user_id = $3`,
		confirmed, matchID, userID)
	if err != nil {
		return fmt.Errorf("failed to update player confirmation: %w", err)
	}
	return checkAffectedRows(result, ErrMatchPlayerNotFound)
}

func (r *postgresMatchRepository) Complete(ctx context.Context, exec SQLExecutor, id int, completedAt time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET status = $1, completed_at = $2 WHERE id = $3`,
		models.MatchStatusCompleted, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to complete match: %w", err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdatePlayerElo(ctx context.Context, exec SQLExecutor, matchID, userID int, before, after, change float64) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE match_players SET elo_before = $1, elo_after = $2, elo_change = $3
		WHERE match_id = $4 AND user_id = $5`,
		before, after, change, matchID, userID)
	if err != nil {
		return fmt.Errorf("failed to update player elo snapshot: %w", err)
	}
	return checkAffectedRows(result, ErrMatchPlayerNotFound)
}

func (r *postgresMatchRepository) FindByBracketSlot(ctx context.Context, exec SQLExecutor, tournamentID, round, slot int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	m := &models.Match{}
	err := scanMatch(executor.QueryRowContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE tournament_id = $1 AND bracket_round = $2 AND bracket_slot = $3`,
		tournamentID, round, slot), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to find bracket match: %w", err)
	}
	if err := r.loadPlayers(ctx, executor, []*models.Match{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE tournament_id = $1
		ORDER BY bracket_round ASC, bracket_slot ASC`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournament matches: %w", err)
	}
	matches, err := collectMatches(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadPlayers(ctx, executor, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *postgresMatchRepository) CancelActiveByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int64, error) {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE matches SET status = $1
		WHERE tournament_id = $2 AND status IN ($3, $4)`,
		models.MatchStatusCancelled, tournamentID,
		models.MatchStatusInProgress, models.MatchStatusPendingConfirmation)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel tournament matches: %w", err)
	}
	return result.RowsAffected()
}

func (r *postgresMatchRepository) CancelStaleInProgress(ctx context.Context, exec SQLExecutor, courtID int, cutoff time.Time) (int64, error) {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE matches SET status = $1
		WHERE court_id = $2 AND tournament_id IS NULL
		AND status IN ($3, $4) AND created_at < $5`,
		models.MatchStatusCancelled, courtID,
		models.MatchStatusInProgress, models.MatchStatusPendingConfirmation, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel stale matches for court %d: %w", courtID, err)
	}
	return result.RowsAffected()
}

func (r *postgresMatchRepository) ListActiveByCourt(ctx context.Context, exec SQLExecutor, courtID int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE court_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC`,
		courtID, models.MatchStatusInProgress, models.MatchStatusPendingConfirmation)
	if err != nil {
		return nil, fmt.Errorf("failed to list active matches for court %d: %w", courtID, err)
	}
	matches, err := collectMatches(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadPlayers(ctx, executor, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *postgresMatchRepository) ListForUser(ctx context.Context, exec SQLExecutor, userID int, statuses []models.MatchStatus, limit int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	statusStrings := make([]string, len(statuses))
	for i, s := range statuses {
		statusStrings[i] = string(s)
	}
	rows, err := executor.QueryContext(ctx, `
		SELECT `+matchColumns+` FROM matches m
		WHERE m.status = ANY($1)
		AND EXISTS (SELECT 1 FROM match_players mp WHERE mp.match_id = m.id AND mp.user_id = $2)
		ORDER BY m.created_at DESC
		LIMIT $3`, pq.Array(statusStrings), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for user %d: %w", userID, err)
	}
	matches, err := collectMatches(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadPlayers(ctx, executor, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func collectMatches(rows *sql.Rows) ([]*models.Match, error) {
	defer rows.Close()
	var out []*models.Match
	for rows.Next() {
		m := &models.Match{}
		if err := scanMatch(rows, m); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
