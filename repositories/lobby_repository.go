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
	ErrLobbyNotFound       = errors.New("lobby not found")
	ErrLobbyPlayerNotFound = errors.New("lobby player not found")
	ErrLobbyPlayerConflict = errors.New("user is already in this lobby")
)

type LobbyRepository interface {
	Create(ctx context.Context, exec SQLExecutor, lobby *models.Lobby) error
	CreatePlayer(ctx context.Context, exec SQLExecutor, player *models.LobbyPlayer) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Lobby, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.LobbyStatus) error
	SetStarted(ctx context.Context, exec SQLExecutor, id, matchID int) error
	UpdatePlayerResponse(ctx context.Context, exec SQLExecutor, lobbyID, userID int, acceptance models.AcceptanceStatus, respondedAt time.Time) error
	ListOpenByCourt(ctx context.Context, exec SQLExecutor, courtID int) ([]*models.Lobby, error)
	ListOpenForUser(ctx context.Context, exec SQLExecutor, userID int) ([]*models.Lobby, error)
	// ExpireOlderThan moves open lobbies created before the cutoff to expired.
	ExpireOlderThan(ctx context.Context, exec SQLExecutor, courtID int, cutoff time.Time) (int64, error)
}

type postgresLobbyRepository struct {
	db *sql.DB
}

func NewPostgresLobbyRepository(db *sql.DB) LobbyRepository {
	return &postgresLobbyRepository{db: db}
}

func (r *postgresLobbyRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresLobbyRepository) Create(ctx context.Context, exec SQLExecutor, l *models.Lobby) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, `
		INSERT INTO lobbies (court_id, created_by_id, match_type, source, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		l.CourtID, l.CreatedByID, l.MatchType, l.Source, l.ScheduledFor, l.Status,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create lobby: %w", err)
	}
	return nil
}

func (r *postgresLobbyRepository) CreatePlayer(ctx context.Context, exec SQLExecutor, p *models.LobbyPlayer) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, `
		INSERT INTO lobby_players (lobby_id, user_id, team, acceptance_status, responded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.LobbyID, p.UserID, p.Team, p.Acceptance, p.RespondedAt,
	).Scan(&p.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrLobbyPlayerConflict
		}
		return fmt.Errorf("failed to create lobby player: %w", err)
	}
	return nil
}

const lobbyColumns = `id, court_id, created_by_id, match_type, source, scheduled_for, status, started_match_id, created_at`

func scanLobby(row interface{ Scan(dest ...interface{}) error }, l *models.Lobby) error {
	return row.Scan(
		&l.ID, &l.CourtID, &l.CreatedByID, &l.MatchType, &l.Source,
		&l.ScheduledFor, &l.Status, &l.StartedMatchID, &l.CreatedAt,
	)
}

func (r *postgresLobbyRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Lobby, error) {
	executor := r.getExecutor(exec)
	l := &models.Lobby{}
	err := scanLobby(executor.QueryRowContext(ctx,
		`SELECT `+lobbyColumns+` FROM lobbies WHERE id = $1`, id), l)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLobbyNotFound
		}
		return nil, fmt.Errorf("failed to get lobby %d: %w", id, err)
	}
	if err := r.loadPlayers(ctx, executor, []*models.Lobby{l}); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *postgresLobbyRepository) loadPlayers(ctx context.Context, executor SQLExecutor, lobbies []*models.Lobby) error {
	if len(lobbies) == 0 {
		return nil
	}
	ids := make([]int, len(lobbies))
	byID := make(map[int]*models.Lobby, len(lobbies))
	for i, l := range lobbies {
		ids[i] = l.ID
		byID[l.ID] = l
	}
	rows, err := executor.QueryContext(ctx, `
		SELECT lp.id, lp.lobby_id, lp.user_id, lp.team, lp.acceptance_status, lp.responded_at,
			u.id, u.username, u.name, u.elo_rating, u.wins, u.losses, u.games_played
		FROM lobby_players lp
		JOIN users u ON u.id = lp.user_id
		WHERE lp.lobby_id = ANY($1)
		ORDER BY lp.team ASC, lp.id ASC`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load lobby players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := models.LobbyPlayer{User: &models.User{}}
		err := rows.Scan(
			&p.ID, &p.LobbyID, &p.UserID, &p.Team, &p.Acceptance, &p.RespondedAt,
			&p.User.ID, &p.User.Username, &p.User.Name, &p.User.EloRating,
			&p.User.Wins, &p.User.Losses, &p.User.GamesPlayed,
		)
		if err != nil {
			return fmt.Errorf("failed to scan lobby player: %w", err)
		}
		if l, ok := byID[p.LobbyID]; ok {
			l.Players = append(l.Players, p)
		}
	}
	return rows.Err()
}

func (r *postgresLobbyRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.LobbyStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE lobbies SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update lobby status: %w", err)
	}
	return checkAffectedRows(result, ErrLobbyNotFound)
}

func (r *postgresLobbyRepository) SetStarted(ctx context.Context, exec SQLExecutor, id, matchID int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE lobbies SET status = $1, started_match_id = $2 WHERE id = $3`,
		models.LobbyStatusStarted, matchID, id)
	if err != nil {
		return fmt.Errorf("failed to mark lobby started: %w", err)
	}
	return checkAffectedRows(result, ErrLobbyNotFound)
}

func (r *postgresLobbyRepository) UpdatePlayerResponse(ctx context.Context, exec SQLExecutor, lobbyID, userID int, acceptance models.AcceptanceStatus, respondedAt time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE lobby_players SET acceptance_status = $1, responded_at = $2
		WHERE lobby_id = $3 AND user_id = $4`,
		acceptance, respondedAt, lobbyID, userID)
	if err != nil {
		return fmt.Errorf("failed to update lobby player response: %w", err)
	}
	return checkAffectedRows(result, ErrLobbyPlayerNotFound)
}

func (r *postgresLobbyRepository) ListOpenByCourt(ctx context.Context, exec SQLExecutor, courtID int) ([]*models.Lobby, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT `+lobbyColumns+` FROM lobbies
		WHERE court_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC`,
		courtID, models.LobbyStatusPendingAcceptance, models.LobbyStatusReady)
	if err != nil {
		return nil, fmt.Errorf("failed to list open lobbies for court %d: %w", courtID, err)
	}
	lobbies, err := collectLobbies(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadPlayers(ctx, executor, lobbies); err != nil {
		return nil, err
	}
	return lobbies, nil
}

func (r *postgresLobbyRepository) ListOpenForUser(ctx context.Context, exec SQLExecutor, userID int) ([]*models.Lobby, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT `+lobbyColumns+` FROM lobbies l
		WHERE l.status IN ($1, $2)
		AND EXISTS (SELECT 1 FROM lobby_players lp WHERE lp.lobby_id = l.id AND lp.user_id = $3)
		ORDER BY l.created_at DESC`,
		models.LobbyStatusPendingAcceptance, models.LobbyStatusReady, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open lobbies for user %d: %w", userID, err)
	}
	lobbies, err := collectLobbies(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadPlayers(ctx, executor, lobbies); err != nil {
		return nil, err
	}
	return lobbies, nil
}

func collectLobbies(rows *sql.Rows) ([]*models.Lobby, error) {
	defer rows.Close()
	var out []*models.Lobby
	for rows.Next() {
		l := &models.Lobby{}
		if err := scanLobby(rows, l); err != nil {
			return nil, fmt.Errorf("failed to scan lobby: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *postgresLobbyRepository) ExpireOlderThan(ctx context.Context, exec SQLExecutor, courtID int, cutoff time.Time) (int64, error) {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE lobbies SET status = $1
		WHERE court_id = $2 AND status IN ($3, $4) AND created_at < $5`,
		models.LobbyStatusExpired, courtID,
		models.LobbyStatusPendingAcceptance, models.LobbyStatusReady, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire lobbies for court %d: %w", courtID, err)
	}
	return result.RowsAffected()
}
