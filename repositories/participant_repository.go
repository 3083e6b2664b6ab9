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
	ErrParticipantNotFound = errors.New("tournament participant not found")
	ErrParticipantConflict = errors.New("user is already a participant of this tournament")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.TournamentParticipant) error
	FindByTournamentAndUser(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (*models.TournamentParticipant, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.TournamentParticipant, error)
	UpdateInviteStatus(ctx context.Context, exec SQLExecutor, id int, invite models.InviteStatus, status models.ParticipantStatus) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.ParticipantStatus) error
	SetCheckedIn(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	SetSeed(ctx context.Context, exec SQLExecutor, id, seed int) error
	// RecordMatchOutcome bumps the in-bracket win/loss tally for one player.
	RecordMatchOutcome(ctx context.Context, exec SQLExecutor, tournamentID, userID int, won bool) error
	// ApplyFinal writes placement, points and the terminal status at
	// finalization.
	ApplyFinal(ctx context.Context, exec SQLExecutor, id, placement, points int, status models.ParticipantStatus) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	// UserIDsByStatus returns user ids of participants holding any of the
	// given statuses.
	UserIDsByStatus(ctx context.Context, exec SQLExecutor, tournamentID int, statuses []models.ParticipantStatus) ([]int, error)
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const participantColumns = `id, tournament_id, user_id, invited_by_user_id, invite_status,
	participant_status, seed, final_placement, wins, losses, points, checked_in_at, created_at`

func scanParticipant(row interface{ Scan(dest ...interface{}) error }, p *models.TournamentParticipant) error {
	return row.Scan(
		&p.ID, &p.TournamentID, &p.UserID, &p.InvitedByUserID, &p.InviteStatus,
		&p.Status, &p.Seed, &p.FinalPlacement, &p.Wins, &p.Losses, &p.Points,
		&p.CheckedInAt, &p.CreatedAt,
	)
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.TournamentParticipant) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx, `
		INSERT INTO tournament_participants (
			tournament_id, user_id, invited_by_user_id, invite_status, participant_status
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, wins, losses, points, created_at`,
		p.TournamentID, p.UserID, p.InvitedByUserID, p.InviteStatus, p.Status,
	).Scan(&p.ID, &p.Wins, &p.Losses, &p.Points, &p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrParticipantConflict
		}
		return fmt.Errorf("failed to create tournament participant: %w", err)
	}
	return nil
}

func (r *postgresParticipantRepository) FindByTournamentAndUser(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (*models.TournamentParticipant, error) {
	executor := r.getExecutor(exec)
	p := &models.TournamentParticipant{}
	err := scanParticipant(executor.QueryRowContext(ctx, `
		SELECT `+participantColumns+` FROM tournament_participants
		WHERE tournament_id = $1 AND user_id = $2`, tournamentID, userID), p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to find tournament participant: %w", err)
	}
	return p, nil
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.TournamentParticipant, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT p.id, p.tournament_id, p.user_id, p.invited_by_user_id, p.invite_status,
			p.participant_status, p.seed, p.final_placement, p.wins, p.losses, p.points,
			p.checked_in_at, p.created_at,
			u.id, u.username, u.name, u.elo_rating, u.wins, u.losses, u.games_played
		FROM tournament_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.tournament_id = $1
		ORDER BY p.created_at ASC, p.id ASC`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournament participants: %w", err)
	}
	defer rows.Close()

	var out []*models.TournamentParticipant
	for rows.Next() {
		p := &models.TournamentParticipant{User: &models.User{}}
		err := rows.Scan(
			&p.ID, &p.TournamentID, &p.UserID, &p.InvitedByUserID, &p.InviteStatus,
			&p.Status, &p.Seed, &p.FinalPlacement, &p.Wins, &p.Losses, &p.Points,
			&p.CheckedInAt, &p.CreatedAt,
			&p.User.ID, &p.User.Username, &p.User.Name, &p.User.EloRating,
			&p.User.Wins, &p.User.Losses, &p.User.GamesPlayed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tournament participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *postgresParticipantRepository) UpdateInviteStatus(ctx context.Context, exec SQLExecutor, id int, invite models.InviteStatus, status models.ParticipantStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE tournament_participants SET invite_status = $1, participant_status = $2
		WHERE id = $3`, invite, status, id)
	if err != nil {
		return fmt.Errorf("failed to update participant invite status: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.ParticipantStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournament_participants SET participant_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update participant status: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) SetCheckedIn(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE tournament_participants SET participant_status = $1, checked_in_at = $2
		WHERE id = $3`, models.ParticipantCheckedIn, at, id)
	if err != nil {
		return fmt.Errorf("failed to check participant in: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) SetSeed(ctx context.Context, exec SQLExecutor, id, seed int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournament_participants SET seed = $1 WHERE id = $2`, seed, id)
	if err != nil {
		return fmt.Errorf("failed to set participant seed: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) RecordMatchOutcome(ctx context.Context, exec SQLExecutor, tournamentID, userID int, won bool) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE tournament_participants SET
			wins = wins + CASE WHEN $1 THEN 1 ELSE 0 END,
			losses = losses + CASE WHEN $1 THEN 0 ELSE 1 END
		WHERE tournament_id = $2 AND user_id = $3`, won, tournamentID, userID)
	if err != nil {
		return fmt.Errorf("failed to record participant match outcome: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) ApplyFinal(ctx context.Context, exec SQLExecutor, id, placement, points int, status models.ParticipantStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE tournament_participants SET final_placement = $1, points = $2, participant_status = $3
		WHERE id = $4`, placement, points, status, id)
	if err != nil {
		return fmt.Errorf("failed to apply participant final standing: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`DELETE FROM tournament_participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tournament participant: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) UserIDsByStatus(ctx context.Context, exec SQLExecutor, tournamentID int, statuses []models.ParticipantStatus) ([]int, error) {
	executor := r.getExecutor(exec)
	statusStrings := make([]string, len(statuses))
	for i, s := range statuses {
		statusStrings[i] = string(s)
	}
	rows, err := executor.QueryContext(ctx, `
		SELECT user_id FROM tournament_participants
		WHERE tournament_id = $1 AND participant_status = ANY($2)
		ORDER BY user_id ASC`, tournamentID, pq.Array(statusStrings))
	if err != nil {
		return nil, fmt.Errorf("failed to list participant user ids: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
