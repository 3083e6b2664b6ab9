package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rallyrank/rallyrank-api/brackets"
	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

// TournamentService owns the registration phase and the start/cancel
// transitions of single-elimination tournaments. Bracket mechanics live in
// BracketService.
type TournamentService struct {
	tx           repositories.TxRunner
	tournaments  repositories.TournamentRepository
	participants repositories.ParticipantRepository
	results      repositories.ResultRepository
	matches      repositories.MatchRepository
	checkIns     repositories.CheckInRepository
	users        repositories.UserRepository
	courts       repositories.CourtRepository
	bracketSvc   *BracketService
	notifier     *Notifier
	logger       *slog.Logger
	now          func() time.Time
}

func NewTournamentService(
	tx repositories.TxRunner,
	tournaments repositories.TournamentRepository,
	participants repositories.ParticipantRepository,
	results repositories.ResultRepository,
	matches repositories.MatchRepository,
	checkIns repositories.CheckInRepository,
	users repositories.UserRepository,
	courts repositories.CourtRepository,
	bracketSvc *BracketService,
	notifier *Notifier,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		tx:           tx,
		tournaments:  tournaments,
		participants: participants,
		results:      results,
		matches:      matches,
		checkIns:     checkIns,
		users:        users,
		courts:       courts,
		bracketSvc:   bracketSvc,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

type CreateTournamentParams struct {
	CourtID               int
	Name                  string
	Description           string
	Format                models.TournamentFormat
	AccessMode            models.AccessMode
	MatchType             models.MatchType
	AffectsElo            bool
	StartTime             time.Time
	RegistrationCloseTime *time.Time
	MaxPlayers            int
	MinParticipants       int
	CheckInRequired       bool
	NoShowPolicy          models.NoShowPolicy
	NoShowGraceMinutes    int
}

func (p CreateTournamentParams) validate(now time.Time) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidationFailed)
	}
	if !p.Format.Valid() {
		return fmt.Errorf("%w: unsupported tournament format", ErrValidationFailed)
	}
	if p.MatchType != models.MatchTypeSingles {
		return fmt.Errorf("%w: only singles tournaments are supported", ErrValidationFailed)
	}
	if !p.AccessMode.Valid() {
		return fmt.Errorf("%w: invalid access mode", ErrValidationFailed)
	}
	if !p.NoShowPolicy.Valid() {
		return fmt.Errorf("%w: invalid no-show policy", ErrValidationFailed)
	}
	if p.MaxPlayers < models.TournamentMaxPlayersFloor || p.MaxPlayers > models.TournamentMaxPlayersCeiling {
		return fmt.Errorf("%w: max players must be between %d and %d",
			ErrValidationFailed, models.TournamentMaxPlayersFloor, models.TournamentMaxPlayersCeiling)
	}
	if p.MinParticipants < 2 || p.MinParticipants > p.MaxPlayers {
		return fmt.Errorf("%w: min participants must be between 2 and max players", ErrValidationFailed)
	}
	if p.NoShowGraceMinutes < 0 || p.NoShowGraceMinutes > models.NoShowGraceMinutesMax {
		return fmt.Errorf("%w: no-show grace minutes must be between 0 and %d",
			ErrValidationFailed, models.NoShowGraceMinutesMax)
	}
	if !p.StartTime.After(now) {
		return fmt.Errorf("%w: start time must be in the future", ErrValidationFailed)
	}
	if p.RegistrationCloseTime != nil && p.RegistrationCloseTime.After(p.StartTime) {
		return fmt.Errorf("%w: registration must close before the start time", ErrValidationFailed)
	}
	return nil
}

// Create opens registration and auto-registers the host.
func (s *TournamentService) Create(ctx context.Context, hostID int, params CreateTournamentParams) (*models.Tournament, error) {
	if err := params.validate(s.now()); err != nil {
		return nil, err
	}

	tournament := &models.Tournament{
		CourtID:               params.CourtID,
		HostUserID:            hostID,
		Name:                  params.Name,
		Description:           params.Description,
		Format:                params.Format,
		AccessMode:            params.AccessMode,
		MatchType:             params.MatchType,
		AffectsElo:            params.AffectsElo,
		Status:                models.TournamentStatusUpcoming,
		StartTime:             params.StartTime,
		RegistrationCloseTime: params.RegistrationCloseTime,
		MaxPlayers:            params.MaxPlayers,
		MinParticipants:       params.MinParticipants,
		CheckInRequired:       params.CheckInRequired,
		NoShowPolicy:          params.NoShowPolicy,
		NoShowGraceMinutes:    params.NoShowGraceMinutes,
	}
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if _, err := s.courts.GetByID(ctx, exec, params.CourtID); err != nil {
			if errors.Is(err, repositories.ErrCourtNotFound) {
				return ErrCourtNotFound
			}
			return err
		}
		if err := s.tournaments.Create(ctx, exec, tournament); err != nil {
			return err
		}
		host := &models.TournamentParticipant{
			TournamentID: tournament.ID,
			UserID:       hostID,
			InviteStatus: models.InviteNone,
			Status:       models.ParticipantRegistered,
		}
		return s.participants.Create(ctx, exec, host)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastRanked(params.CourtID, "tournament_created")
	return s.Get(ctx, tournament.ID, &hostID)
}

// Get loads the tournament with participants, results and the bracket
// view in parallel.
func (s *TournamentService) Get(ctx context.Context, tournamentID int, viewerID *int) (*models.Tournament, error) {
	tournament, err := s.tournaments.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	var participants []*models.TournamentParticipant
	var results []*models.TournamentResult
	var bracket *models.BracketState

	g.Go(func() error {
		var err error
		participants, err = s.participants.ListByTournament(gctx, nil, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		results, err = s.results.ListByTournament(gctx, nil, tournamentID)
		return err
	})
	if tournament.Status != models.TournamentStatusUpcoming {
		g.Go(func() error {
			var err error
			bracket, err = s.bracketSvc.BuildBracketView(gctx, nil, tournamentID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range participants {
		tournament.Participants = append(tournament.Participants, *p)
		if p.Status.Active() {
			tournament.RegisteredCount++
		}
		if p.Status == models.ParticipantCheckedIn {
			tournament.CheckedInCount++
		}
		if viewerID != nil && p.UserID == *viewerID {
			mine := *p
			tournament.MyParticipation = &mine
		}
	}
	for _, r := range results {
		tournament.Results = append(tournament.Results, *r)
	}
	tournament.Bracket = bracket
	return tournament, nil
}

func (s *TournamentService) List(ctx context.Context, filter repositories.TournamentFilter) ([]*models.Tournament, error) {
	return s.tournaments.List(ctx, nil, filter)
}

// Join self-registers a player in an open tournament.
func (s *TournamentService) Join(ctx context.Context, tournamentID, userID int) error {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournaments.GetByID(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if err := s.registrationOpen(tournament); err != nil {
			return err
		}
		if tournament.AccessMode == models.AccessInviteOnly {
			return ErrInviteRequired
		}

		existing, err := s.participants.FindByTournamentAndUser(ctx, exec, tournamentID, userID)
		if err != nil && !errors.Is(err, repositories.ErrParticipantNotFound) {
			return err
		}
		if existing != nil {
			if existing.Status == models.ParticipantDeclined {
				return ErrInviteAlreadyDeclined
			}
			return ErrAlreadyRegistered
		}

		if err := s.ensureCapacity(ctx, exec, tournament); err != nil {
			return err
		}
		participant := &models.TournamentParticipant{
			TournamentID: tournamentID,
			UserID:       userID,
			InviteStatus: models.InviteNone,
			Status:       models.ParticipantRegistered,
		}
		if err := s.participants.Create(ctx, exec, participant); err != nil {
			if errors.Is(err, repositories.ErrParticipantConflict) {
				return ErrAlreadyRegistered
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcastTournament(ctx, tournamentID, "tournament_joined")
	return nil
}

// Leave removes a registration before the bracket starts. The host cannot
// leave their own tournament.
func (s *TournamentService) Leave(ctx context.Context, tournamentID, userID int) error {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournaments.GetByID(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if tournament.Status != models.TournamentStatusUpcoming {
			return ErrTournamentNotUpcoming
		}
		if tournament.HostUserID == userID {
			return ErrHostCannotLeave
		}
		participant, err := s.participants.FindByTournamentAndUser(ctx, exec, tournamentID, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		if err := s.participants.Delete(ctx, exec, participant.ID); err != nil {
			return err
		}
		content := "A player withdrew from your tournament."
		return s.notifier.Notify(ctx, exec, tournament.HostUserID, models.NotifTournamentWithdrawal, content, &tournamentID)
	})
	if err != nil {
		return err
	}

	s.broadcastTournament(ctx, tournamentID, "tournament_left")
	return nil
}

// Invite adds users to an invite list; host only. A declined player can be
// re-invited, which reopens their slot.
func (s *TournamentService) Invite(ctx context.Context, tournamentID, hostID int, userIDs []int) error {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournaments.GetByID(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if tournament.HostUserID != hostID {
			return ErrNotTournamentHost
		}
		if err := s.registrationOpen(tournament); err != nil {
			return err
		}

		users, err := s.users.ResolveUsers(ctx, exec, userIDs)
		if err != nil {
			return err
		}
		if len(users) != len(userIDs) {
			return ErrUserNotFound
		}

		for _, userID := range userIDs {
			existing, err := s.participants.FindByTournamentAndUser(ctx, exec, tournamentID, userID)
			if err != nil && !errors.Is(err, repositories.ErrParticipantNotFound) {
				return err
			}
			switch {
			case existing == nil:
				participant := &models.TournamentParticipant{
					TournamentID:    tournamentID,
					UserID:          userID,
					InvitedByUserID: &hostID,
					InviteStatus:    models.InviteInvited,
					Status:          models.ParticipantInvited,
				}
				if err := s.participants.Create(ctx, exec, participant); err != nil {
					return err
				}
			case existing.Status == models.ParticipantDeclined:
				if err := s.participants.UpdateInviteStatus(ctx, exec, existing.ID, models.InviteInvited, models.ParticipantInvited); err != nil {
					return err
				}
			default:
				continue
			}
			content := fmt.Sprintf("You are invited to %s.", tournament.Name)
			if err := s.notifier.Notify(ctx, exec, userID, models.NotifTournamentInvite, content, &tournamentID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcastTournament(ctx, tournamentID, "tournament_invited")
	return nil
}

// RespondInvite accepts or declines a pending invite. Declining blocks
// re-joining until the host re-invites.
func (s *TournamentService) RespondInvite(ctx context.Context, tournamentID, userID int, accept bool) error {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournaments.GetByID(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		participant, err := s.participants.FindByTournamentAndUser(ctx, exec, tournamentID, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return ErrNoPendingInvite
			}
			return err
		}
		if participant.InviteStatus != models.InviteInvited || participant.Status != models.ParticipantInvited {
			return ErrNoPendingInvite
		}

		verb := "declined"
		if accept {
			if err := s.registrationOpen(tournament); err != nil {
				return err
			}
			if err := s.ensureCapacity(ctx, exec, tournament); err != nil {
				return err
			}
			if err := s.participants.UpdateInviteStatus(ctx, exec, participant.ID, models.InviteAccepted, models.ParticipantRegistered); err != nil {
				return err
			}
			verb = "accepted"
		} else {
			if err := s.participants.UpdateInviteStatus(ctx, exec, participant.ID, models.InviteDeclined, models.ParticipantDeclined); err != nil {
				return err
			}
		}
		content := fmt.Sprintf("A player %s your tournament invite.", verb)
		return s.notifier.Notify(ctx, exec, tournament.HostUserID, models.NotifTournamentInviteRSVP, content, &tournamentID)
	})
	if err != nil {
		return err
	}

	s.broadcastTournament(ctx, tournamentID, "tournament_invite_response")
	return nil
}

// CheckIn marks a registered participant as present. Requires an active
// court check-in at the tournament's court.
func (s *TournamentService) CheckIn(ctx context.Context, tournamentID, userID int) error {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournaments.GetByID(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if tournament.Status != models.TournamentStatusUpcoming {
			return ErrTournamentNotUpcoming
		}
		participant, err := s.participants.FindByTournamentAndUser(ctx, exec, tournamentID, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		if participant.Status == models.ParticipantCheckedIn {
			return ErrAlreadyCheckedIn
		}
		if participant.Status != models.ParticipantRegistered {
			return ErrParticipantNotFound
		}
		present, err := s.checkIns.IsCheckedIn(ctx, exec, userID, tournament.CourtID)
		if err != nil {
			return err
		}
		if !present {
			return ErrNotCheckedIn
		}
		return s.participants.SetCheckedIn(ctx, exec, participant.ID, s.now())
	})
	if err != nil {
		return err
	}

	s.broadcastTournament(ctx, tournamentID, "tournament_check_in")
	return nil
}

// MarkNoShow lets the host exclude a missing player before the bracket
// starts; the host_mark policy depends on this endpoint.
func (s *TournamentService) MarkNoShow(ctx context.Context, tournamentID, hostID, userID int) error {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournaments.GetByID(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if tournament.HostUserID != hostID {
			return ErrNotTournamentHost
		}
		if tournament.Status != models.TournamentStatusUpcoming {
			return ErrNoShowBeforeStartOnly
		}
		participant, err := s.participants.FindByTournamentAndUser(ctx, exec, tournamentID, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		if participant.Status == models.ParticipantCheckedIn {
			return ErrAlreadyCheckedIn
		}
		if participant.Status != models.ParticipantRegistered {
			return ErrParticipantNotFound
		}
		return s.participants.UpdateStatus(ctx, exec, participant.ID, models.ParticipantNoShow)
	})
	if err != nil {
		return err
	}

	s.broadcastTournament(ctx, tournamentID, "tournament_no_show")
	return nil
}

// Start resolves check-ins per the no-show policy, validates the eligible
// count, seeds, generates round 1 and flips the tournament live, all in
// one transaction.
func (s *TournamentService) Start(ctx context.Context, tournamentID, hostID int) (*models.Tournament, error) {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournaments.GetByID(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if tournament.HostUserID != hostID {
			return ErrNotTournamentHost
		}
		if tournament.Status != models.TournamentStatusUpcoming {
			return ErrTournamentNotUpcoming
		}

		participants, err := s.participants.ListByTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}

		var eligible []*models.TournamentParticipant
		if tournament.CheckInRequired {
			eligible, err = s.resolveCheckIns(ctx, exec, tournament, participants)
			if err != nil {
				return err
			}
		} else {
			for _, p := range participants {
				if p.Status.Active() {
					eligible = append(eligible, p)
				}
			}
		}

		if len(eligible) < tournament.MinParticipants {
			return &InsufficientParticipantsError{Eligible: len(eligible), Minimum: tournament.MinParticipants}
		}
		if len(eligible) > tournament.MaxPlayers {
			return ErrTournamentFull
		}
		if !brackets.IsPowerOfTwo(len(eligible)) {
			return &BracketSizeError{EligibleCount: len(eligible)}
		}

		seeded := brackets.SeedParticipants(eligible)
		bracketSize := len(seeded)
		totalRounds := brackets.RoundsFor(bracketSize)
		if err := s.tournaments.SetStarted(ctx, exec, tournamentID, bracketSize, totalRounds, s.now()); err != nil {
			return err
		}
		tournament.BracketSize = &bracketSize
		tournament.TotalRounds = &totalRounds

		if err := s.bracketSvc.GenerateFirstRound(ctx, exec, tournament, seeded); err != nil {
			return err
		}

		content := fmt.Sprintf("%s has started. Check the bracket for your first match.", tournament.Name)
		for _, p := range seeded {
			if err := s.notifier.Notify(ctx, exec, p.UserID, models.NotifTournamentStarted, content, &tournamentID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.broadcastTournament(ctx, tournamentID, "tournament_started")
	return s.Get(ctx, tournamentID, &hostID)
}

// resolveCheckIns promotes registered players who hold an active court
// check-in, then applies the no-show policy to whoever is still missing.
func (s *TournamentService) resolveCheckIns(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, participants []*models.TournamentParticipant) ([]*models.TournamentParticipant, error) {
	var registered []*models.TournamentParticipant
	var eligible []*models.TournamentParticipant
	var registeredIDs []int
	for _, p := range participants {
		switch p.Status {
		case models.ParticipantCheckedIn:
			eligible = append(eligible, p)
		case models.ParticipantRegistered:
			registered = append(registered, p)
			registeredIDs = append(registeredIDs, p.UserID)
		}
	}

	present, err := s.checkIns.ActiveUserIDs(ctx, exec, tournament.CourtID, registeredIDs)
	if err != nil {
		return nil, err
	}

	var missing []int
	for _, p := range registered {
		if present[p.UserID] {
			if err := s.participants.SetCheckedIn(ctx, exec, p.ID, s.now()); err != nil {
				return nil, err
			}
			p.Status = models.ParticipantCheckedIn
			eligible = append(eligible, p)
			continue
		}
		missing = append(missing, p.UserID)
	}
	if len(missing) == 0 {
		return eligible, nil
	}

	switch tournament.NoShowPolicy {
	case models.NoShowAutoForfeit:
		deadline := tournament.GraceDeadline()
		if s.now().Before(deadline) {
			return nil, &MissingCheckInsError{UserIDs: missing, GraceDeadline: &deadline}
		}
		for _, p := range registered {
			if !present[p.UserID] {
				if err := s.participants.UpdateStatus(ctx, exec, p.ID, models.ParticipantNoShow); err != nil {
					return nil, err
				}
			}
		}
		return eligible, nil
	default:
		// host_mark: only the host excluding players progresses the start.
		return nil, &MissingCheckInsError{UserIDs: missing}
	}
}

// Cancel aborts a tournament, cascading to its unfinished matches and
// marking every non-terminal participant withdrawn.
func (s *TournamentService) Cancel(ctx context.Context, tournamentID, hostID int) error {
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournaments.GetByID(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if tournament.HostUserID != hostID {
			return ErrNotTournamentHost
		}
		if tournament.Status.Terminal() {
			return ErrTournamentNotCancellable
		}

		if err := s.tournaments.SetCancelled(ctx, exec, tournamentID, s.now()); err != nil {
			return err
		}
		if _, err := s.matches.CancelActiveByTournament(ctx, exec, tournamentID); err != nil {
			return err
		}

		participants, err := s.participants.ListByTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		content := fmt.Sprintf("%s was cancelled.", tournament.Name)
		for _, p := range participants {
			if p.Status.Active() || p.Status == models.ParticipantInvited {
				if err := s.participants.UpdateStatus(ctx, exec, p.ID, models.ParticipantWithdrawn); err != nil {
					return err
				}
			}
			if err := s.notifier.Notify(ctx, exec, p.UserID, models.NotifTournamentCancelled, content, &tournamentID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcastTournament(ctx, tournamentID, "tournament_cancelled")
	return nil
}

// Leaderboard ranks players by accumulated tournament points, optionally
// scoped to one court.
func (s *TournamentService) Leaderboard(ctx context.Context, courtID, limit int) ([]*repositories.LeaderboardRow, error) {
	if limit <= 0 {
		limit = 25
	}
	return s.results.Leaderboard(ctx, nil, courtID, limit)
}

func (s *TournamentService) registrationOpen(t *models.Tournament) error {
	if t.Status != models.TournamentStatusUpcoming {
		return ErrTournamentNotUpcoming
	}
	if t.RegistrationCloseTime != nil && s.now().After(*t.RegistrationCloseTime) {
		return ErrRegistrationClosed
	}
	return nil
}

func (s *TournamentService) ensureCapacity(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	active, err := s.participants.UserIDsByStatus(ctx, exec, t.ID,
		[]models.ParticipantStatus{models.ParticipantRegistered, models.ParticipantCheckedIn})
	if err != nil {
		return err
	}
	if len(active) >= t.MaxPlayers {
		return ErrTournamentFull
	}
	return nil
}

func (s *TournamentService) broadcastTournament(ctx context.Context, tournamentID int, reason string) {
	tournament, err := s.tournaments.GetByID(ctx, nil, tournamentID)
	if err != nil {
		s.logger.Warn("failed to load tournament for broadcast", "tournament_id", tournamentID, "error", err)
		return
	}
	s.notifier.BroadcastRanked(tournament.CourtID, reason)
	s.notifier.BroadcastNotifications(tournament.CourtID, reason)
}

func mapTournamentRepoError(err error) error {
	if errors.Is(err, repositories.ErrTournamentNotFound) {
		return ErrTournamentNotFound
	}
	return err
}
