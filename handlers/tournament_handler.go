package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rallyrank/rallyrank-api/middleware"
	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
	"github.com/rallyrank/rallyrank-api/services"
)

type TournamentHandler struct {
	tournamentService *services.TournamentService
}

func NewTournamentHandler(tournamentService *services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournamentService: tournamentService}
}

type createTournamentRequest struct {
	CourtID               int                     `json:"court_id"`
	Name                  string                  `json:"name"`
	Description           string                  `json:"description"`
	Format                models.TournamentFormat `json:"format"`
	AccessMode            models.AccessMode       `json:"access_mode"`
	MatchType             models.MatchType        `json:"match_type"`
	AffectsElo            bool                    `json:"affects_elo"`
	StartTime             time.Time               `json:"start_time"`
	RegistrationCloseTime *time.Time              `json:"registration_close_time,omitempty"`
	MaxPlayers            int                     `json:"max_players"`
	MinParticipants       int                     `json:"min_participants"`
	CheckInRequired       bool                    `json:"check_in_required"`
	NoShowPolicy          models.NoShowPolicy     `json:"no_show_policy"`
	NoShowGraceMinutes    int                     `json:"no_show_grace_minutes"`
}

func (h *TournamentHandler) CreateTournamentHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	var input createTournamentRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	tournament, err := h.tournamentService.Create(r.Context(), userID, services.CreateTournamentParams{
		CourtID:               input.CourtID,
		Name:                  input.Name,
		Description:           input.Description,
		Format:                input.Format,
		AccessMode:            input.AccessMode,
		MatchType:             input.MatchType,
		AffectsElo:            input.AffectsElo,
		StartTime:             input.StartTime,
		RegistrationCloseTime: input.RegistrationCloseTime,
		MaxPlayers:            input.MaxPlayers,
		MinParticipants:       input.MinParticipants,
		CheckInRequired:       input.CheckInRequired,
		NoShowPolicy:          input.NoShowPolicy,
		NoShowGraceMinutes:    input.NoShowGraceMinutes,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *TournamentHandler) GetTournamentHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var viewerID *int
	if id, err := middleware.GetUserIDFromContext(r.Context()); err == nil {
		viewerID = &id
	}

	tournament, err := h.tournamentService.Get(r.Context(), tournamentID, viewerID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *TournamentHandler) ListTournamentsHandler(w http.ResponseWriter, r *http.Request) {
	filter := repositories.TournamentFilter{}
	if raw := r.URL.Query().Get("court_id"); raw != "" {
		if courtID, err := strconv.Atoi(raw); err == nil && courtID > 0 {
			filter.CourtID = courtID
		}
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, models.TournamentStatus(s))
		}
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	tournaments, err := h.tournamentService.List(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *TournamentHandler) JoinTournamentHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournamentService.Join(r.Context(), tournamentID, userID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"message": "registered"}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *TournamentHandler) LeaveTournamentHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournamentService.Leave(r.Context(), tournamentID, userID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "withdrew from tournament"}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

type inviteRequest struct {
	UserIDs []int `json:"user_ids"`
}

func (h *TournamentHandler) InviteHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input inviteRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournamentService.Invite(r.Context(), tournamentID, userID, input.UserIDs); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "invitations sent"}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

type respondInviteRequest struct {
	Accept bool `json:"accept"`
}

func (h *TournamentHandler) RespondInviteHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input respondInviteRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournamentService.RespondInvite(r.Context(), tournamentID, userID, input.Accept); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "invitation response recorded"}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *TournamentHandler) CheckInHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournamentService.CheckIn(r.Context(), tournamentID, userID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "checked in"}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *TournamentHandler) MarkNoShowHandler(w http.ResponseWriter, r *http.Request) {
	hostID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournamentService.MarkNoShow(r.Context(), tournamentID, hostID, userID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "participant marked as no-show"}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *TournamentHandler) StartTournamentHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	tournament, err := h.tournamentService.Start(r.Context(), tournamentID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *TournamentHandler) CancelTournamentHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournamentService.Cancel(r.Context(), tournamentID, userID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "tournament cancelled"}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *TournamentHandler) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	courtID := 0
	if raw := r.URL.Query().Get("court_id"); raw != "" {
		courtID, _ = strconv.Atoi(raw)
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.tournamentService.Leaderboard(r.Context(), courtID, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": rows}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}
