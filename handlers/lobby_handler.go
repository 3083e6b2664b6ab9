package handlers

import (
	"net/http"
	"time"

	"github.com/rallyrank/rallyrank-api/middleware"
	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/services"
)

type LobbyHandler struct {
	lobbyService *services.LobbyService
}

func NewLobbyHandler(lobbyService *services.LobbyService) *LobbyHandler {
	return &LobbyHandler{lobbyService: lobbyService}
}

type createFromQueueRequest struct {
	CourtID          int              `json:"court_id"`
	MatchType        models.MatchType `json:"match_type"`
	Team1            []int            `json:"team1"`
	Team2            []int            `json:"team2"`
	StartImmediately bool             `json:"start_immediately"`
}

func (h *LobbyHandler) CreateFromQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	var input createFromQueueRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	lobby, match, err := h.lobbyService.CreateFromQueue(
		r.Context(), userID, input.CourtID, input.MatchType, input.Team1, input.Team2, input.StartImmediately)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	body := jsonResponse{"lobby": lobby}
	if match != nil {
		body["match"] = match
	}
	if err := writeJSON(w, http.StatusCreated, body, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

type createChallengeRequest struct {
	CourtID      int              `json:"court_id"`
	MatchType    models.MatchType `json:"match_type"`
	Team1        []int            `json:"team1"`
	Team2        []int            `json:"team2"`
	ScheduledFor *time.Time       `json:"scheduled_for,omitempty"`
}

func (h *LobbyHandler) CreateChallengeHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	var input createChallengeRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	var lobby *models.Lobby
	if input.ScheduledFor != nil {
		lobby, err = h.lobbyService.CreateScheduledChallenge(
			r.Context(), userID, input.CourtID, input.MatchType, input.Team1, input.Team2, *input.ScheduledFor)
	} else {
		lobby, err = h.lobbyService.CreateCourtChallenge(
			r.Context(), userID, input.CourtID, input.MatchType, input.Team1, input.Team2)
	}
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"lobby": lobby}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

type respondLobbyRequest struct {
	Accept bool `json:"accept"`
}

func (h *LobbyHandler) RespondHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	lobbyID, err := getIDFromURL(r, "lobbyID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input respondLobbyRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	lobby, err := h.lobbyService.Respond(r.Context(), lobbyID, userID, input.Accept)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"lobby": lobby}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *LobbyHandler) StartLobbyHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	lobbyID, err := getIDFromURL(r, "lobbyID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	match, err := h.lobbyService.Start(r.Context(), lobbyID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *LobbyHandler) GetLobbyHandler(w http.ResponseWriter, r *http.Request) {
	lobbyID, err := getIDFromURL(r, "lobbyID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	lobby, err := h.lobbyService.Get(r.Context(), lobbyID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"lobby": lobby}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *LobbyHandler) ListCourtLobbiesHandler(w http.ResponseWriter, r *http.Request) {
	courtID, err := getIDFromURL(r, "courtID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	lobbies, err := h.lobbyService.ListOpenByCourt(r.Context(), courtID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"lobbies": lobbies}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *LobbyHandler) ListMyLobbiesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	lobbies, err := h.lobbyService.ListOpenForUser(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"lobbies": lobbies}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}
