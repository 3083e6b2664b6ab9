package handlers

import (
	"net/http"

	"github.com/rallyrank/rallyrank-api/middleware"
	"github.com/rallyrank/rallyrank-api/services"
)

type PresenceHandler struct {
	presenceService *services.PresenceService
}

func NewPresenceHandler(presenceService *services.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

type checkInRequest struct {
	CourtID        int  `json:"court_id"`
	LookingForGame bool `json:"looking_for_game"`
}

func (h *PresenceHandler) CheckInHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	var input checkInRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	checkIn, err := h.presenceService.CheckIn(r.Context(), userID, input.CourtID, input.LookingForGame)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"check_in": checkIn}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *PresenceHandler) CheckOutHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	if err := h.presenceService.CheckOut(r.Context(), userID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "checked out"}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *PresenceHandler) CurrentCheckInHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	checkIn, err := h.presenceService.Current(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"check_in": checkIn}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *PresenceHandler) ListCourtPlayersHandler(w http.ResponseWriter, r *http.Request) {
	courtID, err := getIDFromURL(r, "courtID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	players, err := h.presenceService.ListCourtPlayers(r.Context(), courtID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"players": players}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}
