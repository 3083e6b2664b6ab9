package handlers

import (
	"net/http"

	"github.com/rallyrank/rallyrank-api/middleware"
	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/services"
)

type QueueHandler struct {
	queueService *services.QueueService
}

func NewQueueHandler(queueService *services.QueueService) *QueueHandler {
	return &QueueHandler{queueService: queueService}
}

type joinQueueRequest struct {
	MatchType models.MatchType `json:"match_type"`
}

func (h *QueueHandler) JoinQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	courtID, err := getIDFromURL(r, "courtID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input joinQueueRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	entry, err := h.queueService.Join(r.Context(), userID, courtID, input.MatchType)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"queue_entry": entry}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *QueueHandler) LeaveQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	courtID, err := getIDFromURL(r, "courtID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.queueService.Leave(r.Context(), userID, courtID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "left queue"}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *QueueHandler) ListQueueHandler(w http.ResponseWriter, r *http.Request) {
	courtID, err := getIDFromURL(r, "courtID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var matchType *models.MatchType
	if raw := r.URL.Query().Get("match_type"); raw != "" {
		mt := models.MatchType(raw)
		matchType = &mt
	}

	entries, err := h.queueService.List(r.Context(), courtID, matchType)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"queue": entries}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}
