package handlers

import (
	"net/http"
	"strconv"

	"github.com/rallyrank/rallyrank-api/services"
)

type CourtHandler struct {
	courtService *services.CourtService
}

func NewCourtHandler(courtService *services.CourtService) *CourtHandler {
	return &CourtHandler{courtService: courtService}
}

func (h *CourtHandler) ListCourtsHandler(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	courts, err := h.courtService.List(r.Context(), city, limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"courts": courts}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

func (h *CourtHandler) GetCourtHandler(w http.ResponseWriter, r *http.Request) {
	courtID, err := getIDFromURL(r, "courtID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	court, err := h.courtService.Get(r.Context(), courtID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"court": court}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}
