package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rallyrank/rallyrank-api/repositories"
	"github.com/rallyrank/rallyrank-api/services"
)

type jsonResponse map[string]interface{}

func getIDFromURL(r *http.Request, param string) (int, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s parameter: %q", param, raw)
	}
	return id, nil
}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, status int, message interface{}) {
	if err := writeJSON(w, status, jsonResponse{"error": message}, nil); err != nil {
		slog.Error("failed to write error response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	errorResponse(w, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func badRequestResponse(w http.ResponseWriter, err error) {
	errorResponse(w, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter) {
	errorResponse(w, http.StatusNotFound, "the requested resource could not be found")
}

func conflictResponse(w http.ResponseWriter, message string) {
	errorResponse(w, http.StatusConflict, message)
}

func unauthorizedResponse(w http.ResponseWriter, message string) {
	errorResponse(w, http.StatusUnauthorized, message)
}

func forbiddenResponse(w http.ResponseWriter, message string) {
	errorResponse(w, http.StatusForbidden, message)
}

// preconditionFailedResponse carries a machine-readable diagnostic payload
// so clients can retry once the precondition clears.
func preconditionFailedResponse(w http.ResponseWriter, message string, details jsonResponse) {
	body := jsonResponse{"error": message}
	for k, v := range details {
		body[k] = v
	}
	if err := writeJSON(w, http.StatusConflict, body, nil); err != nil {
		slog.Error("failed to write precondition response", "error", err)
	}
}

// mapServiceErrorToHTTP translates service-layer errors to HTTP responses.
func mapServiceErrorToHTTP(w http.ResponseWriter, err error) {
	var missingCheckIns *services.MissingCheckInsError
	var notYetStartable *services.NotYetStartableError
	var bracketSize *services.BracketSizeError
	var insufficient *services.InsufficientParticipantsError

	switch {
	// Precondition failures with diagnostic payloads.
	case errors.As(err, &missingCheckIns):
		details := jsonResponse{"missing_user_ids": missingCheckIns.UserIDs}
		if missingCheckIns.GraceDeadline != nil {
			details["grace_deadline"] = missingCheckIns.GraceDeadline
		}
		preconditionFailedResponse(w, err.Error(), details)
	case errors.As(err, &notYetStartable):
		preconditionFailedResponse(w, err.Error(), jsonResponse{"seconds_remaining": notYetStartable.SecondsRemaining})
	case errors.As(err, &bracketSize):
		preconditionFailedResponse(w, err.Error(), jsonResponse{"eligible_count": bracketSize.EligibleCount})
	case errors.As(err, &insufficient):
		preconditionFailedResponse(w, err.Error(), jsonResponse{
			"eligible_count": insufficient.Eligible,
			"minimum":        insufficient.Minimum,
		})

	// Not found.
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrCourtNotFound),
		errors.Is(err, services.ErrLobbyNotFound),
		errors.Is(err, services.ErrMatchNotFound),
		errors.Is(err, services.ErrTournamentNotFound),
		errors.Is(err, services.ErrParticipantNotFound),
		errors.Is(err, services.ErrQueueEntryNotFound),
		errors.Is(err, services.ErrNotificationNotFound):
		notFoundResponse(w)

	// Validation.
	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrInvalidMatchType),
		errors.Is(err, services.ErrInvalidTeamSize),
		errors.Is(err, services.ErrDuplicatePlayers),
		errors.Is(err, services.ErrInvalidScore),
		errors.Is(err, services.ErrTieScore),
		errors.Is(err, services.ErrInvalidScheduledTime),
		errors.Is(err, services.ErrPasswordTooShort):
		badRequestResponse(w, err)

	// Wrong state for the requested transition.
	case errors.Is(err, services.ErrNotCheckedIn),
		errors.Is(err, services.ErrAlreadyQueued),
		errors.Is(err, services.ErrNotInQueue),
		errors.Is(err, services.ErrLobbyNotPending),
		errors.Is(err, services.ErrLobbyNotReady),
		errors.Is(err, services.ErrMatchNotInProgress),
		errors.Is(err, services.ErrNotPendingConfirmation),
		errors.Is(err, services.ErrMatchAlreadyTerminal),
		errors.Is(err, services.ErrRegistrationClosed),
		errors.Is(err, services.ErrTournamentFull),
		errors.Is(err, services.ErrTournamentNotUpcoming),
		errors.Is(err, services.ErrTournamentNotLive),
		errors.Is(err, services.ErrTournamentNotCancellable),
		errors.Is(err, services.ErrAlreadyRegistered),
		errors.Is(err, services.ErrInviteAlreadyDeclined),
		errors.Is(err, services.ErrNoPendingInvite),
		errors.Is(err, services.ErrAlreadyCheckedIn),
		errors.Is(err, services.ErrNoShowBeforeStartOnly):
		conflictResponse(w, err.Error())

	// Forbidden.
	case errors.Is(err, services.ErrNotMatchParticipant),
		errors.Is(err, services.ErrNotLobbyParticipant),
		errors.Is(err, services.ErrNotAcceptedPlayer),
		errors.Is(err, services.ErrNotTournamentHost),
		errors.Is(err, services.ErrHostCannotLeave),
		errors.Is(err, services.ErrCreatorNotOnTeam):
		forbiddenResponse(w, err.Error())

	case errors.Is(err, services.ErrInvalidCredentials):
		unauthorizedResponse(w, err.Error())
	case errors.Is(err, services.ErrInviteRequired):
		forbiddenResponse(w, err.Error())
	case errors.Is(err, repositories.ErrUserEmailConflict),
		errors.Is(err, repositories.ErrUserUsernameConflict):
		conflictResponse(w, err.Error())

	default:
		serverErrorResponse(w, err)
	}
}
