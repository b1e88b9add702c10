package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-push-engine/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PageEnvelope wraps paginated list responses.
type PageEnvelope struct {
	Data       interface{} `json:"data"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain errors to HTTP status codes. Unclassified errors
// become opaque 500s so infrastructure detail never leaks to clients.
func httpError(w http.ResponseWriter, err error) {
	var transErr *domain.StateTransitionError
	if errors.As(err, &transErr) {
		writeError(w, http.StatusConflict, transErr.Error())
		return
	}
	var schedErr *domain.InvalidScheduleError
	if errors.As(err, &schedErr) {
		writeError(w, http.StatusUnprocessableEntity, schedErr.Error())
		return
	}
	var tmplErr *domain.UnknownTemplateError
	if errors.As(err, &tmplErr) {
		writeError(w, http.StatusBadRequest, tmplErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
