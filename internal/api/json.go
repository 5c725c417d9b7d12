package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps domain errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	var rerr *apperr.RefreshError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrContentNotRetained), errors.Is(err, apperr.ErrAllYanked):
		return http.StatusGone
	case errors.Is(err, apperr.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrInvalidManifest), errors.Is(err, apperr.ErrInvalidSkill):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrTrustDisabled):
		return http.StatusNotImplemented
	case errors.As(err, &rerr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError writes err with its mapped status. Internal errors are logged
// and hidden from the client.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
