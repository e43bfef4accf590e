package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fedutinova/narrator/internal/common"
	"github.com/fedutinova/narrator/internal/validation"
)

type errorResponse struct {
	Error  string                       `json:"error"`
	Field  string                       `json:"field,omitempty"`
	Fields []validation.ValidationError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func badRequest(field, msg string) error {
	return common.ValidationError{Field: field, Message: msg}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case common.IsValidation(err), common.IsBadRequest(err):
		return http.StatusBadRequest
	case common.IsNotFound(err):
		return http.StatusNotFound
	case common.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, common.ErrWorkerNotAvailable), errors.Is(err, common.ErrSupervisorStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		resp.Error = "internal error"
	}

	var verr common.ValidationError
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		resp.Fields = verrs
	case errors.As(err, &verr):
		resp.Field = verr.Field
		resp.Error = verr.Message
	}
	writeJSON(w, status, resp)
}
