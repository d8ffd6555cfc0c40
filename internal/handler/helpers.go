package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/farelink/flightgw/internal/domain"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error    string                  `json:"error"`
	Attempts []domain.AttemptFailure `json:"attempts,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var validation *domain.ErrValidation
	var notFound *domain.ErrNotFound
	var unauthorized *domain.ErrUnauthorized
	var inactive *domain.ErrInactiveProvider
	var configuration *domain.ErrConfiguration
	var circuitOpen *domain.ErrCircuitOpen
	var unavailable *domain.ErrAllProvidersUnavailable

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &inactive):
		logger.Debug("inactive provider", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &configuration):
		logger.Warn("provider misconfigured", zap.String("provider", configuration.Provider))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Warn("circuit open", zap.String("provider", circuitOpen.Provider))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &unavailable):
		logger.Error("all providers unavailable",
			zap.String("capability", string(unavailable.Capability)),
			zap.Int("attempts", len(unavailable.Attempts)),
		)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:    err.Error(),
			Attempts: unavailable.Attempts,
		})
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
