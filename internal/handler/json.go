package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"dualdetect/internal/dto"
	"dualdetect/internal/lane"
	"dualdetect/internal/logger"
	"dualdetect/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps control errors to HTTP statuses.
func writeError(w http.ResponseWriter, logger *logger.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnknownLane):
		status = http.StatusNotFound
	case errors.Is(err, lane.ErrInvalidPolicy):
		status = http.StatusBadRequest
	case errors.Is(err, lane.ErrLaneBusy):
		status = http.StatusConflict
	case errors.Is(err, lane.ErrSourceUnavailable), errors.Is(err, lane.ErrLaneClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	}
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error()})
}
