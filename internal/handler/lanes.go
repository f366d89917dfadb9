package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"dualdetect/internal/dto"
	"dualdetect/internal/lane"
	"dualdetect/internal/logger"
	"dualdetect/internal/service"
)

// ListLanesHandler returns the state of every lane.
func ListLanesHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.Lanes())
	}
}

// LaneStateHandler returns one lane's state. It never waits on the lane's loop.
func LaneStateHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := manager.Poll(r.PathValue("lane"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// StartLaneHandler starts a lane from a JSON {source, category, threshold}
// body. An empty body starts the lane with its saved settings.
func StartLaneHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.StartLaneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, logger, fmt.Errorf("%w: malformed body: %v", lane.ErrInvalidPolicy, err))
			return
		}

		name := r.PathValue("lane")
		res, err := manager.Start(name, lane.StartRequest{
			Selection: req.Source,
			Category:  req.Category,
			Threshold: req.Threshold,
		})
		if err != nil {
			logger.Warning("Start of lane %s rejected: %v", name, err)
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// StopLaneHandler requests a cooperative stop and returns the lane's state,
// which is Stopping until the loop observes the request.
func StopLaneHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("lane")
		if err := manager.Stop(name); err != nil {
			writeError(w, logger, err)
			return
		}
		state, err := manager.Poll(name)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}
