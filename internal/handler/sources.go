package handler

import (
	"net/http"

	"dualdetect/internal/dto"
	"dualdetect/internal/service"
)

// ListSourcesHandler returns the current enumeration snapshot.
func ListSourcesHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.NewSourcesResponse(manager.ListSources()))
	}
}

// RefreshSourcesHandler runs a new enumeration pass and returns its snapshot.
func RefreshSourcesHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.NewSourcesResponse(manager.RefreshSources()))
	}
}
