package handler

import (
	"net/http"

	"dualdetect/internal/logger"
	"dualdetect/internal/service"
)

// ListSettingsHandler returns the remembered start settings of every lane.
func ListSettingsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		saved, err := manager.SavedSettings()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

// ResetSettingsHandler forgets one lane's remembered settings.
func ResetSettingsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.ResetSettings(r.PathValue("lane")); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
