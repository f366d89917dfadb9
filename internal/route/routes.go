package route

import (
	"net/http"
	"os"
	"path/filepath"

	"dualdetect/internal/handler"
	"dualdetect/internal/logger"
	"dualdetect/internal/service"
	"dualdetect/internal/service/stream"
	"dualdetect/internal/service/websocket"
)

// staticHandler serves /path as <dir>/path.html when that page exists and
// falls back to plain file serving otherwise.
func staticHandler(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "/index"
		}

		page := filepath.Join(dir, filepath.FromSlash(path)+".html")
		if _, err := os.Stat(page); err == nil {
			http.ServeFile(w, r, page)
			return
		}
		files.ServeHTTP(w, r)
	}
}

// SetupRoutes registers the control API, the live views, the log endpoints,
// and static file serving.
func SetupRoutes(manager *service.Manager, hub *websocket.HubService, publisher *stream.Publisher,
	logger *logger.Logger, staticDir string) http.Handler {
	mux := http.NewServeMux()

	// Sources
	mux.HandleFunc("GET /api/sources", handler.ListSourcesHandler(manager))
	mux.HandleFunc("POST /api/sources/refresh", handler.RefreshSourcesHandler(manager))

	// Lanes
	mux.HandleFunc("GET /api/lanes", handler.ListLanesHandler(manager))
	mux.HandleFunc("GET /api/lanes/{lane}", handler.LaneStateHandler(manager, logger))
	mux.HandleFunc("POST /api/lanes/{lane}/start", handler.StartLaneHandler(manager, logger))
	mux.HandleFunc("POST /api/lanes/{lane}/stop", handler.StopLaneHandler(manager, logger))

	// Saved settings
	mux.HandleFunc("GET /api/settings", handler.ListSettingsHandler(manager, logger))
	mux.HandleFunc("DELETE /api/lanes/{lane}/settings", handler.ResetSettingsHandler(manager, logger))

	// Live views
	mux.HandleFunc("GET /api/view", handler.ViewWebsocketHandler(hub, logger))
	mux.HandleFunc("GET /mjpeg/{lane}", handler.MJPEGHandler(publisher, logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))

	mux.HandleFunc("GET /", staticHandler(staticDir))

	return mux
}
