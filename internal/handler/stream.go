package handler

import (
	"fmt"
	"net/http"

	"dualdetect/internal/logger"
	"dualdetect/internal/service"
	"dualdetect/internal/service/stream"
)

// MJPEGHandler serves a lane's annotated frames as multipart MJPEG.
func MJPEGHandler(publisher *stream.Publisher, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("lane")
		s, ok := publisher.Stream(name)
		if !ok {
			writeError(w, logger, fmt.Errorf("%w: %q", service.ErrUnknownLane, name))
			return
		}
		s.ServeHTTP(w, r)
	}
}
