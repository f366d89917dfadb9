package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dualdetect/internal/dto"
	"dualdetect/internal/lane"
	"dualdetect/internal/logger"
	"dualdetect/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_StatusMapping(t *testing.T) {
	l, err := logger.New(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %q", service.ErrUnknownLane, "x"), http.StatusNotFound},
		{fmt.Errorf("threshold 2: %w", lane.ErrInvalidPolicy), http.StatusBadRequest},
		{fmt.Errorf("%w: Running", lane.ErrLaneBusy), http.StatusConflict},
		{fmt.Errorf("%w: 0: gone", lane.ErrSourceUnavailable), http.StatusServiceUnavailable},
		{lane.ErrLaneClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, l, tt.err)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body dto.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}
