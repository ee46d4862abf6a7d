package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/approach.warning/internal/ld2451"
)

func TestDebugRadarFrame(t *testing.T) {
	buf := ld2451.NewDebugBuffer()
	buf.Record([]byte{0xF4, 0xF3, 0xF2, 0xF1, 0x00, 0x00, 0xF8, 0xF7, 0xF6, 0xF5})

	mux := http.NewServeMux()
	AttachDebugRoutes(mux, buf)

	req := httptest.NewRequest(http.MethodGet, "/debug/radar-frame", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[LastFrame](t, w)
	assert.Equal(t, "F4 F3 F2 F1 00 00 F8 F7 F6 F5", resp.Hex)
	assert.Equal(t, 10, resp.Length)
	assert.False(t, resp.Truncated)
	assert.NotEmpty(t, resp.At)
}
