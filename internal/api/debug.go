package api

import (
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/approach.warning/internal/httputil"
	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/serialmux"
)

// LastFrame is the /debug/radar-frame response.
type LastFrame struct {
	Hex       string `json:"hex"`
	Length    int    `json:"length"`
	Truncated bool   `json:"truncated"`
	At        string `json:"at,omitempty"`
}

// AttachDebugRoutes mounts the raw frame inspector on the tsweb debug page.
func AttachDebugRoutes(mux *http.ServeMux, buf *ld2451.DebugBuffer) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("radar-frame", "Raw bytes of the last attempted LD2451 frame", func(w http.ResponseWriter, r *http.Request) {
		f := buf.Last()
		resp := LastFrame{
			Hex:       serialmux.FormatHex(f.Raw),
			Length:    len(f.Raw),
			Truncated: f.Truncated,
		}
		if !f.At.IsZero() {
			resp.At = f.At.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		}
		httputil.WriteJSONOK(w, resp)
	})
}
