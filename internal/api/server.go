// Package api exposes the radar engine over HTTP: live status, reporting
// parameters, sensor restart and reset, episode history and a distance chart.
package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/approach.warning/internal/httputil"
	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/radar"
	"github.com/banshee-data/approach.warning/internal/serialmux"
	"github.com/banshee-data/approach.warning/internal/timeutil"
	"github.com/banshee-data/approach.warning/internal/units"
	"github.com/banshee-data/approach.warning/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultEpisodeLimit   = 50
	defaultHandshakeLimit = 20
	maxListLimit          = 1000
)

// History is the read side of the episode store.
type History interface {
	RecentEpisodes(limit int) ([]radar.Episode, error)
	Episode(id string) (radar.Episode, error)
	EpisodeObservations(id string) ([]radar.Observation, error)
	ObservationsSince(since time.Time, limit int) ([]radar.Observation, error)
	RecentHandshakes(limit int) ([]radar.HandshakeRecord, error)
}

type Server struct {
	m            serialmux.SerialMuxInterface
	snapshots    *radar.SnapshotStore
	configurator *radar.Configurator
	history      History
	units        string
	clock        timeutil.Clock
}

// NewServer builds the API. history may be nil, in which case the history
// endpoints report 404.
func NewServer(m serialmux.SerialMuxInterface, snapshots *radar.SnapshotStore, configurator *radar.Configurator, history History, speedUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = units.KMPH
	}
	return &Server{
		m:            m,
		snapshots:    snapshots,
		configurator: configurator,
		history:      history,
		units:        speedUnits,
		clock:        timeutil.RealClock{},
	}
}

// SetClock replaces the clock used for chart windows.
func (s *Server) SetClock(c timeutil.Clock) { s.clock = c }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/restart", s.restart)
	mux.HandleFunc("/api/factory-reset", s.factoryReset)
	mux.HandleFunc("/api/episodes", s.listEpisodes)
	mux.HandleFunc("/api/episodes/", s.showEpisode)
	mux.HandleFunc("/api/handshakes", s.listHandshakes)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/debug/radar/distance", s.handleDistanceChart)
	return mux
}

// TargetView is a target with speed and distance in the requested units.
type TargetView struct {
	Slot             int     `json:"slot"`
	Epoch            uint64  `json:"epoch"`
	Angle            int     `json:"angle"`
	Distance         float64 `json:"distance"`
	SmoothedDistance float64 `json:"smoothed_distance"`
	Speed            float64 `json:"speed"`
	Approaching      bool    `json:"approaching"`
	SNR              uint8   `json:"snr"`
}

// Status is the /api/status response.
type Status struct {
	State             radar.State  `json:"state"`
	Count             int          `json:"count"`
	Lingering         bool         `json:"lingering"`
	DetectionMs       int64        `json:"detection_ms"`
	Targets           []TargetView `json:"targets"`
	Closest           *TargetView  `json:"closest,omitempty"`
	ApproachingThreat bool         `json:"approaching_threat"`
	Units             string       `json:"units"`
	DistanceUnits     string       `json:"distance_units"`
	LastFrame         time.Time    `json:"last_frame"`
	Stats             ld2451.Stats `json:"stats"`
	Version           string       `json:"version"`
}

func targetView(t radar.SmoothedTarget, speedUnits, distUnits string) TargetView {
	return TargetView{
		Slot:             t.Slot,
		Epoch:            t.Epoch,
		Angle:            t.Angle,
		Distance:         units.ConvertDistance(float64(t.Distance), distUnits),
		SmoothedDistance: units.ConvertDistance(t.SmoothedDistance, distUnits),
		Speed:            units.ConvertSpeed(float64(t.Speed), speedUnits),
		Approaching:      t.Approaching,
		SNR:              t.SNR,
	}
}

// requestUnits returns the units query parameter or the server default.
func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid 'units' parameter: expected one of %s", units.GetValidUnitsString())
	}
	return u, nil
}

func parseLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, fmt.Errorf("invalid 'limit' parameter: expected 1-%d", maxListLimit)
	}
	return n, nil
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	speedUnits, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var threatSpeed uint8
	if v := r.URL.Query().Get("threat_speed"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			httputil.BadRequest(w, "invalid 'threat_speed' parameter: expected 0-255 km/h")
			return
		}
		threatSpeed = uint8(n)
	}

	snap := s.snapshots.Load()
	distUnits := units.DistanceUnitFor(speedUnits)
	resp := Status{
		State:             snap.State,
		Count:             snap.Count,
		Lingering:         snap.Lingering,
		DetectionMs:       snap.DetectionDuration().Milliseconds(),
		Targets:           make([]TargetView, 0, len(snap.Targets)),
		ApproachingThreat: snap.HasApproachingThreat(threatSpeed),
		Units:             speedUnits,
		DistanceUnits:     distUnits,
		LastFrame:         snap.LastFrame,
		Stats:             snap.Stats,
		Version:           version.Version,
	}
	for _, t := range snap.Targets {
		resp.Targets = append(resp.Targets, targetView(t, speedUnits, distUnits))
	}
	if c, ok := snap.Closest(); ok {
		v := targetView(c, speedUnits, distUnits)
		resp.Closest = &v
	}
	httputil.WriteJSONOK(w, resp)
}

// ConfigResponse is returned by GET and POST /api/config.
type ConfigResponse struct {
	Params      ld2451.Params `json:"params"`
	LastApplied *time.Time    `json:"last_applied,omitempty"`
	Presets     []string      `json:"presets"`
}

func (s *Server) configResponse() ConfigResponse {
	resp := ConfigResponse{Params: s.configurator.Params(), Presets: []string{"city", "highway"}}
	if t := s.configurator.LastApplied(); !t.IsZero() {
		resp.LastApplied = &t
	}
	return resp
}

// handleConfig reports the current parameters on GET. On POST it overlays the
// JSON body and an optional ?preset= on the current parameters and runs the
// configuration handshake.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.configResponse())
	case http.MethodPost:
		p := s.configurator.Params()
		if err := httputil.DecodeJSON(r, &p); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if preset := r.URL.Query().Get("preset"); preset != "" {
			var err error
			if p, err = ld2451.ApplyPreset(p, preset); err != nil {
				httputil.BadRequest(w, err.Error())
				return
			}
		}
		if err := p.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.configurator.Apply(p); err != nil {
			writeHandshakeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, s.configResponse())
	default:
		httputil.MethodNotAllowed(w)
	}
}

func writeHandshakeError(w http.ResponseWriter, err error) {
	var hs *radar.HandshakeError
	if errors.As(err, &hs) {
		httputil.InternalServerError(w, hs.Error())
		return
	}
	httputil.BadRequest(w, err.Error())
}

func (s *Server) restart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.configurator.Restart(); err != nil {
		writeHandshakeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "restarting"})
}

func (s *Server) factoryReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.configurator.FactoryReset(); err != nil {
		writeHandshakeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.configResponse())
}

// EpisodeView is an episode with speeds converted to the requested units.
type EpisodeView struct {
	radar.Episode
	DurationMs int64  `json:"duration_ms"`
	Units      string `json:"units"`
}

func episodeView(ep radar.Episode, speedUnits string) EpisodeView {
	ep.MeanSpeed = units.ConvertSpeed(ep.MeanSpeed, speedUnits)
	ep.SpeedStdDev = units.ConvertSpeed(ep.SpeedStdDev, speedUnits)
	ep.MaxSpeed = units.ConvertSpeed(ep.MaxSpeed, speedUnits)
	v := EpisodeView{Episode: ep, Units: speedUnits}
	if !ep.EndedAt.IsZero() {
		v.DurationMs = ep.Duration().Milliseconds()
	}
	return v
}

func (s *Server) listEpisodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "episode history is not enabled")
		return
	}
	speedUnits, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	limit, err := parseLimit(r, defaultEpisodeLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	episodes, err := s.history.RecentEpisodes(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve episodes: %v", err))
		return
	}
	out := make([]EpisodeView, len(episodes))
	for i, ep := range episodes {
		out[i] = episodeView(ep, speedUnits)
	}
	httputil.WriteJSONOK(w, out)
}

// EpisodeDetail is the /api/episodes/{id} response.
type EpisodeDetail struct {
	Episode      EpisodeView  `json:"episode"`
	Observations []TargetView `json:"observations"`
	ObservedAt   []time.Time  `json:"observed_at"`
}

func (s *Server) showEpisode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "episode history is not enabled")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/episodes/"), "/")
	if id == "" {
		httputil.BadRequest(w, "missing episode id")
		return
	}
	speedUnits, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	ep, err := s.history.Episode(id)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("episode %q not found", id))
		return
	}
	obs, err := s.history.EpisodeObservations(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve observations: %v", err))
		return
	}

	distUnits := units.DistanceUnitFor(speedUnits)
	resp := EpisodeDetail{
		Episode:      episodeView(ep, speedUnits),
		Observations: make([]TargetView, len(obs)),
		ObservedAt:   make([]time.Time, len(obs)),
	}
	for i, o := range obs {
		resp.Observations[i] = targetView(o.SmoothedTarget, speedUnits, distUnits)
		resp.ObservedAt[i] = o.At
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listHandshakes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "handshake history is not enabled")
		return
	}
	limit, err := parseLimit(r, defaultHandshakeLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	recs, err := s.history.RecentHandshakes(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve handshakes: %v", err))
		return
	}
	if recs == nil {
		recs = []radar.HandshakeRecord{}
	}
	httputil.WriteJSONOK(w, recs)
}

// sendCommandHandler writes one allowlisted named command frame to the sensor.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	command := r.FormValue("command")
	frame, err := radar.CommandFrame(command)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.m.SendCommand(frame); err != nil {
		httputil.InternalServerError(w, "Failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"command": command,
		"frame":   serialmux.FormatHex(frame),
	})
}
