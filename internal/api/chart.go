package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/approach.warning/internal/httputil"
	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/radar"
	"github.com/banshee-data/approach.warning/internal/units"
)

const (
	defaultChartWindow = 10 * time.Minute
	maxChartWindow     = 24 * time.Hour
	chartPointLimit    = 20000
)

// distanceSeries groups observations into one scatter series per slot, with
// x as seconds before now and y as smoothed distance.
func distanceSeries(obs []radar.Observation, now time.Time, distUnits string) [ld2451.MaxTargets][]opts.ScatterData {
	var series [ld2451.MaxTargets][]opts.ScatterData
	for _, o := range obs {
		if o.Slot < 0 || o.Slot >= ld2451.MaxTargets {
			continue
		}
		x := -now.Sub(o.At).Seconds()
		y := units.ConvertDistance(o.SmoothedDistance, distUnits)
		series[o.Slot] = append(series[o.Slot], opts.ScatterData{
			Value:      []interface{}{x, y},
			SymbolSize: 4,
		})
	}
	return series
}

// handleDistanceChart renders recent smoothed target distances per slot.
func (s *Server) handleDistanceChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "episode history is not enabled")
		return
	}

	window := defaultChartWindow
	if v := r.URL.Query().Get("minutes"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || time.Duration(m)*time.Minute > maxChartWindow {
			httputil.BadRequest(w, "invalid 'minutes' parameter: expected 1-1440")
			return
		}
		window = time.Duration(m) * time.Minute
	}
	speedUnits, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	distUnits := units.DistanceUnitFor(speedUnits)

	now := s.clock.Now()
	obs, err := s.history.ObservationsSince(now.Add(-window), chartPointLimit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load observations: %v", err))
		return
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Radar Target Distance", Theme: "dark", Width: "1000px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Smoothed target distance", Subtitle: fmt.Sprintf("window=%s points=%d", window, len(obs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "seconds ago", NameLocation: "middle", NameGap: 25, Max: 0}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("distance (%s)", distUnits), NameLocation: "middle", NameGap: 30, Min: 0}),
	)

	for slot, data := range distanceSeries(obs, now, distUnits) {
		scatter.AddSeries(fmt.Sprintf("slot %d", slot), data)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
