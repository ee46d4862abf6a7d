package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/approach.warning/internal/httputil"
	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/radar"
)

func newTestClient(t *testing.T) (*Client, *testServer, *httputil.MockHTTPClient) {
	t.Helper()
	ts := setupTestServer(t)
	hc := httputil.NewMockHTTPClient(ts.server.ServeMux())
	return NewClient("http://radar.local/", hc), ts, hc
}

func TestClientStatus(t *testing.T) {
	c, ts, hc := newTestClient(t)
	ts.snapshots.Publish(radar.Snapshot{
		State:   radar.StateLingering,
		Count:   1,
		Targets: []radar.SmoothedTarget{{Target: ld2451.Target{Distance: 8, Speed: 36}, SmoothedDistance: 8}},
	})

	st, err := c.Status(context.Background(), "mps")
	require.NoError(t, err)
	assert.Equal(t, radar.StateLingering, st.State)
	require.Len(t, st.Targets, 1)
	assert.InDelta(t, 10.0, st.Targets[0].Speed, 0.001)

	reqs := hc.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/status", reqs[0].URL.Path)
	assert.Equal(t, "mps", reqs[0].URL.Query().Get("units"))
}

func TestClientApplyConfig(t *testing.T) {
	c, ts, _ := newTestClient(t)

	resp, err := c.ApplyConfig(context.Background(), map[string]int{"min_speed": 12}, "city")
	require.NoError(t, err)
	// The preset is applied after the body overlay.
	assert.Equal(t, uint8(10), resp.Params.MinSpeed)
	assert.Equal(t, uint8(30), resp.Params.MaxDistance)
	assert.Len(t, ts.mux.Frames(), ld2451.HandshakeSteps)

	cfg, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp.Params, cfg.Params)
}

func TestClientErrors(t *testing.T) {
	c, _, hc := newTestClient(t)

	_, err := c.ApplyConfig(context.Background(), map[string]int{"trigger_count": 50}, "")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "trigger_count")

	hc.Err = errors.New("connection refused")
	err = c.Restart(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClientRestartAndEpisodes(t *testing.T) {
	c, ts, _ := newTestClient(t)
	seedEpisode(t, ts.db)

	require.NoError(t, c.Restart(context.Background()))
	assert.Len(t, ts.mux.Frames(), 2)

	eps, err := c.Episodes(context.Background(), 5, "")
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "ep-1", eps[0].ID)

	resp, err := c.FactoryReset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ld2451.DefaultParams(), resp.Params)
}
