package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/approach.warning/internal/httputil"
)

// Error is a non-2xx response from the radar daemon.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("radar api: %d %s", e.StatusCode, e.Message)
}

// Client talks to a running radar daemon.
type Client struct {
	hc   httputil.HTTPClient
	base string
}

// NewClient returns a client for the daemon at baseURL, for example
// "http://localhost:8080".
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{hc: hc, base: strings.TrimRight(baseURL, "/")}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, httputil.MaxBodyBytes)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Status fetches the live detection state. speedUnits may be empty for the
// daemon default.
func (c *Client) Status(ctx context.Context, speedUnits string) (Status, error) {
	q := url.Values{}
	if speedUnits != "" {
		q.Set("units", speedUnits)
	}
	var st Status
	err := c.do(ctx, http.MethodGet, "/api/status", q, nil, &st)
	return st, err
}

// Config fetches the reporting parameters last written to the sensor.
func (c *Client) Config(ctx context.Context) (ConfigResponse, error) {
	var resp ConfigResponse
	err := c.do(ctx, http.MethodGet, "/api/config", nil, nil, &resp)
	return resp, err
}

// ApplyConfig overlays overrides (JSON field name to value) and an optional
// preset on the current parameters and writes them to the sensor.
func (c *Client) ApplyConfig(ctx context.Context, overrides map[string]int, preset string) (ConfigResponse, error) {
	q := url.Values{}
	if preset != "" {
		q.Set("preset", preset)
	}
	var body interface{}
	if len(overrides) > 0 {
		body = overrides
	}
	var resp ConfigResponse
	err := c.do(ctx, http.MethodPost, "/api/config", q, body, &resp)
	return resp, err
}

// Restart reboots the sensor.
func (c *Client) Restart(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/restart", nil, nil, nil)
}

// FactoryReset restores the sensor defaults and reboots it.
func (c *Client) FactoryReset(ctx context.Context) (ConfigResponse, error) {
	var resp ConfigResponse
	err := c.do(ctx, http.MethodPost, "/api/factory-reset", nil, nil, &resp)
	return resp, err
}

// Episodes lists recent detection episodes, newest first.
func (c *Client) Episodes(ctx context.Context, limit int, speedUnits string) ([]EpisodeView, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if speedUnits != "" {
		q.Set("units", speedUnits)
	}
	var out []EpisodeView
	err := c.do(ctx, http.MethodGet, "/api/episodes", q, nil, &out)
	return out, err
}
