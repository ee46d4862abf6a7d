// Package httputil provides JSON response helpers and an HTTP client
// abstraction for testability.
package httputil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// DefaultTimeout bounds requests made through NewStandardClient(nil).
const DefaultTimeout = 10 * time.Second

// HTTPClient abstracts HTTP operations for testability.
// Use StandardClient for production and MockHTTPClient in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient creates a new StandardClient wrapping the given
// http.Client, or a client with DefaultTimeout when c is nil.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = &http.Client{Timeout: DefaultTimeout}
	}
	return &StandardClient{Client: c}
}

// MockHTTPClient serves requests from an in-process handler and records them.
type MockHTTPClient struct {
	mu       sync.Mutex
	handler  http.Handler
	requests []*http.Request
	// Err, when set, is returned for every request instead of calling the
	// handler.
	Err error
}

// NewMockHTTPClient creates a mock client that dispatches to h.
func NewMockHTTPClient(h http.Handler) *MockHTTPClient {
	return &MockHTTPClient{handler: h}
}

// Do records the request and serves it through the handler.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rec := httptest.NewRecorder()
	m.handler.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// Requests returns the recorded requests in order.
func (m *MockHTTPClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}
