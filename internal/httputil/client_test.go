package httputil

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestNewStandardClient(t *testing.T) {
	c := NewStandardClient(nil)
	if c.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}

	custom := &http.Client{Timeout: time.Second}
	if got := NewStandardClient(custom); got.Client != custom {
		t.Error("expected the supplied client to be wrapped")
	}
}

func TestMockHTTPClient_Do(t *testing.T) {
	mock := NewMockHTTPClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, r.Method+" "+r.URL.Path+" "+string(body))
	}))

	req, _ := http.NewRequest(http.MethodPost, "http://radar.local/api/config", strings.NewReader("x"))
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "POST /api/config x" {
		t.Errorf("got body %q", string(body))
	}
	if n := len(mock.Requests()); n != 1 {
		t.Errorf("got %d requests, want 1", n)
	}
}

func TestMockHTTPClient_Err(t *testing.T) {
	mock := NewMockHTTPClient(http.NotFoundHandler())
	mock.Err = errors.New("connection refused")

	req, _ := http.NewRequest(http.MethodGet, "http://radar.local/", nil)
	if _, err := mock.Do(req); err == nil || err.Error() != "connection refused" {
		t.Fatalf("Do error = %v, want connection refused", err)
	}
	if n := len(mock.Requests()); n != 1 {
		t.Errorf("got %d requests, want 1", n)
	}
}
