package serialmux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	restart := []byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0xA3, 0x00, 0x04, 0x03, 0x02, 0x01}

	tests := []struct {
		name           string
		method         string
		formData       url.Values
		expectedStatus int
		expectedWrite  []byte
		bodyContains   string
	}{
		{
			name:           "named command",
			method:         http.MethodPost,
			formData:       url.Values{"command": {"restart"}},
			expectedStatus: http.StatusOK,
			expectedWrite:  restart,
			bodyContains:   "FD FC FB FA 02 00 A3 00",
		},
		{
			name:           "hex frame",
			method:         http.MethodPost,
			formData:       url.Values{"command": {"fd fc fb fa 02 00 a3 00 04 03 02 01"}},
			expectedStatus: http.StatusOK,
			expectedWrite:  restart,
		},
		{
			name:           "unknown command",
			method:         http.MethodPost,
			formData:       url.Values{"command": {"reboot-now"}},
			expectedStatus: http.StatusBadRequest,
			bodyContains:   "Invalid command",
		},
		{
			name:           "whitespace-only command",
			method:         http.MethodPost,
			formData:       url.Values{"command": {"   "}},
			expectedStatus: http.StatusBadRequest,
			bodyContains:   "Missing command",
		},
		{
			name:           "GET method not allowed",
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewTestableSerialPort()
			mux := NewSerialMux(port)
			mux.SetCommandResolver(func(cmd string) ([]byte, error) {
				if cmd == "restart" {
					return restart, nil
				}
				return nil, errors.New("unknown")
			}, []string{"restart"})

			httpMux := http.NewServeMux()
			mux.AttachAdminRoutes(httpMux)

			req := localHostRequest(tt.method, "/debug/send-command-api", strings.NewReader(tt.formData.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.expectedStatus, rec.Body.String())
			}
			if tt.bodyContains != "" && !strings.Contains(rec.Body.String(), tt.bodyContains) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.bodyContains)
			}
			if got := port.GetWrittenData(); !bytes.Equal(got, tt.expectedWrite) {
				t.Errorf("written = % X, want % X", got, tt.expectedWrite)
			}
		})
	}
}

func TestAttachAdminRoutes_SendCommandPage(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	mux.SetCommandResolver(nil, []string{"read-firmware", "restart"})
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/send-command", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`<option value="read-firmware">`, `/debug/tail.js`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/tail.js", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("tail.js content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "EventSource") {
		t.Error("tail.js body unexpected")
	}
}

func TestAttachAdminRoutes_TailStreamsHex(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	ts := httptest.NewServer(httpMux)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/debug/tail", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}

	scanner := bufio.NewScanner(resp.Body)
	if !scanner.Scan() || !strings.HasPrefix(scanner.Text(), ": ping") {
		t.Fatalf("expected initial ping, got %q", scanner.Text())
	}

	mux.subscriberMu.Lock()
	for _, ch := range mux.subscribers {
		ch <- []byte{0xF4, 0xF3, 0x00}
	}
	mux.subscriberMu.Unlock()

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line != "data: F4 F3 00" {
			t.Errorf("event line = %q", line)
		}
		break
	}
}

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed on unsubscribe")
	}

	_, ch2 := d.Subscribe()
	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, ok := <-ch2; ok {
		t.Error("expected channel to be closed on Close")
	}
	if _, ch3 := d.Subscribe(); ch3 != nil {
		if _, ok := <-ch3; ok {
			t.Error("subscribe after Close should return a closed channel")
		}
	}
	if err := d.SendCommand([]byte{1}); err != nil {
		t.Errorf("SendCommand() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Monitor(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Monitor() = %v", err)
	}

	httpMux := http.NewServeMux()
	d.AttachAdminRoutes(httpMux)
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	if rec.Body.String() != "serial disabled" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

var (
	_ SerialMuxInterface = (*SerialMux[SerialPorter])(nil)
	_ SerialMuxInterface = (*DisabledSerialMux)(nil)
)
