// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to the raw byte stream from the port and send
// command frames to a single serial port device.
package serialmux

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// ErrClosed is returned by SendCommand after Close.
var ErrClosed = errors.New("serial mux closed")

const (
	// ReadChunkSize is the largest chunk handed to subscribers per read.
	ReadChunkSize = 128
	// SubscriberBuffer is how many chunks a subscriber may lag behind before
	// chunks are dropped for it.
	SubscriberBuffer = 64
	// DefaultReadTimeout bounds a single port read so Monitor notices
	// cancellation on ports that support timeouts.
	DefaultReadTimeout = 100 * time.Millisecond
)

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// CommandResolver turns an operator-entered command into frame bytes.
type CommandResolver func(command string) ([]byte, error)

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to the byte stream from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	resolverMu sync.RWMutex
	resolver   CommandResolver
	commands   []string
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving chunks read from the
	// serial port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes one complete command frame to the serial port.
	SendCommand([]byte) error
	// Monitor reads from the serial port and fans chunks out to subscribers.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	Initialise() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan []byte),
		resolver:    ParseHex,
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// SetCommandResolver sets how the send-command admin route turns its input
// into bytes. names are offered as suggestions on the admin page. Input the
// resolver rejects is retried as hex.
func (s *SerialMux[T]) SetCommandResolver(r CommandResolver, names []string) {
	s.resolverMu.Lock()
	defer s.resolverMu.Unlock()
	s.resolver = r
	s.commands = append([]string(nil), names...)
}

func (s *SerialMux[T]) resolve(command string) ([]byte, error) {
	s.resolverMu.RLock()
	r := s.resolver
	s.resolverMu.RUnlock()
	if r != nil {
		if b, err := r(command); err == nil {
			return b, nil
		}
	}
	return ParseHex(command)
}

func (s *SerialMux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, SubscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialise prepares the port for the binary stream: a bounded read timeout
// where the port supports one and an empty input buffer.
func (s *SerialMux[T]) Initialise() error {
	var port SerialPorter = s.port
	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(DefaultReadTimeout); err != nil {
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}
	if rp, ok := port.(interface{ ResetInputBuffer() error }); ok {
		if err := rp.ResetInputBuffer(); err != nil {
			return fmt.Errorf("failed to reset input buffer: %w", err)
		}
	}
	return nil
}

// SendCommand writes frame to the serial port in a single write.
func (s *SerialMux[T]) SendCommand(frame []byte) error {
	s.closingMu.Lock()
	closing := s.closing
	s.closingMu.Unlock()
	if closing {
		return ErrClosed
	}

	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	n, err := s.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads the serial port and sends each chunk to every subscriber.
// Subscribers that are not keeping up miss chunks rather than stall the read
// loop.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	chunkChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// the blocking Read runs in its own goroutine so the outer loop can
	// observe context cancellation.
	go func() {
		defer close(chunkChan)
		buf := make([]byte, ReadChunkSize)
		for {
			n, err := s.port.Read(buf)
			if n > 0 {
				chunk := bytes.Clone(buf[:n])
				select {
				case chunkChan <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				select {
				case readErrChan <- err:
				case <-ctx.Done():
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			if s.isClosing() || errors.Is(err, io.EOF) {
				return nil
			}
			return err

		case chunk, ok := <-chunkChan:
			if !ok {
				select {
				case err := <-readErrChan:
					if !s.isClosing() && !errors.Is(err, io.EOF) {
						return err
					}
				default:
				}
				return nil
			}
			if s.isClosing() {
				return nil
			}

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- chunk:
				default:
					// a full channel skips this chunk so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

// Close closes every subscriber channel and the port. Later calls are no-ops.
func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a command frame to the serial port", func(w http.ResponseWriter, r *http.Request) {
		s.resolverMu.RLock()
		data := struct{ Commands []string }{Commands: s.commands}
		s.resolverMu.RUnlock()

		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, data); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to write a command to the serial port. The command is a
	// name known to the resolver or a hex frame.
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		frame, err := s.resolve(command)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid command: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(frame); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port: %s", command, FormatHex(frame)))
	})

	// API endpoint to issue Server-Side Events (SSE) for chunks read from the
	// serial port, hex encoded.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case chunk, ok := <-c:
				if !ok {
					return
				}
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", FormatHex(chunk))))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
