package ld2451

import (
	"sync"
	"time"
)

// DebugBuffer keeps a copy of the raw bytes of the most recently attempted
// frame, successful or not, for external inspection. Its size is fixed at
// MaxFrameLen; longer input is truncated.
type DebugBuffer struct {
	mu        sync.Mutex
	data      [MaxFrameLen]byte
	n         int
	truncated bool
	at        time.Time
	now       func() time.Time
}

// NewDebugBuffer returns an empty debug buffer.
func NewDebugBuffer() *DebugBuffer {
	return &DebugBuffer{now: time.Now}
}

// Record replaces the buffer contents with raw.
func (d *DebugBuffer) Record(raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n = copy(d.data[:], raw)
	d.truncated = len(raw) > len(d.data)
	if d.now != nil {
		d.at = d.now()
	}
}

// DebugFrame is a copy of the debug buffer contents.
type DebugFrame struct {
	Raw       []byte    `json:"raw"`
	Truncated bool      `json:"truncated"`
	At        time.Time `json:"at"`
}

// Last returns a copy of the most recently recorded frame bytes.
func (d *DebugBuffer) Last() DebugFrame {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw := make([]byte, d.n)
	copy(raw, d.data[:d.n])
	return DebugFrame{Raw: raw, Truncated: d.truncated, At: d.at}
}
