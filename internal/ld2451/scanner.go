package ld2451

import (
	"bytes"
	"encoding/binary"
)

// ScannerBufferSize is the fixed capacity of the scanner's pending byte
// buffer. It holds a little over three maximum-sized frames.
const ScannerBufferSize = 256

// Frame is one data frame recovered from the byte stream. The payload lives in
// a fixed array so frames can be passed by value without allocation.
type Frame struct {
	// Length is the payload byte count from the length field.
	Length uint16
	// FooterOK is false when the trailing marker did not match
	// DataFrameFooter. The payload is still usable since it was length
	// delimited.
	FooterOK bool

	payload [MaxPayloadLen]byte
}

// Payload returns the frame's payload bytes.
func (f *Frame) Payload() []byte {
	return f.payload[:f.Length]
}

// IsHeartbeat reports whether the frame carried no payload. The sensor emits
// these when nothing is in range.
func (f *Frame) IsHeartbeat() bool {
	return f.Length == 0
}

// Stats counts what the scanner has seen since it was created.
type Stats struct {
	Frames           uint64 `json:"frames"`
	Heartbeats       uint64 `json:"heartbeats"`
	FooterMismatches uint64 `json:"footer_mismatches"`
	LengthErrors     uint64 `json:"length_errors"`
	SyncDiscards     uint64 `json:"sync_discards"`
	OverflowBytes    uint64 `json:"overflow_bytes"`
}

// Scanner recovers data frames from an unstructured byte stream. Bytes are
// pushed in with Feed as they become available and frames are pulled out
// with Next, at most one per call. Neither call blocks.
//
// A Scanner is not safe for concurrent use; it is owned by the single loop
// that reads the serial link.
type Scanner struct {
	buf        [ScannerBufferSize]byte
	start, end int

	stats Stats
	debug *DebugBuffer
}

// NewScanner returns an empty scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// SetDebugBuffer mirrors the raw bytes of every attempted frame into d.
func (s *Scanner) SetDebugBuffer(d *DebugBuffer) {
	s.debug = d
}

// Stats returns a copy of the scanner counters.
func (s *Scanner) Stats() Stats {
	return s.stats
}

// Buffered returns the number of bytes waiting to be scanned.
func (s *Scanner) Buffered() int {
	return s.end - s.start
}

// Reset discards all buffered bytes. Counters are kept.
func (s *Scanner) Reset() {
	s.start, s.end = 0, 0
}

// Feed appends p to the pending buffer. When the buffer would overflow the
// oldest bytes are dropped; the resync logic recovers from the gap.
func (s *Scanner) Feed(p []byte) {
	if len(p) > len(s.buf) {
		s.stats.OverflowBytes += uint64(len(p) - len(s.buf))
		p = p[len(p)-len(s.buf):]
	}
	s.compact()
	if free := len(s.buf) - s.end; len(p) > free {
		drop := len(p) - free
		s.start += drop
		s.stats.OverflowBytes += uint64(drop)
		s.compact()
	}
	s.end += copy(s.buf[s.end:], p)
}

// Next decodes the next frame from the buffered bytes. It returns
// ErrIncomplete when more bytes are needed and a *LengthError when the length
// field is implausible. Sync loss is handled internally by dropping bytes and
// is never reported.
func (s *Scanner) Next() (Frame, error) {
	var f Frame
	if !s.sync() {
		return f, ErrIncomplete
	}

	pending := s.pending()
	if len(pending) < headerLen+lengthLen {
		return f, ErrIncomplete
	}

	length := binary.LittleEndian.Uint16(pending[headerLen:])
	if length > MaxPayloadLen {
		s.mirror(pending[:headerLen+lengthLen])
		s.start++ // resync from the byte after this header
		s.stats.LengthErrors++
		return f, &LengthError{Length: length}
	}

	total := frameOverhead + int(length)
	if len(pending) < total {
		return f, ErrIncomplete
	}

	raw := pending[:total]
	s.mirror(raw)

	f.Length = length
	copy(f.payload[:], raw[headerLen+lengthLen:total-footerLen])
	f.FooterOK = bytes.Equal(raw[total-footerLen:], DataFrameFooter[:])
	s.start += total

	s.stats.Frames++
	if length == 0 {
		s.stats.Heartbeats++
	}
	if !f.FooterOK {
		s.stats.FooterMismatches++
	}
	return f, nil
}

// sync drops leading bytes until the buffer begins with the frame header. It
// returns false when the buffer is empty or holds only a partial header.
func (s *Scanner) sync() bool {
	for s.start < s.end {
		p := s.pending()
		n := min(len(p), headerLen)
		if bytes.Equal(p[:n], DataFrameHeader[:n]) {
			return n == headerLen
		}
		s.start++
		s.stats.SyncDiscards++
	}
	return false
}

func (s *Scanner) pending() []byte {
	return s.buf[s.start:s.end]
}

func (s *Scanner) compact() {
	if s.start == 0 {
		return
	}
	n := copy(s.buf[:], s.buf[s.start:s.end])
	s.start, s.end = 0, n
}

func (s *Scanner) mirror(raw []byte) {
	if s.debug != nil {
		s.debug.Record(raw)
	}
}
