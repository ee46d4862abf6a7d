package monitoring

import (
	"fmt"
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Sampler forwards the first call and then one in every N calls to Logf.
// The radar link can produce a malformed frame per read when a cable is loose,
// so the decode loop logs those through a Sampler.
type Sampler struct {
	every uint64
	count atomic.Uint64
}

// NewSampler returns a Sampler logging one in every n calls. n < 1 logs every call.
func NewSampler(n uint64) *Sampler {
	if n < 1 {
		n = 1
	}
	return &Sampler{every: n}
}

// Logf logs when the call count is 1, 1+n, 1+2n, ... and reports the running count.
func (s *Sampler) Logf(format string, v ...interface{}) {
	c := s.count.Add(1)
	if (c-1)%s.every != 0 {
		return
	}
	Logf("%s (occurrences: %d)", fmt.Sprintf(format, v...), c)
}

// Count returns how many times Logf was called.
func (s *Sampler) Count() uint64 {
	return s.count.Load()
}
