package radar

import (
	"fmt"
	"time"
)

// State is where the current detection episode stands.
type State int

const (
	// StateIdle means nothing is being tracked.
	StateIdle State = iota
	// StateActive means targets were reported within the persist window.
	StateActive
	// StateLingering means the episode has lasted past the linger threshold.
	StateLingering
	// StateClearing is reported for the single step in which a stale episode
	// is torn down; the lifecycle is Idle again once that step returns.
	StateClearing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateLingering:
		return "lingering"
	case StateClearing:
		return "clearing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for c := StateIdle; c <= StateClearing; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Transition is the outcome of a Lifecycle.Tick.
type Transition int

const (
	TransitionNone Transition = iota
	// TransitionCleared fires when the persist window expired.
	TransitionCleared
	// TransitionLingerStarted fires once per episode when it crosses the
	// linger threshold.
	TransitionLingerStarted
)

// Lifecycle decides whether the latest detection set is live, lingering or
// stale.
type Lifecycle struct {
	persistTimeout  time.Duration
	lingerThreshold time.Duration

	lastValidFrame  time.Time
	detectionStart  time.Time
	lingerAlertSent bool
	activeCount     int
	state           State
}

// NewLifecycle returns an idle lifecycle. A lingerThreshold <= 0 disables the
// lingering signal.
func NewLifecycle(persistTimeout, lingerThreshold time.Duration) *Lifecycle {
	return &Lifecycle{
		persistTimeout:  persistTimeout,
		lingerThreshold: lingerThreshold,
	}
}

// Detect records a decoded frame that reported count targets. Frames with no
// targets do not refresh the persist window.
func (l *Lifecycle) Detect(now time.Time, count int) {
	if count <= 0 {
		return
	}
	l.lastValidFrame = now
	l.activeCount = count
	if l.detectionStart.IsZero() {
		l.detectionStart = now
	}
	if l.state != StateLingering {
		l.state = StateActive
	}
}

// Tick applies the staleness and linger rules at now.
func (l *Lifecycle) Tick(now time.Time) Transition {
	if l.state == StateIdle {
		return TransitionNone
	}
	if now.Sub(l.lastValidFrame) > l.persistTimeout {
		l.activeCount = 0
		l.detectionStart = time.Time{}
		l.lingerAlertSent = false
		l.state = StateIdle
		return TransitionCleared
	}
	if l.lingerThreshold > 0 && !l.lingerAlertSent && now.Sub(l.detectionStart) > l.lingerThreshold {
		l.lingerAlertSent = true
		l.state = StateLingering
		return TransitionLingerStarted
	}
	return TransitionNone
}

func (l *Lifecycle) State() State              { return l.state }
func (l *Lifecycle) ActiveCount() int          { return l.activeCount }
func (l *Lifecycle) Lingering() bool           { return l.state == StateLingering }
func (l *Lifecycle) LastValidFrame() time.Time { return l.lastValidFrame }
func (l *Lifecycle) DetectionStart() time.Time { return l.detectionStart }

// PersistTimeout returns the staleness window.
func (l *Lifecycle) PersistTimeout() time.Duration { return l.persistTimeout }
