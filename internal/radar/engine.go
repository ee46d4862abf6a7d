// Package radar turns the LD2451 byte stream into a live picture of nearby
// vehicles: framing, decoding, per-slot smoothing and the detection
// lifecycle, driven one bounded step at a time.
package radar

import (
	"errors"
	"time"

	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/monitoring"
)

// Defaults for EngineConfig.
const (
	DefaultPersistTimeout  = 250 * time.Millisecond
	DefaultLingerThreshold = 5 * time.Second
	// DefaultIdentityJump is the distance change between consecutive frames
	// above which a slot is flagged as probably holding a different object.
	DefaultIdentityJump = 10.0
)

// EngineConfig configures an Engine. Zero values select the defaults.
type EngineConfig struct {
	Decoder         ld2451.Decoder
	Smoother        Smoother
	PersistTimeout  time.Duration
	LingerThreshold time.Duration
	// IdentityJump in metres; negative disables the check.
	IdentityJump float64
	// DebugBuffer, when set, receives every frame the scanner recovers.
	DebugBuffer *ld2451.DebugBuffer
}

// SmoothedTarget is a decoded target plus the engine's view of its slot.
type SmoothedTarget struct {
	ld2451.Target
	Slot int `json:"slot"`
	// Epoch counts how many times this slot went from empty to occupied. A
	// change in epoch means the slot now tracks a different episode.
	Epoch            uint64  `json:"epoch"`
	SmoothedDistance float64 `json:"smoothed_distance"`
}

// SlotMask has bit i set for slot i.
type SlotMask uint8

// Has reports whether slot i is set.
func (m SlotMask) Has(i int) bool { return i >= 0 && i < 8 && m&(1<<i) != 0 }

// Events summarises what happened during one Step.
type Events struct {
	// Frame is true when a complete frame was consumed.
	Frame     bool
	Heartbeat bool
	// FooterMismatch is set for a frame whose trailing marker was wrong.
	FooterMismatch bool
	// Malformed is set when a header declared an impossible length.
	Malformed bool
	// Targets is the number of records decoded from this step's frame.
	Targets   int
	Truncated int
	Activated SlotMask
	Released  SlotMask
	// IdentitySuspect flags slots whose distance jumped by more than the
	// configured threshold between frames.
	IdentitySuspect SlotMask
	Cleared         bool
	LingerStarted   bool
	State           State
}

type slotState struct {
	active bool
	epoch  uint64
}

// Engine owns the decode pipeline. It is not safe for concurrent use; a single
// loop calls Step and publishes snapshots for readers.
type Engine struct {
	scanner      *ld2451.Scanner
	decoder      ld2451.Decoder
	smoother     Smoother
	lifecycle    *Lifecycle
	identityJump float64

	slots     [ld2451.MaxTargets]slotState
	targets   [ld2451.MaxTargets]SmoothedTarget
	count     int
	lastFrame time.Time

	malformedLog *monitoring.Sampler
	footerLog    *monitoring.Sampler
	identityLog  *monitoring.Sampler
}

// NewEngine returns an engine in the Idle state.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Smoother == nil {
		cfg.Smoother = NewEMASmoother(DefaultAlpha)
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.IdentityJump == 0 {
		cfg.IdentityJump = DefaultIdentityJump
	}
	e := &Engine{
		scanner:      ld2451.NewScanner(),
		decoder:      cfg.Decoder,
		smoother:     cfg.Smoother,
		lifecycle:    NewLifecycle(cfg.PersistTimeout, cfg.LingerThreshold),
		identityJump: cfg.IdentityJump,
		malformedLog: monitoring.NewSampler(100),
		footerLog:    monitoring.NewSampler(100),
		identityLog:  monitoring.NewSampler(50),
	}
	if cfg.DebugBuffer != nil {
		e.scanner.SetDebugBuffer(cfg.DebugBuffer)
	}
	return e
}

// Step appends input to the pending stream, consumes at most one frame and
// applies the lifecycle rules at now. It never blocks.
func (e *Engine) Step(now time.Time, input []byte) Events {
	if len(input) > 0 {
		e.scanner.Feed(input)
	}

	var ev Events
	f, err := e.scanner.Next()
	switch {
	case err == nil:
		e.handleFrame(now, &f, &ev)
	case errors.Is(err, ld2451.ErrIncomplete):
	default:
		ev.Malformed = true
		e.malformedLog.Logf("radar: dropped malformed frame: %v", err)
	}

	tr := e.lifecycle.Tick(now)
	ev.State = e.lifecycle.State()
	switch tr {
	case TransitionCleared:
		e.clear()
		ev.Cleared = true
		ev.State = StateClearing
	case TransitionLingerStarted:
		ev.LingerStarted = true
	}
	return ev
}

func (e *Engine) handleFrame(now time.Time, f *ld2451.Frame, ev *Events) {
	ev.Frame = true
	e.lastFrame = now
	if !f.FooterOK {
		ev.FooterMismatch = true
		e.footerLog.Logf("radar: frame footer mismatch (length %d)", f.Length)
	}
	if f.IsHeartbeat() {
		ev.Heartbeat = true
		return
	}

	ts := e.decoder.Decode(f.Payload())
	ev.Targets = ts.Count
	ev.Truncated = ts.Truncated
	if ts.Count == 0 {
		// An empty report holds the previous set until it goes stale.
		return
	}

	for i := 0; i < ld2451.MaxTargets; i++ {
		if i >= ts.Count {
			if e.slots[i].active {
				e.release(i)
				ev.Released |= 1 << i
			}
			continue
		}
		t := ts.Targets[i]
		s := &e.slots[i]
		if !s.active {
			s.active = true
			s.epoch++
			ev.Activated |= 1 << i
		} else if e.identityJump > 0 {
			jump := float64(t.Distance) - float64(e.targets[i].Distance)
			if jump > e.identityJump || -jump > e.identityJump {
				ev.IdentitySuspect |= 1 << i
				e.identityLog.Logf("radar: slot %d distance jumped %dm -> %dm", i, e.targets[i].Distance, t.Distance)
			}
		}
		e.targets[i] = SmoothedTarget{
			Target:           t,
			Slot:             i,
			Epoch:            s.epoch,
			SmoothedDistance: e.smoother.Smooth(i, float64(t.Distance)),
		}
	}
	e.count = ts.Count
	e.lifecycle.Detect(now, ts.Count)
}

func (e *Engine) release(i int) {
	e.slots[i].active = false
	e.smoother.Reset(i)
	e.targets[i] = SmoothedTarget{}
}

func (e *Engine) clear() {
	for i := range e.slots {
		if e.slots[i].active {
			e.release(i)
		}
	}
	e.count = 0
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		At:             now,
		State:          e.lifecycle.State(),
		Count:          e.count,
		Lingering:      e.lifecycle.Lingering(),
		DetectionStart: e.lifecycle.DetectionStart(),
		LastValidFrame: e.lifecycle.LastValidFrame(),
		LastFrame:      e.lastFrame,
		Stats:          e.scanner.Stats(),
	}
	if e.count > 0 {
		snap.Targets = make([]SmoothedTarget, e.count)
		copy(snap.Targets, e.targets[:e.count])
	}
	return snap
}

// ActiveCount is the number of targets considered live.
func (e *Engine) ActiveCount() int { return e.count }

// State returns the lifecycle state.
func (e *Engine) State() State { return e.lifecycle.State() }
