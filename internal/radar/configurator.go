package radar

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/monitoring"
	"github.com/banshee-data/approach.warning/internal/timeutil"
)

// DefaultSettleDelay is the pause between frames of a handshake. The sensor
// drops commands that arrive back to back.
const DefaultSettleDelay = 60 * time.Millisecond

// CommandWriter sends one complete command frame to the sensor.
type CommandWriter interface {
	SendCommand(frame []byte) error
}

// Handshake operations recorded in HandshakeRecord.Op.
const (
	OpConfigure    = "configure"
	OpRestart      = "restart"
	OpFactoryReset = "factory-reset"
)

// HandshakeRecord describes one attempted command sequence.
type HandshakeRecord struct {
	ID        string        `json:"id"`
	Op        string        `json:"op"`
	Params    ld2451.Params `json:"params"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	// Err is empty on success.
	Err string `json:"error,omitempty"`
}

// HandshakeRecorder persists handshake attempts.
type HandshakeRecorder interface {
	RecordHandshake(rec HandshakeRecord) error
}

// HandshakeError reports which frame of a sequence failed to send.
type HandshakeError struct {
	Op string
	// Step is the zero-based index of the failing frame.
	Step    int
	Command ld2451.CommandWord
	Err     error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%s handshake failed at step %d (%s): %v", e.Op, e.Step, e.Command, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ConfiguratorConfig configures a Configurator.
type ConfiguratorConfig struct {
	Clock       timeutil.Clock
	SettleDelay time.Duration
	// Initial is reported by Params until the first successful Apply.
	Initial  ld2451.Params
	Recorder HandshakeRecorder
}

// Configurator writes reporting parameters to the sensor and remembers the
// last set that was fully sent. Handshakes are serialised.
type Configurator struct {
	w        CommandWriter
	clock    timeutil.Clock
	settle   time.Duration
	recorder HandshakeRecorder

	mu sync.Mutex // held for the duration of a handshake

	paramsMu    sync.RWMutex
	params      ld2451.Params
	lastApplied time.Time
}

// NewConfigurator returns a Configurator writing to w.
func NewConfigurator(w CommandWriter, cfg ConfiguratorConfig) *Configurator {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.Initial == (ld2451.Params{}) {
		cfg.Initial = ld2451.DefaultParams()
	}
	return &Configurator{
		w:        w,
		clock:    cfg.Clock,
		settle:   cfg.SettleDelay,
		recorder: cfg.Recorder,
		params:   cfg.Initial,
	}
}

// Params returns the last successfully applied parameters.
func (c *Configurator) Params() ld2451.Params {
	c.paramsMu.RLock()
	defer c.paramsMu.RUnlock()
	return c.params
}

// LastApplied is when Apply last succeeded, zero if never.
func (c *Configurator) LastApplied() time.Time {
	c.paramsMu.RLock()
	defer c.paramsMu.RUnlock()
	return c.lastApplied
}

// Apply validates p and sends the configuration handshake. The cached
// parameters change only if every frame was written.
func (c *Configurator) Apply(p ld2451.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	steps := ld2451.Handshake(p)
	if err := c.run(OpConfigure, p, steps[:]); err != nil {
		return err
	}
	c.paramsMu.Lock()
	c.params = p
	c.lastApplied = c.clock.Now()
	c.paramsMu.Unlock()
	return nil
}

// Restart enters configuration mode and asks the sensor to reboot.
func (c *Configurator) Restart() error {
	return c.run(OpRestart, c.Params(), [][]byte{
		ld2451.EnableConfigCommand(),
		ld2451.RestartCommand(),
	})
}

// FactoryReset restores the sensor defaults and reboots it so they take
// effect. The cached parameters return to the defaults on success.
func (c *Configurator) FactoryReset() error {
	err := c.run(OpFactoryReset, ld2451.DefaultParams(), [][]byte{
		ld2451.EnableConfigCommand(),
		ld2451.FactoryResetCommand(),
		ld2451.RestartCommand(),
	})
	if err != nil {
		return err
	}
	c.paramsMu.Lock()
	c.params = ld2451.DefaultParams()
	c.paramsMu.Unlock()
	return nil
}

func (c *Configurator) run(op string, p ld2451.Params, frames [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := HandshakeRecord{
		ID:        uuid.NewString(),
		Op:        op,
		Params:    p,
		StartedAt: c.clock.Now(),
	}
	err := c.send(op, frames)
	rec.Duration = c.clock.Since(rec.StartedAt)
	if err != nil {
		rec.Err = err.Error()
		monitoring.Logf("radar: %v", err)
	}
	if c.recorder != nil {
		if rerr := c.recorder.RecordHandshake(rec); rerr != nil {
			monitoring.Logf("radar: failed to record %s handshake: %v", op, rerr)
		}
	}
	return err
}

func (c *Configurator) send(op string, frames [][]byte) error {
	if c.w == nil {
		return &HandshakeError{Op: op, Err: errors.New("no command writer")}
	}
	for i, frame := range frames {
		if i > 0 && c.settle > 0 {
			c.clock.Sleep(c.settle)
		}
		if err := c.w.SendCommand(frame); err != nil {
			cmd, _, _ := ld2451.DecodeCommand(frame)
			return &HandshakeError{Op: op, Step: i, Command: cmd, Err: err}
		}
	}
	return nil
}
