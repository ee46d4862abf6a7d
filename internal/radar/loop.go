package radar

import (
	"context"
	"time"

	"github.com/banshee-data/approach.warning/internal/monitoring"
	"github.com/banshee-data/approach.warning/internal/timeutil"
)

// DefaultStepInterval is how often the loop steps the engine when no bytes
// arrive, so stale detections clear and buffered frames drain.
const DefaultStepInterval = 20 * time.Millisecond

// LoopConfig wires an Engine to its inputs and outputs.
type LoopConfig struct {
	Clock    timeutil.Clock
	Interval time.Duration
	// Snapshots receives a snapshot after every step.
	Snapshots *SnapshotStore
	// Recorder is optional.
	Recorder *EpisodeRecorder
	// OnEvents, if set, is called after every step that did something.
	OnEvents func(Events, Snapshot)
}

// Run steps e with every chunk received on chunks and on every tick until ctx
// is done or chunks is closed.
func Run(ctx context.Context, e *Engine, chunks <-chan []byte, cfg LoopConfig) error {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultStepInterval
	}
	ticker := cfg.Clock.NewTicker(cfg.Interval)
	defer ticker.Stop()
	if cfg.Recorder != nil {
		defer func() {
			if err := cfg.Recorder.Close(cfg.Clock.Now()); err != nil {
				monitoring.Logf("radar: episode recorder: %v", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			step(e, cfg, chunk)
		case <-ticker.C():
			step(e, cfg, nil)
		}
	}
}

func step(e *Engine, cfg LoopConfig, chunk []byte) {
	now := cfg.Clock.Now()
	ev := e.Step(now, chunk)
	snap := e.Snapshot(now)
	if cfg.Snapshots != nil {
		cfg.Snapshots.Publish(snap)
	}

	switch {
	case ev.LingerStarted:
		monitoring.Logf("radar: %d target(s) lingering for %s", snap.Count, snap.DetectionDuration().Round(time.Millisecond))
	case ev.Cleared:
		monitoring.Logf("radar: detection cleared")
	}

	if cfg.Recorder != nil {
		if err := cfg.Recorder.Observe(ev, snap); err != nil {
			monitoring.Logf("radar: episode recorder: %v", err)
		}
	}
	if cfg.OnEvents != nil && (ev.Frame || ev.Malformed || ev.Cleared || ev.LingerStarted) {
		cfg.OnEvents(ev, snap)
	}
}
