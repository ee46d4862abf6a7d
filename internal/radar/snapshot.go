package radar

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/approach.warning/internal/ld2451"
)

// Snapshot is a point-in-time copy of the engine state, safe to hand to other
// goroutines.
type Snapshot struct {
	At             time.Time        `json:"at"`
	State          State            `json:"state"`
	Count          int              `json:"count"`
	Targets        []SmoothedTarget `json:"targets"`
	Lingering      bool             `json:"lingering"`
	DetectionStart time.Time        `json:"detection_start"`
	LastValidFrame time.Time        `json:"last_valid_frame"`
	LastFrame      time.Time        `json:"last_frame"`
	Stats          ld2451.Stats     `json:"stats"`
}

// Closest returns the target with the smallest smoothed distance.
func (s Snapshot) Closest() (SmoothedTarget, bool) {
	if len(s.Targets) == 0 {
		return SmoothedTarget{}, false
	}
	best := s.Targets[0]
	for _, t := range s.Targets[1:] {
		if t.SmoothedDistance < best.SmoothedDistance {
			best = t
		}
	}
	return best, true
}

// HasApproachingThreat reports whether any live target is approaching at or
// above minSpeed km/h.
func (s Snapshot) HasApproachingThreat(minSpeed uint8) bool {
	for _, t := range s.Targets {
		if t.Approaching && t.Speed >= minSpeed {
			return true
		}
	}
	return false
}

// DetectionDuration is how long the current episode has lasted at s.At.
func (s Snapshot) DetectionDuration() time.Duration {
	if s.DetectionStart.IsZero() {
		return 0
	}
	return s.At.Sub(s.DetectionStart)
}

func (s Snapshot) clone() Snapshot {
	if s.Targets != nil {
		s.Targets = append([]SmoothedTarget(nil), s.Targets...)
	}
	return s
}

// SnapshotStore publishes the latest Snapshot from the step loop to readers.
type SnapshotStore struct {
	p atomic.Pointer[Snapshot]
}

// Publish replaces the current snapshot with a copy of snap.
func (s *SnapshotStore) Publish(snap Snapshot) {
	c := snap.clone()
	s.p.Store(&c)
}

// Load returns a copy of the latest snapshot, or an idle one if nothing has
// been published yet.
func (s *SnapshotStore) Load() Snapshot {
	p := s.p.Load()
	if p == nil {
		return Snapshot{State: StateIdle}
	}
	return p.clone()
}
