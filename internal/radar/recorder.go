package radar

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// Episode summarises one detection episode, from the first frame with
// targets until the persist window expired.
type Episode struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	Lingered          bool      `json:"lingered"`
	Frames            int       `json:"frames"`
	MaxTargets        int       `json:"max_targets"`
	ApproachingFrames int       `json:"approaching_frames"`
	// ClosestDistance is the smallest smoothed distance seen, in metres.
	ClosestDistance float64 `json:"closest_distance"`
	// MeanSpeed and SpeedStdDev are over every target report, in km/h.
	MeanSpeed   float64 `json:"mean_speed"`
	SpeedStdDev float64 `json:"speed_stddev"`
	MaxSpeed    float64 `json:"max_speed"`
}

// Duration is how long the episode lasted.
func (e Episode) Duration() time.Duration { return e.EndedAt.Sub(e.StartedAt) }

// Observation is one target report within an episode.
type Observation struct {
	EpisodeID string    `json:"episode_id"`
	At        time.Time `json:"at"`
	SmoothedTarget
}

// EpisodeStore persists episodes and their observations. RecordEpisode is
// called when an episode opens and again when it closes, so it must upsert by
// ID.
type EpisodeStore interface {
	RecordEpisode(ep Episode) error
	RecordObservations(obs []Observation) error
}

const (
	// observationBatch is how many observations are buffered before a write.
	observationBatch = 64
	// maxSpeedSamples bounds the per-episode speed history kept for stats.
	maxSpeedSamples = 4096
)

// EpisodeRecorder follows engine events and writes episode history. It is
// driven from the step loop and is not safe for concurrent use.
type EpisodeRecorder struct {
	store EpisodeStore

	current *Episode
	speeds  []float64
	pending []Observation
}

// NewEpisodeRecorder returns a recorder writing to store.
func NewEpisodeRecorder(store EpisodeStore) *EpisodeRecorder {
	return &EpisodeRecorder{
		store:   store,
		speeds:  make([]float64, 0, 256),
		pending: make([]Observation, 0, observationBatch),
	}
}

// Current returns a copy of the in-progress episode.
func (r *EpisodeRecorder) Current() (Episode, bool) {
	if r.current == nil {
		return Episode{}, false
	}
	return *r.current, true
}

// Observe folds one step's events into the episode history. snap must be the
// snapshot taken after that step.
func (r *EpisodeRecorder) Observe(ev Events, snap Snapshot) error {
	if ev.Frame && ev.Targets > 0 {
		if err := r.observeFrame(snap); err != nil {
			return err
		}
	}
	if ev.LingerStarted && r.current != nil {
		r.current.Lingered = true
	}
	if ev.Cleared {
		return r.finish(snap.At)
	}
	return nil
}

func (r *EpisodeRecorder) observeFrame(snap Snapshot) error {
	if r.current == nil {
		r.current = &Episode{
			ID:              uuid.NewString(),
			StartedAt:       snap.At,
			ClosestDistance: -1,
		}
		r.speeds = r.speeds[:0]
		if err := r.store.RecordEpisode(*r.current); err != nil {
			return fmt.Errorf("open episode %s: %w", r.current.ID, err)
		}
	}
	ep := r.current
	ep.Frames++
	ep.EndedAt = snap.At
	ep.MaxTargets = max(ep.MaxTargets, len(snap.Targets))
	approaching := false
	for _, t := range snap.Targets {
		if ep.ClosestDistance < 0 || t.SmoothedDistance < ep.ClosestDistance {
			ep.ClosestDistance = t.SmoothedDistance
		}
		if t.Approaching {
			approaching = true
		}
		if len(r.speeds) < maxSpeedSamples {
			r.speeds = append(r.speeds, float64(t.Speed))
		}
		r.pending = append(r.pending, Observation{EpisodeID: ep.ID, At: snap.At, SmoothedTarget: t})
	}
	if approaching {
		ep.ApproachingFrames++
	}
	if len(r.pending) >= observationBatch {
		return r.flush()
	}
	return nil
}

// Close ends any in-progress episode at at and writes buffered observations.
// It is called when the step loop stops.
func (r *EpisodeRecorder) Close(at time.Time) error {
	return r.finish(at)
}

func (r *EpisodeRecorder) finish(at time.Time) error {
	if r.current == nil {
		return nil
	}
	ep := r.current
	r.current = nil
	ep.EndedAt = at
	if ep.ClosestDistance < 0 {
		ep.ClosestDistance = 0
	}
	if len(r.speeds) > 0 {
		ep.MeanSpeed, ep.SpeedStdDev = stat.MeanStdDev(r.speeds, nil)
		if len(r.speeds) == 1 {
			ep.SpeedStdDev = 0
		}
		for _, s := range r.speeds {
			ep.MaxSpeed = max(ep.MaxSpeed, s)
		}
	}

	if err := r.store.RecordEpisode(*ep); err != nil {
		r.pending = r.pending[:0]
		return fmt.Errorf("record episode %s: %w", ep.ID, err)
	}
	return r.flush()
}

func (r *EpisodeRecorder) flush() error {
	if len(r.pending) == 0 {
		return nil
	}
	batch := r.pending
	r.pending = make([]Observation, 0, observationBatch)
	if err := r.store.RecordObservations(batch); err != nil {
		return fmt.Errorf("record %d observations: %w", len(batch), err)
	}
	return nil
}
