package radar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/approach.warning/internal/ld2451"
)

type memEpisodeStore struct {
	episodes     map[string]Episode
	order        []string
	observations []Observation
}

func newMemEpisodeStore() *memEpisodeStore {
	return &memEpisodeStore{episodes: make(map[string]Episode)}
}

func (m *memEpisodeStore) RecordEpisode(ep Episode) error {
	if _, ok := m.episodes[ep.ID]; !ok {
		m.order = append(m.order, ep.ID)
	}
	m.episodes[ep.ID] = ep
	return nil
}

func (m *memEpisodeStore) RecordObservations(obs []Observation) error {
	m.observations = append(m.observations, obs...)
	return nil
}

func TestEpisodeRecorderRecordsEpisode(t *testing.T) {
	store := newMemEpisodeStore()
	r := NewEpisodeRecorder(store)
	e := newTestEngine()

	run := func(at time.Duration, input []byte) {
		now := t0.Add(at)
		ev := e.Step(now, input)
		require.NoError(t, r.Observe(ev, e.Snapshot(now)))
	}

	run(0, dataFrame(ld2451.Target{Distance: 20, Approaching: true, Speed: 30}))
	run(100*time.Millisecond, dataFrame(ld2451.Target{Distance: 18, Approaching: true, Speed: 30}, ld2451.Target{Distance: 35, Speed: 10}))
	run(200*time.Millisecond, dataFrame(ld2451.Target{Distance: 16, Approaching: true, Speed: 30}))

	cur, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, 3, cur.Frames)
	require.Len(t, store.order, 1, "episode row opened on first frame")

	run(600*time.Millisecond, nil)
	_, ok = r.Current()
	assert.False(t, ok)

	ep := store.episodes[store.order[0]]
	assert.Equal(t, 3, ep.Frames)
	assert.Equal(t, 2, ep.MaxTargets)
	assert.Equal(t, 3, ep.ApproachingFrames)
	assert.Equal(t, t0, ep.StartedAt)
	assert.Equal(t, t0.Add(600*time.Millisecond), ep.EndedAt)
	assert.Equal(t, 25.0, ep.MeanSpeed)
	assert.Equal(t, 30.0, ep.MaxSpeed)
	assert.Greater(t, ep.SpeedStdDev, 0.0)
	assert.Less(t, ep.ClosestDistance, 20.0)
	assert.False(t, ep.Lingered)

	require.Len(t, store.observations, 4)
	for _, o := range store.observations {
		assert.Equal(t, ep.ID, o.EpisodeID)
	}
}

func TestEpisodeRecorderMarksLingering(t *testing.T) {
	store := newMemEpisodeStore()
	r := NewEpisodeRecorder(store)
	e := newTestEngine()

	var now time.Time
	for ms := 0; ms <= 5500; ms += 100 {
		now = t0.Add(time.Duration(ms) * time.Millisecond)
		ev := e.Step(now, dataFrame(ld2451.Target{Distance: 4, Speed: 2}))
		require.NoError(t, r.Observe(ev, e.Snapshot(now)))
	}
	now = now.Add(time.Second)
	ev := e.Step(now, nil)
	require.True(t, ev.Cleared)
	require.NoError(t, r.Observe(ev, e.Snapshot(now)))

	require.Len(t, store.order, 1)
	ep := store.episodes[store.order[0]]
	assert.True(t, ep.Lingered)
	assert.Equal(t, 56, ep.Frames)
	assert.Equal(t, 0.0, ep.SpeedStdDev)
	assert.Len(t, store.observations, 56)
}

func TestEpisodeRecorderCloseEndsOpenEpisode(t *testing.T) {
	store := newMemEpisodeStore()
	r := NewEpisodeRecorder(store)
	e := newTestEngine()

	ev := e.Step(t0, dataFrame(ld2451.Target{Distance: 12, Approaching: true, Speed: 20}))
	require.NoError(t, r.Observe(ev, e.Snapshot(t0)))
	assert.Empty(t, store.observations, "observations are batched")

	require.NoError(t, r.Close(t0.Add(50*time.Millisecond)))
	_, ok := r.Current()
	assert.False(t, ok)
	require.Len(t, store.order, 1)
	assert.Equal(t, t0.Add(50*time.Millisecond), store.episodes[store.order[0]].EndedAt)
	assert.Len(t, store.observations, 1)

	require.NoError(t, r.Close(t0.Add(time.Second)), "closing twice is a no-op")
}
