package radar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func dataFrame(targets ...ld2451.Target) []byte {
	return ld2451.EncodeDataFrame(targets, ld2451.DirectionByteApproaching, ld2451.DirectionByteReceding)
}

func newTestEngine() *Engine {
	return NewEngine(EngineConfig{
		Decoder:         ld2451.DefaultDecoder(),
		Smoother:        NewEMASmoother(DefaultAlpha),
		PersistTimeout:  250 * time.Millisecond,
		LingerThreshold: 5 * time.Second,
	})
}

func TestEngineExampleFrame(t *testing.T) {
	e := newTestEngine()
	ev := e.Step(t0, dataFrame(ld2451.Target{Distance: 10, Approaching: true, Speed: 30, SNR: 4}))

	require.True(t, ev.Frame)
	assert.Equal(t, 1, ev.Targets)
	assert.True(t, ev.Activated.Has(0))
	assert.Equal(t, StateActive, ev.State)

	snap := e.Snapshot(t0)
	assert.Equal(t, StateActive, snap.State)
	require.Len(t, snap.Targets, 1)
	got := snap.Targets[0]
	assert.Equal(t, 0, got.Angle)
	assert.EqualValues(t, 10, got.Distance)
	assert.True(t, got.Approaching)
	assert.EqualValues(t, 30, got.Speed)
	assert.Equal(t, 10.0, got.SmoothedDistance)
	assert.EqualValues(t, 1, got.Epoch)
	assert.True(t, snap.HasApproachingThreat(20))
	assert.False(t, snap.HasApproachingThreat(31))
}

func TestEngineStalenessBoundary(t *testing.T) {
	e := newTestEngine()
	e.Step(t0, dataFrame(ld2451.Target{Distance: 12, Approaching: true, Speed: 20}))

	ev := e.Step(t0.Add(250*time.Millisecond), nil)
	assert.False(t, ev.Cleared)
	assert.Equal(t, 1, e.ActiveCount())

	ev = e.Step(t0.Add(251*time.Millisecond), nil)
	assert.True(t, ev.Cleared)
	assert.Equal(t, StateClearing, ev.State)
	assert.Equal(t, 0, e.ActiveCount())
	snap := e.Snapshot(t0.Add(251 * time.Millisecond))
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Targets)
	_, ok := snap.Closest()
	assert.False(t, ok)
}

func TestEngineHeartbeatHoldsTargets(t *testing.T) {
	e := newTestEngine()
	heartbeat := dataFrame()
	e.Step(t0, dataFrame(ld2451.Target{Distance: 8, Speed: 5}))

	ev := e.Step(t0.Add(100*time.Millisecond), heartbeat)
	assert.True(t, ev.Heartbeat)
	assert.Equal(t, 1, e.ActiveCount())

	// Heartbeats do not refresh the persist window.
	ev = e.Step(t0.Add(260*time.Millisecond), heartbeat)
	assert.True(t, ev.Cleared)
}

func TestEngineLingerFiresOnce(t *testing.T) {
	e := newTestEngine()
	var lingers, clears int
	for ms := 0; ms <= 7000; ms += 50 {
		ev := e.Step(t0.Add(time.Duration(ms)*time.Millisecond), dataFrame(ld2451.Target{Distance: 3, Speed: 1}))
		if ev.LingerStarted {
			lingers++
		}
		if ev.Cleared {
			clears++
		}
	}
	assert.Equal(t, 1, lingers)
	assert.Zero(t, clears)
	assert.True(t, e.Snapshot(t0.Add(7*time.Second)).Lingering)
}

func TestEngineSlotEpochsAndRelease(t *testing.T) {
	e := newTestEngine()
	a := ld2451.Target{Distance: 10, Speed: 10}
	b := ld2451.Target{Distance: 20, Speed: 10}

	ev := e.Step(t0, dataFrame(a, b))
	assert.Equal(t, SlotMask(0b11), ev.Activated)

	e.Step(t0.Add(50*time.Millisecond), dataFrame(a, ld2451.Target{Distance: 25}))
	ev = e.Step(t0.Add(100*time.Millisecond), dataFrame(a))
	assert.True(t, ev.Released.Has(1))
	assert.Equal(t, 1, e.ActiveCount())

	// Slot 1 comes back as a new episode with fresh smoothing.
	ev = e.Step(t0.Add(150*time.Millisecond), dataFrame(a, ld2451.Target{Distance: 30}))
	assert.True(t, ev.Activated.Has(1))
	snap := e.Snapshot(t0.Add(150 * time.Millisecond))
	require.Len(t, snap.Targets, 2)
	assert.EqualValues(t, 1, snap.Targets[0].Epoch)
	assert.EqualValues(t, 2, snap.Targets[1].Epoch)
	assert.Equal(t, 30.0, snap.Targets[1].SmoothedDistance)

	closest, ok := snap.Closest()
	require.True(t, ok)
	assert.Equal(t, 0, closest.Slot)
}

func TestEngineFlagsIdentityJump(t *testing.T) {
	e := newTestEngine()
	e.Step(t0, dataFrame(ld2451.Target{Distance: 5}))
	ev := e.Step(t0.Add(50*time.Millisecond), dataFrame(ld2451.Target{Distance: 40}))
	assert.True(t, ev.IdentitySuspect.Has(0))
	ev = e.Step(t0.Add(100*time.Millisecond), dataFrame(ld2451.Target{Distance: 38}))
	assert.False(t, ev.IdentitySuspect.Has(0))
}

func TestEngineConsumesOneFramePerStep(t *testing.T) {
	e := newTestEngine()
	var chunk []byte
	chunk = append(chunk, dataFrame(ld2451.Target{Distance: 10})...)
	chunk = append(chunk, dataFrame(ld2451.Target{Distance: 11})...)
	chunk = append(chunk, dataFrame(ld2451.Target{Distance: 12})...)

	frames := 0
	for i := 0; i < 5; i++ {
		ev := e.Step(t0.Add(time.Duration(i)*time.Millisecond), chunkOnce(&chunk))
		if ev.Frame {
			frames++
		}
	}
	assert.Equal(t, 3, frames)
	assert.EqualValues(t, 12, e.Snapshot(t0).Targets[0].Distance)
}

func chunkOnce(p *[]byte) []byte {
	b := *p
	*p = nil
	return b
}

func TestEngineReportsMalformedLength(t *testing.T) {
	e := newTestEngine()
	bad := []byte{0xF4, 0xF3, 0xF2, 0xF1, 0xFF, 0x00, 0x01, 0x02}
	ev := e.Step(t0, bad)
	assert.True(t, ev.Malformed)
	assert.False(t, ev.Frame)
	assert.Equal(t, StateIdle, e.State())
}

func TestEngineFooterMismatch(t *testing.T) {
	e := newTestEngine()
	f := dataFrame(ld2451.Target{Distance: 10})
	f[len(f)-1] = 0x00
	ev := e.Step(t0, f)
	assert.True(t, ev.Frame)
	assert.True(t, ev.FooterMismatch)
	assert.Equal(t, 1, ev.Targets)
}

func TestSnapshotStoreCopies(t *testing.T) {
	var s SnapshotStore
	assert.Equal(t, StateIdle, s.Load().State)

	snap := Snapshot{State: StateActive, Count: 1, Targets: []SmoothedTarget{{SmoothedDistance: 4}}}
	s.Publish(snap)
	snap.Targets[0].SmoothedDistance = 99

	got := s.Load()
	require.Len(t, got.Targets, 1)
	assert.Equal(t, 4.0, got.Targets[0].SmoothedDistance)
	got.Targets[0].SmoothedDistance = 77
	assert.Equal(t, 4.0, s.Load().Targets[0].SmoothedDistance)
}
