package radar

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/timeutil"
)

type fakeWriter struct {
	mu     sync.Mutex
	frames [][]byte
	failAt int // zero-based frame index to fail on, -1 never
	err    error
}

func newFakeWriter() *fakeWriter { return &fakeWriter{failAt: -1} }

func (w *fakeWriter) SendCommand(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.frames) == w.failAt {
		w.frames = append(w.frames, nil)
		return w.err
	}
	w.frames = append(w.frames, append([]byte(nil), frame...))
	return nil
}

type fakeHandshakeRecorder struct {
	records []HandshakeRecord
}

func (r *fakeHandshakeRecorder) RecordHandshake(rec HandshakeRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func newTestConfigurator(w CommandWriter) (*Configurator, *timeutil.MockClock, *fakeHandshakeRecorder) {
	clock := timeutil.NewMockClock(t0)
	rec := &fakeHandshakeRecorder{}
	c := NewConfigurator(w, ConfiguratorConfig{
		Clock:       clock,
		SettleDelay: DefaultSettleDelay,
		Recorder:    rec,
	})
	return c, clock, rec
}

func TestConfiguratorApplySendsHandshake(t *testing.T) {
	w := newFakeWriter()
	c, clock, rec := newTestConfigurator(w)

	p := ld2451.Params{MaxDistance: 60, Direction: ld2451.DirectionApproaching, MinSpeed: 5, ReportDelay: 2, TriggerCount: 3, SNRThreshold: 4}
	require.NoError(t, c.Apply(p))

	want := ld2451.Handshake(p)
	if diff := cmp.Diff(want[:], w.frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []time.Duration{DefaultSettleDelay, DefaultSettleDelay, DefaultSettleDelay}, clock.Sleeps())
	assert.Equal(t, p, c.Params())
	assert.Equal(t, t0.Add(3*DefaultSettleDelay), c.LastApplied())

	require.Len(t, rec.records, 1)
	assert.Equal(t, OpConfigure, rec.records[0].Op)
	assert.Empty(t, rec.records[0].Err)
	assert.Equal(t, 3*DefaultSettleDelay, rec.records[0].Duration)
	assert.NotEmpty(t, rec.records[0].ID)
}

func TestConfiguratorApplyFailureKeepsParams(t *testing.T) {
	w := newFakeWriter()
	w.failAt = 2
	w.err = errors.New("write timeout")
	c, _, rec := newTestConfigurator(w)
	before := c.Params()

	err := c.Apply(ld2451.Params{MaxDistance: 90, Direction: ld2451.DirectionBoth, TriggerCount: 2})
	require.Error(t, err)

	var herr *HandshakeError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 2, herr.Step)
	assert.Equal(t, ld2451.CmdSetSensitivity, herr.Command)
	assert.ErrorIs(t, err, w.err)
	assert.Equal(t, before, c.Params())
	assert.True(t, c.LastApplied().IsZero())
	assert.Len(t, w.frames, 3, "no frames after the failure")

	require.Len(t, rec.records, 1)
	assert.Contains(t, rec.records[0].Err, "write timeout")
}

func TestConfiguratorRejectsInvalidParams(t *testing.T) {
	w := newFakeWriter()
	c, _, rec := newTestConfigurator(w)

	err := c.Apply(ld2451.Params{MaxDistance: 0, TriggerCount: 1})
	require.Error(t, err)
	var herr *HandshakeError
	assert.False(t, errors.As(err, &herr))
	assert.Empty(t, w.frames)
	assert.Empty(t, rec.records)
}

func TestConfiguratorRestartAndFactoryReset(t *testing.T) {
	w := newFakeWriter()
	c, _, rec := newTestConfigurator(w)
	require.NoError(t, c.Apply(ld2451.Params{MaxDistance: 30, Direction: ld2451.DirectionBoth, TriggerCount: 3, SNRThreshold: 10}))
	w.frames = nil

	require.NoError(t, c.Restart())
	assert.Equal(t, [][]byte{ld2451.EnableConfigCommand(), ld2451.RestartCommand()}, w.frames)
	assert.EqualValues(t, 30, c.Params().MaxDistance)

	w.frames = nil
	require.NoError(t, c.FactoryReset())
	assert.Equal(t, [][]byte{ld2451.EnableConfigCommand(), ld2451.FactoryResetCommand(), ld2451.RestartCommand()}, w.frames)
	assert.Equal(t, ld2451.DefaultParams(), c.Params())

	ops := make([]string, 0, len(rec.records))
	for _, r := range rec.records {
		ops = append(ops, r.Op)
	}
	assert.Equal(t, []string{OpConfigure, OpRestart, OpFactoryReset}, ops)
}

func TestConfiguratorWithoutWriter(t *testing.T) {
	c := NewConfigurator(nil, ConfiguratorConfig{Clock: timeutil.NewMockClock(t0)})
	var herr *HandshakeError
	assert.ErrorAs(t, c.Apply(ld2451.DefaultParams()), &herr)
	assert.Equal(t, ld2451.DefaultParams(), c.Params())
}

func TestConfiguratorSerialisesHandshakes(t *testing.T) {
	w := newFakeWriter()
	c := NewConfigurator(w, ConfiguratorConfig{Clock: timeutil.NewMockClock(t0), SettleDelay: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(d uint8) {
			defer wg.Done()
			p := ld2451.DefaultParams()
			p.MaxDistance = 10 + d
			assert.NoError(t, c.Apply(p))
		}(uint8(i))
	}
	wg.Wait()

	require.Len(t, w.frames, 4*ld2451.HandshakeSteps)
	for i := 0; i < len(w.frames); i += ld2451.HandshakeSteps {
		cmd, _, err := ld2451.DecodeCommand(w.frames[i])
		require.NoError(t, err)
		assert.Equal(t, ld2451.CmdEnableConfig, cmd, "handshake %d interleaved", i/ld2451.HandshakeSteps)
		cmd, _, err = ld2451.DecodeCommand(w.frames[i+3])
		require.NoError(t, err)
		assert.Equal(t, ld2451.CmdEndConfig, cmd)
	}
}
