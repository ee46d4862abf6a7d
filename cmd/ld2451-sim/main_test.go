package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/timeutil"
)

func TestRunWritesDecodableFrames(t *testing.T) {
	sim := ld2451.NewSimulator(7)
	sim.Spawn(40, 30, true)

	var buf bytes.Buffer
	n, err := run(context.Background(), &buf, sim, simConfig{Interval: 5 * time.Millisecond, Duration: 60 * time.Millisecond}, timeutil.RealClock{})
	require.NoError(t, err)
	require.Positive(t, n)

	s := ld2451.NewScanner()
	s.Feed(buf.Bytes())
	decoded := 0
	for {
		_, err := s.Next()
		if errors.Is(err, ld2451.ErrIncomplete) {
			break
		}
		require.NoError(t, err)
		decoded++
	}
	assert.Equal(t, n, decoded)
}

func TestRunHexOutput(t *testing.T) {
	sim := ld2451.NewSimulator(7)
	sim.SpawnRate = 0

	var buf bytes.Buffer
	n, err := run(context.Background(), &buf, sim, simConfig{Interval: 5 * time.Millisecond, Duration: 30 * time.Millisecond, Hex: true}, timeutil.RealClock{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, n)
	raw, err := hex.DecodeString(lines[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF4, 0xF3, 0xF2, 0xF1, 0x00, 0x00, 0xF8, 0xF7, 0xF6, 0xF5}, raw, "empty road sends heartbeats")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("device unplugged") }

func TestRunStopsOnWriteError(t *testing.T) {
	_, err := run(context.Background(), failingWriter{}, ld2451.NewSimulator(1), simConfig{Interval: time.Millisecond}, timeutil.RealClock{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := run(ctx, &bytes.Buffer{}, ld2451.NewSimulator(1), simConfig{Interval: time.Hour}, timeutil.RealClock{})
	require.NoError(t, err)
	assert.Zero(t, n)
}
