// Command ld2451-sim writes a synthetic LD2451 data stream to a serial port or
// stdout so the radar daemon can be bench tested without a sensor.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/serialmux"
	"github.com/banshee-data/approach.warning/internal/timeutil"
	"github.com/banshee-data/approach.warning/internal/version"
)

var (
	port        = flag.String("port", "", "Serial port to write to, stdout when empty")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	interval    = flag.Duration("interval", 100*time.Millisecond, "Time between frames")
	duration    = flag.Duration("duration", 0, "Stop after this long, 0 runs until interrupted")
	seed        = flag.Int64("seed", 0, "Random seed, 0 seeds from the clock")
	spawnRate   = flag.Float64("spawn", 0.4, "Mean vehicles per second")
	noise       = flag.Float64("noise", 0, "Probability of junk bytes before a frame")
	hexOut      = flag.Bool("hex", false, "Write one hex line per frame instead of raw bytes")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

type simConfig struct {
	Interval time.Duration
	Duration time.Duration
	Hex      bool
}

// run writes one frame per interval to w until ctx is done or the duration
// elapses. It returns the number of frames written.
func run(ctx context.Context, w io.Writer, sim *ld2451.Simulator, cfg simConfig, clock timeutil.Clock) (int, error) {
	ticker := clock.NewTicker(cfg.Interval)
	defer ticker.Stop()

	start := clock.Now()
	frames := 0
	for {
		select {
		case <-ctx.Done():
			return frames, nil
		case <-ticker.C():
		}
		if cfg.Duration > 0 && clock.Since(start) > cfg.Duration {
			return frames, nil
		}

		frame := sim.Next(cfg.Interval)
		var err error
		if cfg.Hex {
			_, err = fmt.Fprintln(w, hex.EncodeToString(frame))
		} else {
			_, err = w.Write(frame)
		}
		if err != nil {
			return frames, fmt.Errorf("write frame %d: %w", frames, err)
		}
		frames++
	}
}

func openOutput(path string, baudRate int) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	mode, err := serialmux.PortOptions{BaudRate: baudRate}.PortMode()
	if err != nil {
		return nil, err
	}
	return serialmux.NewRealSerialPortFactory().Open(path, mode)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("ld2451-sim", version.String())
		return
	}
	if *interval <= 0 {
		log.Fatal("-interval must be positive")
	}

	out, err := openOutput(*port, *baud)
	if err != nil {
		log.Fatalf("failed to open output: %v", err)
	}
	defer out.Close()

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	sim := ld2451.NewSimulator(s)
	sim.SpawnRate = *spawnRate
	sim.NoiseRate = *noise

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := run(ctx, out, sim, simConfig{Interval: *interval, Duration: *duration, Hex: *hexOut}, timeutil.RealClock{})
	if err != nil {
		log.Printf("simulator stopped: %v", err)
	}
	log.Printf("wrote %d frames", n)
}
