package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/approach.warning/internal/api"
	"github.com/banshee-data/approach.warning/internal/config"
	"github.com/banshee-data/approach.warning/internal/db"
	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/mqttpub"
	"github.com/banshee-data/approach.warning/internal/radar"
	"github.com/banshee-data/approach.warning/internal/serialmux"
	"github.com/banshee-data/approach.warning/internal/timeutil"
)

const (
	// simInterval is how often the dev-mode sensor emits a frame.
	simInterval = 100 * time.Millisecond
	// pruneInterval is how often old episodes are deleted.
	pruneInterval = time.Hour
)

type options struct {
	Dev          bool
	DisableRadar bool
	Listen       string
	Port         string
	Baud         int
	DBPath       string
	Units        string
	Retain       time.Duration
	SimSeed      int64
	// MQTT is an optional broker URL for event publishing.
	MQTT   string
	Config *config.RadarConfig
}

// daemon owns the serial link, engine, history store and HTTP server.
type daemon struct {
	opts  options
	clock timeutil.Clock

	serial       serialmux.SerialMuxInterface
	db           *db.DB
	engine       *radar.Engine
	snapshots    *radar.SnapshotStore
	configurator *radar.Configurator
	recorder     *radar.EpisodeRecorder
	frames       *ld2451.DebugBuffer
	publisher    *mqttpub.Publisher

	closeOnce sync.Once
}

// commandResolverSetter is implemented by serial muxes whose admin page can
// send named commands.
type commandResolverSetter interface {
	SetCommandResolver(r serialmux.CommandResolver, names []string)
}

// openSerial picks the sensor link for the run mode.
func openSerial(opts options) (serialmux.SerialMuxInterface, error) {
	switch {
	case opts.DisableRadar:
		return serialmux.NewDisabledSerialMux(), nil
	case opts.Dev:
		seed := opts.SimSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		sim := ld2451.NewSimulator(seed)
		sim.ApproachingByte = opts.Config.GetApproachingByte()
		sim.NoiseRate = 0.02
		return serialmux.NewMockSerialMux(func() []byte { return sim.Next(simInterval) }, simInterval), nil
	default:
		portOpts := opts.Config.GetPortOptions()
		if opts.Baud > 0 {
			portOpts.BaudRate = opts.Baud
			var err error
			if portOpts, err = portOpts.Normalise(); err != nil {
				return nil, err
			}
		}
		return serialmux.NewRealSerialMux(opts.Port, portOpts)
	}
}

func newDaemon(opts options) (*daemon, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultRadarConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	serial, err := openSerial(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create radar port: %w", err)
	}
	if s, ok := serial.(commandResolverSetter); ok {
		s.SetCommandResolver(radar.CommandFrame, radar.AllowedCommands())
	}
	if err := serial.Initialise(); err != nil {
		serial.Close()
		return nil, fmt.Errorf("failed to initialise device: %w", err)
	}
	log.Printf("initialised radar link (dev=%v disabled=%v port=%s)", opts.Dev, opts.DisableRadar, opts.Port)

	store, err := db.NewDB(opts.DBPath)
	if err != nil {
		serial.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var publisher *mqttpub.Publisher
	if opts.MQTT != "" {
		if publisher, err = mqttpub.New(opts.MQTT); err == nil {
			err = publisher.Connect()
		}
		if err != nil {
			store.Close()
			serial.Close()
			return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		log.Printf("publishing detection events to %s", opts.MQTT)
	}

	clock := timeutil.RealClock{}
	frames := ld2451.NewDebugBuffer()
	engineCfg := opts.Config.EngineConfig()
	engineCfg.DebugBuffer = frames

	return &daemon{
		opts:      opts,
		clock:     clock,
		serial:    serial,
		db:        store,
		engine:    radar.NewEngine(engineCfg),
		snapshots: &radar.SnapshotStore{},
		configurator: radar.NewConfigurator(serial, radar.ConfiguratorConfig{
			Clock:       clock,
			SettleDelay: opts.Config.GetSettleDelay(),
			Initial:     opts.Config.GetParams(),
			Recorder:    store,
		}),
		recorder:  radar.NewEpisodeRecorder(store),
		frames:    frames,
		publisher: publisher,
	}, nil
}

// handler builds the HTTP routes: the JSON API, the distance chart and the
// tsweb debug pages for the serial link, database and raw frames.
func (d *daemon) handler() http.Handler {
	mux := api.NewServer(d.serial, d.snapshots, d.configurator, d.db, d.opts.Units).ServeMux()
	d.serial.AttachAdminRoutes(mux)
	d.db.AttachAdminRoutes(mux)
	api.AttachDebugRoutes(mux, d.frames)
	return api.LoggingMiddleware(mux)
}

// run starts every routine and blocks until ctx is cancelled and they have
// all stopped.
func (d *daemon) run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.opts.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.opts.Listen, err)
	}
	return d.serve(ctx, ln)
}

func (d *daemon) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Create a wait group for the HTTP server, serial monitor, engine and
	// housekeeping routines
	var wg sync.WaitGroup

	// subscribe before the monitor starts so no chunk is missed
	id, chunks := d.serial.Subscribe()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.serial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// step the engine with every chunk and on every tick
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer d.serial.Unsubscribe(id)
		loopCfg := radar.LoopConfig{
			Clock:     d.clock,
			Interval:  d.opts.Config.GetStepInterval(),
			Snapshots: d.snapshots,
			Recorder:  d.recorder,
		}
		if d.publisher != nil {
			loopCfg.OnEvents = d.publisher.Handle
		}
		err := radar.Run(ctx, d.engine, chunks, loopCfg)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("engine loop stopped: %v", err)
		}
		log.Print("engine routine terminated")
	}()

	if d.opts.Config.GetApplyOnStart() && !d.opts.DisableRadar {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := d.opts.Config.GetParams()
			if err := d.configurator.Apply(p); err != nil {
				log.Printf("failed to apply radar parameters on start: %v", err)
				return
			}
			log.Printf("applied radar parameters: %+v", p)
		}()
	}

	if d.opts.Retain > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.pruneLoop(ctx)
		}()
	}

	// HTTP server goroutine
	server := &http.Server{
		Handler:           d.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP server listening on %s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	// closing the serial link unblocks the monitor on ports without timeouts
	if err := d.serial.Close(); err != nil {
		log.Printf("failed to close serial port: %v", err)
	}

	// Wait for all goroutines to finish
	wg.Wait()

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server: %w", err)
	default:
		return nil
	}
}

// pruneLoop deletes episodes older than the retention window once at start
// and then every pruneInterval.
func (d *daemon) pruneLoop(ctx context.Context) {
	ticker := d.clock.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		d.prune()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
	}
}

func (d *daemon) prune() {
	n, err := d.db.PruneBefore(d.clock.Now().Add(-d.opts.Retain))
	if err != nil {
		log.Printf("failed to prune episode history: %v", err)
		return
	}
	if n > 0 {
		log.Printf("pruned %d episode(s) older than %s", n, d.opts.Retain)
	}
}

// Close releases the serial link, database and broker connection. It is safe
// to call more than once.
func (d *daemon) Close() {
	d.closeOnce.Do(func() {
		if d.publisher != nil {
			d.publisher.Close()
		}
		if err := d.serial.Close(); err != nil && !errors.Is(err, serialmux.ErrClosed) {
			log.Printf("failed to close serial port: %v", err)
		}
		if err := d.db.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	})
}
