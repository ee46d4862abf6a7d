package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/approach.warning/internal/config"
	"github.com/banshee-data/approach.warning/internal/units"
	"github.com/banshee-data/approach.warning/internal/version"
)

var (
	devMode      = flag.Bool("dev", false, "Run with a simulated sensor instead of the serial port")
	disableRadar = flag.Bool("disable-radar", false, "Run without a sensor, serving the API and history only")
	listen       = flag.String("listen", ":8080", "Listen address")
	port         = flag.String("port", "/dev/ttyUSB0", "Serial port to use (ignored in dev mode)")
	baud         = flag.Int("baud", 0, "Serial baud rate, overriding the config file")
	dbFile       = flag.String("db", "approach_warning.db", "Path to the sqlite history database")
	configFile   = flag.String("config", "", "Path to a radar JSON config file (built-in defaults when empty)")
	speedUnits   = flag.String("units", units.KMPH, "Speed units for API responses ("+units.GetValidUnitsString()+")")
	retain       = flag.Duration("retain", 30*24*time.Hour, "Delete episodes older than this, 0 keeps everything")
	simSeed      = flag.Int64("sim-seed", 0, "Random seed for -dev mode, 0 seeds from the clock")
	mqttBroker   = flag.String("mqtt", "", "MQTT broker URL for detection events, e.g. mqtt://broker:1883/street/")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("radar", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *port == "" && !*devMode && !*disableRadar {
		log.Fatal("Serial port is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid -units %q, expected one of %s", *speedUnits, units.GetValidUnitsString())
	}

	cfg := config.DefaultRadarConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadRadarConfig(*configFile); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		log.Printf("loaded radar config from %s", *configFile)
	}

	opts := options{
		Dev:          *devMode,
		DisableRadar: *disableRadar,
		Listen:       *listen,
		Port:         *port,
		Baud:         *baud,
		DBPath:       *dbFile,
		Units:        *speedUnits,
		Retain:       *retain,
		SimSeed:      *simSeed,
		MQTT:         *mqttBroker,
		Config:       cfg,
	}

	d, err := newDaemon(opts)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.run(ctx); err != nil {
		log.Printf("radar stopped with error: %v", err)
		d.Close()
		os.Exit(1)
	}
	log.Printf("Graceful shutdown complete")
}
