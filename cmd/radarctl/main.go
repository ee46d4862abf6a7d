// Command radarctl queries and configures a running radar daemon over its
// HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/approach.warning/internal/api"
	"github.com/banshee-data/approach.warning/internal/fsutil"
	"github.com/banshee-data/approach.warning/internal/httputil"
	"github.com/banshee-data/approach.warning/internal/security"
)

var (
	addr       = flag.String("addr", "http://localhost:8080", "Base URL of the radar daemon")
	speedUnits = flag.String("units", "", "Speed units for status and episodes (daemon default when empty)")
	preset     = flag.String("preset", "", "Site preset for apply (city or highway)")
	limit      = flag.Int("limit", 20, "Number of episodes to list")
	timeout    = flag.Duration("timeout", 10*time.Second, "Request timeout")
	outFile    = flag.String("out", "", "Output file for export (generated from -addr and the time when empty)")
)

// fsys and now are replaced in tests.
var (
	fsys fsutil.FileSystem = fsutil.OSFileSystem{}
	now                    = time.Now
)

const usage = `usage: radarctl [flags] <command> [args]

commands:
  status                  live detection state
  config                  reporting parameters last written to the sensor
  apply [field=value...]  write parameters, e.g. apply max_distance=60 min_speed=5
  restart                 reboot the sensor
  factory-reset           restore sensor defaults
  episodes                recent detection episodes
  export                  write recent episodes to a JSON file
`

// parseOverrides turns field=value arguments into parameter overrides.
func parseOverrides(args []string) (map[string]int, error) {
	out := make(map[string]int, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected field=value, got %q", a)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runCommand executes one radarctl command against c and prints the result.
func runCommand(ctx context.Context, c *api.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command")
	}
	switch args[0] {
	case "status":
		st, err := c.Status(ctx, *speedUnits)
		if err != nil {
			return err
		}
		return printJSON(out, st)
	case "config":
		cfg, err := c.Config(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, cfg)
	case "apply":
		overrides, err := parseOverrides(args[1:])
		if err != nil {
			return err
		}
		if len(overrides) == 0 && *preset == "" {
			return fmt.Errorf("apply needs field=value arguments or -preset")
		}
		cfg, err := c.ApplyConfig(ctx, overrides, *preset)
		if err != nil {
			return err
		}
		return printJSON(out, cfg)
	case "restart":
		if err := c.Restart(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "sensor restarting")
		return err
	case "factory-reset":
		cfg, err := c.FactoryReset(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, cfg)
	case "episodes":
		eps, err := c.Episodes(ctx, *limit, *speedUnits)
		if err != nil {
			return err
		}
		return printJSON(out, eps)
	case "export":
		path, err := exportEpisodes(ctx, c, *outFile)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "wrote %s\n", path)
		return err
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// exportEpisodes writes the most recent episodes to path, which must lie in
// the working or temp directory. It returns the path written.
func exportEpisodes(ctx context.Context, c *api.Client, path string) (string, error) {
	if path == "" {
		path = security.ExportFilename(*addr, "episodes", now())
	}
	if err := security.ValidateExportPath(path); err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}

	eps, err := c.Episodes(ctx, *limit, *speedUnits)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(eps, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode episodes: %w", err)
	}

	if dir := filepath.Dir(path); !fsys.Exists(dir) {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := fsys.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := api.NewClient(*addr, httputil.NewStandardClient(nil))
	if err := runCommand(ctx, c, flag.Args(), os.Stdout); err != nil {
		log.Printf("radarctl: %v", err)
		flag.Usage()
		os.Exit(1)
	}
}
