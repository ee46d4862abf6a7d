package radar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/approach.warning/internal/ld2451"
)

// namedCommands are the standalone frames an operator may send by name. The
// detection and sensitivity writes go through Configurator instead so the
// cached parameters stay in step with the sensor.
var namedCommands = map[string]func() []byte{
	"enable-config": ld2451.EnableConfigCommand,
	"end-config":    ld2451.EndConfigCommand,
	"read-firmware": ld2451.ReadFirmwareCommand,
	"read-detection": func() []byte {
		return ld2451.EncodeCommand(ld2451.CmdReadDetection)
	},
	"read-sensitivity": func() []byte {
		return ld2451.EncodeCommand(ld2451.CmdReadSensitivity)
	},
	"restart":       ld2451.RestartCommand,
	"factory-reset": ld2451.FactoryResetCommand,
}

const baudPrefix = "baud:"

// IsValidBaudCommand reports whether cmd is "baud:<rate>" for a rate the
// sensor supports.
func IsValidBaudCommand(cmd string) bool {
	_, ok := parseBaudCommand(cmd)
	return ok
}

func parseBaudCommand(cmd string) (ld2451.BaudRateIndex, bool) {
	rest, ok := strings.CutPrefix(cmd, baudPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	rate, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return ld2451.BaudRateIndexFor(rate)
}

// IsAllowedCommand reports whether cmd names a frame CommandFrame can build.
func IsAllowedCommand(cmd string) bool {
	if _, ok := namedCommands[cmd]; ok {
		return true
	}
	return IsValidBaudCommand(cmd)
}

// CommandFrame encodes the command named by cmd.
func CommandFrame(cmd string) ([]byte, error) {
	if build, ok := namedCommands[cmd]; ok {
		return build(), nil
	}
	if idx, ok := parseBaudCommand(cmd); ok {
		return ld2451.BaudRateCommand(idx), nil
	}
	return nil, fmt.Errorf("command %q is not allowed", cmd)
}

// AllowedCommands lists the static command names in sorted order.
func AllowedCommands() []string {
	names := make([]string, 0, len(namedCommands))
	for name := range namedCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
