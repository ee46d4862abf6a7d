// Package config loads the radar runtime configuration from JSON or YAML.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/approach.warning/internal/ld2451"
	"github.com/banshee-data/approach.warning/internal/radar"
	"github.com/banshee-data/approach.warning/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical radar defaults file.
const DefaultConfigPath = "config/radar.defaults.json"

// RadarConfig is the root runtime configuration. Every field is optional;
// the Get* methods supply the defaults for anything left unset.
type RadarConfig struct {
	// Lifecycle
	PersistTimeout  *string `json:"persist_timeout,omitempty" yaml:"persist_timeout,omitempty"`   // duration string like "250ms"
	LingerThreshold *string `json:"linger_threshold,omitempty" yaml:"linger_threshold,omitempty"` // "0s" disables lingering
	StepInterval    *string `json:"step_interval,omitempty" yaml:"step_interval,omitempty"`

	// Smoothing
	SmoothingMode   *string  `json:"smoothing_mode,omitempty" yaml:"smoothing_mode,omitempty"` // "ema" or "window"
	SmoothingAlpha  *float64 `json:"smoothing_alpha,omitempty" yaml:"smoothing_alpha,omitempty"`
	SmoothingWindow *int     `json:"smoothing_window,omitempty" yaml:"smoothing_window,omitempty"`
	IdentityJump    *float64 `json:"identity_jump,omitempty" yaml:"identity_jump,omitempty"` // metres, negative disables

	// Decoding
	ApproachingByte *int `json:"approaching_byte,omitempty" yaml:"approaching_byte,omitempty"`

	// Sensor parameters written by the configuration handshake
	MaxDistance  *int    `json:"max_distance,omitempty" yaml:"max_distance,omitempty"`
	Direction    *string `json:"direction,omitempty" yaml:"direction,omitempty"` // away, approaching, both
	MinSpeed     *int    `json:"min_speed,omitempty" yaml:"min_speed,omitempty"`
	ReportDelay  *int    `json:"report_delay,omitempty" yaml:"report_delay,omitempty"`
	TriggerCount *int    `json:"trigger_count,omitempty" yaml:"trigger_count,omitempty"`
	SNRThreshold *int    `json:"snr_threshold,omitempty" yaml:"snr_threshold,omitempty"`
	ApplyOnStart *bool   `json:"apply_on_start,omitempty" yaml:"apply_on_start,omitempty"`
	SettleDelay  *string `json:"settle_delay,omitempty" yaml:"settle_delay,omitempty"`

	// Serial link
	Serial *serialmux.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyRadarConfig returns a RadarConfig with all fields set to nil.
func EmptyRadarConfig() *RadarConfig {
	return &RadarConfig{}
}

// DefaultRadarConfig returns a RadarConfig with every field set to its
// default.
func DefaultRadarConfig() *RadarConfig {
	p := ld2451.DefaultParams()
	return &RadarConfig{
		PersistTimeout:  ptrString("250ms"),
		LingerThreshold: ptrString("5s"),
		StepInterval:    ptrString("20ms"),
		SmoothingMode:   ptrString(radar.SmoothingEMA),
		SmoothingAlpha:  ptrFloat64(radar.DefaultAlpha),
		SmoothingWindow: ptrInt(radar.DefaultWindow),
		IdentityJump:    ptrFloat64(radar.DefaultIdentityJump),
		ApproachingByte: ptrInt(int(ld2451.DirectionByteApproaching)),
		MaxDistance:     ptrInt(int(p.MaxDistance)),
		Direction:       ptrString(p.Direction.String()),
		MinSpeed:        ptrInt(int(p.MinSpeed)),
		ReportDelay:     ptrInt(int(p.ReportDelay)),
		TriggerCount:    ptrInt(int(p.TriggerCount)),
		SNRThreshold:    ptrInt(int(p.SNRThreshold)),
		ApplyOnStart:    ptrBool(true),
		SettleDelay:     ptrString("60ms"),
		Serial:          &serialmux.PortOptions{BaudRate: serialmux.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
	}
}

// LoadRadarConfig loads a RadarConfig from a JSON or YAML file, chosen by
// extension (.json, .yaml or .yml). Files over 1MB are rejected.
// Fields omitted from the file fall back to their defaults, so partial
// configs are safe.
func LoadRadarConfig(path string) (*RadarConfig, error) {
	cleanPath := filepath.Clean(path)
	var unmarshal func([]byte, interface{}) error
	switch ext := filepath.Ext(cleanPath); ext {
	case ".json":
		unmarshal = json.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRadarConfig()
	if err := unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *RadarConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadRadarConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func checkDuration(name string, v *string, allowZero bool) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

func checkRange(name string, v *int, lo, hi int) error {
	if v != nil && (*v < lo || *v > hi) {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, lo, hi, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *RadarConfig) Validate() error {
	if err := checkDuration("persist_timeout", c.PersistTimeout, false); err != nil {
		return err
	}
	if err := checkDuration("linger_threshold", c.LingerThreshold, true); err != nil {
		return err
	}
	if err := checkDuration("step_interval", c.StepInterval, false); err != nil {
		return err
	}
	if err := checkDuration("settle_delay", c.SettleDelay, true); err != nil {
		return err
	}

	if c.SmoothingMode != nil && *c.SmoothingMode != radar.SmoothingEMA && *c.SmoothingMode != radar.SmoothingWindow {
		return fmt.Errorf("smoothing_mode must be %q or %q, got %q", radar.SmoothingEMA, radar.SmoothingWindow, *c.SmoothingMode)
	}
	if c.SmoothingAlpha != nil && (*c.SmoothingAlpha <= 0 || *c.SmoothingAlpha > 1) {
		return fmt.Errorf("smoothing_alpha must be in (0, 1], got %f", *c.SmoothingAlpha)
	}
	if err := checkRange("smoothing_window", c.SmoothingWindow, 1, radar.MaxWindow); err != nil {
		return err
	}
	if err := checkRange("approaching_byte", c.ApproachingByte, 0, 255); err != nil {
		return err
	}

	if err := checkRange("max_distance", c.MaxDistance, ld2451.MinMaxDistance, ld2451.MaxMaxDistance); err != nil {
		return err
	}
	if c.Direction != nil {
		if _, err := ld2451.ParseDirection(*c.Direction); err != nil {
			return err
		}
	}
	if err := checkRange("min_speed", c.MinSpeed, 0, ld2451.MaxMinSpeed); err != nil {
		return err
	}
	if err := checkRange("report_delay", c.ReportDelay, 0, 255); err != nil {
		return err
	}
	if err := checkRange("trigger_count", c.TriggerCount, ld2451.MinTriggerCount, ld2451.MaxTriggerCount); err != nil {
		return err
	}
	if err := checkRange("snr_threshold", c.SNRThreshold, 0, 255); err != nil {
		return err
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetPersistTimeout returns how long a detection set survives without a
// fresh frame.
func (c *RadarConfig) GetPersistTimeout() time.Duration {
	return durationOr(c.PersistTimeout, radar.DefaultPersistTimeout)
}

// GetLingerThreshold returns the episode age that raises the lingering flag.
func (c *RadarConfig) GetLingerThreshold() time.Duration {
	return durationOr(c.LingerThreshold, radar.DefaultLingerThreshold)
}

// GetStepInterval returns the engine tick period.
func (c *RadarConfig) GetStepInterval() time.Duration {
	return durationOr(c.StepInterval, radar.DefaultStepInterval)
}

// GetSettleDelay returns the pause between handshake frames.
func (c *RadarConfig) GetSettleDelay() time.Duration {
	return durationOr(c.SettleDelay, radar.DefaultSettleDelay)
}

// GetSmoothingMode returns the smoothing_mode value or the default.
func (c *RadarConfig) GetSmoothingMode() string {
	if c.SmoothingMode == nil {
		return radar.SmoothingEMA
	}
	return *c.SmoothingMode
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *RadarConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return radar.DefaultAlpha
	}
	return *c.SmoothingAlpha
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *RadarConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return radar.DefaultWindow
	}
	return *c.SmoothingWindow
}

// GetIdentityJump returns the identity_jump value or the default.
func (c *RadarConfig) GetIdentityJump() float64 {
	if c.IdentityJump == nil {
		return radar.DefaultIdentityJump
	}
	return *c.IdentityJump
}

// GetApproachingByte returns the direction byte decoded as approaching.
func (c *RadarConfig) GetApproachingByte() byte {
	if c.ApproachingByte == nil {
		return ld2451.DirectionByteApproaching
	}
	return byte(*c.ApproachingByte)
}

// GetApplyOnStart reports whether the handshake runs at startup.
func (c *RadarConfig) GetApplyOnStart() bool {
	if c.ApplyOnStart == nil {
		return true
	}
	return *c.ApplyOnStart
}

// GetParams returns the sensor parameters, defaults filling any gaps.
func (c *RadarConfig) GetParams() ld2451.Params {
	p := ld2451.DefaultParams()
	if c.MaxDistance != nil {
		p.MaxDistance = uint8(*c.MaxDistance)
	}
	if c.Direction != nil {
		if d, err := ld2451.ParseDirection(*c.Direction); err == nil {
			p.Direction = d
		}
	}
	if c.MinSpeed != nil {
		p.MinSpeed = uint8(*c.MinSpeed)
	}
	if c.ReportDelay != nil {
		p.ReportDelay = uint8(*c.ReportDelay)
	}
	if c.TriggerCount != nil {
		p.TriggerCount = uint8(*c.TriggerCount)
	}
	if c.SNRThreshold != nil {
		p.SNRThreshold = uint8(*c.SNRThreshold)
	}
	return p
}

// GetPortOptions returns the serial options, normalised.
func (c *RadarConfig) GetPortOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	if n, err := opts.Normalise(); err == nil {
		return n
	}
	n, _ := serialmux.PortOptions{}.Normalise()
	return n
}

// EngineConfig builds the radar engine settings.
func (c *RadarConfig) EngineConfig() radar.EngineConfig {
	return radar.EngineConfig{
		Decoder: ld2451.Decoder{
			ApproachingByte: c.GetApproachingByte(),
			Capacity:        ld2451.MaxTargets,
		},
		Smoother:        radar.NewSmoother(c.GetSmoothingMode(), c.GetSmoothingAlpha(), c.GetSmoothingWindow()),
		PersistTimeout:  c.GetPersistTimeout(),
		LingerThreshold: c.GetLingerThreshold(),
		IdentityJump:    c.GetIdentityJump(),
	}
}
