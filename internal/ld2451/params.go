package ld2451

import (
	"fmt"
	"strings"
)

// Direction selects which movement directions the sensor reports.
type Direction uint8

const (
	DirectionAway        Direction = 0x00
	DirectionApproaching Direction = 0x01
	DirectionBoth        Direction = 0x02
)

func (d Direction) String() string {
	switch d {
	case DirectionAway:
		return "away"
	case DirectionApproaching:
		return "approaching"
	case DirectionBoth:
		return "both"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts a direction name or its numeric value.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "away", "0":
		return DirectionAway, nil
	case "approaching", "approach", "1":
		return DirectionApproaching, nil
	case "both", "all", "2":
		return DirectionBoth, nil
	}
	return 0, fmt.Errorf("unknown direction %q: expected away, approaching or both", s)
}

// Documented parameter ranges.
const (
	MinMaxDistance  = 1
	MaxMaxDistance  = 100
	MaxMinSpeed     = 120
	MinTriggerCount = 1
	MaxTriggerCount = 10
)

// Params are the reporting parameters written to the sensor by the
// configuration handshake.
type Params struct {
	// MaxDistance is the furthest reported range in metres (1-100).
	MaxDistance uint8 `json:"max_distance"`
	// Direction filters reports by movement direction.
	Direction Direction `json:"direction"`
	// MinSpeed suppresses targets slower than this, in km/h (0-120).
	MinSpeed uint8 `json:"min_speed"`
	// ReportDelay is the no-target hold time in seconds.
	ReportDelay uint8 `json:"report_delay"`
	// TriggerCount is how many consecutive detections confirm a target (1-10).
	TriggerCount uint8 `json:"trigger_count"`
	// SNRThreshold is the signal quality floor. Firmware variants accept
	// either the full byte or 0-64, so it is not range checked here.
	SNRThreshold uint8 `json:"snr_threshold"`
}

// DefaultParams returns the parameters the device boots with.
func DefaultParams() Params {
	return Params{
		MaxDistance:  40,
		Direction:    DirectionBoth,
		MinSpeed:     0,
		ReportDelay:  0,
		TriggerCount: 1,
		SNRThreshold: 0,
	}
}

// Validate reports the first field outside its documented range.
func (p Params) Validate() error {
	if p.MaxDistance < MinMaxDistance || p.MaxDistance > MaxMaxDistance {
		return fmt.Errorf("max_distance must be between %d and %d, got %d", MinMaxDistance, MaxMaxDistance, p.MaxDistance)
	}
	if p.Direction > DirectionBoth {
		return fmt.Errorf("direction must be 0, 1 or 2, got %d", p.Direction)
	}
	if p.MinSpeed > MaxMinSpeed {
		return fmt.Errorf("min_speed must be at most %d, got %d", MaxMinSpeed, p.MinSpeed)
	}
	if p.TriggerCount < MinTriggerCount || p.TriggerCount > MaxTriggerCount {
		return fmt.Errorf("trigger_count must be between %d and %d, got %d", MinTriggerCount, MaxTriggerCount, p.TriggerCount)
	}
	return nil
}

// Clamp returns a copy of p with every field forced into its documented
// range. Callers clamp before handing parameters to the encoder.
func (p Params) Clamp() Params {
	p.MaxDistance = clampByte(p.MaxDistance, MinMaxDistance, MaxMaxDistance)
	if p.Direction > DirectionBoth {
		p.Direction = DirectionBoth
	}
	p.MinSpeed = clampByte(p.MinSpeed, 0, MaxMinSpeed)
	p.TriggerCount = clampByte(p.TriggerCount, MinTriggerCount, MaxTriggerCount)
	return p
}

func clampByte(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ApplyPreset overlays a named site profile on p. "city" favours short range
// and ignores slow traffic noise; "highway" reaches further with a stricter
// signal floor.
func ApplyPreset(p Params, name string) (Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "city":
		p.MaxDistance, p.MinSpeed, p.SNRThreshold = 30, 10, 3
	case "highway":
		p.MaxDistance, p.MinSpeed, p.SNRThreshold = 100, 5, 8
	default:
		return p, fmt.Errorf("unknown preset %q: expected city or highway", name)
	}
	return p, nil
}
