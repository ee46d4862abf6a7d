package ld2451

import (
	"math"
	"math/rand"
	"time"
)

// Simulator generates a synthetic sensor byte stream: vehicles drive towards
// or away from the sensor, heartbeats are sent when the road is empty, and
// optional line noise exercises resynchronisation.
type Simulator struct {
	// SpawnRate is the mean number of new vehicles per second.
	SpawnRate float64
	// MaxTargets caps the vehicles reported per frame.
	MaxTargets int
	// MinSpeed and MaxSpeed bound vehicle speeds in km/h.
	MinSpeed, MaxSpeed float64
	// Range is the distance in metres at which vehicles appear and vanish.
	Range float64
	// ApproachingShare is the fraction of vehicles driving towards the sensor.
	ApproachingShare float64
	// NoiseRate is the probability that a frame is preceded by junk bytes.
	NoiseRate float64
	// ApproachingByte is the direction byte written for approaching targets.
	ApproachingByte byte

	rng      *rand.Rand
	vehicles []simVehicle
}

type simVehicle struct {
	angle       float64
	distance    float64
	speed       float64
	approaching bool
	snr         uint8
}

// NewSimulator returns a simulator seeded with seed and tuned for a quiet
// residential street.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		SpawnRate:        0.4,
		MaxTargets:       MaxTargets,
		MinSpeed:         15,
		MaxSpeed:         70,
		Range:            60,
		ApproachingShare: 0.6,
		ApproachingByte:  DirectionByteApproaching,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// Vehicles reports how many vehicles are currently on the simulated road.
func (s *Simulator) Vehicles() int { return len(s.vehicles) }

// Spawn adds a vehicle at the given distance.
func (s *Simulator) Spawn(distance, speedKMPH float64, approaching bool) {
	s.vehicles = append(s.vehicles, simVehicle{
		angle:       s.rng.Float64()*20 - 10,
		distance:    distance,
		speed:       speedKMPH,
		approaching: approaching,
		snr:         uint8(4 + s.rng.Intn(40)),
	})
}

// Next advances the simulation by dt and returns the bytes the sensor would
// send for it.
func (s *Simulator) Next(dt time.Duration) []byte {
	s.step(dt.Seconds())

	targets := make([]Target, 0, MaxTargets)
	for _, v := range s.vehicles {
		if len(targets) == s.maxTargets() {
			break
		}
		targets = append(targets, Target{
			Angle:       int(math.Round(v.angle)),
			Distance:    uint8(math.Round(v.distance)),
			Approaching: v.approaching,
			Speed:       uint8(math.Round(v.speed)),
			SNR:         v.snr,
		})
	}

	receding := DirectionByteReceding
	if s.ApproachingByte == DirectionByteReceding {
		receding = DirectionByteApproaching
	}
	frame := EncodeDataFrame(targets, s.ApproachingByte, receding)
	if s.NoiseRate > 0 && s.rng.Float64() < s.NoiseRate {
		noise := make([]byte, 1+s.rng.Intn(8))
		for i := range noise {
			// Avoid emitting a header start so the junk cannot be mistaken
			// for a frame.
			noise[i] = byte(s.rng.Intn(0xF0))
		}
		frame = append(noise, frame...)
	}
	return frame
}

func (s *Simulator) maxTargets() int {
	if s.MaxTargets <= 0 || s.MaxTargets > MaxTargets {
		return MaxTargets
	}
	return s.MaxTargets
}

func (s *Simulator) step(sec float64) {
	if sec <= 0 {
		return
	}
	kept := s.vehicles[:0]
	for _, v := range s.vehicles {
		moved := v.speed / 3.6 * sec
		if v.approaching {
			v.distance -= moved
		} else {
			v.distance += moved
		}
		v.angle += (s.rng.Float64() - 0.5) * 0.5
		if v.distance >= 1 && v.distance <= s.Range {
			kept = append(kept, v)
		}
	}
	s.vehicles = kept

	// Poisson arrivals over the step.
	if s.SpawnRate > 0 && s.rng.Float64() < 1-math.Exp(-s.SpawnRate*sec) {
		speed := s.MinSpeed + s.rng.Float64()*(s.MaxSpeed-s.MinSpeed)
		if s.rng.Float64() < s.ApproachingShare {
			s.Spawn(s.Range, speed, true)
		} else {
			s.Spawn(1+s.rng.Float64()*4, speed, false)
		}
	}
}
