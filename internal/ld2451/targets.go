package ld2451

// Target is one object record from a data frame. The sensor assigns no
// identity; a target is only known by its position in the frame.
type Target struct {
	// Angle in degrees relative to the antenna boresight, negative left.
	Angle int `json:"angle"`
	// Distance in metres.
	Distance uint8 `json:"distance"`
	// Approaching is true when the direction byte matched the decoder's
	// approaching value.
	Approaching bool `json:"approaching"`
	// Speed in km/h.
	Speed uint8 `json:"speed"`
	// SNR is the signal quality reported by the sensor.
	SNR uint8 `json:"snr"`
}

// TargetSet is the decoded content of one data frame payload.
type TargetSet struct {
	// Count is the number of decoded records in Targets.
	Count int
	// Declared is the object count the sensor put in byte 0.
	Declared int
	// Truncated is the number of declared records that were not decoded,
	// either because they exceeded the slot capacity or the payload ended.
	Truncated int
	// Reserved is byte 1 of the payload (the sensor's alarm flag). It is kept
	// for diagnostics only.
	Reserved byte
	Targets  [MaxTargets]Target
}

// Slice returns the decoded targets.
func (ts *TargetSet) Slice() []Target {
	return ts.Targets[:ts.Count]
}

// Direction byte values in the datasheet: 0x00 for an object closing on the
// sensor, 0x01 for one moving away.
const (
	DirectionByteApproaching byte = 0x00
	DirectionByteReceding    byte = 0x01
)

// Decoder turns data frame payloads into target records.
type Decoder struct {
	// ApproachingByte is the direction byte value that means "approaching".
	// Every other value decodes as receding.
	ApproachingByte byte
	// Capacity caps how many records are decoded per frame. Values outside
	// 1..MaxTargets are treated as MaxTargets.
	Capacity int
}

// DefaultDecoder returns a decoder with the datasheet direction encoding and
// the full slot capacity.
func DefaultDecoder() Decoder {
	return Decoder{ApproachingByte: DirectionByteApproaching, Capacity: MaxTargets}
}

func (d Decoder) capacity() int {
	if d.Capacity <= 0 || d.Capacity > MaxTargets {
		return MaxTargets
	}
	return d.Capacity
}

// Decode extracts target records from a payload. Records that would read past
// the end of the payload are treated as absent.
func (d Decoder) Decode(payload []byte) TargetSet {
	var ts TargetSet
	if len(payload) == 0 {
		return ts
	}
	ts.Declared = int(payload[0])
	if len(payload) > 1 {
		ts.Reserved = payload[1]
	}

	want := min(ts.Declared, d.capacity())
	for i := 0; i < want; i++ {
		base := payloadPrefixLen + i*TargetRecordLen
		if base+TargetRecordLen > len(payload) {
			break
		}
		rec := payload[base : base+TargetRecordLen]
		ts.Targets[i] = Target{
			Angle:       int(rec[0]) - AngleOffset,
			Distance:    rec[1],
			Approaching: rec[2] == d.ApproachingByte,
			Speed:       rec[3],
			SNR:         rec[4],
		}
		ts.Count++
	}
	ts.Truncated = ts.Declared - ts.Count
	return ts
}
