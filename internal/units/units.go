// Package units provides shared constants and conversions for the speed and
// distance units exposed by the API. The sensor reports km/h and metres.
package units

// Speed unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// Distance unit constants
const (
	Metres = "m"
	Feet   = "ft"
)

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from kilometres per hour to the target units.
// Unknown units leave the value in km/h.
func ConvertSpeed(speedKMPH float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedKMPH / 3.6
	case MPH:
		return speedKMPH * 0.621371192237334
	default:
		return speedKMPH
	}
}

// DistanceUnitFor picks the distance unit that pairs with a speed unit.
func DistanceUnitFor(speedUnits string) string {
	if speedUnits == MPH {
		return Feet
	}
	return Metres
}

// ConvertDistance converts a distance in metres to the target units.
func ConvertDistance(metres float64, targetUnits string) float64 {
	if targetUnits == Feet {
		return metres * 3.280839895013123
	}
	return metres
}
