package proximity

import (
	"fmt"
	"math"
)

const (
	minPlausiblePressure = 900.0
	maxPlausiblePressure = 1100.0

	// metersPerHPa is the linear altitude model near sea level.
	metersPerHPa = -8.5
)

// PlausiblePressure reports whether p lies within the sea-level range the
// altitude model is valid for.
func PlausiblePressure(p float64) bool {
	return p >= minPlausiblePressure && p <= maxPlausiblePressure
}

// AltitudeDifference returns ΔH = -8.5·ΔP meters with ΔP = reference - reading.
func AltitudeDifference(reading, reference float64) float64 {
	return metersPerHPa * (reference - reading)
}

// ValidateBarometer passes when both pressures are plausible and differ by no
// more than threshold hPa.
func ValidateBarometer(reading, reference, threshold float64) Result {
	return validateBarometer(reading, reference, threshold, DefaultThresholds().FloorHeightMeters)
}

func validateBarometer(reading, reference, threshold, floorHeight float64) Result {
	if !PlausiblePressure(reading) || !PlausiblePressure(reference) {
		return Result{
			Sensor:      SensorBarometer,
			Threshold:   threshold,
			Message:     fmt.Sprintf("pressure outside plausible range (%.0f-%.0f hPa)", minPlausiblePressure, maxPlausiblePressure),
			AnomalyType: AnomalyInvalidPressure,
			Invalid:     true,
		}
	}

	diff := math.Abs(reference - reading)
	altitude := AltitudeDifference(reading, reference)
	floors := 0.0
	if floorHeight > 0 {
		floors = math.Round(math.Abs(altitude) / floorHeight)
	}

	r := Result{
		Sensor:    SensorBarometer,
		Passed:    diff <= threshold,
		Value:     diff,
		Threshold: threshold,
		Metadata: map[string]any{
			"reading_pressure":    reading,
			"reference_pressure":  reference,
			"altitude_difference": altitude,
			"floors":              int(floors),
		},
	}
	if r.Passed {
		r.Message = fmt.Sprintf("same floor (%.2f hPa <= %.2f hPa)", diff, threshold)
	} else {
		r.Message = fmt.Sprintf("different floor (%.2f hPa > %.2f hPa, ~%.1fm)", diff, threshold, math.Abs(altitude))
		r.AnomalyType = AnomalyBarometer
	}
	return r
}
