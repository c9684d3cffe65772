package proximity

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean radius of the sphere used by Haversine.
const EarthRadiusMeters = 6371000.0

// accuracyAllowance is the reported accuracy a fix may have before the
// geofence radius starts to widen.
const accuracyAllowance = 50.0

// Haversine returns the great-circle distance in meters.
func Haversine(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Valid reports whether c is a finite latitude/longitude pair in range.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// ValidateGeofence passes when reading lies within radius meters of reference.
func ValidateGeofence(reading, reference Coordinates, radius float64) Result {
	if !reading.Valid() || !reference.Valid() {
		return Result{
			Sensor:      SensorGPS,
			Threshold:   radius,
			Message:     "invalid GPS coordinates",
			AnomalyType: AnomalyInvalidCoordinates,
			Invalid:     true,
		}
	}

	distance := Haversine(reading, reference)
	r := Result{
		Sensor:    SensorGPS,
		Passed:    distance <= radius,
		Value:     distance,
		Threshold: radius,
		Metadata: map[string]any{
			"reading_lat":   reading.Lat,
			"reading_lon":   reading.Lon,
			"reference_lat": reference.Lat,
			"reference_lon": reference.Lon,
		},
	}
	if r.Passed {
		r.Message = fmt.Sprintf("within geofence (%.1fm <= %.0fm)", distance, radius)
	} else {
		r.Message = fmt.Sprintf("outside geofence (%.1fm > %.0fm)", distance, radius)
		r.AnomalyType = AnomalyGeofence
	}
	return r
}

// ValidateGeofenceWithAccuracy widens radius by however much the reported
// accuracy exceeds 50 m before comparing.
func ValidateGeofenceWithAccuracy(reading GPSReading, reference Coordinates, radius float64) Result {
	effective := radius + math.Max(0, reading.Accuracy-accuracyAllowance)
	r := ValidateGeofence(reading.Coordinates, reference, effective)
	if r.Metadata != nil {
		r.Metadata["accuracy"] = reading.Accuracy
		r.Metadata["base_radius"] = radius
	}
	return r
}
