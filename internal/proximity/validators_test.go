package proximity

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	classroom = Coordinates{Lat: 28.6139, Lon: 77.2090}
	backRow   = Coordinates{Lat: 28.6145, Lon: 77.2095}
)

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 82.66, Haversine(classroom, backRow), 0.5)
	assert.InDelta(t, 111194.9, Haversine(Coordinates{0, 0}, Coordinates{0, 1}), 1)
	assert.Zero(t, Haversine(classroom, classroom))
}

func TestHaversineProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))
	for range 500 {
		a := Coordinates{Lat: r.Float64()*180 - 90, Lon: r.Float64()*360 - 180}
		b := Coordinates{Lat: r.Float64()*180 - 90, Lon: r.Float64()*360 - 180}
		d := Haversine(a, b)
		assert.GreaterOrEqual(t, d, 0.0)
		assert.InDelta(t, d, Haversine(b, a), 1e-6)
		assert.InDelta(t, 0.0, Haversine(a, a), 1e-6)
		assert.LessOrEqual(t, d, math.Pi*EarthRadiusMeters+1e-6)
	}
}

func TestGeofence(t *testing.T) {
	t.Run("radius 50 fails", func(t *testing.T) {
		r := ValidateGeofence(backRow, classroom, 50)
		assert.False(t, r.Passed)
		assert.False(t, r.Invalid)
		assert.Equal(t, AnomalyGeofence, r.AnomalyType)
		assert.InDelta(t, 82.66, r.Value, 0.5)
		assert.Equal(t, 50.0, r.Threshold)
	})
	t.Run("radius 100 passes", func(t *testing.T) {
		r := ValidateGeofence(backRow, classroom, 100)
		assert.True(t, r.Passed)
		assert.Empty(t, r.AnomalyType)
	})
	t.Run("out of range coordinates are invalid input", func(t *testing.T) {
		for _, c := range []Coordinates{{Lat: 91}, {Lat: -90.5}, {Lon: 180.1}, {Lon: -181}, {Lat: math.NaN()}} {
			r := ValidateGeofence(c, classroom, 1e9)
			assert.False(t, r.Passed)
			assert.True(t, r.Invalid)
			assert.Equal(t, AnomalyInvalidCoordinates, r.AnomalyType)
		}
		r := ValidateGeofence(classroom, Coordinates{Lat: 100}, 1e9)
		assert.True(t, r.Invalid)
	})
	t.Run("passes iff distance within radius", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(5, 6))
		for range 300 {
			p := Coordinates{Lat: classroom.Lat + (rng.Float64()-0.5)*0.002, Lon: classroom.Lon + (rng.Float64()-0.5)*0.002}
			radius := rng.Float64() * 150
			r := ValidateGeofence(p, classroom, radius)
			assert.Equal(t, Haversine(p, classroom) <= radius, r.Passed)
		}
	})
}

func TestGeofenceWithAccuracy(t *testing.T) {
	fix := GPSReading{Coordinates: backRow, Accuracy: 40}
	assert.False(t, ValidateGeofenceWithAccuracy(fix, classroom, 50).Passed, "accuracy under 50 m does not widen")

	fix.Accuracy = 85
	r := ValidateGeofenceWithAccuracy(fix, classroom, 50)
	assert.True(t, r.Passed)
	assert.Equal(t, 85.0, r.Threshold)
	assert.Equal(t, 50.0, r.Metadata["base_radius"])
}

func TestRadio(t *testing.T) {
	t.Run("threshold is strict", func(t *testing.T) {
		assert.False(t, ValidateRadio(RadioReading{RSSI: -70, BeaconID: "b1"}, "b1", -70).Passed)
		assert.True(t, ValidateRadio(RadioReading{RSSI: -69.9, BeaconID: "b1"}, "b1", -70).Passed)
	})
	t.Run("weak signal", func(t *testing.T) {
		r := ValidateRadio(RadioReading{RSSI: -85, BeaconID: "b1"}, "b1", -70)
		assert.Equal(t, AnomalyRadioProximity, r.AnomalyType)
		assert.Equal(t, -85.0, r.Value)
	})
	t.Run("distance estimate on pass", func(t *testing.T) {
		r := ValidateRadio(RadioReading{RSSI: -59, BeaconID: "b1"}, "b1", -70)
		require.True(t, r.Passed)
		assert.InDelta(t, 1.0, r.Metadata["estimated_distance_m"], 1e-9)
		assert.InDelta(t, 10.0, DefaultPathLoss.Distance(-79), 1e-9)
	})
	t.Run("mismatched beacon fails regardless of signal", func(t *testing.T) {
		for _, rssi := range []float64{-100, -70, -40, -10} {
			r := ValidateRadio(RadioReading{RSSI: rssi, BeaconID: "other"}, "b1", -70)
			assert.False(t, r.Passed)
			assert.Equal(t, AnomalyBeaconMismatch, r.AnomalyType)
		}
	})
	t.Run("passing is monotonic in signal strength", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(8, 9))
		for range 300 {
			rssi := -110 + rng.Float64()*90
			r := ValidateRadio(RadioReading{RSSI: rssi, BeaconID: "b"}, "b", -70)
			assert.Equal(t, rssi > -70, r.Passed)
			if r.Passed {
				assert.True(t, ValidateRadio(RadioReading{RSSI: rssi + rng.Float64()*10, BeaconID: "b"}, "b", -70).Passed)
			}
		}
	})
}

func TestBarometer(t *testing.T) {
	t.Run("one hPa apart is a different floor", func(t *testing.T) {
		r := ValidateBarometer(1013.25, 1014.25, 0.5)
		assert.False(t, r.Passed)
		assert.Equal(t, AnomalyBarometer, r.AnomalyType)
		assert.InDelta(t, 1.0, r.Value, 1e-9)
		assert.InDelta(t, -8.5, r.Metadata["altitude_difference"], 1e-9)
		assert.Equal(t, 2, r.Metadata["floors"])
	})
	t.Run("boundary passes", func(t *testing.T) {
		assert.True(t, ValidateBarometer(1013.25, 1013.75, 0.5).Passed)
	})
	t.Run("implausible readings are invalid input", func(t *testing.T) {
		for _, pair := range [][2]float64{{899.9, 1000}, {1000, 1100.1}, {0, 0}} {
			r := ValidateBarometer(pair[0], pair[1], 0.5)
			assert.False(t, r.Passed)
			assert.True(t, r.Invalid)
			assert.Equal(t, AnomalyInvalidPressure, r.AnomalyType)
		}
	})
	t.Run("properties over the plausible range", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(1, 1))
		for range 500 {
			p1 := 900 + rng.Float64()*200
			p2 := p1 + (rng.Float64()-0.5)*2
			if !PlausiblePressure(p2) {
				continue
			}
			a, b := ValidateBarometer(p1, p2, 0.5), ValidateBarometer(p2, p1, 0.5)
			assert.Equal(t, math.Abs(p1-p2) <= 0.5, a.Passed)
			assert.Equal(t, a.Passed, b.Passed, "symmetric under swap")

			dp := p2 - p1
			dh := AltitudeDifference(p1, p2)
			if dp != 0 {
				assert.Equal(t, math.Signbit(dp), !math.Signbit(dh), "altitude sign opposes pressure difference")
			}
		}
	})
}

func TestValidateCorrelation(t *testing.T) {
	for _, r := range []float64{-1, -0.2, 0, 0.69, 0.7, 0.95, 1} {
		res := ValidateCorrelation(r, 0.7)
		assert.Equal(t, r >= 0.7, res.Passed, "r=%v", r)
		assert.False(t, res.Invalid)
	}
	for _, r := range []float64{-1.01, 1.2, math.NaN()} {
		res := ValidateCorrelation(r, 0.7)
		assert.False(t, res.Passed)
		assert.True(t, res.Invalid)
		assert.Equal(t, AnomalyInvalidCorrelation, res.AnomalyType)
	}
}
