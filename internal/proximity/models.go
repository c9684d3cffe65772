package proximity

import (
	"image"
	"time"
)

// Sensor names a proximity signal.
type Sensor string

const (
	SensorGPS       Sensor = "gps"
	SensorRadio     Sensor = "radio"
	SensorBarometer Sensor = "barometer"
	SensorMotion    Sensor = "motion"
)

// Anomaly types reported by failing validators.
const (
	AnomalyInvalidCoordinates  = "invalid_gps_coordinates"
	AnomalyGeofence            = "geofence_violation"
	AnomalyBeaconMismatch      = "beacon_mismatch"
	AnomalyRadioProximity      = "radio_proximity_violation"
	AnomalyInvalidPressure     = "invalid_barometer_reading"
	AnomalyBarometer           = "barometer_violation"
	AnomalyInvalidCorrelation  = "invalid_correlation_value"
	AnomalyMotionCorrelation   = "motion_correlation_violation"
	AnomalyInsufficientSamples = "insufficient_motion_samples"
)

// Result is the uniform outcome of every validator. Invalid marks a failure
// caused by out-of-range input rather than by a weak signal.
type Result struct {
	Sensor      Sensor         `json:"sensor"`
	Passed      bool           `json:"passed"`
	Value       float64        `json:"value"`
	Threshold   float64        `json:"threshold"`
	Message     string         `json:"message"`
	AnomalyType string         `json:"anomaly_type,omitempty"`
	Invalid     bool           `json:"invalid,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Thresholds configures the validators.
type Thresholds struct {
	GeofenceRadiusMeters float64
	RSSIThreshold        float64
	PathLoss             PathLoss
	PressureThreshold    float64
	FloorHeightMeters    float64
	MotionThreshold      float64
	MotionMinPairs       int
	MotionTolerance      time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		GeofenceRadiusMeters: 50,
		RSSIThreshold:        -70,
		PathLoss:             DefaultPathLoss,
		PressureThreshold:    0.5,
		FloorHeightMeters:    3.5,
		MotionThreshold:      0.7,
		MotionMinPairs:       10,
		MotionTolerance:      20 * time.Millisecond,
	}
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GPSReading is a device fix. Accuracy is the reported horizontal accuracy in
// meters; zero means unknown.
type GPSReading struct {
	Coordinates
	Accuracy float64 `json:"accuracy,omitempty"`
}

type RadioReading struct {
	RSSI     float64 `json:"rssi"`
	BeaconID string  `json:"beacon_id"`
}

type BarometerReading struct {
	Pressure float64 `json:"pressure"`
}

// MotionSample is one accelerometer (m/s²) and gyroscope (rad/s) reading.
type MotionSample struct {
	TimestampMs float64    `json:"timestamp_ms"`
	Accel       [3]float64 `json:"accel"`
	Gyro        [3]float64 `json:"gyro"`
}

// Frame is one camera capture.
type Frame struct {
	TimestampMs float64
	Image       image.Image
}

// Point is one sample of a timestamped scalar series.
type Point struct {
	AtMs  float64
	Value float64
}

// Readings holds whichever signals the device supplied. Nil fields are not
// evaluated.
type Readings struct {
	GPS               *GPSReading       `json:"gps,omitempty"`
	Radio             *RadioReading     `json:"radio,omitempty"`
	Barometer         *BarometerReading `json:"barometer,omitempty"`
	MotionCorrelation *float64          `json:"motion_correlation,omitempty"`
}

// Reference is the session-side data the readings are compared against. A
// sensor is evaluated only when both the reading and its reference exist.
type Reference struct {
	Location     *Coordinates `json:"location,omitempty"`
	RadiusMeters float64      `json:"radius_meters,omitempty"`
	BeaconID     string       `json:"beacon_id,omitempty"`
	Pressure     *float64     `json:"pressure,omitempty"`
}

// Report aggregates every evaluated validator. Passed is the logical AND of
// the evaluated results and is true when nothing was evaluated.
type Report struct {
	Passed      bool              `json:"passed"`
	Checked     int               `json:"checked"`
	PassedCount int               `json:"passed_count"`
	Failed      []Sensor          `json:"failed,omitempty"`
	Results     map[Sensor]Result `json:"results,omitempty"`
}
