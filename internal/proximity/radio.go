package proximity

import (
	"fmt"
	"math"
)

// PathLoss is a log-distance path-loss model. Distances derived from it are
// diagnostic only and never decide a result.
type PathLoss struct {
	TxPower  float64 // expected RSSI at one meter
	Exponent float64
}

var DefaultPathLoss = PathLoss{TxPower: -59, Exponent: 2}

// Distance estimates the distance in meters for rssi.
func (p PathLoss) Distance(rssi float64) float64 {
	if p.Exponent <= 0 {
		return 0
	}
	return math.Pow(10, (p.TxPower-rssi)/(10*p.Exponent))
}

// ValidateRadio checks the detected beacon against the session beacon and
// requires an RSSI strictly above minRSSI.
func ValidateRadio(reading RadioReading, expectedBeacon string, minRSSI float64) Result {
	return validateRadio(reading, expectedBeacon, minRSSI, DefaultPathLoss)
}

func validateRadio(reading RadioReading, expectedBeacon string, minRSSI float64, model PathLoss) Result {
	r := Result{
		Sensor:    SensorRadio,
		Value:     reading.RSSI,
		Threshold: minRSSI,
		Metadata: map[string]any{
			"beacon_id": reading.BeaconID,
		},
	}
	if reading.BeaconID != expectedBeacon {
		r.Message = "beacon does not belong to this session"
		r.AnomalyType = AnomalyBeaconMismatch
		return r
	}

	r.Passed = reading.RSSI > minRSSI
	if r.Passed {
		d := model.Distance(reading.RSSI)
		r.Metadata["estimated_distance_m"] = d
		r.Message = fmt.Sprintf("beacon in range (%.0f dBm, ~%.1fm)", reading.RSSI, d)
	} else {
		r.Message = fmt.Sprintf("beacon signal too weak (%.0f dBm <= %.0f dBm)", reading.RSSI, minRSSI)
		r.AnomalyType = AnomalyRadioProximity
	}
	return r
}
