package proximity

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Validator evaluates readings against a session reference with one set of
// thresholds.
type Validator struct {
	thresholds Thresholds
}

func NewValidator(t Thresholds) *Validator {
	return &Validator{thresholds: t}
}

func (v *Validator) Thresholds() Thresholds {
	return v.thresholds
}

// sensorOrder fixes the order of Report.Failed.
var sensorOrder = []Sensor{SensorGPS, SensorRadio, SensorBarometer, SensorMotion}

// Aggregate runs every validator whose reading and reference are both present.
// Validators are pure, so the only error is ctx ending first.
func (v *Validator) Aggregate(ctx context.Context, readings Readings, ref Reference) (*Report, error) {
	t := v.thresholds
	results := make([]*Result, len(sensorOrder))

	g, ctx := errgroup.WithContext(ctx)
	run := func(slot int, fn func() Result) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := fn()
			results[slot] = &r
			return nil
		})
	}

	if readings.GPS != nil && ref.Location != nil {
		radius := ref.RadiusMeters
		if radius <= 0 {
			radius = t.GeofenceRadiusMeters
		}
		run(0, func() Result {
			return ValidateGeofenceWithAccuracy(*readings.GPS, *ref.Location, radius)
		})
	}
	if readings.Radio != nil && ref.BeaconID != "" {
		run(1, func() Result {
			return validateRadio(*readings.Radio, ref.BeaconID, t.RSSIThreshold, t.PathLoss)
		})
	}
	if readings.Barometer != nil && ref.Pressure != nil {
		run(2, func() Result {
			return validateBarometer(readings.Barometer.Pressure, *ref.Pressure, t.PressureThreshold, t.FloorHeightMeters)
		})
	}
	if readings.MotionCorrelation != nil {
		run(3, func() Result {
			return ValidateCorrelation(*readings.MotionCorrelation, t.MotionThreshold)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Passed: true, Results: make(map[Sensor]Result)}
	for i, r := range results {
		if r == nil {
			continue
		}
		report.Checked++
		report.Results[sensorOrder[i]] = *r
		if r.Passed {
			report.PassedCount++
			continue
		}
		report.Passed = false
		report.Failed = append(report.Failed, sensorOrder[i])
	}
	return report, nil
}
