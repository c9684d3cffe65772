package proximity

import (
	"context"
	"fmt"
	"math"
	"time"

	dErrors "rollcall/pkg/domain-errors"
)

// MotionMagnitudes combines each sample into 0.3·|accel| + 0.7·|gyro|.
func MotionMagnitudes(samples []MotionSample) []Point {
	out := make([]Point, len(samples))
	for i, s := range samples {
		out[i] = Point{AtMs: s.TimestampMs, Value: 0.3*length3(s.Accel) + 0.7*length3(s.Gyro)}
	}
	return out
}

func length3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Align pairs each flow point with the nearest motion point within tolerance.
// Flow points with no motion point in range are dropped.
func Align(flow, motion []Point, tolerance time.Duration) (x, y []float64) {
	tol := float64(tolerance) / float64(time.Millisecond)
	for _, f := range flow {
		best := -1
		bestDiff := math.Inf(1)
		for j, m := range motion {
			if d := math.Abs(f.AtMs - m.AtMs); d < bestDiff {
				best, bestDiff = j, d
			}
		}
		if best >= 0 && bestDiff <= tol {
			x = append(x, f.Value)
			y = append(y, motion[best].Value)
		}
	}
	return x, y
}

// Pearson returns the correlation coefficient of x and y. Series of different
// length, with fewer than two points or with zero variance are invalid input.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "series lengths differ")
	}
	n := float64(len(x))
	if n < 2 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "at least two points are required")
	}

	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n

	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "correlation undefined for a constant series")
	}
	return clampUnit(sxy / math.Sqrt(sxx*syy)), nil
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// ValidateCorrelation passes when r >= threshold. An r outside [-1, 1] is an
// invalid-input failure.
func ValidateCorrelation(r, threshold float64) Result {
	res := Result{Sensor: SensorMotion, Value: r, Threshold: threshold}
	if math.IsNaN(r) || r < -1 || r > 1 {
		res.Message = fmt.Sprintf("invalid correlation coefficient %v", r)
		res.AnomalyType = AnomalyInvalidCorrelation
		res.Invalid = true
		return res
	}
	res.Passed = r >= threshold
	if res.Passed {
		res.Message = fmt.Sprintf("motion matches camera (r=%.3f)", r)
	} else {
		res.Message = fmt.Sprintf("motion does not match camera (r=%.3f < %.2f)", r, threshold)
		res.AnomalyType = AnomalyMotionCorrelation
	}
	return res
}

// Correlator checks liveness by correlating camera optical flow with device
// motion. A replayed photo or video moves independently of the sensors.
type Correlator struct {
	flow      OpticalFlow
	threshold float64
	minPairs  int
	tolerance time.Duration
}

func NewCorrelator(flow OpticalFlow, t Thresholds) *Correlator {
	if flow == nil {
		flow = NewSparseTracker()
	}
	return &Correlator{
		flow:      flow,
		threshold: t.MotionThreshold,
		minPairs:  t.MotionMinPairs,
		tolerance: t.MotionTolerance,
	}
}

// Verify returns a motion Result. An error is returned only when ctx ends or
// the flow estimator faults.
func (c *Correlator) Verify(ctx context.Context, frames []Frame, samples []MotionSample) (Result, error) {
	invalid := func(msg string) Result {
		return Result{
			Sensor:      SensorMotion,
			Threshold:   c.threshold,
			Message:     msg,
			AnomalyType: AnomalyInvalidCorrelation,
			Invalid:     true,
		}
	}
	if len(frames) < 2 {
		return invalid("at least two frames are required"), nil
	}
	if len(samples) == 0 {
		return invalid("motion data is empty"), nil
	}

	flow, err := c.flow.Magnitudes(ctx, frames)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return invalid(err.Error()), nil
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "optical flow failed")
	}

	x, y := Align(flow, MotionMagnitudes(samples), c.tolerance)
	if len(x) < c.minPairs {
		return Result{
			Sensor:      SensorMotion,
			Value:       float64(len(x)),
			Threshold:   c.threshold,
			Message:     fmt.Sprintf("insufficient aligned samples (%d < %d)", len(x), c.minPairs),
			AnomalyType: AnomalyInsufficientSamples,
			Metadata:    map[string]any{"aligned_pairs": len(x)},
		}, nil
	}

	r, err := Pearson(x, y)
	if err != nil {
		return invalid(err.Error()), nil
	}
	res := ValidateCorrelation(r, c.threshold)
	res.Metadata = map[string]any{"aligned_pairs": len(x)}
	return res, nil
}
