package proximity

import (
	"context"
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rollcall/pkg/domain-errors"
)

const frameSize = 96

// noise returns a random texture large enough to crop shifted frames from.
func noise(seed uint64, w, h int) *image.Gray {
	r := rand.New(rand.NewPCG(seed, seed+1))
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = uint8(r.IntN(256))
	}
	return g
}

// pan crops one frame per offset, each shifted right by the offset in pixels.
func pan(base *image.Gray, offsets []int) []Frame {
	frames := make([]Frame, len(offsets))
	for i, off := range offsets {
		frames[i] = Frame{
			TimestampMs: float64(i * 100),
			Image:       base.SubImage(image.Rect(off, 0, off+frameSize, frameSize)),
		}
	}
	return frames
}

func TestSparseTrackerMeasuresShift(t *testing.T) {
	base := noise(42, frameSize+20, frameSize)
	frames := pan(base, []int{0, 3, 3, 7})

	points, err := NewSparseTracker().Magnitudes(context.Background(), frames)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.InDelta(t, 3.0, points[0].Value, 1e-9)
	assert.InDelta(t, 0.0, points[1].Value, 1e-9)
	assert.InDelta(t, 4.0, points[2].Value, 1e-9)
	assert.Equal(t, 50.0, points[0].AtMs)
	assert.Equal(t, 250.0, points[2].AtMs)
}

func TestSparseTrackerBlankFramesHaveNoFlow(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, frameSize, frameSize))
	points, err := NewSparseTracker().Magnitudes(context.Background(), []Frame{
		{TimestampMs: 0, Image: blank},
		{TimestampMs: 40, Image: blank},
	})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Zero(t, points[0].Value)
}

func TestSparseTrackerConvertsColorFrames(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 8, 8))
	rgba.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	g := toGray(rgba)
	assert.Equal(t, uint8(255), g.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), g.GrayAt(2, 2).Y)
}

func TestSparseTrackerRejectsMissingFrames(t *testing.T) {
	_, err := NewSparseTracker().Magnitudes(context.Background(), []Frame{{}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = NewSparseTracker().Magnitudes(context.Background(), []Frame{{}, {}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSparseTrackerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSparseTracker().Magnitudes(ctx, pan(noise(1, frameSize+4, frameSize), []int{0, 1}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorrelatorEndToEnd(t *testing.T) {
	steps := []int{1, 3, 2, 4, 1, 2, 3, 1, 4, 2, 3, 1}
	offsets := make([]int, len(steps)+1)
	for i, s := range steps {
		offsets[i+1] = offsets[i] + s
	}
	frames := pan(noise(7, frameSize+offsets[len(offsets)-1], frameSize), offsets)

	t.Run("device motion follows the camera", func(t *testing.T) {
		motion := make([]MotionSample, len(steps))
		for i, s := range steps {
			motion[i] = MotionSample{TimestampMs: float64(i*100 + 50), Gyro: [3]float64{0, float64(s) * 0.2, 0}}
		}
		res, err := NewCorrelator(nil, DefaultThresholds()).Verify(context.Background(), frames, motion)
		require.NoError(t, err)
		assert.True(t, res.Passed, res.Message)
		assert.InDelta(t, 1.0, res.Value, 1e-9)
	})

	t.Run("replayed video does not", func(t *testing.T) {
		motion := make([]MotionSample, len(steps))
		for i := range steps {
			motion[i] = MotionSample{TimestampMs: float64(i*100 + 50), Gyro: [3]float64{0, float64(len(steps) - i), 0}}
		}
		res, err := NewCorrelator(nil, DefaultThresholds()).Verify(context.Background(), frames, motion)
		require.NoError(t, err)
		assert.False(t, res.Passed)
		assert.Less(t, res.Value, 0.7)
	})
}
