package biometric

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rollcall/pkg/domain-errors"
)

func randomVector(r *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = r.NormFloat64()
	}
	return v
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-12)
	assert.InDelta(t, 0.8, v[1], 1e-12)

	_, err = Normalize([]float64{0, 0, 0})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = Normalize(nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = Normalize([]float64{1, math.NaN()})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-5, 0}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.Zero(t, Cosine([]float64{1, 0}, []float64{1, 0, 0}))
	assert.Zero(t, Cosine([]float64{0, 0}, []float64{1, 0}))
}

func TestCosineIsSymmetricAndBounded(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		a, b := randomVector(r, 16), randomVector(r, 16)
		s := Cosine(a, b)
		assert.InDelta(t, s, Cosine(b, a), 1e-12)
		assert.GreaterOrEqual(t, s, -1.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestCentroidIsNormalizedMeanAndOrderIndependent(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 9))
	for range 50 {
		vs := make([][]float64, 5)
		for i := range vs {
			vs[i], _ = Normalize(randomVector(r, 8))
		}
		c1, err := Centroid(vs)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, norm(c1), 1e-9)

		shuffled := append([][]float64(nil), vs...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		c2, err := Centroid(shuffled)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, Cosine(c1, c2), 1e-9)

		mean := make([]float64, 8)
		for _, v := range vs {
			for j := range v {
				mean[j] += v[j] / float64(len(vs))
			}
		}
		expected, err := Normalize(mean)
		require.NoError(t, err)
		for j := range expected {
			assert.InDelta(t, expected[j], c1[j], 1e-9)
		}
	}
}

func TestCentroidOfIdenticalInputsEqualsInput(t *testing.T) {
	v, err := Normalize([]float64{0.1, -0.4, 0.9, 0.2})
	require.NoError(t, err)

	c, err := Centroid([][]float64{v, v, v})
	require.NoError(t, err)
	for i := range v {
		assert.InDelta(t, v[i], c[i], 1e-12)
	}
}

func TestCentroidRejectsMixedDimensions(t *testing.T) {
	_, err := Centroid([][]float64{{1, 0}, {1, 0, 0}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = Centroid(nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestMeasureConsistency(t *testing.T) {
	c := MeasureConsistency([][]float64{{1, 0}})
	assert.Equal(t, 1.0, c.Average)
	assert.Equal(t, 0, c.Pairs)

	c = MeasureConsistency([][]float64{{1, 0}, {1, 0}, {0, 1}})
	assert.Equal(t, 3, c.Pairs)
	assert.InDelta(t, 1.0/3.0, c.Average, 1e-12)
	assert.InDelta(t, 0.0, c.Minimum, 1e-12)
}
