// Package biometric holds enrolled face embeddings and decides whether a
// sample matches a claimed identity.
package biometric

import (
	"fmt"
	"math"

	dErrors "rollcall/pkg/domain-errors"
)

// Normalize returns a unit-length copy of v. A zero or non-finite vector
// cannot be normalized and is rejected as invalid input.
func Normalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "embedding is empty")
	}
	var sum float64
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "embedding contains non-finite values")
		}
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "embedding has zero norm")
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Mismatched
// dimensions or a zero vector yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clampUnit(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// dot assumes both vectors are already unit length.
func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return clampUnit(s)
}

func clampUnit(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}

// Centroid returns the normalized arithmetic mean of vs. Each input is
// normalized first so the result does not depend on sample magnitude, and the
// sum is order-independent up to floating point rounding.
func Centroid(vs [][]float64) ([]float64, error) {
	if len(vs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "no embeddings to average")
	}
	dim := len(vs[0])
	sum := make([]float64, dim)
	for i, v := range vs {
		if len(v) != dim {
			return nil, dErrors.New(dErrors.CodeInvalidInput,
				fmt.Sprintf("embedding %d has dimension %d, want %d", i, len(v), dim))
		}
		n, err := Normalize(v)
		if err != nil {
			return nil, err
		}
		for j := range n {
			sum[j] += n[j]
		}
	}
	for j := range sum {
		sum[j] /= float64(len(vs))
	}
	return Normalize(sum)
}

// Consistency summarizes pairwise similarity across enrollment shots.
type Consistency struct {
	Average float64
	Minimum float64
	Pairs   int
}

// MeasureConsistency computes pairwise cosine similarity over vs. Fewer than
// two vectors are trivially consistent.
func MeasureConsistency(vs [][]float64) Consistency {
	c := Consistency{Average: 1, Minimum: 1}
	if len(vs) < 2 {
		return c
	}
	var total float64
	c.Minimum = math.Inf(1)
	for i := 0; i < len(vs); i++ {
		for j := i + 1; j < len(vs); j++ {
			s := Cosine(vs[i], vs[j])
			total += s
			c.Minimum = math.Min(c.Minimum, s)
			c.Pairs++
		}
	}
	c.Average = total / float64(c.Pairs)
	return c
}
