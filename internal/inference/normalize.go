// Package inference turns raw model outputs into normalized embeddings and ranked predictions.
package inference

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrEmptyEmbedding is returned when normalizing a zero-length vector.
	ErrEmptyEmbedding = errors.New("embedding is empty")
	// ErrZeroNorm is returned when a vector has zero Euclidean norm.
	ErrZeroNorm = errors.New("embedding has zero norm")
	// ErrNonFinite is returned when a vector contains NaN or Inf.
	ErrNonFinite = errors.New("embedding contains non-finite values")
)

// NormalizeEmbedding returns a new vector with the direction of v and unit L2 norm.
func NormalizeEmbedding(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrEmptyEmbedding
	}
	x := make([]float64, len(v))
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, ErrNonFinite
		}
		x[i] = float64(f)
	}
	norm := floats.Norm(x, 2)
	if norm == 0 {
		return nil, ErrZeroNorm
	}
	floats.Scale(1/norm, x)
	out := make([]float32, len(x))
	for i, f := range x {
		out[i] = float32(f)
	}
	return out, nil
}

// Softmax returns exp(x_i) / sum(exp(x)) computed through log-sum-exp so large
// logits do not overflow.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	x := make([]float64, len(logits))
	for i, l := range logits {
		x[i] = float64(l)
	}
	lse := floats.LogSumExp(x)
	for i := range x {
		x[i] = math.Exp(x[i] - lse)
	}
	return x
}
