package vector

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInnerProduct(t *testing.T) {
	assert.InDelta(t, 11.0, InnerProduct([]float32{1, 2}, []float32{3, 4}), 1e-9)
	assert.Zero(t, InnerProduct([]float32{1}, []float32{1, 2}))
	assert.Zero(t, InnerProduct(nil, nil))
}

func TestL2Norm(t *testing.T) {
	assert.InDelta(t, 5.0, L2Norm([]float32{3, 4}), 1e-9)
	assert.Zero(t, L2Norm([]float32{0, 0}))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical direction", []float32{1, 1}, []float32{2, 2}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-3, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestMean(t *testing.T) {
	m, err := Mean([][]float32{{1, 2, 3}, {3, 4, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4}, m)

	_, err = Mean(nil)
	assert.Error(t, err)

	_, err = Mean([][]float32{{1, 2}, {1}})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestMean_LargeValuesAccumulateInFloat64(t *testing.T) {
	big := float32(math.MaxFloat32 / 2)
	m, err := Mean([][]float32{{big}, {big}, {big}})
	require.NoError(t, err)
	assert.False(t, math.IsInf(float64(m[0]), 0))
}
