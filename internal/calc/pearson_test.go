package calc

import (
	"math"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPearson(t *testing.T) {
	m := mat64.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		2, 4, 6, 8,
		4, 3, 2, 1,
	})

	p := Pearson(m)
	rows, cols := p.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 3, cols)

	assert.InDelta(t, 1, p.At(0, 0), 1e-12)
	assert.InDelta(t, 1, p.At(0, 1), 1e-12)
	assert.InDelta(t, -1, p.At(0, 2), 1e-12)
	assert.InDelta(t, -1, p.At(2, 1), 1e-12)
	assert.Equal(t, p.At(1, 2), p.At(2, 1))
}

func TestPearsonMatchesCorrelation(t *testing.T) {
	a := []float64{0.3, -1.2, 2.5, 0.7, 1.1}
	b := []float64{1.0, 0.4, -0.6, 2.2, 0.1}
	m := mat64.NewDense(2, 5, append(append([]float64{}, a...), b...))

	r, err := Correlation(a, b)
	require.NoError(t, err)
	assert.InDelta(t, r, Pearson(m).At(0, 1), 1e-12)
}

func TestPearsonConstantRow(t *testing.T) {
	m := mat64.NewDense(2, 3, []float64{
		1, 1, 1,
		1, 2, 3,
	})

	p := Pearson(m)
	assert.True(t, math.IsNaN(p.At(0, 1)))
	assert.True(t, math.IsNaN(p.At(0, 0)))
	assert.Equal(t, 1.0, p.At(1, 1))
}

func TestUpperTriangle(t *testing.T) {
	m := mat64.NewDense(4, 4, []float64{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
		12, 13, 14, 15,
	})

	assert.Equal(t, []float64{1, 2, 3, 6, 7, 11}, UpperTriangle(m, 1))
	assert.Equal(t, []float64{2, 3, 7}, UpperTriangle(m, 2))
	assert.Empty(t, UpperTriangle(m, 4))

	for k := 1; k <= 5; k++ {
		assert.Len(t, UpperTriangle(m, k), UpperTriangleLen(4, k))
	}
}

func TestCorrelationLengthMismatch(t *testing.T) {
	_, err := Correlation([]float64{1, 2}, []float64{1, 2, 3})
	assert.Error(t, err)
}
