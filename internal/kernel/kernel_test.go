package kernel

import (
	"math/rand"
	"testing"

	"github.com/KyungWonPark/Searchlight/internal/calc"
	"github.com/KyungWonPark/Searchlight/internal/config"
	"github.com/KyungWonPark/Searchlight/internal/searchlight"
	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neighborhood(size int, timepoints []int, mask []bool, fill func(k, v, t int) float64) *searchlight.Neighborhood {
	nb := &searchlight.Neighborhood{Radius: 1, Mask: mask}
	for k, n := range timepoints {
		m := mat64.NewDense(size, n, nil)
		for v := 0; v < size; v++ {
			for t := 0; t < n; t++ {
				m.Set(v, t, fill(k, v, t))
			}
		}
		nb.Data = append(nb.Data, m)
	}
	return nb
}

func fullMask(size int) []bool {
	mask := make([]bool, size)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

func TestBalance(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	x := mat64.NewDense(7, 1, []float64{0, 1, 2, 3, 4, 5, 6})
	y := []bool{true, false, false, true, false, false, false}

	for trial := 0; trial < 20; trial++ {
		bx, by := Balance(x, y, rng)
		require.NotNil(t, bx)
		rows, _ := bx.Dims()
		require.Equal(t, 4, rows)
		require.Len(t, by, 4)

		pos, neg := 0, 0
		seen := map[float64]bool{}
		for i, label := range by {
			v := bx.At(i, 0)
			assert.Equal(t, y[int(v)], label)
			assert.False(t, seen[v])
			seen[v] = true
			if label {
				pos++
			} else {
				neg++
			}
		}
		assert.Equal(t, pos, neg)
		// the minority rows are always kept
		assert.True(t, seen[0])
		assert.True(t, seen[3])
	}
}

func TestBalanceMissingClass(t *testing.T) {
	x := mat64.NewDense(3, 1, []float64{1, 2, 3})
	bx, by := Balance(x, []bool{true, true, true}, rand.New(rand.NewSource(1)))
	assert.Nil(t, bx)
	assert.Nil(t, by)
}

func TestKernelsSkipSparseNeighborhoods(t *testing.T) {
	kernels := map[string]interface{}{
		config.KernelRSA: &RSAModel{DiagonalOffset: 1},
		config.KernelSVM: &SVMLabels{C: 0.01},
	}

	for _, size := range []int{1, 7, 27, 125} {
		for inMask := 0; inMask <= size; inMask++ {
			mask := make([]bool, size)
			for i := 0; i < inMask; i++ {
				mask[(i*13)%size] = true
			}
			nb := &searchlight.Neighborhood{Mask: mask}
			if nb.InMask() != inMask {
				continue
			}
			if float64(inMask) >= float64(size)/2 {
				continue
			}

			for name, shared := range kernels {
				k, err := Lookup(name)
				require.NoError(t, err)
				_, err = k(nb, shared)
				assert.Equal(t, searchlight.ErrInsufficientCoverage, err, "%s size=%d in=%d", name, size, inMask)
			}
		}
	}
}

func TestCalcRSAMatchesOwnStructure(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	const size, n, offset = 27, 15, 2

	nb := neighborhood(size, []int{n}, fullMask(size), func(k, v, t int) float64 {
		return rng.NormFloat64()
	})
	nb.Mask[4] = false

	model := &RSAModel{
		Vector:         calc.UpperTriangle(calc.Pearson(denseT(nb.Masked(0))), offset),
		DiagonalOffset: offset,
	}
	require.NoError(t, model.Check(n))

	r, err := CalcRSA(nb, model)
	require.NoError(t, err)
	assert.InDelta(t, 1, r, 1e-9)
}

func TestCalcRSAModelMismatch(t *testing.T) {
	model := &RSAModel{Vector: []float64{1, 2, 3}, DiagonalOffset: 1}
	assert.Error(t, model.Check(10))

	nb := neighborhood(27, []int{10}, fullMask(27), func(k, v, t int) float64 { return float64(v * t) })
	_, err := CalcRSA(nb, model)
	assert.Error(t, err)
}

func TestCalcRSAWrongBroadcast(t *testing.T) {
	nb := neighborhood(27, []int{10}, fullMask(27), func(k, v, t int) float64 { return 0 })
	_, err := CalcRSA(nb, []float64{1})
	assert.Error(t, err)
}

func TestCalcSVMDecodesSignal(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	const size = 27

	labels := [2][]bool{make([]bool, 16), make([]bool, 12)}
	for seg := range labels {
		for i := range labels[seg] {
			// unbalanced on purpose
			labels[seg][i] = i%3 == 0
		}
	}

	nb := neighborhood(size, []int{16, 12}, fullMask(size), func(k, v, t int) float64 {
		if labels[k][t] {
			return 3 + rng.NormFloat64()*0.3
		}
		return -3 + rng.NormFloat64()*0.3
	})

	bc := &SVMLabels{Labels: labels, C: 0.01, Tolerance: 1e-3, Seed: 4}
	require.NoError(t, bc.Check())

	acc, err := CalcSVM(nb, bc)
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)
}

func TestSVMLabelsCheck(t *testing.T) {
	bc := &SVMLabels{Labels: [2][]bool{{true, false}, {false, false}}}
	assert.Error(t, bc.Check())
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("calc_isc")
	assert.Error(t, err)
}
