package searchlight

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/KyungWonPark/Searchlight/internal/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func count(mask []bool) int {
	n := 0
	for _, in := range mask {
		if in {
			n++
		}
	}
	return n
}

func TestShapes(t *testing.T) {
	assert.Equal(t, 27, count(Cube{}.Mask(1)))
	assert.Equal(t, 7, count(Diamond{}.Mask(1)))
	assert.Equal(t, 7, count(Ball{}.Mask(1)))
	assert.Equal(t, 25, count(Diamond{}.Mask(2)))
	assert.Equal(t, 33, count(Ball{}.Mask(2)))
	assert.Equal(t, 1, count(Ball{}.Mask(0)))

	center := offsetIndex(1, 0, 0, 0)
	assert.Equal(t, 13, center)
	assert.True(t, Diamond{}.Mask(1)[center])
	assert.False(t, Diamond{}.Mask(1)[offsetIndex(1, 1, 1, 0)])

	for _, name := range []string{"cube", "ball", "diamond", ""} {
		_, err := ShapeByName(name)
		assert.NoError(t, err)
	}
	_, err := ShapeByName("star")
	assert.Error(t, err)
}

// indexed returns a volume whose every value is the linear voxel index
func indexed(dims volume.Dims, t int) *volume.Volume {
	v := volume.NewVolume(dims, t)
	for i := 0; i < dims.Len(); i++ {
		s := v.Series(i)
		for j := range s {
			s[j] = float32(i)
		}
	}
	return v
}

func fullMask(dims volume.Dims) *volume.Mask {
	m := volume.NewMask(dims)
	for i := range m.Data {
		m.Data[i] = true
	}
	return m
}

func centerValue(nb *Neighborhood, shared interface{}) (float64, error) {
	offset, _ := shared.(float64)
	return nb.Data[0].At(offsetIndex(nb.Radius, 0, 0, 0), 0) + offset, nil
}

func TestPartition(t *testing.T) {
	dims := volume.Dims{X: 10, Y: 10, Z: 10}
	sl := New(1, 3, nil, nil)
	require.NoError(t, sl.Distribute([]*volume.Volume{indexed(dims, 1)}, fullMask(dims)))
	assert.Equal(t, 27, sl.Blocks())

	mask := volume.NewMask(dims)
	mask.Set(5, 5, 5, true)
	// voxels within the radius of the edge never become centers
	mask.Set(0, 3, 3, true)
	require.NoError(t, sl.Distribute([]*volume.Volume{indexed(dims, 1)}, mask))
	assert.Equal(t, 1, sl.Blocks())
}

func TestDistributeValidates(t *testing.T) {
	dims := volume.Dims{X: 4, Y: 4, Z: 4}
	sl := New(1, 2, nil, nil)

	assert.Error(t, sl.Distribute(nil, fullMask(dims)))
	assert.Error(t, sl.Distribute([]*volume.Volume{indexed(volume.Dims{X: 4, Y: 4, Z: 5}, 1)}, fullMask(dims)))

	sl.MaxBlockEdge = 0
	assert.Error(t, sl.Distribute([]*volume.Volume{indexed(dims, 1)}, fullMask(dims)))
}

func TestRunCoversEveryInteriorMaskVoxel(t *testing.T) {
	dims := volume.Dims{X: 7, Y: 6, Z: 5}
	mask := fullMask(dims)
	mask.Set(3, 3, 2, false)

	for _, workers := range []int{0, 1, 3, 16} {
		sl := New(1, 2, Cube{}, nil)
		require.NoError(t, sl.Distribute([]*volume.Volume{indexed(dims, 2)}, mask))
		sl.Broadcast(0.5)

		scores, err := sl.Run(context.Background(), centerValue, workers)
		require.NoError(t, err)

		for z := 0; z < dims.Z; z++ {
			for y := 0; y < dims.Y; y++ {
				for x := 0; x < dims.X; x++ {
					got := scores.At(x, y, z)
					interior := x >= 1 && y >= 1 && z >= 1 && x < dims.X-1 && y < dims.Y-1 && z < dims.Z-1
					if interior && mask.At(x, y, z) {
						assert.Equal(t, float64(dims.Index(x, y, z))+0.5, got)
					} else {
						assert.True(t, math.IsNaN(got), "(%d, %d, %d)", x, y, z)
					}
				}
			}
		}
	}
}

func TestRunNeighborhoodMaskFollowsShapeAndMask(t *testing.T) {
	dims := volume.Dims{X: 5, Y: 5, Z: 5}
	mask := fullMask(dims)
	mask.Set(2, 2, 3, false)

	sl := New(1, 5, Diamond{}, nil)
	require.NoError(t, sl.Distribute([]*volume.Volume{indexed(dims, 1)}, mask))

	scores, err := sl.Run(context.Background(), func(nb *Neighborhood, _ interface{}) (float64, error) {
		return float64(nb.InMask()), nil
	}, 2)
	require.NoError(t, err)

	assert.Equal(t, 6.0, scores.At(2, 2, 2))
	assert.Equal(t, 7.0, scores.At(1, 1, 1))
}

func TestRunSkipsInsufficientCoverage(t *testing.T) {
	dims := volume.Dims{X: 5, Y: 5, Z: 5}
	sl := New(1, 2, nil, nil)
	require.NoError(t, sl.Distribute([]*volume.Volume{indexed(dims, 1)}, fullMask(dims)))

	scores, err := sl.Run(context.Background(), func(nb *Neighborhood, _ interface{}) (float64, error) {
		if nb.Center[0] == 2 {
			return 0, ErrInsufficientCoverage
		}
		return 1, nil
	}, 4)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(scores.At(2, 2, 2)))
	assert.Equal(t, 1.0, scores.At(1, 2, 2))
}

func TestRunStopsOnKernelError(t *testing.T) {
	dims := volume.Dims{X: 12, Y: 12, Z: 12}
	sl := New(1, 2, nil, nil)
	require.NoError(t, sl.Distribute([]*volume.Volume{indexed(dims, 1)}, fullMask(dims)))

	boom := errors.New("boom")
	var calls int64
	_, err := sl.Run(context.Background(), func(nb *Neighborhood, _ interface{}) (float64, error) {
		atomic.AddInt64(&calls, 1)
		return 0, boom
	}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, atomic.LoadInt64(&calls) < 1000)
}

func TestRunCancelled(t *testing.T) {
	dims := volume.Dims{X: 6, Y: 6, Z: 6}
	sl := New(1, 2, nil, nil)
	require.NoError(t, sl.Distribute([]*volume.Volume{indexed(dims, 1)}, fullMask(dims)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sl.Run(ctx, centerValue, 2)
	assert.Error(t, err)
}

func TestRunBeforeDistribute(t *testing.T) {
	_, err := New(1, 2, nil, nil).Run(context.Background(), centerValue, 1)
	assert.Error(t, err)
}

func TestMasked(t *testing.T) {
	dims := volume.Dims{X: 3, Y: 3, Z: 3}
	mask := fullMask(dims)
	mask.Set(0, 0, 0, false)

	sl := New(1, 1, nil, nil)
	require.NoError(t, sl.Distribute([]*volume.Volume{indexed(dims, 4)}, mask))
	nb := sl.neighborhood(1, 1, 1)

	m := nb.Masked(0)
	rows, cols := m.Dims()
	assert.Equal(t, 26, rows)
	assert.Equal(t, 4, cols)
	assert.True(t, nb.Covered())
	// row 0 of the cube is (0, 0, 0), which is masked out
	assert.Equal(t, float64(dims.Index(0, 0, 1)), m.At(0, 0))
}
