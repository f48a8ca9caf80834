package volume

import (
	"math"

	"github.com/pkg/errors"
)

// Dims represents the spatial extent of a volume
type Dims struct {
	X int
	Y int
	Z int
}

// Len returns number of voxels
func (d Dims) Len() int {
	return d.X * d.Y * d.Z
}

// Index returns linear voxel index of (x, y, z); x runs fastest as in NIfTI
func (d Dims) Index(x, y, z int) int {
	return x + d.X*(y+d.Y*z)
}

// Coord is the inverse of Index
func (d Dims) Coord(v int) (int, int, int) {
	x := v % d.X
	y := (v / d.X) % d.Y
	z := v / (d.X * d.Y)
	return x, y, z
}

// Contains reports whether (x, y, z) lies inside the volume
func (d Dims) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < d.X && y < d.Y && z < d.Z
}

// Volume is a 4D functional image. Data is voxel-major: the time course of
// voxel v is Data[v*T : (v+1)*T].
type Volume struct {
	Dims Dims
	T    int
	Data []float32
}

// NewVolume allocates a zeroed volume
func NewVolume(dims Dims, t int) *Volume {
	return &Volume{
		Dims: dims,
		T:    t,
		Data: make([]float32, dims.Len()*t),
	}
}

// At returns value of voxel (x, y, z) at time t
func (v *Volume) At(x, y, z, t int) float32 {
	return v.Data[v.Dims.Index(x, y, z)*v.T+t]
}

// Set sets value of voxel (x, y, z) at time t
func (v *Volume) Set(x, y, z, t int, value float32) {
	v.Data[v.Dims.Index(x, y, z)*v.T+t] = value
}

// Series returns the time course of linear voxel index i. The slice aliases Data.
func (v *Volume) Series(i int) []float32 {
	return v.Data[i*v.T : (i+1)*v.T]
}

// Bytes returns the in-memory size of the voxel data
func (v *Volume) Bytes() uint64 {
	return uint64(len(v.Data)) * 4
}

// SliceTime returns a copy holding time points [from, to)
func (v *Volume) SliceTime(from, to int) (*Volume, error) {
	if from < 0 || to > v.T || from > to {
		return nil, errors.Errorf("time range [%d, %d) out of bounds for %d time points", from, to, v.T)
	}

	idx := make([]int, 0, to-from)
	for t := from; t < to; t++ {
		idx = append(idx, t)
	}

	return v.SelectTimes(idx)
}

// SelectTimes returns a copy holding the given time points in order
func (v *Volume) SelectTimes(idx []int) (*Volume, error) {
	for _, t := range idx {
		if t < 0 || t >= v.T {
			return nil, errors.Errorf("time index %d out of bounds for %d time points", t, v.T)
		}
	}

	out := NewVolume(v.Dims, len(idx))
	for i := 0; i < v.Dims.Len(); i++ {
		src := v.Series(i)
		dst := out.Series(i)
		for j, t := range idx {
			dst[j] = src[t]
		}
	}

	return out, nil
}

// Mask is a 3D boolean brain mask
type Mask struct {
	Dims Dims
	Data []bool
}

// NewMask allocates an empty mask
func NewMask(dims Dims) *Mask {
	return &Mask{Dims: dims, Data: make([]bool, dims.Len())}
}

// At returns mask value at (x, y, z)
func (m *Mask) At(x, y, z int) bool {
	return m.Data[m.Dims.Index(x, y, z)]
}

// Set sets mask value at (x, y, z)
func (m *Mask) Set(x, y, z int, value bool) {
	m.Data[m.Dims.Index(x, y, z)] = value
}

// Count returns number of voxels inside the mask
func (m *Mask) Count() int {
	cnt := 0
	for _, in := range m.Data {
		if in {
			cnt++
		}
	}
	return cnt
}

// Scores is a 3D map of per-voxel results. NaN marks voxels with no result.
type Scores struct {
	Dims Dims
	Data []float64
}

// NewScores returns a score map with every voxel empty
func NewScores(dims Dims) *Scores {
	s := &Scores{Dims: dims, Data: make([]float64, dims.Len())}
	for i := range s.Data {
		s.Data[i] = math.NaN()
	}
	return s
}

// At returns score at (x, y, z)
func (s *Scores) At(x, y, z int) float64 {
	return s.Data[s.Dims.Index(x, y, z)]
}

// ZeroNonFinite replaces NaN and Inf with zero
func (s *Scores) ZeroNonFinite() {
	for i, val := range s.Data {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			s.Data[i] = 0
		}
	}
}

// Finite returns all finite scores
func (s *Scores) Finite() []float64 {
	var out []float64
	for _, val := range s.Data {
		if !math.IsNaN(val) && !math.IsInf(val, 0) {
			out = append(out, val)
		}
	}
	return out
}
