// Package searchlight sweeps a kernel over every in-mask voxel of a volume.
//
// The coordinator hands the engine its datasets and mask (Distribute) and any
// side information the kernel needs (Broadcast). Run splits the volume into
// blocks of at most MaxBlockEdge^3 centers, fans the blocks out over a fixed
// pool of workers and gathers one score per center into a full volume.
// Centers closer than Radius to the edge of the volume are never evaluated.
package searchlight

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/KyungWonPark/Searchlight/internal/volume"
	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrInsufficientCoverage is returned by kernels whose neighborhood has too
// few voxels inside the mask. The voxel is left empty in the output.
var ErrInsufficientCoverage = errors.New("insufficient mask coverage")

// Kernel computes one score from a neighborhood and the broadcast value
type Kernel func(nb *Neighborhood, shared interface{}) (float64, error)

// Neighborhood is the data around one center
type Neighborhood struct {
	Center [3]int
	Index  int // linear index of the center
	Radius int
	// Data holds one (2r+1)^3 by T matrix per dataset; row order matches Mask
	Data []*mat64.Dense
	// Mask is the brain mask restricted to the shape
	Mask []bool
}

// InMask returns the number of mask voxels
func (nb *Neighborhood) InMask() int {
	cnt := 0
	for _, in := range nb.Mask {
		if in {
			cnt++
		}
	}
	return cnt
}

// Covered reports whether at least half of the neighborhood is in the mask
func (nb *Neighborhood) Covered() bool {
	return float64(nb.InMask()) >= float64(len(nb.Mask))/2
}

// Masked returns the rows of dataset i that lie inside the mask, voxels by time
func (nb *Neighborhood) Masked(i int) *mat64.Dense {
	_, t := nb.Data[i].Dims()
	n := nb.InMask()
	if n == 0 || t == 0 {
		return nil
	}

	out := mat64.NewDense(n, t, nil)
	row := 0
	for v, in := range nb.Mask {
		if in {
			out.SetRow(row, nb.Data[i].RawRowView(v))
			row++
		}
	}
	return out
}

type block struct {
	lo [3]int
	hi [3]int
}

// Searchlight is the scatter/gather engine
type Searchlight struct {
	Radius       int
	MaxBlockEdge int
	Shape        Shape
	Logger       *zap.Logger

	data      []*volume.Volume
	mask      *volume.Mask
	shapeMask []bool
	blocks    []block
	shared    interface{}
}

// New returns an engine. A nil shape means Cube; a nil logger discards logs.
func New(radius, maxBlockEdge int, shape Shape, logger *zap.Logger) *Searchlight {
	if shape == nil {
		shape = Cube{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searchlight{
		Radius:       radius,
		MaxBlockEdge: maxBlockEdge,
		Shape:        shape,
		Logger:       logger,
	}
}

// Distribute registers the datasets and the mask and partitions the volume
func (s *Searchlight) Distribute(data []*volume.Volume, mask *volume.Mask) error {
	if s.Radius < 0 {
		return errors.Errorf("searchlight radius must not be negative, got %d", s.Radius)
	}
	if s.MaxBlockEdge < 1 {
		return errors.Errorf("max block edge must be at least 1, got %d", s.MaxBlockEdge)
	}
	if mask == nil {
		return errors.New("searchlight needs a mask")
	}
	if len(data) == 0 {
		return errors.New("searchlight needs at least one dataset")
	}
	for i, d := range data {
		if d == nil {
			return errors.Errorf("dataset %d is missing", i)
		}
		if d.Dims != mask.Dims {
			return errors.Errorf("dataset %d has dims %+v but mask has %+v", i, d.Dims, mask.Dims)
		}
	}

	s.data = data
	s.mask = mask
	s.shapeMask = s.Shape.Mask(s.Radius)
	s.blocks = partition(mask, s.Radius, s.MaxBlockEdge)

	return nil
}

// Broadcast sets the value handed to every kernel call
func (s *Searchlight) Broadcast(v interface{}) {
	s.shared = v
}

// Blocks returns the number of blocks holding at least one in-mask center
func (s *Searchlight) Blocks() int {
	return len(s.blocks)
}

func partition(mask *volume.Mask, radius, edge int) []block {
	d := mask.Dims
	var blocks []block

	for x := radius; x < d.X-radius; x += edge {
		for y := radius; y < d.Y-radius; y += edge {
			for z := radius; z < d.Z-radius; z += edge {
				b := block{
					lo: [3]int{x, y, z},
					hi: [3]int{
						minInt(x+edge, d.X-radius),
						minInt(y+edge, d.Y-radius),
						minInt(z+edge, d.Z-radius),
					},
				}
				if b.anyInMask(mask) {
					blocks = append(blocks, b)
				}
			}
		}
	}

	return blocks
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (b block) anyInMask(mask *volume.Mask) bool {
	for x := b.lo[0]; x < b.hi[0]; x++ {
		for y := b.lo[1]; y < b.hi[1]; y++ {
			for z := b.lo[2]; z < b.hi[2]; z++ {
				if mask.At(x, y, z) {
					return true
				}
			}
		}
	}
	return false
}

// neighborhood copies the data around (x, y, z)
func (s *Searchlight) neighborhood(x, y, z int) *Neighborhood {
	r := s.Radius
	size := len(s.shapeMask)
	dims := s.mask.Dims

	nb := &Neighborhood{
		Center: [3]int{x, y, z},
		Index:  dims.Index(x, y, z),
		Radius: r,
		Data:   make([]*mat64.Dense, len(s.data)),
		Mask:   make([]bool, size),
	}

	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				i := offsetIndex(r, dx, dy, dz)
				nb.Mask[i] = s.shapeMask[i] && s.mask.At(x+dx, y+dy, z+dz)
			}
		}
	}

	for k, vol := range s.data {
		if vol.T == 0 {
			nb.Data[k] = &mat64.Dense{}
			continue
		}
		m := mat64.NewDense(size, vol.T, nil)
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				for dz := -r; dz <= r; dz++ {
					row := m.RawRowView(offsetIndex(r, dx, dy, dz))
					series := vol.Series(dims.Index(x+dx, y+dy, z+dz))
					for t, value := range series {
						row[t] = float64(value)
					}
				}
			}
		}
		nb.Data[k] = m
	}

	return nb
}

func (s *Searchlight) runBlock(ctx context.Context, b block, kernel Kernel, scores *volume.Scores) error {
	for x := b.lo[0]; x < b.hi[0]; x++ {
		for y := b.lo[1]; y < b.hi[1]; y++ {
			for z := b.lo[2]; z < b.hi[2]; z++ {
				if !s.mask.At(x, y, z) {
					continue
				}
				if err := ctx.Err(); err != nil {
					return err
				}

				nb := s.neighborhood(x, y, z)
				value, err := kernel(nb, s.shared)
				if err == ErrInsufficientCoverage {
					value = math.NaN()
				} else if err != nil {
					return errors.Wrapf(err, "kernel failed at voxel (%d, %d, %d)", x, y, z)
				}

				scores.Data[nb.Index] = value
			}
		}
	}
	return nil
}

// Run evaluates kernel at every in-mask center using workers goroutines
// (0 means one per CPU). The first kernel error stops the run.
func (s *Searchlight) Run(ctx context.Context, kernel Kernel, workers int) (*volume.Scores, error) {
	if s.mask == nil {
		return nil, errors.New("searchlight: Run called before Distribute")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scores := volume.NewScores(s.mask.Dims)
	total := len(s.blocks)

	var (
		once     sync.Once
		firstErr error
		done     int64
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	s.Logger.Info("searchlight started",
		zap.Int("blocks", total),
		zap.Int("workers", workers),
		zap.Int("radius", s.Radius),
		zap.String("shape", s.Shape.Name()),
	)

	order := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range order {
				if ctx.Err() != nil {
					continue
				}
				if err := s.runBlock(ctx, s.blocks[idx], kernel, scores); err != nil {
					fail(err)
					continue
				}

				n := atomic.AddInt64(&done, 1)
				s.Logger.Debug("block finished", zap.Int("block", idx), zap.Int64("done", n), zap.Int("total", total))
				if step := int64(total / 10); step > 0 && n%step == 0 {
					s.Logger.Info("searchlight progress", zap.Int64("done", n), zap.Int("total", total))
				}
			}
		}()
	}

feed:
	for i := range s.blocks {
		select {
		case order <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(order)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.Logger.Info("searchlight finished", zap.Int("blocks", total))
	return scores, nil
}
