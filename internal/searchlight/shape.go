package searchlight

import (
	"math"

	"github.com/pkg/errors"
)

// Shape selects which voxels of the (2r+1)^3 cube around a center belong to
// the searchlight
type Shape interface {
	Name() string
	Mask(radius int) []bool
}

// Cube keeps the whole cube
type Cube struct{}

// Ball keeps voxels within Euclidean distance r of the center
type Ball struct{}

// Diamond keeps voxels within city-block distance r of the center
type Diamond struct{}

// Name implements Shape
func (Cube) Name() string { return "cube" }

// Name implements Shape
func (Ball) Name() string { return "ball" }

// Name implements Shape
func (Diamond) Name() string { return "diamond" }

// Mask implements Shape
func (Cube) Mask(radius int) []bool {
	return shapeMask(radius, func(dx, dy, dz int) bool { return true })
}

// Mask implements Shape
func (Ball) Mask(radius int) []bool {
	return shapeMask(radius, func(dx, dy, dz int) bool {
		return math.Sqrt(float64(dx*dx+dy*dy+dz*dz)) <= float64(radius)
	})
}

// Mask implements Shape
func (Diamond) Mask(radius int) []bool {
	return shapeMask(radius, func(dx, dy, dz int) bool {
		return abs(dx)+abs(dy)+abs(dz) <= radius
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func shapeMask(radius int, keep func(dx, dy, dz int) bool) []bool {
	width := 2*radius + 1
	mask := make([]bool, width*width*width)
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				mask[offsetIndex(radius, dx, dy, dz)] = keep(dx, dy, dz)
			}
		}
	}
	return mask
}

// offsetIndex orders the cube with x slowest and z fastest
func offsetIndex(radius, dx, dy, dz int) int {
	width := 2*radius + 1
	return ((dx+radius)*width+(dy+radius))*width + (dz + radius)
}

// ShapeByName returns the shape called name
func ShapeByName(name string) (Shape, error) {
	switch name {
	case "", "cube":
		return Cube{}, nil
	case "ball":
		return Ball{}, nil
	case "diamond":
		return Diamond{}, nil
	}
	return nil, errors.Errorf("unknown searchlight shape %q", name)
}
