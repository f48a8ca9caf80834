package io

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/KyungWonPark/Searchlight/internal/volume"
	"github.com/KyungWonPark/nifti"
	"github.com/pkg/errors"
)

func sampling(img *nifti.Nifti1Image, decode func(float32) float32, vol *volume.Volume, times []int, order <-chan int, wg *sync.WaitGroup) {
	dims := vol.Dims

	for {
		j, ok := <-order
		if ok {
			t := uint32(times[j])
			for z := 0; z < dims.Z; z++ {
				for y := 0; y < dims.Y; y++ {
					for x := 0; x < dims.X; x++ {
						value := img.GetAt(uint32(x), uint32(y), uint32(z), t)
						vol.Set(x, y, z, j, decode(value))
					}
				}
			}

			wg.Done()
		} else {
			break
		}
	}

	return
}

// loadImage reads the voxel data of path and checks that every volume named
// by h is present
func loadImage(path string, h *Header) (img *nifti.Nifti1Image, err error) {
	defer guard(&err, path)

	img = new(nifti.Nifti1Image)
	img.LoadImage(path, true)

	if got := len(img.GetTimeSeries(0, 0, 0)); got < h.Timepoints() {
		return nil, errors.Errorf("%s: voxel data holds %d of %d volumes", path, got, h.Timepoints())
	}
	return img, nil
}

// LoadFunctional reads the requested time points of a 4D image. A nil times
// loads every time point.
func LoadFunctional(path string, times []int) (*volume.Volume, *Header, error) {
	h, err := ReadHeader(path)
	if err != nil {
		return nil, nil, err
	}
	decode, err := h.decoder()
	if err != nil {
		return nil, nil, errors.Wrap(err, path)
	}

	total := h.Timepoints()
	if times == nil {
		times = make([]int, total)
		for t := range times {
			times[t] = t
		}
	}
	for _, t := range times {
		if t < 0 || t >= total {
			return nil, nil, errors.Errorf("%s: time index %d out of range, image has %d time points", path, t, total)
		}
	}

	img, err := loadImage(path, h)
	if err != nil {
		return nil, nil, err
	}

	vol := volume.NewVolume(h.Dims(), len(times))

	numLoader := runtime.NumCPU()
	order := make(chan int, numLoader)
	var wg sync.WaitGroup

	wg.Add(len(times))
	for i := 0; i < numLoader; i++ {
		go sampling(img, decode, vol, times, order, &wg)
	}

	for j := range times {
		order <- j
	}
	wg.Wait()

	close(order)
	return vol, h, nil
}

// LoadMask reads a 3D image and marks every non-zero voxel
func LoadMask(path string) (*volume.Mask, *Header, error) {
	h, err := ReadHeader(path)
	if err != nil {
		return nil, nil, err
	}
	decode, err := h.decoder()
	if err != nil {
		return nil, nil, errors.Wrap(err, path)
	}

	img, err := loadImage(path, h)
	if err != nil {
		return nil, nil, err
	}

	dims := h.Dims()
	mask := volume.NewMask(dims)
	for z := 0; z < dims.Z; z++ {
		for y := 0; y < dims.Y; y++ {
			for x := 0; x < dims.X; x++ {
				if decode(img.GetAt(uint32(x), uint32(y), uint32(z), 0)) != 0 {
					mask.Set(x, y, z, true)
				}
			}
		}
	}

	return mask, h, nil
}

// newImage allocates a float32 image of t volumes with the orientation of
// template
func newImage(template *Header, dims volume.Dims, t int) *nifti.Nifti1Image {
	img := nifti.NewImg(dims.X, dims.Y, dims.Z, t)
	img.SetNewHeader(scoreHeader(template, dims, t))
	return img
}

// saveImage writes img gzip compressed and returns the file name, which
// always ends in .gz
func saveImage(path string, img *nifti.Nifti1Image) (name string, err error) {
	base := strings.TrimSuffix(path, ".gz")
	name = base + ".gz"
	defer guard(&err, name)

	img.Save(base)

	if _, err := os.Stat(name); err != nil {
		return "", errors.Wrapf(err, "saving %s", name)
	}
	return name, nil
}

// SaveScores writes a float32 image with the orientation of template. The
// image is always gzip compressed; .gz is appended to path when missing. The
// name of the written file is returned.
func SaveScores(path string, template *Header, scores *volume.Scores) (string, error) {
	dims := scores.Dims
	img := newImage(template, dims, 1)

	for z := 0; z < dims.Z; z++ {
		for y := 0; y < dims.Y; y++ {
			for x := 0; x < dims.X; x++ {
				img.SetAt(uint32(x), uint32(y), uint32(z), 0, float32(scores.At(x, y, z)))
			}
		}
	}

	return saveImage(path, img)
}
