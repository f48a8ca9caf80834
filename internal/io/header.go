package io

import (
	"math"
	"os"

	"github.com/KyungWonPark/Searchlight/internal/volume"
	"github.com/KyungWonPark/nifti"
	"github.com/pkg/errors"
)

// Layout of the NIfTI-1 header, https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
const (
	headerSize        = 348
	swappedHeaderSize = 0x5c010000
	voxOffset         = 352
	maxDimensions     = 7
)

// NIfTI-1 datatype codes
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
)

var bitpix = map[int16]int16{
	dtUint8:   8,
	dtInt16:   16,
	dtInt32:   32,
	dtFloat32: 32,
	dtFloat64: 64,
	dtInt8:    8,
	dtUint16:  16,
	dtUint32:  32,
}

var magicSingleFile = [4]byte{'n', '+', '1', 0}

var (
	// ErrNotNifti1 is returned for files that are not single-file NIfTI-1 images
	ErrNotNifti1 = errors.New("not a single-file NIfTI-1 image")
	// ErrBigEndian is returned for images stored most significant byte first
	ErrBigEndian = errors.New("big-endian NIfTI-1 images are not supported")
)

// Header is the on-disk NIfTI-1 header
type Header struct {
	nifti.Nifti1Header
}

// Dims returns the spatial extent
func (h *Header) Dims() volume.Dims {
	return volume.Dims{X: dimOrOne(h, 1), Y: dimOrOne(h, 2), Z: dimOrOne(h, 3)}
}

// Timepoints returns the length of the 4th dimension
func (h *Header) Timepoints() int {
	return dimOrOne(h, 4)
}

func dimOrOne(h *Header, i int) int {
	if int(h.Dim[0]) < i || h.Dim[i] < 1 {
		return 1
	}
	return int(h.Dim[i])
}

// Affine returns the voxel to world transform stored in the sform rows
func (h *Header) Affine() [3][4]float64 {
	var a [3][4]float64
	for j := 0; j < 4; j++ {
		a[0][j] = float64(h.SrowX[j])
		a[1][j] = float64(h.SrowY[j])
		a[2][j] = float64(h.SrowZ[j])
	}
	return a
}

func (h *Header) validate() error {
	switch {
	case h.SizeofHdr == swappedHeaderSize:
		return ErrBigEndian
	case h.SizeofHdr != headerSize || h.Magic != magicSingleFile:
		return ErrNotNifti1
	case h.Dim[0] < 1 || h.Dim[0] > maxDimensions:
		return errors.Errorf("dim[0] is %d, must be in [1, 7]", h.Dim[0])
	}

	for i := 1; i <= int(h.Dim[0]) && i <= 3; i++ {
		if h.Dim[i] < 1 {
			return errors.Errorf("dim[%d] is %d, must be positive", i, h.Dim[i])
		}
	}
	return nil
}

// decoder returns the mapping from what the nifti package reads for a voxel to
// the stored value. The package reads 16 bit voxels as unsigned and 32 bit
// voxels as float32, so signed and integer codes are reinterpreted here before
// scl_slope and scl_inter apply.
func (h *Header) decoder() (func(float32) float32, error) {
	bits, ok := bitpix[h.Datatype]
	if !ok {
		return nil, errors.Errorf("unsupported datatype %d", h.Datatype)
	}
	if h.Bitpix != bits {
		return nil, errors.Errorf("datatype %d needs bitpix %d, header says %d", h.Datatype, bits, h.Bitpix)
	}

	var raw func(float32) float32
	switch h.Datatype {
	case dtInt8:
		raw = func(v float32) float32 { return float32(int8(uint8(v))) }
	case dtInt16:
		raw = func(v float32) float32 { return float32(int16(uint16(v))) }
	case dtInt32:
		raw = func(v float32) float32 { return float32(int32(math.Float32bits(v))) }
	case dtUint32:
		raw = func(v float32) float32 { return float32(math.Float32bits(v)) }
	default:
		raw = func(v float32) float32 { return v }
	}

	slope, inter := h.SclSlope, h.SclInter
	if slope == 0 || (slope == 1 && inter == 0) {
		return raw, nil
	}
	return func(v float32) float32 { return raw(v)*slope + inter }, nil
}

// guard turns a panic inside the nifti package into an error
func guard(err *error, path string) {
	if r := recover(); r != nil {
		*err = errors.Errorf("%s: %v", path, r)
	}
}

func loadHeader(path string) (h nifti.Nifti1Header, err error) {
	defer guard(&err, path)
	h.LoadHeader(path)
	return h, nil
}

// ReadHeader reads the header of a little-endian .nii or .nii.gz file
func ReadHeader(path string) (*Header, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	raw, err := loadHeader(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}

	h := &Header{raw}
	if err := h.validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}

	return h, nil
}

// scoreHeader derives a float32 header from template that keeps its
// orientation. t above 1 makes it 4D.
func scoreHeader(template *Header, dims volume.Dims, t int) nifti.Nifti1Header {
	h := template.Nifti1Header
	h.SizeofHdr = headerSize
	h.Dim = [8]int16{3, int16(dims.X), int16(dims.Y), int16(dims.Z), 1, 1, 1, 1}
	if t > 1 {
		h.Dim[0] = 4
		h.Dim[4] = int16(t)
	} else {
		h.Pixdim[4] = 0
	}
	h.IntentCode = 0
	h.Datatype = dtFloat32
	h.Bitpix = 32
	h.VoxOffset = voxOffset
	h.SclSlope = 1
	h.SclInter = 0
	h.CalMax = 0
	h.CalMin = 0
	h.Magic = magicSingleFile
	return h
}
