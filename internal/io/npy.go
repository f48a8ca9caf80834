package io

import (
	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
	"github.com/pkg/errors"
)

// Mat64toNpy writes mat64 matrix to Python numpy npy binary file
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()
	rawMat := matrix.RawMatrix()

	data := rawMat.Data
	if rawMat.Stride != cols {
		data = make([]float64, 0, rows*cols)
		for i := 0; i < rows; i++ {
			data = append(data, matrix.RawRowView(i)...)
		}
	}

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return errors.Wrapf(err, "[Mat64toNpy] failed to open %s", path)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2
	if err := w.WriteFloat64(data); err != nil {
		return errors.Wrapf(err, "[Mat64toNpy] failed to write %s", path)
	}

	return nil
}

// NpyToFloat64 reads a float npy file of any shape
func NpyToFloat64(path string) ([]float64, []int, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "[NpyToFloat64] failed to open %s", path)
	}

	var data []float64
	switch r.Dtype {
	case "f8":
		data, err = r.GetFloat64()
	case "f4":
		var data32 []float32
		data32, err = r.GetFloat32()
		data = make([]float64, len(data32))
		for i, v := range data32 {
			data[i] = float64(v)
		}
	default:
		return nil, nil, errors.Errorf("[NpyToFloat64] %s: unsupported dtype %q", path, r.Dtype)
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "[NpyToFloat64] failed to read %s", path)
	}

	if r.ColumnMajor && len(r.Shape) == 2 {
		m := mat64.NewDense(r.Shape[1], r.Shape[0], data)
		t := mat64.DenseCopyOf(m.T())
		data = t.RawMatrix().Data
	}

	return data, r.Shape, nil
}

// ReadModel loads the model similarity vector. A 1D array is used as is; a
// square matrix is reduced to its entries (i, j) with j >= i+offset, row by row.
func ReadModel(path string, offset int) ([]float64, error) {
	data, shape, err := NpyToFloat64(path)
	if err != nil {
		return nil, err
	}

	switch {
	case len(shape) == 1:
		return data, nil
	case len(shape) == 2 && shape[0] == shape[1]:
		n := shape[0]
		var vec []float64
		for i := 0; i < n; i++ {
			for j := i + offset; j < n; j++ {
				vec = append(vec, data[i*n+j])
			}
		}
		return vec, nil
	}

	return nil, errors.Errorf("[ReadModel] %s: expected a vector or a square matrix, got shape %v", path, shape)
}

// WriteVector writes v as a 1D float64 npy array
func WriteVector(path string, v []float64) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return errors.Wrapf(err, "[WriteVector] failed to open %s", path)
	}
	w.Shape = []int{len(v)}
	if err := w.WriteFloat64(v); err != nil {
		return errors.Wrapf(err, "[WriteVector] failed to write %s", path)
	}
	return nil
}

// WriteInts writes v as a 1D int64 npy array
func WriteInts(path string, v []int) error {
	data := make([]int64, len(v))
	for i, x := range v {
		data[i] = int64(x)
	}

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return errors.Wrapf(err, "[WriteInts] failed to open %s", path)
	}
	w.Shape = []int{len(v)}
	if err := w.WriteInt64(data); err != nil {
		return errors.Wrapf(err, "[WriteInts] failed to write %s", path)
	}
	return nil
}
