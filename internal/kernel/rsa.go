package kernel

import (
	"github.com/KyungWonPark/Searchlight/internal/calc"
	"github.com/KyungWonPark/Searchlight/internal/searchlight"
	"github.com/pkg/errors"
)

// RSAModel is the value broadcast to calc_rsa
type RSAModel struct {
	// Vector is the model's time by time similarity, upper triangle above
	// DiagonalOffset, row by row
	Vector         []float64
	DiagonalOffset int
}

// Check verifies the model matches a dataset of timepoints samples
func (m *RSAModel) Check(timepoints int) error {
	want := calc.UpperTriangleLen(timepoints, m.DiagonalOffset)
	if len(m.Vector) != want {
		return errors.Errorf("model has %d entries, %d time points with diagonal offset %d need %d",
			len(m.Vector), timepoints, m.DiagonalOffset, want)
	}
	return nil
}

// CalcRSA correlates the neighborhood's time by time similarity structure
// with the model
func CalcRSA(nb *searchlight.Neighborhood, shared interface{}) (float64, error) {
	model, ok := shared.(*RSAModel)
	if !ok {
		return 0, errors.Errorf("calc_rsa: broadcast value is %T, want *RSAModel", shared)
	}

	if !nb.Covered() {
		return 0, searchlight.ErrInsufficientCoverage
	}

	dataMat := nb.Masked(0)
	if dataMat == nil {
		return 0, searchlight.ErrInsufficientCoverage
	}
	// rows of the transpose are time points
	tsm := calc.Pearson(denseT(dataMat))

	humanVec := calc.UpperTriangle(tsm, model.DiagonalOffset)
	r, err := calc.Correlation(humanVec, model.Vector)
	if err != nil {
		return 0, errors.Wrap(err, "calc_rsa")
	}

	return r, nil
}
