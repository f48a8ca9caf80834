// Package svm implements a linear C-support vector classifier. The dual is
// solved by SMO with second order working set selection (Fan, Chen and Lin,
// JMLR 2005); the intercept is not penalised and is recovered from the KKT
// conditions.
package svm

import (
	"math"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// ErrSingleClass is returned when the training labels hold only one class
var ErrSingleClass = errors.New("training labels contain a single class")

const tau = 1e-12

// LinearSVC is a linear margin classifier
type LinearSVC struct {
	C       float64
	MaxIter int // 0 means max(10000000, 100*n)
	Tol     float64

	w    []float64
	bias float64
}

// New returns an untrained classifier
func New(c float64, maxIter int, tol float64) *LinearSVC {
	if tol <= 0 {
		tol = 1e-3
	}
	return &LinearSVC{C: c, MaxIter: maxIter, Tol: tol}
}

// Fit trains on the rows of x
func (s *LinearSVC) Fit(x *mat64.Dense, y []bool) error {
	n, d := x.Dims()
	if n != len(y) {
		return errors.Errorf("svm: %d observations but %d labels", n, len(y))
	}
	if s.C <= 0 {
		return errors.Errorf("svm: C must be positive, got %g", s.C)
	}

	pos := 0
	for _, label := range y {
		if label {
			pos++
		}
	}
	if pos == 0 || pos == n {
		return ErrSingleClass
	}

	// solve on centered rows; the mean folds back into the intercept
	mean := make([]float64, d)
	for i := 0; i < n; i++ {
		floats.Add(mean, x.RawRowView(i))
	}
	floats.Scale(1/float64(n), mean)

	rows := make([][]float64, n)
	sign := make([]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, d)
		floats.SubTo(rows[i], x.RawRowView(i), mean)
		sign[i] = -1
		if y[i] {
			sign[i] = 1
		}
	}

	kern := mat64.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k := floats.Dot(rows[i], rows[j])
			kern.Set(i, j, k)
			kern.Set(j, i, k)
		}
	}

	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}

	maxIter := s.MaxIter
	if maxIter <= 0 {
		maxIter = 100 * n
		if maxIter < 10000000 {
			maxIter = 10000000
		}
	}

	for iter := 0; iter < maxIter; iter++ {
		i, j, ok := s.selectPair(alpha, grad, sign, kern)
		if !ok {
			break
		}

		oldI, oldJ := alpha[i], alpha[j]
		quad := floats.Distance(rows[i], rows[j], 2)
		quad *= quad
		if quad <= 0 {
			quad = tau
		}

		if sign[i] != sign[j] {
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j] = 0
					alpha[i] = diff
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
			if diff > 0 {
				if alpha[i] > s.C {
					alpha[i] = s.C
					alpha[j] = s.C - diff
				}
			} else if alpha[j] > s.C {
				alpha[j] = s.C
				alpha[i] = s.C + diff
			}
		} else {
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > s.C {
				if alpha[i] > s.C {
					alpha[i] = s.C
					alpha[j] = sum - s.C
				}
			} else if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = sum
			}
			if sum > s.C {
				if alpha[j] > s.C {
					alpha[j] = s.C
					alpha[i] = sum - s.C
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = sum
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for t := 0; t < n; t++ {
			grad[t] += sign[t] * (sign[i]*kern.At(t, i)*dI + sign[j]*kern.At(t, j)*dJ)
		}
	}

	w := make([]float64, d)
	for i := 0; i < n; i++ {
		if alpha[i] != 0 {
			floats.AddScaled(w, alpha[i]*sign[i], rows[i])
		}
	}

	s.w = w
	s.bias = -s.rho(alpha, grad, sign) - floats.Dot(w, mean)
	return nil
}

// selectPair picks the maximal violating pair by second order gain. ok is
// false once the duality gap is below Tol.
func (s *LinearSVC) selectPair(alpha, grad, sign []float64, kern *mat64.Dense) (int, int, bool) {
	gMax := math.Inf(-1)
	gMax2 := math.Inf(-1)
	i := -1
	for t := range alpha {
		if s.inUp(alpha[t], sign[t]) && -sign[t]*grad[t] >= gMax {
			gMax = -sign[t] * grad[t]
			i = t
		}
	}
	if i < 0 {
		return 0, 0, false
	}

	j := -1
	objMin := math.Inf(1)
	for t := range alpha {
		if !s.inLow(alpha[t], sign[t]) {
			continue
		}
		yg := sign[t] * grad[t]
		if yg >= gMax2 {
			gMax2 = yg
		}
		b := gMax + yg
		if b <= 0 {
			continue
		}
		a := kern.At(i, i) + kern.At(t, t) - 2*kern.At(i, t)
		if a <= 0 {
			a = tau
		}
		if obj := -b * b / a; obj <= objMin {
			objMin = obj
			j = t
		}
	}

	if j < 0 || gMax+gMax2 < s.Tol {
		return 0, 0, false
	}
	return i, j, true
}

func (s *LinearSVC) inUp(a, y float64) bool {
	return (y > 0 && a < s.C) || (y < 0 && a > 0)
}

func (s *LinearSVC) inLow(a, y float64) bool {
	return (y > 0 && a > 0) || (y < 0 && a < s.C)
}

// rho is the negated intercept: the mean of y*grad over free vectors, or the
// middle of the feasible interval when every multiplier sits at a bound
func (s *LinearSVC) rho(alpha, grad, sign []float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	sumFree, nFree := 0.0, 0

	for t, a := range alpha {
		yg := sign[t] * grad[t]
		switch {
		case a >= s.C:
			if sign[t] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case a <= 0:
			if sign[t] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			nFree++
			sumFree += yg
		}
	}

	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}

// Weights returns the learned weights and bias
func (s *LinearSVC) Weights() ([]float64, float64) {
	return s.w, s.bias
}

// Decision returns the signed distance score of each row
func (s *LinearSVC) Decision(x *mat64.Dense) ([]float64, error) {
	n, d := x.Dims()
	if s.w == nil {
		return nil, errors.New("svm: classifier is not trained")
	}
	if d != len(s.w) {
		return nil, errors.Errorf("svm: trained on %d features, got %d", len(s.w), d)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = floats.Dot(s.w, x.RawRowView(i)) + s.bias
	}
	return out, nil
}

// Predict returns the predicted class of each row
func (s *LinearSVC) Predict(x *mat64.Dense) ([]bool, error) {
	dec, err := s.Decision(x)
	if err != nil {
		return nil, err
	}

	out := make([]bool, len(dec))
	for i, v := range dec {
		out[i] = v > 0
	}
	return out, nil
}

// Score returns the fraction of rows predicted correctly
func (s *LinearSVC) Score(x *mat64.Dense, y []bool) (float64, error) {
	pred, err := s.Predict(x)
	if err != nil {
		return 0, err
	}
	if len(pred) != len(y) {
		return 0, errors.Errorf("svm: %d observations but %d labels", len(pred), len(y))
	}
	if len(y) == 0 {
		return math.NaN(), nil
	}

	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y)), nil
}
