package kernel

import (
	"math/rand"

	"github.com/KyungWonPark/Searchlight/internal/searchlight"
	"github.com/KyungWonPark/Searchlight/internal/svm"
	"github.com/gonum/matrix/mat64"
	"github.com/gonum/stat"
	"github.com/pkg/errors"
)

// SVMLabels is the value broadcast to calc_svm
type SVMLabels struct {
	// Labels per segment, one per observation of the matching dataset
	Labels    [2][]bool
	C         float64
	MaxIter   int
	Tolerance float64
	// Seed makes balancing reproducible; each center draws from its own stream
	Seed int64
}

// Check verifies both segments hold both classes
func (l *SVMLabels) Check() error {
	for seg, labels := range l.Labels {
		pos := 0
		for _, label := range labels {
			if label {
				pos++
			}
		}
		if pos == 0 || pos == len(labels) {
			return errors.Errorf("segment %d has %d observations, %d of them speech; both classes are needed", seg, len(labels), pos)
		}
	}
	return nil
}

// CalcSVM trains on one segment, tests on the other, both ways round, and
// returns the mean accuracy
func CalcSVM(nb *searchlight.Neighborhood, shared interface{}) (float64, error) {
	bc, ok := shared.(*SVMLabels)
	if !ok {
		return 0, errors.Errorf("calc_svm: broadcast value is %T, want *SVMLabels", shared)
	}

	if !nb.Covered() {
		return 0, searchlight.ErrInsufficientCoverage
	}
	if len(nb.Data) != 2 {
		return 0, errors.Errorf("calc_svm: need 2 datasets, got %d", len(nb.Data))
	}

	rng := rand.New(rand.NewSource(bc.Seed + int64(nb.Index)*7919))

	var accuracy []float64
	for trainCounter := 0; trainCounter < 2; trainCounter++ {
		testCounter := 1 - trainCounter

		// observations by voxels
		trainData := nb.Masked(trainCounter)
		testData := nb.Masked(testCounter)
		if trainData == nil || testData == nil {
			return 0, searchlight.ErrInsufficientCoverage
		}

		trainX, trainY := Balance(denseT(trainData), bc.Labels[trainCounter], rng)
		testX, testY := Balance(denseT(testData), bc.Labels[testCounter], rng)
		if trainX == nil || testX == nil {
			return 0, errors.New("calc_svm: a segment lost a class after balancing")
		}

		model := svm.New(bc.C, bc.MaxIter, bc.Tolerance)
		if err := model.Fit(trainX, trainY); err != nil {
			return 0, errors.Wrapf(err, "calc_svm: training on segment %d", trainCounter)
		}

		acc, err := model.Score(testX, testY)
		if err != nil {
			return 0, errors.Wrapf(err, "calc_svm: testing on segment %d", testCounter)
		}
		accuracy = append(accuracy, acc)
	}

	return stat.Mean(accuracy, nil), nil
}

func denseT(m *mat64.Dense) *mat64.Dense {
	return mat64.DenseCopyOf(m.T())
}
