package kernel

import (
	"math/rand"

	"github.com/gonum/matrix/mat64"
)

// Balance subsamples the majority class so both classes have the same count.
// Minority rows are always kept; majority rows are drawn at random. When the
// counts tie, the negative class plays the majority. When one class is
// absent the result is empty.
func Balance(x *mat64.Dense, y []bool, rng *rand.Rand) (*mat64.Dense, []bool) {
	var pos, neg []int
	for i, label := range y {
		if label {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	mostCommon, lessCommon := neg, pos
	if len(pos) > len(neg) {
		mostCommon, lessCommon = pos, neg
	}

	minCount := len(lessCommon)
	if minCount == 0 {
		return nil, nil
	}

	shuffled := append([]int(nil), mostCommon...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	usable := append(shuffled[:minCount:minCount], lessCommon...)

	_, cols := x.Dims()
	out := mat64.NewDense(len(usable), cols, nil)
	labels := make([]bool, len(usable))
	for row, idx := range usable {
		out.SetRow(row, x.RawRowView(idx))
		labels[row] = y[idx]
	}

	return out, labels
}
