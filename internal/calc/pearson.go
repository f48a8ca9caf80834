package calc

import (
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/gonum/stat"
	"github.com/pkg/errors"
)

type statistic struct {
	avg float64
	std float64
}

func getStat(row []float64) statistic {
	var accVal float64
	var accSqrVal float64

	for _, value := range row {
		accVal += value
		accSqrVal += value * value
	}

	n := float64(len(row))
	avgVal := accVal / n
	avgSqrVal := accSqrVal / n

	return statistic{
		avg: avgVal,
		std: math.Sqrt(math.Max(avgSqrVal-(avgVal*avgVal), 0)),
	}
}

// Pearson returns the row by row correlation matrix of m. Rows with zero
// variance produce NaN entries.
func Pearson(m *mat64.Dense) *mat64.Dense {
	rows, cols := m.Dims()
	out := mat64.NewDense(rows, rows, nil)

	stats := make([]statistic, rows)
	for i := 0; i < rows; i++ {
		stats[i] = getStat(m.RawRowView(i))
	}

	for from := 0; from < rows; from++ {
		a := m.RawRowView(from)
		for to := from; to < rows; to++ {
			b := m.RawRowView(to)

			var accProd float64
			for t := 0; t < cols; t++ {
				accProd += a[t] * b[t]
			}

			cov := (accProd / float64(cols)) - (stats[from].avg * stats[to].avg)
			pearson := cov / (stats[from].std * stats[to].std)
			if from == to && !math.IsNaN(pearson) {
				pearson = 1
			}

			out.Set(from, to, pearson)
			out.Set(to, from, pearson)
		}
	}

	return out
}

// UpperTriangle flattens entries (i, j) with j >= i+k row by row
func UpperTriangle(m *mat64.Dense, k int) []float64 {
	rows, cols := m.Dims()

	var out []float64
	for i := 0; i < rows; i++ {
		for j := i + k; j < cols; j++ {
			if j < 0 {
				continue
			}
			out = append(out, m.At(i, j))
		}
	}

	return out
}

// UpperTriangleLen returns len(UpperTriangle(m, k)) for an n by n matrix, k >= 1
func UpperTriangleLen(n, k int) int {
	if k >= n {
		return 0
	}
	m := n - k
	return m * (m + 1) / 2
}

// Correlation returns Pearson's r of two equally long vectors
func Correlation(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return math.NaN(), errors.Errorf("correlation of vectors with lengths %d and %d", len(x), len(y))
	}
	if len(x) < 2 {
		return math.NaN(), nil
	}
	return stat.Correlation(x, y, nil), nil
}
