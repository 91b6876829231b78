// Package ml carries the in-process learning stack: preprocessing, two
// binary classifiers, evaluation metrics and the artifact codec. Everything
// is deterministic given a seed; missing values travel as NaN until the
// imputer replaces them.
package ml

import (
	"math"
	"sort"
)

// Imputer replaces NaN cells with the per-column median fitted on the
// training split. Columns with no observed values impute to zero.
type Imputer struct {
	Medians []float64 `json:"medians"`
}

// FitImputer computes per-column medians over non-NaN cells.
func FitImputer(X [][]float64) *Imputer {
	if len(X) == 0 {
		return &Imputer{}
	}
	cols := len(X[0])
	medians := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var observed []float64
		for i := range X {
			if !math.IsNaN(X[i][j]) {
				observed = append(observed, X[i][j])
			}
		}
		medians[j] = median(observed)
	}
	return &Imputer{Medians: medians}
}

// Transform returns a copy of X with NaN cells replaced by the fitted
// medians.
func (im *Imputer) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		row := make([]float64, len(X[i]))
		for j, v := range X[i] {
			if math.IsNaN(v) && j < len(im.Medians) {
				row[j] = im.Medians[j]
			} else {
				row[j] = v
			}
		}
		out[i] = row
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Scaler standardizes columns to zero mean and unit variance, fitted on the
// training split. Constant columns pass through unscaled.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column mean and standard deviation. Call after
// imputation; NaN cells would poison the statistics.
func FitScaler(X [][]float64) *Scaler {
	if len(X) == 0 {
		return &Scaler{}
	}
	cols := len(X[0])
	mean := make([]float64, cols)
	std := make([]float64, cols)

	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := range X {
			sum += X[i][j]
		}
		mean[j] = sum / float64(len(X))

		variance := 0.0
		for i := range X {
			d := X[i][j] - mean[j]
			variance += d * d
		}
		std[j] = math.Sqrt(variance / float64(len(X)))
		if std[j] == 0 {
			std[j] = 1
		}
	}
	return &Scaler{Mean: mean, Std: std}
}

// Transform standardizes a copy of X with the fitted statistics.
func (s *Scaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		row := make([]float64, len(X[i]))
		for j, v := range X[i] {
			if j < len(s.Mean) {
				row[j] = (v - s.Mean[j]) / s.Std[j]
			} else {
				row[j] = v
			}
		}
		out[i] = row
	}
	return out
}
