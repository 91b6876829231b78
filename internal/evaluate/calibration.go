// Package evaluate measures trained models: calibration, threshold sweeps
// and season-by-season backtests.
package evaluate

import (
	"github.com/transferlens/transferlens/internal/ml"
	"github.com/transferlens/transferlens/internal/persistence"
)

// calibrationBins is the fixed number of equal-width probability bins.
const calibrationBins = 10

// binIndex maps a probability to its bin. The epsilon absorbs float noise
// so 0.3 lands in [0.3, 0.4) instead of one bin down; 1.0 folds into the
// last bin.
func binIndex(p float64) int {
	idx := int(p*calibrationBins + 1e-9)
	if idx >= calibrationBins {
		idx = calibrationBins - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Calibration computes the occupied reliability bins.
func Calibration(yTrue []int, yProb []float64) []persistence.CalibrationBin {
	sums := make([]float64, calibrationBins)
	hits := make([]float64, calibrationBins)
	counts := make([]int, calibrationBins)
	for i, p := range yProb {
		idx := binIndex(p)
		sums[idx] += p
		hits[idx] += float64(yTrue[i])
		counts[idx]++
	}

	var bins []persistence.CalibrationBin
	for i := 0; i < calibrationBins; i++ {
		if counts[i] == 0 {
			continue
		}
		bins = append(bins, persistence.CalibrationBin{
			RangeLow:      float64(i) / calibrationBins,
			RangeHigh:     float64(i+1) / calibrationBins,
			PredictedMean: sums[i] / float64(counts[i]),
			ActualMean:    hits[i] / float64(counts[i]),
			Count:         counts[i],
		})
	}
	return bins
}

// CalibrationFit fits actual-on-predicted as a degree-1 least-squares line
// over the occupied bins. A perfectly calibrated model fits slope 1,
// intercept 0; a flat reliability curve fits slope 0 at the base rate.
func CalibrationFit(bins []persistence.CalibrationBin) (slope, intercept float64) {
	xs := make([]float64, 0, len(bins))
	ys := make([]float64, 0, len(bins))
	for _, bin := range bins {
		xs = append(xs, bin.PredictedMean)
		ys = append(ys, bin.ActualMean)
	}

	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 1, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// ThresholdSweep evaluates the classification metrics at 0.1 through 0.9.
func ThresholdSweep(yTrue []int, yProb []float64) []persistence.ThresholdRow {
	rows := make([]persistence.ThresholdRow, 0, 9)
	for i := 1; i <= 9; i++ {
		t := float64(i) / 10
		m := ml.MetricsAt(yTrue, yProb, t)
		rows = append(rows, persistence.ThresholdRow{
			Threshold: t,
			Accuracy:  m.Accuracy,
			Precision: m.Precision,
			Recall:    m.Recall,
			F1:        m.F1,
		})
	}
	return rows
}
