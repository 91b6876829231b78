package ml

import (
	"math"
	"sort"
)

// ClassificationMetrics holds the standard binary metrics at one threshold.
type ClassificationMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Confusion counts outcomes at one decision threshold.
type Confusion struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`
}

// ConfusionAt thresholds probabilities at t (predict positive when p >= t).
func ConfusionAt(yTrue []int, yProb []float64, t float64) Confusion {
	var c Confusion
	for i := range yTrue {
		predicted := yProb[i] >= t
		switch {
		case predicted && yTrue[i] == 1:
			c.TruePositives++
		case predicted && yTrue[i] == 0:
			c.FalsePositives++
		case !predicted && yTrue[i] == 0:
			c.TrueNegatives++
		default:
			c.FalseNegatives++
		}
	}
	return c
}

// MetricsAt computes accuracy, precision, recall and F1 at a threshold.
// Undefined ratios report as 0.
func MetricsAt(yTrue []int, yProb []float64, t float64) ClassificationMetrics {
	c := ConfusionAt(yTrue, yProb, t)
	var m ClassificationMetrics
	total := len(yTrue)
	if total > 0 {
		m.Accuracy = float64(c.TruePositives+c.TrueNegatives) / float64(total)
	}
	if c.TruePositives+c.FalsePositives > 0 {
		m.Precision = float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
	}
	if c.TruePositives+c.FalseNegatives > 0 {
		m.Recall = float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// AUCROC computes the area under the ROC curve by the rank statistic, with
// midrank handling for tied probabilities. Degenerate label sets return 0.5.
func AUCROC(yTrue []int, yProb []float64) float64 {
	n := len(yTrue)
	positives := 0
	for _, label := range yTrue {
		if label == 1 {
			positives++
		}
	}
	negatives := n - positives
	if positives == 0 || negatives == 0 {
		return 0.5
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return yProb[order[a]] < yProb[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && yProb[order[j]] == yProb[order[i]] {
			j++
		}
		midrank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[order[k]] = midrank
		}
		i = j
	}

	rankSum := 0.0
	for i, label := range yTrue {
		if label == 1 {
			rankSum += ranks[i]
		}
	}
	p, q := float64(positives), float64(negatives)
	return (rankSum - p*(p+1)/2) / (p * q)
}

// AUCPR computes average precision, the step-wise area under the
// precision-recall curve.
func AUCPR(yTrue []int, yProb []float64) float64 {
	n := len(yTrue)
	positives := 0
	for _, label := range yTrue {
		if label == 1 {
			positives++
		}
	}
	if positives == 0 {
		return 0
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return yProb[order[a]] > yProb[order[b]] })

	tp, fp := 0, 0
	sum := 0.0
	for _, i := range order {
		if yTrue[i] == 1 {
			tp++
			sum += float64(tp) / float64(tp+fp)
		} else {
			fp++
		}
	}
	return sum / float64(positives)
}

// LogLoss computes mean negative log-likelihood with probability clipping.
func LogLoss(yTrue []int, yProb []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	const eps = 1e-15
	sum := 0.0
	for i, label := range yTrue {
		p := math.Min(math.Max(yProb[i], eps), 1-eps)
		if label == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(yTrue))
}

// Brier computes the mean squared error of probabilities.
func Brier(yTrue []int, yProb []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	sum := 0.0
	for i, label := range yTrue {
		d := yProb[i] - float64(label)
		sum += d * d
	}
	return sum / float64(len(yTrue))
}
