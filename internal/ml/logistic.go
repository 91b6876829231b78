package ml

import "math"

// LogisticParams tunes the linear classifier.
type LogisticParams struct {
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	L2           float64 `json:"l2"`
}

// DefaultLogisticParams matches the production tuning.
func DefaultLogisticParams() LogisticParams {
	return LogisticParams{LearningRate: 0.1, Epochs: 500, L2: 1e-4}
}

// Logistic is a binary linear classifier trained by full-batch gradient
// descent with balanced class weights. Full-batch keeps training
// deterministic without a seed.
type Logistic struct {
	Weights []float64      `json:"weights"`
	Bias    float64        `json:"bias"`
	Params  LogisticParams `json:"params"`
}

// FitLogistic trains on preprocessed rows. Class weights are balanced:
// each class contributes equally to the gradient regardless of prevalence.
func FitLogistic(X [][]float64, y []int, params LogisticParams) *Logistic {
	model := &Logistic{Params: params}
	if len(X) == 0 {
		return model
	}
	cols := len(X[0])
	model.Weights = make([]float64, cols)

	positives := 0
	for _, label := range y {
		if label == 1 {
			positives++
		}
	}
	negatives := len(y) - positives
	wPos, wNeg := 1.0, 1.0
	if positives > 0 && negatives > 0 {
		wPos = float64(len(y)) / (2 * float64(positives))
		wNeg = float64(len(y)) / (2 * float64(negatives))
	}

	n := float64(len(X))
	for epoch := 0; epoch < params.Epochs; epoch++ {
		gradW := make([]float64, cols)
		gradB := 0.0
		for i := range X {
			p := model.PredictProba(X[i])
			residual := p - float64(y[i])
			weight := wNeg
			if y[i] == 1 {
				weight = wPos
			}
			for j := 0; j < cols; j++ {
				gradW[j] += weight * residual * X[i][j]
			}
			gradB += weight * residual
		}
		for j := 0; j < cols; j++ {
			gradW[j] = gradW[j]/n + params.L2*model.Weights[j]
			model.Weights[j] -= params.LearningRate * gradW[j]
		}
		model.Bias -= params.LearningRate * gradB / n
	}
	return model
}

// PredictProba returns P(label=1) for one preprocessed row.
func (m *Logistic) PredictProba(row []float64) float64 {
	z := m.Bias
	for j, w := range m.Weights {
		if j < len(row) {
			z += w * row[j]
		}
	}
	return sigmoid(z)
}

// Importances returns absolute coefficients normalized to sum to 1.
func (m *Logistic) Importances(featureNames []string) map[string]float64 {
	out := make(map[string]float64, len(featureNames))
	total := 0.0
	for _, w := range m.Weights {
		total += math.Abs(w)
	}
	for j, name := range featureNames {
		if j >= len(m.Weights) {
			break
		}
		if total > 0 {
			out[name] = math.Abs(m.Weights[j]) / total
		} else {
			out[name] = 0
		}
	}
	return out
}

func sigmoid(z float64) float64 {
	// Clamp to keep exp finite.
	if z > 35 {
		return 1
	}
	if z < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-z))
}
