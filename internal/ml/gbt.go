package ml

import "math"

// GBTParams tunes the gradient-boosted trees.
type GBTParams struct {
	Rounds        int     `json:"rounds"`
	MaxDepth      int     `json:"max_depth"`
	LearningRate  float64 `json:"learning_rate"`
	MinLeafWeight int     `json:"min_leaf_weight"`
}

// DefaultGBTParams matches the production tuning.
func DefaultGBTParams() GBTParams {
	return GBTParams{Rounds: 50, MaxDepth: 3, LearningRate: 0.1, MinLeafWeight: 5}
}

// TreeNode is one node of a regression tree. Leaf nodes carry the log-odds
// increment; internal nodes route on feature <= threshold.
type TreeNode struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
	Value     float64   `json:"value"`
	Leaf      bool      `json:"leaf"`
}

// GBT is a gradient-boosted ensemble of shallow regression trees on the
// log-odds scale. Greedy exact splits keep training deterministic.
type GBT struct {
	BasePrediction float64     `json:"base_prediction"`
	Trees          []*TreeNode `json:"trees"`
	Params         GBTParams   `json:"params"`
	gains          []float64
}

// FitGBT trains on preprocessed rows with logistic loss.
func FitGBT(X [][]float64, y []int, params GBTParams) *GBT {
	model := &GBT{Params: params}
	if len(X) == 0 {
		return model
	}
	cols := len(X[0])
	model.gains = make([]float64, cols)

	positives := 0
	for _, label := range y {
		if label == 1 {
			positives++
		}
	}
	rate := float64(positives) / float64(len(y))
	rate = math.Min(math.Max(rate, 1e-6), 1-1e-6)
	model.BasePrediction = math.Log(rate / (1 - rate))

	scores := make([]float64, len(X))
	for i := range scores {
		scores[i] = model.BasePrediction
	}

	indices := make([]int, len(X))
	for i := range indices {
		indices[i] = i
	}

	for round := 0; round < params.Rounds; round++ {
		gradients := make([]float64, len(X))
		hessians := make([]float64, len(X))
		for i := range X {
			p := sigmoid(scores[i])
			gradients[i] = float64(y[i]) - p
			hessians[i] = p * (1 - p)
		}

		tree := model.buildNode(X, gradients, hessians, indices, 0)
		model.Trees = append(model.Trees, tree)
		for i := range X {
			scores[i] += params.LearningRate * tree.predict(X[i])
		}
	}
	return model
}

func (m *GBT) buildNode(X [][]float64, gradients, hessians []float64, indices []int, depth int) *TreeNode {
	if depth >= m.Params.MaxDepth || len(indices) < 2*m.Params.MinLeafWeight {
		return m.leaf(gradients, hessians, indices)
	}

	feature, threshold, gain, ok := m.bestSplit(X, gradients, hessians, indices)
	if !ok {
		return m.leaf(gradients, hessians, indices)
	}
	m.gains[feature] += gain

	var left, right []int
	for _, i := range indices {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      m.buildNode(X, gradients, hessians, left, depth+1),
		Right:     m.buildNode(X, gradients, hessians, right, depth+1),
	}
}

func (m *GBT) leaf(gradients, hessians []float64, indices []int) *TreeNode {
	sumG, sumH := 0.0, 0.0
	for _, i := range indices {
		sumG += gradients[i]
		sumH += hessians[i]
	}
	value := 0.0
	if sumH > 1e-12 {
		// Newton step, clipped to keep single rounds from dominating.
		value = math.Max(math.Min(sumG/sumH, 4), -4)
	}
	return &TreeNode{Leaf: true, Value: value}
}

// bestSplit scans every feature for the threshold maximizing the gain in
// squared-gradient reduction. Candidate thresholds are midpoints between
// consecutive distinct sorted values.
func (m *GBT) bestSplit(X [][]float64, gradients, hessians []float64, indices []int) (int, float64, float64, bool) {
	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	cols := len(X[indices[0]])

	totalG, totalH := 0.0, 0.0
	for _, i := range indices {
		totalG += gradients[i]
		totalH += hessians[i]
	}
	parentScore := score(totalG, totalH)

	for feature := 0; feature < cols; feature++ {
		order := append([]int(nil), indices...)
		sortByFeature(order, X, feature)

		leftG, leftH := 0.0, 0.0
		for pos := 0; pos < len(order)-1; pos++ {
			i := order[pos]
			leftG += gradients[i]
			leftH += hessians[i]

			current, next := X[i][feature], X[order[pos+1]][feature]
			if current == next {
				continue
			}
			if pos+1 < m.Params.MinLeafWeight || len(order)-pos-1 < m.Params.MinLeafWeight {
				continue
			}
			gain := score(leftG, leftH) + score(totalG-leftG, totalH-leftH) - parentScore
			if gain > bestGain {
				bestFeature = feature
				bestThreshold = (current + next) / 2
				bestGain = gain
			}
		}
	}
	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, bestGain, true
}

func score(sumG, sumH float64) float64 {
	if sumH < 1e-12 {
		return 0
	}
	return sumG * sumG / sumH
}

func sortByFeature(order []int, X [][]float64, feature int) {
	// Insertion sort keyed by (value, index) for a total, stable order.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0; j-- {
			a, b := order[j-1], order[j]
			if X[a][feature] < X[b][feature] || (X[a][feature] == X[b][feature] && a < b) {
				break
			}
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
}

func (n *TreeNode) predict(row []float64) float64 {
	node := n
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// PredictProba returns P(label=1) for one preprocessed row.
func (m *GBT) PredictProba(row []float64) float64 {
	z := m.BasePrediction
	for _, tree := range m.Trees {
		z += m.Params.LearningRate * tree.predict(row)
	}
	return sigmoid(z)
}

// Importances returns per-feature split gains normalized to sum to 1.
func (m *GBT) Importances(featureNames []string) map[string]float64 {
	gains := m.gains
	if gains == nil {
		// Loaded from an artifact: recompute by walking the trees. Gains
		// are not serialized, so fall back to split counts.
		gains = make([]float64, len(featureNames))
		for _, tree := range m.Trees {
			countSplits(tree, gains)
		}
	}
	total := 0.0
	for _, g := range gains {
		total += g
	}
	out := make(map[string]float64, len(featureNames))
	for j, name := range featureNames {
		if j >= len(gains) {
			break
		}
		if total > 0 {
			out[name] = gains[j] / total
		} else {
			out[name] = 0
		}
	}
	return out
}

func countSplits(node *TreeNode, counts []float64) {
	if node == nil || node.Leaf {
		return
	}
	if node.Feature < len(counts) {
		counts[node.Feature]++
	}
	countSplits(node.Left, counts)
	countSplits(node.Right, counts)
}
