package ml

import "math/rand"

// StratifiedSplit partitions row indices into train and test sets keeping
// the label ratio in both. Deterministic for a given seed.
func StratifiedSplit(y []int, testFraction float64, seed int64) (train, test []int) {
	var positives, negatives []int
	for i, label := range y {
		if label == 1 {
			positives = append(positives, i)
		} else {
			negatives = append(negatives, i)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	splitClass := func(indices []int) {
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		cut := int(float64(len(indices)) * testFraction)
		// Keep at least one row of each class on both sides when possible.
		if cut == 0 && len(indices) > 1 {
			cut = 1
		}
		test = append(test, indices[:cut]...)
		train = append(train, indices[cut:]...)
	}
	splitClass(positives)
	splitClass(negatives)
	return train, test
}

// Subset gathers matrix rows by index.
func Subset(X [][]float64, indices []int) [][]float64 {
	out := make([][]float64, len(indices))
	for k, i := range indices {
		out[k] = X[i]
	}
	return out
}

// SubsetLabels gathers label rows by index.
func SubsetLabels(y []int, indices []int) []int {
	out := make([]int, len(indices))
	for k, i := range indices {
		out[k] = y[i]
	}
	return out
}
