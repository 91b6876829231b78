// Package predict turns feature vectors into persisted probability
// snapshots. The scorer is an interface with two implementations: one backed
// by a trained artifact, one heuristic fallback for the no-model state.
package predict

import (
	"math"
	"sort"

	"github.com/transferlens/transferlens/internal/features"
	"github.com/transferlens/transferlens/internal/ml"
)

// maxDrivers caps the attribution map at the strongest contributors.
const maxDrivers = 5

// Scorer maps one feature vector to a probability and its drivers.
type Scorer interface {
	Score(vector map[string]*float64) (float64, map[string]float64)
	ModelName() string
	ModelVersion() string
}

// modelScorer runs the trained preprocess-then-predict pipeline.
type modelScorer struct {
	artifact    *ml.Artifact
	classifier  ml.Classifier
	importances map[string]float64
	name        string
}

// NewModelScorer wraps a loaded artifact.
func NewModelScorer(artifact *ml.Artifact, modelName string) (Scorer, error) {
	classifier, err := artifact.Model()
	if err != nil {
		return nil, err
	}
	return &modelScorer{
		artifact:    artifact,
		classifier:  classifier,
		importances: classifier.Importances(artifact.FeatureNames),
		name:        modelName,
	}, nil
}

func (s *modelScorer) ModelName() string    { return s.name }
func (s *modelScorer) ModelVersion() string { return s.artifact.ModelVersion }

func (s *modelScorer) Score(vector map[string]*float64) (float64, map[string]float64) {
	row := make([]float64, len(s.artifact.FeatureNames))
	for j, name := range s.artifact.FeatureNames {
		if v, ok := vector[name]; ok && v != nil {
			row[j] = *v
		} else {
			row[j] = math.NaN()
		}
	}
	processed := s.artifact.Preprocess([][]float64{row})
	probability := s.classifier.PredictProba(processed[0])
	return probability, attributeDrivers(vector, s.importances)
}

// HeuristicVersion tags snapshots produced without a trained model.
const HeuristicVersion = "heuristic-v1"

// heuristicImportances weight the fallback attribution. Contract runway and
// market value dominate, mirroring what trained models converge on.
var heuristicImportances = map[string]float64{
	"contract_months_remaining":     0.25,
	"market_value":                  0.20,
	"user_destination_cooccurrence": 0.15,
	"age":                           0.10,
	"same_league":                   0.10,
	"tier_difference":               0.10,
	"social_mention_velocity":       0.10,
}

// heuristicScorer produces probabilities from hand-tuned terms so the system
// still emits snapshots before the first model trains.
type heuristicScorer struct{}

// NewHeuristicScorer builds the fallback scorer.
func NewHeuristicScorer() Scorer { return &heuristicScorer{} }

func (s *heuristicScorer) ModelName() string    { return "heuristic" }
func (s *heuristicScorer) ModelVersion() string { return HeuristicVersion }

func (s *heuristicScorer) Score(vector map[string]*float64) (float64, map[string]float64) {
	probability := 0.05

	if v := num(vector, "contract_months_remaining"); v != nil {
		// Expiring contracts dominate: 24 months of runway maps to zero
		// pressure, zero months to the full term.
		pressure := math.Min(math.Max((24-*v)/24, 0), 1)
		probability += 0.40 * pressure
	}
	if v := num(vector, "same_league"); v != nil && *v == 1 {
		probability += 0.10
	}
	if v := num(vector, "user_destination_cooccurrence"); v != nil {
		probability += 0.20 * math.Min(*v/100, 1)
	}
	if v := num(vector, "social_mention_velocity"); v != nil {
		probability += 0.10 * math.Min(*v/10, 1)
	}
	if v := num(vector, "tier_difference"); v != nil && *v < 0 {
		// Moving up a tier is more plausible than dropping down.
		probability += 0.05
	}

	probability = math.Min(math.Max(probability, 0.01), 0.95)
	return probability, attributeDrivers(vector, heuristicImportances)
}

func num(vector map[string]*float64, key string) *float64 {
	if v, ok := vector[key]; ok {
		return v
	}
	return nil
}

// attributeDrivers ranks features by importance times the per-vector
// min-max-normalized absolute value, keeps the top five, and renormalizes
// the kept weights to sum to 1.
func attributeDrivers(vector map[string]*float64, importances map[string]float64) map[string]float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, column := range features.Columns {
		if v := num(vector, column); v != nil {
			abs := math.Abs(*v)
			lo = math.Min(lo, abs)
			hi = math.Max(hi, abs)
		}
	}

	type weighted struct {
		name   string
		weight float64
	}
	var ranked []weighted
	for _, column := range features.Columns {
		importance := importances[column]
		if importance == 0 {
			continue
		}
		v := num(vector, column)
		if v == nil {
			continue
		}
		normalized := 0.0
		if hi > lo {
			normalized = (math.Abs(*v) - lo) / (hi - lo)
		} else if hi == lo && !math.IsInf(hi, -1) {
			normalized = 1.0
		}
		ranked = append(ranked, weighted{name: column, weight: importance * normalized})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > maxDrivers {
		ranked = ranked[:maxDrivers]
	}

	total := 0.0
	for _, w := range ranked {
		total += w.weight
	}
	drivers := make(map[string]float64, len(ranked))
	if total > 0 {
		for _, w := range ranked {
			drivers[w.name] = w.weight / total
		}
		return drivers
	}
	// Every kept weight normalized to zero; spread evenly so the UI still
	// has something to show.
	for _, w := range ranked {
		drivers[w.name] = 1.0 / float64(len(ranked))
	}
	return drivers
}
