package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/transferlens/transferlens/internal/domain"
)

// Model kinds accepted by the trainer.
const (
	KindLogistic = "logistic"
	KindGBT      = "gbt"
)

// Classifier is the common surface of the two model families.
type Classifier interface {
	PredictProba(row []float64) float64
	Importances(featureNames []string) map[string]float64
}

// Artifact is the self-contained bundle persisted per trained version:
// the model, the preprocessing fitted alongside it, and the ordered feature
// schema it expects.
type Artifact struct {
	Kind         string    `json:"kind"`
	Logistic     *Logistic `json:"logistic,omitempty"`
	GBT          *GBT      `json:"gbt,omitempty"`
	Imputer      *Imputer  `json:"imputer"`
	Scaler       *Scaler   `json:"scaler"`
	FeatureNames []string  `json:"feature_names"`
	ModelVersion string    `json:"model_version"`
	HorizonDays  int       `json:"horizon_days"`
	CreatedAt    time.Time `json:"created_at"`
}

// Model returns the bundled classifier.
func (a *Artifact) Model() (Classifier, error) {
	switch a.Kind {
	case KindLogistic:
		if a.Logistic == nil {
			return nil, fmt.Errorf("artifact kind %s has no model payload", a.Kind)
		}
		return a.Logistic, nil
	case KindGBT:
		if a.GBT == nil {
			return nil, fmt.Errorf("artifact kind %s has no model payload", a.Kind)
		}
		return a.GBT, nil
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", a.Kind)
	}
}

// Preprocess runs the bundled imputer and scaler over rows.
func (a *Artifact) Preprocess(X [][]float64) [][]float64 {
	return a.Scaler.Transform(a.Imputer.Transform(X))
}

// SaveArtifact writes the bundle as JSON, creating parent directories.
func SaveArtifact(path string, artifact *Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads a bundle back. Failures come out as ArtifactLoadError
// so the scorer can fall back to the heuristic.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ArtifactLoadError{Path: path, Err: err}
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, &domain.ArtifactLoadError{Path: path, Err: err}
	}
	if _, err := artifact.Model(); err != nil {
		return nil, &domain.ArtifactLoadError{Path: path, Err: err}
	}
	return &artifact, nil
}
