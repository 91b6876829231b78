// Package model orchestrates training runs and the model registry. The
// learning math lives in internal/ml; this package owns frame-to-matrix
// conversion, bookkeeping rows and artifact placement.
package model

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/features"
	"github.com/transferlens/transferlens/internal/ml"
	"github.com/transferlens/transferlens/internal/persistence"
)

// Name returns the registry name for a horizon, e.g. transfer_xgb_90d.
func Name(horizonDays int) string {
	return fmt.Sprintf("transfer_xgb_%dd", horizonDays)
}

// ArtifactPath places an artifact under the storage root.
func ArtifactPath(storageRoot, modelName, version string) string {
	return filepath.Join(storageRoot, modelName, version+".json")
}

// TrainRequest parameterizes one training run.
type TrainRequest struct {
	AsOf         time.Time
	HorizonDays  int
	ModelType    string // ml.KindLogistic or ml.KindGBT
	LookbackDays int
	MinSamples   int
	TestFraction float64
	Seed         int64
}

// Defaults fills zero-valued fields with the production tuning.
func (r *TrainRequest) Defaults() {
	if r.ModelType == "" {
		r.ModelType = ml.KindGBT
	}
	if r.LookbackDays == 0 {
		r.LookbackDays = 365
	}
	if r.MinSamples == 0 {
		r.MinSamples = 50
	}
	if r.TestFraction == 0 {
		r.TestFraction = 0.2
	}
	if r.Seed == 0 {
		r.Seed = 42
	}
}

// Trainer runs training end to end: frame assembly, preprocessing, fit,
// held-out evaluation, artifact persistence and registry bookkeeping.
type Trainer struct {
	frames      *features.TrainingSetBuilder
	models      persistence.ModelsRepo
	storageRoot string
}

// NewTrainer wires the trainer.
func NewTrainer(frames *features.TrainingSetBuilder, models persistence.ModelsRepo, storageRoot string) *Trainer {
	return &Trainer{frames: frames, models: models, storageRoot: storageRoot}
}

// Train runs one training pass. Insufficient samples register a failed
// version row and return InsufficientDataError; every other error aborts
// before registration.
func (t *Trainer) Train(ctx context.Context, req TrainRequest) (*persistence.ModelVersion, error) {
	req.Defaults()
	started := time.Now()

	frame, stats, err := t.frames.Build(ctx, req.AsOf, features.TrainingConfig{
		LookbackDays:         req.LookbackDays,
		HorizonDays:          req.HorizonDays,
		NegativesPerPositive: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("training frame: %w", err)
	}

	modelName := Name(req.HorizonDays)
	version := req.AsOf.UTC().Format("20060102150405")

	if len(frame) < req.MinSamples {
		insufficient := &domain.InsufficientDataError{Samples: len(frame), Minimum: req.MinSamples}
		message := insufficient.Error()
		failed := persistence.ModelVersion{
			ID:              uuid.New().String(),
			ModelName:       modelName,
			ModelVersion:    version,
			HorizonDays:     req.HorizonDays,
			TrainingAsOf:    req.AsOf,
			TrainingSamples: len(frame),
			PositiveSamples: stats.Positives,
			FeatureList:     features.Columns,
			Status:          domain.ModelFailed,
			Message:         &message,
		}
		if _, err := t.models.InsertVersion(ctx, failed); err != nil {
			log.Error().Err(err).Msg("Failed to register failed training run")
		}
		return nil, insufficient
	}

	X, y := Matrix(frame)
	trainIdx, testIdx := ml.StratifiedSplit(y, req.TestFraction, req.Seed)
	XTrain, yTrain := ml.Subset(X, trainIdx), ml.SubsetLabels(y, trainIdx)
	XTest, yTest := ml.Subset(X, testIdx), ml.SubsetLabels(y, testIdx)

	imputer := ml.FitImputer(XTrain)
	scaler := ml.FitScaler(imputer.Transform(XTrain))
	preprocess := func(rows [][]float64) [][]float64 {
		return scaler.Transform(imputer.Transform(rows))
	}

	var classifier ml.Classifier
	artifact := &ml.Artifact{
		Kind:         req.ModelType,
		Imputer:      imputer,
		Scaler:       scaler,
		FeatureNames: features.Columns,
		ModelVersion: version,
		HorizonDays:  req.HorizonDays,
		CreatedAt:    time.Now().UTC(),
	}
	switch req.ModelType {
	case ml.KindLogistic:
		m := ml.FitLogistic(preprocess(XTrain), yTrain, ml.DefaultLogisticParams())
		artifact.Logistic = m
		classifier = m
	case ml.KindGBT:
		m := ml.FitGBT(preprocess(XTrain), yTrain, ml.DefaultGBTParams())
		artifact.GBT = m
		classifier = m
	default:
		return nil, &domain.ValidationError{Field: "model_type", Message: fmt.Sprintf("unknown model type %q", req.ModelType)}
	}

	probs := make([]float64, len(XTest))
	for i, row := range preprocess(XTest) {
		probs[i] = classifier.PredictProba(row)
	}
	held := ml.MetricsAt(yTest, probs, 0.5)
	metrics := map[string]float64{
		"accuracy":  held.Accuracy,
		"precision": held.Precision,
		"recall":    held.Recall,
		"f1":        held.F1,
		"auc_roc":   ml.AUCROC(yTest, probs),
	}

	path := ArtifactPath(t.storageRoot, modelName, version)
	if err := ml.SaveArtifact(path, artifact); err != nil {
		return nil, fmt.Errorf("artifact save: %w", err)
	}

	row := persistence.ModelVersion{
		ID:                 uuid.New().String(),
		ModelName:          modelName,
		ModelVersion:       version,
		HorizonDays:        req.HorizonDays,
		TrainingAsOf:       req.AsOf,
		TrainingSamples:    len(frame),
		PositiveSamples:    stats.Positives,
		FeatureList:        features.Columns,
		Metrics:            metrics,
		FeatureImportances: classifier.Importances(features.Columns),
		ArtifactPath:       path,
		Status:             domain.ModelCompleted,
	}
	saved, err := t.models.InsertVersion(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("failed to register model version: %w", err)
	}

	log.Info().
		Str("model_name", modelName).
		Str("model_version", version).
		Int("samples", len(frame)).
		Int("positives", stats.Positives).
		Float64("auc_roc", metrics["auc_roc"]).
		Dur("elapsed", time.Since(started)).
		Msg("Training complete")
	return &saved, nil
}

// Matrix converts a training frame to the fixed column order. Nil values
// become NaN for the imputer; a column absent from the map entirely is
// filled with 0 and logged once.
func Matrix(frame []features.Example) ([][]float64, []int) {
	X := make([][]float64, len(frame))
	y := make([]int, len(frame))
	warned := map[string]bool{}

	for i, example := range frame {
		row := make([]float64, len(features.Columns))
		for j, column := range features.Columns {
			value, present := example.Features[column]
			switch {
			case !present:
				row[j] = 0
				if !warned[column] {
					warned[column] = true
					log.Warn().Str("column", column).Msg("Feature column missing from frame, filling with 0")
				}
			case value == nil:
				row[j] = math.NaN()
			default:
				row[j] = *value
			}
		}
		X[i] = row
		y[i] = example.Label
	}
	return X, y
}
