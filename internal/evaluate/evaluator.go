package evaluate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/features"
	"github.com/transferlens/transferlens/internal/ml"
	"github.com/transferlens/transferlens/internal/model"
	"github.com/transferlens/transferlens/internal/persistence"
)

// SeasonOf names the football season containing date, e.g. "2024/25".
// Seasons run August 1 through July 31.
func SeasonOf(date time.Time) string {
	year := date.Year()
	if date.Month() < time.August {
		year--
	}
	return fmt.Sprintf("%d/%02d", year, (year+1)%100)
}

// SeasonStart returns August 1 of the season's first year.
func SeasonStart(date time.Time) time.Time {
	year := date.Year()
	if date.Month() < time.August {
		year--
	}
	return time.Date(year, time.August, 1, 0, 0, 0, 0, time.UTC)
}

// seasonsOverlapping lists season windows intersecting [from, to].
func seasonsOverlapping(from, to time.Time) []persistence.TimeRange {
	var windows []persistence.TimeRange
	start := SeasonStart(from)
	for start.Before(to) || start.Equal(to) {
		end := start.AddDate(1, 0, 0)
		windows = append(windows, persistence.TimeRange{From: start, To: end})
		start = end
	}
	return windows
}

// Evaluator scores a trained version against labeled history.
type Evaluator struct {
	frames *features.TrainingSetBuilder
	models persistence.ModelsRepo
}

// NewEvaluator wires the evaluator.
func NewEvaluator(frames *features.TrainingSetBuilder, models persistence.ModelsRepo) *Evaluator {
	return &Evaluator{frames: frames, models: models}
}

// Evaluate builds a labeled frame over [from, to] at the version's trained
// horizon, scores it through the artifact, and persists one evaluation row.
func (e *Evaluator) Evaluate(ctx context.Context, version *persistence.ModelVersion, from, to time.Time) (*persistence.ModelEvaluation, error) {
	started := time.Now()

	artifact, err := ml.LoadArtifact(version.ArtifactPath)
	if err != nil {
		return nil, err
	}
	classifier, err := artifact.Model()
	if err != nil {
		return nil, err
	}

	yTrue, yProb, nPositives, err := e.scoreWindow(ctx, artifact, classifier, from, to, version.HorizonDays)
	if err != nil {
		return nil, err
	}
	if len(yTrue) == 0 {
		return nil, &domain.InsufficientDataError{Samples: 0, Minimum: 1}
	}

	aucROC := ml.AUCROC(yTrue, yProb)
	aucPR := ml.AUCPR(yTrue, yProb)
	logLoss := ml.LogLoss(yTrue, yProb)
	brier := ml.Brier(yTrue, yProb)
	atHalf := ml.MetricsAt(yTrue, yProb, 0.5)
	confusion := ml.ConfusionAt(yTrue, yProb, 0.5)

	bins := Calibration(yTrue, yProb)
	slope, intercept := CalibrationFit(bins)

	var backtest []persistence.SeasonResult
	for _, window := range seasonsOverlapping(from, to) {
		seasonFrom, seasonTo := window.From, window.To
		if seasonFrom.Before(from) {
			seasonFrom = from
		}
		if seasonTo.After(to) {
			seasonTo = to
		}
		sTrue, sProb, sPositives, err := e.scoreWindow(ctx, artifact, classifier, seasonFrom, seasonTo, version.HorizonDays)
		if err != nil {
			return nil, err
		}
		result := persistence.SeasonResult{
			Season:     SeasonOf(window.From),
			NSamples:   len(sTrue),
			NPositives: sPositives,
		}
		if len(sTrue) > 0 {
			roc := ml.AUCROC(sTrue, sProb)
			ll := ml.LogLoss(sTrue, sProb)
			br := ml.Brier(sTrue, sProb)
			result.AUCROC, result.LogLoss, result.Brier = &roc, &ll, &br
		}
		backtest = append(backtest, result)
	}

	evaluation := persistence.ModelEvaluation{
		ID:                   uuid.New().String(),
		ModelVersionID:       version.ID,
		EvalType:             "backtest",
		EvalName:             fmt.Sprintf("%s_%s_%s", version.ModelName, from.Format("20060102"), to.Format("20060102")),
		WindowStart:          from,
		WindowEnd:            to,
		NSamples:             len(yTrue),
		NPositives:           nPositives,
		AUCROC:               &aucROC,
		AUCPR:                &aucPR,
		LogLoss:              &logLoss,
		Brier:                &brier,
		Accuracy:             &atHalf.Accuracy,
		Precision:            &atHalf.Precision,
		Recall:               &atHalf.Recall,
		F1:                   &atHalf.F1,
		CalibrationSlope:     &slope,
		CalibrationIntercept: &intercept,
		CalibrationBins:      bins,
		ConfusionMatrix: map[string]int{
			"tp": confusion.TruePositives,
			"fp": confusion.FalsePositives,
			"tn": confusion.TrueNegatives,
			"fn": confusion.FalseNegatives,
		},
		ThresholdTable:  ThresholdSweep(yTrue, yProb),
		SeasonBacktest:  backtest,
		DurationSeconds: time.Since(started).Seconds(),
	}

	saved, err := e.models.InsertEvaluation(ctx, evaluation)
	if err != nil {
		return nil, fmt.Errorf("failed to persist evaluation: %w", err)
	}

	log.Info().
		Str("model_version_id", version.ID).
		Int("samples", evaluation.NSamples).
		Float64("auc_roc", aucROC).
		Float64("calibration_slope", slope).
		Msg("Evaluation complete")
	return &saved, nil
}

// scoreWindow assembles the labeled frame for a window and scores it.
func (e *Evaluator) scoreWindow(ctx context.Context, artifact *ml.Artifact, classifier ml.Classifier, from, to time.Time, horizonDays int) ([]int, []float64, int, error) {
	lookback := int(to.Sub(from).Hours() / 24)
	if lookback <= 0 {
		return nil, nil, 0, nil
	}
	frame, stats, err := e.frames.Build(ctx, to, features.TrainingConfig{
		LookbackDays:         lookback,
		HorizonDays:          horizonDays,
		NegativesPerPositive: 3,
	})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("evaluation frame: %w", err)
	}
	if len(frame) == 0 {
		return nil, nil, 0, nil
	}

	X, y := model.Matrix(frame)
	processed := artifact.Preprocess(X)
	probs := make([]float64, len(processed))
	for i, row := range processed {
		probs[i] = classifier.PredictProba(row)
	}
	return y, probs, stats.Positives, nil
}
