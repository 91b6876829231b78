package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// modelsRepo implements ModelsRepo for PostgreSQL.
type modelsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewModelsRepo creates the postgres model registry repository.
func NewModelsRepo(db *sqlx.DB, timeout time.Duration) persistence.ModelsRepo {
	return &modelsRepo{db: db, timeout: timeout}
}

type modelVersionRow struct {
	ID                 string    `db:"id"`
	ModelName          string    `db:"model_name"`
	ModelVersion       string    `db:"model_version"`
	HorizonDays        int       `db:"horizon_days"`
	TrainingAsOf       time.Time `db:"training_as_of"`
	TrainingSamples    int       `db:"training_samples"`
	PositiveSamples    int       `db:"positive_samples"`
	FeatureList        []byte    `db:"feature_list"`
	Metrics            []byte    `db:"metrics"`
	FeatureImportances []byte    `db:"feature_importances"`
	ArtifactPath       string    `db:"artifact_path"`
	Status             string    `db:"status"`
	Message            *string   `db:"message"`
	CreatedAt          time.Time `db:"created_at"`
}

func (row modelVersionRow) toVersion() (persistence.ModelVersion, error) {
	v := persistence.ModelVersion{
		ID:              row.ID,
		ModelName:       row.ModelName,
		ModelVersion:    row.ModelVersion,
		HorizonDays:     row.HorizonDays,
		TrainingAsOf:    row.TrainingAsOf,
		TrainingSamples: row.TrainingSamples,
		PositiveSamples: row.PositiveSamples,
		ArtifactPath:    row.ArtifactPath,
		Status:          domain.ModelStatus(row.Status),
		Message:         row.Message,
		CreatedAt:       row.CreatedAt,
	}
	if len(row.FeatureList) > 0 {
		if err := json.Unmarshal(row.FeatureList, &v.FeatureList); err != nil {
			return v, fmt.Errorf("failed to decode feature_list: %w", err)
		}
	}
	if len(row.Metrics) > 0 {
		if err := json.Unmarshal(row.Metrics, &v.Metrics); err != nil {
			return v, fmt.Errorf("failed to decode metrics: %w", err)
		}
	}
	if len(row.FeatureImportances) > 0 {
		if err := json.Unmarshal(row.FeatureImportances, &v.FeatureImportances); err != nil {
			return v, fmt.Errorf("failed to decode feature_importances: %w", err)
		}
	}
	return v, nil
}

const modelVersionColumns = `
	id, model_name, model_version, horizon_days, training_as_of,
	training_samples, positive_samples, feature_list, metrics, feature_importances,
	artifact_path, status, message, created_at`

// InsertVersion registers one trained (or failed) model version.
func (r *modelsRepo) InsertVersion(ctx context.Context, v persistence.ModelVersion) (persistence.ModelVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	featureList, err := json.Marshal(v.FeatureList)
	if err != nil {
		return v, fmt.Errorf("failed to marshal feature list: %w", err)
	}
	metrics, err := json.Marshal(v.Metrics)
	if err != nil {
		return v, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	importances, err := json.Marshal(v.FeatureImportances)
	if err != nil {
		return v, fmt.Errorf("failed to marshal importances: %w", err)
	}

	query := `
		INSERT INTO model_versions (
			id, model_name, model_version, horizon_days, training_as_of,
			training_samples, positive_samples, feature_list, metrics, feature_importances,
			artifact_path, status, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`

	err = r.db.QueryRowxContext(ctx, query,
		v.ID, v.ModelName, v.ModelVersion, v.HorizonDays, v.TrainingAsOf,
		v.TrainingSamples, v.PositiveSamples, featureList, metrics, importances,
		v.ArtifactPath, v.Status, v.Message).
		Scan(&v.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return v, fmt.Errorf("model version %s/%s: %w", v.ModelName, v.ModelVersion, domain.ErrConflict)
		}
		return v, fmt.Errorf("failed to insert model version: %w", err)
	}
	return v, nil
}

// UpdateStatus moves a version through its lifecycle.
func (r *modelsRepo) UpdateStatus(ctx context.Context, id string, status domain.ModelStatus, message *string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE model_versions SET status = $1, message = COALESCE($2, message) WHERE id = $3`,
		status, message, id)
	if err != nil {
		return fmt.Errorf("failed to update model status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("model version %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetVersion looks up a single version by (name, version).
func (r *modelsRepo) GetVersion(ctx context.Context, modelName, modelVersion string) (*persistence.ModelVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM model_versions
		WHERE model_name = $1 AND model_version = $2`, modelVersionColumns)

	var row modelVersionRow
	if err := r.db.GetContext(ctx, &row, query, modelName, modelVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("model %s/%s: %w", modelName, modelVersion, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get model version: %w", err)
	}
	v, err := row.toVersion()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Latest returns the newest version with one of the given statuses, or nil
// when no model is available (the scorer falls back to the heuristic).
func (r *modelsRepo) Latest(ctx context.Context, modelName string, statuses []domain.ModelStatus) (*persistence.ModelVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	statusStrs := make([]string, len(statuses))
	for i, s := range statuses {
		statusStrs[i] = string(s)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM model_versions
		WHERE model_name = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1`, modelVersionColumns)

	var row modelVersionRow
	if err := r.db.GetContext(ctx, &row, query, modelName, pq.Array(statusStrs)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest model version: %w", err)
	}
	v, err := row.toVersion()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns recent versions across all models, newest first.
func (r *modelsRepo) List(ctx context.Context, limit int) ([]persistence.ModelVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM model_versions
		ORDER BY created_at DESC
		LIMIT $1`, modelVersionColumns)

	var rows []modelVersionRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}

	versions := make([]persistence.ModelVersion, 0, len(rows))
	for _, row := range rows {
		v, err := row.toVersion()
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

type modelEvaluationRow struct {
	ID                   string    `db:"id"`
	ModelVersionID       string    `db:"model_version_id"`
	EvalType             string    `db:"eval_type"`
	EvalName             string    `db:"eval_name"`
	WindowStart          time.Time `db:"window_start"`
	WindowEnd            time.Time `db:"window_end"`
	NSamples             int       `db:"n_samples"`
	NPositives           int       `db:"n_positives"`
	AUCROC               *float64  `db:"auc_roc"`
	AUCPR                *float64  `db:"auc_pr"`
	LogLoss              *float64  `db:"log_loss"`
	Brier                *float64  `db:"brier"`
	Accuracy             *float64  `db:"accuracy"`
	Precision            *float64  `db:"precision"`
	Recall               *float64  `db:"recall"`
	F1                   *float64  `db:"f1"`
	CalibrationSlope     *float64  `db:"calibration_slope"`
	CalibrationIntercept *float64  `db:"calibration_intercept"`
	CalibrationBins      []byte    `db:"calibration_bins"`
	ConfusionMatrix      []byte    `db:"confusion_matrix"`
	ThresholdTable       []byte    `db:"threshold_table"`
	SeasonBacktest       []byte    `db:"season_backtest"`
	DurationSeconds      float64   `db:"duration_seconds"`
	CreatedAt            time.Time `db:"created_at"`
}

const modelEvaluationColumns = `
	id, model_version_id, eval_type, eval_name, window_start, window_end,
	n_samples, n_positives, auc_roc, auc_pr, log_loss, brier,
	accuracy, precision, recall, f1, calibration_slope, calibration_intercept,
	calibration_bins, confusion_matrix, threshold_table, season_backtest,
	duration_seconds, created_at`

func (row modelEvaluationRow) toEvaluation() (persistence.ModelEvaluation, error) {
	e := persistence.ModelEvaluation{
		ID:                   row.ID,
		ModelVersionID:       row.ModelVersionID,
		EvalType:             row.EvalType,
		EvalName:             row.EvalName,
		WindowStart:          row.WindowStart,
		WindowEnd:            row.WindowEnd,
		NSamples:             row.NSamples,
		NPositives:           row.NPositives,
		AUCROC:               row.AUCROC,
		AUCPR:                row.AUCPR,
		LogLoss:              row.LogLoss,
		Brier:                row.Brier,
		Accuracy:             row.Accuracy,
		Precision:            row.Precision,
		Recall:               row.Recall,
		F1:                   row.F1,
		CalibrationSlope:     row.CalibrationSlope,
		CalibrationIntercept: row.CalibrationIntercept,
		DurationSeconds:      row.DurationSeconds,
		CreatedAt:            row.CreatedAt,
	}
	if len(row.CalibrationBins) > 0 {
		if err := json.Unmarshal(row.CalibrationBins, &e.CalibrationBins); err != nil {
			return e, fmt.Errorf("failed to decode calibration_bins: %w", err)
		}
	}
	if len(row.ConfusionMatrix) > 0 {
		if err := json.Unmarshal(row.ConfusionMatrix, &e.ConfusionMatrix); err != nil {
			return e, fmt.Errorf("failed to decode confusion_matrix: %w", err)
		}
	}
	if len(row.ThresholdTable) > 0 {
		if err := json.Unmarshal(row.ThresholdTable, &e.ThresholdTable); err != nil {
			return e, fmt.Errorf("failed to decode threshold_table: %w", err)
		}
	}
	if len(row.SeasonBacktest) > 0 {
		if err := json.Unmarshal(row.SeasonBacktest, &e.SeasonBacktest); err != nil {
			return e, fmt.Errorf("failed to decode season_backtest: %w", err)
		}
	}
	return e, nil
}

// InsertEvaluation persists one evaluator run.
func (r *modelsRepo) InsertEvaluation(ctx context.Context, e persistence.ModelEvaluation) (persistence.ModelEvaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	bins, err := json.Marshal(e.CalibrationBins)
	if err != nil {
		return e, fmt.Errorf("failed to marshal calibration bins: %w", err)
	}
	confusion, err := json.Marshal(e.ConfusionMatrix)
	if err != nil {
		return e, fmt.Errorf("failed to marshal confusion matrix: %w", err)
	}
	thresholds, err := json.Marshal(e.ThresholdTable)
	if err != nil {
		return e, fmt.Errorf("failed to marshal threshold table: %w", err)
	}
	backtest, err := json.Marshal(e.SeasonBacktest)
	if err != nil {
		return e, fmt.Errorf("failed to marshal season backtest: %w", err)
	}

	query := `
		INSERT INTO model_evaluations (
			id, model_version_id, eval_type, eval_name, window_start, window_end,
			n_samples, n_positives, auc_roc, auc_pr, log_loss, brier,
			accuracy, precision, recall, f1, calibration_slope, calibration_intercept,
			calibration_bins, confusion_matrix, threshold_table, season_backtest,
			duration_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)
		RETURNING created_at`

	err = r.db.QueryRowxContext(ctx, query,
		e.ID, e.ModelVersionID, e.EvalType, e.EvalName, e.WindowStart, e.WindowEnd,
		e.NSamples, e.NPositives, e.AUCROC, e.AUCPR, e.LogLoss, e.Brier,
		e.Accuracy, e.Precision, e.Recall, e.F1, e.CalibrationSlope, e.CalibrationIntercept,
		bins, confusion, thresholds, backtest, e.DurationSeconds).
		Scan(&e.CreatedAt)
	if err != nil {
		return e, fmt.Errorf("failed to insert model evaluation: %w", err)
	}
	return e, nil
}

// ListEvaluations returns evaluations for one model version, newest first.
func (r *modelsRepo) ListEvaluations(ctx context.Context, modelVersionID string) ([]persistence.ModelEvaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM model_evaluations
		WHERE model_version_id = $1
		ORDER BY created_at DESC`, modelEvaluationColumns)

	var rows []modelEvaluationRow
	if err := r.db.SelectContext(ctx, &rows, query, modelVersionID); err != nil {
		return nil, fmt.Errorf("failed to list model evaluations: %w", err)
	}

	evals := make([]persistence.ModelEvaluation, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEvaluation()
		if err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	return evals, nil
}
