package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the store and the HTTP surface.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ValidationError reports an entity-consistency or range constraint
// violated on write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Message)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// TimeTravelViolation means a signal read or validation saw a timestamp
// after the as-of point. ObservedAt > AsOf means "we didn't know yet";
// EffectiveFrom > AsOf means "it wasn't true yet". Either one violates.
type TimeTravelViolation struct {
	ObservedAt    time.Time
	EffectiveFrom time.Time
	AsOf          time.Time
}

func (e *TimeTravelViolation) Error() string {
	return fmt.Sprintf("time travel violation: observed_at=%s effective_from=%s as_of=%s",
		e.ObservedAt.Format(time.RFC3339), e.EffectiveFrom.Format(time.RFC3339), e.AsOf.Format(time.RFC3339))
}

// DataLeakageError means a training feature date is not strictly before
// the transfer it labels.
type DataLeakageError struct {
	TransferDate time.Time
	FeatureDate  time.Time
	HorizonDays  int
}

func (e *DataLeakageError) Error() string {
	return fmt.Sprintf("data leakage: feature_date=%s >= transfer_date=%s (horizon=%dd)",
		e.FeatureDate.Format("2006-01-02"), e.TransferDate.Format("2006-01-02"), e.HorizonDays)
}

// InsufficientDataError aborts a training run whose sample count is below
// the configured minimum.
type InsufficientDataError struct {
	Samples int
	Minimum int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: %d samples, minimum %d", e.Samples, e.Minimum)
}

// ArtifactLoadError means a model artifact could not be loaded; the scorer
// falls back to the heuristic and logs it.
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("artifact load failed: %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }
