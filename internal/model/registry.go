package model

import (
	"context"

	"github.com/transferlens/transferlens/internal/domain"
	"github.com/transferlens/transferlens/internal/persistence"
)

// UsableStatuses are the lifecycle states the scorer will load.
var UsableStatuses = []domain.ModelStatus{domain.ModelCompleted, domain.ModelDeployed}

// LatestUsable returns the newest scorable version for a horizon, or nil
// when none has ever completed.
func LatestUsable(ctx context.Context, models persistence.ModelsRepo, horizonDays int) (*persistence.ModelVersion, error) {
	return models.Latest(ctx, Name(horizonDays), UsableStatuses)
}
