package repositories

import (
	"context"

	"github.com/chrisdamba/dronesim/internal/models"
)

// RunRepository stores finished runs for later comparison.
type RunRepository interface {
	EnsureSchema(ctx context.Context) error
	SaveRun(ctx context.Context, run models.RunRecord) error
	SaveOrders(ctx context.Context, runID string, orders []*models.Order) (int64, error)
	CountOrders(ctx context.Context, runID string) (int, error)
	DeleteRun(ctx context.Context, runID string) error
}
