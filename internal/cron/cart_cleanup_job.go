package cron

import (
	"context"
	"fmt"

	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
)

type cartCleaner interface {
	CleanupExpiredCarts(ctx context.Context) (int64, error)
}

type CartCleanupJobParams struct {
	Logger *logger.Logger
	Carts  cartCleaner
}

// NewCartCleanupJob flips active carts whose expiry has passed. The sweep is
// idempotent; reruns find nothing left to change.
func NewCartCleanupJob(params CartCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &cartCleanupJob{logg: params.Logger, carts: params.Carts}, nil
}

type cartCleanupJob struct {
	logg  *logger.Logger
	carts cartCleaner
}

func (j *cartCleanupJob) Name() string { return "cart-cleanup" }

func (j *cartCleanupJob) Run(ctx context.Context) error {
	expired, err := j.carts.CleanupExpiredCarts(ctx)
	if err != nil {
		return fmt.Errorf("cart cleanup: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "carts_expired", expired)
	j.logg.Info(logCtx, "cart cleanup complete")
	return nil
}
