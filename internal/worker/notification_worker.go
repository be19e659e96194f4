package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/local-scope/localscope/internal/repository"
	"github.com/local-scope/localscope/internal/service"
)

// StartNotificationWorker registers notification handlers; stop removes them.
func StartNotificationWorker(notificationService *service.NotificationService) (stop func()) {
	if notificationService == nil {
		return func() {}
	}
	return notificationService.RegisterHandlers()
}

// TokenPurger deletes confirmation tokens that can no longer be used.
type TokenPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

var _ TokenPurger = (repository.ConfirmationRepository)(nil)

// RunConfirmationCleanup purges stale confirmation tokens every interval until ctx ends.
func RunConfirmationCleanup(ctx context.Context, purger TokenPurger, interval time.Duration, logger *zap.Logger) {
	if purger == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		purgeOnce(ctx, purger, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func purgeOnce(ctx context.Context, purger TokenPurger, logger *zap.Logger) {
	n, err := purger.DeleteExpired(ctx, time.Now())
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("confirmation token cleanup failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		logger.Info("confirmation tokens purged", zap.Int64("count", n))
	}
}
