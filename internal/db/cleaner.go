package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredSessionPurger removes session records that expired before now.
type ExpiredSessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// StartSessionCleaner purges expired sessions every interval until ctx is done.
func StartSessionCleaner(
	ctx context.Context,
	purger ExpiredSessionPurger,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := purger.DeleteExpired(ctx, time.Now())
				if err != nil {
					log.Error("failed to clean expired sessions", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("cleaned expired sessions", zap.Int64("removed", removed))
				}
			}
		}
	}()
}
