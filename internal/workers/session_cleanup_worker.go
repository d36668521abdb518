package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/logging"
)

type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionCleanupWorker removes expired sessions on a fixed interval.
type SessionCleanupWorker struct {
	Sessions ExpiredSessionDeleter
	Interval time.Duration // default: 1 hour
	Logger   *zap.Logger
}

// Start runs the cleanup loop until ctx is done. One pass runs immediately.
func (w *SessionCleanupWorker) Start(ctx context.Context) {
	if w.Interval <= 0 {
		w.Interval = time.Hour
	}
	logger := logging.OrNop(w.Logger).Named("session_cleanup")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	logger.Info("started", zap.Duration("interval", w.Interval))
	w.cleanup(ctx, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopped")
			return
		case <-ticker.C:
			w.cleanup(ctx, logger)
		}
	}
}

func (w *SessionCleanupWorker) cleanup(ctx context.Context, logger *zap.Logger) {
	deleted, err := w.Sessions.DeleteExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
		return
	}
	if deleted > 0 {
		logger.Info("deleted expired sessions", zap.Int64("count", deleted))
	}
}
