package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/repairdesk/repairdesk/internal/service"
	"github.com/repairdesk/repairdesk/internal/storage"
)

// Retrier re-sends failed notifications.
type Retrier interface {
	RetryFailedNotifications(ctx context.Context) (service.RetryResult, error)
}

// Config controls the worker schedule.
type Config struct {
	RetryInterval   time.Duration
	CleanupInterval time.Duration
	// CleanupAge is how old a stored attachment must be before it is removed.
	CleanupAge time.Duration
}

// NotificationWorker runs the periodic notification retry and attachment cleanup.
type NotificationWorker struct {
	retrier Retrier
	storage storage.Gateway
	cfg     Config
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewNotificationWorker builds the worker. A nil storage disables cleanup.
func NewNotificationWorker(retrier Retrier, store storage.Gateway, cfg Config, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{retrier: retrier, storage: store, cfg: cfg, logger: logger}
}

// StartNotificationWorker registers notification handlers on the event dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// Start launches the loops. They stop when ctx is cancelled; Wait blocks until then.
func (w *NotificationWorker) Start(ctx context.Context) {
	if w.retrier != nil && w.cfg.RetryInterval > 0 {
		w.loop(ctx, "notification retry", w.cfg.RetryInterval, w.RetryOnce)
	}
	if w.storage != nil && w.cfg.CleanupInterval > 0 && w.cfg.CleanupAge > 0 {
		w.loop(ctx, "attachment cleanup", w.cfg.CleanupInterval, w.CleanupOnce)
	}
}

// Wait blocks until every loop has returned.
func (w *NotificationWorker) Wait() {
	w.wg.Wait()
}

// RetryOnce runs one retry pass.
func (w *NotificationWorker) RetryOnce(ctx context.Context) {
	if _, err := w.retrier.RetryFailedNotifications(ctx); err != nil {
		w.logger.Error("notification retry pass failed", zap.Error(err))
	}
}

// CleanupOnce removes attachments older than the configured age.
func (w *NotificationWorker) CleanupOnce(ctx context.Context) {
	removed, err := w.storage.Cleanup(ctx, w.cfg.CleanupAge)
	if err != nil {
		w.logger.Error("attachment cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		w.logger.Info("attachment cleanup", zap.Int("removed", removed))
	}
}

func (w *NotificationWorker) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		w.logger.Info("worker started", zap.String("worker", name), zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopped", zap.String("worker", name))
				return
			case <-ticker.C:
				run(ctx)
			}
		}
	}()
}
