package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/userdata"
)

// Reminder sends one attendance reminder.
type Reminder interface {
	RemindCurrentUser(ctx context.Context) error
}

// StartReminderWorker sends a reminder every interval until ctx is done.
// The returned function blocks until the loop has exited. A non-positive
// interval starts nothing.
func StartReminderWorker(ctx context.Context, reminder Reminder, interval time.Duration, logger *zap.Logger) (wait func()) {
	if reminder == nil || interval <= 0 {
		return func() {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("reminder_worker")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		logger.Info("reminder worker started", zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				logger.Info("reminder worker stopped")
				return
			case <-ticker.C:
				err := reminder.RemindCurrentUser(ctx)
				switch {
				case err == nil:
				case errors.Is(err, userdata.ErrNoSession):
					logger.Debug("no session to remind")
				default:
					logger.Warn("reminder failed", zap.Error(err))
				}
			}
		}
	}()
	return wg.Wait
}
