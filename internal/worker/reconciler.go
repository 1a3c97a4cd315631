package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLogger routes the scheduler's own logs through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// StartReconciler schedules the settlement link reconciler. Overlapping runs are skipped.
// The caller stops the returned scheduler on shutdown.
func (wk *Worker) StartReconciler(ctx context.Context, schedule string) (*cron.Cron, error) {
	logger := cronLogger{logger: wk.logger}

	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(schedule, func() { wk.reconcile(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule reconciler %q: %w", schedule, err)
	}

	c.Start()
	wk.logger.Info("settlement reconciler scheduled", slog.String("schedule", schedule))

	return c, nil
}

func (wk *Worker) reconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if _, err := wk.reconciler.ReconcileUnlinked(ctx, wk.ReconcileBatch); err != nil {
		wk.logger.Error("settlement reconciliation failed", slog.Any("error", err))
	}
}
