package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultIdleTimeout    = time.Minute
	defaultReadTimeout    = 5 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultShutdownPeriod = 30 * time.Second
)

// Run serves HTTP and runs the funding worker and settlement reconciler until ctx is
// cancelled, then drains them. A failure in any of them stops the others.
func (app *Application) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.Config.HttpPort),
		Handler:      app.routes(),
		ErrorLog:     slog.NewLogLogger(app.Logger.Handler(), slog.LevelWarn),
		IdleTimeout:  defaultIdleTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	scheduler, err := app.Worker.StartReconciler(ctx, app.Config.Settlement.ReconcileSchedule)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info("starting server", slog.Group("server", "addr", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.Worker.FundingWorker(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		app.Logger.Info("shutting down", slog.String("cause", context.Cause(gctx).Error()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownPeriod)
		defer cancel()

		<-scheduler.Stop().Done()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	app.Logger.Info("stopped server", slog.Group("server", "addr", srv.Addr))
	return err
}
