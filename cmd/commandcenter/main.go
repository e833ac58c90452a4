// Command commandcenter tracks acknowledgements of issued commands, escalates the expired ones
// and serves a read only status API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-foreman/commandcenter/config"
	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/log"
	"github.com/go-foreman/commandcenter/metrics"
	"github.com/go-foreman/commandcenter/saga"
	"github.com/go-foreman/commandcenter/saga/api/handlers/status"
	"github.com/go-foreman/commandcenter/service"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.DefaultLogger(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Logf(log.FatalLevel, "loading config: %s", err)
	}

	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		// fatal exits the process
		logger.Logf(log.FatalLevel, "%s", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	knownTypes := event.NewScheme()

	b, err := openBackend(ctx, cfg, knownTypes, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Logf(log.ErrorLevel, "closing backend: %s", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	centerOpts := []service.Opt{
		service.WithLogger(logger),
		service.WithMetrics(metrics.New(registry)),
	}
	if b.audit != nil {
		centerOpts = append(centerOpts, service.WithSagaOptions(saga.WithRecorder(b.audit)))
	}

	center := service.NewCommandCenter(b.store, b.mutex, centerOpts...)

	if err := center.Recover(ctx); err != nil {
		return errors.Wrap(err, "recovering sagas")
	}

	if cfg.SweepEnabled() {
		sweeper, err := service.NewDeadlineSweeper(center, cfg.SweepSchedule, logger)
		if err != nil {
			return err
		}

		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	status.NewStatusHandler(logger, status.NewStatusService(b.store, center.Manager(), knownTypes)).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	serverErr := make(chan error, 1)
	go func() {
		logger.Logf(log.InfoLevel, "status api listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return errors.Wrap(err, "serving status api")
		}
	case <-ctx.Done():
		logger.Logf(log.InfoLevel, "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down status api")
	}

	return nil
}
