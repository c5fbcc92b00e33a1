package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RecessionLens/internal/usecase"
	"RecessionLens/pkg/config"
	xhttp "RecessionLens/pkg/http"
	pkgkafka "RecessionLens/pkg/kafka"
	applogger "RecessionLens/pkg/logger"
)

// Worker is a background component started before the HTTP server and stopped
// after it.
type Worker interface {
	Start() error
	Stop(ctx context.Context) error
}

// App encapsulates the serve-mode lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	registry    *usecase.ModelRegistry
	workers     []Worker
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	closers     []io.Closer
}

// New creates a new App instance with all dependencies. consumer and kh may
// be nil when predictions are not consumed from Kafka.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	registry *usecase.ModelRegistry,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:         cfg,
		l:           l,
		registry:    registry,
		httpHandler: handler,
		consumer:    consumer,
		kh:          kh,
	}
}

// AddWorker registers a background worker.
func (a *App) AddWorker(w Worker) {
	if w != nil {
		a.workers = append(a.workers, w)
	}
}

// AddCloser registers a resource closed last on shutdown.
func (a *App) AddCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Run starts the application and blocks until interrupted or the HTTP server
// fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// serve without a model; /api/predict answers with a config error until one is trained
	if _, err := a.registry.Reload(ctx); err != nil {
		a.l.Warn("no model loaded at startup", applogger.Error(err))
	}

	for _, w := range a.workers {
		if err := w.Start(); err != nil {
			a.shutdown()
			return err
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.shutdown()
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath),
		xhttp.WithCORS(a.cfg.Server.CORSOrigins...),
		xhttp.WithLogger(a.l),
	)
	errCh := a.httpServer.Start()

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			runErr = err
		}
	}
	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	for i := len(a.workers) - 1; i >= 0; i-- {
		if err := a.workers[i].Stop(ctx); err != nil {
			a.l.Warn("worker stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.l.Warn("close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
