package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"CopyRelay/internal/repository"
	"CopyRelay/internal/service/stream"
	"CopyRelay/internal/usecase"
	"CopyRelay/pkg/config"
	xhttp "CopyRelay/pkg/http"
	applogger "CopyRelay/pkg/logger"
	"CopyRelay/pkg/queue"
)

// App owns the process lifecycle: the HTTP server, the background reaper and
// the archive queue start together and shut down together.
type App struct {
	cfg     *config.Config
	logger  *applogger.Logger
	handler xhttp.Handler
	reaper  *usecase.Reaper
	hub     *stream.Hub
	queue   *queue.MemoryQueue
	archive repository.SignalArchive

	httpServer *xhttp.Server
}

// New creates the application with all dependencies. Hub and queue may be
// nil when their features are disabled.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	handler xhttp.Handler,
	reaper *usecase.Reaper,
	hub *stream.Hub,
	q *queue.MemoryQueue,
	archive repository.SignalArchive,
) *App {
	return &App{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		reaper:  reaper,
		hub:     hub,
		queue:   q,
		archive: archive,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsLogger(a.logger),
	)

	if a.queue != nil {
		a.queue.Start()
		a.logger.Info("worker queue started",
			applogger.String("backend", a.cfg.Archive.Type),
			applogger.Int("workers", a.cfg.Archive.Workers),
		)
	}

	go a.reaper.Run(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	a.logger.Info("copy trading server started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("environment", a.cfg.Environment),
		applogger.Bool("stream_enabled", a.hub != nil),
		applogger.String("archive", a.cfg.Archive.Type),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel() // stops the reaper
	return a.shutdown()
}

// shutdown stops the HTTP server first so no new signals arrive, then drains
// the queue and closes the archive behind it.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.hub != nil {
		a.hub.Close()
	}

	// Detach the error-log collector before the queue stops so its final
	// flush can still be published and drained.
	a.logger.RemoveCollector()

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.logger.Warn("archive queue stop error", applogger.Error(err))
		}
	}

	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("archive close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
