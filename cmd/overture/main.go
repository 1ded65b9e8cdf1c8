package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"overture/internal/api"
	"overture/internal/config"
	"overture/internal/logging"
	"overture/internal/metrics"
	"overture/internal/supervisor"
	"overture/internal/template"
)

const httpShutdownTimeout = 15 * time.Second

func main() {
	settings, err := config.Load(os.Getenv("OVERTURE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "overture: %v\n", err)
		os.Exit(1)
	}

	level, ok := logging.ParseLevel(settings.LogLevel)
	if !ok {
		level = logging.LevelInfo
	}
	logBuffer := logging.NewLogBuffer(logging.DefaultBufferSize)
	logger := logging.NewLogger(logBuffer, level)

	registry := metrics.Default

	store := template.NewStore(logger)
	if err := store.LoadDir(settings.TemplateDir); err != nil {
		logger.Warn("template dir load failed", map[string]string{
			"dir":   settings.TemplateDir,
			"error": err.Error(),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Watch(ctx, settings.TemplateDir); err != nil {
		logger.Warn("template watch unavailable", map[string]string{
			"error": err.Error(),
		})
	}

	sup := supervisor.New(supervisor.Options{
		DefaultTimeout: settings.DefaultTimeout,
		MaxTimeout:     settings.MaxTimeout,
		Grace:          settings.GracePeriod,
		BufferLines:    settings.BufferLines,
		Dir:            settings.WorkDir,
		Logger:         logger,
		Metrics:        registry,
	})
	sup.StartReaper(ctx, 0, settings.ReapAge)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Options{
		Supervisor: sup,
		Templates:  store,
		Metrics:    registry,
		Logger:     logger,
		AuthToken:  settings.AuthToken,
	})

	server := &http.Server{
		Addr:              settings.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	stopSignalWatch := watchShutdownSignals(logger, cancel, signalCh)
	defer stopSignalWatch()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	logger.Info("overture listening", map[string]string{
		"addr":      settings.Addr,
		"templates": strconv.Itoa(len(store.List())),
	})

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", map[string]string{
				"error": err.Error(),
			})
		}
		cancel()
	case <-ctx.Done():
	}

	coordinator := newShutdownCoordinator(logger)
	coordinator.Add("http", server.Shutdown)
	coordinator.Add("environments", func(context.Context) error {
		sup.TerminateAll()
		return nil
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer shutdownCancel()
	if err := coordinator.Run(shutdownCtx); err != nil {
		logger.Warn("shutdown finished with errors", map[string]string{
			"error": err.Error(),
		})
	}
	logger.Info("overture stopped", nil)
}
