package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"streamhost/internal/api/fileserver"
	apihttp "streamhost/internal/api/http"
	"streamhost/internal/app"
	"streamhost/internal/metrics"
	"streamhost/internal/repository/jsonfile"
	"streamhost/internal/services/playback"
	"streamhost/internal/telemetry"
	"streamhost/internal/usecase"
)

const serviceName = "streamhost"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("controlAddr", cfg.ControlAddr),
		slog.String("fileServerHost", cfg.FileServerHost),
		slog.Int("fileServerPort", cfg.FileServerPort),
		slog.Bool("fileServerAutostart", cfg.FileServerAutostart),
		slog.String("indexPath", cfg.IndexPath()),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
	)

	index, err := jsonfile.Open(cfg.IndexPath(), jsonfile.WithLogger(logger))
	if err != nil {
		logger.Error("metadata index open failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := playback.NewRegistry(logger)
	listener := fileserver.NewListener(cfg.FileServerHost, registry, fileserver.WithListenerLogger(logger))

	// A busy port is not fatal: the control API can retry via /file-server/start.
	if cfg.FileServerAutostart {
		if _, err := listener.Start(cfg.FileServerPort); err != nil {
			logger.Warn("file server autostart failed",
				slog.Int("port", cfg.FileServerPort),
				slog.String("error", err.Error()),
			)
		}
	}

	attachUC := usecase.AttachMetadata{Index: index}
	pruneUC := usecase.PruneIndex{Index: index, Logger: logger}
	selectUC := usecase.SelectPlayback{Registry: registry, Server: listener, DefaultPort: cfg.FileServerPort}

	handler := apihttp.NewServer(index,
		apihttp.WithLogger(logger),
		apihttp.WithFileServer(listener, cfg.FileServerPort),
		apihttp.WithServedFiles(registry),
		apihttp.WithAttachMetadata(attachUC),
		apihttp.WithPruneIndex(pruneUC),
		apihttp.WithSelectPlayback(selectUC),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithRateLimit(float64(cfg.RateLimitRPS), cfg.RateLimitBurst),
	)

	srv := &http.Server{
		Addr:              cfg.ControlAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info("control api started", slog.String("addr", cfg.ControlAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		handler.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("control api shutdown error", slog.String("error", err.Error()))
		}
		if err := listener.Close(shutdownCtx); err != nil {
			logger.Warn("file server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("control api error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
