package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/audio"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/config"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/metrics"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/server"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/sink"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "pcm-mixer"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Engine.SampleRate),
		slog.Int("channels", cfg.Engine.Channels),
		slog.Duration("chunk_duration", cfg.Engine.GetChunkDuration()),
		slog.Duration("stall_timeout", cfg.Engine.GetStallTimeout()),
		slog.String("stall_policy", cfg.Engine.StallPolicy),
		slog.Any("outputs", cfg.Sink.Outputs),
		slog.Bool("control_enabled", cfg.Control.Enabled),
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	format := sink.Format{SampleRate: cfg.Engine.SampleRate, Channels: cfg.Engine.Channels}
	out, err := sink.New(cfg.Sink, format, logger)
	if err != nil {
		logger.Error("Failed to create sink", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The event hub exists only to feed the HTTP /events endpoint
	var hub *server.EventHub
	var opts []stream.Option
	if cfg.HTTP.Enabled {
		hub = server.NewEventHub(logger)
		opts = append(opts, stream.WithListener(hub.Publish))
	}

	streamMgr, err := stream.NewManager(logger, stream.ManagerConfig{
		StreamName:    cfg.Engine.StreamName,
		SampleRate:    cfg.Engine.SampleRate,
		Channels:      cfg.Engine.Channels,
		ChunkDuration: cfg.Engine.GetChunkDuration(),
		StallTimeout:  cfg.Engine.GetStallTimeout(),
		StallPolicy:   cfg.Engine.StallPolicy,
	}, audio.WAVDecoder{}, out, appMetrics, opts...)
	if err != nil {
		logger.Error("Failed to create stream manager", slog.String("error", err.Error()))
		out.Close()
		os.Exit(1)
	}

	// Startup sources are registered before the scheduler runs so their first chunks mix together
	for _, path := range cfg.Sources {
		if !streamMgr.Register(path) {
			logger.Warn("Startup source not registered", slog.String("path", path))
		}
	}

	if err := streamMgr.Start(ctx); err != nil {
		logger.Error("Failed to start stream manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var udpServer *server.UDPServer
	if cfg.Control.Enabled {
		udpServer = server.NewUDPServer(&cfg.Control, logger, streamMgr, appMetrics)
		if err := udpServer.Start(); err != nil {
			logger.Error("Failed to start UDP control server", slog.String("error", err.Error()))
			streamMgr.Stop()
			os.Exit(1)
		}
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, streamMgr, udpServer, hub,
			appMetrics, prometheus.DefaultGatherer)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			if udpServer != nil {
				udpServer.Stop()
			}
			streamMgr.Stop()
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.Int("active_sources", streamMgr.ActiveCount()),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop accepting requests before the engine goes away
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if udpServer != nil {
		if err := udpServer.Stop(); err != nil {
			logger.Error("Error stopping UDP control server", slog.String("error", err.Error()))
		}
	}

	streamMgr.Stop()

	stats := streamMgr.Stats()
	logger.Info("Final engine statistics",
		slog.Uint64("cycles", stats.Scheduler.Cycles),
		slog.Uint64("overruns", stats.Scheduler.Overruns),
		slog.Int("active_sources", stats.ActiveSources),
		slog.Float64("uptime_seconds", stats.Uptime),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
