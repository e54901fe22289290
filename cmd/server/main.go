package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skypro1111/voice-bridge-service/internal/bridge"
	"github.com/skypro1111/voice-bridge-service/internal/config"
	"github.com/skypro1111/voice-bridge-service/internal/metrics"
	"github.com/skypro1111/voice-bridge-service/internal/persona"
	"github.com/skypro1111/voice-bridge-service/internal/protocol"
	"github.com/skypro1111/voice-bridge-service/internal/realtime"
	"github.com/skypro1111/voice-bridge-service/internal/server"
	"github.com/skypro1111/voice-bridge-service/internal/wsconn"
)

const (
	serviceName    = "HyperClean Super-Agent 2"
	serviceVersion = "3.1.1"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to YAML configuration file (optional)")
	flag.Parse()

	// Load configuration
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

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
		slog.Int("max_concurrent_sessions", cfg.Server.MaxConcurrentSessions),
		slog.String("realtime_url", cfg.Realtime.URL),
		slog.String("realtime_model", cfg.Realtime.Model),
		slog.Float64("vad_threshold", cfg.TurnDetection.Threshold),
		slog.Int("vad_silence_ms", cfg.TurnDetection.SilenceDurationMs),
		slog.Duration("idle_timeout", cfg.Session.GetIdleTimeoutDuration()),
		slog.String("booking_url", cfg.Persona.BookingURL),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics on a dedicated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	socket := wsconn.Config{
		QueueSize:    cfg.Session.OutboundQueueSize,
		WriteTimeout: cfg.Session.GetWriteTimeoutDuration(),
		PingInterval: cfg.Session.GetPingIntervalDuration(),
		ReadLimit:    cfg.Session.ReadLimit,
	}

	upstreamSocket := socket
	upstreamSocket.OnDrop = func() { appMetrics.RecordFrameDropped(bridge.DropBackpressure) }

	client, err := realtime.NewClient(realtime.Config{
		URL:              cfg.Realtime.URL,
		APIKey:           cfg.Realtime.APIKey,
		Model:            cfg.Realtime.Model,
		HandshakeTimeout: cfg.Realtime.GetConnectTimeoutDuration(),
		Socket:           upstreamSocket,
		EventBuffer:      cfg.Session.EventBuffer,
		OnMalformed: func(err error) {
			appMetrics.RecordMalformedFrame(metrics.LegUpstream)
		},
	}, logger.With(slog.String("component", "realtime")))
	if err != nil {
		logger.Error("Failed to create realtime client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Realtime client initialized", slog.String("endpoint", client.Endpoint()))

	resolver := persona.NewResolver(cfg.Persona.BookingURL)

	manager := bridge.NewManager(logger, bridge.Config{
		MaxSessions:    cfg.Server.MaxConcurrentSessions,
		ConnectTimeout: cfg.Realtime.GetConnectTimeoutDuration(),
		IdleTimeout:    cfg.Session.GetIdleTimeoutDuration(),
		TurnDetection: protocol.TurnDetection{
			Type:              cfg.TurnDetection.Type,
			Threshold:         cfg.TurnDetection.Threshold,
			PrefixPaddingMs:   cfg.TurnDetection.PrefixPaddingMs,
			SilenceDurationMs: cfg.TurnDetection.SilenceDurationMs,
			CreateResponse:    cfg.TurnDetection.CreateResponse,
		},
		Modalities:  cfg.Realtime.Modalities,
		Temperature: cfg.Realtime.Temperature,
	}, bridge.RealtimeDialer(client), resolver, appMetrics)
	logger.Info("Session manager initialized")

	media := server.NewMediaHandler(server.MediaHandlerConfig{
		SharedSecret: cfg.Auth.SharedSecret,
		Socket:       socket,
		EventBuffer:  cfg.Session.EventBuffer,
	}, manager, logger.With(slog.String("component", "media")), appMetrics)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:        cfg.Server.Port,
		Address:     cfg.Server.Address,
		ServiceName: serviceName,
		Version:     serviceVersion,
	}, logger, cfg, manager, media, appMetrics, registry)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.Any("stream_routes", server.StreamRoutes),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeoutDuration())
	defer shutdownCancel()

	// Stop accepting new streams first
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Tear down live calls
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping session manager", slog.String("error", err.Error()))
	}

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
