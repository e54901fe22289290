package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voice-bridge-service/internal/bridge"
	"github.com/skypro1111/voice-bridge-service/internal/config"
	"github.com/skypro1111/voice-bridge-service/internal/metrics"
)

// HTTPServer serves media stream upgrades and the monitoring API on one port
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	manager  *bridge.Manager
	media    *MediaHandler
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	name      string
	version   string
	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port        int
	Address     string
	ServiceName string
	Version     string
}

// NewHTTPServer creates the service's HTTP server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	manager *bridge.Manager, media *MediaHandler, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		manager:   manager,
		media:     media,
		metrics:   m,
		gatherer:  gatherer,
		name:      cfg.ServiceName,
		version:   cfg.Version,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Upgrades bypass withMetrics: the wrapped writer cannot be hijacked
		if websocket.IsWebSocketUpgrade(r) || h.media.isStreamRoute(r.URL.Path) {
			h.media.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Per-frame write deadlines for streams are set by wsconn
	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:           h.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// Handler returns the root handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listener and serves in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP server",
		slog.String("address", ln.Addr().String()),
		slog.Any("stream_routes", StreamRoutes),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server. Hijacked media streams are not
// tracked by it; the session manager closes those.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to write JSON response", slog.String("error", err.Error()))
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"ok":              true,
		"status":          "healthy",
		"service":         h.name,
		"version":         h.version,
		"uptime":          time.Since(h.startTime).String(),
		"active_sessions": h.manager.GetActiveSessionCount(),
		"timestamp":       time.Now().UTC(),
	})
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.manager.GetAllSessions()
	infos := make([]bridge.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.GetSessionInfo())
	}

	h.writeJSON(w, map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleSessionDetail implements the /sessions/{session_id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	session, exists := h.manager.GetSession(id)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, session.GetSessionInfo())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.config
	// API key and shared secret are left out
	h.writeJSON(w, map[string]interface{}{
		"server": map[string]interface{}{
			"address":                 c.Server.Address,
			"port":                    c.Server.Port,
			"max_concurrent_sessions": c.Server.MaxConcurrentSessions,
			"shutdown_timeout":        c.Server.ShutdownTimeout,
		},
		"realtime": map[string]interface{}{
			"url":             c.Realtime.URL,
			"model":           c.Realtime.Model,
			"connect_timeout": c.Realtime.ConnectTimeout,
			"temperature":     c.Realtime.Temperature,
			"modalities":      c.Realtime.Modalities,
		},
		"turn_detection": map[string]interface{}{
			"type":                c.TurnDetection.Type,
			"threshold":           c.TurnDetection.Threshold,
			"prefix_padding_ms":   c.TurnDetection.PrefixPaddingMs,
			"silence_duration_ms": c.TurnDetection.SilenceDurationMs,
			"create_response":     c.TurnDetection.CreateResponse,
		},
		"session": map[string]interface{}{
			"write_timeout":       c.Session.WriteTimeout,
			"ping_interval":       c.Session.PingInterval,
			"outbound_queue_size": c.Session.OutboundQueueSize,
			"event_buffer":        c.Session.EventBuffer,
			"read_limit":          c.Session.ReadLimit,
			"idle_timeout":        c.Session.IdleTimeout,
		},
		"persona": map[string]interface{}{
			"booking_url": c.Persona.BookingURL,
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	})
}

// handleRoot implements the / endpoint with service information
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"service": h.name,
		"version": h.version,
		"status":  "running",
		"endpoints": map[string]interface{}{
			"GET /":                      "Service information",
			"GET /health":                "Liveness check",
			"GET /sessions":              "List active call sessions",
			"GET /sessions/{session_id}": "Get detailed session information",
			"GET /config":                "Get service configuration",
			"GET /metrics":               "Prometheus metrics",
			"WS /stream?token=":          "Media stream, default persona",
			"WS /stream-sales?token=":    "Media stream, sales persona",
			"WS /stream-service?token=":  "Media stream, service persona",
		},
		"timestamp": time.Now().UTC(),
	})
}
