package server

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/voice-bridge-service/internal/bridge"
	"github.com/skypro1111/voice-bridge-service/internal/metrics"
	"github.com/skypro1111/voice-bridge-service/internal/telephony"
	"github.com/skypro1111/voice-bridge-service/internal/wsconn"
)

// ErrAuthRejected is returned when a media stream presents a wrong or missing token
var ErrAuthRejected = errors.New("stream token rejected")

var _ bridge.LegStats = (*telephony.Conn)(nil)

// StreamRoutes are the paths media streams may connect on
var StreamRoutes = []string{"/stream", "/stream-sales", "/stream-service"}

// Rejection reasons recorded before a session exists
const (
	rejectUnauthorized = "unauthorized"
	rejectUnknownRoute = "unknown_route"
	rejectCapacity     = "capacity"
	rejectStopped      = "stopped"
	rejectUpgrade      = "upgrade_failed"
)

// MediaHandlerConfig contains the settings for accepting media streams
type MediaHandlerConfig struct {
	SharedSecret string
	Socket       wsconn.Config
	EventBuffer  int
}

// MediaHandler authenticates and upgrades media stream connections and hands
// them to the session manager
type MediaHandler struct {
	secret   []byte
	routes   map[string]bool
	manager  *bridge.Manager
	upgrader websocket.Upgrader
	opts     telephony.Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewMediaHandler creates the websocket entry point for calls
func NewMediaHandler(cfg MediaHandlerConfig, manager *bridge.Manager, logger *slog.Logger, m *metrics.Metrics) *MediaHandler {
	routes := make(map[string]bool, len(StreamRoutes))
	for _, route := range StreamRoutes {
		routes[route] = true
	}

	h := &MediaHandler{
		secret:  []byte(cfg.SharedSecret),
		routes:  routes,
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Telephony providers send no Origin; the token is the gate
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		metrics: m,
	}

	h.opts = telephony.Options{
		Socket:      cfg.Socket,
		EventBuffer: cfg.EventBuffer,
		OnMalformed: func(err error) {
			m.RecordMalformedFrame(metrics.LegDownstream)
		},
	}
	onDrop := cfg.Socket.OnDrop
	h.opts.Socket.OnDrop = func() {
		m.RecordFrameDropped(bridge.DropBackpressure)
		if onDrop != nil {
			onDrop()
		}
	}

	return h
}

// Authenticate checks the token query parameter against the shared secret
func (h *MediaHandler) Authenticate(r *http.Request) error {
	token := r.URL.Query().Get("token")
	if len(h.secret) == 0 || subtle.ConstantTimeCompare([]byte(token), h.secret) != 1 {
		return ErrAuthRejected
	}
	return nil
}

// ServeHTTP implements the media stream upgrade
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Path
	logger := h.logger.With(
		slog.String("route", route),
		slog.String("remote_addr", r.RemoteAddr),
	)

	if err := h.Authenticate(r); err != nil {
		logger.Warn("Rejected media stream", slog.String("error", err.Error()))
		h.reject(w, http.StatusUnauthorized, "Unauthorized", rejectUnauthorized)
		return
	}

	if !h.routes[route] {
		logger.Warn("Media stream on unknown route")
		h.reject(w, http.StatusNotFound, "Not found", rejectUnknownRoute)
		return
	}

	if !h.manager.HasCapacity() {
		logger.Warn("Rejected media stream, no capacity",
			slog.Int("active_sessions", h.manager.GetActiveSessionCount()),
		)
		h.reject(w, http.StatusServiceUnavailable, "Service at capacity", rejectCapacity)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		h.metrics.RecordSessionRejected(rejectUpgrade)
		return
	}

	down := telephony.NewConn(ws, h.opts, logger)
	session, err := h.manager.Start(route, down)
	if err != nil {
		reason := rejectCapacity
		if errors.Is(err, bridge.ErrManagerStopped) {
			reason = rejectStopped
		}
		logger.Warn("Could not start session", slog.String("error", err.Error()))
		h.metrics.RecordSessionRejected(reason)
		down.Close()
		return
	}

	logger.Info("Media stream accepted", slog.String("session_id", session.ID))
}

// reject answers a request that will not be upgraded. The transport is closed
// after the response instead of being kept alive.
func (h *MediaHandler) reject(w http.ResponseWriter, status int, message, reason string) {
	h.metrics.RecordSessionRejected(reason)
	w.Header().Set("Connection", "close")
	http.Error(w, message, status)
}

// isStreamRoute reports whether path is one of StreamRoutes
func (h *MediaHandler) isStreamRoute(path string) bool {
	return h.routes[path]
}
