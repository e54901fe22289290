package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/voice-bridge-service/internal/protocol"
	"github.com/skypro1111/voice-bridge-service/internal/wsconn"
)

// ErrAlreadyConfigured is returned by a second UpdateSession call
var ErrAlreadyConfigured = errors.New("session already configured")

// Session is one realtime model conversation
type Session struct {
	conn   *wsconn.Conn
	logger *slog.Logger
	cfg    Config

	events     chan protocol.UpstreamEvent
	configured atomic.Bool

	mu  sync.Mutex
	err error
}

func newSession(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Session {
	s := &Session{
		conn:   wsconn.New(ws, cfg.Socket, logger),
		logger: logger,
		cfg:    cfg,
		events: make(chan protocol.UpstreamEvent, cfg.EventBuffer),
	}
	s.conn.Start(s.handleMessage, s.handleExit)
	return s
}

// UpdateSession sends session.update. Only the first call is sent.
func (s *Session) UpdateSession(cfg protocol.SessionConfig) error {
	if !s.configured.CompareAndSwap(false, true) {
		return ErrAlreadyConfigured
	}
	return s.conn.Send(protocol.NewSessionUpdate(cfg))
}

// AppendAudio appends PCM16 little-endian audio to the model input buffer
func (s *Session) AppendAudio(pcm []byte) error {
	return s.conn.SendDroppable(protocol.NewAudioAppend(pcm))
}

// CommitAudio commits the model input buffer
func (s *Session) CommitAudio() error {
	return s.conn.Send(protocol.NewAudioCommit())
}

// Events returns server events in arrival order. The channel is closed when
// the session ends; Err then reports why.
func (s *Session) Events() <-chan protocol.UpstreamEvent {
	return s.events
}

// Err returns the terminal read error, or nil if the session was closed locally
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close flushes queued events and closes the session. It is idempotent.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Stats returns the number of frames written upstream and dropped
func (s *Session) Stats() (sent, dropped uint64) {
	return s.conn.Stats()
}

func (s *Session) handleMessage(data []byte) {
	event, err := protocol.ParseUpstream(data)
	if err != nil {
		s.logger.Warn("Dropping malformed realtime frame",
			slog.String("error", err.Error()),
			slog.Int("size", len(data)),
		)
		if s.cfg.OnMalformed != nil {
			s.cfg.OnMalformed(err)
		}
		return
	}
	if event == nil {
		return
	}

	select {
	case s.events <- event:
	case <-s.conn.Done():
	}
}

func (s *Session) handleExit(err error) {
	if err != nil {
		s.mu.Lock()
		s.err = fmt.Errorf("realtime session: %w", err)
		s.mu.Unlock()
	}
	close(s.events)
}
