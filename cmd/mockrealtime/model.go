package main

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/skypro1111/voice-bridge-service/internal/protocol"
	"github.com/skypro1111/voice-bridge-service/internal/wsconn"
)

// clientEvent is the part of a client event the echo model reads
type clientEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type sessionEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Session struct {
		ID    string `json:"id"`
		Model string `json:"model"`
	} `json:"session"`
}

type audioDeltaEvent struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

type responseDoneEvent struct {
	Type     string `json:"type"`
	EventID  string `json:"event_id"`
	Response struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"response"`
}

type errorEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Error   struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// echoModel serves realtime sessions that echo input audio
type echoModel struct {
	apiKey   string
	upgrader websocket.Upgrader
	logger   *slog.Logger
	sessions atomic.Int64
}

func newEchoModel(apiKey string, logger *slog.Logger) *echoModel {
	return &echoModel{apiKey: apiKey, logger: logger}
}

func (m *echoModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m.apiKey != "" {
		want := "Bearer " + m.apiKey
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
	}

	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("Upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &echoSession{
		id:    "sess_" + uuid.New().String()[:12],
		model: r.URL.Query().Get("model"),
	}
	s.logger = m.logger.With(slog.String("session_id", s.id), slog.String("model", s.model))
	s.conn = wsconn.New(ws, wsconn.DefaultConfig(), s.logger)

	m.sessions.Add(1)
	s.logger.Info("Session opened", slog.Int64("total_sessions", m.sessions.Load()))

	created := sessionEvent{Type: protocol.EventSessionCreated, EventID: newServerEventID()}
	created.Session.ID = s.id
	created.Session.Model = s.model
	s.conn.Send(created)

	s.conn.Start(s.handle, func(err error) {
		attrs := []any{slog.Int("responses", s.responses)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		s.logger.Info("Session closed", attrs...)
	})
}

// echoSession is one connected client. handle runs on the reader goroutine only.
type echoSession struct {
	id        string
	model     string
	conn      *wsconn.Conn
	logger    *slog.Logger
	responses int
	current   string
}

func (s *echoSession) handle(data []byte) {
	var event clientEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.sendError("invalid_request_error", fmt.Sprintf("invalid json: %v", err))
		return
	}

	switch event.Type {
	case protocol.EventSessionUpdate:
		updated := sessionEvent{Type: protocol.EventSessionUpdated, EventID: newServerEventID()}
		updated.Session.ID = s.id
		updated.Session.Model = s.model
		s.conn.Send(updated)

	case protocol.EventInputAudioBufferAppend:
		if _, err := base64.StdEncoding.DecodeString(event.Audio); err != nil {
			s.sendError("invalid_request_error", "audio is not valid base64")
			return
		}
		if s.current == "" {
			s.current = "resp_" + uuid.New().String()[:12]
		}
		s.conn.SendDroppable(audioDeltaEvent{
			Type:       protocol.EventResponseAudioDelta,
			EventID:    newServerEventID(),
			ResponseID: s.current,
			ItemID:     "item_" + s.current[len("resp_"):],
			Delta:      event.Audio,
		})

	case protocol.EventInputAudioBufferCommit:
		done := responseDoneEvent{Type: protocol.EventResponseDone, EventID: newServerEventID()}
		done.Response.ID = s.current
		done.Response.Status = "completed"
		s.conn.Send(done)
		s.responses++
		s.current = ""

	default:
		s.logger.Debug("Ignoring client event", slog.String("type", event.Type))
	}
}

func (s *echoSession) sendError(errType, message string) {
	e := errorEvent{Type: protocol.EventError, EventID: newServerEventID()}
	e.Error.Type = errType
	e.Error.Message = message
	s.conn.Send(e)
}

func newServerEventID() string {
	return "event_" + uuid.New().String()[:12]
}
