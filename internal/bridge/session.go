package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/voice-bridge-service/internal/audio"
	"github.com/skypro1111/voice-bridge-service/internal/metrics"
	"github.com/skypro1111/voice-bridge-service/internal/persona"
	"github.com/skypro1111/voice-bridge-service/internal/protocol"
)

var (
	// ErrConnection wraps a leg failure after the session was established
	ErrConnection = errors.New("connection error")
	// ErrIdleTimeout stops a session with no downstream activity
	ErrIdleTimeout = errors.New("session idle timeout")
	// ErrShutdown stops a session because the service is stopping
	ErrShutdown = errors.New("service shutting down")
)

// Close reasons reported in logs, SessionInfo and metrics
const (
	ReasonStreamStop            = "stream_stop"
	ReasonDownstreamClosed      = "downstream_closed"
	ReasonUpstreamClosed        = "upstream_closed"
	ReasonUpstreamConnectFailed = "upstream_connect_failed"
	ReasonConfigureFailed       = "configure_failed"
	ReasonIdleTimeout           = "idle_timeout"
	ReasonShutdown              = "shutdown"
)

// Drop reasons for audio frames that are not relayed
const (
	DropNotReady     = "not_ready"
	DropNoStreamSID  = "no_stream_sid"
	DropInvalidAudio = "invalid_audio"
	DropSendFailed   = "send_failed"
	DropBackpressure = "backpressure"
)

// State is the lifecycle state of a Session
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session bridges one call. All state transitions happen on the goroutine
// running Run; the mutex only guards fields read by monitoring.
type Session struct {
	ID        string
	Route     string
	Profile   persona.VoiceProfile
	StartTime time.Time

	down    Downstream
	up      Upstream
	dialer  Dialer
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	markSeq uint64

	mu             sync.RWMutex
	state          State
	streamSID      string
	callSID        string
	lastActivity   time.Time
	closeReason    string
	closeErr       error
	framesToModel  uint64
	framesToCaller uint64
	framesDropped  uint64
	marksSent      uint64

	samplesToModel  uint64
	samplesToCaller uint64
}

type dialResult struct {
	up  Upstream
	err error
}

// Run drives the session until both legs are closed. It returns the error
// that ended the session, or nil for an orderly stop.
func (s *Session) Run() error {
	defer close(s.done)
	defer s.cancel(nil)

	dialCtx, cancelDial := context.WithTimeout(s.ctx, s.cfg.ConnectTimeout)
	defer cancelDial()

	dialed := make(chan dialResult, 1)
	go func() {
		start := time.Now()
		up, err := s.dialer.Dial(dialCtx)
		s.metrics.RecordUpstreamConnect(time.Since(start).Seconds(), err)
		dialed <- dialResult{up: up, err: err}
	}()

	downEvents := s.down.Events()
	var upEvents <-chan protocol.UpstreamEvent

	for s.State() != StateClosed {
		select {
		case <-s.ctx.Done():
			cause := context.Cause(s.ctx)
			reason := ReasonShutdown
			if errors.Is(cause, ErrIdleTimeout) {
				reason = ReasonIdleTimeout
			}
			s.teardown(reason, cause)

		case res := <-dialed:
			dialed = nil
			upEvents = s.handleDialResult(res)

		case event, ok := <-downEvents:
			if !ok {
				downEvents = nil
				s.teardown(ReasonDownstreamClosed, legError(s.down.Err()))
				continue
			}
			s.handleDownstream(event)

		case event, ok := <-upEvents:
			if !ok {
				upEvents = nil
				s.teardown(ReasonUpstreamClosed, legError(s.up.Err()))
				continue
			}
			s.handleUpstream(event)
		}
	}

	// Teardown during CONNECTING leaves the dial in flight; cancel it and
	// close whatever it produced.
	if dialed != nil {
		cancelDial()
		if res := <-dialed; res.err == nil && res.up != nil {
			res.up.Close()
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closeErr
}

// Stop asks the session to tear down. It returns immediately; use Done to wait.
func (s *Session) Stop(cause error) {
	s.cancel(cause)
}

// Done is closed when Run has returned
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// StreamSID returns the downstream stream id, empty until the start event
func (s *Session) StreamSID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamSID
}

// LastActivity returns when the caller last sent anything
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) handleDialResult(res dialResult) <-chan protocol.UpstreamEvent {
	if res.err == nil && res.up == nil {
		res.err = errors.New("dialer returned no connection")
	}
	if res.err != nil {
		s.logger.Error("Failed to connect to realtime model", slog.String("error", res.err.Error()))
		s.teardown(ReasonUpstreamConnectFailed, res.err)
		return nil
	}

	s.mu.Lock()
	s.up = res.up
	s.mu.Unlock()

	if err := s.up.UpdateSession(s.sessionConfig()); err != nil {
		s.logger.Error("Failed to configure realtime session", slog.String("error", err.Error()))
		s.teardown(ReasonConfigureFailed, fmt.Errorf("%w: %w", ErrConnection, err))
		return nil
	}

	s.setState(StateActive)
	s.logger.Info("Realtime session established",
		slog.String("voice", s.Profile.Voice),
		slog.Duration("setup_time", time.Since(s.StartTime)),
	)

	return s.up.Events()
}

func (s *Session) sessionConfig() protocol.SessionConfig {
	td := s.cfg.TurnDetection
	modalities := make([]string, len(s.cfg.Modalities))
	copy(modalities, s.cfg.Modalities)

	return protocol.SessionConfig{
		TurnDetection:     &td,
		InputAudioFormat:  protocol.AudioFormatPCM16,
		OutputAudioFormat: protocol.AudioFormatPCM16,
		Voice:             s.Profile.Voice,
		Instructions:      s.Profile.Instructions,
		Modalities:        modalities,
		Temperature:       s.cfg.Temperature,
	}
}

func (s *Session) handleDownstream(event protocol.DownstreamEvent) {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	switch e := event.(type) {
	case protocol.StreamStart:
		s.handleStreamStart(e)

	case protocol.Media:
		if s.State() != StateActive {
			s.dropFrame(DropNotReady)
			return
		}
		frame, err := audio.Frame{Encoding: audio.EncodingMulaw, Payload: e.Payload}.Transcode(audio.EncodingPCM16)
		if err != nil {
			s.dropFrame(DropInvalidAudio)
			return
		}
		if err := s.up.AppendAudio(frame.Payload); err != nil {
			s.logger.Debug("Failed to append caller audio", slog.String("error", err.Error()))
			s.dropFrame(DropSendFailed)
			return
		}
		s.mu.Lock()
		s.framesToModel++
		s.samplesToModel += uint64(frame.SampleCount())
		s.mu.Unlock()
		s.metrics.RecordFrameRelayed(metrics.DirectionToModel)

	case protocol.StreamStop:
		s.logger.Info("Media stream stopped by provider")
		if s.State() == StateActive {
			if err := s.up.CommitAudio(); err != nil {
				s.logger.Warn("Failed to commit caller audio", slog.String("error", err.Error()))
			}
		}
		s.teardown(ReasonStreamStop, nil)
	}
}

func (s *Session) handleStreamStart(e protocol.StreamStart) {
	s.mu.Lock()
	if s.streamSID != "" {
		existing := s.streamSID
		s.mu.Unlock()
		s.logger.Warn("Ignoring repeated stream start",
			slog.String("stream_sid", existing),
			slog.String("new_stream_sid", e.StreamSID),
		)
		return
	}
	s.streamSID = e.StreamSID
	s.callSID = e.CallSID
	s.mu.Unlock()

	s.logger = s.logger.With(slog.String("stream_sid", e.StreamSID))
	s.logger.Info("Media stream started",
		slog.String("call_sid", e.CallSID),
		slog.String("state", s.State().String()),
	)
}

func (s *Session) handleUpstream(event protocol.UpstreamEvent) {
	switch e := event.(type) {
	case protocol.ResponseAudioDelta:
		streamSID := s.StreamSID()
		if streamSID == "" {
			s.dropFrame(DropNoStreamSID)
			return
		}

		frame, err := audio.Frame{Encoding: audio.EncodingPCM16, Payload: e.Audio}.Transcode(audio.EncodingMulaw)
		if err != nil {
			s.logger.Warn("Dropping model audio", slog.String("error", err.Error()))
			s.dropFrame(DropInvalidAudio)
			return
		}

		if err := s.down.SendMedia(streamSID, frame.Payload); err != nil {
			s.logger.Debug("Failed to send media to caller", slog.String("error", err.Error()))
			s.dropFrame(DropSendFailed)
			return
		}
		s.mu.Lock()
		s.framesToCaller++
		s.samplesToCaller += uint64(frame.SampleCount())
		s.mu.Unlock()
		s.metrics.RecordFrameRelayed(metrics.DirectionToCaller)

	case protocol.ResponseDone:
		streamSID := s.StreamSID()
		if streamSID == "" {
			s.logger.Debug("Skipping mark without stream sid", slog.String("response_id", e.ResponseID))
			return
		}

		s.markSeq++
		name := fmt.Sprintf("response_%d_%d", time.Now().UnixMilli(), s.markSeq)
		if err := s.down.SendMark(streamSID, name); err != nil {
			s.logger.Debug("Failed to send mark", slog.String("error", err.Error()))
			return
		}
		s.mu.Lock()
		s.marksSent++
		s.mu.Unlock()
		s.metrics.RecordMarkSent()

	case protocol.ServerError:
		s.logger.Warn("Realtime model reported an error",
			slog.String("type", e.Type),
			slog.String("code", e.Code),
			slog.String("message", e.Message),
		)
		s.metrics.RecordServerError()

	case protocol.SessionAck:
		s.logger.Debug("Realtime session acknowledged",
			slog.String("event", e.Type),
			slog.String("model_session_id", e.SessionID),
		)
	}
}

func (s *Session) dropFrame(reason string) {
	s.mu.Lock()
	s.framesDropped++
	s.mu.Unlock()
	s.metrics.RecordFrameDropped(reason)
}

// teardown closes both legs once. Later calls are no-ops.
func (s *Session) teardown(reason string, cause error) {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.closeReason = reason
	if reason != ReasonShutdown && reason != ReasonIdleTimeout {
		s.closeErr = cause
	}
	s.mu.Unlock()

	if err := s.down.Close(); err != nil {
		s.logger.Debug("Error closing media stream", slog.String("error", err.Error()))
	}
	if s.up != nil {
		if err := s.up.Close(); err != nil {
			s.logger.Debug("Error closing realtime session", slog.String("error", err.Error()))
		}
	}

	s.setState(StateClosed)

	duration := time.Since(s.StartTime)
	attrs := []any{
		slog.String("reason", reason),
		slog.Duration("duration", duration),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	s.logger.Info("Session closed", attrs...)
	s.metrics.RecordSessionClosed(reason, duration.Seconds())
}

// legError wraps a leg's terminal error, keeping nil for an orderly close
func legError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// GetSessionInfo returns a snapshot for monitoring
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := SessionInfo{
		SessionID:       s.ID,
		Route:           s.Route,
		Persona:         s.Profile.Name,
		Voice:           s.Profile.Voice,
		State:           s.state.String(),
		StreamSID:       s.streamSID,
		CallSID:         s.callSID,
		StartTime:       s.StartTime,
		LastActivity:    s.lastActivity,
		Duration:        time.Since(s.StartTime),
		FramesToModel:   s.framesToModel,
		FramesToCaller:  s.framesToCaller,
		FramesDropped:   s.framesDropped,
		MarksSent:       s.marksSent,
		SamplesToModel:  s.samplesToModel,
		SamplesToCaller: s.samplesToCaller,
		CloseReason:     s.closeReason,
	}
	if s.closeErr != nil {
		info.CloseError = s.closeErr.Error()
	}
	if stats, ok := s.down.(LegStats); ok {
		info.DownstreamSent, info.DownstreamDropped = stats.Stats()
	}
	if stats, ok := s.up.(LegStats); ok {
		info.UpstreamSent, info.UpstreamDropped = stats.Stats()
	}
	return info
}

// SessionInfo represents session information for monitoring and APIs
type SessionInfo struct {
	SessionID    string        `json:"session_id"`
	Route        string        `json:"route"`
	Persona      string        `json:"persona"`
	Voice        string        `json:"voice"`
	State        string        `json:"state"`
	StreamSID    string        `json:"stream_sid,omitempty"`
	CallSID      string        `json:"call_sid,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`

	// Relay statistics
	FramesToModel  uint64 `json:"frames_to_model"`
	FramesToCaller uint64 `json:"frames_to_caller"`
	FramesDropped  uint64 `json:"frames_dropped"`
	MarksSent      uint64 `json:"marks_sent"`

	// 8kHz samples relayed in each direction
	SamplesToModel  uint64 `json:"samples_to_model"`
	SamplesToCaller uint64 `json:"samples_to_caller"`

	// Socket statistics, frames written and evicted by each leg's writer
	DownstreamSent    uint64 `json:"downstream_sent"`
	DownstreamDropped uint64 `json:"downstream_dropped"`
	UpstreamSent      uint64 `json:"upstream_sent"`
	UpstreamDropped   uint64 `json:"upstream_dropped"`

	CloseReason string `json:"close_reason,omitempty"`
	CloseError  string `json:"close_error,omitempty"`
}
