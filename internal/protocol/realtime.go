package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Realtime client event types
const (
	EventSessionUpdate          = "session.update"
	EventInputAudioBufferAppend = "input_audio_buffer.append"
	EventInputAudioBufferCommit = "input_audio_buffer.commit"
)

// Realtime server event types
const (
	EventSessionCreated     = "session.created"
	EventSessionUpdated     = "session.updated"
	EventResponseAudioDelta = "response.audio.delta"
	EventResponseDone       = "response.done"
	EventError              = "error"
)

// Audio formats and turn detection modes understood by the realtime model
const (
	AudioFormatPCM16 = "pcm16"
	VADServerVAD     = "server_vad"
	ModalityText     = "text"
	ModalityAudio    = "audio"
)

// UpstreamEvent is a decoded realtime server event. The concrete type is one
// of ResponseAudioDelta, ResponseDone, ServerError or SessionAck.
type UpstreamEvent interface {
	upstreamEvent()
}

// ResponseAudioDelta carries a chunk of synthesized speech as PCM16 little-endian bytes
type ResponseAudioDelta struct {
	ResponseID string
	ItemID     string
	Audio      []byte
}

// ResponseDone marks the end of one model response
type ResponseDone struct {
	ResponseID string
	Status     string
}

// ServerError is an error event reported by the model. It does not end the session.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

// Error implements the error interface
func (e ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: %s: %s", e.Code, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("realtime: %s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("realtime: %s", e.Message)
}

// SessionAck acknowledges session creation or a session.update
type SessionAck struct {
	Type      string
	SessionID string
}

func (ResponseAudioDelta) upstreamEvent() {}
func (ResponseDone) upstreamEvent()       {}
func (ServerError) upstreamEvent()        {}
func (SessionAck) upstreamEvent()         {}

// serverMessage is the union of the server event fields the bridge reads
type serverMessage struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id"`
	ResponseID string       `json:"response_id"`
	ItemID     string       `json:"item_id"`
	Delta      string       `json:"delta"`
	Response   *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"response"`
	Session *struct {
		ID string `json:"id"`
	} `json:"session"`
	Error *ServerError `json:"error"`
}

// ParseUpstream decodes one text frame from the realtime leg.
//
// Event types the bridge does not act on return a nil event and a nil error.
func ParseUpstream(data []byte) (UpstreamEvent, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, malformed("invalid realtime json: %v", err)
	}

	switch msg.Type {
	case EventResponseAudioDelta:
		audio, err := decodeAudio("delta", msg.Delta)
		if err != nil {
			return nil, err
		}
		return ResponseAudioDelta{
			ResponseID: msg.ResponseID,
			ItemID:     msg.ItemID,
			Audio:      audio,
		}, nil

	case EventResponseDone:
		done := ResponseDone{}
		if msg.Response != nil {
			done.ResponseID = msg.Response.ID
			done.Status = msg.Response.Status
		}
		return done, nil

	case EventError:
		if msg.Error == nil {
			return ServerError{Message: "error event without details"}, nil
		}
		return *msg.Error, nil

	case EventSessionCreated, EventSessionUpdated:
		ack := SessionAck{Type: msg.Type}
		if msg.Session != nil {
			ack.SessionID = msg.Session.ID
		}
		return ack, nil

	case "":
		return nil, malformed("event without type field")

	default:
		return nil, nil
	}
}

// TurnDetection configures server-side detection of the caller finishing a turn
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response"`
}

// SessionConfig is the session object carried by session.update
type SessionConfig struct {
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	Temperature       float64        `json:"temperature,omitempty"`
}

// SessionUpdateEvent configures the model session
type SessionUpdateEvent struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// AudioAppendEvent appends caller audio to the model input buffer
type AudioAppendEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

// AudioCommitEvent commits the model input buffer
type AudioCommitEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

// NewSessionUpdate builds a session.update event
func NewSessionUpdate(cfg SessionConfig) SessionUpdateEvent {
	return SessionUpdateEvent{
		EventID: NewEventID(),
		Type:    EventSessionUpdate,
		Session: cfg,
	}
}

// NewAudioAppend builds an input_audio_buffer.append event from PCM16 bytes
func NewAudioAppend(pcm []byte) AudioAppendEvent {
	return AudioAppendEvent{
		EventID: NewEventID(),
		Type:    EventInputAudioBufferAppend,
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	}
}

// NewAudioCommit builds an input_audio_buffer.commit event
func NewAudioCommit() AudioCommitEvent {
	return AudioCommitEvent{
		EventID: NewEventID(),
		Type:    EventInputAudioBufferCommit,
	}
}

// NewEventID returns a client event id
func NewEventID() string {
	return "evt_" + uuid.New().String()
}
