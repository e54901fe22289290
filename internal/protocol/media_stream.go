package protocol

import (
	"encoding/base64"
	"encoding/json"
)

// Media stream event names
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
)

// DownstreamEvent is a decoded telephony frame. The concrete type is one of
// StreamStart, Media or StreamStop.
type DownstreamEvent interface {
	downstreamEvent()
}

// StreamStart announces the stream and carries the identifier that must tag
// every outbound frame.
type StreamStart struct {
	StreamSID        string
	CallSID          string
	AccountSID       string
	Tracks           []string
	CustomParameters map[string]string
	MediaFormat      MediaFormat
}

// Media carries one chunk of caller audio as raw mu-law bytes
type Media struct {
	Track     string
	Chunk     string
	Timestamp string
	Payload   []byte
}

// StreamStop reports that the provider has ended the stream
type StreamStop struct {
	CallSID string
}

func (StreamStart) downstreamEvent() {}
func (Media) downstreamEvent()       {}
func (StreamStop) downstreamEvent()  {}

// MediaFormat describes the audio encoding declared in the start event
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// mediaStreamMessage is the JSON envelope shared by all media stream frames
type mediaStreamMessage struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSID      string        `json:"streamSid,omitempty"`
	Start          *startPayload `json:"start,omitempty"`
	Media          *mediaPayload `json:"media,omitempty"`
	Mark           *markPayload  `json:"mark,omitempty"`
	Stop           *stopPayload  `json:"stop,omitempty"`
}

type startPayload struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

type stopPayload struct {
	AccountSID string `json:"accountSid,omitempty"`
	CallSID    string `json:"callSid,omitempty"`
}

// ParseDownstream decodes one text frame from the telephony leg.
//
// Frames that are well formed but carry nothing a session acts on (connected,
// mark echoes, dtmf, unknown events) return a nil event and a nil error.
func ParseDownstream(data []byte) (DownstreamEvent, error) {
	var msg mediaStreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, malformed("invalid media stream json: %v", err)
	}

	switch msg.Event {
	case EventStart:
		if msg.Start == nil {
			return nil, malformed("start event without start payload")
		}
		sid := msg.Start.StreamSID
		if sid == "" {
			sid = msg.StreamSID
		}
		if sid == "" {
			return nil, malformed("start event without streamSid")
		}
		return StreamStart{
			StreamSID:        sid,
			CallSID:          msg.Start.CallSID,
			AccountSID:       msg.Start.AccountSID,
			Tracks:           msg.Start.Tracks,
			CustomParameters: msg.Start.CustomParameters,
			MediaFormat:      msg.Start.MediaFormat,
		}, nil

	case EventMedia:
		if msg.Media == nil {
			return nil, malformed("media event without media payload")
		}
		payload, err := decodeAudio("media.payload", msg.Media.Payload)
		if err != nil {
			return nil, err
		}
		return Media{
			Track:     msg.Media.Track,
			Chunk:     msg.Media.Chunk,
			Timestamp: msg.Media.Timestamp,
			Payload:   payload,
		}, nil

	case EventStop:
		stop := StreamStop{}
		if msg.Stop != nil {
			stop.CallSID = msg.Stop.CallSID
		}
		return stop, nil

	case "":
		return nil, malformed("frame without event field")

	default:
		return nil, nil
	}
}

// OutboundMedia is a media frame sent to the telephony leg
type OutboundMedia struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

// OutboundMark is a mark frame sent to the telephony leg
type OutboundMark struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid"`
	Mark      markPayload `json:"mark"`
}

// NewMediaMessage builds a media frame carrying mu-law audio for the stream
func NewMediaMessage(streamSID string, mulaw []byte) OutboundMedia {
	return OutboundMedia{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     mediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	}
}

// NewMarkMessage builds a mark frame for the stream
func NewMarkMessage(streamSID, name string) OutboundMark {
	return OutboundMark{
		Event:     EventMark,
		StreamSID: streamSID,
		Mark:      markPayload{Name: name},
	}
}
