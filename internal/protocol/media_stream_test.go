package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseDownstream(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		expected    DownstreamEvent
		expectError bool
	}{
		{
			name: "start event",
			data: `{"event":"start","sequenceNumber":"1","start":{"streamSid":"MZ123","callSid":"CA456","accountSid":"AC789","tracks":["inbound"],"customParameters":{"lead":"42"},"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}},"streamSid":"MZ123"}`,
			expected: StreamStart{
				StreamSID:        "MZ123",
				CallSID:          "CA456",
				AccountSID:       "AC789",
				Tracks:           []string{"inbound"},
				CustomParameters: map[string]string{"lead": "42"},
				MediaFormat:      MediaFormat{Encoding: "audio/x-mulaw", SampleRate: 8000, Channels: 1},
			},
		},
		{
			name:     "start event with top level streamSid only",
			data:     `{"event":"start","streamSid":"MZ1","start":{"callSid":"CA1"}}`,
			expected: StreamStart{StreamSID: "MZ1", CallSID: "CA1"},
		},
		{
			name:     "media event",
			data:     `{"event":"media","streamSid":"MZ123","media":{"track":"inbound","chunk":"2","timestamp":"5","payload":"/38A"}}`,
			expected: Media{Track: "inbound", Chunk: "2", Timestamp: "5", Payload: []byte{0xFF, 0x7F, 0x00}},
		},
		{
			name:     "stop event",
			data:     `{"event":"stop","streamSid":"MZ123","stop":{"accountSid":"AC789","callSid":"CA456"}}`,
			expected: StreamStop{CallSID: "CA456"},
		},
		{
			name:     "connected event is ignored",
			data:     `{"event":"connected","protocol":"Call","version":"1.0.0"}`,
			expected: nil,
		},
		{
			name:     "mark echo is ignored",
			data:     `{"event":"mark","streamSid":"MZ123","mark":{"name":"response_1"}}`,
			expected: nil,
		},
		{
			name:        "invalid json",
			data:        `{"event":`,
			expectError: true,
		},
		{
			name:        "missing event",
			data:        `{"streamSid":"MZ123"}`,
			expectError: true,
		},
		{
			name:        "start without stream sid",
			data:        `{"event":"start","start":{"callSid":"CA1"}}`,
			expectError: true,
		},
		{
			name:        "media without payload object",
			data:        `{"event":"media"}`,
			expectError: true,
		},
		{
			name:        "media with invalid base64",
			data:        `{"event":"media","media":{"payload":"not base64!"}}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseDownstream([]byte(tt.data))

			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got event %#v", event)
				}
				if !errors.Is(err, ErrMalformedFrame) {
					t.Errorf("Expected ErrMalformedFrame, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !downstreamEqual(event, tt.expected) {
				t.Errorf("Expected %#v, got %#v", tt.expected, event)
			}
		})
	}
}

func TestNewMediaMessage(t *testing.T) {
	msg := NewMediaMessage("SID1", []byte{0xFF, 0x7F, 0x00})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	expected := `{"event":"media","streamSid":"SID1","media":{"payload":"/38A"}}`
	if string(data) != expected {
		t.Errorf("Expected %s, got %s", expected, data)
	}
}

func TestNewMarkMessage(t *testing.T) {
	data, err := json.Marshal(NewMarkMessage("SID1", "response_1"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	expected := `{"event":"mark","streamSid":"SID1","mark":{"name":"response_1"}}`
	if string(data) != expected {
		t.Errorf("Expected %s, got %s", expected, data)
	}
}

func downstreamEqual(a, b DownstreamEvent) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case StreamStart:
		y, ok := b.(StreamStart)
		if !ok {
			return false
		}
		if x.StreamSID != y.StreamSID || x.CallSID != y.CallSID || x.AccountSID != y.AccountSID ||
			x.MediaFormat != y.MediaFormat || len(x.Tracks) != len(y.Tracks) ||
			len(x.CustomParameters) != len(y.CustomParameters) {
			return false
		}
		for i := range x.Tracks {
			if x.Tracks[i] != y.Tracks[i] {
				return false
			}
		}
		for k, v := range x.CustomParameters {
			if y.CustomParameters[k] != v {
				return false
			}
		}
		return true
	case Media:
		y, ok := b.(Media)
		if !ok {
			return false
		}
		return x.Track == y.Track && x.Chunk == y.Chunk && x.Timestamp == y.Timestamp &&
			string(x.Payload) == string(y.Payload)
	case StreamStop:
		y, ok := b.(StreamStop)
		return ok && x == y
	default:
		return false
	}
}
