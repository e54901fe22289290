package audio

import (
	"errors"
	"testing"
)

func TestFrameSampleCount(t *testing.T) {
	tests := []struct {
		name     string
		frame    Frame
		expected int
	}{
		{name: "mulaw", frame: Frame{Encoding: EncodingMulaw, Payload: make([]byte, 160)}, expected: 160},
		{name: "pcm16", frame: Frame{Encoding: EncodingPCM16, Payload: make([]byte, 320)}, expected: 160},
		{name: "empty", frame: Frame{Encoding: EncodingPCM16}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.SampleCount(); got != tt.expected {
				t.Errorf("Expected %d samples, got %d", tt.expected, got)
			}
		})
	}
}

func TestFrameTranscode(t *testing.T) {
	mulaw := Frame{Encoding: EncodingMulaw, Payload: []byte{0xFF, 0x80, 0x00}}

	pcm, err := mulaw.Transcode(EncodingPCM16)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pcm.Encoding != EncodingPCM16 {
		t.Errorf("Expected PCM16 encoding, got %s", pcm.Encoding)
	}
	if pcm.SampleCount() != mulaw.SampleCount() {
		t.Errorf("Sample count changed: %d -> %d", mulaw.SampleCount(), pcm.SampleCount())
	}

	back, err := pcm.Transcode(EncodingMulaw)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := range mulaw.Payload {
		if back.Payload[i] != mulaw.Payload[i] {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, mulaw.Payload[i], back.Payload[i])
		}
	}
}

func TestFrameTranscodeInvalid(t *testing.T) {
	odd := Frame{Encoding: EncodingPCM16, Payload: []byte{0x00, 0x01, 0x02}}
	if _, err := odd.Transcode(EncodingMulaw); !errors.Is(err, ErrInvalidAudioFrame) {
		t.Errorf("Expected ErrInvalidAudioFrame, got %v", err)
	}
}

func TestEncodingString(t *testing.T) {
	if EncodingMulaw.String() != "MULAW_8BIT" {
		t.Errorf("Unexpected name %q", EncodingMulaw.String())
	}
	if EncodingPCM16.String() != "PCM16_LE" {
		t.Errorf("Unexpected name %q", EncodingPCM16.String())
	}
}
