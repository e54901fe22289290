package audio

import "fmt"

// Encoding identifies the sample format of a Frame payload
type Encoding int

const (
	// EncodingMulaw is 8-bit G.711 mu-law at 8kHz, one byte per sample
	EncodingMulaw Encoding = iota
	// EncodingPCM16 is signed 16-bit little-endian linear PCM, two bytes per sample
	EncodingPCM16
)

// String returns the wire-independent name of the encoding
func (e Encoding) String() string {
	switch e {
	case EncodingMulaw:
		return "MULAW_8BIT"
	case EncodingPCM16:
		return "PCM16_LE"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// Frame is a unit of audio moving through a session
type Frame struct {
	Encoding Encoding
	Payload  []byte
}

// SampleCount returns the number of samples carried by the payload
func (f Frame) SampleCount() int {
	if f.Encoding == EncodingPCM16 {
		return len(f.Payload) / 2
	}
	return len(f.Payload)
}

// Validate checks the payload length against the encoding
func (f Frame) Validate() error {
	switch f.Encoding {
	case EncodingMulaw:
		return nil
	case EncodingPCM16:
		if len(f.Payload)%2 != 0 {
			return fmt.Errorf("%w: pcm16 payload has odd length %d", ErrInvalidAudioFrame, len(f.Payload))
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown encoding %d", ErrInvalidAudioFrame, int(f.Encoding))
	}
}

// Transcode converts the frame to the target encoding. Converting to the
// frame's own encoding returns the frame unchanged.
func (f Frame) Transcode(target Encoding) (Frame, error) {
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	if f.Encoding == target {
		return f, nil
	}

	switch target {
	case EncodingPCM16:
		return Frame{Encoding: EncodingPCM16, Payload: MulawToPCM16Bytes(f.Payload)}, nil
	case EncodingMulaw:
		payload, err := PCM16BytesToMulaw(f.Payload)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Encoding: EncodingMulaw, Payload: payload}, nil
	default:
		return Frame{}, fmt.Errorf("%w: unknown target encoding %d", ErrInvalidAudioFrame, int(target))
	}
}
