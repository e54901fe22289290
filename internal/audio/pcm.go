package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidAudioFrame is returned when a PCM16 payload has an odd byte count
var ErrInvalidAudioFrame = errors.New("invalid audio frame")

// PCM16FromBytes unpacks little-endian 16-bit samples.
func PCM16FromBytes(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: pcm16 payload has odd length %d", ErrInvalidAudioFrame, len(b))
	}

	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples, nil
}

// PCM16ToBytes packs samples as little-endian 16-bit values.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// MulawToPCM16Bytes decodes a mu-law payload into little-endian PCM16 bytes,
// the byte layout the realtime model expects for input audio.
func MulawToPCM16Bytes(mulaw []byte) []byte {
	return PCM16ToBytes(DecodeMulaw(mulaw))
}

// PCM16BytesToMulaw encodes a little-endian PCM16 payload as mu-law.
func PCM16BytesToMulaw(pcm []byte) ([]byte, error) {
	samples, err := PCM16FromBytes(pcm)
	if err != nil {
		return nil, err
	}
	return EncodeMulaw(samples), nil
}
