package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned when an inbound frame cannot be decoded
var ErrMalformedFrame = errors.New("malformed frame")

// malformed wraps ErrMalformedFrame with a description of what was wrong
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}

// decodeAudio decodes a base64 audio payload, treating an empty string as empty audio
func decodeAudio(field, payload string) ([]byte, error) {
	if payload == "" {
		return []byte{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, malformed("%s is not valid base64: %v", field, err)
	}
	return data, nil
}
