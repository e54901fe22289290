package bridge

import (
	"context"

	"github.com/skypro1111/voice-bridge-service/internal/protocol"
	"github.com/skypro1111/voice-bridge-service/internal/realtime"
)

// Downstream is the telephony leg of a session
type Downstream interface {
	// Events yields decoded stream events and is closed when the leg ends
	Events() <-chan protocol.DownstreamEvent
	// Err reports why Events was closed, nil for a local close
	Err() error
	SendMedia(streamSID string, mulaw []byte) error
	SendMark(streamSID, name string) error
	Close() error
}

// Upstream is the realtime model leg of a session
type Upstream interface {
	// Events yields decoded server events and is closed when the leg ends
	Events() <-chan protocol.UpstreamEvent
	// Err reports why Events was closed, nil for a local close
	Err() error
	UpdateSession(cfg protocol.SessionConfig) error
	AppendAudio(pcm []byte) error
	CommitAudio() error
	Close() error
}

// LegStats is implemented by legs that count the frames their writer sent
// and dropped
type LegStats interface {
	Stats() (sent, dropped uint64)
}

// Dialer establishes the upstream leg for a new session
type Dialer interface {
	Dial(ctx context.Context) (Upstream, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context) (Upstream, error)

// Dial calls f(ctx)
func (f DialerFunc) Dial(ctx context.Context) (Upstream, error) {
	return f(ctx)
}

var _ LegStats = (*realtime.Session)(nil)

// RealtimeDialer dials upstream legs with a realtime client
func RealtimeDialer(client *realtime.Client) Dialer {
	return DialerFunc(func(ctx context.Context) (Upstream, error) {
		session, err := client.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return session, nil
	})
}
