package telephony

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/voice-bridge-service/internal/protocol"
	"github.com/skypro1111/voice-bridge-service/internal/wsconn"
)

// ErrNoStreamSID is returned when an outbound frame has no stream to address
var ErrNoStreamSID = errors.New("stream sid not set")

// Options tunes a downstream connection
type Options struct {
	Socket wsconn.Config
	// EventBuffer is the capacity of the Events channel
	EventBuffer int
	// OnMalformed is called for every inbound frame that fails to decode
	OnMalformed func(err error)
}

// Conn is the media stream websocket of one call
type Conn struct {
	conn   *wsconn.Conn
	logger *slog.Logger
	opts   Options

	events chan protocol.DownstreamEvent

	mu  sync.Mutex
	err error
}

// NewConn wraps an accepted websocket and starts reading from it
func NewConn(ws *websocket.Conn, opts Options, logger *slog.Logger) *Conn {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 100
	}

	c := &Conn{
		conn:   wsconn.New(ws, opts.Socket, logger),
		logger: logger,
		opts:   opts,
		events: make(chan protocol.DownstreamEvent, opts.EventBuffer),
	}
	c.conn.Start(c.handleMessage, c.handleExit)

	return c
}

// Events returns decoded stream events in arrival order. The channel is
// closed when the connection ends; Err then reports why.
func (c *Conn) Events() <-chan protocol.DownstreamEvent {
	return c.events
}

// Err returns the terminal read error, or nil if the connection was closed locally
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SendMedia queues a media frame with mu-law audio for the stream
func (c *Conn) SendMedia(streamSID string, mulaw []byte) error {
	if streamSID == "" {
		return ErrNoStreamSID
	}
	return c.conn.SendDroppable(protocol.NewMediaMessage(streamSID, mulaw))
}

// SendMark queues a mark frame for the stream
func (c *Conn) SendMark(streamSID, name string) error {
	if streamSID == "" {
		return ErrNoStreamSID
	}
	return c.conn.Send(protocol.NewMarkMessage(streamSID, name))
}

// Close closes the media stream. It is idempotent.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Stats returns the number of frames written to and dropped before the caller
func (c *Conn) Stats() (sent, dropped uint64) {
	return c.conn.Stats()
}

func (c *Conn) handleMessage(data []byte) {
	event, err := protocol.ParseDownstream(data)
	if err != nil {
		c.logger.Warn("Dropping malformed media stream frame",
			slog.String("error", err.Error()),
			slog.Int("size", len(data)),
		)
		if c.opts.OnMalformed != nil {
			c.opts.OnMalformed(err)
		}
		return
	}
	if event == nil {
		return
	}

	select {
	case c.events <- event:
	case <-c.conn.Done():
	}
}

func (c *Conn) handleExit(err error) {
	if err != nil {
		c.mu.Lock()
		c.err = fmt.Errorf("media stream: %w", err)
		c.mu.Unlock()
	}
	close(c.events)
}
