package wsconn

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned when sending on a connection that is closing or closed
	ErrClosed = errors.New("connection closed")

	// ErrPeerClosed is reported when the remote end closed the websocket
	ErrPeerClosed = errors.New("peer closed connection")
)

// Config controls the outbound queue and socket deadlines
type Config struct {
	// QueueSize bounds the number of frames waiting for the writer
	QueueSize int
	// WriteTimeout is the deadline applied to every write, including the close handshake
	WriteTimeout time.Duration
	// PingInterval enables keepalive pings when positive
	PingInterval time.Duration
	// ReadLimit caps the size of one inbound message in bytes; zero means no limit
	ReadLimit int64
	// OnDrop is called each time a droppable frame is evicted under backpressure
	OnDrop func()
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig() Config {
	return Config{
		QueueSize:    256,
		WriteTimeout: 5 * time.Second,
		PingInterval: 20 * time.Second,
		ReadLimit:    1 << 20,
	}
}

// Conn is a websocket with a single reader and a single writer goroutine
type Conn struct {
	ws     *websocket.Conn
	cfg    Config
	logger *slog.Logger
	out    *outbox

	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	closing   atomic.Bool

	mu       sync.Mutex
	writeErr error

	dropped atomic.Uint64
	sent    atomic.Uint64
}

// New wraps ws and starts its writer. Call Start to begin reading.
func New(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	defaults := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ReadLimit > 0 {
		ws.SetReadLimit(cfg.ReadLimit)
	}

	c := &Conn{
		ws:     ws,
		cfg:    cfg,
		logger: logger,
		out:    newOutbox(cfg.QueueSize),
		done:   make(chan struct{}),
	}

	go c.writeLoop()

	return c
}

// Start launches the reader. handle receives every text message in arrival
// order on the reader goroutine. onExit is called exactly once when the reader
// stops, with nil if the connection was closed locally.
func (c *Conn) Start(handle func(data []byte), onExit func(err error)) {
	c.startOnce.Do(func() {
		go c.readLoop(handle, onExit)
	})
}

// Send queues v as a JSON text frame that is never evicted
func (c *Conn) Send(v any) error {
	return c.enqueue(v, false)
}

// SendDroppable queues v as a JSON text frame that may be evicted when the
// outbox is full
func (c *Conn) SendDroppable(v any) error {
	return c.enqueue(v, true)
}

func (c *Conn) enqueue(v any, droppable bool) error {
	if c.closing.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	dropped, err := c.out.push(outFrame{data: data, droppable: droppable})
	if err != nil {
		return err
	}
	if dropped {
		c.dropped.Add(1)
		if c.cfg.OnDrop != nil {
			c.cfg.OnDrop()
		}
	}
	return nil
}

// Close flushes queued frames, performs the close handshake and closes the
// socket. It is safe to call more than once and from any goroutine.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
		c.out.close()
	})
	return nil
}

// Done is closed once Close has been called
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Stats returns the number of frames written and dropped
func (c *Conn) Stats() (sent, dropped uint64) {
	return c.sent.Load(), c.dropped.Load()
}

func (c *Conn) readLoop(handle func([]byte), onExit func(error)) {
	var exitErr error
	defer func() {
		// Stop the writer too; the peer is gone or we are shutting down
		c.Close()
		if onExit != nil {
			onExit(exitErr)
		}
	}()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			exitErr = c.classifyReadError(err)
			return
		}

		if msgType != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text websocket message",
				slog.Int("message_type", msgType),
				slog.Int("size", len(data)),
			)
			continue
		}

		if c.closing.Load() {
			return
		}
		handle(data)
	}
}

// classifyReadError maps a read failure to the error reported by onExit
func (c *Conn) classifyReadError(err error) error {
	c.mu.Lock()
	writeErr := c.writeErr
	c.mu.Unlock()
	if writeErr != nil {
		return fmt.Errorf("websocket write failed: %w", writeErr)
	}
	if c.closing.Load() {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return fmt.Errorf("%w: %v", ErrPeerClosed, err)
	}
	return fmt.Errorf("websocket read failed: %w", err)
}

func (c *Conn) writeLoop() {

	var ping <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.out.ready:
			frames, closed := c.out.take()
			for _, frame := range frames {
				if err := c.writeFrame(frame.data); err != nil {
					c.abort(err)
					return
				}
			}
			if closed {
				c.shutdown()
				return
			}

		case <-ping:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.abort(err)
				return
			}
		}
	}
}

func (c *Conn) writeFrame(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.sent.Add(1)
	return nil
}

// shutdown sends the close frame and closes the socket after a clean drain
func (c *Conn) shutdown() {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("Close handshake failed", slog.String("error", err.Error()))
	}
	c.ws.Close()
}

// abort closes the socket after a write failure; the reader then exits with an error
func (c *Conn) abort(err error) {
	if !c.closing.Load() {
		c.logger.Warn("Websocket write failed", slog.String("error", err.Error()))
		c.mu.Lock()
		c.writeErr = err
		c.mu.Unlock()
	}
	c.out.close()
	c.ws.Close()
}
