package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/voice-bridge-service/internal/wsconn"
)

// DefaultURL is the realtime model websocket endpoint
const DefaultURL = "wss://api.openai.com/v1/realtime"

// ErrConnect matches every failure to establish an upstream session
var ErrConnect = errors.New("upstream connect failed")

// ConnectError describes a failed dial
type ConnectError struct {
	URL string
	// HTTPStatus is the handshake response status, or 0 if none was received
	HTTPStatus int
	Err        error
}

func (e *ConnectError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("upstream connect to %s failed with status %d: %v", e.URL, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("upstream connect to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is reports ErrConnect as a match
func (e *ConnectError) Is(target error) bool { return target == ErrConnect }

// Config contains the realtime endpoint settings
type Config struct {
	URL              string
	APIKey           string
	Model            string
	HandshakeTimeout time.Duration
	Socket           wsconn.Config
	// EventBuffer is the capacity of each session's Events channel
	EventBuffer int
	// OnMalformed is called for every inbound frame that fails to decode
	OnMalformed func(err error)
}

// Client dials realtime sessions. It is safe for concurrent use.
type Client struct {
	cfg      Config
	endpoint string
	header   http.Header
	dialer   *websocket.Dialer
	logger   *slog.Logger
}

// NewClient validates cfg and creates a client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key cannot be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 100
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url %q: %w", cfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("realtime url must use ws or wss, got %q", u.Scheme)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	return &Client{
		cfg:      cfg,
		endpoint: u.String(),
		header:   header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger,
	}, nil
}

// Endpoint returns the URL sessions are dialed at
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Dial opens a new realtime session. Errors match ErrConnect.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if err != nil {
		connectErr := &ConnectError{URL: c.endpoint, Err: err}
		if resp != nil {
			connectErr.HTTPStatus = resp.StatusCode
		}
		return nil, connectErr
	}

	return newSession(ws, c.cfg, c.logger), nil
}
