package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvPort            = "PORT"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvModel           = "OPENAI_MODEL_REALTIME"
	EnvRealtimeURL     = "OPENAI_REALTIME_URL"
	EnvSharedSecret    = "STREAM_SHARED_SECRET"
	EnvBookingURL      = "BOOKING_LINK_URL"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	DefaultModel       = "gpt-4o-realtime-preview"
	DefaultRealtimeURL = "wss://api.openai.com/v1/realtime"
	DefaultBookingURL  = "https://www.hypercleantx.com/#services"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
	TurnDetection TurnDetectionConfig `yaml:"turn_detection"`
	Session       SessionConfig       `yaml:"session"`
	Persona       PersonaConfig       `yaml:"persona"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains the HTTP and websocket listener configuration
type ServerConfig struct {
	Address               string `yaml:"address"`
	Port                  int    `yaml:"port"`
	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"` // 0 = unlimited
	ShutdownTimeout       int    `yaml:"shutdown_timeout"`        // seconds
}

// AuthConfig holds the secret media stream clients must present
type AuthConfig struct {
	SharedSecret string `yaml:"shared_secret"`
}

// RealtimeConfig contains the realtime model connection parameters
type RealtimeConfig struct {
	URL            string   `yaml:"url"`
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	ConnectTimeout int      `yaml:"connect_timeout"` // seconds
	Temperature    float64  `yaml:"temperature"`
	Modalities     []string `yaml:"modalities"`
}

// TurnDetectionConfig controls server-side voice activity detection
type TurnDetectionConfig struct {
	Type              string  `yaml:"type"`
	Threshold         float64 `yaml:"threshold"`
	PrefixPaddingMs   int     `yaml:"prefix_padding_ms"`
	SilenceDurationMs int     `yaml:"silence_duration_ms"`
	CreateResponse    bool    `yaml:"create_response"`
}

// SessionConfig contains per-call socket and lifecycle parameters
type SessionConfig struct {
	WriteTimeout      int   `yaml:"write_timeout"` // seconds
	PingInterval      int   `yaml:"ping_interval"` // seconds, 0 disables pings
	OutboundQueueSize int   `yaml:"outbound_queue_size"`
	EventBuffer       int   `yaml:"event_buffer"`
	ReadLimit         int64 `yaml:"read_limit"`   // bytes
	IdleTimeout       int   `yaml:"idle_timeout"` // seconds, 0 disables the reaper
}

// PersonaConfig contains values rendered into persona instructions
type PersonaConfig struct {
	BookingURL string `yaml:"booking_url"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:               "0.0.0.0",
			Port:                  10000,
			MaxConcurrentSessions: 100,
			ShutdownTimeout:       10,
		},
		Realtime: RealtimeConfig{
			URL:            DefaultRealtimeURL,
			Model:          DefaultModel,
			ConnectTimeout: 10,
			Temperature:    0.8,
			Modalities:     []string{"text", "audio"},
		},
		TurnDetection: TurnDetectionConfig{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
			CreateResponse:    true,
		},
		Session: SessionConfig{
			WriteTimeout:      5,
			PingInterval:      20,
			OutboundQueueSize: 256,
			EventBuffer:       100,
			ReadLimit:         1 << 20,
			IdleTimeout:       300,
		},
		Persona: PersonaConfig{
			BookingURL: DefaultBookingURL,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment, in that order, and validates the result.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overlays environment variables read through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	envOr := func(name string, target *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be a number, got '%s'", EnvPort, v)
		}
		c.Server.Port = port
	}

	envOr(EnvOpenAIKey, &c.Realtime.APIKey)
	envOr(EnvModel, &c.Realtime.Model)
	envOr(EnvRealtimeURL, &c.Realtime.URL)
	envOr(EnvSharedSecret, &c.Auth.SharedSecret)
	envOr(EnvBookingURL, &c.Persona.BookingURL)
	envOr(EnvLogLevel, &c.Logging.Level)
	envOr(EnvLogFormat, &c.Logging.Format)

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := c.Realtime.Validate(); err != nil {
		return fmt.Errorf("realtime config: %w", err)
	}

	if err := c.TurnDetection.Validate(); err != nil {
		return fmt.Errorf("turn_detection config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Persona.Validate(); err != nil {
		return fmt.Errorf("persona config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.MaxConcurrentSessions < 0 {
		return fmt.Errorf("max_concurrent_sessions cannot be negative, got %d", s.MaxConcurrentSessions)
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates auth configuration
func (a *AuthConfig) Validate() error {
	if a.SharedSecret == "" {
		return fmt.Errorf("shared_secret cannot be empty (set %s)", EnvSharedSecret)
	}
	return nil
}

// Validate validates realtime configuration
func (r *RealtimeConfig) Validate() error {
	if r.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set %s)", EnvOpenAIKey)
	}

	if !strings.HasPrefix(r.URL, "ws://") && !strings.HasPrefix(r.URL, "wss://") {
		return fmt.Errorf("url must use ws:// or wss://, got '%s'", r.URL)
	}

	if r.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if r.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", r.ConnectTimeout)
	}

	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", r.Temperature)
	}

	validModalities := map[string]bool{"text": true, "audio": true}
	for _, m := range r.Modalities {
		if !validModalities[m] {
			return fmt.Errorf("modalities must be 'text' or 'audio', got '%s'", m)
		}
	}

	return nil
}

// Validate validates turn detection configuration
func (t *TurnDetectionConfig) Validate() error {
	if t.Type != "server_vad" {
		return fmt.Errorf("type must be 'server_vad', got '%s'", t.Type)
	}

	if t.Threshold < 0 || t.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", t.Threshold)
	}

	if t.PrefixPaddingMs < 0 {
		return fmt.Errorf("prefix_padding_ms cannot be negative, got %d", t.PrefixPaddingMs)
	}

	if t.SilenceDurationMs <= 0 {
		return fmt.Errorf("silence_duration_ms must be positive, got %d", t.SilenceDurationMs)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	if s.PingInterval < 0 {
		return fmt.Errorf("ping_interval cannot be negative, got %d", s.PingInterval)
	}

	if s.OutboundQueueSize < 1 {
		return fmt.Errorf("outbound_queue_size must be at least 1, got %d", s.OutboundQueueSize)
	}

	if s.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be at least 1, got %d", s.EventBuffer)
	}

	if s.ReadLimit < 1024 {
		return fmt.Errorf("read_limit must be at least 1024 bytes, got %d", s.ReadLimit)
	}

	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %d", s.IdleTimeout)
	}

	return nil
}

// Validate validates persona configuration
func (p *PersonaConfig) Validate() error {
	if p.BookingURL == "" {
		return fmt.Errorf("booking_url cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output may be stdout, stderr or a file path

	return nil
}

// GetShutdownTimeoutDuration returns the shutdown timeout as a time.Duration
func (s *ServerConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetConnectTimeoutDuration returns the upstream connect timeout as a time.Duration
func (r *RealtimeConfig) GetConnectTimeoutDuration() time.Duration {
	return time.Duration(r.ConnectTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the socket write timeout as a time.Duration
func (s *SessionConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetPingIntervalDuration returns the keepalive interval as a time.Duration
func (s *SessionConfig) GetPingIntervalDuration() time.Duration {
	return time.Duration(s.PingInterval) * time.Second
}

// GetIdleTimeoutDuration returns the idle timeout as a time.Duration
func (s *SessionConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}
