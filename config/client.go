package config

import (
	"fmt"
	"net/url"
	"time"
)

type Client struct {
	ClientName     string        `yaml:"client_name"` // Reported in the init message
	SessionID      string        `yaml:"session_id"`  // Generated when empty
	Server         Server        `yaml:"server"`
	Transport      Transport     `yaml:"transport"`
	Credential     Credential    `yaml:"credential"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Reconnect      Reconnect     `yaml:"reconnect"`
	Heartbeat      Heartbeat     `yaml:"heartbeat"`
	MessageQueue   MessageQueue  `yaml:"message_queue"`
}

type Server struct {
	URL        string `yaml:"url"`         // ws://, wss:// or quic://
	TokenParam string `yaml:"token_param"` // Query parameter carrying the credential
}

type Transport struct {
	Driver       string        `yaml:"driver"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`
	TLS          ClientTLS     `yaml:"tls"`
	Quic         Quic          `yaml:"quic"`
}

type Credential struct {
	Source   string `yaml:"source"`
	Token    string `yaml:"token"`     // static
	Env      string `yaml:"env"`       // env
	Path     string `yaml:"path"`      // sqlite database file
	Key      string `yaml:"key"`       // sqlite / redis key
	RedisURL string `yaml:"redis_url"` // redis://host:port/db
}

type Reconnect struct {
	Enabled           *bool         `yaml:"enabled"`
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// IsEnabled returns whether automatic reconnection is on, default true.
func (r Reconnect) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

type Heartbeat struct {
	Enabled  *bool         `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// IsEnabled returns whether the heartbeat monitor runs, default true.
func (h Heartbeat) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

type MessageQueue struct {
	Enabled *bool `yaml:"enabled"`
	MaxSize int   `yaml:"max_size"`
}

// IsEnabled returns whether offline sends are queued, default true.
func (m MessageQueue) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Bool returns a pointer to b, for the optional switches above.
func Bool(b bool) *bool {
	return &b
}

// ApplyDefaults fills zero-value fields with defaults.
func (c *Client) ApplyDefaults() {
	if c.ClientName == "" {
		c.ClientName = DefaultClientName
	}
	if c.SessionID == "" {
		c.SessionID = GenerateSessionID()
	}
	if c.Server.TokenParam == "" {
		c.Server.TokenParam = DefaultTokenParam
	}
	if c.Transport.Driver == "" {
		c.Transport.Driver = DefaultDriver
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.ReadLimit == 0 {
		c.Transport.ReadLimit = DefaultReadLimit
	}
	if c.Credential.Source == "" {
		c.Credential.Source = CredentialNone
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultReconnectMaxAttempts
	}
	if c.Reconnect.InitialDelay == 0 {
		c.Reconnect.InitialDelay = DefaultReconnectInitialDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}
	if c.Reconnect.BackoffMultiplier == 0 {
		c.Reconnect.BackoffMultiplier = DefaultReconnectBackoffMultiplier
	}
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = DefaultHeartbeatInterval
	}
	if c.Heartbeat.Timeout == 0 {
		c.Heartbeat.Timeout = DefaultHeartbeatTimeout
	}
	if c.MessageQueue.MaxSize == 0 {
		c.MessageQueue.MaxSize = DefaultMessageQueueSize
	}
}

// Validate checks the configuration after defaults have been applied.
func (c *Client) Validate() error {
	if err := c.ValidateServer(); err != nil {
		return err
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %v", c.ConnectTimeout)
	}
	if err := c.Reconnect.Validate(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	if err := c.Heartbeat.Validate(); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if err := c.MessageQueue.Validate(); err != nil {
		return fmt.Errorf("message_queue: %w", err)
	}
	return nil
}

// ValidateServer checks that the endpoint URL matches the transport driver.
func (c *Client) ValidateServer() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server url cannot be empty")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.Server.URL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("host cannot be empty in server url %q", c.Server.URL)
	}

	switch c.Transport.Driver {
	case DriverWebSocket, DriverGorilla:
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("driver %s requires a ws:// or wss:// url, got %q", c.Transport.Driver, c.Server.URL)
		}
	case DriverQUIC:
		if u.Scheme != "quic" {
			return fmt.Errorf("driver %s requires a quic:// url, got %q", c.Transport.Driver, c.Server.URL)
		}
	default:
		return fmt.Errorf("unknown transport driver %q", c.Transport.Driver)
	}
	return nil
}

func (r Reconnect) Validate() error {
	if !r.IsEnabled() {
		return nil
	}
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.InitialDelay <= 0 {
		return fmt.Errorf("initial_delay must be positive, got %v", r.InitialDelay)
	}
	if r.MaxDelay < r.InitialDelay {
		return fmt.Errorf("max_delay (%v) must not be less than initial_delay (%v)", r.MaxDelay, r.InitialDelay)
	}
	if r.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1, got %v", r.BackoffMultiplier)
	}
	return nil
}

func (h Heartbeat) Validate() error {
	if !h.IsEnabled() {
		return nil
	}
	if h.Interval <= 0 || h.Timeout <= 0 {
		return fmt.Errorf("interval and timeout must be positive")
	}
	if h.Timeout >= h.Interval {
		return fmt.Errorf("timeout (%v) must be less than interval (%v)", h.Timeout, h.Interval)
	}
	return nil
}

func (m MessageQueue) Validate() error {
	if m.IsEnabled() && m.MaxSize < 1 {
		return fmt.Errorf("max_size must be at least 1, got %d", m.MaxSize)
	}
	return nil
}
