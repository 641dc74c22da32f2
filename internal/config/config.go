package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "WSOCKIFY_"

const (
	// RecommendedListenBacklog is the floor for the TCP accept backlog
	RecommendedListenBacklog = 128

	// RecommendedReceiveBufferSize is the floor for the unwebsockify receive buffer
	RecommendedReceiveBufferSize = 1024 * 1024

	// RecommendedSendBufferSize is the floor for the unwebsockify send buffer
	RecommendedSendBufferSize = 1024 * 64

	// RecommendedBufferSize is the websockify buffer size
	RecommendedBufferSize = 1024 * 64
)

// Config holds shared configuration values for both products
type Config struct {
	// LogLevel controls logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// LogFormat is console or json
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	// LogFile, when set, sends logs to a rotated file instead of stdout
	LogFile string `yaml:"log_file" env:"LOG_FILE"`

	// MetricsAddr is where unwebsockify serves /metrics and /healthz; empty
	// disables it. websockify serves both on its own HTTP listener.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`

	// MaxSessions caps concurrently relayed sessions (0 = unbounded)
	MaxSessions int64 `yaml:"max_sessions" env:"MAX_SESSIONS"`

	// DialTimeout bounds the outbound dial of each session
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	Websockify   WebsockifyConfig   `yaml:"websockify" envPrefix:"WEBSOCKIFY_"`
	Unwebsockify UnwebsockifyConfig `yaml:"unwebsockify" envPrefix:"UNWEBSOCKIFY_"`
}

// WebsockifyConfig configures the WebSocket-accept product
type WebsockifyConfig struct {
	// ListenAddr is the HTTP server address
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// Path is the route WebSocket clients connect to
	Path string `yaml:"path" env:"PATH"`

	// TargetHost and TargetPort are the TCP destination
	TargetHost string `yaml:"target_host" env:"TARGET_HOST"`
	TargetPort int    `yaml:"target_port" env:"TARGET_PORT"`

	// BufferSize is used for both copy directions
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`

	// Subprotocols the server may select during the upgrade
	Subprotocols []string `yaml:"subprotocols" env:"SUBPROTOCOLS" envSeparator:","`
}

// UnwebsockifyConfig configures the TCP-listen product
type UnwebsockifyConfig struct {
	// ListenAddr is the local TCP address
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// ListenBacklog is the accept backlog
	ListenBacklog int `yaml:"listen_backlog" env:"LISTEN_BACKLOG"`

	// RemoteURL is the WebSocket every accepted client is relayed to
	RemoteURL string `yaml:"remote_url" env:"REMOTE_URL"`

	// ReceiveBufferSize sizes the client-reading direction
	ReceiveBufferSize int `yaml:"receive_buffer_size" env:"RECEIVE_BUFFER_SIZE"`

	// SendBufferSize sizes the WebSocket-reading direction
	SendBufferSize int `yaml:"send_buffer_size" env:"SEND_BUFFER_SIZE"`

	// Subprotocols requested from the remote WebSocket
	Subprotocols []string `yaml:"subprotocols" env:"SUBPROTOCOLS" envSeparator:","`
}

// Default returns a Config populated with defaults
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "console",
		DialTimeout:     30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Websockify: WebsockifyConfig{
			ListenAddr: ":8080",
			Path:       "/websockify",
			TargetHost: "localhost",
			BufferSize: RecommendedBufferSize,
		},
		Unwebsockify: UnwebsockifyConfig{
			ListenAddr:        "127.0.0.1:5901",
			ListenBacklog:     RecommendedListenBacklog,
			ReceiveBufferSize: RecommendedReceiveBufferSize,
			SendBufferSize:    RecommendedSendBufferSize,
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (if not
// empty), then a .env file in the working directory (if present), then
// WSOCKIFY_* environment variables. Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env is optional; godotenv never overrides variables already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// Validate checks that the settings required by mode are present and sane
func (c *Config) Validate(mode Mode) error {
	var problems []string

	switch mode {
	case ModeWebsockify:
		if c.Websockify.TargetHost == "" {
			problems = append(problems, EnvPrefix+"WEBSOCKIFY_TARGET_HOST")
		}
		if c.Websockify.TargetPort < 1 || c.Websockify.TargetPort > 65535 {
			problems = append(problems, fmt.Sprintf("%sWEBSOCKIFY_TARGET_PORT (invalid port %d)", EnvPrefix, c.Websockify.TargetPort))
		}
		if !strings.HasPrefix(c.Websockify.Path, "/") {
			problems = append(problems, fmt.Sprintf("%sWEBSOCKIFY_PATH (must start with /, got %q)", EnvPrefix, c.Websockify.Path))
		}
	case ModeUnwebsockify:
		if c.Unwebsockify.RemoteURL == "" {
			problems = append(problems, EnvPrefix+"UNWEBSOCKIFY_REMOTE_URL")
		} else if u, err := url.Parse(c.Unwebsockify.RemoteURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			problems = append(problems, fmt.Sprintf("%sUNWEBSOCKIFY_REMOTE_URL (must be a ws:// or wss:// URL, got %q)", EnvPrefix, c.Unwebsockify.RemoteURL))
		}
		if c.Unwebsockify.ListenAddr == "" {
			problems = append(problems, EnvPrefix+"UNWEBSOCKIFY_LISTEN_ADDR")
		}
	default:
		return fmt.Errorf("unsupported mode: %s", mode)
	}

	if c.MaxSessions < 0 {
		problems = append(problems, fmt.Sprintf("%sMAX_SESSIONS (must not be negative, got %d)", EnvPrefix, c.MaxSessions))
	}

	if len(problems) > 0 {
		return fmt.Errorf("missing or invalid configuration: %s", strings.Join(problems, ", "))
	}

	return nil
}
