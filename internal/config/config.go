// Package config handles inboxsync configuration loading and validation.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tOgg1/inboxsync/internal/logging"
	"github.com/tOgg1/inboxsync/internal/models"
)

// Config is the root configuration structure.
type Config struct {
	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Gateway is the remote inbox API.
	Gateway GatewayConfig `yaml:"gateway" mapstructure:"gateway"`

	// Auth controls where the bearer credential comes from.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Poller cadences.
	Poller PollerConfig `yaml:"poller" mapstructure:"poller"`

	// Notify controls new-message side effects.
	Notify NotifyConfig `yaml:"notify" mapstructure:"notify"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`

	// DevServer is the local development gateway.
	DevServer DevServerConfig `yaml:"devserver" mapstructure:"devserver"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path. The TUI defaults to one.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// GatewayConfig contains remote API settings.
type GatewayConfig struct {
	// BaseURL is the inbox API root, e.g. https://api.example.com/v1.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AuthConfig selects the credential source. Token wins over TokenEnv, which
// wins over ParamName.
type AuthConfig struct {
	// Token is a literal bearer token (prefer TokenEnv).
	Token string `yaml:"token" mapstructure:"token"`

	// TokenEnv names an environment variable holding the token.
	TokenEnv string `yaml:"token_env" mapstructure:"token_env"`

	// ParamName is an AWS SSM parameter holding the token.
	ParamName string `yaml:"param_name" mapstructure:"param_name"`

	// CacheTTL is how long a fetched credential is reused.
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// PollerConfig contains refresh cadences.
type PollerConfig struct {
	// ListInterval drives the silent conversation-list fetch.
	ListInterval time.Duration `yaml:"list_interval" mapstructure:"list_interval"`

	// MessageInterval drives the silent active-conversation fetch.
	MessageInterval time.Duration `yaml:"message_interval" mapstructure:"message_interval"`

	// FetchTimeout bounds each silent fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`

	// MarkReadOnSelect calls the gateway's mark-read endpoint on selection.
	MarkReadOnSelect bool `yaml:"mark_read_on_select" mapstructure:"mark_read_on_select"`
}

// NotifyConfig contains notification settings.
type NotifyConfig struct {
	// Bell rings the terminal bell on new messages.
	Bell bool `yaml:"bell" mapstructure:"bell"`

	// NATSURL enables publishing notifications to NATS when set.
	NATSURL string `yaml:"nats_url" mapstructure:"nats_url"`

	// NATSSubject is the subject notifications are published on.
	NATSSubject string `yaml:"nats_subject" mapstructure:"nats_subject"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Title is the base window title; the unread badge is prefixed to it.
	Title string `yaml:"title" mapstructure:"title"`

	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowArchived includes archived conversations in the list.
	ShowArchived bool `yaml:"show_archived" mapstructure:"show_archived"`
}

// DevServerConfig contains local development gateway settings.
type DevServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" mapstructure:"addr"`

	// DatabasePath is the SQLite file. Empty means in-memory.
	DatabasePath string `yaml:"database_path" mapstructure:"database_path"`

	// Token is the bearer token the server accepts.
	Token string `yaml:"token" mapstructure:"token"`

	// Seed loads demo conversations into an empty database.
	Seed bool `yaml:"seed" mapstructure:"seed"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Gateway: GatewayConfig{
			BaseURL: "http://127.0.0.1:8787",
			Timeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			TokenEnv: "INBOXSYNC_TOKEN",
			CacheTTL: 15 * time.Minute,
		},
		Poller: PollerConfig{
			ListInterval:     30 * time.Second,
			MessageInterval:  5 * time.Second,
			FetchTimeout:     10 * time.Second,
			MarkReadOnSelect: true,
		},
		Notify: NotifyConfig{
			Bell:        true,
			NATSSubject: "inbox.notifications",
		},
		TUI: TUIConfig{
			Title: "Inbox",
			Theme: "default",
		},
		DevServer: DevServerConfig{
			Addr:         "127.0.0.1:8787",
			DatabasePath: filepath.Join(homeDir, ".local", "share", "inboxsync", "devserver.db"),
			Token:        "dev-token",
			Seed:         true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var v models.ValidationErrors

	if !logging.ValidLevel(c.Logging.Level) {
		v.AddMessage("logging.level", "must be one of trace, debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		v.AddMessage("logging.format", "must be console or json")
	}

	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		v.AddMessage("gateway.base_url", "is required")
	} else if u, err := url.Parse(c.Gateway.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		v.AddMessage("gateway.base_url", "must be an absolute http(s) URL")
	}
	if c.Gateway.Timeout <= 0 {
		v.AddMessage("gateway.timeout", "must be positive")
	}

	if c.Poller.ListInterval < 100*time.Millisecond {
		v.AddMessage("poller.list_interval", "must be at least 100ms")
	}
	if c.Poller.MessageInterval < 100*time.Millisecond {
		v.AddMessage("poller.message_interval", "must be at least 100ms")
	}
	if c.Poller.FetchTimeout <= 0 {
		v.AddMessage("poller.fetch_timeout", "must be positive")
	}

	if c.Auth.CacheTTL < 0 {
		v.AddMessage("auth.cache_ttl", "must not be negative")
	}

	if c.Notify.NATSURL != "" && strings.TrimSpace(c.Notify.NATSSubject) == "" {
		v.AddMessage("notify.nats_subject", "is required when notify.nats_url is set")
	}

	switch c.TUI.Theme {
	case "default", "high-contrast":
	default:
		v.AddMessage("tui.theme", "must be default or high-contrast")
	}

	return v.Err()
}

// EnsureDirectories creates directories for file-backed settings.
func (c *Config) EnsureDirectories() error {
	for _, path := range []string{c.Logging.File, c.DevServer.DatabasePath} {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}
	return nil
}
