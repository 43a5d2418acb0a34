package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INBOXSYNC_GATEWAY_BASE_URL.
const EnvPrefix = "INBOXSYNC"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	envFile    string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:       viper.New(),
		envFile: ".env",
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetEnvFile overrides the dotenv file read before env binding. Empty disables it.
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// Load loads configuration with precedence:
// defaults < config file < .env < env vars < CLI flags (bound by the caller).
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadEnvFile populates the process environment from a dotenv file without
// overriding variables that are already set.
func (l *Loader) loadEnvFile() error {
	path := strings.TrimSpace(l.envFile)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func expandPaths(cfg *Config) {
	cfg.Logging.File = expandTilde(cfg.Logging.File)
	cfg.DevServer.DatabasePath = expandTilde(cfg.DevServer.DatabasePath)
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "inboxsync"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "inboxsync"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)

	// Unmarshal ignores env vars for nested keys unless they are bound.
	for _, key := range configKeys {
		envVar := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, envVar)
	}
	v.AutomaticEnv()
}

// configKeys lists every key that supports an environment override.
var configKeys = []string{
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"gateway.base_url",
	"gateway.timeout",
	"auth.token",
	"auth.token_env",
	"auth.param_name",
	"auth.cache_ttl",
	"poller.list_interval",
	"poller.message_interval",
	"poller.fetch_timeout",
	"poller.mark_read_on_select",
	"notify.bell",
	"notify.nats_url",
	"notify.nats_subject",
	"tui.title",
	"tui.theme",
	"tui.show_archived",
	"devserver.addr",
	"devserver.database_path",
	"devserver.token",
	"devserver.seed",
}

func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("gateway.base_url", cfg.Gateway.BaseURL)
	v.SetDefault("gateway.timeout", cfg.Gateway.Timeout)

	v.SetDefault("auth.token", cfg.Auth.Token)
	v.SetDefault("auth.token_env", cfg.Auth.TokenEnv)
	v.SetDefault("auth.param_name", cfg.Auth.ParamName)
	v.SetDefault("auth.cache_ttl", cfg.Auth.CacheTTL)

	v.SetDefault("poller.list_interval", cfg.Poller.ListInterval)
	v.SetDefault("poller.message_interval", cfg.Poller.MessageInterval)
	v.SetDefault("poller.fetch_timeout", cfg.Poller.FetchTimeout)
	v.SetDefault("poller.mark_read_on_select", cfg.Poller.MarkReadOnSelect)

	v.SetDefault("notify.bell", cfg.Notify.Bell)
	v.SetDefault("notify.nats_url", cfg.Notify.NATSURL)
	v.SetDefault("notify.nats_subject", cfg.Notify.NATSSubject)

	v.SetDefault("tui.title", cfg.TUI.Title)
	v.SetDefault("tui.theme", cfg.TUI.Theme)
	v.SetDefault("tui.show_archived", cfg.TUI.ShowArchived)

	v.SetDefault("devserver.addr", cfg.DevServer.Addr)
	v.SetDefault("devserver.database_path", cfg.DevServer.DatabasePath)
	v.SetDefault("devserver.token", cfg.DevServer.Token)
	v.SetDefault("devserver.seed", cfg.DevServer.Seed)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set overrides a key, used for CLI flag bindings.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Viper returns the underlying Viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}
