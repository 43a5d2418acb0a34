// Package cli implements the inboxsync command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/inboxsync/internal/config"
	"github.com/tOgg1/inboxsync/internal/logging"
)

var (
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string
	baseURL   string

	appConfig *config.Config
	closeLog  = func() error { return nil }
)

// annotationLogToFile marks commands that own the terminal; their logs go to
// a file.
const annotationLogToFile = "inboxsync/log-to-file"

var rootCmd = &cobra.Command{
	Use:   "inboxsync",
	Short: "Keep a local inbox in sync with a messaging gateway",
	Long: `inboxsync mirrors the conversations of a messaging gateway, keeps unread
badges consistent with what you have already seen, and notifies on new
messages.

Without a subcommand it opens the terminal inbox when attached to a TTY.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Annotations:   map[string]string{annotationLogToFile: "tty"},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg
		return initLogging(cmd, cfg)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !hasTTY() {
			return cmd.Help()
		}
		return runTUI(cmd.Context(), GetConfig())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/inboxsync/config.yaml, then ./config.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before environment overrides (empty disables)")
	flags.StringVar(&logLevel, "log-level", "", "override logging level (trace, debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "override logging format (console, json)")
	flags.StringVar(&baseURL, "base-url", "", "override gateway base URL")
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

// GetConfig returns the loaded configuration, or defaults before loading.
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.DefaultConfig()
	}
	return appConfig
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader()
	if strings.TrimSpace(cfgFile) != "" {
		loader.SetConfigFile(cfgFile)
	}
	loader.SetEnvFile(envFile)

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		loader.Set("logging.level", logLevel)
	}
	if flags.Changed("log-format") {
		loader.Set("logging.format", logFormat)
	}
	if flags.Changed("base-url") {
		loader.Set("gateway.base_url", baseURL)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}
	return cfg, nil
}

func initLogging(cmd *cobra.Command, cfg *config.Config) error {
	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       os.Stderr,
		File:         cfg.Logging.File,
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if logCfg.File == "" && logsToFile(cmd) {
		logCfg.File = defaultLogFile()
	}
	closer, err := logging.Init(logCfg)
	if err != nil {
		return err
	}
	closeLog = closer
	return nil
}

func logsToFile(cmd *cobra.Command) bool {
	switch cmd.Annotations[annotationLogToFile] {
	case "always":
		return true
	case "tty":
		return hasTTY()
	}
	return false
}

func defaultLogFile() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "inboxsync", "inboxsync.log")
	}
	return filepath.Join(os.TempDir(), "inboxsync.log")
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
