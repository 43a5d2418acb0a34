package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/tOgg1/inboxsync/internal/config"
	"github.com/tOgg1/inboxsync/internal/inboxtui"
	"github.com/tOgg1/inboxsync/internal/logging"
)

var (
	tuiTheme        string
	tuiShowArchived bool
)

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().StringVar(&tuiTheme, "theme", "", "color theme (default, high-contrast)")
	tuiCmd.Flags().BoolVar(&tuiShowArchived, "archived", false, "include archived conversations")
}

var tuiCmd = &cobra.Command{
	Use:         "tui",
	Aliases:     []string{"ui"},
	Short:       "Open the terminal inbox",
	Long:        "Open the terminal inbox. Logs are written to logging.file, or to a file in the user cache directory.",
	Annotations: map[string]string{annotationLogToFile: "always"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		if cmd.Flags().Changed("theme") {
			cfg.TUI.Theme = tuiTheme
		}
		if cmd.Flags().Changed("archived") {
			cfg.TUI.ShowArchived = tuiShowArchived
		}
		return runTUI(cmd.Context(), &cfg)
	},
}

// ErrNoTTY is returned when the inbox is opened without a terminal.
var ErrNoTTY = errors.New("the terminal inbox requires an interactive terminal; use `inboxsync watch` instead")

func runTUI(ctx context.Context, cfg *config.Config) error {
	if !hasTTY() {
		return ErrNoTTY
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, nil, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Logger.Warn().Err(err).Msg("shutdown")
		}
	}()

	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	return inboxtui.Run(a.engine, inboxtui.Config{
		Title:        cfg.TUI.Title,
		Theme:        cfg.TUI.Theme,
		ShowArchived: cfg.TUI.ShowArchived,
	})
}
