package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tOgg1/inboxsync/internal/devserver"
	"github.com/tOgg1/inboxsync/internal/logging"
)

var (
	devAddr     string
	devDatabase string
	devToken    string
	devNoSeed   bool
	devInMemory bool
)

func init() {
	rootCmd.AddCommand(devserverCmd)
	flags := devserverCmd.Flags()
	flags.StringVar(&devAddr, "addr", "", "listen address (default from devserver.addr)")
	flags.StringVar(&devDatabase, "db", "", "SQLite database path (default from devserver.database_path)")
	flags.StringVar(&devToken, "token", "", "bearer token to accept (default from devserver.token)")
	flags.BoolVar(&devNoSeed, "no-seed", false, "do not load demo conversations into an empty database")
	flags.BoolVar(&devInMemory, "in-memory", false, "keep data in memory only")
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local inbox gateway backed by SQLite",
	Long: `Run a local implementation of the inbox API for development. New inbound
messages can be simulated with:

  curl -X POST -H "Authorization: Bearer $TOKEN" \
    -d '{"text":"hello","display_name":"Ada"}' \
    http://127.0.0.1:8787/conversations/+15550100001/inbound`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig().DevServer
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr = devAddr
		}
		if flags.Changed("db") {
			cfg.DatabasePath = devDatabase
		}
		if flags.Changed("token") {
			cfg.Token = devToken
		}
		if devNoSeed {
			cfg.Seed = false
		}
		if devInMemory {
			cfg.DatabasePath = ""
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := devserver.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open devserver store: %w", err)
		}
		defer store.Close()

		if cfg.Seed {
			if err := store.Seed(ctx); err != nil {
				return fmt.Errorf("seed devserver store: %w", err)
			}
		}

		logger := logging.Component("devserver")
		if cfg.Token == "" {
			logger.Warn().Msg("no token configured; every request is accepted")
		}
		logger.Info().
			Str("addr", cfg.Addr).
			Str("database", cfg.DatabasePath).
			Bool("seed", cfg.Seed).
			Msg("starting devserver")
		return devserver.NewServer(store, cfg.Token).Run(ctx, cfg.Addr)
	},
}
