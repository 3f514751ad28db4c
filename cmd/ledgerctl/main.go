// Command ledgerctl inspects and maintains the history ledger shared by the weekly runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/config"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ledger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(&app{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, pulse.ErrConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// app carries the persistent flags and what PersistentPreRunE builds from them.
type app struct {
	configPath string
	driver     string
	path       string
	dsn        string
	verbose    bool

	settings config.Config
	log      *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and maintain the guest-pulse history ledger",
		Long: `ledgerctl reads the ledger configured for the weekly runs (config file, then
PULSE_* environment, then the flags below) and offers dumps, statistics,
consistency checks and cleanup.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.driver != "" {
				settings.Ledger.Driver = a.driver
			}
			if a.path != "" {
				settings.Ledger.Path = a.path
			}
			if a.dsn != "" {
				settings.Ledger.DSN = a.dsn
			}
			if err := settings.Validate(config.Requirements{}); err != nil {
				return err
			}
			a.settings = settings

			logger, err := config.NewLogger(a.verbose)
			if err != nil {
				return err
			}
			a.log = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Optional YAML config file")
	root.PersistentFlags().StringVar(&a.driver, "driver", "", "Ledger driver: memory, file, sqlite or postgres (overrides config)")
	root.PersistentFlags().StringVar(&a.path, "path", "", "Ledger directory (file) or database file (sqlite)")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "Postgres connection string")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newDumpCmd(a),
		newStatsCmd(a),
		newVerifyCmd(a),
		newCoalesceCmd(a),
		newRunsCmd(a),
		newVocabularyCmd(a),
	)
	return root
}

// history opens the configured store. The returned func closes it.
func (a *app) history(ctx context.Context) (*ledger.History, func(), error) {
	store, err := ledger.Open(ctx, a.settings.Ledger)
	if err != nil {
		return nil, nil, pulse.LedgerUnavailable("*", "open", err)
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			a.log.Warn("closing ledger", zap.Error(err))
		}
	}
	return ledger.NewHistory(store, a.log), closeFn, nil
}
