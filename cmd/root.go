// Package cmd defines and implements the CLI commands for the quake-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/api"
	"github.com/JakeFAU/quake-catalog-crawler/internal/app"
	"github.com/JakeFAU/quake-catalog-crawler/internal/backfill"
	"github.com/JakeFAU/quake-catalog-crawler/internal/config"
	"github.com/JakeFAU/quake-catalog-crawler/internal/logging"
	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can
// inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Shards() quake.ShardStore
	Snapshot() api.SnapshotService
	RunBackfill(ctx context.Context) (backfill.Report, error)
	APIServer() (*api.Server, error)
}

// appFactory builds the App once configuration and logging are ready.
type appFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// appHolder closes the App exactly once, whether the command succeeded or
// not. Cobra skips PersistentPostRun when RunE fails.
type appHolder struct {
	once sync.Once
	app  App
}

func (h *appHolder) close() {
	h.once.Do(func() {
		if h.app == nil {
			return
		}
		h.app.Close()
		_ = h.app.Logger().Sync()
	})
}

// newRootCmd creates the root command. Services are built in
// PersistentPreRunE and closed through the returned holder.
func newRootCmd(newApp appFactory) (*cobra.Command, *appHolder) {
	var cfgFile string
	holder := &appHolder{}
	cmd := &cobra.Command{
		Use:   "quake-crawler",
		Short: "Collects the PHIVOLCS earthquake catalog.",
		Long: `quake-crawler retrieves the earthquake catalog published by PHIVOLCS.
It backfills one CSV shard per month since a start period, serves the latest
events over HTTP, and merges and cleans the shards into a single dataset.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			holder.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			holder.close()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./quake-crawler.yaml)")

	cmd.AddCommand(
		newBackfillCmd(),
		newServeCmd(),
		newSnapshotCmd(),
		newMergeCmd(),
		newCleanCmd(),
	)
	return cmd, holder
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signalContext()
	root, holder := newRootCmd(defaultAppFactory)
	err := root.ExecuteContext(ctx)
	holder.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
