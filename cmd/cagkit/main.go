package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/cagkit/internal/config"
	"github.com/kittclouds/cagkit/internal/logging"
	"github.com/kittclouds/cagkit/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cagkit",
	Short: "cagkit - causal analysis graph toolkit",
	Long: `cagkit stores causal analysis graphs (CAGs) and the evidence documents
their edges cite.

Graphs are merged by node and edge id, with edge reference ids unioned.
Documents can be reindexed in pages as a background job whose progress is
polled until it finishes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database = dbPath
		}

		logger, err = logging.New(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: verbose,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cagkit.yaml", "Config file (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (or set CAGKIT_DATABASE env)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	rootCmd.AddCommand(cagCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(extentCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(infoCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the configured database.
func openStore() (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStoreWithDSN(cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", zap.String("database", cfg.Database))
	return s, nil
}

// commandContext returns the command's context bounded by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
