package cli

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/resilience/internal/core/config"
	"github.com/vietddude/resilience/internal/core/logging"
	"github.com/vietddude/resilience/internal/core/retry"
)

var (
	cfgPath string
	isDebug bool

	cfg    *config.AppConfig
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "resilience",
	Short: "Failure classification and retry toolkit",
	Long: `resilience classifies failures, computes retry backoff schedules and runs
storage and network operations under configurable retry policies.`,
	PersistentPreRun: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func setup(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	var err error
	cfg, err = loadConfig(cmd)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if isDebug {
		cfg.Logging.Level = "debug"
	}
	// Flags parsed fine; later errors are runtime failures.
	cmd.SilenceUsage = true

	if cfg.Logging.Format == "json" {
		logger = logging.FromConfig(os.Stderr, cfg.Logging)
		slog.SetDefault(logger.Slog())
		return
	}

	stylelog.InitDefault(&tint.Options{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
	})
	logger = logging.New(slog.Default(), logging.WithProduction(cfg.Logging.Production))
}

// loadConfig reads the config file. A missing default file yields defaults;
// a missing file named with --config is an error.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	c, err := config.Load(cfgPath)
	if err == nil {
		return c, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Parse([]byte("{}"))
	}
	return nil, err
}

func newExecutor() *retry.Executor {
	return retry.NewExecutor(retry.WithLogger(logger))
}

func exitOnError(msg string, err error) {
	if err == nil {
		return
	}
	slog.Error(msg, "error", err)
	os.Exit(1)
}
