package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/beatrec/beatrec/internal/config"
	"github.com/beatrec/beatrec/internal/segmenter"
	"github.com/beatrec/beatrec/pkg/beatrec"
	"github.com/beatrec/beatrec/pkg/logger"
)

var (
	configPath string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "beatrec",
	Short:         "Chunk-level audio similarity search",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			logger.Warnf("Ignoring .env: %v", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnvOrDefault("BEATREC_CONFIG", "config.yaml"), "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newIndexCmd(),
		newSearchCmd(),
		newQueryCmd(),
		newSegmentCmd(),
		newListCmd(),
		newDeleteCmd(),
		newSpectrogramCmd(),
	)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads the config file and applies the persistent flag
// overrides.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if lvl, ok := logger.ParseLevel(cfg.Log.Level); ok {
		logger.SetLevel(lvl)
	}
	return cfg, nil
}

// createService builds a service from the loaded configuration.
func createService(cfg *config.AppConfig) (beatrec.Service, error) {
	return beatrec.NewService(
		beatrec.WithDBPath(cfg.Storage.DBPath),
		beatrec.WithTempDir(cfg.Storage.TempDir),
		beatrec.WithSegmenterConfig(segmenter.Config{
			DefaultInterval:  cfg.Segmenter.Interval,
			DefaultStride:    cfg.Segmenter.Stride,
			DefaultTraversal: cfg.Traversal(),
			Workers:          cfg.Segmenter.Workers,
		}),
		beatrec.WithTopK(cfg.Matcher.TopK),
		beatrec.WithBands(cfg.Matcher.Bands),
		beatrec.WithLimit(cfg.Matcher.Limit),
		beatrec.WithLogger(logger.GetLogger().Named("beatrec")),
	)
}

// withService loads the config, opens the library and hands it to fn.
func withService(fn func(cfg *config.AppConfig, svc beatrec.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := createService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(cfg, svc)
}
