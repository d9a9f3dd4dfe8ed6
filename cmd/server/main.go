package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/beatrec/beatrec/internal/config"
	"github.com/beatrec/beatrec/internal/segmenter"
	"github.com/beatrec/beatrec/pkg/beatrec"
	"github.com/beatrec/beatrec/pkg/logger"
)

var (
	configPath     string
	port           string
	dbPath         string
	allowedOrigins string
)

func init() {
	flag.StringVar(&configPath, "config", getEnvOrDefault("BEATREC_CONFIG", "config.yaml"), "Path to YAML config file")
	flag.StringVar(&port, "port", "", "HTTP server port (overrides config)")
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	if err := config.LoadDotEnv(); err != nil {
		log.Warnf("Ignoring .env: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if port != "" {
		cfg.Server.Port = port
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if lvl, ok := logger.ParseLevel(cfg.Log.Level); ok {
		log.SetLevel(lvl)
	}

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	service, err := beatrec.NewService(
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
		beatrec.WithLogger(log.Named("beatrec")),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	server := NewServer(service, &ServerConfig{
		Port:           cfg.Server.Port,
		DBPath:         cfg.Storage.DBPath,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		AllowedOrigins: origins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Errorf("Server failed: %v", err)
	}
}
