package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/beatrec/beatrec/internal/model"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               string `yaml:"port"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
	MaxUploadMB        int    `yaml:"max_upload_mb"`
}

// StorageConfig locates the reference library on disk.
type StorageConfig struct {
	DBPath  string `yaml:"db_path"`
	TempDir string `yaml:"temp_dir"`
}

// SegmenterConfig holds the default windowing parameters, in seconds.
type SegmenterConfig struct {
	Interval  float64 `yaml:"interval"`
	Stride    float64 `yaml:"stride"`
	Traversal string  `yaml:"traversal"`
	Workers   int     `yaml:"workers"`
}

// MatcherConfig configures embedding and nearest-neighbour search.
type MatcherConfig struct {
	TopK  int `yaml:"top_k"`
	Bands int `yaml:"bands"`
	Limit int `yaml:"limit"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from path, applies defaults, then environment
// overrides, then validates. A missing file yields the defaults. An empty
// path skips the file entirely.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	applyConfigDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings that would make segmentation or search
// meaningless.
func (c *AppConfig) Validate() error {
	if !(c.Segmenter.Interval > 0) {
		return fmt.Errorf("segmenter.interval must be > 0, got %v", c.Segmenter.Interval)
	}
	if !(c.Segmenter.Stride > 0) {
		return fmt.Errorf("segmenter.stride must be > 0, got %v", c.Segmenter.Stride)
	}
	if _, err := model.ParseTraversal(c.Segmenter.Traversal); err != nil {
		return fmt.Errorf("segmenter.traversal: %w", err)
	}
	if c.Matcher.TopK <= 0 {
		return fmt.Errorf("matcher.top_k must be > 0, got %d", c.Matcher.TopK)
	}
	if c.Matcher.Bands <= 0 {
		return fmt.Errorf("matcher.bands must be > 0, got %d", c.Matcher.Bands)
	}
	return nil
}

// Traversal returns the parsed default traversal. Validate has already
// rejected unknown names.
func (c *AppConfig) Traversal() model.Traversal {
	t, _ := model.ParseTraversal(c.Segmenter.Traversal)
	return t.Or(model.TraversalRoot)
}

func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv("BEATREC_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("BEATREC_TEMP_DIR"); v != "" {
		cfg.Storage.TempDir = v
	}
	if v := os.Getenv("BEATREC_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("BEATREC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("BEATREC_TOP_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BEATREC_TOP_K: %w", err)
		}
		cfg.Matcher.TopK = k
	}
	return nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 60
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "beatrec.sqlite3"
	}
	if cfg.Storage.TempDir == "" {
		cfg.Storage.TempDir = os.TempDir()
	}
	if cfg.Segmenter.Interval == 0 {
		cfg.Segmenter.Interval = 10
	}
	if cfg.Segmenter.Stride == 0 {
		cfg.Segmenter.Stride = 1
	}
	if cfg.Segmenter.Traversal == "" {
		cfg.Segmenter.Traversal = "root"
	}
	if cfg.Matcher.TopK == 0 {
		cfg.Matcher.TopK = 10
	}
	if cfg.Matcher.Bands == 0 {
		cfg.Matcher.Bands = 64
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "INFO"
	}
}
