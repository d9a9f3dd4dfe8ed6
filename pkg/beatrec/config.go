package beatrec

import (
	"os"

	"github.com/beatrec/beatrec/internal/embedding"
	"github.com/beatrec/beatrec/internal/matcher"
	"github.com/beatrec/beatrec/internal/segmenter"
)

type Config struct {
	DBPath    string
	TempDir   string
	Segmenter segmenter.Config
	TopK      int
	Bands     int
	Limit     int
	Logger    Logger
	Storage   Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithTempDir sets where uploads and transcoded audio are staged. The
// directory is created by NewService if missing.
func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithSegmenterConfig(cfg segmenter.Config) Option {
	return func(c *Config) {
		c.Segmenter = cfg
	}
}

// WithTopK sets how many reference chunks each query chunk is compared
// against before ranking.
func WithTopK(k int) Option {
	return func(c *Config) {
		c.TopK = k
	}
}

func WithBands(n int) Option {
	return func(c *Config) {
		c.Bands = n
	}
}

// WithLimit caps the number of ranked tracks returned per document when the
// request does not set its own limit. Zero returns every track.
func WithLimit(n int) Option {
	return func(c *Config) {
		c.Limit = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:    "beatrec.sqlite3",
		TempDir:   os.TempDir(),
		Segmenter: segmenter.DefaultConfig(),
		TopK:      matcher.DefaultTopK,
		Bands:     embedding.DefaultBands,
		Logger:    nil,
	}
}
