// Package embedding turns audio chunks into fixed-size vectors whose cosine
// distance tracks spectral similarity.
package embedding

import (
	"math"
)

const DefaultBands = 64

type Config struct {
	Bands      int
	WindowSize int
	HopSize    int
}

func DefaultConfig() Config {
	return Config{
		Bands:      DefaultBands,
		WindowSize: WindowSize,
		HopSize:    HopSize,
	}
}

// Embedder produces a log-band spectral envelope of a chunk. It is
// deterministic and safe for concurrent use.
type Embedder struct {
	cfg    Config
	window []float64
	edges  []int
}

func New(cfg Config) *Embedder {
	def := DefaultConfig()
	if cfg.Bands <= 0 {
		cfg.Bands = def.Bands
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.HopSize <= 0 {
		cfg.HopSize = def.HopSize
	}
	return &Embedder{
		cfg:    cfg,
		window: Hamming(cfg.WindowSize),
		edges:  bandEdges(cfg.WindowSize/2, cfg.Bands),
	}
}

// Dim is the length of every vector returned by Embed.
func (e *Embedder) Dim() int {
	return e.cfg.Bands
}

// Embed returns an L2-normalised vector of length Dim. Silence maps to the
// zero vector.
func (e *Embedder) Embed(samples []float64) []float32 {
	spec, err := STFT(samples, e.cfg.WindowSize, e.cfg.HopSize, e.window)
	if err != nil {
		// only reachable with an invalid config, which New prevents
		return make([]float32, e.cfg.Bands)
	}

	bins := e.cfg.WindowSize / 2
	mean := make([]float64, bins)
	for _, frame := range spec {
		for i, v := range frame {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(spec))
	}

	bands := make([]float64, e.cfg.Bands)
	var norm float64
	for b := 0; b < e.cfg.Bands; b++ {
		lo, hi := e.edges[b], e.edges[b+1]
		if hi <= lo {
			continue
		}
		var sum float64
		for i := lo; i < hi; i++ {
			sum += mean[i]
		}
		bands[b] = math.Log1p(sum / float64(hi-lo))
		norm += bands[b] * bands[b]
	}

	out := make([]float32, e.cfg.Bands)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range bands {
		out[i] = float32(v / norm)
	}
	return out
}

// bandEdges splits bins [1, bins) into n logarithmically spaced bands. Bin 0
// (DC) is skipped. Every band is at least one bin wide until the bins run out.
func bandEdges(bins, n int) []int {
	edges := make([]int, n+1)
	edges[0] = 1
	if bins <= 1 {
		for i := range edges {
			edges[i] = bins
		}
		return edges
	}
	ratio := math.Log(float64(bins))
	for b := 1; b <= n; b++ {
		e := int(math.Round(math.Exp(ratio * float64(b) / float64(n))))
		if e <= edges[b-1] {
			e = edges[b-1] + 1
		}
		if e > bins {
			e = bins
		}
		edges[b] = e
	}
	edges[n] = bins
	return edges
}
