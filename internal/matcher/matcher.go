package matcher

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/beatrec/beatrec/internal/model"
)

const DefaultTopK = 10

// Embedder maps chunk samples to a vector.
type Embedder interface {
	Embed(samples []float64) []float32
}

type Logger interface {
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}

type Matcher struct {
	index    Index
	embedder Embedder
	topK     int
	workers  int
	log      Logger
}

type Option func(*Matcher)

func WithTopK(k int) Option {
	return func(m *Matcher) {
		if k > 0 {
			m.topK = k
		}
	}
}

func WithWorkers(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.workers = n
		}
	}
}

func WithLogger(l Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.log = l
		}
	}
}

func New(index Index, embedder Embedder, opts ...Option) *Matcher {
	m := &Matcher{
		index:    index,
		embedder: embedder,
		topK:     DefaultTopK,
		workers:  runtime.NumCPU(),
		log:      nopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match attaches the nearest reference chunks to every chunk of every
// document, replacing any matches already present.
func (m *Matcher) Match(ctx context.Context, docs []*model.Document) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, c := range doc.Chunks {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return m.matchChunk(c)
			})
		}
	}
	return g.Wait()
}

func (m *Matcher) matchChunk(c *model.Chunk) error {
	hits, err := m.index.Search(m.embedder.Embed(c.Tensor), m.topK)
	if err != nil {
		return err
	}

	c.Matches = make([]model.ChunkMatch, len(hits))
	for i, h := range hits {
		c.Matches[i] = model.ChunkMatch{
			ParentID:  h.TrackID,
			ChunkID:   h.ChunkID,
			URI:       h.URI,
			Score:     float64(h.Distance),
			TimeRange: h.TimeRange,
		}
	}
	m.log.Debugf("chunk %s [%d, %d): %d matches", c.ID, c.Start, c.End, len(hits))
	return nil
}
