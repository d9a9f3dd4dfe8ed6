// Package segmenter cuts audio documents into fixed-length, overlapping
// windows. Only full windows are produced; trailing samples that do not fill
// a window are dropped.
package segmenter

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/beatrec/beatrec/internal/audio"
	"github.com/beatrec/beatrec/internal/model"
)

const (
	DefaultInterval = 10.0 // seconds
	DefaultStride   = 1.0  // seconds
)

// Loader decodes an audio file into mono samples and its sample rate.
type Loader func(path string) ([]float64, int, error)

type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

type Config struct {
	DefaultInterval  float64
	DefaultStride    float64
	DefaultTraversal model.Traversal
	Workers          int
}

func DefaultConfig() Config {
	return Config{
		DefaultInterval:  DefaultInterval,
		DefaultStride:    DefaultStride,
		DefaultTraversal: model.TraversalRoot,
		Workers:          runtime.NumCPU(),
	}
}

// Params override the configured defaults for a single call. Zero values
// mean "use the default".
type Params struct {
	Interval  float64
	Stride    float64
	Traversal model.Traversal
}

type Option func(*Segmenter)

func WithLoader(l Loader) Option {
	return func(s *Segmenter) {
		if l != nil {
			s.load = l
		}
	}
}

func WithLogger(l Logger) Option {
	return func(s *Segmenter) {
		if l != nil {
			s.log = l
		}
	}
}

type Segmenter struct {
	cfg  Config
	load Loader
	log  Logger
}

func New(cfg Config, opts ...Option) *Segmenter {
	def := DefaultConfig()
	if cfg.DefaultInterval == 0 {
		cfg.DefaultInterval = def.DefaultInterval
	}
	if cfg.DefaultStride == 0 {
		cfg.DefaultStride = def.DefaultStride
	}
	if cfg.DefaultTraversal == model.TraversalUnset {
		cfg.DefaultTraversal = def.DefaultTraversal
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	s := &Segmenter{cfg: cfg, load: audio.Load, log: nopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Segmenter) Config() Config {
	return s.cfg
}

func (s *Segmenter) resolveParams(p Params) Params {
	if p.Interval == 0 {
		p.Interval = s.cfg.DefaultInterval
	}
	if p.Stride == 0 {
		p.Stride = s.cfg.DefaultStride
	}
	p.Traversal = p.Traversal.Or(s.cfg.DefaultTraversal)
	return p
}

// Segment splits every document (or every existing chunk, for the chunk
// traversal) into windows in place. Documents that cannot be resolved are
// left untouched and reported together in a *model.BatchError; the others
// are still segmented. A cancelled context aborts the whole batch.
func (s *Segmenter) Segment(ctx context.Context, docs []*model.Document, params Params) error {
	p := s.resolveParams(params)

	// chunk offsets run across the flattened batch
	var chunkBase []int
	if p.Traversal == model.TraversalChunks {
		chunkBase = make([]int, len(docs))
		n := 0
		for i, doc := range docs {
			chunkBase[i] = n
			if doc != nil {
				n += len(doc.Chunks)
			}
		}
	}

	itemErrs := make([]error, len(docs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, doc := range docs {
		if doc == nil {
			itemErrs[i] = &model.InvalidInputError{Reason: "nil document"}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			switch p.Traversal {
			case model.TraversalChunks:
				err = s.segmentChunks(ctx, doc, chunkBase[i], p)
			default:
				err = s.segmentDocument(doc, i, p)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Warnf("skipping document %d (%s): %v", i, doc.ID, err)
				itemErrs[i] = err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var batch model.BatchError
	for i, err := range itemErrs {
		if err == nil {
			continue
		}
		item := model.ItemError{Index: i, Err: err}
		if docs[i] != nil {
			item.DocID = docs[i].ID
		}
		batch.Items = append(batch.Items, item)
	}
	if len(batch.Items) > 0 {
		return &batch
	}
	return nil
}

func (s *Segmenter) segmentDocument(doc *model.Document, offset int, p Params) error {
	sig, err := s.resolve(doc)
	if err != nil {
		return err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	chunks, err := split(sig, doc.ID, offset, p)
	if err != nil {
		return &model.InvalidInputError{DocID: doc.ID, Reason: err.Error()}
	}
	doc.Chunks = append(doc.Chunks, chunks...)
	s.log.Debugf("segmented %s into %d chunks", doc.ID, len(chunks))
	return nil
}

// segmentChunks splits each chunk of doc. base is the position of doc's first
// chunk among all chunks of the batch.
func (s *Segmenter) segmentChunks(ctx context.Context, doc *model.Document, base int, p Params) error {
	for i, c := range doc.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		sig, err := model.NewAudioSignal(c.Tensor, c.SampleRate)
		if err != nil {
			return &model.InvalidInputError{DocID: doc.ID, Reason: fmt.Sprintf("chunk %s has no sample rate", c.ID)}
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		sub, err := split(sig, c.ID, base+i, p)
		if err != nil {
			return &model.InvalidInputError{DocID: doc.ID, Reason: err.Error()}
		}
		c.Chunks = append(c.Chunks, sub...)
	}
	return nil
}

// resolve turns a document into a signal, writing decoded samples back onto
// the document.
func (s *Segmenter) resolve(doc *model.Document) (model.AudioSignal, error) {
	if doc.Tensor != nil {
		if doc.SampleRate <= 0 {
			return model.AudioSignal{}, &model.InvalidInputError{
				DocID:  doc.ID,
				Reason: "data is tensor but sample rate is not provided",
			}
		}
		return model.NewAudioSignal(doc.Tensor, doc.SampleRate)
	}

	ext := strings.ToLower(filepath.Ext(doc.URI))
	if doc.URI == "" || (ext != ".wav" && ext != ".mp3") {
		return model.AudioSignal{}, &model.InvalidInputError{
			DocID:  doc.ID,
			Reason: "doc needs to have either a tensor or a wav/mp3 uri",
		}
	}

	samples, rate, err := s.load(doc.URI)
	if err != nil {
		return model.AudioSignal{}, &model.InvalidInputError{
			DocID:  doc.ID,
			Reason: fmt.Sprintf("cannot decode %s", doc.URI),
			Err:    err,
		}
	}
	sig, err := model.NewAudioSignal(samples, rate)
	if err != nil {
		return model.AudioSignal{}, err
	}
	doc.Tensor, doc.SampleRate = samples, rate
	return sig, nil
}

func split(sig model.AudioSignal, parentID string, offset int, p Params) ([]*model.Chunk, error) {
	window := Frames(p.Interval, sig.SampleRate)
	stride := Frames(p.Stride, sig.SampleRate)
	if window <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d samples (interval %gs at %d Hz)", window, p.Interval, sig.SampleRate)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("stride size must be positive, got %d samples (stride %gs at %d Hz)", stride, p.Stride, sig.SampleRate)
	}

	chunks := make([]*model.Chunk, 0, NumChunks(len(sig.Samples), window, stride))
	for _, span := range Windows(len(sig.Samples), window, stride) {
		chunks = append(chunks, &model.Chunk{
			ID:         uuid.NewString(),
			ParentID:   parentID,
			Offset:     offset,
			Start:      span.Start,
			End:        span.End,
			Tensor:     sig.Samples[span.Start:span.End:span.End],
			SampleRate: sig.SampleRate,
		})
	}
	return chunks, nil
}

// Frames converts seconds to a whole number of samples, rounding down.
// Negative or NaN durations give 0.
func Frames(seconds float64, sampleRate int) int {
	v := math.Floor(seconds * float64(sampleRate))
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
