package segmenter

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/beatrec/beatrec/internal/audio"
	"github.com/beatrec/beatrec/internal/model"
)

func newTestSegmenter(opts ...Option) *Segmenter {
	return New(Config{Workers: 2}, opts...)
}

func TestSegmentTwelveSeconds(t *testing.T) {
	const rate = 44100
	doc := &model.Document{ID: "track", Tensor: make([]float64, rate*12), SampleRate: rate}

	err := newTestSegmenter().Segment(context.Background(), []*model.Document{doc}, Params{Interval: 10, Stride: 1})
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if len(doc.Chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(doc.Chunks))
	}
	for k, c := range doc.Chunks {
		if c.Start != k*44100 {
			t.Errorf("Chunk %d: expected start %d, got %d", k, k*44100, c.Start)
		}
		if c.End-c.Start != 441000 {
			t.Errorf("Chunk %d: expected length 441000, got %d", k, c.End-c.Start)
		}
		if len(c.Tensor) != 441000 {
			t.Errorf("Chunk %d: expected tensor length 441000, got %d", k, len(c.Tensor))
		}
		if c.ParentID != "track" {
			t.Errorf("Chunk %d: expected parent track, got %q", k, c.ParentID)
		}
		if c.SampleRate != rate {
			t.Errorf("Chunk %d: expected sample rate %d, got %d", k, rate, c.SampleRate)
		}
	}

	tr := doc.Chunks[2].TimeRange()
	if tr.BeginMs != 2000 || tr.EndMs != 12000 {
		t.Errorf("Expected chunk 2 to span 2000-12000ms, got %d-%d", tr.BeginMs, tr.EndMs)
	}
}

func TestSegmentChunkCountProperty(t *testing.T) {
	tests := []struct {
		length   int
		rate     int
		interval float64
		stride   float64
	}{
		{length: 100, rate: 10, interval: 1, stride: 1},
		{length: 105, rate: 10, interval: 2.5, stride: 0.7},
		{length: 9, rate: 10, interval: 1, stride: 1},
		{length: 10, rate: 10, interval: 1, stride: 5},
		{length: 0, rate: 8000, interval: 1, stride: 1},
		{length: 8000 * 3, rate: 8000, interval: 0.5, stride: 0.25},
	}

	for _, tt := range tests {
		doc := &model.Document{Tensor: make([]float64, tt.length), SampleRate: tt.rate}
		err := newTestSegmenter().Segment(context.Background(), []*model.Document{doc}, Params{Interval: tt.interval, Stride: tt.stride})
		if err != nil {
			t.Fatalf("Segment(%+v) failed: %v", tt, err)
		}

		window := int(tt.interval * float64(tt.rate))
		stride := int(tt.stride * float64(tt.rate))
		want := 0
		if tt.length >= window {
			want = (tt.length-window)/stride + 1
		}
		if len(doc.Chunks) != want {
			t.Errorf("%+v: expected %d chunks, got %d", tt, want, len(doc.Chunks))
		}
		for k, c := range doc.Chunks {
			if c.End-c.Start != window {
				t.Errorf("%+v: chunk %d has length %d, want %d", tt, k, c.End-c.Start, window)
			}
			if k > 0 && c.Start-doc.Chunks[k-1].Start != stride {
				t.Errorf("%+v: chunk %d start delta %d, want %d", tt, k, c.Start-doc.Chunks[k-1].Start, stride)
			}
		}
	}
}

func TestSegmentShorterThanWindow(t *testing.T) {
	doc := &model.Document{Tensor: make([]float64, 99), SampleRate: 10}
	if err := newTestSegmenter().Segment(context.Background(), []*model.Document{doc}, Params{}); err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(doc.Chunks) != 0 {
		t.Errorf("Expected no chunks, got %d", len(doc.Chunks))
	}
}

func TestSegmentDefaultsApplied(t *testing.T) {
	s := New(Config{})
	cfg := s.Config()
	if cfg.DefaultInterval != 10 || cfg.DefaultStride != 1 {
		t.Errorf("Expected defaults 10/1, got %v/%v", cfg.DefaultInterval, cfg.DefaultStride)
	}
	if cfg.DefaultTraversal != model.TraversalRoot {
		t.Errorf("Expected root traversal, got %v", cfg.DefaultTraversal)
	}
	if cfg.Workers <= 0 {
		t.Errorf("Expected positive worker count, got %d", cfg.Workers)
	}
}

func TestSegmentTensorWithoutRate(t *testing.T) {
	doc := &model.Document{ID: "bad", Tensor: []float64{0, 1, 2}}

	err := newTestSegmenter().Segment(context.Background(), []*model.Document{doc}, Params{})
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput, got %v", err)
	}

	var inv *model.InvalidInputError
	if !errors.As(err, &inv) {
		t.Fatalf("Expected *InvalidInputError, got %T", err)
	}
	if inv.Reason != "data is tensor but sample rate is not provided" {
		t.Errorf("Unexpected reason: %q", inv.Reason)
	}
}

func TestSegmentUnsupportedURI(t *testing.T) {
	for _, uri := range []string{"", "track.flac", "noext"} {
		doc := &model.Document{URI: uri}
		err := newTestSegmenter().Segment(context.Background(), []*model.Document{doc}, Params{})

		var inv *model.InvalidInputError
		if !errors.As(err, &inv) {
			t.Fatalf("uri %q: expected *InvalidInputError, got %v", uri, err)
		}
		if inv.Reason != "doc needs to have either a tensor or a wav/mp3 uri" {
			t.Errorf("uri %q: unexpected reason %q", uri, inv.Reason)
		}
	}
}

func TestSegmentLoadsWavURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Track.WAV")
	if err := audio.WriteWav(path, make([]float64, 300), 100); err != nil {
		t.Fatalf("WriteWav failed: %v", err)
	}

	doc := &model.Document{URI: path}
	if err := newTestSegmenter().Segment(context.Background(), []*model.Document{doc}, Params{Interval: 1, Stride: 1}); err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(doc.Chunks) != 3 {
		t.Errorf("Expected 3 chunks, got %d", len(doc.Chunks))
	}
	if doc.SampleRate != 100 || len(doc.Tensor) != 300 {
		t.Errorf("Expected decoded tensor written back, got %d samples at %d Hz", len(doc.Tensor), doc.SampleRate)
	}
	if doc.ID == "" {
		t.Error("Expected an ID to be assigned")
	}
}

func TestSegmentLoadsMP3URI(t *testing.T) {
	doc := &model.Document{URI: filepath.Join("..", "audio", "testdata", "mono22k.mp3")}
	err := newTestSegmenter().Segment(context.Background(), []*model.Document{doc}, Params{Interval: 0.5, Stride: 0.25})
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if doc.SampleRate != 22050 || len(doc.Tensor) != 48*576 {
		t.Fatalf("Expected 27648 samples at 22050 Hz, got %d at %d Hz", len(doc.Tensor), doc.SampleRate)
	}
	// window 11025, stride 5512
	if want := NumChunks(48*576, 11025, 5512); len(doc.Chunks) != want || want != 4 {
		t.Errorf("Expected 4 chunks, got %d", len(doc.Chunks))
	}
	for i, c := range doc.Chunks {
		if c.Start != i*5512 || c.End-c.Start != 11025 || c.SampleRate != 22050 {
			t.Errorf("Chunk %d: got [%d, %d) at %d Hz", i, c.Start, c.End, c.SampleRate)
		}
	}
}

func TestSegmentLoaderFailureWrapped(t *testing.T) {
	boom := errors.New("boom")
	s := newTestSegmenter(WithLoader(func(string) ([]float64, int, error) { return nil, 0, boom }))

	doc := &model.Document{ID: "x", URI: "x.mp3"}
	err := s.Segment(context.Background(), []*model.Document{doc}, Params{})
	if !errors.Is(err, boom) {
		t.Errorf("Expected underlying loader error, got %v", err)
	}
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSegmentBatchSkipsInvalid(t *testing.T) {
	docs := []*model.Document{
		{ID: "a", Tensor: make([]float64, 30), SampleRate: 10},
		{ID: "b", Tensor: make([]float64, 30)},
		{ID: "c", Tensor: make([]float64, 20), SampleRate: 10},
	}

	err := newTestSegmenter().Segment(context.Background(), docs, Params{Interval: 1, Stride: 1})

	var batch *model.BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("Expected *BatchError, got %v", err)
	}
	if len(batch.Items) != 1 || batch.Items[0].Index != 1 || batch.Items[0].DocID != "b" {
		t.Fatalf("Expected a single failure for doc b, got %+v", batch.Items)
	}
	if len(docs[0].Chunks) != 3 {
		t.Errorf("Expected 3 chunks for a, got %d", len(docs[0].Chunks))
	}
	if len(docs[1].Chunks) != 0 {
		t.Errorf("Expected no chunks for b, got %d", len(docs[1].Chunks))
	}
	if len(docs[2].Chunks) != 2 {
		t.Errorf("Expected 2 chunks for c, got %d", len(docs[2].Chunks))
	}
	for i, c := range docs[2].Chunks {
		if c.Offset != 2 {
			t.Errorf("Chunk %d of c: expected offset 2, got %d", i, c.Offset)
		}
	}
}

func TestSegmentNonPositiveWindow(t *testing.T) {
	doc := &model.Document{Tensor: make([]float64, 100), SampleRate: 10}

	err := newTestSegmenter().Segment(context.Background(), []*model.Document{doc}, Params{Interval: 1, Stride: 0.01})
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero-sample stride, got %v", err)
	}

	err = newTestSegmenter().Segment(context.Background(), []*model.Document{doc}, Params{Interval: -1})
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative interval, got %v", err)
	}
}

func TestSegmentChunkTraversal(t *testing.T) {
	doc := &model.Document{ID: "d", Tensor: make([]float64, 40), SampleRate: 10}
	s := newTestSegmenter()

	if err := s.Segment(context.Background(), []*model.Document{doc}, Params{Interval: 2, Stride: 2}); err != nil {
		t.Fatalf("root Segment failed: %v", err)
	}
	if len(doc.Chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(doc.Chunks))
	}

	err := s.Segment(context.Background(), []*model.Document{doc}, Params{Interval: 0.5, Stride: 0.5, Traversal: model.TraversalChunks})
	if err != nil {
		t.Fatalf("chunk Segment failed: %v", err)
	}
	if len(doc.Chunks) != 2 {
		t.Errorf("Chunk traversal must not add root chunks, got %d", len(doc.Chunks))
	}
	for i, c := range doc.Chunks {
		if len(c.Chunks) != 4 {
			t.Errorf("Chunk %d: expected 4 sub-chunks, got %d", i, len(c.Chunks))
		}
		for _, sub := range c.Chunks {
			if sub.ParentID != c.ID {
				t.Errorf("Sub-chunk parent %q, want %q", sub.ParentID, c.ID)
			}
		}
	}
}

func TestSegmentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := &model.Document{Tensor: make([]float64, 100), SampleRate: 10}
	err := newTestSegmenter().Segment(ctx, []*model.Document{doc}, Params{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSegmentChunkTraversalOffsetsSpanBatch(t *testing.T) {
	a := &model.Document{ID: "a", Tensor: make([]float64, 30), SampleRate: 10}
	b := &model.Document{ID: "b", Tensor: make([]float64, 20), SampleRate: 10}
	docs := []*model.Document{a, b}
	s := newTestSegmenter()

	if err := s.Segment(context.Background(), docs, Params{Interval: 1, Stride: 1}); err != nil {
		t.Fatalf("root Segment failed: %v", err)
	}
	if err := s.Segment(context.Background(), docs, Params{Interval: 0.5, Stride: 0.5, Traversal: model.TraversalChunks}); err != nil {
		t.Fatalf("chunk Segment failed: %v", err)
	}

	want := 0
	for _, d := range docs {
		for _, c := range d.Chunks {
			for _, sub := range c.Chunks {
				if sub.Offset != want {
					t.Errorf("Sub-chunk of %s/%s: offset %d, want %d", d.ID, c.ID, sub.Offset, want)
				}
			}
			want++
		}
	}
	if want != 5 {
		t.Errorf("Expected 5 root chunks, got %d", want)
	}
}

func TestFrames(t *testing.T) {
	tests := []struct {
		seconds float64
		rate    int
		want    int
	}{
		{10, 44100, 441000},
		{0.5, 22050, 11025},
		{0.25, 22050, 5512},
		{0.29, 100, 28},
		{0, 8000, 0},
		{-1, 8000, 0},
		{math.NaN(), 8000, 0},
		{math.Inf(1), 8000, math.MaxInt32},
	}
	for _, tt := range tests {
		if got := Frames(tt.seconds, tt.rate); got != tt.want {
			t.Errorf("Frames(%g, %d) = %d, want %d", tt.seconds, tt.rate, got, tt.want)
		}
	}
}
