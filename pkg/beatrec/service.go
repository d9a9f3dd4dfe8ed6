package beatrec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/beatrec/beatrec/internal/audio"
	"github.com/beatrec/beatrec/internal/embedding"
	"github.com/beatrec/beatrec/internal/matcher"
	"github.com/beatrec/beatrec/internal/model"
	"github.com/beatrec/beatrec/internal/ranker"
	"github.com/beatrec/beatrec/internal/segmenter"
	"github.com/beatrec/beatrec/internal/storage"
	"github.com/beatrec/beatrec/pkg/logger"
	"github.com/beatrec/beatrec/pkg/utils"
)

// beatService is the default implementation of the Service interface.
type beatService struct {
	storage   Storage
	log       Logger
	config    *Config
	segmenter *segmenter.Segmenter
	embedder  *embedding.Embedder
	index     *matcher.Memory
	matcher   *matcher.Matcher
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if err := utils.MakeDir(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("failed to prepare temp dir: %w", err)
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	emb := embedding.New(embedding.Config{Bands: cfg.Bands})
	index := matcher.NewMemory()
	seg := segmenter.New(cfg.Segmenter, segmenter.WithLogger(cfg.Logger))

	s := &beatService{
		storage:   stor,
		log:       cfg.Logger,
		config:    cfg,
		segmenter: seg,
		embedder:  emb,
		index:     index,
		matcher: matcher.New(index, emb,
			matcher.WithTopK(cfg.TopK),
			matcher.WithWorkers(seg.Config().Workers),
			matcher.WithLogger(cfg.Logger),
		),
	}

	if err := s.warm(); err != nil {
		if cfg.Storage == nil {
			stor.Close()
		}
		return nil, fmt.Errorf("failed to load reference index: %w", err)
	}
	return s, nil
}

// warm loads every stored chunk vector into the in-memory index.
func (s *beatService) warm() error {
	tracks, err := s.storage.ListTracks()
	if err != nil {
		return err
	}
	uris := make(map[string]string, len(tracks))
	for _, t := range tracks {
		uris[t.ID] = t.URI
	}

	batch := make([]matcher.Entry, 0, 512)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := s.index.BatchInsert(batch)
		batch = batch[:0]
		return err
	}

	err = s.storage.ListChunks(func(c storage.Chunk) error {
		batch = append(batch, matcher.Entry{
			ChunkID:   c.ID,
			TrackID:   c.TrackID,
			URI:       uris[c.TrackID],
			TimeRange: model.TimeRange{BeginMs: c.BeginMs, EndMs: c.EndMs},
			Vector:    c.Vector,
		})
		if len(batch) == cap(batch) {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	s.log.Infof("Loaded %d reference chunks from %d tracks", s.index.Len(), len(tracks))
	return nil
}

func (s *beatService) segParams(p SearchParams) segmenter.Params {
	return segmenter.Params{Interval: p.Interval, Stride: p.Stride, Traversal: p.Traversal}
}

// IndexTrack decodes a .wav or .mp3 file and adds it to the reference library.
func (s *beatService) IndexTrack(ctx context.Context, uri, title string) (IndexResult, error) {
	return s.IndexDocument(ctx, &model.Document{URI: uri}, title, SearchParams{})
}

// IndexDocument segments and embeds a document and stores the chunk vectors.
// The document URI identifies the track; tensor-only documents are keyed by
// their ID. Indexing the same URI twice is a no-op.
func (s *beatService) IndexDocument(ctx context.Context, doc *Document, title string, params SearchParams) (IndexResult, error) {
	if doc == nil {
		return IndexResult{}, &model.InvalidInputError{Reason: "nil document"}
	}
	key := doc.URI
	if key == "" {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		key = "tensor:" + doc.ID
	}
	if title == "" {
		title = titleFromURI(key)
	}
	s.log.Infof("Indexing track: %s", key)

	// chunk traversal makes no sense for a fresh document
	params.Traversal = model.TraversalRoot
	if err := s.segmenter.Segment(ctx, []*model.Document{doc}, s.segParams(params)); err != nil {
		return IndexResult{}, unwrapSingle(err)
	}

	sig, err := doc.Signal()
	if err != nil {
		return IndexResult{}, err
	}

	trackID, created, err := s.storage.RegisterTrack(key, title, sig.SampleRate, sig.DurationMs())
	if err != nil {
		return IndexResult{}, fmt.Errorf("failed to register track: %w", err)
	}
	if !created {
		n, err := s.storage.ChunkCount(trackID)
		if err != nil {
			return IndexResult{}, fmt.Errorf("failed to count chunks: %w", err)
		}
		s.log.Infof("Track %s already indexed as %s", key, trackID)
		return IndexResult{TrackID: trackID, Chunks: int(n)}, nil
	}

	rows := make([]storage.Chunk, 0, len(doc.Chunks))
	for _, c := range doc.Chunks {
		if err := ctx.Err(); err != nil {
			s.rollback(trackID)
			return IndexResult{}, err
		}
		tr := c.TimeRange()
		rows = append(rows, storage.Chunk{
			ID:          c.ID,
			StartSample: c.Start,
			EndSample:   c.End,
			BeginMs:     tr.BeginMs,
			EndMs:       tr.EndMs,
			Vector:      s.embedder.Embed(c.Tensor),
		})
	}

	if err := s.storage.StoreChunks(trackID, rows); err != nil {
		s.rollback(trackID)
		return IndexResult{}, fmt.Errorf("failed to store chunks: %w", err)
	}

	entries := make([]matcher.Entry, len(rows))
	for i, r := range rows {
		entries[i] = matcher.Entry{
			ChunkID:   r.ID,
			TrackID:   trackID,
			URI:       key,
			TimeRange: model.TimeRange{BeginMs: r.BeginMs, EndMs: r.EndMs},
			Vector:    r.Vector,
		}
	}
	if err := s.index.BatchInsert(entries); err != nil {
		s.rollback(trackID)
		return IndexResult{}, fmt.Errorf("failed to index chunks: %w", err)
	}

	s.log.Infof("Successfully indexed track ID=%s (%d chunks)", trackID, len(rows))
	return IndexResult{TrackID: trackID, Chunks: len(rows), Created: true}, nil
}

func (s *beatService) rollback(trackID string) {
	if err := s.storage.DeleteTrackByID(trackID); err != nil {
		s.log.Errorf("Rollback of track %s failed: %v", trackID, err)
	}
	s.index.DeleteTrack(trackID)
}

// Search segments, matches and ranks every document in place.
func (s *beatService) Search(ctx context.Context, docs []*Document, params SearchParams) error {
	segErr := s.segmenter.Segment(ctx, docs, s.segParams(params))

	var batch *model.BatchError
	if segErr != nil && !errors.As(segErr, &batch) {
		return segErr
	}

	traversal := params.Traversal.Or(s.segmenter.Config().DefaultTraversal)

	// match at the level the segmenter just produced
	views := make([]*model.Document, 0, len(docs))
	owners := make([]*model.Document, 0, len(docs))
	for i, d := range docs {
		if d == nil || batch.Failed(i) != nil {
			continue
		}
		view := d
		if traversal == model.TraversalChunks {
			view = &model.Document{ID: d.ID, URI: d.URI, Chunks: subChunks(d.Chunks)}
		}
		views = append(views, view)
		owners = append(owners, d)
	}

	if err := s.matcher.Match(ctx, views); err != nil {
		return err
	}
	if err := ranker.RankDocuments(views); err != nil {
		return err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = s.config.Limit
	}
	for i, v := range views {
		owners[i].Matches = ranker.Truncate(v.Matches, limit)
	}

	s.log.Debugf("Searched %d documents (%d failed)", len(views), len(docs)-len(views))
	if batch != nil {
		return batch
	}
	return nil
}

func subChunks(chunks []*model.Chunk) []*model.Chunk {
	var out []*model.Chunk
	for _, c := range chunks {
		out = append(out, c.Chunks...)
	}
	return out
}

// SearchFile ranks the reference tracks against a single audio file.
func (s *beatService) SearchFile(ctx context.Context, path string, params SearchParams) ([]TrackMatch, error) {
	s.log.Infof("Matching audio: %s", path)

	params.Traversal = model.TraversalRoot
	doc := &model.Document{URI: path}
	if err := s.Search(ctx, []*model.Document{doc}, params); err != nil {
		return nil, unwrapSingle(err)
	}

	s.log.Infof("Returning %d matches", len(doc.Matches))
	return doc.Matches, nil
}

// stage copies r into the temp dir, keeping filename's extension so the
// decoder can be chosen from it. The caller removes the returned file.
func (s *beatService) stage(r io.Reader, prefix, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	path, err := utils.WriteTempFile(s.config.TempDir, prefix+"-*"+ext, r)
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", filename, err)
	}
	return path, nil
}

func (s *beatService) discard(path string) {
	if err := utils.DeleteFile(path); err != nil {
		s.log.Warnf("Failed to remove %s: %v", path, err)
	}
}

// SearchAudio ranks the reference tracks against an uploaded clip.
func (s *beatService) SearchAudio(ctx context.Context, r io.Reader, filename string, params SearchParams) ([]TrackMatch, error) {
	path, err := s.stage(r, "query", filename)
	if err != nil {
		return nil, err
	}
	defer s.discard(path)
	return s.SearchFile(ctx, path, params)
}

// IndexAudio adds an uploaded clip to the library. The staged file is
// removed afterwards, so the track is keyed by its upload name.
func (s *beatService) IndexAudio(ctx context.Context, r io.Reader, filename, title string) (IndexResult, error) {
	path, err := s.stage(r, "upload", filename)
	if err != nil {
		return IndexResult{}, err
	}
	defer s.discard(path)

	samples, rate, err := audio.Load(path)
	if err != nil {
		return IndexResult{}, &model.InvalidInputError{Reason: fmt.Sprintf("cannot decode %s", filename), Err: err}
	}
	if title == "" {
		title = titleFromURI(filename)
	}
	doc := &model.Document{URI: "upload:" + filename, Tensor: samples, SampleRate: rate}
	return s.IndexDocument(ctx, doc, title, SearchParams{})
}

// ImportTrack transcodes path to WAV in the temp dir and indexes the result
// under path.
func (s *beatService) ImportTrack(ctx context.Context, path, title string, sampleRate int) (IndexResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return IndexResult{}, err
	}

	s.log.Infof("Transcoding %s", abs)
	wavPath, err := audio.TranscodeToWAV(ctx, abs, s.config.TempDir, audio.TranscodeConfig{SampleRate: sampleRate})
	if err != nil {
		return IndexResult{}, fmt.Errorf("failed to transcode %s: %w", abs, err)
	}
	defer s.discard(wavPath)

	samples, rate, err := audio.Load(wavPath)
	if err != nil {
		return IndexResult{}, err
	}
	if title == "" {
		title = titleFromURI(abs)
	}
	doc := &model.Document{URI: abs, Tensor: samples, SampleRate: rate}
	return s.IndexDocument(ctx, doc, title, SearchParams{})
}

// unwrapSingle reports the item error of a one-document batch directly.
func unwrapSingle(err error) error {
	var batch *model.BatchError
	if errors.As(err, &batch) && len(batch.Items) == 1 {
		return batch.Items[0].Err
	}
	return err
}

// GetTrack retrieves a track's metadata by its ID.
func (s *beatService) GetTrack(id string) (*Track, error) {
	t, err := s.storage.GetTrackByID(id)
	if err != nil {
		return nil, err
	}
	n, err := s.storage.ChunkCount(id)
	if err != nil {
		s.log.Warnf("Failed to count chunks of %s: %v", id, err)
	}
	t.Chunks = n
	return t, nil
}

// ListTracks returns all tracks in the library.
func (s *beatService) ListTracks() ([]Track, error) {
	return s.storage.ListTracks()
}

// DeleteTrack removes a track and its chunks from storage and the index.
func (s *beatService) DeleteTrack(id string) error {
	if err := s.storage.DeleteTrackByID(id); err != nil {
		return err
	}
	n := s.index.DeleteTrack(id)
	s.log.Infof("Deleted track %s (%d chunks)", id, n)
	return nil
}

func (s *beatService) Stats() (Stats, error) {
	tracks, err := s.storage.ListTracks()
	if err != nil {
		return Stats{}, err
	}
	stored, err := s.storage.ChunkCount("")
	if err != nil {
		return Stats{}, err
	}
	return Stats{Tracks: len(tracks), StoredChunks: stored, IndexedChunks: s.index.Len()}, nil
}

// Close releases all resources held by the service.
func (s *beatService) Close() error {
	return s.storage.Close()
}

func titleFromURI(uri string) string {
	base := filepath.Base(uri)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
