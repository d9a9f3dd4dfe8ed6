package beatrec

import (
	"context"
	"io"

	"github.com/beatrec/beatrec/internal/storage"
)

type Service interface {
	// IndexTrack decodes a .wav or .mp3 file and adds it to the reference
	// library.
	IndexTrack(ctx context.Context, uri, title string) (IndexResult, error)
	// IndexDocument adds an already described document (URI or tensor) to
	// the reference library.
	IndexDocument(ctx context.Context, doc *Document, title string, params SearchParams) (IndexResult, error)
	// Search segments, matches and ranks every document in place. Per-document
	// failures are returned as a *model.BatchError after the rest of the batch
	// has been processed.
	Search(ctx context.Context, docs []*Document, params SearchParams) error
	SearchFile(ctx context.Context, path string, params SearchParams) ([]TrackMatch, error)
	// SearchAudio stages r in the temp dir under filename's extension and
	// searches it like SearchFile.
	SearchAudio(ctx context.Context, r io.Reader, filename string, params SearchParams) ([]TrackMatch, error)
	// IndexAudio stages r in the temp dir and indexes it as
	// "upload:<filename>".
	IndexAudio(ctx context.Context, r io.Reader, filename, title string) (IndexResult, error)
	// ImportTrack converts any format ffmpeg reads to WAV in the temp dir
	// and indexes it under the original path.
	ImportTrack(ctx context.Context, path, title string, sampleRate int) (IndexResult, error)
	GetTrack(id string) (*Track, error)
	ListTracks() ([]Track, error)
	DeleteTrack(id string) error
	Stats() (Stats, error)
	Close() error
}

type Storage interface {
	RegisterTrack(uri, title string, sampleRate int, durationMs int64) (string, bool, error)
	StoreChunks(trackID string, chunks []storage.Chunk) error
	ListChunks(fn func(storage.Chunk) error) error
	GetTrackByID(id string) (*Track, error)
	ListTracks() ([]Track, error)
	ChunkCount(trackID string) (int64, error)
	DeleteTrackByID(id string) error
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
