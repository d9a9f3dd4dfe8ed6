package beatrec

import (
	"github.com/beatrec/beatrec/internal/model"
	"github.com/beatrec/beatrec/internal/storage"
)

type (
	Document   = model.Document
	Chunk      = model.Chunk
	TrackMatch = model.TrackMatch
	ChunkMatch = model.ChunkMatch
	TimeRange  = model.TimeRange
	Traversal  = model.Traversal
	BatchError = model.BatchError
)

var (
	ErrInvalidInput   = model.ErrInvalidInput
	ErrMalformedMatch = model.ErrMalformedMatch
	ErrNotFound       = storage.ErrNotFound
)

// Track is a reference recording in the library.
type Track struct {
	ID         string `json:"id"`
	URI        string `json:"uri"`
	Title      string `json:"title"`
	SampleRate int    `json:"sample_rate"`
	DurationMs int64  `json:"duration_ms"`
	Chunks     int64  `json:"chunks"`
}

// IndexResult describes the outcome of adding a track.
type IndexResult struct {
	TrackID string
	Chunks  int
	// Created is false when the URI was already indexed; nothing is
	// re-embedded in that case.
	Created bool
}

// SearchParams override the segmenter defaults for one call. Limit caps the
// ranked tracks per document.
type SearchParams struct {
	Interval  float64
	Stride    float64
	Traversal model.Traversal
	Limit     int
}

type Stats struct {
	Tracks        int   `json:"tracks"`
	StoredChunks  int64 `json:"stored_chunks"`
	IndexedChunks int   `json:"indexed_chunks"`
}
