package main

import (
	"fmt"

	"github.com/beatrec/beatrec/internal/model"
	"github.com/beatrec/beatrec/pkg/beatrec"
)

// MaxDocsPerRequest bounds the batch size of /search and /index.
const MaxDocsPerRequest = 256

// DocumentRequest is one input document. Either URI (a .wav/.mp3 path
// readable by the server) or Tensor with SampleRate must be set.
type DocumentRequest struct {
	ID         string    `json:"id,omitempty"`
	URI        string    `json:"uri,omitempty"`
	Tensor     []float64 `json:"tensor,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Title      string    `json:"title,omitempty"`
}

// Parameters override the server defaults for one request.
type Parameters struct {
	Interval       float64 `json:"interval,omitempty"`
	Stride         float64 `json:"stride,omitempty"`
	TraversalPaths string  `json:"traversal_paths,omitempty"`
	Limit          int     `json:"limit,omitempty"`
}

// DocArrayRequest is the request body for POST /search and POST /index
type DocArrayRequest struct {
	Data       []DocumentRequest `json:"data"`
	Parameters Parameters        `json:"parameters"`
}

// Validate checks the request and resolves the traversal selector.
func (r *DocArrayRequest) Validate() (beatrec.SearchParams, error) {
	if len(r.Data) == 0 {
		return beatrec.SearchParams{}, fmt.Errorf("data cannot be empty")
	}
	if len(r.Data) > MaxDocsPerRequest {
		return beatrec.SearchParams{}, fmt.Errorf("too many documents: %d (maximum: %d)", len(r.Data), MaxDocsPerRequest)
	}
	if r.Parameters.Interval < 0 || r.Parameters.Stride < 0 {
		return beatrec.SearchParams{}, fmt.Errorf("interval and stride must be positive")
	}
	if r.Parameters.Limit < 0 {
		return beatrec.SearchParams{}, fmt.Errorf("limit must not be negative")
	}
	traversal, err := model.ParseTraversal(r.Parameters.TraversalPaths)
	if err != nil {
		return beatrec.SearchParams{}, err
	}
	return beatrec.SearchParams{
		Interval:  r.Parameters.Interval,
		Stride:    r.Parameters.Stride,
		Traversal: traversal,
		Limit:     r.Parameters.Limit,
	}, nil
}

// Documents converts the request payload into service documents.
func (r *DocArrayRequest) Documents() []*beatrec.Document {
	docs := make([]*beatrec.Document, len(r.Data))
	for i, d := range r.Data {
		docs[i] = &beatrec.Document{
			ID:         d.ID,
			URI:        d.URI,
			Tensor:     d.Tensor,
			SampleRate: d.SampleRate,
		}
	}
	return docs
}

// ScoreDTO wraps a named score value.
type ScoreDTO struct {
	Value float64 `json:"value"`
}

// MatchDTO represents a single ranked track
type MatchDTO struct {
	ID     string              `json:"id"`
	URI    string              `json:"uri"`
	Scores map[string]ScoreDTO `json:"scores"`
	Tags   beatrec.TimeRange   `json:"tags"`
}

// DocumentDTO is one result document.
type DocumentDTO struct {
	ID      string     `json:"id"`
	URI     string     `json:"uri,omitempty"`
	Matches []MatchDTO `json:"matches"`
	Error   string     `json:"error,omitempty"`
}

// DocArrayResponse is the response for POST /search
type DocArrayResponse struct {
	Data DocsPayload `json:"data"`
}

type DocsPayload struct {
	Docs []DocumentDTO `json:"docs"`
}

// IndexedDocumentDTO reports the outcome of indexing one document.
type IndexedDocumentDTO struct {
	ID      string `json:"id"`
	URI     string `json:"uri,omitempty"`
	TrackID string `json:"track_id,omitempty"`
	Chunks  int    `json:"chunks"`
	Created bool   `json:"created"`
	Error   string `json:"error,omitempty"`
}

// IndexResponse is the response for POST /index
type IndexResponse struct {
	Data struct {
		Docs []IndexedDocumentDTO `json:"docs"`
	} `json:"data"`
}

// TrackDTO represents a track in API responses
type TrackDTO struct {
	ID         string `json:"id"`
	URI        string `json:"uri"`
	Title      string `json:"title"`
	SampleRate int    `json:"sample_rate"`
	DurationMs int64  `json:"duration_ms"`
	Chunks     int64  `json:"chunks,omitempty"`
}

func toTrackDTO(t beatrec.Track) TrackDTO {
	return TrackDTO{
		ID:         t.ID,
		URI:        t.URI,
		Title:      t.Title,
		SampleRate: t.SampleRate,
		DurationMs: t.DurationMs,
		Chunks:     t.Chunks,
	}
}

// ListTracksResponse is the response for GET /api/tracks
type ListTracksResponse struct {
	Tracks []TrackDTO `json:"tracks"`
	Count  int        `json:"count"`
}

// DeleteTrackResponse is the response for DELETE /api/tracks/{id}
type DeleteTrackResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MetricsResponse provides server health and library metrics
type MetricsResponse struct {
	Status        string `json:"status"`
	DatabasePath  string `json:"database_path"`
	TrackCount    int    `json:"track_count"`
	StoredChunks  int64  `json:"stored_chunks"`
	IndexedChunks int    `json:"indexed_chunks"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
