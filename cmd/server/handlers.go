package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/beatrec/beatrec/pkg/beatrec"
	"github.com/beatrec/beatrec/pkg/logger"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service beatrec.Service
	config  *ServerConfig
	log     beatrec.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	DBPath         string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service beatrec.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger().Named("http"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, beatrec.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, beatrec.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, beatrec.ErrMalformedMatch):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "BeatRec API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":      "GET /health",
			"metrics":     "GET /api/health/metrics",
			"search":      "POST /search",
			"index":       "POST /index",
			"searchFile":  "POST /api/search/upload",
			"tracks":      "GET /api/tracks",
			"addTrack":    "POST /api/tracks",
			"getTrack":    "GET /api/tracks/{id}",
			"deleteTrack": "DELETE /api/tracks/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		s.log.Errorf("Failed to collect stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:        "healthy",
		DatabasePath:  s.config.DBPath,
		TrackCount:    stats.Tracks,
		StoredChunks:  stats.StoredChunks,
		IndexedChunks: stats.IndexedChunks,
	})
}

func (s *Server) decodeDocArray(w http.ResponseWriter, r *http.Request) (*DocArrayRequest, beatrec.SearchParams, bool) {
	var req DocArrayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Errorf("Failed to decode request: %v", err)
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return nil, beatrec.SearchParams{}, false
	}
	params, err := req.Validate()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, beatrec.SearchParams{}, false
	}
	return &req, params, true
}

// handleSearchDocs handles POST /search
func (s *Server) handleSearchDocs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	req, params, ok := s.decodeDocArray(w, r)
	if !ok {
		return
	}

	docs := req.Documents()
	s.log.Infof("Searching %d documents", len(docs))

	err := s.service.Search(ctx, docs, params)
	var batch *beatrec.BatchError
	if err != nil && !errors.As(err, &batch) {
		s.log.Errorf("Search failed: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Search failed: %v", err))
		return
	}

	resp := DocArrayResponse{Data: DocsPayload{Docs: make([]DocumentDTO, len(docs))}}
	for i, d := range docs {
		dto := DocumentDTO{ID: d.ID, URI: d.URI, Matches: toMatchDTOs(d.Matches)}
		if itemErr := batch.Failed(i); itemErr != nil {
			dto.Error = itemErr.Error()
		}
		resp.Data.Docs[i] = dto
	}

	s.respondJSON(w, http.StatusOK, resp)
}

func toMatchDTOs(matches []beatrec.TrackMatch) []MatchDTO {
	out := make([]MatchDTO, len(matches))
	for i, m := range matches {
		out[i] = MatchDTO{
			ID:     m.TrackID,
			URI:    m.URI,
			Scores: map[string]ScoreDTO{"cosine": {Value: m.Score}},
			Tags:   m.TimeRange,
		}
	}
	return out
}

// handleIndexDocs handles POST /index
func (s *Server) handleIndexDocs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	req, params, ok := s.decodeDocArray(w, r)
	if !ok {
		return
	}

	var resp IndexResponse
	resp.Data.Docs = make([]IndexedDocumentDTO, len(req.Data))
	for i, doc := range req.Documents() {
		res, err := s.service.IndexDocument(ctx, doc, req.Data[i].Title, params)
		dto := IndexedDocumentDTO{ID: doc.ID, URI: doc.URI}
		if err != nil {
			if ctx.Err() != nil {
				s.respondError(w, statusFor(ctx.Err()), "Indexing timed out")
				return
			}
			s.log.Warnf("Failed to index document %d: %v", i, err)
			dto.Error = err.Error()
		} else {
			dto.TrackID, dto.Chunks, dto.Created = res.TrackID, res.Chunks, res.Created
		}
		resp.Data.Docs[i] = dto
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// openUpload returns the multipart "audio" field of a size-limited request.
func (s *Server) openUpload(w http.ResponseWriter, r *http.Request) (multipart.File, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return nil, "", false
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.log.Errorf("Failed to get audio file: %v", err)
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return nil, "", false
	}
	return file, filepath.Base(header.Filename), true
}

// handleSearchUpload handles POST /api/search/upload (multipart file upload)
func (s *Server) handleSearchUpload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	file, filename, ok := s.openUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	s.log.Infof("Matching uploaded file: %s", filename)
	matches, err := s.service.SearchAudio(ctx, file, filename, beatrec.SearchParams{})
	if err != nil {
		s.log.Errorf("Failed to match upload: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to match audio: %v", err))
		return
	}

	s.log.Infof("Match complete: found %d matches", len(matches))
	s.respondJSON(w, http.StatusOK, DocArrayResponse{Data: DocsPayload{Docs: []DocumentDTO{{
		ID:      filename,
		Matches: toMatchDTOs(matches),
	}}}})
}

// handleAddTrackFile handles POST /api/tracks (multipart file upload)
func (s *Server) handleAddTrackFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	file, filename, ok := s.openUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	res, err := s.service.IndexAudio(ctx, file, filename, r.FormValue("title"))
	if err != nil {
		s.log.Errorf("Failed to index upload %s: %v", filename, err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to index track: %v", err))
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, IndexedDocumentDTO{
		ID:      filename,
		URI:     "upload:" + filename,
		TrackID: res.TrackID,
		Chunks:  res.Chunks,
		Created: res.Created,
	})
}

// handleListTracks handles GET /api/tracks
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks()
	if err != nil {
		s.log.Errorf("Failed to list tracks: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}

	dtos := make([]TrackDTO, len(tracks))
	for i, t := range tracks {
		dtos[i] = toTrackDTO(t)
	}

	s.respondJSON(w, http.StatusOK, ListTracksResponse{
		Tracks: dtos,
		Count:  len(dtos),
	})
}

// handleGetTrack handles GET /api/tracks/{id}
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request, id string) {
	track, err := s.service.GetTrack(id)
	if err != nil {
		s.log.Warnf("Track lookup failed: %s: %v", id, err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Track with ID %s not found", id))
		return
	}
	s.respondJSON(w, http.StatusOK, toTrackDTO(*track))
}

// handleDeleteTrack handles DELETE /api/tracks/{id}
func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteTrack(id); err != nil {
		if errors.Is(err, beatrec.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Track with ID %s not found", id))
			return
		}
		s.log.Errorf("Failed to delete track %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete track")
		return
	}

	s.respondJSON(w, http.StatusOK, DeleteTrackResponse{
		Message: "Track deleted successfully",
		ID:      id,
	})
}

// handleTracks routes requests to /api/tracks
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTracks(w, r)
	case http.MethodPost:
		s.handleAddTrackFile(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTrack routes requests to /api/tracks/{id}
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/tracks/")
	if id == "" || strings.Contains(id, "/") {
		s.respondError(w, http.StatusBadRequest, "Track ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetTrack(w, r, id)
	case http.MethodDelete:
		s.handleDeleteTrack(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// postOnly rejects every method except POST.
func (s *Server) postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}
