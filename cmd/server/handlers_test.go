package main

import (
	"bytes"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beatrec/beatrec/internal/audio"
	"github.com/beatrec/beatrec/internal/segmenter"
	"github.com/beatrec/beatrec/pkg/beatrec"
	"github.com/beatrec/beatrec/pkg/logger"
)

const testRate = 8000

func tone(freq, seconds float64) []float64 {
	s := make([]float64, int(seconds*testRate))
	for i := range s {
		s[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return s
}

// setupTestServer returns the service's staging dir along with the handler.
func setupTestServer(t *testing.T) (string, http.Handler) {
	t.Helper()
	logger.SetOutput(&bytes.Buffer{})

	dir := t.TempDir()
	stageDir := filepath.Join(dir, "stage")
	svc, err := beatrec.NewService(
		beatrec.WithDBPath(filepath.Join(dir, "test.sqlite3")),
		beatrec.WithTempDir(stageDir),
		beatrec.WithSegmenterConfig(segmenter.Config{DefaultInterval: 1, DefaultStride: 0.5}),
		beatrec.WithTopK(50),
		beatrec.WithLogger(logger.Discard()),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	s := NewServer(svc, &ServerConfig{
		Port:           "0",
		DBPath:         "test.sqlite3",
		RequestTimeout: 30 * time.Second,
		MaxUploadBytes: 10 << 20,
		AllowedOrigins: []string{"*"},
	})
	return stageDir, s.setupRoutes()
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func indexTensor(t *testing.T, h http.Handler, id string, freq float64) string {
	t.Helper()
	rec := postJSON(t, h, "/index", DocArrayRequest{
		Data: []DocumentRequest{{ID: id, Tensor: tone(freq, 3), SampleRate: testRate, Title: id}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /index, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp IndexResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode index response: %v", err)
	}
	if len(resp.Data.Docs) != 1 || resp.Data.Docs[0].TrackID == "" {
		t.Fatalf("Unexpected index response: %s", rec.Body.String())
	}
	return resp.Data.Docs[0].TrackID
}

func TestHealth(t *testing.T) {
	_, h := setupTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS header *, got %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a generated X-Request-ID")
	}
}

func TestCORSAllowList(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := corsMiddleware([]string{"https://app.example"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Errorf("Expected allowed preflight, got %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for unknown origin preflight, got %d", rec.Code)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	_, h := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("Expected X-Request-ID abc-123, got %q", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:5", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "1.2.3.4:5", "10.0.0.9"},
		{"remote", nil, "1.2.3.4:5", "1.2.3.4"},
		{"ipv6", nil, "[::1]:8080", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchWireShape(t *testing.T) {
	_, h := setupTestServer(t)
	lowID := indexTensor(t, h, "low", 220)
	indexTensor(t, h, "high", 2500)

	rec := postJSON(t, h, "/search", map[string]any{
		"data":       []map[string]any{{"id": "q", "tensor": tone(220, 2), "sample_rate": testRate}},
		"parameters": map[string]any{"traversal_paths": "@r", "limit": 1},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	docs := raw["data"].(map[string]any)["docs"].([]any)
	if len(docs) != 1 {
		t.Fatalf("Expected 1 doc, got %d", len(docs))
	}
	matches := docs[0].(map[string]any)["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("Expected limit to keep 1 match, got %d", len(matches))
	}
	m := matches[0].(map[string]any)
	if m["id"] != lowID {
		t.Errorf("Expected best match %s, got %v", lowID, m["id"])
	}
	if _, ok := m["scores"].(map[string]any)["cosine"].(map[string]any)["value"].(float64); !ok {
		t.Errorf("Expected scores.cosine.value, got %v", m["scores"])
	}
	tags := m["tags"].(map[string]any)
	if _, ok := tags["beg_in_ms"]; !ok {
		t.Errorf("Expected tags.beg_in_ms, got %v", tags)
	}
	if _, ok := tags["end_in_ms"]; !ok {
		t.Errorf("Expected tags.end_in_ms, got %v", tags)
	}
}

func TestSearchPerDocumentError(t *testing.T) {
	_, h := setupTestServer(t)
	indexTensor(t, h, "ref", 440)

	rec := postJSON(t, h, "/search", DocArrayRequest{Data: []DocumentRequest{
		{ID: "ok", Tensor: tone(440, 1), SampleRate: testRate},
		{ID: "bad", Tensor: tone(440, 1)},
	}})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp DocArrayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp.Data.Docs[0].Error != "" || len(resp.Data.Docs[0].Matches) != 1 {
		t.Errorf("Expected doc ok to succeed, got %+v", resp.Data.Docs[0])
	}
	if resp.Data.Docs[1].Error == "" {
		t.Errorf("Expected doc bad to carry an error, got %+v", resp.Data.Docs[1])
	}
}

func TestSearchBadRequests(t *testing.T) {
	_, h := setupTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"empty data", DocArrayRequest{}},
		{"bad traversal", DocArrayRequest{
			Data:       []DocumentRequest{{Tensor: []float64{0}, SampleRate: 1}},
			Parameters: Parameters{TraversalPaths: "@x"},
		}},
		{"negative interval", DocArrayRequest{
			Data:       []DocumentRequest{{Tensor: []float64{0}, SampleRate: 1}},
			Parameters: Parameters{Interval: -1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := postJSON(t, h, "/search", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestSearchMethodNotAllowed(t *testing.T) {
	_, h := setupTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func uploadRequest(t *testing.T, path, filename string, samples []float64, fields map[string]string) *http.Request {
	t.Helper()
	wavPath := filepath.Join(t.TempDir(), "upload.wav")
	if err := audio.WriteWav(wavPath, samples, testRate); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(wavPath)
	if err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, _ := mw.CreateFormFile("audio", filename)
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func assertStageEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Staging dir %s missing: %v", dir, err)
	}
	for _, e := range entries {
		t.Errorf("Staged upload %s was not removed", e.Name())
	}
}

func TestSearchUpload(t *testing.T) {
	stageDir, h := setupTestServer(t)
	refID := indexTensor(t, h, "ref", 330)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "/api/search/upload", "clip.wav", tone(330, 1.5), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp DocArrayResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Data.Docs) != 1 || len(resp.Data.Docs[0].Matches) != 1 || resp.Data.Docs[0].Matches[0].ID != refID {
		t.Errorf("Unexpected upload search response: %s", rec.Body.String())
	}

	assertStageEmpty(t, stageDir)
}

func TestAddTrackUpload(t *testing.T) {
	stageDir, h := setupTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "/api/tracks", "take1.wav", tone(440, 2), map[string]string{"title": "Take one"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var dto IndexedDocumentDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if dto.URI != "upload:take1.wav" || dto.TrackID == "" || dto.Chunks != 3 {
		t.Errorf("Unexpected index response: %+v", dto)
	}
	assertStageEmpty(t, stageDir)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "/api/tracks", "take1.wav", tone(440, 2), nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for an already indexed upload, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tracks/"+dto.TrackID, nil))
	var track TrackDTO
	json.Unmarshal(rec.Body.Bytes(), &track)
	if track.Title != "Take one" {
		t.Errorf("Expected title %q, got %q", "Take one", track.Title)
	}
}

func TestTrackLifecycle(t *testing.T) {
	_, h := setupTestServer(t)
	id := indexTensor(t, h, "life", 440)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tracks", nil))
	var list ListTracksResponse
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Count != 1 || list.Tracks[0].ID != id || list.Tracks[0].Title != "life" {
		t.Errorf("Unexpected track list: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tracks/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for existing track, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tracks/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for delete, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tracks/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tracks/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for second delete, got %d", rec.Code)
	}
}

func TestIndexInvalidDocumentReportsError(t *testing.T) {
	_, h := setupTestServer(t)

	rec := postJSON(t, h, "/index", DocArrayRequest{Data: []DocumentRequest{{ID: "x", URI: "song.ogg"}}})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp IndexResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Data.Docs[0].Error == "" {
		t.Errorf("Expected per-document error, got %s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{beatrec.ErrInvalidInput, http.StatusBadRequest},
		{beatrec.ErrNotFound, http.StatusNotFound},
		{beatrec.ErrMalformedMatch, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
