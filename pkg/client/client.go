// Package client talks to a running beatrec server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/beatrec/beatrec/pkg/logger"
	"github.com/beatrec/beatrec/pkg/utils"
)

// Match is one ranked reference track.
type Match struct {
	ID      string  `json:"id"`
	URI     string  `json:"uri"`
	Score   float64 `json:"score"`
	BeginMs int64   `json:"beg_in_ms"`
	EndMs   int64   `json:"end_in_ms"`
}

type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type Client struct {
	baseURL string
	http    *http.Client
	tempDir string
	log     Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTempDir sets where query audio is staged. The server must be able to
// read files there.
func WithTempDir(dir string) Option {
	return func(c *Client) {
		c.tempDir = dir
	}
}

func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Data []searchDoc `json:"data"`
}

type searchDoc struct {
	URI string `json:"uri"`
}

type searchResponse struct {
	Data struct {
		Docs []struct {
			Error   string `json:"error,omitempty"`
			Matches []struct {
				ID     string `json:"id"`
				URI    string `json:"uri"`
				Scores map[string]struct {
					Value float64 `json:"value"`
				} `json:"scores"`
				Tags struct {
					BeginMs int64 `json:"beg_in_ms"`
					EndMs   int64 `json:"end_in_ms"`
				} `json:"tags"`
			} `json:"matches"`
		} `json:"docs"`
	} `json:"data"`
}

// GetMatches stages audio as a .wav file, asks the server to search it and
// returns the ranked tracks of the first result document. Failures are logged
// and yield an empty slice.
func (c *Client) GetMatches(ctx context.Context, audio []byte) []Match {
	matches, err := c.getMatches(ctx, audio)
	if err != nil {
		c.log.Warnf("search request failed: %v", err)
		return []Match{}
	}
	return matches
}

func (c *Client) getMatches(ctx context.Context, audio []byte) ([]Match, error) {
	path, err := utils.WriteTempFile(c.tempDir, "beatrec-query-*.wav", bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := utils.DeleteFile(path); err != nil {
			c.log.Warnf("failed to remove %s: %v", path, err)
		}
	}()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(searchRequest{Data: []searchDoc{{URI: abs}}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Data.Docs) == 0 {
		return nil, fmt.Errorf("response contains no documents")
	}
	doc := out.Data.Docs[0]
	if doc.Error != "" {
		return nil, fmt.Errorf("server rejected query: %s", doc.Error)
	}

	matches := make([]Match, 0, len(doc.Matches))
	for _, m := range doc.Matches {
		matches = append(matches, Match{
			ID:      m.ID,
			URI:     m.URI,
			Score:   m.Scores["cosine"].Value,
			BeginMs: m.Tags.BeginMs,
			EndMs:   m.Tags.EndMs,
		})
	}
	c.log.Debugf("server returned %d matches", len(matches))
	return matches, nil
}
