// Package matcher finds the reference chunks closest to a query chunk.
package matcher

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/beatrec/beatrec/internal/model"
)

// Entry is one indexed reference chunk.
type Entry struct {
	ChunkID   string
	TrackID   string
	URI       string
	TimeRange model.TimeRange
	Vector    []float32
}

// Hit is a search result. Lower Distance means more similar.
type Hit struct {
	Entry
	Distance float32
}

// Index stores reference vectors. Implementations must be safe for
// concurrent use.
type Index interface {
	// Insert adds or replaces the entry with the same ChunkID.
	Insert(e Entry) error
	BatchInsert(entries []Entry) error
	// Search returns up to topK hits ordered by ascending distance.
	Search(query []float32, topK int) ([]Hit, error)
	// DeleteTrack removes every entry of a track and reports how many
	// were removed.
	DeleteTrack(trackID string) int
	Len() int
}

// Memory is a brute-force cosine index.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Insert(e Entry) error {
	if e.ChunkID == "" {
		return fmt.Errorf("matcher: entry without chunk id")
	}
	e.Vector = slices.Clone(e.Vector)
	m.mu.Lock()
	m.entries[e.ChunkID] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) BatchInsert(entries []Entry) error {
	for i, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("matcher: entry %d without chunk id", i)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		e.Vector = slices.Clone(e.Vector)
		m.entries[e.ChunkID] = e
	}
	return nil
}

func (m *Memory) Search(query []float32, topK int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 || topK <= 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		hits = append(hits, Hit{Entry: e, Distance: CosineDistance(query, e.Vector)})
	}

	// map order is random; ChunkID keeps equal distances stable
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *Memory) DeleteTrack(trackID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if e.TrackID == trackID {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// CosineDistance returns 1 - cos(a, b), in [0, 2]. Vectors of different
// length or with zero norm are maximally distant.
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 2
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 2
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	similarity = max(-1, min(1, similarity))
	return float32(1 - similarity)
}
