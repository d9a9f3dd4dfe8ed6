package beatrec

import (
	"github.com/beatrec/beatrec/internal/storage"
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) RegisterTrack(uri, title string, sampleRate int, durationMs int64) (string, bool, error) {
	return s.db.RegisterTrack(uri, title, sampleRate, durationMs)
}

func (s *storageAdapter) StoreChunks(trackID string, chunks []storage.Chunk) error {
	return s.db.StoreChunks(trackID, chunks)
}

func (s *storageAdapter) ListChunks(fn func(storage.Chunk) error) error {
	return s.db.ListChunks(fn)
}

func (s *storageAdapter) GetTrackByID(id string) (*Track, error) {
	t, err := s.db.GetTrackByID(id)
	if err != nil {
		return nil, err
	}
	track := toTrack(*t)
	return &track, nil
}

func (s *storageAdapter) ListTracks() ([]Track, error) {
	rows, err := s.db.ListTracks()
	if err != nil {
		return nil, err
	}
	tracks := make([]Track, len(rows))
	for i, r := range rows {
		tracks[i] = toTrack(r)
	}
	return tracks, nil
}

func (s *storageAdapter) ChunkCount(trackID string) (int64, error) {
	return s.db.ChunkCount(trackID)
}

func (s *storageAdapter) DeleteTrackByID(id string) error {
	return s.db.DeleteTrackByID(id)
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

func toTrack(t storage.Track) Track {
	return Track{
		ID:         t.ID,
		URI:        t.URI,
		Title:      t.Title,
		SampleRate: t.SampleRate,
		DurationMs: t.DurationMs,
	}
}
