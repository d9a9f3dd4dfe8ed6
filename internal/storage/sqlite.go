package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "beatrec.sqlite3"
const errDBClientNil = "db client is nil"

// ErrNotFound is returned when a track does not exist.
var ErrNotFound = errors.New("track not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Track struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	URI        string    `gorm:"uniqueIndex:idx_track_uri" json:"uri"`
	Title      string    `gorm:"index:idx_track_title" json:"title"`
	SampleRate int       `json:"sample_rate"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkVector is the stored embedding of one reference chunk. Vector holds a
// msgpack-encoded []float32.
type ChunkVector struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	TrackID     string `gorm:"type:varchar(36);index:idx_chunk_track"`
	StartSample int
	EndSample   int
	BeginMs     int64
	EndMs       int64
	Vector      []byte
}

// Chunk is the decoded form of a ChunkVector.
type Chunk struct {
	ID          string
	TrackID     string
	StartSample int
	EndSample   int
	BeginMs     int64
	EndMs       int64
	Vector      []float32
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("BEATREC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &ChunkVector{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RegisterTrack returns the id of the track stored under uri, creating it if
// needed. created reports whether a new row was written.
func (c *DBClient) RegisterTrack(uri, title string, sampleRate int, durationMs int64) (id string, created bool, err error) {
	if c == nil || c.DB == nil {
		return "", false, errors.New(errDBClientNil)
	}

	var track Track

	err = c.DB.Where("uri = ?", uri).First(&track).Error
	if err == nil {
		if track.Title == "" && title != "" {
			if err := c.DB.Model(&track).Update("Title", title).Error; err != nil {
				return "", false, fmt.Errorf("updating title: %w", err)
			}
		}
		return track.ID, false, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, fmt.Errorf("querying existing track: %w", err)
	}

	track = Track{
		ID:         uuid.NewString(),
		URI:        uri,
		Title:      title,
		SampleRate: sampleRate,
		DurationMs: durationMs,
	}
	err = c.DB.Create(&track).Error
	if err != nil {
		if isUniqueViolation(err) {
			if fetchErr := c.DB.Where("uri = ?", uri).First(&track).Error; fetchErr != nil {
				return "", false, fmt.Errorf("fetching track after constraint violation: %w", fetchErr)
			}
			return track.ID, false, nil
		}
		return "", false, fmt.Errorf("creating track: %w", err)
	}

	return track.ID, true, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

func (c *DBClient) GetTrackByID(id string) (*Track, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var track Track
	if err := c.DB.Where("id = ?", id).First(&track).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return &track, nil
}

func (c *DBClient) ListTracks() ([]Track, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var tracks []Track
	if err := c.DB.Order("created_at, id").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	return tracks, nil
}

// DeleteTrackByID removes a track and its chunk vectors in one transaction.
func (c *DBClient) DeleteTrackByID(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("track_id = ?", id).Delete(&ChunkVector{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Track{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// StoreChunks writes the chunk vectors of a track. Chunks without an ID get
// a fresh one, written back into the slice.
func (c *DBClient) StoreChunks(trackID string, chunks []Chunk) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}

	rows := make([]ChunkVector, 0, min(len(chunks), 1000))
	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.TrackID = trackID
		blob, err := msgpack.Marshal(ch.Vector)
		if err != nil {
			return fmt.Errorf("encoding vector %d: %w", i, err)
		}
		rows = append(rows, ChunkVector{
			ID:          ch.ID,
			TrackID:     trackID,
			StartSample: ch.StartSample,
			EndSample:   ch.EndSample,
			BeginMs:     ch.BeginMs,
			EndMs:       ch.EndMs,
			Vector:      blob,
		})
		if len(rows) >= 1000 {
			if err := c.DB.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("batch insert chunks: %w", err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if err := c.DB.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("batch insert last chunks: %w", err)
		}
	}
	return nil
}

// ListChunks calls fn for every stored chunk, reading the table in batches.
// Iteration stops at the first error returned by fn.
func (c *DBClient) ListChunks(fn func(Chunk) error) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}

	var rows []ChunkVector
	res := c.DB.FindInBatches(&rows, 500, func(tx *gorm.DB, batch int) error {
		for _, r := range rows {
			var vec []float32
			if err := msgpack.Unmarshal(r.Vector, &vec); err != nil {
				return fmt.Errorf("decoding vector of chunk %s: %w", r.ID, err)
			}
			if err := fn(Chunk{
				ID:          r.ID,
				TrackID:     r.TrackID,
				StartSample: r.StartSample,
				EndSample:   r.EndSample,
				BeginMs:     r.BeginMs,
				EndMs:       r.EndMs,
				Vector:      vec,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return res.Error
}

// ChunkCount counts the chunks of one track, or of all tracks when trackID
// is empty.
func (c *DBClient) ChunkCount(trackID string) (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	q := c.DB.Model(&ChunkVector{})
	if trackID != "" {
		q = q.Where("track_id = ?", trackID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}
