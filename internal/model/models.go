package model

import (
	"fmt"
	"math"
)

// AudioSignal is a mono waveform with its sample rate.
type AudioSignal struct {
	Samples    []float64
	SampleRate int // samples per second, always > 0
}

// NewAudioSignal validates the sample rate before building the signal.
func NewAudioSignal(samples []float64, sampleRate int) (AudioSignal, error) {
	if sampleRate <= 0 {
		return AudioSignal{}, &InvalidInputError{Reason: fmt.Sprintf("sample rate must be positive, got %d", sampleRate)}
	}
	return AudioSignal{Samples: samples, SampleRate: sampleRate}, nil
}

// DurationMs returns the signal length in milliseconds.
func (s AudioSignal) DurationMs() int64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return samplesToMs(len(s.Samples), s.SampleRate)
}

// Document is one track of a batch. Either Tensor (with SampleRate) or URI
// must be set before segmentation.
type Document struct {
	ID         string
	URI        string
	Tensor     []float64
	SampleRate int

	Chunks  []*Chunk
	Matches []TrackMatch
}

// Signal returns the document's decoded waveform.
func (d *Document) Signal() (AudioSignal, error) {
	return NewAudioSignal(d.Tensor, d.SampleRate)
}

// Chunk is a fixed-length window over a parent signal.
type Chunk struct {
	ID         string
	ParentID   string
	Offset     int // position of the parent in the traversed batch
	Start      int // first sample, inclusive
	End        int // last sample, exclusive
	Tensor     []float64
	SampleRate int

	Chunks  []*Chunk
	Matches []ChunkMatch
}

// TimeRange converts the sample offsets to milliseconds.
func (c *Chunk) TimeRange() TimeRange {
	return TimeRange{
		BeginMs: samplesToMs(c.Start, c.SampleRate),
		EndMs:   samplesToMs(c.End, c.SampleRate),
	}
}

// TimeRange is a [BeginMs, EndMs) span of a track.
type TimeRange struct {
	BeginMs int64 `json:"beg_in_ms"`
	EndMs   int64 `json:"end_in_ms"`
}

// ChunkMatch is the similarity between a query chunk and one reference chunk.
// Score is a distance: lower is more similar. NaN means the matcher did not
// report one.
type ChunkMatch struct {
	ParentID  string // reference track
	ChunkID   string // reference chunk
	URI       string
	Score     float64
	TimeRange TimeRange
}

// HasScore reports whether the matcher attached a usable score.
func (m ChunkMatch) HasScore() bool {
	return !math.IsNaN(m.Score)
}

// TrackMatch is the best chunk match found for one reference track.
type TrackMatch struct {
	TrackID   string
	URI       string
	Score     float64
	TimeRange TimeRange
}

func samplesToMs(n, sampleRate int) int64 {
	return int64(n) * 1000 / int64(sampleRate)
}
