package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned by Load for extensions other than .wav and .mp3.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format identifies a decodable container by file extension.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
)

// DetectFormat looks only at the extension; the content is not sniffed.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Load decodes a .wav or .mp3 file into mono samples in [-1, 1] and returns
// them with the file's sample rate.
func Load(path string) ([]float64, int, error) {
	switch DetectFormat(path) {
	case FormatWAV:
		return ReadWavAsFloat64(path)
	case FormatMP3:
		return ReadMP3AsFloat64(path)
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadWavAsFloat64 reads a PCM WAV file of any channel count and bit depth
// (8, 16, 24 or 32) and returns the channel mean as normalized samples.
func ReadWavAsFloat64(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading WAV header: %w", err)
	}
	if dec.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported WAV audio format %d: only PCM (1) supported", dec.WavAudioFormat)
	}
	if dec.NumChans < 1 {
		return nil, 0, errors.New("WAV file declares no channels")
	}
	if dec.SampleRate == 0 {
		return nil, 0, errors.New("WAV file declares a zero sample rate")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	samples, err := downmix(buf)
	if err != nil {
		return nil, 0, err
	}
	return samples, int(dec.SampleRate), nil
}

// downmix averages interleaved channels into one normalized channel.
func downmix(buf *goaudio.IntBuffer) ([]float64, error) {
	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, errors.New("buffer has no channels")
	}

	var offset, scale float64
	switch buf.SourceBitDepth {
	case 8:
		// 8-bit PCM is unsigned
		offset, scale = 128, 1.0/128.0
	case 16, 24, 32:
		scale = 1.0 / float64(int64(1)<<(buf.SourceBitDepth-1))
	default:
		return nil, fmt.Errorf("unsupported bits per sample: %d", buf.SourceBitDepth)
	}

	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += (float64(buf.Data[i*channels+c]) - offset) * scale
		}
		out[i] = sum / float64(channels)
	}
	return out, nil
}

// ReadMP3AsFloat64 decodes an MP3 file. The decoder always yields 16-bit
// little-endian stereo, which is averaged down to mono.
func ReadMP3AsFloat64(path string) ([]float64, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return DecodeMP3(bytes.NewReader(data))
}

// DecodeMP3 is ReadMP3AsFloat64 over an arbitrary reader.
func DecodeMP3(r io.Reader) ([]float64, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding MP3: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("reading MP3 frames: %w", err)
	}

	return downmixStereo16(pcm), dec.SampleRate(), nil
}

// downmixStereo16 averages interleaved 16-bit little-endian stereo frames to
// mono in [-1, 1]. A trailing partial frame is dropped.
func downmixStereo16(pcm []byte) []float64 {
	const scale = 1.0 / 32768.0
	frames := len(pcm) / 4
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[4*i:]))
		r := int16(binary.LittleEndian.Uint16(pcm[4*i+2:]))
		out[i] = (float64(l) + float64(r)) * 0.5 * scale
	}
	return out
}

// WriteWav encodes mono samples in [-1, 1] as 16-bit PCM. Values outside the
// range are clipped.
func WriteWav(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writing PCM data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing WAV: %w", err)
	}
	return nil
}
