package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beatrec/beatrec/internal/audio"
	"github.com/beatrec/beatrec/pkg/logger"
)

func writeTone(t *testing.T, name string, freq, seconds float64) string {
	t.Helper()
	const rate = 8000
	samples := make([]float64, int(seconds*rate))
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := audio.WriteWav(path, samples, rate); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// writeConfig points the CLI at a config with one second windows.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "segmenter:\n  interval: 1\n  stride: 0.5\nmatcher:\n  top_k: 50\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0:00.000"},
		{1500, "0:01.500"},
		{61_250, "1:01.250"},
	}
	for _, tt := range tests {
		if got := formatMs(tt.ms); got != tt.want {
			t.Errorf("formatMs(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestSegmentCommand(t *testing.T) {
	logger.SetOutput(&bytes.Buffer{})
	path := writeTone(t, "tone.wav", 440, 3)

	out, err := run(t, "--config", "", "segment", "--interval", "1", "--stride", "1", path)
	if err != nil {
		t.Fatalf("segment failed: %v", err)
	}
	if !strings.Contains(out, "3 chunks") {
		t.Errorf("Expected 3 chunks in output, got:\n%s", out)
	}
	if !strings.Contains(out, "0:02.000") {
		t.Errorf("Expected last window to start at 0:02.000, got:\n%s", out)
	}
}

func TestIndexListDelete(t *testing.T) {
	logger.SetOutput(&bytes.Buffer{})
	cfg := writeConfig(t)
	db := filepath.Join(t.TempDir(), "cli.sqlite3")
	path := writeTone(t, "tone.wav", 440, 3)

	out, err := run(t, "--config", cfg, "--db", db, "index", path)
	if err != nil {
		t.Fatalf("index failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "added") {
		t.Errorf("Expected track to be added, got:\n%s", out)
	}

	out, err = run(t, "--config", cfg, "--db", db, "index", path)
	if err != nil {
		t.Fatalf("second index failed: %v", err)
	}
	if !strings.Contains(out, "already indexed") {
		t.Errorf("Expected second index to be a no-op, got:\n%s", out)
	}

	out, err = run(t, "--config", cfg, "--db", db, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "Found 1 track(s)") || !strings.Contains(out, `"tone"`) {
		t.Fatalf("Unexpected list output:\n%s", out)
	}
	_, rest, _ := strings.Cut(out, "(ID: ")
	id, _, _ := strings.Cut(rest, ")")

	out, err = run(t, "--config", cfg, "--db", db, "search", path)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, id) {
		t.Errorf("Expected search to find %s, got:\n%s", id, out)
	}

	if _, err = run(t, "--config", cfg, "--db", db, "delete", id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err = run(t, "--config", cfg, "--db", db, "delete", id); err == nil {
		t.Error("Expected deleting a missing track to fail")
	}
}

func TestIndexRejectsTitleForManyFiles(t *testing.T) {
	_, err := run(t, "--config", "", "index", "--title", "x", "a.wav", "b.wav")
	if err == nil || !strings.Contains(err.Error(), "single file") {
		t.Errorf("Expected single file error, got %v", err)
	}
}

func TestSpectrogramCommand(t *testing.T) {
	logger.SetOutput(&bytes.Buffer{})
	path := writeTone(t, "tone.wav", 1000, 1)
	out := filepath.Join(t.TempDir(), "tone.png")

	if _, err := run(t, "--config", "", "spectrogram", "--width", "256", "--height", "64", "-o", out, path); err != nil {
		t.Fatalf("spectrogram failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Expected PNG at %s: %v", out, err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("Output is not a PNG")
	}
}
