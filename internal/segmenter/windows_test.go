package segmenter

import "testing"

func TestNumChunks(t *testing.T) {
	tests := []struct {
		length, window, stride int
		want                   int
	}{
		{529200, 441000, 44100, 3},
		{10, 10, 1, 1},
		{9, 10, 1, 0},
		{0, 10, 1, 0},
		{25, 10, 5, 4},
		{10, 0, 1, 0},
		{10, 5, 0, 0},
	}

	for _, tt := range tests {
		if got := NumChunks(tt.length, tt.window, tt.stride); got != tt.want {
			t.Errorf("NumChunks(%d, %d, %d) = %d, want %d", tt.length, tt.window, tt.stride, got, tt.want)
		}
	}
}

func TestWindowsAscending(t *testing.T) {
	var spans []Span
	for k, s := range Windows(25, 10, 5) {
		if k != len(spans) {
			t.Fatalf("Expected index %d, got %d", len(spans), k)
		}
		spans = append(spans, s)
	}

	want := []Span{{0, 10}, {5, 15}, {10, 20}, {15, 25}}
	if len(spans) != len(want) {
		t.Fatalf("Expected %d spans, got %d", len(want), len(spans))
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("Span %d: expected %v, got %v", i, want[i], spans[i])
		}
	}
}

func TestWindowsEarlyStop(t *testing.T) {
	n := 0
	for range Windows(1000, 10, 1) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("Expected iteration to stop after 3, got %d", n)
	}
}
