package segmenter

import "iter"

// Span is a half-open sample range [Start, End).
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int { return s.End - s.Start }

// NumChunks is the number of full windows of size window, advanced by
// stride, that fit in length samples.
func NumChunks(length, window, stride int) int {
	if window <= 0 || stride <= 0 || length < window {
		return 0
	}
	return (length-window)/stride + 1
}

// Windows yields (k, span) for every full window, in ascending order.
func Windows(length, window, stride int) iter.Seq2[int, Span] {
	n := NumChunks(length, window, stride)
	return func(yield func(int, Span) bool) {
		for k := 0; k < n; k++ {
			start := k * stride
			if !yield(k, Span{Start: start, End: start + window}) {
				return
			}
		}
	}
}
