//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/beatrec/beatrec/internal/embedding"
	"github.com/beatrec/beatrec/internal/segmenter"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorTooShort
)

var embedder = embedding.New(embedding.DefaultConfig())

// embedChunks splits audio into fixed windows and embeds each one.
// Arguments: audioArray, sampleRate, channels, [interval], [stride]
// Returns: {error: number, data: array | string}
func embedChunks(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected at least 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float64Array")
	}
	for i := 1; i < len(args) && i < 5; i++ {
		if args[i].Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("argument %d must be a number", i))
		}
	}

	sampleRate := args[1].Int()
	channels := args[2].Int()
	interval := float64(segmenter.DefaultInterval)
	stride := float64(segmenter.DefaultStride)
	if len(args) > 3 {
		interval = args[3].Float()
	}
	if len(args) > 4 {
		stride = args[4].Float()
	}

	if sampleRate <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 || channels > 2 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Channels must be 1 (mono) or 2 (stereo), got: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}

	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float()
	}

	if channels == 2 {
		samples = stereoToMono(samples)
	}

	window := segmenter.Frames(interval, sampleRate)
	step := segmenter.Frames(stride, sampleRate)
	if window <= 0 || step <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, "interval and stride must cover at least one sample")
	}
	if segmenter.NumChunks(len(samples), window, step) == 0 {
		return makeErrorResponse(ErrorTooShort, fmt.Sprintf("audio is shorter than one %.2fs chunk", interval))
	}

	chunks := js.Global().Get("Array").New()
	for i, span := range segmenter.Windows(len(samples), window, step) {
		vec := embedder.Embed(samples[span.Start:span.End])
		values := js.Global().Get("Float32Array").New(len(vec))
		for j, v := range vec {
			values.SetIndex(j, v)
		}

		chunk := js.Global().Get("Object").New()
		chunk.Set("beg_in_ms", int64(span.Start)*1000/int64(sampleRate))
		chunk.Set("end_in_ms", int64(span.End)*1000/int64(sampleRate))
		chunk.Set("vector", values)
		chunks.SetIndex(i, chunk)
	}

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", chunks)
	return result
}

func stereoToMono(stereo []float64) []float64 {
	if len(stereo)%2 != 0 {
		stereo = stereo[:len(stereo)-1]
	}

	mono := make([]float64, len(stereo)/2)
	for i := range mono {
		mono[i] = (stereo[i*2] + stereo[i*2+1]) / 2.0
	}
	return mono
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(method, format string, args ...any) {
		if !console.IsUndefined() {
			console.Call(method, fmt.Sprintf(format, args...))
		}
	}

	js.Global().Set("embedChunks", js.FuncOf(embedChunks))
	logf("log", "beatrec: embedChunks registered (%d bands)", embedder.Dim())

	window := js.Global().Get("window")
	if window.IsUndefined() {
		logf("error", "beatrec: window object is undefined")
	} else {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
	}

	select {}
}
