// Command beatrec is the command line front end of the reference library.
//
// Usage:
//
//	beatrec [flags] <command> [args]
//
// Commands:
//
//	index        - Segment, embed and store reference tracks
//	search       - Rank library tracks against a local audio file
//	query        - Ask a running server to rank an audio file
//	segment      - Print the chunk windows a file would be split into
//	list         - List the tracks in the library
//	delete       - Remove a track and its chunks
//	spectrogram  - Render a WAV file as a PNG spectrogram
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
