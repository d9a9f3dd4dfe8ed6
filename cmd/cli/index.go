package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/beatrec/beatrec/internal/audio"
	"github.com/beatrec/beatrec/internal/config"
	"github.com/beatrec/beatrec/pkg/beatrec"
)

func newIndexCmd() *cobra.Command {
	var (
		title      string
		transcode  bool
		sampleRate int
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "index <audio_file>...",
		Short: "Add audio files to the reference library",
		Long: `Segment, embed and store one or more reference tracks.

WAV and MP3 files are decoded directly. With --transcode, any format ffmpeg
understands is first converted to WAV in the temp directory.`,
		Example: `  beatrec index song.wav other.mp3
  beatrec index --transcode --title "Live set" recording.flac`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title != "" && len(args) > 1 {
				return fmt.Errorf("--title can only be used with a single file")
			}
			return withService(func(_ *config.AppConfig, svc beatrec.Service) error {
				var failed int
				for _, path := range args {
					ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
					res, err := indexFile(ctx, svc, path, title, transcode, sampleRate)
					cancel()
					if err != nil {
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "Failed to index %s: %v\n", path, err)
						continue
					}
					status := "added"
					if !res.Created {
						status = "already indexed"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (ID: %s, %d chunks)\n", path, status, res.TrackID, res.Chunks)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d files failed", failed, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Track title (defaults to the file name)")
	cmd.Flags().BoolVar(&transcode, "transcode", false, "Convert the input to WAV with ffmpeg before indexing")
	cmd.Flags().IntVar(&sampleRate, "rate", 44100, "Sample rate used when transcoding")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Timeout per file")
	return cmd
}

func indexFile(ctx context.Context, svc beatrec.Service, path, title string, transcode bool, rate int) (beatrec.IndexResult, error) {
	if transcode || audio.DetectFormat(path) == audio.FormatUnknown {
		return svc.ImportTrack(ctx, path, title, rate)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return beatrec.IndexResult{}, err
	}
	return svc.IndexTrack(ctx, abs, title)
}
