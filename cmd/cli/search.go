package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/beatrec/beatrec/internal/audio"
	"github.com/beatrec/beatrec/internal/config"
	"github.com/beatrec/beatrec/internal/model"
	"github.com/beatrec/beatrec/pkg/beatrec"
	"github.com/beatrec/beatrec/pkg/client"
)

func newSearchCmd() *cobra.Command {
	var (
		interval float64
		stride   float64
		limit    int
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:     "search <audio_file>",
		Short:   "Rank library tracks by similarity to an audio file",
		Example: "  beatrec search --interval 5 --stride 2 clip.wav",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(_ *config.AppConfig, svc beatrec.Service) error {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}

				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()

				matches, err := svc.SearchFile(ctx, abs, beatrec.SearchParams{
					Interval:  interval,
					Stride:    stride,
					Traversal: model.TraversalRoot,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				printMatches(cmd.OutOrStdout(), matches)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&interval, "interval", 0, "Chunk length in seconds (default from config)")
	cmd.Flags().Float64Var(&stride, "stride", 0, "Chunk stride in seconds (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of tracks to print")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Search timeout")
	return cmd
}

func printMatches(w io.Writer, matches []beatrec.TrackMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matches found")
		return
	}
	fmt.Fprintf(w, "Found %d match(es):\n\n", len(matches))
	for i, m := range matches {
		fmt.Fprintf(w, "%d. %s\n", i+1, m.URI)
		fmt.Fprintf(w, "   ID: %s | Distance: %.4f | Chunk: %s-%s\n",
			m.TrackID, m.Score, formatMs(m.TimeRange.BeginMs), formatMs(m.TimeRange.EndMs))
	}
}

func formatMs(ms int64) string {
	s := ms / 1000
	return fmt.Sprintf("%d:%02d.%03d", s/60, s%60, ms%1000)
}

func newQueryCmd() *cobra.Command {
	var (
		serverURL string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:     "query <audio_file>",
		Short:   "Search an audio file against a running beatrec server",
		Example: "  beatrec query --server http://localhost:8080 clip.wav",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if audio.DetectFormat(args[0]) != audio.FormatWAV {
				return fmt.Errorf("query only supports .wav input, transcode %s first", args[0])
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c := client.New(serverURL, client.WithTempDir(cfg.Storage.TempDir))
			matches := c.GetMatches(ctx, data)
			w := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(w, "No matches found")
				return nil
			}
			for i, m := range matches {
				fmt.Fprintf(w, "%d. %s\n   ID: %s | Distance: %.4f | Chunk: %s-%s\n",
					i+1, m.URI, m.ID, m.Score, formatMs(m.BeginMs), formatMs(m.EndMs))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", getEnvOrDefault("BEATREC_SERVER", "http://localhost:8080"), "Server base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout")
	return cmd
}
