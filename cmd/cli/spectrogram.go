package main

import (
	"fmt"
	"image"
	"image/draw"
	"path/filepath"

	"github.com/eligwz/spectrogram"
	"github.com/spf13/cobra"

	"github.com/beatrec/beatrec/internal/audio"
)

func newSpectrogramCmd() *cobra.Command {
	var (
		output string
		width  int
		height int
		log10  bool
	)

	cmd := &cobra.Command{
		Use:     "spectrogram <audio_file>",
		Short:   "Render an audio file as a PNG spectrogram",
		Example: "  beatrec spectrogram -o song.png song.wav",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, rate, err := audio.Load(args[0])
			if err != nil {
				return err
			}
			if len(samples) == 0 {
				return fmt.Errorf("%s contains no samples", args[0])
			}
			if output == "" {
				output = filepath.Base(args[0]) + ".png"
			}

			img := spectrogram.NewImage128(image.Rect(0, 0, width, height))
			black := spectrogram.ParseColor("000000")
			draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

			// Hamming window, FFT, magnitude
			spectrogram.Drawfft(img, samples, uint32(rate), uint32(height), false, false, true, log10)

			if err := spectrogram.SavePng(img, output); err != nil {
				return fmt.Errorf("saving %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved spectrogram to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PNG path (default <input>.png)")
	cmd.Flags().IntVar(&width, "width", 2048, "Image width in pixels")
	cmd.Flags().IntVar(&height, "height", 512, "Image height in pixels, also the number of frequency bins")
	cmd.Flags().BoolVar(&log10, "log", false, "Use a log10 magnitude scale")
	return cmd
}
