package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/beatrec/beatrec/internal/audio"
	"github.com/beatrec/beatrec/internal/segmenter"
)

func newSegmentCmd() *cobra.Command {
	var interval, stride float64

	cmd := &cobra.Command{
		Use:     "segment <audio_file>",
		Short:   "Print the chunk windows an audio file is split into",
		Example: "  beatrec segment --interval 10 --stride 1 song.wav",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if interval == 0 {
				interval = cfg.Segmenter.Interval
			}
			if stride == 0 {
				stride = cfg.Segmenter.Stride
			}

			samples, rate, err := audio.Load(args[0])
			if err != nil {
				return err
			}
			window := segmenter.Frames(interval, rate)
			step := segmenter.Frames(stride, rate)
			if window <= 0 || step <= 0 {
				return fmt.Errorf("interval and stride must cover at least one sample at %d Hz", rate)
			}

			out := cmd.OutOrStdout()
			n := segmenter.NumChunks(len(samples), window, step)
			fmt.Fprintf(out, "%s: %d samples at %d Hz, window %d, stride %d, %d chunks\n\n",
				args[0], len(samples), rate, window, step, n)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tSTART\tEND\tBEGIN\tEND")
			for i, span := range segmenter.Windows(len(samples), window, step) {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\n", i, span.Start, span.End,
					formatMs(int64(span.Start)*1000/int64(rate)), formatMs(int64(span.End)*1000/int64(rate)))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Float64Var(&interval, "interval", 0, "Chunk length in seconds (default from config)")
	cmd.Flags().Float64Var(&stride, "stride", 0, "Chunk stride in seconds (default from config)")
	return cmd
}
