package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beatrec/beatrec/internal/config"
	"github.com/beatrec/beatrec/pkg/beatrec"
	"github.com/beatrec/beatrec/pkg/logger"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tracks in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(_ *config.AppConfig, svc beatrec.Service) error {
				tracks, err := svc.ListTracks()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tracks) == 0 {
					fmt.Fprintln(out, "No tracks in library")
					return nil
				}

				fmt.Fprintf(out, "Found %d track(s):\n\n", len(tracks))
				for i, t := range tracks {
					fmt.Fprintf(out, "%d. %q (ID: %s)\n", i+1, t.Title, t.ID)
					fmt.Fprintf(out, "   URI: %s\n", t.URI)
					if t.DurationMs > 0 {
						duration := t.DurationMs / 1000
						fmt.Fprintf(out, "   Duration: %d:%02d\n", duration/60, duration%60)
					}
				}
				logger.Debugf("Listed %d tracks", len(tracks))
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <track_id>",
		Short: "Remove a track and its chunks from the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(_ *config.AppConfig, svc beatrec.Service) error {
				id := args[0]
				track, err := svc.GetTrack(id)
				if err != nil {
					return fmt.Errorf("track %s: %w", id, err)
				}
				if err := svc.DeleteTrack(id); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Deleted track %q (ID: %s, %d chunks)\n", track.Title, track.ID, track.Chunks)
				logger.Infof("Deleted track %s (%s)", track.ID, track.URI)
				return nil
			})
		},
	}
}
