package cli

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	"github.com/spf13/cobra"
)

func (o *options) downloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download every tile of an area into the cache",
		Long: `Download every tile of an area into the cache. Fresh cached tiles are
kept, missing and expired ones are fetched. A tile that fails to download
is skipped and the download goes on. Ctrl-C cancels after the tile in flight.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bounds, minZoom, maxZoom, err := areaFromFlags(cmd)
			if err != nil {
				return err
			}

			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.Close()

			total := tilemath.CountForBounds(bounds, minZoom, maxZoom)
			bar, onProgress := progressBar(cmd.ErrOrStderr(), total, "Downloading tiles")

			report, err := s.Download.DownloadArea(cmd.Context(), bounds, minZoom, maxZoom, onProgress)
			if err != nil {
				return err
			}
			_ = bar.Finish()

			fmt.Fprintln(cmd.OutOrStdout(), report)
			if report.Canceled {
				return fmt.Errorf("download canceled after %d of %d tiles", report.Completed, report.Total)
			}
			return nil
		},
	}
	addAreaFlags(cmd, true)

	return cmd
}
