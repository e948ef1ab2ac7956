package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jaennil/guide_helper/backend/offline/internal/usecase"
	"github.com/jaennil/guide_helper/backend/offline/pkg/mapfile"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	"github.com/spf13/cobra"
)

func (o *options) exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the cached tiles of an area to a map file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bounds, minZoom, maxZoom, err := areaFromFlags(cmd)
			if err != nil {
				return err
			}

			name, _ := cmd.Flags().GetString("name")
			output, _ := cmd.Flags().GetString("output")
			rawFormat, _ := cmd.Flags().GetString("format")
			format, err := mapfile.ParseFormat(rawFormat)
			if err != nil {
				return err
			}

			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.Close()

			estimate, err := s.MapFile.EstimateExport(bounds, minZoom, maxZoom)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "up to %d tiles, about %.1f MB\n", estimate.TileCount, estimate.EstimatedMB)

			bar, onProgress := progressBar(cmd.ErrOrStderr(), tilemath.CountForBounds(bounds, minZoom, maxZoom), "Exporting tiles")
			res, err := s.MapFile.ExportArea(cmd.Context(), usecase.ExportOptions{
				Bounds:  bounds,
				MinZoom: minZoom,
				MaxZoom: maxZoom,
				Format:  format,
				Name:    name,
			}, onProgress)
			if err != nil {
				return err
			}
			_ = bar.Finish()

			if output == "" {
				output = res.FileName
			}
			if err := os.WriteFile(output, res.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write map file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d tiles to %s\n", res.Document.Metadata.TileCount, output)
			return nil
		},
	}
	addAreaFlags(cmd, true)
	cmd.Flags().String("name", "", "map name (default offline_map_<unix millis>)")
	cmd.Flags().StringP("output", "o", "", "output file (default <name>.<format>)")
	cmd.Flags().String("format", string(mapfile.FormatJSON), "map file format")

	return cmd
}

func (o *options) importCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load a map file into the cache",
		Long: `Load a map file into the cache. Every tile is stored with the current
time as its timestamp. Entries that cannot be decoded are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			rawFormat, _ := cmd.Flags().GetString("format")
			if rawFormat == "" {
				rawFormat = filepath.Ext(path)
			}
			format, err := mapfile.ParseFormat(rawFormat)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read map file: %w", err)
			}

			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.MapFile.ImportDocument(cmd.Context(), data, format, nil)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d tiles (%d skipped)\n", report.Imported, report.Total, report.Skipped)
			return nil
		},
	}
	cmd.Flags().String("format", "", "map file format (default from the file extension)")

	return cmd
}
