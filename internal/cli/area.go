package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/offline/internal/usecase"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func addAreaFlags(cmd *cobra.Command, zoomRange bool) {
	cmd.Flags().String("bbox", "", `area as "west,south,east,north" in degrees`)
	_ = cmd.MarkFlagRequired("bbox")

	if zoomRange {
		cmd.Flags().Int("min-zoom", 1, "first zoom level")
		cmd.Flags().Int("max-zoom", 18, "last zoom level")
	} else {
		cmd.Flags().Int("zoom", 14, "zoom level")
	}
}

// parseBBox reads "west,south,east,north".
func parseBBox(s string) (tilemath.GeoBounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return tilemath.GeoBounds{}, fmt.Errorf("bbox %q: expected west,south,east,north", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return tilemath.GeoBounds{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}

	b := tilemath.GeoBounds{West: v[0], South: v[1], East: v[2], North: v[3]}
	return b, b.Validate()
}

func areaFromFlags(cmd *cobra.Command) (tilemath.GeoBounds, int, int, error) {
	raw, _ := cmd.Flags().GetString("bbox")
	bounds, err := parseBBox(raw)
	if err != nil {
		return tilemath.GeoBounds{}, 0, 0, err
	}

	if cmd.Flags().Lookup("zoom") != nil {
		z, _ := cmd.Flags().GetInt("zoom")
		return bounds, z, z, tilemath.ValidateZoomRange(z, z)
	}

	minZoom, _ := cmd.Flags().GetInt("min-zoom")
	maxZoom, _ := cmd.Flags().GetInt("max-zoom")
	return bounds, minZoom, maxZoom, tilemath.ValidateZoomRange(minZoom, maxZoom)
}

// progressBar adapts a progress bar to usecase.ProgressFunc.
func progressBar(w io.Writer, total int, description string) (*progressbar.ProgressBar, usecase.ProgressFunc) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(0),
	)

	return bar, func(percent float64, completed, total int) {
		_ = bar.Set(completed)
	}
}
