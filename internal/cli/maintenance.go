package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (o *options) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show what the cache holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.Maintenance.RefreshSnapshot(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tiles: %d\n", stats.TotalTiles)
			fmt.Fprintf(out, "size:  %.2f MB\n", float64(stats.TotalBytes)/(1024*1024))
			if stats.Oldest != nil {
				fmt.Fprintf(out, "oldest: %s\n", stats.Oldest.Format(time.RFC3339))
				fmt.Fprintf(out, "newest: %s\n", stats.Newest.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func (o *options) clearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached tile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("refusing to clear the cache without --yes")
			}

			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Maintenance.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "confirm removal")

	return cmd
}

func (o *options) clearExpiredCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-expired",
		Short: "Remove tiles older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.Close()

			maxAge := s.Maintenance.MaxAge()
			removed, err := s.Maintenance.ClearExpired(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d tiles older than %s\n", removed, maxAge)
			return nil
		},
	}
}

func (o *options) availableCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "available",
		Short: "Check whether an area is fully cached at one zoom level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bounds, zoom, _, err := areaFromFlags(cmd)
			if err != nil {
				return err
			}

			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.Close()

			ok, err := s.Maintenance.AreaAvailable(cmd.Context(), bounds, zoom)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "area is not fully cached at zoom %d\n", zoom)
				return errors.New("area not available offline")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "area is available offline at zoom %d\n", zoom)
			return nil
		},
	}
	addAreaFlags(cmd, false)

	return cmd
}
