package main

import (
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/selesy/nhschooldata/pkg/nhschooldata"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nhenr",
		Short: "New Hampshire school enrollment data",
		Long: `nhenr downloads the fall enrollment exports published by the New
Hampshire Department of Education and prints them in long (tidy) or
wide form.

Configuration is read from NHSCHOOLDATA_* environment variables.`,
		Version:       nhschooldata.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newYearsCommand())
	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newFetchCommand())
	rootCmd.AddCommand(newCacheCommand())

	return rootCmd
}

func newYearsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "years",
		Short: "List the school years that can be fetched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, y := range nhschooldata.GetAvailableYears() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", y, nhschooldata.SchoolYear(y))
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the library version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), nhschooldata.Version)
		},
	}
}

func newFetchCommand() *cobra.Command {
	var (
		years   []int
		wide    bool
		noCache bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch enrollment for one or more school years",
		Example: `  # Tidy enrollment for the 2023-24 school year
  nhenr fetch --year 2024

  # Wide records for several years as CSV, bypassing the cache
  nhenr fetch --year 2022 --year 2023 --wide --no-cache --format csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(years) == 0 {
				return fmt.Errorf("at least one --year is required")
			}
			out, err := newFormatter(format)
			if err != nil {
				return err
			}

			opts := []nhschooldata.FetchOption{}
			if wide {
				opts = append(opts, nhschooldata.Wide())
			}
			if noCache {
				opts = append(opts, nhschooldata.NoCache())
			}

			start := time.Now()
			enrs, err := nhschooldata.FetchEnrMulti(cmd.Context(), years, opts...)
			if err != nil {
				return err
			}
			log.Debug("Fetch time: ", time.Since(start))

			if wide {
				return out.wide(cmd.OutOrStdout(), enrs)
			}
			return out.tidy(cmd.OutOrStdout(), enrs)
		},
	}

	cmd.Flags().IntSliceVarP(&years, "year", "y", nil, "school end year (repeatable)")
	cmd.Flags().BoolVar(&wide, "wide", false, "print wide records instead of tidy records")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the local cache")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, csv, json or yaml")

	return cmd
}

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local export cache",
	}
	cmd.AddCommand(newCacheStatusCommand())
	cmd.AddCommand(newCacheClearCommand())
	return cmd
}

func newCacheStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List cached school years",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := nhschooldata.DefaultClient()
			if err != nil {
				return err
			}
			if c.Cache() == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "cache disabled")
				return nil
			}
			entries, err := c.Cache().Status(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "cache empty")
				return nil
			}
			w := newTabWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, "YEAR\tBYTES\tFETCHED\tEXPIRED")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", e.EndYear, e.Size, e.FetchedAt.Format(time.RFC3339), strconv.FormatBool(e.Expired))
			}
			return w.Flush()
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	var years []int

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached school years (all when no --year is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := nhschooldata.DefaultClient()
			if err != nil {
				return err
			}
			if c.Cache() == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "cache disabled")
				return nil
			}
			n, err := c.Cache().Clear(cmd.Context(), years...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached year(s)\n", n)
			return nil
		},
	}

	cmd.Flags().IntSliceVarP(&years, "year", "y", nil, "school end year to remove (repeatable)")

	return cmd
}
