package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ohenr/internal/enrollment"
	"ohenr/internal/export"
	"ohenr/internal/normalizer"
)

var errNoYears = errors.New("pass --years or both --from and --to")

type fetchOptions struct {
	wide    bool
	noCache bool
	file    string
	output  string
}

func (o *fetchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.wide, "wide", false, "Write wide records instead of tidy classified records")
	cmd.Flags().BoolVar(&o.noCache, "no-cache", false, "Skip the batch cache")
	cmd.Flags().StringVar(&o.file, "file", "", "Read a local extract instead of downloading; {end_year} is expanded")
	cmd.Flags().StringVar(&o.output, "output", "", "Output file (default: output.base_path/enr_<years>_<mode>.<format>)")
}

func (o *fetchOptions) mode() string {
	if o.wide {
		return "wide"
	}

	return "tidy"
}

func (o *fetchOptions) enrOptions() enrollment.Options {
	return enrollment.Options{Tidy: !o.wide, UseCache: !o.noCache}
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		opts fetchOptions
		year int
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and normalize one school year",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeCache := a.newClient(opts.file, !opts.noCache)
			defer closeCache()

			batch, err := client.FetchEnr(cmd.Context(), year, opts.enrOptions())
			if err != nil {
				return err
			}

			path := opts.output
			if path == "" {
				path = a.cfg.GetOutputPath(fmt.Sprintf("enr_%d_%s", year, opts.mode()))
			}

			if err := writeBatches(path, []*enrollment.Batch{batch}, !opts.wide, a.writeOptions()); err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), []*enrollment.Batch{batch}, path)

			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "School year end, e.g. 2024 for 2023-24 (required)")
	_ = cmd.MarkFlagRequired("year")
	opts.bind(cmd)

	return cmd
}

func newFetchMultiCmd(a *app) *cobra.Command {
	var (
		opts     fetchOptions
		years    []int
		from, to int
	)

	cmd := &cobra.Command{
		Use:   "fetch-multi",
		Short: "Fetch and normalize several school years concurrently",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(years) == 0 {
				if from == 0 || to == 0 || from > to {
					return errNoYears
				}

				// a range skips unpublished years; an explicit list does not
				for y := from; y <= to; y++ {
					if a.cfg.Source.Years.IsAvailable(y) {
						years = append(years, y)
					}
				}
			}

			if len(years) == 0 {
				return errNoYears
			}

			client, closeCache := a.newClient(opts.file, !opts.noCache)
			defer closeCache()

			res, err := client.FetchEnrMulti(cmd.Context(), years, opts.enrOptions())
			if err != nil {
				return err
			}

			path := opts.output
			if path == "" {
				path = a.cfg.GetOutputPath(fmt.Sprintf("enr_%d-%d_%s", years[0], years[len(years)-1], opts.mode()))
			}

			if err := writeBatches(path, res.Batches, !opts.wide, a.writeOptions()); err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), res.Batches, path)
			fmt.Fprintf(cmd.OutOrStdout(), "🆔 Run: %s\n", res.RunID)

			return nil
		},
	}

	cmd.Flags().IntSliceVar(&years, "years", nil, "Comma-separated school year ends, e.g. 2019,2020,2022")
	cmd.Flags().IntVar(&from, "from", 0, "First school year end of a range")
	cmd.Flags().IntVar(&to, "to", 0, "Last school year end of a range")
	cmd.MarkFlagsMutuallyExclusive("years", "from")
	cmd.MarkFlagsMutuallyExclusive("years", "to")
	opts.bind(cmd)

	return cmd
}

func writeBatches(path string, batches []*enrollment.Batch, tidy bool, opts export.WriteOptions) error {
	multi := &enrollment.MultiResult{Batches: batches}

	if tidy {
		return export.WriteRecords(path, multi.Records(), opts)
	}

	return export.WriteRecords(path, multi.Wide(), opts)
}

func printSummary(w io.Writer, batches []*enrollment.Batch, path string) {
	reports := make([]normalizer.Report, len(batches))
	records := 0

	for i, b := range batches {
		reports[i] = b.Report
		records += b.Len()

		if b.Cached {
			reports[i].Source += " (cached)"
		}
	}

	fmt.Fprintln(w, export.SummaryTable(reports))

	for _, b := range batches {
		if b.Quality != nil {
			fmt.Fprintf(w, "%d: %s\n", b.EndYear, b.Quality)
		}
	}

	fmt.Fprintf(w, "✅ Wrote %d records to %s\n", records, path)
}
