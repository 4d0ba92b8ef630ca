package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ohenr/internal/enrollment"
	"ohenr/internal/export"
	"ohenr/internal/extract"
	"ohenr/internal/source"
)

func newTidyCmd(a *app) *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "tidy",
		Short: "Reshape and classify wide records written by fetch --wide",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wide, err := export.ReadWide(input)
			if err != nil {
				return err
			}

			records := enrollment.NewClient(a.cfg, a.table, nil, nil, a.log).TidyEnr(wide)

			path := output
			if path == "" {
				path = a.cfg.GetOutputPath(strings.TrimSuffix(baseName(input), "_wide") + "_tidy")
			}

			if err := export.WriteRecords(path, records, a.writeOptions()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Tidied %d wide records into %d records: %s\n", len(wide), len(records), path)

			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Wide records file, JSON or JSON lines (required)")
	cmd.Flags().StringVar(&output, "output", "", "Output file")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func newYearsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "years",
		Short: "Show the published range of school years",
		RunE: func(cmd *cobra.Command, _ []string) error {
			years := enrollment.NewClient(a.cfg, a.table, nil, nil, a.log).AvailableYears()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				return enc.Encode(years)
			}

			missing := make([]string, len(years.Missing))
			for i, y := range years.Missing {
				missing[i] = strconv.Itoa(y)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "📅 %d-%d", years.MinYear, years.MaxYear)

			if len(missing) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (missing: %s)", strings.Join(missing, ", "))
			}

			fmt.Fprintf(cmd.OutOrStdout(), ", modern layout from %d\n", a.cfg.Pipeline.ModernEraStart)

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	var (
		year int
		file string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which columns of an extract resolve to which fields",
		RunE: func(cmd *cobra.Command, _ []string) error {
			grid, _, err := source.NewLocalFetcher(file, a.cfg.Source.SkipRows).FetchGrid(cmd.Context(), year)
			if err != nil {
				return err
			}

			x := extract.New(a.table, extract.WithModernEraStart(a.cfg.Pipeline.ModernEraStart))

			binding, err := x.Bind(grid.Columns, year)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), export.ColumnTable(binding))

			if binding.CanSumGrades() {
				fmt.Fprintln(cmd.OutOrStdout(), "\nℹ️  No total column: totals are summed from grade columns")
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "School year end the header belongs to (required)")
	cmd.Flags().StringVar(&file, "file", "", "Extract or header-only file (required)")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func baseName(path string) string {
	name := filepath.Base(path)

	return strings.TrimSuffix(name, filepath.Ext(name))
}
