// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/entity-eval/internal/results"
	"github.com/pdiddy/entity-eval/pkg/types"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect stored evaluation results (summary, export)",
	Long: `Results reads the SQLite results database written by evaluate. Use
subcommands to print aggregate metrics per category or export every row.
Both work while an evaluate run is writing to the same directory.`,
}

// --- summary subcommand ---

var resultsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print aggregate accuracy and hallucination rate per category",
	Long: `Summary aggregates the stored results of each category. Accuracy is
the sum of exact matches over the sum of ground-truth sizes; cases whose
extraction was exhausted or failed are counted but excluded from the
metrics.`,
	RunE: runResultsSummary,
}

func runResultsSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var cat types.Category
	if c, _ := cmd.Flags().GetString("category"); c != "" && c != "all" {
		if cat, err = types.ParseCategory(c); err != nil {
			return err
		}
	}

	store, err := results.OpenReadOnly(cfg.Results)
	if err != nil {
		return err
	}
	defer store.Close()

	sums, err := store.Summary(context.Background(), cat)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatSummary(os.Stdout, sums, jsonOutput)
}

func formatSummary(w io.Writer, sums []results.CategorySummary, jsonOutput bool) error {
	if jsonOutput {
		type row struct {
			results.CategorySummary
			Accuracy          *float64 `json:"accuracy"`
			PotentialAccuracy *float64 `json:"potential_accuracy"`
			HallucinationRate *float64 `json:"hallucination_rate"`
			MeanTryCount      *float64 `json:"mean_try_count"`
		}
		out := make([]row, 0, len(sums))
		for _, s := range sums {
			out = append(out, row{
				CategorySummary:   s,
				Accuracy:          optional(s.Accuracy()),
				PotentialAccuracy: optional(s.PotentialAccuracy()),
				HallucinationRate: optional(s.HallucinationRate()),
				MeanTryCount:      optional(s.MeanTryCount()),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(sums) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-14s  %5s  %6s  %9s  %6s  %8s  %9s  %13s  %5s\n",
		"Category", "Cases", "Scored", "Exhausted", "Failed", "Accuracy", "Potential", "Hallucination", "Tries")
	fmt.Fprintln(w, strings.Repeat("-", 94))

	for _, s := range sums {
		fmt.Fprintf(w, "%-14s  %5d  %6d  %9d  %6d  %8s  %9s  %13s  %5s\n",
			s.Category, s.Cases, s.Scored, s.Exhausted, s.Failed,
			percent(s.Accuracy()), percent(s.PotentialAccuracy()),
			percent(s.HallucinationRate()), decimal(s.MeanTryCount()))
	}
	return nil
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func percent(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}

func decimal(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

// --- export subcommand ---

var resultsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored results to YAML or JSON",
	Long: `Export writes every stored result row, with its match records and
unmatched extractions, to export.yaml or export.json in the results
directory. Use --category or --case for a partial export.`,
	RunE: runResultsExport,
}

func runResultsExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	caseID, _ := cmd.Flags().GetString("case")
	opts := results.QueryOptions{CaseID: caseID, Details: true}
	if c, _ := cmd.Flags().GetString("category"); c != "" && c != "all" {
		if opts.Category, err = types.ParseCategory(c); err != nil {
			return err
		}
	}

	store, err := results.OpenReadOnly(cfg.Results)
	if err != nil {
		return err
	}
	defer store.Close()

	var path string
	switch format {
	case "yaml", "":
		path, err = store.ExportYAML(context.Background(), opts)
	case "json":
		path, err = store.ExportJSON(context.Background(), opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}

	fmt.Println("Exported to", path)
	return nil
}

func init() {
	resultsCmd.PersistentFlags().String("category", "all", "restrict to one category")

	resultsSummaryCmd.Flags().Bool("json", false, "output the summary as JSON")

	resultsExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	resultsExportCmd.Flags().String("case", "", "export only this case id")

	resultsCmd.AddCommand(resultsSummaryCmd)
	resultsCmd.AddCommand(resultsExportCmd)

	rootCmd.AddCommand(resultsCmd)
}
