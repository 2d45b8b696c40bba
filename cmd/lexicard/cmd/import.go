package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/importer"
	"github.com/conorfennell/lexicard/internal/parser"
)

var importLabel string

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import tab-separated vocabulary files",
	Long: `Import one or more files of term<TAB>translation<TAB>phonetic<TAB>tags<TAB>notes
lines. Each file is one batch, labelled by its path unless --label is given.

Examples:
  lexicard import week1.tsv
  lexicard import --label travel lists/travel.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importLabel != "" && len(args) > 1 {
			return fmt.Errorf("--label can only be used with a single file")
		}
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rows, err := parser.Parse(bytes.NewReader(content))
			if err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
			label := path
			if importLabel != "" {
				label = importLabel
			}
			report, err := current.importer.Import(cmd.Context(), importer.Batch{Label: label, Rows: rows, Content: content})
			if err != nil {
				return err
			}
			printReport(cmd, report)
		}
		return nil
	},
}

func printReport(cmd *cobra.Command, r domain.ImportReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d new, %d updated, %d conflicts, %d skipped\n",
		r.BatchLabel, r.NewCount, r.UpdatedCount, r.ConflictCount, r.SkippedCount)
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}

func init() {
	importCmd.Flags().StringVar(&importLabel, "label", "", "batch label, defaults to the file path")
	rootCmd.AddCommand(importCmd)
}
