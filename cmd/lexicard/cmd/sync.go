package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import every file of the registered sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := current.syncer.Run(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range res.Reports {
			printReport(cmd, r)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Synced %d sources, %d files (%d unchanged), %d errors.\n",
			res.Sources, res.Files, res.Unchanged, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(out, "- %s\n", e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
