package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show practice statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := current.stats.Compute(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, w := range summary.Windows {
			fmt.Fprintf(out, "Last %d days: %d attempts, %d correct (%d%%), %s practised\n",
				w.Days, w.Attempts, w.Correct, w.Accuracy, seconds(w.Seconds))
		}
		fmt.Fprintln(out, "\nDay         Attempts  Correct  Time      Due")
		for _, d := range summary.Trend {
			fmt.Fprintf(out, "%s  %8d  %7d  %-8s  %d\n",
				d.Date.Format(time.DateOnly), d.Attempts, d.Correct, seconds(d.Seconds), d.Due)
		}
		return nil
	},
}

func seconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Second).String()
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
