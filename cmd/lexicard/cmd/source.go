package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/lexicard/internal/storage"
	vocabsync "github.com/conorfennell/lexicard/internal/sync"
)

var sourceCmd = &cobra.Command{
	Use:   "source [add|list|remove]",
	Short: "Manage import sources",
	Long: `Register local directories or git repositories whose .tsv and .txt files
are imported by "lexicard sync".

Examples:
  lexicard source add ./lists
  lexicard source add https://github.com/example/vocab.git
  lexicard source list
  lexicard source remove 2`,
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <path-or-url>",
	Short: "Add a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path, sourceType, err := vocabsync.DetectSourceType(args[0])
		if err != nil {
			return err
		}
		if _, err := current.db.FindSourceByPath(ctx, path); err == nil {
			return fmt.Errorf("source already exists: %s", path)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		id, err := current.db.InsertSource(ctx, path, sourceType)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %d: %s\n", sourceType, id, path)
		return nil
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := current.db.GetAllSources(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(sources) == 0 {
			fmt.Fprintln(out, "No sources configured.")
			return nil
		}
		for _, s := range sources {
			scanned := "never"
			if s.LastScanned != nil {
				scanned = s.LastScanned.Local().Format(time.DateTime)
			}
			fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", s.ID, s.Type, s.Path, scanned)
		}
		return nil
	},
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a source, keeping its cards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid source ID %q", args[0])
		}
		if err := current.db.DeleteSource(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed source %d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceRemoveCmd)
}
