package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/conorfennell/lexicard/internal/clock"
	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/session"
)

var practiceSize int

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run a practice session in the terminal",
	Long: `Run a practice session. Press Enter to reveal the answer, then grade
yourself: a(gain), h(ard), g(ood) or e(asy). q quits; attempts already
graded stay recorded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		size := current.cfg.Session.Size
		if practiceSize > 0 {
			size = practiceSize
		}
		items, err := current.composer.Compose(cmd.Context(), size, current.cfg.QuizMode())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "Nothing to practise. Import some vocabulary first.")
			return nil
		}

		sess := session.New(uuid.NewString(), items, current.db, clock.System)
		in := bufio.NewScanner(cmd.InOrStdin())
		for !sess.Done() {
			item, _ := sess.Current()
			fmt.Fprintf(out, "\n[%d left] %s: %s\n", sess.Remaining(), item.Mode, item.Prompt())

			start := time.Now()
			if _, ok := readLine(in); !ok {
				break
			}
			latency := time.Since(start).Seconds()
			if err := sess.Reveal(); err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s\n", answerFor(item))

			g, quit := askGrade(in, out)
			if quit {
				break
			}
			res, err := sess.Grade(cmd.Context(), g, latency)
			if err != nil {
				return err
			}
			if res.Requeued {
				fmt.Fprintln(out, "  (it will come back shortly)")
			}
		}
		fmt.Fprintf(out, "\nGraded %d attempts.\n", sess.Graded())
		return nil
	},
}

func askGrade(in *bufio.Scanner, out io.Writer) (domain.Grade, bool) {
	for {
		fmt.Fprint(out, "  grade [a/h/g/e, q to quit]: ")
		line, ok := readLine(in)
		if !ok {
			return 0, true
		}
		switch strings.ToLower(line) {
		case "q", "quit":
			return 0, true
		case "a":
			return domain.Again, false
		case "h":
			return domain.Hard, false
		case "g":
			return domain.Good, false
		case "e":
			return domain.Easy, false
		}
		if g, err := domain.ParseGrade(line); err == nil {
			return g, false
		}
	}
}

func readLine(in *bufio.Scanner) (string, bool) {
	if !in.Scan() {
		return "", false
	}
	return strings.TrimSpace(in.Text()), true
}

func answerFor(item session.Item) string {
	parts := []string{item.Card.Term}
	if item.Card.Phonetic != "" {
		parts = append(parts, "/"+item.Card.Phonetic+"/")
	}
	if item.Card.Translation != "" {
		parts = append(parts, item.Card.Translation)
	}
	return strings.Join(parts, "  ")
}

func init() {
	practiceCmd.Flags().IntVar(&practiceSize, "size", 0, "number of items, defaults to session.size")
	rootCmd.AddCommand(practiceCmd)
}
