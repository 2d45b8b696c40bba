package cmd

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/lexicard/internal/clock"
	"github.com/conorfennell/lexicard/internal/config"
	"github.com/conorfennell/lexicard/internal/fingerprint"
	"github.com/conorfennell/lexicard/internal/importer"
	"github.com/conorfennell/lexicard/internal/session"
	"github.com/conorfennell/lexicard/internal/stats"
	"github.com/conorfennell/lexicard/internal/storage"
	vocabsync "github.com/conorfennell/lexicard/internal/sync"
)

// app holds everything a command needs, built once per invocation.
type app struct {
	cfg      config.Config
	db       *storage.DB
	importer *importer.Importer
	composer *session.Composer
	syncer   *vocabsync.Syncer
	stats    *stats.Aggregator
}

var current *app

var rootCmd = &cobra.Command{
	Use:   "lexicard",
	Short: "Spaced-repetition vocabulary trainer",
	Long: `lexicard imports vocabulary lists, merges duplicate senses of the same
term, and schedules practice sessions with spaced repetition.

Settings come from --config (YAML), LEXICARD_* environment variables and
flags, in increasing precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if current == nil {
			return nil
		}
		return current.db.Close()
	},
}

func newApp(cfg config.Config) (*app, error) {
	logger := cfg.NewLogger(os.Stderr)
	clk := clock.System

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("Database opened", "path", cfg.DB)

	var rng *rand.Rand
	if cfg.Session.Seed != 0 {
		rng = rand.New(rand.NewPCG(cfg.Session.Seed, cfg.Session.Seed))
	}

	imp := importer.New(db, clk,
		importer.WithLogger(logger),
		importer.WithHasher(fingerprint.SHA256Hasher{}),
	)
	return &app{
		cfg:      cfg,
		db:       db,
		importer: imp,
		composer: session.NewComposer(db, clk, rng).WithLogger(logger),
		syncer:   vocabsync.New(db, imp, cfg.ReposDir, clk).WithLogger(logger),
		stats:    stats.NewAggregator(db, clk),
	}, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}
