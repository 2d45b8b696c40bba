// Package importer turns raw vocabulary rows into cards, merging duplicates
// inside a batch and reconciling against cards already stored.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/lexicard/internal/clock"
	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/fingerprint"
	"github.com/conorfennell/lexicard/internal/storage"
)

const previewLimit = 20

// WarnNoValidRows is reported when filtering leaves nothing to import.
const WarnNoValidRows = "no valid rows found"

// ErrImportFailed matches every error caused by the storage transaction.
var ErrImportFailed = errors.New("import failed")

// ImportError reports a batch that was rolled back as a whole.
type ImportError struct {
	Label string
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %q rolled back: %v", e.Label, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

func (e *ImportError) Is(target error) bool {
	return target == ErrImportFailed
}

// Store is the storage the importer writes through.
type Store interface {
	InTx(ctx context.Context, fn func(storage.Tx) error) error
}

// Batch is one import request.
type Batch struct {
	Label string
	Rows  []domain.RawRow
	// Content is the raw source the rows were parsed from, used only for the
	// optional provenance hash.
	Content []byte
}

// Importer runs import batches one at a time.
type Importer struct {
	store    Store
	clock    clock.Clock
	hasher   fingerprint.Hasher
	logger   *slog.Logger
	newID    func() string
	validate *validator.Validate

	mu sync.Mutex
}

// Option configures an Importer.
type Option func(*Importer)

// WithHasher enables provenance hashing of batch content.
func WithHasher(h fingerprint.Hasher) Option {
	return func(im *Importer) { im.hasher = h }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// WithIDGenerator replaces the card id generator.
func WithIDGenerator(fn func() string) Option {
	return func(im *Importer) { im.newID = fn }
}

// New creates an Importer writing to store.
func New(store Store, clk clock.Clock, opts ...Option) *Importer {
	im := &Importer{
		store:    store,
		clock:    clk,
		logger:   slog.Default(),
		newID:    uuid.NewString,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import processes one batch. Row problems are counted as skipped and never
// fail the batch. A storage failure rolls back the whole batch and is
// returned as an *ImportError.
func (im *Importer) Import(ctx context.Context, b Batch) (domain.ImportReport, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	now := im.clock.Now()
	report := domain.ImportReport{
		BatchLabel: b.Label,
		Preview:    preview(b.Rows),
		Warnings:   []string{},
	}

	groups := im.group(b.Rows, &report)
	if len(groups) == 0 {
		report.Warnings = append(report.Warnings, WarnNoValidRows)
		im.logger.Info("import skipped, no valid rows", "batch", b.Label, "skipped", report.SkippedCount)
		return report, nil
	}

	contentHash := im.hash(b)

	terms := make([]string, 0, len(groups))
	seen := make(map[string]bool, len(groups))
	for _, g := range groups {
		if !seen[g.fp.Normalized] {
			seen[g.fp.Normalized] = true
			terms = append(terms, g.fp.Normalized)
		}
	}

	var tally counts
	err := im.store.InTx(ctx, func(tx storage.Tx) error {
		tally = counts{}

		existing, err := tx.CardsByNormalizedTerms(ctx, terms)
		if err != nil {
			return err
		}
		byTerm := make(map[string][]domain.Card, len(terms))
		for _, c := range existing {
			byTerm[c.Normalized] = append(byTerm[c.Normalized], c)
		}

		for _, g := range groups {
			senses := byTerm[g.fp.Normalized]

			if i := indexOfDigest(senses, g.fp.Digest); i >= 0 {
				card := g.mergeInto(senses[i], now)
				if err := tx.UpdateCard(ctx, card); err != nil {
					return err
				}
				senses[i] = card
				tally.updated += g.rows
				continue
			}

			card := g.newCard(im.newID(), b.Label, now)
			if len(senses) > 0 {
				card.Tags = fingerprint.MergeTags(card.Tags, []string{domain.PolysemyTag})
				tally.conflict++
			}
			if err := tx.InsertCard(ctx, card, domain.NewReviewState(card.ID, now)); err != nil {
				return err
			}
			byTerm[g.fp.Normalized] = append(senses, card)
			tally.new++
			// further rows merged into this new card count as updates
			tally.updated += g.rows - 1
		}

		_, err = tx.InsertImportBatch(ctx, domain.ImportBatchRecord{
			Source:        b.Label,
			At:            now,
			NewCount:      tally.new,
			UpdatedCount:  tally.updated,
			ConflictCount: tally.conflict,
			SkippedCount:  report.SkippedCount,
			ContentHash:   contentHash,
			Notes:         fmt.Sprintf("%d rows, %d distinct fingerprints", len(b.Rows), len(groups)),
		})
		return err
	})
	if err != nil {
		im.logger.Error("import rolled back", "batch", b.Label, "error", err)
		return domain.ImportReport{
			BatchLabel:   b.Label,
			SkippedCount: report.SkippedCount,
			Preview:      report.Preview,
			Warnings:     report.Warnings,
		}, &ImportError{Label: b.Label, Err: err}
	}

	report.NewCount = tally.new
	report.UpdatedCount = tally.updated
	report.ConflictCount = tally.conflict

	im.logger.Info("import committed",
		"batch", b.Label,
		"new", report.NewCount,
		"updated", report.UpdatedCount,
		"conflicts", report.ConflictCount,
		"skipped", report.SkippedCount,
	)
	return report, nil
}

type counts struct {
	new, updated, conflict int
}

// group filters rows and merges those sharing a fingerprint, keeping the
// order in which fingerprints first appear.
func (im *Importer) group(rows []domain.RawRow, report *domain.ImportReport) []*group {
	var groups []*group
	byFP := make(map[domain.Fingerprint]*group)

	for i, row := range rows {
		normalized := fingerprint.CanonicalTerm(row.Term)
		if strings.TrimSpace(row.Term) == "" || normalized == "" {
			im.logger.Debug("skipping row without a usable term", "row", i, "term", row.Term)
			report.SkippedCount++
			continue
		}
		if err := im.validate.Struct(row); err != nil {
			im.logger.Debug("skipping invalid row", "row", i, "error", err)
			report.SkippedCount++
			continue
		}
		if isHeader(row, normalized) {
			im.logger.Debug("skipping header row", "row", i, "term", row.Term)
			report.SkippedCount++
			continue
		}

		fp := domain.Fingerprint{Normalized: normalized, Digest: fingerprint.Digest(row.Translation)}
		if g, ok := byFP[fp]; ok {
			g.add(row)
			continue
		}
		g := newGroup(fp, row)
		byFP[fp] = g
		groups = append(groups, g)
	}
	return groups
}

func (im *Importer) hash(b Batch) string {
	if im.hasher == nil || len(b.Content) == 0 {
		return ""
	}
	h, err := im.hasher.Hash(b.Content)
	if err != nil {
		im.logger.Warn("content hash unavailable, importing without it", "batch", b.Label, "error", err)
		return ""
	}
	return h
}

func preview(rows []domain.RawRow) []domain.RawRow {
	n := min(len(rows), previewLimit)
	out := make([]domain.RawRow, n)
	copy(out, rows[:n])
	return out
}

func indexOfDigest(cards []domain.Card, digest string) int {
	for i, c := range cards {
		if c.Digest == digest {
			return i
		}
	}
	return -1
}
