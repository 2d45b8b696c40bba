package storage

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/conorfennell/lexicard/internal/domain"
)

// Tx is the set of operations available inside an import transaction.
type Tx interface {
	CardsByNormalizedTerms(ctx context.Context, terms []string) ([]domain.Card, error)
	InsertCard(ctx context.Context, card domain.Card, state domain.ReviewState) error
	UpdateCard(ctx context.Context, card domain.Card) error
	InsertImportBatch(ctx context.Context, rec domain.ImportBatchRecord) (int64, error)
}

// InTx runs fn inside one transaction. If fn returns an error, or the commit
// fails, every write made through the Tx is rolled back.
func (db *DB) InTx(ctx context.Context, fn func(Tx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// tx implements Tx
type tx struct {
	tx *sql.Tx
}

var _ Tx = (*tx)(nil)

// CardsByNormalizedTerms returns every card whose normalized term is one of terms,
// in insertion order. Terms are looked up in chunks to stay under SQLite's
// bound variable limit.
func (t *tx) CardsByNormalizedTerms(ctx context.Context, terms []string) ([]domain.Card, error) {
	type ranked struct {
		rowid int64
		card  domain.Card
	}
	var found []ranked
	for chunk := range slices.Chunk(terms, maxInArgs) {
		rows, err := t.tx.QueryContext(ctx,
			`SELECT rowid, `+cardColumns+` FROM cards WHERE normalized_term IN (`+placeholders(len(chunk))+`)`,
			stringArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to find cards by normalized term: %w", err)
		}
		for rows.Next() {
			var r ranked
			c, err := scanCard(rowidScanner{s: rows, rowid: &r.rowid})
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan card row: %w", err)
			}
			r.card = c
			found = append(found, r)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to find cards by normalized term: %w", err)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}

	slices.SortFunc(found, func(a, b ranked) int { return cmp.Compare(a.rowid, b.rowid) })
	cards := make([]domain.Card, len(found))
	for i, r := range found {
		cards[i] = r.card
	}
	return cards, nil
}

// InsertCard inserts a new card together with its initial review state.
func (t *tx) InsertCard(ctx context.Context, card domain.Card, state domain.ReviewState) error {
	tags, err := encodeTags(card.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags for card %s: %w", card.ID, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID, card.Term, card.Normalized, card.Translation, card.Digest, card.Phonetic,
		tags, card.Source, card.Notes, toMillis(card.CreatedAt), toMillis(card.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}

	var lastReview sql.NullInt64
	if state.LastReview != nil {
		lastReview = sql.NullInt64{Int64: toMillis(*state.LastReview), Valid: true}
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO review_states (`+stateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID, state.Ease, state.IntervalDays, state.Reps, state.Lapses, lastReview,
		toMillis(state.NextReview), state.Attempts, state.Correct, state.AvgLatency,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review state for card %s: %w", card.ID, err)
	}
	return nil
}

// UpdateCard rewrites the mutable fields of an existing card.
func (t *tx) UpdateCard(ctx context.Context, card domain.Card) error {
	tags, err := encodeTags(card.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags for card %s: %w", card.ID, err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cards
		SET translation = ?, phonetic = ?, tags = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, card.Translation, card.Phonetic, tags, card.Notes, toMillis(card.UpdatedAt), card.ID)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", card.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("card %s: %w", card.ID, ErrNotFound)
	}
	return nil
}

// InsertImportBatch appends an import batch record and returns its ID.
func (t *tx) InsertImportBatch(ctx context.Context, rec domain.ImportBatchRecord) (int64, error) {
	var hash sql.NullString
	if rec.ContentHash != "" {
		hash = sql.NullString{String: rec.ContentHash, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO import_batches (source, at, new_count, updated_count, conflict_count, skipped_count, content_hash, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Source, toMillis(rec.At), rec.NewCount, rec.UpdatedCount, rec.ConflictCount, rec.SkippedCount, hash, rec.Notes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert import batch %s: %w", rec.Source, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for import batch %s: %w", rec.Source, err)
	}
	return id, nil
}
