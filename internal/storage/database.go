package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/conorfennell/lexicard/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("not found")

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	// serializes write transactions across imports and grading
	writeMu sync.Mutex
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps SQLite writes serialized and makes :memory:
	// databases behave as one database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const cardColumns = `id, term, normalized_term, translation, digest, phonetic, tags, source, notes, created_at, updated_at`

const stateColumns = `card_id, ease, interval_days, reps, lapses, last_review, next_review, attempts, correct, avg_latency`

// maxInArgs caps the placeholders of one IN (...) list. SQLite rejects
// statements with more than 32766 bound variables.
const maxInArgs = 500

type scanner interface {
	Scan(dest ...any) error
}

// rowidScanner reads a leading rowid column before the wrapped row.
type rowidScanner struct {
	s     scanner
	rowid *int64
}

func (r rowidScanner) Scan(dest ...any) error {
	return r.s.Scan(append([]any{r.rowid}, dest...)...)
}

func scanCard(s scanner) (domain.Card, error) {
	var (
		c                domain.Card
		tags             string
		created, updated int64
	)
	if err := s.Scan(&c.ID, &c.Term, &c.Normalized, &c.Translation, &c.Digest, &c.Phonetic,
		&tags, &c.Source, &c.Notes, &created, &updated); err != nil {
		return domain.Card{}, err
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return domain.Card{}, fmt.Errorf("failed to decode tags for card %s: %w", c.ID, err)
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

func scanState(s scanner) (domain.ReviewState, error) {
	var (
		rs         domain.ReviewState
		lastReview sql.NullInt64
		nextReview int64
	)
	if err := s.Scan(&rs.CardID, &rs.Ease, &rs.IntervalDays, &rs.Reps, &rs.Lapses,
		&lastReview, &nextReview, &rs.Attempts, &rs.Correct, &rs.AvgLatency); err != nil {
		return domain.ReviewState{}, err
	}
	if lastReview.Valid {
		t := fromMillis(lastReview.Int64)
		rs.LastReview = &t
	}
	rs.NextReview = fromMillis(nextReview)
	return rs, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetCard retrieves a card by id.
func (db *DB) GetCard(ctx context.Context, id string) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("card %s: %w", id, ErrNotFound)
		}
		return domain.Card{}, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return c, nil
}

// CardsByIDs retrieves the cards with the given ids, keyed by id.
// Unknown ids are absent from the result.
func (db *DB) CardsByIDs(ctx context.Context, ids []string) (map[string]domain.Card, error) {
	cards := make(map[string]domain.Card, len(ids))
	for chunk := range slices.Chunk(ids, maxInArgs) {
		rows, err := db.conn.QueryContext(ctx,
			`SELECT `+cardColumns+` FROM cards WHERE id IN (`+placeholders(len(chunk))+`)`, stringArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to get cards by id: %w", err)
		}
		for rows.Next() {
			c, err := scanCard(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan card row: %w", err)
			}
			cards[c.ID] = c
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to get cards by id: %w", err)
		}
	}
	return cards, nil
}

// GetReviewState retrieves the review state of a card.
func (db *DB) GetReviewState(ctx context.Context, cardID string) (domain.ReviewState, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM review_states WHERE card_id = ?`, cardID)
	rs, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReviewState{}, fmt.Errorf("review state %s: %w", cardID, ErrNotFound)
		}
		return domain.ReviewState{}, fmt.Errorf("failed to get review state %s: %w", cardID, err)
	}
	return rs, nil
}

// DueStates returns reviewed cards whose next review is at or before now,
// most overdue first.
func (db *DB) DueStates(ctx context.Context, now time.Time) ([]domain.ReviewState, error) {
	return db.queryStates(ctx, `
		SELECT `+stateColumns+` FROM review_states
		WHERE reps > 0 AND next_review <= ?
		ORDER BY next_review, card_id
	`, toMillis(now))
}

// LearningStates returns reviewed cards on a short interval that are not yet due.
func (db *DB) LearningStates(ctx context.Context, now time.Time) ([]domain.ReviewState, error) {
	return db.queryStates(ctx, `
		SELECT `+stateColumns+` FROM review_states
		WHERE reps > 0 AND interval_days <= 2 AND next_review > ?
		ORDER BY card_id
	`, toMillis(now))
}

// NewStates returns cards that have never been reviewed, oldest first.
func (db *DB) NewStates(ctx context.Context) ([]domain.ReviewState, error) {
	return db.queryStates(ctx, `
		SELECT `+stateColumns+` FROM review_states
		WHERE reps = 0
		ORDER BY next_review, card_id
	`)
}

// CountDueBy counts review states whose next review is at or before t.
func (db *DB) CountDueBy(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM review_states WHERE next_review <= ?`, toMillis(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due review states: %w", err)
	}
	return n, nil
}

func (db *DB) queryStates(ctx context.Context, query string, args ...any) ([]domain.ReviewState, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query review states: %w", err)
	}
	defer rows.Close()

	var states []domain.ReviewState
	for rows.Next() {
		rs, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review state row: %w", err)
		}
		states = append(states, rs)
	}
	return states, rows.Err()
}

// RecordReview applies update to the card's stored review state and writes
// the result together with entry in one transaction. The state is read
// inside the transaction, so concurrent sessions grading the same card
// build on each other's progress. It returns the state written.
func (db *DB) RecordReview(ctx context.Context, entry domain.LogEntry, update func(domain.ReviewState) domain.ReviewState) (domain.ReviewState, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReviewState{}, fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanState(tx.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM review_states WHERE card_id = ?`, entry.CardID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReviewState{}, fmt.Errorf("review state %s: %w", entry.CardID, ErrNotFound)
		}
		return domain.ReviewState{}, fmt.Errorf("failed to get review state %s: %w", entry.CardID, err)
	}

	state := update(current)
	state.CardID = current.CardID

	var lastReview sql.NullInt64
	if state.LastReview != nil {
		lastReview = sql.NullInt64{Int64: toMillis(*state.LastReview), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE review_states
		SET ease = ?, interval_days = ?, reps = ?, lapses = ?, last_review = ?, next_review = ?,
		    attempts = ?, correct = ?, avg_latency = ?
		WHERE card_id = ?
	`,
		state.Ease, state.IntervalDays, state.Reps, state.Lapses, lastReview, toMillis(state.NextReview),
		state.Attempts, state.Correct, state.AvgLatency,
		state.CardID,
	); err != nil {
		return domain.ReviewState{}, fmt.Errorf("failed to update review state for card %s: %w", state.CardID, err)
	}

	grade, err := entry.Grade.MarshalText()
	if err != nil {
		return domain.ReviewState{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO log_entries (at, card_id, mode, grade, latency, correct, context)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, toMillis(entry.At), entry.CardID, string(entry.Mode), string(grade), entry.Latency, entry.Correct, entry.Context); err != nil {
		return domain.ReviewState{}, fmt.Errorf("failed to insert log entry for card %s: %w", entry.CardID, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ReviewState{}, fmt.Errorf("failed to commit review for card %s: %w", state.CardID, err)
	}
	return state, nil
}

// LogEntriesSince returns the log entries recorded at or after t, oldest first.
func (db *DB) LogEntriesSince(ctx context.Context, t time.Time) ([]domain.LogEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, at, card_id, mode, grade, latency, correct, context
		FROM log_entries WHERE at >= ?
		ORDER BY at, id
	`, toMillis(t))
	if err != nil {
		return nil, fmt.Errorf("failed to get log entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var (
			e     domain.LogEntry
			at    int64
			mode  string
			grade string
		)
		if err := rows.Scan(&e.ID, &at, &e.CardID, &mode, &grade, &e.Latency, &e.Correct, &e.Context); err != nil {
			return nil, fmt.Errorf("failed to scan log entry row: %w", err)
		}
		e.At = fromMillis(at)
		e.Mode = domain.QuizMode(mode)
		if err := e.Grade.UnmarshalText([]byte(grade)); err != nil {
			return nil, fmt.Errorf("log entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ImportBatches returns the most recent import batch records, newest first.
func (db *DB) ImportBatches(ctx context.Context, limit int) ([]domain.ImportBatchRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source, at, new_count, updated_count, conflict_count, skipped_count, content_hash, notes
		FROM import_batches
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get import batches: %w", err)
	}
	defer rows.Close()

	var records []domain.ImportBatchRecord
	for rows.Next() {
		var (
			r    domain.ImportBatchRecord
			at   int64
			hash sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Source, &at, &r.NewCount, &r.UpdatedCount, &r.ConflictCount,
			&r.SkippedCount, &hash, &r.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan import batch row: %w", err)
		}
		r.At = fromMillis(at)
		r.ContentHash = hash.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastContentHash returns the content hash of the most recent import batch
// from source, or "" if there is none or it was imported without a hash.
func (db *DB) LastContentHash(ctx context.Context, source string) (string, error) {
	var hash sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT content_hash FROM import_batches
		WHERE source = ?
		ORDER BY id DESC
		LIMIT 1
	`, source).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get last content hash for %s: %w", source, err)
	}
	return hash.String, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
