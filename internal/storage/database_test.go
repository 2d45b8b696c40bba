package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/lexicard/internal/domain"
)

var now = time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testCard(id, term, normalized, translation, digest string) domain.Card {
	return domain.Card{
		ID:          id,
		Term:        term,
		Normalized:  normalized,
		Translation: translation,
		Digest:      digest,
		Tags:        []string{"travel"},
		Source:      "batch-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// seed inserts cards with the given review states in one transaction.
func seed(t *testing.T, db *DB, states ...domain.ReviewState) {
	t.Helper()
	err := db.InTx(context.Background(), func(tx Tx) error {
		for _, s := range states {
			c := testCard(s.CardID, s.CardID, s.CardID, "", "")
			if err := tx.InsertCard(context.Background(), c, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to seed review states: %v", err)
	}
}

func TestInsertAndLookupCard(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	till := testCard("c1", "till", "till", "直到", "直到")
	cashier := testCard("c2", "Till", "till", "收银台", "收银台")
	cashier.Tags = []string{"shop", domain.PolysemyTag}

	err := db.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertCard(ctx, till, domain.NewReviewState(till.ID, now)); err != nil {
			return err
		}
		return tx.InsertCard(ctx, cashier, domain.NewReviewState(cashier.ID, now))
	})
	if err != nil {
		t.Fatalf("InTx returned an unexpected error: %v", err)
	}

	got, err := db.GetCard(ctx, "c2")
	if err != nil {
		t.Fatalf("GetCard returned an unexpected error: %v", err)
	}
	if got.Term != "Till" || got.Digest != "收银台" || !got.HasTag(domain.PolysemyTag) {
		t.Errorf("Unexpected card %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("Expected created_at %v, got %v", now, got.CreatedAt)
	}

	var senses []domain.Card
	err = db.InTx(ctx, func(tx Tx) error {
		var err error
		senses, err = tx.CardsByNormalizedTerms(ctx, []string{"till", "unknown"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(senses) != 2 || senses[0].ID != "c1" || senses[1].ID != "c2" {
		t.Errorf("Expected both senses in insertion order, got %+v", senses)
	}

	rs, err := db.GetReviewState(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if rs.Ease != domain.InitialEase || rs.Reps != 0 || rs.LastReview != nil {
		t.Errorf("Expected an initial review state, got %+v", rs)
	}
}

func TestLookupManyTerms(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// more terms than SQLite accepts bound variables in one statement
	terms := make([]string, 33000)
	for i := range terms {
		terms[i] = fmt.Sprintf("term-%05d", i)
	}

	// inserted out of term order so the result spans chunks
	cards := []domain.Card{
		testCard("late", "term-32000", "term-32000", "晚", "晚"),
		testCard("early", "term-00001", "term-00001", "早", "早"),
		testCard("early-2", "term-00001", "term-00001", "先", "先"),
	}
	err := db.InTx(ctx, func(tx Tx) error {
		for _, c := range cards {
			if err := tx.InsertCard(ctx, c, domain.NewReviewState(c.ID, now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var found []domain.Card
	err = db.InTx(ctx, func(tx Tx) error {
		var err error
		found, err = tx.CardsByNormalizedTerms(ctx, terms)
		return err
	})
	if err != nil {
		t.Fatalf("CardsByNormalizedTerms returned an unexpected error: %v", err)
	}
	if len(found) != 3 || found[0].ID != "late" || found[1].ID != "early" || found[2].ID != "early-2" {
		t.Errorf("Expected every match in insertion order, got %+v", found)
	}

	ids := append([]string{"late", "early-2"}, terms...)
	byID, err := db.CardsByIDs(ctx, ids)
	if err != nil {
		t.Fatalf("CardsByIDs returned an unexpected error: %v", err)
	}
	if len(byID) != 2 {
		t.Errorf("Expected 2 cards by id, got %d", len(byID))
	}
}

func TestFingerprintIsUnique(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertCard(ctx, testCard("a", "till", "till", "直到", "直到"), domain.NewReviewState("a", now)); err != nil {
			return err
		}
		return tx.InsertCard(ctx, testCard("b", "Till", "till", "直到", "直到"), domain.NewReviewState("b", now))
	})
	if err == nil {
		t.Fatal("Expected a duplicate fingerprint to be rejected")
	}
	if _, err := db.GetCard(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected the whole transaction to roll back, got %v", err)
	}
}

func TestInTxRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seed(t, db, domain.NewReviewState("kept", now))

	boom := errors.New("boom")
	err := db.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertCard(ctx, testCard("lost", "lost", "lost", "", ""), domain.NewReviewState("lost", now)); err != nil {
			return err
		}
		kept := testCard("kept", "kept", "kept", "保留", "保留")
		kept.UpdatedAt = now.Add(time.Hour)
		if err := tx.UpdateCard(ctx, kept); err != nil {
			return err
		}
		if _, err := tx.InsertImportBatch(ctx, domain.ImportBatchRecord{Source: "x", At: now}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the callback error, got %v", err)
	}

	if _, err := db.GetCard(ctx, "lost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected the inserted card to be rolled back, got %v", err)
	}
	kept, err := db.GetCard(ctx, "kept")
	if err != nil {
		t.Fatal(err)
	}
	if kept.Translation != "" {
		t.Errorf("Expected the update to be rolled back, got translation %q", kept.Translation)
	}
	batches, err := db.ImportBatches(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Errorf("Expected no import batch records, got %d", len(batches))
	}
}

func TestUpdateCard(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seed(t, db, domain.NewReviewState("c1", now))

	c := testCard("c1", "c1", "c1", "队列", "队列")
	c.Phonetic = "kjuː"
	c.Tags = []string{"travel", "cs"}
	c.Notes = "first in, first out"
	c.UpdatedAt = now.Add(time.Hour)

	if err := db.InTx(ctx, func(tx Tx) error { return tx.UpdateCard(ctx, c) }); err != nil {
		t.Fatalf("UpdateCard returned an unexpected error: %v", err)
	}
	got, err := db.GetCard(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Phonetic != "kjuː" || got.Notes != c.Notes || len(got.Tags) != 2 || !got.UpdatedAt.Equal(c.UpdatedAt) {
		t.Errorf("Unexpected updated card %+v", got)
	}

	missing := testCard("nope", "nope", "nope", "", "")
	err = db.InTx(ctx, func(tx Tx) error { return tx.UpdateCard(ctx, missing) })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unknown card, got %v", err)
	}
}

func TestPools(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	reviewed := func(id string, interval int, next time.Time) domain.ReviewState {
		last := next.AddDate(0, 0, -interval)
		return domain.ReviewState{CardID: id, Ease: 2.5, IntervalDays: interval, Reps: 2, LastReview: &last, NextReview: next}
	}
	seed(t, db,
		reviewed("due-late", 6, now.Add(-48*time.Hour)),
		reviewed("due-early", 1, now.Add(-time.Hour)),
		reviewed("due-now", 15, now),
		reviewed("learning", 2, now.Add(time.Hour)),
		reviewed("mature", 15, now.AddDate(0, 0, 3)),
		domain.NewReviewState("fresh", now.Add(-time.Minute)),
	)

	due, err := db.DueStates(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	wantDue := []string{"due-late", "due-early", "due-now"}
	if len(due) != len(wantDue) {
		t.Fatalf("Expected %d due states, got %d", len(wantDue), len(due))
	}
	for i, id := range wantDue {
		if due[i].CardID != id {
			t.Errorf("Due pool position %d: expected %s, got %s", i, id, due[i].CardID)
		}
	}

	learning, err := db.LearningStates(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(learning) != 1 || learning[0].CardID != "learning" {
		t.Errorf("Expected only the short-interval card in the learning pool, got %+v", learning)
	}

	fresh, err := db.NewStates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || fresh[0].CardID != "fresh" {
		t.Errorf("Expected only the unreviewed card in the new pool, got %+v", fresh)
	}

	n, err := db.CountDueBy(ctx, now.AddDate(0, 0, 3))
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("Expected 6 states due within three days, got %d", n)
	}
}

func TestRecordReview(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seed(t, db, domain.NewReviewState("c1", now))

	reviewedAt := now.Add(time.Hour)
	entry := domain.LogEntry{
		At: reviewedAt, CardID: "c1", Mode: domain.ModePhonetic, Grade: domain.Hard,
		Latency: 3.5, Correct: true, Context: "session=s1",
	}
	var seen domain.ReviewState
	written, err := db.RecordReview(ctx, entry, func(cur domain.ReviewState) domain.ReviewState {
		seen = cur
		return domain.ReviewState{
			CardID: "c1", Ease: 2.36, IntervalDays: 1, Reps: 1, LastReview: &reviewedAt,
			NextReview: reviewedAt.AddDate(0, 0, 1), Attempts: 1, Correct: 1, AvgLatency: 3.5,
		}
	})
	if err != nil {
		t.Fatalf("RecordReview returned an unexpected error: %v", err)
	}
	if seen.CardID != "c1" || seen.Reps != 0 || seen.Ease != domain.InitialEase {
		t.Errorf("Expected the update to start from the stored state, got %+v", seen)
	}
	if written.Reps != 1 || written.Ease != 2.36 {
		t.Errorf("Unexpected returned state %+v", written)
	}

	got, err := db.GetReviewState(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Ease != 2.36 || got.Reps != 1 || got.LastReview == nil || !got.LastReview.Equal(reviewedAt) {
		t.Errorf("Unexpected stored state %+v", got)
	}

	entries, err := db.LogEntriesSince(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Grade != domain.Hard || e.Mode != domain.ModePhonetic || !e.Correct || e.Context != "session=s1" || !e.At.Equal(reviewedAt) {
		t.Errorf("Unexpected log entry %+v", e)
	}

	later, err := db.LogEntriesSince(ctx, reviewedAt.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(later) != 0 {
		t.Errorf("Expected no entries after the review, got %d", len(later))
	}
}

func TestRecordReviewBuildsOnStoredState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seed(t, db, domain.NewReviewState("c1", now))

	bump := func(cur domain.ReviewState) domain.ReviewState {
		cur.Reps++
		cur.Attempts++
		cur.Correct++
		return cur
	}
	entry := domain.LogEntry{At: now, CardID: "c1", Mode: domain.ModeListen, Grade: domain.Good, Correct: true}
	for i := 0; i < 2; i++ {
		if _, err := db.RecordReview(ctx, entry, bump); err != nil {
			t.Fatalf("RecordReview %d returned an unexpected error: %v", i, err)
		}
	}

	got, err := db.GetReviewState(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Reps != 2 || got.Attempts != 2 || got.Correct != 2 {
		t.Errorf("Expected both reviews to count, got %+v", got)
	}
}

func TestRecordReviewUnknownCard(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	entry := domain.LogEntry{At: now, CardID: "ghost", Mode: domain.ModeListen, Grade: domain.Good, Correct: true}
	called := false
	_, err := db.RecordReview(ctx, entry, func(cur domain.ReviewState) domain.ReviewState {
		called = true
		return cur
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if called {
		t.Error("Expected no update for a card without a review state")
	}
	entries, err := db.LogEntriesSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no orphaned log entry, got %d", len(entries))
	}
}

func TestImportBatches(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, hash := range []string{"", "abc123"} {
		rec := domain.ImportBatchRecord{
			Source: "words.tsv", At: now.Add(time.Duration(i) * time.Minute),
			NewCount: 3, UpdatedCount: 1, ConflictCount: i, SkippedCount: 2, ContentHash: hash,
		}
		err := db.InTx(ctx, func(tx Tx) error {
			_, err := tx.InsertImportBatch(ctx, rec)
			return err
		})
		if err != nil {
			t.Fatalf("InsertImportBatch returned an unexpected error: %v", err)
		}
	}

	batches, err := db.ImportBatches(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(batches))
	}
	if batches[0].ContentHash != "abc123" || batches[0].ConflictCount != 1 {
		t.Errorf("Expected the newest batch first, got %+v", batches[0])
	}
	if batches[1].ContentHash != "" {
		t.Errorf("Expected a missing hash to read back empty, got %q", batches[1].ContentHash)
	}

	hash, err := db.LastContentHash(ctx, "words.tsv")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "abc123" {
		t.Errorf("Expected the latest batch's hash, got %q", hash)
	}
	if hash, err := db.LastContentHash(ctx, "other.tsv"); err != nil || hash != "" {
		t.Errorf("Expected no hash for an unknown source, got %q (%v)", hash, err)
	}

	limited, err := db.ImportBatches(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected the limit to apply, got %d", len(limited))
	}
}
