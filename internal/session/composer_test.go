package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/lexicard/internal/clock"
	"github.com/conorfennell/lexicard/internal/domain"
)

var now = time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

type poolStore struct {
	due, learning, fresh []domain.ReviewState
	cards                map[string]domain.Card
}

func (p *poolStore) DueStates(ctx context.Context, at time.Time) ([]domain.ReviewState, error) {
	return append([]domain.ReviewState(nil), p.due...), nil
}

func (p *poolStore) LearningStates(ctx context.Context, at time.Time) ([]domain.ReviewState, error) {
	return append([]domain.ReviewState(nil), p.learning...), nil
}

func (p *poolStore) NewStates(ctx context.Context) ([]domain.ReviewState, error) {
	return append([]domain.ReviewState(nil), p.fresh...), nil
}

func (p *poolStore) CardsByIDs(ctx context.Context, ids []string) (map[string]domain.Card, error) {
	out := make(map[string]domain.Card, len(ids))
	for _, id := range ids {
		if c, ok := p.cards[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

// newPoolStore builds pools of the given sizes. Due items are ordered most
// overdue first, as storage returns them.
func newPoolStore(due, learning, fresh int) *poolStore {
	p := &poolStore{cards: make(map[string]domain.Card)}
	add := func(prefix string, i int, s domain.ReviewState) domain.ReviewState {
		id := fmt.Sprintf("%s-%03d", prefix, i)
		s.CardID = id
		p.cards[id] = domain.Card{ID: id, Term: id, Translation: "译" + id}
		return s
	}
	for i := 0; i < due; i++ {
		p.due = append(p.due, add("due", i, domain.ReviewState{
			Ease: 2.5, IntervalDays: 6, Reps: 3, NextReview: now.Add(-time.Duration(due-i) * time.Hour),
		}))
	}
	for i := 0; i < learning; i++ {
		p.learning = append(p.learning, add("learn", i, domain.ReviewState{
			Ease: 2.3, IntervalDays: 1, Reps: 1, NextReview: now.Add(time.Duration(i+1) * time.Hour),
		}))
	}
	for i := 0; i < fresh; i++ {
		p.fresh = append(p.fresh, add("new", i, domain.NewReviewState("", now.Add(-time.Hour))))
	}
	return p
}

func newTestComposer(store Store, seed uint64) *Composer {
	return NewComposer(store, clock.Fixed(now), rand.New(rand.NewPCG(seed, seed))).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func countByPool(items []Item) map[string]int {
	counts := make(map[string]int)
	for _, it := range items {
		prefix, _, _ := strings.Cut(it.Card.ID, "-")
		switch prefix {
		case "due":
			counts["due"]++
		case "learn":
			counts["learning"]++
		case "new":
			counts["new"]++
		}
	}
	return counts
}

func TestQuotasFor(t *testing.T) {
	testCases := []struct {
		n    int
		want Quotas
	}{
		{n: 100, want: Quotas{Due: 60, Learning: 25, New: 15}},
		{n: 20, want: Quotas{Due: 12, Learning: 5, New: 3}},
		{n: 10, want: Quotas{Due: 6, Learning: 3, New: 1}},
		{n: 3, want: Quotas{Due: 2, Learning: 1, New: 0}},
		{n: 2, want: Quotas{Due: 1, Learning: 1, New: 0}},
		{n: 1, want: Quotas{Due: 1, Learning: 0, New: 0}},
		{n: 0, want: Quotas{}},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprint(tc.n), func(t *testing.T) {
			if got := QuotasFor(tc.n); got != tc.want {
				t.Errorf("QuotasFor(%d) = %+v, want %+v", tc.n, got, tc.want)
			}
		})
	}
}

func TestComposeBackfillsFromNewPool(t *testing.T) {
	store := newPoolStore(40, 10, 200)
	c := newTestComposer(store, 1)

	items, err := c.Compose(context.Background(), 100, "")
	if err != nil {
		t.Fatalf("Compose returned an unexpected error: %v", err)
	}
	if len(items) != 100 {
		t.Fatalf("Expected 100 items, got %d", len(items))
	}

	counts := countByPool(items)
	if counts["due"] != 40 || counts["learning"] != 10 || counts["new"] != 50 {
		t.Errorf("Expected 40 due, 10 learning, 50 new, got %v", counts)
	}

	// due items lead, most overdue first
	for i := 0; i < 40; i++ {
		if want := fmt.Sprintf("due-%03d", i); items[i].Card.ID != want {
			t.Fatalf("Expected item %d to be %s, got %s", i, want, items[i].Card.ID)
		}
	}

	seen := make(map[string]bool)
	for _, it := range items {
		if seen[it.Card.ID] {
			t.Fatalf("Card %s selected twice", it.Card.ID)
		}
		seen[it.Card.ID] = true
		if it.State.CardID != it.Card.ID {
			t.Errorf("Item joins state %s with card %s", it.State.CardID, it.Card.ID)
		}
	}
}

func TestComposeRespectsQuotasWhenPoolsAreFull(t *testing.T) {
	store := newPoolStore(50, 50, 50)
	items, err := newTestComposer(store, 7).Compose(context.Background(), 20, "")
	if err != nil {
		t.Fatal(err)
	}
	counts := countByPool(items)
	if counts["due"] != 12 || counts["learning"] != 5 || counts["new"] != 3 {
		t.Errorf("Expected 12 due, 5 learning, 3 new, got %v", counts)
	}
}

func TestComposeDueOverflowBackfillsFirst(t *testing.T) {
	store := newPoolStore(30, 2, 5)
	items, err := newTestComposer(store, 3).Compose(context.Background(), 20, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 20 {
		t.Fatalf("Expected 20 items, got %d", len(items))
	}
	// 12 due + 2 learning + 3 new, then 3 more due from the overflow
	counts := countByPool(items)
	if counts["due"] != 15 || counts["learning"] != 2 || counts["new"] != 3 {
		t.Errorf("Expected 15 due, 2 learning, 3 new, got %v", counts)
	}
	for i, want := range []string{"due-012", "due-013", "due-014"} {
		if got := items[17+i].Card.ID; got != want {
			t.Errorf("Expected backfill item %d to be %s, got %s", i, want, got)
		}
	}
}

func TestComposeSmallStore(t *testing.T) {
	store := newPoolStore(1, 1, 1)
	items, err := newTestComposer(store, 3).Compose(context.Background(), 20, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Errorf("Expected every available item, got %d", len(items))
	}
}

func TestComposeEmptyStore(t *testing.T) {
	items, err := newTestComposer(newPoolStore(0, 0, 0), 1).Compose(context.Background(), 20, "")
	if err != nil {
		t.Fatalf("Expected no error for an empty store, got %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("Expected an empty, non-nil queue, got %v", items)
	}
}

func TestComposeIsReproducibleWithSeed(t *testing.T) {
	store := newPoolStore(5, 20, 40)

	a, err := newTestComposer(store, 42).Compose(context.Background(), 30, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestComposer(store, 42).Compose(context.Background(), 30, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("Expected equal lengths, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Card.ID != b[i].Card.ID || a[i].Mode != b[i].Mode {
			t.Fatalf("Sessions differ at %d: %s/%s vs %s/%s", i, a[i].Card.ID, a[i].Mode, b[i].Card.ID, b[i].Mode)
		}
	}
}

func TestComposeModeAssignment(t *testing.T) {
	store := &poolStore{
		fresh: []domain.ReviewState{
			domain.NewReviewState("full", now),
			domain.NewReviewState("bare", now),
		},
		cards: map[string]domain.Card{
			"full": {ID: "full", Term: "queue", Translation: "队列", Phonetic: "kjuː"},
			"bare": {ID: "bare", Term: "stack"},
		},
	}

	items, err := newTestComposer(store, 9).Compose(context.Background(), 2, domain.ModePhonetic)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	for _, it := range items {
		switch it.Card.ID {
		case "full":
			if it.Mode != domain.ModePhonetic {
				t.Errorf("Expected the preferred phonetic mode, got %s", it.Mode)
			}
		case "bare":
			if it.Mode != domain.ModeListen {
				t.Errorf("Expected a term-only card to fall back to listen, got %s", it.Mode)
			}
		}
	}
}

func TestComposeRandomModeIsSupported(t *testing.T) {
	store := newPoolStore(0, 0, 50)
	items, err := newTestComposer(store, 5).Compose(context.Background(), 50, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range items {
		if !domain.Supports(it.Card, it.Mode) {
			t.Errorf("Card %s assigned unsupported mode %s", it.Card.ID, it.Mode)
		}
		if it.Mode == domain.ModePhonetic {
			t.Errorf("Card %s has no phonetic field but got the phonetic mode", it.Card.ID)
		}
	}
}

func TestItemPrompt(t *testing.T) {
	card := domain.Card{Term: "queue", Translation: "队列", Phonetic: "kjuː"}
	testCases := []struct {
		mode domain.QuizMode
		want string
	}{
		{mode: domain.ModeTermToTranslation, want: "queue"},
		{mode: domain.ModeTranslationToTerm, want: "队列"},
		{mode: domain.ModePhonetic, want: "kjuː"},
		{mode: domain.ModeListen, want: "queue"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.mode), func(t *testing.T) {
			if got := (Item{Card: card, Mode: tc.mode}).Prompt(); got != tc.want {
				t.Errorf("Expected prompt %q, got %q", tc.want, got)
			}
		})
	}
}
