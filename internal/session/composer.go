// Package session composes practice queues from the scheduling pools and
// runs them one graded item at a time.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/conorfennell/lexicard/internal/clock"
	"github.com/conorfennell/lexicard/internal/domain"
)

// Share of a session drawn from each pool; new cards take the remainder.
const (
	dueShare      = 0.60
	learningShare = 0.25
)

// Store is the read side of storage the composer needs.
type Store interface {
	DueStates(ctx context.Context, now time.Time) ([]domain.ReviewState, error)
	LearningStates(ctx context.Context, now time.Time) ([]domain.ReviewState, error)
	NewStates(ctx context.Context) ([]domain.ReviewState, error)
	CardsByIDs(ctx context.Context, ids []string) (map[string]domain.Card, error)
}

// Item is one entry of a practice queue.
type Item struct {
	Card  domain.Card        `json:"card"`
	State domain.ReviewState `json:"state"`
	Mode  domain.QuizMode    `json:"mode"`
}

// Prompt is the side of the card the learner is asked about in the item's mode.
func (it Item) Prompt() string {
	switch it.Mode {
	case domain.ModeTranslationToTerm:
		return it.Card.Translation
	case domain.ModePhonetic:
		return it.Card.Phonetic
	default:
		return it.Card.Term
	}
}

// Quotas is the target number of items per pool.
type Quotas struct {
	Due      int
	Learning int
	New      int
}

// QuotasFor splits a session of size n: 60% due, 25% learning, the rest new.
// Due and learning quotas are rounded independently.
func QuotasFor(n int) Quotas {
	if n <= 0 {
		return Quotas{}
	}
	due := int(math.Round(float64(n) * dueShare))
	learning := int(math.Round(float64(n) * learningShare))
	return Quotas{Due: due, Learning: learning, New: max(0, n-due-learning)}
}

// Composer builds practice queues.
type Composer struct {
	store  Store
	clock  clock.Clock
	rng    *rand.Rand
	logger *slog.Logger

	mu sync.Mutex // guards rng
}

// NewComposer creates a Composer. rng drives pool shuffling and mode choice;
// pass a seeded generator for reproducible sessions, or nil for entropy.
func NewComposer(store Store, clk clock.Clock, rng *rand.Rand) *Composer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Composer{store: store, clock: clk, rng: rng, logger: slog.Default()}
}

// WithLogger sets the composer's logger.
func (c *Composer) WithLogger(l *slog.Logger) *Composer {
	c.logger = l
	return c
}

// Compose returns up to size items. Each pool contributes up to its quota;
// if that leaves the queue short, unused due, then learning, then new items
// fill it. An empty store yields an empty queue, not an error.
func (c *Composer) Compose(ctx context.Context, size int, preferred domain.QuizMode) ([]Item, error) {
	if size <= 0 {
		return []Item{}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	due, err := c.store.DueStates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load due pool: %w", err)
	}
	learning, err := c.store.LearningStates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load learning pool: %w", err)
	}
	fresh, err := c.store.NewStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load new pool: %w", err)
	}

	c.shuffle(learning)
	c.shuffle(fresh)

	selected := selectStates(QuotasFor(size), size, due, learning, fresh)
	if len(selected) == 0 {
		return []Item{}, nil
	}

	ids := make([]string, len(selected))
	for i, s := range selected {
		ids[i] = s.CardID
	}
	cards, err := c.store.CardsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load session cards: %w", err)
	}

	items := make([]Item, 0, len(selected))
	for _, s := range selected {
		card, ok := cards[s.CardID]
		if !ok {
			c.logger.Warn("review state without card, leaving it out", "card_id", s.CardID)
			continue
		}
		items = append(items, Item{Card: card, State: s, Mode: c.pickMode(card, preferred)})
	}

	c.logger.Debug("session composed",
		"size", size,
		"items", len(items),
		"due_pool", len(due),
		"learning_pool", len(learning),
		"new_pool", len(fresh),
	)
	return items, nil
}

// selectStates takes each pool's quota from the front of the pool, then
// backfills from the leftovers in due, learning, new order.
func selectStates(q Quotas, size int, due, learning, fresh []domain.ReviewState) []domain.ReviewState {
	dueTake, dueRest := split(due, q.Due)
	learnTake, learnRest := split(learning, q.Learning)
	newTake, newRest := split(fresh, q.New)

	selected := make([]domain.ReviewState, 0, size)
	selected = append(selected, dueTake...)
	selected = append(selected, learnTake...)
	selected = append(selected, newTake...)

	for _, rest := range [][]domain.ReviewState{dueRest, learnRest, newRest} {
		if len(selected) >= size {
			break
		}
		n := min(len(rest), size-len(selected))
		selected = append(selected, rest[:n]...)
	}
	return selected
}

func split(pool []domain.ReviewState, n int) (take, rest []domain.ReviewState) {
	n = min(max(n, 0), len(pool))
	return pool[:n], pool[n:]
}

func (c *Composer) shuffle(states []domain.ReviewState) {
	c.rng.Shuffle(len(states), func(i, j int) {
		states[i], states[j] = states[j], states[i]
	})
}

// pickMode honours the preferred mode when the card can back it, otherwise
// picks uniformly among the modes the card supports.
func (c *Composer) pickMode(card domain.Card, preferred domain.QuizMode) domain.QuizMode {
	if preferred != "" && domain.Supports(card, preferred) {
		return preferred
	}
	modes := domain.SupportedModes(card)
	if len(modes) == 0 {
		return domain.ModeTermToTranslation
	}
	return modes[c.rng.IntN(len(modes))]
}
