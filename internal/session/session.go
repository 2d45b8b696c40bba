package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/conorfennell/lexicard/internal/clock"
	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/schedule"
)

// Items graded "again" come back after this many other items.
const relearnGap = 3

var (
	ErrNotRevealed = errors.New("reveal or submit an answer before grading")
	ErrSessionDone = errors.New("session has no remaining items")
)

// Recorder persists one graded review atomically. update is applied to the
// card's current stored state, not the state captured when the session was
// composed, and the written state is returned.
type Recorder interface {
	RecordReview(ctx context.Context, entry domain.LogEntry, update func(domain.ReviewState) domain.ReviewState) (domain.ReviewState, error)
}

// Result describes one grading action.
type Result struct {
	State    domain.ReviewState `json:"state"`
	Entry    domain.LogEntry    `json:"entry"`
	Requeued bool               `json:"requeued"`
}

// Session is a live practice queue. The head of the queue is the current
// item; grading removes it and, only for "again", reinserts it a few
// positions later. Nothing but graded attempts is persisted.
type Session struct {
	ID string

	mu       sync.Mutex
	queue    []Item
	revealed bool
	graded   int
	recorder Recorder
	clock    clock.Clock
}

// New starts a session over items.
func New(id string, items []Item, recorder Recorder, clk clock.Clock) *Session {
	return &Session{
		ID:       id,
		queue:    append([]Item(nil), items...),
		recorder: recorder,
		clock:    clk,
	}
}

// Current returns the item being asked.
func (s *Session) Current() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Item{}, false
	}
	return s.queue[0], true
}

// Reveal marks the current item's answer as shown, which permits grading.
func (s *Session) Reveal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return ErrSessionDone
	}
	s.revealed = true
	return nil
}

// Grade applies g to the current item. The new review state and its log
// entry are persisted together before the queue changes, so a failed write
// leaves the session where it was.
func (s *Session) Grade(ctx context.Context, g domain.Grade, latency float64) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return Result{}, ErrSessionDone
	}
	if !s.revealed {
		return Result{}, ErrNotRevealed
	}
	if !g.IsValid() {
		return Result{}, fmt.Errorf("%w: %d", domain.ErrInvalidGrade, int(g))
	}
	if latency < 0 {
		latency = 0
	}

	item := s.queue[0]
	now := s.clock.Now()

	entry := domain.LogEntry{
		At:      now,
		CardID:  item.Card.ID,
		Mode:    item.Mode,
		Grade:   g,
		Latency: latency,
		Correct: g.Correct(),
		Context: "session=" + s.ID,
	}
	next, err := s.recorder.RecordReview(ctx, entry, func(current domain.ReviewState) domain.ReviewState {
		updated := schedule.Update(current, g, now)
		return schedule.RecordAttempt(updated, g.Correct(), latency)
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to record review for card %s: %w", item.Card.ID, err)
	}

	s.queue = s.queue[1:]
	s.revealed = false
	s.graded++

	res := Result{State: next, Entry: entry}
	if g == domain.Again {
		item.State = next
		at := min(relearnGap, len(s.queue))
		s.queue = append(s.queue[:at], append([]Item{item}, s.queue[at:]...)...)
		res.Requeued = true
	}
	return res, nil
}

// Revealed reports whether the current item's answer has been shown.
func (s *Session) Revealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

// Remaining is the number of items left in the queue.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Graded is the number of grading actions recorded so far.
func (s *Session) Graded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graded
}

// Done reports whether the queue is exhausted.
func (s *Session) Done() bool {
	return s.Remaining() == 0
}

// Items returns a copy of the remaining queue in order.
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.queue...)
}
