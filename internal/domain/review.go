package domain

import "time"

// Initial scheduling values for a freshly created card.
const (
	InitialEase = 2.5
	MinEase     = 1.3
)

// ReviewState holds the scheduling state of exactly one card.
type ReviewState struct {
	CardID       string     `json:"cardId"`
	Ease         float64    `json:"ease"`
	IntervalDays int        `json:"intervalDays"`
	Reps         int        `json:"reps"`
	Lapses       int        `json:"lapses"`
	LastReview   *time.Time `json:"lastReview,omitempty"`
	NextReview   time.Time  `json:"nextReview"`
	Attempts     int        `json:"attempts"`
	Correct      int        `json:"correct"`
	AvgLatency   float64    `json:"avgLatency"` // seconds
}

// NewReviewState returns the state every new card starts with.
func NewReviewState(cardID string, now time.Time) ReviewState {
	return ReviewState{
		CardID:     cardID,
		Ease:       InitialEase,
		NextReview: now,
	}
}

// IsNew reports whether the card has never been reviewed.
func (s ReviewState) IsNew() bool {
	return s.Reps == 0
}

// LogEntry records one graded attempt. Entries are append-only.
type LogEntry struct {
	ID      int64     `json:"id,omitempty"`
	At      time.Time `json:"at"`
	CardID  string    `json:"cardId"`
	Mode    QuizMode  `json:"mode"`
	Grade   Grade     `json:"grade"`
	Latency float64   `json:"latency"` // seconds
	Correct bool      `json:"correct"`
	Context string    `json:"context,omitempty"`
}
