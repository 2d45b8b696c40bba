// Package schedule implements the deterministic SM-2 style review update.
package schedule

import (
	"math"
	"time"

	"github.com/conorfennell/lexicard/internal/domain"
)

const day = 24 * time.Hour

// Update returns the review state that follows grading state with g at now.
// It is pure: identical inputs always produce identical output. Attempt
// counters are left untouched; see RecordAttempt.
func Update(state domain.ReviewState, g domain.Grade, now time.Time) domain.ReviewState {
	next := state

	if g == domain.Again {
		next.Lapses++
		next.Reps++
		next.Ease = math.Max(domain.MinEase, state.Ease-0.2)
		next.IntervalDays = 1
	} else {
		next.Ease = nextEase(state.Ease, g.Quality())
		switch state.Reps {
		case 0:
			next.IntervalDays = 1
		case 1:
			next.IntervalDays = 6
		default:
			next.IntervalDays = max(1, int(math.Round(float64(state.IntervalDays)*next.Ease)))
		}
		next.Reps++
	}

	reviewed := now
	next.LastReview = &reviewed
	next.NextReview = now.Add(time.Duration(next.IntervalDays) * day)
	return next
}

// nextEase applies the SM-2 ease adjustment for a successful recall of quality q.
func nextEase(ease float64, q int) float64 {
	miss := float64(5 - q)
	return math.Max(domain.MinEase, ease+0.1-miss*(0.08+miss*0.02))
}

// RecordAttempt folds one graded attempt into the cumulative counters and the
// running average latency.
func RecordAttempt(state domain.ReviewState, correct bool, latency float64) domain.ReviewState {
	next := state
	if latency < 0 {
		latency = 0
	}
	next.AvgLatency = (state.AvgLatency*float64(state.Attempts) + latency) / float64(state.Attempts+1)
	next.Attempts++
	if correct {
		next.Correct++
	}
	return next
}
