// Package stats rolls attempt logs and review states up into practice
// summaries.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/lexicard/internal/clock"
	"github.com/conorfennell/lexicard/internal/domain"
)

// Windows are the lookback periods, in days, summarised by Compute.
var Windows = []int{7, 30, 90}

const trendDays = 7

// Store is the read side of storage the aggregator needs.
type Store interface {
	LogEntriesSince(ctx context.Context, t time.Time) ([]domain.LogEntry, error)
	CountDueBy(ctx context.Context, t time.Time) (int, error)
}

// Window summarises the attempts of one lookback period.
type Window struct {
	Days     int     `json:"days"`
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy int     `json:"accuracy"`
	Seconds  float64 `json:"seconds"`
}

// Day is one point of the daily trend. Due is a projection: the number of
// review states scheduled at or before the end of the day.
type Day struct {
	Date     time.Time `json:"date"`
	Attempts int       `json:"attempts"`
	Correct  int       `json:"correct"`
	Seconds  float64   `json:"seconds"`
	Due      int       `json:"due"`
}

// Summary is the full rollup.
type Summary struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Windows     []Window  `json:"windows"`
	Trend       []Day     `json:"trend"`
}

// Aggregator computes summaries against a store.
type Aggregator struct {
	store Store
	clock clock.Clock
}

func NewAggregator(store Store, clk clock.Clock) *Aggregator {
	return &Aggregator{store: store, clock: clk}
}

// Compute builds the window rollups and a trend of the last seven days,
// oldest first. Days are calendar days in the clock's location.
func (a *Aggregator) Compute(ctx context.Context) (Summary, error) {
	now := a.clock.Now()
	longest := Windows[len(Windows)-1]

	entries, err := a.store.LogEntriesSince(ctx, now.AddDate(0, 0, -longest))
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load log entries: %w", err)
	}

	summary := Summary{GeneratedAt: now}
	for _, days := range Windows {
		w := Window{Days: days}
		since := now.AddDate(0, 0, -days)
		for _, e := range entries {
			if e.At.Before(since) || e.At.After(now) {
				continue
			}
			w.Attempts++
			if e.Correct {
				w.Correct++
			}
			w.Seconds += e.Latency
		}
		w.Accuracy = Accuracy(w.Correct, w.Attempts)
		summary.Windows = append(summary.Windows, w)
	}

	today := startOfDay(now)
	for i := trendDays - 1; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		end := start.AddDate(0, 0, 1)
		d := Day{Date: start}
		for _, e := range entries {
			if e.At.Before(start) || !e.At.Before(end) {
				continue
			}
			d.Attempts++
			if e.Correct {
				d.Correct++
			}
			d.Seconds += e.Latency
		}
		// storage keeps millisecond precision
		d.Due, err = a.store.CountDueBy(ctx, end.Add(-time.Millisecond))
		if err != nil {
			return Summary{}, fmt.Errorf("failed to project due reviews for %s: %w", start.Format(time.DateOnly), err)
		}
		summary.Trend = append(summary.Trend, d)
	}
	return summary, nil
}

// Accuracy is the rounded percentage of correct attempts, zero when there
// were none.
func Accuracy(correct, attempts int) int {
	if attempts == 0 {
		return 0
	}
	return int(math.Round(float64(correct) * 100 / float64(attempts)))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
