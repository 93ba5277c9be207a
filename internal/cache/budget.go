package cache

import (
	"sync"
	"time"

	"mybk-gateway/internal/logger"
)

// Budget is the process-wide daily command counter guarding the shared
// store. The circuit opens once usage crosses threshold*limit and
// closes only when the calendar day rolls over. Counts are a soft
// protective threshold, not a hard quota.
type Budget struct {
	mu        sync.Mutex
	limit     int
	threshold float64

	used int
	day  string
	open bool

	now func() time.Time
}

func NewBudget(limit int, threshold float64) *Budget {
	b := &Budget{
		limit:     limit,
		threshold: threshold,
		now:       time.Now,
	}
	b.day = b.now().Format("2006-01-02")
	return b
}

// SetClock replaces the wall clock, for tests.
func (b *Budget) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Allow reports whether the circuit is closed, resetting first if the
// day changed.
func (b *Budget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return !b.open
}

// Record counts n store commands and trips the circuit once the
// threshold fraction of the daily limit is crossed.
func (b *Budget) Record(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	b.used += n
	if !b.open && float64(b.used) >= b.threshold*float64(b.limit) {
		b.open = true
		logger.Warn("command budget threshold crossed, circuit open until day rollover", map[string]any{
			"used":  b.used,
			"limit": b.limit,
		})
	}
}

// Reset zeroes the counter and closes the circuit for the given day
// marker. Exposed so tests can simulate rollover deterministically.
func (b *Budget) Reset(day string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked(day)
}

// Used returns the current count, after a rollover check.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.used
}

func (b *Budget) rollover() {
	if day := b.now().Format("2006-01-02"); day != b.day {
		b.resetLocked(day)
	}
}

func (b *Budget) resetLocked(day string) {
	b.day = day
	b.used = 0
	b.open = false
}
