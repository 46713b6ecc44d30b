package verify

import (
	"sync"
	"time"
)

// BudgetGuard is a two-window call counter: one ceiling per UTC minute, one
// per UTC day, zero meaning unlimited. Allow reads, compares, and increments
// under one lock so the ceiling is enforced exactly. Counters reset when
// their wall-clock window rolls over.
type BudgetGuard struct {
	mu sync.Mutex

	maxPerMinute int
	maxPerDay    int

	minuteKey   string
	minuteCount int
	dayKey      string
	dayCount    int

	now func() time.Time
}

// NewBudgetGuard builds a guard with the given ceilings (0 = unlimited).
func NewBudgetGuard(perMinute, perDay int) *BudgetGuard {
	return &BudgetGuard{maxPerMinute: perMinute, maxPerDay: perDay, now: time.Now}
}

// Allow admits a call if both windows are under their ceilings, then
// increments both counters.
func (g *BudgetGuard) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	minuteKey := now.Format("2006-01-02T15:04")
	dayKey := now.Format("2006-01-02")

	if minuteKey != g.minuteKey {
		g.minuteKey = minuteKey
		g.minuteCount = 0
	}
	if dayKey != g.dayKey {
		g.dayKey = dayKey
		g.dayCount = 0
	}

	if g.maxPerMinute > 0 && g.minuteCount >= g.maxPerMinute {
		return false
	}
	if g.maxPerDay > 0 && g.dayCount >= g.maxPerDay {
		return false
	}
	g.minuteCount++
	g.dayCount++
	return true
}

// Reset clears both counters and windows. Test isolation hook.
func (g *BudgetGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.minuteKey, g.dayKey = "", ""
	g.minuteCount, g.dayCount = 0, 0
}
