package verify

import (
	"testing"
	"time"
)

func guardAt(perMinute, perDay int, at time.Time) *BudgetGuard {
	g := NewBudgetGuard(perMinute, perDay)
	g.now = func() time.Time { return at }
	return g
}

func TestBudgetGuard_MinuteCeiling(t *testing.T) {
	const ceiling = 4
	g := guardAt(ceiling, 0, time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC))
	for i := 0; i < ceiling; i++ {
		if !g.Allow() {
			t.Fatalf("call %d denied under ceiling %d", i+1, ceiling)
		}
	}
	if g.Allow() {
		t.Fatalf("call %d allowed over ceiling %d", ceiling+1, ceiling)
	}
}

func TestBudgetGuard_MinuteRollover(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 30, 59, 0, time.UTC)
	g := guardAt(1, 0, at)
	if !g.Allow() || g.Allow() {
		t.Fatal("first call must pass, second must be denied")
	}

	at = at.Add(time.Second) // 10:31, new minute window
	g.now = func() time.Time { return at }
	if !g.Allow() {
		t.Error("minute rollover must reset the counter")
	}
	if g.Allow() {
		t.Error("counter must reset exactly once per rollover")
	}
}

func TestBudgetGuard_DayCeilingSurvivesMinuteRollover(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	g := guardAt(0, 2, at)
	if !g.Allow() || !g.Allow() {
		t.Fatal("day budget of 2 must admit two calls")
	}

	at = at.Add(time.Minute)
	g.now = func() time.Time { return at }
	if g.Allow() {
		t.Error("day counter must not reset on a minute boundary")
	}

	at = at.Add(24 * time.Hour)
	g.now = func() time.Time { return at }
	if !g.Allow() {
		t.Error("day rollover must reset the day counter")
	}
}

func TestBudgetGuard_ZeroMeansUnlimited(t *testing.T) {
	g := guardAt(0, 0, time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC))
	for i := 0; i < 1000; i++ {
		if !g.Allow() {
			t.Fatalf("unlimited guard denied call %d", i+1)
		}
	}
}

func TestBudgetGuard_Reset(t *testing.T) {
	g := guardAt(1, 1, time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC))
	if !g.Allow() || g.Allow() {
		t.Fatal("setup")
	}
	g.Reset()
	if !g.Allow() {
		t.Error("reset guard must admit again")
	}
}
