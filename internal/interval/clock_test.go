package interval

import (
	"testing"
	"time"
)

func TestKeyForTruncates(t *testing.T) {
	ts := time.Date(2026, 7, 30, 14, 7, 33, 0, time.UTC)
	k := KeyFor(ts)
	want := time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)
	if !k.Start.Equal(want) {
		t.Errorf("KeyFor(%v) = %v, want %v", ts, k.Start, want)
	}
}

func TestKeyForBoundaryBelongsToNext(t *testing.T) {
	ts := time.Date(2026, 7, 30, 14, 15, 0, 0, time.UTC)
	k := KeyFor(ts)
	if !k.Start.Equal(ts) {
		t.Errorf("boundary tick should belong to the interval starting there, got %v", k.Start)
	}
}

func TestEndIsFifteenMinutesLater(t *testing.T) {
	k := Key{Start: time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)}
	want := time.Date(2026, 7, 30, 14, 15, 0, 0, time.UTC)
	if !k.End().Equal(want) {
		t.Errorf("End() = %v, want %v", k.End(), want)
	}
}

func TestClockCurrentAndNext(t *testing.T) {
	fixed := time.Date(2026, 7, 30, 14, 7, 0, 0, time.UTC)
	c := New(func() time.Time { return fixed })

	wantCurrent := time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)
	if !c.Current().Start.Equal(wantCurrent) {
		t.Errorf("Current() = %v, want %v", c.Current().Start, wantCurrent)
	}

	wantNext := time.Date(2026, 7, 30, 14, 15, 0, 0, time.UTC)
	if !c.Next().Start.Equal(wantNext) {
		t.Errorf("Next() = %v, want %v", c.Next().Start, wantNext)
	}
}

func TestClockRunFiresRollover(t *testing.T) {
	start := time.Date(2026, 7, 30, 14, 14, 59, 900_000_000, time.UTC)
	cur := start
	c := New(func() time.Time { return cur })

	fired := make(chan struct{}, 1)
	c.OnRollover(func(prev, next Key) {
		fired <- struct{}{}
	})

	stop := make(chan struct{})
	go c.Run(stop)

	// Run reads the fake clock once to arm a real timer for the 100ms
	// left before the boundary; the clock is not advanced under it.
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("rollover callback never fired")
	}
	close(stop)
}
