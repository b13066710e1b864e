// Package interval tracks the 15-minute UTC windows each BTC-direction
// market resolves on and fires rollover callbacks at window boundaries.
package interval

import (
	"sync"
	"time"
)

const windowDuration = 15 * time.Minute

// Key identifies a 15-minute interval by its UTC start time, truncated
// to the window boundary.
type Key struct {
	Start time.Time
}

// String renders the key as its ISO-8601 start timestamp, used in log
// fields.
func (k Key) String() string {
	return k.Start.UTC().Format(time.RFC3339)
}

// End returns the interval's close time.
func (k Key) End() time.Time {
	return k.Start.Add(windowDuration)
}

// KeyFor truncates t down to the 15-minute window containing it. A tick
// landing exactly on a boundary belongs to the interval that starts
// there, not the one that just closed.
func KeyFor(t time.Time) Key {
	t = t.UTC()
	truncated := t.Truncate(windowDuration)
	return Key{Start: truncated}
}

// RolloverFunc is invoked once per boundary crossing, in registration
// order, on a single dispatcher goroutine.
type RolloverFunc func(prev, next Key)

// Clock schedules rollover callbacks and answers "what interval is it
// right now" queries. Safe for concurrent use.
type Clock struct {
	mu        sync.Mutex
	callbacks []RolloverFunc
	now       func() time.Time

	stopCh chan struct{}
	stopOnce sync.Once
}

// New builds a Clock. nowFn is injectable for tests; pass nil to use
// time.Now.
func New(nowFn func() time.Time) *Clock {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Clock{now: nowFn, stopCh: make(chan struct{})}
}

// Current returns the interval containing the current time.
func (c *Clock) Current() Key {
	return KeyFor(c.now())
}

// Next returns the interval immediately following Current.
func (c *Clock) Next() Key {
	return Key{Start: c.Current().Start.Add(windowDuration)}
}

// MsUntil returns the number of milliseconds until endTs, clamped to 0.
func (c *Clock) MsUntil(endTs time.Time) int64 {
	d := endTs.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// OnRollover registers a callback fired once per interval boundary
// crossing. Callbacks run in registration order on the Clock's single
// dispatcher goroutine, mirroring the reference engine's single-consumer
// notification worker (internal/bot/engine.go's notificationWorker).
func (c *Clock) OnRollover(fn RolloverFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// Run blocks, firing OnRollover callbacks at each boundary crossing,
// until stop is closed or Stop is called. Call it from its own goroutine.
func (c *Clock) Run(stop <-chan struct{}) {
	prev := c.Current()
	for {
		next := prev.Start.Add(windowDuration)
		wait := next.Sub(c.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			nextKey := Key{Start: next}
			c.fire(prev, nextKey)
			prev = nextKey
		case <-stop:
			timer.Stop()
			return
		case <-c.stopCh:
			timer.Stop()
			return
		}
	}
}

// Stop halts a running Run loop.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Clock) fire(prev, next Key) {
	c.mu.Lock()
	cbs := make([]RolloverFunc, len(c.callbacks))
	copy(cbs, c.callbacks)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(prev, next)
	}
}
