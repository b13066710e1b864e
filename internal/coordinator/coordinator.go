// Package coordinator owns the WS client instances, the quote cache,
// the active interval mapping, and the rollover schedule: it binds
// subscriptions to the current 15-minute interval and performs the
// cancel-old/subscribe-new rollover sequence.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/btcarb/boxarb/internal/execution"
	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/mapping"
	"github.com/btcarb/boxarb/internal/position"
	"github.com/btcarb/boxarb/internal/quote"
	"github.com/btcarb/boxarb/internal/venue"
)

// State labels the coordinator's own lifecycle, separate from a
// single execution's state machine.
type State int

const (
	StateConnectionState State = iota
	StateQuoteUpdate
	StateRolloverStarted
	StateRolloverCompleted
	StateSubscriptionActive
	StateError
)

// Event is emitted to coordinator subscribers: either a forwarded
// quote update (tagged with the interval it belongs to) or a
// lifecycle transition.
type Event struct {
	State State
	Quote quote.Normalized
	Key   interval.Key
	Err   error
	At    time.Time
}

// CancelOrdersFunc cancels every open order for a venue's old market
// at rollover, injected so the coordinator never depends on the
// executor directly.
type CancelOrdersFunc func(ctx context.Context, v quote.Venue, marketID string) error

// Coordinator wires venue clients to the current interval mapping.
type Coordinator struct {
	clients map[quote.Venue]venue.Client
	store   *mapping.Store
	clock   *interval.Clock
	tracker *position.Tracker
	state   *execution.State
	cancel  CancelOrdersFunc
	log     *zap.Logger

	mu         sync.RWMutex
	quoteCache map[quote.Venue]quote.Normalized
	current    mapping.IntervalMapping

	events chan Event
}

// New builds a Coordinator over the given venue clients.
func New(clients map[quote.Venue]venue.Client, store *mapping.Store, clock *interval.Clock, tracker *position.Tracker, state *execution.State, cancel CancelOrdersFunc, log *zap.Logger) *Coordinator {
	c := &Coordinator{
		clients:    clients,
		store:      store,
		clock:      clock,
		tracker:    tracker,
		state:      state,
		cancel:     cancel,
		log:        log,
		quoteCache: make(map[quote.Venue]quote.Normalized),
		events:     make(chan Event, 1024),
	}
	clock.OnRollover(c.onRollover)
	return c
}

// Events returns the coordinator's subscriber channel.
func (c *Coordinator) Events() <-chan Event { return c.events }

// Start waits for discovery to populate the current interval's
// mapping, subscribes every client to the right market, then forwards
// each client's event stream until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	for v, client := range c.clients {
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("coordinator: connect %s: %w", v, err)
		}
		connectionState.WithLabelValues(string(v)).Set(1)
	}

	key := c.clock.Current()
	if err := c.waitForMapping(ctx, key); err != nil {
		return err
	}
	c.subscribeCurrent(ctx, key)

	var wg sync.WaitGroup
	for v, client := range c.clients {
		wg.Add(1)
		go func(v quote.Venue, client venue.Client) {
			defer wg.Done()
			c.pumpVenueEvents(ctx, v, client)
		}(v, client)
	}
	wg.Wait()
	return nil
}

func (c *Coordinator) waitForMapping(ctx context.Context, key interval.Key) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m, ok := c.store.Get(key); ok && m.IsComplete() {
			c.mu.Lock()
			c.current = m
			c.mu.Unlock()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) subscribeCurrent(ctx context.Context, key interval.Key) {
	m, ok := c.store.Get(key)
	if !ok {
		return
	}
	if client, ok := c.clients[quote.VenueClob]; ok && m.ClobMarketID != "" {
		if err := client.Subscribe(m.ClobMarketID); err != nil {
			c.emit(Event{State: StateError, Err: err, At: time.Now()})
		}
	}
	if client, ok := c.clients[quote.VenueOnchain]; ok && m.OnchainMarketID != "" {
		if err := client.Subscribe(m.OnchainMarketID); err != nil {
			c.emit(Event{State: StateError, Err: err, At: time.Now()})
		}
	}
	c.emit(Event{State: StateSubscriptionActive, Key: key, At: time.Now()})
}

func (c *Coordinator) pumpVenueEvents(ctx context.Context, v quote.Venue, client venue.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			c.handleVenueEvent(v, ev)
		}
	}
}

func (c *Coordinator) handleVenueEvent(v quote.Venue, ev venue.Event) {
	switch ev.Type {
	case venue.EventQuoteUpdate:
		c.mu.Lock()
		c.quoteCache[v] = ev.Quote
		c.mu.Unlock()
		c.emit(Event{State: StateQuoteUpdate, Quote: ev.Quote, Key: c.clock.Current(), At: time.Now()})
	case venue.EventConnectionState:
		connected := 0.0
		if ev.State == venue.ConnConnected {
			connected = 1.0
		}
		connectionState.WithLabelValues(string(v)).Set(connected)
		c.emit(Event{State: StateConnectionState, At: time.Now()})
	case venue.EventError:
		c.log.Warn("venue event error", zap.String("venue", string(v)), zap.Error(ev.Err))
		c.emit(Event{State: StateError, Err: ev.Err, At: time.Now()})
	}
}

// CurrentMapping returns the interval mapping the coordinator last
// subscribed against, used to stamp outgoing orders with a market id.
func (c *Coordinator) CurrentMapping() mapping.IntervalMapping {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// GetQuote returns the cached normalized quote for a venue.
func (c *Coordinator) GetQuote(v quote.Venue) (quote.Normalized, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quoteCache[v]
	return q, ok
}

// SetQuote seeds the quote cache directly, bypassing the venue event
// pump. Used to warm-start the cache from a REST snapshot before the
// first WS update arrives, and by tests.
func (c *Coordinator) SetQuote(v quote.Venue, q quote.Normalized) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quoteCache[v] = q
}

// onRollover performs the cancel-old -> settle -> clear -> subscribe-new
// sequence, invoked once per boundary crossing by interval.Clock.
func (c *Coordinator) onRollover(prev, next interval.Key) {
	rolloverState.Set(1)
	defer rolloverState.Set(0)
	c.emit(Event{State: StateRolloverStarted, Key: prev, At: time.Now()})

	prevMapping, ok := c.store.Get(prev)
	if ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if prevMapping.ClobMarketID != "" {
			if err := c.cancel(ctx, quote.VenueClob, prevMapping.ClobMarketID); err != nil {
				c.log.Warn("failed to cancel clob orders at rollover", zap.Error(err))
			}
		}
		if prevMapping.OnchainMarketID != "" {
			if err := c.cancel(ctx, quote.VenueOnchain, prevMapping.OnchainMarketID); err != nil {
				c.log.Warn("failed to cancel onchain orders at rollover", zap.Error(err))
			}
		}
		cancel()
	}

	c.state.SettlePending(prev)
	c.tracker.ClearInterval(prev)

	c.mu.Lock()
	c.quoteCache = make(map[quote.Venue]quote.Normalized)
	c.mu.Unlock()

	c.subscribeCurrent(context.Background(), next)

	c.emit(Event{State: StateRolloverCompleted, Key: next, At: time.Now()})
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("coordinator event buffer full, dropping event")
	}
}
