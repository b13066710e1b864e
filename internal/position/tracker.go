// Package position owns the authoritative local view of open
// contracts per venue+side, the bounded fill history, and the
// per-interval cost-basis ledger, and reconciles that view against
// each venue's reported positions on a periodic tick.
package position

import (
	"sync"
	"time"

	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/quote"
)

const fillRingCapacity = 1000

// Key identifies a net position bucket.
type Key struct {
	Venue quote.Venue
	Side  quote.Side
}

// CostBasisKey additionally scopes a cost-basis entry to the interval
// it was opened in.
type CostBasisKey struct {
	Venue       quote.Venue
	Side        quote.Side
	IntervalKey interval.Key
}

// CostBasisEntry tracks average-cost accounting for one bucket: buys
// add to both totals, sells remove at the current average price.
type CostBasisEntry struct {
	TotalCost float64 // dollars
	TotalQty  float64
}

// AveragePrice returns TotalCost/TotalQty, or 0 if empty.
func (e CostBasisEntry) AveragePrice() float64 {
	if e.TotalQty == 0 {
		return 0
	}
	return e.TotalCost / e.TotalQty
}

// OpenOrder is a submitted-but-not-yet-terminal order.
type OpenOrder struct {
	ClientOrderID string
	Venue         quote.Venue
	MarketID      string
	Side          quote.Side
	Price         float64
	Qty           float64
	SubmittedAt   time.Time
}

// FillRecord is one completed fill, kept in a bounded ring for audit.
type FillRecord struct {
	ClientOrderID string
	Venue         quote.Venue
	Side          quote.Side
	Price         float64
	Qty           float64
	FilledAt      time.Time
}

// Tracker is the authoritative local position book. Safe for
// concurrent use; the reconciler and executor both mutate it.
type Tracker struct {
	mu sync.Mutex

	net        map[Key]float64
	openOrders map[string]OpenOrder
	costBasis  map[CostBasisKey]CostBasisEntry
	lastMarket map[Key]string

	fills    [fillRingCapacity]FillRecord
	fillHead int
	fillLen  int
}

// NewTracker builds an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		net:        make(map[Key]float64),
		openOrders: make(map[string]OpenOrder),
		costBasis:  make(map[CostBasisKey]CostBasisEntry),
		lastMarket: make(map[Key]string),
	}
}

// Net returns the current net contract count for a venue+side.
func (t *Tracker) Net(v quote.Venue, s quote.Side) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.net[Key{Venue: v, Side: s}]
}

// TotalYes and TotalNo sum net contracts across both venues, used by
// the position-balance guard and the reconciler's imbalance check.
func (t *Tracker) TotalYes() float64 { return t.totalSide(quote.SideYes) }
func (t *Tracker) TotalNo() float64  { return t.totalSide(quote.SideNo) }

func (t *Tracker) totalSide(side quote.Side) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for k, qty := range t.net {
		if k.Side == side {
			total += qty
		}
	}
	return total
}

// AddOpenOrder records a newly submitted order.
func (t *Tracker) AddOpenOrder(o OpenOrder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openOrders[o.ClientOrderID] = o
}

// OpenOrderCount returns the number of still-open orders.
func (t *Tracker) OpenOrderCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.openOrders)
}

// RemoveOpenOrder drops an order once it reaches a terminal state.
func (t *Tracker) RemoveOpenOrder(clientOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.openOrders, clientOrderID)
}

// OpenOrdersForMarket returns every still-open order on venue v scoped
// to marketID, used at rollover to cancel whatever the old interval
// left resting.
func (t *Tracker) OpenOrdersForMarket(v quote.Venue, marketID string) []OpenOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []OpenOrder
	for _, o := range t.openOrders {
		if o.Venue == v && o.MarketID == marketID {
			out = append(out, o)
		}
	}
	return out
}

// AllOpenOrders returns every still-open order across every venue and
// market, used at process shutdown to cancel everything outstanding.
func (t *Tracker) AllOpenOrders() []OpenOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]OpenOrder, 0, len(t.openOrders))
	for _, o := range t.openOrders {
		out = append(out, o)
	}
	return out
}

// RecordFill applies a fill: updates the net position, the cost-basis
// ledger (average-cost method), the last-known market id, clears the
// matching open order, and appends to the fill ring.
func (t *Tracker) RecordFill(key interval.Key, f FillRecord, marketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	posKey := Key{Venue: f.Venue, Side: f.Side}
	t.net[posKey] += f.Qty
	t.lastMarket[posKey] = marketID
	delete(t.openOrders, f.ClientOrderID)

	cbKey := CostBasisKey{Venue: f.Venue, Side: f.Side, IntervalKey: key}
	entry := t.costBasis[cbKey]
	if f.Qty >= 0 {
		entry.TotalCost += f.Price * f.Qty
		entry.TotalQty += f.Qty
	} else {
		avg := entry.AveragePrice()
		entry.TotalCost += avg * f.Qty // f.Qty negative: remove at current average
		entry.TotalQty += f.Qty
	}
	if entry.TotalQty < 1e-3 {
		delete(t.costBasis, cbKey)
	} else {
		t.costBasis[cbKey] = entry
	}

	t.fills[t.fillHead] = f
	t.fillHead = (t.fillHead + 1) % fillRingCapacity
	if t.fillLen < fillRingCapacity {
		t.fillLen++
	}
}

// CostBasis returns the cost-basis entry for a bucket, if any.
func (t *Tracker) CostBasis(key CostBasisKey) (CostBasisEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.costBasis[key]
	return e, ok
}

// LastMarketID returns the last market identifier a venue+side traded
// on, used to sell after the mapping has rolled to a new interval.
func (t *Tracker) LastMarketID(v quote.Venue, s quote.Side) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.lastMarket[Key{Venue: v, Side: s}]
	return id, ok
}

// SetNet overrides the net position directly, used by the reconciler
// after a confirmed venue-side-of-truth override.
func (t *Tracker) SetNet(v quote.Venue, s quote.Side, qty float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.net[Key{Venue: v, Side: s}] = qty
}

// RecentFills returns up to n most recent fills, newest first.
func (t *Tracker) RecentFills(n int) []FillRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > t.fillLen {
		n = t.fillLen
	}
	out := make([]FillRecord, 0, n)
	idx := t.fillHead - 1
	for i := 0; i < n; i++ {
		if idx < 0 {
			idx += fillRingCapacity
		}
		out = append(out, t.fills[idx])
		idx--
	}
	return out
}

// ClearInterval drops every cost-basis entry scoped to key, called
// once that interval has settled.
func (t *Tracker) ClearInterval(key interval.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.costBasis {
		if k.IntervalKey == key {
			delete(t.costBasis, k)
		}
	}
}
