// Package onchain implements the two-book venue's client: YES and NO
// token books are each published with both bids and asks directly, so
// no implied-ask derivation is needed. Grounded on
// 0xtitan6-polymarket-mm/internal/market/book.go's snapshot/delta Book.
package onchain

import (
	"sync"
	"time"

	"github.com/btcarb/boxarb/internal/venue/normalize"
)

// Book mirrors one market's YES and NO order books.
type Book struct {
	mu      sync.RWMutex
	yes     normalize.BookSide
	no      normalize.BookSide
	seqNo   uint64
	updated time.Time
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{}
}

// ApplySnapshot replaces one side's book wholesale, as happens on the
// initial REST load or a WS full-refresh event.
func (b *Book) ApplySnapshot(side string, bestBid, bestBidQty, bestAsk, bestAskQty float64, hasBid, hasAsk bool, seqNo uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := normalize.BookSide{
		BestBidPrice: bestBid, BestBidQty: bestBidQty, HasBid: hasBid,
		BestAskPrice: bestAsk, BestAskQty: bestAskQty, HasAsk: hasAsk,
	}
	if side == "yes" {
		b.yes = s
	} else {
		b.no = s
	}
	b.seqNo = seqNo
	b.updated = time.Now()
}

// Snapshot returns both sides for normalization.
func (b *Book) Snapshot() (yes, no normalize.BookSide, seqNo uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.yes, b.no, b.seqNo
}

// IsStale reports whether the book hasn't moved within maxAge.
func (b *Book) IsStale(now time.Time, maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.updated.IsZero() {
		return true
	}
	return now.Sub(b.updated) > maxAge
}
