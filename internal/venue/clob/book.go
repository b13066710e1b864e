// Package clob implements the bid-only venue's client: only YES/NO bid
// ladders are published over the wire, asks are derived by
// internal/venue/normalize. Grounded on
// sdibella-kalshi-btc15m/internal/kalshi/ws.go's snapshot+delta
// handling, adapted to this spec's ascending/best-last storage
// convention (§9: "sorted ascending so best bid is last").
package clob

import (
	"fmt"
	"sync"

	"github.com/btcarb/boxarb/internal/venue/normalize"
)

// Book holds the YES and NO bid ladders for one market, maintained
// ascending by price so the best bid is always the last element — the
// convention the spec requires the insertion routine to preserve.
type Book struct {
	mu     sync.RWMutex
	yes    []normalize.Level
	no     []normalize.Level
	seqNo  uint64
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{}
}

// ApplySnapshot replaces both ladders wholesale and resets the sequence
// counter. yes/no need not arrive sorted; ApplySnapshot sorts them.
func (b *Book) ApplySnapshot(yes, no []normalize.Level, seqNo uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.yes = sortedAscending(yes)
	b.no = sortedAscending(no)
	b.seqNo = seqNo
}

// ErrSeqGap is returned by ApplyDelta when seqNo doesn't immediately
// follow the book's current sequence number — the caller must resubscribe.
var ErrSeqGap = fmt.Errorf("clob: sequence gap, resubscribe required")

// ApplyDelta adjusts one side's quantity at a price level (adding a new
// level, or removing one whose quantity reaches zero), keeping the
// ascending/best-last invariant.
func (b *Book) ApplyDelta(side string, price, sizeDelta float64, seqNo uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seqNo != 0 && seqNo != b.seqNo+1 {
		return ErrSeqGap
	}
	b.seqNo = seqNo

	levels := &b.yes
	if side == "no" {
		levels = &b.no
	}

	for i, l := range *levels {
		if l.Price == price {
			newSize := l.Size + sizeDelta
			if newSize <= 0 {
				*levels = append((*levels)[:i], (*levels)[i+1:]...)
			} else {
				(*levels)[i].Size = newSize
			}
			return nil
		}
	}
	if sizeDelta > 0 {
		*levels = insertAscending(*levels, normalize.Level{Price: price, Size: sizeDelta})
	}
	return nil
}

// Snapshot returns a copy of both ladders for normalization.
func (b *Book) Snapshot() (yes, no []normalize.Level, seqNo uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	yes = append([]normalize.Level(nil), b.yes...)
	no = append([]normalize.Level(nil), b.no...)
	return yes, no, b.seqNo
}

func sortedAscending(levels []normalize.Level) []normalize.Level {
	out := append([]normalize.Level(nil), levels...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Price < out[j-1].Price; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func insertAscending(levels []normalize.Level, l normalize.Level) []normalize.Level {
	i := 0
	for i < len(levels) && levels[i].Price < l.Price {
		i++
	}
	levels = append(levels, normalize.Level{})
	copy(levels[i+1:], levels[i:])
	levels[i] = l
	return levels
}
