// Package normalize converts each venue's native book representation
// into the uniform quote.Normalized shape. Both functions are pure: no
// I/O, no locks, easy to hold to the exact arithmetic identities in
// spec invariant 3 and scenario S1.
package normalize

import (
	"time"

	"github.com/btcarb/boxarb/internal/quote"
)

// Level is a single price/size entry in a bid ladder, replacing the
// array-as-tuple [price, size] shape with a named, typed field set.
type Level struct {
	Price float64
	Size  float64
}

// BestBid returns the highest-priced level in levels, or the zero Level
// and false if levels is empty. Deliberately independent of storage
// order (ascending, best-last, per the insertion routine's convention)
// so callers cannot corrupt results by handing in an unsorted slice.
func BestBid(levels []Level) (Level, bool) {
	if len(levels) == 0 {
		return Level{}, false
	}
	best := levels[0]
	for _, l := range levels[1:] {
		if l.Price > best.Price {
			best = l
		}
	}
	return best, true
}

// FromBidOnlyBook implements the bid-only venue's implied-ask algorithm:
//
//	best_yes_bid = max(yesBids); best_no_bid = max(noBids)
//	yes_ask = 1.00 − best_no_bid.price
//	no_ask  = 1.00 − best_yes_bid.price
//	yes_ask_size = best_no_bid.size   (cross-side size lands on implied ask)
//	no_ask_size  = best_yes_bid.size
func FromBidOnlyBook(yesBids, noBids []Level, tsExchange, tsLocal time.Time, seqNo uint64) quote.Normalized {
	yesBid, hasYes := BestBid(yesBids)
	noBid, hasNo := BestBid(noBids)

	n := quote.Normalized{
		Venue:      quote.VenueClob,
		TsExchange: tsExchange,
		TsLocal:    tsLocal,
		SeqNo:      seqNo,
	}
	if hasYes {
		n.YesBid = yesBid.Price
		n.YesBidQty = yesBid.Size
		n.NoAsk = 1.0 - yesBid.Price
		n.NoAskQty = yesBid.Size
	} else {
		n.NoAsk = 1.0
	}
	if hasNo {
		n.NoBid = noBid.Price
		n.NoBidQty = noBid.Size
		n.YesAsk = 1.0 - noBid.Price
		n.YesAskQty = noBid.Size
	} else {
		n.YesAsk = 1.0
	}
	return n
}

// BookSide is one outcome token's resting orders on a two-book venue:
// both bid and ask are published directly, no derivation needed.
type BookSide struct {
	BestBidPrice float64
	BestBidQty   float64
	BestAskPrice float64
	BestAskQty   float64
	HasBid       bool
	HasAsk       bool
}

// FromTwoBook emits the best bid/ask for each side directly. A missing
// side defaults to bid=0, ask=1 (the worst possible quote for anyone
// trying to buy or sell against it), per spec §4.2.
func FromTwoBook(yes, no BookSide, tsExchange, tsLocal time.Time, seqNo uint64) quote.Normalized {
	n := quote.Normalized{
		Venue:      quote.VenueOnchain,
		TsExchange: tsExchange,
		TsLocal:    tsLocal,
		SeqNo:      seqNo,
		YesBid:     0,
		YesAsk:     1,
		NoBid:      0,
		NoAsk:      1,
	}
	if yes.HasBid {
		n.YesBid = yes.BestBidPrice
		n.YesBidQty = yes.BestBidQty
	}
	if yes.HasAsk {
		n.YesAsk = yes.BestAskPrice
		n.YesAskQty = yes.BestAskQty
	}
	if no.HasBid {
		n.NoBid = no.BestBidPrice
		n.NoBidQty = no.BestBidQty
	}
	if no.HasAsk {
		n.NoAsk = no.BestAskPrice
		n.NoAskQty = no.BestAskQty
	}
	return n
}
