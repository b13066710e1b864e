package normalize

import (
	"testing"
	"time"
)

// S1 from the spec's concrete scenario list: YES bids [[42,13],[41,10]],
// NO bids [[56,146],[54,20]] => yes_bid=0.42, yes_ask=0.44, no_bid=0.56,
// no_ask=0.58, yes_ask_size=146, no_ask_size=13.
func TestFromBidOnlyBookS1(t *testing.T) {
	yesBids := []Level{{Price: 0.42, Size: 13}, {Price: 0.41, Size: 10}}
	noBids := []Level{{Price: 0.56, Size: 146}, {Price: 0.54, Size: 20}}

	got := FromBidOnlyBook(yesBids, noBids, time.Time{}, time.Now(), 1)

	checkFloat(t, "YesBid", got.YesBid, 0.42)
	checkFloat(t, "YesAsk", got.YesAsk, 0.44)
	checkFloat(t, "NoBid", got.NoBid, 0.56)
	checkFloat(t, "NoAsk", got.NoAsk, 0.58)
	checkFloat(t, "YesAskQty", got.YesAskQty, 146)
	checkFloat(t, "NoAskQty", got.NoAskQty, 13)
}

func TestFromBidOnlyBookEmptySide(t *testing.T) {
	got := FromBidOnlyBook(nil, []Level{{Price: 0.5, Size: 10}}, time.Time{}, time.Now(), 1)
	if got.NoAsk != 1.0 {
		t.Errorf("empty YES side should force NoAsk=1.0, got %v", got.NoAsk)
	}
	if got.YesAsk != 0.5 {
		t.Errorf("YesAsk = %v, want 0.5", got.YesAsk)
	}
}

func TestFromTwoBookDefaultsOnMissingSide(t *testing.T) {
	yes := BookSide{HasBid: true, BestBidPrice: 0.3, BestBidQty: 5}
	no := BookSide{} // missing entirely

	got := FromTwoBook(yes, no, time.Time{}, time.Now(), 1)

	checkFloat(t, "YesBid", got.YesBid, 0.3)
	checkFloat(t, "YesAsk", got.YesAsk, 1.0)
	checkFloat(t, "NoBid", got.NoBid, 0.0)
	checkFloat(t, "NoAsk", got.NoAsk, 1.0)
}

func TestBestBidIgnoresStorageOrder(t *testing.T) {
	levels := []Level{{Price: 0.1, Size: 1}, {Price: 0.9, Size: 2}, {Price: 0.5, Size: 3}}
	best, ok := BestBid(levels)
	if !ok || best.Price != 0.9 {
		t.Errorf("BestBid = %v, ok=%v, want price 0.9", best, ok)
	}
}

func checkFloat(t *testing.T, field string, got, want float64) {
	t.Helper()
	const eps = 1e-9
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > eps {
		t.Errorf("%s = %v, want %v", field, got, want)
	}
}
