package execution

import (
	"math"

	"github.com/btcarb/boxarb/internal/arb"
	"github.com/btcarb/boxarb/internal/mapping"
	"github.com/btcarb/boxarb/internal/quote"
	"github.com/btcarb/boxarb/internal/venue"
)

// minPrice and maxPrice, the venue price grid, bound every planned order.
const (
	minPrice = 0.01
	maxPrice = 0.99
)

// onchainMinOrderValue and onchainMinShares are the two-book venue's
// order-floor rules: an order must clear $1 of notional AND 5 shares.
const (
	onchainMinOrderValue = 1.0
	onchainMinShares     = 5.0
)

// Plan is a fully normalized two-leg order pair built from an
// Opportunity, with client-order-ids assigned and venue minima applied.
type Plan struct {
	LegA venue.OrderRequest
	LegB venue.OrderRequest
}

// BuildPlan converts an arb.Opportunity plus a capped size into venue
// order requests. Leg A is always submitted first and is opp.LegA, the
// scanner's YES leg; which venue carries it follows from the cheaper
// orientation alone, not from venue speed or certainty. Leg B follows,
// deadline-bounded by the committer. m supplies the current interval's
// per-venue market id, threaded onto each leg so the committer's
// PlaceOrder calls are routable.
func BuildPlan(opp *arb.Opportunity, size float64, executionID string, m mapping.IntervalMapping) Plan {
	legAReq := legToOrder(opp.LegA, size, executionID+"-A", marketIDFor(opp.LegA.Venue, m))
	legBReq := legToOrder(opp.LegB, size, executionID+"-B", marketIDFor(opp.LegB.Venue, m))
	return Plan{LegA: legAReq, LegB: legBReq}
}

// marketIDFor resolves which of the interval mapping's two market ids
// belongs to venue v.
func marketIDFor(v quote.Venue, m mapping.IntervalMapping) string {
	if v == quote.VenueOnchain {
		return m.OnchainMarketID
	}
	return m.ClobMarketID
}

func legToOrder(leg arb.Leg, size float64, clientOrderID, marketID string) venue.OrderRequest {
	side := venue.OrderBuyYes
	if leg.Side == quote.SideNo {
		side = venue.OrderBuyNo
	}

	qty := size
	price := clampPrice(leg.Price)

	if leg.Venue == quote.VenueOnchain {
		qty = enforceOnchainMinimums(qty, price)
	}

	return venue.OrderRequest{
		ClientOrderID: clientOrderID,
		MarketID:      marketID,
		Side:          side,
		LimitPrice:    price,
		Qty:           qty,
		TimeInForce:   "FOK",
	}
}

// clampPrice keeps a planned price inside the venue price grid,
// using the worst-side bound for market-style fills: 1 cent for
// sells, 99 cents for buys. BuildPlan only ever emits buys, so the
// upper clamp is what's exercised in practice.
func clampPrice(p float64) float64 {
	if p < minPrice {
		return minPrice
	}
	if p > maxPrice {
		return maxPrice
	}
	return p
}

// enforceOnchainMinimums applies the onchain venue's buy-side floor:
// at least 5 shares and at least $1 of notional.
func enforceOnchainMinimums(qty, price float64) float64 {
	minByValue := math.Ceil(onchainMinOrderValue / price)
	floor := onchainMinShares
	if minByValue > floor {
		floor = minByValue
	}
	if qty < floor {
		return floor
	}
	return qty
}

// UnwindStep describes one rung of the price ladder the committer
// walks down while selling a stranded leg-A fill.
type UnwindStep struct {
	PriceOffset float64 // dollars subtracted from the unwind start price, cumulative
	TimeoutMs   int64
	Market      bool // final step: cross the book at the worst-side bound
}

// BuildUnwindLadder constructs N descending-price steps plus a final
// market order, per the configured ladder parameters.
func BuildUnwindLadder(steps int, stepSize float64, stepTimeoutMs int64) []UnwindStep {
	ladder := make([]UnwindStep, 0, steps+1)
	for i := 1; i <= steps; i++ {
		ladder = append(ladder, UnwindStep{
			PriceOffset: stepSize * float64(i),
			TimeoutMs:   stepTimeoutMs,
		})
	}
	ladder = append(ladder, UnwindStep{Market: true, TimeoutMs: stepTimeoutMs})
	return ladder
}
