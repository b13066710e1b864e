package execution

import (
	"testing"

	"github.com/btcarb/boxarb/internal/arb"
	"github.com/btcarb/boxarb/internal/mapping"
	"github.com/btcarb/boxarb/internal/quote"
)

var testMapping = mapping.IntervalMapping{ClobMarketID: "clob-mkt", OnchainMarketID: "onchain-mkt"}

func TestBuildPlanAppliesOnchainMinimums(t *testing.T) {
	opp := &arb.Opportunity{
		LegA: arb.Leg{Venue: quote.VenueClob, Side: quote.SideYes, Price: 0.40, Size: 50},
		LegB: arb.Leg{Venue: quote.VenueOnchain, Side: quote.SideNo, Price: 0.10, Size: 50},
	}
	plan := BuildPlan(opp, 2, "exec1", testMapping)

	// 1/0.10 = 10 shares needed for $1 notional, which beats the 5-share floor.
	if plan.LegB.Qty != 10 {
		t.Errorf("expected onchain leg qty raised to 10, got %v", plan.LegB.Qty)
	}
	if plan.LegA.Qty != 2 {
		t.Errorf("expected clob leg qty unchanged at 2, got %v", plan.LegA.Qty)
	}
	if plan.LegA.MarketID != "clob-mkt" {
		t.Errorf("expected clob leg market id threaded, got %q", plan.LegA.MarketID)
	}
	if plan.LegB.MarketID != "onchain-mkt" {
		t.Errorf("expected onchain leg market id threaded, got %q", plan.LegB.MarketID)
	}
}

func TestBuildPlanClampsPriceToGrid(t *testing.T) {
	opp := &arb.Opportunity{
		LegA: arb.Leg{Venue: quote.VenueClob, Side: quote.SideYes, Price: 1.50, Size: 10},
		LegB: arb.Leg{Venue: quote.VenueOnchain, Side: quote.SideNo, Price: 0.30, Size: 10},
	}
	plan := BuildPlan(opp, 5, "exec2", testMapping)
	if plan.LegA.LimitPrice != maxPrice {
		t.Errorf("expected leg A price clamped to %v, got %v", maxPrice, plan.LegA.LimitPrice)
	}
}

func TestBuildUnwindLadderEndsWithMarketOrder(t *testing.T) {
	ladder := BuildUnwindLadder(3, 0.01, 500)
	if len(ladder) != 4 {
		t.Fatalf("expected 3 limit steps + 1 market step, got %d", len(ladder))
	}
	last := ladder[len(ladder)-1]
	if !last.Market {
		t.Error("expected final ladder step to be a market order")
	}
	if ladder[0].PriceOffset != 0.01 || ladder[1].PriceOffset != 0.02 {
		t.Errorf("expected cumulative cent offsets, got %+v", ladder[:2])
	}
}
