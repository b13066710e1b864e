package arb

import (
	"testing"

	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/quote"
)

func TestScanS2BelowThresholdYieldsNoOpportunity(t *testing.T) {
	key := interval.Key{}
	quoteA := quote.Normalized{YesAsk: 0.48, YesAskQty: 100, NoAsk: 0.53, NoAskQty: 100}
	quoteB := quote.Normalized{YesAsk: 0.53, YesAskQty: 100, NoAsk: 0.47, NoAskQty: 100}

	got := Scan(quote.VenueClob, quote.VenueOnchain, quoteA, quoteB, key, 0.03, 0.01, 0.04)
	if got != nil {
		t.Fatalf("expected nil opportunity, got %+v", got)
	}
}

func TestScanProfitableOpportunityPicksCheaperOrientation(t *testing.T) {
	key := interval.Key{}
	quoteA := quote.Normalized{YesAsk: 0.40, YesAskQty: 50, NoAsk: 0.65, NoAskQty: 50}
	quoteB := quote.Normalized{YesAsk: 0.65, YesAskQty: 50, NoAsk: 0.40, NoAskQty: 50}

	got := Scan(quote.VenueClob, quote.VenueOnchain, quoteA, quoteB, key, 0.01, 0.005, 0.04)
	if got == nil {
		t.Fatal("expected an opportunity")
	}
	wantCost := 0.80
	if diff := got.Cost - wantCost; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cost = %v, want %v", got.Cost, wantCost)
	}
	wantEdgeNet := 1.00 - wantCost - 0.01 - 0.005
	if diff := got.EdgeNet - wantEdgeNet; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("edgeNet = %v, want %v", got.EdgeNet, wantEdgeNet)
	}
	if got.LegA.Venue != quote.VenueClob || got.LegA.Side != quote.SideYes {
		t.Errorf("unexpected leg A: %+v", got.LegA)
	}
	if got.LegB.Venue != quote.VenueOnchain || got.LegB.Side != quote.SideNo {
		t.Errorf("unexpected leg B: %+v", got.LegB)
	}
}
