package arb

import "testing"

func baseGuardInput() *GuardInput {
	return &GuardInput{
		Opp: &Opportunity{
			LegA:    Leg{Price: 0.48, Size: 50},
			LegB:    Leg{Price: 0.47, Size: 50},
			EdgeNet: 0.05,
		},
		MinEdgeNet:     0.04,
		MinSize:        5,
		MaxDailyLoss:   2000000,
		MaxNotional:    20000000,
		MaxOpenOrders:  10,
		BalanceTol:     2,
		RolloverCutoff: 75000,
		MsToRollover:   200000,
	}
}

func TestRunGuardsAllPass(t *testing.T) {
	in := baseGuardInput()
	result := RunGuards(DefaultChain(), in)
	if !result.Pass {
		t.Fatalf("expected pass, got reason: %s", result.Reason)
	}
}

func TestRunGuardsShortCircuitsOnFirstFailure(t *testing.T) {
	in := baseGuardInput()
	in.Opp.LegA.Price = 1.50 // invalid price should fail before min-edge check
	in.Opp.EdgeNet = -1
	result := RunGuards(DefaultChain(), in)
	if result.Pass {
		t.Fatal("expected failure")
	}
	if result.Reason == "" {
		t.Error("expected a reason")
	}
}

func TestTimeToRolloverCutoff(t *testing.T) {
	in := baseGuardInput()
	in.MsToRollover = 50000
	ok, _ := TimeToRollover(in)
	if ok {
		t.Error("expected rollover cutoff to fail at 50s remaining")
	}
}

func TestPositionBalanceToleranceBoundary(t *testing.T) {
	in := baseGuardInput()
	in.TotalYes = 10
	in.TotalNo = 8
	ok, _ := PositionBalance(in)
	if !ok {
		t.Error("expected balance within tolerance of 2 to pass")
	}
	in.TotalNo = 7
	ok, _ = PositionBalance(in)
	if ok {
		t.Error("expected imbalance of 3 to fail")
	}
}
