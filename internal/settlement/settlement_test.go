package settlement

import (
	"testing"

	"github.com/btcarb/boxarb/internal/interval"
)

func TestBuildOutcomeS6DeadZone(t *testing.T) {
	snap := IntervalCloseSnapshot{
		Key:             interval.Key{},
		Spot:            97315,
		Twap60s:         97315,
		ClobRefPrice:    97330,
		OnchainRefPrice: 97300,
	}
	clobRes := ResolutionFor(snap.ClobRefPrice, 97320)
	onchainRes := ResolutionFor(snap.OnchainRefPrice, 97320)

	outcome := BuildOutcome(snap, clobRes, onchainRes)

	if clobRes != ResolutionUp {
		t.Errorf("expected clob resolution up, got %s", clobRes)
	}
	if onchainRes != ResolutionDown {
		t.Errorf("expected onchain resolution down, got %s", onchainRes)
	}
	if outcome.OraclesAgree {
		t.Error("expected oracles to disagree")
	}
	if !outcome.DeadZoneHit {
		t.Error("expected dead zone hit")
	}
}

func TestBuildOutcomeOraclesAgree(t *testing.T) {
	outcome := BuildOutcome(IntervalCloseSnapshot{}, ResolutionUp, ResolutionUp)
	if !outcome.OraclesAgree {
		t.Error("expected agreement when both resolutions match")
	}
	if outcome.DeadZoneHit {
		t.Error("agreement should never be a dead zone")
	}
}

func TestCrossingCounterS7(t *testing.T) {
	c := NewCrossingCounter(100000)
	ticks := []float64{100050, 99950, 100050, 99950}
	for _, p := range ticks {
		c.Tick(p)
	}
	if got := c.Count(); got != 3 {
		t.Errorf("crossing count = %d, want 3", got)
	}
}

func TestCrossingCounterExactReferenceCountsAsAboveNoIncrement(t *testing.T) {
	c := NewCrossingCounter(100000)
	c.Tick(99950)   // below
	c.Tick(100000)  // exactly at reference counts as above but does not increment
	if got := c.Count(); got != 0 {
		t.Fatalf("expected the below->at(above) transition not to count, got %d", got)
	}
	c.Tick(100000) // still "above", no further transition
	if got := c.Count(); got != 0 {
		t.Errorf("expected no additional crossing on repeated at-reference tick, got %d", got)
	}
}
