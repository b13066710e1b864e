package engine

import (
	"context"
	"testing"
	"time"

	"github.com/btcarb/boxarb/internal/coordinator"
	"github.com/btcarb/boxarb/internal/execution"
	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/mapping"
	"github.com/btcarb/boxarb/internal/position"
	"github.com/btcarb/boxarb/internal/quote"
	"github.com/btcarb/boxarb/pkg/telemetry"
)

func testEngine(t *testing.T) (*Engine, *coordinator.Coordinator) {
	t.Helper()
	store := mapping.NewStore(24 * time.Hour)
	clock := interval.New(nil)
	tracker := position.NewTracker()
	state := execution.NewState(time.Now(), 2000000, 20000000)
	cancel := func(ctx context.Context, v quote.Venue, marketID string) error { return nil }
	coord := coordinator.New(nil, store, clock, tracker, state, cancel, telemetry.Nop())

	execEngine := execution.NewEngine(execution.Config{
		MaxLegDelayMs:        500,
		UnwindSteps:          3,
		UnwindStepSize:       0.01,
		UnwindStepTimeoutMs:  500,
		UnwindMaxTotalTimeMs: 3000,
	}, state, telemetry.Nop())

	cfg := Config{
		SlippageBuffer: 0.005,
		MinEdgeNet:     0.04,
		MinSize:        1,
		MaxQtyPerTrade: 10,
		MaxOpenOrders:  5,
		BalanceTol:     50,
		RolloverCutoff: 75000,
	}

	e := New(cfg, coord, execEngine, state, tracker, nil, clock, nil, telemetry.Nop())
	return e, coord
}

func TestOnQuoteUpdateSkipsWithoutBothVenueQuotes(t *testing.T) {
	e, _ := testEngine(t)
	key := interval.KeyFor(time.Now())
	// Neither venue has a cached quote yet; should not panic and should
	// simply return without attempting a scan.
	e.onQuoteUpdate(context.Background(), key)
}

func TestOnQuoteUpdateExecutesProfitableOpportunity(t *testing.T) {
	e, coord := testEngine(t)
	key := interval.KeyFor(time.Now())

	coord.SetQuote(quote.VenueClob, quote.Normalized{
		Venue: quote.VenueClob, YesBid: 0.40, YesAsk: 0.42, NoBid: 0.58, NoAsk: 0.60,
		YesBidQty: 100, YesAskQty: 100, NoBidQty: 100, NoAskQty: 100, TsLocal: time.Now(),
	})
	coord.SetQuote(quote.VenueOnchain, quote.Normalized{
		Venue: quote.VenueOnchain, YesBid: 0.55, YesAsk: 0.57, NoBid: 0.41, NoAsk: 0.43,
		YesBidQty: 100, YesAskQty: 100, NoBidQty: 100, NoAskQty: 100, TsLocal: time.Now(),
	})

	e.onQuoteUpdate(context.Background(), key)
}
