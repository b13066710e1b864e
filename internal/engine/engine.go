// Package engine wires the coordinator's quote stream into the
// scanner, guard chain, and execution committer: one opportunity scan
// per quote update, a pre-flight guard pass, and a two-phase commit
// when a guard-cleared opportunity appears. It is the orchestration
// glue that has no other natural package home.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/btcarb/boxarb/internal/arb"
	"github.com/btcarb/boxarb/internal/coordinator"
	"github.com/btcarb/boxarb/internal/execution"
	"github.com/btcarb/boxarb/internal/fees"
	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/journal"
	"github.com/btcarb/boxarb/internal/position"
	"github.com/btcarb/boxarb/internal/quote"
)

// Config bundles the risk parameters the scanner and guard chain need
// on every tick. It is built once from config.RiskConfig at startup.
// SlippageBuffer is per leg; the scanner is given the full two-leg
// total. The fee buffer is never configured statically: it is computed
// fresh on every scan from the live quotes and the fee engine, since
// both venues' taker fee formulas depend on fill price.
type Config struct {
	SlippageBuffer      float64
	MinEdgeNet          float64
	MinSize             float64
	MaxQtyPerTrade      float64
	MaxOpenOrders       int
	BalanceTol          float64
	RolloverCutoff      int64
	CooldownMsAfterFail int64
}

// Engine scans every coordinator quote update for a box opportunity,
// runs it through the guard chain, and commits it through the
// execution Engine when the chain clears.
type Engine struct {
	cfg    Config
	coord  *coordinator.Coordinator
	exec   *execution.Engine
	state  *execution.State
	tracker *position.Tracker
	clients execution.Clients
	clock  *interval.Clock
	ej     *journal.ExecutionJournal
	log    *zap.Logger

	execCounter int64
}

// New builds an orchestration Engine.
func New(cfg Config, coord *coordinator.Coordinator, exec *execution.Engine, state *execution.State, tracker *position.Tracker, clients execution.Clients, clock *interval.Clock, ej *journal.ExecutionJournal, log *zap.Logger) *Engine {
	return &Engine{cfg: cfg, coord: coord, exec: exec, state: state, tracker: tracker, clients: clients, clock: clock, ej: ej, log: log}
}

// Run drains the coordinator's event stream until ctx is cancelled,
// scanning every quote update for an opportunity.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.coord.Events():
			if !ok {
				return
			}
			if ev.State != coordinator.StateQuoteUpdate {
				continue
			}
			e.onQuoteUpdate(ctx, ev.Key)
		}
	}
}

func (e *Engine) onQuoteUpdate(ctx context.Context, key interval.Key) {
	clobQuote, clobOK := e.coord.GetQuote(quote.VenueClob)
	onchainQuote, onchainOK := e.coord.GetQuote(quote.VenueOnchain)
	if !clobOK || !onchainOK {
		return
	}

	feeBuffer := feeBufferPerContract(clobQuote, onchainQuote, e.cfg.MaxQtyPerTrade)
	slippageBuffer := e.cfg.SlippageBuffer * 2 // two legs, not one

	opp := arb.Scan(quote.VenueClob, quote.VenueOnchain, clobQuote, onchainQuote, key, feeBuffer, slippageBuffer, e.cfg.MinEdgeNet)
	if opp == nil {
		return
	}

	if e.state.IsBusy() {
		return
	}

	in := &arb.GuardInput{
		Opp:            opp,
		MinEdgeNet:     e.cfg.MinEdgeNet,
		MinSize:        e.cfg.MinSize,
		InCooldown:     e.state.InCooldown(time.Now()),
		DailyLossCents: e.state.DailyRealizedPnl(),
		MaxDailyLoss:   e.state.MaxDailyLoss(),
		NotionalCents:  e.state.TotalNotional(),
		MaxNotional:    e.state.MaxNotional(),
		OpenOrderCount: e.tracker.OpenOrderCount(),
		MaxOpenOrders:  e.cfg.MaxOpenOrders,
		TotalYes:       e.tracker.TotalYes(),
		TotalNo:        e.tracker.TotalNo(),
		BalanceTol:     e.cfg.BalanceTol,
		MsToRollover:   e.clock.MsUntil(key.End()),
		RolloverCutoff: e.cfg.RolloverCutoff,
	}

	result := arb.RunGuards(arb.DefaultChain(), in)
	if !result.Pass {
		e.log.Debug("opportunity rejected by guard chain", zap.String("reason", result.Reason))
		return
	}

	if !e.state.AcquireBusyLock() {
		return
	}
	defer e.state.ReleaseBusyLock()

	size := e.cfg.MaxQtyPerTrade
	executionID := fmt.Sprintf("exec-%d", atomic.AddInt64(&e.execCounter, 1))
	plan := execution.BuildPlan(opp, size, executionID, e.coord.CurrentMapping())

	e.tracker.AddOpenOrder(position.OpenOrder{ClientOrderID: plan.LegA.ClientOrderID, Venue: opp.LegA.Venue, MarketID: plan.LegA.MarketID, Side: opp.LegA.Side, Price: plan.LegA.LimitPrice, Qty: plan.LegA.Qty, SubmittedAt: time.Now()})
	e.tracker.AddOpenOrder(position.OpenOrder{ClientOrderID: plan.LegB.ClientOrderID, Venue: opp.LegB.Venue, MarketID: plan.LegB.MarketID, Side: opp.LegB.Side, Price: plan.LegB.LimitPrice, Qty: plan.LegB.Qty, SubmittedAt: time.Now()})

	execCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res := e.exec.Execute(execCtx, opp, plan, executionID, e.clients)

	e.clearOpenOrder(plan.LegA.ClientOrderID, res)
	e.clearOpenOrder(plan.LegB.ClientOrderID, res)

	if res.ShouldEnterCooldown && !res.Success {
		e.state.EnterCooldown(time.Now(), e.cfg.CooldownMsAfterFail)
	}
	if e.ej != nil && res.Record != nil {
		if err := e.ej.Log(recordToRow(res.Record)); err != nil {
			e.log.Warn("failed to journal execution", zap.Error(err))
		}
	}
}

// clearOpenOrder drops clientOrderID from the tracker once its fate is
// known. If Execute never got a definitive venue response for it (a
// network error mid-request), the entry is left so CancelOrdersForMarket
// can clean it up at the next rollover instead of losing track of it.
func (e *Engine) clearOpenOrder(clientOrderID string, res execution.ExecutionResult) {
	if res.Record == nil {
		e.tracker.RemoveOpenOrder(clientOrderID)
		return
	}
	for _, leg := range []execution.LegExecution{res.Record.LegA, res.Record.LegB} {
		if leg.Request.ClientOrderID != clientOrderID {
			continue
		}
		if leg.Result.Status == "" {
			return // no definitive response; leave it tracked
		}
	}
	e.tracker.RemoveOpenOrder(clientOrderID)
}

func recordToRow(rec *execution.ExecutionRecord) journal.ExecutionRow {
	unwound := rec.Unwind != nil
	return journal.ExecutionRow{
		ExecutionID:      rec.ID,
		StartedAt:        rec.StartTs,
		EndedAt:          rec.EndTs,
		Status:           rec.Status,
		VenueA:           string(rec.Opportunity.LegA.Venue),
		VenueB:           string(rec.Opportunity.LegB.Venue),
		LegASide:         string(rec.Opportunity.LegA.Side),
		LegAPrice:        rec.LegA.Request.LimitPrice,
		LegAQty:          rec.LegA.Result.FilledQty,
		LegAStatus:       rec.LegA.Result.Status,
		LegBSide:         string(rec.Opportunity.LegB.Side),
		LegBPrice:        rec.LegB.Request.LimitPrice,
		LegBQty:          rec.LegB.Result.FilledQty,
		LegBStatus:       rec.LegB.Result.Status,
		ExpectedEdgeNet:  rec.ExpectedEdgeNet,
		RealizedPnlCents: rec.RealizedPnl,
		Unwound:          unwound,
	}
}

// CancelOrdersForMarket cancels every open order this process knows
// about for a venue's market at rollover. Injected into
// coordinator.New as a coordinator.CancelOrdersFunc.
func CancelOrdersForMarket(clients execution.Clients, tracker *position.Tracker) func(ctx context.Context, v quote.Venue, marketID string) error {
	return func(ctx context.Context, v quote.Venue, marketID string) error {
		client, ok := clients[v]
		if !ok || client == nil {
			return nil
		}
		var firstErr error
		for _, o := range tracker.OpenOrdersForMarket(v, marketID) {
			if err := client.CancelOrder(ctx, o.ClientOrderID); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("cancel %s: %w", o.ClientOrderID, err)
				}
				continue
			}
			tracker.RemoveOpenOrder(o.ClientOrderID)
		}
		return firstErr
	}
}

// feeBufferPerContract estimates the per-contract taker-fee cost of a
// box at the configured trade size, using the current asks for both
// possible orientations and taking the worse (higher) of the two so
// the scanner never arms a box that fees would make unprofitable.
func feeBufferPerContract(clobQ, onchainQ quote.Normalized, qty float64) float64 {
	if qty <= 0 {
		return 0
	}
	clobYesOnchainNo := fees.TotalBoxFee(qty, clobQ.YesAsk, qty, onchainQ.NoAsk)
	onchainYesClobNo := fees.TotalBoxFee(qty, clobQ.NoAsk, qty, onchainQ.YesAsk)
	worst := clobYesOnchainNo
	if onchainYesClobNo > worst {
		worst = onchainYesClobNo
	}
	return worst.Dollars() / qty
}
