package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/btcarb/boxarb/internal/arb"
	"github.com/btcarb/boxarb/internal/quote"
	"github.com/btcarb/boxarb/internal/venue"
)

// LegExecution records one leg's submission and outcome.
type LegExecution struct {
	Request  venue.OrderRequest
	Result   venue.OrderResult
	FilledAt time.Time
}

// UnwindRecord captures the ladder the committer walked while
// liquidating a stranded leg-A fill.
type UnwindRecord struct {
	Steps      []UnwindStep
	FillPrice  float64
	FillQty    float64
	TotalMs    int64
}

// ExecutionRecord is the immutable-once-terminal audit trail for one
// attempted box.
type ExecutionRecord struct {
	ID              string
	Opportunity     *arb.Opportunity
	Status          string
	LegA            LegExecution
	LegB            LegExecution
	Unwind          *UnwindRecord
	StartTs         time.Time
	EndTs           time.Time
	ExpectedEdgeNet float64
	RealizedPnl     int64 // Cents
}

// ExecutionResult is what Engine.Execute returns to its caller.
type ExecutionResult struct {
	Success                 bool
	Record                  *ExecutionRecord
	ShouldEnterCooldown     bool
	ShouldTriggerKillSwitch bool
	Error                   error
}

// Clients is the per-venue capability bundle the committer dispatches
// orders through. A nil Clients means dry-run: the committer simulates
// a successful FOK fill at the planned price with no network I/O.
type Clients map[quote.Venue]venue.Client

// Config bounds the committer's timing: the leg-B deadline and the
// unwind ladder's per-step and total-time ceilings.
type Config struct {
	MaxLegDelayMs         int64
	UnwindSteps           int
	UnwindStepSize        float64
	UnwindStepTimeoutMs   int64
	UnwindMaxTotalTimeMs  int64
	CooldownMsAfterFail   int64
	CooldownMsAfterOK     int64
}

// Engine drives the two-phase commit for a single Opportunity.
type Engine struct {
	cfg   Config
	state *State
	log   *zap.Logger
}

// NewEngine builds an Engine bound to the process-wide State.
func NewEngine(cfg Config, state *State, log *zap.Logger) *Engine {
	return &Engine{cfg: cfg, state: state, log: log}
}

// Execute runs the full PENDING → terminal lifecycle for plan/opp. The
// busy lock must already be held by the caller (guards run before this
// is invoked); Execute never itself checks guards.
func (e *Engine) Execute(ctx context.Context, opp *arb.Opportunity, plan Plan, executionID string, clients Clients) ExecutionResult {
	rec := &ExecutionRecord{
		ID:              executionID,
		Opportunity:     opp,
		Status:          StatusPending,
		StartTs:         time.Now(),
		ExpectedEdgeNet: opp.EdgeNet,
	}

	rec.Status = StatusLegASubmitting
	legARes, err := e.placeOrder(ctx, opp.LegA.Venue, plan.LegA, clients)
	rec.LegA = LegExecution{Request: plan.LegA, Result: legARes, FilledAt: time.Now()}

	if err != nil || legARes.Status != "filled" {
		rec.Status = StatusLegAFailed
		rec.EndTs = time.Now()
		return ExecutionResult{Success: false, Record: rec, ShouldEnterCooldown: false, Error: err}
	}
	rec.Status = StatusLegAFilled
	e.state.AddNotional(notionalCents(plan.LegA))

	deadline := rec.LegA.FilledAt.Add(time.Duration(e.cfg.MaxLegDelayMs) * time.Millisecond)
	if time.Now().After(deadline) {
		return e.unwind(ctx, rec, opp, plan, clients)
	}

	legBCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	rec.Status = StatusLegBSubmitting
	legBRes, err := e.placeOrder(legBCtx, opp.LegB.Venue, plan.LegB, clients)
	rec.LegB = LegExecution{Request: plan.LegB, Result: legBRes, FilledAt: time.Now()}

	if err != nil || legBRes.Status != "filled" {
		return e.unwind(ctx, rec, opp, plan, clients)
	}

	rec.Status = StatusLegBFilled
	e.state.AddNotional(notionalCents(plan.LegB))

	rec.Status = StatusSuccess
	rec.EndTs = time.Now()
	filledQty := legARes.FilledQty
	if legBRes.FilledQty < filledQty {
		filledQty = legBRes.FilledQty
	}
	totalCost := legARes.AvgPrice + legBRes.AvgPrice
	rec.RealizedPnl = int64((1.0-totalCost)*filledQty*10000 + 0.5)

	e.state.EnterCooldown(time.Now(), e.cfg.CooldownMsAfterOK)
	return ExecutionResult{Success: true, Record: rec, ShouldEnterCooldown: true}
}

// unwind sells the leg-A fill down a descending-price ladder, recording
// realized loss and deciding whether the daily-loss cap trips the kill
// switch.
func (e *Engine) unwind(ctx context.Context, rec *ExecutionRecord, opp *arb.Opportunity, plan Plan, clients Clients) ExecutionResult {
	rec.Status = StatusUnwinding
	ladder := BuildUnwindLadder(e.cfg.UnwindSteps, e.cfg.UnwindStepSize, e.cfg.UnwindStepTimeoutMs)

	fillPrice := rec.LegA.Result.AvgPrice
	fillQty := rec.LegA.Result.FilledQty
	sellSide := venue.OrderBuyNo
	if plan.LegA.Side == venue.OrderBuyNo {
		sellSide = venue.OrderBuyYes
	}

	startPrice := e.unwindStartPrice(opp.LegA.Venue, plan.LegA.MarketID, sellSide, fillPrice, clients)

	started := time.Now()
	var sellPrice float64
	var sold bool
	budget := time.Duration(e.cfg.UnwindMaxTotalTimeMs) * time.Millisecond

	for _, step := range ladder {
		if time.Since(started) > budget {
			break
		}
		price := startPrice - step.PriceOffset
		if step.Market {
			price = minPrice
		}
		price = clampPrice(price)

		req := venue.OrderRequest{
			ClientOrderID: rec.ID + "-unwind",
			MarketID:      plan.LegA.MarketID,
			Side:          sellSide,
			LimitPrice:    price,
			Qty:           fillQty,
			TimeInForce:   "IOC",
		}
		stepCtx, cancel := context.WithTimeout(ctx, time.Duration(step.TimeoutMs)*time.Millisecond)
		res, err := e.placeOrder(stepCtx, opp.LegA.Venue, req, clients)
		cancel()
		if err == nil && res.Status == "filled" {
			sellPrice = res.AvgPrice
			sold = true
			break
		}
	}

	rec.Unwind = &UnwindRecord{Steps: ladder, FillPrice: fillPrice, FillQty: fillQty, TotalMs: time.Since(started).Milliseconds()}
	rec.Status = StatusUnwound
	rec.EndTs = time.Now()

	if !sold {
		e.log.Warn("unwind ladder exhausted without a fill", zap.String("execution_id", rec.ID))
		sellPrice = clampPrice(fillPrice - e.cfg.UnwindStepSize*float64(e.cfg.UnwindSteps))
	}

	lossDollars := (fillPrice - sellPrice) * fillQty
	lossCents := int64(lossDollars*10000 + 0.5)
	rec.RealizedPnl = -lossCents

	e.state.RemoveNotional(notionalCents(plan.LegA))
	e.state.AddUnwindLoss(lossCents)
	e.state.EnterCooldown(time.Now(), e.cfg.CooldownMsAfterFail)

	triggerKillSwitch := e.state.DailyLossExceedsCap()
	if triggerKillSwitch {
		e.state.TriggerKillSwitch(KillSwitchReasonDailyLoss)
	}

	return ExecutionResult{
		Success:                 false,
		Record:                  rec,
		ShouldEnterCooldown:     true,
		ShouldTriggerKillSwitch: triggerKillSwitch,
		Error:                   fmt.Errorf("leg B failed, unwound leg A at %.2f (fill was %.2f)", sellPrice, fillPrice),
	}
}

// unwindStartPrice anchors the unwind ladder to the book's current ask
// for the flipped side rather than the stranded leg's own fill price,
// since the book may have moved since that fill. Falls back to the
// fill price when no live quote is available (dry-run, or the client
// hasn't cached one yet).
func (e *Engine) unwindStartPrice(v quote.Venue, marketID string, sellSide venue.OrderSide, fillPrice float64, clients Clients) float64 {
	if clients == nil {
		return fillPrice
	}
	client, ok := clients[v]
	if !ok || client == nil {
		return fillPrice
	}
	q, ok := client.GetQuote(marketID)
	if !ok {
		return fillPrice
	}
	if sellSide == venue.OrderBuyNo {
		return q.NoAsk
	}
	return q.YesAsk
}

// placeOrder dispatches to the venue client, or simulates a filled FOK
// order at the requested price when clients is nil (dry-run).
func (e *Engine) placeOrder(ctx context.Context, v quote.Venue, req venue.OrderRequest, clients Clients) (venue.OrderResult, error) {
	if clients == nil {
		return venue.OrderResult{ClientOrderID: req.ClientOrderID, Status: "filled", FilledQty: req.Qty, AvgPrice: req.LimitPrice}, nil
	}
	client, ok := clients[v]
	if !ok {
		return venue.OrderResult{}, fmt.Errorf("no client configured for venue %s", v)
	}
	return client.PlaceOrder(ctx, req)
}

func notionalCents(req venue.OrderRequest) int64 {
	return int64(req.LimitPrice*req.Qty*10000 + 0.5)
}
