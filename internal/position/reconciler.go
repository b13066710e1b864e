package position

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/btcarb/boxarb/internal/execution"
	"github.com/btcarb/boxarb/internal/fees"
	"github.com/btcarb/boxarb/internal/quote"
)

// noiseThreshold is the divergence below which a reconciler tick
// overrides immediately, no stability confirmation required.
const noiseThreshold = 5.0

// stableTolerance is how close two consecutive remote reads must be
// to count as a confirmed stable reading.
const stableTolerance = 2.0

// RemoteFetcher fetches a venue's authoritative reported position for
// one side. Returning an error marks that venue's read as failed for
// this tick; the reconciler tolerates one-venue failure per tick.
type RemoteFetcher func(ctx context.Context, v quote.Venue, s quote.Side) (float64, error)

// CorrectiveOrderer places the reconciler's corrective order when an
// override reveals an imbalance.
type CorrectiveOrderer func(ctx context.Context, v quote.Venue, s quote.Side, price, qty float64) error

// QuoteLookup returns the clob venue's current quote, used to price
// the completing-buy vs unwinding-sell comparison. The clob venue is
// the reconciler's default corrective venue since it carries no
// minimum-order-value floor.
type QuoteLookup func() (quote.Normalized, bool)

// Config tunes the reconciler's cadence and limits.
type Config struct {
	TickInterval          time.Duration
	GracePeriod           time.Duration // after last execution end
	CorrectiveCooldown    time.Duration
	MaxCorrectiveActionQty float64
}

// DefaultConfig matches the documented defaults: 60s tick, 30s
// post-execution grace period, 120s corrective cooldown, 50-contract cap.
func DefaultConfig() Config {
	return Config{
		TickInterval:           60 * time.Second,
		GracePeriod:            30 * time.Second,
		CorrectiveCooldown:     120 * time.Second,
		MaxCorrectiveActionQty: 50,
	}
}

type pendingRead struct {
	value float64
	at    time.Time
}

// Reconciler periodically compares the local Tracker against each
// venue's reported positions, requiring stability confirmation before
// overriding local state, and issues at most one corrective order per
// confirmed imbalance.
type Reconciler struct {
	cfg     Config
	tracker *Tracker
	state   *execution.State
	fetch   RemoteFetcher
	order   CorrectiveOrderer
	quotes  QuoteLookup
	log     *zap.Logger

	lastExecutionEnd time.Time
	correctiveUntil  time.Time
	pending          map[Key]pendingRead
}

// NewReconciler builds a Reconciler.
func NewReconciler(cfg Config, tracker *Tracker, state *execution.State, fetch RemoteFetcher, order CorrectiveOrderer, quotes QuoteLookup, log *zap.Logger) *Reconciler {
	return &Reconciler{
		cfg:     cfg,
		tracker: tracker,
		state:   state,
		fetch:   fetch,
		order:   order,
		quotes:  quotes,
		log:     log,
		pending: make(map[Key]pendingRead),
	}
}

// NoteExecutionEnd records the time an execution (success or unwind)
// completed, arming the post-execution grace period.
func (r *Reconciler) NoteExecutionEnd(t time.Time) {
	r.lastExecutionEnd = t
}

// Run blocks, ticking at cfg.TickInterval, until ctx is done. Mirrors
// the reference engine's periodic risk-monitor worker.
func (r *Reconciler) Run(ctx context.Context, venues []quote.Venue) {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx, venues)
		}
	}
}

// Tick runs one reconciliation pass across every (venue, side) bucket.
func (r *Reconciler) Tick(ctx context.Context, venues []quote.Venue) {
	now := time.Now()
	if r.blocked(now) {
		return
	}

	for _, v := range venues {
		for _, side := range []quote.Side{quote.SideYes, quote.SideNo} {
			r.reconcileOne(ctx, v, side, now)
		}
	}

	r.rebalanceIfNeeded(ctx, now)
}

func (r *Reconciler) blocked(now time.Time) bool {
	if r.state.IsBusy() {
		return true
	}
	if triggered, _ := r.state.KillSwitchTriggered(); triggered {
		return true
	}
	if r.state.LiquidationInProgress() {
		return true
	}
	if !r.lastExecutionEnd.IsZero() && now.Sub(r.lastExecutionEnd) < r.cfg.GracePeriod {
		return true
	}
	if now.Before(r.correctiveUntil) {
		return true
	}
	return false
}

func (r *Reconciler) reconcileOne(ctx context.Context, v quote.Venue, s quote.Side, now time.Time) {
	remote, err := r.fetch(ctx, v, s)
	if err != nil {
		r.log.Warn("reconciler fetch failed, tolerating for this tick", zap.String("venue", string(v)), zap.Error(err))
		return
	}

	key := Key{Venue: v, Side: s}
	local := r.tracker.Net(v, s)
	d := divergence(local, remote)

	if d < noiseThreshold {
		delete(r.pending, key)
		if d > 0 {
			r.tracker.SetNet(v, s, remote)
		}
		return
	}

	prior, ok := r.pending[key]
	if ok && divergence(prior.value, remote) <= stableTolerance {
		r.tracker.SetNet(v, s, remote)
		delete(r.pending, key)
		r.log.Info("reconciler override confirmed", zap.String("venue", string(v)), zap.String("side", string(s)), zap.Float64("remote", remote))
		return
	}

	r.pending[key] = pendingRead{value: remote, at: now}
}

func divergence(a, b float64) float64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d
}

// rebalanceIfNeeded compares total YES vs NO after any overrides this
// tick and places at most one corrective order if the better option
// (completing vs unwinding) clears a meaningful recovery.
func (r *Reconciler) rebalanceIfNeeded(ctx context.Context, now time.Time) {
	totalYes := r.tracker.TotalYes()
	totalNo := r.tracker.TotalNo()
	imbalance := totalYes - totalNo
	if imbalance < 0 {
		imbalance = -imbalance
	}
	if imbalance <= 2 {
		return
	}

	qty := imbalance
	if qty > r.cfg.MaxCorrectiveActionQty {
		qty = r.cfg.MaxCorrectiveActionQty
	}

	q, ok := r.quotes()
	if !ok {
		r.log.Warn("reconciler skipping corrective action, no quote available")
		return
	}

	// The long (excess) side is the unwind candidate; the short
	// (missing) side is the completion candidate.
	excess, missing := quote.SideYes, quote.SideNo
	if totalYes < totalNo {
		excess, missing = quote.SideNo, quote.SideYes
	}

	completePrice, _ := q.BestAsk(missing)
	unwindPrice, _ := q.BestBid(excess)

	completeValue := expectedCompletionPnl(completePrice, qty, true)
	unwindValue := expectedUnwindRecovery(unwindPrice, qty, true)

	side, price := missing, completePrice
	if unwindValue > completeValue {
		side, price = excess, unwindPrice
	}

	if err := r.order(ctx, quote.VenueClob, side, price, qty); err != nil {
		r.log.Warn("corrective order failed", zap.Error(err))
		return
	}
	r.state.EnterCooldown(now, r.cfg.CorrectiveCooldown.Milliseconds())
	r.correctiveUntil = now.Add(r.cfg.CorrectiveCooldown)
}

// expectedCompletionPnl is the net PnL of buying the missing side at
// price to complete a box, net of the venue's fee.
func expectedCompletionPnl(price, qty float64, clobFee bool) float64 {
	var fee float64
	if clobFee {
		fee = fees.ClobFee(qty, price).Dollars()
	} else {
		fee = fees.OnchainFee(qty, price).Dollars()
	}
	return (1.0-price)*qty - fee
}

// expectedUnwindRecovery is the recovery from selling the excess side
// at the current bid, net of the venue's fee.
func expectedUnwindRecovery(bid, qty float64, clobFee bool) float64 {
	var fee float64
	if clobFee {
		fee = fees.ClobFee(qty, bid).Dollars()
	} else {
		fee = fees.OnchainFee(qty, bid).Dollars()
	}
	return bid*qty - fee
}
