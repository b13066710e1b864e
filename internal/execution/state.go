package execution

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/pkg/utils"
)

// PendingSettlement is bookkeeping for a completed box held through
// interval close, moved into realized PnL when the interval rolls.
type PendingSettlement struct {
	ExecutionID string
	IntervalKey interval.Key
	ExpectedPnl int64 // Cents
	SettlesAt   time.Time
}

// KillSwitchReasonDailyLoss is terminal: recovery never clears it
// automatically.
const KillSwitchReasonDailyLoss = "daily_loss"

// State is the process-wide set of execution atoms: the exclusive
// busy lock, cooldown timer, daily PnL roll, kill switch, running
// notional, and the pending-settlement ledger. One instance per
// process; every executor invocation reads and mutates it.
type State struct {
	busy int32

	mu sync.Mutex

	lastFailureTs time.Time
	cooldownUntil time.Time

	dailyRealizedPnl int64 // Cents
	dailyUnwindLoss  int64 // Cents
	dailyStartTs     time.Time
	maxDailyLoss     int64 // Cents

	killSwitchTriggered bool
	killSwitchReason    string

	totalNotional int64 // Cents
	maxNotional   int64 // Cents

	liquidationInProgress bool

	pendingSettlements map[string]PendingSettlement
}

// NewState builds a State with the day's roll anchored to now and the
// given daily-loss / notional caps (in Cents).
func NewState(now time.Time, maxDailyLoss, maxNotional int64) *State {
	return &State{
		dailyStartTs:       dayStart(now),
		maxDailyLoss:       maxDailyLoss,
		maxNotional:        maxNotional,
		pendingSettlements: make(map[string]PendingSettlement),
	}
}

func dayStart(t time.Time) time.Time {
	return utils.GetDayStartFrom(t)
}

// AcquireBusyLock attempts to take the exclusive execution lock,
// returning false if another execution is already in flight.
func (s *State) AcquireBusyLock() bool {
	return atomic.CompareAndSwapInt32(&s.busy, 0, 1)
}

// ReleaseBusyLock releases the exclusive execution lock.
func (s *State) ReleaseBusyLock() {
	atomic.StoreInt32(&s.busy, 0)
}

// IsBusy reports whether an execution is currently in flight.
func (s *State) IsBusy() bool {
	return atomic.LoadInt32(&s.busy) == 1
}

// EnterCooldown records a failure timestamp and arms a cooldown window
// lasting durMs milliseconds from ts (time.Now() if ts is zero).
func (s *State) EnterCooldown(ts time.Time, durMs int64) {
	if ts.IsZero() {
		ts = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFailureTs = ts
	s.cooldownUntil = ts.Add(time.Duration(durMs) * time.Millisecond)
}

// ClearCooldown lifts an armed cooldown immediately.
func (s *State) ClearCooldown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldownUntil = time.Time{}
}

// InCooldown reports whether now is still inside the cooldown window.
func (s *State) InCooldown(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.cooldownUntil)
}

// RollDailyIfNeeded resets dailyRealizedPnl and dailyUnwindLoss at UTC
// midnight. The kill switch does NOT reset on a day change.
func (s *State) RollDailyIfNeeded(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := dayStart(now)
	if today.After(s.dailyStartTs) {
		s.dailyStartTs = today
		s.dailyRealizedPnl = 0
		s.dailyUnwindLoss = 0
	}
}

// AddRealizedPnl adds (or subtracts, if negative) deltaCents to the
// day's realized PnL and returns the new total.
func (s *State) AddRealizedPnl(deltaCents int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyRealizedPnl += deltaCents
	return s.dailyRealizedPnl
}

// AddUnwindLoss records an unwind's realized loss alongside the
// running realized-PnL total.
func (s *State) AddUnwindLoss(lossCents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyUnwindLoss += lossCents
	s.dailyRealizedPnl -= lossCents
}

// DailyRealizedPnl returns the current day's realized PnL in Cents
// (negative indicates a net loss).
func (s *State) DailyRealizedPnl() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyRealizedPnl
}

// DailyLossExceedsCap reports whether the day's net loss has reached
// or exceeded maxDailyLoss.
func (s *State) DailyLossExceedsCap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyRealizedPnl <= -s.maxDailyLoss
}

// TriggerKillSwitch arms the kill switch with a reason. A reason of
// "daily_loss" is terminal until a manual reset.
func (s *State) TriggerKillSwitch(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killSwitchTriggered = true
	s.killSwitchReason = reason
}

// KillSwitchTriggered reports whether the kill switch is currently armed.
func (s *State) KillSwitchTriggered() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killSwitchTriggered, s.killSwitchReason
}

// AttemptRecovery clears the kill switch when allowed: the reason is
// not daily_loss, the current daily loss is below the cap, and no
// liquidation is active. Returns whether recovery succeeded.
func (s *State) AttemptRecovery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.killSwitchTriggered {
		return true
	}
	if s.killSwitchReason == KillSwitchReasonDailyLoss {
		return false
	}
	if s.dailyRealizedPnl <= -s.maxDailyLoss {
		return false
	}
	if s.liquidationInProgress {
		return false
	}
	s.killSwitchTriggered = false
	s.killSwitchReason = ""
	return true
}

// ManualReset force-clears the kill switch regardless of reason, for
// operator-initiated recovery from a daily_loss trip.
func (s *State) ManualReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killSwitchTriggered = false
	s.killSwitchReason = ""
}

// SetLiquidationInProgress marks whether a force-liquidate-all is
// currently running; blocks the reconciler and kill-switch recovery
// while true.
func (s *State) SetLiquidationInProgress(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liquidationInProgress = v
}

// LiquidationInProgress reports the current liquidation flag.
func (s *State) LiquidationInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liquidationInProgress
}

// AddNotional increases the running open-notional counter.
func (s *State) AddNotional(deltaCents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalNotional += deltaCents
}

// RemoveNotional decreases the running open-notional counter, floored
// at zero.
func (s *State) RemoveNotional(deltaCents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalNotional -= deltaCents
	if s.totalNotional < 0 {
		s.totalNotional = 0
	}
}

// TotalNotional returns the current open-notional counter.
func (s *State) TotalNotional() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalNotional
}

// MaxNotional returns the configured notional cap.
func (s *State) MaxNotional() int64 {
	return s.maxNotional
}

// MaxDailyLoss returns the configured daily-loss cap.
func (s *State) MaxDailyLoss() int64 {
	return s.maxDailyLoss
}

// AddPendingSettlement records a completed box held through interval close.
func (s *State) AddPendingSettlement(p PendingSettlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingSettlements[p.ExecutionID] = p
}

// SettlePending drains every pending settlement whose IntervalKey
// matches key, folding each ExpectedPnl into dailyRealizedPnl, and
// returns the drained settlements.
func (s *State) SettlePending(key interval.Key) []PendingSettlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var drained []PendingSettlement
	for id, p := range s.pendingSettlements {
		if p.IntervalKey == key {
			s.dailyRealizedPnl += p.ExpectedPnl
			drained = append(drained, p)
			delete(s.pendingSettlements, id)
		}
	}
	return drained
}

// PendingSettlementTotal sums ExpectedPnl across every pending
// settlement, used by the pending-settlement-conservation check.
func (s *State) PendingSettlementTotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, p := range s.pendingSettlements {
		total += p.ExpectedPnl
	}
	return total
}
