package execution

import (
	"testing"
	"time"

	"github.com/btcarb/boxarb/internal/interval"
)

func TestBusyLockIsExclusive(t *testing.T) {
	s := NewState(time.Now(), 2000000, 20000000)
	if !s.AcquireBusyLock() {
		t.Fatal("expected first acquire to succeed")
	}
	if s.AcquireBusyLock() {
		t.Fatal("expected second acquire to fail while busy")
	}
	s.ReleaseBusyLock()
	if !s.AcquireBusyLock() {
		t.Fatal("expected acquire to succeed after release")
	}
}

func TestDailyLossRollsAtUTCMidnightButNotKillSwitch(t *testing.T) {
	day1 := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	s := NewState(day1, 2000000, 20000000)
	s.AddRealizedPnl(-2500000)
	s.TriggerKillSwitch(KillSwitchReasonDailyLoss)

	day2 := time.Date(2026, 7, 31, 0, 5, 0, 0, time.UTC)
	s.RollDailyIfNeeded(day2)

	if got := s.DailyRealizedPnl(); got != 0 {
		t.Errorf("expected daily PnL reset to 0, got %d", got)
	}
	triggered, reason := s.KillSwitchTriggered()
	if !triggered || reason != KillSwitchReasonDailyLoss {
		t.Error("kill switch must survive a day roll")
	}
}

func TestAttemptRecoveryRefusesDailyLossReason(t *testing.T) {
	s := NewState(time.Now(), 2000000, 20000000)
	s.TriggerKillSwitch(KillSwitchReasonDailyLoss)
	if s.AttemptRecovery() {
		t.Fatal("daily_loss kill switch should not auto-recover")
	}
}

func TestAttemptRecoverySucceedsForOtherReasons(t *testing.T) {
	s := NewState(time.Now(), 2000000, 20000000)
	s.TriggerKillSwitch("connectivity_loss")
	if !s.AttemptRecovery() {
		t.Fatal("expected recovery to succeed")
	}
	triggered, _ := s.KillSwitchTriggered()
	if triggered {
		t.Error("expected kill switch cleared")
	}
}

func TestAttemptRecoveryBlockedDuringLiquidation(t *testing.T) {
	s := NewState(time.Now(), 2000000, 20000000)
	s.TriggerKillSwitch("connectivity_loss")
	s.SetLiquidationInProgress(true)
	if s.AttemptRecovery() {
		t.Fatal("recovery should be blocked while liquidation is in progress")
	}
}

func TestRemoveNotionalFloorsAtZero(t *testing.T) {
	s := NewState(time.Now(), 2000000, 20000000)
	s.AddNotional(500)
	s.RemoveNotional(900)
	if got := s.TotalNotional(); got != 0 {
		t.Errorf("expected notional floored at 0, got %d", got)
	}
}

func TestSettlePendingConservation(t *testing.T) {
	s := NewState(time.Now(), 2000000, 20000000)
	key := interval.Key{Start: time.Date(2026, 7, 30, 16, 0, 0, 0, time.UTC)}
	s.AddPendingSettlement(PendingSettlement{ExecutionID: "e1", IntervalKey: key, ExpectedPnl: 500})
	s.AddPendingSettlement(PendingSettlement{ExecutionID: "e2", IntervalKey: key, ExpectedPnl: 300})

	before := s.PendingSettlementTotal()
	if before != 800 {
		t.Fatalf("expected total 800, got %d", before)
	}

	drained := s.SettlePending(key)
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained, got %d", len(drained))
	}
	if got := s.DailyRealizedPnl(); got != 800 {
		t.Errorf("expected realized PnL 800 after settle, got %d", got)
	}
	if got := s.PendingSettlementTotal(); got != 0 {
		t.Errorf("expected pending total drained to 0, got %d", got)
	}
}
