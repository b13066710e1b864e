package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExecutionJournalWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "executions.csv")

	j1, err := NewExecutionJournal(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := j1.Log(ExecutionRow{ExecutionID: "e1", Status: "success", RealizedPnlCents: 100}); err != nil {
		t.Fatalf("log failed: %v", err)
	}
	j1.Close()

	j2, err := NewExecutionJournal(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := j2.Log(ExecutionRow{ExecutionID: "e2", Status: "aborted"}); err != nil {
		t.Fatalf("log failed: %v", err)
	}
	j2.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(rows) != 3 { // header + 2 data rows
		t.Fatalf("expected 3 rows, got %d: %v", len(rows), rows)
	}
	if rows[0][0] != "execution_id" {
		t.Errorf("expected header row first, got %v", rows[0])
	}
}

func TestSettlementJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settlements.csv")

	j, err := NewSettlementJournal(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now := time.Date(2026, 7, 30, 16, 15, 0, 0, time.UTC)
	err = j.Log(SettlementRow{
		IntervalStartTs:  now.Add(-15 * time.Minute),
		IntervalEndTs:    now,
		OraclesAgree:     false,
		DeadZoneHit:      true,
		BtcCrossingCount: 3,
		CheckedAt:        now,
	})
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	j.Close()

	f, _ := os.Open(path)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}
	if rows[1][8] != "false" || rows[1][9] != "true" {
		t.Errorf("unexpected oracles_agree/dead_zone_hit values: %v", rows[1])
	}
}
