package clob

import (
	"testing"

	"github.com/btcarb/boxarb/internal/venue/normalize"
)

func TestApplySnapshotSortsAscending(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(
		[]normalize.Level{{Price: 0.42, Size: 13}, {Price: 0.41, Size: 10}},
		[]normalize.Level{{Price: 0.56, Size: 146}, {Price: 0.54, Size: 20}},
		1,
	)
	yes, no, seq := b.Snapshot()
	if seq != 1 {
		t.Fatalf("seqNo = %d, want 1", seq)
	}
	if yes[len(yes)-1].Price != 0.42 {
		t.Errorf("best YES bid should be last, got %v", yes)
	}
	if no[len(no)-1].Price != 0.56 {
		t.Errorf("best NO bid should be last, got %v", no)
	}
}

func TestApplyDeltaDetectsSeqGap(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(nil, nil, 5)
	if err := b.ApplyDelta("yes", 0.4, 10, 7); err != ErrSeqGap {
		t.Errorf("expected ErrSeqGap, got %v", err)
	}
}

func TestApplyDeltaRemovesZeroedLevel(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot([]normalize.Level{{Price: 0.4, Size: 10}}, nil, 1)
	if err := b.ApplyDelta("yes", 0.4, -10, 2); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	yes, _, _ := b.Snapshot()
	if len(yes) != 0 {
		t.Errorf("level should be removed once size hits zero, got %v", yes)
	}
}

func TestApplyDeltaInsertsNewLevelAscending(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot([]normalize.Level{{Price: 0.4, Size: 10}}, nil, 1)
	if err := b.ApplyDelta("yes", 0.45, 5, 2); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	yes, _, _ := b.Snapshot()
	if len(yes) != 2 || yes[len(yes)-1].Price != 0.45 {
		t.Errorf("new best bid should land last, got %v", yes)
	}
}
