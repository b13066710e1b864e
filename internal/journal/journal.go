// Package journal provides append-only CSV writers for execution and
// settlement records, adapted from the append-and-sync JSONL pattern
// of sdibella-kalshi-btc15m/internal/journal/journal.go to the fixed
// column sets the two persisted record kinds require.
package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

var executionColumns = []string{
	"execution_id", "started_at", "ended_at", "status", "venue_a", "venue_b",
	"leg_a_side", "leg_a_price", "leg_a_qty", "leg_a_status",
	"leg_b_side", "leg_b_price", "leg_b_qty", "leg_b_status",
	"expected_edge_net", "realized_pnl_cents", "unwound",
}

var settlementColumns = []string{
	"interval_start_ts", "interval_end_ts", "btc_ref_price_clob", "btc_ref_price_onchain",
	"btc_spot_at_close", "btc_twap_60s_at_close", "clob_resolution", "onchain_resolution",
	"oracles_agree", "dead_zone_hit", "btc_crossing_count", "btc_range_usd",
	"btc_dist_from_ref_at_close", "checked_at",
}

// Writer is an append-only CSV journal for one record kind. The
// header is written once, on first open of a fresh file.
type Writer struct {
	f       *os.File
	w       *csv.Writer
	mu      sync.Mutex
	columns []string
}

func newWriter(path string, columns []string) (*Writer, error) {
	_, statErr := os.Stat(path)
	needsHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, w: csv.NewWriter(f), columns: columns}
	if needsHeader {
		if err := w.writeRow(columns); err != nil {
			f.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Writer) writeRow(row []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Write(row); err != nil {
		return err
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return err
	}
	return w.f.Sync()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w.Flush()
	return w.f.Close()
}

// ExecutionRow is one executions.csv row, built from an
// execution.ExecutionRecord by the caller (internal/journal doesn't
// import internal/execution).
type ExecutionRow struct {
	ExecutionID      string
	StartedAt        time.Time
	EndedAt          time.Time
	Status           string
	VenueA, VenueB   string
	LegASide         string
	LegAPrice        float64
	LegAQty          float64
	LegAStatus       string
	LegBSide         string
	LegBPrice        float64
	LegBQty          float64
	LegBStatus       string
	ExpectedEdgeNet  float64
	RealizedPnlCents int64
	Unwound          bool
}

// ExecutionJournal appends ExecutionRow records to executions.csv.
type ExecutionJournal struct{ w *Writer }

// NewExecutionJournal opens (or creates) executions.csv.
func NewExecutionJournal(path string) (*ExecutionJournal, error) {
	w, err := newWriter(path, executionColumns)
	if err != nil {
		return nil, err
	}
	return &ExecutionJournal{w: w}, nil
}

// Log appends one execution row.
func (j *ExecutionJournal) Log(r ExecutionRow) error {
	return j.w.writeRow([]string{
		r.ExecutionID,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.EndedAt.UTC().Format(time.RFC3339Nano),
		r.Status,
		r.VenueA, r.VenueB,
		r.LegASide, formatFloat(r.LegAPrice), formatFloat(r.LegAQty), r.LegAStatus,
		r.LegBSide, formatFloat(r.LegBPrice), formatFloat(r.LegBQty), r.LegBStatus,
		formatFloat(r.ExpectedEdgeNet),
		strconv.FormatInt(r.RealizedPnlCents, 10),
		strconv.FormatBool(r.Unwound),
	})
}

// Close flushes and closes the underlying file.
func (j *ExecutionJournal) Close() error { return j.w.Close() }

// SettlementRow is one settlements.csv row, with the spec's literal
// column names.
type SettlementRow struct {
	IntervalStartTs      time.Time
	IntervalEndTs        time.Time
	BtcRefPriceClob      float64
	BtcRefPriceOnchain   float64
	BtcSpotAtClose       float64
	BtcTwap60sAtClose    float64
	ClobResolution       string
	OnchainResolution    string
	OraclesAgree         bool
	DeadZoneHit          bool
	BtcCrossingCount     int
	BtcRangeUsd          float64
	BtcDistFromRefAtClose float64
	CheckedAt            time.Time
}

// SettlementJournal appends SettlementRow records to settlements.csv.
type SettlementJournal struct{ w *Writer }

// NewSettlementJournal opens (or creates) settlements.csv.
func NewSettlementJournal(path string) (*SettlementJournal, error) {
	w, err := newWriter(path, settlementColumns)
	if err != nil {
		return nil, err
	}
	return &SettlementJournal{w: w}, nil
}

// Log appends one settlement row.
func (j *SettlementJournal) Log(r SettlementRow) error {
	return j.w.writeRow([]string{
		r.IntervalStartTs.UTC().Format(time.RFC3339Nano),
		r.IntervalEndTs.UTC().Format(time.RFC3339Nano),
		formatFloat(r.BtcRefPriceClob),
		formatFloat(r.BtcRefPriceOnchain),
		formatFloat(r.BtcSpotAtClose),
		formatFloat(r.BtcTwap60sAtClose),
		r.ClobResolution,
		r.OnchainResolution,
		strconv.FormatBool(r.OraclesAgree),
		strconv.FormatBool(r.DeadZoneHit),
		strconv.Itoa(r.BtcCrossingCount),
		formatFloat(r.BtcRangeUsd),
		formatFloat(r.BtcDistFromRefAtClose),
		r.CheckedAt.UTC().Format(time.RFC3339Nano),
	})
}

// Close flushes and closes the underlying file.
func (j *SettlementJournal) Close() error { return j.w.Close() }

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
