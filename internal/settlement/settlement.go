// Package settlement captures an immutable snapshot of BTC reference
// prices at each interval's close, schedules delayed resolution
// checks against both venues, and derives oracle-agreement and
// dead-zone flags independent of the hot trading path.
package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/journal"
)

// Resolution is a venue's reported outcome for an interval.
type Resolution string

const (
	ResolutionUp      Resolution = "up"
	ResolutionDown    Resolution = "down"
	ResolutionUnknown Resolution = "unknown"
)

// IntervalCloseSnapshot is captured once, at rollover, and never
// mutated afterward.
type IntervalCloseSnapshot struct {
	Key               interval.Key
	Spot              float64
	Twap60s           float64
	ClobRefPrice      float64
	OnchainRefPrice   float64
	CrossingCount     int
	RangeUsd          float64
	DistFromRefAtClose float64
	CapturedAt        time.Time
}

// ResolutionFetcher queries one venue's resolution REST endpoint for
// a settled interval.
type ResolutionFetcher func(ctx context.Context, key interval.Key) (Resolution, error)

// Config controls the settlement tracker's delayed-check schedule.
type Config struct {
	CheckDelays []time.Duration
}

// DefaultConfig checks at +15s, +2m, +5m after rollover.
func DefaultConfig() Config {
	return Config{CheckDelays: []time.Duration{15 * time.Second, 2 * time.Minute, 5 * time.Minute}}
}

// Tracker schedules and records settlement outcomes.
type Tracker struct {
	cfg      Config
	clob     ResolutionFetcher
	onchain  ResolutionFetcher
	journal  *journal.SettlementJournal
	log      *zap.Logger
}

// NewTracker builds a settlement Tracker.
func NewTracker(cfg Config, clob, onchain ResolutionFetcher, j *journal.SettlementJournal, log *zap.Logger) *Tracker {
	return &Tracker{cfg: cfg, clob: clob, onchain: onchain, journal: j, log: log}
}

// ScheduleChecks captures snap and, in the background, runs up to
// len(cfg.CheckDelays) delayed resolution checks, stopping early once
// both venues have resolved. ctx cancellation aborts remaining checks.
func (t *Tracker) ScheduleChecks(ctx context.Context, snap IntervalCloseSnapshot) {
	go func() {
		var clobRes, onchainRes Resolution = ResolutionUnknown, ResolutionUnknown

		for _, delay := range t.cfg.CheckDelays {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			if clobRes == ResolutionUnknown {
				if r, err := t.clob.fetchOrUnknown(ctx, snap.Key, t.log); err == nil {
					clobRes = r
				}
			}
			if onchainRes == ResolutionUnknown {
				if r, err := t.onchain.fetchOrUnknown(ctx, snap.Key, t.log); err == nil {
					onchainRes = r
				}
			}

			if clobRes != ResolutionUnknown && onchainRes != ResolutionUnknown {
				break
			}
		}

		outcome := BuildOutcome(snap, clobRes, onchainRes)
		if t.journal != nil {
			if err := t.journal.Log(outcome.Row(time.Now())); err != nil {
				t.log.Warn("failed to journal settlement outcome", zap.Error(err))
			}
		}
	}()
}

// fetchOrUnknown calls the fetcher, logging and returning
// ResolutionUnknown (with the error so retries continue) on failure.
func (f ResolutionFetcher) fetchOrUnknown(ctx context.Context, key interval.Key, log *zap.Logger) (Resolution, error) {
	res, err := f(ctx, key)
	if err != nil {
		log.Warn("resolution fetch failed, will retry", zap.Error(err))
		return ResolutionUnknown, err
	}
	return res, nil
}

// SettlementOutcome is the derived result of comparing both venues'
// resolutions against the close snapshot.
type SettlementOutcome struct {
	Snapshot          IntervalCloseSnapshot
	ClobResolution    Resolution
	OnchainResolution Resolution
	OraclesAgree      bool
	DeadZoneHit       bool
}

// BuildOutcome derives agreement and dead-zone flags: oracles agree
// when both resolutions are known and equal; a dead zone is flagged
// when both resolutions are known and differ. The snapshot's spot and
// TWAP are not consulted.
func BuildOutcome(snap IntervalCloseSnapshot, clobRes, onchainRes Resolution) SettlementOutcome {
	agree := clobRes != ResolutionUnknown && clobRes == onchainRes
	deadZone := !agree && clobRes != ResolutionUnknown && onchainRes != ResolutionUnknown

	return SettlementOutcome{
		Snapshot:          snap,
		ClobResolution:    clobRes,
		OnchainResolution: onchainRes,
		OraclesAgree:      agree,
		DeadZoneHit:       deadZone,
	}
}

// Row converts the outcome into a journal.SettlementRow.
func (o SettlementOutcome) Row(checkedAt time.Time) journal.SettlementRow {
	return journal.SettlementRow{
		IntervalStartTs:       o.Snapshot.Key.Start,
		IntervalEndTs:         o.Snapshot.Key.End(),
		BtcRefPriceClob:       o.Snapshot.ClobRefPrice,
		BtcRefPriceOnchain:    o.Snapshot.OnchainRefPrice,
		BtcSpotAtClose:        o.Snapshot.Spot,
		BtcTwap60sAtClose:     o.Snapshot.Twap60s,
		ClobResolution:        string(o.ClobResolution),
		OnchainResolution:     string(o.OnchainResolution),
		OraclesAgree:          o.OraclesAgree,
		DeadZoneHit:           o.DeadZoneHit,
		BtcCrossingCount:      o.Snapshot.CrossingCount,
		BtcRangeUsd:           o.Snapshot.RangeUsd,
		BtcDistFromRefAtClose: o.Snapshot.DistFromRefAtClose,
		CheckedAt:             checkedAt,
	}
}

// ResolutionFor derives a venue's resolution from a reference price
// against the strike: at or above the strike resolves up.
func ResolutionFor(refPrice, strike float64) Resolution {
	if refPrice >= strike {
		return ResolutionUp
	}
	return ResolutionDown
}

// CrossingCounter tracks how many times a tick series crosses a fixed
// reference price during an interval. A tick exactly at the reference
// counts as "above" and does not itself register a crossing.
type CrossingCounter struct {
	reference float64
	lastAbove bool
	hasLast   bool
	count     int
	min, max  float64
}

// NewCrossingCounter starts tracking crossings of reference.
func NewCrossingCounter(reference float64) *CrossingCounter {
	return &CrossingCounter{reference: reference}
}

// Tick feeds one price observation.
func (c *CrossingCounter) Tick(price float64) {
	if !c.hasLast {
		c.min, c.max = price, price
	} else {
		if price < c.min {
			c.min = price
		}
		if price > c.max {
			c.max = price
		}
	}

	above := price >= c.reference
	if c.hasLast && above != c.lastAbove && price != c.reference {
		c.count++
	}
	c.lastAbove = above
	c.hasLast = true
}

// Count returns the number of crossings observed so far.
func (c *CrossingCounter) Count() int { return c.count }

// Range returns the observed high-low range in dollars.
func (c *CrossingCounter) Range() float64 {
	if !c.hasLast {
		return 0
	}
	return c.max - c.min
}
