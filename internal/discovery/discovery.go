// Package discovery resolves, for the current and next 15-minute
// interval, each venue's market identifier: the CLOB-style exchange's
// event/market ticker and the onchain venue's up/down token identifiers.
package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/mapping"
)

// EventType enumerates the discovery loop's notifications.
type EventType int

const (
	EventMarketDiscovered EventType = iota
	EventPrefetchCompleted
	EventRollover
	EventError
)

// Event is emitted on every discovery outcome.
type Event struct {
	Type    EventType
	Key     interval.Key
	Venue   string
	Success bool
	Err     error
	At      time.Time
}

// ClobResolver constructs or looks up the CLOB-style venue's market
// ticker for a given interval. Implementations may construct the
// ticker deterministically or fall back to a REST list call.
type ClobResolver interface {
	Resolve(ctx context.Context, key interval.Key) (marketID string, err error)
}

// OnchainResolver is the equivalent collaborator for the two-book venue.
type OnchainResolver interface {
	Resolve(ctx context.Context, key interval.Key) (marketID string, err error)
}

// Config controls the discovery loop's polling cadence.
type Config struct {
	PollInterval time.Duration
}

// DefaultConfig polls every 30s, comfortably inside a 15-minute interval.
func DefaultConfig() Config {
	return Config{PollInterval: 30 * time.Second}
}

// Loop resolves current/next interval market identifiers on each venue
// and writes them into a mapping.Store.
type Loop struct {
	cfg     Config
	clob    ClobResolver
	onchain OnchainResolver
	store   *mapping.Store
	clock   *interval.Clock
	log     *zap.Logger

	events chan Event
}

// New builds a discovery Loop.
func New(cfg Config, clob ClobResolver, onchain OnchainResolver, store *mapping.Store, clock *interval.Clock, log *zap.Logger) *Loop {
	return &Loop{
		cfg:     cfg,
		clob:    clob,
		onchain: onchain,
		store:   store,
		clock:   clock,
		log:     log,
		events:  make(chan Event, 64),
	}
}

// Events returns the loop's notification channel.
func (l *Loop) Events() <-chan Event { return l.events }

// Run resolves the current and next interval on both venues, then
// polls at cfg.PollInterval until ctx is cancelled. It also resolves
// immediately on every rollover via clock.OnRollover.
func (l *Loop) Run(ctx context.Context) {
	l.clock.OnRollover(func(prev, next interval.Key) {
		l.resolveBoth(ctx, next)
		l.emit(Event{Type: EventRollover, Key: next, Success: true, At: time.Now()})
	})

	l.resolveBoth(ctx, l.clock.Current())
	l.resolveBoth(ctx, l.clock.Next())

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.resolveBoth(ctx, l.clock.Current())
			l.resolveBoth(ctx, l.clock.Next())
		}
	}
}

func (l *Loop) resolveBoth(ctx context.Context, key interval.Key) {
	clobOK := l.resolveClob(ctx, key)
	onchainOK := l.resolveOnchain(ctx, key)
	l.emit(Event{Type: EventPrefetchCompleted, Key: key, Success: clobOK && onchainOK, At: time.Now()})
}

func (l *Loop) resolveClob(ctx context.Context, key interval.Key) bool {
	if _, ok := l.store.Get(key); ok {
		if m, _ := l.store.Get(key); m.ClobMarketID != "" {
			return true
		}
	}
	marketID, err := l.clob.Resolve(ctx, key)
	if err != nil {
		l.log.Warn("clob market discovery failed", zap.String("interval", key.String()), zap.Error(err))
		l.emit(Event{Type: EventError, Key: key, Venue: "clob", Err: err, At: time.Now()})
		return false
	}
	l.store.SetClob(key, marketID)
	l.emit(Event{Type: EventMarketDiscovered, Key: key, Venue: "clob", Success: true, At: time.Now()})
	return true
}

func (l *Loop) resolveOnchain(ctx context.Context, key interval.Key) bool {
	if m, ok := l.store.Get(key); ok && m.OnchainMarketID != "" {
		return true
	}
	marketID, err := l.onchain.Resolve(ctx, key)
	if err != nil {
		l.log.Warn("onchain market discovery failed", zap.String("interval", key.String()), zap.Error(err))
		l.emit(Event{Type: EventError, Key: key, Venue: "onchain", Err: err, At: time.Now()})
		return false
	}
	l.store.SetOnchain(key, marketID)
	l.emit(Event{Type: EventMarketDiscovered, Key: key, Venue: "onchain", Success: true, At: time.Now()})
	return true
}

func (l *Loop) emit(ev Event) {
	select {
	case l.events <- ev:
	default:
		l.log.Warn("discovery event buffer full, dropping event", zap.Int("type", int(ev.Type)))
	}
}

// TickerResolver deterministically constructs the CLOB-style venue's
// event/market ticker from the interval's end time in Eastern Time,
// per the venue's documented ticker naming scheme
// (SERIES-YYMMMDDHH, e.g. KXBTCD-26JUL3012). It never makes a network call; REST
// fallback is supplied by a separate RESTListResolver collaborator
// for markets whose naming the series prefix doesn't cover.
type TickerResolver struct {
	SeriesTicker string
}

// Resolve builds the ticker string for key's end timestamp.
func (r TickerResolver) Resolve(ctx context.Context, key interval.Key) (string, error) {
	end := ToEastern(key.End())
	return fmt.Sprintf("%s-%02d%s%02d%02d", r.SeriesTicker, end.Year()%100, easternMonthAbbrev(end.Month()), end.Day(), end.Hour()), nil
}

func easternMonthAbbrev(m time.Month) string {
	return [...]string{"", "JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}[m]
}

// OpenMarket is one entry in a venue's REST market list, filtered to
// status=open by the ListFunc implementation before it reaches Resolve.
type OpenMarket struct {
	MarketID string
	ClosesAt time.Time
}

// ListFunc fetches the venue's currently open markets. Its wire format
// is the venue's own REST API and out of scope here.
type ListFunc func(ctx context.Context) ([]OpenMarket, error)

// RESTListResolver is the fallback used when a venue's market naming
// isn't deterministic enough for TickerResolver: it lists open markets
// and picks the one closing nearest to (and not before) the interval's
// end.
type RESTListResolver struct {
	List ListFunc
}

// Resolve returns the open market whose close time is nearest to, and
// not before, key.End().
func (r RESTListResolver) Resolve(ctx context.Context, key interval.Key) (string, error) {
	markets, err := r.List(ctx)
	if err != nil {
		return "", fmt.Errorf("discovery: list open markets: %w", err)
	}

	end := key.End()
	var best OpenMarket
	haveBest := false
	for _, m := range markets {
		if m.ClosesAt.Before(end) {
			continue
		}
		if !haveBest || m.ClosesAt.Before(best.ClosesAt) {
			best = m
			haveBest = true
		}
	}
	if !haveBest {
		return "", fmt.Errorf("discovery: no open market closes at or after %s", end)
	}
	return best.MarketID, nil
}
