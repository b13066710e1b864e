package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/mapping"
	"github.com/btcarb/boxarb/pkg/telemetry"
)

type fakeResolver struct {
	id  string
	err error
}

func (f fakeResolver) Resolve(ctx context.Context, key interval.Key) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func TestResolveBothPopulatesStore(t *testing.T) {
	store := mapping.NewStore(24 * time.Hour)
	clock := interval.New(nil)
	loop := New(DefaultConfig(), fakeResolver{id: "KXBTCD-26JUL3012"}, fakeResolver{id: "0xabc"}, store, clock, telemetry.Nop())

	key := clock.Current()
	loop.resolveBoth(context.Background(), key)

	m, ok := store.Get(key)
	if !ok {
		t.Fatalf("expected mapping for %v", key)
	}
	if m.ClobMarketID != "KXBTCD-26JUL3012" || m.OnchainMarketID != "0xabc" {
		t.Errorf("unexpected mapping: %+v", m)
	}
	if !m.IsComplete() {
		t.Errorf("expected complete mapping")
	}
}

func TestResolveClobEmitsErrorEvent(t *testing.T) {
	store := mapping.NewStore(24 * time.Hour)
	clock := interval.New(nil)
	loop := New(DefaultConfig(), fakeResolver{err: errors.New("boom")}, fakeResolver{id: "0xabc"}, store, clock, telemetry.Nop())

	key := clock.Current()
	loop.resolveBoth(context.Background(), key)

	var sawErr, sawPrefetch bool
	for {
		select {
		case ev := <-loop.Events():
			if ev.Type == EventError && ev.Venue == "clob" {
				sawErr = true
			}
			if ev.Type == EventPrefetchCompleted {
				sawPrefetch = true
				if ev.Success {
					t.Errorf("prefetch should be marked unsuccessful when clob resolution fails")
				}
			}
		default:
			if !sawErr || !sawPrefetch {
				t.Errorf("expected clob error event and failed prefetch event, sawErr=%v sawPrefetch=%v", sawErr, sawPrefetch)
			}
			return
		}
	}
}

func TestTickerResolverFormatsEasternDate(t *testing.T) {
	r := TickerResolver{SeriesTicker: "KXBTCD"}
	key := interval.Key{Start: time.Date(2026, 7, 30, 16, 0, 0, 0, time.UTC)}
	got, err := r.Resolve(context.Background(), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Interval ends 16:15 UTC; Eastern is UTC-4 in July, so 12:15 ET.
	want := "KXBTCD-26JUL3012"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRESTListResolverPicksNearestCloseAtOrAfterEnd(t *testing.T) {
	key := interval.Key{Start: time.Date(2026, 7, 30, 16, 0, 0, 0, time.UTC)}
	end := key.End()

	r := RESTListResolver{List: func(ctx context.Context) ([]OpenMarket, error) {
		return []OpenMarket{
			{MarketID: "too-early", ClosesAt: end.Add(-1 * time.Minute)},
			{MarketID: "exact", ClosesAt: end},
			{MarketID: "later", ClosesAt: end.Add(15 * time.Minute)},
		}, nil
	}}

	got, err := r.Resolve(context.Background(), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "exact" {
		t.Errorf("expected nearest-at-or-after match %q, got %q", "exact", got)
	}
}

func TestRESTListResolverErrorsWhenNoMarketCoversInterval(t *testing.T) {
	key := interval.Key{Start: time.Date(2026, 7, 30, 16, 0, 0, 0, time.UTC)}
	r := RESTListResolver{List: func(ctx context.Context) ([]OpenMarket, error) {
		return []OpenMarket{{MarketID: "stale", ClosesAt: key.End().Add(-time.Hour)}}, nil
	}}

	if _, err := r.Resolve(context.Background(), key); err == nil {
		t.Fatal("expected error when no open market closes at or after interval end")
	}
}
