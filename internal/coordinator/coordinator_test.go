package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcarb/boxarb/internal/execution"
	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/mapping"
	"github.com/btcarb/boxarb/internal/position"
	"github.com/btcarb/boxarb/internal/quote"
	"github.com/btcarb/boxarb/internal/venue"
	"github.com/btcarb/boxarb/pkg/telemetry"
)

var errConnectRefused = errors.New("connection refused")

type fakeClient struct {
	name        string
	events      chan venue.Event
	subscribed  []string
	connectErr  error
	connectedN  int
}

func (f *fakeClient) Name() string { return f.name }
func (f *fakeClient) Connect(ctx context.Context) error {
	f.connectedN++
	return f.connectErr
}
func (f *fakeClient) Events() <-chan venue.Event        { return f.events }
func (f *fakeClient) Subscribe(marketID string) error {
	f.subscribed = append(f.subscribed, marketID)
	return nil
}
func (f *fakeClient) Unsubscribe(marketID string) {}
func (f *fakeClient) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{}, nil
}
func (f *fakeClient) CancelOrder(ctx context.Context, id string) error { return nil }
func (f *fakeClient) GetOrderStatus(ctx context.Context, id string) (venue.OrderResult, error) {
	return venue.OrderResult{}, nil
}
func (f *fakeClient) GetQuote(marketID string) (quote.Normalized, bool) { return quote.Normalized{}, false }
func (f *fakeClient) Close() error                                     { return nil }

func TestGetQuoteReflectsLatestCachedUpdate(t *testing.T) {
	clobClient := &fakeClient{name: "clob", events: make(chan venue.Event, 4)}
	onchainClient := &fakeClient{name: "onchain", events: make(chan venue.Event, 4)}
	clients := map[quote.Venue]venue.Client{quote.VenueClob: clobClient, quote.VenueOnchain: onchainClient}

	store := mapping.NewStore(24 * time.Hour)
	clock := interval.New(nil)
	tracker := position.NewTracker()
	state := execution.NewState(time.Now(), 2000000, 20000000)
	cancelCalled := false
	cancel := func(ctx context.Context, v quote.Venue, marketID string) error {
		cancelCalled = true
		return nil
	}

	co := New(clients, store, clock, tracker, state, cancel, telemetry.Nop())

	ctx, stop := context.WithCancel(context.Background())
	go co.pumpVenueEvents(ctx, quote.VenueClob, clobClient)

	clobClient.events <- venue.Event{Type: venue.EventQuoteUpdate, Quote: quote.Normalized{YesAsk: 0.45}}
	time.Sleep(20 * time.Millisecond)
	stop()

	q, ok := co.GetQuote(quote.VenueClob)
	if !ok || q.YesAsk != 0.45 {
		t.Fatalf("expected cached quote YesAsk=0.45, got %+v ok=%v", q, ok)
	}
	_ = cancelCalled
}

func TestStartConnectsEveryClientBeforeWaitingOnMapping(t *testing.T) {
	clobClient := &fakeClient{name: "clob", events: make(chan venue.Event)}
	onchainClient := &fakeClient{name: "onchain", events: make(chan venue.Event)}
	clients := map[quote.Venue]venue.Client{quote.VenueClob: clobClient, quote.VenueOnchain: onchainClient}

	store := mapping.NewStore(24 * time.Hour)
	clock := interval.New(nil)
	tracker := position.NewTracker()
	state := execution.NewState(time.Now(), 2000000, 20000000)
	cancel := func(ctx context.Context, v quote.Venue, marketID string) error { return nil }

	co := New(clients, store, clock, tracker, state, cancel, telemetry.Nop())

	ctx, stop := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer stop()
	_ = co.Start(ctx)

	if clobClient.connectedN != 1 {
		t.Errorf("expected clob client Connect called once, got %d", clobClient.connectedN)
	}
	if onchainClient.connectedN != 1 {
		t.Errorf("expected onchain client Connect called once, got %d", onchainClient.connectedN)
	}
}

func TestStartFailsFastOnConnectError(t *testing.T) {
	connectErr := errConnectRefused
	clobClient := &fakeClient{name: "clob", events: make(chan venue.Event), connectErr: connectErr}
	clients := map[quote.Venue]venue.Client{quote.VenueClob: clobClient}

	store := mapping.NewStore(24 * time.Hour)
	clock := interval.New(nil)
	tracker := position.NewTracker()
	state := execution.NewState(time.Now(), 2000000, 20000000)
	cancel := func(ctx context.Context, v quote.Venue, marketID string) error { return nil }

	co := New(clients, store, clock, tracker, state, cancel, telemetry.Nop())

	err := co.Start(context.Background())
	if err == nil {
		t.Fatal("expected Start to fail when a venue client fails to connect")
	}
}

func TestOnRolloverClearsQuoteCacheAndSubscribesNext(t *testing.T) {
	clobClient := &fakeClient{name: "clob", events: make(chan venue.Event, 1)}
	clients := map[quote.Venue]venue.Client{quote.VenueClob: clobClient}

	store := mapping.NewStore(24 * time.Hour)
	clock := interval.New(nil)
	tracker := position.NewTracker()
	state := execution.NewState(time.Now(), 2000000, 20000000)
	cancel := func(ctx context.Context, v quote.Venue, marketID string) error { return nil }

	co := New(clients, store, clock, tracker, state, cancel, telemetry.Nop())
	co.quoteCache[quote.VenueClob] = quote.Normalized{YesAsk: 0.5}

	prev := clock.Current()
	next := interval.Key{Start: prev.Start.Add(15 * time.Minute)}
	store.SetClob(next, "next-market")

	co.onRollover(prev, next)

	if _, ok := co.GetQuote(quote.VenueClob); ok {
		t.Error("expected quote cache cleared after rollover")
	}
	if len(clobClient.subscribed) != 1 || clobClient.subscribed[0] != "next-market" {
		t.Errorf("expected subscription to next-market, got %v", clobClient.subscribed)
	}
}
