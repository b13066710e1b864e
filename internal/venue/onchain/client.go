package onchain

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/btcarb/boxarb/internal/quote"
	"github.com/btcarb/boxarb/internal/venue"
	"github.com/btcarb/boxarb/internal/venue/auth"
	"github.com/btcarb/boxarb/internal/venue/normalize"
	"github.com/btcarb/boxarb/internal/venue/wsconn"
)

// RESTClient is the external collaborator for order placement; its wire
// format is out of scope (spec.md Non-goals).
type RESTClient interface {
	PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error)
	CancelOrder(ctx context.Context, clientOrderID string) error
	GetOrderStatus(ctx context.Context, clientOrderID string) (venue.OrderResult, error)
}

// Client is the two-book venue's implementation of venue.Client.
type Client struct {
	name   string
	signer *auth.OnchainSigner
	rest   RESTClient
	ws     *wsconn.Manager
	log    *zap.Logger

	mu    sync.RWMutex
	books map[string]*Book

	events chan venue.Event
}

// NewClient builds an onchain.Client.
func NewClient(name, wsURL string, signer *auth.OnchainSigner, rest RESTClient, log *zap.Logger) *Client {
	c := &Client{
		name:   name,
		signer: signer,
		rest:   rest,
		log:    log,
		books:  make(map[string]*Book),
		events: make(chan venue.Event, 1024),
	}
	c.ws = wsconn.New(name, wsURL, wsconn.DefaultConfig(), log)
	c.ws.SetOnMessage(c.handleMessage)
	c.ws.SetOnConnect(func() {
		c.emit(venue.Event{Type: venue.EventConnectionState, State: venue.ConnConnected, At: time.Now()})
	})
	c.ws.SetOnDisconnect(func(err error) {
		c.emit(venue.Event{Type: venue.EventConnectionState, State: venue.ConnReconnecting, At: time.Now(), Err: err})
	})
	return c
}

func (c *Client) Name() string { return c.name }

func (c *Client) Connect(ctx context.Context) error {
	return c.ws.Connect()
}

func (c *Client) Events() <-chan venue.Event { return c.events }

func (c *Client) Subscribe(marketID string) error {
	c.mu.Lock()
	if _, ok := c.books[marketID]; !ok {
		c.books[marketID] = NewBook()
	}
	c.mu.Unlock()
	c.ws.AddSubscription(map[string]interface{}{"type": "subscribe", "market": marketID})
	return c.ws.Send(map[string]interface{}{"type": "subscribe", "market": marketID})
}

func (c *Client) Unsubscribe(marketID string) {
	c.mu.Lock()
	delete(c.books, marketID)
	c.mu.Unlock()
}

func (c *Client) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	return c.rest.PlaceOrder(ctx, req)
}

func (c *Client) CancelOrder(ctx context.Context, clientOrderID string) error {
	return c.rest.CancelOrder(ctx, clientOrderID)
}

func (c *Client) GetOrderStatus(ctx context.Context, clientOrderID string) (venue.OrderResult, error) {
	return c.rest.GetOrderStatus(ctx, clientOrderID)
}

func (c *Client) GetQuote(marketID string) (quote.Normalized, bool) {
	c.mu.RLock()
	book, ok := c.books[marketID]
	c.mu.RUnlock()
	if !ok {
		return quote.Normalized{}, false
	}
	yes, no, seq := book.Snapshot()
	return normalize.FromTwoBook(yes, no, time.Time{}, time.Now(), seq), true
}

func (c *Client) Close() error {
	return c.ws.Close()
}

type bookEvent struct {
	Type         string  `json:"type"`
	MarketID     string  `json:"market_id"`
	Side         string  `json:"side"`
	BestBid      float64 `json:"best_bid"`
	BidQty       float64 `json:"bid_qty"`
	BestAsk      float64 `json:"best_ask"`
	AskQty       float64 `json:"ask_qty"`
	HasBid       bool    `json:"has_bid"`
	HasAsk       bool    `json:"has_ask"`
	SeqNo        uint64  `json:"seq_no"`
	TsExchangeMs int64   `json:"ts_exchange_ms,omitempty"`
}

// exchangeTime converts a wire event's millisecond exchange timestamp
// to a time.Time, falling back to the zero value when the venue didn't
// send one.
func (e bookEvent) exchangeTime() time.Time {
	if e.TsExchangeMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.TsExchangeMs)
}

func (c *Client) handleMessage(raw []byte) {
	var ev bookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.emit(venue.Event{Type: venue.EventError, ErrContext: "decode", Err: err, At: time.Now()})
		return
	}
	if ev.Type != "book" {
		return
	}

	c.mu.RLock()
	book, ok := c.books[ev.MarketID]
	c.mu.RUnlock()
	if !ok {
		return
	}

	book.ApplySnapshot(ev.Side, ev.BestBid, ev.BidQty, ev.BestAsk, ev.AskQty, ev.HasBid, ev.HasAsk, ev.SeqNo)

	yes, no, seq := book.Snapshot()
	q := normalize.FromTwoBook(yes, no, ev.exchangeTime(), time.Now(), seq)
	c.emit(venue.Event{Type: venue.EventQuoteUpdate, Quote: q, At: time.Now()})
}

func (c *Client) emit(ev venue.Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping event", zap.Int("type", int(ev.Type)))
	}
}
