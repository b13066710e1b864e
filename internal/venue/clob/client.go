package clob

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/btcarb/boxarb/internal/quote"
	"github.com/btcarb/boxarb/internal/venue"
	"github.com/btcarb/boxarb/internal/venue/auth"
	"github.com/btcarb/boxarb/internal/venue/normalize"
	"github.com/btcarb/boxarb/internal/venue/wsconn"
)

// Client is the bid-only venue's implementation of venue.Client.
// Market-data connectivity goes over wsconn.Manager; order placement is
// a REST call the caller injects via RESTClient so this package stays
// testable without a live network dependency.
type Client struct {
	name    string
	privKey *rsa.PrivateKey
	rest    RESTClient
	ws      *wsconn.Manager
	log     *zap.Logger

	mu     sync.RWMutex
	books  map[string]*Book // marketID -> book

	events chan venue.Event
}

// RESTClient is the external collaborator that actually places and
// queries orders; its wire format is out of scope here (see spec.md
// Non-goals) and is specified only as this interface.
type RESTClient interface {
	PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error)
	CancelOrder(ctx context.Context, clientOrderID string) error
	GetOrderStatus(ctx context.Context, clientOrderID string) (venue.OrderResult, error)
}

// NewClient builds a clob.Client. wsURL and privKey drive the signed
// WebSocket handshake (internal/venue/auth.SignRequest); rest handles
// order placement.
func NewClient(name, wsURL string, privKey *rsa.PrivateKey, rest RESTClient, log *zap.Logger) *Client {
	c := &Client{
		name:    name,
		privKey: privKey,
		rest:    rest,
		log:     log,
		books:   make(map[string]*Book),
		events:  make(chan venue.Event, 1024),
	}
	c.ws = wsconn.New(name, wsURL, wsconn.DefaultConfig(), log)
	c.ws.SetAuthFunc(func(conn *websocket.Conn) error {
		headers, err := SignHandshake(privKey, "GET", "/ws")
		if err != nil {
			return fmt.Errorf("sign ws handshake: %w", err)
		}
		// The handshake headers are sent as the first text frame rather
		// than HTTP headers, since the dialer has already completed the
		// upgrade by the time authFunc runs.
		return conn.WriteJSON(map[string]interface{}{"cmd": "auth", "headers": headers})
	})
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
	c.ws.AddSubscription(map[string]interface{}{
		"cmd":    "subscribe",
		"market": marketID,
	})
	return c.ws.Send(map[string]interface{}{"cmd": "subscribe", "market": marketID})
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
	return normalize.FromBidOnlyBook(yes, no, time.Time{}, time.Now(), seq), true
}

func (c *Client) Close() error {
	return c.ws.Close()
}

type wireMessage struct {
	Type         string          `json:"type"`
	MarketID     string          `json:"market_id"`
	Yes          json.RawMessage `json:"yes,omitempty"`
	No           json.RawMessage `json:"no,omitempty"`
	Side         string          `json:"side,omitempty"`
	Price        float64         `json:"price,omitempty"`
	Delta        float64         `json:"delta,omitempty"`
	SeqNo        uint64          `json:"seq_no"`
	TsExchangeMs int64           `json:"ts_exchange_ms,omitempty"`
}

// exchangeTime converts a wire message's millisecond exchange timestamp
// to a time.Time, falling back to the zero value when the venue didn't
// send one.
func (m wireMessage) exchangeTime() time.Time {
	if m.TsExchangeMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.TsExchangeMs)
}

func (c *Client) handleMessage(raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.emit(venue.Event{Type: venue.EventError, ErrContext: "decode", Err: err, At: time.Now()})
		return
	}

	c.mu.RLock()
	book, ok := c.books[msg.MarketID]
	c.mu.RUnlock()
	if !ok {
		return
	}

	switch msg.Type {
	case "snapshot":
		var levels struct {
			Yes []normalize.Level `json:"yes"`
			No  []normalize.Level `json:"no"`
		}
		if err := json.Unmarshal(raw, &levels); err != nil {
			c.emit(venue.Event{Type: venue.EventError, ErrContext: "snapshot decode", Err: err, At: time.Now()})
			return
		}
		book.ApplySnapshot(levels.Yes, levels.No, msg.SeqNo)
	case "delta":
		if err := book.ApplyDelta(msg.Side, msg.Price, msg.Delta, msg.SeqNo); err != nil {
			c.emit(venue.Event{Type: venue.EventError, ErrContext: "sequence gap", Err: err, At: time.Now()})
			go c.resubscribeAfterGap(msg.MarketID)
			return
		}
	default:
		return
	}

	yes, no, seq := book.Snapshot()
	q := normalize.FromBidOnlyBook(yes, no, msg.exchangeTime(), time.Now(), seq)
	c.emit(venue.Event{Type: venue.EventQuoteUpdate, Quote: q, At: time.Now()})
}

func (c *Client) resubscribeAfterGap(marketID string) {
	if err := c.Subscribe(marketID); err != nil {
		c.log.Warn("resubscribe after sequence gap failed", zap.String("market", marketID), zap.Error(err))
	}
}

func (c *Client) emit(ev venue.Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping event", zap.Int("type", int(ev.Type)))
	}
}

// SignHandshake builds the RSA-PSS auth headers for the WS handshake,
// delegating to internal/venue/auth.
func SignHandshake(privKey *rsa.PrivateKey, method, path string) (map[string]string, error) {
	ts := fmt.Sprintf("%d", time.Now().UnixMilli())
	sig, err := auth.SignRequest(privKey, ts, method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"access-key":       "", // populated by caller from config
		"access-signature":  sig,
		"access-timestamp":  ts,
	}, nil
}
