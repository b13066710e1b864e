package restclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcarb/boxarb/internal/venue"
	"github.com/btcarb/boxarb/internal/venue/auth"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestClobRESTPlaceOrderRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("access-signature") == "" {
			t.Error("expected signed request headers")
		}
		json.NewEncoder(w).Encode(orderResultWire{ClientOrderID: "co-1", Status: "filled", FilledQty: 10, AvgPrice: 0.42})
	}))
	defer srv.Close()

	c := NewClobREST(srv.URL, "key-1", testKey(t), NewHTTPClient(DefaultConfig()))
	res, err := c.PlaceOrder(context.Background(), venue.OrderRequest{ClientOrderID: "co-1", MarketID: "m1", Side: venue.OrderBuyYes, LimitPrice: 0.42, Qty: 10, TimeInForce: "FOK"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "filled" || res.FilledQty != 10 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestClobRESTPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	c := NewClobREST(srv.URL, "key-1", testKey(t), NewHTTPClient(DefaultConfig()))
	res, err := c.PlaceOrder(context.Background(), venue.OrderRequest{ClientOrderID: "co-2", TimeInForce: "FOK"})
	if err == nil {
		t.Fatal("expected error on 400 response")
	}
	if res.Status != "rejected" {
		t.Errorf("expected rejected status, got %q", res.Status)
	}
}

func TestClobRESTMapsUnauthorizedToAuthFailedError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad signature"))
	}))
	defer srv.Close()

	c := NewClobREST(srv.URL, "key-1", testKey(t), NewHTTPClient(DefaultConfig()))
	_, err := c.PlaceOrder(context.Background(), venue.OrderRequest{ClientOrderID: "co-4", TimeInForce: "FOK"})
	if err == nil {
		t.Fatal("expected error on 401 response")
	}
	var authErr *auth.AuthFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *auth.AuthFailedError, got %T: %v", err, err)
	}
	if authErr.Venue != "clob" {
		t.Errorf("expected venue clob, got %q", authErr.Venue)
	}
	if hits != 1 {
		t.Errorf("expected a permanent auth failure to not retry, got %d hits", hits)
	}
}

func TestClobRESTGetPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("side") != "yes" {
			t.Errorf("expected side=yes query param, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(positionWire{NetQty: 12.5})
	}))
	defer srv.Close()

	c := NewClobREST(srv.URL, "key-1", testKey(t), NewHTTPClient(DefaultConfig()))
	qty, err := c.GetPosition(context.Background(), "m1", "yes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qty != 12.5 {
		t.Errorf("expected net qty 12.5, got %v", qty)
	}
}

type fakeOnchainSigner struct{}

func (fakeOnchainSigner) L2Headers(method, path, body string) (map[string]string, error) {
	return map[string]string{"poly-signature": "sig"}, nil
}

func TestOnchainRESTPropagatesHTTPErrorWithoutRetrying(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	c := NewOnchainREST(srv.URL, fakeOnchainSigner{}, NewHTTPClient(DefaultConfig()))
	res, err := c.PlaceOrder(context.Background(), venue.OrderRequest{ClientOrderID: "co-5", TimeInForce: "FOK"})
	if err == nil {
		t.Fatal("expected error on 400 response")
	}
	if res.Status != "rejected" {
		t.Errorf("expected rejected status, got %q", res.Status)
	}
	if hits != 1 {
		t.Errorf("expected a permanent 4xx to not retry, got %d hits", hits)
	}
}

func TestOnchainRESTPlaceOrderRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("poly-signature") == "" {
			t.Error("expected signed request headers")
		}
		json.NewEncoder(w).Encode(orderResultWire{ClientOrderID: "co-3", Status: "filled", FilledQty: 5, AvgPrice: 0.55})
	}))
	defer srv.Close()

	c := NewOnchainREST(srv.URL, fakeOnchainSigner{}, NewHTTPClient(DefaultConfig()))
	res, err := c.PlaceOrder(context.Background(), venue.OrderRequest{ClientOrderID: "co-3", MarketID: "m1", Side: venue.OrderBuyNo, LimitPrice: 0.55, Qty: 5, TimeInForce: "FOK"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "filled" || res.FilledQty != 5 {
		t.Errorf("unexpected result: %+v", res)
	}
}
