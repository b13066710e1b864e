// Package restclient implements the order-placement REST calls both
// venue packages declare as their RESTClient collaborator interface.
// The pooled http.Client construction is adapted from
// svyatogor45-abitrage/internal/exchange/httpclient.go; the two
// concrete venues differ only in how each signed request is built
// (internal/venue/auth's RSA-PSS headers vs HMAC headers).
package restclient

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/btcarb/boxarb/internal/discovery"
	"github.com/btcarb/boxarb/internal/venue"
	"github.com/btcarb/boxarb/internal/venue/auth"
	"github.com/btcarb/boxarb/pkg/ratelimit"
	"github.com/btcarb/boxarb/pkg/retry"
)

// venueRate caps outbound REST calls per venue well under published
// exchange rate limits; a single boxarb process drives both venues so
// this is per-client, not shared.
const venueRate = 8.0
const venueBurst = 16.0

// Config controls the shared pooled transport both venue REST clients
// use.
type Config struct {
	ConnectTimeout      time.Duration
	TotalTimeout        time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// DefaultConfig mirrors the teacher's trading-latency-tuned defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:      5 * time.Second,
		TotalTimeout:        10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient builds a pooled, low-latency *http.Client.
func NewHTTPClient(cfg Config) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		DisableCompression:  true,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{Transport: transport, Timeout: cfg.TotalTimeout}
}

// ClobREST places/cancels/queries orders on the signed-header venue.
type ClobREST struct {
	baseURL  string
	apiKeyID string
	privKey  *rsa.PrivateKey
	client   *http.Client
	limiter  *ratelimit.RateLimiter
}

// NewClobREST builds a ClobREST bound to baseURL.
func NewClobREST(baseURL, apiKeyID string, privKey *rsa.PrivateKey, client *http.Client) *ClobREST {
	return &ClobREST{baseURL: baseURL, apiKeyID: apiKeyID, privKey: privKey, client: client, limiter: ratelimit.NewRateLimiter(venueRate, venueBurst)}
}

func (c *ClobREST) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("restclient: encode body: %w", err)
		}
		bodyBytes = b
	}

	var respBody []byte
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return retry.Permanent(fmt.Errorf("restclient: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		ts := fmt.Sprintf("%d", time.Now().UnixMilli())
		headers, err := auth.Headers(c.apiKeyID, c.privKey, ts, method, path)
		if err != nil {
			return retry.Permanent(fmt.Errorf("restclient: sign request: %w", err))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return retry.Permanent(auth.ErrAuthFailed("clob", fmt.Errorf("%s %s returned %d", method, path, resp.StatusCode)))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("restclient: %s %s returned %d: %s", method, path, resp.StatusCode, respBody)
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("restclient: %s %s returned %d: %s", method, path, resp.StatusCode, respBody))
		}
		return nil
	}, retryableNetworkConfig())
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("restclient: decode response: %w", err)
		}
	}
	return nil
}

// retryableNetworkConfig is retry.NetworkConfig with RetryIf wired so
// a retry.Permanent auth failure or client error stops the loop
// instead of burning all four attempts against a dead credential.
func retryableNetworkConfig() retry.Config {
	cfg := retry.NetworkConfig()
	cfg.RetryIf = retry.IsRetryable
	return cfg
}

type orderWire struct {
	ClientOrderID string  `json:"client_order_id"`
	MarketID      string  `json:"market_id"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Qty           float64 `json:"qty"`
	TimeInForce   string  `json:"time_in_force"`
}

type orderResultWire struct {
	ClientOrderID string  `json:"client_order_id"`
	Status        string  `json:"status"`
	FilledQty     float64 `json:"filled_qty"`
	AvgPrice      float64 `json:"avg_price"`
}

func (c *ClobREST) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	var out orderResultWire
	err := c.do(ctx, http.MethodPost, "/orders", orderWire{
		ClientOrderID: req.ClientOrderID, MarketID: req.MarketID, Side: string(req.Side),
		Price: req.LimitPrice, Qty: req.Qty, TimeInForce: req.TimeInForce,
	}, &out)
	if err != nil {
		return venue.OrderResult{ClientOrderID: req.ClientOrderID, Status: "rejected", Err: err}, err
	}
	return venue.OrderResult{ClientOrderID: out.ClientOrderID, Status: out.Status, FilledQty: out.FilledQty, AvgPrice: out.AvgPrice}, nil
}

func (c *ClobREST) CancelOrder(ctx context.Context, clientOrderID string) error {
	return c.do(ctx, http.MethodDelete, "/orders/"+clientOrderID, nil, nil)
}

func (c *ClobREST) GetOrderStatus(ctx context.Context, clientOrderID string) (venue.OrderResult, error) {
	var out orderResultWire
	if err := c.do(ctx, http.MethodGet, "/orders/"+clientOrderID, nil, &out); err != nil {
		return venue.OrderResult{}, err
	}
	return venue.OrderResult{ClientOrderID: out.ClientOrderID, Status: out.Status, FilledQty: out.FilledQty, AvgPrice: out.AvgPrice}, nil
}

type resolutionWire struct {
	Result string `json:"result"`
}

// GetResolution queries the settled outcome for marketID, returning
// "up", "down" or "" if the venue hasn't settled it yet.
func (c *ClobREST) GetResolution(ctx context.Context, marketID string) (string, error) {
	var out resolutionWire
	if err := c.do(ctx, http.MethodGet, "/markets/"+marketID+"/resolution", nil, &out); err != nil {
		return "", err
	}
	return out.Result, nil
}

type positionWire struct {
	NetQty float64 `json:"net_qty"`
}

// GetPosition queries the venue's authoritative reported net position
// for side on marketID, used by the reconciler to catch divergence
// between the locally tracked position and what the venue believes was
// actually filled.
func (c *ClobREST) GetPosition(ctx context.Context, marketID, side string) (float64, error) {
	var out positionWire
	if err := c.do(ctx, http.MethodGet, "/positions/"+marketID+"?side="+side, nil, &out); err != nil {
		return 0, err
	}
	return out.NetQty, nil
}

// OnchainSigner is the narrow slice of auth.OnchainSigner this package
// needs, declared here so restclient doesn't import crypto-specific
// ecdsa/ethereum types beyond what auth already exposes.
type OnchainSigner interface {
	L2Headers(method, path, body string) (map[string]string, error)
}

// OnchainREST places/cancels/queries orders on the two-book venue.
type OnchainREST struct {
	baseURL string
	signer  OnchainSigner
	client  *http.Client
	limiter *ratelimit.RateLimiter
}

// NewOnchainREST builds an OnchainREST bound to baseURL.
func NewOnchainREST(baseURL string, signer OnchainSigner, client *http.Client) *OnchainREST {
	return &OnchainREST{baseURL: baseURL, signer: signer, client: client, limiter: ratelimit.NewRateLimiter(venueRate, venueBurst)}
}

func (c *OnchainREST) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("restclient: encode body: %w", err)
		}
		bodyBytes = b
	}

	var respBody []byte
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return retry.Permanent(fmt.Errorf("restclient: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		headers, err := c.signer.L2Headers(method, path, string(bodyBytes))
		if err != nil {
			return retry.Permanent(fmt.Errorf("restclient: sign request: %w", err))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return retry.Permanent(auth.ErrAuthFailed("onchain", fmt.Errorf("%s %s returned %d", method, path, resp.StatusCode)))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("restclient: %s %s returned %d: %s", method, path, resp.StatusCode, respBody)
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("restclient: %s %s returned %d: %s", method, path, resp.StatusCode, respBody))
		}
		return nil
	}, retryableNetworkConfig())
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("restclient: decode response: %w", err)
		}
	}
	return nil
}

func (c *OnchainREST) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	var out orderResultWire
	err := c.do(ctx, http.MethodPost, "/order", orderWire{
		ClientOrderID: req.ClientOrderID, MarketID: req.MarketID, Side: string(req.Side),
		Price: req.LimitPrice, Qty: req.Qty, TimeInForce: req.TimeInForce,
	}, &out)
	if err != nil {
		return venue.OrderResult{ClientOrderID: req.ClientOrderID, Status: "rejected", Err: err}, err
	}
	return venue.OrderResult{ClientOrderID: out.ClientOrderID, Status: out.Status, FilledQty: out.FilledQty, AvgPrice: out.AvgPrice}, nil
}

func (c *OnchainREST) CancelOrder(ctx context.Context, clientOrderID string) error {
	return c.do(ctx, http.MethodDelete, "/order/"+clientOrderID, nil, nil)
}

func (c *OnchainREST) GetOrderStatus(ctx context.Context, clientOrderID string) (venue.OrderResult, error) {
	var out orderResultWire
	if err := c.do(ctx, http.MethodGet, "/order/"+clientOrderID, nil, &out); err != nil {
		return venue.OrderResult{}, err
	}
	return venue.OrderResult{ClientOrderID: out.ClientOrderID, Status: out.Status, FilledQty: out.FilledQty, AvgPrice: out.AvgPrice}, nil
}

// GetResolution queries the settled outcome for marketID.
func (c *OnchainREST) GetResolution(ctx context.Context, marketID string) (string, error) {
	var out resolutionWire
	if err := c.do(ctx, http.MethodGet, "/markets/"+marketID, nil, &out); err != nil {
		return "", err
	}
	return out.Result, nil
}

// GetPosition queries the maker's onchain net position for side on
// marketID, held by the funder address the signer authenticates for.
func (c *OnchainREST) GetPosition(ctx context.Context, marketID, side string) (float64, error) {
	var out positionWire
	if err := c.do(ctx, http.MethodGet, "/position/"+marketID+"?side="+side, nil, &out); err != nil {
		return 0, err
	}
	return out.NetQty, nil
}

type openMarketWire struct {
	MarketID string `json:"market_id"`
	ClosesAt int64  `json:"closes_at"` // unix seconds
}

// ListOpenMarkets implements discovery.ListFunc for the onchain venue,
// whose market naming isn't deterministic enough for a ticker-formula
// resolver the way the signed-header venue's is.
func (c *OnchainREST) ListOpenMarkets(ctx context.Context) ([]discovery.OpenMarket, error) {
	var out []openMarketWire
	if err := c.do(ctx, http.MethodGet, "/markets?status=open", nil, &out); err != nil {
		return nil, err
	}
	markets := make([]discovery.OpenMarket, len(out))
	for i, m := range out {
		markets[i] = discovery.OpenMarket{MarketID: m.MarketID, ClosesAt: time.Unix(m.ClosesAt, 0).UTC()}
	}
	return markets, nil
}
