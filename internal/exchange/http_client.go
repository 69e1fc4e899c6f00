package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/infra"
)

// HTTPClient talks to the exchange REST API. Requests are rate limited and
// guarded by a circuit breaker so the background refresh loop cannot hammer
// a failing endpoint. Request signing is out of scope; the key rides in a
// header the exchange front end understands.
type HTTPClient struct {
	baseURL      string
	apiKey       string
	accountIndex int
	address      string

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *infra.CircuitBreaker
	log        *zap.Logger
}

// HTTPClientConfig configures the REST transport.
type HTTPClientConfig struct {
	BaseURL           string
	APIKey            string
	AccountIndex      int
	Address           string
	RequestsPerSecond float64
}

// NewHTTPClient creates the REST transport.
func NewHTTPClient(cfg HTTPClientConfig, log *zap.Logger) *HTTPClient {
	if log == nil {
		log = zap.NewNop()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &HTTPClient{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		accountIndex: cfg.AccountIndex,
		address:      cfg.Address,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker:      infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("exchange-rest"), log),
		log:          log,
	}
}

// Connect probes the exchange with a lightweight request.
func (c *HTTPClient) Connect(ctx context.Context) error {
	var out struct {
		ServerTime int64 `json:"server_time"`
	}
	if err := c.get(ctx, "/api/v1/time", &out); err != nil {
		return fmt.Errorf("exchange session probe failed: %w", err)
	}
	c.log.Info("exchange session established", zap.Int64("server_time", out.ServerTime))
	return nil
}

// FetchSnapshot returns the current market snapshot.
func (c *HTTPClient) FetchSnapshot(ctx context.Context, market string) (domain.MarketSnapshot, error) {
	var out tickerResponse
	if err := c.get(ctx, "/api/v1/ticker?market="+market, &out); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if out.Market == "" {
		out.Market = market
	}
	return out.toDomain(time.Now()), nil
}

// FetchOrderBook returns both sides of the book for a market.
func (c *HTTPClient) FetchOrderBook(ctx context.Context, market string) (domain.OrderBook, error) {
	var out orderBookResponse
	if err := c.get(ctx, "/api/v1/orderbook?market="+market, &out); err != nil {
		return domain.OrderBook{}, err
	}
	if out.Market == "" {
		out.Market = market
	}
	return out.toDomain(time.Now()), nil
}

// FetchAccountState returns the wholesale account view.
func (c *HTTPClient) FetchAccountState(ctx context.Context, address string) (domain.AccountState, error) {
	if address == "" {
		address = c.address
	}
	var out accountResponse
	if err := c.get(ctx, "/api/v1/account?address="+address, &out); err != nil {
		return domain.AccountState{}, err
	}
	return out.toDomain(time.Now()), nil
}

// SubmitOrder sends the order and returns the exchange acknowledgment.
func (c *HTTPClient) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	req := submitOrderRequest{
		ClientID:     order.ID,
		Market:       order.Market,
		Side:         string(order.Side),
		Kind:         string(order.Kind),
		Size:         order.Size.String(),
		AccountIndex: c.accountIndex,
	}
	if !order.Price.IsZero() {
		req.Price = order.Price.String()
	}
	if !order.TriggerPrice.IsZero() {
		req.TriggerPrice = order.TriggerPrice.String()
	}

	var out submitOrderResponse
	if err := c.post(ctx, "/api/v1/orders", req, &out); err != nil {
		return domain.Order{}, err
	}
	if out.Error != "" {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrExchangeRejected, out.Error)
	}
	ack := out.Order.toDomain()
	if ack.ID == "" {
		ack = order
		ack.Status = domain.StatusOpen
	}
	ack.CreatedAt = order.CreatedAt
	return ack, nil
}

// CancelOrder cancels a working order by exchange ID.
func (c *HTTPClient) CancelOrder(ctx context.Context, orderID string) error {
	var out struct {
		Error string `json:"error,omitempty"`
	}
	if err := c.post(ctx, "/api/v1/orders/cancel", map[string]string{"id": orderID}, &out); err != nil {
		return err
	}
	if out.Error != "" {
		return fmt.Errorf("%w: %s", domain.ErrExchangeRejected, out.Error)
	}
	return nil
}

// CancelAllOrders cancels every working order on the account.
func (c *HTTPClient) CancelAllOrders(ctx context.Context) error {
	var out struct {
		Error string `json:"error,omitempty"`
	}
	if err := c.post(ctx, "/api/v1/orders/cancel_all", map[string]int{"account_index": c.accountIndex}, &out); err != nil {
		return err
	}
	if out.Error != "" {
		return fmt.Errorf("%w: %s", domain.ErrExchangeRejected, out.Error)
	}
	return nil
}

// Close releases transport resources.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("exchange circuit open, request rejected: %s", path)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}

	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
		return fmt.Errorf("exchange %s returned %d", path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// Client-side rejection. The endpoint is healthy, don't trip the breaker.
		c.breaker.RecordSuccess()
		return fmt.Errorf("%w: %s (%d)", domain.ErrExchangeRejected, string(data), resp.StatusCode)
	}

	c.breaker.RecordSuccess()
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
