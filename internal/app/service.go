// Package app is the inbound facade. Every operation returns a uniform
// Result so the UI/chat layer never sees raw errors or partial state.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/analyst"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/engine"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/exchange"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/gateway"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/infra"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/storage"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/stream"
)

// Status is the composite health view returned by GetStatus.
type Status struct {
	Initialized bool           `json:"initialized"`
	Mode        string         `json:"mode"`
	Gateway     gateway.Status `json:"gateway"`
	Stream      string         `json:"stream"`
	SyncedAt    time.Time      `json:"synced_at"`
}

// Service wires the gateway, analyst, risk scorer, engine and stream into
// one trading core. All operations except Initialize require a prior
// successful Initialize; they fail fast with ErrNotInitialized otherwise.
type Service struct {
	log *zap.Logger

	mu          sync.RWMutex
	initialized bool
	cfg         *infra.Config
	gw          *gateway.Gateway
	analyst     *analyst.Analyst
	engine      *engine.Engine
	stream      *stream.Supervisor // nil when no WS URL is configured
	store       *storage.TradeStore
}

// NewService creates an uninitialized service.
func NewService(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log}
}

// Initialize builds the full stack from configuration, connects the
// gateway and starts the stream supervisor. Safe to call again after
// Disconnect; a second call while initialized is a no-op success.
func (s *Service) Initialize(ctx context.Context, cfg *infra.Config) domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return domain.OK("already initialized")
	}
	if cfg == nil {
		return domain.Fail(fmt.Errorf("configuration is required"))
	}
	if err := cfg.Validate(); err != nil {
		return domain.Fail(err)
	}

	var client exchange.Client
	mode := infra.Mode(strings.ToUpper(cfg.Trading.Mode))
	switch mode {
	case infra.ModeLive:
		client = exchange.NewHTTPClient(exchange.HTTPClientConfig{
			BaseURL:           cfg.Exchange.BaseURL,
			APIKey:            cfg.Exchange.APIKey,
			AccountIndex:      cfg.Exchange.AccountIndex,
			Address:           cfg.Exchange.Address,
			RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		}, s.log)
	default:
		client = exchange.NewSimClient(cfg.Markets, s.log)
	}

	an := analyst.New(s.log)

	gw := gateway.New(client, gateway.Config{
		Markets:         cfg.Markets,
		Address:         cfg.Exchange.Address,
		CacheTTL:        cfg.CacheTTL(),
		RefreshInterval: cfg.RefreshInterval(),
	}, s.log)
	gw.OnSnapshot(func(snap domain.MarketSnapshot) {
		price, _ := snap.LastPrice.Float64()
		an.ObserveAt(snap.Market, price, snap.FetchedAt)
	})

	var store *storage.TradeStore
	if cfg.Storage.Path != "" {
		var err error
		store, err = storage.NewTradeStore(cfg.Storage.Path)
		if err != nil {
			return domain.Fail(fmt.Errorf("open trade store: %w", err))
		}
	}

	// A malformed size falls through as zero; the engine substitutes its default.
	orderSize, _ := decimal.NewFromString(cfg.Strategy.OrderSize)
	eng := engine.New(gw, an, store, nil, engine.Config{
		ConfidenceThreshold:   cfg.Strategy.ConfidenceThreshold,
		OrderSize:             orderSize,
		StopLossATRMultiplier: cfg.Strategy.StopLossATRMultiplier,
	}, s.log)

	if err := gw.Connect(ctx); err != nil {
		if store != nil {
			store.Close()
		}
		return domain.Fail(fmt.Errorf("gateway connect: %w", err))
	}

	var sup *stream.Supervisor
	if cfg.Exchange.WSURL != "" {
		sup = stream.NewSupervisor(stream.Config{
			URL:     cfg.Exchange.WSURL,
			Markets: cfg.Markets,
			Retry: infra.RetryPolicy{
				MaxAttempts: cfg.Stream.ReconnectAttempts,
				Delay:       cfg.ReconnectDelay(),
			},
		}, s.log)
		sup.Subscribe(func(ev stream.Event) {
			if ev.Type == stream.EventUpdate && ev.Update != nil &&
				ev.Update.Channel == "ticker" && !ev.Update.Synthetic {
				an.Observe(ev.Update.Market, ev.Update.Price)
			}
		})
		if err := sup.Connect(); err != nil {
			s.log.Warn("stream start failed, REST polling only", zap.Error(err))
		}
	}

	s.cfg = cfg
	s.gw = gw
	s.analyst = an
	s.engine = eng
	s.stream = sup
	s.store = store
	s.initialized = true

	s.log.Info("trading core initialized",
		zap.String("mode", string(mode)),
		zap.Strings("markets", cfg.Markets))
	return domain.OK(map[string]any{"mode": string(mode), "markets": cfg.Markets})
}

// core is the component set an operation works against, captured under the
// read lock so a concurrent Disconnect cannot nil a field mid-call.
type core struct {
	cfg    *infra.Config
	gw     *gateway.Gateway
	engine *engine.Engine
	stream *stream.Supervisor
}

func (s *Service) ready() (core, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return core{}, domain.ErrNotInitialized
	}
	return core{cfg: s.cfg, gw: s.gw, engine: s.engine, stream: s.stream}, nil
}

// GetMarketData returns the cached snapshot for a market.
func (s *Service) GetMarketData(ctx context.Context, market string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	snap := c.gw.MarketData(ctx, market)
	if snap.IsZero() {
		return domain.Fail(fmt.Errorf("%w: %s (refresh pending)", domain.ErrUnknownMarket, market))
	}
	return domain.OK(snap)
}

// GetOrderBook returns the cached order book for a market.
func (s *Service) GetOrderBook(ctx context.Context, market string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	book := c.gw.OrderBookData(ctx, market)
	if book.FetchedAt.IsZero() {
		return domain.Fail(fmt.Errorf("%w: %s (refresh pending)", domain.ErrUnknownMarket, market))
	}
	return domain.OK(book)
}

// GetPositions returns the cached account positions.
func (s *Service) GetPositions(ctx context.Context) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	return domain.OK(c.gw.Positions(ctx))
}

// GetAccountState forces a fresh account sync and returns the result.
func (s *Service) GetAccountState(ctx context.Context) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	acct, err := c.engine.SyncAccountState(ctx)
	if err != nil {
		return domain.Fail(err)
	}
	return domain.OK(acct)
}

// PlaceMarketOrder submits a market order.
func (s *Service) PlaceMarketOrder(ctx context.Context, market, side, size string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	sz, err := decimal.NewFromString(size)
	if err != nil {
		return domain.Fail(fmt.Errorf("%w: bad size %q", domain.ErrValidation, size))
	}
	order, err := c.engine.CreateMarketOrder(ctx, market, domain.Side(strings.ToUpper(side)), sz)
	if err != nil {
		return domain.Fail(err)
	}
	return domain.OK(order)
}

// PlaceLimitOrder submits a limit order.
func (s *Service) PlaceLimitOrder(ctx context.Context, market, side, size, price string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	sz, err := decimal.NewFromString(size)
	if err != nil {
		return domain.Fail(fmt.Errorf("%w: bad size %q", domain.ErrValidation, size))
	}
	px, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Fail(fmt.Errorf("%w: bad price %q", domain.ErrValidation, price))
	}
	order, err := c.engine.CreateLimitOrder(ctx, market, domain.Side(strings.ToUpper(side)), sz, px)
	if err != nil {
		return domain.Fail(err)
	}
	return domain.OK(order)
}

// PlaceStopLoss submits a stop order at the given trigger price.
func (s *Service) PlaceStopLoss(ctx context.Context, market, side, size, trigger string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	sz, err := decimal.NewFromString(size)
	if err != nil {
		return domain.Fail(fmt.Errorf("%w: bad size %q", domain.ErrValidation, size))
	}
	tp, err := decimal.NewFromString(trigger)
	if err != nil {
		return domain.Fail(fmt.Errorf("%w: bad trigger %q", domain.ErrValidation, trigger))
	}
	order, err := c.engine.CreateStopLoss(ctx, market, domain.Side(strings.ToUpper(side)), sz, tp)
	if err != nil {
		return domain.Fail(err)
	}
	return domain.OK(order)
}

// CancelOrder cancels one working order.
func (s *Service) CancelOrder(ctx context.Context, orderID string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	if err := c.engine.CancelOrder(ctx, orderID); err != nil {
		return domain.Fail(err)
	}
	return domain.OK(orderID)
}

// CancelAllOrders cancels every working order on the account.
func (s *Service) CancelAllOrders(ctx context.Context) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	if err := c.engine.CancelAllOrders(ctx); err != nil {
		return domain.Fail(err)
	}
	return domain.OK("all orders canceled")
}

// ClosePosition flattens the active position on a market.
func (s *Service) ClosePosition(ctx context.Context, market string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	order, err := c.engine.ClosePosition(ctx, market)
	if err != nil {
		return domain.Fail(err)
	}
	return domain.OK(order)
}

// AnalyzeMarket returns the composite advisory record for a market.
func (s *Service) AnalyzeMarket(ctx context.Context, market string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	analysis, err := c.engine.AnalyzeMarket(ctx, market)
	if err != nil {
		return domain.Fail(err)
	}
	return domain.OK(analysis)
}

// ExecuteStrategy runs one strategy pass over the configured (or given)
// markets and always reports per-market results.
func (s *Service) ExecuteStrategy(ctx context.Context, markets []string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	if len(markets) == 0 {
		markets = c.cfg.Markets
	}
	return domain.OK(c.engine.ExecuteStrategy(ctx, markets))
}

// GetPerformance returns trading metrics recomputed from the current
// account view.
func (s *Service) GetPerformance(ctx context.Context) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	return domain.OK(c.engine.Performance(ctx))
}

// SubscribeToMarket adds a market to the gateway refresh set and, when the
// stream is up, to the push subscription.
func (s *Service) SubscribeToMarket(market string) domain.Result {
	c, err := s.ready()
	if err != nil {
		return domain.Fail(err)
	}
	if market == "" {
		return domain.Fail(fmt.Errorf("%w: market is required", domain.ErrValidation))
	}
	c.gw.Track(market)
	if c.stream != nil {
		if err := c.stream.Send("subscribe", map[string]any{"market": market}); err != nil {
			// Stream-side subscription is best effort; REST polling covers it.
			s.log.Debug("stream subscribe skipped", zap.String("market", market), zap.Error(err))
		}
	}
	return domain.OK(market)
}

// GetStatus reports composite health.
func (s *Service) GetStatus(ctx context.Context) domain.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return domain.OK(Status{Initialized: false})
	}
	st := Status{
		Initialized: true,
		Mode:        strings.ToUpper(s.cfg.Trading.Mode),
		Gateway:     s.gw.Status(),
		Stream:      "disabled",
		SyncedAt:    s.engine.Account().SyncedAt,
	}
	if s.stream != nil {
		st.Stream = s.stream.State().String()
	}
	return domain.OK(st)
}

// Disconnect tears down the stream, gateway and store. The service returns
// to the uninitialized state and can be initialized again.
func (s *Service) Disconnect() domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return domain.Fail(domain.ErrNotInitialized)
	}

	if s.stream != nil {
		s.stream.Disconnect()
	}
	if err := s.gw.Disconnect(); err != nil {
		s.log.Warn("gateway disconnect", zap.Error(err))
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn("trade store close", zap.Error(err))
		}
	}

	s.initialized = false
	s.gw, s.engine, s.analyst, s.stream, s.store = nil, nil, nil, nil, nil
	s.log.Info("trading core disconnected")
	return domain.OK("disconnected")
}
