// Package gateway is the single authoritative source of market and account
// data. It hides polling cadence and caching from every other component.
package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/exchange"
)

// Status is the gateway health view used by the engine and the UI layer.
type Status struct {
	Connected      bool      `json:"connected"`
	LastUpdate     time.Time `json:"last_update"`
	TrackedMarkets []string  `json:"tracked_markets"`
	CacheSize      int       `json:"cache_size"`
}

// Config tunes cache lifetime and refresh cadence.
type Config struct {
	Markets         []string
	Address         string
	CacheTTL        time.Duration // default 5s
	RefreshInterval time.Duration // default 10s
}

// Gateway owns the exchange session. One instance per process; reads return
// complete, most-recently-committed snapshot copies, never partial writes.
type Gateway struct {
	client exchange.Client
	log    *zap.Logger
	cfg    Config

	mu        sync.RWMutex
	connected bool
	pending   *pendingConnect
	snapshots map[string]domain.MarketSnapshot
	books     map[string]domain.OrderBook
	account   domain.AccountState
	lastTick  time.Time

	onSnapshot func(domain.MarketSnapshot)

	refreshMu sync.Mutex
	inflight  map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type pendingConnect struct {
	done chan struct{}
	err  error
}

// New creates a gateway around an exchange client. Call Connect to establish
// the session and start the refresh loop.
func New(client exchange.Client, cfg Config, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 10 * time.Second
	}
	return &Gateway{
		client:    client,
		log:       log,
		cfg:       cfg,
		snapshots: make(map[string]domain.MarketSnapshot),
		books:     make(map[string]domain.OrderBook),
		inflight:  make(map[string]bool),
	}
}

// OnSnapshot registers a hook invoked with every fresh market snapshot.
// Must be set before Connect.
func (g *Gateway) OnSnapshot(fn func(domain.MarketSnapshot)) {
	g.onSnapshot = fn
}

// Connect is idempotent: while connected it returns nil, while an attempt is
// in flight it returns that attempt's result instead of opening a second
// session. A hard failure propagates exactly once to the initiating callers.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.connected {
		g.mu.Unlock()
		return nil
	}
	if g.pending != nil {
		p := g.pending
		g.mu.Unlock()
		select {
		case <-p.done:
			return p.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p := &pendingConnect{done: make(chan struct{})}
	g.pending = p
	g.mu.Unlock()

	err := g.client.Connect(ctx)

	g.mu.Lock()
	g.pending = nil
	if err == nil {
		g.connected = true
		loopCtx, cancel := context.WithCancel(context.Background())
		g.cancel = cancel
		g.wg.Add(1)
		go g.refreshLoop(loopCtx)
	}
	g.mu.Unlock()

	p.err = err
	close(p.done)

	if err != nil {
		return err
	}
	g.log.Info("gateway connected",
		zap.Strings("markets", g.Status().TrackedMarkets),
		zap.Duration("refresh", g.cfg.RefreshInterval))
	return nil
}

// Disconnect tears down the refresh loop and the exchange session. A later
// Connect rebuilds everything from scratch; there is no auto-revival.
func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return nil
	}
	g.connected = false
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.wg.Wait()
	g.log.Info("gateway disconnected")
	return g.client.Close()
}

// refreshLoop replaces cache entries on a fixed interval, independent of
// consumer calls. Failures are logged and the loop continues on the next
// tick; stale data keeps being served.
func (g *Gateway) refreshLoop(ctx context.Context) {
	defer g.wg.Done()

	g.refreshAll(ctx)

	ticker := time.NewTicker(g.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refreshAll(ctx)
		}
	}
}

func (g *Gateway) refreshAll(ctx context.Context) {
	g.mu.RLock()
	markets := make([]string, len(g.cfg.Markets))
	copy(markets, g.cfg.Markets)
	g.mu.RUnlock()

	for _, market := range markets {
		g.refreshMarket(ctx, market)
	}
	g.refreshAccount(ctx)
}

func (g *Gateway) refreshMarket(ctx context.Context, market string) {
	snap, err := g.client.FetchSnapshot(ctx, market)
	if err != nil {
		g.log.Warn("snapshot refresh failed, serving stale data",
			zap.String("market", market), zap.Error(err))
	} else {
		g.mu.Lock()
		g.snapshots[market] = snap
		g.lastTick = snap.FetchedAt
		g.mu.Unlock()
		if g.onSnapshot != nil {
			g.onSnapshot(snap)
		}
	}

	book, err := g.client.FetchOrderBook(ctx, market)
	if err != nil {
		g.log.Warn("order book refresh failed, serving stale data",
			zap.String("market", market), zap.Error(err))
		return
	}
	g.mu.Lock()
	g.books[market] = book
	g.mu.Unlock()
}

func (g *Gateway) refreshAccount(ctx context.Context) {
	acct, err := g.client.FetchAccountState(ctx, g.cfg.Address)
	if err != nil {
		g.log.Warn("account refresh failed, keeping previous view", zap.Error(err))
		return
	}
	g.mu.Lock()
	g.account = acct
	g.mu.Unlock()
}

// kickRefresh fires a single async refresh for one market with single-flight
// de-duplication, so a cache miss never blocks the caller on the network.
func (g *Gateway) kickRefresh(market string) {
	g.refreshMu.Lock()
	if g.inflight[market] {
		g.refreshMu.Unlock()
		return
	}
	g.inflight[market] = true
	g.refreshMu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g.refreshMarket(ctx, market)

		g.refreshMu.Lock()
		delete(g.inflight, market)
		g.refreshMu.Unlock()
	}()
}

func (g *Gateway) ensureConnected(ctx context.Context) {
	g.mu.RLock()
	connected := g.connected
	g.mu.RUnlock()
	if connected {
		return
	}
	if err := g.Connect(ctx); err != nil {
		g.log.Warn("lazy connect failed", zap.Error(err))
	}
}

// MarketData returns the cached snapshot for a market. Within the TTL window
// the same value is returned without touching the network; on a miss a
// background refresh is kicked and the last-known value (possibly zero) is
// returned immediately.
func (g *Gateway) MarketData(ctx context.Context, market string) domain.MarketSnapshot {
	g.ensureConnected(ctx)

	g.mu.RLock()
	snap := g.snapshots[market]
	g.mu.RUnlock()

	if snap.IsZero() || time.Since(snap.FetchedAt) > g.cfg.CacheTTL {
		g.kickRefresh(market)
	}
	return snap
}

// OrderBookData returns the cached book for a market under the same cache
// contract as MarketData.
func (g *Gateway) OrderBookData(ctx context.Context, market string) domain.OrderBook {
	g.ensureConnected(ctx)

	g.mu.RLock()
	book := g.books[market]
	g.mu.RUnlock()

	if book.FetchedAt.IsZero() || time.Since(book.FetchedAt) > g.cfg.CacheTTL {
		g.kickRefresh(market)
	}
	return book
}

// Positions returns the cached positions for the configured account.
func (g *Gateway) Positions(ctx context.Context) []domain.Position {
	g.ensureConnected(ctx)

	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Position, len(g.account.Positions))
	copy(out, g.account.Positions)
	return out
}

// AccountState fetches a fresh wholesale account view. Unlike the cached
// reads this blocks on the exchange: the engine's sync path needs
// read-your-writes after order submission.
func (g *Gateway) AccountState(ctx context.Context) (domain.AccountState, error) {
	acct, err := g.client.FetchAccountState(ctx, g.cfg.Address)
	if err != nil {
		return domain.AccountState{}, err
	}
	g.mu.Lock()
	g.account = acct
	g.mu.Unlock()
	return acct, nil
}

// SubmitOrder forwards an order to the exchange.
func (g *Gateway) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	return g.client.SubmitOrder(ctx, order)
}

// CancelOrder forwards a cancel to the exchange.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	return g.client.CancelOrder(ctx, orderID)
}

// CancelAllOrders forwards an account-wide cancel to the exchange.
func (g *Gateway) CancelAllOrders(ctx context.Context) error {
	return g.client.CancelAllOrders(ctx)
}

// Track adds a market to the refresh set.
func (g *Gateway) Track(market string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.cfg.Markets {
		if m == market {
			return
		}
	}
	g.cfg.Markets = append(g.cfg.Markets, market)
	g.log.Info("tracking market", zap.String("market", market))
}

// Status reports gateway health.
func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	markets := make([]string, len(g.cfg.Markets))
	copy(markets, g.cfg.Markets)
	sort.Strings(markets)

	return Status{
		Connected:      g.connected,
		LastUpdate:     g.lastTick,
		TrackedMarkets: markets,
		CacheSize:      len(g.snapshots) + len(g.books),
	}
}
