package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
)

// SimClient is an in-process exchange: random-walk prices, instant fills
// against a virtual balance. It backs SIM mode and the SIMULATED degraded
// state, and keeps tests off the network.
type SimClient struct {
	mu        sync.Mutex
	rng       *rand.Rand
	log       *zap.Logger
	prices    map[string]decimal.Decimal
	balance   decimal.Decimal
	positions map[string]*domain.Position
	orders    map[string]*domain.Order
	failNext  error // injected fault for tests
}

// NewSimClient creates a synthetic exchange seeded with starting prices.
func NewSimClient(markets []string, log *zap.Logger) *SimClient {
	if log == nil {
		log = zap.NewNop()
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	prices := make(map[string]decimal.Decimal, len(markets))
	for _, m := range markets {
		// Arbitrary but stable starting level per market.
		prices[m] = decimal.NewFromFloat(100 + rng.Float64()*50000)
	}
	return &SimClient{
		rng:       rng,
		log:       log,
		prices:    prices,
		balance:   decimal.NewFromInt(10_000),
		positions: make(map[string]*domain.Position),
		orders:    make(map[string]*domain.Order),
	}
}

// SetPrice pins a market's price. Test harness helper.
func (s *SimClient) SetPrice(market string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[market] = price
}

// FailNext makes the next operation return err once. Test harness helper.
func (s *SimClient) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *SimClient) takeFault() error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	return nil
}

// Connect always succeeds.
func (s *SimClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeFault()
}

func (s *SimClient) walk(market string) decimal.Decimal {
	price, ok := s.prices[market]
	if !ok {
		price = decimal.NewFromInt(1000)
	}
	// ±0.5% random walk per fetch.
	drift := decimal.NewFromFloat(1 + (s.rng.Float64()-0.5)/100)
	price = price.Mul(drift)
	s.prices[market] = price
	return price
}

// FetchSnapshot returns a synthetic snapshot advanced by one walk step.
func (s *SimClient) FetchSnapshot(ctx context.Context, market string) (domain.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return domain.MarketSnapshot{}, err
	}

	price := s.walk(market)
	spread := decimal.NewFromFloat(1.02)
	return domain.MarketSnapshot{
		Market:    market,
		LastPrice: price,
		Volume24h: decimal.NewFromFloat(s.rng.Float64() * 1e6),
		High24h:   price.Mul(spread),
		Low24h:    price.Div(spread),
		Change24h: (s.rng.Float64() - 0.5) * 10,
		FetchedAt: time.Now(),
	}, nil
}

// FetchOrderBook returns a synthetic five-level book around the walk price.
func (s *SimClient) FetchOrderBook(ctx context.Context, market string) (domain.OrderBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return domain.OrderBook{}, err
	}

	price, ok := s.prices[market]
	if !ok {
		price = s.walk(market)
	}
	book := domain.OrderBook{Market: market, FetchedAt: time.Now()}
	tick := price.Mul(decimal.NewFromFloat(0.0005))
	for i := 1; i <= 5; i++ {
		step := tick.Mul(decimal.NewFromInt(int64(i)))
		size := decimal.NewFromFloat(s.rng.Float64() * 10)
		book.Bids = append(book.Bids, domain.BookLevel{Price: price.Sub(step), Size: size})
		book.Asks = append(book.Asks, domain.BookLevel{Price: price.Add(step), Size: size})
	}
	return book, nil
}

// FetchAccountState returns the current virtual account, marks refreshed.
func (s *SimClient) FetchAccountState(ctx context.Context, address string) (domain.AccountState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return domain.AccountState{}, err
	}

	acct := domain.AccountState{
		Balance:         s.balance,
		AvailableMargin: s.balance,
		SyncedAt:        time.Now(),
	}
	for _, p := range s.positions {
		mark := s.prices[p.Market]
		pnl := mark.Sub(p.EntryPrice).Mul(p.Size)
		if p.Side == domain.SideShort {
			pnl = pnl.Neg()
		}
		pos := *p
		pos.MarkPrice = mark
		pos.UnrealizedPnl = pnl
		acct.Positions = append(acct.Positions, pos)
	}
	for _, o := range s.orders {
		acct.Orders = append(acct.Orders, *o)
	}
	return acct, nil
}

// SubmitOrder fills market orders instantly against the virtual balance;
// limit and stop orders rest as OPEN.
func (s *SimClient) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return domain.Order{}, err
	}

	price, ok := s.prices[order.Market]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrExchangeRejected, order.Market)
	}

	ack := order
	switch order.Kind {
	case domain.KindMarket:
		cost := price.Mul(order.Size)
		if order.Side == domain.SideLong && cost.GreaterThan(s.balance) {
			ack.Status = domain.StatusRejected
			s.log.Warn("sim: insufficient margin",
				zap.String("market", order.Market),
				zap.String("cost", cost.String()))
			return ack, fmt.Errorf("%w: insufficient margin", domain.ErrExchangeRejected)
		}
		s.applyFill(&ack, price)
	default:
		ack.Status = domain.StatusOpen
		s.orders[ack.ID] = &ack
	}

	s.log.Debug("sim: order accepted",
		zap.String("id", ack.ID),
		zap.String("market", ack.Market),
		zap.String("status", string(ack.Status)))
	return ack, nil
}

// applyFill nets the fill into the market's position. Opposite-side fills
// reduce and eventually flip; a position netted to zero is removed.
func (s *SimClient) applyFill(order *domain.Order, price decimal.Decimal) {
	order.Status = domain.StatusFilled
	pos, exists := s.positions[order.Market]
	if !exists {
		s.positions[order.Market] = &domain.Position{
			Market:     order.Market,
			Side:       order.Side,
			Size:       order.Size,
			EntryPrice: price,
			MarkPrice:  price,
		}
		return
	}

	if pos.Side == order.Side {
		notional := pos.EntryPrice.Mul(pos.Size).Add(price.Mul(order.Size))
		pos.Size = pos.Size.Add(order.Size)
		pos.EntryPrice = notional.Div(pos.Size)
		return
	}

	switch order.Size.Cmp(pos.Size) {
	case -1:
		pos.Size = pos.Size.Sub(order.Size)
	case 0:
		delete(s.positions, order.Market)
	case 1:
		pos.Side = order.Side
		pos.Size = order.Size.Sub(pos.Size)
		pos.EntryPrice = price
	}
}

// CancelOrder cancels a resting order.
func (s *SimClient) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return err
	}

	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order not found: %s", domain.ErrExchangeRejected, orderID)
	}
	if o.IsTerminal() {
		return fmt.Errorf("%w: order already %s", domain.ErrExchangeRejected, o.Status)
	}
	o.Status = domain.StatusCanceled
	return nil
}

// CancelAllOrders cancels every resting order.
func (s *SimClient) CancelAllOrders(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(); err != nil {
		return err
	}
	for _, o := range s.orders {
		if o.IsOpen() {
			o.Status = domain.StatusCanceled
		}
	}
	return nil
}

// Close is a no-op for the synthetic exchange.
func (s *SimClient) Close() error { return nil }
