package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/analyst"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/storage"
)

// fakeGateway scripts exchange behavior per market and counts syncs.
type fakeGateway struct {
	snapshots  map[string]domain.MarketSnapshot
	account    domain.AccountState
	accountErr error
	submitErr  error
	syncCalls  int32
	submitted  []domain.Order
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{snapshots: make(map[string]domain.MarketSnapshot)}
}

func (f *fakeGateway) price(market string, p int64) {
	f.snapshots[market] = domain.MarketSnapshot{
		Market:    market,
		LastPrice: decimal.NewFromInt(p),
		FetchedAt: time.Now(),
	}
}

func (f *fakeGateway) MarketData(ctx context.Context, market string) domain.MarketSnapshot {
	return f.snapshots[market]
}

func (f *fakeGateway) OrderBookData(ctx context.Context, market string) domain.OrderBook {
	return domain.OrderBook{Market: market, FetchedAt: time.Now()}
}

func (f *fakeGateway) AccountState(ctx context.Context) (domain.AccountState, error) {
	atomic.AddInt32(&f.syncCalls, 1)
	if f.accountErr != nil {
		return domain.AccountState{}, f.accountErr
	}
	return f.account, nil
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if f.submitErr != nil {
		return domain.Order{}, f.submitErr
	}
	order.Status = domain.StatusFilled
	f.submitted = append(f.submitted, order)
	return order, nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (f *fakeGateway) CancelAllOrders(ctx context.Context) error             { return nil }

func newTestEngine(gw MarketGateway) *Engine {
	return New(gw, analyst.New(nil), nil, nil, Config{}, nil)
}

func TestEngine_SyncReplacesWholesale(t *testing.T) {
	gw := newFakeGateway()
	gw.account = domain.AccountState{
		Balance:   decimal.NewFromInt(1000),
		Positions: []domain.Position{{Market: "BTC", Side: domain.SideLong}},
	}
	e := newTestEngine(gw)

	if _, err := e.SyncAccountState(context.Background()); err != nil {
		t.Fatalf("SyncAccountState() error = %v", err)
	}
	if len(e.Account().Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(e.Account().Positions))
	}

	// The next sync carries no positions; the old one must not linger.
	gw.account = domain.AccountState{Balance: decimal.NewFromInt(900)}
	if _, err := e.SyncAccountState(context.Background()); err != nil {
		t.Fatalf("SyncAccountState() error = %v", err)
	}
	if len(e.Account().Positions) != 0 {
		t.Errorf("positions = %d after wholesale sync, want 0", len(e.Account().Positions))
	}
	if !e.Account().Balance.Equal(decimal.NewFromInt(900)) {
		t.Errorf("balance = %s, want 900", e.Account().Balance)
	}
}

func TestEngine_FailedSyncKeepsPreviousView(t *testing.T) {
	gw := newFakeGateway()
	gw.account = domain.AccountState{Balance: decimal.NewFromInt(1000)}
	e := newTestEngine(gw)

	if _, err := e.SyncAccountState(context.Background()); err != nil {
		t.Fatalf("SyncAccountState() error = %v", err)
	}

	gw.accountErr = errors.New("exchange down")
	if _, err := e.SyncAccountState(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	if !e.Account().Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance = %s after failed sync, want previous 1000", e.Account().Balance)
	}
}

func TestEngine_OrderTriggersResync(t *testing.T) {
	gw := newFakeGateway()
	e := newTestEngine(gw)

	before := atomic.LoadInt32(&gw.syncCalls)
	if _, err := e.CreateMarketOrder(context.Background(), "BTC", domain.SideLong, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("CreateMarketOrder() error = %v", err)
	}
	if n := atomic.LoadInt32(&gw.syncCalls); n != before+1 {
		t.Errorf("sync calls = %d, want %d (one per order)", n, before+1)
	}
}

func TestEngine_FailedOrderStillResyncs(t *testing.T) {
	gw := newFakeGateway()
	gw.submitErr = errors.New("exchange rejected")
	e := newTestEngine(gw)

	before := atomic.LoadInt32(&gw.syncCalls)
	if _, err := e.CreateMarketOrder(context.Background(), "BTC", domain.SideLong, decimal.NewFromInt(1)); err == nil {
		t.Fatal("expected submit error")
	}
	if n := atomic.LoadInt32(&gw.syncCalls); n != before+1 {
		t.Errorf("sync calls = %d, want %d (sync is unconditional)", n, before+1)
	}
}

func TestEngine_ValidationRejectsBeforeNetwork(t *testing.T) {
	gw := newFakeGateway()
	e := newTestEngine(gw)

	cases := []struct {
		name string
		call func() error
	}{
		{"empty market", func() error {
			_, err := e.CreateMarketOrder(context.Background(), "", domain.SideLong, decimal.NewFromInt(1))
			return err
		}},
		{"bad side", func() error {
			_, err := e.CreateMarketOrder(context.Background(), "BTC", "SIDEWAYS", decimal.NewFromInt(1))
			return err
		}},
		{"zero size", func() error {
			_, err := e.CreateMarketOrder(context.Background(), "BTC", domain.SideLong, decimal.Zero)
			return err
		}},
		{"zero limit price", func() error {
			_, err := e.CreateLimitOrder(context.Background(), "BTC", domain.SideLong, decimal.NewFromInt(1), decimal.Zero)
			return err
		}},
		{"zero stop trigger", func() error {
			_, err := e.CreateStopLoss(context.Background(), "BTC", domain.SideShort, decimal.NewFromInt(1), decimal.Zero)
			return err
		}},
		{"empty cancel id", func() error {
			return e.CancelOrder(context.Background(), "")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
	if len(gw.submitted) != 0 {
		t.Errorf("invalid orders reached the exchange: %d", len(gw.submitted))
	}
}

func TestEngine_ClosePositionRequiresPosition(t *testing.T) {
	gw := newFakeGateway()
	e := newTestEngine(gw)

	_, err := e.ClosePosition(context.Background(), "BTC")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for missing position", err)
	}
}

func TestEngine_ClosePositionFlattensOpposite(t *testing.T) {
	gw := newFakeGateway()
	gw.account = domain.AccountState{
		Positions: []domain.Position{{
			Market:        "BTC",
			Side:          domain.SideLong,
			Size:          decimal.NewFromInt(2),
			UnrealizedPnl: decimal.NewFromInt(50),
		}},
	}
	e := newTestEngine(gw)
	if _, err := e.SyncAccountState(context.Background()); err != nil {
		t.Fatalf("SyncAccountState() error = %v", err)
	}

	order, err := e.ClosePosition(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}
	if order.Side != domain.SideShort {
		t.Errorf("close side = %s, want SHORT against a long", order.Side)
	}
	if !order.Size.Equal(decimal.NewFromInt(2)) {
		t.Errorf("close size = %s, want full position 2", order.Size)
	}

	perf := e.Performance(context.Background())
	if perf.Wins != 1 {
		t.Errorf("wins = %d, want 1 (closed in profit)", perf.Wins)
	}
	if !perf.RealizedPnl.Equal(decimal.NewFromInt(50)) {
		t.Errorf("realized pnl = %s, want 50", perf.RealizedPnl)
	}
}

func TestEngine_AnalyzeUnknownMarket(t *testing.T) {
	gw := newFakeGateway()
	e := newTestEngine(gw)

	_, err := e.AnalyzeMarket(context.Background(), "NOPE")
	if !errors.Is(err, domain.ErrUnknownMarket) {
		t.Errorf("error = %v, want ErrUnknownMarket", err)
	}
}

func TestEngine_AnalyzeComposesRiskAndIndicators(t *testing.T) {
	gw := newFakeGateway()
	gw.price("BTC", 50000)
	e := newTestEngine(gw)

	analysis, err := e.AnalyzeMarket(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("AnalyzeMarket() error = %v", err)
	}
	if analysis.Indicators.Samples != 1 {
		t.Errorf("samples = %d, want 1 (snapshot observed)", analysis.Indicators.Samples)
	}
	if analysis.Risk.Regime == "" {
		t.Error("risk regime missing from analysis")
	}
	if analysis.Indicators.RSI != 50 {
		t.Errorf("RSI = %v, want neutral 50 with one sample", analysis.Indicators.RSI)
	}
}

func TestEngine_StrategyIsolatesFailingMarkets(t *testing.T) {
	gw := newFakeGateway()
	gw.price("B", 100) // "A" has no data and will fail
	e := newTestEngine(gw)

	results := e.ExecuteStrategy(context.Background(), []string{"A", "B"})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (one per market)", len(results))
	}
	if results[0].Market != "A" || results[0].Err == "" {
		t.Errorf("market A should carry an error, got %+v", results[0])
	}
	if results[1].Market != "B" || results[1].Err != "" {
		t.Errorf("market B should have been analyzed, got %+v", results[1])
	}
}

func TestEngine_RepeatedAnalysisLeavesHistoryUntouched(t *testing.T) {
	gw := newFakeGateway()
	gw.price("BTC", 50000)
	e := newTestEngine(gw)

	// The cached snapshot never changes; re-analyzing it must not append
	// flat duplicates that would pin the RSI at 100.
	var last domain.MarketAnalysis
	for i := 0; i < 15; i++ {
		a, err := e.AnalyzeMarket(context.Background(), "BTC")
		if err != nil {
			t.Fatalf("AnalyzeMarket() error = %v", err)
		}
		last = a
	}
	if last.Indicators.Samples != 1 {
		t.Errorf("samples = %d after repeated analysis, want 1", last.Indicators.Samples)
	}
	if last.Indicators.RSI != 50 {
		t.Errorf("RSI = %v, want neutral 50", last.Indicators.RSI)
	}
	if last.Indicators.Signal.Action == domain.ActionSell {
		t.Errorf("unchanged market produced SELL: %+v", last.Indicators.Signal)
	}

	// A genuinely fresh snapshot still advances history.
	gw.price("BTC", 50100)
	a, err := e.AnalyzeMarket(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("AnalyzeMarket() error = %v", err)
	}
	if a.Indicators.Samples != 2 {
		t.Errorf("samples = %d after new snapshot, want 2", a.Indicators.Samples)
	}
}

func TestEngine_StrategyPersistsAnalysisContext(t *testing.T) {
	store, err := storage.NewTradeStore(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("NewTradeStore() error = %v", err)
	}
	defer store.Close()

	gw := newFakeGateway()
	gw.price("BTC", 70)
	an := analyst.New(nil)
	// A long slide pins the RSI oversold so the pass enters long.
	for p := 100.0; p > 70; p -= 2 {
		an.Observe("BTC", p)
	}
	e := New(gw, an, store, nil, Config{ConfidenceThreshold: 25}, nil)

	results := e.ExecuteStrategy(context.Background(), []string{"BTC"})
	if len(results) != 1 || !results[0].Executed {
		t.Fatalf("strategy results = %+v, want an executed entry", results)
	}

	recs, err := store.TradesForMarket(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("TradesForMarket() error = %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("no trades persisted for executed entry")
	}
	for _, rec := range recs {
		if rec.Signal != domain.ActionBuy {
			t.Errorf("record %s signal = %q, want BUY", rec.ID, rec.Signal)
		}
		if rec.Regime != domain.RegimeNeutral {
			t.Errorf("record %s regime = %q, want NEUTRAL", rec.ID, rec.Regime)
		}
	}

	runID, err := store.GetMetadata(context.Background(), "run_id")
	if err != nil {
		t.Fatalf("GetMetadata(run_id) error = %v", err)
	}
	if runID != e.RunID() {
		t.Errorf("run_id = %q, want %q", runID, e.RunID())
	}
	lastSync, err := store.GetMetadata(context.Background(), "last_sync")
	if err != nil {
		t.Fatalf("GetMetadata(last_sync) error = %v", err)
	}
	if lastSync == "" {
		t.Error("last_sync not recorded after post-order sync")
	}
}

func TestEngine_StrategyHoldsBelowThreshold(t *testing.T) {
	gw := newFakeGateway()
	gw.price("BTC", 50000)
	e := newTestEngine(gw)

	results := e.ExecuteStrategy(context.Background(), []string{"BTC"})
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Executed {
		t.Error("one flat sample should never trigger a trade")
	}
	if len(gw.submitted) != 0 {
		t.Errorf("orders submitted = %d, want 0", len(gw.submitted))
	}
}
