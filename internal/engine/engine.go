// Package engine owns account state and turns analysis into orders.
// It is the only writer of account state; the gateway and analyst stay
// read-only advisors.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/analyst"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/risk"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/storage"
)

// MarketGateway is the slice of gateway behavior the engine needs.
type MarketGateway interface {
	MarketData(ctx context.Context, market string) domain.MarketSnapshot
	OrderBookData(ctx context.Context, market string) domain.OrderBook
	AccountState(ctx context.Context) (domain.AccountState, error)
	SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context) error
}

// Config tunes strategy execution.
type Config struct {
	ConfidenceThreshold   float64         // minimum signal confidence to act
	OrderSize             decimal.Decimal // base size for strategy entries
	StopLossATRMultiplier float64         // stop distance in ATR units
}

// StrategyResult is the per-market outcome of one strategy pass. A failed
// market never aborts the pass; its result carries the error instead.
type StrategyResult struct {
	Market   string                `json:"market"`
	Action   domain.SignalAction   `json:"action"`
	Executed bool                  `json:"executed"`
	Reason   string                `json:"reason,omitempty"`
	Order    *domain.Order         `json:"order,omitempty"`
	Analysis domain.MarketAnalysis `json:"analysis,omitempty"`
	Err      string                `json:"error,omitempty"`
}

// Engine coordinates the gateway, analyst and risk scorer into trades.
type Engine struct {
	gw      MarketGateway
	analyst *analyst.Analyst
	store   *storage.TradeStore // nil disables persistence
	macro   func() risk.Metrics
	cfg     Config
	log     *zap.Logger
	runID   string

	mu       sync.RWMutex
	account  domain.AccountState
	synced   bool
	wins     int
	losses   int
	realized decimal.Decimal
}

// New builds an engine. store may be nil; macro may be nil, in which case
// the risk scorer runs on neutral inputs.
func New(gw MarketGateway, an *analyst.Analyst, store *storage.TradeStore, macro func() risk.Metrics, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if macro == nil {
		macro = risk.NeutralMetrics
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 70
	}
	if cfg.OrderSize.IsZero() {
		cfg.OrderSize = decimal.RequireFromString("0.01")
	}
	if cfg.StopLossATRMultiplier <= 0 {
		cfg.StopLossATRMultiplier = 1.5
	}
	return &Engine{
		gw:      gw,
		analyst: an,
		store:   store,
		macro:   macro,
		cfg:     cfg,
		log:     log,
		runID:   uuid.NewString(),
	}
}

// RunID identifies this engine instance across persisted records.
func (e *Engine) RunID() string { return e.runID }

// SyncAccountState replaces the cached account view wholesale with a fresh
// fetch. On failure the previous view is kept untouched and the error is
// returned.
func (e *Engine) SyncAccountState(ctx context.Context) (domain.AccountState, error) {
	acct, err := e.gw.AccountState(ctx)
	if err != nil {
		e.log.Warn("account sync failed, keeping previous view", zap.Error(err))
		return e.Account(), fmt.Errorf("account sync: %w", err)
	}
	acct.SyncedAt = time.Now()

	e.mu.Lock()
	e.account = acct
	e.synced = true
	e.mu.Unlock()

	e.persistSyncMark(ctx, acct.SyncedAt)
	e.log.Debug("account synced",
		zap.Int("positions", len(acct.Positions)),
		zap.Int("orders", len(acct.Orders)))
	return acct, nil
}

// Account returns the last synced account view.
func (e *Engine) Account() domain.AccountState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.account
}

// CreateMarketOrder validates and submits a market order, then re-syncs the
// account regardless of the submission outcome.
func (e *Engine) CreateMarketOrder(ctx context.Context, market string, side domain.Side, size decimal.Decimal) (domain.Order, error) {
	order := domain.Order{
		ID:        uuid.NewString(),
		Market:    market,
		Side:      side,
		Kind:      domain.KindMarket,
		Size:      size,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
	return e.submit(ctx, order, "", "")
}

// CreateLimitOrder validates and submits a limit order at the given price,
// then re-syncs the account.
func (e *Engine) CreateLimitOrder(ctx context.Context, market string, side domain.Side, size, price decimal.Decimal) (domain.Order, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return domain.Order{}, fmt.Errorf("%w: limit price must be positive", domain.ErrValidation)
	}
	order := domain.Order{
		ID:        uuid.NewString(),
		Market:    market,
		Side:      side,
		Kind:      domain.KindLimit,
		Size:      size,
		Price:     price,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
	return e.submit(ctx, order, "", "")
}

// CreateStopLoss places a stop order that triggers at the given price.
// The side is the exit direction, opposite the position it protects.
func (e *Engine) CreateStopLoss(ctx context.Context, market string, side domain.Side, size, trigger decimal.Decimal) (domain.Order, error) {
	if trigger.LessThanOrEqual(decimal.Zero) {
		return domain.Order{}, fmt.Errorf("%w: trigger price must be positive", domain.ErrValidation)
	}
	order := domain.Order{
		ID:           uuid.NewString(),
		Market:       market,
		Side:         side,
		Kind:         domain.KindStop,
		Size:         size,
		TriggerPrice: trigger,
		Status:       domain.StatusPending,
		CreatedAt:    time.Now(),
	}
	return e.submit(ctx, order, "", "")
}

// submit runs shared validation, forwards the order and re-syncs. The sync
// runs even when submission fails: a transport error leaves the true
// exchange state unknown, so the only safe move is a fresh fetch. Strategy
// driven submissions pass the signal and regime that produced them so the
// persisted record keeps its analysis context.
func (e *Engine) submit(ctx context.Context, order domain.Order, signal domain.SignalAction, regime domain.Regime) (domain.Order, error) {
	if err := validateOrder(order); err != nil {
		return domain.Order{}, err
	}

	placed, submitErr := e.gw.SubmitOrder(ctx, order)

	if _, syncErr := e.SyncAccountState(ctx); syncErr != nil {
		e.log.Warn("post-order sync failed", zap.Error(syncErr))
	}

	if submitErr != nil {
		return domain.Order{}, fmt.Errorf("submit %s %s: %w", order.Kind, order.Market, submitErr)
	}

	e.persistTrade(ctx, placed, signal, regime)
	e.log.Info("order placed",
		zap.String("id", placed.ID),
		zap.String("market", placed.Market),
		zap.String("side", string(placed.Side)),
		zap.String("kind", string(placed.Kind)),
		zap.String("size", placed.Size.String()),
		zap.String("status", string(placed.Status)))
	return placed, nil
}

func validateOrder(o domain.Order) error {
	if o.Market == "" {
		return fmt.Errorf("%w: market is required", domain.ErrValidation)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", domain.ErrValidation, o.Side)
	}
	if o.Size.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: size must be positive", domain.ErrValidation)
	}
	return nil
}

// CancelOrder cancels one working order and re-syncs.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	cancelErr := e.gw.CancelOrder(ctx, orderID)
	if _, err := e.SyncAccountState(ctx); err != nil {
		e.log.Warn("post-cancel sync failed", zap.Error(err))
	}
	if cancelErr != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, cancelErr)
	}
	return nil
}

// CancelAllOrders cancels every working order on the account and re-syncs.
func (e *Engine) CancelAllOrders(ctx context.Context) error {
	cancelErr := e.gw.CancelAllOrders(ctx)
	if _, err := e.SyncAccountState(ctx); err != nil {
		e.log.Warn("post-cancel sync failed", zap.Error(err))
	}
	if cancelErr != nil {
		return fmt.Errorf("cancel all orders: %w", cancelErr)
	}
	return nil
}

// ClosePosition flattens the active position on a market with an opposite
// market order. Realized pnl is booked from the position's unrealized pnl
// at close time.
func (e *Engine) ClosePosition(ctx context.Context, market string) (domain.Order, error) {
	return e.closePosition(ctx, market, "", "")
}

func (e *Engine) closePosition(ctx context.Context, market string, signal domain.SignalAction, regime domain.Regime) (domain.Order, error) {
	e.mu.RLock()
	synced := e.synced
	e.mu.RUnlock()
	if !synced {
		if _, err := e.SyncAccountState(ctx); err != nil {
			return domain.Order{}, err
		}
	}

	acct := e.Account()
	pos, ok := acct.PositionFor(market)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: no open position on %s", domain.ErrValidation, market)
	}

	exit := domain.SideShort
	if !pos.IsLong() {
		exit = domain.SideLong
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		Market:    market,
		Side:      exit,
		Kind:      domain.KindMarket,
		Size:      pos.Size,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
	order, err := e.submit(ctx, order, signal, regime)
	if err != nil {
		return domain.Order{}, err
	}

	e.mu.Lock()
	if pos.UnrealizedPnl.IsNegative() {
		e.losses++
	} else {
		e.wins++
	}
	e.realized = e.realized.Add(pos.UnrealizedPnl)
	e.mu.Unlock()

	return order, nil
}

// AnalyzeMarket composes snapshot, indicators and risk into one advisory
// record. It never places orders.
func (e *Engine) AnalyzeMarket(ctx context.Context, market string) (domain.MarketAnalysis, error) {
	snap := e.gw.MarketData(ctx, market)
	if snap.IsZero() {
		return domain.MarketAnalysis{}, fmt.Errorf("%w: no data for %s", domain.ErrUnknownMarket, market)
	}

	// Dedupe by snapshot time: re-reading an unchanged cached snapshot
	// must not grow history, or flat duplicates would saturate the RSI.
	price, _ := snap.LastPrice.Float64()
	e.analyst.ObserveAt(market, price, snap.FetchedAt)

	bundle, err := e.analyst.Analyze(market)
	if err != nil {
		return domain.MarketAnalysis{}, fmt.Errorf("analyze %s: %w", market, err)
	}

	return domain.MarketAnalysis{
		Market:     market,
		Snapshot:   snap,
		Indicators: bundle,
		Risk:       risk.Score(e.macro()),
		At:         time.Now(),
	}, nil
}

// ExecuteStrategy runs one analyze-and-maybe-trade pass over the given
// markets. Each market is isolated: a failure (or panic) in one produces an
// error entry in its result and the pass continues.
func (e *Engine) ExecuteStrategy(ctx context.Context, markets []string) []StrategyResult {
	results := make([]StrategyResult, 0, len(markets))
	for _, market := range markets {
		results = append(results, e.executeOne(ctx, market))
	}
	return results
}

func (e *Engine) executeOne(ctx context.Context, market string) (res StrategyResult) {
	res = StrategyResult{Market: market, Action: domain.ActionHold}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Sprintf("strategy panic: %v", r)
			e.log.Error("strategy pass panicked",
				zap.String("market", market), zap.Any("panic", r))
		}
	}()

	analysis, err := e.AnalyzeMarket(ctx, market)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Analysis = analysis
	res.Action = analysis.Indicators.Signal.Action

	sig := analysis.Indicators.Signal
	if sig.Action == domain.ActionHold || sig.Confidence < e.cfg.ConfidenceThreshold {
		res.Reason = fmt.Sprintf("no actionable signal (%s @ %.0f)", sig.Action, sig.Confidence)
		return res
	}

	// Risk gate: entries need at least RISK_OFF appetite, exits are blocked
	// only in strongly greedy regimes where selling fights the tape.
	score := analysis.Risk.Score
	switch sig.Action {
	case domain.ActionBuy:
		if score < 35 {
			res.Reason = fmt.Sprintf("buy vetoed by risk regime %s (%.1f)", analysis.Risk.Regime, score)
			return res
		}
		res = e.enterLong(ctx, res, analysis)
	case domain.ActionSell:
		if score > 65 {
			res.Reason = fmt.Sprintf("sell vetoed by risk regime %s (%.1f)", analysis.Risk.Regime, score)
			return res
		}
		res = e.exitOrShort(ctx, res, analysis)
	}
	return res
}

func (e *Engine) enterLong(ctx context.Context, res StrategyResult, analysis domain.MarketAnalysis) StrategyResult {
	acct := e.Account()
	if pos, ok := acct.PositionFor(res.Market); ok && pos.IsLong() {
		res.Reason = "already long"
		return res
	}

	entry := domain.Order{
		ID:        uuid.NewString(),
		Market:    res.Market,
		Side:      domain.SideLong,
		Kind:      domain.KindMarket,
		Size:      e.cfg.OrderSize,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
	order, err := e.submit(ctx, entry, analysis.Indicators.Signal.Action, analysis.Risk.Regime)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Executed = true
	res.Order = &order
	res.Reason = "signal entry"

	e.placeProtectiveStop(ctx, analysis, domain.SideShort)
	return res
}

func (e *Engine) exitOrShort(ctx context.Context, res StrategyResult, analysis domain.MarketAnalysis) StrategyResult {
	acct := e.Account()
	pos, ok := acct.PositionFor(res.Market)
	if !ok || !pos.IsLong() {
		res.Reason = "no long position to exit"
		return res
	}

	order, err := e.closePosition(ctx, res.Market, analysis.Indicators.Signal.Action, analysis.Risk.Regime)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Executed = true
	res.Order = &order
	res.Reason = "signal exit"
	return res
}

// placeProtectiveStop attaches an ATR-distance stop to a fresh entry. A
// missing ATR (short history) means no stop; the next pass will have more
// samples.
func (e *Engine) placeProtectiveStop(ctx context.Context, analysis domain.MarketAnalysis, exitSide domain.Side) {
	atr := analysis.Indicators.ATR
	if atr <= 0 {
		return
	}
	dist := decimal.NewFromFloat(atr * e.cfg.StopLossATRMultiplier)
	entry := analysis.Snapshot.LastPrice

	var trigger decimal.Decimal
	if exitSide == domain.SideShort {
		trigger = entry.Sub(dist) // protecting a long
	} else {
		trigger = entry.Add(dist)
	}
	if trigger.LessThanOrEqual(decimal.Zero) {
		return
	}

	stop := domain.Order{
		ID:           uuid.NewString(),
		Market:       analysis.Market,
		Side:         exitSide,
		Kind:         domain.KindStop,
		Size:         e.cfg.OrderSize,
		TriggerPrice: trigger,
		Status:       domain.StatusPending,
		CreatedAt:    time.Now(),
	}
	if _, err := e.submit(ctx, stop, analysis.Indicators.Signal.Action, analysis.Risk.Regime); err != nil {
		e.log.Warn("protective stop failed",
			zap.String("market", analysis.Market), zap.Error(err))
	}
}

func (e *Engine) persistTrade(ctx context.Context, order domain.Order, signal domain.SignalAction, regime domain.Regime) {
	if e.store == nil {
		return
	}
	rec := storage.TradeRecord{
		ID:        order.ID,
		Market:    order.Market,
		Side:      order.Side,
		Kind:      order.Kind,
		Size:      order.Size.String(),
		Price:     order.Price.String(),
		Status:    order.Status,
		Signal:    signal,
		Regime:    regime,
		CreatedAt: order.CreatedAt,
	}
	if err := e.store.SaveTrade(ctx, rec); err != nil {
		e.log.Warn("trade persistence failed", zap.String("id", order.ID), zap.Error(err))
	}
}

// persistSyncMark records the run id and last successful sync time. Best
// effort: a storage hiccup never fails the sync itself.
func (e *Engine) persistSyncMark(ctx context.Context, at time.Time) {
	if e.store == nil {
		return
	}
	ts := at.UnixMilli()
	if err := e.store.UpsertMetadata(ctx, "run_id", e.runID, ts); err != nil {
		e.log.Warn("run id persistence failed", zap.Error(err))
		return
	}
	if err := e.store.UpsertMetadata(ctx, "last_sync", at.UTC().Format(time.RFC3339Nano), ts); err != nil {
		e.log.Warn("sync mark persistence failed", zap.Error(err))
	}
}
