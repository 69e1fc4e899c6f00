// Package analyst turns per-market price history into a directional,
// confidence-scored trading signal. Pure given its ring buffers: no network,
// no shared state beyond them.
package analyst

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
)

const (
	historyCap       = 100
	extremaWindow    = 50
	rsiPeriod        = 14
	proximityBand    = 0.02 // 2% of price
	confidenceCap    = 95
	rsiOverbought    = 70
	rsiOversold      = 30
	trendBandPercent = 0.01
)

// Analyst maintains one bounded price-history buffer per market and derives
// the indicator bundle on demand.
type Analyst struct {
	mu      sync.RWMutex
	history map[string]*priceRing
	log     *zap.Logger
}

// New creates an analyst with empty history.
func New(log *zap.Logger) *Analyst {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyst{
		history: make(map[string]*priceRing),
		log:     log,
	}
}

// Observe appends a price point for a market, evicting the oldest once the
// buffer is at capacity.
func (a *Analyst) Observe(market string, price float64) {
	if price <= 0 || math.IsNaN(price) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ring, ok := a.history[market]
	if !ok {
		ring = newPriceRing(historyCap)
		a.history[market] = ring
	}
	ring.push(price)
}

// ObserveAt appends a price point sourced from a snapshot taken at the
// given time. A point whose timestamp does not advance past the newest one
// already recorded for the market is dropped, so re-reading an unchanged
// cached snapshot never fabricates history.
func (a *Analyst) ObserveAt(market string, price float64, at time.Time) {
	if price <= 0 || math.IsNaN(price) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ring, ok := a.history[market]
	if !ok {
		ring = newPriceRing(historyCap)
		a.history[market] = ring
	}
	if !at.After(ring.lastAt) {
		return
	}
	ring.lastAt = at
	ring.push(price)
}

// SampleCount returns the number of observed points for a market.
func (a *Analyst) SampleCount(market string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if ring, ok := a.history[market]; ok {
		return ring.count
	}
	return 0
}

// Analyze recomputes the full indicator bundle for a market from its
// current history. The bundle is derived state, never persisted.
func (a *Analyst) Analyze(market string) (domain.IndicatorBundle, error) {
	a.mu.RLock()
	ring, ok := a.history[market]
	if !ok {
		a.mu.RUnlock()
		return domain.IndicatorBundle{}, fmt.Errorf("no price history for market %s", market)
	}
	series := ring.values()
	price, _ := ring.last()
	a.mu.RUnlock()

	sma20 := SMA(series, 20)
	sma50 := SMA(series, 50)
	_, _, hist := MACD(series)
	rsi := RSI(series, rsiPeriod)
	support, resistance := SupportResistance(series, price, extremaWindow)
	trend := calcTrend(series, price)

	bundle := domain.IndicatorBundle{
		Market:        market,
		Price:         price,
		Trend:         trend,
		RSI:           rsi,
		MACDHistogram: hist,
		SMA20:         sma20.V,
		SMA20OK:       sma20.OK,
		SMA50:         sma50.V,
		SMA50OK:       sma50.OK,
		Support:       support,
		Resistance:    resistance,
		Samples:       len(series),
	}

	// Volatility extras ride on talib; they need a fuller window.
	if len(series) >= 21 {
		up, _, down := talib.BBands(series, 20, 2, 2, talib.SMA)
		bundle.BollingerUp = up[len(up)-1]
		bundle.BollingerDown = down[len(down)-1]
	}
	if len(series) >= 15 {
		// Trade-stream history carries closes only, so high/low collapse to
		// close and ATR degrades to mean absolute close-to-close movement.
		atr := talib.Atr(series, series, series, rsiPeriod)
		bundle.ATR = atr[len(atr)-1]
	}

	bundle.Signal = buildSignal(bundle)
	return bundle, nil
}

// calcTrend compares price against the SMA of the available window (up to
// 20 points). Within ±1% of the average the trend reads NEUTRAL.
func calcTrend(series []float64, price float64) domain.Trend {
	period := 20
	if len(series) < period {
		period = len(series)
	}
	sma := SMA(series, period)
	if !sma.OK || sma.V == 0 {
		return domain.TrendNeutral
	}
	switch {
	case price > sma.V*(1+trendBandPercent):
		return domain.TrendBullish
	case price < sma.V*(1-trendBandPercent):
		return domain.TrendBearish
	default:
		return domain.TrendNeutral
	}
}

// buildSignal combines RSI extremes, MACD histogram sign, trend direction
// and proximity to support/resistance. Each contributing rule adds to the
// side it favors; proximity to price structure overrides momentum when price
// is within the 2% band.
func buildSignal(b domain.IndicatorBundle) domain.Signal {
	var buy, sell float64
	var reasons []string

	if b.RSI < rsiOversold {
		buy += 30
		reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f)", b.RSI))
	} else if b.RSI > rsiOverbought {
		sell += 30
		reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f)", b.RSI))
	}

	if b.MACDHistogram > 0 {
		buy += 20
		reasons = append(reasons, "MACD histogram positive")
	} else if b.MACDHistogram < 0 {
		sell += 20
		reasons = append(reasons, "MACD histogram negative")
	}

	switch b.Trend {
	case domain.TrendBullish:
		buy += 15
		reasons = append(reasons, "price above trend average")
	case domain.TrendBearish:
		sell += 15
		reasons = append(reasons, "price below trend average")
	}

	nearSupport := b.Support > 0 && b.Price > 0 &&
		(b.Price-b.Support)/b.Price < proximityBand
	nearResistance := b.Resistance > 0 && b.Price > 0 &&
		(b.Resistance-b.Price)/b.Price < proximityBand

	if nearSupport {
		buy += 25
		reasons = append(reasons, fmt.Sprintf("price near support %.2f", b.Support))
	}
	if nearResistance {
		sell += 25
		reasons = append(reasons, fmt.Sprintf("price near resistance %.2f", b.Resistance))
	}

	action := domain.ActionHold
	confidence := 0.0
	switch {
	case buy > sell:
		action, confidence = domain.ActionBuy, buy
	case sell > buy:
		action, confidence = domain.ActionSell, sell
	}

	// Price structure outranks momentum oscillators inside the band.
	if nearSupport && !nearResistance && action != domain.ActionBuy {
		action = domain.ActionBuy
		confidence = buy
		reasons = append(reasons, "support proximity overrides momentum")
	} else if nearResistance && !nearSupport && action != domain.ActionSell {
		action = domain.ActionSell
		confidence = sell
		reasons = append(reasons, "resistance proximity overrides momentum")
	}

	if confidence > confidenceCap {
		confidence = confidenceCap
	}
	if action == domain.ActionHold {
		confidence = 0
	}

	return domain.Signal{Action: action, Confidence: confidence, Reasons: reasons}
}
