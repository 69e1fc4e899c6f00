package analyst

import (
	"testing"
	"time"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
)

var tenPoints = []float64{100, 102, 101, 105, 107, 104, 103, 108, 110, 109}

func observeAll(a *Analyst, market string, series []float64) {
	for _, p := range series {
		a.Observe(market, p)
	}
}

func TestAnalyst_AnalyzeShortHistory(t *testing.T) {
	a := New(nil)
	observeAll(a, "BTC", tenPoints)

	b, err := a.Analyze("BTC")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if b.RSI != 50 {
		t.Errorf("RSI = %v, want neutral 50 with 10 samples", b.RSI)
	}
	if b.MACDHistogram != 0 {
		t.Errorf("MACD histogram = %v, want 0 with 10 samples", b.MACDHistogram)
	}
	if b.SMA20OK || b.SMA50OK {
		t.Error("SMA20/SMA50 should be undefined with 10 samples")
	}
	if b.Trend != domain.TrendBullish {
		t.Errorf("trend = %s, want BULLISH (109 vs avg 104.9)", b.Trend)
	}
	if b.Support != 103 {
		t.Errorf("support = %v, want 103", b.Support)
	}
	if b.Resistance != 110 {
		t.Errorf("resistance = %v, want 110", b.Resistance)
	}
	if b.Samples != 10 {
		t.Errorf("samples = %d, want 10", b.Samples)
	}
}

func TestAnalyst_AnalyzeUnknownMarket(t *testing.T) {
	a := New(nil)
	if _, err := a.Analyze("NOPE"); err == nil {
		t.Error("Expected error for market with no history")
	}
}

func TestAnalyst_ObserveRejectsBadPrices(t *testing.T) {
	a := New(nil)
	a.Observe("BTC", 0)
	a.Observe("BTC", -5)

	if n := a.SampleCount("BTC"); n != 0 {
		t.Errorf("sample count = %d, want 0 after invalid observations", n)
	}
}

func TestAnalyst_ObserveAtDedupesByTimestamp(t *testing.T) {
	a := New(nil)
	t0 := time.Now()

	a.ObserveAt("BTC", 100, t0)
	a.ObserveAt("BTC", 100, t0) // same snapshot re-read
	a.ObserveAt("BTC", 99, t0.Add(-time.Second))
	if n := a.SampleCount("BTC"); n != 1 {
		t.Fatalf("sample count = %d, want 1 (stale and duplicate points dropped)", n)
	}

	a.ObserveAt("BTC", 101, t0.Add(time.Second))
	if n := a.SampleCount("BTC"); n != 2 {
		t.Errorf("sample count = %d, want 2 after a newer point", n)
	}

	// Markets dedupe independently.
	a.ObserveAt("ETH", 2000, t0)
	if n := a.SampleCount("ETH"); n != 1 {
		t.Errorf("ETH sample count = %d, want 1", n)
	}
}

func TestAnalyst_HistoryCapped(t *testing.T) {
	a := New(nil)
	for i := 0; i < 250; i++ {
		a.Observe("BTC", 100+float64(i))
	}
	if n := a.SampleCount("BTC"); n != historyCap {
		t.Errorf("sample count = %d, want cap %d", n, historyCap)
	}

	b, err := a.Analyze("BTC")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if b.Price != 349 {
		t.Errorf("last price = %v, want 349 (newest observation)", b.Price)
	}
}

func TestAnalyst_MarketsAreIndependent(t *testing.T) {
	a := New(nil)
	observeAll(a, "BTC", tenPoints)
	a.Observe("ETH", 2000)

	if n := a.SampleCount("ETH"); n != 1 {
		t.Errorf("ETH sample count = %d, want 1", n)
	}
	if n := a.SampleCount("BTC"); n != 10 {
		t.Errorf("BTC sample count = %d, want 10", n)
	}
}

func TestCalcTrend(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		price  float64
		want   domain.Trend
	}{
		{"above band", []float64{100, 100, 100}, 102, domain.TrendBullish},
		{"below band", []float64{100, 100, 100}, 98, domain.TrendBearish},
		{"inside band", []float64{100, 100, 100}, 100.5, domain.TrendNeutral},
		{"single point", []float64{100}, 100, domain.TrendNeutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := calcTrend(tc.series, tc.price); got != tc.want {
				t.Errorf("calcTrend = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestBuildSignal_HoldHasZeroConfidence(t *testing.T) {
	b := domain.IndicatorBundle{
		Price: 100, RSI: 50, Trend: domain.TrendNeutral,
		Support: 0, Resistance: 110,
	}
	sig := buildSignal(b)
	if sig.Action != domain.ActionHold {
		t.Fatalf("action = %s, want HOLD", sig.Action)
	}
	if sig.Confidence != 0 {
		t.Errorf("HOLD confidence = %v, want 0", sig.Confidence)
	}
}

func TestBuildSignal_OversoldBuy(t *testing.T) {
	b := domain.IndicatorBundle{
		Price: 100, RSI: 25, MACDHistogram: 1, Trend: domain.TrendBullish,
		Support: 50, Resistance: 150,
	}
	sig := buildSignal(b)
	if sig.Action != domain.ActionBuy {
		t.Fatalf("action = %s, want BUY", sig.Action)
	}
	// 30 (RSI) + 20 (MACD) + 15 (trend), no proximity bonus.
	if sig.Confidence != 65 {
		t.Errorf("confidence = %v, want 65", sig.Confidence)
	}
}

func TestBuildSignal_SupportOverridesMomentum(t *testing.T) {
	// Momentum says sell, but price sits on support inside the 2% band.
	b := domain.IndicatorBundle{
		Price: 100, RSI: 75, MACDHistogram: -1, Trend: domain.TrendNeutral,
		Support: 99, Resistance: 150,
	}
	sig := buildSignal(b)
	if sig.Action != domain.ActionBuy {
		t.Errorf("action = %s, want BUY (structure override)", sig.Action)
	}
}

func TestBuildSignal_ConfidenceNeverExceedsCap(t *testing.T) {
	bundles := []domain.IndicatorBundle{
		{Price: 100, RSI: 10, MACDHistogram: 5, Trend: domain.TrendBullish, Support: 99.5, Resistance: 150},
		{Price: 100, RSI: 90, MACDHistogram: -5, Trend: domain.TrendBearish, Support: 10, Resistance: 100.5},
	}
	for _, b := range bundles {
		sig := buildSignal(b)
		if sig.Confidence > 95 {
			t.Errorf("confidence = %v, want <= 95", sig.Confidence)
		}
	}
}

func TestAnalyst_SignalOnShortHistory(t *testing.T) {
	a := New(nil)
	observeAll(a, "BTC", tenPoints)

	b, err := a.Analyze("BTC")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	// 109 is within 2% of resistance 110, which outranks the bullish trend.
	if b.Signal.Action != domain.ActionSell {
		t.Errorf("action = %s, want SELL (resistance proximity)", b.Signal.Action)
	}
}
