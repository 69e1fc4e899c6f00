package domain

import "time"

// Trend is the directional read of a market's price structure.
type Trend string

const (
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
	TrendNeutral Trend = "NEUTRAL"
)

// SignalAction is the recommendation attached to a trading signal.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// Signal is a directional recommendation with an attached confidence score.
// Confidence accumulates additively from contributing rules, capped at 95.
type Signal struct {
	Action     SignalAction `json:"action"`
	Confidence float64      `json:"confidence"` // 0..100
	Reasons    []string     `json:"reasons"`
}

// IndicatorBundle is the full set of derived indicators for one market.
// Recomputed each cycle, never persisted.
type IndicatorBundle struct {
	Market        string  `json:"market"`
	Price         float64 `json:"price"`
	Trend         Trend   `json:"trend"`
	RSI           float64 `json:"rsi"` // 0..100
	MACDHistogram float64 `json:"macd_histogram"`
	SMA20         float64 `json:"sma20"`
	SMA20OK       bool    `json:"sma20_ok"`
	SMA50         float64 `json:"sma50"`
	SMA50OK       bool    `json:"sma50_ok"`
	Support       float64 `json:"support"`
	Resistance    float64 `json:"resistance"`
	BollingerUp   float64 `json:"bollinger_up"`
	BollingerDown float64 `json:"bollinger_down"`
	ATR           float64 `json:"atr"`
	Samples       int     `json:"samples"`
	Signal        Signal  `json:"signal"`
}

// MarketAnalysis is the advisory record composed by the engine from the
// technical analyst and the risk scorer. It never places orders by itself.
type MarketAnalysis struct {
	Market     string          `json:"market"`
	Snapshot   MarketSnapshot  `json:"snapshot"`
	Indicators IndicatorBundle `json:"indicators"`
	Risk       RiskScore       `json:"risk"`
	At         time.Time       `json:"at"`
}
