package domain

// Regime is a named bucket summarizing aggregate market risk appetite.
type Regime string

const (
	RegimeExtremeFear  Regime = "EXTREME_FEAR"
	RegimeFear         Regime = "FEAR"
	RegimeRiskOff      Regime = "RISK_OFF"
	RegimeNeutral      Regime = "NEUTRAL"
	RegimeRiskOn       Regime = "RISK_ON"
	RegimeGreed        Regime = "GREED"
	RegimeExtremeGreed Regime = "EXTREME_GREED"
)

// Rank orders regimes from most fearful (0) to most greedy (6).
func (r Regime) Rank() int {
	switch r {
	case RegimeExtremeFear:
		return 0
	case RegimeFear:
		return 1
	case RegimeRiskOff:
		return 2
	case RegimeNeutral:
		return 3
	case RegimeRiskOn:
		return 4
	case RegimeGreed:
		return 5
	case RegimeExtremeGreed:
		return 6
	default:
		return -1
	}
}

// RiskComponents are the six independent 0..100 sub-scores.
type RiskComponents struct {
	Price      float64 `json:"price"`
	Volatility float64 `json:"volatility"`
	Sentiment  float64 `json:"sentiment"`
	Flows      float64 `json:"flows"`
	Structure  float64 `json:"structure"`
	Macro      float64 `json:"macro"`
}

// RiskScore is the weighted reduction of heterogeneous market/macro inputs.
// Pure function output: no identity, recomputed on demand.
type RiskScore struct {
	Score      float64        `json:"score"` // 0..100
	Regime     Regime         `json:"regime"`
	Components RiskComponents `json:"components"`
	Signals    []string       `json:"signals"`
}
