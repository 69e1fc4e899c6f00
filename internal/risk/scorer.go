// Package risk reduces heterogeneous market/macro inputs to a single 0–100
// appetite score and a regime label. Pure functions only: identical inputs
// always yield identical output.
package risk

import (
	"fmt"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
)

// FlowDirection labels net stablecoin flow.
type FlowDirection string

const (
	FlowIn  FlowDirection = "IN"
	FlowOut FlowDirection = "OUT"
)

// Metrics is the input bundle for one scoring pass.
type Metrics struct {
	BTCChange24h float64       `json:"btc_change_24h"` // percent
	ETHChange24h float64       `json:"eth_change_24h"` // percent
	VIX          float64       `json:"vix"`
	FearGreed    float64       `json:"fear_greed_index"` // 0..100
	FlowDir      FlowDirection `json:"stable_flow_direction"`
	FlowMag      float64       `json:"stable_flow_magnitude"` // billions, absolute
	FundingRate  float64       `json:"funding_rate"`          // percent
	OpenInterest float64       `json:"open_interest"`         // billions
	BTCDominance float64       `json:"btc_dominance"`         // percent
	DXY          float64       `json:"dxy"`
	DXYChange    float64       `json:"dxy_change"` // percent, daily
}

// NeutralMetrics returns inputs that score every component at or near 50.
// Used when no macro feed is wired.
func NeutralMetrics() Metrics {
	return Metrics{
		VIX:          22,
		FearGreed:    50,
		FlowDir:      FlowIn,
		FundingRate:  0.01,
		OpenInterest: 15,
		BTCDominance: 48,
		DXY:          103,
	}
}

// Weights for the final weighted sum. Must sum to 1.0.
type Weights struct {
	Price      float64
	Volatility float64
	Sentiment  float64
	Flows      float64
	Structure  float64
	Macro      float64
}

// DefaultWeights are the production weights.
func DefaultWeights() Weights {
	return Weights{
		Price:      0.20,
		Volatility: 0.15,
		Sentiment:  0.25,
		Flows:      0.20,
		Structure:  0.10,
		Macro:      0.10,
	}
}

// Sum returns the total weight; it must equal 1.0 for a valid configuration.
func (w Weights) Sum() float64 {
	return w.Price + w.Volatility + w.Sentiment + w.Flows + w.Structure + w.Macro
}

// Validate rejects weight sets that do not sum to 1.0 (within epsilon).
func (w Weights) Validate() error {
	const eps = 1e-9
	if d := w.Sum() - 1.0; d > eps || d < -eps {
		return fmt.Errorf("risk weights must sum to 1.0, got %v", w.Sum())
	}
	return nil
}

// Score computes the weighted risk appetite from the default weights.
func Score(m Metrics) domain.RiskScore {
	return ScoreWith(m, DefaultWeights())
}

// ScoreWith computes the weighted risk appetite with explicit weights.
func ScoreWith(m Metrics, w Weights) domain.RiskScore {
	c := domain.RiskComponents{
		Price:      priceScore(m.BTCChange24h, m.ETHChange24h),
		Volatility: volatilityScore(m.VIX),
		Sentiment:  clamp(m.FearGreed),
		Flows:      flowScore(m.FlowDir, m.FlowMag),
		Structure:  structureScore(m.FundingRate, m.OpenInterest, m.BTCDominance),
		Macro:      macroScore(m.DXY, m.DXYChange),
	}

	total := clamp(c.Price*w.Price +
		c.Volatility*w.Volatility +
		c.Sentiment*w.Sentiment +
		c.Flows*w.Flows +
		c.Structure*w.Structure +
		c.Macro*w.Macro)

	return domain.RiskScore{
		Score:      total,
		Regime:     RegimeFor(total),
		Components: c,
		Signals:    componentSignals(c),
	}
}

// RegimeFor maps a final score to its regime bucket. Boundaries are
// inclusive on the lower end of each named bucket.
func RegimeFor(score float64) domain.Regime {
	switch {
	case score >= 80:
		return domain.RegimeExtremeGreed
	case score >= 65:
		return domain.RegimeGreed
	case score >= 55:
		return domain.RegimeRiskOn
	case score >= 45:
		return domain.RegimeNeutral
	case score >= 35:
		return domain.RegimeRiskOff
	case score >= 20:
		return domain.RegimeFear
	default:
		return domain.RegimeExtremeFear
	}
}

// priceScore buckets the average of BTC and ETH 24h change.
func priceScore(btc, eth float64) float64 {
	avg := (btc + eth) / 2
	switch {
	case avg >= 10:
		return 90
	case avg >= 5:
		return 75
	case avg >= 2:
		return 60
	case avg > -2:
		return 50
	case avg > -5:
		return 40
	case avg > -10:
		return 25
	default:
		return 10
	}
}

// volatilityScore is inverse bucketed on VIX: lower VIX, higher appetite.
func volatilityScore(vix float64) float64 {
	switch {
	case vix <= 0:
		return 90 // treat a missing/zero reading as a calm tape
	case vix <= 12:
		return 90
	case vix <= 16:
		return 75
	case vix <= 20:
		return 60
	case vix <= 25:
		return 45
	case vix <= 30:
		return 30
	default:
		return 15
	}
}

// flowScore scales base 50 by direction × magnitude of stablecoin flow.
func flowScore(dir FlowDirection, magnitude float64) float64 {
	if magnitude < 0 {
		magnitude = -magnitude
	}
	delta := magnitude * 8
	if dir == FlowOut {
		return clamp(50 - delta)
	}
	return clamp(50 + delta)
}

// structureScore nudges a base 50 by funding, open interest and dominance.
func structureScore(funding, openInterest, dominance float64) float64 {
	score := 50.0
	if funding > 0.02 {
		score += 10
	} else if funding < -0.01 {
		score -= 10
	}
	if openInterest > 20 {
		score += 10
	} else if openInterest < 10 {
		score -= 10
	}
	if dominance < 40 {
		score += 10 // capital rotating into alts
	} else if dominance > 55 {
		score -= 10
	}
	return clamp(score)
}

// macroScore nudges a base 50 by DXY level and its daily change.
func macroScore(dxy, change float64) float64 {
	score := 50.0
	if dxy > 0 && dxy < 100 {
		score += 15
	} else if dxy > 105 {
		score -= 15
	}
	if change < -0.5 {
		score += 15
	} else if change > 0.5 {
		score -= 15
	}
	return clamp(score)
}

// componentSignals emits explainability flags when a sub-score crosses 70
// (high) or 30 (low). They never feed back into the numeric result.
func componentSignals(c domain.RiskComponents) []string {
	var out []string
	add := func(name string, v float64) {
		if v >= 70 {
			out = append(out, fmt.Sprintf("%s strongly risk-on (%.0f)", name, v))
		} else if v <= 30 {
			out = append(out, fmt.Sprintf("%s strongly risk-off (%.0f)", name, v))
		}
	}
	add("price momentum", c.Price)
	add("volatility", c.Volatility)
	add("sentiment", c.Sentiment)
	add("capital flows", c.Flows)
	add("market structure", c.Structure)
	add("macro", c.Macro)
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
