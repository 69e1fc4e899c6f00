package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the single active record per (account, market).
// Closed positions are removed by the engine, not archived.
type Position struct {
	Market        string          `json:"market"`
	Side          Side            `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
}

// IsLong reports whether the position is long.
func (p *Position) IsLong() bool {
	return p.Side == SideLong
}

// AccountState is the engine's wholesale view of the account.
// It is replaced on each sync, never partially patched.
type AccountState struct {
	Balance         decimal.Decimal `json:"balance"`
	AvailableMargin decimal.Decimal `json:"available_margin"`
	Positions       []Position      `json:"positions"`
	Orders          []Order         `json:"orders"`
	SyncedAt        time.Time       `json:"synced_at"`
}

// PositionFor returns the active position for a market, if any.
func (a *AccountState) PositionFor(market string) (Position, bool) {
	for _, p := range a.Positions {
		if p.Market == market {
			return p, true
		}
	}
	return Position{}, false
}

// OpenOrders returns the orders still working on the exchange.
func (a *AccountState) OpenOrders() []Order {
	var open []Order
	for _, o := range a.Orders {
		if o.IsOpen() {
			open = append(open, o)
		}
	}
	return open
}

// PerformanceMetrics is recomputed from the fresh account view on each sync.
type PerformanceMetrics struct {
	TotalTrades   int             `json:"total_trades"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	WinRate       float64         `json:"win_rate"` // 0..1
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	OpenPositions int             `json:"open_positions"`
	OpenOrders    int             `json:"open_orders"`
}
