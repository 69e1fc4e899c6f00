package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
)

// Performance recomputes trading metrics from the cached account view and
// the realized pnl booked by ClosePosition. Trade counts come from the
// store when persistence is enabled, otherwise from the session tally.
func (e *Engine) Performance(ctx context.Context) domain.PerformanceMetrics {
	e.mu.RLock()
	acct := e.account
	wins, losses := e.wins, e.losses
	realized := e.realized
	e.mu.RUnlock()

	unrealized := decimal.Zero
	for _, p := range acct.Positions {
		unrealized = unrealized.Add(p.UnrealizedPnl)
	}

	total := wins + losses
	if e.store != nil {
		if n, err := e.store.Count(ctx); err == nil {
			total = int(n)
		}
	}

	winRate := 0.0
	if wins+losses > 0 {
		winRate = float64(wins) / float64(wins+losses)
	}

	return domain.PerformanceMetrics{
		TotalTrades:   total,
		Wins:          wins,
		Losses:        losses,
		WinRate:       winRate,
		RealizedPnl:   realized,
		UnrealizedPnl: unrealized,
		OpenPositions: len(acct.Positions),
		OpenOrders:    len(acct.OpenOrders()),
	}
}
