package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is a point-in-time read of a single market.
// Snapshots are immutable once created; a cache refresh replaces the whole
// value rather than mutating fields in place.
type MarketSnapshot struct {
	Market    string          `json:"market"`
	LastPrice decimal.Decimal `json:"last_price"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	High24h   decimal.Decimal `json:"high_24h"`
	Low24h    decimal.Decimal `json:"low_24h"`
	Change24h float64         `json:"change_24h"` // percent
	FetchedAt time.Time       `json:"fetched_at"`
}

// IsZero reports whether the snapshot carries no data yet.
func (s MarketSnapshot) IsZero() bool {
	return s.FetchedAt.IsZero()
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook holds both sides of a market's book.
// Bids are ordered descending by price, asks ascending.
type OrderBook struct {
	Market    string      `json:"market"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// BestBid returns the highest bid, or false when the book side is empty.
func (b OrderBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or false when the book side is empty.
func (b OrderBook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// MidPrice returns (bestBid+bestAsk)/2, or zero when either side is empty.
func (b OrderBook) MidPrice() decimal.Decimal {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Zero
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
}
