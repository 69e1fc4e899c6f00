package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Valid reports whether the side is one of the known values.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// OrderKind distinguishes market, limit and stop orders.
type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
	KindStop   OrderKind = "STOP"
)

// OrderStatus tracks the exchange-side lifecycle of an order.
// FILLED, CANCELED and REJECTED are terminal.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusOpen     OrderStatus = "OPEN"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
)

// Order is created by the engine on submission and mutated only by exchange
// acknowledgments and fills.
type Order struct {
	ID           string          `json:"id"`
	Market       string          `json:"market"`
	Side         Side            `json:"side"`
	Kind         OrderKind       `json:"kind"`
	Size         decimal.Decimal `json:"size"`
	Price        decimal.Decimal `json:"price,omitempty"`         // limit price, zero for market
	TriggerPrice decimal.Decimal `json:"trigger_price,omitempty"` // stop orders only
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// IsOpen reports whether the order is still working on the exchange.
func (o *Order) IsOpen() bool {
	return o.Status == StatusPending || o.Status == StatusOpen
}

// IsTerminal reports whether the order can no longer change state.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusFilled || o.Status == StatusCanceled || o.Status == StatusRejected
}
