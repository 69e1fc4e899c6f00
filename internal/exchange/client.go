// Package exchange is the opaque REST transport behind the market data
// gateway. The wire schema is exchange-specific; everything above this
// package works with domain records only.
package exchange

import (
	"context"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
)

// Client is the contract the gateway and engine speak to the exchange.
// Every call eventually resolves to success or a reported failure; request
// timeouts are this layer's responsibility.
type Client interface {
	// Connect establishes the session. Idempotency is handled by the gateway.
	Connect(ctx context.Context) error

	FetchSnapshot(ctx context.Context, market string) (domain.MarketSnapshot, error)
	FetchOrderBook(ctx context.Context, market string) (domain.OrderBook, error)
	FetchAccountState(ctx context.Context, address string) (domain.AccountState, error)

	// SubmitOrder returns the order as acknowledged by the exchange
	// (exchange-assigned status, possibly REJECTED with nil error only when
	// the transport succeeded).
	SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context) error

	Close() error
}
