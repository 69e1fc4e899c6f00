package exchange

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
)

// Wire DTOs. Prices come over the wire as strings and are parsed into
// decimals at this boundary only.

type tickerResponse struct {
	Market    string `json:"market"`
	LastPrice string `json:"last_price"`
	Volume24h string `json:"volume_24h"`
	High24h   string `json:"high_24h"`
	Low24h    string `json:"low_24h"`
	Change24h string `json:"change_24h"`
}

type bookLevelDTO [2]string // [price, size]

type orderBookResponse struct {
	Market string         `json:"market"`
	Bids   []bookLevelDTO `json:"bids"`
	Asks   []bookLevelDTO `json:"asks"`
}

type positionDTO struct {
	Market        string `json:"market"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	EntryPrice    string `json:"entry_price"`
	MarkPrice     string `json:"mark_price"`
	UnrealizedPnl string `json:"unrealized_pnl"`
}

type orderDTO struct {
	ID           string `json:"id"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	Kind         string `json:"kind"`
	Size         string `json:"size"`
	Price        string `json:"price"`
	TriggerPrice string `json:"trigger_price"`
	Status       string `json:"status"`
}

type accountResponse struct {
	Balance         string        `json:"balance"`
	AvailableMargin string        `json:"available_margin"`
	Positions       []positionDTO `json:"positions"`
	Orders          []orderDTO    `json:"orders"`
}

type submitOrderRequest struct {
	ClientID     string `json:"client_id"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	Kind         string `json:"kind"`
	Size         string `json:"size"`
	Price        string `json:"price,omitempty"`
	TriggerPrice string `json:"trigger_price,omitempty"`
	AccountIndex int    `json:"account_index"`
}

type submitOrderResponse struct {
	Order orderDTO `json:"order"`
	Error string   `json:"error,omitempty"`
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (t tickerResponse) toDomain(at time.Time) domain.MarketSnapshot {
	change, _ := dec(t.Change24h).Float64()
	return domain.MarketSnapshot{
		Market:    t.Market,
		LastPrice: dec(t.LastPrice),
		Volume24h: dec(t.Volume24h),
		High24h:   dec(t.High24h),
		Low24h:    dec(t.Low24h),
		Change24h: change,
		FetchedAt: at,
	}
}

func (b orderBookResponse) toDomain(at time.Time) domain.OrderBook {
	book := domain.OrderBook{Market: b.Market, FetchedAt: at}
	for _, l := range b.Bids {
		book.Bids = append(book.Bids, domain.BookLevel{Price: dec(l[0]), Size: dec(l[1])})
	}
	for _, l := range b.Asks {
		book.Asks = append(book.Asks, domain.BookLevel{Price: dec(l[0]), Size: dec(l[1])})
	}
	return book
}

func (a accountResponse) toDomain(at time.Time) domain.AccountState {
	acct := domain.AccountState{
		Balance:         dec(a.Balance),
		AvailableMargin: dec(a.AvailableMargin),
		SyncedAt:        at,
	}
	for _, p := range a.Positions {
		acct.Positions = append(acct.Positions, domain.Position{
			Market:        p.Market,
			Side:          domain.Side(p.Side),
			Size:          dec(p.Size),
			EntryPrice:    dec(p.EntryPrice),
			MarkPrice:     dec(p.MarkPrice),
			UnrealizedPnl: dec(p.UnrealizedPnl),
		})
	}
	for _, o := range a.Orders {
		acct.Orders = append(acct.Orders, o.toDomain())
	}
	return acct
}

func (o orderDTO) toDomain() domain.Order {
	return domain.Order{
		ID:           o.ID,
		Market:       o.Market,
		Side:         domain.Side(o.Side),
		Kind:         domain.OrderKind(o.Kind),
		Size:         dec(o.Size),
		Price:        dec(o.Price),
		TriggerPrice: dec(o.TriggerPrice),
		Status:       domain.OrderStatus(o.Status),
	}
}
