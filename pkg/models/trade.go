package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

type Status string

const (
	StatusExecuted Status = "executed"
	StatusRejected Status = "rejected"
)

// Order is a request to trade quantity units at the quoted price.
type Order struct {
	Instrument string          `json:"stock_name"`
	Symbol     string          `json:"stock_symbol"`
	Price      decimal.Decimal `json:"transaction_price"`
	Quantity   int64           `json:"quantity"`
	Side       Side            `json:"action"`
}

// Notional is price * quantity.
func (o Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// Trade is the settled outcome of an Order.
type Trade struct {
	Order
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	User      string    `json:"user"`
	Reason    string    `json:"reason,omitempty"`
	SeqID     int64     `json:"seq_id,omitempty"` // stamped by the trade feed, per instrument
}

func (t Trade) Executed() bool { return t.Status == StatusExecuted }
