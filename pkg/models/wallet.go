package models

import "github.com/shopspring/decimal"

// Wallet is one session's cash and per-instrument share counts.
// A missing holdings key means zero.
type Wallet struct {
	Balance  decimal.Decimal  `json:"balance"`
	Holdings map[string]int64 `json:"holdings"`
}

func NewWallet(balance decimal.Decimal) Wallet {
	return Wallet{Balance: balance, Holdings: make(map[string]int64)}
}

func (w Wallet) Holding(instrument string) int64 {
	return w.Holdings[instrument]
}

// Clone returns a copy that shares no map with w.
func (w Wallet) Clone() Wallet {
	h := make(map[string]int64, len(w.Holdings))
	for k, v := range w.Holdings {
		h[k] = v
	}
	return Wallet{Balance: w.Balance, Holdings: h}
}
