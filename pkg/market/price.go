// Package market holds the price walk and settlement rules. Both are pure so
// the gateway and the offline client run the exact same logic.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MaxStep bounds one tick's move in either direction.
	MaxStep = 500
	// HistoryLimit caps PriceState.History; the oldest point is evicted first.
	HistoryLimit = 100
	// TickInterval is the period between two price updates.
	TickInterval = 5 * time.Second
)

var minPrice = decimal.NewFromInt(1)

type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// PriceState is the live price of one instrument and its recent history.
type PriceState struct {
	Price   decimal.Decimal
	History []PricePoint
}

func NewPriceState(base decimal.Decimal) PriceState {
	return PriceState{Price: decimal.Max(base, minPrice)}
}

// Clone copies the history so the result can be handed to another goroutine.
func (s PriceState) Clone() PriceState {
	h := make([]PricePoint, len(s.History))
	copy(h, s.History)
	return PriceState{Price: s.Price, History: h}
}

// Move describes one tick.
type Move struct {
	PreviousPrice decimal.Decimal
	Price         decimal.Decimal
	Delta         int64
	PercentChange float64
	Timestamp     time.Time
}

// Advance draws a step in [-MaxStep, MaxStep], floors the price at 1 and
// appends the new point to a fresh copy of the history. s is not modified.
func Advance(s PriceState, rnd Rand, now time.Time) (PriceState, Move) {
	delta := int64(rnd.Intn(2*MaxStep+1) - MaxStep)
	prev := s.Price
	next := decimal.Max(minPrice, prev.Add(decimal.NewFromInt(delta)))

	history := s.History
	if len(history) >= HistoryLimit {
		history = history[len(history)-HistoryLimit+1:]
	}
	h := make([]PricePoint, len(history), len(history)+1)
	copy(h, history)
	h = append(h, PricePoint{Price: next, Timestamp: now})

	return PriceState{Price: next, History: h}, Move{
		PreviousPrice: prev,
		Price:         next,
		Delta:         delta,
		PercentChange: PercentChange(prev, next),
		Timestamp:     now,
	}
}

// PercentChange is (next-prev)/prev*100, or 0 when prev is zero.
func PercentChange(prev, next decimal.Decimal) float64 {
	if prev.IsZero() {
		return 0
	}
	return next.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// SeedHistory builds n synthetic points spaced interval apart and ending at
// now. The last point carries price; the others scatter within ±100 of it.
func SeedHistory(price decimal.Decimal, rnd Rand, now time.Time, n int, interval time.Duration) PriceState {
	if n < 1 {
		return NewPriceState(price)
	}
	h := make([]PricePoint, 0, n)
	for i := 0; i < n-1; i++ {
		p := price.Add(decimal.NewFromInt(int64(rnd.Intn(200) - 100)))
		h = append(h, PricePoint{
			Price:     decimal.Max(minPrice, p),
			Timestamp: now.Add(-time.Duration(n-1-i) * interval),
		})
	}
	h = append(h, PricePoint{Price: price, Timestamp: now})
	return PriceState{Price: price, History: h}
}
