package market

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrInvalidOrder         = errors.New("invalid order")
)

// Settle applies o to w. On success it returns the new wallet; on rejection
// it returns w untouched and the reason. w itself is never mutated.
func Settle(w models.Wallet, o models.Order) (models.Wallet, error) {
	if err := validate(o); err != nil {
		return w, err
	}

	cost := o.Notional()
	switch o.Side {
	case models.SideBuy:
		if cost.GreaterThan(w.Balance) {
			return w, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, cost.String(), w.Balance.String())
		}
		held := w.Holding(o.Instrument)
		if o.Quantity > math.MaxInt64-held {
			return w, fmt.Errorf("%w: holding of %s would overflow", ErrInvalidOrder, o.Instrument)
		}
		next := w.Clone()
		next.Balance = next.Balance.Sub(cost)
		next.Holdings[o.Instrument] = held + o.Quantity
		return next, nil

	default: // sell
		held := w.Holding(o.Instrument)
		if held < o.Quantity {
			return w, fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientHoldings, o.Quantity, o.Instrument, held)
		}
		next := w.Clone()
		next.Holdings[o.Instrument] = held - o.Quantity
		next.Balance = next.Balance.Add(cost)
		return next, nil
	}
}

// Execute settles o and records the outcome as a trade attributed to user.
func Execute(w models.Wallet, o models.Order, user string, now time.Time) (models.Wallet, models.Trade) {
	trade := models.Trade{Order: o, Timestamp: now, User: user, Status: models.StatusExecuted}

	next, err := Settle(w, o)
	if err != nil {
		trade.Status = models.StatusRejected
		trade.Reason = err.Error()
	}
	return next, trade
}

func validate(o models.Order) error {
	switch {
	case o.Instrument == "":
		return fmt.Errorf("%w: missing instrument", ErrInvalidOrder)
	case !o.Side.Valid():
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, o.Side)
	case o.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	case !o.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	return nil
}
