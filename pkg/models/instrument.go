package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const symbolLength = 3

// Instrument is a tradable name with its display symbol and seed price.
type Instrument struct {
	Name      string          `json:"stock_name"`
	Symbol    string          `json:"stock_symbol"`
	BasePrice decimal.Decimal `json:"base_price"`
}

// NewInstrument derives the symbol from the name when it is empty.
func NewInstrument(name, symbol string, basePrice decimal.Decimal) Instrument {
	if symbol == "" {
		symbol = DeriveSymbol(name)
	}
	return Instrument{Name: name, Symbol: symbol, BasePrice: basePrice}
}

// DeriveSymbol returns the first three letters of name, uppercased.
func DeriveSymbol(name string) string {
	r := []rune(strings.TrimSpace(name))
	if len(r) > symbolLength {
		r = r[:symbolLength]
	}
	return strings.ToUpper(string(r))
}

// ParseInstrument reads "Name[:SYMBOL[:BASE_PRICE]]". A missing base price
// falls back to defaultBase.
func ParseInstrument(entry string, defaultBase decimal.Decimal) (Instrument, error) {
	parts := strings.Split(entry, ":")
	name := strings.TrimSpace(parts[0])
	if name == "" || len(parts) > 3 {
		return Instrument{}, fmt.Errorf("malformed instrument entry %q", entry)
	}

	var symbol string
	if len(parts) > 1 {
		symbol = strings.ToUpper(strings.TrimSpace(parts[1]))
	}

	base := defaultBase
	if len(parts) > 2 {
		p, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return Instrument{}, fmt.Errorf("instrument %q base price: %w", name, err)
		}
		if p.LessThan(decimal.NewFromInt(1)) {
			return Instrument{}, fmt.Errorf("instrument %q base price must be at least 1", name)
		}
		base = p
	}

	return NewInstrument(name, symbol, base), nil
}
