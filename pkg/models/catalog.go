package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Catalog resolves instrument names to their symbol and base price. An empty
// catalog accepts any name and seeds it with the default base price.
type Catalog struct {
	byName      map[string]Instrument
	defaultBase decimal.Decimal
}

func NewCatalog(defaultBase decimal.Decimal, instruments ...Instrument) *Catalog {
	c := &Catalog{byName: make(map[string]Instrument, len(instruments)), defaultBase: defaultBase}
	for _, inst := range instruments {
		c.byName[inst.Name] = inst
	}
	return c
}

// ParseCatalog builds a catalog from "Name[:SYMBOL[:BASE_PRICE]]" entries.
func ParseCatalog(defaultBase decimal.Decimal, entries []string) (*Catalog, error) {
	c := NewCatalog(defaultBase)
	for _, e := range entries {
		inst, err := ParseInstrument(e, defaultBase)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byName[inst.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate instrument %q", inst.Name)
		}
		c.byName[inst.Name] = inst
	}
	return c, nil
}

func (c *Catalog) Restricted() bool { return len(c.byName) > 0 }

func (c *Catalog) Allowed(name string) bool {
	if name == "" {
		return false
	}
	if !c.Restricted() {
		return true
	}
	_, ok := c.byName[name]
	return ok
}

// Lookup returns the catalog entry, or an instrument with a derived symbol
// and the default base price.
func (c *Catalog) Lookup(name string) Instrument {
	if inst, ok := c.byName[name]; ok {
		return inst
	}
	return NewInstrument(name, "", c.defaultBase)
}
