package models_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

func TestDeriveSymbol(t *testing.T) {
	cases := map[string]string{
		"Zomato":   "ZOM",
		"tcs":      "TCS",
		"Reliance": "REL",
		"HP":       "HP",
		"  infy ":  "INF",
	}
	for name, want := range cases {
		if got := models.DeriveSymbol(name); got != want {
			t.Errorf("DeriveSymbol(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestParseInstrument(t *testing.T) {
	def := decimal.NewFromInt(500)

	inst, err := models.ParseInstrument("Zomato:zmt:142.32", def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Name != "Zomato" || inst.Symbol != "ZMT" || !inst.BasePrice.Equal(decimal.RequireFromString("142.32")) {
		t.Errorf("unexpected instrument %+v", inst)
	}

	inst, err = models.ParseInstrument("Reliance", def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Symbol != "REL" || !inst.BasePrice.Equal(def) {
		t.Errorf("expected derived symbol and default price, got %+v", inst)
	}

	for _, bad := range []string{"", ":X", "A:B:C:D", "A:B:abc", "A:B:0.5"} {
		if _, err := models.ParseInstrument(bad, def); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestCatalog(t *testing.T) {
	def := decimal.NewFromInt(500)

	open := models.NewCatalog(def)
	if !open.Allowed("Anything") || open.Allowed("") {
		t.Error("Empty catalog should accept any non-empty name")
	}
	if got := open.Lookup("Infosys"); got.Symbol != "INF" || !got.BasePrice.Equal(def) {
		t.Errorf("Unexpected lookup %+v", got)
	}

	c, err := models.ParseCatalog(def, []string{"TCS", "Zomato:ZOM:142.32"})
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}
	if !c.Allowed("TCS") || c.Allowed("Infosys") {
		t.Error("Restricted catalog should only accept listed names")
	}
	if !c.Lookup("Zomato").BasePrice.Equal(decimal.RequireFromString("142.32")) {
		t.Error("Expected catalog base price for Zomato")
	}

	if _, err := models.ParseCatalog(def, []string{"TCS", "TCS:TC"}); err == nil {
		t.Error("Expected duplicate error")
	}
}
