package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the code of a custodial currency (e.g. "ETH").
type Currency string

const (
	CurrencyETH  Currency = "ETH"
	CurrencyWETH Currency = "WETH"

	// BaseCurrency denominates every listing price and every seller credit.
	BaseCurrency = CurrencyWETH
)

// ParseCurrency normalises user input into a Currency code.
func ParseCurrency(s string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(s)))
}

func (c Currency) String() string { return string(c) }

// CurrencyAmounts maps a currency to a decimal amount. Users hold their
// custodial balances in it; settings use it for withdrawal minimums.
type CurrencyAmounts map[Currency]decimal.Decimal

// Get returns the amount held for c, or zero.
func (a CurrencyAmounts) Get(c Currency) decimal.Decimal {
	if v, ok := a[c]; ok {
		return v
	}
	return decimal.Zero
}

// Clone returns an independent copy of a.
func (a CurrencyAmounts) Clone() CurrencyAmounts {
	out := make(CurrencyAmounts, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Add returns a copy of a with delta applied to c.
func (a CurrencyAmounts) Add(c Currency, delta decimal.Decimal) CurrencyAmounts {
	out := a.Clone()
	out[c] = out.Get(c).Add(delta)
	return out
}

// Currencies returns the keys of a in a stable order.
func (a CurrencyAmounts) Currencies() []Currency {
	out := make([]Currency, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a CurrencyAmounts) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *CurrencyAmounts) Scan(src any) error {
	out := CurrencyAmounts{}
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan currency amounts: %w", err)
	}
	*a = out
	return nil
}

// scanJSON decodes a JSON/JSONB column into dst.
func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
