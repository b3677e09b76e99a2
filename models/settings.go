package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// conversionScale is the number of decimal places stored for every amount
// and kept when a rate has to be inverted.
const conversionScale = 18

// RateTable holds conversion factors keyed as "FROM_TO_TO", e.g.
// "ETH_TO_WETH" = 1 means one ETH is worth one WETH.
type RateTable map[string]decimal.Decimal

// RateKey builds the RateTable key for a currency pair.
func RateKey(from, to Currency) string {
	return string(from) + "_TO_" + string(to)
}

func (t RateTable) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t)
}

func (t *RateTable) Scan(src any) error {
	out := RateTable{}
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan rate table: %w", err)
	}
	*t = out
	return nil
}

// AddressBook maps a currency to the platform deposit address for it.
type AddressBook map[Currency]string

func (b AddressBook) Value() (driver.Value, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(b)
}

func (b *AddressBook) Scan(src any) error {
	out := AddressBook{}
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan address book: %w", err)
	}
	*b = out
	return nil
}

// Settings is the singleton marketplace configuration row.
type Settings struct {
	ExchangeRates      RateTable       `json:"exchange_rates" db:"exchange_rates"`
	WithdrawalMinimums CurrencyAmounts `json:"withdrawal_minimums" db:"withdrawal_minimums"`
	DepositAddresses   AddressBook     `json:"deposit_addresses" db:"deposit_addresses"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// DefaultSettings is what a fresh installation starts with.
func DefaultSettings() Settings {
	return Settings{
		ExchangeRates:      RateTable{RateKey(CurrencyETH, BaseCurrency): decimal.NewFromInt(1)},
		WithdrawalMinimums: CurrencyAmounts{},
		DepositAddresses:   AddressBook{},
	}
}

// RateFromBase returns the factor converting one unit of BaseCurrency into
// c. A direct BASE_TO_C rate wins over an inverted C_TO_BASE rate.
// Non-positive rates are treated as absent.
func (s Settings) RateFromBase(c Currency) (decimal.Decimal, bool) {
	if c == BaseCurrency {
		return decimal.NewFromInt(1), true
	}
	if r, ok := s.ExchangeRates[RateKey(BaseCurrency, c)]; ok && r.IsPositive() {
		return r, true
	}
	if r, ok := s.ExchangeRates[RateKey(c, BaseCurrency)]; ok && r.IsPositive() {
		return decimal.NewFromInt(1).DivRound(r, conversionScale), true
	}
	return decimal.Zero, false
}

// Supports reports whether c can be used for payments and funding.
func (s Settings) Supports(c Currency) bool {
	_, ok := s.RateFromBase(c)
	return ok
}

// ConvertFromBase converts an amount of BaseCurrency into c and returns
// the converted amount with the factor that was applied. The converted
// amount is rounded up to 18 decimal places.
func (s Settings) ConvertFromBase(amount decimal.Decimal, c Currency) (decimal.Decimal, decimal.Decimal, bool) {
	if c == BaseCurrency {
		return amount, decimal.NewFromInt(1), true
	}
	if r, ok := s.ExchangeRates[RateKey(BaseCurrency, c)]; ok && r.IsPositive() {
		return amount.Mul(r).RoundUp(conversionScale), r, true
	}
	if r, ok := s.ExchangeRates[RateKey(c, BaseCurrency)]; ok && r.IsPositive() {
		return divUp(amount, r), decimal.NewFromInt(1).DivRound(r, conversionScale), true
	}
	return decimal.Zero, decimal.Zero, false
}

// divUp divides a non-negative amount by r and rounds any remainder up to
// the next unit at conversionScale.
func divUp(amount, r decimal.Decimal) decimal.Decimal {
	q, rem := amount.QuoRem(r, conversionScale)
	if !rem.IsZero() {
		q = q.Add(decimal.New(1, -conversionScale))
	}
	return q
}

// FitsScale reports whether d can be stored without losing precision,
// i.e. it has at most 18 significant decimal places.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(conversionScale))
}

// SupportedCurrencies lists BaseCurrency plus every currency with a usable
// rate to or from it, sorted.
func (s Settings) SupportedCurrencies() []Currency {
	seen := map[Currency]bool{BaseCurrency: true}
	for key := range s.ExchangeRates {
		from, to, ok := strings.Cut(key, "_TO_")
		if !ok {
			continue
		}
		var other Currency
		switch {
		case Currency(from) == BaseCurrency:
			other = Currency(to)
		case Currency(to) == BaseCurrency:
			other = Currency(from)
		default:
			continue
		}
		if s.Supports(other) {
			seen[other] = true
		}
	}
	out := make([]Currency, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WithdrawalMinimum returns the configured minimum for c, zero if unset.
func (s Settings) WithdrawalMinimum(c Currency) decimal.Decimal {
	return s.WithdrawalMinimums.Get(c)
}
