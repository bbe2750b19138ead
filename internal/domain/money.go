package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 currency with its minor-unit exponent.
type Currency struct {
	AlphaCode   string
	NumericCode string
	Exponent    int32
}

var currencies = []Currency{
	{AlphaCode: "AUD", NumericCode: "036", Exponent: 2},
	{AlphaCode: "USD", NumericCode: "840", Exponent: 2},
	{AlphaCode: "EUR", NumericCode: "978", Exponent: 2},
	{AlphaCode: "GBP", NumericCode: "826", Exponent: 2},
	{AlphaCode: "JPY", NumericCode: "392", Exponent: 0},
}

// LookupCurrency resolves an alpha or numeric ISO 4217 code.
func LookupCurrency(code string) (Currency, error) {
	for _, c := range currencies {
		if strings.EqualFold(c.AlphaCode, code) || c.NumericCode == code {
			return c, nil
		}
	}
	return Currency{}, fmt.Errorf("unsupported currency: %q", code)
}

// Decimal converts an amount in minor units to its decimal representation
// for the currency. The conversion is exact: minor units are an integer
// scaling of the decimal amount.
func (c Currency) Decimal(minorUnits int64) decimal.Decimal {
	return decimal.New(minorUnits, -c.Exponent)
}

// MinorUnits converts a decimal amount to integer minor units using
// half-even (banker's) rounding. Together with Decimal the conversion is
// round-trip exact for every representable integer amount.
func (c Currency) MinorUnits(amount decimal.Decimal) int64 {
	return amount.RoundBank(c.Exponent).Shift(c.Exponent).IntPart()
}

// SignedMinorUnits applies an entry's direction to its stored amount.
func SignedMinorUnits(entry LedgerEntry) int64 {
	return entry.Amount * entry.EntryType.Sign()
}
