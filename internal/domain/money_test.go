package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrency_Decimal(t *testing.T) {
	aud, err := LookupCurrency("AUD")
	require.NoError(t, err)

	d := aud.Decimal(10_50)
	assert.Equal(t, "10.5", d.String())
}

func TestCurrency_MinorUnits(t *testing.T) {
	aud, err := LookupCurrency("AUD")
	require.NoError(t, err)

	assert.Equal(t, int64(10_50), aud.MinorUnits(decimal.NewFromFloat(10.50)))
}

func TestCurrency_MinorUnits_HalfEven(t *testing.T) {
	aud, err := LookupCurrency("036")
	require.NoError(t, err)

	// Banker's rounding: ties go to the even cent.
	assert.Equal(t, int64(10_12), aud.MinorUnits(decimal.RequireFromString("10.125")))
	assert.Equal(t, int64(10_14), aud.MinorUnits(decimal.RequireFromString("10.135")))
}

func TestCurrency_RoundTrip(t *testing.T) {
	aud, err := LookupCurrency("AUD")
	require.NoError(t, err)
	jpy, err := LookupCurrency("JPY")
	require.NoError(t, err)

	for _, amount := range []int64{0, 1, 99, 100, 101, 123_456_789, -1, -10_05, 1<<53 + 1} {
		assert.Equal(t, amount, aud.MinorUnits(aud.Decimal(amount)))
		assert.Equal(t, amount, jpy.MinorUnits(jpy.Decimal(amount)))
	}
}

func TestLookupCurrency_Unknown(t *testing.T) {
	_, err := LookupCurrency("XXX")
	assert.Error(t, err)
}

func TestSignedMinorUnits(t *testing.T) {
	cases := []struct {
		entryType EntryType
		want      int64
	}{
		{DebitRecord, -100},
		{CreditRecord, 100},
		{DebitRecordVoid, 100},
		{CreditRecordVoid, -100},
		{DebitRecordCorrection, -100},
		{CreditRecordCorrection, 100},
	}
	for _, tc := range cases {
		entry := LedgerEntry{Amount: 100, EntryType: tc.entryType}
		assert.Equal(t, tc.want, SignedMinorUnits(entry), string(tc.entryType))
	}
}
