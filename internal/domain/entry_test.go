package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntryType(t *testing.T) {
	et, err := ParseEntryType("debitrecord")
	require.NoError(t, err)
	assert.Equal(t, DebitRecord, et)

	et, err = ParseEntryType("CreditRecordVoid")
	require.NoError(t, err)
	assert.Equal(t, CreditRecordVoid, et)

	_, err = ParseEntryType("SettlementRecord")
	assert.Error(t, err)
}

func TestEntryType_Legs(t *testing.T) {
	assert.True(t, DebitRecord.IsDebitLeg())
	assert.True(t, DebitRecordVoid.IsDebitLeg())
	assert.True(t, DebitRecordCorrection.IsDebitLeg())
	assert.False(t, DebitRecord.IsCreditLeg())

	assert.True(t, CreditRecord.IsCreditLeg())
	assert.True(t, CreditRecordVoid.IsCreditLeg())
	assert.True(t, CreditRecordCorrection.IsCreditLeg())

	assert.True(t, DebitRecordVoid.IsVoid())
	assert.False(t, DebitRecordCorrection.IsVoid())
	assert.True(t, CreditRecordCorrection.IsCorrection())
}

func TestPendingFromBool(t *testing.T) {
	assert.Equal(t, PendingYes, PendingFromBool(true))
	assert.Equal(t, PendingNo, PendingFromBool(false))
	assert.True(t, PendingYes.Bool())
	assert.False(t, PendingNo.Bool())
}
