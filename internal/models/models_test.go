package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMonthKeyZeroPadded(t *testing.T) {
	require.Equal(t, "2025-03", MonthKey(time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC)))
	require.Equal(t, "2025-11", MonthKey(time.Date(2025, time.November, 30, 23, 59, 0, 0, time.UTC)))
}

func TestAmountParsesDecimalStrings(t *testing.T) {
	require.True(t, Amount("123.45").Equal(decimal.RequireFromString("123.45")))
	require.True(t, Amount("-10").Equal(decimal.NewFromInt(-10)))
}

func TestAmountDefaultsToZeroOnGarbage(t *testing.T) {
	require.True(t, Amount("").IsZero())
	require.True(t, Amount("not-a-number").IsZero())
}

func TestGiftCodeExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.False(t, (&GiftCode{}).Expired(now))
	require.False(t, (&GiftCode{ExpiresAt: &future}).Expired(now))
	require.True(t, (&GiftCode{ExpiresAt: &past}).Expired(now))
}
