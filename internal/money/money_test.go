package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinor(t *testing.T) {
	tests := []struct {
		amount   float64
		code     string
		expected int64
	}{
		{19.99, "USD", 1999},
		{19.99, "usd", 1999},
		{0.1 + 0.2, "EUR", 30},
		{1500, "JPY", 1500},
		{-5.5, "USD", -550},
	}

	for _, tt := range tests {
		got, err := ToMinor(tt.amount, tt.code)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got, "%v %s", tt.amount, tt.code)
	}
}

func TestUnknownCurrency(t *testing.T) {
	_, err := ToMinor(1, "XYZ1")
	assert.ErrorIs(t, err, ErrUnknownCurrency)

	_, err = ParseCurrency("")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestParseAndFormatMinor(t *testing.T) {
	minor, err := ParseMinor("42.50", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(4250), minor)

	_, err = ParseMinor("abc", "USD")
	assert.Error(t, err)

	assert.Equal(t, "42.50 USD", FormatMinor(4250, "USD"))
	assert.Equal(t, "1500 JPY", FormatMinor(1500, "JPY"))
}

func TestToMinorRejectsOutOfRange(t *testing.T) {
	_, err := ToMinor(1e17, "USD")
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = ParseMinor("-100000000000000.00", "USD")
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	minor, err := ToMinor(90071992547409.92, "USD")
	require.NoError(t, err)
	assert.Equal(t, MaxMinor, minor)

	assert.True(t, InRange(-MaxMinor))
	assert.False(t, InRange(MaxMinor+1))
	assert.False(t, InRange(math.MinInt64))
}
