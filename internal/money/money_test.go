package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSplitExactness(t *testing.T) {
	totals := []int64{10000, 1, 0, 99, 101, 333333, -10000, -1, -2001, 123456789}
	for _, total := range totals {
		for count := uint32(1); count <= 120; count++ {
			parts, err := Split(FromCents(total), count)
			require.NoError(t, err)
			require.Len(t, parts, int(count))

			var sum Money
			for _, p := range parts {
				sum += p
			}
			require.Equal(t, FromCents(total), sum, "total=%d count=%d", total, count)

			for i := 1; i < len(parts); i++ {
				require.GreaterOrEqual(t, parts[0], parts[i], "remainder must sit on the first installment, total=%d count=%d", total, count)
			}
		}
	}
}

func TestSplitScenarios(t *testing.T) {
	parts, err := Split(FromCents(10000), 3)
	require.NoError(t, err)
	require.Equal(t, []Money{3334, 3333, 3333}, parts)

	parts, err = Split(FromCents(1), 3)
	require.NoError(t, err)
	require.Equal(t, []Money{1, 0, 0}, parts)

	parts, err = Split(FromCents(-101), 2)
	require.NoError(t, err)
	require.Equal(t, []Money{-50, -51}, parts)
}

func TestSplitInvalidCount(t *testing.T) {
	_, err := Split(FromCents(100), 0)
	require.ErrorIs(t, err, ErrInvalidCount)
}

func TestSplitBaseTailsEqual(t *testing.T) {
	parts, err := Split(FromCents(100), 7)
	require.NoError(t, err)
	for i := 2; i < len(parts); i++ {
		require.Equal(t, parts[1], parts[i])
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	m, err := ParseDecimal("1234.56")
	require.NoError(t, err)
	require.Equal(t, int64(123456), m.Cents())
	require.Equal(t, "1234.56", m.String())

	require.Equal(t, FromCents(-50), FromDecimal(decimal.RequireFromString("-0.50")))

	// Float-origin noise beyond two places is rounded away.
	require.Equal(t, FromCents(48000), FromDecimal(decimal.RequireFromString("480.00000001")))
}

func TestAbs(t *testing.T) {
	require.Equal(t, FromCents(2000), FromCents(-2000).Abs())
	require.Equal(t, FromCents(2000), FromCents(2000).Abs())
}
