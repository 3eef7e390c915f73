package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"-120.50", "-120.5"},
		{"1,234.56", "1234.56"},
		{" 42 ", "42"},
		{"-0.01", "-0.01"},
		{"0", "0"},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got.String(), c.in)
	}

	_, err := Parse("")
	require.Error(t, err)
	_, err = Parse("$12.00")
	require.Error(t, err)
}

func TestParseExact(t *testing.T) {
	t.Parallel()

	// 0.1 + 0.2 must be exactly 0.3, not a float approximation.
	a, err := Parse("0.1")
	require.NoError(t, err)
	b, err := Parse("0.2")
	require.NoError(t, err)
	require.Equal(t, "0.3", a.Add(b).String())
}

func TestNormalizeLegSign(t *testing.T) {
	t.Parallel()

	neg := decimal.RequireFromString("-60")
	pos := decimal.RequireFromString("60")

	require.Equal(t, "-20", NormalizeLegSign(neg, decimal.RequireFromString("20")).String())
	require.Equal(t, "-20", NormalizeLegSign(neg, decimal.RequireFromString("-20")).String())
	require.Equal(t, "20", NormalizeLegSign(pos, decimal.RequireFromString("-20")).String())
	require.Equal(t, "0", NormalizeLegSign(neg, decimal.Zero).String())
	require.Equal(t, "-20", NormalizeLegSign(decimal.Zero, decimal.RequireFromString("-20")).String())
}

func TestSum(t *testing.T) {
	t.Parallel()

	total := Sum(
		decimal.RequireFromString("-40"),
		decimal.RequireFromString("-20.25"),
		decimal.RequireFromString("0.25"),
	)
	require.Equal(t, "-60", total.String())
	require.Equal(t, "0", Sum().String())
}
