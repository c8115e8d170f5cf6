package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1200", 1200, true},
		{" 35.5 ", 35.5, true},
		{"-10", -10, true},
		{"", 0, true},
		{"1e3", 1000, true},
		{"abc", 0, false},
		{"12 000", 0, false},
		{"1e400", 0, false},
		{"-1e400", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for i, tc := range cases {
		got, err := ParseAmount(tc.in)
		if !tc.ok {
			require.ErrorIs(t, err, ErrInvalidAmount, "case %d", i)
			continue
		}
		require.NoError(t, err, "case %d", i)
		assert.Equal(t, tc.want, got, "case %d", i)
	}
}

func TestParseWhole(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"2025", 2025, true},
		{"9", 9, true},
		{"2025.0", 2025, true},
		{"", 0, false},
		{"0", 0, false},
		{"-3", 0, false},
		{"8.5", 0, false},
		{"NaN", 0, false},
		{"mes", 0, false},
	}
	for i, tc := range cases {
		got, ok := ParseWhole(tc.in)
		assert.Equal(t, tc.ok, ok, "case %d (%q)", i, tc.in)
		assert.Equal(t, tc.want, got, "case %d (%q)", i, tc.in)
	}
}

func TestSumIsOrderIndependent(t *testing.T) {
	vals := []float64{0.1, 0.2, 0.3, 1e6, -0.3}
	var fwd, back Sum
	for i := range vals {
		fwd.Add(vals[i])
		back.Add(vals[len(vals)-1-i])
	}
	assert.Equal(t, fwd.Float64(), back.Float64())
	assert.Equal(t, 1000000.3, fwd.Float64())
}

func TestSumSkipsNonFinite(t *testing.T) {
	var s Sum
	require.NotPanics(t, func() {
		s.Add(10)
		s.Add(math.NaN())
		s.Add(math.Inf(1))
		s.Add(math.Inf(-1))
		s.Add(2.5)
	})
	assert.Equal(t, 12.5, s.Float64())
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100.0, Ratio(150, 150))
	assert.Equal(t, 50.0, Ratio(50, 100))
	assert.Equal(t, 0.0, Ratio(10, 0))
	assert.Equal(t, 0.0, Ratio(0, 0))
	assert.Equal(t, 0.0, Ratio(math.NaN(), 10))
	assert.Equal(t, 0.0, Ratio(10, math.Inf(1)))
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0.00", FormatUSD(0))
	assert.Equal(t, "$999.50", FormatUSD(999.5))
	assert.Equal(t, "$1,000.00", FormatUSD(1000))
	assert.Equal(t, "$1,234,567.89", FormatUSD(1234567.891))
	assert.Equal(t, "-$35.50", FormatUSD(-35.5))
}
