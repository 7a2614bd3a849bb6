package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"1500000", "1500000"},
		{"1.5E+6", "1500000"},
		{"Rp 1.500.000", "1500000"},
		{"Rp. 1.500.000,50", "1500000.5"},
		{"1,500,000.50", "1500000.5"},
		{"IDR 2,000", "2000"},
		{"(2.000)", "-2000"},
		{"-250", "-250"},
		{"12,5", "12.5"},
		{"0.125", "0.125"},
		{"1 000", "1000"},
	}
	for _, tc := range cases {
		got, err := ParseNumber(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got.String(), tc.raw)
	}
}

func TestParseNumberRejectsGarbage(t *testing.T) {
	_, err := ParseNumber("  ")
	assert.ErrorIs(t, err, ErrEmptyNumber)

	_, err = ParseNumber("-")
	assert.ErrorIs(t, err, ErrEmptyNumber)

	_, err = ParseNumber("lima ratus")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyNumber)
}
