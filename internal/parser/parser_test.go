package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHeaderCandidate(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Oil Production", true},
		{"NPV10", true}, // 3 of 5 chars alphabetic, 60% exactly
		{"2024", false},
		{"1,238", false},
		{"Q1-24", false}, // 2 of 5 alphabetic
		{"", false},
		{"   ", false},
		{"12.5%", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHeaderCandidate(tt.text))
		})
	}
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"1238", 1238, true},
		{"1,238.5", 1238.5, true},
		{"$1,200", 1200, true},
		{"(450)", -450, true},
		{"12.5%", 0.125, true},
		{"-3.2", -3.2, true},
		{"oil", 0, false},
		{"", 0, false},
		{"#REF!", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ParseNumeric(tt.text)
			if !tt.ok {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, tt.want, *got, 1e-9)
		})
	}
}

func TestCellAddress(t *testing.T) {
	assert.Equal(t, "A1", cellAddress(0, 0))
	assert.Equal(t, "B12", cellAddress(11, 1))
	assert.Equal(t, "Z3", cellAddress(2, 25))
	assert.Equal(t, "AA1", cellAddress(0, 26))
	assert.Equal(t, "AB2", cellAddress(1, 27))
}

func TestParsePeriod_Fallbacks(t *testing.T) {
	assert.Equal(t, "2025-03-31", ParsePeriod("2025-03-31"))
	assert.Equal(t, "2025-03", ParsePeriod("2025-03"))
	assert.Equal(t, "2025-03", ParsePeriod("Mar-25"))
	assert.Equal(t, "2025", ParsePeriod("2025"))
	assert.Equal(t, "", ParsePeriod("Q1 FY25"))
	assert.Equal(t, "", ParsePeriod(""))
}
