package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverrides(t *testing.T) {
	overrides, err := parseOverrides([]string{"oil_commodity_price=75", "discount_rate=0.10"})
	require.NoError(t, err)
	assert.InDelta(t, 75, overrides["oil_commodity_price"], 1e-9)
	assert.InDelta(t, 0.10, overrides["discount_rate"], 1e-9)
}

func TestParseOverrides_Empty(t *testing.T) {
	overrides, err := parseOverrides(nil)
	require.NoError(t, err)
	assert.Nil(t, overrides)
}

func TestParseOverrides_Malformed(t *testing.T) {
	_, err := parseOverrides([]string{"no-equals-sign"})
	assert.Error(t, err)

	_, err = parseOverrides([]string{"=5"})
	assert.Error(t, err)
}

func TestParseOverrides_NonNumeric(t *testing.T) {
	_, err := parseOverrides([]string{"oil_commodity_price=high"})
	assert.Error(t, err)
}
