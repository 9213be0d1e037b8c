package units

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealroom-cli/internal/config"
)

func newTestNormalizer(t *testing.T, ext ExternalConverter) *Normalizer {
	t.Helper()
	cache, err := NewRefCache("")
	require.NoError(t, err)
	return New(config.UnitsConfig{GasToBOE: 6.0}, cache, ext)
}

func TestNormalize_BOEDIdentity(t *testing.T) {
	n := newTestNormalizer(t, nil)

	res := n.Normalize(1238, "boed", ClassRate)
	assert.InDelta(t, 1238, res.Value, 1e-9)
	assert.Equal(t, "boed", res.Unit)
	assert.Empty(t, res.Conversions)
	assert.Empty(t, res.Flags)
}

func TestNormalize_ScaleTables(t *testing.T) {
	n := newTestNormalizer(t, nil)

	tests := []struct {
		name  string
		value float64
		unit  string
		class Class
		want  float64
		unitW string
	}{
		{"kbbl to bbl", 1.5, "kbbl", ClassVolume, 1500, "bbl"},
		{"petroleum mbbl is thousand", 2, "mbbl", ClassVolume, 2000, "bbl"},
		{"mmbbl to bbl", 0.5, "MMbbl", ClassVolume, 500000, "bbl"},
		{"kboed to boed", 1.2, "kboed", ClassRate, 1200, "boed"},
		{"annual volume to daily", 365.25, "bbl/yr", ClassRate, 1, "boed"},
		{"thousands of dollars", 12, "$k", ClassCurrency, 12000, "usd"},
		{"millions of dollars", 3.5, "$MM", ClassCurrency, 3500000, "usd"},
		{"mmboe to boe", 1, "mmboe", ClassEnergy, 1e6, "boe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := n.Normalize(tt.value, tt.unit, tt.class)
			assert.InDelta(t, tt.want, res.Value, 1e-6)
			assert.Equal(t, tt.unitW, res.Unit)
			require.Len(t, res.Conversions, 1)
			assert.Empty(t, res.Flags)
		})
	}
}

func TestNormalize_GasRatioConfigurable(t *testing.T) {
	cache, err := NewRefCache("")
	require.NoError(t, err)

	six := New(config.UnitsConfig{GasToBOE: 6.0}, cache, nil)
	res := six.Normalize(600, "mcf", ClassEnergy)
	assert.InDelta(t, 100, res.Value, 1e-9)
	require.Len(t, res.Conversions, 1)
	assert.Contains(t, res.Conversions[0].Note, "6")

	// The ratio is configuration, not a constant.
	five8 := New(config.UnitsConfig{GasToBOE: 5.8}, cache, nil)
	res = five8.Normalize(580, "mcf", ClassEnergy)
	assert.InDelta(t, 100, res.Value, 1e-9)
	assert.Contains(t, res.Conversions[0].Note, "5.8")
}

func TestNormalize_GasRate(t *testing.T) {
	n := newTestNormalizer(t, nil)

	res := n.Normalize(12, "MMcf/d", ClassRate)
	assert.InDelta(t, 2000, res.Value, 1e-9)
	assert.Equal(t, "boed", res.Unit)
}

func TestNormalize_UnrecognizedNeverGuesses(t *testing.T) {
	n := newTestNormalizer(t, nil)

	res := n.Normalize(42, "therms", ClassEnergy)
	assert.InDelta(t, 42, res.Value, 1e-9)
	assert.Equal(t, "therms", res.Unit)
	assert.Contains(t, res.Flags, FlagUnitUnrecognized)
	assert.Empty(t, res.Conversions)
}

func TestNormalize_WrongClassNotMisapplied(t *testing.T) {
	n := newTestNormalizer(t, nil)

	// A currency token has no volume rule; flag, don't guess.
	res := n.Normalize(10, "$k", ClassVolume)
	assert.InDelta(t, 10, res.Value, 1e-9)
	assert.Contains(t, res.Flags, FlagUnitUnrecognized)
}

func TestNormalize_ExternalConverter(t *testing.T) {
	ext := func(value float64, unit string, class Class) (float64, string, bool) {
		if unit == "therms" && class == ClassEnergy {
			return value * 0.0172, "boe", true
		}
		return 0, "", false
	}
	n := newTestNormalizer(t, ext)

	res := n.Normalize(100, "therms", ClassEnergy)
	assert.InDelta(t, 1.72, res.Value, 1e-9)
	assert.Equal(t, "boe", res.Unit)
	require.Len(t, res.Conversions, 1)
	assert.Equal(t, "external converter", res.Conversions[0].Note)
	assert.Empty(t, res.Flags)

	// Converter declines: flagged, unconverted.
	res = n.Normalize(1, "joules", ClassEnergy)
	assert.InDelta(t, 1, res.Value, 1e-9)
	assert.Contains(t, res.Flags, FlagExternalUnconverted)
	assert.Contains(t, res.Flags, FlagUnitUnrecognized)
}

func TestRefCache_RefreshOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tonnes_oil: bbl\n"), 0o644))

	cache, err := NewRefCache(path)
	require.NoError(t, err)

	tok, ok := cache.Canonical("tonnes_oil")
	assert.True(t, ok)
	assert.Equal(t, "bbl", tok)

	// Builtins survive overrides.
	tok, ok = cache.Canonical("BOED")
	assert.True(t, ok)
	assert.Equal(t, "boed", tok)

	// Independent instances do not share state.
	other, err := NewRefCache("")
	require.NoError(t, err)
	_, ok = other.Canonical("tonnes_oil")
	assert.False(t, ok)
}

func TestRefCache_MissingFileOK(t *testing.T) {
	cache, err := NewRefCache(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	_, ok := cache.Canonical("bbl")
	assert.True(t, ok)
}
