package units

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/dealroom-cli/internal/config"
)

// Class is the target unit class for a normalization.
type Class string

const (
	ClassVolume   Class = "volume"   // canonical bbl
	ClassRate     Class = "rate"     // canonical boed
	ClassEnergy   Class = "energy"   // canonical boe
	ClassCurrency Class = "currency" // canonical usd
)

// Canonical unit per class.
var canonical = map[Class]string{
	ClassVolume:   "bbl",
	ClassRate:     "boed",
	ClassEnergy:   "boe",
	ClassCurrency: "usd",
}

// Conversion is one recorded step of a normalization. Nothing is ever
// converted silently.
type Conversion struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Factor float64 `json:"factor"`
	Note   string  `json:"note,omitempty"`
}

// Flags raised by Normalize.
const (
	FlagUnitUnrecognized    = "unit_unrecognized"
	FlagExternalUnconverted = "external_unconverted"
)

// Result is the outcome of one normalization.
type Result struct {
	Value       float64      `json:"value"`
	Unit        string       `json:"unit"`
	Conversions []Conversion `json:"conversions_applied"`
	Flags       []string     `json:"flags,omitempty"`
}

// ExternalConverter handles non-standard conversions (asset-specific BTU
// factors and the like). ok=false means the converter declined.
type ExternalConverter func(value float64, unit string, class Class) (converted float64, convertedUnit string, ok bool)

// Static scale tables, keyed by canonical token. Gas tokens are absent
// here: gas-to-oil-equivalent goes through the configured ratio so the
// ratio is never baked into a table.
var volumeScale = map[string]float64{
	"bbl":   1,
	"kbbl":  1e3,
	"mmbbl": 1e6,
}

var rateScale = map[string]float64{
	"boed":      1,
	"kboed":     1e3,
	"bbl_month": 12.0 / 365.25,
	"bbl_year":  1.0 / 365.25,
}

var energyScale = map[string]float64{
	"boe":   1,
	"kboe":  1e3,
	"mmboe": 1e6,
}

var currencyScale = map[string]float64{
	"usd":    1,
	"usd_k":  1e3,
	"usd_mm": 1e6,
}

// gasMCF maps gas tokens to thousands of cubic feet; the configured
// gas-to-BOE ratio (mcf per bbl) finishes the conversion.
var gasMCF = map[string]float64{
	"scf":   1e-3,
	"mcf":   1,
	"mmcf":  1e3,
	"bcf":   1e6,
	"mcfd":  1, // rate: mcf per day -> boed
	"mmcfd": 1e3,
}

// Normalizer converts raw value/unit pairs into canonical units per class.
type Normalizer struct {
	gasToBOE float64
	cache    *RefCache
	external ExternalConverter
}

// New builds a Normalizer. cache must be non-nil; external may be nil.
func New(cfg config.UnitsConfig, cache *RefCache, external ExternalConverter) *Normalizer {
	ratio := cfg.GasToBOE
	if ratio <= 0 {
		ratio = 6.0
	}
	return &Normalizer{gasToBOE: ratio, cache: cache, external: external}
}

// GasToBOE returns the configured gas-to-barrel-equivalent ratio.
func (n *Normalizer) GasToBOE() float64 { return n.gasToBOE }

// Normalize converts value from unit into the class's canonical unit,
// recording every conversion applied. Unknown units are returned unchanged
// with FlagUnitUnrecognized; it never guesses.
func (n *Normalizer) Normalize(value float64, unit string, class Class) Result {
	res := Result{Value: value, Unit: unit, Conversions: []Conversion{}}

	token, known := n.cache.Canonical(unit)
	if !known {
		return n.tryExternal(res, value, unit, class)
	}

	target := canonical[class]
	if token == target {
		res.Unit = target
		return res // identity, conversions_applied stays empty
	}

	if factor, ok := scaleFor(class, token); ok {
		res.Value = value * factor
		res.Unit = target
		res.Conversions = append(res.Conversions, Conversion{
			From: token, To: target, Factor: factor,
		})
		return res
	}

	if mcf, ok := gasMCF[token]; ok && (class == ClassEnergy || class == ClassRate || class == ClassVolume) {
		factor := mcf / n.gasToBOE
		res.Value = value * factor
		res.Unit = target
		res.Conversions = append(res.Conversions, Conversion{
			From: token, To: target, Factor: factor,
			Note: fmt.Sprintf("gas_to_boe ratio %g mcf/bbl", n.gasToBOE),
		})
		return res
	}

	// Known token but no rule for this class: treat like an unrecognized
	// unit rather than misapplying another class's table.
	return n.tryExternal(res, value, unit, class)
}

func (n *Normalizer) tryExternal(res Result, value float64, unit string, class Class) Result {
	if n.external != nil {
		if v, u, ok := n.external(value, unit, class); ok {
			res.Value = v
			res.Unit = u
			res.Conversions = append(res.Conversions, Conversion{
				From: unit, To: u, Factor: safeFactor(value, v), Note: "external converter",
			})
			return res
		}
		res.Flags = append(res.Flags, FlagExternalUnconverted)
	}
	res.Flags = append(res.Flags, FlagUnitUnrecognized)
	zap.L().Debug("units: unrecognized unit",
		zap.String("unit", unit), zap.String("class", string(class)))
	return res
}

func scaleFor(class Class, token string) (float64, bool) {
	var table map[string]float64
	switch class {
	case ClassVolume:
		table = volumeScale
	case ClassRate:
		table = rateScale
	case ClassEnergy:
		table = energyScale
	case ClassCurrency:
		table = currencyScale
	default:
		return 0, false
	}
	f, ok := table[token]
	return f, ok
}

func safeFactor(in, out float64) float64 {
	if in == 0 {
		return 0
	}
	return out / in
}
