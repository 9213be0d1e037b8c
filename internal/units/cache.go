package units

import (
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// builtinAliases maps the unit spellings seen across VDR sources to the
// canonical tokens the conversion tables are keyed by.
var builtinAliases = map[string]string{
	"bbl":     "bbl",
	"bbls":    "bbl",
	"stb":     "bbl",
	"kbbl":    "kbbl",
	"mbbl":    "kbbl", // petroleum M = thousand
	"mmbbl":   "mmbbl",
	"bopd":    "boed",
	"bbl/d":   "boed",
	"bbls/d":  "boed",
	"boepd":   "boed",
	"boed":    "boed",
	"kboed":   "kboed",
	"mboed":   "kboed",
	"bbl/mo":  "bbl_month",
	"bbl/m":   "bbl_month",
	"bbl/yr":  "bbl_year",
	"bbl/y":   "bbl_year",
	"scf":     "scf",
	"mcf":     "mcf",
	"mscf":    "mcf",
	"mmcf":    "mmcf",
	"mmscf":   "mmcf",
	"bcf":     "bcf",
	"mcf/d":   "mcfd",
	"mscf/d":  "mcfd",
	"mcfd":    "mcfd",
	"mmcf/d":  "mmcfd",
	"mmcfd":   "mmcfd",
	"boe":     "boe",
	"kboe":    "kboe",
	"mmboe":   "mmboe",
	"usd":     "usd",
	"$":       "usd",
	"us$":     "usd",
	"$k":      "usd_k",
	"usd_k":   "usd_k",
	"k$":      "usd_k",
	"kusd":    "usd_k",
	"$mm":     "usd_mm",
	"usd_mm":  "usd_mm",
	"mm$":     "usd_mm",
	"mmusd":   "usd_mm",
	"$m":      "usd_k", // financial M = thousand in most CPR tables
}

// RefCache is the session-cached unit-alias lookup. It is explicitly
// constructed and injected, never a package global: tests and long-running
// callers own independent instances with independent refresh lifetimes.
type RefCache struct {
	mu      sync.RWMutex
	path    string
	aliases map[string]string
}

// NewRefCache builds a cache seeded with the builtin aliases. If path is
// non-empty, Refresh is attempted immediately; a missing file is not an
// error (overrides are optional).
func NewRefCache(path string) (*RefCache, error) {
	c := &RefCache{path: path, aliases: make(map[string]string, len(builtinAliases))}
	for k, v := range builtinAliases {
		c.aliases[k] = v
	}
	if path != "" {
		if err := c.Refresh(); err != nil && !os.IsNotExist(eris.Cause(err)) {
			return nil, err
		}
	}
	return c, nil
}

// Refresh reloads the alias override file on top of the builtins.
func (c *RefCache) Refresh() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return eris.Wrap(err, "units: read alias file")
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return eris.Wrap(err, "units: unmarshal alias file")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range overrides {
		c.aliases[normalizeToken(k)] = normalizeToken(v)
	}
	return nil
}

// Canonical resolves a raw unit spelling to its canonical token. The second
// return is false when the spelling is unknown.
func (c *RefCache) Canonical(unit string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.aliases[normalizeToken(unit)]
	return tok, ok
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
