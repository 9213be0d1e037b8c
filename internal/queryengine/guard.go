package queryengine

import (
	"regexp"

	"github.com/sells-group/dealroom-cli/internal/faults"
)

// blockedKeywords are the data- and schema-mutation statements a caller's
// raw SQL may never contain. Matched whole-word and case-insensitive
// anywhere in the statement, including after semicolons: this is a
// defense-in-depth text guard layered on top of the read-only connection,
// not a SQL parser.
var blockedKeywords = regexp.MustCompile(
	`(?i)\b(DROP|DELETE|UPDATE|INSERT|ALTER|TRUNCATE|ATTACH|PRAGMA)\b`)

// Guard rejects raw SQL containing mutation keywords before it reaches the
// driver.
func Guard(query string) error {
	if m := blockedKeywords.FindString(query); m != "" {
		return faults.Newf(faults.Query, "statement rejected: contains blocked keyword %q", m)
	}
	return nil
}
