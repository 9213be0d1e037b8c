package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
)

// CSVParser reads delimited text with an encoding fallback sequence
// (UTF-8 with BOM, then UTF-8, then Latin-1 which never fails) and a
// period column parsed with format fallbacks (ISO date, year-month,
// bare year).
type CSVParser struct{}

func (p *CSVParser) Parse(ctx context.Context, path string) (<-chan model.RawObservation, <-chan error) {
	obsCh := make(chan model.RawObservation, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(obsCh)
		defer close(errCh)

		data, err := os.ReadFile(path)
		if err != nil {
			errCh <- faults.Wrap(faults.Parse, err, "csv: read file")
			return
		}
		text := decodeWithFallback(data)

		reader := csv.NewReader(strings.NewReader(text))
		reader.LazyQuotes = true
		reader.TrimLeadingSpace = true
		reader.FieldsPerRecord = -1

		header, err := reader.Read()
		if err != nil {
			errCh <- faults.Wrap(faults.Parse, err, "csv: read header")
			return
		}
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
		periodCol := findPeriodColumn(header)

		line := 1
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			line++
			if err != nil {
				// One mangled row does not poison the file.
				continue
			}

			period := ""
			if periodCol >= 0 && periodCol < len(record) {
				period = ParsePeriod(record[periodCol])
			}

			for c, cell := range record {
				if c == periodCol {
					continue
				}
				numeric := ParseNumeric(cell)
				if numeric == nil {
					continue
				}

				var headers []string
				if c < len(header) && header[c] != "" {
					headers = append(headers, header[c])
				}
				if period != "" {
					headers = append(headers, period)
				}

				obs := model.RawObservation{
					Location:       fmt.Sprintf("line %d col %d", line, c+1),
					Row:            line - 1,
					Col:            c,
					RawText:        strings.TrimSpace(cell),
					NumericValue:   numeric,
					ContextHeaders: headers,
				}
				select {
				case obsCh <- obs:
				case <-ctx.Done():
					errCh <- faults.Wrap(faults.Parse, ctx.Err(), "csv: cancelled")
					return
				}
			}
		}
	}()

	return obsCh, errCh
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeWithFallback tries UTF-8 with BOM, plain UTF-8, then Latin-1.
// The Latin-1 pass maps every byte to a rune, so it cannot fail.
func decodeWithFallback(data []byte) string {
	if bytes.HasPrefix(data, utf8BOM) {
		return string(data[len(utf8BOM):])
	}
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		// Latin-1 decoding is total; this branch is unreachable but the
		// fallback contract is "never raise", so return something usable.
		return string(data)
	}
	return string(decoded)
}

var periodHeaders = []string{"period", "date", "month", "year"}

func findPeriodColumn(header []string) int {
	for i, h := range header {
		lower := strings.ToLower(h)
		for _, candidate := range periodHeaders {
			if strings.Contains(lower, candidate) {
				return i
			}
		}
	}
	return -1
}

// ParsePeriod normalizes a period string via format fallbacks: ISO date,
// year-month, then bare year. Returns "" when nothing parses.
func ParsePeriod(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02")
	}
	for _, layout := range []string{"2006-01", "Jan-06", "Jan 2006", "01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01")
		}
	}
	if t, err := time.Parse("2006", s); err == nil {
		return t.Format("2006")
	}
	return ""
}
