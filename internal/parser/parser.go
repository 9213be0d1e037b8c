package parser

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/sells-group/dealroom-cli/internal/config"
	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
)

// HeaderAlphaRatio is the alphabetic-character share above which a cell is
// treated as a row/column header candidate.
const HeaderAlphaRatio = 0.6

// Parser turns one source file into a stream of raw observations. The
// stream is lazy, finite, and consumed exactly once: both channels close
// when parsing completes, and errCh carries at most one error.
type Parser interface {
	Parse(ctx context.Context, path string) (<-chan model.RawObservation, <-chan error)
}

// ForKind returns the parser for a document kind.
func ForKind(kind model.DocKind, pdfCfg config.PDFConfig) (Parser, error) {
	switch kind {
	case model.KindSpreadsheet:
		return &XLSXParser{}, nil
	case model.KindPDF:
		return NewPDFParser(pdfCfg.PdfToTextPath), nil
	case model.KindCSV:
		return &CSVParser{}, nil
	default:
		return nil, faults.Newf(faults.Parse, "no parser for kind %q", kind)
	}
}

// Collect drains a parser stream into a slice. Used by tests and by the
// orchestrator's prefetch stage.
func Collect(ctx context.Context, p Parser, path string) ([]model.RawObservation, error) {
	obsCh, errCh := p.Parse(ctx, path)
	var obs []model.RawObservation
	for o := range obsCh {
		obs = append(obs, o)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return obs, nil
}

// IsHeaderCandidate reports whether a cell looks like a row/column header:
// at least 60% alphabetic characters and not purely numeric.
func IsHeaderCandidate(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if _, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", ""), 64); err == nil {
		return false
	}
	var alpha, total int
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if total == 0 {
		return false
	}
	return float64(alpha)/float64(total) >= HeaderAlphaRatio
}

// ParseNumeric extracts a numeric value from spreadsheet-style text:
// thousands separators, currency symbols, percent suffix, and
// parenthesized negatives. Returns nil when the text is not numeric.
func ParseNumeric(text string) *float64 {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	pct := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimLeft(s, "$£€ ")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if pct {
		v /= 100
	}
	if neg {
		v = -v
	}
	return &v
}
