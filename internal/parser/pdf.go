package parser

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
)

// PDFParser extracts tables from PDFs by running pdftotext -layout and
// reading column-aligned runs of lines per page. Pages yielding no table
// are narrative pages and are skipped without error.
type PDFParser struct {
	binPath string
}

// NewPDFParser creates a PDFParser. If binPath is empty, "pdftotext" is used.
func NewPDFParser(binPath string) *PDFParser {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PDFParser{binPath: binPath}
}

func (p *PDFParser) Parse(ctx context.Context, path string) (<-chan model.RawObservation, <-chan error) {
	obsCh := make(chan model.RawObservation, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(obsCh)
		defer close(errCh)

		text, err := p.extractText(ctx, path)
		if err != nil {
			errCh <- err
			return
		}

		for pageNum, page := range strings.Split(text, "\f") {
			for _, obs := range extractPageTables(pageNum+1, page) {
				select {
				case obsCh <- obs:
				case <-ctx.Done():
					errCh <- faults.Wrap(faults.Parse, ctx.Err(), "pdf: cancelled")
					return
				}
			}
		}
	}()

	return obsCh, errCh
}

func (p *PDFParser) extractText(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", faults.Wrap(faults.Parse, err,
			fmt.Sprintf("pdf: pdftotext failed for %s: %s", path, stderr.String()))
	}
	return stdout.String(), nil
}

var columnSplit = regexp.MustCompile(`\s{2,}`)

// extractPageTables finds column-aligned line runs on one page and emits an
// observation per numeric cell, with the run's header line as context.
func extractPageTables(pageNum int, page string) []model.RawObservation {
	lines := strings.Split(page, "\n")

	var out []model.RawObservation
	var run [][]string
	var runStart int

	flush := func() {
		if len(run) >= 2 {
			out = append(out, emitTable(pageNum, runStart, run)...)
		}
		run = nil
	}

	for i, line := range lines {
		fields := splitColumns(line)
		if len(fields) >= 2 {
			if run == nil {
				runStart = i
			}
			run = append(run, fields)
			continue
		}
		flush()
	}
	flush()

	return out
}

func splitColumns(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	return columnSplit.Split(trimmed, -1)
}

func emitTable(pageNum, startLine int, rows [][]string) []model.RawObservation {
	// Header row: leading row whose cells are mostly header candidates.
	var colHeaders []string
	body := rows
	if headerish(rows[0]) {
		colHeaders = rows[0]
		body = rows[1:]
	}

	var out []model.RawObservation
	numericSeen := false
	for r, fields := range body {
		rowHeader := ""
		if len(fields) > 0 && IsHeaderCandidate(fields[0]) {
			rowHeader = fields[0]
		}
		for c, cell := range fields {
			numeric := ParseNumeric(cell)
			if numeric == nil {
				continue
			}
			numericSeen = true

			var headers []string
			if rowHeader != "" {
				headers = append(headers, rowHeader)
			}
			if c < len(colHeaders) && colHeaders[c] != "" {
				headers = append(headers, colHeaders[c])
			}

			out = append(out, model.RawObservation{
				Location:       fmt.Sprintf("page %d row %d col %d", pageNum, startLine+r+1, c+1),
				Row:            startLine + r,
				Col:            c,
				RawText:        cell,
				NumericValue:   numeric,
				ContextHeaders: headers,
			})
		}
	}
	// A run with no numbers is prose laid out in columns, not a table.
	if !numericSeen {
		return nil
	}
	return out
}

func headerish(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	var candidates int
	for _, f := range fields {
		if IsHeaderCandidate(f) {
			candidates++
		}
	}
	return candidates*2 >= len(fields)
}
