package parser

import (
	"context"
	"strconv"
	"strings"

	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
)

// errorSentinels are cached values Excel leaves behind for broken or
// circular formulas. Cells carrying one keep their formula text but are
// excluded from downstream re-evaluation.
var errorSentinels = map[string]bool{
	"#REF!": true, "#VALUE!": true, "#DIV/0!": true, "#NAME?": true,
	"#NUM!": true, "#N/A": true, "#NULL!": true, "#CALC!": true,
}

// XLSXParser reads workbooks in two passes per sheet: one collecting
// literal formula text, one reading last-computed cached values, merged
// per cell so both are available downstream.
type XLSXParser struct{}

func (p *XLSXParser) Parse(ctx context.Context, path string) (<-chan model.RawObservation, <-chan error) {
	obsCh := make(chan model.RawObservation, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(obsCh)
		defer close(errCh)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errCh <- faults.Wrap(faults.Parse, err, "xlsx: open workbook")
			return
		}

		for _, sheet := range f.Sheets {
			if err := p.emitSheet(ctx, sheet, obsCh); err != nil {
				errCh <- err
				return
			}
		}
	}()

	return obsCh, errCh
}

func (p *XLSXParser) emitSheet(ctx context.Context, sheet *xlsx.Sheet, obsCh chan<- model.RawObservation) error {
	// Pass one: literal formulas by address.
	formulas := make(map[string]string)
	for r, row := range sheet.Rows {
		for c, cell := range row.Cells {
			if ft := cell.Formula(); ft != "" {
				formulas[cellAddress(r, c)] = ft
			}
		}
	}

	// Pass two: cached values, merged with the formula pass.
	colHeaders := make(map[int]string)
	for r, row := range sheet.Rows {
		rowHeader := ""
		for c, cell := range row.Cells {
			if ctx.Err() != nil {
				return faults.Wrap(faults.Parse, ctx.Err(), "xlsx: cancelled")
			}

			text := strings.TrimSpace(cell.String())
			if text == "" {
				continue
			}
			addr := cellAddress(r, c)
			numeric := ParseNumeric(text)

			if IsHeaderCandidate(text) {
				colHeaders[c] = text
				if rowHeader == "" {
					rowHeader = text
				}
			}

			formula := formulas[addr]
			circular := formula != "" && errorSentinels[strings.ToUpper(text)]

			var headers []string
			if rowHeader != "" && rowHeader != text {
				headers = append(headers, rowHeader)
			}
			if ch := colHeaders[c]; ch != "" && ch != text {
				headers = append(headers, ch)
			}

			obs := model.RawObservation{
				Location:       sheet.Name + "!" + addr,
				Sheet:          sheet.Name,
				Address:        addr,
				Row:            r,
				Col:            c,
				RawText:        text,
				NumericValue:   numeric,
				FormulaText:    formula,
				ContextHeaders: headers,
				Circular:       circular,
			}
			select {
			case obsCh <- obs:
			case <-ctx.Done():
				return faults.Wrap(faults.Parse, ctx.Err(), "xlsx: cancelled")
			}
		}
	}
	return nil
}

// cellAddress converts zero-based row/col indices to A1 notation.
func cellAddress(row, col int) string {
	var letters strings.Builder
	n := col
	for {
		letters.WriteByte(byte('A' + n%26))
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	// Reverse the letter run.
	s := []byte(letters.String())
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return string(s) + strconv.Itoa(row+1)
}
