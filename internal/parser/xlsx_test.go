package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
)

func writeWorkbook(t *testing.T, build func(sheet *xlsx.Sheet)) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Model")
	require.NoError(t, err)
	build(sheet)

	path := filepath.Join(t.TempDir(), "model.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func addRow(sheet *xlsx.Sheet, values ...string) *xlsx.Row {
	row := sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		cell.Value = v
	}
	return row
}

func findObs(obs []model.RawObservation, address string) *model.RawObservation {
	for i := range obs {
		if obs[i].Address == address {
			return &obs[i]
		}
	}
	return nil
}

func TestXLSXParser_ValuesAndHeaders(t *testing.T) {
	path := writeWorkbook(t, func(sheet *xlsx.Sheet) {
		addRow(sheet, "Metric", "Jan 2025", "Feb 2025")
		addRow(sheet, "Oil Production", "376", "359")
	})

	obs, err := Collect(context.Background(), &XLSXParser{}, path)
	require.NoError(t, err)

	b2 := findObs(obs, "B2")
	require.NotNil(t, b2)
	assert.Equal(t, "Model", b2.Sheet)
	assert.Equal(t, "Model!B2", b2.Location)
	require.NotNil(t, b2.NumericValue)
	assert.InDelta(t, 376, *b2.NumericValue, 1e-9)
	assert.Contains(t, b2.ContextHeaders, "Oil Production")
	assert.Contains(t, b2.ContextHeaders, "Jan 2025")

	// Header cells are themselves emitted (one row per populated cell).
	a1 := findObs(obs, "A1")
	require.NotNil(t, a1)
	assert.Nil(t, a1.NumericValue)
}

func TestXLSXParser_FormulaMergedWithCachedValue(t *testing.T) {
	path := writeWorkbook(t, func(sheet *xlsx.Sheet) {
		addRow(sheet, "Total", "735")
		row := sheet.Rows[0]
		row.Cells[1].SetFormula("SUM(B2:B3)")
	})

	obs, err := Collect(context.Background(), &XLSXParser{}, path)
	require.NoError(t, err)

	b1 := findObs(obs, "B1")
	require.NotNil(t, b1)
	assert.Equal(t, "SUM(B2:B3)", b1.FormulaText)
	require.NotNil(t, b1.NumericValue)
	assert.InDelta(t, 735, *b1.NumericValue, 1e-9)
	assert.False(t, b1.Circular)
}

func TestXLSXParser_CircularSentinel(t *testing.T) {
	path := writeWorkbook(t, func(sheet *xlsx.Sheet) {
		addRow(sheet, "Loop", "#REF!")
		row := sheet.Rows[0]
		row.Cells[1].SetFormula("B1+1")
	})

	obs, err := Collect(context.Background(), &XLSXParser{}, path)
	require.NoError(t, err)

	b1 := findObs(obs, "B1")
	require.NotNil(t, b1)
	assert.True(t, b1.Circular)
	// Formula text is retained even though the cell is excluded from
	// re-evaluation.
	assert.Equal(t, "B1+1", b1.FormulaText)
}

func TestXLSXParser_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip archive"), 0o644))

	_, err := Collect(context.Background(), &XLSXParser{}, path)
	assert.True(t, faults.Is(err, faults.Parse))
}
