package reader

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sellerdata/ingest-cli/internal/apperr"
)

func readXLSX(data []byte, sheetHint string) (*Result, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, apperr.Wrap(eris.Wrap(err, "xlsx: open"), apperr.CodeInvalidFileFormat, "not a readable workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, apperr.New(apperr.CodeEmptySheet, "workbook has no sheets")
	}

	sheet, err := pickSheet(f, sheetHint)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}

	return chooseHeader(rows)
}

// pickSheet resolves the worksheet: a hint naming an existing sheet wins;
// otherwise a single-sheet workbook is unambiguous; anything else fails.
func pickSheet(f *xlsx.File, hint string) (*xlsx.Sheet, error) {
	if hint != "" {
		if sheet, ok := f.Sheet[hint]; ok {
			return sheet, nil
		}
	}
	if len(f.Sheets) == 1 {
		return f.Sheets[0], nil
	}
	return nil, apperr.Newf(apperr.CodeAmbiguousSheet, "sheet %q not found and workbook has %d sheets", hint, len(f.Sheets))
}
