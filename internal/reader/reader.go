// Package reader delivers spreadsheet rows as positional cell lists plus a
// chosen header row, independent of file dialect. It recognizes binary
// worksheets (xlsx/xlsm) and delimited text (csv).
package reader

import (
	"path/filepath"
	"strings"

	"github.com/sellerdata/ingest-cli/internal/apperr"
)

// Result is the parsed content of one sheet.
type Result struct {
	Header         []string
	Rows           [][]string // data rows, header excluded
	HeaderRowIndex int        // 0-based index of the header in the source
}

// Read parses data according to the filename's dialect. sheetHint selects a
// worksheet by name for binary files and is ignored for text.
func Read(data []byte, filename, sheetHint string) (*Result, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return readXLSX(data, sheetHint)
	case ".csv":
		return readCSV(data)
	default:
		return nil, apperr.Newf(apperr.CodeInvalidFileFormat, "unsupported file type %q", filepath.Ext(filename))
	}
}

// chooseHeader applies header detection over raw rows: if the first row has
// fewer than two non-empty cells, the second row is the header. A sheet whose
// candidate header is still empty is ambiguous.
func chooseHeader(rows [][]string) (*Result, error) {
	if len(rows) == 0 {
		return nil, apperr.New(apperr.CodeEmptySheet, "sheet contains no rows")
	}

	headerIdx := 0
	if countNonEmpty(rows[0]) < 2 {
		if len(rows) < 2 {
			return nil, apperr.New(apperr.CodeAmbiguousSheet, "cannot locate a header row")
		}
		headerIdx = 1
	}

	header := trimRow(rows[headerIdx])
	if countNonEmpty(header) < 2 {
		return nil, apperr.New(apperr.CodeAmbiguousSheet, "cannot locate a header row")
	}

	return &Result{
		Header:         header,
		Rows:           rows[headerIdx+1:],
		HeaderRowIndex: headerIdx,
	}, nil
}

func countNonEmpty(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func trimRow(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

// RowIsEmpty reports whether every cell in the row is blank.
func RowIsEmpty(row []string) bool {
	return countNonEmpty(row) == 0
}
