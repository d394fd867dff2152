package reader

import (
	"bytes"
	"encoding/csv"
	"io"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/sellerdata/ingest-cli/internal/apperr"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readCSV(data []byte) (*Result, error) {
	decoded, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1 // allow variable fields
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(eris.Wrap(err, "csv: read row"), apperr.CodeInvalidFileFormat, "malformed csv")
		}
		rows = append(rows, record)
	}

	return chooseHeader(rows)
}

// decodeText tries the ordered encoding set [utf-8, gb18030]; the first that
// decodes cleanly wins.
func decodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	if utf8.Valid(data) {
		return data, nil
	}

	// The decoder substitutes U+FFFD for undecodable bytes instead of
	// failing, so a clean decode is one without any replacement runes.
	decoded, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data)
	if err == nil && utf8.Valid(decoded) && !bytes.ContainsRune(decoded, utf8.RuneError) {
		return decoded, nil
	}

	return nil, apperr.New(apperr.CodeUnreadableEnc, "file is neither utf-8 nor gb18030")
}
