package storage

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/model"
)

// apiExportHeader is the fixed column order of generated API-import
// workbooks.
var apiExportHeader = []string{
	"ASIN", "Title", "Price", "Rating", "Reviews", "Category", "Sales Rank",
	"Brand", "Image", "Product URL", "Launch Date", "Revenue", "Sales",
	"Fees", "LQS", "Variations", "Sellers", "Weight",
}

// extended-data keys backing the workbook columns past the core fields.
var apiExportExtendedKeys = []string{
	"brand", "image_url", "product_url", "launch_date", "revenue",
	"sales_volume", "fba_fee", "lqs", "variation_count", "seller_count",
	"weight",
}

// WriteAPIExport renders fetched records into an xlsx workbook under
// api_imports/ and returns its path relative to the base.
func (m *Manager) WriteAPIExport(category string, records []*model.ProductRecord, now time.Time) (string, error) {
	rel := m.APIExportPath(category, now)

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Products")
	if err != nil {
		return "", apperr.Wrap(eris.Wrap(err, "storage: add sheet"), apperr.CodeStorage, "cannot build export workbook")
	}

	header := sheet.AddRow()
	for _, col := range apiExportHeader {
		header.AddCell().SetString(col)
	}

	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ASIN)
		row.AddCell().SetString(r.Title)
		setOptFloat(row, r.Price)
		setOptFloat(row, r.Rating)
		setOptInt(row, r.Reviews)
		row.AddCell().SetString(r.Category)
		setOptInt(row, r.SalesRank)
		for _, key := range apiExportExtendedKeys {
			setExtended(row, r.ExtendedData, key)
		}
	}

	if err := f.Save(m.Abs(rel)); err != nil {
		return "", apperr.Wrap(eris.Wrap(err, "storage: save workbook"), apperr.CodeStorage, "cannot save export workbook")
	}
	return rel, nil
}

func setOptFloat(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}

func setOptInt(row *xlsx.Row, v *int) {
	cell := row.AddCell()
	if v != nil {
		cell.SetInt(*v)
	}
}

func setExtended(row *xlsx.Row, data map[string]any, key string) {
	cell := row.AddCell()
	v, ok := data[key]
	if !ok || v == nil {
		return
	}
	switch t := v.(type) {
	case string:
		cell.SetString(t)
	case float64:
		cell.SetFloat(t)
	case int:
		cell.SetInt(t)
	case bool:
		cell.SetBool(t)
	default:
		cell.SetString(fmt.Sprintf("%v", t))
	}
}
