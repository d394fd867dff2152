// Package storage manages the on-disk artifact layout: uploaded source
// files, generated API-import workbooks, and per-batch failure exports.
package storage

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/model"
)

const (
	importsDir    = "imports"
	apiImportsDir = "api_imports"
	failedDir     = "exports/failed"
)

// Manager owns a base directory and lays artifacts out beneath it.
type Manager struct {
	base string
}

// NewManager creates the artifact directories under base.
func NewManager(base string) (*Manager, error) {
	for _, dir := range []string{importsDir, apiImportsDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			return nil, apperr.Wrap(eris.Wrap(err, "storage: mkdir"), apperr.CodeStorage, "cannot create storage layout")
		}
	}
	return &Manager{base: base}, nil
}

// Base returns the root of the artifact tree.
func (m *Manager) Base() string { return m.base }

// Fingerprint returns the lowercase hex SHA-256 of the file content.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SaveUpload persists an uploaded file under imports/ with a fresh UUID name,
// keeping the original extension. It returns the path relative to the base.
func (m *Manager) SaveUpload(data []byte, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	rel := filepath.Join(importsDir, uuid.New().String()+ext)
	if err := os.WriteFile(filepath.Join(m.base, rel), data, 0o644); err != nil {
		return "", apperr.Wrap(eris.Wrap(err, "storage: write upload"), apperr.CodeStorage, "cannot persist uploaded file")
	}
	return rel, nil
}

// APIExportPath builds the workbook path for an API import of the given
// category, stamped with the current time.
func (m *Manager) APIExportPath(category string, now time.Time) string {
	name := fmt.Sprintf("api_import_%s_%s.xlsx", sanitizeCategory(category), now.Format("20060102_150405"))
	return filepath.Join(apiImportsDir, name)
}

// WriteFailureCSV writes the per-batch failed-row artifact and returns its
// path relative to the base. Raw values are serialized as JSON in the last
// column.
func (m *Manager) WriteFailureCSV(batchID int64, failures []model.FailedRow) (string, error) {
	rel := filepath.Join(failedDir, fmt.Sprintf("%d_failed.csv", batchID))
	f, err := os.Create(filepath.Join(m.base, rel))
	if err != nil {
		return "", apperr.Wrap(eris.Wrap(err, "storage: create failure csv"), apperr.CodeStorage, "cannot create failure export")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"rowNumber", "asin", "reason", "rawValues"}); err != nil {
		return "", apperr.Wrap(eris.Wrap(err, "storage: failure csv header"), apperr.CodeStorage, "cannot write failure export")
	}
	for _, fr := range failures {
		// RawValues is already serialized JSON.
		row := []string{fmt.Sprintf("%d", fr.RowNumber), fr.ASIN, fr.Reason, fr.RawValues}
		if err := w.Write(row); err != nil {
			return "", apperr.Wrap(eris.Wrap(err, "storage: failure csv row"), apperr.CodeStorage, "cannot write failure export")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", apperr.Wrap(eris.Wrap(err, "storage: failure csv flush"), apperr.CodeStorage, "cannot write failure export")
	}
	return rel, nil
}

// Abs resolves a base-relative artifact path.
func (m *Manager) Abs(rel string) string {
	return filepath.Join(m.base, rel)
}

// sanitizeCategory keeps filenames shell and filesystem friendly.
func sanitizeCategory(category string) string {
	if category == "" {
		return "unknown"
	}
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, category)
	return mapped
}
