// Package ingest parses uploaded CSV and XLSX files into the engine's
// row representation. Column headers are normalized once here so the
// importers downstream only ever see canonical snake_case names.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/schoolsetu/reconcile/internal/engine"
)

// Format is the detected type of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// xlsxMagic is the ZIP local-file-header signature; XLSX files are ZIP
// archives, so this is a reliable sniff when the filename lies.
var xlsxMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// DetectFormat decides how to parse an upload, preferring the file
// extension and falling back to content sniffing.
func DetectFormat(filename string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
		return FormatXLSX
	case ".csv", ".txt":
		return FormatCSV
	}
	if bytes.HasPrefix(head, xlsxMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

// ReadCSV parses a CSV stream into rows keyed by normalized header
// name. Every row carries a key for every header column, with an empty
// string where the record had no value, so callers can distinguish a
// missing column from a blank cell.
func ReadCSV(r io.Reader) ([]engine.Row, error) {
	cr := csv.NewReader(CleanReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := normalizeHeader(header)

	var rows []engine.Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if row, ok := recordToRow(cols, record); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ReadWorkbook parses an XLSX stream into one Sheet per worksheet, in
// workbook order. Sheets without a header row are dropped.
func ReadWorkbook(r io.Reader) ([]engine.Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sheets []engine.Sheet
	for _, name := range f.GetSheetList() {
		cells, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		if len(cells) == 0 {
			continue
		}
		cols := normalizeHeader(cells[0])
		rows := make([]engine.Row, 0, len(cells)-1)
		for _, record := range cells[1:] {
			if row, ok := recordToRow(cols, record); ok {
				rows = append(rows, row)
			}
		}
		sheets = append(sheets, engine.Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

func normalizeHeader(raw []string) []string {
	cols := make([]string, len(raw))
	for i, h := range raw {
		cols[i] = engine.NormalizeHeader(h)
	}
	return cols
}

// recordToRow maps a record onto the header columns. Records shorter
// than the header are padded with blank values; fully blank records are
// dropped.
func recordToRow(cols []string, record []string) (engine.Row, bool) {
	row := make(engine.Row, len(cols))
	blank := true
	for i, col := range cols {
		if col == "" {
			continue
		}
		var v string
		if i < len(record) {
			v = strings.TrimSpace(record[i])
		}
		if v != "" {
			blank = false
		}
		row[col] = v
	}
	if blank {
		return nil, false
	}
	return row, true
}
