// Package decode turns an uploaded file buffer into an ordered table of
// loosely-typed rows. It understands XLSX workbooks and delimited text
// (comma, semicolon, or tab). The decoder assigns no meaning to column
// names; header resolution happens downstream.
package decode

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseError indicates the buffer is not a well-formed spreadsheet or
// delimited-text document.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.Reason, e.Err)
	}
	return "parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Table is a decoded document: the header row plus data rows in file order.
// Rows may be ragged; trailing empty cells are often absent.
type Table struct {
	Headers []string
	Rows    [][]string
}

var (
	zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}
	oleMagic = []byte{0xd0, 0xcf, 0x11, 0xe0}
	utf8BOM  = []byte{0xef, 0xbb, 0xbf}
)

// Decode parses the buffer. The filename is used only as a format hint; the
// content magic decides when the two disagree. A document with a header row
// but no data rows decodes to an empty Table — deciding whether that is an
// error belongs to the caller.
func Decode(data []byte, filename string) (*Table, error) {
	if len(data) == 0 {
		return nil, &ParseError{Reason: "empty file"}
	}

	if bytes.HasPrefix(data, oleMagic) {
		return nil, &ParseError{Reason: "legacy .xls format is not supported, save as .xlsx"}
	}

	if isXLSX(data, filename) {
		return decodeXLSX(data)
	}
	return decodeDelimited(data)
}

func isXLSX(data []byte, filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return true
	case ".csv", ".txt", ".tsv":
		return false
	}
	return bytes.HasPrefix(data, zipMagic)
}

func decodeXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Reason: "xlsx workbook", Err: err}
	}
	defer f.Close()

	sheet := firstVisibleSheet(f)
	if sheet == "" {
		return nil, &ParseError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Reason: "xlsx sheet " + sheet, Err: err}
	}

	return buildTable(rows)
}

func firstVisibleSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	for _, name := range sheets {
		if visible, err := f.GetSheetVisible(name); err == nil && visible {
			return name
		}
	}
	if len(sheets) > 0 {
		return sheets[0]
	}
	return ""
}

func decodeDelimited(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.ToValidUTF8(data, []byte("�"))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Reason: "delimited text", Err: err}
		}
		rows = append(rows, record)
	}

	return buildTable(rows)
}

// sniffDelimiter picks the delimiter with the most occurrences in the first
// line. Comma wins ties, which also covers single-column files.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, sep := 0, ','
	for _, cand := range []byte{',', ';', '\t'} {
		if n := bytes.Count(line, []byte{cand}); n > best {
			best, sep = n, rune(cand)
		}
	}
	return sep
}

// buildTable splits header from data rows and drops trailing blank rows.
// Interior blank rows are kept so source row numbers stay aligned with the
// uploaded file; the validator skips them.
func buildTable(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, &ParseError{Reason: "file contains no rows"}
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	data := rows[1:]
	for len(data) > 0 && isBlank(data[len(data)-1]) {
		data = data[:len(data)-1]
	}

	return &Table{Headers: headers, Rows: data}, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
