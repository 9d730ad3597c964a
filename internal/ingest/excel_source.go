package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelSource streams rows from the first sheet of an XLSX workbook
// without materializing the whole sheet in memory.
type ExcelSource struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
}

// NewExcelSource opens a workbook from r and positions the cursor past
// the header row of the first sheet.
func NewExcelSource(r io.Reader) (*ExcelSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, ErrEmptySource
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheets[0], err)
	}
	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, ErrEmptySource
	}
	header, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("read header row: %w", err)
	}
	if len(header) == 0 {
		rows.Close()
		f.Close()
		return nil, ErrEmptySource
	}
	header[0] = stripBOM(header[0])

	return &ExcelSource{file: f, rows: rows, headers: header}, nil
}

func (s *ExcelSource) Headers() []string { return s.headers }

// Next returns the next data row, padded to header width. Excelize
// drops trailing empty cells, which is a storage artifact of the XLSX
// format rather than a malformed row.
func (s *ExcelSource) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	row, err := s.rows.Columns()
	if err != nil {
		return nil, err
	}
	for len(row) < len(s.headers) {
		row = append(row, "")
	}
	return row, nil
}

func (s *ExcelSource) Close() error {
	s.rows.Close()
	return s.file.Close()
}
