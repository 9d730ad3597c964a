package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptySource is returned when a source has no header row.
var ErrEmptySource = errors.New("ingest: source has no header row")

// RowSource yields raw rows from an uploaded file, one at a time. The
// first row (the header) is consumed during construction and exposed
// via Headers. Next returns io.EOF when the source is exhausted.
type RowSource interface {
	Headers() []string
	Next() ([]string, error)
	Close() error
}

// CSVSource reads rows from CSV data. The reader is deliberately lax:
// exports from CRMs disagree on quoting and column counts, so structural
// problems are left for the pipeline to count rather than aborting the
// whole file.
type CSVSource struct {
	reader  *csv.Reader
	closer  io.Closer
	headers []string
}

// NewCSVSource wraps r and reads the header row. If r is also an
// io.Closer it will be closed by Close.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptySource
	}
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	if len(header) > 0 {
		header[0] = stripBOM(header[0])
	}

	src := &CSVSource{reader: cr, headers: header}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src, nil
}

func (s *CSVSource) Headers() []string { return s.headers }

func (s *CSVSource) Next() ([]string, error) {
	return s.reader.Read()
}

func (s *CSVSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// stripBOM removes the UTF-8 byte order mark Excel prepends to CSV
// exports, which would otherwise corrupt the first header.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
