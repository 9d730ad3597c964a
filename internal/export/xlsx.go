// Package export serializes processed lead records, with their
// validation findings, to XLSX for download.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ignite/leadstream/internal/ingest"
	"github.com/ignite/leadstream/internal/validate"
)

var headerRow = []interface{}{
	"row", "email", "first_name", "last_name", "company_name", "job_title",
	"industry", "city", "state", "country", "phone", "website",
	"status", "findings",
}

// WorkbookWriter streams records into an XLSX workbook one row at a
// time, so export memory stays bounded regardless of file size. Rows
// land in the order appended, which callers keep aligned with source
// row order. Not safe for concurrent use.
type WorkbookWriter struct {
	file *excelize.File
	sw   *excelize.StreamWriter
	next int
}

// NewWorkbookWriter opens a workbook with the lead header row written.
func NewWorkbookWriter() (*WorkbookWriter, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(f.GetSheetName(0))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open stream writer: %w", err)
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &WorkbookWriter{file: f, sw: sw, next: 2}, nil
}

// Append writes one record and its findings as the next sheet row.
func (w *WorkbookWriter) Append(rec *ingest.Record, findings []validate.Finding) error {
	status := "ok"
	if validate.HasBlocking(findings) {
		status = "error"
	} else if len(findings) > 0 {
		status = "warning"
	}

	cell, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		return err
	}
	values := []interface{}{
		rec.Row, rec.Email, rec.FirstName, rec.LastName, rec.Company,
		rec.JobTitle, rec.Industry, rec.City, rec.State, rec.Country,
		rec.Phone, rec.Website, status, joinFindings(findings),
	}
	if err := w.sw.SetRow(cell, values); err != nil {
		return fmt.Errorf("write row %d: %w", rec.Row, err)
	}
	w.next++
	return nil
}

// Finish flushes the stream, writes the workbook to out and releases
// the underlying file. The writer is unusable afterwards.
func (w *WorkbookWriter) Finish(out io.Writer) error {
	defer w.file.Close()
	if err := w.sw.Flush(); err != nil {
		return fmt.Errorf("flush stream writer: %w", err)
	}
	if err := w.file.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Discard releases the workbook without writing it, for abandoned
// exports.
func (w *WorkbookWriter) Discard() error {
	return w.file.Close()
}

func joinFindings(findings []validate.Finding) string {
	if len(findings) == 0 {
		return ""
	}
	parts := make([]string, len(findings))
	for i, f := range findings {
		parts[i] = fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
	return strings.Join(parts, "; ")
}
