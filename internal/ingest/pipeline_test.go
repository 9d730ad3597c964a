package ingest

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/ignite/leadstream/internal/mapping"
)

func leadMapping(headers []string) *mapping.FinalMapping {
	dict := mapping.DefaultDictionary()
	classifier := mapping.NewClassifier(mapping.NewMatcher(dict, 0), 0, 0)
	s := mapping.NewSession(classifier, headers)
	final, err := s.Finalize()
	if err != nil {
		panic(err)
	}
	return final
}

func csvPipeline(t *testing.T, data string, chunkSize int) *Pipeline {
	t.Helper()
	src, err := NewCSVSource(strings.NewReader(data))
	if err != nil {
		t.Fatalf("NewCSVSource() error: %v", err)
	}
	p, err := NewPipeline(src, leadMapping(src.Headers()), chunkSize)
	if err != nil {
		t.Fatalf("NewPipeline() error: %v", err)
	}
	return p
}

func TestPipelineChunkingStaysBounded(t *testing.T) {
	var b strings.Builder
	b.WriteString("email,first_name\n")
	const total = 2100
	for i := 0; i < total; i++ {
		fmt.Fprintf(&b, "user%d@example.com,Pat\n", i)
	}

	p := csvPipeline(t, b.String(), 1000)
	defer p.Close()

	var count int
	err := p.Drain(func(rec *Record) error {
		count++
		if rec.Row != count {
			return fmt.Errorf("row %d arrived out of order (record %d)", rec.Row, count)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if count != total {
		t.Errorf("record count = %d, want %d", count, total)
	}
	if p.MaxBuffered() > 1000 {
		t.Errorf("max buffered = %d, want <= 1000", p.MaxBuffered())
	}
	if p.Malformed() != 0 {
		t.Errorf("malformed = %d, want 0", p.Malformed())
	}
}

func TestPipelineSkipsMalformedRows(t *testing.T) {
	data := "email,first_name\n" +
		"a@example.com,Ann\n" +
		"b@example.com,Bob,extra-field\n" + // wrong column count
		"c@example.com,Cam\n"

	p := csvPipeline(t, data, 0)
	defer p.Close()

	var rows []int
	if err := p.Drain(func(rec *Record) error {
		rows = append(rows, rec.Row)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if len(rows) != 2 {
		t.Fatalf("record count = %d, want 2", len(rows))
	}
	if rows[0] != 1 || rows[1] != 3 {
		t.Errorf("rows = %v, want [1 3]", rows)
	}
	if p.Malformed() != 1 {
		t.Errorf("malformed = %d, want 1", p.Malformed())
	}
	if p.RowsRead() != 3 {
		t.Errorf("rows read = %d, want 3", p.RowsRead())
	}
}

func TestPipelineMapsOnlyDecidedColumns(t *testing.T) {
	// "Misc Notes" never resolves to a field, so its values must not
	// land anywhere in the record.
	dict := mapping.DefaultDictionary()
	classifier := mapping.NewClassifier(mapping.NewMatcher(dict, 0), 0, 0)
	s := mapping.NewSession(classifier, []string{"email", "Misc Notes"})
	if err := s.Ignore(1); err != nil {
		t.Fatal(err)
	}
	final, err := s.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	src, err := NewCSVSource(strings.NewReader("email,Misc Notes\na@example.com,do not import\n"))
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPipeline(src, final, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	rec, err := p.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if rec.Email != "a@example.com" {
		t.Errorf("email = %q", rec.Email)
	}
	want := Record{Row: 1, Email: "a@example.com"}
	if *rec != want {
		t.Errorf("record = %+v, want only email populated", rec)
	}
}

func TestPipelineEOFIsSticky(t *testing.T) {
	p := csvPipeline(t, "email\na@example.com\n", 0)
	defer p.Close()

	if _, err := p.Next(); err != nil {
		t.Fatalf("first Next() error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := p.Next(); err != io.EOF {
			t.Fatalf("Next() after exhaustion = %v, want io.EOF", err)
		}
	}
}

func TestNewPipelineRejectsMismatchedMapping(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("email,first_name\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if _, err := NewPipeline(src, leadMapping([]string{"email"}), 0); err == nil {
		t.Error("expected error for column count mismatch")
	}
	if _, err := NewPipeline(src, nil, 0); err == nil {
		t.Error("expected error for nil mapping")
	}
}
