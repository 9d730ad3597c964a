package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/ignite/leadstream/internal/mapping"
)

// DefaultChunkSize is the number of rows buffered per chunk when the
// caller does not specify one.
const DefaultChunkSize = 1000

// Pipeline converts raw source rows into Records through a finalized
// column mapping, one bounded chunk at a time. Memory never exceeds one
// chunk of records regardless of file size, and records come out in
// source row order.
//
// Rows whose field count disagrees with the header row, and rows the
// CSV parser cannot decode, are skipped and counted rather than
// aborting the run. Any other source error is fatal and sticks.
type Pipeline struct {
	src       RowSource
	final     *mapping.FinalMapping
	chunkSize int

	chunk []*Record
	pos   int
	done  bool
	err   error

	rowsRead    int
	malformed   int
	maxBuffered int
}

// NewPipeline builds a pipeline over src using a finalized mapping.
// chunkSize <= 0 selects DefaultChunkSize.
func NewPipeline(src RowSource, final *mapping.FinalMapping, chunkSize int) (*Pipeline, error) {
	if final == nil {
		return nil, errors.New("ingest: nil final mapping")
	}
	if got, want := len(src.Headers()), len(final.Headers); got != want {
		return nil, fmt.Errorf("ingest: source has %d columns, mapping expects %d", got, want)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pipeline{
		src:       src,
		final:     final,
		chunkSize: chunkSize,
		chunk:     make([]*Record, 0, chunkSize),
	}, nil
}

// Next returns the next record in source order, refilling the chunk
// buffer as needed. It returns io.EOF once the source is exhausted.
func (p *Pipeline) Next() (*Record, error) {
	if p.err != nil {
		return nil, p.err
	}
	for p.pos >= len(p.chunk) {
		if p.done {
			p.err = io.EOF
			return nil, p.err
		}
		if err := p.fillChunk(); err != nil {
			p.err = err
			return nil, p.err
		}
	}
	rec := p.chunk[p.pos]
	p.pos++
	return rec, nil
}

// Drain consumes the remaining records, passing each to fn. A non-nil
// error from fn stops the run.
func (p *Pipeline) Drain(fn func(*Record) error) error {
	for {
		rec, err := p.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func (p *Pipeline) fillChunk() error {
	p.chunk = p.chunk[:0]
	p.pos = 0
	width := len(p.final.Headers)

	for len(p.chunk) < p.chunkSize {
		values, err := p.src.Next()
		if err == io.EOF {
			p.done = true
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			p.rowsRead++
			p.malformed++
			continue
		}
		if err != nil {
			return fmt.Errorf("read row %d: %w", p.rowsRead+1, err)
		}

		p.rowsRead++
		if len(values) != width {
			p.malformed++
			continue
		}

		rec := &Record{Row: p.rowsRead}
		for idx, field := range p.final.Columns {
			rec.set(field, values[idx])
		}
		p.chunk = append(p.chunk, rec)
	}

	if len(p.chunk) > p.maxBuffered {
		p.maxBuffered = len(p.chunk)
	}
	return nil
}

// RowsRead reports how many data rows were consumed from the source,
// including rows skipped as malformed.
func (p *Pipeline) RowsRead() int { return p.rowsRead }

// Malformed reports how many rows were skipped.
func (p *Pipeline) Malformed() int { return p.malformed }

// MaxBuffered reports the largest number of records held in memory at
// once, used to verify chunking stays bounded.
func (p *Pipeline) MaxBuffered() int { return p.maxBuffered }

// Close releases the underlying source.
func (p *Pipeline) Close() error { return p.src.Close() }
