package mapping

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrColumnOutOfRange = errors.New("column index out of range")
	ErrColumnDecided    = errors.New("column already has a terminal decision")
	ErrNoSuggestion     = errors.New("column has no suggested field to accept")
	ErrFieldTaken       = errors.New("business field already assigned to another column")
	ErrUnknownField     = errors.New("business field not present in dictionary")
	ErrSessionFinalized = errors.New("mapping session already finalized")
)

// IncompleteMappingError reports the columns that still need a decision
// before the session can be finalized.
type IncompleteMappingError struct {
	Columns []string
}

func (e *IncompleteMappingError) Error() string {
	return fmt.Sprintf("mapping incomplete: unresolved columns [%s]", strings.Join(e.Columns, ", "))
}

// FinalMapping is the immutable output of a finalized session: the only
// input the ingestion pipeline accepts. Columns absent from the map
// were ignored and are never read.
type FinalMapping struct {
	Headers []string
	Columns map[int]BusinessField
}

// FieldFor returns the business field a column index maps to.
func (f *FinalMapping) FieldFor(index int) (BusinessField, bool) {
	field, ok := f.Columns[index]
	return field, ok
}

// Session tracks every column decision for one uploaded file. It is the
// exclusive property of the upload that created it and is not safe for
// concurrent use; callers serialize access the same way the upload
// request does.
type Session struct {
	ID        string
	CreatedAt time.Time

	dict      *Dictionary
	columns   []ColumnMapping
	finalized bool
	final     *FinalMapping
}

// NewSession classifies the header row once and returns the session
// holding the per-column results. Classification never happens again
// for the life of the session.
func NewSession(classifier *Classifier, headers []string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		dict:      classifier.matcher.dict,
		columns:   classifier.ClassifyHeaders(headers),
	}
}

// Columns returns a copy of the current column states.
func (s *Session) Columns() []ColumnMapping {
	out := make([]ColumnMapping, len(s.columns))
	copy(out, s.columns)
	return out
}

// Headers returns the raw header row the session was built from.
func (s *Session) Headers() []string {
	out := make([]string, len(s.columns))
	for i, col := range s.columns {
		out[i] = col.Header
	}
	return out
}

// Accept confirms a suggested column's proposed field.
func (s *Session) Accept(index int) error {
	col, err := s.decidable(index)
	if err != nil {
		return err
	}
	if col.State != StateSuggested || col.Field == "" {
		return ErrNoSuggestion
	}
	if holder := s.fieldHolder(col.Field); holder >= 0 && holder != index {
		return fmt.Errorf("%w: %s held by column %d (%q)", ErrFieldTaken, col.Field, holder, s.columns[holder].Header)
	}
	col.State = StateMapped
	col.Origin = OriginUserConfirmed
	return nil
}

// Override assigns an explicit field to a column, replacing whatever
// the classifier proposed. Works from any non-terminal state.
func (s *Session) Override(index int, field BusinessField) error {
	col, err := s.decidable(index)
	if err != nil {
		return err
	}
	if !s.dict.Has(field) {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if holder := s.fieldHolder(field); holder >= 0 && holder != index {
		return fmt.Errorf("%w: %s held by column %d (%q)", ErrFieldTaken, field, holder, s.columns[holder].Header)
	}
	col.Field = field
	col.State = StateMapped
	col.Origin = OriginUserOverride
	return nil
}

// Ignore excludes a column from the mapping; its data is never read.
func (s *Session) Ignore(index int) error {
	col, err := s.decidable(index)
	if err != nil {
		return err
	}
	col.State = StateIgnored
	col.Field = ""
	col.Origin = ""
	return nil
}

// Finalize produces the immutable column-to-field map. It fails with
// IncompleteMappingError while any suggested or unmappable column lacks
// a terminal decision; confirmed columns map implicitly. Calling
// Finalize again returns the same mapping.
func (s *Session) Finalize() (*FinalMapping, error) {
	if s.finalized {
		return s.final, nil
	}

	var unresolved []string
	for _, col := range s.columns {
		if col.State == StateSuggested || col.State == StateUnmappable {
			unresolved = append(unresolved, col.Header)
		}
	}
	if len(unresolved) > 0 {
		return nil, &IncompleteMappingError{Columns: unresolved}
	}

	final := &FinalMapping{
		Headers: s.Headers(),
		Columns: make(map[int]BusinessField),
	}
	for i := range s.columns {
		col := &s.columns[i]
		if col.State == StateConfirmed {
			col.State = StateMapped
		}
		if col.State == StateMapped {
			final.Columns[col.Index] = col.Field
		}
	}

	s.finalized = true
	s.final = final
	return final, nil
}

// Finalized reports whether Finalize has completed.
func (s *Session) Finalized() bool {
	return s.finalized
}

// decidable fetches a column that can still take a decision.
func (s *Session) decidable(index int) (*ColumnMapping, error) {
	if s.finalized {
		return nil, ErrSessionFinalized
	}
	if index < 0 || index >= len(s.columns) {
		return nil, fmt.Errorf("%w: %d", ErrColumnOutOfRange, index)
	}
	col := &s.columns[index]
	if col.State == StateMapped || col.State == StateIgnored {
		return nil, fmt.Errorf("%w: column %d is %s", ErrColumnDecided, index, col.State)
	}
	return col, nil
}

// fieldHolder returns the index of the column currently holding field
// (mapped explicitly, or confirmed and therefore mapped at finalize),
// or -1 when the field is free.
func (s *Session) fieldHolder(field BusinessField) int {
	for i, col := range s.columns {
		if col.Field != field {
			continue
		}
		if col.State == StateMapped || col.State == StateConfirmed {
			return i
		}
	}
	return -1
}
