// Package validate applies the business rule schema to mapped lead
// records. Findings are data, not errors: a record with problems still
// flows downstream carrying its findings, and the consumer decides
// whether an error-severity finding blocks it.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ignite/leadstream/internal/ingest"
	"github.com/ignite/leadstream/internal/mapping"
)

// Severity of a finding. Errors are expected to block downstream use
// of the record; warnings never do.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one rule violation on one field of a record.
type Finding struct {
	Field    mapping.BusinessField `json:"field"`
	Severity Severity              `json:"severity"`
	Message  string                `json:"message"`
}

// Kind is the value shape a field is expected to hold.
type Kind string

const (
	KindText  Kind = "text"
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
	KindURL   Kind = "url"
)

// FieldRule is the per-field slice of the validation schema. MinLen
// and MaxLen count runes, not bytes, so accented names are not
// penalized for their encoding.
type FieldRule struct {
	Kind     Kind
	Required bool
	MinLen   int
	MaxLen   int
	Pattern  *regexp.Regexp
	// Domain lists accepted values. Membership violations are
	// warnings, never errors, because these lists are advisory.
	Domain []string
	// Unique tracks observed values within the current batch and
	// flags repeats.
	Unique bool
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

var knownIndustries = []string{
	"technology", "software", "finance", "healthcare", "education",
	"retail", "manufacturing", "real estate", "marketing", "consulting",
	"legal", "hospitality", "construction", "media", "nonprofit",
	"government", "energy", "transportation", "insurance", "agriculture",
}

// titleHints maps an industry to job-title substrings typically seen
// in it. Deliberately loose, used only for advisory findings.
var titleHints = map[string][]string{
	"healthcare": {"nurse", "doctor", "physician", "clinic", "medical", "health", "therapist", "care"},
	"legal":      {"attorney", "lawyer", "counsel", "paralegal", "legal"},
	"education":  {"teacher", "professor", "principal", "instructor", "dean", "educator", "academic"},
	"finance":    {"accountant", "analyst", "banker", "cfo", "controller", "advisor", "finance", "treasurer"},
	"software":   {"engineer", "developer", "architect", "programmer", "devops", "cto", "product", "data"},
	"technology": {"engineer", "developer", "architect", "analyst", "cto", "cio", "product", "it", "data"},
}

// Validator checks mapped records against the field schema. Not safe
// for concurrent use; create one per pipeline.
type Validator struct {
	rules map[mapping.BusinessField]FieldRule
	seen  map[mapping.BusinessField]map[string]int
}

// NewValidator builds a validator from an explicit schema. Pass nil to
// use the default lead schema.
func NewValidator(rules map[mapping.BusinessField]FieldRule) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Validator{
		rules: rules,
		seen:  make(map[mapping.BusinessField]map[string]int),
	}
}

// DefaultRules is the schema for business lead records.
func DefaultRules() map[mapping.BusinessField]FieldRule {
	return map[mapping.BusinessField]FieldRule{
		// 254 is the RFC 5321 octet limit; the pattern restricts the
		// value to ASCII, where rune and byte counts coincide.
		mapping.FieldEmail: {
			Kind: KindEmail, Required: true, MaxLen: 254,
			Pattern: emailPattern, Unique: true,
		},
		mapping.FieldFirstName: {Kind: KindText, MaxLen: 100},
		mapping.FieldLastName:  {Kind: KindText, MaxLen: 100},
		mapping.FieldCompany:   {Kind: KindText, MaxLen: 200},
		mapping.FieldJobTitle:  {Kind: KindText, MaxLen: 150},
		mapping.FieldIndustry:  {Kind: KindText, MaxLen: 100, Domain: knownIndustries},
		mapping.FieldCity:      {Kind: KindText, MaxLen: 100},
		mapping.FieldState:     {Kind: KindText, MaxLen: 50},
		mapping.FieldCountry:   {Kind: KindText, MinLen: 2, MaxLen: 60},
		mapping.FieldPhone:     {Kind: KindPhone, MaxLen: 20, Pattern: phonePattern},
		mapping.FieldWebsite:   {Kind: KindURL, MaxLen: 300},
	}
}

// ErrNilRecord is returned when Validate is handed a nil record.
var ErrNilRecord = errors.New("validate: nil record")

// ResetBatch clears the per-batch uniqueness state. Call it at each
// export or generation batch boundary.
func (v *Validator) ResetBatch() {
	v.seen = make(map[mapping.BusinessField]map[string]int)
}

// Validate applies the schema to one record and returns its findings.
// Bad data never produces an error, only findings; the error return
// fires solely for a nil record.
func (v *Validator) Validate(rec *ingest.Record) ([]Finding, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}

	var findings []Finding
	add := func(field mapping.BusinessField, sev Severity, format string, args ...interface{}) {
		findings = append(findings, Finding{
			Field:    field,
			Severity: sev,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	for _, field := range orderedFields {
		rule, ok := v.rules[field]
		if !ok {
			continue
		}
		val := rec.Get(field)

		if val == "" {
			if rule.Required {
				add(field, SeverityError, "%s is required", field)
			}
			continue
		}

		if msg := checkKind(rule.Kind, val); msg != "" {
			add(field, SeverityError, "%s %s", field, msg)
			continue
		}
		length := utf8.RuneCountInString(val)
		if rule.MinLen > 0 && length < rule.MinLen {
			add(field, SeverityError, "%s is shorter than %d characters", field, rule.MinLen)
		}
		if rule.MaxLen > 0 && length > rule.MaxLen {
			add(field, SeverityError, "%s exceeds %d characters", field, rule.MaxLen)
		}
		if rule.Pattern != nil && !rule.Pattern.MatchString(val) {
			add(field, SeverityError, "%s has an unexpected format", field)
		}
		if len(rule.Domain) > 0 && !contains(rule.Domain, strings.ToLower(val)) {
			add(field, SeverityWarning, "%s %q is not in the known list", field, val)
		}
		if rule.Unique {
			key := strings.ToLower(val)
			if v.seen[field] == nil {
				v.seen[field] = make(map[string]int)
			}
			if prev, dup := v.seen[field][key]; dup {
				add(field, SeverityError, "%s duplicates row %d in this batch", field, prev)
			} else {
				v.seen[field][key] = rec.Row
			}
		}
	}

	findings = append(findings, v.crossFieldFindings(rec)...)
	return findings, nil
}

// crossFieldFindings runs the industry vs. job-title plausibility
// heuristic. It produces false positives by nature, so every finding
// here is a warning.
func (v *Validator) crossFieldFindings(rec *ingest.Record) []Finding {
	industry := strings.ToLower(rec.Industry)
	title := strings.ToLower(rec.JobTitle)
	if industry == "" || title == "" {
		return nil
	}
	hints, ok := titleHints[industry]
	if !ok {
		return nil
	}
	for _, hint := range hints {
		if strings.Contains(title, hint) {
			return nil
		}
	}
	return []Finding{{
		Field:    mapping.FieldJobTitle,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("job_title %q is unusual for industry %q", rec.JobTitle, rec.Industry),
	}}
}

// HasBlocking reports whether any finding carries error severity.
func HasBlocking(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func checkKind(kind Kind, val string) string {
	switch kind {
	case KindEmail:
		if !strings.Contains(val, "@") {
			return "is not an email address"
		}
	case KindPhone:
		for _, r := range val {
			if (r < '0' || r > '9') && r != '+' {
				return "contains non-numeric characters"
			}
		}
	case KindURL:
		if strings.ContainsAny(val, " \t") {
			return "is not a valid URL"
		}
	}
	return ""
}

// orderedFields fixes finding order so repeated validation of the same
// record is deterministic.
var orderedFields = []mapping.BusinessField{
	mapping.FieldEmail,
	mapping.FieldFirstName,
	mapping.FieldLastName,
	mapping.FieldCompany,
	mapping.FieldJobTitle,
	mapping.FieldIndustry,
	mapping.FieldCity,
	mapping.FieldState,
	mapping.FieldCountry,
	mapping.FieldPhone,
	mapping.FieldWebsite,
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
