package ingest

import (
	"strings"
	"unicode"

	"github.com/ignite/leadstream/internal/mapping"
)

// Record is one source row keyed by business field, the shape every
// downstream consumer (validator, sink, export, personalization) works
// with. Row is the 1-based data-row position in the source file and is
// preserved so output can be re-zipped against the original.
type Record struct {
	Row int `json:"row"`

	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company_name,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`
	Industry  string `json:"industry,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Website   string `json:"website,omitempty"`
}

// Get returns the value stored under a business field.
func (r *Record) Get(field mapping.BusinessField) string {
	switch field {
	case mapping.FieldEmail:
		return r.Email
	case mapping.FieldFirstName:
		return r.FirstName
	case mapping.FieldLastName:
		return r.LastName
	case mapping.FieldCompany:
		return r.Company
	case mapping.FieldJobTitle:
		return r.JobTitle
	case mapping.FieldIndustry:
		return r.Industry
	case mapping.FieldCity:
		return r.City
	case mapping.FieldState:
		return r.State
	case mapping.FieldCountry:
		return r.Country
	case mapping.FieldPhone:
		return r.Phone
	case mapping.FieldWebsite:
		return r.Website
	}
	return ""
}

// set stores a raw cell value under a business field, applying the
// field's cleanup rules on the way in.
func (r *Record) set(field mapping.BusinessField, raw string) {
	val := strings.TrimSpace(raw)
	if val == "" {
		return
	}

	switch field {
	case mapping.FieldEmail:
		r.Email = cleanEmail(val)
	case mapping.FieldFirstName:
		r.FirstName = titleCase(val)
	case mapping.FieldLastName:
		r.LastName = titleCase(val)
	case mapping.FieldCompany:
		r.Company = val
	case mapping.FieldJobTitle:
		r.JobTitle = val
	case mapping.FieldIndustry:
		r.Industry = strings.ToLower(val)
	case mapping.FieldCity:
		r.City = titleCase(val)
	case mapping.FieldState:
		r.State = strings.ToUpper(val)
	case mapping.FieldCountry:
		r.Country = cleanCountry(val)
	case mapping.FieldPhone:
		r.Phone = cleanPhone(val)
	case mapping.FieldWebsite:
		r.Website = strings.ToLower(val)
	}
}

func cleanEmail(raw string) string {
	return strings.Trim(strings.ToLower(raw), "\"'<>")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func cleanCountry(raw string) string {
	upper := strings.ToUpper(raw)
	if len(upper) == 2 {
		return upper
	}
	switch strings.ToLower(raw) {
	case "united states", "usa", "united states of america":
		return "US"
	case "united kingdom", "great britain":
		return "GB"
	case "canada":
		return "CA"
	case "australia":
		return "AU"
	case "germany", "deutschland":
		return "DE"
	case "france":
		return "FR"
	default:
		return upper
	}
}

func cleanPhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
		} else if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
