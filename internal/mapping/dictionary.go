package mapping

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// BusinessField is a canonical lead attribute. The set is fixed at
// dictionary construction time; adding a field is a configuration
// change, not a runtime operation.
type BusinessField string

const (
	FieldEmail     BusinessField = "email"
	FieldFirstName BusinessField = "first_name"
	FieldLastName  BusinessField = "last_name"
	FieldCompany   BusinessField = "company_name"
	FieldJobTitle  BusinessField = "job_title"
	FieldIndustry  BusinessField = "industry"
	FieldCity      BusinessField = "city"
	FieldState     BusinessField = "state"
	FieldCountry   BusinessField = "country"
	FieldPhone     BusinessField = "phone"
	FieldWebsite   BusinessField = "website"
)

// defaultVariants maps each business field to the header spellings seen
// across real lead exports. All entries must already be canonical
// tokens; NewDictionary verifies that at construction time.
var defaultVariants = map[BusinessField][]string{
	FieldEmail:     {"email", "email_address", "emailaddress", "e_mail", "mail", "contact_email", "work_email"},
	FieldFirstName: {"first_name", "firstname", "first", "fname", "given_name", "givenname"},
	FieldLastName:  {"last_name", "lastname", "last", "lname", "surname", "family_name"},
	FieldCompany:   {"company_name", "company", "companyname", "organization", "organisation", "org", "business", "employer", "account_name"},
	FieldJobTitle:  {"job_title", "jobtitle", "title", "position", "role", "designation"},
	FieldIndustry:  {"industry", "industry_sector", "sector", "vertical"},
	FieldCity:      {"city", "town", "locality"},
	FieldState:     {"state", "state_province", "province", "region"},
	FieldCountry:   {"country", "country_code", "nation"},
	FieldPhone:     {"phone", "phone_number", "phonenumber", "mobile", "telephone", "tel"},
	FieldWebsite:   {"website", "web_site", "url", "company_website", "domain"},
}

// Dictionary is the read-only mapping from business fields to their
// known header variants, plus the reverse variant index used for exact
// matching. Built once at startup and safe for concurrent readers.
type Dictionary struct {
	variants map[BusinessField][]string
	reverse  map[string]BusinessField
	fields   []BusinessField
}

// NewDictionary builds a dictionary from explicit field/variant data.
// Two classes of configuration error fail construction: a variant that
// does not survive a normalization round trip, and a variant listed
// under more than one field.
func NewDictionary(entries map[BusinessField][]string) (*Dictionary, error) {
	d := &Dictionary{
		variants: make(map[BusinessField][]string, len(entries)),
		reverse:  make(map[string]BusinessField),
	}

	for field := range entries {
		d.fields = append(d.fields, field)
	}
	sort.Slice(d.fields, func(i, j int) bool { return d.fields[i] < d.fields[j] })

	for _, field := range d.fields {
		for _, v := range entries[field] {
			if normalized := NormalizeHeader(v); normalized != v {
				return nil, fmt.Errorf("dictionary variant %q for field %q is not canonical (normalizes to %q)", v, field, normalized)
			}
			if prev, dup := d.reverse[v]; dup {
				return nil, fmt.Errorf("dictionary variant %q claimed by both %q and %q", v, prev, field)
			}
			d.reverse[v] = field
			d.variants[field] = append(d.variants[field], v)
		}
		if len(d.variants[field]) == 0 {
			return nil, fmt.Errorf("field %q has no variants", field)
		}
	}

	return d, nil
}

// DefaultDictionary returns the built-in lead schema dictionary.
func DefaultDictionary() *Dictionary {
	d, err := NewDictionary(defaultVariants)
	if err != nil {
		// The built-in table is validated by tests; reaching this is a bug.
		panic(err)
	}
	return d
}

// dictionaryFile is the YAML shape of an external variants file.
type dictionaryFile struct {
	Fields map[string][]string `yaml:"fields"`
}

// LoadDictionary reads a variants file and builds a dictionary from it.
// The file replaces the built-in table entirely so deployments control
// the full schema.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}

	var f dictionaryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	if len(f.Fields) == 0 {
		return nil, fmt.Errorf("dictionary %s defines no fields", path)
	}

	entries := make(map[BusinessField][]string, len(f.Fields))
	for name, variants := range f.Fields {
		entries[BusinessField(name)] = variants
	}
	return NewDictionary(entries)
}

// Fields returns all business fields in stable (lexical) order.
func (d *Dictionary) Fields() []BusinessField {
	out := make([]BusinessField, len(d.fields))
	copy(out, d.fields)
	return out
}

// Variants returns the known variants for a field, in configured order.
func (d *Dictionary) Variants(field BusinessField) []string {
	out := make([]string, len(d.variants[field]))
	copy(out, d.variants[field])
	return out
}

// VariantCount reports how many variants a field has. Fuzzy tie-breaks
// prefer fields with shorter variant lists as more specific.
func (d *Dictionary) VariantCount(field BusinessField) int {
	return len(d.variants[field])
}

// MatchExact looks a canonical token up in the reverse variant index.
func (d *Dictionary) MatchExact(token string) (BusinessField, bool) {
	field, ok := d.reverse[token]
	return field, ok
}

// Has reports whether the field exists in this dictionary.
func (d *Dictionary) Has(field BusinessField) bool {
	_, ok := d.variants[field]
	return ok
}
