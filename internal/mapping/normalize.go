package mapping

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD and removes combining marks, so that
// "Prénom" folds to "Prenom" before the ASCII filter runs.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// NormalizeHeader converts a raw spreadsheet header into its canonical
// token: lowercase ASCII with word separators collapsed to single
// underscores. Headers written entirely in non-Latin scripts normalize
// to the empty token and must be resolved through the unmappable path.
//
// Normalization is deterministic and idempotent:
// NormalizeHeader(NormalizeHeader(s)) == NormalizeHeader(s) for all s.
func NormalizeHeader(raw string) string {
	if raw == "" {
		return ""
	}

	folded, _, err := transform.String(stripMarks, raw)
	if err != nil {
		folded = raw
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r == '_' || unicode.IsSpace(r):
			// Separators become spaces here and collapse below, so
			// "Company  Name", "Company_Name" and "company__name" all
			// land on the same token.
			b.WriteByte(' ')
		}
		// Everything else (punctuation, symbols, non-ASCII scripts) is dropped.
	}

	return strings.Join(strings.Fields(b.String()), "_")
}
