package mapping

import (
	"math"
	"reflect"
	"testing"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"industrysector", "industry_sector", 1},
		{"emial", "email", 2},
		{"company_org", "company_name", 4},
	}

	for _, tt := range tests {
		got := levenshtein([]rune(tt.a), []rune(tt.b))
		if got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"email", "email", 1.0},
		{"industrysector", "industry_sector", 1.0 - 1.0/15.0},
		{"emial", "email", 0.6},
		{"xyz", "email", 0.0},
	}

	for _, tt := range tests {
		got := similarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("similarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMatcherExactShortCircuits(t *testing.T) {
	m := NewMatcher(DefaultDictionary(), 0)

	got := m.Match("email")
	if len(got) != 1 {
		t.Fatalf("candidate count = %d, want 1", len(got))
	}
	if got[0].Field != FieldEmail || got[0].Score != 1.0 || got[0].Method != MethodExact {
		t.Errorf("unexpected exact candidate: %+v", got[0])
	}
}

func TestMatcherFuzzyOrderingAndFloor(t *testing.T) {
	m := NewMatcher(DefaultDictionary(), 0)

	got := m.Match("industrysector")
	if len(got) == 0 {
		t.Fatal("expected fuzzy candidates for industrysector")
	}
	if got[0].Field != FieldIndustry {
		t.Errorf("best candidate field = %q, want industry", got[0].Field)
	}
	if got[0].Method != MethodFuzzy {
		t.Errorf("best candidate method = %q, want fuzzy", got[0].Method)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("candidates not sorted descending at %d: %f > %f", i, got[i].Score, got[i-1].Score)
		}
	}
	for _, c := range got {
		if c.Score < DefaultFuzzyFloor {
			t.Errorf("candidate %+v below floor %f", c, DefaultFuzzyFloor)
		}
	}
}

func TestMatcherNoCandidates(t *testing.T) {
	m := NewMatcher(DefaultDictionary(), 0)

	if got := m.Match(""); got != nil {
		t.Errorf("Match(\"\") = %v, want nil", got)
	}
	if got := m.Match("xq"); len(got) != 0 {
		t.Errorf("Match(xq) = %v, want no candidates above floor", got)
	}
}

func TestMatcherDeterministic(t *testing.T) {
	m := NewMatcher(DefaultDictionary(), 0)

	first := m.Match("company_org")
	for i := 0; i < 10; i++ {
		if again := m.Match("company_org"); !reflect.DeepEqual(first, again) {
			t.Fatalf("Match not deterministic: run %d differs\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}
