package mapping

import "sort"

// MatchMethod records how a candidate was produced.
type MatchMethod string

const (
	MethodExact MatchMethod = "exact"
	MethodFuzzy MatchMethod = "fuzzy"
)

// DefaultFuzzyFloor is the minimum similarity kept in fuzzy results.
// Candidates below it carry no audit value.
const DefaultFuzzyFloor = 0.3

// MatchCandidate pairs a business field with the similarity of the
// best-scoring variant that produced it.
type MatchCandidate struct {
	Field   BusinessField `json:"field"`
	Variant string        `json:"variant"`
	Score   float64       `json:"score"`
	Method  MatchMethod   `json:"method"`
}

// Matcher scores canonical tokens against a dictionary. Exact hits
// short-circuit at similarity 1.0; otherwise every variant of every
// field is scored by normalized edit distance.
type Matcher struct {
	dict  *Dictionary
	floor float64
}

// NewMatcher builds a matcher over dict. A floor <= 0 falls back to
// DefaultFuzzyFloor.
func NewMatcher(dict *Dictionary, floor float64) *Matcher {
	if floor <= 0 {
		floor = DefaultFuzzyFloor
	}
	return &Matcher{dict: dict, floor: floor}
}

// Match returns candidates for token ordered by descending similarity.
// An empty token has no candidates. Ties are broken by preferring the
// field with the shorter variant list, then lexical field order, so
// repeated runs produce identical results.
func (m *Matcher) Match(token string) []MatchCandidate {
	if token == "" {
		return nil
	}

	if field, ok := m.dict.MatchExact(token); ok {
		return []MatchCandidate{{Field: field, Variant: token, Score: 1.0, Method: MethodExact}}
	}

	var candidates []MatchCandidate
	for _, field := range m.dict.Fields() {
		best := MatchCandidate{Field: field, Method: MethodFuzzy}
		for _, variant := range m.dict.Variants(field) {
			if score := similarity(token, variant); score > best.Score {
				best.Score = score
				best.Variant = variant
			}
		}
		if best.Score >= m.floor {
			candidates = append(candidates, best)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		na, nb := m.dict.VariantCount(a.Field), m.dict.VariantCount(b.Field)
		if na != nb {
			return na < nb
		}
		return a.Field < b.Field
	})

	return candidates
}

// similarity is normalized edit distance: 1 - dist/max(len(a), len(b)).
// Identical strings score 1.0, fully dissimilar strings approach 0.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with a rolling two-row table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minInt(values ...int) int {
	result := values[0]
	for _, v := range values[1:] {
		if v < result {
			result = v
		}
	}
	return result
}
