package mapping

// Confidence tiers and the thresholds that separate them. The values
// mirror the ones the matching behavior was tuned with; deployments can
// override them through configuration.
type Tier string

const (
	TierConfirmed  Tier = "confirmed"
	TierSuggested  Tier = "suggested"
	TierUnmappable Tier = "unmappable"
)

const (
	DefaultConfirmThreshold = 0.80
	DefaultSuggestThreshold = 0.50
)

// Origin records who made a column's final field assignment.
type Origin string

const (
	OriginAuto          Origin = "auto"
	OriginUserConfirmed Origin = "user-confirmed"
	OriginUserOverride  Origin = "user-overridden"
)

// State is a column's position in the mapping lifecycle. Classification
// moves every column out of pending exactly once; user decisions (or
// defaults) move suggested/unmappable columns to a terminal state.
type State string

const (
	StatePending    State = "pending"
	StateConfirmed  State = "confirmed"
	StateSuggested  State = "suggested"
	StateUnmappable State = "unmappable"
	StateMapped     State = "mapped"
	StateIgnored    State = "ignored"
)

// ColumnMapping is the full record of one source column: its raw
// header, canonical token, classification result, audit candidates and
// current decision state.
type ColumnMapping struct {
	Index      int              `json:"index"`
	Header     string           `json:"header"`
	Token      string           `json:"token"`
	Field      BusinessField    `json:"field,omitempty"`
	Tier       Tier             `json:"tier"`
	Score      float64          `json:"score"`
	State      State            `json:"state"`
	Origin     Origin           `json:"origin,omitempty"`
	Demoted    bool             `json:"demoted,omitempty"`
	Candidates []MatchCandidate `json:"candidates,omitempty"`
}

// Classifier turns a header row into tiered column mappings.
type Classifier struct {
	matcher          *Matcher
	confirmThreshold float64
	suggestThreshold float64
}

// NewClassifier builds a classifier; non-positive thresholds fall back
// to the defaults.
func NewClassifier(matcher *Matcher, confirmThreshold, suggestThreshold float64) *Classifier {
	if confirmThreshold <= 0 {
		confirmThreshold = DefaultConfirmThreshold
	}
	if suggestThreshold <= 0 {
		suggestThreshold = DefaultSuggestThreshold
	}
	return &Classifier{
		matcher:          matcher,
		confirmThreshold: confirmThreshold,
		suggestThreshold: suggestThreshold,
	}
}

// ClassifyHeaders classifies every header, then resolves duplicate
// field claims so each business field is held by at most one column.
// The result is deterministic for a given header list and dictionary.
func (c *Classifier) ClassifyHeaders(headers []string) []ColumnMapping {
	columns := make([]ColumnMapping, len(headers))
	for i, header := range headers {
		columns[i] = c.classifyColumn(i, header)
	}
	c.resolveDuplicates(columns)
	return columns
}

func (c *Classifier) classifyColumn(index int, header string) ColumnMapping {
	col := ColumnMapping{
		Index:  index,
		Header: header,
		Token:  NormalizeHeader(header),
	}

	if col.Token == "" {
		col.Tier = TierUnmappable
		col.State = StateUnmappable
		return col
	}

	col.Candidates = c.matcher.Match(col.Token)
	if len(col.Candidates) == 0 {
		col.Tier = TierUnmappable
		col.State = StateUnmappable
		return col
	}

	best := col.Candidates[0]
	col.Score = best.Score
	switch {
	case best.Score >= c.confirmThreshold:
		col.Field = best.Field
		col.Tier = TierConfirmed
		col.State = StateConfirmed
		col.Origin = OriginAuto
	case best.Score >= c.suggestThreshold:
		col.Field = best.Field
		col.Tier = TierSuggested
		col.State = StateSuggested
	default:
		col.Tier = TierUnmappable
		col.State = StateUnmappable
	}

	return col
}

// resolveDuplicates enforces the at-most-one-column-per-field invariant
// across the whole header row. The highest-scoring claimant keeps the
// field (earliest column wins exact ties); every other claimant is
// demoted one tier and re-surfaced for manual resolution. A demoted
// confirmed column is re-suggested with its best candidate for a field
// no other column claims, never with the field it just lost.
func (c *Classifier) resolveDuplicates(columns []ColumnMapping) {
	claims := make(map[BusinessField][]int)
	for i, col := range columns {
		if col.Field != "" {
			claims[col.Field] = append(claims[col.Field], i)
		}
	}

	winners := make(map[BusinessField]int, len(claims))
	for field, indices := range claims {
		winner := indices[0]
		for _, i := range indices[1:] {
			if columns[i].Score > columns[winner].Score {
				winner = i
			}
		}
		winners[field] = winner
	}

	for field, indices := range claims {
		if len(indices) < 2 {
			continue
		}

		for _, i := range indices {
			if i == winners[field] {
				continue
			}
			col := &columns[i]
			col.Demoted = true
			switch col.Tier {
			case TierConfirmed:
				col.Tier = TierSuggested
				col.State = StateSuggested
				col.Origin = ""
				if alt, ok := c.alternativeFor(col, winners); ok {
					col.Field = alt.Field
					col.Score = alt.Score
				} else {
					col.Field = ""
				}
			case TierSuggested:
				col.Tier = TierUnmappable
				col.State = StateUnmappable
				col.Field = ""
			}
		}
	}
}

// alternativeFor returns the demoted column's best stored candidate for
// a field no column has won, provided it still clears the suggestion
// threshold. Candidates are already ordered by descending similarity.
func (c *Classifier) alternativeFor(col *ColumnMapping, winners map[BusinessField]int) (MatchCandidate, bool) {
	for _, cand := range col.Candidates {
		if cand.Score < c.suggestThreshold {
			break
		}
		if _, taken := winners[cand.Field]; taken {
			continue
		}
		return cand, true
	}
	return MatchCandidate{}, false
}
