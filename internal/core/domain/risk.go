package domain

type RiskTier string

const (
	// TierHigh: ID-number-backed or exact-match evidence.
	TierHigh RiskTier = "high"
	// TierRisk: name/keyword-only evidence.
	TierRisk RiskTier = "risk"
)

// StreamKind enumerates the query styles that feed risk aggregation. The set
// is closed: the merge dispatch refuses anything outside it.
type StreamKind int

const (
	StreamPersonExact StreamKind = iota
	StreamPersonPartial
	StreamCommonName
)

func (k StreamKind) String() string {
	switch k {
	case StreamPersonExact:
		return "person_exact"
	case StreamPersonPartial:
		return "person_partial"
	case StreamCommonName:
		return "common_name"
	default:
		return "unknown"
	}
}

// Span is a character range in a person's name for which a match was found.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SearchMatch is one (document, matched person or keyword, evidence) triple
// from the text index.
type SearchMatch struct {
	DocumentID string         `json:"document_id"`
	Name       string         `json:"name,omitempty"`
	Relation   PersonRelation `json:"relation,omitempty"`
	Keyword    string         `json:"keyword,omitempty"`
	MatchRange *Span          `json:"match_range,omitempty"`
}

// ResultStream carries one query style's hits, split into the variant that
// co-occurred with high-risk keywords and the name-only variant.
type ResultStream struct {
	Kind     StreamKind
	HighRisk []SearchMatch
	Risk     []SearchMatch
}

// PersonEvidence is an accumulated person match on a risk document.
type PersonEvidence struct {
	Name       string         `json:"name"`
	Relation   PersonRelation `json:"relation"`
	MatchRange *Span          `json:"match_range,omitempty"`
}

// RiskAggregate is the per-document result of one aggregation run. It is
// rebuilt from scratch every run; the tier never downgrades within a run.
type RiskAggregate struct {
	DocumentID  string           `json:"document_id"`
	CompanyID   string           `json:"company_id"`
	Tier        RiskTier         `json:"tier"`
	Persons     []PersonEvidence `json:"persons,omitempty"`
	Keywords    []string         `json:"keywords,omitempty"`
	HasIDNumber bool             `json:"has_id_number"`
	HasPhone    bool             `json:"has_phone"`
}

// AddPerson accumulates person evidence, deduplicating on (name, relation).
func (a *RiskAggregate) AddPerson(ev PersonEvidence) {
	for _, existing := range a.Persons {
		if existing.Name == ev.Name && existing.Relation == ev.Relation {
			return
		}
	}
	a.Persons = append(a.Persons, ev)
}

// AddKeyword unions a matched keyword into the aggregate.
func (a *RiskAggregate) AddKeyword(keyword string) {
	if keyword == "" {
		return
	}
	for _, existing := range a.Keywords {
		if existing == keyword {
			return
		}
	}
	a.Keywords = append(a.Keywords, keyword)
}
