package reconcile

import "strings"

// CandidateSource names the tier that produced the candidate list.
type CandidateSource string

const (
	// SourceExplicit is the server-provided items_for_dropdown list
	SourceExplicit CandidateSource = "items_for_dropdown"
	// SourceUnion is structured items[].name followed by ocr_raw.table[].description
	SourceUnion CandidateSource = "structured_table_union"
)

// candidateStrategy yields a candidate list, or ok=false when its source has
// nothing usable and the next tier should be tried.
type candidateStrategy struct {
	source CandidateSource
	derive func(p Payload, doc StructuredDoc) (items []string, ok bool)
}

// candidateStrategies is evaluated in order; the first present tier wins.
var candidateStrategies = []candidateStrategy{
	{source: SourceExplicit, derive: explicitCandidates},
	{source: SourceUnion, derive: unionCandidates},
}

// Candidates assembles the item-name list for the selection control. doc is
// the already-parsed structured result (zero when absent or malformed).
func Candidates(p Payload, doc StructuredDoc) ([]string, CandidateSource) {
	for _, s := range candidateStrategies {
		if items, ok := s.derive(p, doc); ok {
			return items, s.source
		}
	}
	return []string{}, SourceUnion
}

func explicitCandidates(p Payload, _ StructuredDoc) ([]string, bool) {
	items := newNameSet()
	items.add(p.ItemsForDropdown...)
	if items.empty() {
		return nil, false
	}
	return items.list(), true
}

// unionCandidates is always present, possibly empty.
func unionCandidates(p Payload, doc StructuredDoc) ([]string, bool) {
	items := newNameSet()
	items.add(doc.ItemNames...)
	if p.OcrRaw != nil {
		for _, row := range p.OcrRaw.Table {
			items.add(row.Description)
		}
	}
	return items.list(), true
}

// nameSet keeps trimmed, non-blank names in first-seen order. Matching is
// exact and case-sensitive.
type nameSet struct {
	seen  map[string]struct{}
	order []string
}

func newNameSet() *nameSet {
	return &nameSet{seen: make(map[string]struct{}), order: []string{}}
}

func (s *nameSet) add(names ...string) {
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := s.seen[n]; dup {
			continue
		}
		s.seen[n] = struct{}{}
		s.order = append(s.order, n)
	}
}

func (s *nameSet) empty() bool { return len(s.order) == 0 }

func (s *nameSet) list() []string { return s.order }
