package domain

import "sort"

// Source identifies the retrieval method that proposed a candidate.
type Source string

const (
	// SourceKeyword marks candidates found by keyword overlap.
	SourceKeyword Source = "keyword"
	// SourceVector marks candidates found by embedding similarity.
	SourceVector Source = "vector"
	// SourceHierarchyChild marks direct children added by hierarchy expansion.
	SourceHierarchyChild Source = "hierarchy-child"
	// SourceHierarchyDescendant marks deeper descendants added by expansion.
	SourceHierarchyDescendant Source = "hierarchy-descendant"
	// SourceRule marks candidates suggested by the rule engine.
	SourceRule Source = "rule"
)

// Candidate is a taxonomy code proposed for a query. Score is method-local
// until the aggregator normalizes it; Similarity is only set for vector hits.
type Candidate struct {
	Entry      TaxonomyEntry
	Score      float64
	Similarity float64
	Sources    map[Source]bool
}

// NewCandidate creates a candidate with a single originating source.
func NewCandidate(entry TaxonomyEntry, score float64, src Source) Candidate {
	return Candidate{
		Entry:   entry,
		Score:   score,
		Sources: map[Source]bool{src: true},
	}
}

// HasSource reports whether the candidate was proposed by src.
func (c Candidate) HasSource(src Source) bool { return c.Sources[src] }

// SourceCount returns the number of independent retrieval methods that
// proposed this candidate. Hierarchy tags count as one method together.
func (c Candidate) SourceCount() int {
	n := 0
	if c.Sources[SourceKeyword] {
		n++
	}
	if c.Sources[SourceVector] {
		n++
	}
	if c.Sources[SourceRule] {
		n++
	}
	if c.Sources[SourceHierarchyChild] || c.Sources[SourceHierarchyDescendant] {
		n++
	}
	return n
}

// CandidateSet deduplicates candidates by code. Merging unions source tags
// and keeps the max score per code, so re-running any strategy is idempotent.
type CandidateSet struct {
	byCode map[string]Candidate
}

// NewCandidateSet creates an empty candidate set.
func NewCandidateSet() *CandidateSet {
	return &CandidateSet{byCode: make(map[string]Candidate)}
}

// Add merges a candidate into the set.
func (s *CandidateSet) Add(c Candidate) {
	existing, ok := s.byCode[c.Entry.Code]
	if !ok {
		cp := c
		cp.Sources = make(map[Source]bool, len(c.Sources))
		for src := range c.Sources {
			cp.Sources[src] = true
		}
		s.byCode[c.Entry.Code] = cp
		return
	}

	for src := range c.Sources {
		existing.Sources[src] = true
	}
	if c.Score > existing.Score {
		existing.Score = c.Score
	}
	if c.Similarity > existing.Similarity {
		existing.Similarity = c.Similarity
	}
	if !existing.Entry.HasEmbedding() && c.Entry.HasEmbedding() {
		existing.Entry = c.Entry
	}
	s.byCode[c.Entry.Code] = existing
}

// Replace overwrites the stored candidate for its code without merge
// semantics. Used by stages that rewrite scores in place.
func (s *CandidateSet) Replace(c Candidate) {
	s.byCode[c.Entry.Code] = c
}

// Remove drops a code from the set.
func (s *CandidateSet) Remove(code string) {
	delete(s.byCode, code)
}

// AddAll merges every candidate from another set.
func (s *CandidateSet) AddAll(other *CandidateSet) {
	for _, c := range other.byCode {
		s.Add(c)
	}
}

// Get returns the candidate for a code, if present.
func (s *CandidateSet) Get(code string) (Candidate, bool) {
	c, ok := s.byCode[code]
	return c, ok
}

// Len returns the number of unique codes in the set.
func (s *CandidateSet) Len() int { return len(s.byCode) }

// All returns candidates ordered by score descending, ties broken by the
// more specific (longer) code first, then lexicographically for stability.
func (s *CandidateSet) All() []Candidate {
	out := make([]Candidate, 0, len(s.byCode))
	for _, c := range s.byCode {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if len(out[i].Entry.Code) != len(out[j].Entry.Code) {
			return len(out[i].Entry.Code) > len(out[j].Entry.Code)
		}
		return out[i].Entry.Code < out[j].Entry.Code
	})
	return out
}
