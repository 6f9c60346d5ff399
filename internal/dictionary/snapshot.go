package dictionary

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Snapshot is an immutable view of both dictionaries. Readers hold on to
// one for the duration of a request; writers publish a new one.
type Snapshot struct {
	terms    TermDictionary
	patterns PatternTable
	index    map[string]TermRef
	lexicon  []string
	version  uint64
	builtAt  time.Time
}

func newSnapshot(terms TermDictionary, patterns PatternTable, version uint64, at time.Time) *Snapshot {
	s := &Snapshot{
		terms:    terms,
		patterns: patterns,
		index:    make(map[string]TermRef),
		version:  version,
		builtAt:  at,
	}

	// First writer wins, walking in dictionary order: a synonym of an
	// earlier term shadows a canonical name that appears later.
	for _, c := range terms.Categories {
		for _, t := range c.Terms {
			ref := TermRef{Category: c.Name, Term: t.Name, Info: t.Info}
			if _, ok := s.index[t.Name]; !ok {
				s.index[t.Name] = ref
			}
			for _, syn := range t.Info.Synonyms {
				if _, ok := s.index[syn]; !ok {
					s.index[syn] = ref
				}
			}
		}
	}

	s.lexicon = make([]string, 0, len(s.index))
	for word := range s.index {
		s.lexicon = append(s.lexicon, word)
	}
	sort.Slice(s.lexicon, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(s.lexicon[i]), utf8.RuneCountInString(s.lexicon[j])
		if li != lj {
			return li > lj
		}
		return s.lexicon[i] < s.lexicon[j]
	})

	return s
}

func emptySnapshot() *Snapshot {
	return newSnapshot(TermDictionary{}, PatternTable{}, 0, time.Time{})
}

// NewSnapshot builds a standalone snapshot, mainly for callers that want
// to preprocess against a fixed vocabulary without a Store.
func NewSnapshot(terms TermDictionary, patterns PatternTable) *Snapshot {
	return newSnapshot(terms.clone(), patterns.clone(), 0, time.Now())
}

// Terms returns the term dictionary. Callers must not modify it.
func (s *Snapshot) Terms() TermDictionary { return s.terms }

// Patterns returns the SQL pattern table. Callers must not modify it.
func (s *Snapshot) Patterns() PatternTable { return s.patterns }

func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Lookup resolves a word that is exactly a canonical term or a synonym.
func (s *Snapshot) Lookup(word string) (TermRef, bool) {
	ref, ok := s.index[word]
	return ref, ok
}

// SQLMapping returns the mapped column for word, or word itself.
func (s *Snapshot) SQLMapping(word string) string {
	if ref, ok := s.index[word]; ok {
		return ref.Info.SQLMapping
	}
	return word
}

// PatternSQL returns the fragment stored for korean under category.
func (s *Snapshot) PatternSQL(category, korean string) (string, bool) {
	i := s.patterns.category(category)
	if i < 0 {
		return "", false
	}
	j := s.patterns.Categories[i].pattern(korean)
	if j < 0 {
		return "", false
	}
	return s.patterns.Categories[i].Patterns[j].SQL, true
}

// Lexicon lists every term and synonym, longest first.
func (s *Snapshot) Lexicon() []string { return s.lexicon }

func (s *Snapshot) Stats() Stats {
	st := Stats{CreditTerms: map[string]int{}, SQLPatterns: map[string]int{}}
	for _, c := range s.terms.Categories {
		st.CreditTerms[c.Name] = len(c.Terms)
		st.TotalTerms += len(c.Terms)
	}
	for _, c := range s.patterns.Categories {
		st.SQLPatterns[c.Name] = len(c.Patterns)
		st.TotalPatterns += len(c.Patterns)
	}
	return st
}

// Search matches query against canonical terms (exact, then substring in
// either direction) and finally against synonyms. Comparison ignores case.
// Each term contributes at most one result.
func (s *Snapshot) Search(query string) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var results []SearchResult
	for _, c := range s.terms.Categories {
		for _, t := range c.Terms {
			key := strings.ToLower(t.Name)
			var match MatchType
			switch {
			case q == key:
				match = MatchExact
			case strings.Contains(key, q) || strings.Contains(q, key):
				match = MatchPartial
			default:
				for _, syn := range t.Info.Synonyms {
					if q == strings.ToLower(syn) {
						match = MatchSynonym
						break
					}
				}
			}
			if match != "" {
				results = append(results, SearchResult{Category: c.Name, Term: t.Name, MatchType: match, Info: t.Info})
			}
		}
	}
	return results
}
