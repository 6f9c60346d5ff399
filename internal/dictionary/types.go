package dictionary

import (
	"errors"
	"time"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrTermNotFound     = errors.New("term not found")
	ErrPatternNotFound  = errors.New("pattern not found")
	ErrInvalidEntry     = errors.New("invalid dictionary entry")
	// ErrPersist is returned when the in-memory dictionary was updated but
	// writing it to disk failed. Memory and disk diverge until the next
	// successful write or reload.
	ErrPersist = errors.New("dictionary persistence failed")
)

const (
	TermsFile    = "credit_terms.json"
	PatternsFile = "sql_patterns.json"

	termsName    = "credit_terms"
	patternsName = "sql_patterns"

	backupTimeLayout = "20060102_150405"
)

// TermInfo describes how a domain term maps onto the database schema.
type TermInfo struct {
	Synonyms   []string `json:"synonyms"`
	SQLMapping string   `json:"sql_mapping"`
	Table      string   `json:"table"`
	DataType   string   `json:"data_type"`
}

func (i TermInfo) clone() TermInfo {
	out := i
	out.Synonyms = append([]string{}, i.Synonyms...)
	return out
}

type Term struct {
	Name string
	Info TermInfo
}

type TermCategory struct {
	Name  string
	Terms []Term
}

// TermDictionary keeps categories and terms in file order. Order matters:
// domain mapping and entity extraction walk it front to back.
type TermDictionary struct {
	Categories []TermCategory
}

type Pattern struct {
	Korean string
	SQL    string
}

type PatternCategory struct {
	Name     string
	Patterns []Pattern
}

type PatternTable struct {
	Categories []PatternCategory
}

// TermRef is a resolved lookup: the canonical term a word maps to.
type TermRef struct {
	Category string   `json:"category"`
	Term     string   `json:"term"`
	Info     TermInfo `json:"info"`
}

type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPartial MatchType = "partial"
	MatchSynonym MatchType = "synonym"
)

type SearchResult struct {
	Category  string    `json:"category"`
	Term      string    `json:"term"`
	MatchType MatchType `json:"match_type"`
	Info      TermInfo  `json:"info"`
}

type Stats struct {
	CreditTerms   map[string]int `json:"credit_terms"`
	SQLPatterns   map[string]int `json:"sql_patterns"`
	TotalTerms    int            `json:"total_terms"`
	TotalPatterns int            `json:"total_patterns"`
}

type ReloadResult struct {
	CreditTermsLoaded bool      `json:"credit_terms_loaded"`
	SQLPatternsLoaded bool      `json:"sql_patterns_loaded"`
	Timestamp         time.Time `json:"timestamp"`
}

type BackupResult struct {
	Timestamp string   `json:"timestamp"`
	Files     []string `json:"files"`
}

type Export struct {
	CreditTerms     TermDictionary `json:"credit_terms"`
	SQLPatterns     PatternTable   `json:"sql_patterns"`
	ExportTimestamp time.Time      `json:"export_timestamp"`
}

// ImportRequest replaces whichever dictionaries are non-nil.
type ImportRequest struct {
	CreditTerms *TermDictionary `json:"credit_terms,omitempty"`
	SQLPatterns *PatternTable   `json:"sql_patterns,omitempty"`
}

// Rejected is an entry dropped at load time because it failed validation.
type Rejected struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Reason   string `json:"reason"`
}

func (d TermDictionary) clone() TermDictionary {
	out := TermDictionary{Categories: make([]TermCategory, len(d.Categories))}
	for i, c := range d.Categories {
		terms := make([]Term, len(c.Terms))
		for j, t := range c.Terms {
			terms[j] = Term{Name: t.Name, Info: t.Info.clone()}
		}
		out.Categories[i] = TermCategory{Name: c.Name, Terms: terms}
	}
	return out
}

func (d TermDictionary) Len() int {
	n := 0
	for _, c := range d.Categories {
		n += len(c.Terms)
	}
	return n
}

func (d TermDictionary) category(name string) int {
	for i, c := range d.Categories {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (c TermCategory) term(name string) int {
	for i, t := range c.Terms {
		if t.Name == name {
			return i
		}
	}
	return -1
}

func (p PatternTable) clone() PatternTable {
	out := PatternTable{Categories: make([]PatternCategory, len(p.Categories))}
	for i, c := range p.Categories {
		out.Categories[i] = PatternCategory{Name: c.Name, Patterns: append([]Pattern{}, c.Patterns...)}
	}
	return out
}

func (p PatternTable) Len() int {
	n := 0
	for _, c := range p.Categories {
		n += len(c.Patterns)
	}
	return n
}

func (p PatternTable) category(name string) int {
	for i, c := range p.Categories {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (c PatternCategory) pattern(korean string) int {
	for i, p := range c.Patterns {
		if p.Korean == korean {
			return i
		}
	}
	return -1
}
