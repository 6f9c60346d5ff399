package preprocessing

import (
	"encoding/json"
	"strings"

	"github.com/kcb-text2sql/backend/internal/dictionary"
)

const contextRadius = 20

type PatternMapping struct {
	Korean  string `json:"korean"`
	SQL     string `json:"sql"`
	Context string `json:"context"`
}

// SQLMappings groups the pattern hits of a question by category. Categories
// beyond the three standard ones land in Other.
type SQLMappings struct {
	Aggregation []PatternMapping
	Comparison  []PatternMapping
	Ordering    []PatternMapping
	Other       map[string][]PatternMapping
}

func (m SQLMappings) Total() int {
	n := len(m.Aggregation) + len(m.Comparison) + len(m.Ordering)
	for _, v := range m.Other {
		n += len(v)
	}
	return n
}

// MarshalJSON flattens Other next to the standard categories.
func (m SQLMappings) MarshalJSON() ([]byte, error) {
	out := map[string][]PatternMapping{
		"aggregation": nonNil(m.Aggregation),
		"comparison":  nonNil(m.Comparison),
		"ordering":    nonNil(m.Ordering),
	}
	for k, v := range m.Other {
		if _, taken := out[k]; !taken {
			out[k] = nonNil(v)
		}
	}
	return json.Marshal(out)
}

func nonNil(v []PatternMapping) []PatternMapping {
	if v == nil {
		return []PatternMapping{}
	}
	return v
}

// MapSQLPatterns records every pattern whose Korean phrase occurs in text,
// together with the text surrounding its first occurrence.
func MapSQLPatterns(text string, table dictionary.PatternTable) SQLMappings {
	m := SQLMappings{
		Aggregation: []PatternMapping{},
		Comparison:  []PatternMapping{},
		Ordering:    []PatternMapping{},
	}
	for _, c := range table.Categories {
		for _, p := range c.Patterns {
			if p.Korean == "" || !strings.Contains(text, p.Korean) {
				continue
			}
			pm := PatternMapping{Korean: p.Korean, SQL: p.SQL, Context: surrounding(text, p.Korean)}
			switch c.Name {
			case "aggregation":
				m.Aggregation = append(m.Aggregation, pm)
			case "comparison":
				m.Comparison = append(m.Comparison, pm)
			case "ordering":
				m.Ordering = append(m.Ordering, pm)
			default:
				if m.Other == nil {
					m.Other = make(map[string][]PatternMapping)
				}
				m.Other[c.Name] = append(m.Other[c.Name], pm)
			}
		}
	}
	return m
}

func surrounding(text, phrase string) string {
	i := strings.Index(text, phrase)
	if i < 0 {
		return ""
	}
	runes := []rune(text)
	start := len([]rune(text[:i]))
	end := start + len([]rune(phrase))

	lo := max(start-contextRadius, 0)
	hi := min(end+contextRadius, len(runes))
	return strings.TrimSpace(string(runes[lo:hi]))
}
