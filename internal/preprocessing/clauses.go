package preprocessing

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kcb-text2sql/backend/internal/dictionary"
)

type ClauseType string

const (
	ClauseQuestion       ClauseType = "question"
	ClauseAggregationAvg ClauseType = "aggregation_avg"
	ClauseAggregationSum ClauseType = "aggregation_sum"
	ClauseAggregationCnt ClauseType = "aggregation_count"
	ClauseAggregationMax ClauseType = "aggregation_max"
	ClauseAggregationMin ClauseType = "aggregation_min"
	ClauseCondition      ClauseType = "condition"
	ClauseLogical        ClauseType = "logical"
	ClauseGeneral        ClauseType = "general"
)

type ConditionalType string

const (
	ConditionalIfThen ConditionalType = "if_then"
	ConditionalWhen   ConditionalType = "when"
	ConditionalAnd    ConditionalType = "and"
	ConditionalOr     ConditionalType = "or"
)

type ClausePattern struct {
	Korean string `json:"korean"`
	SQL    string `json:"sql"`
	Type   string `json:"type"`
}

type Clause struct {
	Type            ClauseType           `json:"type"`
	Confidence      float64              `json:"confidence"`
	Content         string               `json:"content"`
	Keywords        []string             `json:"keywords"`
	Words           []string             `json:"words"`
	DomainTerms     []dictionary.TermRef `json:"domain_terms"`
	ConditionalType ConditionalType      `json:"conditional_type,omitempty"`
	SQLPatterns     []ClausePattern      `json:"sql_patterns"`
	Length          int                  `json:"length"`
}

const (
	minPrimaryClauseRunes  = 4
	minFallbackClauseRunes = 3
)

var (
	sentenceSpan       = regexp.MustCompile(`[^.!?]+[.!?]`)
	primaryConnectives = []string{"그리고", "또는", "이고", "이거나", "하며"}
)

var fallbackConnectives = []string{
	"그리고", "또는", "이거나", "이고", "하며", "면서", "하지만", "그런데", "또한",
}

// Segment decomposes text into clauses and analyzes each one. For any text
// with non-space content at least one clause is returned.
func Segment(text string, snap *dictionary.Snapshot) []Clause {
	parts := primarySplit(text)
	if len(parts) == 0 {
		parts = fallbackSplit(text)
	}

	clauses := make([]Clause, 0, len(parts))
	for _, p := range parts {
		clauses = append(clauses, analyzeClause(p, snap))
	}
	return clauses
}

func primarySplit(text string) []string {
	seen := make(map[string]bool)
	var out []string
	accept := func(candidate string) {
		c := strings.TrimSpace(candidate)
		if utf8.RuneCountInString(c) < minPrimaryClauseRunes || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}

	for _, span := range sentenceSpan.FindAllString(text, -1) {
		accept(span)
	}
	for _, conn := range primaryConnectives {
		pieces := strings.Split(text, conn)
		for i := 0; i+1 < len(pieces); i += 2 {
			if pieces[i] == "" || pieces[i+1] == "" {
				continue
			}
			accept(pieces[i] + conn + pieces[i+1])
		}
	}
	return out
}

// Connectives are kept as their own fragments.
func fallbackSplit(text string) []string {
	fragments := []string{text}
	for _, conn := range fallbackConnectives {
		var next []string
		for _, f := range fragments {
			pieces := strings.Split(f, conn)
			for i, p := range pieces {
				next = append(next, p)
				if i < len(pieces)-1 {
					next = append(next, conn)
				}
			}
		}
		fragments = next
	}

	var next []string
	for _, f := range fragments {
		next = append(next, strings.Split(f, ",")...)
	}
	fragments = next

	var out []string
	for _, f := range fragments {
		if f = strings.TrimSpace(f); utf8.RuneCountInString(f) >= minFallbackClauseRunes {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		if whole := strings.TrimSpace(text); whole != "" {
			out = append(out, whole)
		}
	}
	return out
}

func analyzeClause(content string, snap *dictionary.Snapshot) Clause {
	words := Tokenize(content, snap)

	terms := []dictionary.TermRef{}
	keywords := []string{}
	for _, w := range words {
		if ref, ok := snap.Lookup(w); ok {
			terms = append(terms, ref)
			keywords = append(keywords, ref.Term)
		}
	}

	patterns := clausePatterns(content, snap.Patterns())
	length := utf8.RuneCountInString(content)

	if words == nil {
		words = []string{}
	}
	return Clause{
		Type:            classifyClause(content),
		Confidence:      clauseConfidence(len(terms) > 0, len(patterns) > 0, length),
		Content:         content,
		Keywords:        keywords,
		Words:           words,
		DomainTerms:     terms,
		ConditionalType: conditionalType(content),
		SQLPatterns:     patterns,
		Length:          length,
	}
}

var clauseKeywords = []struct {
	typ   ClauseType
	words []string
	ascii *regexp.Regexp
}{
	{ClauseAggregationAvg, []string{"평균", "평균값"}, regexp.MustCompile(`\bavg\b`)},
	{ClauseAggregationSum, []string{"합계", "총합"}, regexp.MustCompile(`\bsum\b`)},
	{ClauseAggregationCnt, []string{"개수", "건수"}, regexp.MustCompile(`\bcount\b`)},
	{ClauseAggregationMax, []string{"최대", "최고"}, regexp.MustCompile(`\bmax\b`)},
	{ClauseAggregationMin, []string{"최소", "최저"}, regexp.MustCompile(`\bmin\b`)},
	{ClauseCondition, []string{"조건", "만약", "일 때"}, nil},
	{ClauseLogical, []string{"그리고", "또는"}, regexp.MustCompile(`\b(?:and|or)\b`)},
}

func classifyClause(content string) ClauseType {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "?") {
		return ClauseQuestion
	}
	for _, k := range clauseKeywords {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				return k.typ
			}
		}
		if k.ascii != nil && k.ascii.MatchString(lower) {
			return k.typ
		}
	}
	return ClauseGeneral
}

func conditionalType(content string) ConditionalType {
	switch {
	case strings.Contains(content, "만약"):
		return ConditionalIfThen
	case strings.Contains(content, "일 때"), strings.Contains(content, "일때"):
		return ConditionalWhen
	case strings.Contains(content, "그리고"):
		return ConditionalAnd
	case strings.Contains(content, "또는"):
		return ConditionalOr
	default:
		return ""
	}
}

func clausePatterns(content string, table dictionary.PatternTable) []ClausePattern {
	out := []ClausePattern{}
	for _, c := range table.Categories {
		for _, p := range c.Patterns {
			if p.Korean != "" && strings.Contains(content, p.Korean) {
				out = append(out, ClausePattern{Korean: p.Korean, SQL: p.SQL, Type: c.Name})
			}
		}
	}
	return out
}

func clauseConfidence(hasTerms, hasPatterns bool, length int) float64 {
	score := 0.5
	if hasTerms {
		score += 0.2
	}
	if hasPatterns {
		score += 0.2
	}
	if length >= 5 && length <= 50 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
