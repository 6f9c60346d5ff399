package text2sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kcb-text2sql/backend/internal/kg/neo4j"
	"github.com/kcb-text2sql/backend/internal/preprocessing"
)

const requirements = "요구사항:\n" +
	"1. SQL만 출력하고 다른 설명은 하지 마세요\n" +
	"2. 적절한 JOIN을 사용하세요\n" +
	"3. WHERE 조건을 명확히 하세요\n" +
	"4. ORDER BY, GROUP BY, LIMIT 등을 적절히 사용하세요\n" +
	"5. 컬럼명은 정확히 사용하세요\n"

type PromptInput struct {
	Question      string
	Metadata      Metadata
	Preprocessing *preprocessing.Result
	Facts         []neo4j.ColumnFact
	RAGContext    string
}

// BuildPrompt assembles the user prompt: schema, preprocessing analysis,
// schema graph hints, reference documents, then the question.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(in.Metadata.SchemaPrompt())
	b.WriteString("\n")

	if pre := in.Preprocessing; pre != nil && !pre.Failed() {
		writeAnalysis(&b, pre)
	}

	if len(in.Facts) > 0 {
		b.WriteString("[스키마 관계]\n")
		for _, f := range in.Facts {
			fmt.Fprintf(&b, "- %s → %s.%s", f.Term, f.Table, f.Column)
			if f.DataType != "" {
				fmt.Fprintf(&b, " (%s)", f.DataType)
			}
			if len(f.JoinableTable) > 0 {
				fmt.Fprintf(&b, ", customer_id로 조인 가능: %s", strings.Join(f.JoinableTable, ", "))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if in.RAGContext != "" {
		fmt.Fprintf(&b, "[참고 문서]\n%s\n", in.RAGContext)
	}

	fmt.Fprintf(&b, "다음 자연어 질문을 SQL 쿼리로 변환해주세요.\n질문: %s\n\n", in.Question)
	b.WriteString(requirements)
	return b.String()
}

func writeAnalysis(b *strings.Builder, pre *preprocessing.Result) {
	b.WriteString("[질문 분석]\n")
	fmt.Fprintf(b, "정규화된 질문: %s\n", pre.NormalizedQuery)
	if pre.MappedQuery != pre.NormalizedQuery {
		fmt.Fprintf(b, "컬럼 매핑 질문: %s\n", pre.MappedQuery)
	}

	if terms := pre.Entities.DomainTerms; len(terms) > 0 {
		b.WriteString("도메인 용어:\n")
		for _, t := range terms {
			fmt.Fprintf(b, "- %s → %s.%s\n", t.Term, t.Table, t.SQLMapping)
		}
	}

	var hints []string
	for _, m := range pre.SQLMappings.Aggregation {
		hints = append(hints, fmt.Sprintf("%s → %s", m.Korean, m.SQL))
	}
	for _, m := range pre.SQLMappings.Comparison {
		hints = append(hints, fmt.Sprintf("%s → %s", m.Korean, m.SQL))
	}
	for _, m := range pre.SQLMappings.Ordering {
		hints = append(hints, fmt.Sprintf("%s → %s", m.Korean, m.SQL))
	}
	if len(hints) > 0 {
		fmt.Fprintf(b, "SQL 힌트: %s\n", strings.Join(hints, ", "))
	}

	if len(pre.ReasoningChain) > 0 {
		b.WriteString("추론 과정:\n")
		for i, step := range pre.ReasoningChain {
			fmt.Fprintf(b, "%d. %s\n", i+1, step)
		}
	}
	b.WriteString("\n")
}

var (
	fence       = regexp.MustCompile("(?s)```(?:sql|SQL)?\\s*(.*?)```")
	sqlKeywords = []string{"SELECT", "FROM", "WHERE", "JOIN"}
)

// ExtractSQL strips markdown code fences from a model reply.
func ExtractSQL(reply string) string {
	if m := fence.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}

// LooksLikeSQL accepts a reply that contains at least one of SELECT, FROM,
// WHERE or JOIN.
func LooksLikeSQL(sql string) bool {
	upper := strings.ToUpper(sql)
	for _, k := range sqlKeywords {
		if strings.Contains(upper, k) {
			return true
		}
	}
	return false
}
