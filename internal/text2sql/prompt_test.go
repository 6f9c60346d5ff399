package text2sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kcb-text2sql/backend/internal/kg/neo4j"
	"github.com/kcb-text2sql/backend/internal/preprocessing"
)

func TestBuildPrompt_Order(t *testing.T) {
	pre := &preprocessing.Result{
		OriginalQuery:   "신용점수 평균",
		NormalizedQuery: "신용점수 평균",
		MappedQuery:     "credit_score 평균",
		Entities: preprocessing.Entities{DomainTerms: []preprocessing.DomainTerm{
			{Term: "신용점수", Category: "credit_info", SQLMapping: "credit_score", Table: "credit_scores"},
		}},
		SQLMappings: preprocessing.SQLMappings{Aggregation: []preprocessing.PatternMapping{
			{Korean: "평균", SQL: "AVG", Context: "aggregation"},
		}},
		ReasoningChain: []string{"질문 유형: AVG_QUERY"},
	}
	prompt := BuildPrompt(PromptInput{
		Question:      "신용점수 평균",
		Metadata:      DefaultMetadata(),
		Preprocessing: pre,
		Facts:         []neo4j.ColumnFact{{Term: "신용점수", Column: "credit_score", Table: "credit_scores"}},
		RAGContext:    "참고",
	})

	order := []string{
		"데이터베이스 스키마:",
		"[질문 분석]",
		"컬럼 매핑 질문: credit_score 평균",
		"- 신용점수 → credit_scores.credit_score",
		"SQL 힌트: 평균 → AVG",
		"1. 질문 유형: AVG_QUERY",
		"[스키마 관계]",
		"[참고 문서]\n참고",
		"질문: 신용점수 평균",
		"요구사항:",
	}
	last := -1
	for _, s := range order {
		idx := strings.Index(prompt, s)
		assert.Greater(t, idx, last, s)
		last = idx
	}
}

func TestBuildPrompt_SkipsFailedAnalysis(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Question:      "q",
		Metadata:      DefaultMetadata(),
		Preprocessing: &preprocessing.Result{OriginalQuery: "q", Error: "boom"},
	})
	assert.NotContains(t, prompt, "[질문 분석]")
	assert.NotContains(t, prompt, "[참고 문서]")
	assert.NotContains(t, prompt, "[스키마 관계]")
}

func TestExtractSQL(t *testing.T) {
	assert.Equal(t, "SELECT 1", ExtractSQL("```sql\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", ExtractSQL("다음과 같습니다:\n```\nSELECT 1\n```\n끝"))
	assert.Equal(t, "SELECT 1;", ExtractSQL("  SELECT 1;  "))
}

func TestLooksLikeSQL(t *testing.T) {
	assert.True(t, LooksLikeSQL("select name from customers"))
	assert.True(t, LooksLikeSQL("a JOIN b"))
	assert.False(t, LooksLikeSQL("모르겠습니다"))
}
