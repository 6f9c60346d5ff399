package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcb-text2sql/backend/internal/dictionary"
)

func defaultSnapshot() *dictionary.Snapshot {
	return dictionary.NewSnapshot(dictionary.DefaultTerms(), dictionary.DefaultPatterns())
}

func TestTokenize(t *testing.T) {
	snap := defaultSnapshot()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"known eojeol kept whole", "신용점수 750", []string{"신용점수", "750"}},
		{"particle split from unknown stem", "개인고객의 목록", []string{"개인고객", "의", "목록"}},
		{"dictionary prefix then particle", "대출금액을 조회", []string{"대출금액", "을", "조회"}},
		{"longest particle wins", "고객에서", []string{"고객", "에서"}},
		{"term embedded in eojeol", "평균연봉은", []string{"평균", "연봉", "은"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text, snap))
		})
	}
}

func TestSegment_SentenceSpans(t *testing.T) {
	clauses := Segment("신용점수 평균을 알려줘. 연체 건수는?", defaultSnapshot())

	require.Len(t, clauses, 2)
	assert.Equal(t, "신용점수 평균을 알려줘.", clauses[0].Content)
	assert.Equal(t, ClauseAggregationAvg, clauses[0].Type)
	assert.Equal(t, "연체 건수는?", clauses[1].Content)
	assert.Equal(t, ClauseQuestion, clauses[1].Type)
}

func TestSegment_ConnectivePairs(t *testing.T) {
	clauses := Segment("연봉이 높은 고객 그리고 금리가 낮은 대출", defaultSnapshot())

	require.Len(t, clauses, 1)
	assert.Equal(t, "연봉이 높은 고객 그리고 금리가 낮은 대출", clauses[0].Content)
	assert.Equal(t, ClauseLogical, clauses[0].Type)
	assert.Equal(t, ConditionalAnd, clauses[0].ConditionalType)
}

func TestSegment_FallbackWholeText(t *testing.T) {
	q := "신용점수 750 이상인 개인고객의 대출금액 합계를 조회해주세요"
	clauses := Segment(q, defaultSnapshot())

	require.Len(t, clauses, 1)
	c := clauses[0]
	assert.Equal(t, q, c.Content)
	assert.Equal(t, ClauseAggregationSum, c.Type)
	assert.Equal(t, []string{"신용점수", "대출금액"}, c.Keywords)
	assert.Contains(t, c.SQLPatterns, ClausePattern{Korean: "합계", SQL: "SUM", Type: "aggregation"})
	assert.Contains(t, c.SQLPatterns, ClausePattern{Korean: "이상", SQL: ">=", Type: "comparison"})
	assert.InDelta(t, 1.0, c.Confidence, 1e-9)
	assert.Equal(t, 34, c.Length)
}

func TestSegment_FallbackSplitsCommas(t *testing.T) {
	clauses := Segment("개인고객 목록, 기업고객 목록", defaultSnapshot())

	require.Len(t, clauses, 2)
	assert.Equal(t, "개인고객 목록", clauses[0].Content)
	assert.Equal(t, "기업고객 목록", clauses[1].Content)
}

func TestSegment_NeverDropsInput(t *testing.T) {
	inputs := []string{"a", "연체", "?", "그리고", "고객 수", "x, y"}
	for _, in := range inputs {
		clauses := Segment(in, defaultSnapshot())
		assert.NotEmpty(t, clauses, "input %q", in)
		for _, c := range clauses {
			assert.GreaterOrEqual(t, c.Confidence, 0.0)
			assert.LessOrEqual(t, c.Confidence, 1.0)
		}
	}
	assert.Empty(t, Segment("   ", defaultSnapshot()))
}

func TestClassifyClause(t *testing.T) {
	tests := []struct {
		text string
		want ClauseType
	}{
		{"평균 연봉은?", ClauseQuestion},
		{"평균 연봉", ClauseAggregationAvg},
		{"대출 총합", ClauseAggregationSum},
		{"연체 건수", ClauseAggregationCnt},
		{"최고 금리", ClauseAggregationMax},
		{"최저 금리", ClauseAggregationMin},
		{"만약 연체라면", ClauseCondition},
		{"VIP 또는 관리고객", ClauseLogical},
		{"select SUM of loans", ClauseAggregationSum},
		{"summary of loans", ClauseGeneral},
		{"고객 목록", ClauseGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyClause(tt.text))
		})
	}
}

func TestConditionalType(t *testing.T) {
	assert.Equal(t, ConditionalIfThen, conditionalType("만약 연체가 있고 그리고"))
	assert.Equal(t, ConditionalWhen, conditionalType("연체 고객일 때"))
	assert.Equal(t, ConditionalWhen, conditionalType("연체 고객일때"))
	assert.Equal(t, ConditionalAnd, conditionalType("A 그리고 B"))
	assert.Equal(t, ConditionalOr, conditionalType("A 또는 B"))
	assert.Equal(t, ConditionalType(""), conditionalType("고객 목록"))
}

func TestClauseConfidence(t *testing.T) {
	assert.InDelta(t, 0.5, clauseConfidence(false, false, 2), 1e-9)
	assert.InDelta(t, 0.6, clauseConfidence(false, false, 5), 1e-9)
	assert.InDelta(t, 0.7, clauseConfidence(true, false, 51), 1e-9)
	assert.InDelta(t, 1.0, clauseConfidence(true, true, 50), 1e-9)
	assert.LessOrEqual(t, clauseConfidence(true, true, 10), 1.0)
}
