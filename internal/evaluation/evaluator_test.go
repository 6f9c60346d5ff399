package evaluation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/dictionary"
	"github.com/kcb-text2sql/backend/internal/preprocessing"
	"github.com/kcb-text2sql/backend/internal/storage/models"
	"github.com/kcb-text2sql/backend/internal/text2sql"
)

type fixedSource struct{ snap *dictionary.Snapshot }

func (f fixedSource) Snapshot() *dictionary.Snapshot { return f.snap }

func ruleEngine() *text2sql.Engine {
	snap := dictionary.NewSnapshot(dictionary.DefaultTerms(), dictionary.DefaultPatterns())
	return text2sql.NewEngine(preprocessing.NewPreprocessor(fixedSource{snap}, zap.NewNop()))
}

func TestNormalizeSQL(t *testing.T) {
	assert.Equal(t, "SELECT * FROM CUSTOMERS", NormalizeSQL("select *\n  from customers;"))
	assert.Equal(t, NormalizeSQL("SELECT 1"), NormalizeSQL(" SELECT   1 ; "))
}

func TestLoadDatasetFromJSON(t *testing.T) {
	ds, err := LoadDatasetFromJSON([]byte(`{"items":[{"question":"고객 수","expected_sql":"SELECT COUNT(*) FROM customers"}]}`))
	require.NoError(t, err)
	require.Len(t, ds.Items, 1)

	_, err = LoadDatasetFromJSON([]byte(`{"items":[{"question":" "}]}`))
	assert.Error(t, err)

	_, err = LoadDatasetFromJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestRunDataset(t *testing.T) {
	e := NewEvaluator(ruleEngine(), nil)
	report := e.RunDataset(context.Background(), &Dataset{Items: []DatasetItem{
		{Question: "고객 목록 보여줘", ExpectedSQL: "select * from customers", Category: "basic"},
		{Question: "성별 분포", ExpectedSQL: "SELECT gender, COUNT(*) as count FROM customers GROUP BY gender;", Category: "basic"},
		{Question: "신용점수 평균", ExpectedSQL: "SELECT AVG(credit_score) FROM credit_scores", Category: "aggregation"},
		{Question: "   ", ExpectedSQL: "SELECT 1"},
	}})

	assert.Equal(t, 4, report.TotalQuestions)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.RuleBasedAnswers)
	assert.InDelta(t, 50.0, report.MatchRate, 0.001)
	assert.Equal(t, CategoryScore{Total: 2, Matched: 2, Rate: 100}, report.ByCategory["basic"])
	assert.Equal(t, 0, report.ByCategory["aggregation"].Matched)
	assert.Equal(t, 1, report.ByCategory["uncategorized"].Total)
	assert.Equal(t, text2sql.ErrEmptyQuestion.Error(), report.Results[3].Error)
	assert.NotEmpty(t, report.Results[2].QuestionType)

	text := GenerateReport(report)
	assert.Contains(t, text, "Matched: 2 (50.0%)")
	assert.True(t, strings.Contains(text, "- basic: 2/2 (100.0%)"))
}

type fakeStore struct {
	conversions []models.Conversion
	feedback    []models.Feedback
	err         error
}

func (f fakeStore) GetConversionHistory(int) ([]models.Conversion, error) {
	return f.conversions, f.err
}

func (f fakeStore) ListFeedback(int) ([]models.Feedback, error) {
	return f.feedback, nil
}

func TestUsage(t *testing.T) {
	store := fakeStore{
		conversions: []models.Conversion{
			{Source: text2sql.SourceLLM, QuestionType: "COUNT_QUERY", LatencyMS: 300, DomainTermsFound: 2, RAGContextUsed: true},
			{Source: text2sql.SourceRuleBased, QuestionType: "COUNT_QUERY", LatencyMS: 100},
			{Source: text2sql.SourceRuleBased, QuestionType: "AVG_QUERY", LatencyMS: 200, DomainTermsFound: 1},
			{Source: text2sql.SourceLLM, QuestionType: "SUM_QUERY", LatencyMS: 400, DomainTermsFound: 1},
		},
		feedback: []models.Feedback{
			{Helpful: true},
			{Helpful: false, CorrectedSQL: "SELECT 1"},
		},
	}

	report, err := NewEvaluator(nil, store).Usage(100)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Conversions)
	assert.Equal(t, map[string]int{"llm": 2, "rule_based": 2}, report.BySource)
	assert.InDelta(t, 50.0, report.LLMShare, 0.001)
	assert.InDelta(t, 25.0, report.RAGContextShare, 0.001)
	assert.InDelta(t, 250.0, report.AvgLatencyMS, 0.001)
	assert.InDelta(t, 1.0, report.AvgDomainTerms, 0.001)
	assert.InDelta(t, 50.0, report.HelpfulPercentage, 0.001)
	assert.Equal(t, 1, report.CorrectedSQLCount)
	assert.Equal(t, []string{"COUNT_QUERY", "AVG_QUERY", "SUM_QUERY"}, report.TopQuestionTypes)
}

func TestUsage_EmptyAndErrors(t *testing.T) {
	report, err := NewEvaluator(nil, fakeStore{}).Usage(10)
	require.NoError(t, err)
	assert.Zero(t, report.LLMShare)
	assert.Zero(t, report.HelpfulPercentage)
	assert.Empty(t, report.TopQuestionTypes)

	_, err = NewEvaluator(nil, fakeStore{err: errors.New("locked")}).Usage(10)
	assert.Error(t, err)
}
