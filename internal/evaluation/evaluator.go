package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/storage/models"
	"github.com/kcb-text2sql/backend/internal/text2sql"
	"github.com/kcb-text2sql/backend/pkg/logger"
)

type Converter interface {
	Convert(ctx context.Context, req text2sql.ConvertRequest) (*text2sql.ConvertResponse, error)
}

type Store interface {
	GetConversionHistory(limit int) ([]models.Conversion, error)
	ListFeedback(limit int) ([]models.Feedback, error)
}

type Evaluator struct {
	engine Converter
	store  Store
}

func NewEvaluator(engine Converter, store Store) *Evaluator {
	return &Evaluator{
		engine: engine,
		store:  store,
	}
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Question    string `json:"question"`
	ExpectedSQL string `json:"expected_sql"`
	RAGDomain   string `json:"rag_domain,omitempty"`
	Category    string `json:"category,omitempty"`
}

type ItemResult struct {
	Question     string `json:"question"`
	Category     string `json:"category,omitempty"`
	ExpectedSQL  string `json:"expected_sql"`
	GeneratedSQL string `json:"generated_sql"`
	Source       string `json:"source"`
	QuestionType string `json:"question_type"`
	Match        bool   `json:"match"`
	Error        string `json:"error,omitempty"`
}

type CategoryScore struct {
	Total   int     `json:"total"`
	Matched int     `json:"matched"`
	Rate    float64 `json:"rate"`
}

type DatasetReport struct {
	TotalQuestions   int                      `json:"total_questions"`
	Matched          int                      `json:"matched"`
	Failed           int                      `json:"failed"`
	MatchRate        float64                  `json:"match_rate"`
	LLMAnswered      int                      `json:"llm_answered"`
	RuleBasedAnswers int                      `json:"rule_based_answers"`
	ByCategory       map[string]CategoryScore `json:"by_category"`
	Results          []ItemResult             `json:"results"`
}

func LoadDatasetFromJSON(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	for i, item := range dataset.Items {
		if strings.TrimSpace(item.Question) == "" {
			return nil, fmt.Errorf("dataset item %d has no question", i)
		}
	}
	return &dataset, nil
}

var spaces = regexp.MustCompile(`\s+`)

// NormalizeSQL folds case, whitespace and a trailing semicolon so that
// formatting differences do not count as mismatches.
func NormalizeSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	sql = spaces.ReplaceAllString(sql, " ")
	return strings.ToUpper(strings.TrimSpace(sql))
}

// RunDataset converts every item and compares the SQL against the expected
// query. Items that fail to convert count as misses.
func (e *Evaluator) RunDataset(ctx context.Context, dataset *Dataset) *DatasetReport {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &DatasetReport{
		TotalQuestions: len(dataset.Items),
		ByCategory:     map[string]CategoryScore{},
		Results:        make([]ItemResult, 0, len(dataset.Items)),
	}

	for _, item := range dataset.Items {
		res := ItemResult{
			Question:    item.Question,
			Category:    item.Category,
			ExpectedSQL: item.ExpectedSQL,
		}

		resp, err := e.engine.Convert(ctx, text2sql.ConvertRequest{Question: item.Question, RAGDomain: item.RAGDomain})
		if err != nil {
			logger.Warn("Failed to convert dataset item", zap.String("question", item.Question), zap.Error(err))
			res.Error = err.Error()
			report.Failed++
		} else {
			res.GeneratedSQL = resp.SQL
			res.Source = resp.Source
			if r := resp.Preprocessing.Result; r != nil {
				res.QuestionType = string(r.QuestionType())
			}
			res.Match = NormalizeSQL(resp.SQL) == NormalizeSQL(item.ExpectedSQL)

			switch resp.Source {
			case text2sql.SourceLLM:
				report.LLMAnswered++
			case text2sql.SourceRuleBased:
				report.RuleBasedAnswers++
			}
		}

		if res.Match {
			report.Matched++
		}

		category := item.Category
		if category == "" {
			category = "uncategorized"
		}
		score := report.ByCategory[category]
		score.Total++
		if res.Match {
			score.Matched++
		}
		score.Rate = percentage(score.Matched, score.Total)
		report.ByCategory[category] = score

		report.Results = append(report.Results, res)
	}

	report.MatchRate = percentage(report.Matched, report.TotalQuestions)

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQuestions),
		zap.Int("matched", report.Matched),
		zap.Int("failed", report.Failed),
	)

	return report
}

type UsageReport struct {
	Conversions       int            `json:"conversions"`
	BySource          map[string]int `json:"by_source"`
	ByQuestionType    map[string]int `json:"by_question_type"`
	LLMShare          float64        `json:"llm_share"`
	RAGContextShare   float64        `json:"rag_context_share"`
	AvgLatencyMS      float64        `json:"avg_latency_ms"`
	AvgDomainTerms    float64        `json:"avg_domain_terms"`
	FeedbackCount     int            `json:"feedback_count"`
	HelpfulPercentage float64        `json:"helpful_percentage"`
	CorrectedSQLCount int            `json:"corrected_sql_count"`
	TopQuestionTypes  []string       `json:"top_question_types"`
}

// Usage summarizes the latest limit conversions and feedback entries.
func (e *Evaluator) Usage(limit int) (*UsageReport, error) {
	conversions, err := e.store.GetConversionHistory(limit)
	if err != nil {
		return nil, err
	}
	feedback, err := e.store.ListFeedback(limit)
	if err != nil {
		return nil, err
	}

	report := &UsageReport{
		Conversions:    len(conversions),
		BySource:       map[string]int{},
		ByQuestionType: map[string]int{},
		FeedbackCount:  len(feedback),
	}

	var latency, terms, withRAG int
	for _, c := range conversions {
		report.BySource[c.Source]++
		if c.QuestionType != "" {
			report.ByQuestionType[c.QuestionType]++
		}
		latency += c.LatencyMS
		terms += c.DomainTermsFound
		if c.RAGContextUsed {
			withRAG++
		}
	}
	if n := len(conversions); n > 0 {
		report.AvgLatencyMS = float64(latency) / float64(n)
		report.AvgDomainTerms = float64(terms) / float64(n)
	}
	report.LLMShare = percentage(report.BySource[text2sql.SourceLLM], len(conversions))
	report.RAGContextShare = percentage(withRAG, len(conversions))

	helpful := 0
	for _, f := range feedback {
		if f.Helpful {
			helpful++
		}
		if f.CorrectedSQL != "" {
			report.CorrectedSQLCount++
		}
	}
	report.HelpfulPercentage = percentage(helpful, len(feedback))

	report.TopQuestionTypes = make([]string, 0, len(report.ByQuestionType))
	for qt := range report.ByQuestionType {
		report.TopQuestionTypes = append(report.TopQuestionTypes, qt)
	}
	sort.Slice(report.TopQuestionTypes, func(i, j int) bool {
		a, b := report.TopQuestionTypes[i], report.TopQuestionTypes[j]
		if report.ByQuestionType[a] != report.ByQuestionType[b] {
			return report.ByQuestionType[a] > report.ByQuestionType[b]
		}
		return a < b
	})

	return report, nil
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func GenerateReport(report *DatasetReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Evaluation Report
=================

Total Questions: %d
Matched: %d (%.1f%%)
Failed: %d

Sources:
- LLM: %d
- Rule based: %d
`,
		report.TotalQuestions,
		report.Matched, report.MatchRate,
		report.Failed,
		report.LLMAnswered,
		report.RuleBasedAnswers,
	)

	categories := make([]string, 0, len(report.ByCategory))
	for c := range report.ByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	if len(categories) > 0 {
		b.WriteString("\nBy Category:\n")
		for _, c := range categories {
			s := report.ByCategory[c]
			fmt.Fprintf(&b, "- %s: %d/%d (%.1f%%)\n", c, s.Matched, s.Total, s.Rate)
		}
	}
	return b.String()
}
