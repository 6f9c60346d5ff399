package preprocessing

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/dictionary"
	"github.com/kcb-text2sql/backend/internal/metrics"
)

// SnapshotSource hands out the dictionary view a run reads from.
// *dictionary.Store satisfies it.
type SnapshotSource interface {
	Snapshot() *dictionary.Snapshot
}

type Metadata struct {
	DomainTermsFound  int `json:"domain_terms_found"`
	ClausesCount      int `json:"clauses_count"`
	ReasoningSteps    int `json:"reasoning_steps"`
	SQLPatternsMapped int `json:"sql_patterns_mapped"`
}

// Result is the outcome of one preprocessing run. When Error is set only
// Error and OriginalQuery are meaningful.
type Result struct {
	OriginalQuery   string
	NormalizedQuery string
	MappedQuery     string
	Entities        Entities
	Clauses         []Clause
	ReasoningChain  []string
	SQLMappings     SQLMappings
	Metadata        Metadata
	Error           string
}

func (r Result) Failed() bool { return r.Error != "" }

func (r Result) QuestionType() QuestionType {
	if r.Failed() {
		return QuestionGeneral
	}
	return ClassifyQuestion(r.NormalizedQuery)
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error         string `json:"error"`
			OriginalQuery string `json:"original_query"`
		}{r.Error, r.OriginalQuery})
	}

	clauses := r.Clauses
	if clauses == nil {
		clauses = []Clause{}
	}
	chain := r.ReasoningChain
	if chain == nil {
		chain = []string{}
	}
	return json.Marshal(struct {
		OriginalQuery   string      `json:"original_query"`
		NormalizedQuery string      `json:"normalized_query"`
		MappedQuery     string      `json:"mapped_query"`
		Entities        Entities    `json:"entities"`
		Clauses         []Clause    `json:"clauses"`
		ReasoningChain  []string    `json:"reasoning_chain"`
		SQLMappings     SQLMappings `json:"sql_mappings"`
		Metadata        Metadata    `json:"metadata"`
	}{r.OriginalQuery, r.NormalizedQuery, r.MappedQuery, r.Entities, clauses, chain, r.SQLMappings, r.Metadata})
}

type Preprocessor struct {
	source SnapshotSource
	logger *zap.Logger
}

func NewPreprocessor(source SnapshotSource, logger *zap.Logger) *Preprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preprocessor{source: source, logger: logger}
}

// Preprocess runs the whole pipeline against the current dictionary
// snapshot. It never panics; failures come back as a Result with Error set.
func (p *Preprocessor) Preprocess(query string) (res *Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("preprocessing panicked",
				zap.String("query", query),
				zap.Any("panic", rec))
			res = errorResult(query, fmt.Errorf("%v", rec))
		}
		metrics.PreprocessDuration.Observe(time.Since(start).Seconds())
		if res.Failed() {
			metrics.PreprocessErrors.Inc()
		}
	}()

	snap := p.source.Snapshot()
	if snap == nil {
		return errorResult(query, fmt.Errorf("dictionary not loaded"))
	}
	res = Run(query, snap)

	metrics.ClausesPerQuery.Observe(float64(len(res.Clauses)))
	for _, c := range res.Clauses {
		metrics.ClauseConfidence.Observe(c.Confidence)
	}
	p.logger.Debug("preprocessed query",
		zap.Uint64("dictionary_version", snap.Version()),
		zap.Int("clauses", res.Metadata.ClausesCount),
		zap.Int("domain_terms", res.Metadata.DomainTermsFound),
		zap.Int("sql_patterns", res.Metadata.SQLPatternsMapped))
	return res
}

// Run executes the pipeline stages against a fixed snapshot.
func Run(query string, snap *dictionary.Snapshot) *Result {
	terms := snap.Terms()

	normalized := Normalize(query)
	mapped := MapDomainTerms(normalized, terms)
	entities := ExtractEntities(query, normalized, terms)
	clauses := Segment(normalized, snap)
	chain := BuildReasoning(normalized, entities, clauses)
	mappings := MapSQLPatterns(normalized, snap.Patterns())

	return &Result{
		OriginalQuery:   query,
		NormalizedQuery: normalized,
		MappedQuery:     mapped,
		Entities:        entities,
		Clauses:         clauses,
		ReasoningChain:  chain,
		SQLMappings:     mappings,
		Metadata: Metadata{
			DomainTermsFound:  len(entities.DomainTerms),
			ClausesCount:      len(clauses),
			ReasoningSteps:    len(chain),
			SQLPatternsMapped: mappings.Total(),
		},
	}
}

func errorResult(query string, err error) *Result {
	return &Result{
		OriginalQuery: query,
		Error:         "전처리 중 오류 발생: " + err.Error(),
	}
}
