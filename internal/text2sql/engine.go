package text2sql

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/kg/neo4j"
	"github.com/kcb-text2sql/backend/internal/metrics"
	"github.com/kcb-text2sql/backend/internal/preprocessing"
	"github.com/kcb-text2sql/backend/internal/storage/models"
	"github.com/kcb-text2sql/backend/pkg/logger"
	"github.com/kcb-text2sql/backend/pkg/utils"
)

const (
	SourceLLM       = "llm"
	SourceRuleBased = "rule_based"
)

var ErrEmptyQuestion = errors.New("질문이 필요합니다.")

var tracer = otel.Tracer("github.com/kcb-text2sql/backend/internal/text2sql")

type Generator interface {
	GenerateSQL(ctx context.Context, prompt string) (string, error)
}

type Retriever interface {
	Context(ctx context.Context, question, domain string) (string, int, error)
}

type SchemaGraph interface {
	RelatedColumns(ctx context.Context, terms []string) ([]neo4j.ColumnFact, error)
}

type Preprocessor interface {
	Preprocess(query string) *preprocessing.Result
}

type History interface {
	InsertConversion(record *models.Conversion) error
}

type Cache interface {
	GetConversion(ctx context.Context, key string, response any) (bool, error)
	SetConversion(ctx context.Context, key string, response any) error
}

// Engine turns a question into SQL. Only the preprocessor is required;
// every other dependency is optional and its failures degrade the answer
// instead of failing it.
type Engine struct {
	pre       Preprocessor
	generator Generator
	retriever Retriever
	graph     SchemaGraph
	history   History
	cache     Cache
	metadata  Metadata
	now       func() time.Time
}

type Option func(*Engine)

func WithGenerator(g Generator) Option     { return func(e *Engine) { e.generator = g } }
func WithRetriever(r Retriever) Option     { return func(e *Engine) { e.retriever = r } }
func WithSchemaGraph(g SchemaGraph) Option { return func(e *Engine) { e.graph = g } }
func WithHistory(h History) Option         { return func(e *Engine) { e.history = h } }
func WithCache(c Cache) Option             { return func(e *Engine) { e.cache = c } }
func WithMetadata(m Metadata) Option       { return func(e *Engine) { e.metadata = m } }

func NewEngine(pre Preprocessor, opts ...Option) *Engine {
	e := &Engine{
		pre:      pre,
		metadata: DefaultMetadata(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Metadata() Metadata { return e.metadata }

func (e *Engine) LLMEnabled() bool { return e.generator != nil }

type Stage string

const (
	StagePreprocessing Stage = "preprocessing"
	StageRetrieving    Stage = "retrieving"
	StageGenerating    Stage = "generating"
)

type ConvertRequest struct {
	Question  string `json:"question"`
	RAGDomain string `json:"rag_domain,omitempty"`
	// OnStage is called synchronously before each stage that runs.
	OnStage func(Stage) `json:"-"`
}

func (r ConvertRequest) stage(s Stage) {
	if r.OnStage != nil {
		r.OnStage(s)
	}
}

type ConvertResponse struct {
	ID             string            `json:"id"`
	Question       string            `json:"question"`
	SQL            string            `json:"sql"`
	Source         string            `json:"source"`
	Timestamp      time.Time         `json:"timestamp"`
	RAGContextUsed bool              `json:"rag_context_used"`
	Cached         bool              `json:"cached"`
	Preprocessing  PreprocessingInfo `json:"preprocessing"`
	LatencyMS      int               `json:"latency_ms"`
}

// PreprocessingInfo reports the preprocessing run alongside the SQL.
type PreprocessingInfo struct {
	AgentType string
	Available bool
	Result    *preprocessing.Result
	Reason    string
}

func (p PreprocessingInfo) MarshalJSON() ([]byte, error) {
	if p.Result == nil {
		return json.Marshal(map[string]any{
			"agent_type": p.AgentType,
			"available":  p.Available,
			"reason":     p.Reason,
		})
	}
	if p.Result.Failed() {
		return json.Marshal(map[string]any{
			"agent_type": p.AgentType,
			"available":  p.Available,
			"error":      p.Result.Error,
		})
	}

	raw, err := json.Marshal(p.Result)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["preprocessing_metadata"] = fields["metadata"]
	delete(fields, "metadata")

	out := make(map[string]any, len(fields)+6)
	for k, v := range fields {
		out[k] = v
	}
	md := p.Result.Metadata
	out["agent_type"] = p.AgentType
	out["available"] = p.Available
	out["domain_terms_found"] = md.DomainTermsFound
	out["clauses_count"] = md.ClausesCount
	out["reasoning_steps"] = md.ReasoningSteps
	out["sql_patterns_mapped"] = md.SQLPatternsMapped
	return json.Marshal(out)
}

type cachedConversion struct {
	SQL            string `json:"sql"`
	Source         string `json:"source"`
	RAGContextUsed bool   `json:"rag_context_used"`
}

// Convert answers one question. The only error it returns is
// ErrEmptyQuestion; every downstream failure falls back to rules.
func (e *Engine) Convert(ctx context.Context, req ConvertRequest) (*ConvertResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	start := e.now()
	id := uuid.New().String()

	ctx, span := tracer.Start(ctx, "text2sql.Convert", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String("conversion.id", id),
		attribute.String("conversion.rag_domain", req.RAGDomain),
	)

	logger.Info("Converting question",
		zap.String("conversion_id", id),
		zap.String("question", question),
		zap.String("rag_domain", req.RAGDomain),
	)

	req.stage(StagePreprocessing)
	pre := e.preprocess(ctx, question)

	resp := &ConvertResponse{
		ID:            id,
		Question:      question,
		Preprocessing: PreprocessingInfo{AgentType: "hybrid", Available: true, Result: pre},
	}

	key := utils.HashKey(question, req.RAGDomain)
	if hit, ok := e.lookupCache(ctx, key); ok {
		resp.SQL = hit.SQL
		resp.Source = hit.Source
		resp.RAGContextUsed = hit.RAGContextUsed
		resp.Cached = true
		e.finish(resp, pre, req.RAGDomain, start)
		return resp, nil
	}

	if e.retriever != nil {
		req.stage(StageRetrieving)
	}
	ragContext := e.retrieve(ctx, question, req.RAGDomain)
	resp.RAGContextUsed = ragContext != ""

	prompt := BuildPrompt(PromptInput{
		Question:      question,
		Metadata:      e.metadata,
		Preprocessing: pre,
		Facts:         e.schemaFacts(ctx, pre),
		RAGContext:    ragContext,
	})

	req.stage(StageGenerating)
	resp.SQL, resp.Source = e.generate(ctx, question, prompt)
	span.SetAttributes(attribute.String("conversion.source", resp.Source))

	if e.cache != nil {
		entry := cachedConversion{SQL: resp.SQL, Source: resp.Source, RAGContextUsed: resp.RAGContextUsed}
		if err := e.cache.SetConversion(ctx, key, entry); err != nil {
			logger.Warn("Failed to cache conversion", zap.Error(err))
		}
	}

	e.finish(resp, pre, req.RAGDomain, start)
	return resp, nil
}

func (e *Engine) preprocess(ctx context.Context, question string) *preprocessing.Result {
	_, span := tracer.Start(ctx, "text2sql.Preprocess")
	defer span.End()

	res := e.pre.Preprocess(question)
	if res.Failed() {
		span.SetStatus(codes.Error, res.Error)
		logger.Warn("Preprocessing failed", zap.String("error", res.Error))
		return res
	}
	span.SetAttributes(
		attribute.Int("preprocessing.domain_terms", res.Metadata.DomainTermsFound),
		attribute.Int("preprocessing.clauses", res.Metadata.ClausesCount),
	)
	return res
}

func (e *Engine) lookupCache(ctx context.Context, key string) (cachedConversion, bool) {
	var hit cachedConversion
	if e.cache == nil {
		return hit, false
	}
	found, err := e.cache.GetConversion(ctx, key, &hit)
	if err != nil {
		logger.Warn("Conversion cache lookup failed", zap.Error(err))
		return hit, false
	}
	return hit, found
}

func (e *Engine) retrieve(ctx context.Context, question, domain string) string {
	if e.retriever == nil {
		return ""
	}
	ctx, span := tracer.Start(ctx, "text2sql.RetrieveContext")
	defer span.End()

	text, n, err := e.retriever.Context(ctx, question, domain)
	if err != nil {
		span.RecordError(err)
		logger.Warn("RAG retrieval failed", zap.String("domain", domain), zap.Error(err))
		return ""
	}
	span.SetAttributes(attribute.Int("rag.chunks", n))
	return text
}

func (e *Engine) schemaFacts(ctx context.Context, pre *preprocessing.Result) []neo4j.ColumnFact {
	if e.graph == nil || pre.Failed() || len(pre.Entities.DomainTerms) == 0 {
		return nil
	}
	terms := make([]string, 0, len(pre.Entities.DomainTerms))
	for _, t := range pre.Entities.DomainTerms {
		terms = append(terms, t.Term)
	}

	ctx, span := tracer.Start(ctx, "text2sql.SchemaFacts")
	defer span.End()

	facts, err := e.graph.RelatedColumns(ctx, terms)
	if err != nil {
		span.RecordError(err)
		logger.Warn("Schema graph lookup failed", zap.Error(err))
		return nil
	}
	return facts
}

func (e *Engine) generate(ctx context.Context, question, prompt string) (sql, source string) {
	if e.generator == nil {
		return RuleBasedSQL(question), SourceRuleBased
	}

	ctx, span := tracer.Start(ctx, "text2sql.GenerateSQL")
	defer span.End()

	reply, err := e.generator.GenerateSQL(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		metrics.LLMFallbackTotal.WithLabelValues("error").Inc()
		logger.Warn("LLM conversion failed, using rules", zap.Error(err))
		return RuleBasedSQL(question), SourceRuleBased
	}

	sql = ExtractSQL(reply)
	if !LooksLikeSQL(sql) {
		metrics.LLMFallbackTotal.WithLabelValues("invalid_sql").Inc()
		logger.Warn("LLM reply is not SQL, using rules", zap.String("reply", reply))
		return RuleBasedSQL(question), SourceRuleBased
	}
	return sql, SourceLLM
}

func (e *Engine) finish(resp *ConvertResponse, pre *preprocessing.Result, domain string, start time.Time) {
	now := e.now()
	elapsed := now.Sub(start)
	resp.Timestamp = now
	resp.LatencyMS = int(elapsed.Milliseconds())

	metrics.ConversionTotal.WithLabelValues(resp.Source).Inc()
	metrics.ConversionDuration.WithLabelValues(resp.Source).Observe(elapsed.Seconds())

	if e.history != nil {
		record := &models.Conversion{
			ID:               resp.ID,
			Question:         resp.Question,
			SQL:              resp.SQL,
			Source:           resp.Source,
			RAGDomain:        domain,
			RAGContextUsed:   resp.RAGContextUsed,
			QuestionType:     string(pre.QuestionType()),
			DomainTermsFound: pre.Metadata.DomainTermsFound,
			ClausesCount:     pre.Metadata.ClausesCount,
			LatencyMS:        resp.LatencyMS,
			CreatedAt:        now,
		}
		if err := e.history.InsertConversion(record); err != nil {
			logger.Warn("Failed to record conversion", zap.String("conversion_id", resp.ID), zap.Error(err))
		}
	}

	logger.Info("Question converted",
		zap.String("conversion_id", resp.ID),
		zap.String("source", resp.Source),
		zap.Bool("cached", resp.Cached),
		zap.Bool("rag_context_used", resp.RAGContextUsed),
		zap.Int("latency_ms", resp.LatencyMS),
	)
}
