package ingestion

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/metrics"
	"github.com/kcb-text2sql/backend/internal/storage/models"
	"github.com/kcb-text2sql/backend/internal/vector/zilliz"
	"github.com/kcb-text2sql/backend/pkg/logger"
)

type Domain struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var domains = []Domain{
	{Key: "personal_credit", Name: "개인 신용정보", Description: "개인 고객의 신용평가 기준, 점수 산정 방식, 대출 심사 자료"},
	{Key: "corporate_credit", Name: "기업 신용정보", Description: "기업 고객의 재무 분석, 신용등급 기준, 여신 심사 자료"},
	{Key: "policy_regulation", Name: "평가 정책 및 규제", Description: "신용평가 정책, 감독 규정, 내부 운영 지침"},
}

func Domains() []Domain {
	out := make([]Domain, len(domains))
	copy(out, domains)
	return out
}

func ValidDomain(key string) bool {
	for _, d := range domains {
		if d.Key == key {
			return true
		}
	}
	return false
}

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	Insert(ctx context.Context, chunks []zilliz.DocumentChunk) error
	Search(ctx context.Context, embedding []float32, topK int, domain string) ([]zilliz.SearchResult, error)
	DeleteDocument(ctx context.Context, domain, filename string) error
}

type Registry interface {
	SaveRAGDocument(doc *models.RAGDocument, chunks []models.RAGChunk) error
	ListRAGDocuments(domain string) ([]models.RAGDocument, error)
	DeleteRAGDocument(domain, filename string) error
	RAGStats() ([]models.DomainStats, error)
}

// EmbeddingCache is optional; a nil cache embeds every question.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, text string, embedding []float32) error
}

type Options struct {
	UploadDir    string
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

type Processor struct {
	registry Registry
	vectors  VectorStore
	embedder Embedder
	cache    EmbeddingCache
	fs       afero.Fs
	opts     Options
	now      func() time.Time
}

type ProcessResult struct {
	Domain        string `json:"domain"`
	Filename      string `json:"filename"`
	ChunksCreated int    `json:"chunks_created"`
	SizeBytes     int64  `json:"size_bytes"`
	ContentHash   string `json:"content_hash"`
}

func NewProcessor(registry Registry, vectors VectorStore, embedder Embedder, fs afero.Fs, opts Options) *Processor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 200
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &Processor{
		registry: registry,
		vectors:  vectors,
		embedder: embedder,
		fs:       fs,
		opts:     opts,
		now:      time.Now,
	}
}

func (p *Processor) WithEmbeddingCache(cache EmbeddingCache) *Processor {
	p.cache = cache
	return p
}

// ProcessDocument stores an uploaded file under its domain folder, replaces
// any earlier version in the vector store and records it in the registry.
func (p *Processor) ProcessDocument(ctx context.Context, domain, filename string, content []byte) (*ProcessResult, error) {
	if !ValidDomain(domain) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	filename, err := CleanFilename(filename)
	if err != nil {
		return nil, err
	}

	logger.Info("Processing document", zap.String("domain", domain), zap.String("filename", filename))

	text, err := ExtractText(filename, content)
	if err != nil {
		return nil, err
	}

	if err := p.saveUpload(domain, filename, content); err != nil {
		return nil, err
	}

	chunks := ChunkText(text, p.opts.ChunkSize, p.opts.ChunkOverlap)
	logger.Info("Document chunked", zap.Int("chunks", len(chunks)))

	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	if err := p.vectors.DeleteDocument(ctx, domain, filename); err != nil {
		logger.Warn("Failed to remove previous chunks", zap.String("filename", filename), zap.Error(err))
	}

	now := p.now()
	docID := DocumentID(domain, filename)
	vectorChunks := make([]zilliz.DocumentChunk, 0, len(chunks))
	dbChunks := make([]models.RAGChunk, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := ChunkID(domain, filename, i)
		vectorChunks = append(vectorChunks, zilliz.DocumentChunk{
			ID:          chunkID,
			Embedding:   embeddings[i],
			Text:        chunkText,
			Domain:      domain,
			Filename:    filename,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Timestamp:   now,
		})
		dbChunks = append(dbChunks, models.RAGChunk{
			ID:          chunkID,
			DocID:       docID,
			ChunkIndex:  i,
			Text:        chunkText,
			EmbeddingID: chunkID,
			CreatedAt:   now,
		})
	}

	if err := p.vectors.Insert(ctx, vectorChunks); err != nil {
		return nil, fmt.Errorf("failed to insert into vector DB: %w", err)
	}

	doc := &models.RAGDocument{
		ID:          docID,
		Domain:      domain,
		Filename:    filename,
		SizeBytes:   int64(len(content)),
		ContentHash: generateID(content),
		ChunkCount:  len(chunks),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.registry.SaveRAGDocument(doc, dbChunks); err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	metrics.DocumentsProcessed.WithLabelValues(domain).Inc()
	logger.Info("Document processed successfully",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)),
	)

	return &ProcessResult{
		Domain:        domain,
		Filename:      filename,
		ChunksCreated: len(chunks),
		SizeBytes:     doc.SizeBytes,
		ContentHash:   doc.ContentHash,
	}, nil
}

func (p *Processor) saveUpload(domain, filename string, content []byte) error {
	if p.fs == nil {
		return nil
	}
	dir := path.Join(p.opts.UploadDir, domain)
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := afero.WriteFile(p.fs, path.Join(dir, filename), content, 0o644); err != nil {
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return nil
}

// ProcessExisting ingests every supported file already present under the
// upload folder. Individual failures are logged and counted, not returned.
func (p *Processor) ProcessExisting(ctx context.Context) (processed, failed int, err error) {
	if p.fs == nil {
		return 0, 0, nil
	}
	for _, d := range domains {
		dir := path.Join(p.opts.UploadDir, d.Key)
		infos, err := afero.ReadDir(p.fs, dir)
		if err != nil {
			if exists, _ := afero.DirExists(p.fs, dir); !exists {
				continue
			}
			return processed, failed, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, info := range infos {
			if info.IsDir() || !supported(info.Name()) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return processed, failed, err
			}
			content, err := afero.ReadFile(p.fs, path.Join(dir, info.Name()))
			if err == nil {
				_, err = p.ProcessDocument(ctx, d.Key, info.Name(), content)
			}
			if err != nil {
				failed++
				logger.Warn("Failed to ingest existing document",
					zap.String("domain", d.Key),
					zap.String("filename", info.Name()),
					zap.Error(err),
				)
				continue
			}
			processed++
		}
	}
	logger.Info("Existing documents ingested", zap.Int("processed", processed), zap.Int("failed", failed))
	return processed, failed, nil
}

func supported(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Retrieve returns the chunks nearest to question. An empty domain searches
// every domain.
func (p *Processor) Retrieve(ctx context.Context, question, domain string, topK int) ([]zilliz.SearchResult, error) {
	if domain != "" && !ValidDomain(domain) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	if topK <= 0 {
		topK = p.opts.TopK
	}

	embedding, err := p.questionEmbedding(ctx, question)
	if err != nil {
		return nil, err
	}

	results, err := p.vectors.Search(ctx, embedding, topK, domain)
	if err != nil {
		return nil, err
	}
	metrics.RAGResultsCount.Observe(float64(len(results)))
	return results, nil
}

func (p *Processor) questionEmbedding(ctx context.Context, question string) ([]float32, error) {
	if p.cache != nil {
		if emb, ok, err := p.cache.GetEmbedding(ctx, question); err == nil && ok {
			return emb, nil
		} else if err != nil {
			logger.Warn("Embedding cache lookup failed", zap.Error(err))
		}
	}

	emb, err := p.embedder.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.SetEmbedding(ctx, question, emb); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}
	return emb, nil
}

// Context formats the chunks retrieved for question as a prompt block and
// reports how many chunks it holds.
func (p *Processor) Context(ctx context.Context, question, domain string) (string, int, error) {
	results, err := p.Retrieve(ctx, question, domain, 0)
	if err != nil {
		return "", 0, err
	}
	return FormatContext(results), len(results), nil
}

func FormatContext(results []zilliz.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("[%s:%s - 청크 %d/%d - 유사도: %.3f]\n%s\n",
			r.Domain, r.Filename, r.ChunkIndex+1, r.TotalChunks, r.Similarity, r.Text))
	}
	return strings.Join(parts, "\n")
}

func (p *Processor) ListDocuments(domain string) ([]models.RAGDocument, error) {
	if !ValidDomain(domain) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return p.registry.ListRAGDocuments(domain)
}

// DeleteDocument removes a file's chunks, its registry entry and the stored
// upload. The registry's not-found error is passed through.
func (p *Processor) DeleteDocument(ctx context.Context, domain, filename string) error {
	if !ValidDomain(domain) {
		return fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	filename, err := CleanFilename(filename)
	if err != nil {
		return err
	}

	if err := p.registry.DeleteRAGDocument(domain, filename); err != nil {
		return err
	}
	if err := p.vectors.DeleteDocument(ctx, domain, filename); err != nil {
		return err
	}
	if p.fs != nil {
		if err := p.fs.Remove(path.Join(p.opts.UploadDir, domain, filename)); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
			logger.Warn("Failed to remove stored upload", zap.String("filename", filename), zap.Error(err))
		}
	}

	logger.Info("Document deleted", zap.String("domain", domain), zap.String("filename", filename))
	return nil
}

// Stats reports every known domain, including those without documents.
func (p *Processor) Stats() ([]models.DomainStats, error) {
	rows, err := p.registry.RAGStats()
	if err != nil {
		return nil, err
	}
	byDomain := make(map[string]models.DomainStats, len(rows))
	for _, r := range rows {
		byDomain[r.Domain] = r
	}
	out := make([]models.DomainStats, 0, len(domains))
	for _, d := range domains {
		s, ok := byDomain[d.Key]
		if !ok {
			s = models.DomainStats{Domain: d.Key}
		}
		out = append(out, s)
	}
	return out, nil
}

func DocumentID(domain, filename string) string {
	return domain + "_" + filename
}

func ChunkID(domain, filename string, index int) string {
	return fmt.Sprintf("%s_%s_%d", domain, filename, index)
}

func generateID(content []byte) string {
	hash := md5.Sum(content)
	return fmt.Sprintf("%x", hash)
}
