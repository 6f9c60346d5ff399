package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/ingestion"
	"github.com/kcb-text2sql/backend/internal/storage/models"
	"github.com/kcb-text2sql/backend/internal/storage/sqlite"
	"github.com/kcb-text2sql/backend/internal/vector/zilliz"
	"github.com/kcb-text2sql/backend/pkg/logger"
)

type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, domain, filename string, content []byte) (*ingestion.ProcessResult, error)
	ListDocuments(domain string) ([]models.RAGDocument, error)
	DeleteDocument(ctx context.Context, domain, filename string) error
	Stats() ([]models.DomainStats, error)
	Retrieve(ctx context.Context, question, domain string, topK int) ([]zilliz.SearchResult, error)
}

// DocumentHandler serves the RAG document API. A nil processor means RAG
// is disabled; only the domain list is served then.
type DocumentHandler struct {
	processor DocumentProcessor
}

func NewDocumentHandler(processor DocumentProcessor) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
	}
}

func (h *DocumentHandler) disabled(c *fiber.Ctx) error {
	return fail(c, fiber.StatusServiceUnavailable, "RAG 시스템을 사용할 수 없습니다.")
}

func documentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ingestion.ErrUnknownDomain),
		errors.Is(err, ingestion.ErrInvalidFilename),
		errors.Is(err, ingestion.ErrUnsupportedType),
		errors.Is(err, ingestion.ErrEmptyDocument):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, sqlite.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "document not found")
	default:
		logger.Error("Document operation failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
}

func (h *DocumentHandler) Domains(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":   true,
		"domains":   ingestion.Domains(),
		"available": h.processor != nil,
	})
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	if h.processor == nil {
		return h.disabled(c)
	}

	var req struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Filename == "" || req.Content == "" {
		return fail(c, fiber.StatusBadRequest, "filename and content are required")
	}

	res, err := h.processor.ProcessDocument(c.UserContext(), c.Params("domain"), req.Filename, []byte(req.Content))
	if err != nil {
		return documentError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "문서가 성공적으로 처리되었습니다.",
		"result":  res,
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	if h.processor == nil {
		return h.disabled(c)
	}

	domains := []string{c.Query("domain")}
	if domains[0] == "" {
		domains = domains[:0]
		for _, d := range ingestion.Domains() {
			domains = append(domains, d.Key)
		}
	}

	docs := []models.RAGDocument{}
	for _, d := range domains {
		found, err := h.processor.ListDocuments(d)
		if err != nil {
			return documentError(c, err)
		}
		docs = append(docs, found...)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	if h.processor == nil {
		return h.disabled(c)
	}

	domain, filename := c.Params("domain"), param(c, "filename")
	if err := h.processor.DeleteDocument(c.UserContext(), domain, filename); err != nil {
		return documentError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"domain":   domain,
		"filename": filename,
	})
}

func (h *DocumentHandler) Stats(c *fiber.Ctx) error {
	if h.processor == nil {
		return h.disabled(c)
	}

	stats, err := h.processor.Stats()
	if err != nil {
		return documentError(c, err)
	}

	totalDocs, totalChunks := 0, 0
	for _, s := range stats {
		totalDocs += s.Documents
		totalChunks += s.TotalChunks
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"domains":      stats,
		"total_docs":   totalDocs,
		"total_chunks": totalChunks,
	})
}

func (h *DocumentHandler) Search(c *fiber.Ctx) error {
	if h.processor == nil {
		return h.disabled(c)
	}

	var req struct {
		Question string `json:"question"`
		Domain   string `json:"domain"`
		TopK     int    `json:"top_k"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	q := strings.TrimSpace(question(c, req.Question))
	if q == "" {
		return fail(c, fiber.StatusBadRequest, "질문이 필요합니다.")
	}
	if req.Domain != "" && !ingestion.ValidDomain(req.Domain) {
		return fail(c, fiber.StatusBadRequest, "알 수 없는 RAG 도메인입니다: "+req.Domain)
	}

	results, err := h.processor.Retrieve(c.UserContext(), q, req.Domain, req.TopK)
	if err != nil {
		return documentError(c, err)
	}

	out := make([]fiber.Map, 0, len(results))
	for _, r := range results {
		out = append(out, fiber.Map{
			"chunk_id":     r.ChunkID,
			"domain":       r.Domain,
			"filename":     r.Filename,
			"chunk_index":  r.ChunkIndex,
			"total_chunks": r.TotalChunks,
			"text":         r.Text,
			"similarity":   r.Similarity,
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"question": q,
		"results":  out,
		"context":  ingestion.FormatContext(results),
	})
}
