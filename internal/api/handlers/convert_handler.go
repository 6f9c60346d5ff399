package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/ingestion"
	"github.com/kcb-text2sql/backend/internal/storage/models"
	"github.com/kcb-text2sql/backend/internal/storage/sqlite"
	"github.com/kcb-text2sql/backend/internal/text2sql"
	"github.com/kcb-text2sql/backend/pkg/logger"
)

type Converter interface {
	Convert(ctx context.Context, req text2sql.ConvertRequest) (*text2sql.ConvertResponse, error)
	Metadata() text2sql.Metadata
	LLMEnabled() bool
}

type HistoryStore interface {
	GetConversionHistory(limit int) ([]models.Conversion, error)
	GetConversion(id string) (*models.Conversion, error)
	StoreFeedback(feedback *models.Feedback) error
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type ConvertHandler struct {
	engine  Converter
	history HistoryStore
}

func NewConvertHandler(engine Converter, history HistoryStore) *ConvertHandler {
	return &ConvertHandler{
		engine:  engine,
		history: history,
	}
}

func (h *ConvertHandler) Convert(c *fiber.Ctx) error {
	var req text2sql.ConvertRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Question = question(c, req.Question)
	req.RAGDomain = strings.TrimSpace(req.RAGDomain)

	if req.RAGDomain != "" && !ingestion.ValidDomain(req.RAGDomain) {
		return fail(c, fiber.StatusBadRequest, "알 수 없는 RAG 도메인입니다: "+req.RAGDomain)
	}

	resp, err := h.engine.Convert(c.UserContext(), req)
	if errors.Is(err, text2sql.ErrEmptyQuestion) {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		logger.Error("Failed to convert question", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to convert question")
	}

	return c.JSON(resp)
}

func (h *ConvertHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.history.GetConversionHistory(limit)
	if err != nil {
		logger.Error("Failed to load history", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to load history")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"history": records,
		"count":   len(records),
	})
}

func (h *ConvertHandler) GetConversion(c *fiber.Ctx) error {
	record, err := h.history.GetConversion(c.Params("id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "conversion not found")
	}
	if err != nil {
		logger.Error("Failed to load conversion", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to load conversion")
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"conversion": record,
	})
}

func (h *ConvertHandler) Feedback(c *fiber.Ctx) error {
	id := c.Params("id")

	var req struct {
		Helpful      bool   `json:"helpful"`
		CorrectedSQL string `json:"corrected_sql"`
		Comment      string `json:"comment"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if _, err := h.history.GetConversion(id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "conversion not found")
		}
		logger.Error("Failed to load conversion", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to store feedback")
	}

	feedback := &models.Feedback{
		ConversionID: id,
		Helpful:      req.Helpful,
		CorrectedSQL: strings.TrimSpace(req.CorrectedSQL),
		Comment:      strings.TrimSpace(req.Comment),
		CreatedAt:    time.Now(),
	}
	if err := h.history.StoreFeedback(feedback); err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to store feedback")
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"feedback": feedback,
	})
}

func (h *ConvertHandler) Metadata(c *fiber.Ctx) error {
	return c.JSON(h.engine.Metadata())
}

func (h *ConvertHandler) SampleData(c *fiber.Ctx) error {
	return c.JSON(text2sql.DefaultSampleData())
}
