package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/evaluation"
	"github.com/kcb-text2sql/backend/pkg/logger"
)

const maxDatasetItems = 200

type Evaluator interface {
	RunDataset(ctx context.Context, dataset *evaluation.Dataset) *evaluation.DatasetReport
	Usage(limit int) (*evaluation.UsageReport, error)
}

type EvaluationHandler struct {
	evaluator Evaluator
}

func NewEvaluationHandler(evaluator Evaluator) *EvaluationHandler {
	return &EvaluationHandler{evaluator: evaluator}
}

func (h *EvaluationHandler) Usage(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", maxHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	report, err := h.evaluator.Usage(limit)
	if err != nil {
		logger.Error("Failed to build usage report", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to build usage report")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"report":  report,
	})
}

func (h *EvaluationHandler) Run(c *fiber.Ctx) error {
	dataset, err := evaluation.LoadDatasetFromJSON(c.Body())
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if len(dataset.Items) == 0 {
		return fail(c, fiber.StatusBadRequest, "dataset has no items")
	}
	if len(dataset.Items) > maxDatasetItems {
		return fail(c, fiber.StatusRequestEntityTooLarge, "dataset is too large")
	}

	report := h.evaluator.RunDataset(c.UserContext(), dataset)
	return c.JSON(fiber.Map{
		"success": true,
		"report":  report,
		"summary": evaluation.GenerateReport(report),
	})
}
