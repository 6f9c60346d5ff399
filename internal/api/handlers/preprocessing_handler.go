package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kcb-text2sql/backend/internal/preprocessing"
)

type Preprocessor interface {
	Preprocess(query string) *preprocessing.Result
}

type PreprocessingHandler struct {
	pre Preprocessor
}

func NewPreprocessingHandler(pre Preprocessor) *PreprocessingHandler {
	return &PreprocessingHandler{pre: pre}
}

func (h *PreprocessingHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"available":  h.pre != nil,
		"agent_type": "hybrid",
		"components": []string{"normalizer", "domain_mapper", "entity_extractor", "clause_segmenter", "reasoning_chain"},
	})
}

// Test runs the pipeline on a question and returns the full result. A
// failed run is still a 200: the failure is part of the result.
func (h *PreprocessingHandler) Test(c *fiber.Ctx) error {
	var req struct {
		Query    string `json:"query"`
		Question string `json:"question"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	raw := req.Question
	if raw == "" {
		raw = req.Query
	}
	q := question(c, raw)
	if strings.TrimSpace(q) == "" {
		return fail(c, fiber.StatusBadRequest, "query is required")
	}

	res := h.pre.Preprocess(q)
	return c.JSON(fiber.Map{
		"success": !res.Failed(),
		"result":  res,
	})
}
