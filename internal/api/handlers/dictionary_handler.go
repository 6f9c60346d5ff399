package handlers

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/dictionary"
	"github.com/kcb-text2sql/backend/internal/metrics"
	"github.com/kcb-text2sql/backend/pkg/logger"
)

type DictionaryStore interface {
	Snapshot() *dictionary.Snapshot
	Reload() (dictionary.ReloadResult, error)
	Backup() (dictionary.BackupResult, error)
	AddTerm(category, term string, info dictionary.TermInfo) error
	UpdateTerm(category, term string, info dictionary.TermInfo) error
	DeleteTerm(category, term string) (dictionary.TermInfo, error)
	AddPattern(category, korean, sql string) error
	UpdatePattern(category, korean, sql string) (string, error)
	DeletePattern(category, korean string) (string, error)
	Search(query string) []dictionary.SearchResult
	Stats() dictionary.Stats
	Export() dictionary.Export
	Import(req dictionary.ImportRequest) error
	Rejected() []dictionary.Rejected
}

type DictionaryHandler struct {
	store DictionaryStore
}

func NewDictionaryHandler(store DictionaryStore) *DictionaryHandler {
	return &DictionaryHandler{store: store}
}

// dictionaryError maps store errors onto HTTP statuses and records the
// outcome of op.
func dictionaryError(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, dictionary.ErrCategoryNotFound),
		errors.Is(err, dictionary.ErrTermNotFound),
		errors.Is(err, dictionary.ErrPatternNotFound):
		metrics.DictionaryMutations.WithLabelValues(op, "not_found").Inc()
		return fail(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, dictionary.ErrInvalidEntry):
		metrics.DictionaryMutations.WithLabelValues(op, "invalid").Inc()
		return fail(c, fiber.StatusBadRequest, err.Error())
	default:
		metrics.DictionaryMutations.WithLabelValues(op, "error").Inc()
		logger.Error("Dictionary operation failed", zap.String("op", op), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
}

func succeeded(op string) {
	metrics.DictionaryMutations.WithLabelValues(op, "ok").Inc()
}

// param decodes a path segment; Korean terms arrive percent-encoded.
func param(c *fiber.Ctx, key string) string {
	raw := c.Params(key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (h *DictionaryHandler) Status(c *fiber.Ctx) error {
	snap := h.store.Snapshot()
	return c.JSON(fiber.Map{
		"available": true,
		"stats":     h.store.Stats(),
		"version":   snap.Version(),
		"loaded_at": snap.BuiltAt(),
		"rejected":  h.store.Rejected(),
		"timestamp": time.Now(),
	})
}

func (h *DictionaryHandler) Reload(c *fiber.Ctx) error {
	res, err := h.store.Reload()
	if err != nil {
		return dictionaryError(c, "reload", err)
	}
	succeeded("reload")
	return c.JSON(fiber.Map{
		"success":             true,
		"credit_terms_loaded": res.CreditTermsLoaded,
		"sql_patterns_loaded": res.SQLPatternsLoaded,
		"timestamp":           res.Timestamp,
	})
}

func (h *DictionaryHandler) Backup(c *fiber.Ctx) error {
	res, err := h.store.Backup()
	if err != nil {
		return dictionaryError(c, "backup", err)
	}
	succeeded("backup")
	return c.JSON(fiber.Map{
		"success":          true,
		"backup_timestamp": res.Timestamp,
		"files":            res.Files,
	})
}

func (h *DictionaryHandler) ListTerms(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":      true,
		"credit_terms": h.store.Snapshot().Terms(),
		"timestamp":    time.Now(),
	})
}

func (h *DictionaryHandler) SearchTerms(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	q := strings.TrimSpace(question(c, req.Query))
	if q == "" {
		return fail(c, fiber.StatusBadRequest, "검색어가 필요합니다.")
	}

	results := h.store.Search(q)
	return c.JSON(fiber.Map{
		"success":     true,
		"query":       q,
		"results":     results,
		"total_found": len(results),
	})
}

type termRequest struct {
	Category string               `json:"category"`
	Term     string               `json:"term"`
	Info     *dictionary.TermInfo `json:"info"`
}

func (h *DictionaryHandler) AddTerm(c *fiber.Ctx) error {
	var req termRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Category == "" || req.Term == "" || req.Info == nil {
		return fail(c, fiber.StatusBadRequest, "카테고리, 용어, 정보가 모두 필요합니다.")
	}

	if err := h.store.AddTerm(req.Category, req.Term, *req.Info); err != nil {
		return dictionaryError(c, "add_term", err)
	}
	succeeded("add_term")
	return c.JSON(fiber.Map{
		"success":  true,
		"message":  "용어 '" + req.Term + "'이(가) 추가되었습니다.",
		"category": req.Category,
		"term":     req.Term,
	})
}

func (h *DictionaryHandler) UpdateTerm(c *fiber.Ctx) error {
	category, term := param(c, "category"), param(c, "term")

	var req struct {
		Info *dictionary.TermInfo `json:"info"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Info == nil {
		return fail(c, fiber.StatusBadRequest, "수정할 정보가 필요합니다.")
	}

	if err := h.store.UpdateTerm(category, term, *req.Info); err != nil {
		return dictionaryError(c, "update_term", err)
	}
	succeeded("update_term")
	return c.JSON(fiber.Map{
		"success":  true,
		"message":  "용어 '" + term + "'이(가) 수정되었습니다.",
		"category": category,
		"term":     term,
	})
}

func (h *DictionaryHandler) DeleteTerm(c *fiber.Ctx) error {
	category, term := param(c, "category"), param(c, "term")

	deleted, err := h.store.DeleteTerm(category, term)
	if err != nil {
		return dictionaryError(c, "delete_term", err)
	}
	succeeded("delete_term")
	return c.JSON(fiber.Map{
		"success":      true,
		"message":      "용어 '" + term + "'이(가) 삭제되었습니다.",
		"deleted_info": deleted,
	})
}

func (h *DictionaryHandler) ListPatterns(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":      true,
		"sql_patterns": h.store.Snapshot().Patterns(),
		"timestamp":    time.Now(),
	})
}

func (h *DictionaryHandler) AddPattern(c *fiber.Ctx) error {
	var req struct {
		Category string `json:"category"`
		Korean   string `json:"korean"`
		SQL      string `json:"sql"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Category == "" || req.Korean == "" || req.SQL == "" {
		return fail(c, fiber.StatusBadRequest, "카테고리, 한국어, SQL이 모두 필요합니다.")
	}

	if err := h.store.AddPattern(req.Category, req.Korean, req.SQL); err != nil {
		return dictionaryError(c, "add_pattern", err)
	}
	succeeded("add_pattern")
	return c.JSON(fiber.Map{
		"success":  true,
		"message":  "SQL 패턴 '" + req.Korean + "'이(가) 추가되었습니다.",
		"category": req.Category,
		"korean":   req.Korean,
		"sql":      req.SQL,
	})
}

func (h *DictionaryHandler) UpdatePattern(c *fiber.Ctx) error {
	category, korean := param(c, "category"), param(c, "korean")

	var req struct {
		SQL string `json:"sql"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.SQL == "" {
		return fail(c, fiber.StatusBadRequest, "수정할 SQL이 필요합니다.")
	}

	old, err := h.store.UpdatePattern(category, korean, req.SQL)
	if err != nil {
		return dictionaryError(c, "update_pattern", err)
	}
	succeeded("update_pattern")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "SQL 패턴 '" + korean + "'이(가) 수정되었습니다.",
		"old_sql": old,
		"new_sql": req.SQL,
	})
}

func (h *DictionaryHandler) DeletePattern(c *fiber.Ctx) error {
	category, korean := param(c, "category"), param(c, "korean")

	deleted, err := h.store.DeletePattern(category, korean)
	if err != nil {
		return dictionaryError(c, "delete_pattern", err)
	}
	succeeded("delete_pattern")
	return c.JSON(fiber.Map{
		"success":     true,
		"message":     "SQL 패턴 '" + korean + "'이(가) 삭제되었습니다.",
		"deleted_sql": deleted,
	})
}

func (h *DictionaryHandler) Export(c *fiber.Ctx) error {
	return c.JSON(h.store.Export())
}

func (h *DictionaryHandler) Import(c *fiber.Ctx) error {
	var req dictionary.ImportRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.CreditTerms == nil && req.SQLPatterns == nil {
		return fail(c, fiber.StatusBadRequest, "credit_terms 또는 sql_patterns가 필요합니다.")
	}

	if err := h.store.Import(req); err != nil {
		return dictionaryError(c, "import", err)
	}
	succeeded("import")
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "딕셔너리를 가져왔습니다.",
		"stats":     h.store.Stats(),
		"timestamp": time.Now(),
	})
}
