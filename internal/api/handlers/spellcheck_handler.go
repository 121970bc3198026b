package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/cache"
	"github.com/clinscribe/backend/internal/spellcheck"
	"github.com/clinscribe/backend/pkg/logger"
)

type SpellCheckHandler struct {
	engine *spellcheck.Engine
	store  *cache.Store
}

func NewSpellCheckHandler(engine *spellcheck.Engine, store *cache.Store) *SpellCheckHandler {
	return &SpellCheckHandler{engine: engine, store: store}
}

func (h *SpellCheckHandler) CheckText(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Text is required",
		})
	}

	started := time.Now()
	batch := h.engine.CheckBatch(c.Context(), req.Text)
	h.store.LogUsage("/api/v1/spellcheck", "check_text", false, time.Since(started), nil)

	return c.JSON(fiber.Map{
		"results":           batch.Results,
		"unique_terms":      batch.UniqueTerms,
		"unique_count":      batch.UniqueCount,
		"total_occurrences": batch.TotalOccurrences,
	})
}

func (h *SpellCheckHandler) CheckTerm(c *fiber.Ctx) error {
	var req struct {
		Term string `json:"term"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Term == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Term is required",
		})
	}

	started := time.Now()
	result := h.engine.Check(c.Context(), req.Term, false)
	h.store.LogUsage("/api/v1/spellcheck/term", "check_term", result.Source == "dynamic_list", time.Since(started), nil)

	return c.JSON(result)
}

func (h *SpellCheckHandler) AddTerm(c *fiber.Ctx) error {
	var req struct {
		Term string `json:"term"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Term == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Term is required",
		})
	}

	added := h.engine.AddTerm(req.Term)
	return c.JSON(fiber.Map{
		"term":  req.Term,
		"added": added,
	})
}

func (h *SpellCheckHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(h.engine.Stats())
}

func (h *SpellCheckHandler) SetMode(c *fiber.Ctx) error {
	var req struct {
		LLMOnly *bool `json:"llm_only"`
	}

	if err := c.BodyParser(&req); err != nil || req.LLMOnly == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "llm_only is required",
		})
	}

	h.engine.SetLLMOnly(*req.LLMOnly)
	return c.JSON(fiber.Map{
		"llm_only": *req.LLMOnly,
	})
}
