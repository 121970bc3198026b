package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/cache"
	"github.com/clinscribe/backend/internal/soap"
	"github.com/clinscribe/backend/pkg/logger"
)

type SOAPHandler struct {
	generator *soap.Generator
	store     *cache.Store
}

func NewSOAPHandler(generator *soap.Generator, store *cache.Store) *SOAPHandler {
	return &SOAPHandler{generator: generator, store: store}
}

func (h *SOAPHandler) GenerateNote(c *fiber.Ctx) error {
	var req struct {
		Transcript string `json:"transcript"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Transcript == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Transcript is required",
		})
	}

	started := time.Now()
	sections, err := h.generator.Generate(c.Context(), req.Transcript)
	h.store.LogUsage("/api/v1/soap", "generate", false, time.Since(started), err)
	if err != nil {
		logger.Error("Failed to generate SOAP note", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate SOAP note",
		})
	}

	return c.JSON(fiber.Map{
		"soap_note": sections,
		"complete":  soap.IsComplete(sections),
	})
}
