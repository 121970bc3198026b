package handlers

import (
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/cache"
	"github.com/clinscribe/backend/internal/transcription"
	"github.com/clinscribe/backend/pkg/logger"
)

type TranscribeHandler struct {
	svc   *transcription.Service
	store *cache.Store
}

func NewTranscribeHandler(svc *transcription.Service, store *cache.Store) *TranscribeHandler {
	return &TranscribeHandler{svc: svc, store: store}
}

func (h *TranscribeHandler) Transcribe(c *fiber.Ctx) error {
	if h.svc == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Transcription is not configured",
		})
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Audio file is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read audio file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read audio file",
		})
	}

	language := c.FormValue("language", "en")

	started := time.Now()
	text, err := h.svc.Transcribe(c.Context(), fileHeader.Filename, data, language)
	h.store.LogUsage("/api/v1/transcribe", "transcribe", false, time.Since(started), err)
	if err != nil {
		logger.Error("Transcription failed",
			zap.String("filename", fileHeader.Filename),
			zap.Error(err),
		)
		status := fiber.StatusInternalServerError
		if errors.Is(err, transcription.ErrEmptyAudio) || errors.Is(err, transcription.ErrTooLarge) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": "Failed to transcribe audio",
		})
	}

	return c.JSON(fiber.Map{
		"transcript": text,
		"filename":   fileHeader.Filename,
		"language":   language,
	})
}
