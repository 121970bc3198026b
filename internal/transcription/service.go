package transcription

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/clinscribe/backend/pkg/logger"
)

// maxAudioBytes is the transcription API's upload cap.
const maxAudioBytes = 25 << 20

var (
	ErrEmptyAudio = errors.New("audio payload is empty")
	ErrTooLarge   = fmt.Errorf("audio payload exceeds %d bytes", maxAudioBytes)
)

// Transcriber converts an audio payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, data []byte, language string) (string, error)
}

// Service validates uploaded audio and hands it to the speech model.
type Service struct {
	llm Transcriber
}

func NewService(llm Transcriber) *Service {
	return &Service{llm: llm}
}

func (s *Service) Transcribe(ctx context.Context, filename string, data []byte, language string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyAudio
	}
	if len(data) > maxAudioBytes {
		return "", ErrTooLarge
	}
	if language == "" {
		language = "en"
	}

	// The speech API infers the codec from the file extension.
	if filepath.Ext(filename) == "" {
		filename += ".wav"
	}

	text, err := s.llm.Transcribe(ctx, filename, data, language)
	if err != nil {
		return "", err
	}

	logger.Info("Transcription complete",
		zap.String("filename", filename),
		zap.String("language", language),
		zap.Int("chars", len(text)),
	)
	return strings.TrimSpace(text), nil
}
