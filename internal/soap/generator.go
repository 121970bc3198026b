package soap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/llm"
	"github.com/clinscribe/backend/internal/metrics"
	"github.com/clinscribe/backend/pkg/logger"
)

type Generator struct {
	llm *llm.Client
}

func NewGenerator(llmClient *llm.Client) *Generator {
	return &Generator{llm: llmClient}
}

// Generate turns an encounter transcript into a normalized SOAP note.
func (g *Generator) Generate(ctx context.Context, transcript string) (Sections, error) {
	if g.llm == nil {
		return nil, llm.ErrNotConfigured
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("transcript is empty")
	}

	content, err := g.llm.GenerateSOAP(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SOAP note: %w", err)
	}

	raw := llm.ExtractJSONObject(content)
	if raw == "" {
		logger.Warn("SOAP response contained no JSON object")
		return nil, fmt.Errorf("model response was not valid JSON")
	}

	var sections Sections
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		return nil, fmt.Errorf("failed to parse SOAP sections: %w", err)
	}

	normalized := Normalize(sections)
	if !IsComplete(normalized) {
		logger.Warn("Generated SOAP note is incomplete",
			zap.Int("transcript_length", len(transcript)),
		)
	}

	metrics.SOAPNotesTotal.Inc()
	return normalized, nil
}
