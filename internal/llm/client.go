package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clinscribe/backend/internal/metrics"
	"github.com/clinscribe/backend/pkg/circuitbreaker"
	"github.com/clinscribe/backend/pkg/config"
	"github.com/clinscribe/backend/pkg/logger"
	"github.com/clinscribe/backend/pkg/retry"
)

var ErrNotConfigured = errors.New("llm client is not configured")

type Client struct {
	api             *openai.Client
	model           string
	transcribeModel string
	temperature     float32
	maxTokens       int
	timeout         time.Duration
	cb              *circuitbreaker.CircuitBreaker
	retryCfg        retry.Config
}

type IdentifiedTerm struct {
	Term     string `json:"term"`
	Category string `json:"category"`
}

func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		TrialRequests:    1,
		Logger:           logger.GetLogger(),
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &Client{
		api:             openai.NewClient(cfg.APIKey),
		model:           cfg.Model,
		transcribeModel: cfg.TranscribeModel,
		temperature:     float32(cfg.Temperature),
		maxTokens:       cfg.MaxTokens,
		timeout:         time.Duration(cfg.TimeoutSec) * time.Second,
		cb:              cb,
		retryCfg: retry.Config{
			MaxAttempts: 2,
			Delay:       time.Second,
			Backoff:     retry.BackoffExponential,
			RetryIf:     isRetryable,
			Logger:      logger.GetLogger(),
		},
	}, nil
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) complete(ctx context.Context, operation, systemPrompt, userPrompt string) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var content string
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Temperature: c.temperature,
				MaxTokens:   c.maxTokens,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: userPrompt},
				},
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("llm returned no choices")
			}

			metrics.LLMTokensUsed.WithLabelValues(operation).Add(float64(resp.Usage.TotalTokens))
			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		metrics.LLMCalls.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("failed to complete %s: %w", operation, err)
	}

	metrics.LLMCalls.WithLabelValues(operation, "success").Inc()
	return content, nil
}

const identifyPrompt = `You are a clinical terminology extractor for dictated medical notes.
Identify only genuinely medical terms in the text: conditions, medications,
procedures, lab tests, anatomy, and clinical symptoms. Exclude greetings,
patient or clinician names, filler words, and everyday vocabulary.
Include misspelled medical terms exactly as written.
Respond with a JSON array only, each element:
{"term": "<term as it appears>", "category": "<condition|medication|procedure|lab_test|anatomy|symptom>"}`

func (c *Client) IdentifyMedicalTerms(ctx context.Context, text string) ([]IdentifiedTerm, error) {
	content, err := c.complete(ctx, "identify_terms", identifyPrompt, text)
	if err != nil {
		return nil, err
	}

	raw := ExtractJSONArray(content)
	if raw == "" {
		logger.Warn("LLM identify response had no JSON array")
		return nil, nil
	}

	var terms []IdentifiedTerm
	if err := json.Unmarshal([]byte(raw), &terms); err != nil {
		return nil, fmt.Errorf("failed to parse identified terms: %w", err)
	}

	out := terms[:0]
	for _, t := range terms {
		t.Term = strings.TrimSpace(t.Term)
		if t.Term != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

const correctionPrompt = `You are a medical spelling corrector. Given a likely misspelled
medical term, respond with JSON only:
{"correction": "<most likely intended term>", "confidence": <0.0-1.0>}
If the term is already correct or you cannot determine the intended term,
return the input unchanged with confidence 0.`

// SuggestCorrection asks the model for the most likely intended spelling.
// An empty result means no correction could be determined.
func (c *Client) SuggestCorrection(ctx context.Context, term string) (string, error) {
	content, err := c.complete(ctx, "suggest_correction", correctionPrompt, term)
	if err != nil {
		return "", err
	}

	raw := ExtractJSONObject(content)
	if raw == "" {
		return "", nil
	}

	var parsed struct {
		Correction string  `json:"correction"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse correction: %w", err)
	}

	correction := strings.TrimSpace(parsed.Correction)
	if parsed.Confidence <= 0 || strings.EqualFold(correction, strings.TrimSpace(term)) {
		return "", nil
	}
	return correction, nil
}

const soapPrompt = `You are a clinical documentation assistant. Convert the dictated
encounter transcript into a SOAP note. Respond with JSON only, using this
structure:
{
  "subjective": {
    "chief_complaint": "", "history_of_present_illness": "",
    "past_medical_history": "", "family_history": "", "social_history": "",
    "medications": [{"name": "", "dosage": "", "frequency": "", "route": "", "duration": ""}],
    "allergies": []
  },
  "objective": {
    "vital_signs": {"temperature": "", "blood_pressure": "", "heart_rate": "", "respiratory_rate": "", "oxygen_saturation": ""},
    "physical_exam": ""
  },
  "assessment": {"diagnosis": "", "risk_factors": []},
  "plan": {
    "medications_prescribed": [{"name": "", "dosage": "", "frequency": "", "route": "", "duration": ""}],
    "procedures_or_tests": [], "patient_education": "", "follow_up_instructions": ""
  }
}
Leave a field empty when the transcript does not cover it.
Never invent clinical findings that are not in the transcript.`

func (c *Client) GenerateSOAP(ctx context.Context, transcript string) (string, error) {
	content, err := c.complete(ctx, "generate_soap", soapPrompt, transcript)
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) Transcribe(ctx context.Context, filename string, data []byte, language string) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, 2*c.timeout)
	defer cancel()

	var text string
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
				Model:    c.transcribeModel,
				FilePath: filename,
				Reader:   bytes.NewReader(data),
				Language: language,
			})
			if err != nil {
				return err
			}
			text = resp.Text
			return nil
		})
	})
	if err != nil {
		metrics.LLMCalls.WithLabelValues("transcribe", "error").Inc()
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	metrics.LLMCalls.WithLabelValues("transcribe", "success").Inc()
	metrics.TranscriptionsTotal.Inc()
	return text, nil
}

// ExtractJSONObject pulls the first balanced JSON object out of a model
// response, tolerating markdown fences and prose around it.
func ExtractJSONObject(s string) string {
	return extractBalanced(s, '{', '}')
}

// ExtractJSONArray pulls the first balanced JSON array out of a model
// response.
func ExtractJSONArray(s string) string {
	return extractBalanced(s, '[', ']')
}

func extractBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				return ""
			}
		}
	}
	return ""
}
