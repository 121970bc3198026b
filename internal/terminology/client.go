package terminology

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/metrics"
	"github.com/clinscribe/backend/pkg/circuitbreaker"
	"github.com/clinscribe/backend/pkg/config"
	"github.com/clinscribe/backend/pkg/logger"
	"github.com/clinscribe/backend/pkg/retry"
	"github.com/clinscribe/backend/pkg/ttlcache"
	"github.com/clinscribe/backend/pkg/utils"
)

type Concept struct {
	ConceptID string `json:"concept_id"`
	Term      string `json:"term"`
	FSN       string `json:"fsn"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	retryCfg   retry.Config
	cache      *ttlcache.Cache[[]Concept]
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("terminology service returned status %d", e.code)
}

func NewClient(cfg config.TerminologyConfig) *Client {
	cb := circuitbreaker.New("terminology", circuitbreaker.Config{
		FailureThreshold: uint32(cfg.BreakerThreshold),
		Cooldown:         time.Duration(cfg.BreakerCooldownSec) * time.Second,
		TrialRequests:    1,
		Logger:           logger.GetLogger(),
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	retryCfg := retry.Config{
		MaxAttempts: cfg.RetryAttempts + 1,
		Delay:       time.Duration(cfg.RetryDelaySec) * time.Second,
		Backoff:     retry.BackoffLinear,
		RetryIf:     isTransient,
		Logger:      logger.GetLogger(),
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
		cb:         cb,
		retryCfg:   retryCfg,
		cache:      ttlcache.New[[]Concept](time.Duration(cfg.CacheTTLSec)*time.Second, cfg.CacheMaxEntries),
	}
}

func (c *Client) CircuitOpen() bool {
	return c.cb.Open()
}

// Search looks a term up against the terminology service. A short-circuited
// call (breaker open, or half-open trial slot taken) returns an empty result
// with no error and is never cached, so the next closed-state call goes back
// to the network.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]Concept, error) {
	if limit <= 0 {
		limit = 5
	}

	key := ttlcache.Key(fmt.Sprintf("search_%d", limit), term)
	if concepts, ok := c.cache.Get(key); ok {
		metrics.TerminologyCalls.WithLabelValues("cache_hit").Inc()
		return concepts, nil
	}

	var concepts []Concept
	err := c.cb.Execute(ctx, func() error {
		var err error
		concepts, err = retry.DoWithResult(ctx, c.retryCfg, func() ([]Concept, error) {
			return c.doSearch(ctx, term, limit)
		})
		return err
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		metrics.TerminologyCalls.WithLabelValues("short_circuit").Inc()
		logger.Debug("Terminology lookup short-circuited", zap.String("term", term))
		return nil, nil
	}
	if err != nil {
		metrics.TerminologyCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to search terminology: %w", err)
	}

	metrics.TerminologyCalls.WithLabelValues("success").Inc()
	c.cache.Set(key, concepts)
	return concepts, nil
}

// Validate reports whether the term resolves to a known concept. The error is
// non-nil only for infrastructure failures; a short-circuited call reports
// (false, nil).
func (c *Client) Validate(ctx context.Context, term string) (bool, error) {
	concepts, err := c.Search(ctx, term, 5)
	if err != nil {
		return false, err
	}

	normalized := utils.NormalizeTerm(term)
	for _, concept := range concepts {
		if strings.EqualFold(concept.Term, normalized) || strings.EqualFold(StripSemanticTag(concept.FSN), normalized) {
			return true, nil
		}
	}
	return false, nil
}

// Suggest returns up to maxSuggestions distinct preferred terms near the
// misspelled input.
func (c *Client) Suggest(ctx context.Context, term string, maxSuggestions int) ([]string, error) {
	if maxSuggestions <= 0 {
		maxSuggestions = 5
	}

	concepts, err := c.Search(ctx, term, maxSuggestions*2)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var suggestions []string
	for _, concept := range concepts {
		candidate := concept.Term
		if candidate == "" {
			candidate = StripSemanticTag(concept.FSN)
		}
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		folded := strings.ToLower(candidate)
		if seen[folded] {
			continue
		}
		seen[folded] = true
		suggestions = append(suggestions, candidate)
		if len(suggestions) >= maxSuggestions {
			break
		}
	}
	return suggestions, nil
}

type conceptPayload struct {
	ConceptID string          `json:"conceptId"`
	ID        string          `json:"id"`
	Term      string          `json:"term"`
	Preferred string          `json:"preferredTerm"`
	FSN       json.RawMessage `json:"fsn"`
}

// searchEnvelope probes the known response shapes. The service has shipped
// concept lists under several different keys over time.
type searchEnvelope struct {
	Concepts *[]conceptPayload `json:"concepts"`
	Results  *[]conceptPayload `json:"results"`
	Data     *[]conceptPayload `json:"data"`
	Items    *[]conceptPayload `json:"items"`
}

func (c *Client) doSearch(ctx context.Context, term string, limit int) ([]Concept, error) {
	payload, err := json.Marshal(map[string]any{
		"term":  utils.NormalizeTerm(term),
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/concepts/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call terminology service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	var envelope searchEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode terminology response: %w", err)
	}

	var raw []conceptPayload
	switch {
	case envelope.Concepts != nil:
		raw = *envelope.Concepts
	case envelope.Results != nil:
		raw = *envelope.Results
	case envelope.Data != nil:
		raw = *envelope.Data
	case envelope.Items != nil:
		raw = *envelope.Items
	default:
		logger.Warn("Terminology response had no recognized concept list",
			zap.String("term", term),
		)
		return nil, nil
	}

	concepts := make([]Concept, 0, len(raw))
	for _, p := range raw {
		concept := Concept{
			ConceptID: p.ConceptID,
			Term:      p.Term,
			FSN:       decodeFSN(p.FSN),
		}
		if concept.ConceptID == "" {
			concept.ConceptID = p.ID
		}
		if concept.Term == "" {
			concept.Term = p.Preferred
		}
		if concept.Term == "" {
			concept.Term = StripSemanticTag(concept.FSN)
		}
		if concept.Term == "" {
			continue
		}
		concepts = append(concepts, concept)
	}
	return concepts, nil
}

// decodeFSN accepts both a plain string and the {"term": ..., "lang": ...}
// object form.
func decodeFSN(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Term string `json:"term"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Term
	}
	return ""
}

// StripSemanticTag removes a trailing parenthesized tag from a fully
// specified name, e.g. "Myocardial infarction (disorder)".
func StripSemanticTag(fsn string) string {
	fsn = strings.TrimSpace(fsn)
	if !strings.HasSuffix(fsn, ")") {
		return fsn
	}
	idx := strings.LastIndex(fsn, "(")
	if idx <= 0 {
		return fsn
	}
	return strings.TrimSpace(fsn[:idx])
}

func isTransient(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.code == http.StatusTooManyRequests || statusErr.code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var jsonErr *json.SyntaxError
	if errors.As(err, &jsonErr) {
		return false
	}

	// connection refused, reset, DNS failures
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
