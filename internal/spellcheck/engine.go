package spellcheck

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/cache"
	"github.com/clinscribe/backend/internal/classifier"
	"github.com/clinscribe/backend/internal/metrics"
	"github.com/clinscribe/backend/internal/spellcheck/dictionary"
	"github.com/clinscribe/backend/internal/spellcheck/vocabulary"
	"github.com/clinscribe/backend/internal/storage/models"
	"github.com/clinscribe/backend/pkg/logger"
	"github.com/clinscribe/backend/pkg/utils"
)

// TerminologyClient is the external validation surface the engine consumes.
type TerminologyClient interface {
	Validate(ctx context.Context, term string) (bool, error)
	Suggest(ctx context.Context, term string, maxSuggestions int) ([]string, error)
	CircuitOpen() bool
}

// Corrector is the LLM fallback used when local and external suggestion
// sources come up short.
type Corrector interface {
	SuggestCorrection(ctx context.Context, term string) (string, error)
}

type Config struct {
	SuggestionFloor   float64
	OverrideThreshold float64
	MaxSuggestions    int
	LLMOnly           bool
}

type Result struct {
	Term        string   `json:"term"`
	IsCorrect   bool     `json:"is_correct"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source"`
	Category    string   `json:"category,omitempty"`
}

type Occurrence struct {
	Result
	StartPos int `json:"start_pos"`
	EndPos   int `json:"end_pos"`
}

type BatchResult struct {
	Results          []Occurrence `json:"results"`
	UniqueTerms      []Result     `json:"unique_terms"`
	UniqueCount      int          `json:"unique_count"`
	TotalOccurrences int          `json:"total_occurrences"`
}

// Engine resolves terms through the tiered pipeline: learned vocabulary,
// static dictionary, cached replays, the external terminology service, and
// finally suggestion assembly with an optional LLM override.
type Engine struct {
	dict        *dictionary.Dictionary
	vocab       *vocabulary.Vocabulary
	store       *cache.Store
	terminology TerminologyClient
	corrector   Corrector
	classifier  *classifier.Classifier

	mu  sync.RWMutex
	cfg Config
}

func NewEngine(
	dict *dictionary.Dictionary,
	vocab *vocabulary.Vocabulary,
	store *cache.Store,
	terminology TerminologyClient,
	corrector Corrector,
	cls *classifier.Classifier,
	cfg Config,
) *Engine {
	if cfg.SuggestionFloor <= 0 {
		cfg.SuggestionFloor = 60
	}
	if cfg.OverrideThreshold <= 0 {
		cfg.OverrideThreshold = 85
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 5
	}
	return &Engine{
		dict:        dict,
		vocab:       vocab,
		store:       store,
		terminology: terminology,
		corrector:   corrector,
		classifier:  cls,
		cfg:         cfg,
	}
}

// AddTerm confirms a user-supplied term into the learned vocabulary.
func (e *Engine) AddTerm(term string) bool {
	if e.vocab == nil {
		return false
	}
	return e.vocab.Add(term, "user")
}

// SetLLMOnly toggles skipping the terminology service entirely.
func (e *Engine) SetLLMOnly(enabled bool) {
	e.mu.Lock()
	e.cfg.LLMOnly = enabled
	e.mu.Unlock()
	logger.Info("Spell check mode changed", zap.Bool("llm_only", enabled))
}

func (e *Engine) LLMOnly() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.LLMOnly
}

// Check resolves a single term. llmIdentified marks terms the extraction
// model flagged as medical, which softens the verdict when the terminology
// service is unreachable.
func (e *Engine) Check(ctx context.Context, term string, llmIdentified bool) *Result {
	started := time.Now()
	defer func() {
		metrics.SpellCheckDuration.Observe(time.Since(started).Seconds())
	}()

	steps := []func(context.Context, string, bool) *Result{
		e.fromVocabulary,
		e.fromDictionary,
		e.fromCache,
		e.fromTerminology,
		e.fromSuggestions,
	}

	for i, step := range steps {
		result := step(ctx, term, llmIdentified)
		if result == nil {
			continue
		}
		metrics.TermResolutions.WithLabelValues(result.Source).Inc()
		// vocabulary hits and cache replays are already persisted
		if i >= 1 && i != 2 {
			e.writeBack(term, result)
		}
		return result
	}

	// unreachable: fromSuggestions always returns a result
	return &Result{Term: term, Suggestions: []string{}, Confidence: 0.3, Source: "unresolved"}
}

func (e *Engine) fromVocabulary(_ context.Context, term string, _ bool) *Result {
	if e.vocab == nil || !e.vocab.Contains(term) {
		return nil
	}
	return &Result{
		Term:        term,
		IsCorrect:   true,
		Suggestions: []string{},
		Confidence:  1.0,
		Source:      "dynamic_list",
	}
}

func (e *Engine) fromDictionary(_ context.Context, term string, _ bool) *Result {
	if e.dict == nil {
		return nil
	}

	canonical, known := e.dict.CorrectSpelling(term)
	if !known {
		return nil
	}

	if canonical == utils.NormalizeTerm(term) {
		return &Result{
			Term:        term,
			IsCorrect:   true,
			Suggestions: []string{},
			Confidence:  1.0,
			Source:      "static_dictionary",
		}
	}
	return &Result{
		Term:        term,
		IsCorrect:   false,
		Suggestions: []string{canonical},
		Confidence:  0.9,
		Source:      "static_dictionary",
	}
}

// fromCache replays a previous full resolution, checking the vocabulary's
// replay cache first and then the durable store.
func (e *Engine) fromCache(_ context.Context, term string, _ bool) *Result {
	if e.vocab != nil {
		if cached := e.vocab.GetCachedValidation(term); cached != nil {
			return &Result{
				Term:        term,
				IsCorrect:   cached.IsCorrect,
				Suggestions: emptyIfNil(cached.Suggestions),
				Confidence:  cached.Confidence,
				Source:      cached.Source,
				Category:    cached.Category,
			}
		}
	}

	if e.store != nil {
		if rec := e.store.GetSuggestions(term); rec != nil {
			return &Result{
				Term:        term,
				IsCorrect:   false,
				Suggestions: emptyIfNil(rec.Suggestions),
				Confidence:  rec.Confidence,
				Source:      rec.Source,
			}
		}
		if rec := e.store.GetTerminology(term); rec != nil && rec.IsValid {
			return &Result{
				Term:        term,
				IsCorrect:   true,
				Suggestions: []string{},
				Confidence:  0.95,
				Source:      "terminology",
			}
		}
		if rec := e.store.GetClassification(term); rec != nil {
			return &Result{
				Term:        term,
				IsCorrect:   rec.IsCorrect,
				Suggestions: []string{},
				Confidence:  rec.Confidence,
				Source:      rec.Source,
				Category:    rec.Category,
			}
		}
	}

	return nil
}

func (e *Engine) fromTerminology(ctx context.Context, term string, llmIdentified bool) *Result {
	if e.terminology == nil || e.LLMOnly() || e.terminology.CircuitOpen() {
		return nil
	}

	valid, err := e.terminology.Validate(ctx, term)
	if err != nil {
		logger.Warn("Terminology validation failed",
			zap.String("term", term),
			zap.Error(err),
		)
		if llmIdentified {
			// the extraction model already vouched for this term
			return &Result{
				Term:        term,
				IsCorrect:   true,
				Suggestions: []string{},
				Confidence:  0.8,
				Source:      "llm_fallback",
			}
		}
		return nil
	}
	if !valid {
		return nil
	}

	if e.store != nil {
		e.store.PutTerminology(term, "", 1, true)
	}
	return &Result{
		Term:        term,
		IsCorrect:   true,
		Suggestions: []string{},
		Confidence:  0.95,
		Source:      "terminology",
	}
}

// fromSuggestions is the terminal step: it assembles ranked suggestions from
// the dictionary and terminology tiers. A term the classifier flagged medical
// whose best candidate scores below the override threshold is trusted as
// correct instead of being second-guessed by weak fuzzy matches; the LLM
// corrector runs only when no suggestion cleared the floor.
func (e *Engine) fromSuggestions(ctx context.Context, term string, llmIdentified bool) *Result {
	e.mu.RLock()
	floor := e.cfg.SuggestionFloor
	override := e.cfg.OverrideThreshold
	maxSuggestions := e.cfg.MaxSuggestions
	llmOnly := e.cfg.LLMOnly
	e.mu.RUnlock()

	type scored struct {
		term  string
		score float64
	}
	var candidates []scored
	seen := make(map[string]bool)

	appendCandidate := func(s string) {
		folded := strings.ToLower(strings.TrimSpace(s))
		if folded == "" || seen[folded] {
			return
		}
		seen[folded] = true
		candidates = append(candidates, scored{s, dictionary.Similarity(term, s)})
	}

	if e.dict != nil {
		for _, s := range e.dict.Suggestions(term, 3) {
			appendCandidate(s)
		}
	}
	if e.terminology != nil && !llmOnly && !e.terminology.CircuitOpen() {
		external, err := e.terminology.Suggest(ctx, term, 3)
		if err != nil {
			logger.Debug("Terminology suggestions failed", zap.String("term", term), zap.Error(err))
		}
		for _, s := range external {
			appendCandidate(s)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var suggestions []string
	var best float64
	for _, c := range candidates {
		if c.score > floor && len(suggestions) < maxSuggestions {
			suggestions = append(suggestions, c.term)
		}
		if c.score > best {
			best = c.score
		}
	}

	if llmIdentified && best < override {
		return &Result{
			Term:        term,
			IsCorrect:   true,
			Suggestions: []string{},
			Confidence:  0.8,
			Source:      "llm_identified",
		}
	}

	source := "suggestions"

	if len(suggestions) == 0 && e.corrector != nil {
		if correction, err := e.corrector.SuggestCorrection(ctx, term); err == nil && correction != "" {
			suggestions = []string{correction}
			source = "llm_correction"
		}
	}

	confidence := 0.3
	if len(suggestions) > 0 {
		confidence = 0.7
	}

	return &Result{
		Term:        term,
		IsCorrect:   false,
		Suggestions: emptyIfNil(suggestions),
		Confidence:  confidence,
		Source:      source,
	}
}

// writeBack persists a fresh resolution so the next lookup replays it.
func (e *Engine) writeBack(term string, result *Result) {
	if e.vocab != nil {
		e.vocab.PutCachedValidation(term, &models.CachedResult{
			Term:        utils.NormalizeTerm(term),
			IsCorrect:   result.IsCorrect,
			Suggestions: result.Suggestions,
			Confidence:  result.Confidence,
			Source:      result.Source,
			Category:    result.Category,
		})
		if result.IsCorrect {
			e.vocab.Add(term, result.Source)
		}
		e.vocab.PutCachedClassification(term, true, result.IsCorrect)
	}

	if e.store != nil {
		if !result.IsCorrect && len(result.Suggestions) > 0 {
			e.store.PutSuggestions(term, result.Suggestions, result.Source, result.Confidence)
		}
		e.store.PutClassification(&models.ClassificationCacheRecord{
			Term:                 utils.NormalizeTerm(term),
			IsMedical:            true,
			IsCorrect:            result.IsCorrect,
			Category:             result.Category,
			Confidence:           result.Confidence,
			TerminologyValidated: result.Source == "terminology",
			NeedsCorrection:      !result.IsCorrect,
			Source:               result.Source,
		})
	}
}

// CheckBatch extracts candidate terms from free text, resolves each unique
// term once, and maps results back onto every occurrence. It never fails:
// extraction errors degrade to pattern matching inside the classifier.
func (e *Engine) CheckBatch(ctx context.Context, text string) *BatchResult {
	batch := &BatchResult{
		Results:     []Occurrence{},
		UniqueTerms: []Result{},
	}
	if strings.TrimSpace(text) == "" {
		return batch
	}

	var candidates []classifier.Candidate
	llmUsed := false
	if e.classifier != nil {
		candidates, llmUsed = e.classifier.ExtractCandidates(ctx, text)
	}

	resolved := make(map[string]*Result)
	var order []string
	for _, cand := range candidates {
		key := utils.NormalizeTerm(cand.Term)
		if _, done := resolved[key]; done {
			continue
		}
		result := e.Check(ctx, cand.Term, llmUsed)
		if result.Category == "" {
			result.Category = cand.Category
		}
		resolved[key] = result
		order = append(order, key)
	}

	for _, cand := range candidates {
		result := resolved[utils.NormalizeTerm(cand.Term)]
		occ := Occurrence{Result: *result, StartPos: cand.Start, EndPos: cand.End}
		occ.Term = cand.Term
		batch.Results = append(batch.Results, occ)
	}
	for _, key := range order {
		batch.UniqueTerms = append(batch.UniqueTerms, *resolved[key])
	}
	batch.UniqueCount = len(order)
	batch.TotalOccurrences = len(batch.Results)

	return batch
}

type EngineStats struct {
	Vocabulary vocabulary.Stats `json:"vocabulary"`
	Cache      cache.Stats      `json:"cache"`
	Dictionary int              `json:"dictionary_terms"`
	LLMOnly    bool             `json:"llm_only"`
}

func (e *Engine) Stats() EngineStats {
	stats := EngineStats{LLMOnly: e.LLMOnly()}
	if e.vocab != nil {
		stats.Vocabulary = e.vocab.Stats()
	}
	if e.store != nil {
		stats.Cache = e.store.Stats()
	}
	if e.dict != nil {
		stats.Dictionary = e.dict.Size()
	}
	return stats
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
