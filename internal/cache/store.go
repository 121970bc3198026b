package cache

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/metrics"
	"github.com/clinscribe/backend/internal/storage/models"
	"github.com/clinscribe/backend/internal/storage/sqlite"
	"github.com/clinscribe/backend/pkg/logger"
	"github.com/clinscribe/backend/pkg/utils"
)

// Store is the durable cache tier over SQLite. All operations degrade to
// no-ops when the database is unavailable so lookups never block the
// validation pipeline.
type Store struct {
	db             *sqlite.Client
	terminologyTTL time.Duration
	suggestionTTL  time.Duration
}

func NewStore(db *sqlite.Client, terminologyTTL, suggestionTTL time.Duration) *Store {
	if terminologyTTL <= 0 {
		terminologyTTL = 24 * time.Hour
	}
	if suggestionTTL <= 0 {
		suggestionTTL = 7 * 24 * time.Hour
	}
	return &Store{
		db:             db,
		terminologyTTL: terminologyTTL,
		suggestionTTL:  suggestionTTL,
	}
}

func (s *Store) Available() bool {
	return s != nil && s.db != nil
}

func (s *Store) GetTerminology(term string) *models.TerminologyCacheRecord {
	if !s.Available() {
		return nil
	}

	rec, err := s.db.GetTerminologyCache(term, time.Now())
	if err != nil {
		logger.Warn("Terminology cache lookup failed", zap.String("term", term), zap.Error(err))
		return nil
	}
	if rec == nil {
		metrics.CacheMisses.WithLabelValues("terminology").Inc()
		return nil
	}

	metrics.CacheHits.WithLabelValues("terminology").Inc()
	return rec
}

func (s *Store) PutTerminology(term, rawResponse string, conceptCount int, isValid bool) {
	if !s.Available() {
		return
	}

	now := time.Now()
	rec := &models.TerminologyCacheRecord{
		TermHash:     utils.TermHash(term),
		Term:         utils.NormalizeTerm(term),
		RawResponse:  rawResponse,
		ConceptCount: conceptCount,
		IsValid:      isValid,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.terminologyTTL),
	}

	if err := s.db.UpsertTerminologyCache(rec); err != nil {
		logger.Warn("Terminology cache write failed", zap.String("term", term), zap.Error(err))
	}
}

func (s *Store) GetClassification(term string) *models.ClassificationCacheRecord {
	if !s.Available() {
		return nil
	}

	rec, err := s.db.GetClassificationCache(term)
	if err != nil {
		logger.Warn("Classification cache lookup failed", zap.String("term", term), zap.Error(err))
		return nil
	}
	if rec == nil {
		metrics.CacheMisses.WithLabelValues("classification").Inc()
		return nil
	}

	metrics.CacheHits.WithLabelValues("classification").Inc()
	return rec
}

func (s *Store) PutClassification(rec *models.ClassificationCacheRecord) {
	if !s.Available() {
		return
	}

	if rec.TermHash == "" {
		rec.TermHash = utils.TermHash(rec.Term)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if err := s.db.UpsertClassificationCache(rec); err != nil {
		logger.Warn("Classification cache write failed", zap.String("term", rec.Term), zap.Error(err))
	}
}

func (s *Store) GetSuggestions(term string) *models.SuggestionCacheRecord {
	if !s.Available() {
		return nil
	}

	rec, err := s.db.GetSuggestionCache(term, time.Now())
	if err != nil {
		logger.Warn("Suggestion cache lookup failed", zap.String("term", term), zap.Error(err))
		return nil
	}
	if rec == nil {
		metrics.CacheMisses.WithLabelValues("suggestion").Inc()
		return nil
	}

	metrics.CacheHits.WithLabelValues("suggestion").Inc()
	return rec
}

func (s *Store) PutSuggestions(term string, suggestions []string, source string, confidence float64) {
	if !s.Available() {
		return
	}

	now := time.Now()
	rec := &models.SuggestionCacheRecord{
		TermHash:    utils.TermHash(term),
		Term:        utils.NormalizeTerm(term),
		Suggestions: suggestions,
		Source:      source,
		Confidence:  confidence,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.suggestionTTL),
	}

	if err := s.db.UpsertSuggestionCache(rec); err != nil {
		logger.Warn("Suggestion cache write failed", zap.String("term", term), zap.Error(err))
	}
}

func (s *Store) LogUsage(endpoint, operation string, cacheHit bool, latency time.Duration, opErr error) {
	if !s.Available() {
		return
	}

	stat := &models.UsageStat{
		ID:            uuid.New().String(),
		Endpoint:      endpoint,
		Operation:     operation,
		CacheHit:      cacheHit,
		LatencyMS:     latency.Milliseconds(),
		ErrorOccurred: opErr != nil,
		CreatedAt:     time.Now(),
	}
	if opErr != nil {
		stat.ErrorMessage = opErr.Error()
	}

	if err := s.db.InsertUsageStat(stat); err != nil {
		logger.Debug("Usage stat insert failed", zap.Error(err))
	}
}

func (s *Store) PurgeExpired() int {
	if !s.Available() {
		return 0
	}

	purged, err := s.db.PurgeExpired(time.Now())
	if err != nil {
		logger.Warn("Cache purge failed", zap.Error(err))
		return 0
	}
	if purged > 0 {
		metrics.CachePurgedTotal.Add(float64(purged))
		logger.Info("Purged expired cache entries", zap.Int("count", purged))
	}
	return purged
}

type Stats struct {
	Available    bool `json:"available"`
	CacheEntries int  `json:"cache_entries"`
}

func (s *Store) Stats() Stats {
	if !s.Available() {
		return Stats{}
	}

	entries, err := s.db.CountCacheEntries()
	if err != nil {
		logger.Warn("Cache stats query failed", zap.Error(err))
		return Stats{Available: true}
	}
	return Stats{Available: true, CacheEntries: entries}
}
