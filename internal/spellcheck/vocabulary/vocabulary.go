package vocabulary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/metrics"
	"github.com/clinscribe/backend/internal/storage/models"
	"github.com/clinscribe/backend/internal/storage/sqlite"
	"github.com/clinscribe/backend/pkg/logger"
	"github.com/clinscribe/backend/pkg/utils"
)

const minTermLength = 3

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "was": true,
	"has": true, "had": true, "are": true, "but": true, "not": true,
	"this": true, "that": true, "have": true, "from": true, "they": true,
	"she": true, "him": true, "her": true, "his": true, "will": true,
	"patient": true, "doctor": true, "nurse": true, "today": true,
	"yesterday": true, "morning": true, "evening": true,
}

// Vocabulary is the learned term store. It persists to SQLite when a client
// is provided, otherwise to a JSON snapshot on disk. Beyond the confirmed
// term set it keeps per-term validation and classification replay caches so
// previously resolved terms never re-enter the external pipeline.
type Vocabulary struct {
	mu sync.RWMutex

	db       *sqlite.Client
	filePath string

	// file-mode state; unused when db is set
	terms           map[string]bool
	validations     map[string]*models.CachedResult
	classifications map[string]classification
	dirty           bool
}

type classification struct {
	IsMedical bool `json:"is_medical"`
	IsCorrect bool `json:"is_correct"`
}

type snapshot struct {
	Terms           []string                        `json:"terms"`
	Validations     map[string]*models.CachedResult `json:"validations"`
	Classifications map[string]classification       `json:"classifications"`
	LastUpdated     string                          `json:"last_updated"`
}

func New(db *sqlite.Client, filePath string) *Vocabulary {
	v := &Vocabulary{
		db:              db,
		filePath:        filePath,
		terms:           make(map[string]bool),
		validations:     make(map[string]*models.CachedResult),
		classifications: make(map[string]classification),
	}

	if db == nil && filePath != "" {
		v.loadFile()
	}

	v.publishSize()
	return v
}

func (v *Vocabulary) loadFile() {
	data, err := os.ReadFile(v.filePath)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		logger.Warn("Vocabulary file unreadable, starting empty",
			zap.String("path", v.filePath),
			zap.Error(err),
		)
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		v.recoverCorrupt(data, err)
		return
	}

	for _, term := range snap.Terms {
		v.terms[utils.NormalizeTerm(term)] = true
	}
	if snap.Validations != nil {
		v.validations = snap.Validations
	}
	if snap.Classifications != nil {
		v.classifications = snap.Classifications
	}

	logger.Info("Vocabulary loaded",
		zap.String("path", v.filePath),
		zap.Int("terms", len(v.terms)),
	)
}

// recoverCorrupt backs the unreadable file up under a timestamped name,
// removes the original, and leaves the vocabulary empty so the service can
// keep running and relearn.
func (v *Vocabulary) recoverCorrupt(data []byte, parseErr error) {
	backupPath := fmt.Sprintf("%s.backup_%s", v.filePath, time.Now().Format("20060102_150405"))

	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		logger.Error("Failed to back up corrupt vocabulary file",
			zap.String("path", v.filePath),
			zap.Error(err),
		)
	}
	if err := os.Remove(v.filePath); err != nil && !os.IsNotExist(err) {
		logger.Error("Failed to remove corrupt vocabulary file",
			zap.String("path", v.filePath),
			zap.Error(err),
		)
	}

	logger.Warn("Vocabulary file was corrupt, starting empty",
		zap.String("path", v.filePath),
		zap.String("backup", backupPath),
		zap.Error(parseErr),
	)
}

// save writes the snapshot, dropping any individual entry that fails to
// marshal. If the full snapshot cannot be written it falls back to a
// terms-only snapshot so learned terms survive.
func (v *Vocabulary) save() {
	if v.db != nil || v.filePath == "" {
		return
	}

	snap := snapshot{
		Terms:           make([]string, 0, len(v.terms)),
		Validations:     make(map[string]*models.CachedResult, len(v.validations)),
		Classifications: v.classifications,
		LastUpdated:     time.Now().UTC().Format(time.RFC3339),
	}
	for term := range v.terms {
		snap.Terms = append(snap.Terms, term)
	}
	for hash, result := range v.validations {
		if _, err := json.Marshal(result); err != nil {
			logger.Warn("Dropping unserializable validation entry", zap.String("term_hash", hash))
			continue
		}
		snap.Validations[hash] = result
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		data, err = json.Marshal(snapshot{Terms: snap.Terms, LastUpdated: snap.LastUpdated})
		if err != nil {
			logger.Error("Failed to serialize vocabulary", zap.Error(err))
			return
		}
	}

	if dir := filepath.Dir(v.filePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(v.filePath, data, 0o644); err != nil {
		logger.Error("Failed to save vocabulary", zap.String("path", v.filePath), zap.Error(err))
		return
	}
	v.dirty = false
}

// Contains reports whether the term is a confirmed vocabulary entry.
func (v *Vocabulary) Contains(term string) bool {
	if v.db != nil {
		ok, err := v.db.HasVocabularyTerm(term)
		if err != nil {
			logger.Warn("Vocabulary lookup failed", zap.String("term", term), zap.Error(err))
			return false
		}
		return ok
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.terms[utils.NormalizeTerm(term)]
}

// Add confirms a term into the vocabulary. Stopwords and very short strings
// are ignored, and re-adding is idempotent.
func (v *Vocabulary) Add(term, source string) bool {
	normalized := utils.NormalizeTerm(term)
	if len(normalized) < minTermLength || stopwords[normalized] {
		return false
	}

	if v.db != nil {
		if err := v.db.UpsertVocabularyTerm(normalized, source); err != nil {
			logger.Warn("Vocabulary add failed", zap.String("term", normalized), zap.Error(err))
			return false
		}
		v.publishSize()
		return true
	}

	v.mu.Lock()
	if v.terms[normalized] {
		v.mu.Unlock()
		return false
	}
	v.terms[normalized] = true
	v.dirty = true
	v.save()
	v.mu.Unlock()

	logger.Debug("Vocabulary term learned",
		zap.String("term", normalized),
		zap.String("source", source),
	)
	v.publishSize()
	return true
}

// GetCachedValidation replays a previous resolution for the term, or nil.
func (v *Vocabulary) GetCachedValidation(term string) *models.CachedResult {
	hash := utils.TermHash(term)

	if v.db != nil {
		var result models.CachedResult
		found, err := v.db.GetVocabularyCache(term, "validation", &result)
		if err != nil {
			logger.Warn("Validation cache lookup failed", zap.String("term", term), zap.Error(err))
			return nil
		}
		if !found {
			return nil
		}
		return &result
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.validations[hash]
}

func (v *Vocabulary) PutCachedValidation(term string, result *models.CachedResult) {
	if v.db != nil {
		if err := v.db.UpsertVocabularyCache(term, "validation", result); err != nil {
			logger.Warn("Validation cache write failed", zap.String("term", term), zap.Error(err))
		}
		return
	}

	v.mu.Lock()
	v.validations[utils.TermHash(term)] = result
	v.dirty = true
	v.save()
	v.mu.Unlock()
}

// GetCachedClassification returns (isMedical, isCorrect, found).
func (v *Vocabulary) GetCachedClassification(term string) (bool, bool, bool) {
	if v.db != nil {
		var c classification
		found, err := v.db.GetVocabularyCache(term, "classification", &c)
		if err != nil || !found {
			return false, false, false
		}
		return c.IsMedical, c.IsCorrect, true
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	c, found := v.classifications[utils.TermHash(term)]
	return c.IsMedical, c.IsCorrect, found
}

func (v *Vocabulary) PutCachedClassification(term string, isMedical, isCorrect bool) {
	c := classification{IsMedical: isMedical, IsCorrect: isCorrect}

	if v.db != nil {
		if err := v.db.UpsertVocabularyCache(term, "classification", c); err != nil {
			logger.Warn("Classification cache write failed", zap.String("term", term), zap.Error(err))
		}
		return
	}

	v.mu.Lock()
	v.classifications[utils.TermHash(term)] = c
	v.dirty = true
	v.save()
	v.mu.Unlock()
}

type Stats struct {
	Terms        int    `json:"terms"`
	CacheEntries int    `json:"cache_entries"`
	Backend      string `json:"backend"`
}

func (v *Vocabulary) Stats() Stats {
	if v.db != nil {
		terms, _ := v.db.CountVocabularyTerms()
		entries, _ := v.db.CountVocabularyCache()
		return Stats{Terms: terms, CacheEntries: entries, Backend: "sqlite"}
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	return Stats{
		Terms:        len(v.terms),
		CacheEntries: len(v.validations) + len(v.classifications),
		Backend:      "file",
	}
}

// Terms returns the confirmed terms, most used first when backed by SQLite.
func (v *Vocabulary) Terms() []string {
	if v.db != nil {
		terms, err := v.db.ListVocabularyTerms()
		if err != nil {
			logger.Warn("Vocabulary list failed", zap.Error(err))
			return nil
		}
		return terms
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	terms := make([]string, 0, len(v.terms))
	for term := range v.terms {
		terms = append(terms, term)
	}
	return terms
}

func (v *Vocabulary) publishSize() {
	metrics.VocabularySize.Set(float64(v.Stats().Terms))
}
