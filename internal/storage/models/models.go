package models

import "time"

// VocabularyEntry is a confirmed medical term in the growable vocabulary.
// Entries are never deleted; Add is idempotent.
type VocabularyEntry struct {
	Term        string
	Confirmed   bool
	Source      string
	AddedAt     time.Time
	AccessCount int
}

// TerminologyCacheRecord caches a raw terminology-service response for a term.
type TerminologyCacheRecord struct {
	TermHash     string
	Term         string
	RawResponse  string
	ConceptCount int
	IsValid      bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
	AccessCount  int
}

// ClassificationCacheRecord caches the outcome of classifying a term as
// medical plus the spelling verdict that went with it.
type ClassificationCacheRecord struct {
	TermHash             string
	Term                 string
	IsMedical            bool
	IsCorrect            bool
	Category             string
	Confidence           float64
	LLMIdentified        bool
	TerminologyValidated bool
	NeedsCorrection      bool
	Source               string
	CreatedAt            time.Time
	AccessCount          int
}

// SuggestionCacheRecord caches a ranked suggestion list for a misspelled term.
type SuggestionCacheRecord struct {
	TermHash    string
	Term        string
	Suggestions []string
	Source      string
	Confidence  float64
	CreatedAt   time.Time
	ExpiresAt   time.Time
	AccessCount int
}

// CachedResult is a previously computed spell-check verdict stored in the
// vocabulary's auxiliary cache so it can be replayed verbatim.
type CachedResult struct {
	Term        string   `json:"term"`
	IsCorrect   bool     `json:"is_correct"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source"`
	Category    string   `json:"category,omitempty"`
}

// UsageStat is one row of API usage telemetry.
type UsageStat struct {
	ID            string
	Endpoint      string
	Operation     string
	CacheHit      bool
	LatencyMS     int64
	ErrorOccurred bool
	ErrorMessage  string
	CreatedAt     time.Time
}
