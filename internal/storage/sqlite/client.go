package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/clinscribe/backend/internal/storage/models"
	"github.com/clinscribe/backend/pkg/logger"
	"github.com/clinscribe/backend/pkg/utils"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vocabulary (
		term_hash TEXT PRIMARY KEY,
		term TEXT NOT NULL,
		confirmed INTEGER NOT NULL DEFAULT 1,
		source TEXT,
		added_at INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_vocabulary_term ON vocabulary(term);

	CREATE TABLE IF NOT EXISTS vocabulary_cache (
		term_hash TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (term_hash, kind)
	);

	CREATE TABLE IF NOT EXISTS terminology_cache (
		term_hash TEXT PRIMARY KEY,
		term TEXT NOT NULL,
		raw_response TEXT,
		concept_count INTEGER NOT NULL DEFAULT 0,
		is_valid INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_terminology_expires ON terminology_cache(expires_at);

	CREATE TABLE IF NOT EXISTS classification_cache (
		term_hash TEXT PRIMARY KEY,
		term TEXT NOT NULL,
		is_medical INTEGER NOT NULL,
		is_correct INTEGER NOT NULL,
		category TEXT,
		confidence REAL,
		llm_identified INTEGER NOT NULL DEFAULT 0,
		terminology_validated INTEGER NOT NULL DEFAULT 0,
		needs_correction INTEGER NOT NULL DEFAULT 0,
		source TEXT,
		created_at INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS suggestion_cache (
		term_hash TEXT PRIMARY KEY,
		term TEXT NOT NULL,
		suggestions TEXT NOT NULL,
		source TEXT,
		confidence REAL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_suggestion_expires ON suggestion_cache(expires_at);

	CREATE TABLE IF NOT EXISTS usage_stats (
		id TEXT PRIMARY KEY,
		endpoint TEXT NOT NULL,
		operation TEXT NOT NULL,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER,
		error_occurred INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_endpoint ON usage_stats(endpoint);
	CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_stats(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertVocabularyTerm(term, source string) error {
	query := `
		INSERT INTO vocabulary (term_hash, term, confirmed, source, added_at, access_count)
		VALUES (?, ?, 1, ?, ?, 1)
		ON CONFLICT(term_hash) DO UPDATE SET
			confirmed = 1,
			access_count = vocabulary.access_count + 1
	`

	normalized := utils.NormalizeTerm(term)
	_, err := c.db.Exec(query, utils.TermHash(term), normalized, source, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert vocabulary term: %w", err)
	}

	logger.Debug("Vocabulary term upserted", zap.String("term", normalized))
	return nil
}

func (c *Client) HasVocabularyTerm(term string) (bool, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(1) FROM vocabulary WHERE term_hash = ? AND confirmed = 1`,
		utils.TermHash(term)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query vocabulary: %w", err)
	}
	return count > 0, nil
}

func (c *Client) CountVocabularyTerms() (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(1) FROM vocabulary WHERE confirmed = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vocabulary: %w", err)
	}
	return count, nil
}

func (c *Client) ListVocabularyTerms() ([]string, error) {
	rows, err := c.db.Query(`SELECT term FROM vocabulary WHERE confirmed = 1 ORDER BY access_count DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vocabulary: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		terms = append(terms, term)
	}

	return terms, rows.Err()
}

func (c *Client) UpsertVocabularyCache(term, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload: %w", err)
	}

	query := `
		INSERT INTO vocabulary_cache (term_hash, kind, payload, created_at, access_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(term_hash, kind) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			access_count = vocabulary_cache.access_count + 1
	`

	if _, err := c.db.Exec(query, utils.TermHash(term), kind, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to upsert vocabulary cache: %w", err)
	}
	return nil
}

func (c *Client) GetVocabularyCache(term, kind string, out any) (bool, error) {
	var payload string
	err := c.db.QueryRow(`SELECT payload FROM vocabulary_cache WHERE term_hash = ? AND kind = ?`,
		utils.TermHash(term), kind).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query vocabulary cache: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache payload: %w", err)
	}
	return true, nil
}

func (c *Client) CountVocabularyCache() (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(1) FROM vocabulary_cache`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vocabulary cache: %w", err)
	}
	return count, nil
}

func (c *Client) UpsertTerminologyCache(rec *models.TerminologyCacheRecord) error {
	query := `
		INSERT INTO terminology_cache (term_hash, term, raw_response, concept_count, is_valid, created_at, expires_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(term_hash) DO UPDATE SET
			raw_response = excluded.raw_response,
			concept_count = excluded.concept_count,
			is_valid = excluded.is_valid,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			access_count = terminology_cache.access_count + 1
	`

	_, err := c.db.Exec(
		query,
		rec.TermHash,
		rec.Term,
		rec.RawResponse,
		rec.ConceptCount,
		boolToInt(rec.IsValid),
		rec.CreatedAt.Unix(),
		rec.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert terminology cache: %w", err)
	}
	return nil
}

func (c *Client) GetTerminologyCache(term string, now time.Time) (*models.TerminologyCacheRecord, error) {
	query := `
		SELECT term_hash, term, raw_response, concept_count, is_valid, created_at, expires_at, access_count
		FROM terminology_cache
		WHERE term_hash = ? AND expires_at > ?
	`

	var rec models.TerminologyCacheRecord
	var isValid int
	var createdAt, expiresAt int64

	err := c.db.QueryRow(query, utils.TermHash(term), now.Unix()).Scan(
		&rec.TermHash,
		&rec.Term,
		&rec.RawResponse,
		&rec.ConceptCount,
		&isValid,
		&createdAt,
		&expiresAt,
		&rec.AccessCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get terminology cache: %w", err)
	}

	rec.IsValid = isValid == 1
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.ExpiresAt = time.Unix(expiresAt, 0)

	c.db.Exec(`UPDATE terminology_cache SET access_count = access_count + 1 WHERE term_hash = ?`, rec.TermHash)

	return &rec, nil
}

func (c *Client) UpsertClassificationCache(rec *models.ClassificationCacheRecord) error {
	query := `
		INSERT INTO classification_cache (term_hash, term, is_medical, is_correct, category, confidence,
			llm_identified, terminology_validated, needs_correction, source, created_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(term_hash) DO UPDATE SET
			is_medical = excluded.is_medical,
			is_correct = excluded.is_correct,
			category = excluded.category,
			confidence = excluded.confidence,
			llm_identified = excluded.llm_identified,
			terminology_validated = excluded.terminology_validated,
			needs_correction = excluded.needs_correction,
			source = excluded.source,
			access_count = classification_cache.access_count + 1
	`

	_, err := c.db.Exec(
		query,
		rec.TermHash,
		rec.Term,
		boolToInt(rec.IsMedical),
		boolToInt(rec.IsCorrect),
		rec.Category,
		rec.Confidence,
		boolToInt(rec.LLMIdentified),
		boolToInt(rec.TerminologyValidated),
		boolToInt(rec.NeedsCorrection),
		rec.Source,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert classification cache: %w", err)
	}
	return nil
}

func (c *Client) GetClassificationCache(term string) (*models.ClassificationCacheRecord, error) {
	query := `
		SELECT term_hash, term, is_medical, is_correct, category, confidence,
			llm_identified, terminology_validated, needs_correction, source, created_at, access_count
		FROM classification_cache
		WHERE term_hash = ?
	`

	var rec models.ClassificationCacheRecord
	var isMedical, isCorrect, llmIdentified, terminologyValidated, needsCorrection int
	var createdAt int64

	err := c.db.QueryRow(query, utils.TermHash(term)).Scan(
		&rec.TermHash,
		&rec.Term,
		&isMedical,
		&isCorrect,
		&rec.Category,
		&rec.Confidence,
		&llmIdentified,
		&terminologyValidated,
		&needsCorrection,
		&rec.Source,
		&createdAt,
		&rec.AccessCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classification cache: %w", err)
	}

	rec.IsMedical = isMedical == 1
	rec.IsCorrect = isCorrect == 1
	rec.LLMIdentified = llmIdentified == 1
	rec.TerminologyValidated = terminologyValidated == 1
	rec.NeedsCorrection = needsCorrection == 1
	rec.CreatedAt = time.Unix(createdAt, 0)

	c.db.Exec(`UPDATE classification_cache SET access_count = access_count + 1 WHERE term_hash = ?`, rec.TermHash)

	return &rec, nil
}

func (c *Client) UpsertSuggestionCache(rec *models.SuggestionCacheRecord) error {
	suggestionsJSON, err := json.Marshal(rec.Suggestions)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestions: %w", err)
	}

	query := `
		INSERT INTO suggestion_cache (term_hash, term, suggestions, source, confidence, created_at, expires_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(term_hash) DO UPDATE SET
			suggestions = excluded.suggestions,
			source = excluded.source,
			confidence = excluded.confidence,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			access_count = suggestion_cache.access_count + 1
	`

	_, err = c.db.Exec(
		query,
		rec.TermHash,
		rec.Term,
		string(suggestionsJSON),
		rec.Source,
		rec.Confidence,
		rec.CreatedAt.Unix(),
		rec.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert suggestion cache: %w", err)
	}
	return nil
}

func (c *Client) GetSuggestionCache(term string, now time.Time) (*models.SuggestionCacheRecord, error) {
	query := `
		SELECT term_hash, term, suggestions, source, confidence, created_at, expires_at, access_count
		FROM suggestion_cache
		WHERE term_hash = ? AND expires_at > ?
	`

	var rec models.SuggestionCacheRecord
	var suggestionsJSON string
	var createdAt, expiresAt int64

	err := c.db.QueryRow(query, utils.TermHash(term), now.Unix()).Scan(
		&rec.TermHash,
		&rec.Term,
		&suggestionsJSON,
		&rec.Source,
		&rec.Confidence,
		&createdAt,
		&expiresAt,
		&rec.AccessCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion cache: %w", err)
	}

	json.Unmarshal([]byte(suggestionsJSON), &rec.Suggestions)
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.ExpiresAt = time.Unix(expiresAt, 0)

	c.db.Exec(`UPDATE suggestion_cache SET access_count = access_count + 1 WHERE term_hash = ?`, rec.TermHash)

	return &rec, nil
}

func (c *Client) InsertUsageStat(stat *models.UsageStat) error {
	query := `
		INSERT INTO usage_stats (id, endpoint, operation, cache_hit, latency_ms, error_occurred, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		stat.ID,
		stat.Endpoint,
		stat.Operation,
		boolToInt(stat.CacheHit),
		stat.LatencyMS,
		boolToInt(stat.ErrorOccurred),
		stat.ErrorMessage,
		stat.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage stat: %w", err)
	}
	return nil
}

// PurgeExpired deletes all cache rows past their expiry and returns how many
// were removed.
func (c *Client) PurgeExpired(now time.Time) (int, error) {
	var purged int64

	res, err := c.db.Exec(`DELETE FROM terminology_cache WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminology cache: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		purged += n
	}

	res, err = c.db.Exec(`DELETE FROM suggestion_cache WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return int(purged), fmt.Errorf("failed to purge suggestion cache: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		purged += n
	}

	return int(purged), nil
}

func (c *Client) CountCacheEntries() (int, error) {
	var total int
	for _, table := range []string{"terminology_cache", "classification_cache", "suggestion_cache"} {
		var count int
		if err := c.db.QueryRow(`SELECT COUNT(1) FROM ` + table).Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to count %s: %w", table, err)
		}
		total += count
	}
	return total, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
