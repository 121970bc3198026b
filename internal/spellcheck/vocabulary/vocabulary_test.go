package vocabulary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinscribe/backend/internal/storage/models"
	"github.com/clinscribe/backend/internal/storage/sqlite"
)

func fileVocab(t *testing.T) (*Vocabulary, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocabulary.json")
	return New(nil, path), path
}

func sqliteVocab(t *testing.T) *Vocabulary {
	t.Helper()
	client, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())
	t.Cleanup(func() { client.Close() })
	return New(client, "")
}

func TestAdd_Idempotent(t *testing.T) {
	v, _ := fileVocab(t)

	assert.True(t, v.Add("Cefazolin", "user"))
	assert.False(t, v.Add("cefazolin", "user"), "re-adding the same term is a no-op")
	assert.True(t, v.Contains("CEFAZOLIN"))
	assert.Equal(t, 1, v.Stats().Terms)
}

func TestAdd_SkipsStopwordsAndShortTerms(t *testing.T) {
	v, _ := fileVocab(t)

	assert.False(t, v.Add("the", "user"))
	assert.False(t, v.Add("bp", "user"))
	assert.False(t, v.Add("patient", "user"))
	assert.Zero(t, v.Stats().Terms)
}

func TestAdd_PersistsAcrossReload(t *testing.T) {
	v, path := fileVocab(t)
	v.Add("metoprolol", "terminology")

	reloaded := New(nil, path)
	assert.True(t, reloaded.Contains("metoprolol"))
}

func TestLoad_CorruptFileBackedUpAndReset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocabulary.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"terms": [truncated`), 0o644))

	v := New(nil, path)
	assert.Zero(t, v.Stats().Terms, "corrupt store starts empty")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "corrupt file is removed")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "vocabulary.json.backup_")

	// still usable after recovery
	assert.True(t, v.Add("lisinopril", "user"))
	assert.True(t, v.Contains("lisinopril"))
}

func TestValidationCache_RoundTrip(t *testing.T) {
	v, _ := fileVocab(t)

	require.Nil(t, v.GetCachedValidation("metformni"))

	v.PutCachedValidation("metformni", &models.CachedResult{
		Term:        "metformni",
		IsCorrect:   false,
		Suggestions: []string{"metformin"},
		Confidence:  0.7,
		Source:      "suggestions",
	})

	cached := v.GetCachedValidation("Metformni")
	require.NotNil(t, cached)
	assert.False(t, cached.IsCorrect)
	assert.Equal(t, []string{"metformin"}, cached.Suggestions)
}

func TestClassificationCache_RoundTrip(t *testing.T) {
	v, _ := fileVocab(t)

	_, _, found := v.GetCachedClassification("dyspnea")
	require.False(t, found)

	v.PutCachedClassification("dyspnea", true, true)

	isMedical, isCorrect, found := v.GetCachedClassification("dyspnea")
	require.True(t, found)
	assert.True(t, isMedical)
	assert.True(t, isCorrect)
}

func TestSnapshot_Format(t *testing.T) {
	v, path := fileVocab(t)
	v.Add("warfarin", "user")
	v.PutCachedClassification("warfarin", true, true)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Contains(t, snap, "terms")
	assert.Contains(t, snap, "validations")
	assert.Contains(t, snap, "classifications")
	assert.Contains(t, snap, "last_updated")
}

func TestSQLiteBackend(t *testing.T) {
	v := sqliteVocab(t)

	assert.True(t, v.Add("Enoxaparin", "terminology"))
	assert.True(t, v.Contains("enoxaparin"))
	assert.False(t, v.Contains("apixaban"))

	v.PutCachedValidation("apixiban", &models.CachedResult{
		Term:        "apixiban",
		Suggestions: []string{"apixaban"},
		Confidence:  0.7,
		Source:      "suggestions",
	})
	cached := v.GetCachedValidation("apixiban")
	require.NotNil(t, cached)
	assert.Equal(t, []string{"apixaban"}, cached.Suggestions)

	stats := v.Stats()
	assert.Equal(t, "sqlite", stats.Backend)
	assert.Equal(t, 1, stats.Terms)
	assert.Equal(t, 1, stats.CacheEntries)
}
