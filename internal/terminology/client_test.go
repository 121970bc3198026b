package terminology

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinscribe/backend/pkg/config"
)

func testConfig(baseURL string) config.TerminologyConfig {
	return config.TerminologyConfig{
		BaseURL:            baseURL,
		TimeoutSec:         2,
		RetryAttempts:      1,
		RetryDelaySec:      1,
		BreakerThreshold:   2,
		BreakerCooldownSec: 60,
		CacheTTLSec:        300,
		CacheMaxEntries:    100,
	}
}

func TestSearch_ParsesConceptsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/concepts/search", r.URL.Path)
		w.Write([]byte(`{"concepts": [{"conceptId": "22298006", "term": "myocardial infarction", "fsn": "Myocardial infarction (disorder)"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	concepts, err := client.Search(context.Background(), "myocardial infarction", 5)

	require.NoError(t, err)
	require.Len(t, concepts, 1)
	assert.Equal(t, "22298006", concepts[0].ConceptID)
	assert.Equal(t, "myocardial infarction", concepts[0].Term)
}

func TestSearch_ProbesAlternateEnvelopeKeys(t *testing.T) {
	bodies := []string{
		`{"results": [{"id": "1", "term": "asthma"}]}`,
		`{"data": [{"id": "2", "term": "asthma"}]}`,
		`{"items": [{"id": "3", "fsn": {"term": "Asthma (disorder)", "lang": "en"}}]}`,
	}

	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		client := NewClient(testConfig(srv.URL))
		concepts, err := client.Search(context.Background(), "asthma", 5)
		require.NoError(t, err, "body: %s", body)
		require.Len(t, concepts, 1, "body: %s", body)

		srv.Close()
	}
}

func TestSearch_UnknownEnvelopeIsEmptySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total": 0, "offset": 0}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	concepts, err := client.Search(context.Background(), "xyzzy", 5)

	require.NoError(t, err)
	assert.Empty(t, concepts)
	assert.False(t, client.CircuitOpen())
}

func TestSearch_SecondLookupServedFromCache(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"concepts": [{"conceptId": "1", "term": "metformin"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	_, err := client.Search(context.Background(), "Metformin", 5)
	require.NoError(t, err)
	_, err = client.Search(context.Background(), "  metformin ", 5)
	require.NoError(t, err)

	assert.Equal(t, int32(1), requests.Load(), "normalized repeat must not hit the network")
}

func TestSearch_RetriesRateLimit(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"concepts": [{"conceptId": "1", "term": "aspirin"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	concepts, err := client.Search(context.Background(), "aspirin", 5)

	require.NoError(t, err)
	assert.Len(t, concepts, 1)
	assert.Equal(t, int32(2), requests.Load())
}

func TestSearch_ClientErrorNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Search(context.Background(), "aspirin", 5)

	require.Error(t, err)
	assert.Equal(t, int32(1), requests.Load())
}

func TestSearch_ServerFailuresTripBreaker(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryAttempts = 0
	client := NewClient(cfg)

	_, err := client.Search(context.Background(), "term-a", 5)
	require.Error(t, err)
	_, err = client.Search(context.Background(), "term-b", 5)
	require.Error(t, err)
	require.True(t, client.CircuitOpen())

	before := requests.Load()
	concepts, err := client.Search(context.Background(), "term-c", 5)
	require.NoError(t, err, "short circuit is not an error")
	assert.Empty(t, concepts)
	assert.Equal(t, before, requests.Load(), "open breaker must not reach the network")
}

func TestValidate_MatchesOnStrippedFSN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"concepts": [{"conceptId": "1", "term": "MI", "fsn": "Myocardial infarction (disorder)"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	valid, err := client.Validate(context.Background(), "Myocardial Infarction")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = client.Validate(context.Background(), "myocardial infraction")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestSuggest_DeduplicatesAndCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"concepts": [
			{"conceptId": "1", "term": "Asthma"},
			{"conceptId": "2", "term": "asthma"},
			{"conceptId": "3", "term": "Allergic asthma"},
			{"conceptId": "4", "term": "Occupational asthma"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	suggestions, err := client.Suggest(context.Background(), "athsma", 2)

	require.NoError(t, err)
	assert.Equal(t, []string{"Asthma", "Allergic asthma"}, suggestions)
}

func TestStripSemanticTag(t *testing.T) {
	assert.Equal(t, "Myocardial infarction", StripSemanticTag("Myocardial infarction (disorder)"))
	assert.Equal(t, "Aspirin", StripSemanticTag("Aspirin (product)"))
	assert.Equal(t, "No tag here", StripSemanticTag("No tag here"))
	assert.Equal(t, "(weird)", StripSemanticTag("(weird)"))
}
