package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinscribe/backend/internal/spellcheck/dictionary"
	"github.com/clinscribe/backend/internal/spellcheck/vocabulary"
)

func patternOnly() *Classifier {
	return New(nil, nil, nil, nil)
}

func termsOf(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Term
	}
	return out
}

func TestExtractCandidates_DrugSuffixPattern(t *testing.T) {
	candidates, llmUsed := patternOnly().ExtractCandidates(context.Background(),
		"continue metoprolol and start pantoprazole")

	assert.False(t, llmUsed)
	terms := termsOf(candidates)
	assert.Contains(t, terms, "metoprolol")
	assert.Contains(t, terms, "pantoprazole")
}

func TestExtractCandidates_AbbreviationsAndDosages(t *testing.T) {
	candidates, _ := patternOnly().ExtractCandidates(context.Background(),
		"BP stable, ordered CT and started 500 mg TID")

	terms := termsOf(candidates)
	assert.Contains(t, terms, "BP")
	assert.Contains(t, terms, "CT")
	assert.Contains(t, terms, "500 mg")
	assert.Contains(t, terms, "TID")
}

func TestExtractCandidates_ConditionSuffixes(t *testing.T) {
	candidates, _ := patternOnly().ExtractCandidates(context.Background(),
		"findings consistent with pancreatitis and anemia ruled out by colonoscopy")

	terms := termsOf(candidates)
	assert.Contains(t, terms, "pancreatitis")
	assert.Contains(t, terms, "colonoscopy")
}

func TestExtractCandidates_KnownWordSweep(t *testing.T) {
	dict := dictionary.New()
	cls := New(nil, nil, dict, nil)

	candidates, _ := cls.ExtractCandidates(context.Background(),
		"gave tylenol for the headache")

	terms := termsOf(candidates)
	assert.Contains(t, terms, "tylenol", "dictionary synonym is surfaced")
	assert.Contains(t, terms, "headache")
}

func TestExtractCandidates_CachedClassificationsConsulted(t *testing.T) {
	vocab := vocabulary.New(nil, "")
	vocab.PutCachedClassification("rybelsus", true, true)
	vocab.PutCachedClassification("wellness", false, false)
	cls := New(nil, nil, nil, vocab)

	candidates, _ := cls.ExtractCandidates(context.Background(),
		"switched to rybelsus during the wellness visit")

	terms := termsOf(candidates)
	assert.Contains(t, terms, "rybelsus", "cached medical verdict is replayed")
	assert.NotContains(t, terms, "wellness", "cached non-medical verdict suppresses the word")
}

func TestExtractCandidates_StoplistAndShortTermsDropped(t *testing.T) {
	candidates, _ := patternOnly().ExtractCandidates(context.Background(),
		"the patient reports no concerns")

	for _, c := range candidates {
		assert.NotEqual(t, "the", c.Term)
		assert.NotEqual(t, "patient", c.Term)
	}
}

func TestExtractCandidates_OverlapsDeduplicated(t *testing.T) {
	// "pancreatitis" matches both the suffix pattern and the NLP noun pass
	candidates, _ := patternOnly().ExtractCandidates(context.Background(),
		"acute pancreatitis confirmed")

	seen := 0
	for _, c := range candidates {
		if c.Term == "pancreatitis" {
			seen++
		}
	}
	assert.Equal(t, 1, seen)
}

func TestExtractCandidates_SortedByPosition(t *testing.T) {
	candidates, _ := patternOnly().ExtractCandidates(context.Background(),
		"colonoscopy scheduled, then metoprolol 25 mg")

	require.NotEmpty(t, candidates)
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i].Start, candidates[i-1].Start)
	}
}

func TestDedupeOverlaps_FirstSeenWins(t *testing.T) {
	kept := dedupeOverlaps([]Candidate{
		{Term: "myocardial infarction", Start: 0, End: 21, Category: "condition"},
		{Term: "infarction", Start: 11, End: 21, Category: "medical"},
		{Term: "later", Start: 30, End: 35, Category: "medical"},
	})

	require.Len(t, kept, 2)
	assert.Equal(t, "myocardial infarction", kept[0].Term)
	assert.Equal(t, "later", kept[1].Term)
}
