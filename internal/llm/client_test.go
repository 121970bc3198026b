package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinscribe/backend/pkg/config"
)

func configWithKey(key string) config.LLMConfig {
	return config.LLMConfig{
		Model:           "gpt-4o-mini",
		TranscribeModel: "gpt-4o-transcribe",
		APIKey:          key,
		Temperature:     0.2,
		MaxTokens:       1024,
		TimeoutSec:      5,
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare object",
			input: `{"a": 1}`,
			want:  `{"a": 1}`,
		},
		{
			name:  "markdown fenced",
			input: "Here you go:\n```json\n{\"a\": 1}\n```\nDone.",
			want:  `{"a": 1}`,
		},
		{
			name:  "nested braces",
			input: `prefix {"outer": {"inner": 2}} suffix`,
			want:  `{"outer": {"inner": 2}}`,
		},
		{
			name:  "braces inside strings",
			input: `{"note": "use {caution}"}`,
			want:  `{"note": "use {caution}"}`,
		},
		{
			name:  "no object",
			input: "sorry, I cannot help with that",
			want:  "",
		},
		{
			name:  "unbalanced",
			input: `{"a": 1`,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSONObject(tt.input))
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	assert.Equal(t, `[{"term": "metformin", "category": "medication"}]`,
		ExtractJSONArray("Identified terms:\n[{\"term\": \"metformin\", \"category\": \"medication\"}]"))
	assert.Equal(t, "", ExtractJSONArray("none found"))
	assert.Equal(t, `["a", "b"]`, ExtractJSONArray(`ignore ["a", "b"] trailing`))
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(configWithKey(""))
	assert.ErrorIs(t, err, ErrNotConfigured)

	client, err := NewClient(configWithKey("sk-test"))
	assert.NoError(t, err)
	assert.NotNil(t, client)
}
