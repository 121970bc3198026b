package transcription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTranscriber struct {
	text     string
	err      error
	filename string
	language string
	calls    int
}

func (s *stubTranscriber) Transcribe(_ context.Context, filename string, _ []byte, language string) (string, error) {
	s.calls++
	s.filename = filename
	s.language = language
	return s.text, s.err
}

func TestServiceRejectsEmptyAudio(t *testing.T) {
	stub := &stubTranscriber{}
	svc := NewService(stub)

	_, err := svc.Transcribe(context.Background(), "note.wav", nil, "en")

	assert.ErrorIs(t, err, ErrEmptyAudio)
	assert.Zero(t, stub.calls)
}

func TestServiceRejectsOversizedAudio(t *testing.T) {
	stub := &stubTranscriber{}
	svc := NewService(stub)

	_, err := svc.Transcribe(context.Background(), "note.wav", make([]byte, maxAudioBytes+1), "en")

	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Zero(t, stub.calls)
}

func TestServiceDefaultsFilenameAndLanguage(t *testing.T) {
	stub := &stubTranscriber{text: "  patient reports chest pain  "}
	svc := NewService(stub)

	text, err := svc.Transcribe(context.Background(), "recording", []byte{1, 2, 3}, "")

	require.NoError(t, err)
	assert.Equal(t, "patient reports chest pain", text)
	assert.Equal(t, "recording.wav", stub.filename)
	assert.Equal(t, "en", stub.language)
	assert.Equal(t, 1, stub.calls)
}

func TestServiceKeepsProvidedExtensionAndLanguage(t *testing.T) {
	stub := &stubTranscriber{text: "ok"}
	svc := NewService(stub)

	_, err := svc.Transcribe(context.Background(), "visit.m4a", []byte{1}, "ar")

	require.NoError(t, err)
	assert.Equal(t, "visit.m4a", stub.filename)
	assert.Equal(t, "ar", stub.language)
}
