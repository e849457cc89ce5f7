package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, ":8000", s.Server.ListenAddr)
	assert.Equal(t, "info", s.Server.LogLevel)
	assert.Equal(t, 100, s.Server.BatchMaxSize)

	assert.Equal(t, "http://ollama:11434", s.Ollama.BaseURL)
	assert.Equal(t, "qwen2.5:7b", s.Ollama.Model)
	assert.Equal(t, 60*time.Second, s.Ollama.Timeout())
	assert.Equal(t, 2, s.Ollama.ConnectRetries)
	assert.Empty(t, s.Ollama.FallbackModels)

	assert.Equal(t, 0.1, s.Generation.Temperature)
	assert.Equal(t, 2048, s.Generation.MaxTokens)

	assert.Equal(t, 8000, s.Prompt.BodyTruncationLimit)
	assert.Equal(t, 4000, s.Prompt.ShrinkBodyLimit)
	assert.Equal(t, 100, s.Prompt.CandidateTopN)
	assert.Equal(t, 50, s.Prompt.ShrinkTopN)

	assert.Equal(t, 3, s.Retry.MaxRetries)
	assert.Equal(t, 2.0, s.Retry.BackoffBase)

	assert.False(t, s.Redaction.ForLLM)
	assert.True(t, s.Redaction.StorageEnabled())
	assert.Contains(t, s.Redaction.PiiTypes, "CF")
	assert.Contains(t, s.Redaction.PiiTypes, "EMAIL")

	assert.Equal(t, 0.2, s.Validation.MinConfidenceWarning)
	assert.True(t, s.Validation.EvidenceCheckEnabled())
	assert.True(t, s.Validation.KeywordCheckEnabled())

	assert.Equal(t, "redis://redis:6379/0", s.Redis.URL)
	assert.Equal(t, 50, s.Redis.MaxConnections)

	assert.Equal(t, 24*time.Hour, s.Store.ResultTTL())
	assert.Equal(t, 10000, s.Store.DLQMaxEntries)

	assert.Equal(t, 4, s.Queue.WorkerCount)
	assert.Equal(t, 3, s.Queue.MaxDeliveries)
	assert.Equal(t, 60*time.Second, s.Queue.RedeliveryDelay())

	assert.Equal(t, 1, s.Pipeline.DictionaryVersion)
}

func TestDefaultSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
}

func TestTogglesDistinguishUnsetFromFalse(t *testing.T) {
	s := DefaultSettings()

	s.Redaction.ForStorage = nil
	assert.True(t, s.Redaction.StorageEnabled(), "unset means default on")

	s.Redaction.ForStorage = boolPtr(false)
	assert.False(t, s.Redaction.StorageEnabled())

	s.Validation.EvidencePresenceCheck = boolPtr(false)
	assert.False(t, s.Validation.EvidenceCheckEnabled())

	s.Validation.KeywordPresenceCheck = nil
	assert.True(t, s.Validation.KeywordCheckEnabled())
}
