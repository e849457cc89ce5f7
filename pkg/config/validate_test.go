package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid defaults",
			mutate:  func(s *Settings) {},
			wantErr: false,
		},
		{
			name:    "empty listen addr",
			mutate:  func(s *Settings) { s.Server.ListenAddr = "" },
			wantErr: true,
			errMsg:  "listen_addr",
		},
		{
			name:    "unknown log level",
			mutate:  func(s *Settings) { s.Server.LogLevel = "verbose" },
			wantErr: true,
			errMsg:  "log_level",
		},
		{
			name:    "batch max size zero",
			mutate:  func(s *Settings) { s.Server.BatchMaxSize = 0 },
			wantErr: true,
			errMsg:  "batch_max_size must be at least 1",
		},
		{
			name:    "empty model",
			mutate:  func(s *Settings) { s.Ollama.Model = "" },
			wantErr: true,
			errMsg:  "model",
		},
		{
			name:    "timeout zero",
			mutate:  func(s *Settings) { s.Ollama.TimeoutSeconds = 0 },
			wantErr: true,
			errMsg:  "timeout_seconds must be positive",
		},
		{
			name:    "empty fallback entry",
			mutate:  func(s *Settings) { s.Ollama.FallbackModels = []string{"mistral:7b", ""} },
			wantErr: true,
			errMsg:  "fallback_models",
		},
		{
			name:    "temperature out of range",
			mutate:  func(s *Settings) { s.Generation.Temperature = 2.5 },
			wantErr: true,
			errMsg:  "temperature must be between 0 and 2",
		},
		{
			name:    "max tokens zero",
			mutate:  func(s *Settings) { s.Generation.MaxTokens = 0 },
			wantErr: true,
			errMsg:  "max_tokens must be at least 1",
		},
		{
			name: "shrink body above normal limit",
			mutate: func(s *Settings) {
				s.Prompt.BodyTruncationLimit = 4000
				s.Prompt.ShrinkBodyLimit = 8000
			},
			wantErr: true,
			errMsg:  "shrink_body_limit must not exceed body_truncation_limit",
		},
		{
			name: "shrink top-n above normal top-n",
			mutate: func(s *Settings) {
				s.Prompt.CandidateTopN = 50
				s.Prompt.ShrinkTopN = 100
			},
			wantErr: true,
			errMsg:  "shrink_top_n must not exceed candidate_top_n",
		},
		{
			name:    "max retries zero",
			mutate:  func(s *Settings) { s.Retry.MaxRetries = 0 },
			wantErr: true,
			errMsg:  "max_retries must be at least 1",
		},
		{
			name:    "backoff base below one",
			mutate:  func(s *Settings) { s.Retry.BackoffBase = 0.5 },
			wantErr: true,
			errMsg:  "backoff_base must be at least 1",
		},
		{
			name:    "confidence threshold above one",
			mutate:  func(s *Settings) { s.Validation.MinConfidenceWarning = 1.5 },
			wantErr: true,
			errMsg:  "min_confidence_warning must be between 0 and 1",
		},
		{
			name:    "empty redis url",
			mutate:  func(s *Settings) { s.Redis.URL = "" },
			wantErr: true,
			errMsg:  "url must not be empty",
		},
		{
			name:    "ttl zero",
			mutate:  func(s *Settings) { s.Store.ResultTTLSeconds = 0 },
			wantErr: true,
			errMsg:  "result_ttl_seconds must be positive",
		},
		{
			name:    "worker count too high",
			mutate:  func(s *Settings) { s.Queue.WorkerCount = 51 },
			wantErr: true,
			errMsg:  "worker_count must be between 1 and 50",
		},
		{
			name:    "worker count zero",
			mutate:  func(s *Settings) { s.Queue.WorkerCount = 0 },
			wantErr: true,
			errMsg:  "worker_count must be between 1 and 50",
		},
		{
			name:    "dictionary version zero",
			mutate:  func(s *Settings) { s.Pipeline.DictionaryVersion = 0 },
			wantErr: true,
			errMsg:  "dictionary_version must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			err := s.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
