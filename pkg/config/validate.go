package config

import "fmt"

// Validate performs comprehensive validation (fail-fast - stops at first error)
func (s *Settings) Validate() error {
	if err := s.validateServer(); err != nil {
		return err
	}
	if err := s.validateOllama(); err != nil {
		return err
	}
	if err := s.validateGeneration(); err != nil {
		return err
	}
	if err := s.validatePrompt(); err != nil {
		return err
	}
	if err := s.validateRetry(); err != nil {
		return err
	}
	if err := s.validateValidation(); err != nil {
		return err
	}
	if err := s.validateRedis(); err != nil {
		return err
	}
	if err := s.validateStore(); err != nil {
		return err
	}
	if err := s.validateQueue(); err != nil {
		return err
	}
	if err := s.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (s *Settings) validateServer() error {
	if s.Server.ListenAddr == "" {
		return NewValidationError("server", "listen_addr", fmt.Errorf("must not be empty"))
	}
	switch s.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return NewValidationError("server", "log_level", fmt.Errorf("must be one of debug, info, warn, error; got %q", s.Server.LogLevel))
	}
	if s.Server.ShutdownTimeoutSeconds < 1 {
		return NewValidationError("server", "shutdown_timeout_seconds", fmt.Errorf("must be positive"))
	}
	if s.Server.BatchMaxSize < 1 {
		return NewValidationError("server", "batch_max_size", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (s *Settings) validateOllama() error {
	if s.Ollama.BaseURL == "" {
		return NewValidationError("ollama", "base_url", fmt.Errorf("must not be empty"))
	}
	if s.Ollama.Model == "" {
		return NewValidationError("ollama", "model", fmt.Errorf("must not be empty"))
	}
	if s.Ollama.TimeoutSeconds < 1 {
		return NewValidationError("ollama", "timeout_seconds", fmt.Errorf("must be positive"))
	}
	if s.Ollama.ConnectRetries < 0 {
		return NewValidationError("ollama", "connect_retries", fmt.Errorf("must be non-negative"))
	}
	for i, m := range s.Ollama.FallbackModels {
		if m == "" {
			return NewValidationError("ollama", "fallback_models", fmt.Errorf("entry %d is empty", i))
		}
	}
	return nil
}

func (s *Settings) validateGeneration() error {
	if s.Generation.Temperature < 0 || s.Generation.Temperature > 2 {
		return NewValidationError("generation", "temperature", fmt.Errorf("must be between 0 and 2"))
	}
	if s.Generation.MaxTokens < 1 {
		return NewValidationError("generation", "max_tokens", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (s *Settings) validatePrompt() error {
	if s.Prompt.BodyTruncationLimit < 1 {
		return NewValidationError("prompt", "body_truncation_limit", fmt.Errorf("must be positive"))
	}
	if s.Prompt.ShrinkBodyLimit < 1 {
		return NewValidationError("prompt", "shrink_body_limit", fmt.Errorf("must be positive"))
	}
	if s.Prompt.ShrinkBodyLimit > s.Prompt.BodyTruncationLimit {
		return NewValidationError("prompt", "shrink_body_limit", fmt.Errorf("must not exceed body_truncation_limit"))
	}
	if s.Prompt.CandidateTopN < 1 {
		return NewValidationError("prompt", "candidate_top_n", fmt.Errorf("must be at least 1"))
	}
	if s.Prompt.ShrinkTopN < 1 {
		return NewValidationError("prompt", "shrink_top_n", fmt.Errorf("must be at least 1"))
	}
	if s.Prompt.ShrinkTopN > s.Prompt.CandidateTopN {
		return NewValidationError("prompt", "shrink_top_n", fmt.Errorf("must not exceed candidate_top_n"))
	}
	return nil
}

func (s *Settings) validateRetry() error {
	if s.Retry.MaxRetries < 1 {
		return NewValidationError("retry", "max_retries", fmt.Errorf("must be at least 1"))
	}
	if s.Retry.BackoffBase < 1 {
		return NewValidationError("retry", "backoff_base", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (s *Settings) validateValidation() error {
	if s.Validation.MinConfidenceWarning < 0 || s.Validation.MinConfidenceWarning > 1 {
		return NewValidationError("validation", "min_confidence_warning", fmt.Errorf("must be between 0 and 1"))
	}
	return nil
}

func (s *Settings) validateRedis() error {
	if s.Redis.URL == "" {
		return NewValidationError("redis", "url", fmt.Errorf("must not be empty"))
	}
	if s.Redis.MaxConnections < 1 {
		return NewValidationError("redis", "max_connections", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (s *Settings) validateStore() error {
	if s.Store.ResultTTLSeconds < 1 {
		return NewValidationError("store", "result_ttl_seconds", fmt.Errorf("must be positive"))
	}
	if s.Store.DLQMaxEntries < 1 {
		return NewValidationError("store", "dlq_max_entries", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (s *Settings) validateQueue() error {
	if s.Queue.WorkerCount < 1 || s.Queue.WorkerCount > 50 {
		return NewValidationError("queue", "worker_count", fmt.Errorf("must be between 1 and 50"))
	}
	if s.Queue.PollTimeoutSeconds < 1 {
		return NewValidationError("queue", "poll_timeout_seconds", fmt.Errorf("must be positive"))
	}
	if s.Queue.MaxDeliveries < 1 {
		return NewValidationError("queue", "max_deliveries", fmt.Errorf("must be at least 1"))
	}
	if s.Queue.RedeliveryDelaySeconds < 0 {
		return NewValidationError("queue", "redelivery_delay_seconds", fmt.Errorf("must be non-negative"))
	}
	return nil
}

func (s *Settings) validatePipeline() error {
	if s.Pipeline.DictionaryVersion < 1 {
		return NewValidationError("pipeline", "dictionary_version", fmt.Errorf("must be at least 1"))
	}
	return nil
}
