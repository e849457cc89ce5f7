package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional YAML settings file looked up in configDir.
const ConfigFileName = "triaged.yaml"

// Initialize loads, validates, and returns ready-to-use settings.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Start from compiled defaults
//  2. Merge triaged.yaml from configDir if present (expanding {{.VAR}} refs)
//  3. Apply environment variable overrides
//  4. Validate the resolved settings
func Initialize(ctx context.Context, configDir string) (*Settings, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	settings, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"model", settings.Ollama.Model,
		"fallback_models", len(settings.Ollama.FallbackModels),
		"workers", settings.Queue.WorkerCount,
		"redact_for_llm", settings.Redaction.ForLLM,
		"redact_for_storage", settings.Redaction.StorageEnabled())

	return settings, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Settings, error) {
	settings := DefaultSettings()

	// 1. Merge the optional YAML file over the defaults. Absence is fine;
	// everything can come from defaults + environment.
	fileSettings, err := loadYAMLFile(configDir)
	if err != nil {
		return nil, NewLoadError(ConfigFileName, err)
	}
	if fileSettings != nil {
		// Non-zero file values override defaults; unset fields keep them.
		if err := mergo.Merge(settings, fileSettings, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", ConfigFileName, err)
		}
	}

	// 2. Environment variables win over both layers.
	applyEnv(settings)

	return settings, nil
}

func loadYAMLFile(configDir string) (*Settings, error) {
	path := filepath.Join(configDir, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("No configuration file, using defaults + environment", "path", path)
			return nil, nil
		}
		return nil, err
	}

	// Expand environment variables using {{.VAR}} template syntax
	data = ExpandEnv(data)

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &settings, nil
}

// applyEnv overlays environment variables onto the settings. Variable names
// follow the upstream deployment conventions, so an existing .env keeps
// working unchanged.
func applyEnv(s *Settings) {
	envString("LISTEN_ADDR", &s.Server.ListenAddr)
	envBool("DEBUG", &s.Server.Debug)
	envString("LOG_LEVEL", &s.Server.LogLevel)
	envInt("SHUTDOWN_TIMEOUT_SECONDS", &s.Server.ShutdownTimeoutSeconds)
	envInt("BATCH_MAX_SIZE", &s.Server.BatchMaxSize)

	envString("OLLAMA_BASE_URL", &s.Ollama.BaseURL)
	envString("OLLAMA_MODEL", &s.Ollama.Model)
	envInt("OLLAMA_TIMEOUT", &s.Ollama.TimeoutSeconds)
	envInt("OLLAMA_CONNECT_RETRIES", &s.Ollama.ConnectRetries)
	envList("FALLBACK_MODELS", &s.Ollama.FallbackModels)

	envFloat("LLM_TEMPERATURE", &s.Generation.Temperature)
	envInt("LLM_MAX_TOKENS", &s.Generation.MaxTokens)

	envInt("BODY_TRUNCATION_LIMIT", &s.Prompt.BodyTruncationLimit)
	envInt("SHRINK_BODY_LIMIT", &s.Prompt.ShrinkBodyLimit)
	envInt("CANDIDATE_TOP_N", &s.Prompt.CandidateTopN)
	envInt("SHRINK_TOP_N", &s.Prompt.ShrinkTopN)

	envInt("MAX_RETRIES", &s.Retry.MaxRetries)
	envFloat("RETRY_BACKOFF_BASE", &s.Retry.BackoffBase)

	envBool("REDACT_FOR_LLM", &s.Redaction.ForLLM)
	envBoolPtr("REDACT_FOR_STORAGE", &s.Redaction.ForStorage)
	envList("REDACT_PII_TYPES", &s.Redaction.PiiTypes)

	envString("JSON_SCHEMA_PATH", &s.Validation.SchemaPath)
	envFloat("MIN_CONFIDENCE_WARNING_THRESHOLD", &s.Validation.MinConfidenceWarning)
	envBoolPtr("ENABLE_EVIDENCE_PRESENCE_CHECK", &s.Validation.EvidencePresenceCheck)
	envBoolPtr("ENABLE_KEYWORD_PRESENCE_CHECK", &s.Validation.KeywordPresenceCheck)

	envString("REDIS_URL", &s.Redis.URL)
	envInt("REDIS_MAX_CONNECTIONS", &s.Redis.MaxConnections)

	envInt("RESULT_TTL_SECONDS", &s.Store.ResultTTLSeconds)
	envInt("DLQ_MAX_ENTRIES", &s.Store.DLQMaxEntries)

	envInt("WORKER_CONCURRENCY", &s.Queue.WorkerCount)
	envInt("QUEUE_POLL_TIMEOUT_SECONDS", &s.Queue.PollTimeoutSeconds)
	envInt("QUEUE_MAX_DELIVERIES", &s.Queue.MaxDeliveries)
	envInt("QUEUE_REDELIVERY_DELAY_SECONDS", &s.Queue.RedeliveryDelaySeconds)

	envInt("DICTIONARY_VERSION", &s.Pipeline.DictionaryVersion)
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		} else {
			slog.Warn("Ignoring non-integer environment value", "key", key, "value", v)
		}
	}
}

func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		} else {
			slog.Warn("Ignoring non-numeric environment value", "key", key, "value", v)
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		} else {
			slog.Warn("Ignoring non-boolean environment value", "key", key, "value", v)
		}
	}
}

func envBoolPtr(key string, target **bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = &b
		} else {
			slog.Warn("Ignoring non-boolean environment value", "key", key, "value", v)
		}
	}
}

// envList parses a comma-separated environment value. Empty elements are
// dropped, so trailing commas are harmless.
func envList(key string, target *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*target = out
}
