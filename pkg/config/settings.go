// Package config resolves the runtime settings for the triage service.
//
// Resolution is layered: compiled defaults, then an optional triaged.yaml,
// then environment variables. Later layers win. The resolved Settings value
// is immutable after Initialize returns; components receive the sections
// they need at construction time.
package config

import "time"

// Settings is the complete runtime configuration.
type Settings struct {
	Server     ServerSettings     `yaml:"server"`
	Ollama     OllamaSettings     `yaml:"ollama"`
	Generation GenerationSettings `yaml:"generation"`
	Prompt     PromptSettings     `yaml:"prompt"`
	Retry      RetrySettings      `yaml:"retry"`
	Redaction  RedactionSettings  `yaml:"redaction"`
	Validation ValidationSettings `yaml:"validation"`
	Redis      RedisSettings      `yaml:"redis"`
	Store      StoreSettings      `yaml:"store"`
	Queue      QueueSettings      `yaml:"queue"`
	Pipeline   PipelineSettings   `yaml:"pipeline"`
}

// ServerSettings controls the HTTP surface and process-wide knobs.
type ServerSettings struct {
	ListenAddr string `yaml:"listen_addr"`
	Debug      bool   `yaml:"debug"`
	LogLevel   string `yaml:"log_level"`

	// ShutdownTimeoutSeconds bounds graceful shutdown (HTTP drain + worker
	// pool stop + client close).
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`

	// BatchMaxSize caps how many requests one batch submit may carry.
	BatchMaxSize int `yaml:"batch_max_size"`
}

// OllamaSettings configures the inference backend connection.
type OllamaSettings struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// ConnectRetries is the gateway-internal retry budget for network-class
	// failures. Validation-driven retries are the retry engine's concern,
	// not the gateway's.
	ConnectRetries int `yaml:"connect_retries"`

	// FallbackModels is the ordered list the retry engine rotates through
	// once the primary model's budget is exhausted.
	FallbackModels []string `yaml:"fallback_models"`
}

// Timeout returns the per-request timeout as a duration.
func (o OllamaSettings) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// GenerationSettings are the decoding parameters sent with every request.
type GenerationSettings struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// PromptSettings are the size budgets for prompt assembly. The shrink pair
// is used by the retry engine's shrink strategy.
type PromptSettings struct {
	BodyTruncationLimit int `yaml:"body_truncation_limit"`
	ShrinkBodyLimit     int `yaml:"shrink_body_limit"`
	CandidateTopN       int `yaml:"candidate_top_n"`
	ShrinkTopN          int `yaml:"shrink_top_n"`
}

// RetrySettings controls the validation-retry ladder.
type RetrySettings struct {
	MaxRetries  int     `yaml:"max_retries"`
	BackoffBase float64 `yaml:"backoff_base"`
}

// RedactionSettings controls PII span replacement. ForLLM defaults to false
// (the model is local); ForStorage defaults to true and uses a pointer so an
// explicit `for_storage: false` survives the merge.
type RedactionSettings struct {
	ForLLM     bool     `yaml:"for_llm"`
	ForStorage *bool    `yaml:"for_storage"`
	PiiTypes   []string `yaml:"pii_types"`
}

// StorageEnabled reports whether persisted copies must be redacted.
func (r RedactionSettings) StorageEnabled() bool {
	return r.ForStorage == nil || *r.ForStorage
}

// ValidationSettings controls stages 3/4 and the verifiers. The two
// presence checks default to on; span coherence cannot be disabled.
type ValidationSettings struct {
	// SchemaPath optionally points at an on-disk schema document. Empty
	// means the embedded email_triage_v2 document.
	SchemaPath string `yaml:"schema_path"`

	MinConfidenceWarning  float64 `yaml:"min_confidence_warning"`
	EvidencePresenceCheck *bool   `yaml:"evidence_presence_check"`
	KeywordPresenceCheck  *bool   `yaml:"keyword_presence_check"`
}

// EvidenceCheckEnabled reports whether the evidence-presence verifier runs.
func (v ValidationSettings) EvidenceCheckEnabled() bool {
	return v.EvidencePresenceCheck == nil || *v.EvidencePresenceCheck
}

// KeywordCheckEnabled reports whether the keyword-presence verifier runs.
func (v ValidationSettings) KeywordCheckEnabled() bool {
	return v.KeywordPresenceCheck == nil || *v.KeywordPresenceCheck
}

// RedisSettings configures the shared Redis connection (store + queue).
type RedisSettings struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
}

// StoreSettings controls result/DLQ persistence.
type StoreSettings struct {
	ResultTTLSeconds int `yaml:"result_ttl_seconds"`
	DLQMaxEntries    int `yaml:"dlq_max_entries"`
}

// ResultTTL returns the result expiry as a duration.
func (s StoreSettings) ResultTTL() time.Duration {
	return time.Duration(s.ResultTTLSeconds) * time.Second
}

// QueueSettings controls the async task queue and worker pool.
type QueueSettings struct {
	WorkerCount int `yaml:"worker_count"`

	// PollTimeoutSeconds is the BRPOP block interval. Workers wake at this
	// cadence to observe shutdown.
	PollTimeoutSeconds int `yaml:"poll_timeout_seconds"`

	// MaxDeliveries caps redeliveries for infrastructure failures. At the
	// cap the job is marked FAILURE instead of re-enqueued.
	MaxDeliveries int `yaml:"max_deliveries"`

	// RedeliveryDelaySeconds spaces out infrastructure redeliveries.
	RedeliveryDelaySeconds int `yaml:"redelivery_delay_seconds"`
}

// PollTimeout returns the BRPOP block interval as a duration.
func (q QueueSettings) PollTimeout() time.Duration {
	return time.Duration(q.PollTimeoutSeconds) * time.Second
}

// RedeliveryDelay returns the redelivery spacing as a duration.
func (q QueueSettings) RedeliveryDelay() time.Duration {
	return time.Duration(q.RedeliveryDelaySeconds) * time.Second
}

// PipelineSettings pins the version tokens recorded with every result.
type PipelineSettings struct {
	// DictionaryVersion is the default frozen dictionary snapshot; requests
	// carry their own and it wins.
	DictionaryVersion int `yaml:"dictionary_version"`
}

func boolPtr(b bool) *bool { return &b }

// DefaultSettings returns the compiled-in defaults. These are the canonical
// values; triaged.yaml and environment variables override them.
func DefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			ListenAddr:             ":8000",
			Debug:                  false,
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
			BatchMaxSize:           100,
		},
		Ollama: OllamaSettings{
			BaseURL:        "http://ollama:11434",
			Model:          "qwen2.5:7b",
			TimeoutSeconds: 60,
			ConnectRetries: 2,
			FallbackModels: nil,
		},
		Generation: GenerationSettings{
			Temperature: 0.1,
			MaxTokens:   2048,
		},
		Prompt: PromptSettings{
			BodyTruncationLimit: 8000,
			ShrinkBodyLimit:     4000,
			CandidateTopN:       100,
			ShrinkTopN:          50,
		},
		Retry: RetrySettings{
			MaxRetries:  3,
			BackoffBase: 2.0,
		},
		Redaction: RedactionSettings{
			ForLLM:     false,
			ForStorage: boolPtr(true),
			PiiTypes:   []string{"CF", "PHONE_IT", "EMAIL", "NAME", "IBAN", "VAT", "ADDRESS"},
		},
		Validation: ValidationSettings{
			SchemaPath:            "",
			MinConfidenceWarning:  0.2,
			EvidencePresenceCheck: boolPtr(true),
			KeywordPresenceCheck:  boolPtr(true),
		},
		Redis: RedisSettings{
			URL:            "redis://redis:6379/0",
			MaxConnections: 50,
		},
		Store: StoreSettings{
			ResultTTLSeconds: 86400,
			DLQMaxEntries:    10000,
		},
		Queue: QueueSettings{
			WorkerCount:            4,
			PollTimeoutSeconds:     2,
			MaxDeliveries:          3,
			RedeliveryDelaySeconds: 60,
		},
		Pipeline: PipelineSettings{
			DictionaryVersion: 1,
		},
	}
}
