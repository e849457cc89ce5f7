package models

import (
	"errors"
	"fmt"
	"time"
)

// PipelineVersion is the frozen version snapshot persisted with every result.
// Same versions + same input + fixed seed = same output; this tuple is what
// makes a classification reproducible after the fact.
type PipelineVersion struct {
	DictionaryVersion     int    `json:"dictionary_version"`
	ModelVersion          string `json:"model_version"`
	SchemaVersion         string `json:"schema_version"`
	InferenceLayerVersion string `json:"inference_layer_version"`

	ParserVersion           string `json:"parser_version,omitempty"`
	CanonicalizationVersion string `json:"canonicalization_version,omitempty"`
	NERModelVersion         string `json:"ner_model_version,omitempty"`
	PiiRedactionVersion     string `json:"pii_redaction_version,omitempty"`

	StoplistVersion string `json:"stoplist_version,omitempty"`
}

// LLMMetadata is the audit snapshot of the generation that produced the
// accepted response.
type LLMMetadata struct {
	Model             string  `json:"model"`
	ModelVersion      string  `json:"model_version"`
	Temperature       float64 `json:"temperature"`
	TokensUsed        int     `json:"tokens_used,omitempty"`
	LatencyMs         int64   `json:"latency_ms"`
	AttemptNumber     int     `json:"attempt_number"`
	FinishReason      string  `json:"finish_reason"`
	TruncationApplied bool    `json:"truncation_applied"`
	CandidatesCount   int     `json:"candidates_count"`
}

// RetryMetadata is the complete retry history for the audit trail: every
// attempt across every strategy, plus the validation failures that drove
// the escalation.
type RetryMetadata struct {
	TotalAttempts      int              `json:"total_attempts"`
	StrategiesUsed     []Strategy       `json:"strategies_used"`
	FinalStrategy      Strategy         `json:"final_strategy"`
	TotalLatencyMs     int64            `json:"total_latency_ms"`
	LLMMetadata        LLMMetadata      `json:"llm_metadata"`
	ValidationFailures []map[string]any `json:"validation_failures"`
}

// Validate enforces the metadata invariants: at least one attempt, a
// non-empty strategy list containing the final strategy, and non-negative
// latency.
func (m *RetryMetadata) Validate() error {
	if m.TotalAttempts < 1 {
		return errors.New("total_attempts must be >= 1")
	}
	if len(m.StrategiesUsed) == 0 {
		return errors.New("strategies_used must not be empty")
	}
	found := false
	for _, s := range m.StrategiesUsed {
		if s == m.FinalStrategy {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("final_strategy %q must be in strategies_used", m.FinalStrategy)
	}
	if m.TotalLatencyMs < 0 {
		return errors.New("total_latency_ms must be >= 0")
	}
	return nil
}

// TriageResult is the final audited result: the validated verdict plus the
// version snapshot, warnings, and processing metadata. This is what gets
// persisted and returned to callers.
type TriageResult struct {
	TriageResponse     EmailTriageResponse `json:"triage_response"`
	PipelineVersion    PipelineVersion     `json:"pipeline_version"`
	RequestUID         string              `json:"request_uid"`
	ValidationWarnings []string            `json:"validation_warnings"`
	RetriesUsed        int                 `json:"retries_used"`
	ProcessingDuration float64             `json:"processing_duration_ms"`
	CreatedAt          string              `json:"created_at,omitempty"`
}

// DLQEntry is what lands on the dead letter queue when the retry ladder is
// exhausted: the serialized request plus the full retry history, newest
// entries at the head of the list.
type DLQEntry struct {
	RequestUID         string           `json:"request_uid"`
	Timestamp          string           `json:"timestamp"`
	TotalAttempts      int              `json:"total_attempts"`
	StrategiesUsed     []Strategy       `json:"strategies_used"`
	TotalLatencyMs     int64            `json:"total_latency_ms"`
	ValidationFailures []map[string]any `json:"validation_failures"`
	LastError          string           `json:"last_error"`
	LastErrorType      string           `json:"last_error_type"`
	Request            *TriageRequest   `json:"request"`
}

// NowISO returns the current UTC time in the ISO-8601 layout used for all
// persisted timestamps.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
