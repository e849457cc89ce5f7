// Package models contains the triage request/result value types and the
// closed classification enums. Everything here is immutable once constructed:
// one instance per request, serialized verbatim for persistence.
package models

import "time"

// PiiEntity is a PII annotation produced by the upstream NER pass.
// The body text itself is NOT redacted; entities carry the span so redaction
// can happen on the fly (for an external LLM) or before storage.
type PiiEntity struct {
	Type            string  `json:"type"`
	OriginalHash    string  `json:"original_hash"`
	Redacted        string  `json:"redacted"`
	SpanStart       int     `json:"span_start"`
	SpanEnd         int     `json:"span_end"`
	Confidence      float64 `json:"confidence"`
	DetectionMethod string  `json:"detection_method"`
}

// RemovedSection records a block stripped during canonicalization
// (quoted replies, signatures, disclaimers).
type RemovedSection struct {
	Type           string  `json:"type"`
	SpanStart      int     `json:"span_start"`
	SpanEnd        int     `json:"span_end"`
	ContentPreview string  `json:"content_preview"`
	Confidence     float64 `json:"confidence"`
}

// InputPipelineVersion carries the upstream preprocessing component versions.
// They are folded into the full PipelineVersion for the audit trail.
type InputPipelineVersion struct {
	ParserVersion           string `json:"parser_version"`
	CanonicalizationVersion string `json:"canonicalization_version"`
	NERModelVersion         string `json:"ner_model_version"`
	PiiRedactionVersion     string `json:"pii_redaction_version"`
}

// EmailDocument is the canonicalized email from the preprocessing layer.
// BodyTextCanonical is the cleaned text with PII annotated, not redacted.
type EmailDocument struct {
	UID         string    `json:"uid"`
	UIDValidity string    `json:"uidvalidity,omitempty"`
	Mailbox     string    `json:"mailbox"`
	MessageID   string    `json:"message_id"`
	FetchedAt   time.Time `json:"fetched_at"`
	Size        int       `json:"size"`

	FromAddrRedacted string         `json:"from_addr_redacted"`
	ToAddrsRedacted  []string       `json:"to_addrs_redacted"`
	SubjectCanonical string         `json:"subject_canonical"`
	DateParsed       string         `json:"date_parsed"`
	HeadersCanonical map[string]any `json:"headers_canonical"`

	BodyTextCanonical string `json:"body_text_canonical"`
	BodyHTMLCanonical string `json:"body_html_canonical,omitempty"`
	BodyOriginalHash  string `json:"body_original_hash"`

	RemovedSections []RemovedSection `json:"removed_sections,omitempty"`
	PiiEntities     []PiiEntity      `json:"pii_entities,omitempty"`

	PipelineVersion InputPipelineVersion `json:"pipeline_version"`

	ProcessingTimestamp  time.Time `json:"processing_timestamp"`
	ProcessingDurationMs int       `json:"processing_duration_ms"`
}
