// Package triage is the orchestration layer shared by the HTTP handlers and
// the queue workers: one Execute call runs a request through the retry
// ladder, builds the audited result, and persists it. Exhausted requests are
// dead-lettered here, so synchronous and queued callers get identical DLQ
// behavior.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/pii"
	"github.com/mailops/triaged/pkg/retry"
	"github.com/mailops/triaged/pkg/schema"
	"github.com/mailops/triaged/pkg/version"
)

// dlqWriteTimeout bounds the dead letter write. The request context may
// already be canceled by the time the ladder is spent; the entry must still
// land.
const dlqWriteTimeout = 5 * time.Second

// Engine runs one request through the retry ladder. Satisfied by
// *retry.Engine.
type Engine interface {
	Execute(ctx context.Context, req *models.TriageRequest) (*retry.Outcome, error)
}

// Repository is the slice of the store the service writes to. Satisfied by
// *store.Repository.
type Repository interface {
	SaveResult(ctx context.Context, result *models.TriageResult, jobID string) error
	SaveDLQ(ctx context.Context, entry *models.DLQEntry) error
}

// Service drives one triage request end to end. A single instance is built
// at startup and shared by the API server and every worker, so the heavy
// resources behind it (templates, compiled schema, gateway connections) are
// per-process singletons.
type Service struct {
	engine   Engine
	repo     Repository
	redactor *pii.Redactor

	model          string
	shrinkLimit    int
	redactStorage  bool
	serviceVersion string
}

// NewService wires the orchestrator from the resolved settings.
func NewService(engine Engine, repo Repository, redactor *pii.Redactor, settings *config.Settings) *Service {
	if engine == nil {
		panic("NewService: engine must not be nil")
	}
	if repo == nil {
		panic("NewService: repo must not be nil")
	}
	if redactor == nil {
		panic("NewService: redactor must not be nil")
	}
	if settings == nil {
		panic("NewService: settings must not be nil")
	}
	return &Service{
		engine:         engine,
		repo:           repo,
		redactor:       redactor,
		model:          settings.Ollama.Model,
		shrinkLimit:    settings.Prompt.ShrinkBodyLimit,
		redactStorage:  settings.Redaction.StorageEnabled(),
		serviceVersion: version.Version,
	}
}

// Triage runs one request synchronously. Same pipeline as a queued job,
// without a job link on the stored result.
func (s *Service) Triage(ctx context.Context, req *models.TriageRequest) (*models.TriageResult, error) {
	return s.Execute(ctx, req, "")
}

// Execute runs the retry ladder, builds the audited result, and persists it.
// jobID links the stored result to a queue job; empty for synchronous calls.
// On exhaustion the request is dead-lettered and the ExhaustedError is
// returned; gateway and context errors pass through untouched.
//
// Persistence of a successful result is mandatory for queued jobs (a lost
// write must redeliver) and best-effort for synchronous calls, where the
// verdict in hand outranks a failed cache write.
func (s *Service) Execute(ctx context.Context, req *models.TriageRequest, jobID string) (*models.TriageResult, error) {
	if req == nil {
		return nil, errors.New("triage: nil request")
	}
	start := time.Now()

	slog.Info("Triage started",
		"uid", req.Email.UID,
		"job_id", jobID,
		"dictionary_version", req.DictionaryVersion,
		"candidates_count", len(req.CandidateKeywords))

	outcome, err := s.engine.Execute(ctx, req)
	if err != nil {
		var ex *retry.ExhaustedError
		if errors.As(err, &ex) {
			s.deadLetter(ex)
		}
		return nil, err
	}

	warnings := append([]string{}, outcome.Warnings...)
	if w := s.shrinkNote(req, outcome.Metadata.FinalStrategy); w != "" {
		warnings = append(warnings, w)
	}

	result := s.buildResult(req, outcome, warnings, time.Since(start))

	stored := result
	if s.redactStorage {
		stored = s.redactor.RedactResult(result, &req.Email)
	}
	if err := s.repo.SaveResult(ctx, stored, jobID); err != nil {
		if jobID != "" {
			return nil, fmt.Errorf("triage: persist result: %w", err)
		}
		slog.Warn("Result not persisted, returning it anyway",
			"uid", req.Email.UID, "error", err)
	}

	slog.Info("Triage completed",
		"uid", req.Email.UID,
		"job_id", jobID,
		"duration_ms", result.ProcessingDuration,
		"retries", result.RetriesUsed,
		"warnings_count", len(warnings),
		"topics_count", len(result.TriageResponse.Topics))
	return result, nil
}

// buildResult assembles the audited TriageResult. The pipeline version
// records the model that actually produced the accepted response, which
// under the fallback strategy differs from the configured one.
func (s *Service) buildResult(req *models.TriageRequest, outcome *retry.Outcome, warnings []string, elapsed time.Duration) *models.TriageResult {
	modelVersion := outcome.Metadata.LLMMetadata.ModelVersion
	if modelVersion == "" {
		modelVersion = s.model
	}
	return &models.TriageResult{
		TriageResponse: *outcome.Response,
		PipelineVersion: models.PipelineVersion{
			DictionaryVersion:       req.DictionaryVersion,
			ModelVersion:            modelVersion,
			SchemaVersion:           schema.Version,
			InferenceLayerVersion:   s.serviceVersion,
			ParserVersion:           req.Email.PipelineVersion.ParserVersion,
			CanonicalizationVersion: req.Email.PipelineVersion.CanonicalizationVersion,
			NERModelVersion:         req.Email.PipelineVersion.NERModelVersion,
			PiiRedactionVersion:     req.Email.PipelineVersion.PiiRedactionVersion,
		},
		RequestUID:         req.Email.UID,
		ValidationWarnings: warnings,
		RetriesUsed:        outcome.Metadata.TotalAttempts - 1,
		ProcessingDuration: float64(elapsed.Microseconds()) / 1000.0,
		CreatedAt:          models.NowISO(),
	}
}

// shrinkNote describes the input reduction when the accepted response came
// from a shrink-mode prompt. Informational; the validation pipeline never
// produces it.
func (s *Service) shrinkNote(req *models.TriageRequest, final models.Strategy) string {
	if final != models.StrategyShrink {
		return ""
	}
	original := len(req.Email.BodyTextCanonical)
	reduced := original
	if reduced > s.shrinkLimit {
		reduced = s.shrinkLimit
	}
	return fmt.Sprintf("shrink mode applied: body %d→%d chars", original, reduced)
}

// deadLetter writes the exhausted request to the DLQ with its full retry
// history. Best effort; the caller returns the exhaustion error regardless.
func (s *Service) deadLetter(ex *retry.ExhaustedError) {
	req := ex.Request
	if s.redactStorage {
		req = s.redactor.RedactRequest(req)
	}
	entry := &models.DLQEntry{
		RequestUID:         ex.Request.Email.UID,
		Timestamp:          models.NowISO(),
		TotalAttempts:      ex.Metadata.TotalAttempts,
		StrategiesUsed:     ex.Metadata.StrategiesUsed,
		TotalLatencyMs:     ex.Metadata.TotalLatencyMs,
		ValidationFailures: ex.Metadata.ValidationFailures,
		Request:            req,
	}
	if ex.LastErr != nil {
		entry.LastError = ex.LastErr.Error()
		entry.LastErrorType = errorTypeName(ex.LastErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dlqWriteTimeout)
	defer cancel()
	if err := s.repo.SaveDLQ(ctx, entry); err != nil {
		slog.Error("Dead letter write failed",
			"uid", ex.Request.Email.UID, "error", err)
	}
}

// errorTypeName reduces an error's Go type to its bare name for the DLQ
// record, e.g. "RuleError" for *validation.RuleError.
func errorTypeName(err error) string {
	name := fmt.Sprintf("%T", err)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimPrefix(name, "*")
}
