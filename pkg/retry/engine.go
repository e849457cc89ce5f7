// Package retry walks a validation failure up the escalation ladder:
// standard retries with exponential backoff, then shrink mode with reduced
// input, then the configured fallback models, and finally ExhaustedError
// for DLQ routing. Only validation failures climb the ladder; gateway and
// context errors abort the run untouched, with one exception: a fallback
// model that is not available forfeits its slot and the rotation moves on.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/llm"
	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/prompt"
	"github.com/mailops/triaged/pkg/validation"
)

// shrinkAttempts is the shrink rung's budget. Smaller than the standard
// budget; by the time the engine shrinks input it has already burned
// several attempts.
const shrinkAttempts = 2

// truncatedWarning is appended when the backend stopped generating at the
// token limit but the response still validated.
const truncatedWarning = "response truncated by token limit"

// Validator accepts or rejects raw LLM output for one request. Satisfied
// by *validation.Pipeline.
type Validator interface {
	Validate(content string, req *models.TriageRequest) (*models.EmailTriageResponse, []string, error)
}

// Outcome is a successful ladder run: the validated verdict, its advisory
// warnings, and the full retry history.
type Outcome struct {
	Response *models.EmailTriageResponse
	Warnings []string
	Metadata models.RetryMetadata
}

// rung is one level of the escalation ladder.
type rung struct {
	name     models.Strategy
	mode     prompt.Mode
	attempts int
}

// Engine drives generation attempts through the ladder. Construction fixes
// the ladder shape; the fallback rotation cursor is per Execute call.
type Engine struct {
	gateway   llm.Gateway
	assembler *prompt.Assembler
	validator Validator

	primaryModel   string
	fallbackModels []string
	generation     config.GenerationSettings
	backoffBase    float64
	bodyLimit      int
	ladder         []rung

	// backoffUnit scales the exponential delays. One second in
	// production; tests shorten it.
	backoffUnit time.Duration
}

// NewEngine builds the engine and its ladder from the resolved settings.
func NewEngine(gateway llm.Gateway, assembler *prompt.Assembler, validator Validator, settings *config.Settings) *Engine {
	fallbackAttempts := len(settings.Ollama.FallbackModels)
	if fallbackAttempts == 0 {
		fallbackAttempts = 1
	}
	e := &Engine{
		gateway:        gateway,
		assembler:      assembler,
		validator:      validator,
		primaryModel:   settings.Ollama.Model,
		fallbackModels: settings.Ollama.FallbackModels,
		generation:     settings.Generation,
		backoffBase:    settings.Retry.BackoffBase,
		bodyLimit:      settings.Prompt.BodyTruncationLimit,
		ladder: []rung{
			{name: models.StrategyStandard, mode: prompt.ModeNormal, attempts: settings.Retry.MaxRetries},
			{name: models.StrategyShrink, mode: prompt.ModeShrink, attempts: shrinkAttempts},
			{name: models.StrategyFallback, mode: prompt.ModeNormal, attempts: fallbackAttempts},
		},
		backoffUnit: time.Second,
	}
	slog.Info("Retry engine initialized",
		"max_retries", settings.Retry.MaxRetries,
		"backoff_base", settings.Retry.BackoffBase,
		"fallback_models", settings.Ollama.FallbackModels)
	return e
}

// Execute runs one request through the ladder until a response validates
// or every rung is spent. The returned error is an ExhaustedError when the
// ladder is spent, or the untouched gateway/context error when the run was
// aborted by infrastructure.
func (e *Engine) Execute(ctx context.Context, req *models.TriageRequest) (*Outcome, error) {
	start := time.Now()
	totalAttempts := 0
	strategiesUsed := make([]models.Strategy, 0, len(e.ladder))
	validationFailures := make([]map[string]any, 0)
	var lastErr error
	fallbackCursor := 0

	slog.Info("Starting retry engine execution",
		"uid", req.Email.UID,
		"dictionary_version", req.DictionaryVersion,
		"candidates_count", len(req.CandidateKeywords))

	for _, level := range e.ladder {
		strategiesUsed = append(strategiesUsed, level.name)
		slog.Info("Attempting strategy",
			"strategy", string(level.name),
			"max_attempts", level.attempts,
			"total_attempts_so_far", totalAttempts)

		for attempt := 1; attempt <= level.attempts; attempt++ {
			totalAttempts++
			if attempt > 1 && lastErr != nil {
				if err := e.backoff(ctx, level.name, attempt); err != nil {
					return nil, err
				}
			}

			genResp, verdict, warnings, err := e.dispatch(ctx, req, level, &fallbackCursor, lastErr)
			if err == nil {
				md := e.successMetadata(req, genResp, level.name, totalAttempts,
					strategiesUsed, validationFailures, start)
				slog.Info("Retry engine succeeded",
					"strategy", string(level.name),
					"total_attempts", totalAttempts,
					"total_latency_ms", md.TotalLatencyMs,
					"warnings_count", len(warnings))
				return &Outcome{Response: verdict, Warnings: warnings, Metadata: md}, nil
			}

			switch {
			case validation.IsFailure(err):
				lastErr = err
				validationFailures = append(validationFailures, validation.FailureDetails(err))
				slog.Warn("Validation failed",
					"strategy", string(level.name),
					"attempt", attempt,
					"total_attempts", totalAttempts,
					"error", err)
			case level.name == models.StrategyFallback && llm.IsModelNotAvailable(err):
				// The slot is spent but the rotation moves to the next
				// configured model; the previous validation failure
				// stays the error of record.
				slog.Warn("Fallback model not available, advancing rotation",
					"attempt", attempt, "error", err)
			default:
				return nil, err
			}
		}
		slog.Warn("Strategy exhausted, escalating",
			"strategy", string(level.name), "attempts_used", level.attempts)
	}

	totalLatency := time.Since(start).Milliseconds()
	if lastErr == nil {
		lastErr = errors.New("validation failed but no attempt recorded an error")
	}
	md := models.RetryMetadata{
		TotalAttempts:  totalAttempts,
		StrategiesUsed: strategiesUsed,
		FinalStrategy:  strategiesUsed[len(strategiesUsed)-1],
		TotalLatencyMs: totalLatency,
		LLMMetadata: models.LLMMetadata{
			Model:           "unknown",
			ModelVersion:    "unknown",
			Temperature:     e.generation.Temperature,
			LatencyMs:       totalLatency,
			AttemptNumber:   totalAttempts,
			FinishReason:    llm.FinishError,
			CandidatesCount: len(req.CandidateKeywords),
		},
		ValidationFailures: validationFailures,
	}
	slog.Error("All retry strategies exhausted, routing to DLQ",
		"uid", req.Email.UID,
		"total_attempts", totalAttempts,
		"total_latency_ms", totalLatency,
		"validation_failures", len(validationFailures))
	return nil, &ExhaustedError{Request: req, Metadata: md, LastErr: lastErr}
}

// dispatch runs a single attempt: pick the model, assemble the prompt,
// generate, validate. The empty-fallback rung re-reports the previous
// failure, burning its single slot without a generation.
func (e *Engine) dispatch(ctx context.Context, req *models.TriageRequest, level rung, fallbackCursor *int, lastErr error) (*llm.GenerationResponse, *models.EmailTriageResponse, []string, error) {
	model := e.primaryModel
	if level.name == models.StrategyFallback {
		if len(e.fallbackModels) == 0 {
			if lastErr != nil {
				return nil, nil, nil, lastErr
			}
			return nil, nil, nil, errors.New("retry: no fallback models configured")
		}
		model = e.fallbackModels[*fallbackCursor%len(e.fallbackModels)]
		*fallbackCursor++
	}

	p := e.assembler.Assemble(req, level.mode)
	genResp, err := e.gateway.Generate(ctx, &llm.GenerationRequest{
		Prompt:       p.FullText(),
		Model:        model,
		Temperature:  e.generation.Temperature,
		MaxTokens:    e.generation.MaxTokens,
		FormatSchema: p.Schema,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	verdict, warnings, err := e.validator.Validate(genResp.Content, req)
	if err != nil {
		return nil, nil, nil, err
	}
	if genResp.FinishReason == llm.FinishLength {
		warnings = append(warnings, truncatedWarning)
	}
	return genResp, verdict, warnings, nil
}

func (e *Engine) successMetadata(req *models.TriageRequest, genResp *llm.GenerationResponse, final models.Strategy, totalAttempts int, strategiesUsed []models.Strategy, validationFailures []map[string]any, start time.Time) models.RetryMetadata {
	model := genResp.ModelVersion
	if i := strings.IndexByte(model, ':'); i >= 0 {
		model = model[:i]
	}
	return models.RetryMetadata{
		TotalAttempts:  totalAttempts,
		StrategiesUsed: strategiesUsed,
		FinalStrategy:  final,
		TotalLatencyMs: time.Since(start).Milliseconds(),
		LLMMetadata: models.LLMMetadata{
			Model:             model,
			ModelVersion:      genResp.ModelVersion,
			Temperature:       e.generation.Temperature,
			TokensUsed:        genResp.UsageTokens,
			LatencyMs:         int64(genResp.LatencyMs),
			AttemptNumber:     totalAttempts,
			FinishReason:      genResp.FinishReason,
			TruncationApplied: len(req.Email.BodyTextCanonical) > e.bodyLimit,
			CandidatesCount:   len(req.CandidateKeywords),
		},
		ValidationFailures: validationFailures,
	}
}

// backoff sleeps base^attempt units, honoring cancellation.
func (e *Engine) backoff(ctx context.Context, strategy models.Strategy, attempt int) error {
	delay := time.Duration(math.Pow(e.backoffBase, float64(attempt)) * float64(e.backoffUnit))
	slog.Info("Applying exponential backoff",
		"strategy", string(strategy), "attempt", attempt, "delay", delay.String())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
