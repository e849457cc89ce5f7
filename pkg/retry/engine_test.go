package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/llm"
	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/prompt"
	"github.com/mailops/triaged/pkg/schema"
	"github.com/mailops/triaged/pkg/validation"
)

type gatewayStep struct {
	resp *llm.GenerationResponse
	err  error
}

// stubGateway replays a script of generation results and records every
// request it saw. A script shorter than the call count repeats its last
// step.
type stubGateway struct {
	script []gatewayStep
	calls  []llm.GenerationRequest
}

func (g *stubGateway) Generate(_ context.Context, req *llm.GenerationRequest) (*llm.GenerationResponse, error) {
	g.calls = append(g.calls, *req)
	step := g.script[min(len(g.calls)-1, len(g.script)-1)]
	return step.resp, step.err
}

func (g *stubGateway) HealthCheck(context.Context) bool { return true }

func (g *stubGateway) ModelInfo(context.Context, string) (*llm.ModelDetails, error) {
	return &llm.ModelDetails{}, nil
}

type validatorStep struct {
	resp     *models.EmailTriageResponse
	warnings []string
	err      error
}

// stubValidator replays a script of validation outcomes.
type stubValidator struct {
	script []validatorStep
	calls  int
}

func (v *stubValidator) Validate(_ string, _ *models.TriageRequest) (*models.EmailTriageResponse, []string, error) {
	step := v.script[min(v.calls, len(v.script)-1)]
	v.calls++
	return step.resp, step.warnings, step.err
}

func engineSettings() *config.Settings {
	return config.DefaultSettings()
}

func newTestEngine(t *testing.T, gateway llm.Gateway, validator Validator, settings *config.Settings) *Engine {
	t.Helper()
	doc, err := schema.Embedded()
	require.NoError(t, err)
	assembler := prompt.NewAssembler(settings.Prompt, false, nil, doc)
	e := NewEngine(gateway, assembler, validator, settings)
	e.backoffUnit = time.Millisecond
	return e
}

func engineRequest(candidates int) *models.TriageRequest {
	req := &models.TriageRequest{
		Email: models.EmailDocument{
			UID:               "0042",
			SubjectCanonical:  "Problema con la fattura",
			BodyTextCanonical: "Ho un problema con la fattura di marzo.",
		},
		DictionaryVersion: 3,
	}
	for i := 0; i < candidates; i++ {
		req.CandidateKeywords = append(req.CandidateKeywords, models.CandidateKeyword{
			CandidateID: fmt.Sprintf("kw_%03d", i),
			Term:        fmt.Sprintf("termine%d", i),
			Lemma:       fmt.Sprintf("termine%d", i),
			Count:       1,
			Score:       1.0 - float64(i)/float64(candidates+1),
		})
	}
	return req
}

func genResponse(modelVersion string) *llm.GenerationResponse {
	return &llm.GenerationResponse{
		Content:          `{"scripted": true}`,
		ModelVersion:     modelVersion,
		FinishReason:     llm.FinishStop,
		PromptTokens:     900,
		CompletionTokens: 150,
		UsageTokens:      1050,
		LatencyMs:        42,
	}
}

func acceptedVerdict() *models.EmailTriageResponse {
	return &models.EmailTriageResponse{
		DictionaryVersion: 3,
		Sentiment:         models.SentimentResult{Value: models.SentimentNegative, Confidence: 0.9},
		Priority:          models.PriorityResult{Value: models.PriorityHigh, Confidence: 0.8, Signals: []string{"s"}},
		Topics:            []models.TopicResult{{LabelID: models.TopicFatturazione, Confidence: 0.9}},
	}
}

func ruleFailure() error {
	return &validation.RuleError{Rule: "sentiment_in_enum", Msg: "sentiment value \"angry\" is not a known sentiment"}
}

func TestExecute_FirstAttemptSuccess(t *testing.T) {
	settings := engineSettings()
	gateway := &stubGateway{script: []gatewayStep{{resp: genResponse("qwen2.5:7b")}}}
	validator := &stubValidator{script: []validatorStep{
		{resp: acceptedVerdict(), warnings: []string{"Low sentiment confidence: 0.100 (threshold: 0.2)"}},
	}}
	engine := newTestEngine(t, gateway, validator, settings)

	outcome, err := engine.Execute(context.Background(), engineRequest(60))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, acceptedVerdict(), outcome.Response)
	assert.Equal(t, []string{"Low sentiment confidence: 0.100 (threshold: 0.2)"}, outcome.Warnings)

	md := outcome.Metadata
	assert.Equal(t, 1, md.TotalAttempts)
	assert.Equal(t, []models.Strategy{models.StrategyStandard}, md.StrategiesUsed)
	assert.Equal(t, models.StrategyStandard, md.FinalStrategy)
	assert.Empty(t, md.ValidationFailures)
	assert.NoError(t, md.Validate())

	assert.Equal(t, "qwen2.5", md.LLMMetadata.Model)
	assert.Equal(t, "qwen2.5:7b", md.LLMMetadata.ModelVersion)
	assert.Equal(t, settings.Generation.Temperature, md.LLMMetadata.Temperature)
	assert.Equal(t, 1050, md.LLMMetadata.TokensUsed)
	assert.Equal(t, int64(42), md.LLMMetadata.LatencyMs)
	assert.Equal(t, 1, md.LLMMetadata.AttemptNumber)
	assert.Equal(t, llm.FinishStop, md.LLMMetadata.FinishReason)
	assert.False(t, md.LLMMetadata.TruncationApplied)
	assert.Equal(t, 60, md.LLMMetadata.CandidatesCount)

	require.Len(t, gateway.calls, 1)
	call := gateway.calls[0]
	assert.Equal(t, "qwen2.5:7b", call.Model)
	assert.Equal(t, settings.Generation.Temperature, call.Temperature)
	assert.Equal(t, settings.Generation.MaxTokens, call.MaxTokens)
	assert.Equal(t, "object", call.FormatSchema["type"])
	assert.Equal(t, 60, strings.Count(call.Prompt, "- ID: "))
}

func TestExecute_RetriesWithinStandard(t *testing.T) {
	gateway := &stubGateway{script: []gatewayStep{{resp: genResponse("qwen2.5:7b")}}}
	validator := &stubValidator{script: []validatorStep{
		{err: ruleFailure()},
		{err: ruleFailure()},
		{resp: acceptedVerdict()},
	}}
	engine := newTestEngine(t, gateway, validator, engineSettings())

	outcome, err := engine.Execute(context.Background(), engineRequest(10))
	require.NoError(t, err)

	md := outcome.Metadata
	assert.Equal(t, 3, md.TotalAttempts)
	assert.Equal(t, []models.Strategy{models.StrategyStandard}, md.StrategiesUsed)
	assert.Equal(t, models.StrategyStandard, md.FinalStrategy)
	assert.Equal(t, 3, md.LLMMetadata.AttemptNumber)

	require.Len(t, md.ValidationFailures, 2)
	assert.Equal(t, "sentiment_in_enum", md.ValidationFailures[0]["rule_name"])
	assert.Len(t, gateway.calls, 3)
}

func TestExecute_EscalatesToShrink(t *testing.T) {
	gateway := &stubGateway{script: []gatewayStep{{resp: genResponse("qwen2.5:7b")}}}
	validator := &stubValidator{script: []validatorStep{
		{err: ruleFailure()},
		{err: ruleFailure()},
		{err: ruleFailure()},
		{resp: acceptedVerdict()},
	}}
	engine := newTestEngine(t, gateway, validator, engineSettings())

	outcome, err := engine.Execute(context.Background(), engineRequest(60))
	require.NoError(t, err)

	md := outcome.Metadata
	assert.Equal(t, 4, md.TotalAttempts)
	assert.Equal(t, []models.Strategy{models.StrategyStandard, models.StrategyShrink}, md.StrategiesUsed)
	assert.Equal(t, models.StrategyShrink, md.FinalStrategy)
	assert.Len(t, md.ValidationFailures, 3)

	// The first three prompts carry all 60 candidates; the shrink
	// attempt drops to the shrink budget of 50.
	require.Len(t, gateway.calls, 4)
	assert.Equal(t, 60, strings.Count(gateway.calls[0].Prompt, "- ID: "))
	assert.Equal(t, 50, strings.Count(gateway.calls[3].Prompt, "- ID: "))
}

func TestExecute_FallbackModelRotation(t *testing.T) {
	settings := engineSettings()
	settings.Ollama.FallbackModels = []string{"llama3.1:8b", "mistral"}

	gateway := &stubGateway{script: []gatewayStep{{resp: genResponse("mistral")}}}
	validator := &stubValidator{script: []validatorStep{
		{err: ruleFailure()}, {err: ruleFailure()}, {err: ruleFailure()},
		{err: ruleFailure()}, {err: ruleFailure()},
		{err: ruleFailure()},
		{resp: acceptedVerdict()},
	}}
	engine := newTestEngine(t, gateway, validator, settings)

	outcome, err := engine.Execute(context.Background(), engineRequest(10))
	require.NoError(t, err)

	md := outcome.Metadata
	assert.Equal(t, 7, md.TotalAttempts)
	assert.Equal(t,
		[]models.Strategy{models.StrategyStandard, models.StrategyShrink, models.StrategyFallback},
		md.StrategiesUsed)
	assert.Equal(t, models.StrategyFallback, md.FinalStrategy)
	assert.Len(t, md.ValidationFailures, 6)

	// A version without a tag keeps its full name as the model.
	assert.Equal(t, "mistral", md.LLMMetadata.Model)
	assert.Equal(t, "mistral", md.LLMMetadata.ModelVersion)

	require.Len(t, gateway.calls, 7)
	for i := 0; i < 5; i++ {
		assert.Equal(t, "qwen2.5:7b", gateway.calls[i].Model)
	}
	assert.Equal(t, "llama3.1:8b", gateway.calls[5].Model)
	assert.Equal(t, "mistral", gateway.calls[6].Model)
}

func TestExecute_ExhaustionWithoutFallbackModels(t *testing.T) {
	gateway := &stubGateway{script: []gatewayStep{{resp: genResponse("qwen2.5:7b")}}}
	validator := &stubValidator{script: []validatorStep{{err: ruleFailure()}}}
	engine := newTestEngine(t, gateway, validator, engineSettings())

	outcome, err := engine.Execute(context.Background(), engineRequest(10))
	assert.Nil(t, outcome)
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, IsExhausted(err))
	assert.Contains(t, err.Error(), "all strategies exhausted after 6 attempts")
	assert.Contains(t, err.Error(), "standard, shrink, fallback")

	md := exhausted.Metadata
	assert.Equal(t, 6, md.TotalAttempts)
	assert.Equal(t,
		[]models.Strategy{models.StrategyStandard, models.StrategyShrink, models.StrategyFallback},
		md.StrategiesUsed)
	assert.Equal(t, models.StrategyFallback, md.FinalStrategy)
	assert.NoError(t, md.Validate())

	assert.Equal(t, "unknown", md.LLMMetadata.Model)
	assert.Equal(t, "unknown", md.LLMMetadata.ModelVersion)
	assert.Equal(t, llm.FinishError, md.LLMMetadata.FinishReason)
	assert.Equal(t, 6, md.LLMMetadata.AttemptNumber)
	assert.False(t, md.LLMMetadata.TruncationApplied)

	// The empty fallback rung burns its slot re-reporting the previous
	// failure: six recorded failures from five generations.
	assert.Len(t, md.ValidationFailures, 6)
	assert.Len(t, gateway.calls, 5)

	// The last error is still the validation failure class, and the
	// request travels with the error for dead-lettering.
	assert.True(t, validation.IsFailure(err))
	assert.Equal(t, "0042", exhausted.Request.Email.UID)
}

func TestExecute_ModelNotAvailableSkipsFallbackEntry(t *testing.T) {
	settings := engineSettings()
	settings.Ollama.FallbackModels = []string{"llama3.1:8b", "mistral"}

	good := genResponse("mistral")
	gateway := &stubGateway{script: []gatewayStep{
		{resp: genResponse("qwen2.5:7b")},
		{resp: genResponse("qwen2.5:7b")},
		{resp: genResponse("qwen2.5:7b")},
		{resp: genResponse("qwen2.5:7b")},
		{resp: genResponse("qwen2.5:7b")},
		{err: &llm.ModelNotAvailableError{Model: "llama3.1:8b"}},
		{resp: good},
	}}
	validator := &stubValidator{script: []validatorStep{
		{err: ruleFailure()}, {err: ruleFailure()}, {err: ruleFailure()},
		{err: ruleFailure()}, {err: ruleFailure()},
		{resp: acceptedVerdict()},
	}}
	engine := newTestEngine(t, gateway, validator, settings)

	outcome, err := engine.Execute(context.Background(), engineRequest(10))
	require.NoError(t, err)

	md := outcome.Metadata
	assert.Equal(t, 7, md.TotalAttempts)
	assert.Equal(t, models.StrategyFallback, md.FinalStrategy)

	// The unavailable model consumed a slot without adding a failure.
	assert.Len(t, md.ValidationFailures, 5)
	require.Len(t, gateway.calls, 7)
	assert.Equal(t, "llama3.1:8b", gateway.calls[5].Model)
	assert.Equal(t, "mistral", gateway.calls[6].Model)
}

func TestExecute_GatewayErrorsAbortTheRun(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"connection error", &llm.ConnectionError{Op: "generate", Err: errors.New("connection refused")}},
		{"timeout", &llm.TimeoutError{Op: "generate", Timeout: 60 * time.Second}},
		{"model not available under standard", &llm.ModelNotAvailableError{Model: "qwen2.5:7b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &stubGateway{script: []gatewayStep{{err: tt.err}}}
			validator := &stubValidator{script: []validatorStep{{resp: acceptedVerdict()}}}
			engine := newTestEngine(t, gateway, validator, engineSettings())

			outcome, err := engine.Execute(context.Background(), engineRequest(10))
			assert.Nil(t, outcome)
			require.Error(t, err)

			// The error comes back untouched, never as exhaustion.
			assert.Equal(t, tt.err, err)
			assert.False(t, IsExhausted(err))
			assert.Equal(t, 0, validator.calls)
			assert.Len(t, gateway.calls, 1)
		})
	}
}

func TestExecute_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gateway := &stubGateway{script: []gatewayStep{{resp: genResponse("qwen2.5:7b")}}}
	validator := &stubValidator{script: []validatorStep{{err: ruleFailure()}}}
	engine := newTestEngine(t, gateway, validator, engineSettings())

	outcome, err := engine.Execute(ctx, engineRequest(10))
	assert.Nil(t, outcome)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, gateway.calls, 1)
}

func TestExecute_LengthFinishReasonAddsWarning(t *testing.T) {
	resp := genResponse("qwen2.5:7b")
	resp.FinishReason = llm.FinishLength

	gateway := &stubGateway{script: []gatewayStep{{resp: resp}}}
	validator := &stubValidator{script: []validatorStep{
		{resp: acceptedVerdict(), warnings: []string{"Priority has no signals (expected 1-6 signals)"}},
	}}
	engine := newTestEngine(t, gateway, validator, engineSettings())

	outcome, err := engine.Execute(context.Background(), engineRequest(10))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Priority has no signals (expected 1-6 signals)",
		"response truncated by token limit",
	}, outcome.Warnings)
	assert.Equal(t, llm.FinishLength, outcome.Metadata.LLMMetadata.FinishReason)
}

func TestExecute_TruncationFlagAgainstNormalLimit(t *testing.T) {
	settings := engineSettings()
	req := engineRequest(10)
	req.Email.BodyTextCanonical = strings.Repeat("a", settings.Prompt.BodyTruncationLimit+500)

	gateway := &stubGateway{script: []gatewayStep{{resp: genResponse("qwen2.5:7b")}}}
	validator := &stubValidator{script: []validatorStep{{resp: acceptedVerdict()}}}
	engine := newTestEngine(t, gateway, validator, settings)

	outcome, err := engine.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, outcome.Metadata.LLMMetadata.TruncationApplied)
}

func TestExecute_FallbackCursorResetsPerCall(t *testing.T) {
	settings := engineSettings()
	settings.Ollama.FallbackModels = []string{"llama3.1:8b", "mistral"}

	gateway := &stubGateway{script: []gatewayStep{{resp: genResponse("qwen2.5:7b")}}}
	validator := &stubValidator{script: []validatorStep{{err: ruleFailure()}}}
	engine := newTestEngine(t, gateway, validator, settings)

	_, err := engine.Execute(context.Background(), engineRequest(10))
	require.Error(t, err)
	_, err = engine.Execute(context.Background(), engineRequest(10))
	require.Error(t, err)

	// Each run walks the fallback list from the top.
	require.Len(t, gateway.calls, 14)
	assert.Equal(t, "llama3.1:8b", gateway.calls[5].Model)
	assert.Equal(t, "mistral", gateway.calls[6].Model)
	assert.Equal(t, "llama3.1:8b", gateway.calls[12].Model)
	assert.Equal(t, "mistral", gateway.calls[13].Model)
}
