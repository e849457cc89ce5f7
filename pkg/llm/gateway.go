// Package llm talks to the inference backend. The Gateway interface is the
// only surface the retry engine and the API layer see; OllamaClient is the
// production implementation. Transport-level recovery (network errors,
// timeouts, 5xx) happens inside the client; strategy-level recovery is the
// retry engine's job.
package llm

import "context"

// Finish reasons reported on a generation response. The backend may also
// report "length" when the token budget cut the response short; that value
// is passed through verbatim.
const (
	FinishStop       = "stop"
	FinishIncomplete = "incomplete"
	FinishLength     = "length"
	FinishError      = "error"
)

// GenerationRequest is one completion call, provider-agnostic.
type GenerationRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int

	// FormatSchema constrains decoding to a JSON Schema when the backend
	// supports it. Nil falls back to plain JSON mode.
	FormatSchema map[string]any

	StopSequences []string
	TopP          *float64
	Seed          *int
}

// GenerationResponse is the raw generation outcome plus the metadata kept
// for the audit trail. Token counts are zero when the backend does not
// report them.
type GenerationResponse struct {
	Content      string
	ModelVersion string
	FinishReason string

	PromptTokens     int
	CompletionTokens int
	UsageTokens      int

	LatencyMs int
	CreatedAt string

	TotalDurationNs int64
	LoadDurationNs  int64
	EvalDurationNs  int64
}

// ModelDetails describes one served model, as reported by the backend.
type ModelDetails struct {
	Name              string
	Format            string
	Family            string
	ParameterSize     string
	QuantizationLevel string
}

// Gateway is the inference backend capability consumed by the rest of the
// service.
type Gateway interface {
	// Generate runs one completion. Errors are typed: ConnectionError,
	// TimeoutError, ModelNotAvailableError, GenerationError.
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)

	// HealthCheck reports whether the backend answers at all. It never
	// returns an error; an unreachable backend is simply false.
	HealthCheck(ctx context.Context) bool

	// ModelInfo fetches backend-side details for one model.
	ModelInfo(ctx context.Context, model string) (*ModelDetails, error)
}
