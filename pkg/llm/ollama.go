package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mailops/triaged/pkg/config"
)

const (
	generatePath = "/api/generate"
	tagsPath     = "/api/tags"
	showPath     = "/api/show"

	healthCheckTimeout = 5 * time.Second
	modelInfoTimeout   = 10 * time.Second
)

// OllamaClient implements Gateway against the Ollama HTTP API.
// Network errors, timeouts and 5xx responses are retried here with
// exponential backoff (connectRetries attempts); everything else surfaces
// immediately as a typed error.
type OllamaClient struct {
	baseURL        string
	timeout        time.Duration
	connectRetries int
	httpClient     *http.Client

	// backoffUnit scales the exponential backoff between attempts.
	// One second in production; tests shorten it.
	backoffUnit time.Duration
}

var _ Gateway = (*OllamaClient)(nil)

// NewOllamaClient creates a client for the configured backend. The shared
// http.Client pools connections; per-call deadlines come from contexts, so
// no client-level timeout is set.
func NewOllamaClient(settings config.OllamaSettings) *OllamaClient {
	c := &OllamaClient{
		baseURL:        strings.TrimRight(settings.BaseURL, "/"),
		timeout:        settings.Timeout(),
		connectRetries: settings.ConnectRetries,
		httpClient:     &http.Client{},
		backoffUnit:    time.Second,
	}
	slog.Info("Ollama client initialized",
		"base_url", c.baseURL,
		"timeout", c.timeout,
		"connect_retries", c.connectRetries)
	return c
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict"`
	TopP        *float64 `json:"top_p,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`

	// Format is either the JSON Schema object for constrained decoding or
	// the string "json" for plain JSON mode.
	Format any `json:"format"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	CreatedAt       string `json:"created_at"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	TotalDuration   int64  `json:"total_duration"`
	LoadDuration    int64  `json:"load_duration"`
	EvalDuration    int64  `json:"eval_duration"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate implements Gateway.
func (c *OllamaClient) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	payload, err := json.Marshal(buildGeneratePayload(req))
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	slog.Info("Sending generation request",
		"model", req.Model,
		"prompt_length", len(req.Prompt),
		"temperature", req.Temperature,
		"max_tokens", req.MaxTokens,
		"has_schema", req.FormatSchema != nil)

	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		status, respBody, reqErr := c.doRequest(ctx, http.MethodPost, generatePath, payload, c.timeout)
		switch {
		case reqErr != nil:
			if errors.Is(reqErr, context.Canceled) {
				return nil, reqErr
			}
			lastErr = classifyTransport("generate", reqErr, c.timeout)
		case status == http.StatusNotFound:
			return nil, &ModelNotAvailableError{Model: req.Model}
		case status >= 500:
			lastErr = &GenerationError{Status: status, Msg: snippet(respBody)}
		case status != http.StatusOK:
			return nil, &GenerationError{Status: status, Msg: snippet(respBody)}
		default:
			return c.parseGeneration(req, respBody, start, attempt)
		}

		if attempt >= c.connectRetries {
			return nil, lastErr
		}
		backoff := time.Duration(1<<attempt) * c.backoffUnit
		slog.Warn("Generation attempt failed, backing off",
			"attempt", attempt,
			"backoff", backoff,
			"error", lastErr)
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(backoff):
		}
	}
}

func (c *OllamaClient) parseGeneration(req *GenerationRequest, body []byte, start time.Time, attempt int) (*GenerationResponse, error) {
	var raw ollamaGenerateResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &GenerationError{Msg: fmt.Sprintf("invalid JSON response from backend: %v", err)}
	}
	if raw.Response == "" {
		return nil, &GenerationError{Msg: "empty response from backend"}
	}

	modelVersion := raw.Model
	if modelVersion == "" {
		modelVersion = req.Model
	}
	finish := FinishIncomplete
	if raw.Done {
		finish = FinishStop
		if raw.DoneReason != "" {
			finish = raw.DoneReason
		}
	}
	usage := 0
	if raw.PromptEvalCount > 0 && raw.EvalCount > 0 {
		usage = raw.PromptEvalCount + raw.EvalCount
	}
	latency := int(time.Since(start).Milliseconds())

	slog.Info("Generation successful",
		"model", modelVersion,
		"latency_ms", latency,
		"prompt_tokens", raw.PromptEvalCount,
		"completion_tokens", raw.EvalCount,
		"finish_reason", finish,
		"attempt", attempt)

	return &GenerationResponse{
		Content:          raw.Response,
		ModelVersion:     modelVersion,
		FinishReason:     finish,
		PromptTokens:     raw.PromptEvalCount,
		CompletionTokens: raw.EvalCount,
		UsageTokens:      usage,
		LatencyMs:        latency,
		CreatedAt:        raw.CreatedAt,
		TotalDurationNs:  raw.TotalDuration,
		LoadDurationNs:   raw.LoadDuration,
		EvalDurationNs:   raw.EvalDuration,
	}, nil
}

// HealthCheck implements Gateway.
func (c *OllamaClient) HealthCheck(ctx context.Context) bool {
	status, _, err := c.doRequest(ctx, http.MethodGet, tagsPath, nil, healthCheckTimeout)
	if err != nil || status != http.StatusOK {
		slog.Warn("Backend health check failed", "status", status, "error", err)
		return false
	}
	return true
}

// ModelInfo implements Gateway.
func (c *OllamaClient) ModelInfo(ctx context.Context, model string) (*ModelDetails, error) {
	payload, err := json.Marshal(map[string]string{"name": model})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	status, respBody, reqErr := c.doRequest(ctx, http.MethodPost, showPath, payload, modelInfoTimeout)
	if reqErr != nil {
		return nil, classifyTransport("model info", reqErr, modelInfoTimeout)
	}
	if status == http.StatusNotFound {
		return nil, &ModelNotAvailableError{Model: model}
	}
	if status != http.StatusOK {
		return nil, &ConnectionError{Op: "model info", Err: fmt.Errorf("status %d: %s", status, snippet(respBody))}
	}

	var raw struct {
		Details struct {
			Format            string `json:"format"`
			Family            string `json:"family"`
			ParameterSize     string `json:"parameter_size"`
			QuantizationLevel string `json:"quantization_level"`
		} `json:"details"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, &ConnectionError{Op: "model info", Err: fmt.Errorf("invalid response: %w", err)}
	}

	return &ModelDetails{
		Name:              model,
		Format:            raw.Details.Format,
		Family:            raw.Details.Family,
		ParameterSize:     raw.Details.ParameterSize,
		QuantizationLevel: raw.Details.QuantizationLevel,
	}, nil
}

func (c *OllamaClient) doRequest(ctx context.Context, method, path string, payload []byte, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func buildGeneratePayload(req *GenerationRequest) ollamaGenerateRequest {
	var format any = "json"
	if req.FormatSchema != nil {
		format = req.FormatSchema
	}
	return ollamaGenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			TopP:        req.TopP,
			Seed:        req.Seed,
			Stop:        req.StopSequences,
		},
		Format: format,
	}
}

func classifyTransport(op string, err error, timeout time.Duration) error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return &TimeoutError{Op: op, Timeout: timeout, Err: err}
	}
	return &ConnectionError{Op: op, Err: err}
}

// snippet trims a server error body down to something loggable.
func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "no response body"
	}
	return s
}
