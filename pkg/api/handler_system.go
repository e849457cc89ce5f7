package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailops/triaged/pkg/llm"
	"github.com/mailops/triaged/pkg/schema"
	"github.com/mailops/triaged/pkg/version"
)

// handleVersion reports the version pins and decoding parameters of this
// deployment so results can be traced back to a configuration.
// GET /version.
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, &VersionResponse{
		InferenceLayerVersion: version.Version,
		ModelName:             s.settings.Ollama.Model,
		DictionaryVersion:     s.settings.Pipeline.DictionaryVersion,
		SchemaVersion:         schema.Version,
		PipelineConfig: map[string]string{
			"temperature":       strconv.FormatFloat(s.settings.Generation.Temperature, 'g', -1, 64),
			"max_tokens":        strconv.Itoa(s.settings.Generation.MaxTokens),
			"top_n_candidates":  strconv.Itoa(s.settings.Prompt.CandidateTopN),
			"body_limit":        strconv.Itoa(s.settings.Prompt.BodyTruncationLimit),
			"shrink_body_limit": strconv.Itoa(s.settings.Prompt.ShrinkBodyLimit),
		},
	})
}

// handleSchema serves the JSON schema responses are validated against.
// GET /schema.
func (s *Server) handleSchema(c *gin.Context) {
	c.JSON(http.StatusOK, s.doc.Raw)
}

// handleModelInfo queries the inference backend for the configured
// model's details. GET /api/v1/model.
func (s *Server) handleModelInfo(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	model := s.settings.Ollama.Model
	details, err := s.gateway.ModelInfo(ctx, model)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, &ModelInfoResponse{
			Name:              details.Name,
			Format:            details.Format,
			Family:            details.Family,
			ParameterSize:     details.ParameterSize,
			QuantizationLevel: details.QuantizationLevel,
		})
	case llm.IsModelNotAvailable(err):
		c.JSON(http.StatusNotFound, errorBody(errModelMissing, fmt.Sprintf("Model %s is not available on the inference server", model)))
	case llm.IsTimeout(err):
		c.JSON(http.StatusGatewayTimeout, errorBody(errLLMTimeout, "LLM inference server request timed out"))
	case llm.IsConnection(err):
		c.JSON(http.StatusBadGateway, errorBody(errLLMConnection, "Unable to connect to LLM inference server"))
	default:
		internalError(c, err)
	}
}
