package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailops/triaged/pkg/models"
)

// handleTriage runs one request through the full pipeline and returns the
// verdict inline. POST /api/v1/triage.
func (s *Server) handleTriage(c *gin.Context) {
	var req models.TriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Request validation failed", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, "Request validation failed", err.Error())
		return
	}

	result, err := s.service.Triage(c.Request.Context(), &req)
	if err != nil {
		s.writeTriageError(c, err)
		return
	}

	c.JSON(http.StatusOK, &TriageResponse{
		Status:   "success",
		Result:   result,
		Warnings: result.ValidationWarnings,
	})
}
