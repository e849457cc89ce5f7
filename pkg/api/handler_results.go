package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleRecentResults lists the most recently stored results.
// GET /api/v1/results/recent?limit=N.
func (s *Server) handleRecentResults(c *gin.Context) {
	results, err := s.repo.GetRecent(c.Request.Context(), queryLimit(c, 100))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, &RecentResultsResponse{Results: results, Count: len(results)})
}

// handleDeleteResult removes one stored result by request uid.
// DELETE /api/v1/result/:uid.
func (s *Server) handleDeleteResult(c *gin.Context) {
	uid := c.Param("uid")
	deleted, err := s.repo.DeleteResult(c.Request.Context(), uid)
	if err != nil {
		internalError(c, err)
		return
	}
	if !deleted {
		notFound(c, fmt.Sprintf("Result %s not found", uid))
		return
	}
	c.JSON(http.StatusOK, &DeleteResponse{RequestUID: uid, Deleted: true})
}

// handleDLQ lists dead-lettered requests for operator inspection.
// GET /api/v1/dlq?limit=N.
func (s *Server) handleDLQ(c *gin.Context) {
	entries, err := s.repo.GetDLQ(c.Request.Context(), queryLimit(c, 100))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, &DLQResponse{Entries: entries, Count: len(entries)})
}

// handleStats reports store and queue counters. GET /api/v1/stats.
func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		internalError(c, err)
		return
	}
	depth, err := s.tasks.Depth(ctx)
	if err != nil {
		internalError(c, err)
		return
	}
	delayed, err := s.tasks.DelayedCount(ctx)
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, &StatsResponse{
		TotalResults:     stats.TotalResults,
		DLQSize:          stats.DLQSize,
		ResultTTLSeconds: stats.ResultTTLSeconds,
		QueueDepth:       depth,
		DelayedJobs:      delayed,
	})
}

// queryLimit parses ?limit=, keeping the fallback on absent or
// non-positive values.
func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
