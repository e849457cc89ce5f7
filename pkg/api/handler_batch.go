package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/queue"
	"github.com/mailops/triaged/pkg/store"
)

// handleBatch validates a batch of requests and enqueues one job per
// request. POST /api/v1/batch.
func (s *Server) handleBatch(c *gin.Context) {
	var batch BatchSubmitRequest
	if err := c.ShouldBindJSON(&batch); err != nil {
		badRequest(c, "Request validation failed", err.Error())
		return
	}
	if len(batch.Requests) == 0 {
		badRequest(c, "Batch must contain at least one request")
		return
	}
	if max := s.settings.Server.BatchMaxSize; len(batch.Requests) > max {
		badRequest(c, fmt.Sprintf("Batch size exceeds maximum (%d requests)", max))
		return
	}
	for i, req := range batch.Requests {
		if req == nil {
			badRequest(c, fmt.Sprintf("Invalid request at index %d: empty request", i))
			return
		}
		if err := req.Validate(); err != nil {
			badRequest(c, fmt.Sprintf("Invalid request at index %d: %v", i, err))
			return
		}
	}

	batchID := uuid.NewString()
	taskIDs := make([]string, 0, len(batch.Requests))
	for _, req := range batch.Requests {
		job := &queue.Job{BatchID: batchID, Request: req}
		if err := s.tasks.Enqueue(c.Request.Context(), job); err != nil {
			slog.Error("Batch enqueue failed",
				"batch_id", batchID,
				"enqueued", len(taskIDs),
				"error", err)
			internalError(c, err)
			return
		}
		taskIDs = append(taskIDs, job.ID)
	}

	slog.Info("Batch submitted", "batch_id", batchID, "task_count", len(taskIDs))
	c.JSON(http.StatusAccepted, &BatchSubmitResponse{
		BatchID:     batchID,
		TaskCount:   len(taskIDs),
		TaskIDs:     taskIDs,
		SubmittedAt: models.NowISO(),
	})
}

// handleTaskStatus reports the lifecycle state of one job, attaching the
// result once the job succeeded. GET /api/v1/task/:id.
func (s *Server) handleTaskStatus(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	st, err := s.tasks.JobStatus(ctx, id)
	if errors.Is(err, queue.ErrUnknownJob) {
		// Queue state expires with the result TTL; the store may still
		// hold the result under the job link.
		result, rerr := s.repo.GetResultByJob(ctx, id)
		switch {
		case rerr == nil:
			c.JSON(http.StatusOK, &TaskStatusResponse{
				TaskID: id,
				Status: string(queue.JobStateSuccess),
				Result: result,
			})
		case errors.Is(rerr, store.ErrNotFound):
			notFound(c, fmt.Sprintf("Task %s not found", id))
		default:
			internalError(c, rerr)
		}
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	resp := &TaskStatusResponse{TaskID: id, Status: string(st.State)}
	switch st.State {
	case queue.JobStateSuccess:
		resp.Result = s.lookupResult(ctx, st, id)
	case queue.JobStateFailure:
		resp.Error = st.Error
	}
	c.JSON(http.StatusOK, resp)
}

// handleTaskResult returns the bare result of a finished job, 202 while
// the job is still moving through the queue. GET /api/v1/result/:id.
func (s *Server) handleTaskResult(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	st, err := s.tasks.JobStatus(ctx, id)
	if errors.Is(err, queue.ErrUnknownJob) {
		result, rerr := s.repo.GetResultByJob(ctx, id)
		switch {
		case rerr == nil:
			c.JSON(http.StatusOK, result)
		case errors.Is(rerr, store.ErrNotFound):
			notFound(c, fmt.Sprintf("Task %s not found", id))
		default:
			internalError(c, rerr)
		}
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	switch st.State {
	case queue.JobStateSuccess:
		if result := s.lookupResult(ctx, st, id); result != nil {
			c.JSON(http.StatusOK, result)
			return
		}
		notFound(c, fmt.Sprintf("Result for task %s not found", id))
	case queue.JobStateFailure:
		c.JSON(http.StatusInternalServerError, errorBody(errTaskFailed, "Task failed: "+st.Error))
	default:
		c.JSON(http.StatusAccepted, gin.H{
			"task_id": id,
			"status":  string(st.State),
			"message": "Task still processing",
		})
	}
}

// lookupResult fetches the stored result for a finished job, preferring
// the request uid recorded in the job status. Best effort: a missing or
// expired result yields nil.
func (s *Server) lookupResult(ctx context.Context, st *queue.JobStatus, jobID string) *models.TriageResult {
	var result *models.TriageResult
	var err error
	if st.RequestUID != "" {
		result, err = s.repo.GetResult(ctx, st.RequestUID)
	} else {
		result, err = s.repo.GetResultByJob(ctx, jobID)
	}
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Result lookup failed", "job_id", jobID, "error", err)
		}
		return nil
	}
	return result
}
