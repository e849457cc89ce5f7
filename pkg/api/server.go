// Package api exposes the triage pipeline over HTTP: a synchronous triage
// endpoint, batch submission with per-job status tracking, result retrieval
// and operational endpoints for health, stats and the dead letter queue.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/llm"
	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/queue"
	"github.com/mailops/triaged/pkg/schema"
	"github.com/mailops/triaged/pkg/store"
)

// Triager runs one synchronous triage request end to end. Implemented by
// the triage service.
type Triager interface {
	Triage(ctx context.Context, req *models.TriageRequest) (*models.TriageResult, error)
}

// PoolMonitor reports worker pool liveness for the health endpoint.
// Implemented by the queue worker pool.
type PoolMonitor interface {
	Health() *queue.PoolHealth
}

// Server is the HTTP front of the inference layer.
type Server struct {
	settings *config.Settings
	service  Triager
	tasks    *queue.TaskQueue
	pool     PoolMonitor
	gateway  llm.Gateway
	repo     *store.Repository
	doc      *schema.Document

	engine *gin.Engine
	http   *http.Server
}

// NewServer wires the handlers and builds the underlying http.Server.
// All dependencies are required.
func NewServer(settings *config.Settings, service Triager, tasks *queue.TaskQueue, gateway llm.Gateway, repo *store.Repository, doc *schema.Document) *Server {
	if settings == nil {
		panic("api: settings is required")
	}
	if service == nil {
		panic("api: triage service is required")
	}
	if tasks == nil {
		panic("api: task queue is required")
	}
	if gateway == nil {
		panic("api: llm gateway is required")
	}
	if repo == nil {
		panic("api: repository is required")
	}
	if doc == nil {
		panic("api: schema document is required")
	}

	s := &Server{
		settings: settings,
		service:  service,
		tasks:    tasks,
		gateway:  gateway,
		repo:     repo,
		doc:      doc,
	}
	s.engine = s.routes()
	s.http = &http.Server{
		Addr:              settings.Server.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetPool registers the worker pool whose health is reported under
// /health. Called after the pool has started; leaving it unset skips the
// worker_pool check.
func (s *Server) SetPool(pool PoolMonitor) {
	s.pool = pool
}

// Handler returns the routed engine, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() *gin.Engine {
	if !s.settings.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestTracing())

	r.GET("/health", s.handleHealth)
	r.GET("/version", s.handleVersion)
	r.GET("/schema", s.handleSchema)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/triage", s.handleTriage)
		v1.POST("/batch", s.handleBatch)
		v1.GET("/task/:id", s.handleTaskStatus)
		v1.GET("/result/:id", s.handleTaskResult)
		v1.GET("/results/recent", s.handleRecentResults)
		v1.DELETE("/result/:uid", s.handleDeleteResult)
		v1.GET("/dlq", s.handleDLQ)
		v1.GET("/stats", s.handleStats)
		v1.GET("/model", s.handleModelInfo)
	}

	return r
}
