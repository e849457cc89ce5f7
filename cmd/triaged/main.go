// triaged server — exposes the email triage HTTP API and runs the queue
// workers that process batch submissions.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mailops/triaged/pkg/api"
	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/llm"
	"github.com/mailops/triaged/pkg/pii"
	"github.com/mailops/triaged/pkg/prompt"
	"github.com/mailops/triaged/pkg/queue"
	"github.com/mailops/triaged/pkg/retry"
	"github.com/mailops/triaged/pkg/schema"
	"github.com/mailops/triaged/pkg/store"
	"github.com/mailops/triaged/pkg/triage"
	"github.com/mailops/triaged/pkg/validation"
	"github.com/mailops/triaged/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupLogging installs the process-wide slog handler at the configured
// level. Called as soon as the settings are resolved; earlier lines go out
// at the default level.
func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "."),
		"Path to configuration directory (triaged.yaml, .env)")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("No .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting triaged",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Resolve configuration
	settings, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(settings.Server.LogLevel)

	// 2. Load and compile the verdict schema
	var doc *schema.Document
	if path := settings.Validation.SchemaPath; path != "" {
		doc, err = schema.FromFile(path)
	} else {
		doc, err = schema.Embedded()
	}
	if err != nil {
		slog.Error("Failed to load verdict schema", "error", err)
		os.Exit(1)
	}
	slog.Info("Verdict schema compiled", "schema_version", schema.Version)

	// 3. Connect to Redis (store + queue share the pool)
	rdb, err := store.NewClient(settings.Redis)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Non-fatal: triage itself only needs the LLM backend; persistence
		// and the queue recover when Redis comes back.
		slog.Warn("Redis not reachable at startup", "error", err)
	} else {
		slog.Info("Connected to Redis")
	}
	repo := store.NewRepository(rdb, settings.Store)
	tasks := queue.NewTaskQueue(rdb, settings.Queue, settings.Store.ResultTTL())

	// 4. Build the per-process pipeline singletons
	gateway := llm.NewOllamaClient(settings.Ollama)
	redactor := pii.NewRedactor(settings.Redaction.PiiTypes)
	assembler := prompt.NewAssembler(settings.Prompt, settings.Redaction.ForLLM, redactor, doc)
	pipeline := validation.NewPipeline(doc, settings.Validation)
	engine := retry.NewEngine(gateway, assembler, pipeline, settings)
	service := triage.NewService(engine, repo, redactor, settings)
	slog.Info("Triage pipeline initialized",
		"model", settings.Ollama.Model,
		"fallback_models", settings.Ollama.FallbackModels)

	if !gateway.HealthCheck(ctx) {
		// Same posture as Redis: log and start anyway, /health reports it.
		slog.Warn("Ollama not reachable at startup", "base_url", settings.Ollama.BaseURL)
	}

	// 5. Start the worker pool (before the HTTP server)
	pool := queue.NewWorkerPool(tasks, service, settings.Queue)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 6. Create and start the HTTP server (non-blocking)
	httpServer := api.NewServer(settings, service, tasks, gateway, repo, doc)
	httpServer.SetPool(pool)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", settings.Server.ListenAddr)
		if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("triaged started successfully",
		"workers", settings.Queue.WorkerCount,
		"addr", settings.Server.ListenAddr)

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: drain workers first so in-flight jobs finish,
	// then the HTTP server with its own budget.
	shutdownTimeout := time.Duration(settings.Server.ShutdownTimeoutSeconds) * time.Second
	workerCtx, workerCancel := context.WithTimeout(ctx, shutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerCtx.Done():
		slog.Warn("Shutdown timeout exceeded — in-flight jobs will be redelivered")
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
