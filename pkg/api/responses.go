package api

import "github.com/mailops/triaged/pkg/models"

// TriageResponse wraps a synchronous triage verdict.
type TriageResponse struct {
	Status   string               `json:"status"`
	Result   *models.TriageResult `json:"result"`
	Warnings []string             `json:"warnings"`
}

// BatchSubmitRequest carries the requests of one batch submission.
type BatchSubmitRequest struct {
	Requests []*models.TriageRequest `json:"requests"`
}

// BatchSubmitResponse returns the tracking handles for an accepted batch.
type BatchSubmitResponse struct {
	BatchID     string   `json:"batch_id"`
	TaskCount   int      `json:"task_count"`
	TaskIDs     []string `json:"task_ids"`
	SubmittedAt string   `json:"submitted_at"`
}

// TaskStatusResponse reports the lifecycle state of one queued job.
type TaskStatusResponse struct {
	TaskID string               `json:"task_id"`
	Status string               `json:"status"`
	Result *models.TriageResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// RecentResultsResponse lists stored results, newest first.
type RecentResultsResponse struct {
	Results []models.TriageResult `json:"results"`
	Count   int                   `json:"count"`
}

// DeleteResponse confirms a result removal.
type DeleteResponse struct {
	RequestUID string `json:"request_uid"`
	Deleted    bool   `json:"deleted"`
}

// DLQResponse lists dead-lettered requests, newest first.
type DLQResponse struct {
	Entries []models.DLQEntry `json:"entries"`
	Count   int               `json:"count"`
}

// StatsResponse combines store and queue counters.
type StatsResponse struct {
	TotalResults     int64 `json:"total_results"`
	DLQSize          int64 `json:"dlq_size"`
	ResultTTLSeconds int   `json:"result_ttl_seconds"`
	QueueDepth       int64 `json:"queue_depth"`
	DelayedJobs      int64 `json:"delayed_jobs"`
}

// HealthResponse aggregates the per-dependency health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Timestamp string            `json:"timestamp"`
}

// VersionResponse pins the pipeline configuration of this deployment.
type VersionResponse struct {
	InferenceLayerVersion string            `json:"inference_layer_version"`
	ModelName             string            `json:"model_name"`
	DictionaryVersion     int               `json:"dictionary_version"`
	SchemaVersion         string            `json:"schema_version"`
	PipelineConfig        map[string]string `json:"pipeline_config"`
}

// ModelInfoResponse reports the served model as the backend describes it.
type ModelInfoResponse struct {
	Name              string `json:"name"`
	Format            string `json:"format,omitempty"`
	Family            string `json:"family,omitempty"`
	ParameterSize     string `json:"parameter_size,omitempty"`
	QuantizationLevel string `json:"quantization_level,omitempty"`
}
