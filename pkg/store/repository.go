// Package store persists triage results and dead-letter entries in Redis.
//
// Layout:
//
//	triage:result:{uid}    result JSON, expires after result_ttl_seconds
//	triage:task:{jobID}    job id -> request uid mapping, same TTL
//	triage:results:index   sorted set of uids scored by created_at epoch
//	triage:dlq             list of entry JSON, newest first, capped
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/models"
)

const (
	resultPrefix = "triage:result:"
	taskPrefix   = "triage:task:"
	dlqKey       = "triage:dlq"
	resultsIndex = "triage:results:index"

	defaultListLimit = 100
)

// ErrNotFound is returned when no result exists for the requested key,
// whether it was never written or already expired.
var ErrNotFound = errors.New("store: not found")

// Stats are the repository counters surfaced by the stats endpoint. The
// result count is taken from the index, so it can briefly exceed the number
// of live results while expired entries linger there.
type Stats struct {
	TotalResults     int64 `json:"total_results"`
	DLQSize          int64 `json:"dlq_size"`
	ResultTTLSeconds int   `json:"result_ttl_seconds"`
}

// Repository is the Redis-backed result and DLQ store.
type Repository struct {
	rdb       *redis.Client
	resultTTL time.Duration
	dlqMax    int64
}

// NewRepository wraps an already-connected client. The client is shared with
// the queue and closed by the caller.
func NewRepository(rdb *redis.Client, settings config.StoreSettings) *Repository {
	return &Repository{
		rdb:       rdb,
		resultTTL: settings.ResultTTL(),
		dlqMax:    int64(settings.DLQMaxEntries),
	}
}

func resultKey(uid string) string { return resultPrefix + uid }
func taskKey(jobID string) string { return taskPrefix + jobID }

// SaveResult writes the result under its request UID with the configured
// TTL, adds it to the recency index, and, when jobID is set, records the
// job-to-uid mapping so async callers can find it after queue state expires.
func (r *Repository) SaveResult(ctx context.Context, result *models.TriageResult, jobID string) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("store: marshal result %s: %w", result.RequestUID, err)
	}

	if err := r.rdb.Set(ctx, resultKey(result.RequestUID), data, r.resultTTL).Err(); err != nil {
		return fmt.Errorf("store: save result %s: %w", result.RequestUID, err)
	}

	if result.CreatedAt != "" {
		ts := time.Now().UTC()
		if parsed, perr := time.Parse(time.RFC3339Nano, result.CreatedAt); perr == nil {
			ts = parsed
		}
		score := float64(ts.UnixNano()) / float64(time.Second)
		if err := r.rdb.ZAdd(ctx, resultsIndex, redis.Z{Score: score, Member: result.RequestUID}).Err(); err != nil {
			return fmt.Errorf("store: index result %s: %w", result.RequestUID, err)
		}
	}

	if jobID != "" {
		if err := r.rdb.Set(ctx, taskKey(jobID), result.RequestUID, r.resultTTL).Err(); err != nil {
			return fmt.Errorf("store: map job %s: %w", jobID, err)
		}
	}

	slog.Info("Result saved",
		"request_uid", result.RequestUID,
		"job_id", jobID,
		"ttl_seconds", int(r.resultTTL.Seconds()))
	return nil
}

// GetResult fetches a result by request UID.
func (r *Repository) GetResult(ctx context.Context, uid string) (*models.TriageResult, error) {
	data, err := r.rdb.Get(ctx, resultKey(uid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get result %s: %w", uid, err)
	}

	var result models.TriageResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("store: decode result %s: %w", uid, err)
	}
	return &result, nil
}

// GetResultByJob resolves the job-to-uid mapping and fetches the result.
func (r *Repository) GetResultByJob(ctx context.Context, jobID string) (*models.TriageResult, error) {
	uid, err := r.rdb.Get(ctx, taskKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: resolve job %s: %w", jobID, err)
	}
	return r.GetResult(ctx, uid)
}

// DeleteResult removes a result and its index entry. Reports whether a
// result was actually there.
func (r *Repository) DeleteResult(ctx context.Context, uid string) (bool, error) {
	deleted, err := r.rdb.Del(ctx, resultKey(uid)).Result()
	if err != nil {
		return false, fmt.Errorf("store: delete result %s: %w", uid, err)
	}
	if err := r.rdb.ZRem(ctx, resultsIndex, uid).Err(); err != nil {
		return deleted > 0, fmt.Errorf("store: unindex result %s: %w", uid, err)
	}

	slog.Info("Result deleted", "request_uid", uid, "existed", deleted > 0)
	return deleted > 0, nil
}

// SaveDLQ prepends the entry to the dead letter list and trims the list to
// the configured cap, dropping the oldest entries.
func (r *Repository) SaveDLQ(ctx context.Context, entry *models.DLQEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: marshal dlq entry %s: %w", entry.RequestUID, err)
	}

	if err := r.rdb.LPush(ctx, dlqKey, data).Err(); err != nil {
		return fmt.Errorf("store: push dlq entry %s: %w", entry.RequestUID, err)
	}
	if err := r.rdb.LTrim(ctx, dlqKey, 0, r.dlqMax-1).Err(); err != nil {
		return fmt.Errorf("store: trim dlq: %w", err)
	}

	slog.Error("Request dead-lettered",
		"request_uid", entry.RequestUID,
		"total_attempts", entry.TotalAttempts,
		"last_error", entry.LastError)
	return nil
}

// GetDLQ returns up to limit entries, newest first. Entries that no longer
// decode are skipped rather than failing the whole read; the DLQ exists for
// manual review and one bad record must not hide the rest.
func (r *Repository) GetDLQ(ctx context.Context, limit int) ([]models.DLQEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	raw, err := r.rdb.LRange(ctx, dlqKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read dlq: %w", err)
	}

	entries := make([]models.DLQEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.DLQEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			slog.Warn("Skipping undecodable DLQ entry", "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetRecent returns up to limit results ordered newest first. Index entries
// whose result has expired are skipped.
func (r *Repository) GetRecent(ctx context.Context, limit int) ([]models.TriageResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	uids, err := r.rdb.ZRevRange(ctx, resultsIndex, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read results index: %w", err)
	}

	results := make([]models.TriageResult, 0, len(uids))
	for _, uid := range uids {
		result, err := r.GetResult(ctx, uid)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

// GetStats reads the repository counters.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	total, err := r.rdb.ZCard(ctx, resultsIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("store: count results: %w", err)
	}
	dlqSize, err := r.rdb.LLen(ctx, dlqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: count dlq: %w", err)
	}

	return &Stats{
		TotalResults:     total,
		DLQSize:          dlqSize,
		ResultTTLSeconds: int(r.resultTTL.Seconds()),
	}, nil
}

// Ping checks the Redis connection for health reporting.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
