// Package jobs hosts the asynq worker plumbing: audit persistence and the
// scheduled retention sweep.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fieldvolt/fieldvolt-access/internal/audit"
	jobmetrics "github.com/fieldvolt/fieldvolt-access/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRetention is the scheduled audit retention sweep.
	TaskTypeRetention = "audit:retention"
)

// RetentionPayload bounds the retention sweep.
type RetentionPayload struct {
	Days int `json:"days"`
}

// NewRetentionTask constructs the retention sweep task.
func NewRetentionTask(days int) (*asynq.Task, error) {
	data, err := json.Marshal(RetentionPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRetention, data), nil
}

// AuditTasks binds the audit task handlers to a repository.
type AuditTasks struct {
	repo    audit.Repository
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewAuditTasks constructs the handler set. metrics may be nil.
func NewAuditTasks(repo audit.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditTasks {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditTasks{repo: repo, logger: logger, metrics: metrics, now: time.Now}
}

// HandleWrite persists one queued audit entry.
func (a *AuditTasks) HandleWrite(ctx context.Context, t *asynq.Task) error {
	track := a.metrics.Track("audit_write")
	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		a.logger.Error("decode audit entry", slog.Any("error", err))
		return track.End(asynq.SkipRetry)
	}
	if err := a.repo.Insert(ctx, audit.Normalize(entry)); err != nil {
		a.logger.Error("persist audit entry", slog.Any("error", err))
		return track.End(err)
	}
	return track.End(nil)
}

// HandleRetention deletes audit rows older than the configured window.
func (a *AuditTasks) HandleRetention(ctx context.Context, t *asynq.Task) error {
	track := a.metrics.Track("audit_retention")
	var payload RetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return track.End(asynq.SkipRetry)
	}
	if payload.Days <= 0 {
		return track.End(asynq.SkipRetry)
	}
	cutoff := a.now().AddDate(0, 0, -payload.Days)
	var ts pgtype.Timestamptz
	if err := ts.Scan(cutoff); err != nil {
		return track.End(err)
	}
	deleted, err := a.repo.DeleteOlderThan(ctx, ts)
	if err != nil {
		a.logger.Error("audit retention sweep", slog.Any("error", err))
		return track.End(err)
	}
	a.logger.Info("audit retention sweep",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))
	return track.End(nil)
}
