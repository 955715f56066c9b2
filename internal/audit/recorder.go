package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// TaskTypeWrite is the asynq task type carrying one audit entry.
const TaskTypeWrite = "audit:write"

// Recorder accepts audit entries. Implementations return an error so callers
// can observe persistence problems, but the authorization path ignores the
// result by policy: a failed write never changes a grant/deny outcome.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// NewWriteTask wraps an entry in an asynq task.
func NewWriteTask(entry Entry) (*asynq.Task, error) {
	payload, err := json.Marshal(Normalize(entry))
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWrite, payload), nil
}

// QueueRecorder enqueues entries for the background worker. The decision path
// returns as soon as the task is queued; persistence happens out of band.
type QueueRecorder struct {
	client *asynq.Client
	queue  string
}

// NewQueueRecorder constructs a QueueRecorder on the given queue name.
func NewQueueRecorder(client *asynq.Client, queue string) *QueueRecorder {
	if queue == "" {
		queue = "default"
	}
	return &QueueRecorder{client: client, queue: queue}
}

// Record enqueues the entry.
func (r *QueueRecorder) Record(ctx context.Context, entry Entry) error {
	task, err := NewWriteTask(entry)
	if err != nil {
		return err
	}
	_, err = r.client.EnqueueContext(ctx, task, asynq.Queue(r.queue))
	return err
}

// DirectRecorder persists entries synchronously through a Repository. Used
// by the worker and in deployments without a queue.
type DirectRecorder struct {
	repo Repository
}

// NewDirectRecorder constructs a DirectRecorder.
func NewDirectRecorder(repo Repository) *DirectRecorder {
	return &DirectRecorder{repo: repo}
}

// Record inserts the entry.
func (r *DirectRecorder) Record(ctx context.Context, entry Entry) error {
	return r.repo.Insert(ctx, Normalize(entry))
}

// LogRecorder writes entries to the diagnostic log only. It backstops
// configurations where neither queue nor database is available.
type LogRecorder struct {
	Logger *slog.Logger
}

// Record logs the entry and always succeeds.
func (r LogRecorder) Record(ctx context.Context, entry Entry) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	entry = Normalize(entry)
	logger.Info("audit entry",
		slog.String("kind", string(entry.Kind)),
		slog.Int64("user_id", entry.UserID),
		slog.String("resource", entry.Resource),
		slog.String("action", entry.Action),
		slog.Bool("granted", entry.Granted),
		slog.String("reason", entry.Reason),
	)
	return nil
}
