package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/fieldvolt/fieldvolt-access/internal/audit"
)

type memoryAuditRepo struct {
	entries []audit.Entry
	cutoff  time.Time
}

func (m *memoryAuditRepo) Insert(_ context.Context, entry audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAuditRepo) Select(context.Context, audit.Filters, int, int) ([]audit.Entry, error) {
	return m.entries, nil
}

func (m *memoryAuditRepo) DeleteOlderThan(_ context.Context, cutoff pgtype.Timestamptz) (int64, error) {
	m.cutoff = cutoff.Time
	return 3, nil
}

func TestHandleWritePersistsEntry(t *testing.T) {
	repo := &memoryAuditRepo{}
	tasks := NewAuditTasks(repo, slog.Default(), nil)

	task, err := audit.NewWriteTask(audit.Entry{
		UserID:   9,
		Kind:     audit.KindAccess,
		Resource: "jobs",
		Action:   "view",
		Granted:  true,
	})
	require.NoError(t, err)

	require.NoError(t, tasks.HandleWrite(context.Background(), task))
	require.Len(t, repo.entries, 1)
	require.Equal(t, int64(9), repo.entries[0].UserID)
	require.NotEqual(t, uuid.Nil, repo.entries[0].ID)
}

func TestHandleWriteMalformedPayloadSkipsRetry(t *testing.T) {
	tasks := NewAuditTasks(&memoryAuditRepo{}, slog.Default(), nil)
	task := asynq.NewTask(audit.TaskTypeWrite, []byte("{not json"))

	err := tasks.HandleWrite(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleRetentionUsesConfiguredWindow(t *testing.T) {
	repo := &memoryAuditRepo{}
	tasks := NewAuditTasks(repo, slog.Default(), nil)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tasks.now = func() time.Time { return now }

	task, err := NewRetentionTask(90)
	require.NoError(t, err)
	require.NoError(t, tasks.HandleRetention(context.Background(), task))
	require.Equal(t, now.AddDate(0, 0, -90), repo.cutoff)
}

func TestHandleRetentionRejectsNonPositiveWindow(t *testing.T) {
	tasks := NewAuditTasks(&memoryAuditRepo{}, slog.Default(), nil)
	task, err := NewRetentionTask(0)
	require.NoError(t, err)
	require.ErrorIs(t, tasks.HandleRetention(context.Background(), task), asynq.SkipRetry)
}
