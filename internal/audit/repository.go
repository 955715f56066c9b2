package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides append-only persistence for audit entries.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	Select(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	DeleteOlderThan(ctx context.Context, cutoff pgtype.Timestamptz) (int64, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends one entry to access_logs.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("audit: marshal context: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO access_logs
			(id, user_id, kind, resource, action, scope, granted, reason, context, ip_address, user_agent, component, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID,
		entry.UserID,
		string(entry.Kind),
		entry.Resource,
		entry.Action,
		optionalText(entry.Scope),
		entry.Granted,
		optionalText(entry.Reason),
		contextJSON,
		optionalText(entry.IPAddress),
		optionalText(entry.UserAgent),
		optionalText(entry.Component),
		pgtype.Timestamptz{Time: entry.At, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Select returns entries matching the filters, newest first.
func (r *PGRepository) Select(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.UserID != nil {
		where = append(where, "user_id = "+arg(*filters.UserID))
	}
	if filters.Kind != "" {
		where = append(where, "kind = "+arg(string(filters.Kind)))
	}
	if filters.Resource != "" {
		where = append(where, "resource = "+arg(filters.Resource))
	}
	if filters.Action != "" {
		where = append(where, "action = "+arg(filters.Action))
	}
	if filters.Granted != nil {
		where = append(where, "granted = "+arg(*filters.Granted))
	}
	if !filters.From.IsZero() {
		where = append(where, "occurred_at >= "+arg(pgtype.Timestamptz{Time: filters.From.UTC(), Valid: true}))
	}
	if !filters.To.IsZero() {
		where = append(where, "occurred_at <= "+arg(pgtype.Timestamptz{Time: filters.To.UTC(), Valid: true}))
	}

	query := `
		SELECT id, user_id, kind, resource, action, scope, granted, reason, context, ip_address, user_agent, component, occurred_at
		FROM access_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id DESC"
	query += " LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: select: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry       Entry
			id          uuid.UUID
			kind        string
			scope       pgtype.Text
			reason      pgtype.Text
			contextJSON []byte
			ip          pgtype.Text
			ua          pgtype.Text
			component   pgtype.Text
			occurredAt  pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &entry.UserID, &kind, &entry.Resource, &entry.Action, &scope, &entry.Granted, &reason, &contextJSON, &ip, &ua, &component, &occurredAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		entry.ID = id
		entry.Kind = Kind(kind)
		entry.Scope = scope.String
		entry.Reason = reason.String
		entry.IPAddress = ip.String
		entry.UserAgent = ua.String
		entry.Component = component.String
		if occurredAt.Valid {
			entry.At = occurredAt.Time
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
				return nil, fmt.Errorf("audit: unmarshal context: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan removes entries older than the cutoff. Retention sweeps are
// the single sanctioned deletion path; the API never exposes one.
func (r *PGRepository) DeleteOlderThan(ctx context.Context, cutoff pgtype.Timestamptz) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: retention delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

var _ Repository = (*PGRepository)(nil)
