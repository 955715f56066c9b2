package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/platform/db"
)

// ErrNotFound indicates the grant does not exist.
var ErrNotFound = errors.New("grants: not found")

// Repository provides persistence for direct grants.
type Repository interface {
	Insert(ctx context.Context, grant UserPermission) error
	Deactivate(ctx context.Context, userID int64, grantID uuid.UUID, revokedAt time.Time) error
	ListActive(ctx context.Context, userID int64) ([]UserPermission, error)
	ListByUser(ctx context.Context, userID int64) ([]UserPermission, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert stores a new grant. An existing active grant for the same
// (resource, action, scope) tuple is retired in the same transaction so at
// most one stays live.
func (r *PGRepository) Insert(ctx context.Context, grant UserPermission) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE user_permissions
			SET is_active = FALSE, revoked_at = $5
			WHERE user_id = $1 AND resource = $2 AND action = $3 AND scope = $4 AND is_active`,
			grant.UserID,
			string(grant.Resource),
			string(grant.Action),
			string(grant.Scope),
			pgtype.Timestamptz{Time: grant.CreatedAt, Valid: true},
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO user_permissions
				(id, user_id, resource, action, scope, condition, granted_by, is_active, valid_from, valid_until, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			grant.ID,
			grant.UserID,
			string(grant.Resource),
			string(grant.Action),
			string(grant.Scope),
			[]byte(grant.Condition),
			grant.GrantedBy,
			grant.IsActive,
			optionalTime(grant.ValidFrom),
			optionalTime(grant.ValidUntil),
			pgtype.Timestamptz{Time: grant.CreatedAt, Valid: true},
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("grants: insert: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a grant. Rows are never removed.
func (r *PGRepository) Deactivate(ctx context.Context, userID int64, grantID uuid.UUID, revokedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_permissions
		SET is_active = FALSE, revoked_at = $3
		WHERE id = $1 AND user_id = $2 AND is_active`,
		grantID, userID, pgtype.Timestamptz{Time: revokedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("grants: deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns active grants currently inside their validity window.
func (r *PGRepository) ListActive(ctx context.Context, userID int64) ([]UserPermission, error) {
	return r.list(ctx, `
		SELECT id, user_id, resource, action, scope, condition, granted_by, is_active, valid_from, valid_until, created_at, revoked_at
		FROM user_permissions
		WHERE user_id = $1
		  AND is_active
		  AND (valid_from IS NULL OR valid_from <= NOW())
		  AND (valid_until IS NULL OR valid_until >= NOW())
		ORDER BY created_at DESC`, userID)
}

// ListByUser returns every grant for the user, revoked ones included.
func (r *PGRepository) ListByUser(ctx context.Context, userID int64) ([]UserPermission, error) {
	return r.list(ctx, `
		SELECT id, user_id, resource, action, scope, condition, granted_by, is_active, valid_from, valid_until, created_at, revoked_at
		FROM user_permissions
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
}

func (r *PGRepository) list(ctx context.Context, query string, userID int64) ([]UserPermission, error) {
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("grants: list: %w", err)
	}
	defer rows.Close()

	var grants []UserPermission
	for rows.Next() {
		var (
			g          UserPermission
			resource   string
			action     string
			scope      string
			cond       []byte
			validFrom  pgtype.Timestamptz
			validUntil pgtype.Timestamptz
			createdAt  pgtype.Timestamptz
			revokedAt  pgtype.Timestamptz
		)
		if err := rows.Scan(&g.ID, &g.UserID, &resource, &action, &scope, &cond, &g.GrantedBy, &g.IsActive, &validFrom, &validUntil, &createdAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("grants: scan: %w", err)
		}
		g.Resource = catalog.Resource(resource)
		g.Action = catalog.Action(action)
		g.Scope = catalog.Scope(scope)
		if len(cond) > 0 {
			g.Condition = append(g.Condition, cond...)
		}
		if validFrom.Valid {
			t := validFrom.Time
			g.ValidFrom = &t
		}
		if validUntil.Valid {
			t := validUntil.Time
			g.ValidUntil = &t
		}
		if createdAt.Valid {
			g.CreatedAt = createdAt.Time
		}
		if revokedAt.Valid {
			t := revokedAt.Time
			g.RevokedAt = &t
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grants: rows: %w", err)
	}
	return grants, nil
}

func optionalTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

var _ Repository = (*PGRepository)(nil)
