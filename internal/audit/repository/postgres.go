package repository

import (
	"context"
	"database/sql"
	"fmt"

	"storefront/backend/internal/audit/domain"
	"storefront/backend/internal/db"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	const q = `INSERT INTO audit_logs (id, account_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	uid := sql.NullString{String: a.AccountID, Valid: a.AccountID != ""}
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	if _, err := r.db.ExecContext(ctx, q, a.ID, uid, a.Action, a.Resource, a.IP, meta, a.CreatedAt); err != nil {
		return fmt.Errorf("audit_logs: create: %w", err)
	}
	return nil
}

// ListByAccount returns the account's audit logs, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*domain.AuditLog, error) {
	const q = `SELECT id, account_id, action, resource, ip, metadata, created_at
		FROM audit_logs WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, q, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit_logs: list: %w", err)
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a         domain.AuditLog
			uid, meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &uid, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit_logs: scan: %w", err)
		}
		a.AccountID = uid.String
		a.Metadata = meta.String
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit_logs: list: %w", err)
	}
	return out, nil
}
