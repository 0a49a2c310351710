package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/db"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/domain"
)

type AuditLog interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	// List returns the newest entries for handle first.
	List(ctx context.Context, handle string, limit int) ([]domain.AuditEntry, error)
}

const table = "rotation_audit"

type PgAuditLog struct {
	pool *pgxpool.Pool
}

func NewPgAuditLog(pool *pgxpool.Pool) *PgAuditLog {
	return &PgAuditLog{pool: pool}
}

func (l *PgAuditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	start := time.Now()
	_, err := l.pool.Exec(
		ctx,
		`INSERT INTO rotation_audit (id, handle, old_key, new_key, success, reason, client_ip, user_agent, trace_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID,
		entry.Handle,
		entry.OldKey,
		entry.NewKey,
		entry.Success,
		entry.Reason,
		entry.ClientIP,
		entry.UserAgent,
		entry.TraceID,
		entry.CreatedAt,
	)
	return db.HandleExecError(err, "append audit", table, start)
}

func (l *PgAuditLog) List(ctx context.Context, handle string, limit int) ([]domain.AuditEntry, error) {
	start := time.Now()
	rows, err := l.pool.Query(
		ctx,
		`SELECT id, handle, old_key, new_key, success, reason, client_ip, user_agent, trace_id, created_at
		 FROM rotation_audit WHERE handle = $1 ORDER BY created_at DESC LIMIT $2`,
		handle,
		limit,
	)
	if err := db.HandleQueryError(err, nil, "list audit", table, start); err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.Handle, &e.OldKey, &e.NewKey, &e.Success, &e.Reason, &e.ClientIP, &e.UserAgent, &e.TraceID, &e.CreatedAt); err != nil {
			return nil, db.HandleQueryError(err, nil, "scan audit", table, start)
		}
		entries = append(entries, e)
	}
	if err := db.HandleQueryError(rows.Err(), nil, "list audit", table, start); err != nil {
		return nil, err
	}
	return entries, nil
}
