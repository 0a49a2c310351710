package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/domain"
)

const keyspace = "audit"

type PebbleAuditLog struct {
	db *kv.DB
}

func NewPebbleAuditLog(db *kv.DB) *PebbleAuditLog {
	return &PebbleAuditLog{db: db}
}

func handlePrefix(handle string) []byte {
	return []byte("audit:" + handle + "|")
}

func (l *PebbleAuditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	key := fmt.Appendf(handlePrefix(entry.Handle), "%020d|%s", entry.CreatedAt.UnixNano(), entry.ID)
	b := l.db.NewBatch()
	if err := kv.SetJSON(b, key, entry); err != nil {
		b.Close()
		return err
	}
	return l.db.Commit(ctx, b, keyspace)
}

func (l *PebbleAuditLog) List(ctx context.Context, handle string, limit int) ([]domain.AuditEntry, error) {
	var (
		entries []domain.AuditEntry
		decErr  error
	)
	err := l.db.Scan(ctx, handlePrefix(handle), keyspace, true, func(_, value []byte) bool {
		var e domain.AuditEntry
		if decErr = json.Unmarshal(value, &e); decErr != nil {
			return false
		}
		entries = append(entries, e)
		return limit <= 0 || len(entries) < limit
	})
	if err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, fmt.Errorf("decode audit entry: %w", decErr)
	}
	return entries, nil
}
