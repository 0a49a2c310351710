package repository

import (
	"context"
	"sort"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/consent/domain"
)

const keyspace = "consent"

// PebbleRepository keys records by recipient first so pending requests of
// one user are a single prefix scan.
type PebbleRepository struct {
	db *kv.DB
}

func NewPebbleRepository(db *kv.DB) *PebbleRepository {
	return &PebbleRepository{db: db}
}

func recipientPrefix(to string) []byte {
	return []byte("cns:" + to + "|")
}

func recordKey(from, to string) []byte {
	return append(recipientPrefix(to), from...)
}

func (r *PebbleRepository) Get(ctx context.Context, from, to string) (domain.Record, error) {
	var record domain.Record
	ok, err := r.db.GetJSON(ctx, recordKey(from, to), keyspace, &record)
	if err != nil {
		return domain.Record{}, err
	}
	if !ok {
		return domain.Record{From: from, To: to, State: domain.StateNone}, nil
	}
	return record, nil
}

func (r *PebbleRepository) Put(ctx context.Context, record domain.Record) error {
	b := r.db.NewBatch()
	if err := kv.SetJSON(b, recordKey(record.From, record.To), record); err != nil {
		b.Close()
		return err
	}
	return r.db.Commit(ctx, b, keyspace)
}

func (r *PebbleRepository) ListByRecipient(ctx context.Context, to string, state domain.State, limit int) ([]domain.Record, error) {
	var (
		records []domain.Record
		decErr  error
	)
	err := r.db.Scan(ctx, recipientPrefix(to), keyspace, false, func(_, value []byte) bool {
		var record domain.Record
		if decErr = decodeRecord(value, &record); decErr != nil {
			return false
		}
		if record.State == state {
			records = append(records, record)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, decErr
	}

	sort.SliceStable(records, func(i, j int) bool {
		return requestedAt(records[i]) > requestedAt(records[j])
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func requestedAt(r domain.Record) int64 {
	if r.RequestedAt == nil {
		return 0
	}
	return r.RequestedAt.UnixNano()
}
