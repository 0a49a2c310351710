package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

// DB is the embedded single-node backend shared by every pebble repository.
// Keys are namespaced by a keyspace prefix such as "msg:" or "ttl:".
type DB struct {
	db  *pebble.DB
	log *logger.Logger
}

func Open(path string, log *logger.Logger) (*DB, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	if log != nil {
		log.WithFields(context.Background(), logger.Fields{
			"path":   path,
			"action": "pebble_opened",
		}).Info("pebble store opened")
	}
	return &DB{db: db, log: log}, nil
}

// OpenInMemory backs the store with an in-memory filesystem; used by tests.
func OpenInMemory() (*DB, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, closer, err := d.db.Get([]byte("__ping__"))
	if err == nil {
		closer.Close()
		return nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

func (d *DB) NewBatch() *pebble.Batch {
	return d.db.NewBatch()
}

func (d *DB) Commit(ctx context.Context, b *pebble.Batch, keyspace string) error {
	defer b.Close()
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.Commit(pebble.Sync)
	observe("commit", keyspace, start, err)
	if err != nil {
		return commonerrors.ErrStorageUnavailable.WithCause(err)
	}
	return nil
}

// Get returns a copy of the stored value, or ok=false when the key is absent.
func (d *DB) Get(ctx context.Context, key []byte, keyspace string) ([]byte, bool, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, closer, err := d.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		observe("get", keyspace, start, nil)
		return nil, false, nil
	}
	observe("get", keyspace, start, err)
	if err != nil {
		return nil, false, commonerrors.ErrStorageUnavailable.WithCause(err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), true, nil
}

func (d *DB) GetJSON(ctx context.Context, key []byte, keyspace string, out any) (bool, error) {
	raw, ok, err := d.Get(ctx, key, keyspace)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func SetJSON(b *pebble.Batch, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(key, raw, nil)
}

// Scan visits keys under prefix in ascending order, or descending when
// reverse is set, until fn returns false.
func (d *DB) Scan(ctx context.Context, prefix []byte, keyspace string, reverse bool, fn func(key, value []byte) bool) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		observe("scan", keyspace, start, err)
		return commonerrors.ErrStorageUnavailable.WithCause(err)
	}
	defer iter.Close()

	valid := iter.First()
	if reverse {
		valid = iter.Last()
	}
	for valid {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
		if reverse {
			valid = iter.Prev()
		} else {
			valid = iter.Next()
		}
	}
	err = iter.Error()
	observe("scan", keyspace, start, err)
	if err != nil {
		return commonerrors.ErrStorageUnavailable.WithCause(err)
	}
	return nil
}

// PrefixUpperBound returns the smallest key greater than every key with the prefix.
func PrefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func observe(operation, keyspace string, start time.Time, err error) {
	metrics.KVOperationDurationSeconds.WithLabelValues(operation, keyspace).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.KVOperationErrors.WithLabelValues(operation, keyspace).Inc()
	}
}
