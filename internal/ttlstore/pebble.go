package ttlstore

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
)

const (
	keyspace  = "ttl"
	keyPrefix = "ttl:"
)

// PebbleStore serializes read-modify-write under a process mutex. The
// embedded backend is single-node, so the mutex is the only writer.
type PebbleStore struct {
	db    *kv.DB
	clock clock.Clock
	mu    sync.Mutex
}

func NewPebbleStore(db *kv.DB, clk clock.Clock) *PebbleStore {
	return &PebbleStore{db: db, clock: clk}
}

type entry struct {
	value     int64
	expiresAt int64
}

func encodeEntry(e entry) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(e.value))
	binary.BigEndian.PutUint64(buf[8:], uint64(e.expiresAt))
	return buf
}

func decodeEntry(raw []byte) (entry, bool) {
	if len(raw) != 16 {
		return entry{}, false
	}
	return entry{
		value:     int64(binary.BigEndian.Uint64(raw[:8])),
		expiresAt: int64(binary.BigEndian.Uint64(raw[8:])),
	}, true
}

func (s *PebbleStore) load(ctx context.Context, key []byte, now int64) (entry, bool, error) {
	raw, ok, err := s.db.Get(ctx, key, keyspace)
	if err != nil || !ok {
		return entry{}, false, err
	}
	e, valid := decodeEntry(raw)
	if !valid || e.expiresAt <= now {
		return entry{}, false, nil
	}
	return e, true, nil
}

func (s *PebbleStore) save(ctx context.Context, key []byte, e entry) error {
	b := s.db.NewBatch()
	if err := b.Set(key, encodeEntry(e), nil); err != nil {
		b.Close()
		return err
	}
	return s.db.Commit(ctx, b, keyspace)
}

func (s *PebbleStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UnixNano()
	k := []byte(keyPrefix + key)
	e, live, err := s.load(ctx, k, now)
	if err != nil {
		return 0, err
	}
	if live {
		e.value++
	} else {
		e = entry{value: 1, expiresAt: now + int64(ttl)}
	}
	if err := s.save(ctx, k, e); err != nil {
		return 0, err
	}
	return e.value, nil
}

func (s *PebbleStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UnixNano()
	k := []byte(keyPrefix + key)
	_, live, err := s.load(ctx, k, now)
	if err != nil {
		return false, err
	}
	if live {
		return false, nil
	}
	if err := s.save(ctx, k, entry{value: 1, expiresAt: now + int64(ttl)}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UnixNano()
	b := s.db.NewBatch()
	var deleted int64
	var setErr error
	err := s.db.Scan(ctx, []byte(keyPrefix), keyspace, false, func(key, value []byte) bool {
		e, ok := decodeEntry(value)
		if ok && e.expiresAt > now {
			return true
		}
		if setErr = b.Delete(append([]byte(nil), key...), nil); setErr != nil {
			return false
		}
		deleted++
		return true
	})
	if err == nil {
		err = setErr
	}
	if err != nil {
		b.Close()
		return 0, err
	}
	if deleted == 0 {
		b.Close()
		return 0, nil
	}
	if err := s.db.Commit(ctx, b, keyspace); err != nil {
		return 0, err
	}
	return deleted, nil
}
