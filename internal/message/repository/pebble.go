package repository

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/domain"
)

const (
	keyspace  = "message"
	seqKey    = "meta:message_seq"
	blobPfx   = "msg:"
	indexPfx  = "idx:"
	seqFormat = "%020d"
)

// PebbleStore writes the blob, the three index entries and the trims in a
// single pebble batch.
type PebbleStore struct {
	db     *kv.DB
	limits Limits
	mu     sync.Mutex
}

func NewPebbleStore(db *kv.DB, limits Limits) *PebbleStore {
	return &PebbleStore{db: db, limits: limits}
}

func blobKey(id string) []byte {
	return []byte(blobPfx + id)
}

func listPrefix(listKey string) []byte {
	return []byte(indexPfx + listKey + "|")
}

func (s *PebbleStore) nextSeq(ctx context.Context) (uint64, error) {
	raw, ok, err := s.db.Get(ctx, []byte(seqKey), keyspace)
	if err != nil {
		return 0, err
	}
	if !ok || len(raw) != 8 {
		return 1, nil
	}
	return binary.BigEndian.Uint64(raw) + 1, nil
}

func (s *PebbleStore) Save(ctx context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists, err := s.db.Get(ctx, blobKey(msg.ID), keyspace); err != nil {
		return err
	} else if exists {
		return ErrDuplicateID
	}

	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	if err := s.stage(ctx, b, msg, seq); err != nil {
		b.Close()
		return err
	}
	return s.db.Commit(ctx, b, keyspace)
}

func (s *PebbleStore) stage(ctx context.Context, b *pebble.Batch, msg domain.Message, seq uint64) error {
	if err := kv.SetJSON(b, blobKey(msg.ID), msg); err != nil {
		return err
	}
	seqRaw := make([]byte, 8)
	binary.BigEndian.PutUint64(seqRaw, seq)
	if err := b.Set([]byte(seqKey), seqRaw, nil); err != nil {
		return err
	}

	for _, l := range bounds(msg, s.limits) {
		prefix := listPrefix(l.key)
		entry := append(append([]byte(nil), prefix...), fmt.Sprintf(seqFormat, seq)...)
		if err := b.Set(entry, []byte(msg.ID), nil); err != nil {
			return err
		}
		if err := s.stageTrim(ctx, b, prefix, l.limit-1); err != nil {
			return err
		}
	}
	return nil
}

// stageTrim deletes committed entries beyond keep, newest first. The entry
// staged in the same batch is not visible here, hence keep is limit-1.
func (s *PebbleStore) stageTrim(ctx context.Context, b *pebble.Batch, prefix []byte, keep int) error {
	seen := 0
	var stageErr error
	err := s.db.Scan(ctx, prefix, keyspace, true, func(key, _ []byte) bool {
		seen++
		if seen <= keep {
			return true
		}
		if stageErr = b.Delete(append([]byte(nil), key...), nil); stageErr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return stageErr
}

func (s *PebbleStore) Get(ctx context.Context, id string) (domain.Message, bool, error) {
	var msg domain.Message
	ok, err := s.db.GetJSON(ctx, blobKey(id), keyspace, &msg)
	if err != nil || !ok {
		return domain.Message{}, false, err
	}
	return msg, true, nil
}

func (s *PebbleStore) GetMany(ctx context.Context, ids []string) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *PebbleStore) List(ctx context.Context, listKey string, limit int) ([]string, error) {
	ids := make([]string, 0, limit)
	err := s.db.Scan(ctx, listPrefix(listKey), keyspace, true, func(_, value []byte) bool {
		ids = append(ids, string(value))
		return len(ids) < limit
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PebbleStore) MarkRead(ctx context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	changed := 0
	for _, id := range ids {
		msg, ok, err := s.Get(ctx, id)
		if err != nil {
			b.Close()
			return err
		}
		if !ok || msg.Read {
			continue
		}
		readAt := at.UTC()
		msg.Read = true
		msg.ReadAt = &readAt
		if err := kv.SetJSON(b, blobKey(id), msg); err != nil {
			b.Close()
			return err
		}
		changed++
	}
	if changed == 0 {
		b.Close()
		return nil
	}
	return s.db.Commit(ctx, b, keyspace)
}
