package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/db"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/domain"
)

const (
	messagesTable = "messages"
	indexTable    = "message_index"
)

type PgStore struct {
	pool   *pgxpool.Pool
	limits Limits
}

func NewPgStore(pool *pgxpool.Pool, limits Limits) *PgStore {
	return &PgStore{pool: pool, limits: limits}
}

// Save pipelines the blob insert, the three index appends and the trims in
// one round trip. The blob and its index rows share one statement, so a
// conflicting id indexes nothing.
func (s *PgStore) Save(ctx context.Context, msg domain.Message) error {
	start := time.Now()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	lists := bounds(msg, s.limits)
	keys := make([]string, len(lists))
	for i, l := range lists {
		keys[i] = l.key
	}

	batch := &pgx.Batch{}
	batch.Queue(
		`WITH ins AS (
		   INSERT INTO messages (id, sender, recipient, body, created_at)
		   VALUES ($1, $2, $3, $4, $5)
		   ON CONFLICT (id) DO NOTHING
		   RETURNING id
		 )
		 INSERT INTO message_index (list_key, message_id)
		 SELECT k, ins.id FROM ins, unnest($6::text[]) WITH ORDINALITY AS t(k, ord)
		 ORDER BY ord`,
		msg.ID, msg.From, msg.To, body, msg.CreatedAt, keys,
	)
	for _, l := range lists {
		batch.Queue(
			`DELETE FROM message_index
			 WHERE list_key = $1 AND seq NOT IN (
			   SELECT seq FROM message_index WHERE list_key = $1 ORDER BY seq DESC LIMIT $2
			 )`,
			l.key, l.limit,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	tag, err := br.Exec()
	if err := db.HandleExecError(err, "save message", messagesTable, start); err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateID
	}
	for range lists {
		if _, err := br.Exec(); err != nil {
			return db.HandleExecError(err, "trim message index", indexTable, start)
		}
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id string) (domain.Message, bool, error) {
	msgs, err := s.GetMany(ctx, []string{id})
	if err != nil || len(msgs) == 0 {
		return domain.Message{}, false, err
	}
	return msgs[0], true, nil
}

func (s *PgStore) GetMany(ctx context.Context, ids []string) ([]domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	start := time.Now()
	rows, err := s.pool.Query(ctx, `SELECT id, body, read_at FROM messages WHERE id = ANY($1)`, ids)
	if err := db.HandleQueryError(err, nil, "get messages", messagesTable, start); err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]domain.Message, len(ids))
	for rows.Next() {
		var (
			id     string
			body   []byte
			readAt *time.Time
		)
		if err := rows.Scan(&id, &body, &readAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg domain.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", id, err)
		}
		if readAt != nil {
			at := readAt.UTC()
			msg.Read = true
			msg.ReadAt = &at
		}
		found[id] = msg
	}
	if err := db.HandleQueryError(rows.Err(), nil, "get messages", messagesTable, start); err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(found))
	for _, id := range ids {
		if msg, ok := found[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *PgStore) List(ctx context.Context, listKey string, limit int) ([]string, error) {
	start := time.Now()
	rows, err := s.pool.Query(
		ctx,
		`SELECT message_id FROM message_index WHERE list_key = $1 ORDER BY seq DESC LIMIT $2`,
		listKey,
		limit,
	)
	if err := db.HandleQueryError(err, nil, "list messages", indexTable, start); err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := db.HandleQueryError(rows.Err(), nil, "list messages", indexTable, start); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PgStore) MarkRead(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	_, err := s.pool.Exec(ctx, `UPDATE messages SET read_at = $2 WHERE id = ANY($1) AND read_at IS NULL`, ids, at)
	return db.HandleExecError(err, "mark messages read", messagesTable, start)
}
