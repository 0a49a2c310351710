package ttlstore

import (
	"context"
	"errors"
	"time"

	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/db"
)

const table = "ttl_entries"

// PgStore relies on single-statement upserts, so concurrent callers on any
// number of instances serialize on the row lock.
type PgStore struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

func NewPgStore(pool *pgxpool.Pool, clk clock.Clock) *PgStore {
	return &PgStore{pool: pool, clock: clk}
}

func (s *PgStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	start := time.Now()
	now := s.clock.Now().UTC()

	var count int64
	err := s.pool.QueryRow(
		ctx,
		`INSERT INTO ttl_entries (key, value, expires_at) VALUES ($1, 1, $3)
		 ON CONFLICT (key) DO UPDATE SET
		   value = CASE WHEN ttl_entries.expires_at <= $2 THEN 1 ELSE ttl_entries.value + 1 END,
		   expires_at = CASE WHEN ttl_entries.expires_at <= $2 THEN $3 ELSE ttl_entries.expires_at END
		 RETURNING value`,
		key,
		now,
		now.Add(ttl),
	).Scan(&count)
	if err := db.HandleQueryError(err, nil, "ttl_incr", table, start); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *PgStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	now := s.clock.Now().UTC()

	var stored string
	err := s.pool.QueryRow(
		ctx,
		`INSERT INTO ttl_entries (key, value, expires_at) VALUES ($1, 1, $3)
		 ON CONFLICT (key) DO UPDATE SET value = 1, expires_at = $3
		   WHERE ttl_entries.expires_at <= $2
		 RETURNING key`,
		key,
		now,
		now.Add(ttl),
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = db.HandleQueryError(nil, nil, "ttl_set_if_absent", table, start)
		return false, nil
	}
	if err := db.HandleQueryError(err, nil, "ttl_set_if_absent", table, start); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PgStore) DeleteExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM ttl_entries WHERE expires_at <= $1`, s.clock.Now().UTC())
	if err := db.HandleExecError(err, "ttl_delete_expired", table, start); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
