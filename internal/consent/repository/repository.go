package repository

import (
	"context"
	"errors"
	"time"

	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/db"
	"github.com/AlibekovAA/dh-trust/backend/internal/consent/domain"
)

type Repository interface {
	// Get returns a record with StateNone when the pair has none stored.
	Get(ctx context.Context, from, to string) (domain.Record, error)
	Put(ctx context.Context, record domain.Record) error
	ListByRecipient(ctx context.Context, to string, state domain.State, limit int) ([]domain.Record, error)
}

const table = "consent_records"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectColumns = `SELECT from_handle, to_handle, state, requested_at, responded_at, preview, grandfathered, updated_at FROM consent_records`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.Record, error) {
	var (
		r     domain.Record
		state string
	)
	if err := row.Scan(&r.From, &r.To, &state, &r.RequestedAt, &r.RespondedAt, &r.Preview, &r.Grandfathered, &r.UpdatedAt); err != nil {
		return domain.Record{}, err
	}
	r.State = domain.State(state)
	return r, nil
}

func (r *PgRepository) Get(ctx context.Context, from, to string) (domain.Record, error) {
	start := time.Now()
	record, err := scanRecord(r.pool.QueryRow(ctx, selectColumns+` WHERE from_handle = $1 AND to_handle = $2`, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Record{From: from, To: to, State: domain.StateNone}, db.HandleQueryError(nil, nil, "get consent", table, start)
	}
	if err := db.HandleQueryError(err, nil, "get consent", table, start); err != nil {
		return domain.Record{}, err
	}
	return record, nil
}

func (r *PgRepository) Put(ctx context.Context, record domain.Record) error {
	start := time.Now()
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO consent_records (from_handle, to_handle, state, requested_at, responded_at, preview, grandfathered, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (from_handle, to_handle) DO UPDATE SET
		   state = EXCLUDED.state,
		   requested_at = EXCLUDED.requested_at,
		   responded_at = EXCLUDED.responded_at,
		   preview = EXCLUDED.preview,
		   grandfathered = EXCLUDED.grandfathered,
		   updated_at = EXCLUDED.updated_at`,
		record.From,
		record.To,
		string(record.State),
		record.RequestedAt,
		record.RespondedAt,
		record.Preview,
		record.Grandfathered,
		record.UpdatedAt,
	)
	return db.HandleExecError(err, "put consent", table, start)
}

func (r *PgRepository) ListByRecipient(ctx context.Context, to string, state domain.State, limit int) ([]domain.Record, error) {
	start := time.Now()
	rows, err := r.pool.Query(
		ctx,
		selectColumns+` WHERE to_handle = $1 AND state = $2 ORDER BY requested_at DESC NULLS LAST LIMIT $3`,
		to,
		string(state),
		limit,
	)
	if err := db.HandleQueryError(err, nil, "list consent", table, start); err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, db.HandleQueryError(err, nil, "scan consent", table, start)
		}
		records = append(records, record)
	}
	if err := db.HandleQueryError(rows.Err(), nil, "list consent", table, start); err != nil {
		return nil, err
	}
	return records, nil
}
