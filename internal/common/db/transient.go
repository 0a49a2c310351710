package db

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"
)

// IsTransient reports connectivity and serialization failures. They surface as
// storage_unavailable and are never retried here; clients resubmit idempotently.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "08000", "08003", "08006", "08001", "08004", "08007", "08P01":
			return true
		case "40001", "40P01":
			return true
		case "55P03", "57P01", "57P03":
			return true
		}
		return false
	}

	if pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
