package db

import (
	"errors"
	"fmt"
	"time"

	pgx "github.com/jackc/pgx/v4"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

func observe(operation, table string, startTime time.Time) {
	metrics.DBQueryDurationSeconds.WithLabelValues(operation, table).Observe(time.Since(startTime).Seconds())
}

func classify(err error, operation, table string) error {
	metrics.DBQueryErrors.WithLabelValues(operation, table, fmt.Sprintf("%T", err)).Inc()
	if IsTransient(err) {
		metrics.StorageUnavailableTotal.WithLabelValues(operation).Inc()
		return commonerrors.ErrStorageUnavailable.WithCause(fmt.Errorf("%s: %w", operation, err))
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// HandleQueryError maps pgx.ErrNoRows to notFoundErr when one is given.
func HandleQueryError(err error, notFoundErr error, operation, table string, startTime time.Time) error {
	observe(operation, table, startTime)

	if err == nil {
		return nil
	}
	if notFoundErr != nil && errors.Is(err, pgx.ErrNoRows) {
		return notFoundErr
	}
	return classify(err, operation, table)
}

func HandleExecError(err error, operation, table string, startTime time.Time) error {
	observe(operation, table, startTime)

	if err == nil {
		return nil
	}
	return classify(err, operation, table)
}
