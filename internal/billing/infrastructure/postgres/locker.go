package postgres

import (
	"context"
	"errors"

	"water-billing/internal/billing/application"
	billing "water-billing/internal/billing/domain"
)

// AdvisoryLocker serializes runs of a period with a transaction-scoped
// advisory lock keyed by (namespace, YYYYMM). The lock is released on commit
// or rollback, so it must be taken on the run transaction.
type AdvisoryLocker struct {
	namespace int32
}

// NewAdvisoryLocker constructs a locker.
func NewAdvisoryLocker(namespace int32) *AdvisoryLocker {
	return &AdvisoryLocker{namespace: namespace}
}

// LockPeriod blocks until the period lock is held.
func (l *AdvisoryLocker) LockPeriod(ctx context.Context, q application.DBTX, period billing.Period) error {
	if q == nil {
		return errors.New("period lock: nil db")
	}
	_, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, l.namespace, period.LockKey())
	return err
}
