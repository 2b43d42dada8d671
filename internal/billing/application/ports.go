package application

import (
	"context"
	"database/sql"

	billing "water-billing/internal/billing/domain"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Every phase
// receives the run's transaction through it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Database opens the run transaction and serves the post-commit read.
type Database interface {
	DBTX
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// StagingStore owns the per-period staging rows.
type StagingStore interface {
	DeletePeriod(ctx context.Context, q DBTX, period billing.Period) (int64, error)
	InsertRecords(ctx context.Context, q DBTX, records []billing.StagingRecord) error
	ListPeriod(ctx context.Context, q DBTX, period billing.Period) ([]billing.StagingRecord, error)
	CountPeriod(ctx context.Context, q DBTX, period billing.Period) (int, error)
}

// UnitDirectory resolves unit display names. ok is false for unknown units.
type UnitDirectory interface {
	LookupUnitName(ctx context.Context, q DBTX, unitID int64) (name string, ok bool, err error)
}

// HistoryReader reads billed history.
type HistoryReader interface {
	LatestReadings(ctx context.Context, q DBTX) ([]billing.LatestReading, error)
	UnitHistory(ctx context.Context, q DBTX, unitID int64) ([]billing.BilledPeriod, error)
}

// PeriodLocker serializes runs of the same period for the lifetime of q.
type PeriodLocker interface {
	LockPeriod(ctx context.Context, q DBTX, period billing.Period) error
}

// Stage is an external, period-scoped calculation that works on every staged
// row of the period as a set.
type Stage interface {
	Name() string
	Apply(ctx context.Context, q DBTX, period billing.Period) error
}

// Stages are the three external calculations in execution order.
type Stages struct {
	Tariff         Stage
	Totals         Stage
	Classification Stage
}

func (s Stages) ordered() []Stage {
	return []Stage{s.Tariff, s.Totals, s.Classification}
}

// StageFunc adapts an in-process function to a Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, q DBTX, period billing.Period) error
}

// Name returns the stage name.
func (f StageFunc) Name() string { return f.StageName }

// Apply runs the function.
func (f StageFunc) Apply(ctx context.Context, q DBTX, period billing.Period) error {
	return f.Fn(ctx, q, period)
}

// PublicError is implemented by failures whose message may be shown to callers.
type PublicError interface {
	error
	PublicMessage() string
}
