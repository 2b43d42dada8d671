package application

import (
	"context"
	"errors"

	billing "water-billing/internal/billing/domain"
)

// ErrNilHistory is returned when the query service has no history reader.
var ErrNilHistory = errors.New("pipeline: nil history reader")

// QueryService serves read-only views of staged and billed data.
type QueryService struct {
	db      DBTX
	store   StagingStore
	history HistoryReader
}

// NewQueryService constructs a query service.
func NewQueryService(db DBTX, store StagingStore, history HistoryReader) (*QueryService, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if history == nil {
		return nil, ErrNilHistory
	}
	return &QueryService{db: db, store: store, history: history}, nil
}

// StagedRecords returns the committed staging rows of a period.
func (s *QueryService) StagedRecords(ctx context.Context, period billing.Period) ([]billing.StagingRecord, error) {
	if period.IsZero() {
		return nil, billing.ErrInvalidPeriod
	}
	return s.store.ListPeriod(ctx, s.db, period)
}

// LatestReadings returns every active unit with its last billed reading.
func (s *QueryService) LatestReadings(ctx context.Context) ([]billing.LatestReading, error) {
	return s.history.LatestReadings(ctx, s.db)
}

// UnitHistory returns the billed periods of one unit, newest first.
func (s *QueryService) UnitHistory(ctx context.Context, unitID int64) ([]billing.BilledPeriod, error) {
	if unitID <= 0 {
		return nil, billing.ErrInvalidUnitID
	}
	return s.history.UnitHistory(ctx, s.db, unitID)
}
