package application

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	billing "water-billing/internal/billing/domain"
	"water-billing/internal/observability/metrics"
)

const (
	phaseBegin   = "begin"
	phaseStaging = "staging"
	phaseCommit  = "commit"
	phaseResults = "results"
)

const defaultUnitPlaceholder = "Unit %d"

// RunResult is the structured outcome of one pipeline run. It is returned for
// failed runs too, carrying the phase log up to the failure point.
type RunResult struct {
	RunID        string              `json:"run_id"`
	Period       string              `json:"period"`
	Log          billing.PhaseLog    `json:"phase_log"`
	Rows         []billing.ResultRow `json:"rows,omitempty"`
	Failed       bool                `json:"failed"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// PipelineService runs the monthly billing pipeline: staging ingestion followed
// by the tariff, totals and classification stages inside one transaction.
type PipelineService struct {
	db              Database
	store           StagingStore
	units           UnitDirectory
	locker          PeriodLocker
	stages          Stages
	logger          *zap.Logger
	unitPlaceholder string
	newRunID        func() string
}

// Option configures the pipeline service.
type Option func(*PipelineService)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *PipelineService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUnitPlaceholder sets the fmt pattern used to name unknown units.
// Patterns without exactly one integer verb are ignored.
func WithUnitPlaceholder(pattern string) Option {
	return func(s *PipelineService) {
		if ValidUnitPlaceholder(pattern) {
			s.unitPlaceholder = pattern
		}
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(fn func() string) Option {
	return func(s *PipelineService) {
		if fn != nil {
			s.newRunID = fn
		}
	}
}

// NewPipelineService constructs the orchestrator.
func NewPipelineService(db Database, store StagingStore, units UnitDirectory, locker PeriodLocker, stages Stages, opts ...Option) (*PipelineService, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if units == nil {
		return nil, ErrNilUnitDirectory
	}
	if locker == nil {
		return nil, ErrNilLocker
	}
	for i, stage := range stages.ordered() {
		if stage == nil {
			return nil, fmt.Errorf("%w: position %d", ErrMissingStage, i+1)
		}
	}
	s := &PipelineService{
		db:              db,
		store:           store,
		units:           units,
		locker:          locker,
		stages:          stages,
		logger:          zap.NewNop(),
		unitPlaceholder: defaultUnitPlaceholder,
		newRunID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run validates the submission and executes every phase atomically. On
// failure the transaction is rolled back, the returned result carries the
// phase log with a single ERROR entry, and the error is a *PhaseError.
// Invalid submissions return a nil result and never open a transaction.
func (s *PipelineService) Run(ctx context.Context, period billing.BillingPeriod, readings []billing.UnitReading) (*RunResult, error) {
	if err := billing.ValidateSubmission(period, readings); err != nil {
		metrics.ObservePipelineRun(metrics.ResultRejected, 0)
		return nil, err
	}

	key := period.Key()
	result := &RunResult{RunID: s.newRunID(), Period: key.String()}
	logger := s.logger.With(zap.String("run_id", result.RunID), zap.String("period", key.String()))

	start := time.Now()
	outcome := metrics.ResultSuccess
	defer func() {
		metrics.ObservePipelineRun(outcome, time.Since(start))
	}()

	logger.Info("billing pipeline started", zap.Int("readings", len(readings)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		outcome = metrics.ResultError
		return result, s.fail(result, logger, phaseBegin, err)
	}

	staged, err := s.runPhases(ctx, tx, period, readings, result, logger)
	if err != nil {
		outcome = metrics.ResultError
		s.rollback(tx, logger)
		return result, err
	}

	// Read inside the transaction so the rows belong to this run even when
	// another run for the period is waiting on the lock.
	records, err := s.store.ListPeriod(ctx, tx, key)
	if err != nil {
		outcome = metrics.ResultError
		s.rollback(tx, logger)
		return result, s.fail(result, logger, phaseResults, err)
	}

	if err := tx.Commit(); err != nil {
		outcome = metrics.ResultError
		return result, s.fail(result, logger, phaseCommit, err)
	}
	metrics.AddStagedRows(staged)

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UnitID < records[j].UnitID
	})
	result.Rows = billing.ResultRows(records)
	result.Log.OK(fmt.Sprintf("pipeline completed for %s: %d rows returned", key.Label(), len(result.Rows)))

	logger.Info("billing pipeline completed", zap.Int("rows", len(result.Rows)), zap.Duration("duration", time.Since(start)))
	return result, nil
}

func (s *PipelineService) runPhases(ctx context.Context, tx DBTX, period billing.BillingPeriod, readings []billing.UnitReading, result *RunResult, logger *zap.Logger) (int, error) {
	key := period.Key()

	var staged int
	err := s.phase(ctx, logger, phaseStaging, func(ctx context.Context) (string, error) {
		message, n, err := s.stage(ctx, tx, period, readings)
		staged = n
		return message, err
	}, result)
	if err != nil {
		return 0, err
	}

	for _, stage := range s.stages.ordered() {
		stage := stage
		err := s.phase(ctx, logger, stage.Name(), func(ctx context.Context) (string, error) {
			if err := stage.Apply(ctx, tx, key); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: applied to %s", stage.Name(), key.Label()), nil
		}, result)
		if err != nil {
			return 0, err
		}
	}
	return staged, nil
}

func (s *PipelineService) rollback(tx *sql.Tx, logger *zap.Logger) {
	if err := tx.Rollback(); err != nil {
		logger.Error("billing pipeline rollback failed", zap.Error(err))
	}
}

// phase runs one step, appending OK on success or a single ERROR entry on
// failure.
func (s *PipelineService) phase(ctx context.Context, logger *zap.Logger, name string, fn func(context.Context) (string, error), result *RunResult) error {
	start := time.Now()
	message, err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		metrics.ObservePipelinePhase(name, metrics.ResultError, time.Since(start))
		return s.fail(result, logger, name, err)
	}
	metrics.ObservePipelinePhase(name, metrics.ResultSuccess, time.Since(start))
	result.Log.OK(message)
	logger.Info("billing pipeline phase completed", zap.String("phase", name), zap.Duration("duration", time.Since(start)))
	return nil
}

func (s *PipelineService) fail(result *RunResult, logger *zap.Logger, phase string, err error) error {
	msg := publicMessage(err)
	result.Failed = true
	result.ErrorMessage = fmt.Sprintf("billing pipeline failed at %s: %s", phase, msg)
	result.Log.Error(fmt.Sprintf("%s: failed: %s", phase, msg))
	logger.Error("billing pipeline failed", zap.String("phase", phase), zap.Error(err))
	return &PhaseError{Phase: phase, Err: err}
}

// stage is phase 1: lock, reset, aggregate, resolve names and bulk insert.
// It returns the number of rows written.
func (s *PipelineService) stage(ctx context.Context, tx DBTX, period billing.BillingPeriod, readings []billing.UnitReading) (string, int, error) {
	key := period.Key()
	if err := s.locker.LockPeriod(ctx, tx, key); err != nil {
		return "", 0, fmt.Errorf("lock period: %w", err)
	}

	removed, err := s.store.DeletePeriod(ctx, tx, key)
	if err != nil {
		return "", 0, fmt.Errorf("reset staging: %w", err)
	}

	// Aggregates cover every submitted value, so a unit id submitted twice
	// counts twice here while only its last reading is staged.
	stats := billing.ComputeStatistics(billing.ConsumptionValues(readings))

	distinct := billing.DistinctReadings(readings)
	records := make([]billing.StagingRecord, 0, len(distinct))
	for _, reading := range distinct {
		name, ok, err := s.units.LookupUnitName(ctx, tx, reading.UnitID)
		if err != nil {
			return "", 0, fmt.Errorf("lookup unit %d: %w", reading.UnitID, err)
		}
		if !ok {
			name = fmt.Sprintf(s.unitPlaceholder, reading.UnitID)
		}
		records = append(records, billing.NewStagingRecord(period, reading, name, stats))
	}

	if err := s.store.InsertRecords(ctx, tx, records); err != nil {
		return "", 0, fmt.Errorf("insert staging: %w", err)
	}

	return fmt.Sprintf("staging: %d readings staged for %s (replaced %d; total %.2f m3, mean %.2f, median %.2f)",
		len(records), key.Label(), removed, stats.Total, stats.Mean, stats.Median), len(records), nil
}
