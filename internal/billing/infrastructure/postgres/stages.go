package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"water-billing/internal/billing/application"
	billing "water-billing/internal/billing/domain"
)

const (
	StageTariff         = "tariff"
	StageTotals         = "totals"
	StageClassification = "classification"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ErrInvalidProcedure is returned for procedure names that are not plain
// (optionally schema-qualified) identifiers.
var ErrInvalidProcedure = errors.New("stage: invalid procedure name")

// ProcedureStage calls a stored procedure with the period start date.
type ProcedureStage struct {
	name      string
	procedure string
}

// NewProcedureStage constructs a stage calling procedure.
func NewProcedureStage(name, procedure string) (*ProcedureStage, error) {
	procedure = strings.TrimSpace(procedure)
	if !identifierPattern.MatchString(procedure) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProcedure, procedure)
	}
	return &ProcedureStage{name: name, procedure: procedure}, nil
}

// Name returns the stage name.
func (s *ProcedureStage) Name() string { return s.name }

// Procedure returns the called procedure.
func (s *ProcedureStage) Procedure() string { return s.procedure }

// Apply runs the procedure on q.
func (s *ProcedureStage) Apply(ctx context.Context, q application.DBTX, period billing.Period) error {
	if q == nil {
		return errors.New("stage: nil db")
	}
	_, err := q.ExecContext(ctx, "CALL "+s.procedure+"($1::date)", period.Start())
	return classifyStageError(err)
}

// StatementStage runs a configured SQL statement taking the period start as $1.
type StatementStage struct {
	name      string
	statement string
}

// NewStatementStage constructs a statement stage.
func NewStatementStage(name, statement string) (*StatementStage, error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, errors.New("stage: empty statement")
	}
	return &StatementStage{name: name, statement: statement}, nil
}

// Name returns the stage name.
func (s *StatementStage) Name() string { return s.name }

// Apply runs the statement on q.
func (s *StatementStage) Apply(ctx context.Context, q application.DBTX, period billing.Period) error {
	if q == nil {
		return errors.New("stage: nil db")
	}
	_, err := q.ExecContext(ctx, s.statement, period.Start())
	return classifyStageError(err)
}

// RaisedError is an exception raised deliberately by stage code. Its message
// is written for operators and may be shown to callers.
type RaisedError struct {
	Code    string
	Message string
	Err     error
}

func (e *RaisedError) Error() string {
	return fmt.Sprintf("stage raised %s: %s", e.Code, e.Message)
}

func (e *RaisedError) Unwrap() error { return e.Err }

// PublicMessage returns the raised message.
func (e *RaisedError) PublicMessage() string { return e.Message }

// classifyStageError exposes PL/pgSQL RAISE failures (SQLSTATE class P0) by
// message; every other error is returned unchanged.
func classifyStageError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "P0") {
		return &RaisedError{Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}
	return err
}

// StagesFromConfig builds the three external stages.
func StagesFromConfig(cfg application.Config) (application.Stages, error) {
	tariff, err := stageFromConfig(StageTariff, cfg.Tariff)
	if err != nil {
		return application.Stages{}, err
	}
	totals, err := stageFromConfig(StageTotals, cfg.Totals)
	if err != nil {
		return application.Stages{}, err
	}
	classification, err := stageFromConfig(StageClassification, cfg.Classification)
	if err != nil {
		return application.Stages{}, err
	}
	return application.Stages{Tariff: tariff, Totals: totals, Classification: classification}, nil
}

func stageFromConfig(name string, cfg application.StageConfig) (application.Stage, error) {
	if cfg.Statement != "" {
		return NewStatementStage(name, cfg.Statement)
	}
	if cfg.Procedure == "" {
		return nil, fmt.Errorf("stage %s: procedure or statement required", name)
	}
	return NewProcedureStage(name, cfg.Procedure)
}
