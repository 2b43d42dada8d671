package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"water-billing/internal/billing/application"
)

func TestNewProcedureStage_ValidatesIdentifier(t *testing.T) {
	for _, name := range []string{"billing_apply_tariff", "tarifas.aplicar_faixas", "  padded_name  "} {
		stage, err := NewProcedureStage(StageTariff, name)
		require.NoError(t, err, name)
		assert.Equal(t, StageTariff, stage.Name())
	}
	for _, name := range []string{"", "1abc", "drop table x", "a.b.c", "x(); DELETE FROM units; --"} {
		_, err := NewProcedureStage(StageTariff, name)
		assert.ErrorIs(t, err, ErrInvalidProcedure, name)
	}
}

func TestProcedureStage_Apply(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CALL billing_apply_tariff($1::date)")).
		WithArgs(aug2024.Start()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	stage, err := NewProcedureStage(StageTariff, "billing_apply_tariff")
	require.NoError(t, err)
	require.NoError(t, stage.Apply(context.Background(), db, aug2024))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcedureStage_RaisedErrorIsPublic(t *testing.T) {
	db, mock := newMock(t)
	raised := &pgconn.PgError{Code: "P0001", Message: "faixa tarifária ausente para 2024-08"}
	mock.ExpectExec(regexp.QuoteMeta("CALL billing_apply_totals($1::date)")).WillReturnError(raised)

	stage, err := NewProcedureStage(StageTotals, "billing_apply_totals")
	require.NoError(t, err)
	err = stage.Apply(context.Background(), db, aug2024)

	var pub application.PublicError
	require.ErrorAs(t, err, &pub)
	assert.Equal(t, "faixa tarifária ausente para 2024-08", pub.PublicMessage())
	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyStageError(t *testing.T) {
	assert.NoError(t, classifyStageError(nil))

	undefined := &pgconn.PgError{Code: "42P01", Message: "relation \"tariff_brackets\" does not exist"}
	err := classifyStageError(fmt.Errorf("exec: %w", undefined))
	var pub application.PublicError
	assert.False(t, errors.As(err, &pub), "non-raise errors stay internal")

	plain := errors.New("conn closed")
	assert.Equal(t, plain, classifyStageError(plain))
}

func TestStatementStage_Apply(t *testing.T) {
	db, mock := newMock(t)
	stmt := "UPDATE billing_staging SET message = 'ok' WHERE period_date = $1"
	mock.ExpectExec(regexp.QuoteMeta(stmt)).WithArgs(aug2024.Start()).WillReturnResult(sqlmock.NewResult(0, 3))

	stage, err := NewStatementStage(StageClassification, stmt)
	require.NoError(t, err)
	require.NoError(t, stage.Apply(context.Background(), db, aug2024))
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = NewStatementStage(StageClassification, "   ")
	assert.Error(t, err)
}

func TestStagesFromConfig(t *testing.T) {
	stages, err := StagesFromConfig(application.Config{
		Tariff:         application.StageConfig{Procedure: "billing_apply_tariff"},
		Totals:         application.StageConfig{Procedure: "ignored", Statement: "SELECT 1 WHERE $1::date IS NOT NULL"},
		Classification: application.StageConfig{Procedure: "billing.classify"},
	})
	require.NoError(t, err)

	tariff, ok := stages.Tariff.(*ProcedureStage)
	require.True(t, ok)
	assert.Equal(t, "billing_apply_tariff", tariff.Procedure())
	_, ok = stages.Totals.(*StatementStage)
	assert.True(t, ok, "statement wins over procedure")
	assert.Equal(t, StageClassification, stages.Classification.Name())

	_, err = StagesFromConfig(application.Config{Tariff: application.StageConfig{Procedure: "bad name"}})
	assert.ErrorIs(t, err, ErrInvalidProcedure)

	_, err = StagesFromConfig(application.Config{Tariff: application.StageConfig{Procedure: "ok"}})
	assert.Error(t, err, "missing totals stage")
}
