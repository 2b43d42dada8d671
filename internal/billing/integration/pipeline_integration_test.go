package integration_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	billingapp "water-billing/internal/billing/application"
	billing "water-billing/internal/billing/domain"
	billingrepo "water-billing/internal/billing/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const testProcedures = `
CREATE OR REPLACE PROCEDURE billing_it_tariff(p_period date)
LANGUAGE plpgsql AS $$
BEGIN
	UPDATE billing_staging
	SET water_bracket = CASE WHEN measured_consumption_m3 > 10 THEN 'B' ELSE 'A' END,
		water_rate = CASE WHEN measured_consumption_m3 > 10 THEN 5.5 ELSE 4.0 END,
		sewage_bracket = 'A',
		sewage_rate = 2.0
	WHERE period_date = p_period;
END;
$$;

CREATE OR REPLACE PROCEDURE billing_it_totals(p_period date)
LANGUAGE plpgsql AS $$
BEGIN
	UPDATE billing_staging
	SET production_cost = ROUND((COALESCE(measured_consumption_m3, 0) * water_rate)::numeric, 2),
		sewage_cost = ROUND((COALESCE(sewage_consumption_m3, 0) * sewage_rate)::numeric, 2),
		purchase_cost = 0,
		common_area_cost = 0,
		other_cost = 0
	WHERE period_date = p_period;
	UPDATE billing_staging
	SET total_cost = production_cost + sewage_cost + purchase_cost + common_area_cost + other_cost
	WHERE period_date = p_period;
END;
$$;

CREATE OR REPLACE PROCEDURE billing_it_classification(p_period date)
LANGUAGE plpgsql AS $$
BEGIN
	IF EXISTS (SELECT 1 FROM billing_staging WHERE period_date = p_period AND unit_id = 990099) THEN
		RAISE EXCEPTION 'unit 990099 cannot be classified';
	END IF;
	UPDATE billing_staging
	SET message = CASE WHEN measured_consumption_m3 > period_mean_consumption THEN 'above average' ELSE 'ok' END
	WHERE period_date = p_period;
END;
$$;
`

func TestPipeline_RunReplaceAndRollback(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, applyBillingMigrations(db))

	ctx := context.Background()
	_, err = db.ExecContext(ctx, testProcedures)
	require.NoError(t, err)

	period := billing.BillingPeriod{
		ReferenceDate:     time.Date(2031, time.January, 10, 0, 0, 0, 0, time.UTC),
		ProducedVolumeM3:  900,
		PurchasedVolumeM3: 100,
		PurchasedCost:     decimal.RequireFromString("350.00"),
		OtherCosts:        decimal.RequireFromString("40.00"),
	}
	key := period.Key()
	_, _ = db.ExecContext(ctx, "DELETE FROM billing_staging WHERE period_date = $1", key.Start())
	_, err = db.ExecContext(ctx, `
INSERT INTO units (id, name) VALUES (990001, 'Lote IT 1'), (990002, 'Lote IT 2')
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`)
	require.NoError(t, err)

	svc, store := newService(t, db)
	c := func(v float64) *float64 { return &v }

	first, err := svc.Run(ctx, period, []billing.UnitReading{
		{UnitID: 990002, ReadingValue: c(500), ConsumptionM3: c(12)},
		{UnitID: 990001, ReadingValue: c(210), ConsumptionM3: c(8)},
		{UnitID: 990003, ConsumptionM3: c(4)},
	})
	require.NoError(t, err)
	require.Len(t, first.Rows, 3)
	assert.Equal(t, int64(990001), first.Rows[0].UnitID)
	assert.Equal(t, "Lote IT 1", first.Rows[0].DisplayName)
	assert.Equal(t, "Unit 990003", first.Rows[2].DisplayName)
	assert.Equal(t, "B", *first.Rows[1].WaterBracket)
	assert.Equal(t, "90", first.Rows[1].TotalCost.Decimal.String())
	assert.Equal(t, "above average", *first.Rows[1].Message)
	assert.Len(t, first.Log, 5)

	second, err := svc.Run(ctx, period, []billing.UnitReading{
		{UnitID: 990001, ConsumptionM3: c(9)},
	})
	require.NoError(t, err)
	require.Len(t, second.Rows, 1, "rerun replaces the whole period")

	before, err := store.ListPeriod(ctx, db, key)
	require.NoError(t, err)

	failed, err := svc.Run(ctx, period, []billing.UnitReading{
		{UnitID: 990001, ConsumptionM3: c(30)},
		{UnitID: 990099, ConsumptionM3: c(1)},
	})
	var phaseErr *billingapp.PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, billingrepo.StageClassification, phaseErr.Phase)
	require.NotNil(t, failed)
	assert.Equal(t, 1, failed.Log.Errors())
	assert.Equal(t, "classification: failed: unit 990099 cannot be classified", failed.Log[len(failed.Log)-1].Message)

	after, err := store.ListPeriod(ctx, db, key)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed run leaves staging untouched")
}

func TestPipeline_SamePeriodRunsAreSerialized(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, applyBillingMigrations(db))
	ctx := context.Background()
	_, err = db.ExecContext(ctx, testProcedures)
	require.NoError(t, err)

	svc, store := newService(t, db)
	period := billing.BillingPeriod{ReferenceDate: time.Date(2031, time.February, 1, 0, 0, 0, 0, time.UTC)}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	results := make([]*billingapp.RunResult, len(errs))
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			readings := make([]billing.UnitReading, 0, i+1)
			for u := 0; u <= i; u++ {
				v := float64(u + 1)
				readings = append(readings, billing.UnitReading{UnitID: int64(991000 + u), ConsumptionM3: &v})
			}
			results[i], errs[i] = svc.Run(ctx, period, readings)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err)
		require.Len(t, results[i].Rows, i+1, "each run returns the rows it staged")
		for u, row := range results[i].Rows {
			assert.Equal(t, int64(991000+u), row.UnitID)
		}
	}

	records, err := store.ListPeriod(ctx, db, period.Key())
	require.NoError(t, err)
	require.NotEmpty(t, records)
	stats := records[0].PeriodConsumption
	for _, rec := range records {
		assert.Equal(t, stats, rec.PeriodConsumption, "rows of one period come from a single run")
	}
	assert.InDelta(t, float64(len(records)*(len(records)+1)/2), stats.Total, 1e-9)
}

func newService(t *testing.T, db *sql.DB) (*billingapp.PipelineService, *billingrepo.StagingRepository) {
	t.Helper()
	stages, err := billingrepo.StagesFromConfig(billingapp.Config{
		Tariff:         billingapp.StageConfig{Procedure: "billing_it_tariff"},
		Totals:         billingapp.StageConfig{Procedure: "billing_it_totals"},
		Classification: billingapp.StageConfig{Procedure: "billing_it_classification"},
	})
	require.NoError(t, err)
	store := billingrepo.NewStagingRepository(billingrepo.WithInsertBatchSize(2))
	svc, err := billingapp.NewPipelineService(db, store, billingrepo.NewUnitRepository(), billingrepo.NewAdvisoryLocker(billingapp.DefaultLockNamespace), stages,
		billingapp.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return svc, store
}

func applyBillingMigrations(db *sql.DB) error {
	content, err := os.ReadFile(filepath.Join(projectRoot(), "migrations", "001_billing.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(content))
	return err
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}
