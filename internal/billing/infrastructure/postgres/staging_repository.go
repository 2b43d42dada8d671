package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"water-billing/internal/billing/application"
	billing "water-billing/internal/billing/domain"
)

const (
	defaultInsertBatchSize = 500
	// Postgres caps bind parameters per statement at 65535.
	maxBindParams = 65535
)

var stagingInsertColumns = []string{
	"period_date", "unit_id", "unit_name", "period_label",
	"reading", "measured_consumption_m3", "reading_at",
	"sewage_consumption_m3", "produced_consumption_m3", "purchased_consumption_m3",
	"period_produced_m3", "period_purchased_m3", "period_purchased_cost", "period_other_costs",
	"period_total_consumption", "period_mean_consumption", "period_median_consumption",
}

const stagingSelectColumns = `
	period_date, unit_id, unit_name, period_label,
	reading, measured_consumption_m3, reading_at,
	sewage_consumption_m3, produced_consumption_m3, purchased_consumption_m3,
	period_produced_m3, period_purchased_m3, period_purchased_cost, period_other_costs,
	period_total_consumption, period_mean_consumption, period_median_consumption,
	water_bracket, water_rate, water_deductible,
	sewage_bracket, sewage_rate, sewage_deductible,
	production_cost, purchase_cost, sewage_cost, common_area_cost, other_cost, total_cost,
	message`

// StagingRepository persists staging records. It holds no handle of its own:
// every call runs on the DBTX it is given, usually the run transaction.
type StagingRepository struct {
	batchSize int
}

// StagingOption configures the staging repository.
type StagingOption func(*StagingRepository)

// WithInsertBatchSize sets the number of rows per INSERT statement.
func WithInsertBatchSize(n int) StagingOption {
	return func(r *StagingRepository) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewStagingRepository constructs a repository.
func NewStagingRepository(opts ...StagingOption) *StagingRepository {
	r := &StagingRepository{batchSize: defaultInsertBatchSize}
	for _, opt := range opts {
		opt(r)
	}
	if limit := maxBindParams / len(stagingInsertColumns); r.batchSize > limit {
		r.batchSize = limit
	}
	return r
}

// DeletePeriod removes every staged row of the period.
func (r *StagingRepository) DeletePeriod(ctx context.Context, q application.DBTX, period billing.Period) (int64, error) {
	if q == nil {
		return 0, errors.New("staging repo: nil db")
	}
	res, err := q.ExecContext(ctx, `DELETE FROM billing_staging WHERE period_date = $1`, period.Start())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertRecords bulk inserts records with multi-row INSERT statements.
func (r *StagingRepository) InsertRecords(ctx context.Context, q application.DBTX, records []billing.StagingRecord) error {
	if q == nil {
		return errors.New("staging repo: nil db")
	}
	for start := 0; start < len(records); start += r.batchSize {
		end := start + r.batchSize
		if end > len(records) {
			end = len(records)
		}
		query, args := buildStagingInsert(records[start:end])
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// ListPeriod returns the staged rows of the period ordered by unit id.
func (r *StagingRepository) ListPeriod(ctx context.Context, q application.DBTX, period billing.Period) ([]billing.StagingRecord, error) {
	if q == nil {
		return nil, errors.New("staging repo: nil db")
	}
	rows, err := q.QueryContext(ctx, `
SELECT`+stagingSelectColumns+`
FROM billing_staging
WHERE period_date = $1
ORDER BY unit_id ASC`, period.Start())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.StagingRecord
	for rows.Next() {
		rec, err := scanStagingRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountPeriod returns the number of staged rows of the period.
func (r *StagingRepository) CountPeriod(ctx context.Context, q application.DBTX, period billing.Period) (int, error) {
	if q == nil {
		return 0, errors.New("staging repo: nil db")
	}
	var count int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM billing_staging WHERE period_date = $1`, period.Start()).Scan(&count)
	return count, err
}

func buildStagingInsert(records []billing.StagingRecord) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO billing_staging (")
	b.WriteString(strings.Join(stagingInsertColumns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*len(stagingInsertColumns))
	for i, rec := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range stagingInsertColumns {
			if c > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(len(args) + c + 1))
		}
		b.WriteByte(')')
		args = append(args,
			rec.Period.Start(), rec.UnitID, rec.UnitName, rec.PeriodLabel,
			nullFloat(rec.Reading), nullFloat(rec.MeasuredConsumptionM3), nullTime(rec.ReadingAt),
			nullFloat(rec.SewageConsumptionM3), nullFloat(rec.ProducedConsumptionM3), rec.PurchasedConsumptionM3,
			rec.PeriodProducedM3, rec.PeriodPurchasedM3, rec.PeriodPurchasedCost, rec.PeriodOtherCosts,
			rec.PeriodConsumption.Total, rec.PeriodConsumption.Mean, rec.PeriodConsumption.Median,
		)
	}
	return b.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStagingRecord(row rowScanner) (billing.StagingRecord, error) {
	var (
		rec                                 billing.StagingRecord
		periodDate                          time.Time
		reading, measured, sewage, produced sql.NullFloat64
		readingAt                           sql.NullTime
		waterBracket, sewageBracket, msg    sql.NullString
	)
	err := row.Scan(
		&periodDate, &rec.UnitID, &rec.UnitName, &rec.PeriodLabel,
		&reading, &measured, &readingAt,
		&sewage, &produced, &rec.PurchasedConsumptionM3,
		&rec.PeriodProducedM3, &rec.PeriodPurchasedM3, &rec.PeriodPurchasedCost, &rec.PeriodOtherCosts,
		&rec.PeriodConsumption.Total, &rec.PeriodConsumption.Mean, &rec.PeriodConsumption.Median,
		&waterBracket, &rec.WaterRate, &rec.WaterDeductible,
		&sewageBracket, &rec.SewageRate, &rec.SewageDeductible,
		&rec.ProductionCost, &rec.PurchaseCost, &rec.SewageCost, &rec.CommonAreaCost, &rec.OtherCost, &rec.TotalCost,
		&msg,
	)
	if err != nil {
		return billing.StagingRecord{}, err
	}
	rec.Period = billing.PeriodOf(periodDate.UTC())
	rec.Reading = floatPtr(reading)
	rec.MeasuredConsumptionM3 = floatPtr(measured)
	rec.SewageConsumptionM3 = floatPtr(sewage)
	rec.ProducedConsumptionM3 = floatPtr(produced)
	if readingAt.Valid {
		t := readingAt.Time.UTC()
		rec.ReadingAt = &t
	}
	rec.WaterBracket = stringPtr(waterBracket)
	rec.SewageBracket = stringPtr(sewageBracket)
	rec.Message = stringPtr(msg)
	return rec, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
