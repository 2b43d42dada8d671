package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"water-billing/internal/billing/application"
	billing "water-billing/internal/billing/domain"
)

// HistoryQuery reads billed history.
type HistoryQuery struct{}

// NewHistoryQuery constructs the query.
func NewHistoryQuery() *HistoryQuery {
	return &HistoryQuery{}
}

// LatestReadings lists active units with their last billed reading and the
// 6 and 12 period consumption averages.
func (h *HistoryQuery) LatestReadings(ctx context.Context, q application.DBTX) ([]billing.LatestReading, error) {
	if q == nil {
		return nil, errors.New("history query: nil db")
	}
	rows, err := q.QueryContext(ctx, `
WITH ranked AS (
	SELECT unit_id, period_date, reading, consumption_m3,
		ROW_NUMBER() OVER (PARTITION BY unit_id ORDER BY period_date DESC) AS rn
	FROM billing_history
), averages AS (
	SELECT unit_id,
		AVG(consumption_m3) FILTER (WHERE rn <= 6) AS avg_6,
		AVG(consumption_m3) FILTER (WHERE rn <= 12) AS avg_12
	FROM ranked
	GROUP BY unit_id
)
SELECT u.id, u.name, l.period_date, l.reading, l.consumption_m3, a.avg_6, a.avg_12
FROM units u
LEFT JOIN ranked l ON l.unit_id = u.id AND l.rn = 1
LEFT JOIN averages a ON a.unit_id = u.id
WHERE u.active
ORDER BY u.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.LatestReading
	for rows.Next() {
		var (
			item                 billing.LatestReading
			periodDate           sql.NullTime
			reading, consumption sql.NullFloat64
			avg6, avg12          sql.NullFloat64
		)
		if err := rows.Scan(&item.UnitID, &item.UnitName, &periodDate, &reading, &consumption, &avg6, &avg12); err != nil {
			return nil, err
		}
		if periodDate.Valid {
			item.LastPeriod = billing.PeriodOf(periodDate.Time.UTC()).String()
		}
		item.LastReading = floatPtr(reading)
		item.LastConsumption = floatPtr(consumption)
		item.Average6 = floatPtr(avg6)
		item.Average12 = floatPtr(avg12)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UnitHistory lists the billed periods of one unit, newest first.
func (h *HistoryQuery) UnitHistory(ctx context.Context, q application.DBTX, unitID int64) ([]billing.BilledPeriod, error) {
	if q == nil {
		return nil, errors.New("history query: nil db")
	}
	rows, err := q.QueryContext(ctx, `
SELECT period_date, reading, consumption_m3, total_cost, billed_at
FROM billing_history
WHERE unit_id = $1
ORDER BY period_date DESC`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.BilledPeriod
	for rows.Next() {
		var (
			item                 billing.BilledPeriod
			periodDate           time.Time
			reading, consumption sql.NullFloat64
		)
		if err := rows.Scan(&periodDate, &reading, &consumption, &item.TotalCost, &item.BilledAt); err != nil {
			return nil, err
		}
		period := billing.PeriodOf(periodDate.UTC())
		item.Period = period.String()
		item.Label = period.Label()
		item.Reading = floatPtr(reading)
		item.ConsumptionM3 = floatPtr(consumption)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
